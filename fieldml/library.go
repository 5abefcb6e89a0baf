package fieldml

import (
	"fmt"

	"github.com/notargets/femesh/basis"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// libraryLocation is the standard FieldML library all interpolator and
// shape names import from.
const libraryLocation = "http://www.fieldml.org/library/0.5/library.xml"

// libraryBases is the process-scoped table of uniform bases with library
// interpolators, built once at package init. Readers reverse-map imported
// interpolator names through it.
var libraryBases = func() map[string]*basis.Basis {
	families := []basis.FunctionType{
		basis.LinearLagrange, basis.QuadraticLagrange, basis.CubicLagrange,
		basis.LinearSimplex, basis.QuadraticSimplex, basis.CubicHermite,
	}
	table := make(map[string]*basis.Basis)
	for _, f := range families {
		for d := 1; d <= 3; d++ {
			functions := make([]basis.FunctionType, d)
			for i := range functions {
				functions[i] = f
			}
			b, err := basis.New(functions...)
			if err != nil {
				continue
			}
			if name := b.Name(); name != "" {
				table[name] = b
			}
		}
	}
	return table
}()

// basisForEvaluator returns the basis for a library interpolator name.
func basisForEvaluator(name string) (*basis.Basis, error) {
	if b, ok := libraryBases[name]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: library evaluator %q", status.ErrNotImplemented, name)
}

// shapeNames maps shape types to library shape names.
var shapeNames = map[shape.Type]string{
	shape.Line:        "shape.unit.line",
	shape.Triangle:    "shape.unit.triangle",
	shape.Square:      "shape.unit.square",
	shape.Tetrahedron: "shape.unit.tetrahedron",
	shape.Cube:        "shape.unit.cube",
	shape.Wedge:       "shape.unit.wedge12",
}

// shapeForName reverses shapeNames.
func shapeForName(name string) (shape.Type, error) {
	for t, n := range shapeNames {
		if n == name {
			return t, nil
		}
	}
	return shape.Invalid, fmt.Errorf("%w: shape name %q", status.ErrNotImplemented, name)
}

// importCache records library names already imported by one writer
// session, keeping the document's import list duplicate-free. Per-writer
// state, not global.
type importCache struct {
	doc      *DocumentRegion
	imported map[string]bool
}

func newImportCache(doc *DocumentRegion) *importCache {
	return &importCache{doc: doc, imported: make(map[string]bool)}
}

// use imports a library name on first use and returns the local name.
func (c *importCache) use(remoteName string) string {
	if !c.imported[remoteName] {
		c.imported[remoteName] = true
		c.doc.Imports = append(c.doc.Imports, Import{
			Location:   libraryLocation,
			RemoteName: remoteName,
			LocalName:  remoteName,
		})
	}
	return remoteName
}
