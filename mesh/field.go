package mesh

import (
	"fmt"

	"github.com/notargets/femesh/basis"
	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/status"
)

// Field is a named finite-element field. Nodal parameters are stored in a
// sparse labels.Map addressed by (node, derivative, version, component);
// element interpolation is described per mesh by element field components
// registered through element templates.
type Field struct {
	region         *Region
	name           string
	componentCount int
	coordinate     bool

	// Index label sets for the parameter map. Derivatives are the fixed
	// 1..8 nodal derivative ensemble; versions grow on demand with a
	// minimum of 1; components are 1..componentCount.
	derivatives *labels.Set
	versions    *labels.Set
	components  *labels.Set
	parameters  *labels.Map[float64]
}

func newField(region *Region, name string, componentCount int) *Field {
	f := &Field{
		region:         region,
		name:           name,
		componentCount: componentCount,
		derivatives:    labels.NewSet(name + ".derivatives"),
		versions:       labels.NewSet(name + ".versions"),
		components:     labels.NewSet(name + ".components"),
	}
	for d := 1; d <= basis.DerivativeCount; d++ {
		f.derivatives.CreateLabel(d)
	}
	f.versions.CreateLabel(1)
	for c := 1; c <= componentCount; c++ {
		f.components.CreateLabel(c)
	}
	f.parameters, _ = labels.NewMap[float64](name+".parameters", true,
		region.nodes.labels, f.derivatives, f.versions, f.components)
	return f
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// ComponentCount returns the number of field components.
func (f *Field) ComponentCount() int { return f.componentCount }

// IsCoordinate reports whether this is the region's designated coordinate
// field.
func (f *Field) IsCoordinate() bool { return f.coordinate }

// VersionCount returns the highest nodal version defined anywhere on the
// field, minimum 1.
func (f *Field) VersionCount() int { return f.versions.Size() }

// Parameters exposes the nodal parameter map for serialization.
func (f *Field) Parameters() *labels.Map[float64] { return f.parameters }

// DerivativeLabels and VersionLabels expose the parameter index sets for
// serialization.
func (f *Field) DerivativeLabels() *labels.Set { return f.derivatives }
func (f *Field) VersionLabels() *labels.Set    { return f.versions }
func (f *Field) ComponentLabels() *labels.Set  { return f.components }

func (f *Field) parameterIndexes(nodeIndex, derivative, version, component int) ([]int, error) {
	di := f.derivatives.FindLabelByIdentifier(derivative)
	if di == labels.InvalidIndex {
		return nil, fmt.Errorf("%w: field %q derivative %d", status.ErrArgument, f.name, derivative)
	}
	ci := f.components.FindLabelByIdentifier(component)
	if ci == labels.InvalidIndex {
		return nil, fmt.Errorf("%w: field %q component %d", status.ErrArgument, f.name, component)
	}
	vi := f.versions.FindLabelByIdentifier(version)
	if vi == labels.InvalidIndex {
		if version < 1 {
			return nil, fmt.Errorf("%w: field %q version %d", status.ErrArgument, f.name, version)
		}
		// Versions grow on demand; fill any gap so identifiers stay dense.
		for v := f.versions.Size() + 1; v <= version; v++ {
			if _, err := f.versions.CreateLabel(v); err != nil {
				return nil, err
			}
		}
		vi = f.versions.FindLabelByIdentifier(version)
	}
	return []int{nodeIndex, di, vi, ci}, nil
}

// SetNodeParameter stores one nodal DOF value. derivative, version and
// component are 1-based identifiers (derivative 1 = value).
func (f *Field) SetNodeParameter(nodeIndex, derivative, version, component int, value float64) error {
	if !f.region.nodes.labels.IsValidIndex(nodeIndex) {
		return fmt.Errorf("%w: field %q node index %d", status.ErrArgument, f.name, nodeIndex)
	}
	indexes, err := f.parameterIndexes(nodeIndex, derivative, version, component)
	if err != nil {
		return err
	}
	if err := f.parameters.SetValue(indexes, value); err != nil {
		return err
	}
	f.region.nodes.changeLog.Record(nodeIndex, labels.ChangeDefinition)
	return nil
}

// NodeParameter returns one nodal DOF value and whether it is defined.
func (f *Field) NodeParameter(nodeIndex, derivative, version, component int) (float64, bool) {
	indexes, err := f.parameterIndexes(nodeIndex, derivative, version, component)
	if err != nil {
		return 0, false
	}
	return f.parameters.Value(indexes)
}

// mergeNodeParameters copies every parameter source holds at srcIndex onto
// targetIndex of f.
func (f *Field) mergeNodeParameters(targetIndex int, source *Field, srcIndex int) error {
	for d := 1; d <= basis.DerivativeCount; d++ {
		for v := 1; v <= source.versions.Size(); v++ {
			for c := 1; c <= source.componentCount; c++ {
				value, ok := source.NodeParameter(srcIndex, d, v, c)
				if !ok {
					continue
				}
				if err := f.SetNodeParameter(targetIndex, d, v, c, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ElementFieldComponent describes how one field component interpolates
// over elements stamped from a template: the basis, the template-local
// node for each basis node, and per-DOF derivative/version/scale-factor
// selections.
type ElementFieldComponent struct {
	Basis *basis.Basis

	// LocalNodes[basisNode] is the template-local node index (0-based).
	LocalNodes []int

	// Derivatives[dof] and Versions[dof] are 1-based identifiers, one per
	// basis function. Nil means the basis's standard pattern (all value
	// DOFs for Lagrange/simplex, the standard Hermite map otherwise) and
	// version 1.
	Derivatives []int
	Versions    []int

	// ScaleFactorSet with per-DOF indices (1-based into the set), or nil
	// for unit scale factors throughout.
	ScaleFactorSet     *ScaleFactorSet
	ScaleFactorIndexes []int
}

// StandardDerivatives returns the effective per-DOF derivative codes.
func (c *ElementFieldComponent) StandardDerivatives() []int {
	if c.Derivatives != nil {
		return c.Derivatives
	}
	codes := make([]int, 0, c.Basis.FunctionCount())
	for n := 0; n < c.Basis.NodeCount(); n++ {
		codes = append(codes, c.Basis.StandardHermiteDerivativeMap(n)...)
	}
	return codes
}

// StandardVersions returns the effective per-DOF versions.
func (c *ElementFieldComponent) StandardVersions() []int {
	if c.Versions != nil {
		return c.Versions
	}
	versions := make([]int, c.Basis.FunctionCount())
	for i := range versions {
		versions[i] = 1
	}
	return versions
}

// dofLocalNodes returns the template-local node for each DOF.
func (c *ElementFieldComponent) dofLocalNodes() []int {
	nodes := make([]int, 0, c.Basis.FunctionCount())
	for n := 0; n < c.Basis.NodeCount(); n++ {
		for d := 0; d < c.Basis.NodeDOFCount(n); d++ {
			nodes = append(nodes, c.LocalNodes[n])
		}
	}
	return nodes
}

func (c *ElementFieldComponent) validate(localNodeCount int) error {
	if c.Basis == nil {
		return fmt.Errorf("%w: element field component without basis", status.ErrArgument)
	}
	if len(c.LocalNodes) != c.Basis.NodeCount() {
		return fmt.Errorf("%w: %d local nodes for basis with %d nodes", status.ErrArgument,
			len(c.LocalNodes), c.Basis.NodeCount())
	}
	for _, ln := range c.LocalNodes {
		if ln < 0 || ln >= localNodeCount {
			return fmt.Errorf("%w: local node %d outside template's %d nodes", status.ErrArgument, ln, localNodeCount)
		}
	}
	fc := c.Basis.FunctionCount()
	if c.Derivatives != nil && len(c.Derivatives) != fc {
		return fmt.Errorf("%w: %d derivative entries for %d basis functions", status.ErrArgument, len(c.Derivatives), fc)
	}
	if c.Versions != nil && len(c.Versions) != fc {
		return fmt.Errorf("%w: %d version entries for %d basis functions", status.ErrArgument, len(c.Versions), fc)
	}
	if c.ScaleFactorSet != nil && len(c.ScaleFactorIndexes) != fc {
		return fmt.Errorf("%w: %d scale factor indexes for %d basis functions", status.ErrArgument, len(c.ScaleFactorIndexes), fc)
	}
	return nil
}

// equal is by-value comparison including index vectors and the scale
// factor set pointer.
func (c *ElementFieldComponent) equal(o *ElementFieldComponent) bool {
	if c.Basis != o.Basis && (c.Basis == nil || o.Basis == nil || c.Basis.Name() == "" ||
		c.Basis.Name() != o.Basis.Name()) {
		return false
	}
	if c.ScaleFactorSet != o.ScaleFactorSet {
		return false
	}
	return intSlicesEqual(c.LocalNodes, o.LocalNodes) &&
		intSlicesEqual(c.StandardDerivatives(), o.StandardDerivatives()) &&
		intSlicesEqual(c.StandardVersions(), o.StandardVersions()) &&
		intSlicesEqual(c.ScaleFactorIndexes, o.ScaleFactorIndexes)
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
