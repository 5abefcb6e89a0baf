// Package basis describes element interpolation bases: the functional form
// per xi direction, node and DOF counts, standard Hermite derivative
// patterns, and nodal interpolation weights. Basis objects are treated as
// opaque descriptions by the mesh layer; the weights exist so fields can be
// evaluated and tests can check interpolated values.
package basis

import (
	"fmt"
	"strings"

	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// FunctionType identifies the interpolation family in one xi direction.
type FunctionType uint8

const (
	InvalidFunction FunctionType = iota
	LinearLagrange
	QuadraticLagrange
	CubicLagrange
	LinearSimplex
	QuadraticSimplex
	CubicHermite
)

func (f FunctionType) isSimplex() bool {
	return f == LinearSimplex || f == QuadraticSimplex
}

// lagrangeOrder returns the polynomial order for tensor-product families,
// 0 otherwise.
func (f FunctionType) lagrangeOrder() int {
	switch f {
	case LinearLagrange:
		return 1
	case QuadraticLagrange:
		return 2
	case CubicLagrange:
		return 3
	}
	return 0
}

// Basis is an immutable per-xi vector of function types. Simplex directions
// are only supported uniformly linked across all xi (triangle and
// tetrahedron families).
type Basis struct {
	functions []FunctionType
}

// New creates a basis with one function type per xi direction.
func New(functions ...FunctionType) (*Basis, error) {
	if len(functions) < 1 || len(functions) > 3 {
		return nil, fmt.Errorf("%w: basis dimension %d outside [1,3]", status.ErrArgument, len(functions))
	}
	anySimplex := false
	for _, f := range functions {
		if f == InvalidFunction || f > CubicHermite {
			return nil, fmt.Errorf("%w: unknown basis function type %d", status.ErrArgument, f)
		}
		if f.isSimplex() {
			anySimplex = true
		}
	}
	if anySimplex {
		if len(functions) < 2 {
			return nil, fmt.Errorf("%w: simplex basis needs at least 2 xi directions", status.ErrArgument)
		}
		for _, f := range functions {
			if f != functions[0] {
				return nil, fmt.Errorf("%w: simplex basis must be uniformly linked across all xi", status.ErrArgument)
			}
		}
	}
	b := &Basis{functions: append([]FunctionType(nil), functions...)}
	return b, nil
}

// DefaultLinear returns the linear basis matching a shape type, or an error
// for shapes with no supported linear basis.
func DefaultLinear(shapeType shape.Type) (*Basis, error) {
	switch shapeType {
	case shape.Line:
		return New(LinearLagrange)
	case shape.Triangle:
		return New(LinearSimplex, LinearSimplex)
	case shape.Square:
		return New(LinearLagrange, LinearLagrange)
	case shape.Tetrahedron:
		return New(LinearSimplex, LinearSimplex, LinearSimplex)
	case shape.Cube:
		return New(LinearLagrange, LinearLagrange, LinearLagrange)
	}
	return nil, fmt.Errorf("%w: no default linear basis for shape %v", status.ErrNotImplemented, shapeType)
}

// Dimension returns the number of xi directions.
func (b *Basis) Dimension() int { return len(b.functions) }

// Functions returns the per-xi function types. Shared; do not modify.
func (b *Basis) Functions() []FunctionType { return b.functions }

// IsSimplex reports whether this is a linked simplex basis.
func (b *Basis) IsSimplex() bool { return b.functions[0].isSimplex() }

// IsHermite reports whether any direction interpolates Hermite.
func (b *Basis) IsHermite() bool {
	for _, f := range b.functions {
		if f == CubicHermite {
			return true
		}
	}
	return false
}

func (b *Basis) hermiteDims() []int {
	var dims []int
	for i, f := range b.functions {
		if f == CubicHermite {
			dims = append(dims, i)
		}
	}
	return dims
}

// NodeCount returns the number of local nodes carrying parameters.
func (b *Basis) NodeCount() int {
	if b.IsSimplex() {
		order := 1
		if b.functions[0] == QuadraticSimplex {
			order = 2
		}
		d := len(b.functions)
		// Simplex node count: C(order+d, d)
		n := 1
		for i := 1; i <= d; i++ {
			n = n * (order + i) / i
		}
		return n
	}
	count := 1
	for _, f := range b.functions {
		switch f {
		case CubicHermite:
			count *= 2
		default:
			count *= f.lagrangeOrder() + 1
		}
	}
	return count
}

// NodeDOFCount returns the number of DOFs at a local node: 1 for Lagrange
// and simplex families, 2^h for h Hermite directions.
func (b *Basis) NodeDOFCount(localNode int) int {
	return 1 << len(b.hermiteDims())
}

// FunctionCount returns the total number of basis functions (= total DOFs).
func (b *Basis) FunctionCount() int {
	total := 0
	for n := 0; n < b.NodeCount(); n++ {
		total += b.NodeDOFCount(n)
	}
	return total
}

// Standard nodal derivative codes, matching the fixed 1..8 node_derivatives
// ensemble: value, d/ds1, d/ds2, d2/ds1ds2, d/ds3, d2/ds1ds3, d2/ds2ds3,
// d3/ds1ds2ds3.
const (
	DerivativeValue = 1
	DerivativeD1    = 2
	DerivativeD2    = 3
	DerivativeD12   = 4
	DerivativeD3    = 5
	DerivativeD13   = 6
	DerivativeD23   = 7
	DerivativeD123  = 8

	// DerivativeCount is the fixed size of the node_derivatives ensemble.
	DerivativeCount = 8
)

// StandardHermiteDerivativeMap returns the derivative code for each DOF at
// a local node, in DOF order. Lagrange/simplex nodes report the single
// value DOF.
func (b *Basis) StandardHermiteDerivativeMap(localNode int) []int {
	hd := b.hermiteDims()
	codes := make([]int, 1<<len(hd))
	for dof := range codes {
		var b1, b2, b3 int
		for j, dim := range hd {
			if dof&(1<<j) != 0 {
				switch dim {
				case 0:
					b1 = 1
				case 1:
					b2 = 1
				case 2:
					b3 = 1
				}
			}
		}
		codes[dof] = 1 + b1 + 2*b2 + 4*b3
	}
	return codes
}

// Name returns the FieldML library interpolator name for this basis, e.g.
// "interpolator.3d.unit.trilinearLagrange", or "" when the basis has no
// library evaluator (mixed-order tensor products).
func (b *Basis) Name() string {
	d := len(b.functions)
	for _, f := range b.functions {
		if f != b.functions[0] {
			return ""
		}
	}
	prefix := [4]string{"", "", "bi", "tri"}[d]
	var stem string
	switch b.functions[0] {
	case LinearLagrange:
		stem = "linearLagrange"
	case QuadraticLagrange:
		stem = "quadraticLagrange"
	case CubicLagrange:
		stem = "cubicLagrange"
	case LinearSimplex:
		stem = "linearSimplex"
	case QuadraticSimplex:
		stem = "quadraticSimplex"
	case CubicHermite:
		stem = "cubicHermite"
	default:
		return ""
	}
	stem = prefix + stem
	return fmt.Sprintf("interpolator.%dd.unit.%s", d, stem)
}

// VertexNodes returns the local node numbers at the shape's corner
// vertices, in shape vertex order. Face identity and collapse detection are
// decided from these corner nodes.
func (b *Basis) VertexNodes() []int {
	if b.IsSimplex() {
		order := 1
		if b.functions[0] == QuadraticSimplex {
			order = 2
		}
		if len(b.functions) == 2 {
			// Lattice rows shrink as j grows: row j holds order-j+1 nodes.
			rowStart := func(j int) int {
				start := 0
				for r := 0; r < j; r++ {
					start += order - r + 1
				}
				return start
			}
			return []int{0, order, rowStart(order)}
		}
		// Tetrahedron: corners of the 3D lattice.
		layerSize := func(order int) int { return (order + 1) * (order + 2) / 2 }
		total := 0
		for k := 0; k < order; k++ {
			total += layerSize(order - k)
		}
		last := total // first node of layer k=order
		layer0 := layerSize(order)
		return []int{0, order, layer0 - 1, last}
	}
	// Tensor product: vertex v's lattice coordinate in direction d is
	// bit d of v scaled to the last node of that direction.
	perDim := make([]int, len(b.functions))
	for d, f := range b.functions {
		if f == CubicHermite {
			perDim[d] = 2
		} else {
			perDim[d] = f.lagrangeOrder() + 1
		}
	}
	verts := make([]int, 1<<len(b.functions))
	for v := range verts {
		node := 0
		stride := 1
		for d := range b.functions {
			if v&(1<<d) != 0 {
				node += (perDim[d] - 1) * stride
			}
			stride *= perDim[d]
		}
		verts[v] = node
	}
	return verts
}

// ParametersName returns the FieldML library parameter-source name paired
// with Name(), or "".
func (b *Basis) ParametersName() string {
	name := b.Name()
	if name == "" {
		return ""
	}
	return strings.Replace(name, "interpolator.", "parameters.", 1) + ".component"
}
