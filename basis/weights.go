package basis

import (
	"fmt"

	"github.com/notargets/femesh/status"
	"gonum.org/v1/gonum/mat"
)

// lagrange1D evaluates the order+1 equispaced Lagrange shape functions at x
// in [0,1].
func lagrange1D(order int, x float64) []float64 {
	n := order + 1
	nodes := make([]float64, n)
	for i := range nodes {
		nodes[i] = float64(i) / float64(order)
	}
	w := make([]float64, n)
	for j := 0; j < n; j++ {
		w[j] = 1
		for k := 0; k < n; k++ {
			if k != j {
				w[j] *= (x - nodes[k]) / (nodes[j] - nodes[k])
			}
		}
	}
	return w
}

// hermite1D evaluates the cubic Hermite shape functions at x in [0,1] in
// DOF order (node0 value, node0 slope, node1 value, node1 slope).
func hermite1D(x float64) []float64 {
	x2 := x * x
	x3 := x2 * x
	return []float64{
		1 - 3*x2 + 2*x3,
		x - 2*x2 + x3,
		3*x2 - 2*x3,
		x3 - x2,
	}
}

// simplexWeights evaluates linear/quadratic simplex shape functions on the
// unit triangle or tetrahedron, nodes ordered with xi1 varying fastest
// along each complete row/layer of the lattice.
func simplexWeights(dimension, order int, xi []float64) []float64 {
	// Barycentric coordinates: L[0] = 1 - sum(xi), L[i] = xi[i-1]
	L := make([]float64, dimension+1)
	L[0] = 1
	for i := 0; i < dimension; i++ {
		L[0] -= xi[i]
		L[i+1] = xi[i]
	}
	var w []float64
	appendNode := func(exp []int) {
		// exp holds the lattice coordinates (sum <= order) of the node in
		// (xi1, xi2[, xi3]); the complementary coordinate is order-sum.
		sum := 0
		for _, e := range exp {
			sum += e
		}
		bary := append([]int{order - sum}, exp...)
		v := 1.0
		if order == 1 {
			for i, e := range bary {
				if e == 1 {
					v = L[i]
				}
			}
		} else {
			// Quadratic: corner L(2L-1), edge midpoint 4 La Lb
			corner := -1
			for i, e := range bary {
				if e == 2 {
					corner = i
				}
			}
			if corner >= 0 {
				v = L[corner] * (2*L[corner] - 1)
			} else {
				v = 4
				for i, e := range bary {
					if e == 1 {
						v *= L[i]
					}
				}
			}
		}
		w = append(w, v)
	}
	if dimension == 2 {
		for j := 0; j <= order; j++ {
			for i := 0; i+j <= order; i++ {
				appendNode([]int{i, j})
			}
		}
	} else {
		for k := 0; k <= order; k++ {
			for j := 0; j+k <= order; j++ {
				for i := 0; i+j+k <= order; i++ {
					appendNode([]int{i, j, k})
				}
			}
		}
	}
	return w
}

// Weights returns the basis function values at local coordinate xi, in
// basis function (DOF) order with xi1 varying fastest over nodes. Supported
// for Lagrange tensor products, linked simplex bases and 1D cubic Hermite;
// multi-dimensional Hermite weights are not implemented.
func (b *Basis) Weights(xi []float64) (*mat.VecDense, error) {
	if len(xi) != len(b.functions) {
		return nil, fmt.Errorf("%w: xi has %d components, basis has %d", status.ErrArgument, len(xi), len(b.functions))
	}
	if b.IsSimplex() {
		order := 1
		if b.functions[0] == QuadraticSimplex {
			order = 2
		}
		return mat.NewVecDense(b.NodeCount(), simplexWeights(len(b.functions), order, xi)), nil
	}
	if b.IsHermite() {
		if len(b.functions) != 1 {
			return nil, fmt.Errorf("%w: multi-dimensional Hermite weights", status.ErrNotImplemented)
		}
		return mat.NewVecDense(4, hermite1D(xi[0])), nil
	}
	// Tensor-product Lagrange: outer product with xi1 varying fastest.
	weights := []float64{1}
	for d := len(b.functions) - 1; d >= 0; d-- {
		w1 := lagrange1D(b.functions[d].lagrangeOrder(), xi[d])
		next := make([]float64, 0, len(weights)*len(w1))
		for _, wo := range weights {
			for _, wi := range w1 {
				next = append(next, wo*wi)
			}
		}
		weights = next
	}
	return mat.NewVecDense(len(weights), weights), nil
}
