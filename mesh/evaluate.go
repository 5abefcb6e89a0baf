package mesh

import (
	"fmt"

	"github.com/notargets/femesh/status"
	"gonum.org/v1/gonum/mat"
)

// Evaluate interpolates the field at local coordinate xi of an element,
// returning one value per component. The element must have the field
// defined through a template; each component's basis weights are combined
// with the nodal parameters its DOF selections address, scaled by the
// component's scale factors when a set is attached.
func (f *Field) Evaluate(m *Mesh, index int, xi []float64) ([]float64, error) {
	if m.region != f.region {
		return nil, fmt.Errorf("%w: field %q not in mesh's region", status.ErrArgument, f.name)
	}
	components := m.ElementFieldComponents(index, f)
	if components == nil {
		return nil, fmt.Errorf("%w: field %q on %s element index %d", status.ErrNotFound, f.name, m.Name(), index)
	}
	nodes := m.ElementNodes(index)
	if nodes == nil {
		return nil, fmt.Errorf("%w: %s element index %d has no nodes", status.ErrArgument, m.Name(), index)
	}
	values := make([]float64, f.componentCount)
	for c, efc := range components {
		weights, err := efc.Basis.Weights(xi)
		if err != nil {
			return nil, err
		}
		dofNodes := efc.dofLocalNodes()
		derivatives := efc.StandardDerivatives()
		versions := efc.StandardVersions()
		var scaleFactors []float64
		if efc.ScaleFactorSet != nil {
			scaleFactors = m.ElementScaleFactors(index, efc.ScaleFactorSet)
		}
		params := mat.NewVecDense(weights.Len(), nil)
		for dof := 0; dof < weights.Len(); dof++ {
			localNode := dofNodes[dof]
			if localNode >= len(nodes) {
				return nil, fmt.Errorf("%w: %s element index %d local node %d beyond %d stored nodes",
					status.ErrGeneral, m.Name(), index, localNode, len(nodes))
			}
			p, ok := f.NodeParameter(nodes[localNode], derivatives[dof], versions[dof], c+1)
			if !ok {
				return nil, fmt.Errorf("%w: field %q node %d derivative %d version %d component %d",
					status.ErrNotFound, f.name, f.region.nodes.labels.Identifier(nodes[localNode]),
					derivatives[dof], versions[dof], c+1)
			}
			if scaleFactors != nil {
				p *= scaleFactors[efc.ScaleFactorIndexes[dof]-1]
			}
			params.SetVec(dof, p)
		}
		values[c] = mat.Dot(weights, params)
	}
	return values, nil
}
