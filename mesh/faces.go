package mesh

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// faceKey builds the session lookup key for a face: the face shape name
// plus the sorted distinct corner node identifiers. Two parents sharing a
// face produce the same key regardless of vertex orientation.
func faceKey(faceType shape.Type, nodeIdentifiers []int) string {
	sorted := append([]int(nil), nodeIdentifiers...)
	sort.Ints(sorted)
	var b strings.Builder
	b.WriteString(faceType.String())
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

// distinctCount returns the number of distinct values in ids.
func distinctCount(ids []int) int {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// elementVertexNodes resolves an element's corner vertices to global node
// indices, in shape vertex order. Elements whose stored connectivity is
// exactly the corner nodes (face elements created here, or linear elements
// without field definitions) resolve directly; otherwise the coordinate
// field's basis supplies the corner→basis-node mapping.
func (m *Mesh) elementVertexNodes(index int) ([]int, error) {
	shapeType := m.ElementShape(index)
	if shapeType == shape.Invalid {
		return nil, fmt.Errorf("%w: %s element %d has no shape", status.ErrGeneral,
			m.Name(), m.labels.Identifier(index))
	}
	nodes := m.ElementNodes(index)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s element %d has no nodes", status.ErrArgument,
			m.Name(), m.labels.Identifier(index))
	}
	if len(nodes) == shapeType.VertexCount() {
		return nodes, nil
	}
	coordinate := m.region.coordinateField
	if coordinate == nil {
		return nil, fmt.Errorf("%w: region %q has no coordinate field", status.ErrArgument, m.region.name)
	}
	components := m.ElementFieldComponents(index, coordinate)
	if components == nil {
		return nil, fmt.Errorf("%w: coordinate field %q not defined on %s element %d",
			status.ErrArgument, coordinate.name, m.Name(), m.labels.Identifier(index))
	}
	c := components[0]
	basisVertexNodes := c.Basis.VertexNodes()
	vertexNodes := make([]int, len(basisVertexNodes))
	for v, basisNode := range basisVertexNodes {
		localNode := c.LocalNodes[basisNode]
		if localNode >= len(nodes) {
			return nil, fmt.Errorf("%w: %s element %d local node %d beyond %d stored nodes",
				status.ErrGeneral, m.Name(), m.labels.Identifier(index), localNode, len(nodes))
		}
		vertexNodes[v] = nodes[localNode]
	}
	return vertexNodes, nil
}

// buildFaceTable indexes this mesh's existing elements by corner node
// sequence so FindOrCreateFace can return already-present faces. Elements
// whose corners cannot be resolved are skipped; they can never be shared.
func (m *Mesh) buildFaceTable() {
	m.faceTable = make(map[string]int)
	it := m.labels.Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		vertexNodes, err := m.elementVertexNodes(index)
		if err != nil {
			continue
		}
		identifiers := make([]int, len(vertexNodes))
		for i, n := range vertexNodes {
			identifiers[i] = m.region.nodes.labels.Identifier(n)
		}
		key := faceKey(m.ElementShape(index), identifiers)
		if _, exists := m.faceTable[key]; !exists {
			m.faceTable[key] = index
		}
	}
}

// FindOrCreateFace resolves face number faceNumber of an element to a face
// mesh element, creating and linking it when absent. Faces are shared
// mesh-wide by corner node sequence. Collapsed faces, with fewer distinct
// corner nodes than a real face of that shape needs, yield
// (labels.InvalidIndex, nil) and no face element.
func (m *Mesh) FindOrCreateFace(index, faceNumber int) (int, error) {
	if m.faceMesh == nil {
		return labels.InvalidIndex, fmt.Errorf("%w: %s has no face mesh", status.ErrGeneral, m.Name())
	}
	shapeType := m.ElementShape(index)
	if shapeType == shape.Invalid {
		return labels.InvalidIndex, fmt.Errorf("%w: %s element index %d has no shape",
			status.ErrGeneral, m.Name(), index)
	}
	faceType := shapeType.FaceType(faceNumber)
	if faceType == shape.Invalid {
		return labels.InvalidIndex, fmt.Errorf("%w: face number %d for shape %v",
			status.ErrArgument, faceNumber, shapeType)
	}
	if existing := m.ElementFace(index, faceNumber); existing != labels.InvalidIndex {
		return existing, nil
	}
	vertexNodes, err := m.elementVertexNodes(index)
	if err != nil {
		return labels.InvalidIndex, err
	}

	faceVertices := shapeType.FaceVertices(faceNumber)
	faceNodes := make([]int, len(faceVertices))
	faceNodeIdentifiers := make([]int, len(faceVertices))
	for i, v := range faceVertices {
		faceNodes[i] = vertexNodes[v]
		faceNodeIdentifiers[i] = m.region.nodes.labels.Identifier(vertexNodes[v])
	}
	if distinctCount(faceNodeIdentifiers) < shape.MinimumFaceNodes(faceType) {
		return labels.InvalidIndex, nil
	}

	m.region.BeginDefineFaces()
	defer m.region.EndDefineFaces()
	if m.faceMesh.faceTable == nil {
		// Face mesh created after the session opened.
		m.faceMesh.buildFaceTable()
	}
	key := faceKey(faceType, faceNodeIdentifiers)
	faceIndex, found := m.faceMesh.faceTable[key]
	if !found {
		faceIndex, err = m.faceMesh.CreateElement(-1, faceType)
		if err != nil {
			return labels.InvalidIndex, err
		}
		if err := m.faceMesh.SetElementNodes(faceIndex, faceNodes); err != nil {
			m.faceMesh.RemoveElement(faceIndex)
			return labels.InvalidIndex, err
		}
		m.faceMesh.faceTable[key] = faceIndex
	}
	if err := m.SetElementFace(index, faceNumber, faceIndex); err != nil {
		return labels.InvalidIndex, err
	}
	return faceIndex, nil
}

// DefineElementFaces finds or creates every face of one element.
func (m *Mesh) DefineElementFaces(index int) error {
	shapeType := m.ElementShape(index)
	if shapeType == shape.Invalid {
		return fmt.Errorf("%w: %s element index %d has no shape", status.ErrGeneral, m.Name(), index)
	}
	for f := 0; f < shapeType.FaceCount(); f++ {
		if _, err := m.FindOrCreateFace(index, f); err != nil {
			return err
		}
	}
	return nil
}

// defineFacesAll defines faces for every element of the mesh. Called by
// Region.DefineFaces inside its change and face-definition brackets, per
// dimension descending so new face elements get their own faces on the
// next pass.
func (m *Mesh) defineFacesAll() error {
	it := m.labels.Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		if m.ElementShape(index) == shape.Invalid {
			continue
		}
		if err := m.DefineElementFaces(index); err != nil {
			return err
		}
	}
	return nil
}
