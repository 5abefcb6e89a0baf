package mesh

import (
	"errors"
	"testing"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createNodes creates nodes with identifiers 1..count and returns their
// indices.
func createNodes(t *testing.T, r *Region, count int) []int {
	t.Helper()
	indexes := make([]int, count)
	for i := 0; i < count; i++ {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		indexes[i] = index
	}
	return indexes
}

// createShapedElement creates an element with explicit corner node
// connectivity, the form face definition resolves without a coordinate
// field.
func createShapedElement(t *testing.T, m *Mesh, identifier int, shapeType shape.Type, nodeIndexes []int) int {
	t.Helper()
	index, err := m.CreateElement(identifier, shapeType)
	require.NoError(t, err)
	require.NoError(t, m.SetElementNodes(index, nodeIndexes))
	return index
}

func TestRegionMeshLinks(t *testing.T) {
	r := NewRegion("test")
	m3, err := r.Mesh(3)
	require.NoError(t, err)
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	m1, err := r.Mesh(1)
	require.NoError(t, err)

	assert.Equal(t, m2, m3.FaceMesh())
	assert.Equal(t, m3, m2.ParentMesh())
	assert.Equal(t, m1, m2.FaceMesh())
	assert.Equal(t, m2, m1.ParentMesh())
	assert.Nil(t, m3.ParentMesh())
	assert.Nil(t, m1.FaceMesh())

	_, err = r.Mesh(0)
	assert.ErrorIs(t, err, status.ErrArgument)
	_, err = r.Mesh(4)
	assert.ErrorIs(t, err, status.ErrArgument)
}

func TestCreateElementShapeDimensionMismatch(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)

	_, err = m2.CreateElement(1, shape.Cube)
	assert.ErrorIs(t, err, status.ErrArgument)
	// The failed create must not leak the label.
	assert.Equal(t, labels.InvalidIndex, m2.FindElementByIdentifier(1))
	assert.Equal(t, 0, m2.ElementCount())
}

func TestMixedShapesLazyConversion(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)

	sq, err := m2.CreateElement(1, shape.Square)
	require.NoError(t, err)
	assert.Equal(t, shape.Square, m2.ElementShape(sq))
	assert.Nil(t, m2.elementShape, "uniform shape should not allocate the per-element map")

	tri, err := m2.CreateElement(2, shape.Triangle)
	require.NoError(t, err)
	assert.NotNil(t, m2.elementShape, "second shape activates the per-element map")
	assert.Equal(t, shape.Square, m2.ElementShape(sq))
	assert.Equal(t, shape.Triangle, m2.ElementShape(tri))
}

func TestGetOrCreateElementShapeCompatibility(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)

	index, err := m2.CreateElement(7, shape.Square)
	require.NoError(t, err)

	again, err := m2.GetOrCreateElementWithIdentifier(7, shape.Square)
	require.NoError(t, err)
	assert.Equal(t, index, again)

	_, err = m2.GetOrCreateElementWithIdentifier(7, shape.Triangle)
	assert.ErrorIs(t, err, status.ErrArgument)

	unshaped, err := m2.GetOrCreateElementWithIdentifier(8, shape.Invalid)
	require.NoError(t, err)
	assert.Equal(t, shape.Invalid, m2.ElementShape(unshaped))
	shaped, err := m2.GetOrCreateElementWithIdentifier(8, shape.Triangle)
	require.NoError(t, err)
	assert.Equal(t, unshaped, shaped)
	assert.Equal(t, shape.Triangle, m2.ElementShape(unshaped))
}

func TestDefineFacesSharesCommonEdge(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	nodes := createNodes(t, r, 6)

	// Two unit squares side by side sharing the edge between nodes 2,5.
	e1 := createShapedElement(t, m2, 1, shape.Square, []int{nodes[0], nodes[1], nodes[3], nodes[4]})
	e2 := createShapedElement(t, m2, 2, shape.Square, []int{nodes[1], nodes[2], nodes[4], nodes[5]})

	require.NoError(t, r.DefineFaces())
	m1 := r.FindMesh(1)
	require.NotNil(t, m1)
	assert.Equal(t, 7, m1.ElementCount(), "4+4 edges with one shared")

	// The xi1=1 edge of e1 and xi1=0 edge of e2 are the same element.
	shared := m2.ElementFace(e1, 1)
	require.NotEqual(t, labels.InvalidIndex, shared)
	assert.Equal(t, shared, m2.ElementFace(e2, 0))
	assert.ElementsMatch(t, []int{e1, e2}, m1.ElementParents(shared))

	// Idempotent.
	require.NoError(t, r.DefineFaces())
	assert.Equal(t, 7, m1.ElementCount())

	require.NoError(t, m2.Validate())
	require.NoError(t, m1.Validate())
}

func TestDefineFacesTetrahedraDownToEdges(t *testing.T) {
	r := NewRegion("test")
	m3, err := r.Mesh(3)
	require.NoError(t, err)
	nodes := createNodes(t, r, 5)

	// Two tetrahedra sharing the triangle on nodes 1,2,3.
	e1 := createShapedElement(t, m3, 1, shape.Tetrahedron, []int{nodes[0], nodes[1], nodes[2], nodes[3]})
	e2 := createShapedElement(t, m3, 2, shape.Tetrahedron, []int{nodes[0], nodes[1], nodes[2], nodes[4]})

	require.NoError(t, r.DefineFaces())
	m2 := r.FindMesh(2)
	m1 := r.FindMesh(1)
	require.NotNil(t, m2)
	require.NotNil(t, m1)
	assert.Equal(t, 7, m2.ElementCount(), "4+4 triangles with one shared")
	assert.Equal(t, 9, m1.ElementCount(), "6+6 edges with three shared")

	shared := m3.ElementFace(e1, 0)
	require.NotEqual(t, labels.InvalidIndex, shared)
	assert.Equal(t, shared, m3.ElementFace(e2, 0))
	assert.ElementsMatch(t, []int{e1, e2}, m2.ElementParents(shared))

	for _, m := range []*Mesh{m3, m2, m1} {
		require.NoError(t, m.Validate())
	}
}

func TestFindOrCreateFaceCollapsed(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	_, err = r.Mesh(1)
	require.NoError(t, err)
	nodes := createNodes(t, r, 3)

	// Square with vertices 2 and 3 on the same node: the xi2=1 edge
	// collapses to a point.
	e := createShapedElement(t, m2, 1, shape.Square, []int{nodes[0], nodes[1], nodes[2], nodes[2]})

	face, err := m2.FindOrCreateFace(e, 3)
	require.NoError(t, err)
	assert.Equal(t, labels.InvalidIndex, face)

	face, err = m2.FindOrCreateFace(e, 2)
	require.NoError(t, err)
	assert.NotEqual(t, labels.InvalidIndex, face)
}

func TestSetElementFaceSymmetry(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	nodes := createNodes(t, r, 4)

	e := createShapedElement(t, m2, 1, shape.Square, nodes)
	edge := createShapedElement(t, m1, 1, shape.Line, []int{nodes[0], nodes[1]})

	require.NoError(t, m2.SetElementFace(e, 2, edge))
	assert.Equal(t, edge, m2.ElementFace(e, 2))
	assert.Equal(t, []int{e}, m1.ElementParents(edge))

	// Redundant set is a no-op.
	require.NoError(t, m2.SetElementFace(e, 2, edge))
	assert.Equal(t, []int{e}, m1.ElementParents(edge))

	// Unlink restores both sides.
	require.NoError(t, m2.SetElementFace(e, 2, labels.InvalidIndex))
	assert.Equal(t, labels.InvalidIndex, m2.ElementFace(e, 2))
	assert.Empty(t, m1.ElementParents(edge))
}

func TestRemoveElementClearsAdjacency(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	nodes := createNodes(t, r, 6)

	e1 := createShapedElement(t, m2, 1, shape.Square, []int{nodes[0], nodes[1], nodes[3], nodes[4]})
	e2 := createShapedElement(t, m2, 2, shape.Square, []int{nodes[1], nodes[2], nodes[4], nodes[5]})
	require.NoError(t, r.DefineFaces())
	m1 := r.FindMesh(1)
	shared := m2.ElementFace(e1, 1)

	require.NoError(t, m2.RemoveElement(e1))
	assert.Equal(t, []int{e2}, m1.ElementParents(shared))
	require.NoError(t, m1.Validate())
	require.NoError(t, m2.Validate())
	assert.Nil(t, m2.ElementNodes(e1))

	// Removing a face element detaches it from its remaining parent.
	require.NoError(t, m1.RemoveElement(shared))
	assert.Equal(t, labels.InvalidIndex, m2.ElementFace(e2, 0))
	require.NoError(t, m2.Validate())
}

func TestSetElementShapeChangeClearsFaces(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	nodes := createNodes(t, r, 4)

	e := createShapedElement(t, m2, 1, shape.Square, nodes)
	require.NoError(t, r.DefineFaces())
	m1 := r.FindMesh(1)
	assert.Equal(t, 4, m1.ElementCount())
	edge := m2.ElementFace(e, 0)
	require.NotEqual(t, labels.InvalidIndex, edge)

	_, err = m2.SetElementShape(e, shape.Triangle)
	require.NoError(t, err)
	assert.Equal(t, shape.Triangle, m2.ElementShape(e))
	assert.Equal(t, labels.InvalidIndex, m2.ElementFace(e, 0))
	assert.Empty(t, m1.ElementParents(edge))
	require.NoError(t, m1.Validate())
}

func TestRemoveNodeBlockedWhileReferenced(t *testing.T) {
	r := NewRegion("test")
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	nodes := createNodes(t, r, 2)

	e := createShapedElement(t, m1, 1, shape.Line, nodes)
	err = r.Nodeset().RemoveNode(nodes[0])
	assert.ErrorIs(t, err, status.ErrArgument)

	require.NoError(t, m1.RemoveElement(e))
	require.NoError(t, r.Nodeset().RemoveNode(nodes[0]))
}

func TestChangeBatching(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)

	var batches []*RegionChanges
	r.AddChangeNotifier(func(c *RegionChanges) { batches = append(batches, c) })

	r.BeginChange()
	r.BeginChange() // nested
	createNodes(t, r, 4)
	_, err = m2.CreateElement(1, shape.Square)
	require.NoError(t, err)
	r.EndChange()
	assert.Empty(t, batches, "inner EndChange must not notify")
	r.EndChange()

	require.Len(t, batches, 1)
	require.NotNil(t, batches[0].Nodes)
	assert.NotZero(t, batches[0].Nodes.Summary()&labels.ChangeAdd)
	require.NotNil(t, batches[0].Meshes[2])
	assert.NotZero(t, batches[0].Meshes[2].Summary()&labels.ChangeAdd)

	// Logs were extracted and reset: an empty bracket stays silent.
	r.BeginChange()
	r.EndChange()
	assert.Len(t, batches, 1)
}

func TestDestroyAllElements(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	nodes := createNodes(t, r, 6)
	createShapedElement(t, m2, 1, shape.Square, []int{nodes[0], nodes[1], nodes[3], nodes[4]})
	createShapedElement(t, m2, 2, shape.Square, []int{nodes[1], nodes[2], nodes[4], nodes[5]})
	require.NoError(t, r.DefineFaces())

	m2.DestroyAllElements()
	assert.Equal(t, 0, m2.ElementCount())
	m1 := r.FindMesh(1)
	it := m1.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		assert.Empty(t, m1.ElementParents(index))
	}
	require.NoError(t, m1.Validate())
}

func TestRegionDestroy(t *testing.T) {
	r := NewRegion("test")
	m3, err := r.Mesh(3)
	require.NoError(t, err)
	nodes := createNodes(t, r, 4)
	createShapedElement(t, m3, 1, shape.Tetrahedron, nodes)
	require.NoError(t, r.DefineFaces())
	_, err = r.CreateField("coordinates", 3)
	require.NoError(t, err)

	r.Destroy()
	assert.Nil(t, r.FindMesh(3))
	assert.Nil(t, r.FindMesh(2))
	assert.Equal(t, 0, r.Nodeset().Size())
	assert.Nil(t, r.FieldByName("coordinates"))
	assert.Nil(t, r.CoordinateField())
}

func TestHighestDimensionMesh(t *testing.T) {
	r := NewRegion("test")
	assert.Nil(t, r.HighestDimensionMesh())

	m1, err := r.Mesh(1)
	require.NoError(t, err)
	nodes := createNodes(t, r, 2)
	createShapedElement(t, m1, 1, shape.Line, nodes)
	assert.Equal(t, m1, r.HighestDimensionMesh())

	m3, err := r.Mesh(3)
	require.NoError(t, err)
	assert.Equal(t, m1, r.HighestDimensionMesh(), "empty 3D mesh does not count")

	tet := append([]int{}, nodes...)
	for i := 0; i < 2; i++ {
		index, err := r.Nodeset().CreateNode(3 + i)
		require.NoError(t, err)
		tet = append(tet, index)
	}
	createShapedElement(t, m3, 1, shape.Tetrahedron, tet[0:4])
	assert.Equal(t, m3, r.HighestDimensionMesh())
}

func TestScaleFactorSets(t *testing.T) {
	r := NewRegion("test")
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	nodes := createNodes(t, r, 2)
	e := createShapedElement(t, m1, 1, shape.Line, nodes)

	set, err := m1.FindOrCreateScaleFactorSet("scaling", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Count())

	again, err := m1.FindOrCreateScaleFactorSet("scaling", 4)
	require.NoError(t, err)
	assert.Equal(t, set, again)
	_, err = m1.FindOrCreateScaleFactorSet("scaling", 2)
	assert.ErrorIs(t, err, status.ErrArgument)

	// Unset elements read back unit scale factors.
	assert.Equal(t, []float64{1, 1, 1, 1}, m1.ElementScaleFactors(e, set))

	values := []float64{1, 0.5, 1, 0.5}
	require.NoError(t, m1.SetElementScaleFactors(e, set, values))
	assert.Equal(t, values, m1.ElementScaleFactors(e, set))

	err = m1.SetElementScaleFactors(e, set, []float64{1})
	assert.ErrorIs(t, err, status.ErrArgument)
}

func TestValidateDetectsBrokenSymmetry(t *testing.T) {
	r := NewRegion("test")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	nodes := createNodes(t, r, 4)
	e := createShapedElement(t, m2, 1, shape.Square, nodes)
	require.NoError(t, r.DefineFaces())
	m1 := r.FindMesh(1)
	require.NoError(t, m2.Validate())

	// Corrupt one direction of the symmetry by hand.
	edge := m2.ElementFace(e, 0)
	m1.parents[edge] = nil
	err = m2.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrGeneral))
}
