package meshio

import (
	"testing"

	gomesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

func singleTetMesh() *gomesh.Mesh {
	return &gomesh.Mesh{
		Vertices: [][]float64{
			{0, 0, 0},
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		EtoV:         [][]int{{0, 1, 2, 3}},
		ElementTypes: []utils.ElementType{utils.Tet},
	}
}

func TestRegionFromSingleTet(t *testing.T) {
	region, err := regionFromMesh("tet", singleTetMesh())
	require.NoError(t, err)

	assert.Equal(t, 4, region.Nodeset().Size())
	coordinates := region.CoordinateField()
	require.NotNil(t, coordinates)
	assert.Equal(t, CoordinateFieldName, coordinates.Name())
	assert.Equal(t, 3, coordinates.ComponentCount())

	m := region.HighestDimensionMesh()
	require.NotNil(t, m)
	assert.Equal(t, 3, m.Dimension())
	require.Equal(t, 1, m.ElementCount())
	element := m.FindElementByIdentifier(1)
	assert.Equal(t, shape.Tetrahedron, m.ElementShape(element))

	// Vertex order matches the connectivity row for simplices.
	origin, err := coordinates.Evaluate(m, element, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, origin)
	apex, err := coordinates.Evaluate(m, element, []float64{0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, apex)
}

func TestRegionFromTetDefineFaces(t *testing.T) {
	region, err := regionFromMesh("tet", singleTetMesh())
	require.NoError(t, err)
	require.NoError(t, region.DefineFaces())

	faces, err := region.Mesh(2)
	require.NoError(t, err)
	assert.Equal(t, 4, faces.ElementCount())
	edges, err := region.Mesh(1)
	require.NoError(t, err)
	assert.Equal(t, 6, edges.ElementCount())
}

func TestRegionFromMeshNoElements(t *testing.T) {
	msh := &gomesh.Mesh{Vertices: [][]float64{{0, 0, 0}}}
	_, err := regionFromMesh("empty", msh)
	assert.ErrorIs(t, err, status.ErrGeneral)
}

func TestShapeForElement(t *testing.T) {
	cases := []struct {
		dimension, nodes int
		want             shape.Type
	}{
		{1, 2, shape.Line},
		{2, 3, shape.Triangle},
		{2, 4, shape.Square},
		{3, 4, shape.Tetrahedron},
		{3, 6, shape.Wedge},
		{3, 8, shape.Cube},
	}
	for _, c := range cases {
		got, err := shapeForElement(c.dimension, c.nodes)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := shapeForElement(3, 10)
	assert.ErrorIs(t, err, status.ErrNotImplemented)
}

func TestCoordinateComponents(t *testing.T) {
	flat := &gomesh.Mesh{Vertices: [][]float64{{0, 0, 0}, {1, 2, 0}}}
	assert.Equal(t, 2, coordinateComponents(flat, 2))

	shell := &gomesh.Mesh{Vertices: [][]float64{{0, 0, 0}, {1, 2, 0.5}}}
	assert.Equal(t, 3, coordinateComponents(shell, 2))
}
