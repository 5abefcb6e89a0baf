package fieldml

import (
	"path/filepath"
	"testing"

	"github.com/notargets/femesh/basis"
	"github.com/notargets/femesh/mesh"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildLineRegion builds a single-element 1D linear-Lagrange mesh with two
// nodes and a 1-component coordinate field with values {0.0, 1.0}.
func buildLineRegion(t *testing.T) *mesh.Region {
	t.Helper()
	r := mesh.NewRegion("line")
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	coordinates, err := r.CreateField("coordinates", 1)
	require.NoError(t, err)
	require.NoError(t, r.SetCoordinateField(coordinates))
	for i, value := range []float64{0.0, 1.0} {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 1, value))
	}
	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      linear,
		LocalNodes: []int{0, 1},
	}))
	_, err = m1.CreateElementFromTemplate(1, template, []int{1, 2})
	require.NoError(t, err)
	return r
}

// buildSquareRegion builds two bilinear squares sharing an edge with a
// 2-component coordinate field.
func buildSquareRegion(t *testing.T) *mesh.Region {
	t.Helper()
	r := mesh.NewRegion("squares")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	coordinates, err := r.CreateField("coordinates", 2)
	require.NoError(t, err)
	require.NoError(t, r.SetCoordinateField(coordinates))
	corners := [][2]float64{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}
	for i, xy := range corners {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 1, xy[0]))
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 2, xy[1]))
	}
	bilinear, err := basis.New(basis.LinearLagrange, basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m2.CreateElementTemplate(shape.Square)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(4))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      bilinear,
		LocalNodes: []int{0, 1, 2, 3},
	}))
	_, err = m2.CreateElementFromTemplate(1, template, []int{1, 2, 4, 5})
	require.NoError(t, err)
	_, err = m2.CreateElementFromTemplate(2, template, []int{2, 3, 5, 6})
	require.NoError(t, err)
	return r
}

func TestWriteDocumentStructure(t *testing.T) {
	r := buildLineRegion(t)
	doc, err := Write(r)
	require.NoError(t, err)
	require.NotNil(t, doc.Region)

	nodes := doc.Region.FindEnsemble("nodes")
	require.NotNil(t, nodes)
	require.Len(t, nodes.Members.Ranges, 1)
	assert.Equal(t, MemberRange{Min: 1, Max: 2}, nodes.Members.Ranges[0])

	derivatives := doc.Region.FindEnsemble("node_derivatives")
	require.NotNil(t, derivatives)
	assert.Equal(t, MemberRange{Min: 1, Max: 8}, derivatives.Members.Ranges[0])

	require.Len(t, doc.Region.MeshTypes, 1)
	mt := doc.Region.MeshTypes[0]
	assert.Equal(t, "mesh1d", mt.Name)
	assert.Equal(t, "xi", mt.Chart.Name)
	assert.Equal(t, "mesh1d.xi.components", mt.Chart.Components.Name)
	assert.Equal(t, 1, mt.Chart.Components.Count)
	assert.Equal(t, "shape.unit.line", mt.Shapes.DefaultShape)

	require.Len(t, doc.Region.ReferenceEvaluators, 1)
	assert.Equal(t, "interpolator.1d.unit.linearLagrange", doc.Region.ReferenceEvaluators[0].Evaluator)

	// Only the writer's used library names are imported, once each.
	seen := make(map[string]int)
	for _, imp := range doc.Region.Imports {
		seen[imp.RemoteName]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "import %q duplicated", name)
	}
	assert.Contains(t, seen, "interpolator.1d.unit.linearLagrange")
}

func TestWriteEmptyRegionFails(t *testing.T) {
	r := mesh.NewRegion("empty")
	_, err := Write(r)
	assert.ErrorIs(t, err, status.ErrArgument)
}

func TestRoundTripLine(t *testing.T) {
	r := buildLineRegion(t)
	path := filepath.Join(t.TempDir(), "line.fieldml")
	require.NoError(t, WriteFile(r, path))

	back, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, back.Nodeset().Size())
	for id := 1; id <= 2; id++ {
		assert.NotEqual(t, -1, back.Nodeset().FindNodeByIdentifier(id))
	}
	m1 := back.FindMesh(1)
	require.NotNil(t, m1)
	assert.Equal(t, 1, m1.ElementCount())
	index := m1.FindElementByIdentifier(1)
	require.NotEqual(t, -1, index)
	assert.Equal(t, shape.Line, m1.ElementShape(index))

	coordinates := back.FieldByName("coordinates")
	require.NotNil(t, coordinates)
	assert.Equal(t, coordinates, back.CoordinateField())
	for i, want := range []float64{0.0, 1.0} {
		node := back.Nodeset().FindNodeByIdentifier(i + 1)
		value, ok := coordinates.NodeParameter(node, 1, 1, 1)
		require.True(t, ok)
		assert.Equal(t, want, value, "full double precision round trip")
	}

	mid, err := coordinates.Evaluate(m1, index, []float64{0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mid[0], 1e-15)
}

func TestRoundTripSquares(t *testing.T) {
	r := buildSquareRegion(t)
	doc, err := Write(r)
	require.NoError(t, err)

	back, err := Read(doc)
	require.NoError(t, err)

	m2 := back.FindMesh(2)
	require.NotNil(t, m2)
	assert.Equal(t, 2, m2.ElementCount())
	coordinates := back.FieldByName("coordinates")
	require.NotNil(t, coordinates)
	assert.Equal(t, 2, coordinates.ComponentCount())

	// Element 2 spans x in [1,2]; its centre is at (1.5, 0.5).
	index := m2.FindElementByIdentifier(2)
	centre, err := coordinates.Evaluate(m2, index, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, centre[0], 1e-12)
	assert.InDelta(t, 0.5, centre[1], 1e-12)

	// Shared-edge topology survives: faces can be defined on the reread
	// region and the shared edge appears once.
	require.NoError(t, back.DefineFaces())
	m1 := back.FindMesh(1)
	assert.Equal(t, 7, m1.ElementCount())
}

func TestWriteDenseParameters(t *testing.T) {
	r := buildLineRegion(t)
	coordinates := r.FieldByName("coordinates")
	// Fill every derivative so occupancy is nodes x 8 x 1 x 1.
	for id := 1; id <= 2; id++ {
		node := r.Nodeset().FindNodeByIdentifier(id)
		for d := 1; d <= basis.DerivativeCount; d++ {
			require.NoError(t, coordinates.SetNodeParameter(node, d, 1, 1, float64(10*id+d)))
		}
	}
	doc, err := Write(r)
	require.NoError(t, err)
	p := doc.Region.FindParameters("coordinates.parameters")
	require.NotNil(t, p)
	assert.NotNil(t, p.Dense, "full occupancy must use dense layout")
	assert.Nil(t, p.DOK)

	back, err := Read(doc)
	require.NoError(t, err)
	node := back.Nodeset().FindNodeByIdentifier(2)
	value, ok := back.FieldByName("coordinates").NodeParameter(node, 8, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 28.0, value)
}

func TestWriteSparseParametersUseDOK(t *testing.T) {
	r := buildLineRegion(t)
	doc, err := Write(r)
	require.NoError(t, err)
	p := doc.Region.FindParameters("coordinates.parameters")
	require.NotNil(t, p)
	assert.Nil(t, p.Dense)
	require.NotNil(t, p.DOK, "value-only parameters leave derivatives sparse")
}

func TestScaleFactorRejection(t *testing.T) {
	r := buildLineRegion(t)
	m1 := r.FindMesh(1)
	coordinates := r.FieldByName("coordinates")
	set, err := m1.FindOrCreateScaleFactorSet("scaling", 2)
	require.NoError(t, err)

	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:              linear,
		LocalNodes:         []int{0, 1},
		ScaleFactorSet:     set,
		ScaleFactorIndexes: []int{1, 2},
	}))
	index, err := m1.CreateElementFromTemplate(2, template, []int{1, 2})
	require.NoError(t, err)
	require.NoError(t, m1.SetElementScaleFactors(index, set, []float64{1.5, 1.0}))

	_, err = Write(r)
	assert.ErrorIs(t, err, status.ErrNotImplemented)
}

func TestScaleFactorRejectionSharedTemplate(t *testing.T) {
	// Scale factors are per-element state: a non-unit value on a later
	// element must be rejected even though the first element sharing the
	// same template already passed validation.
	r := buildLineRegion(t)
	m1 := r.FindMesh(1)
	coordinates := r.FieldByName("coordinates")
	set, err := m1.FindOrCreateScaleFactorSet("scaling", 2)
	require.NoError(t, err)

	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:              linear,
		LocalNodes:         []int{0, 1},
		ScaleFactorSet:     set,
		ScaleFactorIndexes: []int{1, 2},
	}))
	first, err := m1.CreateElementFromTemplate(2, template, []int{1, 2})
	require.NoError(t, err)
	require.NoError(t, m1.SetElementScaleFactors(first, set, []float64{1.0, 1.0}))
	second, err := m1.CreateElementFromTemplate(3, template, []int{1, 2})
	require.NoError(t, err)
	require.NoError(t, m1.SetElementScaleFactors(second, set, []float64{1.5, 1.0}))

	_, err = Write(r)
	assert.ErrorIs(t, err, status.ErrNotImplemented)
}

func TestUnitScaleFactorsAccepted(t *testing.T) {
	r := buildLineRegion(t)
	m1 := r.FindMesh(1)
	coordinates := r.FieldByName("coordinates")
	set, err := m1.FindOrCreateScaleFactorSet("scaling", 2)
	require.NoError(t, err)

	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:              linear,
		LocalNodes:         []int{0, 1},
		ScaleFactorSet:     set,
		ScaleFactorIndexes: []int{1, 2},
	}))
	_, err = m1.CreateElementFromTemplate(2, template, []int{1, 2})
	require.NoError(t, err)

	_, err = Write(r)
	assert.NoError(t, err)
}

func TestUnsetParameterRejection(t *testing.T) {
	r := buildLineRegion(t)
	m1 := r.FindMesh(1)
	coordinates := r.FieldByName("coordinates")

	node, err := r.Nodeset().CreateNode(3)
	require.NoError(t, err)
	_ = node // node 3 has no coordinate parameter

	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      linear,
		LocalNodes: []int{0, 1},
	}))
	_, err = m1.CreateElementFromTemplate(2, template, []int{2, 3})
	require.NoError(t, err)

	_, err = Write(r)
	assert.ErrorIs(t, err, status.ErrNotImplemented)
}

func TestTemplateEquivalenceSharesEvaluator(t *testing.T) {
	r := mesh.NewRegion("line")
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	coordinates, err := r.CreateField("coordinates", 1)
	require.NoError(t, err)
	require.NoError(t, r.SetCoordinateField(coordinates))
	for i, value := range []float64{0.0, 1.0, 2.0} {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 1, value))
	}
	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)

	forward, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, forward.SetNumberOfNodes(2))
	require.NoError(t, forward.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      linear,
		LocalNodes: []int{0, 1},
	}))
	_, err = m1.CreateElementFromTemplate(1, forward, []int{1, 2})
	require.NoError(t, err)

	// Same interpolation, permuted local node mapping with node order
	// reversed: resolves to the same per-basis-node identifiers.
	reversed, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, reversed.SetNumberOfNodes(2))
	require.NoError(t, reversed.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      linear,
		LocalNodes: []int{1, 0},
	}))
	_, err = m1.CreateElementFromTemplate(2, reversed, []int{3, 2})
	require.NoError(t, err)

	doc, err := Write(r)
	require.NoError(t, err)
	assert.Len(t, doc.Region.ReferenceEvaluators, 1,
		"equivalent templates must serialize to the literal same evaluator")

	back, err := Read(doc)
	require.NoError(t, err)
	m1b := back.FindMesh(1)
	value, err := back.FieldByName("coordinates").Evaluate(m1b, m1b.FindElementByIdentifier(2), []float64{0.5})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, value[0], 1e-12)
}

func TestEquivalentTemplateConsistencyConflict(t *testing.T) {
	r := mesh.NewRegion("line")
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	coordinates, err := r.CreateField("coordinates", 1)
	require.NoError(t, err)
	require.NoError(t, r.SetCoordinateField(coordinates))
	pressure, err := r.CreateField("pressure", 1)
	require.NoError(t, err)
	for i, value := range []float64{0.0, 1.0} {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 1, value))
		require.NoError(t, pressure.SetNodeParameter(index, 1, 1, 1, value))
	}
	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)

	// Two fields on one element, local node mappings truly disagreeing:
	// the shared connectivity cannot hold both rows.
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	require.NoError(t, template.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      linear,
		LocalNodes: []int{0, 1},
	}))
	require.NoError(t, template.DefineField(pressure, -1, &mesh.ElementFieldComponent{
		Basis:      linear,
		LocalNodes: []int{1, 0},
	}))
	_, err = m1.CreateElementFromTemplate(1, template, []int{1, 2})
	require.NoError(t, err)

	_, err = Write(r)
	assert.ErrorIs(t, err, status.ErrGeneral)
}

func TestMixedShapeMesh(t *testing.T) {
	r := mesh.NewRegion("mixed")
	m2, err := r.Mesh(2)
	require.NoError(t, err)
	coordinates, err := r.CreateField("coordinates", 2)
	require.NoError(t, err)
	require.NoError(t, r.SetCoordinateField(coordinates))
	corners := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 0.5}}
	for i, xy := range corners {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 1, xy[0]))
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 2, xy[1]))
	}

	bilinear, err := basis.New(basis.LinearLagrange, basis.LinearLagrange)
	require.NoError(t, err)
	square, err := m2.CreateElementTemplate(shape.Square)
	require.NoError(t, err)
	require.NoError(t, square.SetNumberOfNodes(4))
	require.NoError(t, square.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      bilinear,
		LocalNodes: []int{0, 1, 2, 3},
	}))
	_, err = m2.CreateElementFromTemplate(1, square, []int{1, 2, 3, 4})
	require.NoError(t, err)

	simplex, err := basis.New(basis.LinearSimplex, basis.LinearSimplex)
	require.NoError(t, err)
	triangle, err := m2.CreateElementTemplate(shape.Triangle)
	require.NoError(t, err)
	require.NoError(t, triangle.SetNumberOfNodes(3))
	require.NoError(t, triangle.DefineField(coordinates, -1, &mesh.ElementFieldComponent{
		Basis:      simplex,
		LocalNodes: []int{0, 1, 2},
	}))
	_, err = m2.CreateElementFromTemplate(2, triangle, []int{2, 5, 4})
	require.NoError(t, err)

	doc, err := Write(r)
	require.NoError(t, err)
	mt := doc.Region.MeshTypes[0]
	assert.Empty(t, mt.Shapes.DefaultShape)
	assert.NotEmpty(t, mt.Shapes.Evaluator)
	assert.Len(t, mt.Shapes.IDs, 2)

	back, err := Read(doc)
	require.NoError(t, err)
	m2b := back.FindMesh(2)
	assert.Equal(t, shape.Square, m2b.ElementShape(m2b.FindElementByIdentifier(1)))
	assert.Equal(t, shape.Triangle, m2b.ElementShape(m2b.FindElementByIdentifier(2)))
}

func TestFieldComponentTemplateClone(t *testing.T) {
	r := buildSquareRegion(t)
	m2 := r.FindMesh(2)
	ft, err := newFieldComponentTemplate(m2)
	require.NoError(t, err)
	tmpl := &ElementFieldComponentTemplate{}
	other := &ElementFieldComponentTemplate{}
	e1 := m2.FindElementByIdentifier(1)
	e2 := m2.FindElementByIdentifier(2)
	require.NoError(t, ft.setElementTemplate(e1, tmpl))
	require.NoError(t, ft.setElementTemplate(e2, tmpl))

	clone, err := ft.Clone(m2)
	require.NoError(t, err)
	require.NoError(t, clone.setElementTemplate(e2, other))

	// Divergence stays local to the clone.
	assert.Same(t, tmpl, ft.elementTemplate(e2))
	assert.Same(t, other, clone.elementTemplate(e2))
	assert.Same(t, tmpl, clone.elementTemplate(e1))
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path, location, filename string
	}{
		{"out.fieldml", "", "out.fieldml"},
		{"dir/out.fieldml", "dir", "out.fieldml"},
		{"/a/b/out.fieldml", "/a/b", "out.fieldml"},
		{`c:\work\out.fieldml`, `c:\work`, "out.fieldml"},
	}
	for _, tc := range tests {
		location, filename := splitPath(tc.path)
		assert.Equal(t, tc.location, location)
		assert.Equal(t, tc.filename, filename)
	}
}

func TestArrayFormatting(t *testing.T) {
	src := denseDoubleSource("d", []int{2, 2}, []float64{1, 0.1, 1.0 / 3.0, 2})
	values, err := parseDoubles(&src)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.1, 1.0 / 3.0, 2}, values, "%.17g survives the text round trip")

	bad := ArrayDataSource{Name: "bad", Rank: 1, Size: "3", Data: "1 2"}
	_, err = parseDoubles(&bad)
	assert.ErrorIs(t, err, status.ErrGeneral)
}

func TestWriteFieldsSelection(t *testing.T) {
	r := mesh.NewRegion("line")
	m1, err := r.Mesh(1)
	require.NoError(t, err)
	coordinates, err := r.CreateField("coordinates", 1)
	require.NoError(t, err)
	require.NoError(t, r.SetCoordinateField(coordinates))
	temperature, err := r.CreateField("temperature", 1)
	require.NoError(t, err)
	for i, value := range []float64{0.0, 1.0} {
		index, err := r.Nodeset().CreateNode(i + 1)
		require.NoError(t, err)
		require.NoError(t, coordinates.SetNodeParameter(index, 1, 1, 1, value))
		require.NoError(t, temperature.SetNodeParameter(index, 1, 1, 1, 20.0+value))
	}
	linear, err := basis.New(basis.LinearLagrange)
	require.NoError(t, err)
	template, err := m1.CreateElementTemplate(shape.Line)
	require.NoError(t, err)
	require.NoError(t, template.SetNumberOfNodes(2))
	efc := &mesh.ElementFieldComponent{Basis: linear, LocalNodes: []int{0, 1}}
	require.NoError(t, template.DefineField(coordinates, -1, efc))
	require.NoError(t, template.DefineField(temperature, -1, efc))
	_, err = m1.CreateElementFromTemplate(1, template, []int{1, 2})
	require.NoError(t, err)

	doc, err := WriteFields(r, []string{"coordinates"})
	require.NoError(t, err)
	assert.NotNil(t, doc.Region.FindPiecewise("coordinates"))
	assert.Nil(t, doc.Region.FindPiecewise("temperature"))

	_, err = WriteFields(r, []string{"pressure"})
	assert.ErrorIs(t, err, status.ErrNotFound)
}
