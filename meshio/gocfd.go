// Package meshio imports external mesh files into regions using the gocfd
// reader stack. The reader handles Gmsh (2.2 and 4.x) and Gambit neutral
// formats; everything arriving here is already a flat vertex table plus
// element connectivity.
package meshio

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	gomesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"

	"github.com/notargets/femesh/basis"
	"github.com/notargets/femesh/mesh"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// CoordinateFieldName is the field created for vertex coordinates.
const CoordinateFieldName = "coordinates"

// vertexOrder maps each shape's xi-ordered vertex to the position in the
// file's connectivity row. Mesh files use the Gmsh corner ordering, which
// walks quadrilateral and hexahedral corners counterclockwise rather than
// in xi-bit order. Simplex and wedge orderings coincide.
var vertexOrder = map[shape.Type][]int{
	shape.Line:        {0, 1},
	shape.Triangle:    {0, 1, 2},
	shape.Square:      {0, 1, 3, 2},
	shape.Tetrahedron: {0, 1, 2, 3},
	shape.Cube:        {0, 1, 3, 2, 4, 5, 7, 6},
	shape.Wedge:       {0, 1, 2, 3, 4, 5},
}

// shapeForElement picks the element shape from its dimension and corner
// count. Higher-order file elements carry extra nodes beyond the corners,
// so the counts here are exact corner counts only.
func shapeForElement(dimension, nodeCount int) (shape.Type, error) {
	switch dimension {
	case 1:
		if nodeCount == 2 {
			return shape.Line, nil
		}
	case 2:
		switch nodeCount {
		case 3:
			return shape.Triangle, nil
		case 4:
			return shape.Square, nil
		}
	case 3:
		switch nodeCount {
		case 4:
			return shape.Tetrahedron, nil
		case 6:
			return shape.Wedge, nil
		case 8:
			return shape.Cube, nil
		}
	}
	return 0, fmt.Errorf("%w: %dD element with %d nodes", status.ErrNotImplemented, dimension, nodeCount)
}

// meshDimension is the highest element dimension present in the file.
func meshDimension(msh *gomesh.Mesh) int {
	dimension := 0
	for _, et := range msh.ElementTypes {
		if d := et.GetDimension(); d > dimension {
			dimension = d
		}
	}
	return dimension
}

// coordinateComponents decides how many coordinate components to keep.
// Readers always store three values per vertex; trailing zero planes in a
// lower-dimensional mesh are dropped.
func coordinateComponents(msh *gomesh.Mesh, dimension int) int {
	components := dimension
	if components < 1 {
		components = 1
	}
	for _, v := range msh.Vertices {
		for c := components; c < len(v) && c < 3; c++ {
			if math.Abs(v[c]) > 0 {
				components = c + 1
			}
		}
	}
	return components
}

// loadNodes creates one node per file vertex, identified 1..NumVertices,
// and fills the coordinate field.
func loadNodes(region *mesh.Region, msh *gomesh.Mesh, components int) (*mesh.Field, error) {
	coordinates, err := region.CreateField(CoordinateFieldName, components)
	if err != nil {
		return nil, err
	}
	if err := region.SetCoordinateField(coordinates); err != nil {
		return nil, err
	}
	nodes := region.Nodeset()
	for i, v := range msh.Vertices {
		index, err := nodes.CreateNode(i + 1)
		if err != nil {
			return nil, err
		}
		for c := 0; c < components; c++ {
			value := 0.0
			if c < len(v) {
				value = v[c]
			}
			if err := coordinates.SetNodeParameter(index, 1, 1, c+1, value); err != nil {
				return nil, err
			}
		}
	}
	return coordinates, nil
}

// linearTemplate builds an element template interpolating the coordinate
// field with the shape's default linear basis over its corner nodes.
func linearTemplate(m *mesh.Mesh, coordinates *mesh.Field, shapeType shape.Type) (*mesh.ElementTemplate, error) {
	template, err := m.CreateElementTemplate(shapeType)
	if err != nil {
		return nil, err
	}
	if err := template.SetNumberOfNodes(shapeType.VertexCount()); err != nil {
		return nil, err
	}
	b, err := basis.DefaultLinear(shapeType)
	if err != nil {
		return nil, err
	}
	localNodes := make([]int, b.NodeCount())
	for i := range localNodes {
		localNodes[i] = i
	}
	efc := &mesh.ElementFieldComponent{Basis: b, LocalNodes: localNodes}
	if err := template.DefineField(coordinates, -1, efc); err != nil {
		return nil, err
	}
	return template, nil
}

// LoadRegion reads a mesh file and builds a region from it: nodes
// identified 1..NumVertices carrying a "coordinates" field, and one
// element per highest-dimension file element with linear coordinate
// interpolation. Lower-dimensional file elements (boundary facets,
// physical group markers) are skipped.
func LoadRegion(path string) (*mesh.Region, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mesh file %q: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return regionFromMesh(name, msh)
}

// regionFromMesh converts an in-memory gocfd mesh to a region.
func regionFromMesh(name string, msh *gomesh.Mesh) (*mesh.Region, error) {
	dimension := meshDimension(msh)
	if dimension < 1 {
		return nil, fmt.Errorf("%w: mesh %q has no elements", status.ErrGeneral, name)
	}

	region := mesh.NewRegion(name)
	region.BeginChange()
	defer region.EndChange()

	coordinates, err := loadNodes(region, msh, coordinateComponents(msh, dimension))
	if err != nil {
		return nil, fmt.Errorf("load mesh nodes: %w", err)
	}

	m, err := region.Mesh(dimension)
	if err != nil {
		return nil, err
	}
	templates := make(map[shape.Type]*mesh.ElementTemplate)
	created, skipped := 0, 0
	for i, row := range msh.EtoV {
		if msh.ElementTypes[i].GetDimension() != dimension {
			skipped++
			continue
		}
		shapeType, err := shapeForElement(dimension, len(row))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i+1, err)
		}
		template, ok := templates[shapeType]
		if !ok {
			template, err = linearTemplate(m, coordinates, shapeType)
			if err != nil {
				return nil, err
			}
			templates[shapeType] = template
		}
		order := vertexOrder[shapeType]
		nodeIdentifiers := make([]int, len(row))
		for k, pos := range order {
			nodeIdentifiers[k] = row[pos] + 1
		}
		if _, err := m.CreateElementFromTemplate(i+1, template, nodeIdentifiers); err != nil {
			return nil, fmt.Errorf("element %d: %w", i+1, err)
		}
		created++
	}
	slog.Info("loaded mesh", "name", name, "dimension", dimension,
		"nodes", region.Nodeset().Size(), "elements", created, "skippedLowerDim", skipped)
	return region, nil
}
