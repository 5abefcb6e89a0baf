// Package shape defines the element shape descriptors used by the mesh
// topology engine: topological dimension, face counts, face shape types and
// the face→vertex tables that drive face creation.
package shape

// Type identifies the shape of an element.
type Type uint8

const (
	Invalid Type = iota

	// 1D
	Line

	// 2D
	Triangle
	Square

	// 3D
	Tetrahedron
	Cube
	Wedge // triangle cross line
)

// properties is the per-type constant table. Vertex numbering follows the
// unit-cell xi ordering: vertex v has xi_i = bit i of v for tensor-product
// shapes; simplex shapes list the origin first then the unit points; the
// wedge stacks the xi3=0 triangle before the xi3=1 triangle.
type properties struct {
	name        string
	dimension   int
	vertexCount int
	faceTypes   []Type
	faceVerts   [][]int
}

var table = map[Type]properties{
	Line: {
		name:        "line",
		dimension:   1,
		vertexCount: 2,
	},
	Triangle: {
		name:        "triangle",
		dimension:   2,
		vertexCount: 3,
		faceTypes:   []Type{Line, Line, Line},
		faceVerts:   [][]int{{0, 1}, {0, 2}, {1, 2}},
	},
	Square: {
		name:        "square",
		dimension:   2,
		vertexCount: 4,
		faceTypes:   []Type{Line, Line, Line, Line},
		faceVerts:   [][]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}},
	},
	Tetrahedron: {
		name:        "tetrahedron",
		dimension:   3,
		vertexCount: 4,
		faceTypes:   []Type{Triangle, Triangle, Triangle, Triangle},
		faceVerts:   [][]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}},
	},
	Cube: {
		name:        "cube",
		dimension:   3,
		vertexCount: 8,
		faceTypes:   []Type{Square, Square, Square, Square, Square, Square},
		faceVerts: [][]int{
			{0, 2, 4, 6}, {1, 3, 5, 7},
			{0, 1, 4, 5}, {2, 3, 6, 7},
			{0, 1, 2, 3}, {4, 5, 6, 7},
		},
	},
	Wedge: {
		name:        "wedge",
		dimension:   3,
		vertexCount: 6,
		faceTypes:   []Type{Triangle, Triangle, Square, Square, Square},
		faceVerts: [][]int{
			{0, 1, 2}, {3, 4, 5},
			{0, 1, 3, 4}, {0, 2, 3, 5}, {1, 2, 4, 5},
		},
	},
}

// String returns the lowercase shape name, "invalid" for unknown types.
func (t Type) String() string {
	if p, ok := table[t]; ok {
		return p.name
	}
	return "invalid"
}

// Dimension returns the topological dimension, 0 for an invalid type.
func (t Type) Dimension() int {
	return table[t].dimension
}

// VertexCount returns the number of corner vertices.
func (t Type) VertexCount() int {
	return table[t].vertexCount
}

// FaceCount returns the number of topological faces. 1D shapes report 0:
// their end points live in the nodeset, not a face mesh.
func (t Type) FaceCount() int {
	return len(table[t].faceTypes)
}

// FaceType returns the shape of face number face, Invalid if out of range.
func (t Type) FaceType(face int) Type {
	ft := table[t].faceTypes
	if face < 0 || face >= len(ft) {
		return Invalid
	}
	return ft[face]
}

// FaceVertices returns the element-vertex numbers parameterizing face
// number face, nil if out of range. The returned slice is shared; callers
// must not modify it.
func (t Type) FaceVertices(face int) []int {
	fv := table[t].faceVerts
	if face < 0 || face >= len(fv) {
		return nil
	}
	return fv[face]
}

// IsSimplex reports whether the shape is a simplex in all directions.
func (t Type) IsSimplex() bool {
	return t == Triangle || t == Tetrahedron
}

// TypeForDimension returns the default shape of a given dimension: simplex
// (line/triangle/tetrahedron) or tensor product (line/square/cube).
func TypeForDimension(dimension int, simplex bool) Type {
	switch dimension {
	case 1:
		return Line
	case 2:
		if simplex {
			return Triangle
		}
		return Square
	case 3:
		if simplex {
			return Tetrahedron
		}
		return Cube
	}
	return Invalid
}

// MinimumFaceNodes returns the least number of distinct nodes a face of
// this shape type needs to be a real (non-collapsed) face: 3 for a 2D face,
// 2 for a line.
func MinimumFaceNodes(faceType Type) int {
	if faceType.Dimension() == 2 {
		return 3
	}
	return 2
}
