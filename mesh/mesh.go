package mesh

import (
	"fmt"
	"log/slog"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// ElementShapeFaces groups the elements sharing one shape type and holds
// their per-element face index arrays into the face mesh. While a mesh uses
// a single shape the one bucket applies to every element; a per-element
// shape map is activated lazily when a second distinct shape appears.
type ElementShapeFaces struct {
	shapeType shape.Type

	// faces[elementIndex] has length shapeType.FaceCount(); entries are
	// face mesh element indices or labels.InvalidIndex for "no face".
	// A nil row means no face has been set for that element yet.
	faces [][]int
}

// ShapeType returns the bucket's shape.
func (sf *ElementShapeFaces) ShapeType() shape.Type { return sf.shapeType }

// FaceCount returns the per-element face array length.
func (sf *ElementShapeFaces) FaceCount() int { return sf.shapeType.FaceCount() }

func (sf *ElementShapeFaces) row(elementIndex int, create bool) []int {
	for len(sf.faces) <= elementIndex {
		sf.faces = append(sf.faces, nil)
	}
	if sf.faces[elementIndex] == nil && create {
		row := make([]int, sf.FaceCount())
		for i := range row {
			row[i] = labels.InvalidIndex
		}
		sf.faces[elementIndex] = row
	}
	return sf.faces[elementIndex]
}

func (sf *ElementShapeFaces) clearRow(elementIndex int) {
	if elementIndex < len(sf.faces) {
		sf.faces[elementIndex] = nil
	}
}

// Mesh owns the elements of one topological dimension: their labels,
// shape/face buckets, parent back-references, scale factor sets, the
// deduplicated element field info registry and the per-transaction change
// log. Links to the one-higher (parent) and one-lower (face) meshes are
// symmetric non-owning references maintained by the region.
type Mesh struct {
	region    *Region
	dimension int
	labels    *labels.Set
	changeLog *labels.ChangeLog

	parentMesh *Mesh
	faceMesh   *Mesh

	// Shape buckets. elementShape is nil while at most one bucket exists
	// (uniform-shape fast path); otherwise elementShape[index] is the
	// bucket number, -1 for unshaped.
	shapeFaces   []*ElementShapeFaces
	elementShape []int

	// parents[faceElementIndex] lists parent element indices in
	// parentMesh. Normally one entry; more when an element's faces are
	// geometrically identified (periodic/self-wrapping topology).
	parents [][]int

	// Local-to-global node connectivity for stamped elements.
	localNodes   *labels.Set
	elementNodes *labels.Map[int]

	scaleFactorSets map[string]*ScaleFactorSet
	sfSetOrder      []string

	// Deduplicated field descriptors; elements hold weak references into
	// this list via elementFieldInfo, cleared by detach before teardown.
	fieldInfos       []*elementFieldInfo
	elementFieldInfo []*elementFieldInfo

	// Session-scoped face lookup, live between BeginDefineFaces and
	// EndDefineFaces on the region: node-sequence key → face element index
	// in this mesh.
	faceTable map[string]int
}

func newMesh(region *Region, dimension int) *Mesh {
	m := &Mesh{
		region:          region,
		dimension:       dimension,
		labels:          labels.NewSet(fmt.Sprintf("mesh%dd", dimension)),
		changeLog:       labels.NewChangeLog(),
		localNodes:      labels.NewSet(fmt.Sprintf("mesh%dd.localnodes", dimension)),
		scaleFactorSets: make(map[string]*ScaleFactorSet),
	}
	m.elementNodes, _ = labels.NewMap[int](m.labels.Name()+".nodes", true, m.labels, m.localNodes)
	return m
}

// Name returns the mesh name, e.g. "mesh3d".
func (m *Mesh) Name() string { return m.labels.Name() }

// Dimension returns the mesh's fixed topological dimension.
func (m *Mesh) Dimension() int { return m.dimension }

// Region returns the owning region.
func (m *Mesh) Region() *Region { return m.region }

// Labels exposes the element label set.
func (m *Mesh) Labels() *labels.Set { return m.labels }

// FaceMesh returns the mesh one dimension lower, or nil.
func (m *Mesh) FaceMesh() *Mesh { return m.faceMesh }

// ParentMesh returns the mesh one dimension higher, or nil.
func (m *Mesh) ParentMesh() *Mesh { return m.parentMesh }

// ElementCount returns the number of live elements.
func (m *Mesh) ElementCount() int { return m.labels.Size() }

// ElementIdentifier returns the identifier at element index.
func (m *Mesh) ElementIdentifier(index int) int { return m.labels.Identifier(index) }

// FindElementByIdentifier returns the element index for identifier, or
// labels.InvalidIndex.
func (m *Mesh) FindElementByIdentifier(identifier int) int {
	return m.labels.FindLabelByIdentifier(identifier)
}

// CreateElement creates an element with the given identifier (negative for
// automatic) and shape. shape.Invalid creates an unshaped element to be
// shaped later.
func (m *Mesh) CreateElement(identifier int, shapeType shape.Type) (int, error) {
	index, err := m.labels.CreateLabel(identifier)
	if err != nil {
		return labels.InvalidIndex, err
	}
	m.changeLog.Record(index, labels.ChangeAdd)
	if shapeType != shape.Invalid {
		if _, err := m.SetElementShape(index, shapeType); err != nil {
			m.labels.RemoveLabel(index)
			m.changeLog.Record(index, labels.ChangeRemove)
			return labels.InvalidIndex, err
		}
	}
	return index, nil
}

// GetOrCreateElementWithIdentifier finds the element with identifier,
// creating it with the given shape if absent. An existing element must be
// unshaped or match shapeType.
func (m *Mesh) GetOrCreateElementWithIdentifier(identifier int, shapeType shape.Type) (int, error) {
	if index := m.labels.FindLabelByIdentifier(identifier); index != labels.InvalidIndex {
		existing := m.ElementShape(index)
		if existing != shape.Invalid && shapeType != shape.Invalid && existing != shapeType {
			return labels.InvalidIndex, fmt.Errorf("%w: element %d has shape %v, requested %v",
				status.ErrArgument, identifier, existing, shapeType)
		}
		if existing == shape.Invalid && shapeType != shape.Invalid {
			if _, err := m.SetElementShape(index, shapeType); err != nil {
				return labels.InvalidIndex, err
			}
		}
		return index, nil
	}
	return m.CreateElement(identifier, shapeType)
}

// bucketFor returns the bucket number for an element, -1 if unshaped.
func (m *Mesh) bucketFor(index int) int {
	if m.elementShape != nil {
		if index < len(m.elementShape) {
			return m.elementShape[index]
		}
		return -1
	}
	if len(m.shapeFaces) == 1 {
		return 0
	}
	return -1
}

// setBucket records an element's bucket, activating the per-element shape
// map when needed.
func (m *Mesh) setBucket(index, bucket int) {
	if m.elementShape == nil {
		if len(m.shapeFaces) <= 1 && bucket == 0 {
			return
		}
		// Second distinct shape: one-time O(indexSize) conversion.
		m.elementShape = make([]int, m.labels.IndexSize())
		for i := range m.elementShape {
			if m.labels.IsValidIndex(i) {
				m.elementShape[i] = 0
			} else {
				m.elementShape[i] = -1
			}
		}
	}
	for len(m.elementShape) <= index {
		m.elementShape = append(m.elementShape, -1)
	}
	m.elementShape[index] = bucket
}

// ElementShape returns the element's shape, shape.Invalid while unshaped.
func (m *Mesh) ElementShape(index int) shape.Type {
	if !m.labels.IsValidIndex(index) {
		return shape.Invalid
	}
	if b := m.bucketFor(index); b >= 0 {
		return m.shapeFaces[b].shapeType
	}
	return shape.Invalid
}

// ElementShapeFaces returns the shape bucket holding the element's face
// array, or nil while unshaped.
func (m *Mesh) ElementShapeFaces(index int) *ElementShapeFaces {
	if b := m.bucketFor(index); b >= 0 && m.labels.IsValidIndex(index) {
		return m.shapeFaces[b]
	}
	return nil
}

// SetElementShape shapes an element, returning its bucket. A no-op when
// the shape is unchanged. Changing the shape of an element whose faces
// were defined clears its face and parent adjacency first: stale face
// counts must never survive a shape change.
func (m *Mesh) SetElementShape(index int, shapeType shape.Type) (*ElementShapeFaces, error) {
	if !m.labels.IsValidIndex(index) {
		return nil, fmt.Errorf("%w: %s element index %d", status.ErrNotFound, m.Name(), index)
	}
	if shapeType.Dimension() != m.dimension {
		return nil, fmt.Errorf("%w: shape %v is %dD, mesh is %dD", status.ErrArgument,
			shapeType, shapeType.Dimension(), m.dimension)
	}
	if current := m.bucketFor(index); current >= 0 {
		if m.shapeFaces[current].shapeType == shapeType {
			return m.shapeFaces[current], nil
		}
		m.clearElementAdjacency(index)
	}
	bucket := -1
	for i, sf := range m.shapeFaces {
		if sf.shapeType == shapeType {
			bucket = i
			break
		}
	}
	if bucket < 0 {
		m.shapeFaces = append(m.shapeFaces, &ElementShapeFaces{shapeType: shapeType})
		bucket = len(m.shapeFaces) - 1
	}
	m.setBucket(index, bucket)
	m.changeLog.Record(index, labels.ChangeDefinition)
	return m.shapeFaces[bucket], nil
}

// ElementFace returns the face element index at face number faceNumber, or
// labels.InvalidIndex.
func (m *Mesh) ElementFace(index, faceNumber int) int {
	sf := m.ElementShapeFaces(index)
	if sf == nil || faceNumber < 0 || faceNumber >= sf.FaceCount() {
		return labels.InvalidIndex
	}
	row := sf.row(index, false)
	if row == nil {
		return labels.InvalidIndex
	}
	return row[faceNumber]
}

// SetElementFace links face number faceNumber of an element to a face mesh
// element (labels.InvalidIndex unlinks), maintaining the face's parent
// list symmetrically. Redundant updates are no-ops.
func (m *Mesh) SetElementFace(index, faceNumber, faceIndex int) error {
	sf := m.ElementShapeFaces(index)
	if sf == nil {
		return fmt.Errorf("%w: %s element %d has no shape", status.ErrGeneral, m.Name(), m.labels.Identifier(index))
	}
	if faceNumber < 0 || faceNumber >= sf.FaceCount() {
		return fmt.Errorf("%w: face number %d for shape %v", status.ErrArgument, faceNumber, sf.shapeType)
	}
	if m.faceMesh == nil {
		return fmt.Errorf("%w: %s has no face mesh", status.ErrGeneral, m.Name())
	}
	if faceIndex != labels.InvalidIndex && !m.faceMesh.labels.IsValidIndex(faceIndex) {
		return fmt.Errorf("%w: face index %d", status.ErrArgument, faceIndex)
	}
	row := sf.row(index, true)
	old := row[faceNumber]
	if old == faceIndex {
		return nil
	}
	if old != labels.InvalidIndex {
		m.faceMesh.removeElementParent(old, index)
	}
	row[faceNumber] = faceIndex
	if faceIndex != labels.InvalidIndex {
		m.faceMesh.addElementParent(faceIndex, index)
		m.faceMesh.changeLog.Record(faceIndex, labels.ChangeRelated)
	}
	m.changeLog.Record(index, labels.ChangeDefinition)
	return nil
}

// ElementParents returns a copy of the parent element indices (in the
// parent mesh) referencing this face element.
func (m *Mesh) ElementParents(index int) []int {
	if index < 0 || index >= len(m.parents) {
		return nil
	}
	return append([]int(nil), m.parents[index]...)
}

func (m *Mesh) addElementParent(index, parentIndex int) {
	for len(m.parents) <= index {
		m.parents = append(m.parents, nil)
	}
	for _, p := range m.parents[index] {
		if p == parentIndex {
			return
		}
	}
	m.parents[index] = append(m.parents[index], parentIndex)
}

func (m *Mesh) removeElementParent(index, parentIndex int) {
	if index < 0 || index >= len(m.parents) {
		return
	}
	list := m.parents[index]
	for i, p := range list {
		if p == parentIndex {
			m.parents[index] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// clearElementAdjacency unlinks all faces of an element and detaches it
// from any parents.
func (m *Mesh) clearElementAdjacency(index int) {
	if sf := m.ElementShapeFaces(index); sf != nil {
		if row := sf.row(index, false); row != nil {
			for f, faceIndex := range row {
				if faceIndex != labels.InvalidIndex {
					m.faceMesh.removeElementParent(faceIndex, index)
					row[f] = labels.InvalidIndex
				}
			}
		}
		sf.clearRow(index)
	}
	if m.parentMesh != nil && index < len(m.parents) {
		for _, parent := range append([]int(nil), m.parents[index]...) {
			if psf := m.parentMesh.ElementShapeFaces(parent); psf != nil {
				if prow := psf.row(parent, false); prow != nil {
					for f, fi := range prow {
						if fi == index {
							prow[f] = labels.InvalidIndex
							m.parentMesh.changeLog.Record(parent, labels.ChangeDefinition)
						}
					}
				}
			}
		}
		m.parents[index] = nil
	}
}

// RemoveElement removes an element, recursively clearing its face links
// and parent back-references. Per-element storage is freed; the index is
// retired.
func (m *Mesh) RemoveElement(index int) error {
	if !m.labels.IsValidIndex(index) {
		return fmt.Errorf("%w: %s element index %d", status.ErrNotFound, m.Name(), index)
	}
	m.clearElementAdjacency(index)
	if m.elementShape != nil && index < len(m.elementShape) {
		m.elementShape[index] = -1
	}
	if index < len(m.elementFieldInfo) {
		m.elementFieldInfo[index] = nil
	}
	for ln := 0; ln < m.localNodes.IndexSize(); ln++ {
		m.elementNodes.RemoveValue([]int{index, ln})
	}
	if err := m.labels.RemoveLabel(index); err != nil {
		return err
	}
	m.changeLog.Record(index, labels.ChangeRemove)
	return nil
}

// DestroyAllElements removes every element in one change batch.
func (m *Mesh) DestroyAllElements() {
	m.region.BeginChange()
	defer m.region.EndChange()
	it := m.labels.Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		if err := m.RemoveElement(index); err != nil {
			slog.Error("Mesh.DestroyAllElements failed to remove element",
				"mesh", m.Name(), "element", m.labels.Identifier(index), "error", err)
		}
	}
	m.changeLog.SetAllChange(labels.ChangeRemove)
}

// SetElementNodes stores the element's local-to-global node connectivity.
func (m *Mesh) SetElementNodes(index int, nodeIndexes []int) error {
	if !m.labels.IsValidIndex(index) {
		return fmt.Errorf("%w: %s element index %d", status.ErrNotFound, m.Name(), index)
	}
	for m.localNodes.Size() < len(nodeIndexes) {
		if _, err := m.localNodes.CreateLabel(m.localNodes.Size() + 1); err != nil {
			return err
		}
	}
	for ln, nodeIndex := range nodeIndexes {
		if !m.region.nodes.labels.IsValidIndex(nodeIndex) {
			return fmt.Errorf("%w: node index %d for %s element %d", status.ErrArgument,
				nodeIndex, m.Name(), m.labels.Identifier(index))
		}
		if err := m.elementNodes.SetValue([]int{index, ln}, nodeIndex); err != nil {
			return err
		}
	}
	m.changeLog.Record(index, labels.ChangeDefinition)
	return nil
}

// ElementNodes returns the element's node indices in local node order, nil
// if none are stored.
func (m *Mesh) ElementNodes(index int) []int {
	var nodes []int
	for ln := 0; ln < m.localNodes.IndexSize(); ln++ {
		nodeIndex, ok := m.elementNodes.Value([]int{index, ln})
		if !ok {
			break
		}
		nodes = append(nodes, nodeIndex)
	}
	return nodes
}

// usesNode reports whether any element references the node index.
func (m *Mesh) usesNode(nodeIndex int) bool {
	it := m.labels.Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		for _, n := range m.ElementNodes(index) {
			if n == nodeIndex {
				return true
			}
		}
	}
	return false
}

// detach clears weak element→field-info references and the symmetric
// parent/face mesh links before the mesh's storage is dropped.
func (m *Mesh) detach() {
	for i := range m.elementFieldInfo {
		m.elementFieldInfo[i] = nil
	}
	m.fieldInfos = nil
	if m.parentMesh != nil {
		m.parentMesh.faceMesh = nil
		m.parentMesh = nil
	}
	if m.faceMesh != nil {
		m.faceMesh.parentMesh = nil
		m.faceMesh = nil
	}
	m.labels.Clear()
	m.changeLog.SetAllChange(labels.ChangeRemove)
}

// Validate checks the parent/face symmetry invariant and per-shape face
// array lengths, returning the first violation found.
func (m *Mesh) Validate() error {
	it := m.labels.Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		sf := m.ElementShapeFaces(index)
		if sf == nil {
			continue
		}
		if m.faceMesh != nil {
			for f := 0; f < sf.FaceCount(); f++ {
				faceIndex := m.ElementFace(index, f)
				if faceIndex == labels.InvalidIndex {
					continue
				}
				found := false
				for _, p := range m.faceMesh.ElementParents(faceIndex) {
					if p == index {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("%w: %s element %d face %d not in face %d parent list",
						status.ErrGeneral, m.Name(), m.labels.Identifier(index), f,
						m.faceMesh.labels.Identifier(faceIndex))
				}
			}
		}
		if m.parentMesh != nil {
			for _, parent := range m.ElementParents(index) {
				found := false
				psf := m.parentMesh.ElementShapeFaces(parent)
				if psf != nil {
					for f := 0; f < psf.FaceCount(); f++ {
						if m.parentMesh.ElementFace(parent, f) == index {
							found = true
							break
						}
					}
				}
				if !found {
					return fmt.Errorf("%w: %s element %d not a face of its parent %d",
						status.ErrGeneral, m.Name(), m.labels.Identifier(index),
						m.parentMesh.labels.Identifier(parent))
				}
			}
		}
	}
	return nil
}
