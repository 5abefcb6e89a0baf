// Package mesh implements the finite-element mesh topology engine: regions
// owning one nodeset and one mesh per topological dimension, element
// shape/face/parent adjacency, element templates, fields with nodal
// parameters, face definition with mesh-wide face sharing, and cross-region
// merging.
//
// All mutation is single-threaded and synchronous; concurrent access needs
// external synchronization.
package mesh

import (
	"fmt"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/status"
)

// MaximumDimension is the highest mesh dimension a region manages.
const MaximumDimension = 3

// RegionChanges is the per-transaction change batch handed to notifiers at
// the outermost EndChange.
type RegionChanges struct {
	Nodes  *labels.ChangeLog
	Meshes map[int]*labels.ChangeLog // keyed by dimension
}

// Region owns a nodeset, one mesh per dimension 1..3 (created at first
// use), and the field registry. Structural changes inside a
// BeginChange/EndChange bracket are coalesced into one notification per
// outermost bracket.
type Region struct {
	name   string
	nodes  *Nodeset
	meshes [MaximumDimension + 1]*Mesh

	fields          map[string]*Field
	fieldOrder      []string
	coordinateField *Field

	changeDepth      int
	notifiers        []func(*RegionChanges)
	defineFacesDepth int
}

// NewRegion creates an empty region.
func NewRegion(name string) *Region {
	r := &Region{
		name:   name,
		fields: make(map[string]*Field),
	}
	r.nodes = newNodeset(r, "nodes")
	return r
}

// Name returns the region's name.
func (r *Region) Name() string { return r.name }

// Nodeset returns the region's node set.
func (r *Region) Nodeset() *Nodeset { return r.nodes }

// Mesh returns the mesh of the given dimension, creating it at first use.
// Parent/face links between adjacent dimensions are established
// symmetrically as meshes appear.
func (r *Region) Mesh(dimension int) (*Mesh, error) {
	if dimension < 1 || dimension > MaximumDimension {
		return nil, fmt.Errorf("%w: mesh dimension %d outside [1,%d]", status.ErrArgument, dimension, MaximumDimension)
	}
	if r.meshes[dimension] == nil {
		m := newMesh(r, dimension)
		r.meshes[dimension] = m
		if face := r.meshes[dimension-1]; face != nil {
			m.faceMesh = face
			face.parentMesh = m
		}
		if dimension < MaximumDimension {
			if parent := r.meshes[dimension+1]; parent != nil {
				m.parentMesh = parent
				parent.faceMesh = m
			}
		}
	}
	return r.meshes[dimension], nil
}

// FindMesh returns the mesh of the given dimension, or nil if it was never
// used.
func (r *Region) FindMesh(dimension int) *Mesh {
	if dimension < 1 || dimension > MaximumDimension {
		return nil
	}
	return r.meshes[dimension]
}

// HighestDimensionMesh returns the non-empty mesh of highest dimension, or
// nil.
func (r *Region) HighestDimensionMesh() *Mesh {
	for d := MaximumDimension; d >= 1; d-- {
		if m := r.meshes[d]; m != nil && m.labels.Size() > 0 {
			return m
		}
	}
	return nil
}

// CreateField registers a new field with the given number of components.
func (r *Region) CreateField(name string, componentCount int) (*Field, error) {
	if name == "" || componentCount < 1 {
		return nil, fmt.Errorf("%w: field %q with %d components", status.ErrArgument, name, componentCount)
	}
	if _, exists := r.fields[name]; exists {
		return nil, fmt.Errorf("%w: field %q", status.ErrAlreadyExists, name)
	}
	f := newField(r, name, componentCount)
	r.fields[name] = f
	r.fieldOrder = append(r.fieldOrder, name)
	return f, nil
}

// FieldByName returns the named field, or nil.
func (r *Region) FieldByName(name string) *Field { return r.fields[name] }

// Fields returns all fields in creation order.
func (r *Region) Fields() []*Field {
	fs := make([]*Field, 0, len(r.fieldOrder))
	for _, name := range r.fieldOrder {
		fs = append(fs, r.fields[name])
	}
	return fs
}

// SetCoordinateField designates the field whose node connectivity defines
// face identity.
func (r *Region) SetCoordinateField(f *Field) error {
	if f == nil || r.fields[f.name] != f {
		return fmt.Errorf("%w: field not owned by region", status.ErrArgument)
	}
	f.coordinate = true
	r.coordinateField = f
	return nil
}

// CoordinateField returns the designated coordinate field, or nil.
func (r *Region) CoordinateField() *Field { return r.coordinateField }

// AddChangeNotifier registers a callback invoked once per outermost
// EndChange with the transaction's change batch.
func (r *Region) AddChangeNotifier(fn func(*RegionChanges)) {
	r.notifiers = append(r.notifiers, fn)
}

// BeginChange opens a change bracket. Brackets nest by reference count;
// only the outermost EndChange emits notifications.
func (r *Region) BeginChange() { r.changeDepth++ }

// EndChange closes a change bracket. The outermost close extracts every
// member's change log, resets them, and notifies.
func (r *Region) EndChange() {
	if r.changeDepth > 0 {
		r.changeDepth--
	}
	if r.changeDepth > 0 {
		return
	}
	changes := &RegionChanges{Meshes: make(map[int]*labels.ChangeLog)}
	any := false
	if r.nodes.changeLog.Summary() != 0 {
		changes.Nodes = r.nodes.changeLog
		r.nodes.changeLog = labels.NewChangeLog()
		any = true
	}
	for d := 1; d <= MaximumDimension; d++ {
		if m := r.meshes[d]; m != nil && m.changeLog.Summary() != 0 {
			changes.Meshes[d] = m.changeLog
			m.changeLog = labels.NewChangeLog()
			any = true
		}
	}
	if !any {
		return
	}
	for _, fn := range r.notifiers {
		fn(changes)
	}
}

// BeginDefineFaces opens the face-definition session: each mesh builds its
// node-sequence lookup table so faces created for one parent are found and
// shared by later parents.
func (r *Region) BeginDefineFaces() {
	r.defineFacesDepth++
	if r.defineFacesDepth > 1 {
		return
	}
	for d := 1; d <= MaximumDimension; d++ {
		if m := r.meshes[d]; m != nil {
			m.buildFaceTable()
		}
	}
}

// EndDefineFaces closes the face-definition session and discards the
// lookup tables.
func (r *Region) EndDefineFaces() {
	if r.defineFacesDepth > 0 {
		r.defineFacesDepth--
	}
	if r.defineFacesDepth > 0 {
		return
	}
	for d := 1; d <= MaximumDimension; d++ {
		if m := r.meshes[d]; m != nil {
			m.faceTable = nil
		}
	}
}

// DefineFaces ensures faces of faces are defined down to dimension 1 for
// every mesh in the region, sharing face elements mesh-wide by node
// sequence. Idempotent.
func (r *Region) DefineFaces() error {
	r.BeginChange()
	defer r.EndChange()
	r.BeginDefineFaces()
	defer r.EndDefineFaces()
	for d := MaximumDimension; d >= 2; d-- {
		m := r.meshes[d]
		if m == nil || m.labels.Size() == 0 {
			continue
		}
		if _, err := r.Mesh(d - 1); err != nil {
			return err
		}
		if err := m.defineFacesAll(); err != nil {
			return err
		}
	}
	return nil
}

// Merge merges source's nodes, meshes (ascending dimension) and node
// parameters into r. Elements that fail a remap step are skipped atomically
// while prior elements stay merged.
func (r *Region) Merge(source *Region) error {
	r.BeginChange()
	defer r.EndChange()
	if err := r.nodes.Merge(source.nodes); err != nil {
		return err
	}
	for d := 1; d <= MaximumDimension; d++ {
		sm := source.meshes[d]
		if sm == nil || sm.labels.Size() == 0 {
			continue
		}
		tm, err := r.Mesh(d)
		if err != nil {
			return err
		}
		if err := tm.Merge(sm); err != nil {
			return err
		}
	}
	return nil
}

// Destroy tears the region down deterministically: weak element→field-info
// references are cleared before element storage goes away, and
// mesh↔faceMesh links are nulled symmetrically.
func (r *Region) Destroy() {
	for d := MaximumDimension; d >= 1; d-- {
		if m := r.meshes[d]; m != nil {
			m.detach()
			r.meshes[d] = nil
		}
	}
	r.nodes.labels.Clear()
	r.fields = make(map[string]*Field)
	r.fieldOrder = nil
	r.coordinateField = nil
}
