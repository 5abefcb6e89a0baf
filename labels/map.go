package labels

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/notargets/femesh/status"
)

// MaxMapRank bounds the number of label sets a Map may be indexed by.
const MaxMapRank = 4

// Value is the set of element types a Map can store. The serialization
// boundary tags the value kind (double vs int) from the type parameter.
type Value interface {
	~int | ~int32 | ~float64
}

// Map is an N-dimensional array of T addressed by a tuple of label indices,
// one per indexing Set, last index varying fastest. Storage is either dense
// (flat array sized by the index-space product, with a presence bitmap) or
// sparse (dictionary of keys). Used for local-to-global connectivity,
// node derivative/version maps and field parameter storage.
type Map[T Value] struct {
	name   string
	sets   []*Set
	sparse bool

	// Dense storage. dims is the per-set capacity the strides were computed
	// from; when a set outgrows its dim the array is repacked.
	dims    []int
	strides []int
	data    []T
	present *roaring.Bitmap

	// Sparse storage, keyed by the raw index tuple.
	entries map[[MaxMapRank]int]T
}

// NewMap creates a map over the given label sets. sparse selects
// dictionary-of-keys storage; dense storage grows with the sets' index
// spaces.
func NewMap[T Value](name string, sparse bool, sets ...*Set) (*Map[T], error) {
	if len(sets) < 1 || len(sets) > MaxMapRank {
		return nil, fmt.Errorf("%w: map %s rank %d outside [1,%d]", status.ErrArgument, name, len(sets), MaxMapRank)
	}
	m := &Map[T]{name: name, sets: sets, sparse: sparse}
	if sparse {
		m.entries = make(map[[MaxMapRank]int]T)
	} else {
		m.dims = make([]int, len(sets))
		m.strides = make([]int, len(sets))
		m.present = roaring.New()
	}
	return m, nil
}

// Name returns the map's name.
func (m *Map[T]) Name() string { return m.name }

// Rank returns the number of indexing label sets.
func (m *Map[T]) Rank() int { return len(m.sets) }

// Sets returns the indexing label sets in order.
func (m *Map[T]) Sets() []*Set { return m.sets }

// IsSparse reports whether the map uses dictionary-of-keys storage.
func (m *Map[T]) IsSparse() bool { return m.sparse }

func (m *Map[T]) checkIndexes(indexes []int) error {
	if len(indexes) != len(m.sets) {
		return fmt.Errorf("%w: map %s given %d indexes, want %d", status.ErrArgument, m.name, len(indexes), len(m.sets))
	}
	for i, index := range indexes {
		if index < 0 || index >= m.sets[i].IndexSize() {
			return fmt.Errorf("%w: map %s index %d out of range for %s", status.ErrArgument, m.name, index, m.sets[i].Name())
		}
	}
	return nil
}

func (m *Map[T]) key(indexes []int) (k [MaxMapRank]int) {
	copy(k[:], indexes)
	for i := len(indexes); i < MaxMapRank; i++ {
		k[i] = InvalidIndex
	}
	return
}

// grow repacks the dense array so every set's current index size fits.
func (m *Map[T]) grow() {
	newDims := make([]int, len(m.sets))
	changed := false
	for i, s := range m.sets {
		newDims[i] = m.dims[i]
		if s.IndexSize() > m.dims[i] {
			newDims[i] = s.IndexSize()
			changed = true
		}
	}
	if !changed {
		return
	}
	newStrides := make([]int, len(newDims))
	stride := 1
	for i := len(newDims) - 1; i >= 0; i-- {
		newStrides[i] = stride
		stride *= newDims[i]
	}
	newData := make([]T, stride)
	newPresent := roaring.New()
	if m.present != nil {
		it := m.present.Iterator()
		indexes := make([]int, len(m.dims))
		for it.HasNext() {
			offset := int(it.Next())
			rem := offset
			for i := range m.dims {
				indexes[i] = rem / m.strides[i]
				rem %= m.strides[i]
			}
			newOffset := 0
			for i := range indexes {
				newOffset += indexes[i] * newStrides[i]
			}
			newData[newOffset] = m.data[offset]
			newPresent.Add(uint32(newOffset))
		}
	}
	m.dims = newDims
	m.strides = newStrides
	m.data = newData
	m.present = newPresent
}

func (m *Map[T]) offset(indexes []int) (int, bool) {
	offset := 0
	for i, index := range indexes {
		if index >= m.dims[i] {
			return 0, false
		}
		offset += index * m.strides[i]
	}
	return offset, true
}

// SetValue stores value at the index tuple.
func (m *Map[T]) SetValue(indexes []int, value T) error {
	if err := m.checkIndexes(indexes); err != nil {
		return err
	}
	if m.sparse {
		m.entries[m.key(indexes)] = value
		return nil
	}
	offset, ok := m.offset(indexes)
	if !ok {
		m.grow()
		offset, _ = m.offset(indexes)
	}
	m.data[offset] = value
	m.present.Add(uint32(offset))
	return nil
}

// Value returns the stored value at the index tuple and whether one is
// present.
func (m *Map[T]) Value(indexes []int) (T, bool) {
	var zero T
	if err := m.checkIndexes(indexes); err != nil {
		return zero, false
	}
	if m.sparse {
		v, ok := m.entries[m.key(indexes)]
		return v, ok
	}
	offset, ok := m.offset(indexes)
	if !ok || !m.present.Contains(uint32(offset)) {
		return zero, false
	}
	return m.data[offset], true
}

// HasValue reports whether a value is present at the index tuple.
func (m *Map[T]) HasValue(indexes []int) bool {
	_, ok := m.Value(indexes)
	return ok
}

// RemoveValue deletes any value at the index tuple.
func (m *Map[T]) RemoveValue(indexes []int) {
	if err := m.checkIndexes(indexes); err != nil {
		return
	}
	if m.sparse {
		delete(m.entries, m.key(indexes))
		return
	}
	if offset, ok := m.offset(indexes); ok {
		m.present.Remove(uint32(offset))
	}
}

// ValueCount returns the number of stored values.
func (m *Map[T]) ValueCount() int {
	if m.sparse {
		return len(m.entries)
	}
	return int(m.present.GetCardinality())
}
