// Package labels implements the index/identifier machinery underneath the
// mesh topology engine: a Set maps a dense internal index space to sparse,
// externally visible integer identifiers; a ChangeLog tracks per-index
// modifications across a transaction; a Map stores N-dimensional values
// addressed by tuples of label indices.
package labels

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/notargets/femesh/status"
)

// InvalidIndex marks "no label" in every index-valued slot.
const InvalidIndex = -1

// Set maintains a bijection between a dense index space [0, IndexSize())
// and externally visible integer identifiers. Indices of removed labels are
// never reused while the set lives, so holders of an index stay valid until
// they observe the removal.
type Set struct {
	name string

	// identifiers[index] is the external identifier, or InvalidIndex for a
	// removed label. The map is the reverse direction, live labels only.
	identifiers []int
	idToIndex   map[int]int

	live          *roaring.Bitmap // live indices
	maxIdentifier int
}

// NewSet creates an empty label set with the given name.
func NewSet(name string) *Set {
	return &Set{
		name:      name,
		idToIndex: make(map[int]int),
		live:      roaring.New(),
	}
}

// Name returns the set's name.
func (s *Set) Name() string { return s.name }

// Size returns the number of live labels.
func (s *Set) Size() int { return int(s.live.GetCardinality()) }

// IndexSize returns the high-water index bound. Indices in [0, IndexSize())
// are either live or permanently retired.
func (s *Set) IndexSize() int { return len(s.identifiers) }

// CreateLabel allocates a new index for identifier. A negative identifier
// requests automatic numbering (one above the highest ever used, starting
// at 1). Fails with status.ErrAlreadyExists if the identifier is live.
func (s *Set) CreateLabel(identifier int) (int, error) {
	if identifier < 0 {
		identifier = s.maxIdentifier + 1
		if identifier < 1 {
			identifier = 1
		}
	} else if _, exists := s.idToIndex[identifier]; exists {
		return InvalidIndex, fmt.Errorf("%w: %s identifier %d", status.ErrAlreadyExists, s.name, identifier)
	}
	index := len(s.identifiers)
	s.identifiers = append(s.identifiers, identifier)
	s.idToIndex[identifier] = index
	s.live.Add(uint32(index))
	if identifier > s.maxIdentifier {
		s.maxIdentifier = identifier
	}
	return index, nil
}

// RemoveLabel retires an index. The index is never reused.
func (s *Set) RemoveLabel(index int) error {
	if index < 0 || index >= len(s.identifiers) || !s.live.Contains(uint32(index)) {
		return fmt.Errorf("%w: %s index %d", status.ErrNotFound, s.name, index)
	}
	delete(s.idToIndex, s.identifiers[index])
	s.identifiers[index] = InvalidIndex
	s.live.Remove(uint32(index))
	return nil
}

// IsValidIndex reports whether index refers to a live label.
func (s *Set) IsValidIndex(index int) bool {
	return index >= 0 && index < len(s.identifiers) && s.live.Contains(uint32(index))
}

// FindLabelByIdentifier returns the index for identifier, or InvalidIndex.
func (s *Set) FindLabelByIdentifier(identifier int) int {
	if index, ok := s.idToIndex[identifier]; ok {
		return index
	}
	return InvalidIndex
}

// Identifier returns the identifier at index, or InvalidIndex for a dead or
// out-of-range index.
func (s *Set) Identifier(index int) int {
	if index < 0 || index >= len(s.identifiers) {
		return InvalidIndex
	}
	return s.identifiers[index]
}

// SetIdentifier renumbers a live label. Fails with status.ErrAlreadyExists
// if the new identifier is held by another live label.
func (s *Set) SetIdentifier(index, identifier int) error {
	if !s.IsValidIndex(index) {
		return fmt.Errorf("%w: %s index %d", status.ErrNotFound, s.name, index)
	}
	if identifier < 0 {
		return fmt.Errorf("%w: %s negative identifier %d", status.ErrArgument, s.name, identifier)
	}
	if other, exists := s.idToIndex[identifier]; exists {
		if other == index {
			return nil
		}
		return fmt.Errorf("%w: %s identifier %d", status.ErrAlreadyExists, s.name, identifier)
	}
	delete(s.idToIndex, s.identifiers[index])
	s.identifiers[index] = identifier
	s.idToIndex[identifier] = index
	if identifier > s.maxIdentifier {
		s.maxIdentifier = identifier
	}
	return nil
}

// Clear removes all labels and resets the index space. Unlike RemoveLabel,
// retired indices are reclaimed; holders of old indices must not survive a
// Clear.
func (s *Set) Clear() {
	s.identifiers = s.identifiers[:0]
	s.idToIndex = make(map[int]int)
	s.live.Clear()
	s.maxIdentifier = 0
}

// sortedIdentifiers returns the live identifiers in ascending order.
func (s *Set) sortedIdentifiers() []int {
	ids := make([]int, 0, s.Size())
	for id := range s.idToIndex {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IdentifierRange is a closed range of identifiers.
type IdentifierRange struct {
	First, Last int
}

// IdentifierRanges returns the live identifiers compacted into ascending
// closed ranges. Used to choose a compact serialization for ensembles.
func (s *Set) IdentifierRanges() []IdentifierRange {
	ids := s.sortedIdentifiers()
	var ranges []IdentifierRange
	for _, id := range ids {
		if n := len(ranges); n > 0 && ranges[n-1].Last+1 == id {
			ranges[n-1].Last = id
		} else {
			ranges = append(ranges, IdentifierRange{First: id, Last: id})
		}
	}
	return ranges
}

// IsContiguous reports whether the live identifiers form a single
// contiguous range. A serialization-compactness query only.
func (s *Set) IsContiguous() bool {
	if s.Size() == 0 {
		return false
	}
	r := s.IdentifierRanges()
	return len(r) == 1
}

// Iterator returns a restartable forward iterator over live indices in
// ascending identifier order. Structural mutation of the set during
// iteration is undefined, except removing the index most recently returned.
func (s *Set) Iterator() *Iterator {
	it := &Iterator{set: s, ids: s.sortedIdentifiers()}
	return it
}

// Iterator walks a Set's live indices in ascending identifier order.
type Iterator struct {
	set *Set
	ids []int
	pos int
}

// Next returns the next live index, or InvalidIndex when exhausted.
func (it *Iterator) Next() int {
	for it.pos < len(it.ids) {
		index := it.set.FindLabelByIdentifier(it.ids[it.pos])
		it.pos++
		if index != InvalidIndex {
			return index
		}
	}
	return InvalidIndex
}

// Reset restarts the iterator at the lowest identifier.
func (it *Iterator) Reset() { it.pos = 0 }
