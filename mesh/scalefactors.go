package mesh

import (
	"fmt"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/status"
)

// ScaleFactorSet is a named, shared grouping of per-element scale factors,
// used when a basis is not naturally normalized (e.g. non-unit-derivative
// Hermite). Sets are owned by the mesh and shared across element
// templates by name.
type ScaleFactorSet struct {
	mesh  *Mesh
	name  string
	count int

	// indexes holds identifiers 1..count for the values map.
	indexes *labels.Set
	values  *labels.Map[float64] // (element, scale factor index) → value
}

// Name returns the set's name.
func (s *ScaleFactorSet) Name() string { return s.name }

// Count returns the number of scale factors per element.
func (s *ScaleFactorSet) Count() int { return s.count }

// FindOrCreateScaleFactorSet returns the named set, creating it with the
// given per-element count. An existing set's count must match.
func (m *Mesh) FindOrCreateScaleFactorSet(name string, count int) (*ScaleFactorSet, error) {
	if name == "" || count < 1 {
		return nil, fmt.Errorf("%w: scale factor set %q count %d", status.ErrArgument, name, count)
	}
	if existing, ok := m.scaleFactorSets[name]; ok {
		if existing.count != count {
			return nil, fmt.Errorf("%w: scale factor set %q has %d factors, requested %d",
				status.ErrArgument, name, existing.count, count)
		}
		return existing, nil
	}
	s := &ScaleFactorSet{mesh: m, name: name, count: count, indexes: labels.NewSet(name + ".indexes")}
	for i := 1; i <= count; i++ {
		if _, err := s.indexes.CreateLabel(i); err != nil {
			return nil, err
		}
	}
	var err error
	s.values, err = labels.NewMap[float64](name+".values", true, m.labels, s.indexes)
	if err != nil {
		return nil, err
	}
	m.scaleFactorSets[name] = s
	m.sfSetOrder = append(m.sfSetOrder, name)
	return s, nil
}

// ScaleFactorSet returns the named set, or nil.
func (m *Mesh) ScaleFactorSet(name string) *ScaleFactorSet {
	return m.scaleFactorSets[name]
}

// ScaleFactorSets returns the mesh's sets in creation order.
func (m *Mesh) ScaleFactorSets() []*ScaleFactorSet {
	sets := make([]*ScaleFactorSet, 0, len(m.sfSetOrder))
	for _, name := range m.sfSetOrder {
		sets = append(sets, m.scaleFactorSets[name])
	}
	return sets
}

// SetElementScaleFactors stores an element's values for the set, one per
// scale factor index.
func (m *Mesh) SetElementScaleFactors(index int, set *ScaleFactorSet, values []float64) error {
	if set == nil || m.scaleFactorSets[set.name] != set {
		return fmt.Errorf("%w: scale factor set not owned by %s", status.ErrArgument, m.Name())
	}
	if !m.labels.IsValidIndex(index) {
		return fmt.Errorf("%w: %s element index %d", status.ErrNotFound, m.Name(), index)
	}
	if len(values) != set.count {
		return fmt.Errorf("%w: %d values for scale factor set %q of %d",
			status.ErrArgument, len(values), set.name, set.count)
	}
	for i, v := range values {
		if err := set.values.SetValue([]int{index, i}, v); err != nil {
			return err
		}
	}
	m.changeLog.Record(index, labels.ChangeDefinition)
	return nil
}

// ElementScaleFactors returns an element's values for the set, defaulting
// to unit scale factors when none were stored.
func (m *Mesh) ElementScaleFactors(index int, set *ScaleFactorSet) []float64 {
	values := make([]float64, set.count)
	for i := range values {
		if v, ok := set.values.Value([]int{index, i}); ok {
			values[i] = v
		} else {
			values[i] = 1.0
		}
	}
	return values
}
