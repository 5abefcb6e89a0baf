package fieldml

import (
	"fmt"

	"github.com/notargets/femesh/basis"
	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/mesh"
	"github.com/notargets/femesh/status"
)

// MeshNodeConnectivity accumulates the local→global node identifier map
// shared by the element templates funnelled into one evaluator. After an
// equivalent-template alias attaches, checkConsistency is set and every
// later write verifies instead of overwriting.
type MeshNodeConnectivity struct {
	name             string
	localNodes       *labels.Set
	nodeIdentifiers  *labels.Map[int]
	checkConsistency bool
}

func newMeshNodeConnectivity(m *mesh.Mesh, name string, localNodeCount int) (*MeshNodeConnectivity, error) {
	c := &MeshNodeConnectivity{name: name, localNodes: labels.NewSet(name + ".localnodes")}
	for i := 1; i <= localNodeCount; i++ {
		if _, err := c.localNodes.CreateLabel(i); err != nil {
			return nil, err
		}
	}
	var err error
	c.nodeIdentifiers, err = labels.NewMap[int](name, true, m.Labels(), c.localNodes)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LocalNodeCount returns the number of local nodes per element.
func (c *MeshNodeConnectivity) LocalNodeCount() int { return c.localNodes.Size() }

// setElementNodes records one element's node identifiers, or verifies them
// when consistency checking is active or the row was already written.
func (c *MeshNodeConnectivity) setElementNodes(elementIndex int, nodeIdentifiers []int) error {
	if len(nodeIdentifiers) != c.localNodes.Size() {
		return fmt.Errorf("%w: %d node identifiers for connectivity %q with %d local nodes",
			status.ErrArgument, len(nodeIdentifiers), c.name, c.localNodes.Size())
	}
	for ln, id := range nodeIdentifiers {
		existing, present := c.nodeIdentifiers.Value([]int{elementIndex, ln})
		if present {
			if c.checkConsistency && existing != id {
				return fmt.Errorf("%w: connectivity %q element index %d local node %d is node %d, template needs %d",
					status.ErrGeneral, c.name, elementIndex, ln+1, existing, id)
			}
			if existing == id {
				continue
			}
		}
		if err := c.nodeIdentifiers.SetValue([]int{elementIndex, ln}, id); err != nil {
			return err
		}
	}
	return nil
}

// elementNodes returns one element's recorded node identifiers, nil when
// the row was never written.
func (c *MeshNodeConnectivity) elementNodes(elementIndex int) []int {
	ids := make([]int, 0, c.localNodes.Size())
	for ln := 0; ln < c.localNodes.Size(); ln++ {
		id, ok := c.nodeIdentifiers.Value([]int{elementIndex, ln})
		if !ok {
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

// ElementFieldComponentTemplate is the serialization-side description of
// one element field component: the basis with its per-DOF derivative and
// version pattern, and the connectivity its elements share. Templates that
// differ only in local node permutation alias an existing template through
// equivalent, so both serialize to the literal same evaluator.
type ElementFieldComponentTemplate struct {
	basis        *basis.Basis
	derivatives  []int
	versions     []int
	connectivity *MeshNodeConnectivity
	equivalent   *ElementFieldComponentTemplate

	// evaluatorName is assigned at emission; aliases resolve through root.
	evaluatorName string
}

// root follows the equivalence chain to the template that owns the
// evaluator and connectivity.
func (t *ElementFieldComponentTemplate) root() *ElementFieldComponentTemplate {
	for t.equivalent != nil {
		t = t.equivalent
	}
	return t
}

// sameInterpolation reports whether two templates share basis and DOF
// pattern, the precondition for both exact matches and equivalence
// aliasing.
func (t *ElementFieldComponentTemplate) sameInterpolation(o *ElementFieldComponentTemplate) bool {
	if t.basis.Name() != o.basis.Name() {
		return false
	}
	return intSlicesEqual(t.derivatives, o.derivatives) && intSlicesEqual(t.versions, o.versions)
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FieldComponentTemplate maps each element to one of a deduplicated list
// of element field component templates, per field component.
type FieldComponentTemplate struct {
	elementTemplates *labels.Map[int]
	templates        []*ElementFieldComponentTemplate
}

func newFieldComponentTemplate(m *mesh.Mesh) (*FieldComponentTemplate, error) {
	elementTemplates, err := labels.NewMap[int]("fieldcomponent.templates", true, m.Labels())
	if err != nil {
		return nil, err
	}
	return &FieldComponentTemplate{elementTemplates: elementTemplates}, nil
}

// Clone produces an independent copy, used when a shared per-component map
// must diverge for later elements while earlier elements keep the original
// mapping.
func (ft *FieldComponentTemplate) Clone(m *mesh.Mesh) (*FieldComponentTemplate, error) {
	clone, err := newFieldComponentTemplate(m)
	if err != nil {
		return nil, err
	}
	clone.templates = append([]*ElementFieldComponentTemplate(nil), ft.templates...)
	it := m.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		if v, ok := ft.elementTemplates.Value([]int{index}); ok {
			if err := clone.elementTemplates.SetValue([]int{index}, v); err != nil {
				return nil, err
			}
		}
	}
	return clone, nil
}

// setElementTemplate assigns a template to an element, interning it in the
// template list.
func (ft *FieldComponentTemplate) setElementTemplate(elementIndex int, t *ElementFieldComponentTemplate) error {
	t = t.root()
	slot := -1
	for i, existing := range ft.templates {
		if existing == t {
			slot = i
			break
		}
	}
	if slot < 0 {
		ft.templates = append(ft.templates, t)
		slot = len(ft.templates) - 1
	}
	return ft.elementTemplates.SetValue([]int{elementIndex}, slot)
}

// elementTemplate returns the element's template, nil when unassigned.
func (ft *FieldComponentTemplate) elementTemplate(elementIndex int) *ElementFieldComponentTemplate {
	if slot, ok := ft.elementTemplates.Value([]int{elementIndex}); ok {
		return ft.templates[slot]
	}
	return nil
}

// equal reports whether two maps assign identical templates to identical
// elements, letting sibling components share one serialized evaluator.
func (ft *FieldComponentTemplate) equal(o *FieldComponentTemplate, m *mesh.Mesh) bool {
	it := m.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		if ft.elementTemplate(index) != o.elementTemplate(index) {
			return false
		}
	}
	return true
}
