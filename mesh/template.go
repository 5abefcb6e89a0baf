package mesh

import (
	"fmt"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// elementFieldDefinition binds one field to its per-component element
// interpolation on a template.
type elementFieldDefinition struct {
	field      *Field
	components []*ElementFieldComponent // length field.componentCount
}

func (d *elementFieldDefinition) equal(o *elementFieldDefinition) bool {
	if d.field != o.field || len(d.components) != len(o.components) {
		return false
	}
	for i := range d.components {
		if !d.components[i].equal(o.components[i]) {
			return false
		}
	}
	return true
}

// elementFieldInfo is a deduplicated "which fields with which per-element
// components" descriptor shared across many elements. Elements reference
// it weakly; the mesh clears those references in detach before teardown.
type elementFieldInfo struct {
	mesh           *Mesh
	localNodeCount int
	definitions    []*elementFieldDefinition
}

func (fi *elementFieldInfo) equal(o *elementFieldInfo) bool {
	if fi.localNodeCount != o.localNodeCount || len(fi.definitions) != len(o.definitions) {
		return false
	}
	for i := range fi.definitions {
		if !fi.definitions[i].equal(o.definitions[i]) {
			return false
		}
	}
	return true
}

// findOrCreateFieldInfo returns a registered descriptor equal to candidate,
// registering it when new. Sharing descriptors keeps equal templates
// pointer-identical, which the FieldML writer's memoization relies on.
func (m *Mesh) findOrCreateFieldInfo(candidate *elementFieldInfo) *elementFieldInfo {
	for _, fi := range m.fieldInfos {
		if fi.equal(candidate) {
			return fi
		}
	}
	candidate.mesh = m
	m.fieldInfos = append(m.fieldInfos, candidate)
	return candidate
}

// ElementTemplate is a non-global prototype element used to stamp out new
// elements sharing one shape and field definition.
type ElementTemplate struct {
	mesh           *Mesh
	shapeType      shape.Type
	localNodeCount int
	definitions    []*elementFieldDefinition
}

// CreateElementTemplate starts a template for elements of the given shape.
func (m *Mesh) CreateElementTemplate(shapeType shape.Type) (*ElementTemplate, error) {
	if shapeType.Dimension() != m.dimension {
		return nil, fmt.Errorf("%w: shape %v is %dD, mesh is %dD", status.ErrArgument,
			shapeType, shapeType.Dimension(), m.dimension)
	}
	return &ElementTemplate{mesh: m, shapeType: shapeType}, nil
}

// ShapeType returns the template's element shape.
func (t *ElementTemplate) ShapeType() shape.Type { return t.shapeType }

// SetNumberOfNodes declares how many local nodes stamped elements carry.
func (t *ElementTemplate) SetNumberOfNodes(count int) error {
	if count < 0 {
		return fmt.Errorf("%w: negative local node count %d", status.ErrArgument, count)
	}
	t.localNodeCount = count
	return nil
}

// NumberOfNodes returns the declared local node count.
func (t *ElementTemplate) NumberOfNodes() int { return t.localNodeCount }

// DefineField defines a field component's interpolation on the template.
// component is 1-based; -1 defines every component identically.
func (t *ElementTemplate) DefineField(field *Field, component int, efc *ElementFieldComponent) error {
	if field == nil || t.mesh.region.fields[field.name] != field {
		return fmt.Errorf("%w: field not owned by region", status.ErrArgument)
	}
	if efc == nil {
		return fmt.Errorf("%w: nil element field component", status.ErrArgument)
	}
	if err := efc.validate(t.localNodeCount); err != nil {
		return fmt.Errorf("field %q: %w", field.name, err)
	}
	if efc.Basis.Dimension() != t.mesh.dimension {
		return fmt.Errorf("%w: field %q basis is %dD, mesh is %dD", status.ErrArgument,
			field.name, efc.Basis.Dimension(), t.mesh.dimension)
	}
	var def *elementFieldDefinition
	for _, d := range t.definitions {
		if d.field == field {
			def = d
			break
		}
	}
	if def == nil {
		def = &elementFieldDefinition{field: field, components: make([]*ElementFieldComponent, field.componentCount)}
		t.definitions = append(t.definitions, def)
	}
	if component == -1 {
		for c := range def.components {
			def.components[c] = efc
		}
		return nil
	}
	if component < 1 || component > field.componentCount {
		return fmt.Errorf("%w: field %q component %d of %d", status.ErrArgument,
			field.name, component, field.componentCount)
	}
	def.components[component-1] = efc
	return nil
}

// CreateElementFromTemplate stamps a new element: shape from the template,
// shared field info, and local-to-global connectivity resolved from node
// identifiers.
func (m *Mesh) CreateElementFromTemplate(identifier int, t *ElementTemplate, nodeIdentifiers []int) (int, error) {
	if t == nil || t.mesh != m {
		return labels.InvalidIndex, fmt.Errorf("%w: template not owned by %s", status.ErrArgument, m.Name())
	}
	if len(nodeIdentifiers) != t.localNodeCount {
		return labels.InvalidIndex, fmt.Errorf("%w: %d node identifiers for template with %d local nodes",
			status.ErrArgument, len(nodeIdentifiers), t.localNodeCount)
	}
	for _, def := range t.definitions {
		for c, efc := range def.components {
			if efc == nil {
				return labels.InvalidIndex, fmt.Errorf("%w: field %q component %d undefined on template",
					status.ErrArgument, def.field.name, c+1)
			}
		}
	}
	nodeIndexes := make([]int, len(nodeIdentifiers))
	for i, id := range nodeIdentifiers {
		nodeIndex := m.region.nodes.FindNodeByIdentifier(id)
		if nodeIndex == labels.InvalidIndex {
			return labels.InvalidIndex, fmt.Errorf("%w: node %d", status.ErrNotFound, id)
		}
		nodeIndexes[i] = nodeIndex
	}
	index, err := m.CreateElement(identifier, t.shapeType)
	if err != nil {
		return labels.InvalidIndex, err
	}
	if len(nodeIndexes) > 0 {
		if err := m.SetElementNodes(index, nodeIndexes); err != nil {
			m.RemoveElement(index)
			return labels.InvalidIndex, err
		}
	}
	if len(t.definitions) > 0 {
		info := m.findOrCreateFieldInfo(&elementFieldInfo{
			localNodeCount: t.localNodeCount,
			definitions:    t.definitions,
		})
		for len(m.elementFieldInfo) <= index {
			m.elementFieldInfo = append(m.elementFieldInfo, nil)
		}
		m.elementFieldInfo[index] = info
	}
	return index, nil
}

// ElementFieldComponents returns the field's per-component interpolation
// on the element, or nil when the field is not defined there. The returned
// components are shared descriptors: equal templates yield identical
// pointers.
func (m *Mesh) ElementFieldComponents(index int, field *Field) []*ElementFieldComponent {
	if index < 0 || index >= len(m.elementFieldInfo) || m.elementFieldInfo[index] == nil {
		return nil
	}
	for _, def := range m.elementFieldInfo[index].definitions {
		if def.field == field {
			return def.components
		}
	}
	return nil
}

// ElementFields returns the fields defined on the element.
func (m *Mesh) ElementFields(index int) []*Field {
	if index < 0 || index >= len(m.elementFieldInfo) || m.elementFieldInfo[index] == nil {
		return nil
	}
	fields := make([]*Field, 0, len(m.elementFieldInfo[index].definitions))
	for _, def := range m.elementFieldInfo[index].definitions {
		fields = append(fields, def.field)
	}
	return fields
}

// ElementLocalNodeCount returns the number of local nodes on the element's
// field info, or the stored connectivity length when no fields are
// defined.
func (m *Mesh) ElementLocalNodeCount(index int) int {
	if index >= 0 && index < len(m.elementFieldInfo) && m.elementFieldInfo[index] != nil {
		return m.elementFieldInfo[index].localNodeCount
	}
	return len(m.ElementNodes(index))
}
