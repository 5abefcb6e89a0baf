package mesh

import (
	"fmt"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/status"
)

// Nodeset owns the region's node labels. Nodes are the implicit
// dimension-0 objects referenced by element local-to-global connectivity
// and field nodal parameters.
type Nodeset struct {
	region    *Region
	labels    *labels.Set
	changeLog *labels.ChangeLog
}

func newNodeset(region *Region, name string) *Nodeset {
	return &Nodeset{
		region:    region,
		labels:    labels.NewSet(name),
		changeLog: labels.NewChangeLog(),
	}
}

// Name returns the nodeset's name.
func (ns *Nodeset) Name() string { return ns.labels.Name() }

// Size returns the number of nodes.
func (ns *Nodeset) Size() int { return ns.labels.Size() }

// Labels exposes the underlying label set for map construction and
// serialization.
func (ns *Nodeset) Labels() *labels.Set { return ns.labels }

// CreateNode creates a node with the given identifier (negative for
// automatic).
func (ns *Nodeset) CreateNode(identifier int) (int, error) {
	index, err := ns.labels.CreateLabel(identifier)
	if err != nil {
		return labels.InvalidIndex, err
	}
	ns.changeLog.Record(index, labels.ChangeAdd)
	return index, nil
}

// GetOrCreateNodeWithIdentifier finds the node with identifier, creating
// it if absent.
func (ns *Nodeset) GetOrCreateNodeWithIdentifier(identifier int) (int, error) {
	if index := ns.labels.FindLabelByIdentifier(identifier); index != labels.InvalidIndex {
		return index, nil
	}
	return ns.CreateNode(identifier)
}

// FindNodeByIdentifier returns the node index for identifier, or
// labels.InvalidIndex.
func (ns *Nodeset) FindNodeByIdentifier(identifier int) int {
	return ns.labels.FindLabelByIdentifier(identifier)
}

// NodeIdentifier returns the identifier at node index.
func (ns *Nodeset) NodeIdentifier(index int) int { return ns.labels.Identifier(index) }

// RemoveNode removes a node. Fails with status.ErrArgument while elements
// still reference it through any mesh's connectivity.
func (ns *Nodeset) RemoveNode(index int) error {
	for d := 1; d <= MaximumDimension; d++ {
		m := ns.region.meshes[d]
		if m == nil {
			continue
		}
		if m.usesNode(index) {
			return fmt.Errorf("%w: node %d still referenced by %s", status.ErrArgument,
				ns.labels.Identifier(index), m.Name())
		}
	}
	if err := ns.labels.RemoveLabel(index); err != nil {
		return err
	}
	ns.changeLog.Record(index, labels.ChangeRemove)
	return nil
}

// DestroyAllNodes removes every node, ignoring element references. Only
// safe during whole-region teardown.
func (ns *Nodeset) DestroyAllNodes() {
	ns.labels.Clear()
	ns.changeLog.SetAllChange(labels.ChangeRemove)
}

// Merge copies source's nodes into ns by identifier, then merges each
// same-named field's nodal parameters. Nodes already present are reused.
func (ns *Nodeset) Merge(source *Nodeset) error {
	it := source.labels.Iterator()
	for srcIndex := it.Next(); srcIndex != labels.InvalidIndex; srcIndex = it.Next() {
		identifier := source.labels.Identifier(srcIndex)
		index, err := ns.GetOrCreateNodeWithIdentifier(identifier)
		if err != nil {
			return err
		}
		for _, srcField := range source.region.Fields() {
			targetField := ns.region.FieldByName(srcField.name)
			if targetField == nil {
				targetField, err = ns.region.CreateField(srcField.name, srcField.componentCount)
				if err != nil {
					return err
				}
				if srcField.coordinate {
					if err := ns.region.SetCoordinateField(targetField); err != nil {
						return err
					}
				}
			} else if targetField.componentCount != srcField.componentCount {
				return fmt.Errorf("%w: field %q has %d components, source has %d",
					status.ErrGeneral, srcField.name, targetField.componentCount, srcField.componentCount)
			}
			if err := targetField.mergeNodeParameters(index, srcField, srcIndex); err != nil {
				return err
			}
		}
		ns.changeLog.Record(index, labels.ChangeDefinition)
	}
	return nil
}
