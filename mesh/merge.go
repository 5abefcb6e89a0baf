package mesh

import (
	"fmt"
	"log/slog"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// CanMerge checks whether source's elements can merge into m without
// conflicts: same-identifier elements must agree on shape, and faces
// already linked on both sides must resolve to the same face identifiers.
// Every conflict is logged; the first is returned. No state is modified.
func (m *Mesh) CanMerge(source *Mesh) error {
	if source.dimension != m.dimension {
		return fmt.Errorf("%w: merging %dD mesh into %dD", status.ErrArgument, source.dimension, m.dimension)
	}
	var firstErr error
	report := func(err error) {
		slog.Warn("Mesh.CanMerge conflict", "mesh", m.Name(), "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	it := source.labels.Iterator()
	for srcIndex := it.Next(); srcIndex != labels.InvalidIndex; srcIndex = it.Next() {
		identifier := source.labels.Identifier(srcIndex)
		index := m.labels.FindLabelByIdentifier(identifier)
		if index == labels.InvalidIndex {
			continue
		}
		srcShape := source.ElementShape(srcIndex)
		shapeType := m.ElementShape(index)
		if srcShape != shape.Invalid && shapeType != shape.Invalid && srcShape != shapeType {
			report(fmt.Errorf("%w: element %d has shape %v, source has %v",
				status.ErrGeneral, identifier, shapeType, srcShape))
			continue
		}
		if srcShape == shape.Invalid || source.faceMesh == nil || m.faceMesh == nil {
			continue
		}
		for f := 0; f < srcShape.FaceCount(); f++ {
			srcFace := source.ElementFace(srcIndex, f)
			face := m.ElementFace(index, f)
			if srcFace == labels.InvalidIndex || face == labels.InvalidIndex {
				continue
			}
			srcFaceID := source.faceMesh.labels.Identifier(srcFace)
			faceID := m.faceMesh.labels.Identifier(face)
			if srcFaceID != faceID {
				report(fmt.Errorf("%w: element %d face %d is %d, source has %d",
					status.ErrGeneral, identifier, f, faceID, srcFaceID))
			}
		}
	}
	return firstErr
}

// mergeFieldInfo translates a source element's field descriptor into this
// mesh: fields resolved by name in the target region, scale factor sets by
// name in the target mesh. Returns nil when the source element has none.
func (m *Mesh) mergeFieldInfo(source *Mesh, srcIndex int) (*elementFieldInfo, error) {
	if srcIndex >= len(source.elementFieldInfo) || source.elementFieldInfo[srcIndex] == nil {
		return nil, nil
	}
	srcInfo := source.elementFieldInfo[srcIndex]
	candidate := &elementFieldInfo{localNodeCount: srcInfo.localNodeCount}
	for _, srcDef := range srcInfo.definitions {
		field := m.region.FieldByName(srcDef.field.name)
		if field == nil {
			return nil, fmt.Errorf("%w: field %q", status.ErrNotFound, srcDef.field.name)
		}
		if field.componentCount != srcDef.field.componentCount {
			return nil, fmt.Errorf("%w: field %q has %d components, source has %d",
				status.ErrGeneral, field.name, field.componentCount, srcDef.field.componentCount)
		}
		def := &elementFieldDefinition{field: field, components: make([]*ElementFieldComponent, len(srcDef.components))}
		for c, srcEFC := range srcDef.components {
			efc := &ElementFieldComponent{
				Basis:       srcEFC.Basis,
				LocalNodes:  srcEFC.LocalNodes,
				Derivatives: srcEFC.Derivatives,
				Versions:    srcEFC.Versions,
			}
			if srcEFC.ScaleFactorSet != nil {
				set, err := m.FindOrCreateScaleFactorSet(srcEFC.ScaleFactorSet.name, srcEFC.ScaleFactorSet.count)
				if err != nil {
					return nil, err
				}
				efc.ScaleFactorSet = set
				efc.ScaleFactorIndexes = srcEFC.ScaleFactorIndexes
			}
			def.components[c] = efc
		}
		candidate.definitions = append(candidate.definitions, def)
	}
	return m.findOrCreateFieldInfo(candidate), nil
}

// mergeElement merges one source element into m. Any failure leaves m as
// if the element was never attempted: a created target element is removed
// again.
func (m *Mesh) mergeElement(source *Mesh, srcIndex int) error {
	identifier := source.labels.Identifier(srcIndex)
	created := m.labels.FindLabelByIdentifier(identifier) == labels.InvalidIndex
	index, err := m.GetOrCreateElementWithIdentifier(identifier, source.ElementShape(srcIndex))
	if err != nil {
		return err
	}
	fail := func(err error) error {
		if created {
			m.RemoveElement(index)
		}
		return fmt.Errorf("element %d: %w", identifier, err)
	}

	if srcNodes := source.ElementNodes(srcIndex); len(srcNodes) > 0 {
		nodeIndexes := make([]int, len(srcNodes))
		for i, srcNode := range srcNodes {
			nodeID := source.region.nodes.labels.Identifier(srcNode)
			nodeIndexes[i] = m.region.nodes.FindNodeByIdentifier(nodeID)
			if nodeIndexes[i] == labels.InvalidIndex {
				return fail(fmt.Errorf("%w: node %d", status.ErrNotFound, nodeID))
			}
		}
		if err := m.SetElementNodes(index, nodeIndexes); err != nil {
			return fail(err)
		}
	}

	info, err := m.mergeFieldInfo(source, srcIndex)
	if err != nil {
		return fail(err)
	}
	if info != nil {
		for len(m.elementFieldInfo) <= index {
			m.elementFieldInfo = append(m.elementFieldInfo, nil)
		}
		m.elementFieldInfo[index] = info
	}

	for _, srcSet := range source.ScaleFactorSets() {
		if srcSet.values.ValueCount() == 0 {
			continue
		}
		if _, ok := srcSet.values.Value([]int{srcIndex, 0}); !ok {
			continue
		}
		set, err := m.FindOrCreateScaleFactorSet(srcSet.name, srcSet.count)
		if err != nil {
			return fail(err)
		}
		if err := m.SetElementScaleFactors(index, set, source.ElementScaleFactors(srcIndex, srcSet)); err != nil {
			return fail(err)
		}
	}

	// Faces merge ascending by dimension, so source face elements already
	// exist here by identifier.
	srcShape := source.ElementShape(srcIndex)
	if srcShape != shape.Invalid && source.faceMesh != nil && m.faceMesh != nil {
		for f := 0; f < srcShape.FaceCount(); f++ {
			srcFace := source.ElementFace(srcIndex, f)
			if srcFace == labels.InvalidIndex {
				continue
			}
			faceID := source.faceMesh.labels.Identifier(srcFace)
			faceIndex := m.faceMesh.FindElementByIdentifier(faceID)
			if faceIndex == labels.InvalidIndex {
				return fail(fmt.Errorf("%w: face element %d", status.ErrNotFound, faceID))
			}
			if err := m.SetElementFace(index, f, faceIndex); err != nil {
				return fail(err)
			}
		}
	}
	return nil
}

// Merge merges source's elements into m by identifier. Elements merge
// atomically: a failing element is rolled back and reported while earlier
// elements stay merged. Nodes must have been merged into the region first.
func (m *Mesh) Merge(source *Mesh) error {
	if source.dimension != m.dimension {
		return fmt.Errorf("%w: merging %dD mesh into %dD", status.ErrArgument, source.dimension, m.dimension)
	}
	it := source.labels.Iterator()
	for srcIndex := it.Next(); srcIndex != labels.InvalidIndex; srcIndex = it.Next() {
		if err := m.mergeElement(source, srcIndex); err != nil {
			return fmt.Errorf("merge into %s: %w", m.Name(), err)
		}
	}
	return nil
}
