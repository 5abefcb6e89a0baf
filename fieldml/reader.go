package fieldml

import (
	"fmt"
	"strings"

	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/mesh"
	"github.com/notargets/femesh/shape"
	"github.com/notargets/femesh/status"
)

// Read rebuilds a region from a document produced by Write: nodes,
// elements with shapes, local-to-global connectivity, element field
// interpolation and nodal parameters. Foreign FieldML constructs outside
// the written subset fail with status.ErrNotImplemented.
func Read(doc *Document) (*mesh.Region, error) {
	if doc == nil || doc.Region == nil {
		return nil, fmt.Errorf("%w: document has no region", status.ErrArgument)
	}
	r := &reader{doc: doc.Region, region: mesh.NewRegion(doc.Region.Name)}
	if err := r.readNodes(); err != nil {
		return nil, err
	}
	if err := r.readFields(); err != nil {
		return nil, err
	}
	if err := r.readMesh(); err != nil {
		return nil, err
	}
	if coordinates := r.region.FieldByName("coordinates"); coordinates != nil {
		if err := r.region.SetCoordinateField(coordinates); err != nil {
			return nil, err
		}
	}
	return r.region, nil
}

type reader struct {
	doc    *DocumentRegion
	region *mesh.Region
}

// ensembleIdentifiers expands an ensemble's members into identifiers in
// document order.
func ensembleIdentifiers(members EnsembleMembers) ([]int, error) {
	var ids []int
	for _, r := range members.Ranges {
		if r.Max < r.Min {
			return nil, fmt.Errorf("%w: member range [%d,%d]", status.ErrGeneral, r.Min, r.Max)
		}
		for id := r.Min; id <= r.Max; id++ {
			ids = append(ids, id)
		}
	}
	if members.List != "" {
		listed, err := parseInts(&ArrayDataSource{
			Size: fmt.Sprintf("%d", len(strings.Fields(members.List))),
			Data: members.List,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, listed...)
	}
	return ids, nil
}

func (r *reader) readNodes() error {
	nodes := r.doc.FindEnsemble(nodesEnsemble)
	if nodes == nil {
		return fmt.Errorf("%w: ensemble %q", status.ErrNotFound, nodesEnsemble)
	}
	ids, err := ensembleIdentifiers(nodes.Members)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := r.region.Nodeset().CreateNode(id); err != nil {
			return err
		}
	}
	return nil
}

// readFields creates every field and loads its nodal parameters.
func (r *reader) readFields() error {
	for _, ct := range r.doc.ContinuousTypes {
		if !strings.HasSuffix(ct.Name, ".type") {
			continue
		}
		name := strings.TrimSuffix(ct.Name, ".type")
		componentCount := 1
		if ct.Components != nil {
			componentCount = ct.Components.Count
		}
		f, err := r.region.CreateField(name, componentCount)
		if err != nil {
			return err
		}
		if err := r.readFieldParameters(f); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) readFieldParameters(f *mesh.Field) error {
	p := r.doc.FindParameters(f.Name() + ".parameters")
	if p == nil {
		return nil
	}
	nodes := r.region.Nodeset()
	switch {
	case p.DOK != nil:
		keySource := r.doc.FindSource(p.DOK.KeyData)
		valueSource := r.doc.FindSource(p.DOK.ValueData)
		if keySource == nil || valueSource == nil {
			return fmt.Errorf("%w: data for %q", status.ErrNotFound, p.Name)
		}
		keys, err := parseInts(keySource)
		if err != nil {
			return err
		}
		values, err := parseDoubles(valueSource)
		if err != nil {
			return err
		}
		records := len(keys) / 3
		if records*3 != len(keys) || records*f.ComponentCount() != len(values) {
			return fmt.Errorf("%w: %q key/value shape mismatch", status.ErrGeneral, p.Name)
		}
		for record := 0; record < records; record++ {
			nodeIndex := nodes.FindNodeByIdentifier(keys[record*3])
			if nodeIndex == labels.InvalidIndex {
				return fmt.Errorf("%w: node %d", status.ErrNotFound, keys[record*3])
			}
			derivative, version := keys[record*3+1], keys[record*3+2]
			for c := 1; c <= f.ComponentCount(); c++ {
				value := values[record*f.ComponentCount()+c-1]
				if err := f.SetNodeParameter(nodeIndex, derivative, version, c, value); err != nil {
					return err
				}
			}
		}
	case p.Dense != nil:
		source := r.doc.FindSource(p.Dense.Data)
		if source == nil {
			return fmt.Errorf("%w: data for %q", status.ErrNotFound, p.Name)
		}
		values, err := parseDoubles(source)
		if err != nil {
			return err
		}
		sizes, err := parseSizes(source.Size)
		if err != nil {
			return err
		}
		if len(sizes) != 4 {
			return fmt.Errorf("%w: %q dense rank %d", status.ErrNotImplemented, p.Name, len(sizes))
		}
		derivativeCount, versionCount := sizes[1], sizes[2]
		pos := 0
		it := nodes.Labels().Iterator()
		for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
			for d := 1; d <= derivativeCount; d++ {
				for v := 1; v <= versionCount; v++ {
					for c := 1; c <= f.ComponentCount(); c++ {
						if err := f.SetNodeParameter(index, d, v, c, values[pos]); err != nil {
							return err
						}
						pos++
					}
				}
			}
		}
	default:
		return fmt.Errorf("%w: parameter evaluator %q without array data", status.ErrNotImplemented, p.Name)
	}
	return nil
}

// elementInterpolation is one field component's reconstructed template on
// one element.
type elementInterpolation struct {
	field     *mesh.Field
	component int
	template  *readTemplate
	nodeIDs   []int
}

// readTemplate is a parsed reference evaluator.
type readTemplate struct {
	name         string
	basisName    string
	connectivity map[int][]int // element identifier → node identifiers
	derivatives  []int
	versions     []int
}

func (r *reader) readMesh() error {
	if len(r.doc.MeshTypes) == 0 {
		return fmt.Errorf("%w: document has no mesh type", status.ErrNotFound)
	}
	if len(r.doc.MeshTypes) > 1 {
		return fmt.Errorf("%w: multiple mesh types", status.ErrNotImplemented)
	}
	mt := &r.doc.MeshTypes[0]
	m, err := r.region.Mesh(mt.Chart.Components.Count)
	if err != nil {
		return err
	}
	elementIDs, err := ensembleIdentifiers(mt.Elements.Members)
	if err != nil {
		return err
	}
	shapes, err := r.elementShapes(mt, elementIDs)
	if err != nil {
		return err
	}
	templates, err := r.readTemplates()
	if err != nil {
		return err
	}
	assignments, err := r.fieldAssignments(templates, elementIDs)
	if err != nil {
		return err
	}

	for _, id := range elementIDs {
		defs := assignments[id]
		if len(defs) == 0 {
			if _, err := m.CreateElement(id, shapes[id]); err != nil {
				return err
			}
			continue
		}
		if err := r.createDefinedElement(m, id, shapes[id], defs); err != nil {
			return err
		}
	}
	return nil
}

// createDefinedElement builds an element template merging every field
// component's connectivity into one local node list and stamps the
// element.
func (r *reader) createDefinedElement(m *mesh.Mesh, id int, shapeType shape.Type, defs []*elementInterpolation) error {
	var merged []int
	position := make(map[int]int)
	localNodes := make([][]int, len(defs))
	for i, def := range defs {
		localNodes[i] = make([]int, len(def.nodeIDs))
		for n, nodeID := range def.nodeIDs {
			pos, ok := position[nodeID]
			if !ok {
				pos = len(merged)
				position[nodeID] = pos
				merged = append(merged, nodeID)
			}
			localNodes[i][n] = pos
		}
	}
	template, err := m.CreateElementTemplate(shapeType)
	if err != nil {
		return err
	}
	if err := template.SetNumberOfNodes(len(merged)); err != nil {
		return err
	}
	for i, def := range defs {
		b, err := basisForEvaluator(def.template.basisName)
		if err != nil {
			return err
		}
		efc := &mesh.ElementFieldComponent{
			Basis:       b,
			LocalNodes:  localNodes[i],
			Derivatives: def.template.derivatives,
			Versions:    def.template.versions,
		}
		if err := template.DefineField(def.field, def.component, efc); err != nil {
			return err
		}
	}
	_, err = m.CreateElementFromTemplate(id, template, merged)
	return err
}

// elementShapes resolves every element's shape from the mesh type.
func (r *reader) elementShapes(mt *MeshType, elementIDs []int) (map[int]shape.Type, error) {
	shapes := make(map[int]shape.Type, len(elementIDs))
	if mt.Shapes.DefaultShape != "" {
		t, err := shapeForName(mt.Shapes.DefaultShape)
		if err != nil {
			return nil, err
		}
		for _, id := range elementIDs {
			shapes[id] = t
		}
		return shapes, nil
	}
	p := r.doc.FindParameters(mt.Shapes.Evaluator)
	if p == nil || p.Dense == nil {
		return nil, fmt.Errorf("%w: shape evaluator %q", status.ErrNotFound, mt.Shapes.Evaluator)
	}
	source := r.doc.FindSource(p.Dense.Data)
	if source == nil {
		return nil, fmt.Errorf("%w: data for %q", status.ErrNotFound, p.Name)
	}
	ids, err := parseInts(source)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(elementIDs) {
		return nil, fmt.Errorf("%w: %d shape ids for %d elements", status.ErrGeneral, len(ids), len(elementIDs))
	}
	byID := make(map[int]shape.Type, len(mt.Shapes.IDs))
	for _, entry := range mt.Shapes.IDs {
		t, err := shapeForName(entry.Shape)
		if err != nil {
			return nil, err
		}
		byID[entry.ID] = t
	}
	for i, id := range elementIDs {
		t, ok := byID[ids[i]]
		if !ok {
			return nil, fmt.Errorf("%w: shape id %d", status.ErrNotFound, ids[i])
		}
		shapes[id] = t
	}
	return shapes, nil
}

// readTemplates parses every reference evaluator with its connectivity and
// DOF overrides.
func (r *reader) readTemplates() (map[string]*readTemplate, error) {
	templates := make(map[string]*readTemplate, len(r.doc.ReferenceEvaluators))
	for i := range r.doc.ReferenceEvaluators {
		ref := &r.doc.ReferenceEvaluators[i]
		t := &readTemplate{name: ref.Name, basisName: ref.Evaluator}
		for _, b := range ref.Bindings {
			switch b.Argument {
			case "connectivity":
				conn, err := r.readConnectivity(b.Source)
				if err != nil {
					return nil, err
				}
				t.connectivity = conn
			case "derivatives":
				values, err := r.readDenseInts(b.Source)
				if err != nil {
					return nil, err
				}
				t.derivatives = values
			case "versions":
				values, err := r.readDenseInts(b.Source)
				if err != nil {
					return nil, err
				}
				t.versions = values
			}
		}
		if t.connectivity == nil {
			return nil, fmt.Errorf("%w: template %q has no connectivity", status.ErrNotImplemented, ref.Name)
		}
		templates[ref.Name] = t
	}
	return templates, nil
}

func (r *reader) readDenseInts(name string) ([]int, error) {
	p := r.doc.FindParameters(name)
	if p == nil || p.Dense == nil {
		return nil, fmt.Errorf("%w: parameter evaluator %q", status.ErrNotFound, name)
	}
	source := r.doc.FindSource(p.Dense.Data)
	if source == nil {
		return nil, fmt.Errorf("%w: data for %q", status.ErrNotFound, name)
	}
	return parseInts(source)
}

// readConnectivity parses a connectivity evaluator into per-element node
// identifier rows.
func (r *reader) readConnectivity(name string) (map[int][]int, error) {
	p := r.doc.FindParameters(name)
	if p == nil {
		return nil, fmt.Errorf("%w: connectivity %q", status.ErrNotFound, name)
	}
	rows := make(map[int][]int)
	if p.DOK != nil {
		keySource := r.doc.FindSource(p.DOK.KeyData)
		valueSource := r.doc.FindSource(p.DOK.ValueData)
		if keySource == nil || valueSource == nil {
			return nil, fmt.Errorf("%w: data for %q", status.ErrNotFound, name)
		}
		keys, err := parseInts(keySource)
		if err != nil {
			return nil, err
		}
		values, err := parseInts(valueSource)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return rows, nil
		}
		width := len(values) / len(keys)
		for record, id := range keys {
			rows[id] = values[record*width : (record+1)*width]
		}
		return rows, nil
	}
	if p.Dense == nil {
		return nil, fmt.Errorf("%w: connectivity %q without array data", status.ErrNotImplemented, name)
	}
	source := r.doc.FindSource(p.Dense.Data)
	if source == nil {
		return nil, fmt.Errorf("%w: data for %q", status.ErrNotFound, name)
	}
	values, err := parseInts(source)
	if err != nil {
		return nil, err
	}
	sizes, err := parseSizes(source.Size)
	if err != nil {
		return nil, err
	}
	if len(sizes) != 2 {
		return nil, fmt.Errorf("%w: connectivity %q rank %d", status.ErrNotImplemented, name, len(sizes))
	}
	elementIDs, err := ensembleIdentifiers(r.doc.MeshTypes[0].Elements.Members)
	if err != nil {
		return nil, err
	}
	if sizes[0] != len(elementIDs) {
		return nil, fmt.Errorf("%w: connectivity %q has %d rows for %d elements",
			status.ErrGeneral, name, sizes[0], len(elementIDs))
	}
	for i, id := range elementIDs {
		rows[id] = values[i*sizes[1] : (i+1)*sizes[1]]
	}
	return rows, nil
}

// fieldAssignments resolves every field component's piecewise map into
// per-element interpolation definitions.
func (r *reader) fieldAssignments(templates map[string]*readTemplate, elementIDs []int) (map[int][]*elementInterpolation, error) {
	assignments := make(map[int][]*elementInterpolation)
	for _, f := range r.region.Fields() {
		piecewiseNames, err := r.componentPiecewiseNames(f)
		if err != nil {
			return nil, err
		}
		for c, pname := range piecewiseNames {
			p := r.doc.FindPiecewise(pname)
			if p == nil {
				return nil, fmt.Errorf("%w: piecewise evaluator %q", status.ErrNotFound, pname)
			}
			templateFor := func(id int) string {
				for _, e := range p.Evaluators {
					if e.Value == id {
						return e.Evaluator
					}
				}
				return p.Default
			}
			for _, id := range elementIDs {
				tname := templateFor(id)
				if tname == "" {
					continue
				}
				t, ok := templates[tname]
				if !ok {
					return nil, fmt.Errorf("%w: template %q", status.ErrNotFound, tname)
				}
				nodeIDs, ok := t.connectivity[id]
				if !ok {
					return nil, fmt.Errorf("%w: connectivity row for element %d in template %q",
						status.ErrNotFound, id, tname)
				}
				assignments[id] = append(assignments[id], &elementInterpolation{
					field:     f,
					component: c + 1,
					template:  t,
					nodeIDs:   nodeIDs,
				})
			}
		}
	}
	return assignments, nil
}

// componentPiecewiseNames returns each component's piecewise evaluator
// name from the field's top-level evaluator.
func (r *reader) componentPiecewiseNames(f *mesh.Field) ([]string, error) {
	names := make([]string, f.ComponentCount())
	if f.ComponentCount() == 1 {
		if r.doc.FindPiecewise(f.Name()) == nil {
			return nil, fmt.Errorf("%w: evaluator %q", status.ErrNotFound, f.Name())
		}
		names[0] = f.Name()
		return names, nil
	}
	for i := range r.doc.AggregateEvaluators {
		a := &r.doc.AggregateEvaluators[i]
		if a.Name != f.Name() {
			continue
		}
		for c := range names {
			names[c] = a.Default
		}
		for _, e := range a.Evaluators {
			if e.Value < 1 || e.Value > len(names) {
				return nil, fmt.Errorf("%w: component %d of field %q", status.ErrArgument, e.Value, f.Name())
			}
			names[e.Value-1] = e.Evaluator
		}
		for c, name := range names {
			if name == "" {
				return nil, fmt.Errorf("%w: field %q component %d evaluator", status.ErrNotFound, f.Name(), c+1)
			}
		}
		return names, nil
	}
	return nil, fmt.Errorf("%w: aggregate evaluator %q", status.ErrNotFound, f.Name())
}
