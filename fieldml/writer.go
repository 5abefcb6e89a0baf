package fieldml

import (
	"fmt"
	"log/slog"

	"github.com/notargets/femesh/basis"
	"github.com/notargets/femesh/labels"
	"github.com/notargets/femesh/mesh"
	"github.com/notargets/femesh/status"
)

// Fixed ensemble and argument names shared by writer and reader.
const (
	nodesEnsemble       = "nodes"
	derivativesEnsemble = "node_derivatives"
	versionsEnsemble    = "node_versions"
	realType            = "real.1d"
)

func argumentName(typeName string) string { return typeName + ".argument" }

// Writer serializes one region's highest-dimension mesh and every field
// defined on it into a FieldML document. A writer is single-use.
type Writer struct {
	region *mesh.Region
	mesh   *mesh.Mesh
	doc    *DocumentRegion
	cache  *importCache

	// templates memoizes per-component descriptors by the mesh's shared
	// component object, so elements stamped from equal element templates
	// resolve to the same serialization template without re-deriving it.
	templates    map[*mesh.ElementFieldComponent]*ElementFieldComponentTemplate
	allTemplates []*ElementFieldComponentTemplate

	// fieldTemplates[field][component] assigned in pass 2.
	fieldTemplates map[string][]*FieldComponentTemplate

	// fields selected for output, in the region's field order.
	fields []*mesh.Field
}

// Write serializes the region to a document. Only the highest-dimension
// non-empty mesh is written.
func Write(region *mesh.Region) (*Document, error) {
	return WriteFields(region, nil)
}

// WriteFields serializes only the named fields of the region. A nil name
// list selects every field. Unknown names fail with ErrNotFound.
func WriteFields(region *mesh.Region, fieldNames []string) (*Document, error) {
	m := region.HighestDimensionMesh()
	if m == nil {
		return nil, fmt.Errorf("%w: region %q has no elements", status.ErrArgument, region.Name())
	}
	fields := region.Fields()
	if fieldNames != nil {
		selected := make(map[string]bool, len(fieldNames))
		for _, name := range fieldNames {
			if region.FieldByName(name) == nil {
				return nil, fmt.Errorf("%w: field %q", status.ErrNotFound, name)
			}
			selected[name] = true
		}
		kept := fields[:0:0]
		for _, f := range fields {
			if selected[f.Name()] {
				kept = append(kept, f)
			}
		}
		fields = kept
	}
	w := &Writer{
		region:         region,
		mesh:           m,
		doc:            &DocumentRegion{Name: region.Name()},
		templates:      make(map[*mesh.ElementFieldComponent]*ElementFieldComponentTemplate),
		fieldTemplates: make(map[string][]*FieldComponentTemplate),
		fields:         fields,
	}
	w.cache = newImportCache(w.doc)
	w.cache.use(realType)

	if err := w.writeGlobalEnsembles(); err != nil {
		return nil, err
	}
	if err := w.writeMeshType(); err != nil {
		return nil, err
	}
	if err := w.resolveTemplates(); err != nil {
		return nil, err
	}
	if err := w.assignFieldTemplates(); err != nil {
		return nil, err
	}
	if err := w.emitTemplates(); err != nil {
		return nil, err
	}
	for _, f := range w.fields {
		if err := w.emitField(f); err != nil {
			return nil, err
		}
	}
	return &Document{Version: "0.5", Region: w.doc}, nil
}

// ensembleMembers encodes a label set compactly: ranges when few, a list
// otherwise.
func ensembleMembers(s *labels.Set) EnsembleMembers {
	ranges := s.IdentifierRanges()
	if len(ranges)*2 <= s.Size() {
		members := make([]MemberRange, len(ranges))
		for i, r := range ranges {
			members[i] = MemberRange{Min: r.First, Max: r.Last}
		}
		return EnsembleMembers{Ranges: members}
	}
	list := ""
	it := s.Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		if list != "" {
			list += " "
		}
		list += fmt.Sprintf("%d", s.Identifier(index))
	}
	return EnsembleMembers{List: list}
}

func contiguousMembers(min, max int) EnsembleMembers {
	return EnsembleMembers{Ranges: []MemberRange{{Min: min, Max: max}}}
}

func (w *Writer) addEnsemble(name string, members EnsembleMembers) {
	w.doc.EnsembleTypes = append(w.doc.EnsembleTypes, EnsembleType{Name: name, Members: members})
	w.doc.ArgumentEvaluators = append(w.doc.ArgumentEvaluators,
		ArgumentEvaluator{Name: argumentName(name), ValueType: name})
}

func (w *Writer) writeGlobalEnsembles() error {
	nodes := w.region.Nodeset()
	if nodes.Size() == 0 {
		return fmt.Errorf("%w: region %q has no nodes", status.ErrArgument, w.region.Name())
	}
	w.addEnsemble(nodesEnsemble, ensembleMembers(nodes.Labels()))
	w.addEnsemble(derivativesEnsemble, contiguousMembers(1, basis.DerivativeCount))
	maxVersions := 1
	for _, f := range w.fields {
		if f.VersionCount() > maxVersions {
			maxVersions = f.VersionCount()
		}
	}
	w.addEnsemble(versionsEnsemble, contiguousMembers(1, maxVersions))
	return nil
}

func (w *Writer) writeMeshType() error {
	m := w.mesh
	name := m.Name()
	xiComponents := name + ".xi.components"
	w.addEnsemble(xiComponents, contiguousMembers(1, m.Dimension()))

	shapes, err := w.meshShapes()
	if err != nil {
		return err
	}
	w.doc.MeshTypes = append(w.doc.MeshTypes, MeshType{
		Name:     name,
		Elements: MeshElements{Name: name + ".elements", Members: ensembleMembers(m.Labels())},
		Chart:    MeshChart{Name: "xi", Components: TypeComponents{Name: xiComponents, Count: m.Dimension()}},
		Shapes:   shapes,
	})
	w.doc.ArgumentEvaluators = append(w.doc.ArgumentEvaluators,
		ArgumentEvaluator{Name: argumentName(name), ValueType: name},
		ArgumentEvaluator{Name: argumentName(name) + ".elements", ValueType: name + ".elements"},
		ArgumentEvaluator{Name: argumentName(name) + ".xi", ValueType: "xi"},
	)
	return nil
}

// meshShapes emits the default shape for a uniform mesh, or a shape-id
// ensemble plus an element→shape-id parameter evaluator.
func (w *Writer) meshShapes() (MeshShapes, error) {
	m := w.mesh
	distinct := make(map[string]int)
	var order []string
	elementShapes := make([]int, 0, m.ElementCount())
	it := m.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		shapeType := m.ElementShape(index)
		name, ok := shapeNames[shapeType]
		if !ok {
			return MeshShapes{}, fmt.Errorf("%w: %s element %d has no shape", status.ErrGeneral,
				m.Name(), m.ElementIdentifier(index))
		}
		if _, seen := distinct[name]; !seen {
			distinct[name] = len(order) + 1
			order = append(order, name)
		}
		elementShapes = append(elementShapes, distinct[name])
	}
	if len(order) == 1 {
		return MeshShapes{DefaultShape: w.cache.use(order[0])}, nil
	}

	shapeIDs := m.Name() + ".shapeids"
	w.addEnsemble(shapeIDs, contiguousMembers(1, len(order)))
	evaluatorName := m.Name() + ".shape"
	source := denseIntSource(evaluatorName+".data", []int{len(elementShapes)}, elementShapes)
	w.doc.DataResources = append(w.doc.DataResources,
		DataResource{Name: evaluatorName + ".resource", Format: "inline", Sources: []ArrayDataSource{source}})
	w.doc.ParameterEvaluators = append(w.doc.ParameterEvaluators, ParameterEvaluator{
		Name:      evaluatorName,
		ValueType: shapeIDs,
		Dense:     &DenseArray{Data: evaluatorName + ".resource/" + source.Name},
		Indexes:   []IndexEntry{{Evaluator: argumentName(m.Name()) + ".elements"}},
	})
	ids := make([]ShapeID, len(order))
	for i, name := range order {
		ids[i] = ShapeID{ID: i + 1, Shape: w.cache.use(name)}
	}
	return MeshShapes{Evaluator: evaluatorName, IDs: ids}, nil
}

// resolveTemplates is pass 1: every element field component is resolved to
// a serialization template, connectivity rows are filled, scale factors
// are validated as unit, and every referenced nodal parameter must exist.
func (w *Writer) resolveTemplates() error {
	m := w.mesh
	it := m.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		for _, f := range w.fields {
			components := m.ElementFieldComponents(index, f)
			for c, efc := range components {
				t, err := w.resolveComponentTemplate(f, c, efc)
				if err != nil {
					return err
				}
				if err := w.checkScaleFactors(index, f, c, efc); err != nil {
					return err
				}
				if err := w.fillConnectivity(index, efc, t); err != nil {
					return err
				}
				if err := w.checkParameters(index, f, c, efc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *Writer) resolveComponentTemplate(f *mesh.Field, component int, efc *mesh.ElementFieldComponent) (*ElementFieldComponentTemplate, error) {
	if t, ok := w.templates[efc]; ok {
		return t, nil
	}
	if efc.Basis.Name() == "" {
		return nil, fmt.Errorf("%w: field %q component %d has no library interpolator",
			status.ErrNotImplemented, f.Name(), component+1)
	}
	candidate := &ElementFieldComponentTemplate{
		basis:       efc.Basis,
		derivatives: efc.StandardDerivatives(),
		versions:    efc.StandardVersions(),
	}
	for _, existing := range w.allTemplates {
		if !candidate.sameInterpolation(existing) {
			continue
		}
		if existingEFC := w.templateSource(existing); existingEFC != nil &&
			intSlicesEqual(existingEFC.LocalNodes, efc.LocalNodes) {
			w.templates[efc] = existing
			return existing, nil
		}
		if !efc.Basis.IsHermite() {
			// Node-permutation match: alias into the existing template so
			// both serialize to one evaluator. The shared connectivity must
			// now verify every later write.
			candidate.equivalent = existing.root()
			existing.root().connectivity.checkConsistency = true
			w.templates[efc] = candidate
			w.allTemplates = append(w.allTemplates, candidate)
			return candidate, nil
		}
	}
	conn, err := newMeshNodeConnectivity(w.mesh,
		fmt.Sprintf("%s.connectivity%d", w.mesh.Name(), w.connectivityCount()+1),
		efc.Basis.NodeCount())
	if err != nil {
		return nil, err
	}
	candidate.connectivity = conn
	w.templates[efc] = candidate
	w.allTemplates = append(w.allTemplates, candidate)
	return candidate, nil
}

// checkScaleFactors requires unit scale factors on this element for the
// component. Scale factors are per-element state, so this runs for every
// element, not just the one that first resolved the shared template.
func (w *Writer) checkScaleFactors(index int, f *mesh.Field, component int, efc *mesh.ElementFieldComponent) error {
	if efc.ScaleFactorSet == nil {
		return nil
	}
	for _, v := range w.mesh.ElementScaleFactors(index, efc.ScaleFactorSet) {
		if v != 1.0 {
			slog.Error("FieldML writer: non-unit scale factors are not implemented",
				"field", f.Name(), "component", component+1,
				"element", w.mesh.ElementIdentifier(index), "scaleFactor", v)
			return fmt.Errorf("%w: field %q component %d element %d uses non-unit scale factor %g",
				status.ErrNotImplemented, f.Name(), component+1, w.mesh.ElementIdentifier(index), v)
		}
	}
	return nil
}

// templateSource finds the mesh component object that first produced a
// template, for exact local-node comparison.
func (w *Writer) templateSource(t *ElementFieldComponentTemplate) *mesh.ElementFieldComponent {
	for efc, existing := range w.templates {
		if existing == t {
			return efc
		}
	}
	return nil
}

func (w *Writer) connectivityCount() int {
	n := 0
	for _, t := range w.allTemplates {
		if t.connectivity != nil {
			n++
		}
	}
	return n
}

// fillConnectivity records the element's per-basis-node global node
// identifiers into the template's (or its root's) connectivity.
func (w *Writer) fillConnectivity(index int, efc *mesh.ElementFieldComponent, t *ElementFieldComponentTemplate) error {
	nodes := w.mesh.ElementNodes(index)
	if nodes == nil {
		return fmt.Errorf("%w: %s element %d has no nodes", status.ErrGeneral,
			w.mesh.Name(), w.mesh.ElementIdentifier(index))
	}
	ids := make([]int, efc.Basis.NodeCount())
	for n := range ids {
		localNode := efc.LocalNodes[n]
		if localNode >= len(nodes) {
			return fmt.Errorf("%w: %s element %d local node %d beyond %d stored nodes",
				status.ErrGeneral, w.mesh.Name(), w.mesh.ElementIdentifier(index), localNode, len(nodes))
		}
		ids[n] = w.region.Nodeset().NodeIdentifier(nodes[localNode])
	}
	return t.root().connectivity.setElementNodes(index, ids)
}

// checkParameters requires every DOF the component addresses to have a
// stored nodal parameter. Unset DOFs are recognized but unsupported.
func (w *Writer) checkParameters(index int, f *mesh.Field, component int, efc *mesh.ElementFieldComponent) error {
	nodes := w.mesh.ElementNodes(index)
	derivatives := efc.StandardDerivatives()
	versions := efc.StandardVersions()
	dof := 0
	for n := 0; n < efc.Basis.NodeCount(); n++ {
		for d := 0; d < efc.Basis.NodeDOFCount(n); d++ {
			node := nodes[efc.LocalNodes[n]]
			if _, ok := f.NodeParameter(node, derivatives[dof], versions[dof], component+1); !ok {
				slog.Error("FieldML writer: unset nodal parameters are not implemented",
					"field", f.Name(), "component", component+1,
					"element", w.mesh.ElementIdentifier(index),
					"node", w.region.Nodeset().NodeIdentifier(node),
					"derivative", derivatives[dof], "version", versions[dof])
				return fmt.Errorf("%w: field %q component %d element %d references unset parameter",
					status.ErrNotImplemented, f.Name(), component+1, w.mesh.ElementIdentifier(index))
			}
			dof++
		}
	}
	return nil
}

// assignFieldTemplates is pass 2: per field component, accumulate the
// element→template map, sharing one map across components while their
// assignments agree and cloning on divergence.
func (w *Writer) assignFieldTemplates() error {
	m := w.mesh
	for _, f := range w.fields {
		perComponent := make([]*FieldComponentTemplate, f.ComponentCount())
		w.fieldTemplates[f.Name()] = perComponent
		it := m.Labels().Iterator()
		for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
			components := m.ElementFieldComponents(index, f)
			if components == nil {
				continue
			}
			for c, efc := range components {
				t := w.templates[efc]
				if perComponent[c] == nil {
					ft, err := newFieldComponentTemplate(m)
					if err != nil {
						return err
					}
					perComponent[c] = ft
				}
				if err := perComponent[c].setElementTemplate(index, t); err != nil {
					return err
				}
			}
		}
		// Components whose assignments ended identical collapse onto one map
		// object so they serialize to a single evaluator.
		for c := 1; c < len(perComponent); c++ {
			if perComponent[c] == nil || perComponent[0] == nil {
				continue
			}
			if perComponent[c].equal(perComponent[0], m) {
				perComponent[c] = perComponent[0]
			}
		}
	}
	return nil
}

// emitTemplates writes each root template's connectivity parameter
// evaluator and reference evaluator.
func (w *Writer) emitTemplates() error {
	templateCount := 0
	for _, t := range w.allTemplates {
		if t.equivalent != nil {
			continue
		}
		templateCount++
		name := fmt.Sprintf("%s.template%d", w.mesh.Name(), templateCount)
		t.evaluatorName = name
		if err := w.emitConnectivity(t.connectivity); err != nil {
			return err
		}
		ref := ReferenceEvaluator{
			Name:      name,
			Evaluator: w.cache.use(t.basis.Name()),
			ValueType: realType,
			Bindings: []Binding{
				{Argument: "chart", Source: argumentName(w.mesh.Name()) + ".xi"},
				{Argument: "connectivity", Source: t.connectivity.name},
			},
		}
		if overrides := w.emitDOFOverrides(name, t); overrides != nil {
			ref.Bindings = append(ref.Bindings, overrides...)
		}
		w.doc.ReferenceEvaluators = append(w.doc.ReferenceEvaluators, ref)
	}
	return nil
}

// emitDOFOverrides writes the template's derivative and version maps as
// rank-1 parameter arrays when they deviate from the basis standard.
func (w *Writer) emitDOFOverrides(name string, t *ElementFieldComponentTemplate) []Binding {
	standardDerivatives := make([]int, 0, t.basis.FunctionCount())
	for n := 0; n < t.basis.NodeCount(); n++ {
		standardDerivatives = append(standardDerivatives, t.basis.StandardHermiteDerivativeMap(n)...)
	}
	var bindings []Binding
	if !intSlicesEqual(t.derivatives, standardDerivatives) {
		bindings = append(bindings, w.emitDOFArray(name+".derivatives", derivativesEnsemble, t.derivatives))
	}
	standardVersions := true
	for _, v := range t.versions {
		if v != 1 {
			standardVersions = false
			break
		}
	}
	if !standardVersions {
		bindings = append(bindings, w.emitDOFArray(name+".versions", versionsEnsemble, t.versions))
	}
	return bindings
}

func (w *Writer) emitDOFArray(name, valueType string, values []int) Binding {
	source := denseIntSource(name+".data", []int{len(values)}, values)
	w.doc.DataResources = append(w.doc.DataResources,
		DataResource{Name: name + ".resource", Format: "inline", Sources: []ArrayDataSource{source}})
	w.doc.ParameterEvaluators = append(w.doc.ParameterEvaluators, ParameterEvaluator{
		Name:      name,
		ValueType: valueType,
		Dense:     &DenseArray{Data: name + ".resource/" + source.Name},
	})
	argument := "derivatives"
	if valueType == versionsEnsemble {
		argument = "versions"
	}
	return Binding{Argument: argument, Source: name}
}

// emitConnectivity writes one connectivity map: dense over the whole
// element ensemble when every element has a row, DOK otherwise.
func (w *Writer) emitConnectivity(c *MeshNodeConnectivity) error {
	m := w.mesh
	localNodesName := c.name + ".localnodes"
	w.addEnsemble(localNodesName, contiguousMembers(1, c.LocalNodeCount()))

	var denseValues []int
	var keys [][]int
	var rows [][]int
	it := m.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		row := c.elementNodes(index)
		if row == nil {
			continue
		}
		denseValues = append(denseValues, row...)
		keys = append(keys, []int{m.ElementIdentifier(index)})
		rows = append(rows, row)
	}

	resource := DataResource{Name: c.name + ".resource", Format: "inline"}
	p := ParameterEvaluator{Name: c.name, ValueType: nodesEnsemble}
	if len(rows) == m.ElementCount() {
		source := denseIntSource(c.name+".data", []int{len(rows), c.LocalNodeCount()}, denseValues)
		resource.Sources = []ArrayDataSource{source}
		p.Dense = &DenseArray{Data: resource.Name + "/" + source.Name}
		p.Indexes = []IndexEntry{
			{Evaluator: argumentName(m.Name()) + ".elements"},
			{Evaluator: argumentName(localNodesName)},
		}
	} else {
		keySource, valueSource := dokIntSources(c.name+".data", keys, rows)
		resource.Sources = []ArrayDataSource{keySource, valueSource}
		p.DOK = &DOKArray{
			KeyData:   resource.Name + "/" + keySource.Name,
			ValueData: resource.Name + "/" + valueSource.Name,
		}
		p.Indexes = []IndexEntry{
			{Evaluator: argumentName(m.Name()) + ".elements", Sparse: true},
			{Evaluator: argumentName(localNodesName)},
		}
	}
	w.doc.DataResources = append(w.doc.DataResources, resource)
	w.doc.ParameterEvaluators = append(w.doc.ParameterEvaluators, p)
	return nil
}

// emitField writes the field's value type, nodal parameters, per-component
// piecewise evaluators and, for vector fields, the aggregate evaluator.
func (w *Writer) emitField(f *mesh.Field) error {
	perComponent := w.fieldTemplates[f.Name()]
	defined := false
	for _, ft := range perComponent {
		if ft != nil {
			defined = true
		}
	}
	if !defined {
		slog.Debug("FieldML writer: field has no element definitions on exported mesh, skipping",
			"field", f.Name(), "mesh", w.mesh.Name())
		return nil
	}

	componentsName := f.Name() + ".components"
	w.addEnsemble(componentsName, contiguousMembers(1, f.ComponentCount()))
	w.doc.ContinuousTypes = append(w.doc.ContinuousTypes, ContinuousType{
		Name:       f.Name() + ".type",
		Components: &TypeComponents{Name: componentsName, Count: f.ComponentCount()},
	})

	if err := w.emitFieldParameters(f); err != nil {
		return err
	}

	// One piecewise per distinct component map.
	piecewiseNames := make([]string, len(perComponent))
	emitted := make(map[*FieldComponentTemplate]string)
	for c, ft := range perComponent {
		if ft == nil {
			return fmt.Errorf("%w: field %q component %d undefined on %s", status.ErrGeneral,
				f.Name(), c+1, w.mesh.Name())
		}
		if name, ok := emitted[ft]; ok {
			piecewiseNames[c] = name
			continue
		}
		name := fmt.Sprintf("%s.%s.template%d", f.Name(), w.mesh.Name(), len(emitted)+1)
		if f.ComponentCount() == 1 {
			name = f.Name()
		}
		w.emitPiecewise(name, ft)
		emitted[ft] = name
		piecewiseNames[c] = name
	}

	if f.ComponentCount() > 1 {
		aggregate := AggregateEvaluator{
			Name:      f.Name(),
			ValueType: f.Name() + ".type",
			Index:     argumentName(componentsName),
		}
		uniform := true
		for _, name := range piecewiseNames {
			if name != piecewiseNames[0] {
				uniform = false
			}
		}
		if uniform {
			aggregate.Default = piecewiseNames[0]
		} else {
			for c, name := range piecewiseNames {
				aggregate.Evaluators = append(aggregate.Evaluators, EvaluatorEntry{Value: c + 1, Evaluator: name})
			}
		}
		w.doc.AggregateEvaluators = append(w.doc.AggregateEvaluators, aggregate)
	}
	return nil
}

func (w *Writer) emitPiecewise(name string, ft *FieldComponentTemplate) {
	m := w.mesh
	p := PiecewiseEvaluator{
		Name:      name,
		ValueType: realType,
		Index:     argumentName(m.Name()) + ".elements",
	}
	uniform := true
	var first *ElementFieldComponentTemplate
	it := m.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		t := ft.elementTemplate(index)
		if first == nil {
			first = t
		}
		if t != first {
			uniform = false
			break
		}
	}
	if uniform && first != nil {
		p.Default = first.evaluatorName
	} else {
		it.Reset()
		for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
			if t := ft.elementTemplate(index); t != nil {
				p.Evaluators = append(p.Evaluators,
					EvaluatorEntry{Value: m.ElementIdentifier(index), Evaluator: t.evaluatorName})
			}
		}
	}
	w.doc.PiecewiseEvaluators = append(w.doc.PiecewiseEvaluators, p)
}

// emitFieldParameters writes "<field>.parameters": dense when the map
// fully populates nodes × derivatives × versions × components, DOK
// otherwise with (node, derivative, version) sparse keys and a dense
// component block per record.
func (w *Writer) emitFieldParameters(f *mesh.Field) error {
	nodes := w.region.Nodeset()
	versionCount := f.VersionCount()
	name := f.Name() + ".parameters"

	denseTotal := nodes.Size() * basis.DerivativeCount * versionCount * f.ComponentCount()
	dense := f.Parameters().ValueCount() == denseTotal

	var denseValues []float64
	var keys [][]int
	var blocks [][]float64
	it := nodes.Labels().Iterator()
	for index := it.Next(); index != labels.InvalidIndex; index = it.Next() {
		for d := 1; d <= basis.DerivativeCount; d++ {
			for v := 1; v <= versionCount; v++ {
				block := make([]float64, 0, f.ComponentCount())
				present := 0
				for c := 1; c <= f.ComponentCount(); c++ {
					value, ok := f.NodeParameter(index, d, v, c)
					if ok {
						present++
					}
					block = append(block, value)
				}
				if dense {
					denseValues = append(denseValues, block...)
					continue
				}
				if present == 0 {
					continue
				}
				if present < f.ComponentCount() {
					return fmt.Errorf("%w: field %q node %d derivative %d version %d has a partial component block",
						status.ErrNotImplemented, f.Name(), nodes.NodeIdentifier(index), d, v)
				}
				keys = append(keys, []int{nodes.NodeIdentifier(index), d, v})
				blocks = append(blocks, block)
			}
		}
	}

	resource := DataResource{Name: name + ".resource", Format: "inline"}
	p := ParameterEvaluator{Name: name, ValueType: realType}
	componentsArg := argumentName(f.Name() + ".components")
	if dense {
		source := denseDoubleSource(name+".data",
			[]int{nodes.Size(), basis.DerivativeCount, versionCount, f.ComponentCount()}, denseValues)
		resource.Sources = []ArrayDataSource{source}
		p.Dense = &DenseArray{Data: resource.Name + "/" + source.Name}
		p.Indexes = []IndexEntry{
			{Evaluator: argumentName(nodesEnsemble)},
			{Evaluator: argumentName(derivativesEnsemble)},
			{Evaluator: argumentName(versionsEnsemble)},
			{Evaluator: componentsArg},
		}
	} else {
		keySource, valueSource := dokSources(name+".data", keys, blocks)
		resource.Sources = []ArrayDataSource{keySource, valueSource}
		p.DOK = &DOKArray{
			KeyData:   resource.Name + "/" + keySource.Name,
			ValueData: resource.Name + "/" + valueSource.Name,
		}
		p.Indexes = []IndexEntry{
			{Evaluator: argumentName(nodesEnsemble), Sparse: true},
			{Evaluator: argumentName(derivativesEnsemble), Sparse: true},
			{Evaluator: argumentName(versionsEnsemble), Sparse: true},
			{Evaluator: componentsArg},
		}
	}
	w.doc.DataResources = append(w.doc.DataResources, resource)
	w.doc.ParameterEvaluators = append(w.doc.ParameterEvaluators, p)
	return nil
}
