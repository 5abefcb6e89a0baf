// Package fieldml serializes a mesh region to a FieldML document and reads
// the same subset back. The object graph follows the FieldML 0.5 layering:
// ensemble types for index sets, a mesh type with an "xi" chart, parameter
// evaluators backed by inline array data, reference evaluators binding
// library interpolators, and piecewise/aggregate evaluators assembling
// field components.
package fieldml

import "encoding/xml"

// Document is the root FieldML element.
type Document struct {
	XMLName xml.Name        `xml:"Fieldml"`
	Version string          `xml:"version,attr"`
	Region  *DocumentRegion `xml:"Region"`
}

// DocumentRegion holds one region's object graph. Object order matters for
// readers resolving references top to bottom, so the writer appends in
// dependency order.
type DocumentRegion struct {
	Name string `xml:"name,attr"`

	Imports             []Import             `xml:"Import"`
	EnsembleTypes       []EnsembleType       `xml:"EnsembleType"`
	ContinuousTypes     []ContinuousType     `xml:"ContinuousType"`
	MeshTypes           []MeshType           `xml:"MeshType"`
	ArgumentEvaluators  []ArgumentEvaluator  `xml:"ArgumentEvaluator"`
	DataResources       []DataResource       `xml:"DataResource"`
	ParameterEvaluators []ParameterEvaluator `xml:"ParameterEvaluator"`
	ReferenceEvaluators []ReferenceEvaluator `xml:"ReferenceEvaluator"`
	PiecewiseEvaluators []PiecewiseEvaluator `xml:"PiecewiseEvaluator"`
	AggregateEvaluators []AggregateEvaluator `xml:"AggregateEvaluator"`
}

// Import brings a library object into scope under a local name.
type Import struct {
	Location   string `xml:"location,attr"`
	RemoteName string `xml:"remoteName,attr"`
	LocalName  string `xml:"localName,attr"`
}

// EnsembleType is a named finite index set, serialized either as a closed
// identifier range per contiguous block or as an explicit list.
type EnsembleType struct {
	Name    string          `xml:"name,attr"`
	Members EnsembleMembers `xml:"Members"`
}

// EnsembleMembers holds the member encoding: any number of ranges, or a
// whitespace-separated identifier list.
type EnsembleMembers struct {
	Ranges []MemberRange `xml:"MemberRange"`
	List   string        `xml:"MemberList,omitempty"`
}

// MemberRange is a closed identifier range [Min,Max].
type MemberRange struct {
	Min int `xml:"min,attr"`
	Max int `xml:"max,attr"`
}

// ContinuousType is a real-valued type, optionally vector-valued with a
// components ensemble.
type ContinuousType struct {
	Name       string          `xml:"name,attr"`
	Components *TypeComponents `xml:"Components"`
}

// TypeComponents names the component ensemble of a vector continuous type.
type TypeComponents struct {
	Name  string `xml:"name,attr"`
	Count int    `xml:"count,attr"`
}

// MeshType is the element ensemble plus the "xi" chart over it. Shapes maps
// elements to shape names, via a default when the mesh is uniform or an
// explicit element→shape-id evaluator otherwise.
type MeshType struct {
	Name     string       `xml:"name,attr"`
	Elements MeshElements `xml:"Elements"`
	Chart    MeshChart    `xml:"Chart"`
	Shapes   MeshShapes   `xml:"Shapes"`
}

// MeshElements is the inline element ensemble of a mesh type.
type MeshElements struct {
	Name    string          `xml:"name,attr"`
	Members EnsembleMembers `xml:"Members"`
}

// MeshChart is the mesh's local coordinate chart, conventionally named
// "xi", with a components ensemble "<meshName>.xi.components".
type MeshChart struct {
	Name       string         `xml:"name,attr"`
	Components TypeComponents `xml:"Components"`
}

// MeshShapes selects element shapes: DefaultShape alone for a uniform
// mesh, otherwise an evaluator mapping elements to the shape-id ensemble
// with one ShapeID entry per shape name.
type MeshShapes struct {
	DefaultShape string    `xml:"defaultShape,attr,omitempty"`
	Evaluator    string    `xml:"evaluator,attr,omitempty"`
	IDs          []ShapeID `xml:"ShapeID"`
}

// ShapeID binds one shape-id ensemble member to a shape name.
type ShapeID struct {
	ID    int    `xml:"id,attr"`
	Shape string `xml:"shape,attr"`
}

// ArgumentEvaluator declares a free variable of a given type, named
// "<TypeName>.argument" with ".<subpart>" forms for mesh elements and xi.
type ArgumentEvaluator struct {
	Name      string `xml:"name,attr"`
	ValueType string `xml:"valueType,attr"`
}

// DataResource is an inline text container for array data sources.
type DataResource struct {
	Name    string            `xml:"name,attr"`
	Format  string            `xml:"format,attr"`
	Sources []ArrayDataSource `xml:"ArrayDataSource"`
}

// ArrayDataSource is one text-encoded array: rank and per-dimension sizes,
// values whitespace-separated in row-major order.
type ArrayDataSource struct {
	Name string `xml:"name,attr"`
	Rank int    `xml:"rank,attr"`
	Size string `xml:"size,attr"`
	Data string `xml:",chardata"`
}

// ParameterEvaluator is a table of values indexed by its index evaluators,
// stored densely or as dictionary-of-keys records.
type ParameterEvaluator struct {
	Name      string       `xml:"name,attr"`
	ValueType string       `xml:"valueType,attr"`
	Dense     *DenseArray  `xml:"DenseArrayData"`
	DOK       *DOKArray    `xml:"DOKArrayData"`
	Indexes   []IndexEntry `xml:"IndexEvaluator"`
}

// DenseArray references the value source of a dense layout; rank equals
// the number of index evaluators.
type DenseArray struct {
	Data string `xml:"data,attr"`
}

// DOKArray references the rank-2 key and value sources of a sparse
// layout: one row per record, keys holding the sparse index tuple and
// values the dense block.
type DOKArray struct {
	KeyData   string `xml:"keyData,attr"`
	ValueData string `xml:"valueData,attr"`
}

// IndexEntry names one index argument of a parameter evaluator. Sparse
// indexes key DOK records; dense indexes span the value block.
type IndexEntry struct {
	Evaluator string `xml:"evaluator,attr"`
	Sparse    bool   `xml:"sparse,attr,omitempty"`
}

// ReferenceEvaluator instantiates a library interpolator with argument
// bindings.
type ReferenceEvaluator struct {
	Name      string    `xml:"name,attr"`
	Evaluator string    `xml:"evaluator,attr"`
	ValueType string    `xml:"valueType,attr"`
	Bindings  []Binding `xml:"Bind"`
}

// Binding maps one argument of the referenced evaluator to a source.
type Binding struct {
	Argument string `xml:"argument,attr"`
	Source   string `xml:"source,attr"`
}

// PiecewiseEvaluator selects an evaluator per member of its index: one
// default when uniform, otherwise an explicit member→evaluator map.
type PiecewiseEvaluator struct {
	Name       string           `xml:"name,attr"`
	ValueType  string           `xml:"valueType,attr"`
	Index      string           `xml:"index,attr"`
	Default    string           `xml:"default,attr,omitempty"`
	Evaluators []EvaluatorEntry `xml:"EvaluatorMap"`
}

// EvaluatorEntry maps one index member to an evaluator.
type EvaluatorEntry struct {
	Value     int    `xml:"value,attr"`
	Evaluator string `xml:"evaluator,attr"`
}

// AggregateEvaluator assembles a vector value from per-component
// evaluators over the components ensemble of its value type.
type AggregateEvaluator struct {
	Name       string           `xml:"name,attr"`
	ValueType  string           `xml:"valueType,attr"`
	Index      string           `xml:"index,attr"`
	Default    string           `xml:"default,attr,omitempty"`
	Evaluators []EvaluatorEntry `xml:"ComponentMap"`
}

// FindEnsemble returns the named ensemble type, or nil.
func (r *DocumentRegion) FindEnsemble(name string) *EnsembleType {
	for i := range r.EnsembleTypes {
		if r.EnsembleTypes[i].Name == name {
			return &r.EnsembleTypes[i]
		}
	}
	return nil
}

// FindParameters returns the named parameter evaluator, or nil.
func (r *DocumentRegion) FindParameters(name string) *ParameterEvaluator {
	for i := range r.ParameterEvaluators {
		if r.ParameterEvaluators[i].Name == name {
			return &r.ParameterEvaluators[i]
		}
	}
	return nil
}

// FindReference returns the named reference evaluator, or nil.
func (r *DocumentRegion) FindReference(name string) *ReferenceEvaluator {
	for i := range r.ReferenceEvaluators {
		if r.ReferenceEvaluators[i].Name == name {
			return &r.ReferenceEvaluators[i]
		}
	}
	return nil
}

// FindPiecewise returns the named piecewise evaluator, or nil.
func (r *DocumentRegion) FindPiecewise(name string) *PiecewiseEvaluator {
	for i := range r.PiecewiseEvaluators {
		if r.PiecewiseEvaluators[i].Name == name {
			return &r.PiecewiseEvaluators[i]
		}
	}
	return nil
}

// FindSource resolves a data source by "<resource>/<source>" reference.
func (r *DocumentRegion) FindSource(ref string) *ArrayDataSource {
	for i := range r.DataResources {
		res := &r.DataResources[i]
		for j := range res.Sources {
			if res.Name+"/"+res.Sources[j].Name == ref || res.Sources[j].Name == ref {
				return &res.Sources[j]
			}
		}
	}
	return nil
}
