// Package status defines the error taxonomy shared by the mesh topology
// engine and the FieldML serialization layer. Operations return ordinary
// errors wrapping one of these sentinels so callers can discriminate the
// failure class with errors.Is.
package status

import "errors"

var (
	// ErrArgument reports invalid or inconsistent caller-supplied
	// identifiers, shapes or dimensions.
	ErrArgument = errors.New("invalid argument")

	// ErrMemory reports an allocation failure. It always aborts the
	// enclosing operation.
	ErrMemory = errors.New("out of memory")

	// ErrGeneral reports a structural invariant violation detected at
	// runtime, e.g. an inconsistent local-to-global node map.
	ErrGeneral = errors.New("general failure")

	// ErrNotImplemented reports recognized but unsupported input, e.g.
	// non-unit scale factors in the FieldML writer. Distinct from
	// ErrGeneral so callers can tell "never going to work" from "this
	// input is malformed".
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotFound reports a failed identifier or name lookup.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists reports a uniqueness-constraint failure on an
	// identifier or name.
	ErrAlreadyExists = errors.New("already exists")
)
