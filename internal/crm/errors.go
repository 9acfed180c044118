package crm

import (
	"fmt"
)

// TransportError reports a CRM call that failed before a response was read:
// connection errors, timeouts and cancelled requests.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("crm transport error on %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response that was received but cannot be used:
// a non-2xx status or a body that is not a JSON array of records.
type DecodeError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("crm decode error on %s (status %d): %v", e.Path, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaError reports a record whose required field is absent or malformed.
type SchemaError struct {
	Collection string
	Index      int
	RecordID   string
	Field      string
	Reason     string
}

func (e *SchemaError) Error() string {
	id := e.RecordID
	if id == "" {
		id = "?"
	}
	return fmt.Sprintf("crm schema error in %s record #%d (id %s): field %q %s",
		e.Collection, e.Index, id, e.Field, e.Reason)
}
