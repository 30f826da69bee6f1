package core

// Result is the outcome an agent handler reports for one event.
type Result int

const (
	// ResultOK means the handler completed its work.
	ResultOK Result = iota
	// ResultInvalidParams means the action carried the wrong number of arguments.
	ResultInvalidParams
	// ResultInvalidType means an element had a different type than required.
	ResultInvalidType
	// ResultError means the handler failed for any other reason.
	ResultError
)

// String returns the lowercase name of the result.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultInvalidParams:
		return "invalid_params"
	case ResultInvalidType:
		return "invalid_type"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// IsOK reports whether r is ResultOK.
func (r Result) IsOK() bool { return r == ResultOK }
