package rpc

import "time"

// FailKind classifies a failed RPC call.
type FailKind int

const (
	FailNone FailKind = iota
	FailNetwork
	FailAuth
	FailDecode
	FailTimeout
)

func (k FailKind) String() string {
	switch k {
	case FailNone:
		return "none"
	case FailNetwork:
		return "network"
	case FailAuth:
		return "auth"
	case FailDecode:
		return "decode"
	case FailTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the resolved result of one RPC call. Exactly one of Payload or
// Err is set; Elapsed is always measured, success or not.
type Outcome struct {
	Method  string
	Payload []byte
	Elapsed time.Duration

	Kind FailKind
	Err  error
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Err == nil }
