package availability

import (
	"errors"
	"fmt"
)

// Kind classifies a fault by how the pipeline reacts to it.
type Kind int

const (
	// ConfigurationFault is a missing or invalid credential, a malformed
	// endpoint or an embedding dimension mismatch. Detected at probe time.
	ConfigurationFault Kind = iota + 1

	// ConnectivityFault is an unreachable store or model.
	ConnectivityFault

	// QueryFault is a malformed query or a backend-side timeout in one
	// retrieval strategy.
	QueryFault

	// GenerationFault is a failed language-model call.
	GenerationFault
)

func (k Kind) String() string {
	switch k {
	case ConfigurationFault:
		return "configuration"
	case ConnectivityFault:
		return "connectivity"
	case QueryFault:
		return "query"
	case GenerationFault:
		return "generation"
	default:
		return "unknown"
	}
}

// Fault is an error tagged with its Kind and the subsystem it came from.
type Fault struct {
	Kind      Kind
	Subsystem Subsystem
	Err       error
}

// Sentinel faults for errors.Is. A Fault matches a sentinel of the same Kind.
var (
	ErrConfiguration = &Fault{Kind: ConfigurationFault}
	ErrConnectivity  = &Fault{Kind: ConnectivityFault}
	ErrQuery         = &Fault{Kind: QueryFault}
	ErrGeneration    = &Fault{Kind: GenerationFault}
)

// NewFault wraps err as a fault of kind for subsystem.
func NewFault(kind Kind, subsystem Subsystem, err error) *Fault {
	return &Fault{Kind: kind, Subsystem: subsystem, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s fault", f.Kind)
	}
	if f.Subsystem == "" {
		return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s fault: %v", f.Subsystem, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Is matches another *Fault with the same Kind whose Subsystem is empty or equal.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == f.Kind && (t.Subsystem == "" || t.Subsystem == f.Subsystem)
}

// KindOf returns the Kind of the first Fault in err's chain, or 0.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

// asFault returns err as a Fault for subsystem, wrapping it with fallback
// when it carries no kind of its own.
func asFault(subsystem Subsystem, err error, fallback Kind) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		if f.Subsystem == "" {
			return &Fault{Kind: f.Kind, Subsystem: subsystem, Err: f.Err}
		}
		return f
	}
	return NewFault(fallback, subsystem, err)
}
