// Package availability tracks the health of the three backing subsystems
// (graph store, embedding model, language model) and decides which pipeline
// stages may run.
//
// Each subsystem moves through Uninitialized -> Probing -> Available |
// Unavailable. The first Check probes lazily; failures are cached for a short
// window and successes for a longer one, after which the next Check probes
// again. Runtime failures reported with Report mark a subsystem Unavailable
// immediately.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Subsystem names a backing dependency of the pipeline.
type Subsystem string

// Subsystems tracked by the gate. The values are the keys used in
// technical details.
const (
	GraphStore     Subsystem = "graphStore"
	EmbeddingModel Subsystem = "embeddingModel"
	LanguageModel  Subsystem = "languageModel"
)

// AllSubsystems lists every tracked subsystem in display order.
var AllSubsystems = []Subsystem{GraphStore, EmbeddingModel, LanguageModel}

// State is a subsystem's position in the availability state machine.
type State int

const (
	Uninitialized State = iota
	Probing
	Available
	Unavailable
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Probing:
		return "probing"
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Status is the observable state of one subsystem.
type Status struct {
	Subsystem     Subsystem
	State         State
	LastError     error
	LastCheckedAt time.Time
}

// ProbeFunc checks one subsystem. A returned error that is not already a
// *Fault is treated as a ConnectivityFault.
type ProbeFunc func(ctx context.Context) error

// Options configures a Gate. Zero durations fall back to the defaults.
type Options struct {
	NegativeTTL  time.Duration // default 30s
	PositiveTTL  time.Duration // default 5m
	ProbeTimeout time.Duration // default 5s

	Logger *zap.Logger

	// OnChange, if set, is called after every state transition.
	OnChange func(Subsystem, State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Default timing.
const (
	DefaultNegativeTTL  = 30 * time.Second
	DefaultPositiveTTL  = 5 * time.Minute
	DefaultProbeTimeout = 5 * time.Second
)

type entry struct {
	probe   ProbeFunc
	probeMu sync.Mutex // serializes probes of one subsystem

	mu     sync.RWMutex
	status Status
}

// Gate is the process-wide availability tracker. Safe for concurrent use.
type Gate struct {
	opts    Options
	logger  *zap.Logger
	entries map[Subsystem]*entry
}

// NewGate creates a gate with one probe per subsystem. A subsystem without a
// probe is reported Unavailable with a ConfigurationFault on first Check.
func NewGate(probes map[Subsystem]ProbeFunc, opts Options) *Gate {
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if opts.PositiveTTL <= 0 {
		opts.PositiveTTL = DefaultPositiveTTL
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gate{
		opts:    opts,
		logger:  logger.With(zap.String("component", "availability")),
		entries: make(map[Subsystem]*entry, len(AllSubsystems)),
	}
	for _, s := range AllSubsystems {
		g.entries[s] = &entry{
			probe:  probes[s],
			status: Status{Subsystem: s, State: Uninitialized},
		}
	}
	return g
}

// Check reports whether subsystem s is usable, probing it when it has never
// been probed or its cached result has expired.
func (g *Gate) Check(ctx context.Context, s Subsystem) bool {
	e, ok := g.entries[s]
	if !ok {
		return false
	}

	e.probeMu.Lock()
	defer e.probeMu.Unlock()

	// Another caller may have probed while this one waited.
	if state, fresh := g.cached(e); fresh {
		return state == Available
	}

	g.transition(e, Probing, nil)

	err := g.runProbe(ctx, s, e.probe)
	if err != nil {
		g.transition(e, Unavailable, err)
		return false
	}
	g.transition(e, Available, nil)
	return true
}

// cached returns the current state and whether it is still within its window.
func (g *Gate) cached(e *entry) (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	age := g.opts.Now().Sub(e.status.LastCheckedAt)
	switch e.status.State {
	case Available:
		return Available, age < g.opts.PositiveTTL
	case Unavailable:
		return Unavailable, age < g.opts.NegativeTTL
	default:
		return e.status.State, false
	}
}

func (g *Gate) runProbe(ctx context.Context, s Subsystem, probe ProbeFunc) (err error) {
	if probe == nil {
		return NewFault(ConfigurationFault, s, errors.New("subsystem not configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.ProbeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = NewFault(ConnectivityFault, s, fmt.Errorf("probe panicked: %v", r))
		}
	}()

	if err := probe(ctx); err != nil {
		return asFault(s, err, ConnectivityFault)
	}
	return nil
}

// Report records a runtime failure of subsystem s observed outside a probe.
// Caller cancellation is not a subsystem failure and is ignored.
func (g *Gate) Report(s Subsystem, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	e, ok := g.entries[s]
	if !ok {
		return
	}
	g.transition(e, Unavailable, asFault(s, err, ConnectivityFault))
}

func (g *Gate) transition(e *entry, to State, err error) {
	e.mu.Lock()
	from := e.status.State
	e.status.State = to
	if to != Probing {
		e.status.LastError = err
		e.status.LastCheckedAt = g.opts.Now()
	}
	s := e.status.Subsystem
	e.mu.Unlock()

	if from == to {
		return
	}
	switch to {
	case Unavailable:
		g.logger.Warn("subsystem unavailable",
			zap.String("subsystem", string(s)),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err))
	case Available:
		g.logger.Info("subsystem available", zap.String("subsystem", string(s)))
	}
	if g.opts.OnChange != nil {
		g.opts.OnChange(s, to)
	}
}

// Status returns the current status of s without probing.
func (g *Gate) Status(s Subsystem) Status {
	e, ok := g.entries[s]
	if !ok {
		return Status{Subsystem: s, State: Uninitialized}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Snapshot returns the status of every subsystem in display order.
func (g *Gate) Snapshot() []Status {
	out := make([]Status, 0, len(g.entries))
	for _, s := range AllSubsystems {
		out = append(out, g.Status(s))
	}
	return out
}

// CheckAll probes every subsystem whose cached result has expired.
func (g *Gate) CheckAll(ctx context.Context) []Status {
	for _, s := range AllSubsystems {
		g.Check(ctx, s)
	}
	return g.Snapshot()
}

// States maps each subsystem to its state name, e.g. {"graphStore": "available"}.
func States(snapshot []Status) map[string]string {
	out := make(map[string]string, len(snapshot))
	for _, st := range snapshot {
		out[string(st.Subsystem)] = st.State.String()
	}
	return out
}

// Errors maps each subsystem with a recorded error to its message.
func Errors(snapshot []Status) map[string]string {
	out := map[string]string{}
	for _, st := range snapshot {
		if st.LastError != nil {
			out[string(st.Subsystem)] = st.LastError.Error()
		}
	}
	return out
}
