package unit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
)

// Registry manages all processing units.
//
// The name→entry map is the only shared state. Register and Unregister take
// the write lock; Run holds the read lock only for the lookup, so executions
// on different names never block each other. The Registry does not serialize
// executions of a single name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	version string // host version checked against Descriptor.Requires
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// entry is one registered unit plus its bookkeeping. The unit pointer and
// descriptor are immutable after registration; counters are guarded by mu.
type entry struct {
	unit       Unit
	descriptor Descriptor

	mu        sync.Mutex
	inFlight  int
	removed   bool
	closed    bool
	runs      uint64
	failures  uint64
	lastError string
}

// NewRegistry creates a new unit registry for the given host version.
func NewRegistry(hostVersion string, log *zap.SugaredLogger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		version: hostVersion,
		logger:  logger.OrNop(log),
		now:     time.Now,
	}
}

// Register stores u under name and stamps its registration time.
// Returns ErrDuplicateName if name is taken; the existing unit stays active.
// Register never calls Configure or Execute.
func (r *Registry) Register(name string, u Unit) error {
	if name == "" {
		return errors.NewInvalidRequestError("unit name must not be empty")
	}
	if u == nil {
		return errors.NewInvalidRequestError("unit %s is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return errors.WithStage(errors.Wrapf(errors.ErrDuplicateName, "unit already registered: %s", name), errors.StageRegistry, name)
	}

	descriptor := u.Describe()
	if err := r.validateVersion(descriptor); err != nil {
		return errors.WithStage(errors.Wrapf(err, "version incompatible for %s", name), errors.StageRegistry, name)
	}
	descriptor.RegisteredAt = r.now().UTC()

	r.entries[name] = &entry{unit: u, descriptor: descriptor}
	r.logger.Infow("Registered unit",
		logger.FieldUnit, name,
		"version", descriptor.Version,
		"reentrant", IsReentrant(u))
	return nil
}

// Unregister removes the unit registered under name.
// Executions already in flight complete normally; if the unit implements
// io.Closer it is closed once the last of them returns.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	e, exists := r.entries[name]
	if !exists {
		r.mu.Unlock()
		return r.notFound(name)
	}
	delete(r.entries, name)
	r.mu.Unlock()

	e.mu.Lock()
	e.removed = true
	release := e.inFlight == 0 && !e.closed
	if release {
		e.closed = true
	}
	inFlight := e.inFlight
	e.mu.Unlock()

	r.logger.Infow("Unregistered unit", logger.FieldUnit, name, "in_flight", inFlight)
	if release {
		return r.closeUnit(name, e.unit)
	}
	return nil
}

// Get retrieves a unit by name
func (r *Registry) Get(name string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.unit, true
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Describe returns the stamped descriptor of the unit registered under name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, r.notFound(name)
	}
	return e.descriptor, nil
}

// Names returns all registered unit names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the descriptors of all registered units, sorted by name.
// Descriptor.Name is the registered name, which may differ from the name
// the unit reports about itself.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for name, e := range r.entries {
		d := e.descriptor
		d.Name = name
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status returns descriptors plus execution counters, sorted by name.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	snapshot := make(map[string]*entry, len(r.entries))
	for name, e := range r.entries {
		snapshot[name] = e
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(snapshot))
	for name, e := range snapshot {
		e.mu.Lock()
		s := Status{
			Descriptor: e.descriptor,
			Reentrant:  IsReentrant(e.unit),
			InFlight:   e.inFlight,
			Runs:       e.runs,
			Failures:   e.failures,
			LastError:  e.lastError,
		}
		e.mu.Unlock()
		s.Name = name
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Configure applies opts to the unit registered under name.
func (r *Registry) Configure(name string, opts Options) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return r.notFound(name)
	}

	if err := e.unit.Configure(opts); err != nil {
		return errors.Wrapf(err, "configure unit %s", name)
	}
	r.logger.Infow("Configured unit", logger.FieldUnit, name, "options", len(opts))
	return nil
}

// Run executes the unit registered under name.
//
// Returns ErrNotFound (tagged with the registry stage) when name is absent.
// Any execution failure is returned as *ExecutionError carrying the unit
// name and partial output; a panic inside the unit is recovered into one.
func (r *Registry) Run(ctx context.Context, name string, args Args) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	if ok {
		e.acquire()
	}
	r.mu.RUnlock()
	if !ok {
		return nil, r.notFound(name)
	}

	start := r.now()
	out, err := r.execute(ctx, name, e.unit, args)
	release := e.finish(err)

	if err != nil {
		r.logger.Warnw("Unit execution failed",
			logger.FieldUnit, name,
			logger.FieldDurationMS, r.now().Sub(start).Milliseconds(),
			logger.FieldError, err)
	} else {
		r.logger.Debugw("Unit execution finished",
			logger.FieldUnit, name,
			logger.FieldDurationMS, r.now().Sub(start).Milliseconds())
	}

	if release {
		if cerr := r.closeUnit(name, e.unit); cerr != nil {
			r.logger.Warnw("Failed to close unregistered unit", logger.FieldUnit, name, logger.FieldError, cerr)
		}
	}
	return out, err
}

// execute calls Execute and normalizes its failure into *ExecutionError.
func (r *Registry) execute(ctx context.Context, name string, u Unit, args Args) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &ExecutionError{Unit: name, Cause: errors.Newf("panic: %v", p)}
		}
	}()

	out, err = u.Execute(ctx, args)
	if err == nil {
		return out, nil
	}

	if ee, ok := AsExecutionError(err); ok {
		tagged := *ee
		if tagged.Unit == "" {
			tagged.Unit = name
		}
		return out, &tagged
	}
	return out, &ExecutionError{Unit: name, Cause: err, Partial: out}
}

// Close releases every registered unit in reverse name order and empties
// the registry. Units with executions in flight are closed when those finish.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	r.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Unregister(name); err != nil && !errors.Is(err, errors.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Newf("close errors: %v", errs)
	}
	return nil
}

func (r *Registry) closeUnit(name string, u Unit) error {
	closer, ok := u.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return errors.Wrapf(err, "close unit %s", name)
	}
	return nil
}

func (r *Registry) notFound(name string) error {
	return errors.WithStage(errors.Wrapf(errors.ErrNotFound, "unit %s", name), errors.StageRegistry, name)
}

// validateVersion checks if the unit's host constraint accepts this host version
func (r *Registry) validateVersion(d Descriptor) error {
	if d.Requires == "" {
		// No version constraint specified
		return nil
	}

	hostVer, err := semver.NewVersion(r.version)
	if err != nil {
		return errors.NewInvalidConfigError("invalid host version %s: %v", r.version, err)
	}

	constraint, err := semver.NewConstraint(d.Requires)
	if err != nil {
		return errors.NewInvalidConfigError("invalid version constraint %s: %v", d.Requires, err)
	}

	if !constraint.Check(hostVer) {
		return errors.NewInvalidConfigError("unit requires host %s, but running %s", d.Requires, r.version)
	}
	return nil
}

func (e *entry) acquire() {
	e.mu.Lock()
	e.inFlight++
	e.mu.Unlock()
}

// finish records the outcome of one execution and reports whether the
// caller must release the unit (it was unregistered while running).
func (e *entry) finish(err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inFlight--
	e.runs++
	if err != nil {
		e.failures++
		e.lastError = err.Error()
	}
	if e.removed && e.inFlight == 0 && !e.closed {
		e.closed = true
		return true
	}
	return false
}

// String implements fmt.Stringer for debugging output.
func (r *Registry) String() string {
	return fmt.Sprintf("unit.Registry{units: %v, host: %s}", r.Names(), r.version)
}
