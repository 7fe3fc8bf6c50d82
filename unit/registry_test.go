package unit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/shelf/errors"
)

// =============================================================================
// Mock Unit Implementation
// =============================================================================

type mockUnit struct {
	descriptor Descriptor
	output     any
	execErr    error
	panicWith  any
	block      chan struct{}
	started    chan struct{}

	mu         sync.Mutex
	configured Options
	executions int
	closed     bool
}

var _ Unit = (*mockUnit)(nil)

func newMockUnit(name string) *mockUnit {
	return &mockUnit{
		descriptor: Descriptor{
			Name:        name,
			Version:     "1.0.0",
			Author:      "Test",
			Description: fmt.Sprintf("Mock %s unit", name),
		},
		output: name + "-output",
	}
}

func (m *mockUnit) Configure(opts Options) error {
	if _, ok := opts["bad"]; ok {
		return errors.NewInvalidConfigError("bad option")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = opts
	return nil
}

func (m *mockUnit) Execute(ctx context.Context, args Args) (any, error) {
	m.mu.Lock()
	m.executions++
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.execErr != nil {
		return m.output, m.execErr
	}
	return m.output, nil
}

func (m *mockUnit) Describe() Descriptor { return m.descriptor }

func (m *mockUnit) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockUnit) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry("0.1.0", zaptest.NewLogger(t).Sugar())
}

// =============================================================================
// Registration
// =============================================================================

func TestRegistry_Register(t *testing.T) {
	t.Run("register and describe", func(t *testing.T) {
		reg := newTestRegistry(t)
		before := time.Now().UTC()

		require.NoError(t, reg.Register("parser", newMockUnit("parser")))

		d, err := reg.Describe("parser")
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", d.Version)
		assert.False(t, d.RegisteredAt.IsZero())
		assert.False(t, d.RegisteredAt.Before(before.Add(-time.Second)))
		assert.True(t, reg.Has("parser"))
	})

	t.Run("duplicate keeps original", func(t *testing.T) {
		reg := newTestRegistry(t)
		original := newMockUnit("parser")
		require.NoError(t, reg.Register("parser", original))

		replacement := newMockUnit("parser")
		replacement.output = "replacement"
		err := reg.Register("parser", replacement)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDuplicateName))
		assert.Equal(t, errors.StageRegistry, errors.StageOf(err))

		out, err := reg.Run(context.Background(), "parser", Args{})
		require.NoError(t, err)
		assert.Equal(t, "parser-output", out)
	})

	t.Run("register does not configure or execute", func(t *testing.T) {
		reg := newTestRegistry(t)
		m := newMockUnit("parser")
		require.NoError(t, reg.Register("parser", m))

		assert.Nil(t, m.configured)
		assert.Equal(t, 0, m.executions)
	})

	t.Run("empty name and nil unit", func(t *testing.T) {
		reg := newTestRegistry(t)
		assert.True(t, errors.IsInvalidRequestError(reg.Register("", newMockUnit("x"))))
		assert.True(t, errors.IsInvalidRequestError(reg.Register("x", nil)))
	})

	t.Run("registered name wins over self-reported name", func(t *testing.T) {
		reg := newTestRegistry(t)
		require.NoError(t, reg.Register("alias", newMockUnit("parser")))

		list := reg.List()
		require.Len(t, list, 1)
		assert.Equal(t, "alias", list[0].Name)
	})
}

func TestRegistry_VersionConstraint(t *testing.T) {
	tests := []struct {
		name     string
		requires string
		wantErr  bool
	}{
		{"no constraint", "", false},
		{"satisfied", ">= 0.1.0", false},
		{"unsatisfied", ">= 2.0.0", true},
		{"invalid constraint", "not-a-version", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			m := newMockUnit("parser")
			m.descriptor.Requires = tt.requires

			err := reg.Register("parser", m)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
				assert.False(t, reg.Has("parser"))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegistry_Isolation(t *testing.T) {
	a := newTestRegistry(t)
	b := newTestRegistry(t)

	require.NoError(t, a.Register("parser", newMockUnit("parser")))

	assert.True(t, a.Has("parser"))
	assert.False(t, b.Has("parser"))
	require.NoError(t, b.Register("parser", newMockUnit("parser")))
}

// =============================================================================
// Lookup and listing
// =============================================================================

func TestRegistry_List(t *testing.T) {
	reg := newTestRegistry(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(name, newMockUnit(name)))
	}

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}

func TestRegistry_Unregister(t *testing.T) {
	t.Run("removes and closes", func(t *testing.T) {
		reg := newTestRegistry(t)
		m := newMockUnit("analyzer")
		require.NoError(t, reg.Register("analyzer", m))

		require.NoError(t, reg.Unregister("analyzer"))
		assert.True(t, m.isClosed())

		_, err := reg.Run(context.Background(), "analyzer", Args{})
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
		assert.Equal(t, errors.StageRegistry, errors.StageOf(err))
		assert.Equal(t, "analyzer", errors.UnitOf(err))
	})

	t.Run("unknown name", func(t *testing.T) {
		reg := newTestRegistry(t)
		err := reg.Unregister("ghost")
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("name can be reused", func(t *testing.T) {
		reg := newTestRegistry(t)
		require.NoError(t, reg.Register("parser", newMockUnit("parser")))
		require.NoError(t, reg.Unregister("parser"))
		require.NoError(t, reg.Register("parser", newMockUnit("parser")))
	})

	t.Run("in-flight execution completes before close", func(t *testing.T) {
		reg := newTestRegistry(t)
		m := newMockUnit("slow")
		m.block = make(chan struct{})
		m.started = make(chan struct{}, 1)
		require.NoError(t, reg.Register("slow", m))

		done := make(chan error, 1)
		go func() {
			_, err := reg.Run(context.Background(), "slow", Args{})
			done <- err
		}()
		<-m.started

		require.NoError(t, reg.Unregister("slow"))
		assert.False(t, m.isClosed(), "unit closed while executing")
		assert.False(t, reg.Has("slow"))

		close(m.block)
		require.NoError(t, <-done)
		assert.True(t, m.isClosed())
	})
}

func TestRegistry_Configure(t *testing.T) {
	reg := newTestRegistry(t)
	m := newMockUnit("parser")
	require.NoError(t, reg.Register("parser", m))

	require.NoError(t, reg.Configure("parser", Options{"max_depth": 5}))
	assert.Equal(t, Options{"max_depth": 5}, m.configured)

	err := reg.Configure("parser", Options{"bad": true})
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	err = reg.Configure("ghost", Options{})
	assert.True(t, errors.IsNotFoundError(err))
}

// =============================================================================
// Execution
// =============================================================================

func TestRegistry_Run(t *testing.T) {
	t.Run("returns output", func(t *testing.T) {
		reg := newTestRegistry(t)
		require.NoError(t, reg.Register("parser", newMockUnit("parser")))

		out, err := reg.Run(context.Background(), "parser", Args{Input: "x"})
		require.NoError(t, err)
		assert.Equal(t, "parser-output", out)
	})

	t.Run("wraps plain failure with partial", func(t *testing.T) {
		reg := newTestRegistry(t)
		m := newMockUnit("parser")
		m.execErr = errors.New("boom")
		m.output = []string{"partial"}
		require.NoError(t, reg.Register("parser", m))

		_, err := reg.Run(context.Background(), "parser", Args{})
		require.Error(t, err)

		ee, ok := AsExecutionError(err)
		require.True(t, ok)
		assert.Equal(t, "parser", ee.Unit)
		assert.Equal(t, []string{"partial"}, PartialOf(err))
		assert.True(t, errors.Is(err, errors.ErrExecution))
	})

	t.Run("keeps unit cause and partial", func(t *testing.T) {
		reg := newTestRegistry(t)
		m := newMockUnit("parser")
		m.execErr = NewExecutionError(errors.Wrap(errors.ErrMaxDepthExceeded, "depth 21"), 3)
		require.NoError(t, reg.Register("parser", m))

		_, err := reg.Run(context.Background(), "parser", Args{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrMaxDepthExceeded))
		assert.Equal(t, 3, PartialOf(err))
		assert.Contains(t, err.Error(), "unit parser")
	})

	t.Run("recovers panic", func(t *testing.T) {
		reg := newTestRegistry(t)
		m := newMockUnit("crashy")
		m.panicWith = "nil map"
		require.NoError(t, reg.Register("crashy", m))
		require.NoError(t, reg.Register("steady", newMockUnit("steady")))

		_, err := reg.Run(context.Background(), "crashy", Args{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrExecution))
		assert.Contains(t, err.Error(), "panic: nil map")

		_, err = reg.Run(context.Background(), "steady", Args{})
		assert.NoError(t, err)
	})

	t.Run("counts runs and failures", func(t *testing.T) {
		reg := newTestRegistry(t)
		ok := newMockUnit("ok")
		bad := newMockUnit("bad")
		bad.execErr = errors.New("nope")
		require.NoError(t, reg.Register("ok", ok))
		require.NoError(t, reg.Register("bad", bad))

		_, _ = reg.Run(context.Background(), "ok", Args{})
		_, _ = reg.Run(context.Background(), "ok", Args{})
		_, _ = reg.Run(context.Background(), "bad", Args{})

		status := reg.Status()
		require.Len(t, status, 2)
		assert.Equal(t, "bad", status[0].Name)
		assert.Equal(t, uint64(1), status[0].Runs)
		assert.Equal(t, uint64(1), status[0].Failures)
		assert.Contains(t, status[0].LastError, "nope")
		assert.Equal(t, "ok", status[1].Name)
		assert.Equal(t, uint64(2), status[1].Runs)
		assert.Equal(t, uint64(0), status[1].Failures)
	})
}

func TestRegistry_ConcurrentRuns(t *testing.T) {
	reg := newTestRegistry(t)
	names := []string{"a", "b", "c", "d"}
	for _, name := range names {
		require.NoError(t, reg.Register(name, newMockUnit(name)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(names)*25)
	for _, name := range names {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				out, err := reg.Run(context.Background(), name, Args{})
				if err != nil {
					errs <- err
					return
				}
				if out != name+"-output" {
					errs <- fmt.Errorf("unexpected output %v for %s", out, name)
				}
			}(name)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := newTestRegistry(t)
	a := newMockUnit("a")
	b := newMockUnit("b")
	require.NoError(t, reg.Register("a", a))
	require.NoError(t, reg.Register("b", b))

	require.NoError(t, reg.Close(context.Background()))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Empty(t, reg.Names())
}

func TestArgs_HasFlag(t *testing.T) {
	args := Args{Flags: []string{"--no-path", "--verbose"}}
	assert.True(t, args.HasFlag("--no-path"))
	assert.False(t, args.HasFlag("--missing"))
}
