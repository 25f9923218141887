package theta

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSharedSketch is a minimal, single-threaded ConcurrentSharedSketch
// used only to exercise the interface contract in tests; it is not a
// production implementation (none is in scope).
type stubSharedSketch struct {
	mu    sync.Mutex
	theta uint64
	acc   []uint64
}

func newStubSharedSketch() *stubSharedSketch {
	return &stubSharedSketch{theta: MaxTheta}
}

func (s *stubSharedSketch) Propagate(_ context.Context, buf Sketch, _ bool, done *AtomicFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range buf.All() {
		s.acc = append(s.acc, h)
	}
	if t := buf.Theta64(); t < s.theta {
		s.theta = t
	}
	if done != nil {
		done.Set()
	}
	return nil
}

func (s *stubSharedSketch) PropagateHash(_ context.Context, hash uint64, _ bool, done *AtomicFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acc = append(s.acc, hash)
	if done != nil {
		done.Set()
	}
	return nil
}

func (s *stubSharedSketch) VolatileTheta() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theta
}

func (s *stubSharedSketch) StartEagerPropagation() { s.mu.Lock() }
func (s *stubSharedSketch) EndPropagation()        { s.mu.Unlock() }

func (s *stubSharedSketch) AwaitBackgroundPropagationTermination() {}

var _ ConcurrentSharedSketch = (*stubSharedSketch)(nil)

func TestAtomicFlagSetIsSet(t *testing.T) {
	flag := NewAtomicFlag()
	assert.False(t, flag.IsSet())
	flag.Set()
	assert.True(t, flag.IsSet())
}

func TestConcurrentSharedSketchContractViaStub(t *testing.T) {
	shared := newStubSharedSketch()
	a := sketchOf(t, DefaultSeed, []uint64{1, 2, 3}, MaxTheta, true)

	done := NewAtomicFlag()
	require.NoError(t, shared.Propagate(context.Background(), a, true, done))
	assert.True(t, done.IsSet())
	assert.Equal(t, MaxTheta, shared.VolatileTheta())

	require.NoError(t, shared.PropagateHash(context.Background(), 42, false, nil))
	shared.AwaitBackgroundPropagationTermination()
}
