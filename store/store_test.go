package store

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testState struct {
	A     int
	B     int
	Items []string
	Tags  map[string]string
}

func setA(v int) Patch[testState] { return func(s *testState) { s.A = v } }
func setB(v int) Patch[testState] { return func(s *testState) { s.B = v } }

func TestStore_GetStateInitial(t *testing.T) {
	st := New(testState{A: 7})
	assert.Equal(t, 7, st.GetState().A)
	assert.Equal(t, uint64(0), st.Version())
}

func TestStore_UpdateMergesPartials(t *testing.T) {
	st := New(testState{})

	st.Update(setA(1))
	st.Update(setB(2))

	assert.Equal(t, testState{A: 1, B: 2}, st.GetState())
	assert.Equal(t, uint64(2), st.Version())
}

func TestStore_LastWriteWinsPerField(t *testing.T) {
	st := New(testState{})

	st.Update(setA(1), setB(1))
	st.Update(setA(2))
	st.Update(setA(3), setA(4))

	got := st.GetState()
	assert.Equal(t, 4, got.A)
	assert.Equal(t, 1, got.B)
}

func TestStore_SnapshotsAreIndependent(t *testing.T) {
	st := New(testState{})
	before := st.GetState()

	st.Update(setA(5))

	assert.Equal(t, 0, before.A, "earlier snapshot must not change")
	assert.Equal(t, 5, st.GetState().A)
}

func TestStore_ListenerReceivesEveryUpdate(t *testing.T) {
	st := New(testState{})

	var calls int
	var last testState
	st.AddListener(func(s testState) {
		calls++
		last = s
	})

	const n = 25
	for i := 1; i <= n; i++ {
		st.Update(setA(i))
	}

	assert.Equal(t, n, calls)
	assert.Equal(t, n, last.A)
}

func TestStore_UpdateWithoutPatchesNotifies(t *testing.T) {
	st := New(testState{A: 1})

	var calls int
	st.AddListener(func(testState) { calls++ })
	st.Update()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, st.GetState().A)
}

func TestStore_ListenersCalledInRegistrationOrder(t *testing.T) {
	st := New(testState{})

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		st.AddListener(func(testState) { order = append(order, i) })
	}
	st.Update(setA(1))

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestStore_UnregisterIsIdempotent(t *testing.T) {
	st := New(testState{})

	var calls int
	unregister := st.AddListener(func(testState) { calls++ })
	other := st.AddListener(func(testState) {})

	unregister()
	unregister()
	unregister()

	assert.Equal(t, 1, st.ListenerCount(), "only the first call removes the listener")

	st.Update(setA(1))
	assert.Equal(t, 0, calls)

	other()
	assert.Equal(t, 0, st.ListenerCount())
}

func TestStore_UnregisterDuringNotification(t *testing.T) {
	st := New(testState{})

	var firstCalls, secondCalls int
	var unregisterSecond func()

	st.AddListener(func(testState) {
		firstCalls++
		unregisterSecond()
	})
	unregisterSecond = st.AddListener(func(testState) { secondCalls++ })

	st.Update(setA(1))
	st.Update(setA(2))

	assert.Equal(t, 2, firstCalls)
	assert.Equal(t, 0, secondCalls, "listener removed mid-round must not run again")
}

func TestStore_SelfUnregisterDuringNotification(t *testing.T) {
	st := New(testState{})

	var calls int
	var unregister func()
	unregister = st.AddListener(func(testState) {
		calls++
		unregister()
	})

	st.Update(setA(1))
	st.Update(setA(2))

	assert.Equal(t, 1, calls)
}

func TestStore_NestedUpdateDeliveredInOrder(t *testing.T) {
	st := New(testState{})

	var seen []int
	st.AddListener(func(s testState) {
		seen = append(seen, s.A)
		if s.A == 1 {
			// nested update from inside a listener
			st.Update(setA(2))
			assert.Equal(t, 2, st.GetState().A)
		}
	})

	st.Update(setA(1))

	assert.Equal(t, []int{1, 2}, seen)
}

func TestStore_NilListenerIgnored(t *testing.T) {
	st := New(testState{})
	unregister := st.AddListener(nil)
	require.NotNil(t, unregister)
	unregister()
	assert.Equal(t, 0, st.ListenerCount())
}

func TestStore_ListenerPanicRecovered(t *testing.T) {
	st := New(testState{}, WithLogger(zaptest.NewLogger(t)))

	var after int
	st.AddListener(func(testState) { panic("boom") })
	st.AddListener(func(testState) { after++ })

	assert.NotPanics(t, func() { st.Update(setA(1)) })
	assert.Equal(t, 1, after, "listeners after a panicking one still run")
}

func TestStore_ConcurrentUpdatesDeliverEveryNotification(t *testing.T) {
	st := New(testState{})

	var received atomic.Int64
	var active atomic.Int32
	var overlapped atomic.Bool
	st.AddListener(func(testState) {
		if active.Add(1) > 1 {
			overlapped.Store(true)
		}
		received.Add(1)
		active.Add(-1)
	})

	const workers, perWorker = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				st.Update(func(s *testState) { s.A++ })
				_ = st.GetState()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, st.GetState().A)
	assert.Equal(t, uint64(workers*perWorker), st.Version())
	assert.Eventually(t, func() bool {
		return received.Load() == workers*perWorker
	}, timeoutShort, tick)
	assert.False(t, overlapped.Load(), "notifications must never run concurrently")
}
