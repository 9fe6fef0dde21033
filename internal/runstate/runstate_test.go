package runstate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sniffer/internal/core"
)

func awaitAsync(c *Controller) <-chan State {
	ch := make(chan State, 1)
	go func() { ch <- c.Await() }()
	return ch
}

func TestControllerTransitions(t *testing.T) {
	c := NewController()
	assert.Equal(t, Init, c.State())

	assert.False(t, c.Pause(), "pause from init is a no-op")
	assert.Equal(t, Init, c.State())

	require.NoError(t, c.Start())
	assert.Equal(t, Running, c.State())

	require.NoError(t, c.Start(), "start while running is a no-op")
	assert.Equal(t, Running, c.State())

	assert.True(t, c.Pause())
	assert.Equal(t, Paused, c.State())
	assert.False(t, c.Pause())

	require.NoError(t, c.Start())
	assert.Equal(t, Running, c.State())

	c.Stop()
	assert.Equal(t, Stopped, c.State())

	assert.ErrorIs(t, c.Start(), core.ErrStopped)
	assert.False(t, c.Pause())
	assert.Equal(t, Stopped, c.State())
}

func TestStopFromEveryState(t *testing.T) {
	setups := map[State]func(c *Controller){
		Init:    func(c *Controller) {},
		Running: func(c *Controller) { _ = c.Start() },
		Paused:  func(c *Controller) { _ = c.Start(); c.Pause() },
		Stopped: func(c *Controller) { c.Stop() },
	}

	for from, setup := range setups {
		t.Run(from.String(), func(t *testing.T) {
			c := NewController()
			setup(c)
			require.Equal(t, from, c.State())

			c.Stop()
			assert.Equal(t, Stopped, c.State())

			select {
			case s := <-awaitAsync(c):
				assert.Equal(t, Stopped, s)
			case <-time.After(time.Second):
				t.Fatal("Await blocked after Stop")
			}
		})
	}
}

func TestAwaitBlocksUntilStart(t *testing.T) {
	c := NewController()
	ch := awaitAsync(c)

	select {
	case s := <-ch:
		t.Fatalf("Await returned %v while in init", s)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Start())
	select {
	case s := <-ch:
		assert.Equal(t, Running, s)
	case <-time.After(time.Second):
		t.Fatal("Await did not wake on Start")
	}
}

func TestAwaitBlocksWhilePaused(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Start())
	c.Pause()

	ch := awaitAsync(c)
	select {
	case <-ch:
		t.Fatal("Await returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.Stop()
	select {
	case s := <-ch:
		assert.Equal(t, Stopped, s)
	case <-time.After(time.Second):
		t.Fatal("Await did not wake on Stop")
	}
}

func TestAwaitWakesAllWaiters(t *testing.T) {
	c := NewController()
	var wg sync.WaitGroup
	var woke atomic.Int32

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Await()
			woke.Add(1)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Start())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke")
	}
	assert.Equal(t, int32(10), woke.Load())
}

func TestOnChange(t *testing.T) {
	c := NewController()
	var seen []State
	c.OnChange(func(s State) { seen = append(seen, s) })

	_ = c.Start()
	_ = c.Start()
	c.Pause()
	c.Stop()
	c.Stop()

	assert.Equal(t, []State{Running, Paused, Stopped}, seen)
}

func TestStateText(t *testing.T) {
	for _, s := range AllStates() {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	var s State
	assert.Error(t, s.UnmarshalText([]byte("exploded")))
}
