package conn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.frames:
		return 1, b, nil
	case <-f.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

// dialScript returns a Dialer that pops one result per call.
type dialScript struct {
	mu    sync.Mutex
	socks []*fakeSocket // nil entry means dial failure
	calls int
}

func (d *dialScript) dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i >= len(d.socks) || d.socks[i] == nil {
		return nil, errors.New("dial refused")
	}
	return d.socks[i], nil
}

func (d *dialScript) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestBackoffSequence(t *testing.T) {
	base := 1000 * time.Millisecond
	cap := 30000 * time.Millisecond

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt, w := range want {
		assert.Equal(t, w, backoff(base, cap, attempt), "attempt %d", attempt)
	}

	// Huge attempt counts must not overflow past the cap.
	assert.Equal(t, cap, backoff(base, cap, 63))
}

func TestConnectAndDispatch(t *testing.T) {
	sock := newFakeSocket()
	script := &dialScript{socks: []*fakeSocket{sock}}

	var mu sync.Mutex
	var got [][]byte

	m := NewManager(Config{
		URL:       "ws://test/ws/alerts",
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Dial:      script.dial,
		Handler: func(frame []byte) {
			mu.Lock()
			got = append(got, frame)
			mu.Unlock()
		},
	})
	defer m.Close()

	m.Open()
	require.Eventually(t, func() bool { return m.State() == StateConnected }, time.Second, time.Millisecond)

	sock.frames <- []byte(`{"id":"e1"}`)
	sock.frames <- []byte(`{broken`) // dropped, no state change
	sock.frames <- []byte(`{"id":"e2"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, StateConnected, m.State())
}

func TestReconnectAfterDrop(t *testing.T) {
	first := newFakeSocket()
	second := newFakeSocket()
	script := &dialScript{socks: []*fakeSocket{first, second}}

	var mu sync.Mutex
	var states []State

	m := NewManager(Config{
		URL:       "ws://test/ws/alerts",
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Dial:      script.dial,
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	defer m.Close()

	m.Open()
	require.Eventually(t, func() bool { return m.State() == StateConnected }, time.Second, time.Millisecond)

	// Unclean closure: manager must redial.
	first.Close()
	require.Eventually(t, func() bool { return script.dialCount() == 2 && m.State() == StateConnected }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected, StateConnecting, StateConnected}, states)
}

func TestAttemptResetOnlyOnSuccess(t *testing.T) {
	// Two refused dials, then success.
	script := &dialScript{socks: []*fakeSocket{nil, nil, newFakeSocket()}}

	m := NewManager(Config{
		URL:       "ws://test/ws/alerts",
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Dial:      script.dial,
	})
	defer m.Close()

	m.Open()
	require.Eventually(t, func() bool { return m.State() == StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, 3, script.dialCount())

	// A successful handshake resets the counter so the next failure
	// starts the sequence over at the base delay.
	m.mu.Lock()
	attempt := m.attempt
	m.mu.Unlock()
	assert.Equal(t, 0, attempt)
}

func TestCloseIsTerminal(t *testing.T) {
	// Every dial refused; the manager keeps scheduling retries until
	// Close cancels the pending timer.
	script := &dialScript{}

	m := NewManager(Config{
		URL:       "ws://test/ws/alerts",
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
		Dial:      script.dial,
	})

	m.Open()
	require.Eventually(t, func() bool { return script.dialCount() >= 3 }, time.Second, time.Millisecond)

	m.Close()
	assert.Equal(t, StateDisconnected, m.State())

	stable := script.dialCount()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, script.dialCount(), stable+1) // at most one in-flight dial completes
	assert.Equal(t, StateDisconnected, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "errored", StateErrored.String())
}
