package stream_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/leadwatch/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delay = 80 * time.Millisecond

// testServer is a websocket endpoint that hands accepted connections to the
// test and can refuse upgrades with a fixed status.
type testServer struct {
	*httptest.Server
	url    string
	conns  chan *websocket.Conn
	hits   atomic.Int32
	status atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{conns: make(chan *websocket.Conn, 16)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if code := s.status.Load(); code != 0 {
			http.Error(w, "refused", int(code))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	s.url = "ws" + strings.TrimPrefix(s.Server.URL, "http")
	t.Cleanup(s.Close)
	return s
}

// accept waits for the next connection and consumes its auth frame.
func (s *testServer) accept(t *testing.T) (*websocket.Conn, map[string]any) {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var auth map[string]any
		require.NoError(t, conn.ReadJSON(&auth))
		return conn, auth
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil, nil
	}
}

type recorder struct {
	mu          sync.Mutex
	connects    int
	disconnects []error
	frames      []string
}

func (r *recorder) options(url, token string) stream.Options {
	return stream.Options{
		URL:            url,
		Tokens:         stream.StaticToken(token),
		ReconnectDelay: delay,
		OnConnect: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connects++
		},
		OnDisconnect: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects = append(r.disconnects, err)
		},
		OnFrame: func(b []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.frames = append(r.frames, string(b))
		},
	}
}

func (r *recorder) snapshot() (int, []error, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, append([]error(nil), r.disconnects...), append([]string(nil), r.frames...)
}

func newManager(t *testing.T, opts stream.Options) *stream.Manager {
	t.Helper()
	m := stream.New(opts)
	t.Cleanup(m.Disconnect)
	return m
}

func waitOpen(t *testing.T, m *stream.Manager) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == stream.StateOpen }, 2*time.Second, 5*time.Millisecond)
}

func TestConnectSendsAuthFrame(t *testing.T) {
	srv := newTestServer(t)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "tok-1"))

	require.NoError(t, m.Connect())
	_, auth := srv.accept(t)

	assert.Equal(t, "auth", auth["type"])
	assert.Equal(t, "tok-1", auth["token"])

	waitOpen(t, m)
	assert.False(t, m.OpenedAt().IsZero())
	require.Eventually(t, func() bool { c, _, _ := rec.snapshot(); return c == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnectWithoutTokenDialsNothing(t *testing.T) {
	srv := newTestServer(t)
	m := newManager(t, (&recorder{}).options(srv.url, ""))

	assert.ErrorIs(t, m.Connect(), stream.ErrNoToken)
	assert.Equal(t, stream.StateClosed, m.State())
	assert.Zero(t, srv.hits.Load())
}

func TestFramesDeliveredInArrivalOrder(t *testing.T) {
	srv := newTestServer(t)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "tok"))

	require.NoError(t, m.Connect())
	conn, _ := srv.accept(t)

	want := []string{
		`{"type":"job_started","payload":{}}`,
		`{"type":"lead","payload":{"lead":{"domain":"a.nl"}}}`,
		`{"type":"job_done","payload":{}}`,
	}
	for _, f := range want {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	require.Eventually(t, func() bool { _, _, f := rec.snapshot(); return len(f) == len(want) }, 2*time.Second, 5*time.Millisecond)
	_, _, frames := rec.snapshot()
	assert.Equal(t, want, frames)
}

func TestConcurrentConnectOpensOneConnection(t *testing.T) {
	srv := newTestServer(t)
	m := newManager(t, (&recorder{}).options(srv.url, "tok"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Connect())
		}()
	}
	wg.Wait()

	srv.accept(t)
	waitOpen(t, m)
	require.NoError(t, m.Connect(), "connect while open is a no-op")
	time.Sleep(2 * delay)

	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestReconnectsOnceAfterInvoluntaryClose(t *testing.T) {
	srv := newTestServer(t)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "tok"))

	require.NoError(t, m.Connect())
	conn, _ := srv.accept(t)
	waitOpen(t, m)

	dropped := time.Now()
	conn.Close()

	_, auth := srv.accept(t)
	assert.GreaterOrEqual(t, time.Since(dropped), delay, "reconnect waits for the backoff")
	assert.Equal(t, "auth", auth["type"], "the new connection re-authenticates")

	waitOpen(t, m)
	time.Sleep(3 * delay)
	assert.Equal(t, int32(2), srv.hits.Load())

	connects, disconnects, _ := rec.snapshot()
	assert.Equal(t, 2, connects)
	require.Len(t, disconnects, 1)
	assert.Error(t, disconnects[0])
}

func TestNoReconnectAfterDisconnect(t *testing.T) {
	srv := newTestServer(t)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "tok"))

	require.NoError(t, m.Connect())
	srv.accept(t)
	waitOpen(t, m)

	m.Disconnect()
	time.Sleep(3 * delay)

	assert.Equal(t, stream.StateClosed, m.State())
	assert.Equal(t, int32(1), srv.hits.Load())

	_, disconnects, _ := rec.snapshot()
	assert.Equal(t, []error{nil}, disconnects)

	m.Disconnect()
	_, disconnects, _ = rec.snapshot()
	assert.Len(t, disconnects, 1, "second disconnect emits nothing")
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv := newTestServer(t)
	m := newManager(t, (&recorder{}).options(srv.url, "tok"))

	require.NoError(t, m.Connect())
	conn, _ := srv.accept(t)
	waitOpen(t, m)

	conn.Close()
	require.Eventually(t, func() bool { return m.State() == stream.StateClosed }, time.Second, time.Millisecond)
	m.Disconnect()
	time.Sleep(3 * delay)

	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestConnectAgainAfterDisconnect(t *testing.T) {
	srv := newTestServer(t)
	m := newManager(t, (&recorder{}).options(srv.url, "tok"))

	require.NoError(t, m.Connect())
	srv.accept(t)
	waitOpen(t, m)
	m.Disconnect()

	require.NoError(t, m.Connect())
	srv.accept(t)
	waitOpen(t, m)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestPolicyCloseIsRejection(t *testing.T) {
	srv := newTestServer(t)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "stale"))

	require.NoError(t, m.Connect())
	conn, _ := srv.accept(t)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "invalid token")))

	require.Eventually(t, func() bool { _, d, _ := rec.snapshot(); return len(d) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * delay)

	_, disconnects, _ := rec.snapshot()
	require.Len(t, disconnects, 1)
	assert.ErrorIs(t, disconnects[0], stream.ErrAuthRejected)
	assert.Equal(t, int32(1), srv.hits.Load(), "no reconnect after rejection")
}

func TestHandshakeUnauthorizedIsRejection(t *testing.T) {
	srv := newTestServer(t)
	srv.status.Store(http.StatusUnauthorized)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "stale"))

	require.NoError(t, m.Connect())
	require.Eventually(t, func() bool { _, d, _ := rec.snapshot(); return len(d) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * delay)

	_, disconnects, _ := rec.snapshot()
	assert.ErrorIs(t, disconnects[0], stream.ErrAuthRejected)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestRejectClosesWithoutReconnect(t *testing.T) {
	srv := newTestServer(t)
	rec := &recorder{}
	m := newManager(t, rec.options(srv.url, "tok"))

	require.NoError(t, m.Connect())
	srv.accept(t)
	waitOpen(t, m)

	m.Reject(errors.New("authenticated: false"))
	time.Sleep(3 * delay)

	assert.Equal(t, stream.StateClosed, m.State())
	assert.Equal(t, int32(1), srv.hits.Load())
	_, disconnects, _ := rec.snapshot()
	require.Len(t, disconnects, 1)
	assert.ErrorIs(t, disconnects[0], stream.ErrAuthRejected)
}

func TestMaxReconnectsStopsRetrying(t *testing.T) {
	srv := newTestServer(t)
	srv.status.Store(http.StatusBadGateway)
	rec := &recorder{}
	opts := rec.options(srv.url, "tok")
	opts.ReconnectDelay = 10 * time.Millisecond
	opts.MaxReconnects = 2
	m := newManager(t, opts)

	require.NoError(t, m.Connect())
	require.Eventually(t, func() bool { _, d, _ := rec.snapshot(); return len(d) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	_, disconnects, _ := rec.snapshot()
	assert.ErrorIs(t, disconnects[0], stream.ErrRetriesExhausted)
	assert.Equal(t, int32(3), srv.hits.Load(), "initial dial plus two reconnects")
}

func TestSend(t *testing.T) {
	srv := newTestServer(t)
	m := newManager(t, (&recorder{}).options(srv.url, "tok"))

	assert.ErrorIs(t, m.Send(map[string]string{"type": "ping"}), stream.ErrNotConnected)

	require.NoError(t, m.Connect())
	conn, _ := srv.accept(t)
	waitOpen(t, m)

	require.NoError(t, m.Send(map[string]string{"type": "ping"}))
	var got map[string]string
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "ping", got["type"])
}
