package backend

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMPD speaks just enough of the MPD protocol for the adapter: it
// greets with a banner, acknowledges every command with OK and answers
// status with a canned attribute set.
type fakeMPD struct {
	listener net.Listener

	mu       sync.Mutex
	commands []string
	status   map[string]string
	addDelay time.Duration
}

func newFakeMPD(t *testing.T) *fakeMPD {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeMPD{listener: l, status: map[string]string{"state": "stop"}}
	go f.serve()
	t.Cleanup(func() { l.Close() })
	return f
}

func (f *fakeMPD) addr() string {
	return f.listener.Addr().String()
}

func (f *fakeMPD) setStatus(attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = attrs
}

func (f *fakeMPD) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeMPD) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeMPD) handle(conn net.Conn) {
	defer conn.Close()
	fmt.Fprint(conn, "OK MPD 0.23.5\n")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		f.mu.Lock()
		f.commands = append(f.commands, line)
		status := f.status
		delay := f.addDelay
		f.mu.Unlock()

		if delay > 0 && strings.HasPrefix(line, "add ") {
			time.Sleep(delay)
		}

		switch {
		case line == "close":
			return
		case strings.HasPrefix(line, "status"):
			for k, v := range status {
				fmt.Fprintf(conn, "%v: %v\n", k, v)
			}
			fmt.Fprint(conn, "OK\n")
		default:
			fmt.Fprint(conn, "OK\n")
		}
	}
}

func TestMPDPlaySendsClearAddPlay(t *testing.T) {
	f := newFakeMPD(t)
	m := NewMPD(f.addr(), time.Second)
	defer m.Close()

	err := m.Play(context.Background(), "http://radio.example/stream")
	require.NoError(t, err)

	seen := strings.Join(f.seen(), "\n")
	assert.Contains(t, seen, "clear")
	assert.Contains(t, seen, `add "http://radio.example/stream"`)
	assert.Contains(t, seen, "play")
	assert.Less(t, strings.Index(seen, "clear"), strings.Index(seen, "play"), "clear must precede play")
}

func TestMPDStatus(t *testing.T) {
	f := newFakeMPD(t)
	m := NewMPD(f.addr(), time.Second)
	defer m.Close()

	f.setStatus(map[string]string{"state": "play", "elapsed": "12.500"})

	s, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Playing, s.State)
	assert.Equal(t, 12500*time.Millisecond, s.Elapsed)
}

func TestMPDReusesConnection(t *testing.T) {
	f := newFakeMPD(t)
	m := NewMPD(f.addr(), time.Second)
	defer m.Close()

	require.NoError(t, m.SetVolume(context.Background(), 30))
	require.NoError(t, m.Stop(context.Background()))

	// the second call pings the live connection instead of redialing
	assert.Contains(t, f.seen(), "ping")
}

func TestMPDUnreachable(t *testing.T) {
	m := NewMPD("127.0.0.1:1", 500*time.Millisecond)
	defer m.Close()

	err := m.Play(context.Background(), "http://radio.example/stream")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMPDTimeout(t *testing.T) {
	// accepts the connection but never sends a banner
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	m := NewMPD(l.Addr().String(), 300*time.Millisecond)
	defer m.Close()

	start := time.Now()
	err = m.Stop(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTimedOutPlayNeverOutlivesStop(t *testing.T) {
	f := newFakeMPD(t)
	f.mu.Lock()
	f.addDelay = 500 * time.Millisecond
	f.mu.Unlock()

	m := NewMPD(f.addr(), 200*time.Millisecond)
	defer m.Close()

	// the add reply outlasts the deadline, so the call gets abandoned
	err := m.Play(context.Background(), "http://old.example/a")
	require.ErrorIs(t, err, ErrUnavailable)

	// a stop right away must refuse rather than overtake the dead play
	err = m.Stop(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	// once the abandoned command has drained, stop goes through
	assert.Eventually(t, func() bool {
		return m.Stop(context.Background()) == nil
	}, 3*time.Second, 50*time.Millisecond)

	seen := f.seen()
	stop := -1
	for i, c := range seen {
		if c == "stop" {
			stop = i
			break
		}
	}
	require.NotEqual(t, -1, stop, "stop never reached the daemon: %v", seen)
	for _, c := range seen[stop:] {
		assert.NotEqual(t, "play", c, "abandoned play reached the daemon after stop: %v", seen)
		assert.NotEqual(t, `add "http://old.example/a"`, c, "abandoned add reached the daemon after stop: %v", seen)
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		name  string
		attrs mpd.Attrs
		want  PlayerState
	}{
		{"playing", mpd.Attrs{"state": "play"}, Playing},
		{"stopped", mpd.Attrs{"state": "stop"}, Stopped},
		{"paused counts as stopped", mpd.Attrs{"state": "pause"}, Stopped},
		{"decoder error", mpd.Attrs{"state": "play", "error": "Failed to decode"}, Failed},
		{"empty", mpd.Attrs{}, Stopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapStatus(tt.attrs).State)
		})
	}
}

func TestMPDRedialsAfterBounce(t *testing.T) {
	f := newFakeMPD(t)
	addr := f.addr()
	m := NewMPD(addr, time.Second)
	defer m.Close()

	require.NoError(t, m.SetVolume(context.Background(), 10))

	// bounce the daemon on the same port; the stale ping fails and the
	// adapter redials
	f.listener.Close()
	l, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	f2 := &fakeMPD{listener: l, status: map[string]string{"state": "stop"}}
	go f2.serve()
	t.Cleanup(func() { l.Close() })

	assert.NoError(t, m.SetVolume(context.Background(), 20))
}

func TestDiscoverPicksFastest(t *testing.T) {
	fast := newBannerServer(t, 0)
	slow := newBannerServer(t, 400*time.Millisecond)

	addr, err := Discover(context.Background(), []string{slow, fast}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fast, addr)
}

func TestDiscoverSkipsDeadServers(t *testing.T) {
	alive := newBannerServer(t, 0)

	addr, err := Discover(context.Background(), []string{"127.0.0.1:1", alive}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, alive, addr)
}

func TestDiscoverNoneAvailable(t *testing.T) {
	_, err := Discover(context.Background(), []string{"127.0.0.1:1", "127.0.0.1:2"}, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDiscoverRejectsImpostor(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			fmt.Fprint(conn, "220 smtp.example ESMTP\n")
			conn.Close()
		}
	}()

	_, err = Discover(context.Background(), []string{l.Addr().String()}, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnavailable)
}

// newBannerServer answers with an MPD banner after the given delay.
func newBannerServer(t *testing.T, delay time.Duration) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				time.Sleep(delay)
				fmt.Fprint(conn, "OK MPD 0.23.5\n")
				bufio.NewScanner(conn).Scan()
			}(conn)
		}
	}()
	return l.Addr().String()
}
