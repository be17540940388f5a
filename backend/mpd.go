package backend

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	log "github.com/sirupsen/logrus"
)

// MPD drives a Music Player Daemon over its TCP protocol. The connection
// is created lazily and re-dialed after any protocol error, so a bounced
// daemon heals on the next call.
type MPD struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	client *mpd.Client
	// pending is non-nil while a timed-out call is still draining on its
	// abandoned connection. Closed once that connection is gone.
	pending chan struct{}
}

// NewMPD creates an adapter for the daemon at addr (host:port). Timeout
// bounds every single call.
func NewMPD(addr string, timeout time.Duration) *MPD {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MPD{addr: addr, timeout: timeout}
}

func (m *MPD) Play(ctx context.Context, url string) error {
	log.Debugf("MPD play %v", url)
	return m.do(ctx, func(c *mpd.Client) error {
		if err := c.Clear(); err != nil {
			return err
		}
		if err := c.Add(url); err != nil {
			return err
		}
		return c.Play(-1)
	})
}

func (m *MPD) Stop(ctx context.Context) error {
	log.Debugln("MPD stop")
	return m.do(ctx, func(c *mpd.Client) error {
		if err := c.Stop(); err != nil {
			return err
		}
		return c.Clear()
	})
}

func (m *MPD) SetVolume(ctx context.Context, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return m.do(ctx, func(c *mpd.Client) error {
		return c.SetVolume(level)
	})
}

func (m *MPD) Seek(ctx context.Context, pos time.Duration) error {
	return m.do(ctx, func(c *mpd.Client) error {
		return c.Seek(0, int(pos/time.Second))
	})
}

func (m *MPD) Status(ctx context.Context) (Status, error) {
	var status Status
	err := m.do(ctx, func(c *mpd.Client) error {
		attrs, err := c.Status()
		if err != nil {
			return err
		}
		status = mapStatus(attrs)
		return nil
	})
	return status, err
}

func (m *MPD) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

// do runs one command against the daemon, bounded by the adapter timeout
// and ctx. The worker goroutine owns the connection for the duration of
// the call: on timeout the connection is abandoned to it and closed once
// the command has died, so a later call never touches a socket another
// goroutine still uses.
func (m *MPD) do(ctx context.Context, cmd func(*mpd.Client) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// An abandoned command keeps the wire until it has fully drained. No
	// new command may be sent before then: a preempted session's play
	// must never reach the daemon after the stop that was meant to bury
	// it.
	if m.pending != nil {
		select {
		case <-m.pending:
			m.pending = nil
		case <-ctx.Done():
			return fmt.Errorf("mpd %v: %w", m.addr, ErrUnavailable)
		}
	}

	existing := m.client
	m.client = nil

	type outcome struct {
		client *mpd.Client
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		c := existing
		if c != nil {
			if err := c.Ping(); err != nil {
				c.Close()
				c = nil
				log.Debugf("MPD connection to %v went stale, redialing", m.addr)
			}
		}
		if c == nil {
			var err error
			c, err = mpd.Dial("tcp", m.addr)
			if err != nil {
				done <- outcome{err: err}
				return
			}
			log.Infof("Connected to MPD at %v", m.addr)
		}
		done <- outcome{client: c, err: cmd(c)}
	}()

	select {
	case <-ctx.Done():
		drained := make(chan struct{})
		m.pending = drained
		go func() {
			defer close(drained)
			if o := <-done; o.client != nil {
				o.client.Close()
			}
		}()
		return fmt.Errorf("mpd %v: %w", m.addr, ErrUnavailable)
	case o := <-done:
		if o.err != nil {
			if o.client != nil {
				o.client.Close()
			}
			return fmt.Errorf("mpd %v: %v: %w", m.addr, o.err, ErrUnavailable)
		}
		m.client = o.client
		return nil
	}
}

func mapStatus(attrs mpd.Attrs) Status {
	var s Status
	if e, err := strconv.ParseFloat(attrs["elapsed"], 64); err == nil {
		s.Elapsed = time.Duration(e * float64(time.Second))
	}

	if attrs["error"] != "" {
		s.State = Failed
		return s
	}
	switch attrs["state"] {
	case "play":
		s.State = Playing
	case "pause":
		// the controller never pauses; someone else grabbed the transport
		s.State = Stopped
	default:
		s.State = Stopped
	}
	return s
}
