package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/backend"
	"github.com/callebjorkell/nfc-radio/cards"
	"github.com/callebjorkell/nfc-radio/nfc"
	"github.com/callebjorkell/nfc-radio/source"
)

var (
	// ErrStartTimeout is reported when the backend never confirms that
	// playback began within the start deadline.
	ErrStartTimeout = errors.New("no playback confirmation from backend")
	// ErrReconnectFailed is reported when the reconnect budget for an
	// interrupted stream is exhausted.
	ErrReconnectFailed = errors.New("stream reconnection failed")
)

// Lookup resolves a card identifier to its registered audio source.
type Lookup interface {
	Lookup(id string) (cards.AudioSource, error)
}

// Resolver turns a registered source into a playable stream URL.
type Resolver interface {
	Resolve(ctx context.Context, src cards.AudioSource) (source.Resolved, error)
}

// Store persists volume and playback positions across sessions.
type Store interface {
	Volume(fallback int) int
	SetVolume(level int) error
	Position(cardID string) time.Duration
	SetPosition(cardID string, pos time.Duration) error
}

// Config tunes the controller timing. Zero values fall back to the
// defaults below.
type Config struct {
	StartTimeout      time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PollInterval      time.Duration
	DefaultVolume     int
	VolumeStepSize    int
}

const (
	defaultStartTimeout   = 5 * time.Second
	defaultReconnects     = 3
	defaultReconnectDelay = 5 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultVolumeStep     = 5
	stopTimeout           = 5 * time.Second
)

// Controller owns the single playback session. It consumes debounced
// card events and drives the audio backend, never overlapping two
// sessions: a new accepted tap always completes the stop of the old
// session before the new play is issued.
type Controller struct {
	backend  backend.Backend
	registry Lookup
	resolver Resolver
	store    Store
	cfg      Config

	// OnState is invoked from the controller goroutine on every state
	// change. Set before calling Run.
	OnState func(State)

	commands chan int
	results  chan result

	state   State
	session *session
	gen     uint64
}

type session struct {
	cardID  string
	src     cards.AudioSource
	cancel  context.CancelFunc
	playing bool
}

type phase int

const (
	phaseResolve phase = iota
	phaseStart
	phaseReconnect
)

type result struct {
	gen   uint64
	phase phase
	err   error
}

// New creates a controller around the given collaborators.
func New(b backend.Backend, registry Lookup, resolver Resolver, store Store, cfg Config) *Controller {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = defaultReconnects
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.VolumeStepSize <= 0 {
		cfg.VolumeStepSize = defaultVolumeStep
	}
	return &Controller{
		backend:  b,
		registry: registry,
		resolver: resolver,
		store:    store,
		cfg:      cfg,
		commands: make(chan int, 4),
		results:  make(chan result, 4),
	}
}

// VolumeStep nudges the volume by delta steps (positive or negative)
// without interrupting playback. Safe to call from any goroutine.
func (c *Controller) VolumeStep(delta int) {
	select {
	case c.commands <- delta * c.cfg.VolumeStepSize:
	default:
		log.Debug("Volume command dropped, controller busy")
	}
}

// Run consumes events until ctx is cancelled or the event channel
// closes. It blocks; start it in its own goroutine.
func (c *Controller) Run(ctx context.Context, events <-chan nfc.CardEvent) error {
	level := c.store.Volume(c.cfg.DefaultVolume)
	if err := c.applyVolume(level); err != nil {
		log.Warnf("Could not restore volume: %v", err)
	} else {
		log.Infof("Restored volume to %v", level)
	}
	c.notify(Idle)

	poll := time.NewTicker(c.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			c.teardown("shutting down")
			return nil
		case ev, ok := <-events:
			if !ok {
				c.teardown("event source closed")
				return errors.New("card event source closed")
			}
			c.handleEvent(ev)
		case r := <-c.results:
			c.handleResult(r)
		case delta := <-c.commands:
			level := clampVolume(c.store.Volume(c.cfg.DefaultVolume) + delta)
			if err := c.applyVolume(level); err != nil {
				log.Warnf("Could not change volume: %v", err)
			} else {
				log.Infof("Volume set to %v", level)
			}
		case <-poll.C:
			c.checkPlayback()
		}
	}
}

func (c *Controller) handleEvent(ev nfc.CardEvent) {
	switch ev.State {
	case nfc.Activated:
		c.handleTap(ev.CardID)
	case nfc.Deactivated:
		// removal does not stop audio
		log.Debugf("Card %v removed, playback unaffected", ev.CardID)
	case nfc.ReaderFault:
		log.Warn("Card reader is degraded, taps may be missed")
	}
}

func (c *Controller) handleTap(id string) {
	if c.session != nil && c.session.cardID == id && (c.state == Playing || c.state == Reconnecting) {
		log.Debugf("Card %v is already playing, ignoring tap", id)
		return
	}

	src, err := c.registry.Lookup(id)
	if err != nil {
		log.Warnf("Tapped card %v: %v", id, err)
		if c.session == nil {
			// an unknown card never enters Resolving and never touches
			// a running session
			c.fail(err)
		}
		return
	}

	c.stopSession()

	log.Infof("Starting %v for card %v", src, id)
	sctx, cancel := context.WithCancel(context.Background())
	c.session = &session{cardID: id, src: src, cancel: cancel}
	c.gen++
	c.notify(Resolving)
	go c.runSession(sctx, c.gen, c.session.cardID, src)
}

// runSession resolves the source and starts playback, reporting each
// phase back to the event loop. It runs outside the loop so that a new
// tap can cancel it at any point.
func (c *Controller) runSession(ctx context.Context, gen uint64, cardID string, src cards.AudioSource) {
	resolved, err := c.resolver.Resolve(ctx, src)
	if err != nil {
		c.post(result{gen: gen, phase: phaseResolve, err: err})
		return
	}
	c.post(result{gen: gen, phase: phaseResolve})

	err = c.startPlayback(ctx, cardID, src, resolved.StreamURL)
	c.post(result{gen: gen, phase: phaseStart, err: err})
}

func (c *Controller) startPlayback(ctx context.Context, cardID string, src cards.AudioSource, url string) error {
	if err := c.backend.Play(ctx, url); err != nil {
		return err
	}
	if src.Type == cards.Podcast {
		if pos := c.store.Position(cardID); pos > 0 {
			log.Infof("Resuming %v at %v", cardID, pos)
			if err := c.backend.Seek(ctx, pos); err != nil {
				log.Warnf("Could not seek to saved position: %v", err)
			}
		}
	}
	return c.awaitPlaying(ctx)
}

// awaitPlaying polls the backend until it confirms playback, enforcing
// the start deadline.
func (c *Controller) awaitPlaying(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()

	every := c.cfg.StartTimeout / 20
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	if every > 250*time.Millisecond {
		every = 250 * time.Millisecond
	}
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		st, err := c.backend.Status(ctx)
		if err == nil {
			switch st.State {
			case backend.Playing:
				return nil
			case backend.Failed:
				return fmt.Errorf("backend reported a failed stream")
			}
		}
		select {
		case <-ctx.Done():
			return ErrStartTimeout
		case <-tick.C:
		}
	}
}

func (c *Controller) handleResult(r result) {
	if c.session == nil || r.gen != c.gen {
		// a preempted session reporting after its cancellation
		return
	}

	switch r.phase {
	case phaseResolve:
		if r.err != nil {
			log.Errorf("Could not resolve %v: %v", c.session.src, r.err)
			c.clearSession()
			c.fail(r.err)
			return
		}
		c.notify(Starting)
	case phaseStart:
		if r.err != nil {
			log.Errorf("Could not start %v: %v", c.session.src, r.err)
			c.releaseBackend()
			c.clearSession()
			c.fail(r.err)
			return
		}
		c.session.playing = true
		log.Infof("Playback started for card %v", c.session.cardID)
		c.notify(Playing)
	case phaseReconnect:
		if r.err != nil {
			log.Errorf("Giving up on %v: %v", c.session.src, r.err)
			c.releaseBackend()
			c.clearSession()
			c.fail(r.err)
			return
		}
		log.Info("Stream reconnected")
		c.notify(Playing)
	}
}

// checkPlayback watches for stream interruptions while playing.
func (c *Controller) checkPlayback() {
	if c.state != Playing || c.session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PollInterval)
	defer cancel()

	st, err := c.backend.Status(ctx)
	if err == nil && (st.State == backend.Playing || st.State == backend.Buffering) {
		return
	}
	if err != nil {
		log.Warnf("Backend unreachable while playing: %v", err)
	} else {
		log.Warnf("Stream interrupted (backend reports %v)", st.State)
	}
	c.reconnect()
}

func (c *Controller) reconnect() {
	c.notify(Reconnecting)
	s := c.session
	sctx, cancel := context.WithCancel(context.Background())
	old := s.cancel
	s.cancel = func() { cancel(); old() }

	go func(gen uint64, cardID string, src cards.AudioSource) {
		var err error
		for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
			select {
			case <-sctx.Done():
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}
			log.Infof("Reconnect attempt %v/%v", attempt, c.cfg.ReconnectAttempts)

			var resolved source.Resolved
			resolved, err = c.resolver.Resolve(sctx, src)
			if err != nil {
				continue
			}
			if err = c.startPlayback(sctx, cardID, src, resolved.StreamURL); err == nil {
				c.post(result{gen: gen, phase: phaseReconnect})
				return
			}
		}
		c.post(result{gen: gen, phase: phaseReconnect, err: fmt.Errorf("%v attempts: %v: %w", c.cfg.ReconnectAttempts, err, ErrReconnectFailed)})
	}(c.gen, s.cardID, s.src)
}

// stopSession tears down the active session, if any, completing the
// Stopping transition before returning. The caller may then start a new
// session knowing the backend is released.
func (c *Controller) stopSession() {
	if c.session == nil {
		return
	}
	s := c.session
	s.cancel()
	c.notify(Stopping)

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if s.playing && s.src.Type == cards.Podcast {
		if st, err := c.backend.Status(ctx); err == nil && st.Elapsed > 0 {
			log.Debugf("Saving position %v for card %v", st.Elapsed, s.cardID)
			if err := c.store.SetPosition(s.cardID, st.Elapsed); err != nil {
				log.Warnf("Could not save position: %v", err)
			}
		}
	}
	if err := c.backend.Stop(ctx); err != nil {
		log.Warnf("Backend stop failed: %v", err)
	}

	c.clearSession()
	c.notify(Idle)
}

func (c *Controller) clearSession() {
	if c.session != nil {
		c.session.cancel()
		c.session = nil
	}
	c.gen++
	// drain any result the cancelled worker already posted
	for {
		select {
		case <-c.results:
		default:
			return
		}
	}
}

// fail reports the error state and immediately re-arms for the next tap.
func (c *Controller) fail(err error) {
	log.Debugf("Session failed: %v", err)
	c.notify(Error)
	c.notify(Idle)
}

// releaseBackend makes sure a partially started stream is closed.
func (c *Controller) releaseBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := c.backend.Stop(ctx); err != nil {
		log.Debugf("Backend stop during cleanup failed: %v", err)
	}
}

func (c *Controller) teardown(reason string) {
	if c.session != nil {
		log.Infof("Stopping playback: %v", reason)
		c.stopSession()
	}
}

func (c *Controller) applyVolume(level int) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := c.backend.SetVolume(ctx, level); err != nil {
		return err
	}
	return c.store.SetVolume(level)
}

func (c *Controller) notify(s State) {
	c.state = s
	if c.OnState != nil {
		c.OnState(s)
	}
}

func (c *Controller) post(r result) {
	c.results <- r
}

func clampVolume(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
