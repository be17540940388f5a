package nfc

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultDebounceWindow is used when the configured window makes no
	// sense. Taps of the same card within the window collapse into one.
	DefaultDebounceWindow = 500 * time.Millisecond
	maxDebounceWindow     = 10 * time.Second
)

// Debounce filters the raw event stream so that each physical tap comes
// out as exactly one Activated event. An Activated event passes when the
// card differs from the last accepted one, or when the window has elapsed
// since it. Deactivated and ReaderFault events pass through untouched.
//
// The returned channel closes when the input closes.
func Debounce(events <-chan CardEvent, window time.Duration) <-chan CardEvent {
	if window <= 0 || window > maxDebounceWindow {
		log.Warnf("Debounce window %v out of range, using %v", window, DefaultDebounceWindow)
		window = DefaultDebounceWindow
	}

	out := make(chan CardEvent, 1)
	go func() {
		defer close(out)
		var lastID string
		var lastAccepted time.Time
		for ev := range events {
			if ev.State != Activated {
				out <- ev
				continue
			}

			if ev.Time.IsZero() {
				ev.Time = time.Now()
			}
			if ev.CardID == lastID && ev.Time.Sub(lastAccepted) <= window {
				log.Debugf("Suppressing repeat tap of %v", ev.CardID)
				continue
			}

			lastID = ev.CardID
			lastAccepted = ev.Time
			out <- ev
		}
	}()
	return out
}
