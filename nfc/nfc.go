package nfc

import (
	"io"
	"time"
)

type CardState int

const (
	// Activated means a card was presented to the scanner.
	Activated CardState = iota
	// Deactivated means the scanner no longer sees a card. Playback is
	// not tied to card presence, so this is informational.
	Deactivated
	// ReaderFault is a synthetic event emitted while the scanner hardware
	// is degraded, so downstream layers can surface the condition.
	ReaderFault
)

func (s CardState) String() string {
	switch s {
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	case ReaderFault:
		return "reader-fault"
	default:
		return "unknown"
	}
}

type CardEvent struct {
	CardID string
	State  CardState
	Time   time.Time
}

// CardReader produces an endless sequence of card events. The channel only
// closes when the reader is closed; hardware trouble is reported through
// ReaderFault events, never by ending the sequence.
type CardReader interface {
	io.Closer
	Events() <-chan CardEvent
}
