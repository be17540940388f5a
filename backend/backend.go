// Package backend talks to the external audio player. It is the only
// place that knows the player's protocol; the rest of the system sees the
// four-operation Backend contract.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is reported when the player does not answer within the
// call deadline. The controller decides whether that means reconnect or
// give up.
var ErrUnavailable = errors.New("audio backend unavailable")

type PlayerState int

const (
	Stopped PlayerState = iota
	Playing
	Buffering
	Failed
)

func (s PlayerState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Buffering:
		return "buffering"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Status struct {
	State PlayerState
	// Elapsed is the playback position within the current stream, when
	// the player reports one.
	Elapsed time.Duration
}

// Backend is the control surface of the external player. Every call must
// come back within the deadline on ctx; a silent player yields
// ErrUnavailable.
type Backend interface {
	// Play replaces whatever is playing with the given stream URL and
	// starts playback.
	Play(ctx context.Context, url string) error
	// Stop halts playback and releases the stream.
	Stop(ctx context.Context) error
	// SetVolume sets the output level (0-100) without interrupting an
	// active stream.
	SetVolume(ctx context.Context, level int) error
	// Seek jumps to the given position in the current stream.
	Seek(ctx context.Context, pos time.Duration) error
	Status(ctx context.Context) (Status, error)
	Close() error
}
