package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelTime(t *testing.T) {
	assert.Equal(t, "0:00:42", formatRelTime(42*time.Second))
	assert.Equal(t, "1:02:03", formatRelTime(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, 42*time.Second, parseRelTime("0:00:42"))
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, parseRelTime("1:02:03.250"))
	assert.Equal(t, time.Duration(0), parseRelTime("NOT_IMPLEMENTED"))
}

func TestTimedOutActionNeverOverlapsNext(t *testing.T) {
	u := &UPnP{name: "test renderer", timeout: 100 * time.Millisecond}

	var mu sync.Mutex
	var order []string
	mark := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	// outlasts the deadline, so the call is abandoned mid-flight
	err := u.call(context.Background(), func() error {
		mark("slow started")
		time.Sleep(400 * time.Millisecond)
		mark("slow finished")
		return nil
	})
	require.ErrorIs(t, err, ErrUnavailable)

	// an immediate follow-up must refuse rather than run alongside it
	err = u.call(context.Background(), func() error {
		mark("fast")
		return nil
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	// once the abandoned action has drained, calls work again
	assert.Eventually(t, func() bool {
		return u.call(context.Background(), func() error {
			mark("fast")
			return nil
		}) == nil
	}, 3*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	assert.Equal(t, []string{"slow started", "slow finished", "fast"}, order)
}
