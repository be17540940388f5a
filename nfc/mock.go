//go:build !pi

package nfc

import (
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CreateReader returns a mock reader for development off the Pi. It taps
// each card from NFC_RADIO_MOCK_CARDS (comma separated, default a1b2c3d4)
// in turn, holding every card for half a minute.
func CreateReader(resetPin, irqPin int) (CardReader, error) {
	ids := []string{"a1b2c3d4"}
	if env := os.Getenv("NFC_RADIO_MOCK_CARDS"); env != "" {
		ids = strings.Split(env, ",")
	}
	log.Infof("Using mock card reader with cards %v", ids)

	return &mockReader{
		init:   &sync.Once{},
		cards:  ids,
		events: make(chan CardEvent, 2),
		stop:   make(chan struct{}),
	}, nil
}

type mockReader struct {
	init   *sync.Once
	cards  []string
	events chan CardEvent
	stop   chan struct{}
}

func (m *mockReader) Close() error {
	close(m.stop)
	return nil
}

func (m *mockReader) Events() <-chan CardEvent {
	m.init.Do(func() {
		go func() {
			defer close(m.events)
			for i := 0; ; i++ {
				card := m.cards[i%len(m.cards)]
				select {
				case <-m.stop:
					return
				case m.events <- CardEvent{CardID: card, State: Activated, Time: time.Now()}:
				}
				select {
				case <-m.stop:
					return
				case <-time.After(30 * time.Second):
				}
				select {
				case <-m.stop:
					return
				case m.events <- CardEvent{State: Deactivated, Time: time.Now()}:
				}
				select {
				case <-m.stop:
					return
				case <-time.After(10 * time.Second):
				}
			}
		}()
	})
	return m.events
}
