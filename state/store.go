// Package state persists the little bits of player state that must
// survive restarts and outlive any single playback session: the volume
// level and per-card playback positions for podcast resume.
package state

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"
)

type Store struct {
	instance *buntdb.DB
}

// Open opens (or creates) the state database at path. Use ":memory:" for
// a throwaway store.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &Store{instance: db}, nil
}

func (s *Store) Close() error {
	return s.instance.Close()
}

// Volume returns the stored volume level, or fallback when none is stored.
func (s *Store) Volume(fallback int) int {
	level := fallback
	s.instance.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get("volume")
		if err != nil {
			return err
		}
		if parsed, err := strconv.Atoi(v); err == nil {
			level = parsed
		}
		return nil
	})
	return level
}

func (s *Store) SetVolume(level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return s.instance.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("volume", strconv.Itoa(level), nil)
		return err
	})
}

// Position returns the saved playback position for a card, or zero when
// the card has none.
func (s *Store) Position(cardID string) time.Duration {
	var pos time.Duration
	s.instance.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(positionKey(cardID))
		if err != nil {
			return err
		}
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			pos = time.Duration(secs) * time.Second
		}
		return nil
	})
	return pos
}

func (s *Store) SetPosition(cardID string, pos time.Duration) error {
	return s.instance.Update(func(tx *buntdb.Tx) error {
		secs := int64(pos / time.Second)
		if secs <= 0 {
			_, err := tx.Delete(positionKey(cardID))
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		_, _, err := tx.Set(positionKey(cardID), strconv.FormatInt(secs, 10), nil)
		return err
	})
}

func positionKey(cardID string) string {
	return fmt.Sprintf("pos:%v", cardID)
}
