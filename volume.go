package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/config"
	"github.com/callebjorkell/nfc-radio/state"
)

// setVolume stores the playback volume. A running player picks it up on
// its next start; the buttons change it live.
func setVolume(cfg config.Config, level int) {
	if level < 0 || level > 100 {
		log.Fatalf("Volume %v out of range 0-100", level)
	}

	store, err := state.Open(cfg.StateFile)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.SetVolume(level); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Volume set to %v\n", level)
}
