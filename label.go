package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/cards"
	"github.com/callebjorkell/nfc-radio/config"
	"github.com/callebjorkell/nfc-radio/label"
)

func createLabel(cfg config.Config, id, out string) {
	if id == "" {
		var err error
		if id, err = readSingleCard(cfg); err != nil {
			log.Fatal(err)
		}
	}

	registry, err := cards.Open(cfg.CardsFile)
	if err != nil {
		log.Fatal(err)
	}
	m, err := registry.Get(id)
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.Create(out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	if err := label.Create(m, f); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wrote label for card %v to %v\n", id, out)
}
