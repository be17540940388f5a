package main

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/cards"
	"github.com/callebjorkell/nfc-radio/config"
)

func removeCard(cfg config.Config, id string) {
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

	if err := registry.Remove(id); err != nil {
		if errors.Is(err, cards.ErrUnknownCard) {
			log.Fatalf("Card %v is not registered", id)
		}
		log.Fatal(err)
	}
	fmt.Printf("Removed card %v\n", id)
}
