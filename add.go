package main

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/cards"
	"github.com/callebjorkell/nfc-radio/config"
	"github.com/callebjorkell/nfc-radio/nfc"
)

type cardSpec struct {
	id    string
	label string
	art   string
}

func radioSource(url string) cards.AudioSource {
	return cards.AudioSource{Type: cards.Radio, URL: url}
}

func podcastSource(url string, auth bool) cards.AudioSource {
	src := cards.AudioSource{Type: cards.Podcast, URL: url}
	if auth {
		src.Credentials = "token"
	}
	return src
}

func addCard(cfg config.Config, src cards.AudioSource, spec cardSpec) {
	id := spec.id
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

	m := cards.Mapping{ID: id, Source: src, Label: spec.label, Art: spec.art}
	if err := registry.Register(m); err != nil {
		if errors.Is(err, cards.ErrCardExists) {
			log.Fatalf("Card %v is already registered. Remove it first, or tap a different card.", id)
		}
		log.Fatal(err)
	}
	fmt.Printf("Registered card %v: %v\n", id, src)
}

// readSingleCard waits for one card tap on the reader and returns its id.
func readSingleCard(cfg config.Config) (string, error) {
	reader, err := nfc.CreateReader(cfg.NFC.ResetPin, cfg.NFC.IRQPin)
	if err != nil {
		return "", fmt.Errorf("could not initialize the card reader: %w", err)
	}
	defer reader.Close()

	fmt.Println("Tap a card...")
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-reader.Events():
			if !ok {
				return "", errors.New("card reader closed")
			}
			if ev.State == nfc.Activated {
				return ev.CardID, nil
			}
		case <-timeout:
			return "", errors.New("no card presented within 30s")
		}
	}
}
