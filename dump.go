package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/cards"
	"github.com/callebjorkell/nfc-radio/config"
)

func dumpAll(cfg config.Config) {
	registry, err := cards.Open(cfg.CardsFile)
	if err != nil {
		log.Fatal(err)
	}

	all := registry.All()
	if len(all) == 0 {
		fmt.Println("No cards registered...")
		return
	}

	fmt.Println("    Card ID │ Type    │ Label                │ URL")
	fmt.Println("────────────┼─────────┼──────────────────────┼─────")
	for _, m := range all {
		fmt.Printf("%11v │ %-7v │ %-20v │ %v\n", m.ID, m.Source.Type, checkLength(m.Label, 20), checkLength(m.Source.URL, 60))
	}
}

func dumpCard(cfg config.Config, id string) {
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
	fmt.Println(m.String())
}

func checkLength(s string, l int) string {
	r := []rune(s)
	if len(r) > l {
		return string(r[:l]) + "…"
	}
	return s
}
