package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/callebjorkell/nfc-radio/backend"
	"github.com/callebjorkell/nfc-radio/cards"
	"github.com/callebjorkell/nfc-radio/config"
	"github.com/callebjorkell/nfc-radio/nfc"
	"github.com/callebjorkell/nfc-radio/player"
	"github.com/callebjorkell/nfc-radio/source"
	"github.com/callebjorkell/nfc-radio/state"
	"github.com/callebjorkell/nfc-radio/ui"
)

// startServer wires the whole pipeline together and blocks until a
// signal arrives. Only unrecoverable startup failures exit the process;
// everything after that is handled and logged in place.
func startServer(cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-signalChan
		log.Infof("Received %v, shutting down", s)
		cancel()
	}()

	store, err := state.Open(cfg.StateFile)
	if err != nil {
		log.Fatal("Unable to open the state store: ", err)
	}
	defer store.Close()

	registry, err := cards.Open(cfg.CardsFile)
	if err != nil {
		log.Fatal("Unable to open the card registry: ", err)
	}
	go func() {
		if err := registry.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("Card registry is not watched for edits: %v", err)
		}
	}()

	reader, err := nfc.CreateReader(cfg.NFC.ResetPin, cfg.NFC.IRQPin)
	if err != nil {
		// unrecoverable hardware initialization, leave the restart to
		// the supervisor
		log.Fatal("Unable to initialize the card reader: ", err)
	}
	defer reader.Close()
	events := nfc.Debounce(reader.Events(), time.Duration(cfg.NFC.DebounceWindowMs)*time.Millisecond)

	audio, err := makeBackend(ctx, cfg)
	if err != nil {
		log.Fatal("Unable to reach an audio backend: ", err)
	}
	defer audio.Close()

	resolver := source.New(source.Config{
		CatalogURL: cfg.Audiobookshelf.BaseURL,
		Token:      cfg.Audiobookshelf.Token,
		Timeout:    time.Duration(cfg.Audiobookshelf.TimeoutMs) * time.Millisecond,
	})

	ctrl := player.New(audio, registry, resolver, store, player.Config{
		StartTimeout:      time.Duration(cfg.Audio.StartTimeoutMs) * time.Millisecond,
		ReconnectAttempts: cfg.Audio.ReconnectAttempts,
		ReconnectDelay:    time.Duration(cfg.Audio.ReconnectDelayMs) * time.Millisecond,
		DefaultVolume:     cfg.Audio.DefaultVolume,
	})

	led := ui.GetColorLED()
	defer led.Off()
	ctrl.OnState = func(s player.State) {
		switch s {
		case player.Playing:
			led.Green()
		case player.Resolving, player.Starting, player.Reconnecting, player.Stopping:
			led.Yellow()
		case player.Error:
			led.Red()
		default:
			led.Blue()
		}
	}

	buttons := ui.InitButtons()
	go func() {
		for ev := range buttons {
			if !ev.Pressed {
				continue
			}
			log.Debugf("Button pressed: %v", ev.Button)
			if ev.Button == ui.VolumeUp {
				ctrl.VolumeStep(1)
			} else {
				ctrl.VolumeStep(-1)
			}
		}
	}()

	log.Info("Player started, waiting for cards")
	if err := ctrl.Run(ctx, events); err != nil {
		log.Fatal(err)
	}
}

func makeBackend(ctx context.Context, cfg config.Config) (backend.Backend, error) {
	timeout := time.Duration(cfg.MPD.TimeoutMs) * time.Millisecond
	switch cfg.Audio.Backend {
	case "upnp":
		return backend.NewUPnP(ctx, cfg.Audio.Renderer, timeout)
	default:
		addr, err := backend.Discover(ctx, cfg.MPD.Servers, timeout)
		if err != nil {
			return nil, err
		}
		return backend.NewMPD(addr, timeout), nil
	}
}

// ensureDirs creates the data directories the stores live in.
func ensureDirs(cfg config.Config) error {
	for _, p := range []string{cfg.CardsFile, cfg.StateFile} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %v: %w", dir, err)
			}
		}
	}
	return nil
}
