package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/callebjorkell/nfc-radio/config"
)

var (
	app        = kingpin.New("nfc-radio", "Music player that streams internet radio and podcast episodes on card taps, with the help of an NFC reader, a Raspberry Pi and some buttons.")
	debug      = app.Flag("debug", "Turn on debug logging.").Bool()
	configFile = app.Flag("config", "Path to the service configuration file.").String()

	start = app.Command("start", "Start the player and listen for NFC cards.")

	add          = app.Command("add", "Register an audio source on a card.")
	addRadio     = add.Command("radio", "Register an internet radio stream.")
	addRadioURL  = addRadio.Arg("url", "The stream URL.").Required().String()
	addRadioCard = addRadio.Flag("cardId", "Manually specify the card id to be used. If not given, a card is read from the reader.").String()
	addRadioName = addRadio.Flag("label", "Human readable name for the card.").String()
	addRadioArt  = addRadio.Flag("art", "Artwork URL used when printing a label.").String()

	addPodcast     = add.Command("podcast", "Register an Audiobookshelf item.")
	addPodcastURL  = addPodcast.Arg("url", "The item page URL or bare item id.").Required().String()
	addPodcastCard = addPodcast.Flag("cardId", "Manually specify the card id to be used. If not given, a card is read from the reader.").String()
	addPodcastName = addPodcast.Flag("label", "Human readable name for the card.").String()
	addPodcastOpen = addPodcast.Flag("public", "The item does not need the configured access token.").Bool()

	remove       = app.Command("remove", "Unregister a card.")
	removeCardId = remove.Flag("cardId", "Manually specify the card id to be used. If not given, a card is read from the reader.").String()

	dump       = app.Command("dump", "Show what is registered on a card.")
	dumpCardId = dump.Flag("cardId", "Manually specify the card id to be used. If not given, a card is read from the reader.").String()
	dumpList   = dump.Flag("list", "List all registered cards instead.").Bool()

	labelCmd    = app.Command("label", "Create a printable label for a card.")
	labelCardId = labelCmd.Flag("cardId", "Manually specify the card id to be used. If not given, a card is read from the reader.").String()
	labelOut    = labelCmd.Flag("out", "Output file.").Default("label.png").String()

	volume      = app.Command("volume", "Set the stored playback volume.")
	volumeLevel = volume.Arg("level", "Volume level, 0-100.").Required().Int()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if err := ensureDirs(cfg); err != nil {
		log.Fatal(err)
	}

	switch cmd {
	case start.FullCommand():
		startServer(cfg)
	case addRadio.FullCommand():
		addCard(cfg, radioSource(*addRadioURL), cardSpec{id: *addRadioCard, label: *addRadioName, art: *addRadioArt})
	case addPodcast.FullCommand():
		addCard(cfg, podcastSource(*addPodcastURL, !*addPodcastOpen), cardSpec{id: *addPodcastCard, label: *addPodcastName})
	case remove.FullCommand():
		removeCard(cfg, *removeCardId)
	case dump.FullCommand():
		if *dumpList {
			dumpAll(cfg)
		} else {
			dumpCard(cfg, *dumpCardId)
		}
	case labelCmd.FullCommand():
		createLabel(cfg, *labelCardId, *labelOut)
	case volume.FullCommand():
		setVolume(cfg, *volumeLevel)
	default:
		kingpin.FatalUsage("Unrecognized command")
	}
}
