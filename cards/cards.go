package cards

import (
	"errors"
	"fmt"
	"net/url"
)

// SourceType discriminates the kinds of audio a card can be mapped to.
type SourceType string

const (
	// Radio is a plain internet radio stream that can be handed to the
	// backend as-is.
	Radio SourceType = "radio"
	// Podcast is an Audiobookshelf item that needs to be resolved to a
	// stream URL (and possibly authenticated) before playback.
	Podcast SourceType = "podcast"
)

var (
	ErrUnknownCard = errors.New("no mapping for card")
	ErrCardExists  = errors.New("card is already registered")
)

// AudioSource is what a card resolves to. URL is the stream URL for radio
// sources, or the Audiobookshelf item URL for podcast sources.
type AudioSource struct {
	Type SourceType `yaml:"type"`
	URL  string     `yaml:"url"`
	// Credentials names the credential set to use when the catalog
	// requires authentication. Empty means anonymous.
	Credentials string `yaml:"credentials,omitempty"`
}

// Validate checks the source invariants. Mappings are validated here, at
// registration time, so that a bad URL fails fast instead of at playback.
func (s AudioSource) Validate() error {
	switch s.Type {
	case Radio, Podcast:
	default:
		return fmt.Errorf("unsupported source type %q", s.Type)
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("malformed URL %q: %w", s.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must be http or https", s.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", s.URL)
	}
	return nil
}

func (s AudioSource) String() string {
	return fmt.Sprintf("%v(%v)", s.Type, s.URL)
}

// Mapping ties a physical card to an audio source.
type Mapping struct {
	// ID is the card UID as read from the scanner, hex encoded.
	ID     string      `yaml:"-"`
	Source AudioSource `yaml:",inline"`
	// Label is an optional human readable name, also printed on card labels.
	Label string `yaml:"label,omitempty"`
	// Art is an optional artwork URL used when rendering a card label.
	Art string `yaml:"art,omitempty"`
}

func (m Mapping) String() string {
	if m.Label != "" {
		return fmt.Sprintf("%v [%v] -> %v", m.ID, m.Label, m.Source)
	}
	return fmt.Sprintf("%v -> %v", m.ID, m.Source)
}
