// Package source turns registered audio sources into URLs the backend can
// actually stream. Radio streams only need a liveness check; Audiobookshelf
// items are resolved through the catalog API and get the access token
// attached.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/callebjorkell/nfc-radio/cards"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnreachable       = errors.New("source unreachable")
	ErrAuthFailed        = errors.New("catalog authentication failed")
	ErrResolutionTimeout = errors.New("source resolution timed out")
)

// Resolved carries everything the controller needs to start playback.
type Resolved struct {
	// StreamURL is what gets handed to the audio backend.
	StreamURL string
}

type Config struct {
	// Audiobookshelf server base URL, e.g. http://books.local:13378.
	CatalogURL string
	// Token is the Audiobookshelf API token, sent as a bearer token and
	// attached to resolved stream URLs so the backend can fetch them.
	Token string
	// Timeout bounds a single resolution.
	Timeout time.Duration
}

type Resolver struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Resolve produces a playable stream URL for the given source. It never
// blocks past the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, src cards.AudioSource) (Resolved, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	switch src.Type {
	case cards.Radio:
		return r.probeStream(ctx, src.URL)
	case cards.Podcast:
		return r.resolveItem(ctx, src)
	default:
		return Resolved{}, fmt.Errorf("cannot resolve source type %q", src.Type)
	}
}

// probeStream checks that the stream endpoint answers at all before the
// backend is pointed at it. Icecast style servers frequently reject HEAD,
// that still proves liveness.
func (r *Resolver) probeStream(ctx context.Context, streamURL string) (Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("probe %v: %w", streamURL, err)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return Resolved{}, classify(streamURL, err)
	}
	res.Body.Close()

	if res.StatusCode >= 500 {
		return Resolved{}, fmt.Errorf("probe %v: status %v: %w", streamURL, res.StatusCode, ErrUnreachable)
	}
	log.Debugf("Stream %v is alive (status %v)", streamURL, res.StatusCode)
	return Resolved{StreamURL: streamURL}, nil
}

// resolveItem asks the Audiobookshelf catalog for a direct stream URL of
// the item the card points at.
func (r *Resolver) resolveItem(ctx context.Context, src cards.AudioSource) (Resolved, error) {
	itemID := itemID(src.URL)
	if itemID == "" {
		return Resolved{}, fmt.Errorf("no item id in %v", src.URL)
	}

	base := r.cfg.CatalogURL
	if base == "" {
		// fall back to the item URL's own host
		if u, err := url.Parse(src.URL); err == nil {
			base = u.Scheme + "://" + u.Host
		}
	}

	api := fmt.Sprintf("%v/api/items/%v/download", strings.TrimRight(base, "/"), itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolve %v: %w", src.URL, err)
	}
	if src.Credentials != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return Resolved{}, classify(src.URL, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return Resolved{}, fmt.Errorf("resolve %v: status %v: %w", src.URL, res.StatusCode, ErrAuthFailed)
	case res.StatusCode >= 400:
		return Resolved{}, fmt.Errorf("resolve %v: status %v: %w", src.URL, res.StatusCode, ErrUnreachable)
	}

	// The backend fetches the stream itself and cannot send headers, so
	// the token rides along as a query parameter.
	stream := api
	if src.Credentials != "" && r.cfg.Token != "" {
		sep := "?"
		if strings.Contains(stream, "?") {
			sep = "&"
		}
		stream += sep + "token=" + url.QueryEscape(r.cfg.Token)
	}
	log.Debugf("Resolved item %v to %v", itemID, api)
	return Resolved{StreamURL: stream}, nil
}

// itemID extracts the Audiobookshelf item id from an item page URL, or
// returns the input when it already is a bare id.
func itemID(itemURL string) string {
	if idx := strings.Index(itemURL, "/item/"); idx >= 0 {
		id := itemURL[idx+len("/item/"):]
		if cut := strings.IndexAny(id, "?/#"); cut >= 0 {
			id = id[:cut]
		}
		return id
	}
	if !strings.Contains(itemURL, "://") {
		return itemURL
	}
	return ""
}

func classify(source string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("resolve %v: %w", source, ErrResolutionTimeout)
	}
	// the http client wraps a deadline into an url.Error with Timeout set
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("resolve %v: %w", source, ErrResolutionTimeout)
	}
	return fmt.Errorf("resolve %v: %v: %w", source, err, ErrUnreachable)
}
