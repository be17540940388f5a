package label

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callebjorkell/nfc-radio/cards"
)

func TestSourceHost(t *testing.T) {
	assert.Equal(t, "radio.example (radio)", sourceHost(cards.AudioSource{
		Type: cards.Radio,
		URL:  "https://radio.example/stream.mp3",
	}))
	assert.Equal(t, "podcast", sourceHost(cards.AudioSource{Type: cards.Podcast, URL: "::broken::"}))
}

func TestCreateWithoutArt(t *testing.T) {
	if _, err := os.Stat(fontFile); err != nil {
		t.Skipf("font %v not installed", fontFile)
	}

	var buf bytes.Buffer
	err := Create(cards.Mapping{
		ID:     "a1b2c3d4",
		Label:  "Morning News",
		Source: cards.AudioSource{Type: cards.Radio, URL: "https://radio.example/stream"},
	}, &buf)
	require.NoError(t, err)

	// PNG magic
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, buf.Bytes()[:4])
}
