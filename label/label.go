package label

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"

	"github.com/callebjorkell/nfc-radio/cards"
)

// image size of 50x81.6mm (85.60 mm × 53.98 with 2mm margin on each side) at 600 DPI
// = 1181 x 1928 pix

const height = 1928
const width = 1181
const artSize = 900

var fontFile = "/usr/share/fonts/truetype/msttcorefonts/Comic_Sans_MS_Bold.ttf"

// Create renders a printable PNG label for a registered card: the
// artwork (when the mapping has one), the label text and the source
// host.
func Create(m cards.Mapping, out io.Writer) error {
	l := gg.NewContext(width, height)
	l.SetRGB(1, 1, 1)
	l.Fill()

	if m.Art != "" {
		img, err := fetchArt(m.Art)
		if err != nil {
			return fmt.Errorf("could not fetch artwork: %w", err)
		}
		scaled := resize.Resize(artSize, 0, *img, resize.Lanczos3)
		origin := width / 2
		l.DrawImageAnchored(scaled, origin, origin, 0.5, 0.5)
	}

	title := m.Label
	if title == "" {
		title = m.ID
	}
	l.SetRGB(0, 0, 0)
	if err := renderString(l, strings.ToUpper(title), 112, 1300); err != nil {
		return err
	}
	l.SetRGB(0.4, 0.4, 0.4)
	if err := renderString(l, sourceHost(m.Source), 72, 1550); err != nil {
		return err
	}

	if err := l.EncodePNG(out); err != nil {
		return fmt.Errorf("could not render PNG: %w", err)
	}
	return nil
}

func renderString(c *gg.Context, s string, size, y float64) error {
	if err := c.LoadFontFace(fontFile, size); err != nil {
		return fmt.Errorf("could not load the font: %w", err)
	}
	lines := c.WordWrap(s, width-(width/10))
	for i, line := range lines {
		c.DrawStringAnchored(line, float64(width/2), y+float64(i)*size*1.2, 0.5, 0.5)
	}
	return nil
}

func sourceHost(src cards.AudioSource) string {
	u, err := url.Parse(src.URL)
	if err != nil || u.Host == "" {
		return string(src.Type)
	}
	return fmt.Sprintf("%v (%v)", u.Host, src.Type)
}

func fetchArt(uri string) (*image.Image, error) {
	res, err := http.DefaultClient.Get(uri)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artwork fetch returned %v", res.Status)
	}

	img, _, err := image.Decode(res.Body)
	return &img, err
}
