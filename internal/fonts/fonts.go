// Package fonts renders DrawChars text into textures.
package fonts

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/texture"
)

// ID selects a built-in face.
type ID uint8

const (
	Font8x12  ID = 5
	Font12x16 ID = 7
)

// MaxChars is the longest string a single draw renders.
const MaxChars = 255

var ErrUnknownFont = errors.New("fonts: unknown font id")

// Face returns the glyph source for id.
func Face(id ID) (font.Face, error) {
	switch id {
	case Font8x12:
		return basicfont.Face7x13, nil
	case Font12x16:
		return inconsolata.Regular8x16, nil
	default:
		return nil, fmt.Errorf("%w: invalid font id specified of %d", ErrUnknownFont, id)
	}
}

// Decode maps device character bytes to text. Bytes are code page 437 and
// a NUL ends the string.
func Decode(raw []byte) string {
	if len(raw) > MaxChars {
		raw = raw[:MaxChars]
	}
	var b strings.Builder
	for _, c := range raw {
		if c == 0 {
			break
		}
		b.WriteRune(charmap.CodePage437.DecodeByte(c))
	}
	return b.String()
}

// Draw renders raw with its top-left corner at (x, y). Text running past
// the texture edge is clipped; an origin outside the texture draws nothing.
func Draw(t *texture.Texture, id ID, raw []byte, c color.Color, x, y int) error {
	face, err := Face(id)
	if err != nil {
		return err
	}
	text := Decode(raw)
	if text == "" || x >= t.Width || y >= t.Height {
		return nil
	}

	d := font.Drawer{
		Dst:  t,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	return nil
}

// Measure returns the pixel size text occupies in font id.
func Measure(id ID, raw []byte) (width, height int, err error) {
	face, err := Face(id)
	if err != nil {
		return 0, 0, err
	}
	text := Decode(raw)
	adv := font.MeasureString(face, text)
	return adv.Ceil(), face.Metrics().Height.Ceil(), nil
}
