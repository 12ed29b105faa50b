package fonts

import (
	"errors"
	"testing"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/texture"
)

func blank(w, h int) *texture.Texture {
	return &texture.Texture{Width: w, Height: h, Pixels: make([]color.Color, w*h)}
}

func litBounds(t *texture.Texture, c color.Color) (minX, minY, maxX, maxY, count int) {
	minX, minY = t.Width, t.Height
	maxX, maxY = -1, -1
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			if t.Pixel(x, y) != c {
				continue
			}
			count++
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	return
}

func TestDrawPlacesGlyphsAtOrigin(t *testing.T) {
	tex := blank(64, 32)
	if err := Draw(tex, Font8x12, []byte("H"), color.White, 10, 4); err != nil {
		t.Fatalf("draw: %v", err)
	}
	minX, minY, maxX, maxY, count := litBounds(tex, color.White)
	if count == 0 {
		t.Fatalf("nothing drawn")
	}
	if minX < 10 || minY < 4 || maxX >= 17 || maxY >= 17 {
		t.Fatalf("glyph outside its cell: (%d,%d)-(%d,%d)", minX, minY, maxX, maxY)
	}
}

func TestDrawLargeFont(t *testing.T) {
	tex := blank(64, 32)
	if err := Draw(tex, Font12x16, []byte("Hi"), color.Red, 0, 0); err != nil {
		t.Fatalf("draw: %v", err)
	}
	_, _, maxX, maxY, count := litBounds(tex, color.Red)
	if count == 0 || maxX >= 16 || maxY >= 16 {
		t.Fatalf("unexpected coverage count=%d max=(%d,%d)", count, maxX, maxY)
	}
}

func TestDrawClipsAtEdge(t *testing.T) {
	tex := blank(10, 6)
	if err := Draw(tex, Font8x12, []byte("WWWW"), color.White, 4, 0); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if _, _, _, _, count := litBounds(tex, color.White); count == 0 {
		t.Fatalf("clipped text should still draw its visible part")
	}
}

func TestDrawOriginOutsideIsNoop(t *testing.T) {
	tex := blank(8, 8)
	if err := Draw(tex, Font8x12, []byte("A"), color.White, 8, 0); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if _, _, _, _, count := litBounds(tex, color.White); count != 0 {
		t.Fatalf("drew %d pixels from outside origin", count)
	}
}

func TestUnknownFont(t *testing.T) {
	tex := blank(8, 8)
	if err := Draw(tex, ID(6), []byte("A"), color.White, 0, 0); !errors.Is(err, ErrUnknownFont) {
		t.Fatalf("expected ErrUnknownFont, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	if got := Decode([]byte{'c', 'a', 'f', 0x82}); got != "café" {
		t.Fatalf("unexpected decode %q", got)
	}
	if got := Decode([]byte{'a', 0, 'b'}); got != "a" {
		t.Fatalf("NUL did not end the string: %q", got)
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if got := Decode(long); len(got) != MaxChars {
		t.Fatalf("expected %d chars, got %d", MaxChars, len(got))
	}
}

func TestMeasure(t *testing.T) {
	w, h, err := Measure(Font8x12, []byte("ab"))
	if err != nil || w != 14 || h != 13 {
		t.Fatalf("unexpected small measure %dx%d (%v)", w, h, err)
	}
	w, h, err = Measure(Font12x16, []byte("ab"))
	if err != nil || w != 16 || h != 16 {
		t.Fatalf("unexpected large measure %dx%d (%v)", w, h, err)
	}
}
