package object

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeTextureInfo(t *testing.T) {
	rgba := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 4, 2)))
	info := DecodeTextureInfo(rgba)
	if info.Width != 4 || info.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 4x2", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format = %q, want png", info.Format)
	}
	if info.Channels != 4 {
		t.Errorf("channels = %d, want 4", info.Channels)
	}

	gray := encodePNG(t, image.NewGray(image.Rect(0, 0, 3, 3)))
	if got := DecodeTextureInfo(gray); got.Channels != 1 {
		t.Errorf("gray channels = %d, want 1", got.Channels)
	}
}

func TestDecodeTextureInfoUnrecognized(t *testing.T) {
	info := DecodeTextureInfo([]byte("not an image at all"))
	if info != (TextureInfo{}) {
		t.Errorf("unrecognized bytes yielded %+v, want zero info", info)
	}
}
