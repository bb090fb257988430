package object

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
)

// TextureInfo is the metadata derived from stored texture bytes. Textures
// are versioned independently of meshes: two meshes referencing the same
// texture hash share one stored object.
type TextureInfo struct {
	Width    int
	Height   int
	Channels int
	Format   string
}

// DecodeTextureInfo reads PNG/JPEG headers for dimensions and channel
// count. Unrecognized formats yield a zero-valued info rather than an
// error; the raw bytes are stored either way.
func DecodeTextureInfo(data []byte) TextureInfo {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return TextureInfo{}
	}
	return TextureInfo{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Channels: channelCount(cfg.ColorModel),
		Format:   format,
	}
}

func channelCount(model color.Model) int {
	switch model {
	case color.NRGBAModel, color.RGBAModel, color.NRGBA64Model, color.RGBA64Model:
		return 4
	case color.YCbCrModel:
		return 3
	case color.GrayModel, color.Gray16Model:
		return 1
	default:
		return 3
	}
}
