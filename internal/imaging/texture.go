package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// Texture is one display image encoded for transport.
type Texture struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodeTexture encodes img as a base64 PNG texture.
//
// Parameters:
//   - name: Texture name reported back to the caller (e.g. "mask").
//   - img: Source image. Gray images stay single-channel in the PNG.
//   - scale: Resize factor applied before encoding. Values ≤ 0 or equal to 1
//     keep the original size. The scaled size is at least 1×1.
//
// Returns:
//   - *Texture: The encoded texture and its final dimensions.
//   - error: Non-nil if img is nil or PNG encoding fails.
func EncodeTexture(name string, img image.Image, scale float64) (*Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("texture %q is not available", name)
	}

	out := img
	if scale != 1.0 && scale > 0 {
		b := img.Bounds()
		newWidth := max(1, int(float64(b.Dx())*scale))
		newHeight := max(1, int(float64(b.Dy())*scale))
		out = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode texture %q: %w", name, err)
	}

	return &Texture{
		Name:        name,
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
