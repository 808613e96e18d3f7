package converter

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Image is an encoded snapshot ready to be embedded in a model request.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Converter bounds full page screenshots before they are sent to the model.
// Tall pages are cut from the top, since the above-the-fold content is what
// visitors see first.
type Converter struct {
	logger    *zap.Logger
	maxWidth  int
	maxHeight int
}

func NewConverter(logger *zap.Logger, maxWidth, maxHeight int) *Converter {
	return &Converter{logger: logger, maxWidth: maxWidth, maxHeight: maxHeight}
}

func (c *Converter) Prepare(data []byte) (*Image, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	needsResize := c.maxWidth > 0 && width > c.maxWidth
	needsCrop := false

	var processed image.Image = src
	if needsResize {
		c.logger.Debug("Resizing snapshot",
			zap.Int("width", width),
			zap.Int("target_width", c.maxWidth),
		)
		processed = imaging.Resize(src, c.maxWidth, 0, imaging.Lanczos)
		width, height = processed.Bounds().Dx(), processed.Bounds().Dy()
	}
	if c.maxHeight > 0 && height > c.maxHeight {
		needsCrop = true
		c.logger.Debug("Cropping snapshot",
			zap.Int("height", height),
			zap.Int("target_height", c.maxHeight),
		)
		processed = imaging.CropAnchor(processed, width, c.maxHeight, imaging.Top)
		height = c.maxHeight
	}

	if !needsResize && !needsCrop {
		return &Image{Data: data, MIMEType: mimeType(data), Width: width, Height: height}, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, imaging.PNG); err != nil {
		c.logger.Error("Failed to encode snapshot", zap.Error(err))
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return &Image{Data: buf.Bytes(), MIMEType: "image/png", Width: width, Height: height}, nil
}

func mimeType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x47, 0x49, 0x46, 0x38}):
		return "image/gif"
	default:
		return "image/png"
	}
}
