package ocr

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Extractor recognises text in a rendered page image.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// Safe runs the extractor and turns any failure into empty text. Page text is
// supporting evidence only, so a broken OCR engine must not stop judgment.
func Safe(ctx context.Context, ex Extractor, image []byte, logger *zap.Logger) (string, error) {
	text, err := ex.Extract(ctx, image)
	if err != nil {
		logger.Warn("OCR extraction failed", zap.Error(err))
		return "", err
	}
	return text, nil
}

// JoinLines keeps non-empty trimmed lines in reading order.
func JoinLines(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
