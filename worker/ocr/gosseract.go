//go:build gosseract

package ocr

import (
	"context"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"threatAnalyzer/worker/config"
)

// Tesseract binds libtesseract in process. One client per orchestrator.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func New(cfg config.OCRConfig) (*Tesseract, error) {
	client := gosseract.NewClient()
	if cfg.Lang != "" {
		if err := client.SetLanguage(strings.Split(cfg.Lang, "+")...); err != nil {
			client.Close()
			return nil, err
		}
	}
	return &Tesseract{client: client}, nil
}

func (t *Tesseract) Extract(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, b.Word)
	}
	return JoinLines(lines), nil
}

func (t *Tesseract) Close() error {
	return t.client.Close()
}
