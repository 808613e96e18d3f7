//go:build !gosseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"threatAnalyzer/worker/config"
)

// Tesseract shells out to the tesseract binary.
type Tesseract struct {
	binary  string
	lang    string
	timeout time.Duration
}

func New(cfg config.OCRConfig) (*Tesseract, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = "tesseract"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("tesseract binary: %w", err)
	}
	return &Tesseract{binary: path, lang: cfg.Lang, timeout: cfg.Timeout.Duration}, nil
}

func (t *Tesseract) Extract(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}

	f, err := os.CreateTemp("", "ocr-*.png")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := []string{f.Name(), "stdout"}
	if t.lang != "" {
		args = append(args, "-l", t.lang)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children holding the pipes open must not outlive the deadline.
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return JoinLines(strings.Split(stdout.String(), "\n")), nil
}

func (t *Tesseract) Close() error { return nil }
