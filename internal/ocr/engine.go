// Package ocr implements the content gate over the staging area: recognize
// text in each downloaded image, forward keyword matches to the notifier,
// and purge the file either way.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Engine turns one image into line-level text fragments. Implementations
// need not be safe for concurrent use; the gate calls them from a single
// goroutine.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]string, error)
	Close() error
}

// TesseractEngine recognizes text with a local Tesseract instance.
type TesseractEngine struct {
	client *gosseract.Client
}

// NewTesseractEngine initializes the engine for the given language models
// (e.g. "chi_sim", "eng").
func NewTesseractEngine(languages ...string) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set ocr languages: %w", err)
		}
	}
	return &TesseractEngine{client: client}, nil
}

// Recognize extracts the text lines found in the image.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image for recognition: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("load image into engine: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	return splitLines(text), nil
}

// Close releases the underlying Tesseract handle.
func (e *TesseractEngine) Close() error {
	return e.client.Close()
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
