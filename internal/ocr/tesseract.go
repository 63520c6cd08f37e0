package ocr

import (
	"bytes"
	"image"
	"image/png"
	"sync"

	"github.com/nfnt/resize"
	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
)

// upscaleFactor stretches the counter crop before recognition; the
// readout is typically under 20px tall, well below what tesseract
// resolves reliably.
const upscaleFactor = 4

// Tesseract recognizes digits via a persistent gosseract client.
// The client is not safe for concurrent use, so calls serialize on
// an internal mutex.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a digit-only recognizer.
func NewTesseract() (*Tesseract, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "set language")
	}
	if err := client.SetWhitelist("0123456789"); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "set whitelist")
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "set segmentation mode")
	}
	return &Tesseract{client: client}, nil
}

// Recognize upscales img and returns the raw recognized text.
func (t *Tesseract) Recognize(img image.Image) (string, error) {
	bounds := img.Bounds()
	scaled := resize.Resize(uint(bounds.Dx()*upscaleFactor), 0, img, resize.Bilinear)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRFailed, "encode frame")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRFailed, "set image")
	}
	text, err := t.client.Text()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRFailed, "recognize")
	}
	return text, nil
}

// Close releases the tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
