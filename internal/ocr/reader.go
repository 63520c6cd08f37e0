// Package ocr extracts the numeric readout from a screen region.
package ocr

import (
	"context"
	"image"
	"log/slog"
	"sort"
	"strconv"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
	"github.com/clickpilot/clickpilot/internal/resilience"
	"github.com/clickpilot/clickpilot/internal/screen"
	"github.com/clickpilot/clickpilot/internal/trace"
)

// Recognizer turns an image into raw text. Implementations are
// expected to be slow (tens of milliseconds) and flaky; callers
// sample several times and take the median.
type Recognizer interface {
	Recognize(img image.Image) (string, error)
}

// Reader samples a counter region repeatedly and returns the median
// of the plausible readings. A single glare frame or half-redrawn
// digit then cannot poison the value.
type Reader struct {
	sampler  screen.Sampler
	rec      Recognizer
	breaker  *resilience.Breaker
	samples  int
	minValue int
	maxValue int
}

// NewReader wires a reader over a sampler and recognizer.
// samples is clamped to at least 1.
func NewReader(sampler screen.Sampler, rec Recognizer, samples, minValue, maxValue int) *Reader {
	if samples < 1 {
		samples = 1
	}
	return &Reader{
		sampler:  sampler,
		rec:      rec,
		breaker:  resilience.New(resilience.OCRConfig()),
		samples:  samples,
		minValue: minValue,
		maxValue: maxValue,
	}
}

// Available reports whether the recognizer is worth calling right
// now. While the breaker is open the hold sequence degrades to
// image-only activity watching.
func (r *Reader) Available() bool {
	return r.breaker.State() != resilience.Open
}

// ReadCounter captures the region r.samples times, recognizes each
// frame and returns the median of the in-range readings. Returns an
// OCRFailed error when no frame yields a plausible number.
func (r *Reader) ReadCounter(ctx context.Context, region screen.Region) (int, error) {
	ctx, span := trace.StartSpan(ctx, "ocr.read_counter")
	defer span.End()

	var readings []int
	for i := 0; i < r.samples; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		value, err := r.readOnce(region)
		if err != nil {
			slog.Debug("ocr sample failed", "sample", i, "error", err)
			continue
		}
		readings = append(readings, value)
	}

	if len(readings) == 0 {
		return 0, apperrors.New(apperrors.OCRFailed, "no plausible reading in any sample").
			WithMetadata("region", region.String()).
			WithMetadata("samples", strconv.Itoa(r.samples))
	}

	value := median(readings)
	span.SetAttr("value", strconv.Itoa(value))
	return value, nil
}

func (r *Reader) readOnce(region screen.Region) (int, error) {
	img, err := r.sampler.Capture(region)
	if err != nil {
		return 0, err
	}

	var text string
	err = r.breaker.Execute(func() error {
		var rerr error
		text, rerr = r.rec.Recognize(img)
		return rerr
	})
	if err != nil {
		return 0, err
	}

	value, ok := parseDigits(text)
	if !ok {
		return 0, apperrors.Newf(apperrors.OCRFailed, "no digit run in %q", text)
	}
	if value < r.minValue || value > r.maxValue {
		return 0, apperrors.Newf(apperrors.OCRFailed, "reading %d outside [%d,%d]", value, r.minValue, r.maxValue)
	}
	return value, nil
}

// parseDigits extracts the first contiguous run of digits from text.
func parseDigits(text string) (int, bool) {
	start, end := -1, -1
	for i, ch := range text {
		if ch >= '0' && ch <= '9' {
			if start < 0 {
				start = i
			}
			end = i + 1
		} else if start >= 0 {
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	value, err := strconv.Atoi(text[start:end])
	if err != nil {
		return 0, false
	}
	return value, true
}

func median(values []int) int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}
