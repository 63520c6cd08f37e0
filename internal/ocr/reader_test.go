package ocr

import (
	"context"
	"image"
	"testing"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
	"github.com/clickpilot/clickpilot/internal/screen"
)

type stubSampler struct {
	img *image.RGBA
	err error
}

func (s *stubSampler) Capture(screen.Region) (*image.RGBA, error) {
	return s.img, s.err
}

// scriptedRecognizer returns its texts in order, then repeats the last.
type scriptedRecognizer struct {
	texts []string
	errs  []error
	calls int
}

func (r *scriptedRecognizer) Recognize(image.Image) (string, error) {
	i := r.calls
	if i >= len(r.texts) {
		i = len(r.texts) - 1
	}
	r.calls++
	if r.errs != nil && r.errs[i] != nil {
		return "", r.errs[i]
	}
	return r.texts[i], nil
}

func frame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 40, 16))
}

func TestReadCounterMedianSurvivesMisread(t *testing.T) {
	// Countdown is ticking during the samples; one frame misreads
	// wildly. The median must stay within the descending sequence.
	rec := &scriptedRecognizer{texts: []string{"14", "13", "881", "13", "12"}}
	r := NewReader(&stubSampler{img: frame()}, rec, 5, 0, 999)

	got, err := r.ReadCounter(context.Background(), screen.Region{X: 0, Y: 0, W: 40, H: 16})
	if err != nil {
		t.Fatalf("ReadCounter() error = %v", err)
	}
	if got != 13 {
		t.Errorf("ReadCounter() = %d, want median 13", got)
	}
}

func TestReadCounterRejectsOutOfRange(t *testing.T) {
	rec := &scriptedRecognizer{texts: []string{"14", "13", "881", "13", "12"}}
	r := NewReader(&stubSampler{img: frame()}, rec, 5, 0, 99)

	got, err := r.ReadCounter(context.Background(), screen.Region{W: 40, H: 16})
	if err != nil {
		t.Fatalf("ReadCounter() error = %v", err)
	}
	// 881 filtered by range, median of {12,13,13,14}.
	if got != 13 {
		t.Errorf("ReadCounter() = %d, want 13", got)
	}
}

func TestReadCounterNoDigits(t *testing.T) {
	rec := &scriptedRecognizer{texts: []string{"", "??", " "}}
	r := NewReader(&stubSampler{img: frame()}, rec, 3, 0, 999)

	_, err := r.ReadCounter(context.Background(), screen.Region{W: 40, H: 16})
	if !apperrors.IsCode(err, apperrors.OCRFailed) {
		t.Errorf("ReadCounter() error = %v, want OCRFailed", err)
	}
}

func TestReadCounterCaptureFailure(t *testing.T) {
	sampler := &stubSampler{err: apperrors.New(apperrors.CaptureFailed, "display gone")}
	rec := &scriptedRecognizer{texts: []string{"10"}}
	r := NewReader(sampler, rec, 3, 0, 999)

	_, err := r.ReadCounter(context.Background(), screen.Region{W: 40, H: 16})
	if !apperrors.IsCode(err, apperrors.OCRFailed) {
		t.Errorf("ReadCounter() error = %v, want OCRFailed when every sample drops", err)
	}
	if rec.calls != 0 {
		t.Errorf("recognizer ran %d times despite capture failure", rec.calls)
	}
}

func TestReadCounterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &scriptedRecognizer{texts: []string{"10"}}
	r := NewReader(&stubSampler{img: frame()}, rec, 3, 0, 999)

	_, err := r.ReadCounter(ctx, screen.Region{W: 40, H: 16})
	if err != context.Canceled {
		t.Errorf("ReadCounter() error = %v, want context.Canceled", err)
	}
}

func TestReaderDegradesWhenRecognizerKeepsFailing(t *testing.T) {
	boom := apperrors.New(apperrors.OCRFailed, "tesseract exploded")
	rec := &scriptedRecognizer{
		texts: []string{"", "", ""},
		errs:  []error{boom, boom, boom},
	}
	r := NewReader(&stubSampler{img: frame()}, rec, 3, 0, 999)

	_, _ = r.ReadCounter(context.Background(), screen.Region{W: 40, H: 16})

	if r.Available() {
		t.Error("Available() = true, want breaker open after repeated recognizer failures")
	}
}

func TestParseDigits(t *testing.T) {
	cases := []struct {
		in    string
		want  int
		found bool
	}{
		{"42", 42, true},
		{" 17\n", 17, true},
		{"x09y", 9, true},
		{"12 34", 12, true},
		{"", 0, false},
		{"no digits", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseDigits(tc.in)
		if ok != tc.found || got != tc.want {
			t.Errorf("parseDigits(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.found)
		}
	}
}
