package vision

import (
	"image"
	"math"
)

// State is the transient readiness classification of one sample.
// Recomputed per sample, never persisted.
type State int

const (
	Unknown State = iota
	Ready
	NotReady
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case NotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// Thresholds parameterize classification. Both RMS boundaries are
// inclusive.
type Thresholds struct {
	ReadyRMS   float64 // luma RMS <= this counts as same
	ChangedRMS float64 // luma RMS >= this counts as changed
	BrightTol  float64 // tolerated brightness drop, fraction of full scale
	ColorTol   float64 // tolerated mean RGB distance
}

// Classify compares a sample against the baseline. READY when the
// pixel difference is small, or when overall brightness and shade
// still match (the control can re-render with sub-pixel shifts that
// inflate RMS while staying the same shade). NOT_READY when the
// difference is clearly beyond the changed bound. Everything between
// is UNKNOWN and the caller keeps waiting.
func Classify(sample image.Image, b *Baseline, th Thresholds) State {
	if sample == nil || !b.Valid() {
		return Unknown
	}
	if !sample.Bounds().Size().Eq(b.Image.Bounds().Size()) {
		return Unknown
	}

	rms := LumaRMS(sample, b.Image)
	if rms <= th.ReadyRMS {
		return Ready
	}

	brightOK := b.Brightness-Brightness(sample) <= th.BrightTol
	colorOK := ColorDistance(MeanRGB(sample), b.MeanRGB) <= th.ColorTol
	if brightOK && colorOK {
		return Ready
	}

	if rms >= th.ChangedRMS {
		return NotReady
	}
	return Unknown
}

// LumaRMS returns the mean absolute per-pixel luma difference between
// two same-sized images, in 0..255 units.
func LumaRMS(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := ab.Dx(), ab.Dy()
	if w == 0 || h == 0 || w != bb.Dx() || h != bb.Dy() {
		return math.MaxFloat64
	}

	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			la := luma(a.At(ab.Min.X+x, ab.Min.Y+y).RGBA())
			lb := luma(b.At(bb.Min.X+x, bb.Min.Y+y).RGBA())
			sum += math.Abs(la - lb)
		}
	}
	return sum / float64(w*h)
}

// MeanRGB returns per-channel means in 0..255 units.
func MeanRGB(img image.Image) [3]float64 {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return [3]float64{}
	}

	var sum [3]float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			sum[0] += float64(r >> 8)
			sum[1] += float64(g >> 8)
			sum[2] += float64(b >> 8)
		}
	}
	return [3]float64{sum[0] / float64(n), sum[1] / float64(n), sum[2] / float64(n)}
}

// Brightness returns mean luma as a 0..1 fraction.
func Brightness(img image.Image) float64 {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return 0
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += luma(img.At(x, y).RGBA())
		}
	}
	return sum / float64(n) / 255.0
}

// ColorDistance is the Euclidean distance between two mean-RGB vectors.
func ColorDistance(c1, c2 [3]float64) float64 {
	dr := c1[0] - c2[0]
	dg := c1[1] - c2[1]
	db := c1[2] - c2[2]
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// luma converts premultiplied 16-bit RGBA to Rec.601 luma in 0..255.
func luma(r, g, b, _ uint32) float64 {
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}
