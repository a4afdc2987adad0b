package rdopt

import (
	"sync/atomic"

	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/yuv"
)

// BiasComposition selects how the denoiser and dot artifact adjustments of
// the ZEROMV on LAST cost combine.
type BiasComposition int

const (
	// ComposeMultiply applies both adjustments as a product.
	ComposeMultiply BiasComposition = iota
	// ComposeDenoiserOnly applies the denoiser adjustment alone.
	ComposeDenoiserOnly
	// ComposeDotOnly applies the dot artifact adjustment alone.
	ComposeDotOnly
)

func (b BiasComposition) String() string {
	switch b {
	case ComposeMultiply:
		return "multiply"
	case ComposeDenoiserOnly:
		return "denoiser"
	case ComposeDotOnly:
		return "dot"
	}
	return "unknown"
}

// Percent adjustments of the ZEROMV on LAST cost.
const (
	noAdjust            = 100
	denoiseAdjust       = 90
	denoiseAggressive   = 70
	dotArtifactAdjust   = 150
	dotZeroRunFrames    = 30
	dotGradLast         = 6
	dotGradSource       = 3
	denoiseMotionThresh = 3 * 64 // squared 1/8 pel
	denoiseSSEMargin    = 1024
)

// DenoiserPolicy is the mode decision side of temporal denoising: it
// favours the zero vector on LAST for static, noisy content.
type DenoiserPolicy struct {
	Enabled    bool
	Aggressive bool
}

// NewDenoiserPolicy maps a noise sensitivity (0 off, 1-6) to a policy.
func NewDenoiserPolicy(sensitivity int) DenoiserPolicy {
	return DenoiserPolicy{Enabled: sensitivity > 0, Aggressive: sensitivity >= 4}
}

// ZeroMVAdjust returns the percent applied to the ZEROMV on LAST cost.
func (p DenoiserPolicy) ZeroMVAdjust() int {
	switch {
	case !p.Enabled:
		return noAdjust
	case p.Aggressive:
		return denoiseAggressive
	}
	return denoiseAdjust
}

// PreferZero reports whether a low-motion LAST decision with vector mv
// should be replaced by the zero vector, given the luma SSE of both.
func (p DenoiserPolicy) PreferZero(mv mcomp.MV, bestSSE, zeroSSE int) bool {
	if !p.Enabled || zeroSSE < 0 {
		return false
	}
	mag := int(mv.Row)*int(mv.Row) + int(mv.Col)*int(mv.Col)
	return mag <= denoiseMotionThresh && zeroSSE <= bestSSE+denoiseSSEMargin
}

// Overlay holds the policies layered on the cost comparison. It is shared
// by every row of a frame.
type Overlay struct {
	Denoiser      DenoiserPolicy
	DotArtifacts  bool
	ScreenContent bool
	Composition   BiasComposition

	dotBudget int32
	dotUsed   atomic.Int32
}

func (o *Overlay) beginFrame(mbs int) {
	o.dotBudget = int32(mbs / 10)
	o.dotUsed.Store(0)
}

// mbBias is the overlay verdict for one macroblock.
type mbBias struct {
	skin bool
	// dotChecked marks a macroblock examined by the dot artifact check; its
	// zero run restarts.
	dotChecked bool
	dot        bool
	zeroAdjust int
}

func (o *Overlay) prepare(m *mb) mbBias {
	b := mbBias{zeroAdjust: noAdjust}
	if o == nil || o.ScreenContent {
		return b
	}
	fc := m.fc
	b.skin = SkinDetect(fc.Src, m.row, m.col)
	if last := fc.Refs[LastFrame]; o.DotArtifacts && last != nil && fc.ZeroRuns[m.index()] > dotZeroRunFrames &&
		o.dotUsed.Load() < o.dotBudget {
		b.dotChecked = true
		b.dot = DotArtifactCheck(fc.Src, last, m.row, m.col)
		if b.dot {
			o.dotUsed.Add(1)
		}
	}
	b.zeroAdjust = o.ZeroMVAdjust(b.skin, b.dot)
	return b
}

// ZeroMVAdjust returns the percent applied to the ZEROMV on LAST cost of a
// macroblock given its skin and dot artifact verdicts. Skin is never
// adjusted.
func (o *Overlay) ZeroMVAdjust(skin, dot bool) int {
	if skin {
		return noAdjust
	}
	den := o.Denoiser.ZeroMVAdjust()
	d := noAdjust
	if dot {
		d = dotArtifactAdjust
	}
	switch o.Composition {
	case ComposeDenoiserOnly:
		return den
	case ComposeDotOnly:
		return d
	}
	return den * d / noAdjust
}

// adjust scales the cost of ZEROMV on LAST.
func (b *mbBias) adjust(c *candidate, rd int) int {
	if b.zeroAdjust == noAdjust || c.info.Mode != ZeroMV || c.info.Ref != LastFrame {
		return rd
	}
	return int(int64(rd) * int64(b.zeroAdjust) / noAdjust)
}

// cornerGrad is the largest step from the corner pixel at off to its
// neighbours in the direction (dy, dx).
func cornerGrad(p []byte, off, stride, dy, dx int) int {
	y1 := int(p[off])
	g := absInt(y1 - int(p[off+dx]))
	if d := absInt(y1 - int(p[off+dy*stride])); d > g {
		g = d
	}
	if d := absInt(y1 - int(p[off+dy*stride+dx])); d > g {
		g = d
	}
	return g
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// dotCorners reports whether any corner of the size x size block shows a
// strong gradient in the reference but not in the source.
func dotCorners(src []byte, srcOff, srcStride int, ref []byte, refOff, refStride, size int) bool {
	last := size - 1
	corners := [4][4]int{{0, 0, 1, 1}, {0, last, 1, -1}, {last, 0, -1, 1}, {last, last, -1, -1}}
	for _, c := range corners {
		r, col, dy, dx := c[0], c[1], c[2], c[3]
		gl := cornerGrad(ref, refOff+r*refStride+col, refStride, dy, dx)
		gs := cornerGrad(src, srcOff+r*srcStride+col, srcStride, dy, dx)
		if gl >= dotGradLast && gs <= dotGradSource {
			return true
		}
	}
	return false
}

// DotArtifactCheck reports whether the macroblock at (row, col) looks like
// a flat area where the reference carries isolated corner dots.
func DotArtifactCheck(src, last *yuv.Frame, row, col int) bool {
	if dotCorners(src.Y, src.MBYOff(col, row), src.YStride, last.Y, last.MBYOff(col, row), last.YStride, 16) {
		return true
	}
	so, lo := src.MBUVOff(col, row), last.MBUVOff(col, row)
	return dotCorners(src.U, so, src.UVStride, last.U, lo, last.UVStride, 8) ||
		dotCorners(src.V, so, src.UVStride, last.V, lo, last.UVStride, 8)
}

// Skin color model in Q6 chroma.
var (
	skinMean      = [2]int{7463, 9614}
	skinInvCov    = [4]int{4107, 1663, 1663, 2157}
	skinThreshold = 1570636
	skinYLow      = 40
	skinYHigh     = 220
)

// IsSkinColor classifies one (Y, Cb, Cr) sample.
func IsSkinColor(y, cb, cr int) bool {
	if y < skinYLow || y > skinYHigh {
		return false
	}
	cbd := cb<<6 - skinMean[0]
	crd := cr<<6 - skinMean[1]
	cb2 := (cbd*cbd + 1<<9) >> 10
	cbcr := (cbd*crd + 1<<9) >> 10
	cr2 := (crd*crd + 1<<9) >> 10
	diff := skinInvCov[0]*cb2 + skinInvCov[1]*cbcr + skinInvCov[2]*cbcr + skinInvCov[3]*cr2
	return diff < skinThreshold
}

func centre4(p []byte, off, stride, half int) int {
	o := off + (half-1)*stride + half - 1
	return (int(p[o]) + int(p[o+1]) + int(p[o+stride]) + int(p[o+stride+1]) + 2) >> 2
}

// SkinDetect classifies the macroblock at (row, col) from the average of
// its four centre samples in each plane.
func SkinDetect(f *yuv.Frame, row, col int) bool {
	y := centre4(f.Y, f.MBYOff(col, row), f.YStride, 8)
	uvOff := f.MBUVOff(col, row)
	u := centre4(f.U, uvOff, f.UVStride, 4)
	v := centre4(f.V, uvOff, f.UVStride, 4)
	return IsSkinColor(y, u, v)
}
