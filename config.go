package vp8rd

import (
	"log"

	"github.com/pkg/errors"

	"github.com/deepteams/vp8rd/internal/firstpass"
	"github.com/deepteams/vp8rd/internal/rdopt"
)

// MaxDimension is the largest width or height the VP8 frame header can
// express.
const MaxDimension = 16383

// Mode is the quality/speed family of the encoder.
type Mode = rdopt.EncodingMode

const (
	GoodQuality = rdopt.GoodQuality
	BestQuality = rdopt.BestQuality
	Realtime    = rdopt.Realtime
)

// EndUsage is the rate control mode.
type EndUsage = firstpass.EndUsage

const (
	VBR                = firstpass.VBR
	CBR                = firstpass.CBR
	ConstrainedQuality = firstpass.ConstrainedQuality
)

// Config controls an Encoder. Start from DefaultConfig.
type Config struct {
	// Width and Height are the visible frame size in pixels.
	Width, Height int

	// TargetBitrate is the average rate in kilobits per second.
	TargetBitrate int

	// FrameRate is the nominal input rate. It converts the bitrate to a
	// per-frame budget and sets the realtime deadline.
	FrameRate float64

	// MinQ and MaxQ bound the quantizer index (0-127).
	MinQ, MaxQ int

	// MinGFInterval and MaxGFInterval bound the distance between golden
	// frame updates.
	MinGFInterval, MaxGFInterval int

	// KeyFreqMax forces a key frame at least every KeyFreqMax frames.
	KeyFreqMax int

	// ARNRMaxFrames (0-15) and ARNRType (1 backward, 2 forward, 3
	// centred) describe the alt-ref temporal filter. They are validated
	// and passed through for the filtering stage, which runs outside this
	// package.
	ARNRMaxFrames int
	ARNRType      int

	// EndUsage selects VBR, CBR or constrained quality.
	EndUsage EndUsage

	// CQLevel is the quality floor of constrained quality (MinQ-MaxQ).
	CQLevel int

	// Mode selects the speed feature family.
	Mode Mode

	// CPUUsed (-16 to 16) trades quality for speed. In Realtime mode a
	// negative value fixes the speed at -CPUUsed and a positive value
	// enables automatic speed selection against the frame deadline.
	CPUUsed int

	// NoiseSensitivity (0-6) enables the denoiser bias towards the zero
	// vector; 4 and above is aggressive.
	NoiseSensitivity int

	// ScreenContent disables the content biases (skin, dot artifacts,
	// denoiser) that assume camera input.
	ScreenContent bool

	// BiasComposition selects how the denoiser and dot artifact
	// adjustments combine.
	BiasComposition rdopt.BiasComposition

	// Threads is the number of row workers; values below 2 encode on the
	// calling goroutine.
	Threads int

	// Pass is 0 for one-pass encoding, 1 for the statistics pass and 2 for
	// the final pass of a two-pass encode.
	Pass int

	// FirstPassStats are the records of a previous Pass 1 run, required
	// when Pass is 2.
	FirstPassStats []firstpass.Stats

	// TwoPassVBRBias (0-100) is how closely the second pass follows the
	// first pass error when spreading bits.
	TwoPassVBRBias int

	// OptimizeCoefficients enables trellis quantization where the speed
	// features allow it.
	OptimizeCoefficients bool

	// EncodeBreakout is the inter SSE below which a macroblock is coded
	// as a skip without a residual; 0 disables it.
	EncodeBreakout int

	// Logger receives one line per frame. Nil is silent.
	Logger *log.Logger
}

// DefaultConfig returns a one-pass good quality VBR configuration for the
// given size.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:                width,
		Height:               height,
		TargetBitrate:        800,
		FrameRate:            30,
		MinQ:                 4,
		MaxQ:                 63,
		MinGFInterval:        firstpass.MinGFInterval,
		MaxGFInterval:        firstpass.DefaultMaxGF,
		KeyFreqMax:           firstpass.DefaultKeyFreqMax,
		ARNRMaxFrames:        0,
		ARNRType:             3,
		EndUsage:             VBR,
		CQLevel:              10,
		Mode:                 GoodQuality,
		TwoPassVBRBias:       50,
		OptimizeCoefficients: true,
		EncodeBreakout:       rdopt.DefaultEncodeBreakout,
	}
}

// ErrInvalidConfig is the cause of every Validate error.
var ErrInvalidConfig = errors.New("vp8rd: invalid config")

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate reports the first field outside its range.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0 || c.Width > MaxDimension || c.Height > MaxDimension:
		return invalid("size %dx%d (must be 1-%d)", c.Width, c.Height, MaxDimension)
	case c.TargetBitrate <= 0:
		return invalid("TargetBitrate %d (must be positive)", c.TargetBitrate)
	case c.FrameRate <= 0:
		return invalid("FrameRate %g (must be positive)", c.FrameRate)
	case c.MinQ < 0 || c.MaxQ > firstpass.MaxQ || c.MinQ > c.MaxQ:
		return invalid("MinQ/MaxQ %d/%d (must be 0-%d, MinQ <= MaxQ)", c.MinQ, c.MaxQ, firstpass.MaxQ)
	case c.MinGFInterval < 1 || c.MaxGFInterval < c.MinGFInterval:
		return invalid("GF interval %d-%d", c.MinGFInterval, c.MaxGFInterval)
	case c.KeyFreqMax < 1:
		return invalid("KeyFreqMax %d (must be positive)", c.KeyFreqMax)
	case c.ARNRMaxFrames < 0 || c.ARNRMaxFrames > 15:
		return invalid("ARNRMaxFrames %d (must be 0-15)", c.ARNRMaxFrames)
	case c.ARNRType < 1 || c.ARNRType > 3:
		return invalid("ARNRType %d (must be 1-3)", c.ARNRType)
	case c.EndUsage < VBR || c.EndUsage > ConstrainedQuality:
		return invalid("EndUsage %d", c.EndUsage)
	case c.EndUsage == ConstrainedQuality && (c.CQLevel < c.MinQ || c.CQLevel > c.MaxQ):
		return invalid("CQLevel %d (must be within MinQ/MaxQ)", c.CQLevel)
	case c.Mode < GoodQuality || c.Mode > Realtime:
		return invalid("Mode %d", c.Mode)
	case c.CPUUsed < -16 || c.CPUUsed > 16:
		return invalid("CPUUsed %d (must be -16 to 16)", c.CPUUsed)
	case c.NoiseSensitivity < 0 || c.NoiseSensitivity > 6:
		return invalid("NoiseSensitivity %d (must be 0-6)", c.NoiseSensitivity)
	case c.BiasComposition < rdopt.ComposeMultiply || c.BiasComposition > rdopt.ComposeDotOnly:
		return invalid("BiasComposition %d", c.BiasComposition)
	case c.Threads < 0:
		return invalid("Threads %d (must be >= 0)", c.Threads)
	case c.Pass < 0 || c.Pass > 2:
		return invalid("Pass %d (must be 0-2)", c.Pass)
	case c.Pass == 2 && len(c.FirstPassStats) == 0:
		return invalid("Pass 2 without first pass statistics")
	case c.TwoPassVBRBias < 0 || c.TwoPassVBRBias > 100:
		return invalid("TwoPassVBRBias %d (must be 0-100)", c.TwoPassVBRBias)
	case c.EncodeBreakout < 0:
		return invalid("EncodeBreakout %d (must be >= 0)", c.EncodeBreakout)
	}
	return nil
}

// mbs returns the macroblock count of a frame.
func (c *Config) mbs() int {
	return ((c.Width + 15) >> 4) * ((c.Height + 15) >> 4)
}

// plannerConfig maps the encoder settings onto the second pass.
func (c *Config) plannerConfig() firstpass.Config {
	bps := c.TargetBitrate * 1000
	pc := firstpass.DefaultConfig(c.mbs(), bps, c.FrameRate)
	pc.MinQ, pc.MaxQ = c.MinQ, c.MaxQ
	pc.MaxGFInterval = maxInt(c.MaxGFInterval, firstpass.MinGFInterval)
	pc.KeyFreqMax = c.KeyFreqMax
	pc.VBRBias = c.TwoPassVBRBias
	pc.EndUsage = c.EndUsage
	pc.CQLevel = c.CQLevel
	return pc
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Plan runs the second pass planner over cfg.FirstPassStats without
// encoding, returning the frame type, bit target and quantizer range of
// every frame.
func Plan(cfg Config) ([]firstpass.FramePlan, error) {
	cfg.Pass = 2
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := firstpass.NewPlanner(cfg.FirstPassStats, cfg.plannerConfig())
	if err != nil {
		return nil, err
	}
	return p.Plan()
}
