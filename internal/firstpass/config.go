package firstpass

import (
	"github.com/pkg/errors"
)

// EndUsage is the rate control mode of the second pass.
type EndUsage int

const (
	// VBR spends bits where the first pass found them needed.
	VBR EndUsage = iota
	// CBR additionally keeps a simulated decoder buffer from underflowing.
	CBR
	// ConstrainedQuality never codes below CQLevel.
	ConstrainedQuality
)

func (e EndUsage) String() string {
	switch e {
	case VBR:
		return "vbr"
	case CBR:
		return "cbr"
	case ConstrainedQuality:
		return "cq"
	}
	return "unknown"
}

// Group interval limits.
const (
	MinGFInterval     = 4
	DefaultMaxGF      = 16
	DefaultKeyFreqMax = 120
)

// Config drives the second pass.
type Config struct {
	MBs           int     // macroblocks per frame
	TargetBitrate int     // bits per second
	FrameRate     float64 // used when the statistics carry no duration

	MinQ, MaxQ    int
	MaxGFInterval int
	KeyFreqMax    int
	AutoKey       bool

	// VBRBias is the percent exponent applied to each frame's error
	// relative to the clip average: 0 spreads bits evenly, 100 follows
	// the error exactly.
	VBRBias int
	// Section limits as percent of the average frame budget.
	MinSectionPct, MaxSectionPct int

	EndUsage EndUsage
	CQLevel  int

	// Buffer model of CBR, in bits.
	StartingBuffer, OptimalBuffer, BufferSize int64
}

// DefaultConfig returns a VBR configuration for frames of mbs macroblocks.
func DefaultConfig(mbs, bitrate int, frameRate float64) Config {
	return Config{
		MBs:           mbs,
		TargetBitrate: bitrate,
		FrameRate:     frameRate,
		MinQ:          4,
		MaxQ:          63,
		MaxGFInterval: DefaultMaxGF,
		KeyFreqMax:    DefaultKeyFreqMax,
		AutoKey:       true,
		VBRBias:       50,
		MaxSectionPct: 400,
		CQLevel:       10,

		StartingBuffer: int64(bitrate) * 4,
		OptimalBuffer:  int64(bitrate) * 5,
		BufferSize:     int64(bitrate) * 6,
	}
}

// Validate reports the first out of range field.
func (c *Config) Validate() error {
	switch {
	case c.MBs <= 0:
		return errors.Errorf("firstpass: MBs %d must be positive", c.MBs)
	case c.TargetBitrate <= 0:
		return errors.Errorf("firstpass: TargetBitrate %d must be positive", c.TargetBitrate)
	case c.FrameRate <= 0:
		return errors.Errorf("firstpass: FrameRate %g must be positive", c.FrameRate)
	case c.MinQ < 0 || c.MaxQ > MaxQ || c.MinQ > c.MaxQ:
		return errors.Errorf("firstpass: quantizer range [%d, %d] invalid", c.MinQ, c.MaxQ)
	case c.MaxGFInterval < MinGFInterval:
		return errors.Errorf("firstpass: MaxGFInterval %d below %d", c.MaxGFInterval, MinGFInterval)
	case c.KeyFreqMax < 1:
		return errors.Errorf("firstpass: KeyFreqMax %d must be positive", c.KeyFreqMax)
	case c.VBRBias < 0 || c.VBRBias > 100:
		return errors.Errorf("firstpass: VBRBias %d outside [0, 100]", c.VBRBias)
	case c.MinSectionPct < 0 || c.MaxSectionPct < 100 || c.MinSectionPct > c.MaxSectionPct:
		return errors.Errorf("firstpass: section limits [%d, %d] invalid", c.MinSectionPct, c.MaxSectionPct)
	case c.EndUsage == ConstrainedQuality && (c.CQLevel < c.MinQ || c.CQLevel > c.MaxQ):
		return errors.Errorf("firstpass: CQLevel %d outside [%d, %d]", c.CQLevel, c.MinQ, c.MaxQ)
	case c.EndUsage == CBR && (c.OptimalBuffer <= 0 || c.BufferSize < c.OptimalBuffer):
		return errors.Errorf("firstpass: buffer model %d/%d invalid", c.OptimalBuffer, c.BufferSize)
	}
	return nil
}
