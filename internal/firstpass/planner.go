package firstpass

import (
	"math"

	"github.com/pkg/errors"
)

// FramePlan is the second pass decision for one frame.
type FramePlan struct {
	Frame  int
	Key    bool
	Golden bool
	// Boost of a key or golden frame over the frames it predicts.
	Boost      int
	TargetBits int
	MinQ, MaxQ int
}

// Planner is the second pass: it walks the first pass statistics, splits
// the clip into key frame and golden frame groups and assigns every frame
// a bit target and a quantizer range.
type Planner struct {
	cfg   Config
	stats []Stats
	total Stats
	left  Stats // frames not yet planned
	pos   int

	avgFrameBits int
	minFrameBits int
	maxFrameBits int

	bitsLeft          int64
	modifiedErrorLeft float64

	nextKey          int
	kfGroupBits      int64
	kfGroupErrorLeft float64
	kfBoost          int
	kfBits           int
	kfQ              int

	nextGF           int
	gfGroupBits      int64
	gfGroupErrorLeft float64
	gfBoost          int
	gfBits           int

	activeMaxQ int
	cqQ        int

	bufferLevel int64
	correction  float64
	lastTarget  int
}

// NewPlanner validates cfg and prepares a plan over stats, the per-frame
// records of the first pass.
func NewPlanner(stats []Stats, cfg Config) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, errors.Wrap(ErrStatsExhausted, "firstpass: empty first pass")
	}
	p := &Planner{
		cfg:         cfg,
		stats:       stats,
		total:       Sum(stats),
		bufferLevel: cfg.StartingBuffer,
		correction:  1,
	}
	p.left = p.total

	duration := p.total.Duration
	if duration <= 0 {
		duration = p.total.Count / cfg.FrameRate
	}
	p.bitsLeft = int64(duration * float64(cfg.TargetBitrate))
	p.avgFrameBits = int(p.bitsLeft / int64(len(stats)))
	p.minFrameBits = p.avgFrameBits * cfg.MinSectionPct / 100
	p.maxFrameBits = p.avgFrameBits * cfg.MaxSectionPct / 100
	p.modifiedErrorLeft = p.groupError(0, len(stats))
	return p, nil
}

// modifiedError compresses the error of s towards the clip average by the
// VBR bias.
func (p *Planner) modifiedError(s *Stats) float64 {
	av := p.total.CodedError / doubleDivideCheck(p.total.Count)
	return av * math.Pow(s.CodedError/doubleDivideCheck(av), float64(p.cfg.VBRBias)/100)
}

// FramesLeft returns the number of frames not yet planned.
func (p *Planner) FramesLeft() int { return len(p.stats) - p.pos }

// BitsLeft returns the budget of the frames not yet planned.
func (p *Planner) BitsLeft() int64 { return p.bitsLeft }

// Next plans the next frame. It returns ErrStatsExhausted after the last.
func (p *Planner) Next() (FramePlan, error) {
	if p.pos >= len(p.stats) {
		return FramePlan{}, ErrStatsExhausted
	}
	i := p.pos
	s := &p.stats[i]
	fp := FramePlan{Frame: i, MinQ: p.cfg.MinQ}

	if i == p.nextKey {
		p.DefineKFGroup(i)
		fp.Key = true
		fp.Boost = p.kfBoost
	}
	if i == p.nextGF {
		p.DefineGFGroup(i, fp.Key)
		p.estimateSectionQ()
		if !fp.Key {
			fp.Golden = true
			fp.Boost = p.gfBoost
		}
	}

	var target int
	switch {
	case fp.Key:
		target = p.kfBits
	case fp.Golden:
		target = p.gfBits
	default:
		target = p.interFrameBits(s)
	}
	target = p.bufferClamp(target)

	fp.TargetBits = target
	fp.MaxQ = p.activeMaxQ
	if fp.Key {
		fp.MaxQ = minInt(p.kfQ, p.cfg.MaxQ)
	}
	if p.cfg.EndUsage == ConstrainedQuality {
		fp.MinQ = p.cqQ
		fp.MaxQ = maxInt(fp.MaxQ, fp.MinQ)
	}

	p.bitsLeft -= int64(target)
	p.modifiedErrorLeft -= p.modifiedError(s)
	p.left.Subtract(s)
	p.bufferLevel += int64(p.avgFrameBits - target)
	if p.bufferLevel > p.cfg.BufferSize && p.cfg.EndUsage == CBR {
		p.bufferLevel = p.cfg.BufferSize
	}
	p.lastTarget = target
	p.pos++
	return fp, nil
}

// Plan runs Next to the end of the statistics.
func (p *Planner) Plan() ([]FramePlan, error) {
	out := make([]FramePlan, 0, p.FramesLeft())
	for {
		fp, err := p.Next()
		if errors.Cause(err) == ErrStatsExhausted {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, fp)
	}
}

// Update reports the bits the last planned frame actually cost. The
// difference is carried into the remaining budget and the CBR buffer, and
// the rolling correction of the quantizer estimates follows the ratio.
func (p *Planner) Update(actualBits int) {
	diff := int64(p.lastTarget - actualBits)
	p.bitsLeft += diff
	p.bufferLevel += diff
	if p.lastTarget > 0 {
		ratio := float64(actualBits) / float64(p.lastTarget)
		p.correction = math.Min(math.Max(p.correction*0.75+ratio*0.25, 0.1), 10)
	}
}

// interFrameBits gives a frame inside a golden group its share of the
// group's remaining bits.
func (p *Planner) interFrameBits(s *Stats) int {
	err := p.modifiedError(s)
	var t int64
	if p.gfGroupErrorLeft > 0 && p.gfGroupBits > 0 {
		t = int64(float64(p.gfGroupBits) * math.Min(err/p.gfGroupErrorLeft, 1))
	}
	if t < int64(p.minFrameBits) {
		t = int64(p.minFrameBits)
	}
	if t > int64(p.maxFrameBits) {
		t = int64(p.maxFrameBits)
	}
	p.gfGroupErrorLeft -= err
	p.gfGroupBits -= t
	if p.gfGroupBits < 0 {
		p.gfGroupBits = 0
	}
	return int(t)
}

// bufferClamp protects the CBR buffer: below the optimal level targets
// shrink in proportion to the shortfall, and no frame may drain more than
// the buffer holds.
func (p *Planner) bufferClamp(target int) int {
	if p.cfg.EndUsage != CBR {
		return target
	}
	opt := p.cfg.OptimalBuffer
	if p.bufferLevel < opt {
		short := float64(opt-p.bufferLevel) / float64(opt)
		target = int(float64(target) * (1 - math.Min(short, 1)/2))
	}
	if lim := p.bufferLevel + int64(p.avgFrameBits); int64(target) > lim {
		target = int(lim)
	}
	return maxInt(target, p.minFrameBits)
}

// estimateSectionQ refreshes the worst quantizer for the frames left.
func (p *Planner) estimateSectionQ() {
	framesLeft := p.FramesLeft()
	errPerMB := p.left.CodedError / doubleDivideCheck(p.left.Count) / float64(p.cfg.MBs)
	bits := int(p.bitsLeft / int64(framesLeft))
	p.activeMaxQ = EstimateMaxQ(errPerMB, bits, p.cfg.MBs, p.cfg.MinQ, p.cfg.MaxQ, p.correction)
	if p.cfg.EndUsage == ConstrainedQuality {
		p.cqQ = EstimateCQ(errPerMB, bits, p.cfg.MBs, p.cfg.CQLevel, p.cfg.MaxQ, p.total.IIRatio())
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
