package rdopt

import (
	"math"

	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
)

// candidate is one priced (mode, reference) trial. It owns its
// coefficients, prediction and entropy contexts until it is committed or
// dropped.
type candidate struct {
	idx      ModeIndex
	info     ModeInfo
	uvMode   int
	coeffs   Coeffs
	tc       TrialContext
	pred     mbPred
	lumaDone bool // pred luma already holds the reconstruction (B_PRED)
	breakout bool

	modeRate  int // mode, vector and partition signalling
	tokenRate int
	dist      int
	sse       int // luma prediction SSE of inter candidates, -1 otherwise

	rate int
	rd   int
}

func newCandidate(idx ModeIndex, base TrialContext) *candidate {
	mc := ModeOrder[idx]
	return &candidate{idx: idx, info: ModeInfo{Mode: mc.Mode, Ref: mc.Ref}, tc: base, sse: -1}
}

// Decision is the committed outcome for one macroblock: what the bitstream
// packer needs plus the rate and distortion it was chosen on.
type Decision struct {
	Index  ModeIndex
	Info   ModeInfo
	UVMode int
	Coeffs Coeffs
	Rate   int
	Dist   int
	RD     int
	// SSE is the luma prediction SSE of an inter decision, -1 for intra.
	SSE int
}

// finish adds the skip and reference signalling and computes the final
// cost, including the overlay adjustment.
func (m *mb) finish(c *candidate, bias *mbBias) {
	fc := m.fc
	switch {
	case c.breakout:
		c.rate = breakoutRate
		c.info.Skip = true
	case c.coeffs.Empty():
		c.rate = c.modeRate + fc.Probs.SkipCost(true)
		c.info.Skip = true
	default:
		c.rate = c.modeRate + c.tokenRate + fc.Probs.SkipCost(false)
	}
	if !fc.KeyFrame && !c.breakout {
		c.rate += fc.Probs.RefCost(c.info.Ref)
	}
	c.rd = bias.adjust(c, fc.RD.Cost(c.rate, c.dist))
}

// available reports whether a candidate's reference exists in this frame.
func (m *mb) available(mc ModeCandidate) bool {
	if mc.Ref == IntraFrame {
		return true
	}
	return !m.fc.KeyFrame && m.fc.Refs[mc.Ref] != nil
}

// search is the running state of one macroblock's mode loop.
type search struct {
	m      *mb
	bias   mbBias
	base   TrialContext
	uv     *chromaChoice
	best   *candidate
	bestRD int
}

func begin(fc *FrameContext, rs *RowState, col int) *search {
	m := newMB(fc, rs, col)
	return &search{
		m:      m,
		bias:   fc.Overlay.prepare(m),
		base:   Speculate(&fc.Above[col], &rs.Left),
		bestRD: math.MaxInt,
	}
}

func (s *search) chroma() *chromaChoice {
	if s.uv == nil {
		s.uv = s.m.bestIntraChroma(s.base)
	}
	return s.uv
}

// offer prices c and keeps it when it beats the running best. Ties keep
// the earlier candidate.
func (s *search) offer(c *candidate, stats *SearchStats) {
	s.m.finish(c, &s.bias)
	if c.rd < s.bestRD {
		s.best, s.bestRD = c, c.rd
		if stats != nil {
			stats.Improved(c.idx)
		}
		return
	}
	if stats != nil {
		stats.Lost(c.idx)
	}
}

// conclude applies the denoiser override and commits the winner.
func (s *search) conclude(stats *SearchStats) *Decision {
	m := s.m
	if s.best == nil {
		c := m.evalIntra16(ThrDC, s.base, s.chroma())
		m.finish(c, &s.bias)
		s.best = c
	}
	if b := s.best; m.fc.Overlay != nil && !s.bias.skin && b.info.Ref == LastFrame &&
		b.info.Mode != ZeroMV && b.info.Mode != SplitMV &&
		m.fc.Overlay.Denoiser.PreferZero(b.info.MV, b.sse, m.zeroSSE) {
		if z, variance := m.prepareInter(ThrZero1, s.base, mcomp.MV{}, 0); z != nil {
			if !m.breakout(z, variance, z.sse) {
				m.codeInter(z)
			}
			m.finish(z, &s.bias)
			s.best = z
		}
	}
	if stats != nil {
		stats.Won(s.best.idx)
	}
	return m.commit(s.best, &s.bias)
}

// RDPickInterMode decides an inter-frame macroblock by full rate-distortion
// search: every candidate that passes its adaptive threshold is predicted,
// transformed, quantized and priced with token costs, in ModeOrder. The
// search ends early when a candidate breaks out as a skip.
func RDPickInterMode(fc *FrameContext, rs *RowState, col int) *Decision {
	s := begin(fc, rs, col)
	m := s.m
	stats := rs.Stats
	stats.BeginMB()
	for i := range ModeOrder {
		idx := ModeIndex(i)
		mc := ModeOrder[idx]
		if !m.available(mc) || !stats.ShouldTest(idx, s.bestRD) {
			continue
		}
		var c *candidate
		switch mc.Mode {
		case DCPred, VPred, HPred, TMPred:
			c = m.evalIntra16(idx, s.base, s.chroma())
		case BPred:
			c = m.evalBPred(idx, s.base, s.chroma(), s.bestRD)
			if c == nil {
				stats.Lost(idx)
				continue
			}
		case ZeroMV, NearestMV, NearMV:
			c = m.evalNearMode(idx, s.base)
		case NewMV:
			c = m.evalNewMV(idx, s.base)
		case SplitMV:
			if !fc.Speed.Split {
				continue
			}
			c = m.evalSplitMV(idx, s.base, s.bestRD)
			if c == nil {
				stats.Lost(idx)
				continue
			}
		}
		if c == nil {
			continue
		}
		s.offer(c, stats)
		if c.breakout {
			break
		}
	}
	return s.conclude(stats)
}

// PickInterMode is the fast decision: candidates are ranked by prediction
// variance plus signalling cost, and only the winner's residual is coded.
func PickInterMode(fc *FrameContext, rs *RowState, col int) *Decision {
	s := begin(fc, rs, col)
	m := s.m
	stats := rs.Stats
	stats.BeginMB()
	for i := range ModeOrder {
		idx := ModeIndex(i)
		mc := ModeOrder[idx]
		if !m.available(mc) || !stats.ShouldTest(idx, s.bestRD) {
			continue
		}
		var c *candidate
		switch mc.Mode {
		case DCPred, VPred, HPred, TMPred:
			c = newCandidate(idx, s.base)
			m.predictLuma16(mc.Mode, &c.pred)
			src := fc.Src
			c.dist, _ = dsp.Variance16x16(src.Y, m.srcY, src.YStride, c.pred[:], 0, dsp.BPS)
			c.modeRate = ymodeCost(mc.Mode, false)
		case BPred:
			c = m.evalBPred(idx, s.base, s.chroma(), s.bestRD)
			if c == nil {
				stats.Lost(idx)
				continue
			}
		case ZeroMV, NearestMV, NearMV, NewMV:
			var mv mcomp.MV
			mvRate := 0
			if mc.Mode == NewMV {
				mv, mvRate = m.newMV(mc.Ref)
			} else {
				var ok bool
				if mv, ok = m.nearVector(idx); !ok {
					continue
				}
			}
			var variance int
			if c, variance = m.prepareInter(idx, s.base, mv, mvRate); c == nil {
				continue
			}
			if !m.breakout(c, variance, c.sse) {
				c.dist = variance
			}
		default:
			continue
		}
		m.finishFast(c, &s.bias)
		if c.rd < s.bestRD {
			s.best, s.bestRD = c, c.rd
			stats.Improved(idx)
		} else {
			stats.Lost(idx)
		}
		if c.breakout {
			break
		}
	}
	if b := s.best; b != nil && !b.breakout && !b.lumaDone {
		s.codeWinner(b)
		m.finish(b, &s.bias)
	}
	return s.conclude(stats)
}

// finishFast prices a candidate of the fast decision from its signalling
// cost and prediction error.
func (m *mb) finishFast(c *candidate, bias *mbBias) {
	if c.breakout || c.lumaDone {
		m.finish(c, bias)
		return
	}
	c.rate = c.modeRate
	if !m.fc.KeyFrame {
		c.rate += m.fc.Probs.RefCost(c.info.Ref)
	}
	c.rd = bias.adjust(c, m.fc.RD.Cost(c.rate, c.dist))
}

// codeWinner codes the residual of the fast decision's winner.
func (s *search) codeWinner(c *candidate) {
	m := s.m
	c.tc = s.base
	c.tokenRate, c.dist = 0, 0
	if c.info.Ref != IntraFrame {
		m.codeInter(c)
		return
	}
	k := coder{m: m, c: &c.coeffs, tc: &c.tc, intra: true}
	c.tokenRate, c.dist = k.luma16(&c.pred)
	c.applyChroma(s.chroma())
}

// PickIntraMode decides a key frame macroblock among the intra modes.
func PickIntraMode(fc *FrameContext, rs *RowState, col int) *Decision {
	s := begin(fc, rs, col)
	m := s.m
	for _, idx := range [...]ModeIndex{ThrDC, ThrVPred, ThrHPred, ThrTM} {
		s.offer(m.evalIntra16(idx, s.base, s.chroma()), nil)
	}
	if c := m.evalBPred(ThrBPred, s.base, s.chroma(), s.bestRD); c != nil {
		s.offer(c, nil)
	}
	return s.conclude(nil)
}

// commit publishes the winner: entropy contexts, mode info, reconstruction
// and the row's statistics.
func (m *mb) commit(c *candidate, bias *mbBias) *Decision {
	fc, rs := m.fc, m.rs
	c.tc.Commit(&fc.Above[m.col], &rs.Left)
	fc.Modes.Set(m.row, m.col, c.info)
	reconstruct(fc.Recon, m.row, m.col, &c.pred, &c.coeffs, c.lumaDone)

	i := m.index()
	if c.info.Mode == ZeroMV && c.info.Ref == LastFrame && !bias.dotChecked {
		fc.ZeroRuns[i]++
	} else {
		fc.ZeroRuns[i] = 0
	}

	if !c.info.Skip {
		for b := range c.coeffs.Blocks {
			if b == y2Block && !c.coeffs.HasY2 {
				continue
			}
			blk := &c.coeffs.Blocks[b]
			rs.TokenStats.Record(blk.QCoeff[:], c.coeffs.BlockType(b), int(blk.Ctx), blk.EOB)
		}
	} else {
		rs.Skips++
	}
	rs.Rate += int64(c.rate)
	rs.Dist += int64(c.dist)

	return &Decision{
		Index:  c.idx,
		Info:   c.info,
		UVMode: c.uvMode,
		Coeffs: c.coeffs,
		Rate:   c.rate,
		Dist:   c.dist,
		RD:     c.rd,
		SSE:    c.sse,
	}
}
