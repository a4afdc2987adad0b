package firstpass

import (
	"math"
)

const (
	kfIIFactor   = 1.4 // intra/inter scale of the key frame candidate test
	kfIIMax      = 128.0
	boostFactor  = 1.5 // intra/inter scale of group boosts
	gfRMax       = 96.0
	kfMBIntraMin = 300
	gfMBIntraMin = 200
	minKFBoost   = 250
	minGFBoost   = 125

	kfLookahead   = 16
	stillInterval = 5
)

// predictionDecay estimates how fast prediction quality fades across s:
// the inter share, reduced for a large moving share and for fast motion.
func predictionDecay(s *Stats) float64 {
	decay := s.PcntInter
	if m := 1 - s.PcntMotion/20; m < decay {
		decay = m
	}
	r := math.Abs(s.MVrAbs * s.PcntMotion)
	c := math.Abs(s.MVcAbs * s.PcntMotion)
	distance := math.Sqrt(r*r+c*c) / 250
	if distance > 1 {
		distance = 0
	} else {
		distance = 1 - distance
	}
	if distance < decay {
		decay = distance
	}
	return decay
}

// kfCandidate reports whether frame i looks like a scene cut that the
// following frames predict well from.
func (p *Planner) kfCandidate(i int) bool {
	if i < 1 || i+1 >= len(p.stats) {
		return false
	}
	last, this, next := &p.stats[i-1], &p.stats[i], &p.stats[i+1]
	if this.PcntSecondRef >= 0.10 || next.PcntSecondRef >= 0.10 {
		return false
	}
	cut := this.PcntInter < 0.05 ||
		(this.PcntInter-this.PcntNeutral < 0.25 &&
			this.IntraError/doubleDivideCheck(this.CodedError) < 2.5 &&
			(math.Abs(last.CodedError-this.CodedError)/doubleDivideCheck(this.CodedError) > 0.40 ||
				math.Abs(last.IntraError-this.IntraError)/doubleDivideCheck(this.IntraError) > 0.40 ||
				next.IntraError/doubleDivideCheck(next.CodedError) > 3.5))
	if !cut {
		return false
	}

	boost, old, decay := 0.0, 0.0, 1.0
	j := 0
	for ; j < kfLookahead && i+1+j < len(p.stats); j++ {
		s := &p.stats[i+1+j]
		r := math.Min(kfIIFactor*s.IntraError/doubleDivideCheck(s.CodedError), kfIIMax)
		if s.PcntInter > 0.85 {
			decay *= s.PcntInter
		} else {
			decay *= (0.85 + s.PcntInter) / 2
		}
		boost += decay * r
		if s.PcntInter < 0.05 || r < 1.5 ||
			(s.PcntInter-s.PcntNeutral < 0.20 && r < 3) ||
			boost-old < 0.5 || s.IntraError < 200 {
			break
		}
		old = boost
	}
	return boost > 5 && j > 3
}

// findNextKey returns the index of the key frame after start, or the
// number of frames when the clip ends first.
func (p *Planner) findNextKey(start int) int {
	for i := start + 1; i < len(p.stats); i++ {
		if i-start >= p.cfg.KeyFreqMax {
			return i
		}
		if p.cfg.AutoKey && p.kfCandidate(i) {
			return i
		}
	}
	return len(p.stats)
}

// groupError sums the modified error of frames [from, to).
func (p *Planner) groupError(from, to int) float64 {
	e := 0.0
	for i := from; i < to; i++ {
		e += p.modifiedError(&p.stats[i])
	}
	return e
}

// kfBoostScore measures how well the key frame at start predicts the rest
// of its group.
func (p *Planner) kfBoostScore(start, end int) int {
	boost, old, decay := 0.0, 0.0, 1.0
	minErr := float64(kfMBIntraMin * p.cfg.MBs)
	for i := start + 1; i < end; i++ {
		s := &p.stats[i]
		r := math.Min(boostFactor*math.Max(s.IntraError, minErr)/doubleDivideCheck(s.CodedError), kfIIMax)
		decay = math.Max(decay*predictionDecay(s), 0.1)
		boost += decay * r
		if i-start > MinGFInterval && boost-old < 1 {
			break
		}
		old = boost
	}
	kb := int(boost*100) >> 4
	if kb < minKFBoost {
		kb = minKFBoost
	}
	return kb
}

// DefineKFGroup plans the key frame group opening at start: its length,
// its share of the remaining bits and the key frame's own bits.
func (p *Planner) DefineKFGroup(start int) {
	end := p.findNextKey(start)
	p.nextKey = end
	n := end - start

	kfErr := p.groupError(start, end)
	p.kfGroupBits = 0
	if p.bitsLeft > 0 && p.modifiedErrorLeft > 0 {
		p.kfGroupBits = int64(float64(p.bitsLeft) * math.Min(kfErr/p.modifiedErrorLeft, 1))
		if max := int64(p.maxFrameBits) * int64(n); p.kfGroupBits > max {
			p.kfGroupBits = max
		}
	}

	p.kfBoost = p.kfBoostScore(start, end)
	chunks := int64(n-1)*100 + int64(p.kfBoost)
	p.kfBits = int(p.kfGroupBits * int64(p.kfBoost) / chunks)
	p.kfGroupBits -= int64(p.kfBits)
	p.kfGroupErrorLeft = kfErr - p.modifiedError(&p.stats[start])

	group := Sum(p.stats[start:end])
	errPerMB := group.CodedError / doubleDivideCheck(group.Count) / float64(p.cfg.MBs)
	p.kfQ = EstimateKFGroupQ(errPerMB, int(p.kfGroupBits/int64(n)), p.cfg.MBs,
		p.cfg.MinQ, p.cfg.MaxQ, group.IIRatio(), p.correction)
}

// flashAt reports whether frame i is a flash: better predicted from the
// golden frame than from the previous one.
func (p *Planner) flashAt(i int) bool {
	if i >= len(p.stats) {
		return false
	}
	s := &p.stats[i]
	return s.PcntSecondRef > s.PcntInter && s.PcntSecondRef >= 0.5
}

// stillAhead reports whether the frames after i are all but static.
func (p *Planner) stillAhead(i int) bool {
	if i+stillInterval >= len(p.stats) {
		return false
	}
	for j := i + 1; j <= i+stillInterval; j++ {
		s := &p.stats[j]
		if s.PcntInter-s.PcntMotion < 0.999 {
			return false
		}
	}
	return true
}

// gfGroupLength walks forward from the golden frame at start and returns
// the group length and its boost.
func (p *Planner) gfGroupLength(start int) (int, int) {
	remaining := p.nextKey - start
	minErr := float64(gfMBIntraMin * p.cfg.MBs)
	boost, old, decay := 0.0, 0.0, 1.0
	lastDecay := 1.0
	var mvRatioAcc, inOutAcc, absInOutAcc float64

	i := 1
	for ; i < remaining; i++ {
		s := &p.stats[start+i]

		motion := s.PcntMotion
		inOut := s.MVInOutCount * motion
		inOutAcc += inOut
		absInOutAcc += math.Abs(inOut)
		if motion > 0.05 {
			rRatio := math.Abs(s.MVrAbs) / doubleDivideCheck(math.Abs(s.MVr))
			cRatio := math.Abs(s.MVcAbs) / doubleDivideCheck(math.Abs(s.MVc))
			mvRatioAcc += math.Min(rRatio, s.MVrAbs) * motion
			mvRatioAcc += math.Min(cRatio, s.MVcAbs) * motion
		}

		r := boostFactor * math.Max(s.IntraError, minErr) / doubleDivideCheck(s.CodedError)
		// Motion into the frame (zoom out) brings new content.
		if inOut > 0 {
			r += r * inOut * 2
		} else {
			r += r * inOut / 2
		}
		r = math.Min(r, gfRMax)

		flash := p.flashAt(start + i + 1)
		loopDecay := predictionDecay(s)
		if !flash {
			decay = math.Max(decay*loopDecay, 0.1)
		}
		boost += decay * r

		if i > MinGFInterval && loopDecay >= 0.999 && lastDecay < 0.9 && p.stillAhead(start+i) {
			boost = old
			break
		}
		lastDecay = loopDecay

		if (i >= p.cfg.MaxGFInterval && decay < 0.995) ||
			(i > MinGFInterval && remaining-i >= MinGFInterval &&
				(boost > 20 || s.PcntInter < 0.75) && !flash &&
				(mvRatioAcc > 100 || absInOutAcc > 3 || inOutAcc < -2 || boost-old < 2)) {
			boost = old
			break
		}
		old = boost
	}
	return i, int(boost*100) >> 4
}

// AssignGFBits returns the bits of a golden frame opening a group of
// frames frames that together carry groupBits. The golden frame weighs
// boost against 100 for every other frame.
func AssignGFBits(groupBits int64, frames, boost int) int {
	if boost < minGFBoost {
		boost = minGFBoost
	}
	if max := frames * 200; boost > max {
		boost = max
	}
	chunks := int64(frames-1)*100 + int64(boost)
	if chunks <= 0 || groupBits <= 0 {
		return 0
	}
	return int(int64(boost) * groupBits / chunks)
}

// DefineGFGroup plans the golden frame group opening at start. A group
// opened by a key frame spends nothing extra on its first frame.
func (p *Planner) DefineGFGroup(start int, key bool) {
	length, boost := p.gfGroupLength(start)
	p.nextGF = start + length
	p.gfBoost = boost

	firstErr := p.modifiedError(&p.stats[start])
	groupErr := p.groupError(start, start+length)
	if key {
		groupErr -= firstErr
	}
	kfBits, kfErrLeft := p.kfGroupBits, p.kfGroupErrorLeft
	p.gfGroupBits = 0
	if kfBits > 0 && kfErrLeft > 0 {
		p.gfGroupBits = int64(float64(kfBits) * math.Min(groupErr/kfErrLeft, 1))
		if max := int64(p.maxFrameBits) * int64(length); p.gfGroupBits > max {
			p.gfGroupBits = max
		}
	}
	p.kfGroupErrorLeft -= groupErr
	p.kfGroupBits -= p.gfGroupBits
	if p.kfGroupBits < 0 {
		p.kfGroupBits = 0
	}

	if key {
		p.gfBits = 0
		p.gfGroupErrorLeft = groupErr
		return
	}

	gf := AssignGFBits(p.gfGroupBits, length, boost)
	// A golden frame easier than its group is held to its error share; a
	// harder one gets at least that share.
	if kfErrLeft > 0 {
		if firstErr < groupErr/float64(length) {
			alt := int64(float64(kfBits) * firstErr * float64(length) / kfErrLeft)
			if a := AssignGFBits(alt, length, boost); a < gf {
				gf = a
			}
		} else if a := int(float64(kfBits) * firstErr / kfErrLeft); a > gf {
			gf = a
		}
	}
	if int64(gf) > p.gfGroupBits {
		gf = int(p.gfGroupBits)
	}
	if p.cfg.EndUsage == CBR && int64(gf) > p.bufferLevel/2 {
		gf = int(p.bufferLevel / 2)
	}
	if gf < 0 {
		gf = 0
	}
	p.gfBits = gf
	p.gfGroupBits -= int64(gf)
	p.gfGroupErrorLeft = groupErr - firstErr
}
