package mcomp

// SubPelMethod selects the fractional refinement strategy. The iterative and
// two-stage variants may settle on different vectors when candidates tie;
// both are valid.
type SubPelMethod int

const (
	// SubPelIterative repeats each half- and quarter-pel round until it
	// stops moving (at most subPelIterations rounds per precision).
	SubPelIterative SubPelMethod = iota
	// SubPelStep runs exactly one half-pel round and one quarter-pel round.
	SubPelStep
	// SubPelHalf runs a single half-pel round.
	SubPelHalf
	// SubPelSkip keeps the integer vector (screen content).
	SubPelSkip
)

// String implements fmt.Stringer.
func (m SubPelMethod) String() string {
	switch m {
	case SubPelIterative:
		return "iterative"
	case SubPelStep:
		return "step"
	case SubPelHalf:
		return "half"
	case SubPelSkip:
		return "skip"
	}
	return "unknown"
}

const (
	halfPelStep      = 4
	quarterPelStep   = 2
	subPelIterations = 3
)

type subPelState struct {
	t        *Target
	p        *Params
	best     Result
	minR     int
	maxR     int
	minC     int
	maxC     int
	searches int
}

func newSubPelState(t *Target, start Result, p *Params) *subPelState {
	s := &subPelState{t: t, p: p, best: start}
	b := p.Bounds
	// Fractional positions read one extra pixel to the right and below.
	s.minR, s.maxR = b.RowMin<<3, (b.RowMax-1)<<3|7
	s.minC, s.maxC = b.ColMin<<3, (b.ColMax-1)<<3|7
	cr, cc := int(p.Center.Row), int(p.Center.Col)
	lim := MaxMVComponent << 1
	s.minR, s.maxR = maxInt(s.minR, cr-lim), minInt(s.maxR, cr+lim)
	s.minC, s.maxC = maxInt(s.minC, cc-lim), minInt(s.maxC, cc+lim)

	v, sse := t.subVariance(start.MV)
	s.best.Distortion, s.best.SSE = v, sse
	s.best.Err = v + p.Costs.ErrCost(start.MV, p.Center, p.ErrPerBit)
	return s
}

// check scores (r, c) and adopts it when strictly better. It returns the
// candidate's score, or NoMatch when the position is out of range.
func (s *subPelState) check(r, c int) int {
	if r < s.minR || r > s.maxR || c < s.minC || c > s.maxC {
		return NoMatch
	}
	mv := MV{Row: int16(r), Col: int16(c)}
	if mv == s.best.MV {
		return s.best.Err
	}
	s.searches++
	v, sse := s.t.subVariance(mv)
	score := v + s.p.Costs.ErrCost(mv, s.p.Center, s.p.ErrPerBit)
	if score < s.best.Err {
		s.best.MV = mv
		s.best.Err = score
		s.best.Distortion = v
		s.best.SSE = sse
	}
	return score
}

// round evaluates the four axis neighbours at step and the one diagonal
// between the two better axis directions. It reports whether best moved.
func (s *subPelState) round(step int) bool {
	tr, tc := int(s.best.MV.Row), int(s.best.MV.Col)
	left := s.check(tr, tc-step)
	right := s.check(tr, tc+step)
	up := s.check(tr-step, tc)
	down := s.check(tr+step, tc)

	dr, dc := -step, -step
	if left >= right {
		dc = step
	}
	if up >= down {
		dr = step
	}
	s.check(tr+dr, tc+dc)
	return int(s.best.MV.Row) != tr || int(s.best.MV.Col) != tc
}

// RefineSubPel refines an integer-pel result with the given method. The
// returned Err, Distortion and SSE describe the refined vector.
func RefineSubPel(method SubPelMethod, t *Target, start Result, p *Params) Result {
	if method == SubPelSkip {
		return start
	}
	s := newSubPelState(t, start, p)
	switch method {
	case SubPelIterative:
		for _, step := range [2]int{halfPelStep, quarterPelStep} {
			for i := 0; i < subPelIterations; i++ {
				if !s.round(step) {
					break
				}
			}
		}
	case SubPelStep:
		s.round(halfPelStep)
		s.round(quarterPelStep)
	case SubPelHalf:
		s.round(halfPelStep)
	}
	return s.best
}
