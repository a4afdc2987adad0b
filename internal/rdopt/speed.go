package rdopt

import (
	"math"

	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/quant"
)

// Threshold multiplier limits, in 1/128 units.
const (
	MinThreshMult     = 32
	MaxThreshMult     = 512
	defaultThreshMult = 128
	// ThreshDisabled marks a candidate that is never tested.
	ThreshDisabled = math.MaxInt32
)

// SearchMethod is the integer-pel motion search strategy.
type SearchMethod int

const (
	SearchDiamond SearchMethod = iota
	SearchNStep
	SearchHex
	SearchFull
)

func (m SearchMethod) String() string {
	switch m {
	case SearchDiamond:
		return "diamond"
	case SearchNStep:
		return "nstep"
	case SearchHex:
		return "hex"
	case SearchFull:
		return "full"
	}
	return "unknown"
}

// EncodingMode is the quality/speed trade-off family.
type EncodingMode int

const (
	GoodQuality EncodingMode = iota
	BestQuality
	Realtime
)

// SpeedFeatures are the knobs that bound the search effort.
type SpeedFeatures struct {
	// ThreshMult is the base RD threshold multiplier per candidate; a
	// candidate is skipped once the best RD cost falls below its threshold.
	ThreshMult [NumModeIndices]int
	// ModeCheckFreq limits how often a candidate is tested: at most once
	// every ModeCheckFreq macroblocks.
	ModeCheckFreq [NumModeIndices]int

	Search         SearchMethod
	SubPel         mcomp.SubPelMethod
	FirstStep      int // skipped diamond steps (searchParam)
	FurtherSteps   int // NStepDiamond restarts
	FullSearchDist int
	// FullSearchFallback re-runs an exhaustive search when the heuristic
	// result still has a large variance.
	FullSearchFallback bool
	RefineRange        int // RefiningSearch iterations for split sub-blocks
	UseFastQuant       bool
	Trellis            bool
	// RDSearch selects full rate-distortion mode decision rather than the
	// variance-based fast path.
	RDSearch bool
	Split    bool
	// ImprovedMVPred picks the NEWMV starting point by SAD among the
	// neighbour candidates.
	ImprovedMVPred bool
}

// NewSpeedFeatures returns the features for an encoding mode and speed
// (0 slowest). Speeds above the mode's range are clamped.
func NewSpeedFeatures(mode EncodingMode, speed int) SpeedFeatures {
	if speed < 0 {
		speed = 0
	}
	sf := SpeedFeatures{
		Search:         SearchNStep,
		SubPel:         mcomp.SubPelIterative,
		FurtherSteps:   mcomp.MaxSearchSteps - 1,
		FullSearchDist: 16,
		RefineRange:    8,
		Trellis:        true,
		RDSearch:       true,
		Split:          true,
		ImprovedMVPred: true,
	}
	t := &sf.ThreshMult
	// Zero, nearest and near on every reference and DC are always tested.
	t[ThrVPred], t[ThrHPred], t[ThrTM] = 1000, 1000, 1000
	t[ThrNew1], t[ThrNew2], t[ThrNew3] = 1000, 1000, 1000
	t[ThrSplit1], t[ThrSplit2], t[ThrSplit3] = 2500, 5000, 5000
	t[ThrBPred] = 2000

	switch mode {
	case BestQuality:
		sf.FullSearchFallback = true
		t[ThrNew1], t[ThrNew2], t[ThrNew3] = 0, 0, 0
		t[ThrSplit1] = 1000
	case GoodQuality:
		if speed >= 1 {
			sf.ModeCheckFreq[ThrSplit1] = 2
			sf.ModeCheckFreq[ThrSplit2], sf.ModeCheckFreq[ThrSplit3] = 4, 4
			t[ThrNew1], t[ThrNew2], t[ThrNew3] = 1500, 1500, 1500
			t[ThrSplit2], t[ThrSplit3] = 10000, 10000
		}
		if speed >= 2 {
			sf.SubPel = mcomp.SubPelStep
			sf.FirstStep = 1
			sf.FurtherSteps = mcomp.MaxSearchSteps - 2
			t[ThrVPred], t[ThrHPred], t[ThrTM] = 1500, 1500, 1500
			t[ThrBPred] = 2500
		}
		if speed >= 3 {
			sf.Split = false
			sf.UseFastQuant = true
			sf.Search = SearchHex
			t[ThrBPred] = 5000
			for i := ThrSplit1; i <= ThrSplit3; i++ {
				t[i] = ThreshDisabled
			}
		}
		if speed >= 4 {
			sf.Trellis = false
			sf.SubPel = mcomp.SubPelHalf
			t[ThrNear2], t[ThrNear3] = 2000, 2000
		}
	case Realtime:
		sf.RDSearch = false
		sf.Split = false
		sf.Trellis = false
		sf.UseFastQuant = true
		sf.Search = SearchHex
		sf.SubPel = mcomp.SubPelStep
		sf.ImprovedMVPred = false
		for i := ThrSplit1; i <= ThrSplit3; i++ {
			t[i] = ThreshDisabled
		}
		if speed >= 2 {
			sf.SubPel = mcomp.SubPelHalf
			t[ThrBPred] = 5000
		}
		if speed >= 4 {
			t[ThrVPred], t[ThrHPred], t[ThrTM] = 2000, 2000, 2000
			t[ThrNew2], t[ThrNew3] = 2000, 2000
			sf.ModeCheckFreq[ThrBPred] = 4
		}
		if speed >= 6 {
			sf.SubPel = mcomp.SubPelSkip
			t[ThrBPred] = ThreshDisabled
		}
	}
	return sf
}

// RDConsts relate a quantizer to the rate-distortion trade-off.
type RDConsts struct {
	Mult, Div   int
	ErrPerBit   int
	SADPerBit16 int
	SADPerBit4  int
	// Baseline are the unscaled per-candidate thresholds.
	Baseline [NumModeIndices]int
}

// NewRDConsts derives the multipliers and baseline thresholds for qIndex.
func NewRDConsts(qIndex int, sf *SpeedFeatures) RDConsts {
	qv := quant.DCQLookup[clampQIndex(qIndex)]
	capped := float64(qv)
	if capped > 160 {
		capped = 160
	}
	rc := RDConsts{Mult: int(2.80 * capped * capped), Div: 100}
	rc.ErrPerBit = rc.Mult / 110
	if rc.ErrPerBit == 0 {
		rc.ErrPerBit = 1
	}
	rc.SADPerBit16 = mcomp.SADPerBit16(qIndex)
	rc.SADPerBit4 = mcomp.SADPerBit4(qIndex)

	q := int(math.Pow(float64(qv), 1.25))
	if q < 8 {
		q = 8
	}
	div := 1
	if rc.Mult > 1000 {
		rc.Div = 1
		rc.Mult /= 100
		div = 100
	}
	for i, m := range sf.ThreshMult {
		if m == ThreshDisabled {
			rc.Baseline[i] = ThreshDisabled
			continue
		}
		rc.Baseline[i] = m * q / div
	}
	return rc
}

// Cost is the rate-distortion cost under these constants.
func (rc *RDConsts) Cost(rate, dist int) int {
	return quant.RDCost(rc.Mult, rc.Div, rate, dist)
}

func clampQIndex(q int) int {
	if q < 0 {
		return 0
	}
	if q > quant.NumQIndex-1 {
		return quant.NumQIndex - 1
	}
	return q
}

// SearchStats is the adaptive per-candidate control state of one
// macroblock row. Candidates that keep losing have their threshold raised
// so they are tried less often; the winner's threshold is lowered.
type SearchStats struct {
	Threshes   [NumModeIndices]int
	ThreshMult [NumModeIndices]int
	HitCounts  [NumModeIndices]int
	MBsTested  int
	// SubPelSearches counts sub-pixel refinements performed.
	SubPelSearches int
	// ModeWins counts committed decisions per candidate.
	ModeWins [NumModeIndices]int

	baseline *[NumModeIndices]int
	freq     *[NumModeIndices]int
}

// NewSearchStats starts a row with neutral multipliers.
func NewSearchStats(rc *RDConsts, sf *SpeedFeatures) *SearchStats {
	s := &SearchStats{baseline: &rc.Baseline, freq: &sf.ModeCheckFreq}
	for i := range s.ThreshMult {
		s.ThreshMult[i] = defaultThreshMult
		s.Threshes[i] = s.scaled(i)
	}
	return s
}

func (s *SearchStats) scaled(i int) int {
	b := s.baseline[i]
	if b == ThreshDisabled {
		return ThreshDisabled
	}
	return (b >> 7) * s.ThreshMult[i]
}

// BeginMB counts a macroblock for the test-frequency gate.
func (s *SearchStats) BeginMB() { s.MBsTested++ }

// ShouldTest reports whether candidate i is tested given the best cost so
// far. A candidate over its test frequency budget has its threshold raised
// instead.
func (s *SearchStats) ShouldTest(i ModeIndex, bestRD int) bool {
	if s.Threshes[i] == ThreshDisabled || bestRD <= s.Threshes[i] {
		return false
	}
	if f := s.freq[i]; f > 1 && s.HitCounts[i] > 0 && s.MBsTested <= f*s.HitCounts[i] {
		s.raise(i)
		return false
	}
	s.HitCounts[i]++
	return true
}

func (s *SearchStats) raise(i ModeIndex) {
	s.ThreshMult[i] += 4
	if s.ThreshMult[i] > MaxThreshMult {
		s.ThreshMult[i] = MaxThreshMult
	}
	s.Threshes[i] = s.scaled(int(i))
}

// Lost records that a tested candidate did not improve on the best cost.
func (s *SearchStats) Lost(i ModeIndex) { s.raise(i) }

// Improved records that candidate i became the running best.
func (s *SearchStats) Improved(i ModeIndex) {
	if s.ThreshMult[i] >= MinThreshMult+2 {
		s.ThreshMult[i] -= 2
	} else {
		s.ThreshMult[i] = MinThreshMult
	}
	s.Threshes[i] = s.scaled(int(i))
}

// Won lowers the threshold of the committed candidate by a quarter.
func (s *SearchStats) Won(i ModeIndex) {
	s.ModeWins[i]++
	b := s.baseline[i]
	if b <= 0 || b >= math.MaxInt32>>2 {
		return
	}
	adj := s.ThreshMult[i] >> 2
	if s.ThreshMult[i] >= MinThreshMult+adj {
		s.ThreshMult[i] -= adj
	} else {
		s.ThreshMult[i] = MinThreshMult
	}
	s.Threshes[i] = s.scaled(int(i))
}

// Rebase points the statistics at new constants, keeping the learned
// multipliers, and restarts the test-frequency counters.
func (s *SearchStats) Rebase(rc *RDConsts, sf *SpeedFeatures) {
	s.baseline = &rc.Baseline
	s.freq = &sf.ModeCheckFreq
	s.MBsTested = 0
	s.HitCounts = [NumModeIndices]int{}
	for i := range s.Threshes {
		s.Threshes[i] = s.scaled(i)
	}
}
