// Package rdopt decides how each macroblock is predicted. Candidates are
// tried in a fixed priority order and priced as rate plus distortion; the
// cheapest one is committed along with its motion vectors, coefficients and
// entropy contexts.
package rdopt

import (
	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
)

// PredictionMode is a macroblock-level prediction mode.
type PredictionMode uint8

const (
	DCPred PredictionMode = iota
	VPred
	HPred
	TMPred
	BPred
	ZeroMV
	NearestMV
	NearMV
	NewMV
	SplitMV
	NumPredictionModes
)

var modeNames = [NumPredictionModes]string{
	"DC_PRED", "V_PRED", "H_PRED", "TM_PRED", "B_PRED",
	"ZEROMV", "NEARESTMV", "NEARMV", "NEWMV", "SPLITMV",
}

func (m PredictionMode) String() string {
	if m < NumPredictionModes {
		return modeNames[m]
	}
	return "UNKNOWN"
}

// IsInter reports whether m predicts from a reference frame.
func (m PredictionMode) IsInter() bool { return m >= ZeroMV }

// RefFrame selects the prediction source.
type RefFrame uint8

const (
	IntraFrame RefFrame = iota
	LastFrame
	GoldenFrame
	AltRefFrame
	NumRefFrames
)

var refNames = [NumRefFrames]string{"INTRA", "LAST", "GOLDEN", "ALTREF"}

func (r RefFrame) String() string {
	if r < NumRefFrames {
		return refNames[r]
	}
	return "UNKNOWN"
}

// ModeIndex identifies one (mode, reference) candidate of ModeOrder.
type ModeIndex int

// NumModeIndices is the number of candidates per macroblock.
const NumModeIndices = 20

// Candidate indices into ModeOrder.
const (
	ThrZero1 ModeIndex = iota
	ThrDC
	ThrNearest1
	ThrNear1
	ThrZero2
	ThrNearest2
	ThrZero3
	ThrNearest3
	ThrNear2
	ThrNear3
	ThrVPred
	ThrHPred
	ThrTM
	ThrNew1
	ThrNew2
	ThrNew3
	ThrSplit1
	ThrSplit2
	ThrSplit3
	ThrBPred
)

// ModeCandidate pairs a prediction mode with its reference frame.
type ModeCandidate struct {
	Mode PredictionMode
	Ref  RefFrame
}

// ModeOrder is the fixed order in which candidates are evaluated: cheap,
// frequently winning inter modes first, expensive searches last.
var ModeOrder = [NumModeIndices]ModeCandidate{
	{ZeroMV, LastFrame},
	{DCPred, IntraFrame},
	{NearestMV, LastFrame},
	{NearMV, LastFrame},
	{ZeroMV, GoldenFrame},
	{NearestMV, GoldenFrame},
	{ZeroMV, AltRefFrame},
	{NearestMV, AltRefFrame},
	{NearMV, GoldenFrame},
	{NearMV, AltRefFrame},
	{VPred, IntraFrame},
	{HPred, IntraFrame},
	{TMPred, IntraFrame},
	{NewMV, LastFrame},
	{NewMV, GoldenFrame},
	{NewMV, AltRefFrame},
	{SplitMV, LastFrame},
	{SplitMV, GoldenFrame},
	{SplitMV, AltRefFrame},
	{BPred, IntraFrame},
}

// Mode tree probabilities.
var (
	ymodeProbs    = [4]uint8{112, 86, 140, 37}
	kfYmodeProbs  = [4]uint8{145, 156, 163, 128}
	uvModeProbs   = [3]uint8{162, 101, 204}
	kfUVModeProbs = [3]uint8{142, 114, 183}
	bmodeProbs    = [9]uint8{120, 90, 79, 133, 87, 85, 80, 111, 151}
	mbSplitProbs  = [3]uint8{110, 111, 150}

	// modeContexts gives the inter mode probabilities from the neighbour
	// vote counts of FindNearMVs.
	modeContexts = [6][4]uint8{
		{7, 1, 1, 143},
		{14, 18, 14, 107},
		{135, 64, 57, 68},
		{60, 56, 128, 65},
		{159, 134, 128, 34},
		{234, 188, 128, 28},
	}

	subMVRefProbs = [5][3]uint8{
		{147, 136, 18},
		{223, 1, 34},
		{106, 145, 1},
		{208, 1, 1},
		{179, 121, 1},
	}
)

// Tree walks for the mode alphabets: pairs of (bit, probability index).
var (
	ymodePaths = [BPred + 1][]dsp.TreeStep{
		DCPred: {{0, 0}},
		VPred:  {{1, 0}, {0, 1}, {0, 2}},
		HPred:  {{1, 0}, {0, 1}, {1, 2}},
		TMPred: {{1, 0}, {1, 1}, {0, 3}},
		BPred:  {{1, 0}, {1, 1}, {1, 3}},
	}
	kfYmodePaths = [BPred + 1][]dsp.TreeStep{
		BPred:  {{0, 0}},
		DCPred: {{1, 0}, {0, 1}, {0, 2}},
		VPred:  {{1, 0}, {0, 1}, {1, 2}},
		HPred:  {{1, 0}, {1, 1}, {0, 3}},
		TMPred: {{1, 0}, {1, 1}, {1, 3}},
	}
	uvModePaths = [dsp.NumBlockPredModes][]dsp.TreeStep{
		dsp.PredDC: {{0, 0}},
		dsp.PredV:  {{1, 0}, {0, 1}},
		dsp.PredH:  {{1, 0}, {1, 1}, {0, 2}},
		dsp.PredTM: {{1, 0}, {1, 1}, {1, 2}},
	}
	bmodePaths = [dsp.NumSubPredModes][]dsp.TreeStep{
		dsp.PredBDC: {{0, 0}},
		dsp.PredBTM: {{1, 0}, {0, 1}},
		dsp.PredBVE: {{1, 0}, {1, 1}, {0, 2}},
		dsp.PredBHE: {{1, 0}, {1, 1}, {1, 2}, {0, 3}, {0, 4}},
		dsp.PredBRD: {{1, 0}, {1, 1}, {1, 2}, {0, 3}, {1, 4}, {0, 5}},
		dsp.PredBVR: {{1, 0}, {1, 1}, {1, 2}, {0, 3}, {1, 4}, {1, 5}},
		dsp.PredBLD: {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {0, 6}},
		dsp.PredBVL: {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {0, 7}},
		dsp.PredBHD: {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {1, 7}, {0, 8}},
		dsp.PredBHU: {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {1, 7}, {1, 8}},
	}
	mvRefPaths = [SplitMV + 1][]dsp.TreeStep{
		ZeroMV:    {{0, 0}},
		NearestMV: {{1, 0}, {0, 1}},
		NearMV:    {{1, 0}, {1, 1}, {0, 2}},
		NewMV:     {{1, 0}, {1, 1}, {1, 2}, {0, 3}},
		SplitMV:   {{1, 0}, {1, 1}, {1, 2}, {1, 3}},
	}
	// Partitionings in SplitPartition order: 16x8, 8x16, 8x8, 4x4.
	splitPaths = [NumSplitPartitions][]dsp.TreeStep{
		{{1, 0}, {1, 1}, {0, 2}},
		{{1, 0}, {1, 1}, {1, 2}},
		{{1, 0}, {0, 1}},
		{{0, 0}},
	}
	subMVRefPaths = [numSubMVRefs][]dsp.TreeStep{
		subMVLeft:  {{0, 0}},
		subMVAbove: {{1, 0}, {0, 1}},
		subMVZero:  {{1, 0}, {1, 1}, {0, 2}},
		subMVNew:   {{1, 0}, {1, 1}, {1, 2}},
	}
)

// Sub-block motion vector references of a split macroblock.
const (
	subMVLeft = iota
	subMVAbove
	subMVZero
	subMVNew
	numSubMVRefs
)

// Split partitionings.
const (
	Split16x8 = iota
	Split8x16
	Split8x8
	Split4x4
	NumSplitPartitions
)

// splitLabels assigns each 4x4 luma block to a partition label.
var splitLabels = [NumSplitPartitions][16]uint8{
	{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1},
	{0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1},
	{0, 0, 1, 1, 0, 0, 1, 1, 2, 2, 3, 3, 2, 2, 3, 3},
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
}

var splitCounts = [NumSplitPartitions]int{2, 2, 4, 16}

// splitSizes is the block size searched for one label.
var splitSizes = [NumSplitPartitions]int{dsp.Block16x8, dsp.Block8x16, dsp.Block8x8, dsp.Block4x4}

// subMVContext selects the sub-mv reference probabilities from the left and
// above sub-block vectors.
func subMVContext(left, above mcomp.MV) int {
	lez := left.IsZero()
	aez := above.IsZero()
	lea := left == above
	switch {
	case lea && lez:
		return 3
	case lea:
		return 1
	case aez:
		return 4
	case lez:
		return 2
	}
	return 0
}

// FrameProbs are the frame-level probabilities that price reference and
// skip signalling.
type FrameProbs struct {
	Intra   uint8 // probability that a macroblock is intra coded
	Last    uint8 // probability of LAST among inter references
	Golden  uint8 // probability of GOLDEN against ALTREF
	SkipOff uint8 // probability that the skip flag is zero
}

// DefaultFrameProbs are used until a frame has statistics of its own.
var DefaultFrameProbs = FrameProbs{Intra: 63, Last: 200, Golden: 128, SkipOff: 128}

// RefCost returns the cost of signalling ref.
func (p *FrameProbs) RefCost(ref RefFrame) int {
	if ref == IntraFrame {
		return dsp.BitCost(0, p.Intra)
	}
	c := dsp.BitCost(1, p.Intra)
	switch ref {
	case LastFrame:
		return c + dsp.BitCost(0, p.Last)
	case GoldenFrame:
		return c + dsp.BitCost(1, p.Last) + dsp.BitCost(0, p.Golden)
	}
	return c + dsp.BitCost(1, p.Last) + dsp.BitCost(1, p.Golden)
}

// SkipCost returns the cost of the skip flag.
func (p *FrameProbs) SkipCost(skip bool) int {
	if skip {
		return dsp.BitCost(1, p.SkipOff)
	}
	return dsp.BitCost(0, p.SkipOff)
}

func ymodeCost(m PredictionMode, keyFrame bool) int {
	if keyFrame {
		return dsp.TreeCost(kfYmodePaths[m], kfYmodeProbs[:])
	}
	return dsp.TreeCost(ymodePaths[m], ymodeProbs[:])
}

func uvModeCost(m int, keyFrame bool) int {
	if keyFrame {
		return dsp.TreeCost(uvModePaths[m], kfUVModeProbs[:])
	}
	return dsp.TreeCost(uvModePaths[m], uvModeProbs[:])
}

func bmodeCost(m int) int {
	return dsp.TreeCost(bmodePaths[m], bmodeProbs[:])
}

// ModeInfo is the committed state of one macroblock that later macroblocks
// read as neighbour context.
type ModeInfo struct {
	Mode      PredictionMode
	Ref       RefFrame
	MV        mcomp.MV
	BMVs      [16]mcomp.MV // per 4x4 block; all equal MV unless split
	BModes    [16]uint8    // per 4x4 block intra mode (B_PRED context)
	Partition uint8        // SPLITMV partitioning
	Skip      bool
}

// ModeInfoGrid holds the ModeInfo of every macroblock of a frame. Positions
// outside the frame read as intra.
type ModeInfoGrid struct {
	Cols, Rows int
	mi         []ModeInfo
}

// NewModeInfoGrid allocates a grid of intra DC macroblocks.
func NewModeInfoGrid(cols, rows int) *ModeInfoGrid {
	return &ModeInfoGrid{Cols: cols, Rows: rows, mi: make([]ModeInfo, cols*rows)}
}

// At returns the info at (row, col), or an intra DC placeholder outside the
// frame.
func (g *ModeInfoGrid) At(row, col int) ModeInfo {
	if row < 0 || col < 0 || row >= g.Rows || col >= g.Cols {
		return ModeInfo{Mode: DCPred, Ref: IntraFrame}
	}
	return g.mi[row*g.Cols+col]
}

// Set commits info at (row, col).
func (g *ModeInfoGrid) Set(row, col int, mi ModeInfo) {
	g.mi[row*g.Cols+col] = mi
}

// Reset marks every macroblock intra DC.
func (g *ModeInfoGrid) Reset() {
	clear(g.mi)
}
