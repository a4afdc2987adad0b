package rdopt

import (
	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/quant"
	"github.com/deepteams/vp8rd/internal/yuv"
)

// DefaultEncodeBreakout is the SSE below which an inter candidate may end
// the search without coding a residual.
const DefaultEncodeBreakout = 100

// FrameContext is the state shared by every macroblock of one frame. All
// fields except Recon, Modes, Above and ZeroRuns are read-only during the
// frame; those four are written one macroblock at a time in an order that
// keeps each cell's readers behind its writer.
type FrameContext struct {
	Src   *yuv.Frame
	Recon *yuv.Frame
	// Refs are the reference buffers by RefFrame; nil entries are not
	// searched. Refs[IntraFrame] is unused.
	Refs     [NumRefFrames]*yuv.Frame
	SignBias [NumRefFrames]bool
	KeyFrame bool

	Quant   *quant.Tables
	RD      RDConsts
	Speed   *SpeedFeatures
	Tokens  *quant.TokenCosts
	MVCosts *mcomp.CostTables
	Probs   FrameProbs
	Diamond *mcomp.SiteSet

	// EncodeBreakout is the inter SSE threshold for an early skip; 0
	// disables it.
	EncodeBreakout int

	Modes *ModeInfoGrid
	// Above holds the committed bottom-edge entropy flags per MB column.
	Above []EntropyPlanes
	// ZeroRuns counts consecutive frames each macroblock chose ZEROMV on
	// LAST; it feeds the dot artifact check.
	ZeroRuns []int

	Overlay *Overlay
}

// NewFrameContext sizes the per-frame grids for src.
func NewFrameContext(src, recon *yuv.Frame) *FrameContext {
	return &FrameContext{
		Src:            src,
		Recon:          recon,
		Diamond:        mcomp.NewDiamondSites(src.YStride),
		EncodeBreakout: DefaultEncodeBreakout,
		Probs:          DefaultFrameProbs,
		Modes:          NewModeInfoGrid(src.MBCols, src.MBRows),
		Above:          make([]EntropyPlanes, src.MBCols),
		ZeroRuns:       make([]int, src.MBCols*src.MBRows),
	}
}

// BeginFrame clears the above contexts. The mode grid keeps the previous
// frame's contents until overwritten.
func (fc *FrameContext) BeginFrame() {
	clear(fc.Above)
	if fc.Overlay != nil {
		fc.Overlay.beginFrame(fc.Src.MBCols * fc.Src.MBRows)
	}
}

// RowState is owned by the worker coding one macroblock row.
type RowState struct {
	Row   int
	Stats *SearchStats
	Left  EntropyPlanes
	// TokenStats collects the committed tokens for probability adaptation.
	TokenStats quant.TokenStats

	Rate, Dist int64
	Skips      int
}

// NewRowState starts row r with the given statistics, which may be carried
// over from the previous row.
func NewRowState(row int, stats *SearchStats) *RowState {
	return &RowState{Row: row, Stats: stats}
}

// intraEdges are the reconstructed neighbours of a macroblock. Missing
// neighbours take the frame border values: 127 above and 129 to the left.
type intraEdges struct {
	haveAbove, haveLeft bool

	yAbove [20]byte // 16 above plus 4 above-right
	yLeft  [16]byte
	yTL    byte

	uAbove, vAbove [8]byte
	uLeft, vLeft   [8]byte
	uTL, vTL       byte
}

func (e *intraEdges) load(f *yuv.Frame, row, col int) {
	e.haveAbove, e.haveLeft = row > 0, col > 0
	yOff := f.MBYOff(col, row)
	loadEdge(f.Y, yOff, f.YStride, 16, e.haveAbove, e.haveLeft, e.yAbove[:16], e.yLeft[:], &e.yTL)
	switch {
	case row == 0:
		fillBytes(e.yAbove[16:], 127)
	case col == f.MBCols-1:
		fillBytes(e.yAbove[16:], e.yAbove[15])
	default:
		copy(e.yAbove[16:], f.Y[yOff-f.YStride+16:])
	}
	uvOff := f.MBUVOff(col, row)
	loadEdge(f.U, uvOff, f.UVStride, 8, e.haveAbove, e.haveLeft, e.uAbove[:], e.uLeft[:], &e.uTL)
	loadEdge(f.V, uvOff, f.UVStride, 8, e.haveAbove, e.haveLeft, e.vAbove[:], e.vLeft[:], &e.vTL)
}

func loadEdge(p []byte, off, stride, n int, haveAbove, haveLeft bool, above, left []byte, tl *byte) {
	if haveAbove {
		copy(above, p[off-stride:off-stride+n])
	} else {
		fillBytes(above, 127)
	}
	if haveLeft {
		for i := range left[:n] {
			left[i] = p[off+i*stride-1]
		}
	} else {
		fillBytes(left, 129)
	}
	switch {
	case !haveAbove:
		*tl = 127
	case !haveLeft:
		*tl = 129
	default:
		*tl = p[off-stride-1]
	}
}

func fillBytes(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// Offsets of the planes inside a prediction buffer of stride dsp.BPS.
const (
	predU  = 16
	predV  = 24
	predSz = 16 * dsp.BPS
)

// mbPred is a macroblock prediction: luma in columns 0-15, U in 16-23 and
// V in 24-31 of the first eight rows.
type mbPred [predSz]byte

// mb is the working state of the macroblock being decided.
type mb struct {
	fc       *FrameContext
	rs       *RowState
	row, col int
	srcY     int // luma offset in fc.Src
	srcUV    int
	bounds   mcomp.Bounds
	edges    intraEdges
	near     [NumRefFrames]NearMVs
	// zeroSSE is the luma SSE of ZEROMV on LAST, or -1 before it is known.
	zeroSSE int
}

func newMB(fc *FrameContext, rs *RowState, col int) *mb {
	m := &mb{
		fc:      fc,
		rs:      rs,
		row:     rs.Row,
		col:     col,
		srcY:    fc.Src.MBYOff(col, rs.Row),
		srcUV:   fc.Src.MBUVOff(col, rs.Row),
		bounds:  mcomp.MBBounds(rs.Row, col, fc.Src.MBRows, fc.Src.MBCols),
		zeroSSE: -1,
	}
	m.edges.load(fc.Recon, m.row, col)
	if !fc.KeyFrame {
		for r := LastFrame; r < NumRefFrames; r++ {
			if fc.Refs[r] != nil {
				m.near[r] = FindNearMVs(fc.Modes, m.row, col, r, &fc.SignBias, m.bounds)
			}
		}
	}
	return m
}

// index is the macroblock's raster position.
func (m *mb) index() int { return m.row*m.fc.Src.MBCols + m.col }
