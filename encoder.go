package vp8rd

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/deepteams/vp8rd/internal/firstpass"
	"github.com/deepteams/vp8rd/internal/mcomp"
	"github.com/deepteams/vp8rd/internal/quant"
	"github.com/deepteams/vp8rd/internal/rdopt"
	"github.com/deepteams/vp8rd/internal/rowsync"
	"github.com/deepteams/vp8rd/internal/yuv"
)

var (
	// ErrClosed is returned by every method of a closed Encoder.
	ErrClosed = errors.New("vp8rd: encoder closed")
	// ErrFrameSize is returned for input whose size differs from the
	// configuration.
	ErrFrameSize = yuv.ErrFrameSize
)

// FrameType classifies an encoded frame.
type FrameType int

const (
	KeyFrame FrameType = iota
	GoldenFrame
	InterFrame
)

func (t FrameType) String() string {
	switch t {
	case KeyFrame:
		return "key"
	case GoldenFrame:
		return "golden"
	case InterFrame:
		return "inter"
	}
	return "unknown"
}

// FrameResult is the outcome of one EncodeFrame call.
type FrameResult struct {
	Frame int
	Type  FrameType
	// QIndex is the quantizer the frame was decided at.
	QIndex int
	// TargetBits is the rate control budget of the frame.
	TargetBits int
	// EstimatedBits is the modelled cost of the committed decisions.
	EstimatedBits int
	Distortion    int64
	Skips         int
	Speed         int

	// MBs holds the decision of every macroblock in raster order. It is
	// empty in the statistics pass.
	MBs []*rdopt.Decision
	// Recon is the reconstruction, valid until the next EncodeFrame. It
	// is nil in the statistics pass.
	Recon *yuv.Frame
	// FirstPass is the statistics record of the frame in Pass 1.
	FirstPass *firstpass.Stats
}

// Encoder decides frames one at a time. It is not safe for concurrent
// use; row parallelism is internal.
type Encoder struct {
	cfg    Config
	mbCols int
	mbRows int

	src   *yuv.Frame
	recon *yuv.Frame
	refs  [rdopt.NumRefFrames]*yuv.Frame
	// altValid is set once ALTREF holds a frame distinct from GOLDEN.
	altValid bool

	fc        *rdopt.FrameContext
	sf        rdopt.SpeedFeatures
	speed     int
	rowStats  []*rdopt.SearchStats
	sync      *rowsync.Sync
	workers   int
	quant     quant.Cache
	coeffs    *quant.CoeffProbs
	autoSpeed SpeedController

	frame       int
	sinceKey    int
	sinceGolden int
	q           int

	// Statistics pass state.
	analyzer  *firstpass.Analyzer
	prevSrc   *yuv.Frame
	goldenSrc *yuv.Frame
	haveSrc   bool

	planner *firstpass.Planner

	closed bool
}

// NewEncoder validates cfg and allocates the frame buffers.
func NewEncoder(cfg Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{cfg: cfg, q: (cfg.MinQ + cfg.MaxQ) / 2}
	var err error
	alloc := func() *yuv.Frame {
		if err != nil {
			return nil
		}
		var f *yuv.Frame
		f, err = yuv.NewFrame(cfg.Width, cfg.Height)
		return f
	}
	e.src = alloc()
	e.mbCols, e.mbRows = (cfg.Width+15)>>4, (cfg.Height+15)>>4

	switch cfg.Pass {
	case 1:
		e.analyzer = firstpass.NewAnalyzer()
		e.prevSrc = alloc()
		e.goldenSrc = alloc()
	case 2:
		e.planner, err = firstpass.NewPlanner(cfg.FirstPassStats, cfg.plannerConfig())
	}
	if cfg.Pass != 1 {
		e.recon = alloc()
		for r := rdopt.LastFrame; r < rdopt.NumRefFrames; r++ {
			e.refs[r] = alloc()
		}
	}
	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "vp8rd: new encoder")
	}
	if cfg.Pass == 1 {
		return e, nil
	}

	e.fc = rdopt.NewFrameContext(e.src, e.recon)
	e.fc.MVCosts = mcomp.NewCostTables(&mcomp.DefaultMVProbs)
	e.fc.EncodeBreakout = cfg.EncodeBreakout
	e.fc.Overlay = &rdopt.Overlay{
		Denoiser:      rdopt.NewDenoiserPolicy(cfg.NoiseSensitivity),
		DotArtifacts:  cfg.Mode == Realtime,
		ScreenContent: cfg.ScreenContent,
		Composition:   cfg.BiasComposition,
	}
	e.rowStats = make([]*rdopt.SearchStats, e.mbRows)
	e.sync = rowsync.New(e.mbRows, e.mbCols)
	e.workers = 1
	if cfg.Threads > 1 {
		e.workers = rowsync.Workers(cfg.Threads, e.mbRows)
	}
	e.coeffs = quant.UniformCoeffProbs()
	return e, nil
}

// Close releases the frame buffers. It is safe to call more than once.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	for _, f := range []*yuv.Frame{e.src, e.recon, e.prevSrc, e.goldenSrc} {
		if f != nil {
			f.Release()
		}
	}
	for _, f := range e.refs {
		if f != nil {
			f.Release()
		}
	}
	return nil
}

// EncodeYCbCr encodes a 4:2:0 image of the configured size.
func (e *Encoder) EncodeYCbCr(img *image.YCbCr) (*FrameResult, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if err := e.src.ImportYCbCr(img); err != nil {
		return nil, err
	}
	return e.encode()
}

// EncodeI420 encodes a tightly packed I420 buffer of the configured size.
func (e *Encoder) EncodeI420(data []byte) (*FrameResult, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if err := e.src.ImportRaw(data); err != nil {
		return nil, err
	}
	return e.encode()
}

// EncodeFrame encodes src, which must have the configured size. The frame
// is copied; the caller keeps ownership.
func (e *Encoder) EncodeFrame(src *yuv.Frame) (*FrameResult, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if src.Width != e.cfg.Width || src.Height != e.cfg.Height {
		return nil, errors.Wrapf(ErrFrameSize, "frame %dx%d, encoder %dx%d",
			src.Width, src.Height, e.cfg.Width, e.cfg.Height)
	}
	e.src.CopyFrom(src)
	e.src.PadToAligned()
	e.src.ExtendBorders()
	return e.encode()
}

// FramesEncoded returns the number of frames processed.
func (e *Encoder) FramesEncoded() int { return e.frame }

// frameType applies the fixed cadence of one-pass and statistics-pass
// encoding.
func (e *Encoder) frameType() FrameType {
	switch {
	case e.frame == 0 || e.sinceKey >= e.cfg.KeyFreqMax:
		return KeyFrame
	case e.sinceGolden >= e.cfg.MaxGFInterval:
		return GoldenFrame
	}
	return InterFrame
}

func (e *Encoder) advance(t FrameType) {
	e.frame++
	e.sinceKey++
	e.sinceGolden++
	switch t {
	case KeyFrame:
		e.sinceKey, e.sinceGolden = 1, 1
	case GoldenFrame:
		e.sinceGolden = 1
	}
}

func (e *Encoder) encode() (*FrameResult, error) {
	if e.cfg.Pass == 1 {
		return e.statsPass(), nil
	}
	start := time.Now()
	res, err := e.plan()
	if err != nil {
		return nil, err
	}
	pickStart := time.Now()
	e.decide(res)
	pick := time.Since(pickStart)
	e.finishFrame(res)
	e.autoSpeed.Observe(time.Since(start), pick)
	e.logf("frame %d %s q=%d target=%d est=%d skips=%d speed=%d",
		res.Frame, res.Type, res.QIndex, res.TargetBits, res.EstimatedBits, res.Skips, res.Speed)
	e.advance(res.Type)
	return res, nil
}

// statsPass runs the first pass analysis against the previous source.
func (e *Encoder) statsPass() *FrameResult {
	t := e.frameType()
	var last, golden *yuv.Frame
	if e.haveSrc && t != KeyFrame {
		last, golden = e.prevSrc, e.goldenSrc
	}
	duration := 1 / e.cfg.FrameRate
	s := e.analyzer.FrameStats(e.src, last, golden, duration)

	if t != InterFrame {
		e.goldenSrc.CopyFrom(e.src)
	}
	e.prevSrc.CopyFrom(e.src)
	e.haveSrc = true
	res := &FrameResult{Frame: e.frame, Type: t, FirstPass: &s}
	e.logf("frame %d %s intra=%.0f coded=%.0f inter=%.2f motion=%.2f",
		res.Frame, t, s.IntraError, s.CodedError, s.PcntInter, s.PcntMotion)
	e.advance(t)
	return res
}

// plan picks the frame type, bit target and quantizer.
func (e *Encoder) plan() (*FrameResult, error) {
	res := &FrameResult{Frame: e.frame}
	if e.planner == nil {
		res.Type = e.frameType()
		res.TargetBits = e.onePassTarget(res.Type)
		res.QIndex = e.onePassQ(res.Type)
		return res, nil
	}

	fp, err := e.planner.Next()
	if err != nil {
		return nil, errors.Wrapf(err, "vp8rd: frame %d", e.frame)
	}
	switch {
	case fp.Key:
		res.Type = KeyFrame
	case fp.Golden:
		res.Type = GoldenFrame
	default:
		res.Type = InterFrame
	}
	res.TargetBits = fp.TargetBits
	s := &e.cfg.FirstPassStats[fp.Frame]
	errPerMB := s.CodedError
	if fp.Key {
		errPerMB = s.IntraError
	}
	errPerMB /= float64(e.mbCols * e.mbRows)
	res.QIndex = firstpass.EstimateMaxQ(errPerMB, fp.TargetBits, e.mbCols*e.mbRows, fp.MinQ, fp.MaxQ, 1)
	return res, nil
}

// onePassTarget spreads the bitrate evenly, boosting key and golden frames.
func (e *Encoder) onePassTarget(t FrameType) int {
	avg := int(float64(e.cfg.TargetBitrate*1000) / e.cfg.FrameRate)
	switch t {
	case KeyFrame:
		return avg * 4
	case GoldenFrame:
		return avg * 2
	}
	return avg
}

// onePassQ offsets the running quantizer for boosted frames.
func (e *Encoder) onePassQ(t FrameType) int {
	q := e.q
	switch t {
	case KeyFrame:
		q -= 4
	case GoldenFrame:
		q -= 2
	}
	lo := e.cfg.MinQ
	if e.cfg.EndUsage == ConstrainedQuality {
		lo = e.cfg.CQLevel
	}
	return minInt(maxInt(q, lo), e.cfg.MaxQ)
}

// regulate steers the one-pass quantizer by the ratio of modelled to
// target bits.
func (e *Encoder) regulate(res *FrameResult) {
	if res.TargetBits <= 0 {
		return
	}
	ratio := float64(res.EstimatedBits) / float64(res.TargetBits)
	switch {
	case ratio > 1.1:
		e.q += maxInt(1, int(math.Log2(ratio)*8))
	case ratio < 0.9:
		e.q -= maxInt(1, int(-math.Log2(math.Max(ratio, 1.0/256))*4))
	}
	e.q = minInt(maxInt(e.q, e.cfg.MinQ), e.cfg.MaxQ)
}

// decide runs the mode decision of every macroblock.
func (e *Encoder) decide(res *FrameResult) {
	fc := e.fc
	key := res.Type == KeyFrame
	e.sf = e.speedFor()
	res.Speed = e.speed

	if key {
		fc.Modes.Reset()
		clear(fc.ZeroRuns)
		e.coeffs = quant.UniformCoeffProbs()
		fc.Probs = rdopt.DefaultFrameProbs
	}
	fc.Recon = e.recon
	fc.KeyFrame = key
	fc.Refs = [rdopt.NumRefFrames]*yuv.Frame{}
	if !key {
		fc.Refs[rdopt.LastFrame] = e.refs[rdopt.LastFrame]
		// Right after a golden update GOLDEN repeats LAST.
		if e.sinceGolden > 1 {
			fc.Refs[rdopt.GoldenFrame] = e.refs[rdopt.GoldenFrame]
		}
		if e.altValid {
			fc.Refs[rdopt.AltRefFrame] = e.refs[rdopt.AltRefFrame]
		}
	}
	fc.Quant = e.quant.Get(res.QIndex, quant.Deltas{})
	fc.Speed = &e.sf
	fc.RD = rdopt.NewRDConsts(res.QIndex, fc.Speed)
	fc.Tokens = quant.NewTokenCosts(e.coeffs)
	fc.BeginFrame()

	for r, s := range e.rowStats {
		if s == nil {
			e.rowStats[r] = rdopt.NewSearchStats(&fc.RD, fc.Speed)
		} else {
			s.Rebase(&fc.RD, fc.Speed)
		}
	}

	pick := rdopt.RDPickInterMode
	switch {
	case key:
		pick = rdopt.PickIntraMode
	case !e.sf.RDSearch:
		pick = rdopt.PickInterMode
	}

	cols := e.mbCols
	res.MBs = make([]*rdopt.Decision, cols*e.mbRows)
	rows := make([]*rdopt.RowState, e.mbRows)
	e.sync.Reset()
	e.sync.Run(e.workers, func(r int) {
		rs := rdopt.NewRowState(r, e.rowStats[r])
		rows[r] = rs
		for c := 0; c < cols; c++ {
			e.sync.Column(r, c, cols, func() {
				res.MBs[r*cols+c] = pick(fc, rs, c)
			})
		}
	})

	var tokens quant.TokenStats
	var rate int64
	for _, rs := range rows {
		tokens.Merge(&rs.TokenStats)
		rate += rs.Rate
		res.Distortion += rs.Dist
		res.Skips += rs.Skips
	}
	res.EstimatedBits = int(rate >> 8)
	e.coeffs = tokens.Probs(e.coeffs)
	if !key {
		fc.Probs = frameProbs(res.MBs)
	}
	res.Recon = e.recon
}

// finishFrame rotates the reference buffers and feeds the rate control.
func (e *Encoder) finishFrame(res *FrameResult) {
	e.recon.ExtendBorders()
	gold, alt := rdopt.GoldenFrame, rdopt.AltRefFrame
	switch res.Type {
	case KeyFrame:
		e.refs[gold].CopyFrom(e.recon)
		e.refs[alt].CopyFrom(e.recon)
		e.altValid = false
	case GoldenFrame:
		e.refs[gold], e.refs[alt] = e.refs[alt], e.refs[gold]
		e.refs[gold].CopyFrom(e.recon)
		e.altValid = true
	}
	e.refs[rdopt.LastFrame], e.recon = e.recon, e.refs[rdopt.LastFrame]
	e.fc.Recon = e.recon

	if e.planner != nil {
		e.planner.Update(res.EstimatedBits)
	} else {
		e.regulate(res)
	}
}

// frameProbs fits the reference and skip probabilities to a frame's
// decisions.
func frameProbs(ds []*rdopt.Decision) rdopt.FrameProbs {
	var intra, last, golden, alt, skip int
	for _, d := range ds {
		switch d.Info.Ref {
		case rdopt.IntraFrame:
			intra++
		case rdopt.LastFrame:
			last++
		case rdopt.GoldenFrame:
			golden++
		default:
			alt++
		}
		if d.Info.Skip {
			skip++
		}
	}
	n := len(ds)
	return rdopt.FrameProbs{
		Intra:   probOf(intra, n),
		Last:    probOf(last, n-intra),
		Golden:  probOf(golden, golden+alt),
		SkipOff: probOf(n-skip, n),
	}
}

// probOf is the probability, in 1/256, of count events out of total,
// clamped to the codable range. An empty total gives even odds.
func probOf(count, total int) uint8 {
	if total == 0 {
		return 128
	}
	p := count * 256 / total
	return uint8(minInt(maxInt(p, 1), 255))
}

func (e *Encoder) logf(format string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Output(2, fmt.Sprintf(format, args...))
	}
}
