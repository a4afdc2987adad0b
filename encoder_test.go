package vp8rd

import (
	"bytes"
	"image"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vp8rd/internal/firstpass"
	"github.com/deepteams/vp8rd/internal/rdopt"
	"github.com/deepteams/vp8rd/internal/yuv"
)

// texture is a smooth pattern with a unique SAD minimum per translation.
func texture(x, y int) byte {
	v := ((x-40)*(x-40) + (y-30)*(y-30)) / 6
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// panFrame renders texture moved dx pixels to the right.
func panFrame(t *testing.T, w, h, dx int) *yuv.Frame {
	t.Helper()
	f, err := yuv.NewFrame(w, h)
	require.NoError(t, err)
	t.Cleanup(f.Release)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Y[f.YOff(x, y)] = texture(x-dx, y)
		}
	}
	for y := 0; y < (h+1)/2; y++ {
		for x := 0; x < (w+1)/2; x++ {
			f.U[f.UVOff(x, y)] = byte(120 + (x+dx/2)%8)
			f.V[f.UVOff(x, y)] = 132
		}
	}
	return f
}

// grainyPan is panFrame with sensor-like noise that changes every frame, so
// no inter frame predicts perfectly.
func grainyPan(t *testing.T, w, h, dx, seed int) *yuv.Frame {
	t.Helper()
	f := panFrame(t, w, h, dx)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := uint32(x)*374761393 + uint32(y)*668265263 + uint32(seed)*2246822519
			n = (n ^ n>>13) * 1274126177
			v := int(f.Y[f.YOff(x, y)]) + int(n>>29) - 4
			f.Y[f.YOff(x, y)] = byte(min(max(v, 0), 255))
		}
	}
	return f
}

func testConfig(w, h int) Config {
	cfg := DefaultConfig(w, h)
	cfg.TargetBitrate = 200
	return cfg
}

func newTestEncoder(t *testing.T, cfg Config) *Encoder {
	t.Helper()
	e, err := NewEncoder(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestNewEncoderRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(64, 48)
	cfg.MaxQ = 200
	_, err := NewEncoder(cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestOnePassEncode(t *testing.T) {
	const w, h = 64, 48
	e := newTestEncoder(t, testConfig(w, h))
	for i := 0; i < 4; i++ {
		res, err := e.EncodeFrame(panFrame(t, w, h, i))
		require.NoError(t, err)
		assert.Equal(t, i, res.Frame)
		require.Len(t, res.MBs, 12)
		assert.Positive(t, res.TargetBits)
		require.NotNil(t, res.Recon)
		assert.Equal(t, w, res.Recon.Width)
		assert.Nil(t, res.FirstPass)

		if i == 0 {
			assert.Equal(t, KeyFrame, res.Type)
			assert.Positive(t, res.EstimatedBits)
			for _, d := range res.MBs {
				assert.Equal(t, rdopt.IntraFrame, d.Info.Ref)
			}
		} else {
			assert.Equal(t, InterFrame, res.Type)
		}
	}
	assert.Equal(t, 4, e.FramesEncoded())
}

func TestStaticFrameIsCheaperThanKey(t *testing.T) {
	const w, h = 64, 48
	e := newTestEncoder(t, testConfig(w, h))
	src := panFrame(t, w, h, 0)
	key, err := e.EncodeFrame(src)
	require.NoError(t, err)
	inter, err := e.EncodeFrame(src)
	require.NoError(t, err)
	assert.Less(t, inter.EstimatedBits, key.EstimatedBits)
}

func TestFrameTypeCadence(t *testing.T) {
	const w, h = 32, 32
	cfg := testConfig(w, h)
	cfg.KeyFreqMax = 3
	cfg.MinGFInterval, cfg.MaxGFInterval = 1, 2
	e := newTestEncoder(t, cfg)
	var got []FrameType
	for i := 0; i < 6; i++ {
		res, err := e.EncodeFrame(panFrame(t, w, h, i))
		require.NoError(t, err)
		got = append(got, res.Type)
	}
	assert.Equal(t, []FrameType{KeyFrame, InterFrame, GoldenFrame, KeyFrame, InterFrame, GoldenFrame}, got)
	assert.Equal(t, "golden", GoldenFrame.String())
}

func TestThreadedMatchesSequential(t *testing.T) {
	const w, h = 80, 80
	run := func(threads int) ([][]rdopt.Decision, [][]byte) {
		cfg := testConfig(w, h)
		cfg.Threads = threads
		e := newTestEncoder(t, cfg)
		var ds [][]rdopt.Decision
		var recon [][]byte
		for i := 0; i < 3; i++ {
			res, err := e.EncodeFrame(panFrame(t, w, h, 2*i))
			require.NoError(t, err)
			var frame []rdopt.Decision
			for _, d := range res.MBs {
				frame = append(frame, *d)
			}
			ds = append(ds, frame)
			recon = append(recon, append([]byte(nil), res.Recon.Y...))
		}
		return ds, recon
	}
	d1, r1 := run(1)
	d4, r4 := run(4)
	assert.Equal(t, d1, d4)
	assert.Equal(t, r1, r4)
}

func TestFrameSizeMismatch(t *testing.T) {
	e := newTestEncoder(t, testConfig(64, 48))
	_, err := e.EncodeFrame(panFrame(t, 48, 48, 0))
	assert.True(t, errors.Is(err, ErrFrameSize))

	_, err = e.EncodeI420(make([]byte, 10))
	assert.True(t, errors.Is(err, ErrFrameSize))

	_, err = e.EncodeYCbCr(image.NewYCbCr(image.Rect(0, 0, 32, 32), image.YCbCrSubsampleRatio420))
	assert.True(t, errors.Is(err, ErrFrameSize))
}

func TestEncodeImageInputs(t *testing.T) {
	const w, h = 32, 32
	e := newTestEncoder(t, testConfig(w, h))

	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = byte(i)
	}
	res, err := e.EncodeYCbCr(img)
	require.NoError(t, err)
	assert.Equal(t, KeyFrame, res.Type)

	raw := make([]byte, yuv.RawSize(w, h))
	copy(raw, img.Y)
	res, err = e.EncodeI420(raw)
	require.NoError(t, err)
	assert.Equal(t, InterFrame, res.Type)
}

func TestClosedEncoder(t *testing.T) {
	e, err := NewEncoder(testConfig(32, 32))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err = e.EncodeFrame(panFrame(t, 32, 32, 0))
	assert.Equal(t, ErrClosed, err)
	_, err = e.EncodeI420(nil)
	assert.Equal(t, ErrClosed, err)
}

func TestTwoPass(t *testing.T) {
	const w, h, n = 64, 48, 30
	cfg := testConfig(w, h)
	cfg.Pass = 1
	first := newTestEncoder(t, cfg)
	var stats []firstpass.Stats
	for i := 0; i < n; i++ {
		res, err := first.EncodeFrame(grainyPan(t, w, h, i, i))
		require.NoError(t, err)
		assert.Empty(t, res.MBs)
		assert.Nil(t, res.Recon)
		require.NotNil(t, res.FirstPass)
		assert.Equal(t, float64(i), res.FirstPass.Frame)
		stats = append(stats, *res.FirstPass)
	}
	assert.Zero(t, stats[0].PcntInter, "first frame has no reference")
	assert.Positive(t, stats[3].PcntInter)
	assert.Positive(t, stats[3].CodedError)

	cfg.Pass = 2
	cfg.FirstPassStats = stats
	plans, err := Plan(cfg)
	require.NoError(t, err)
	require.Len(t, plans, n)
	assert.True(t, plans[0].Key)
	var planned int
	for i, fp := range plans {
		assert.Positive(t, fp.TargetBits, "frame %d", i)
		planned += fp.TargetBits
	}
	// One second of video at the target bitrate.
	budget := float64(cfg.TargetBitrate * 1000)
	assert.InDelta(t, budget, float64(planned), budget*0.02)

	second := newTestEncoder(t, cfg)
	for i := 0; i < n; i++ {
		res, err := second.EncodeFrame(grainyPan(t, w, h, i, i))
		require.NoError(t, err)
		assert.Positive(t, res.TargetBits, "frame %d", i)
		assert.GreaterOrEqual(t, res.QIndex, cfg.MinQ)
		assert.LessOrEqual(t, res.QIndex, cfg.MaxQ)
		if i == 0 {
			assert.Equal(t, KeyFrame, res.Type)
		}
	}
	_, err = second.EncodeFrame(grainyPan(t, w, h, n, n))
	assert.True(t, errors.Is(err, firstpass.ErrStatsExhausted), "%v", err)
}

func TestLoggerReceivesFrames(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(32, 32)
	cfg.Logger = log.New(&buf, "", 0)
	e := newTestEncoder(t, cfg)
	_, err := e.EncodeFrame(panFrame(t, 32, 32, 0))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "frame 0 key q=")
}

func TestOnePassQuantizer(t *testing.T) {
	cfg := testConfig(32, 32)
	e := &Encoder{cfg: cfg, q: 30}
	assert.Equal(t, 26, e.onePassQ(KeyFrame))
	assert.Equal(t, 28, e.onePassQ(GoldenFrame))
	assert.Equal(t, 30, e.onePassQ(InterFrame))

	e.cfg.EndUsage, e.cfg.CQLevel = ConstrainedQuality, 40
	assert.Equal(t, 40, e.onePassQ(InterFrame), "quality floor")

	e.regulate(&FrameResult{TargetBits: 1000, EstimatedBits: 4000})
	assert.Equal(t, 46, e.q)
	e.regulate(&FrameResult{TargetBits: 1000, EstimatedBits: 1000})
	assert.Equal(t, 46, e.q)
	e.regulate(&FrameResult{TargetBits: 1000, EstimatedBits: 250})
	assert.Equal(t, 38, e.q)
	e.q = cfg.MaxQ
	e.regulate(&FrameResult{TargetBits: 1000, EstimatedBits: 9000})
	assert.Equal(t, cfg.MaxQ, e.q)
}

func TestFrameProbs(t *testing.T) {
	mk := func(ref rdopt.RefFrame, skip bool) *rdopt.Decision {
		return &rdopt.Decision{Info: rdopt.ModeInfo{Ref: ref, Skip: skip}}
	}
	p := frameProbs([]*rdopt.Decision{
		mk(rdopt.IntraFrame, false),
		mk(rdopt.LastFrame, true),
		mk(rdopt.LastFrame, true),
		mk(rdopt.GoldenFrame, false),
	})
	assert.Equal(t, rdopt.FrameProbs{Intra: 64, Last: 170, Golden: 255, SkipOff: 128}, p)

	assert.Equal(t, uint8(128), probOf(0, 0))
	assert.Equal(t, uint8(1), probOf(0, 10))
}
