package dsp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBlock(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Intn(256))
	}
	return b
}

func TestSADIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buf := randomBlock(rng, 32*32)
	for size := 0; size < NumBlockSizes; size++ {
		assert.Zero(t, SADBySize[size](buf, 0, 32, buf, 0, 32), "size %d", size)
	}
}

func TestSADMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	src := randomBlock(rng, 40*40)
	ref := randomBlock(rng, 40*40)
	for size := 0; size < NumBlockSizes; size++ {
		w, h := BlockWidth[size], BlockHeight[size]
		want := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				d := int(src[3+y*40+x]) - int(ref[5+y*40+x])
				if d < 0 {
					d = -d
				}
				want += d
			}
		}
		got := SADBySize[size](src, 3, 40, ref, 5, 40)
		assert.Equal(t, want, got, "size %dx%d", w, h)
	}
}

func TestSADMaxEarlyExit(t *testing.T) {
	src := make([]byte, 16*16)
	ref := make([]byte, 16*16)
	for i := range ref {
		ref[i] = 10
	}
	full := SAD16x16(src, 0, 16, ref, 0, 16)
	require.Equal(t, 2560, full)
	partial := SADMax(src, 0, 16, ref, 0, 16, 16, 16, 100)
	assert.Equal(t, 160, partial)
	assert.Equal(t, full, SADMax(src, 0, 16, ref, 0, 16, 16, 16, 1<<20))
}

func TestVarianceConstantOffset(t *testing.T) {
	src := make([]byte, 16*16)
	ref := make([]byte, 16*16)
	for i := range src {
		src[i] = 100
		ref[i] = 90
	}
	v, sse := Variance16x16(src, 0, 16, ref, 0, 16)
	assert.Equal(t, 0, v)
	assert.Equal(t, 100*256, sse)
	assert.Equal(t, sse, MSE16x16(src, 0, 16, ref, 0, 16))

	v, sse, sum := VarianceSum(src, 0, 16, ref, 0, 16, 16, 16)
	assert.Equal(t, 0, v)
	assert.Equal(t, 100*256, sse)
	assert.Equal(t, 10*256, sum)
}

func TestVarianceSumSigned(t *testing.T) {
	// Alternating +3/-1 rows: the sum keeps the sign and the mean.
	src := make([]byte, 8*8)
	ref := make([]byte, 8*8)
	for i := range src {
		ref[i] = 50
		src[i] = 53
		if (i/8)%2 == 1 {
			src[i] = 49
		}
	}
	v, sse, sum := VarianceSum(src, 0, 8, ref, 0, 8, 8, 8)
	assert.Equal(t, 32*3-32, sum)
	assert.Equal(t, 32*9+32, sse)
	assert.Equal(t, sse-(sum*sum)/64, v)
	v8, sse8 := Variance8x8(src, 0, 8, ref, 0, 8)
	assert.Equal(t, v, v8)
	assert.Equal(t, sse, sse8)
}

func TestBilinearPredictFullPel(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ref := randomBlock(rng, 20*20)
	var dst [16 * 16]byte
	BilinearPredict(ref, 21, 20, 0, 0, dst[:], 0, 16, 16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			require.Equal(t, ref[21+y*20+x], dst[y*16+x])
		}
	}
}

func TestSubPixelVarianceHalfPelOfRamp(t *testing.T) {
	// Horizontal ramp: the half-pel sample is the mean of its neighbours.
	ref := make([]byte, 17*24)
	src := make([]byte, 16*16)
	for y := 0; y < 17; y++ {
		for x := 0; x < 24; x++ {
			ref[y*24+x] = byte(x * 4)
		}
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src[y*16+x] = byte(x*4 + 2)
		}
	}
	v, sse := HalfPixVarianceH(ref, 0, 24, src, 0, 16, 16, 16)
	assert.Equal(t, 0, v)
	assert.Equal(t, 0, sse)
	_, sse0 := Variance16x16(src, 0, 16, ref, 0, 24)
	assert.Greater(t, sse0, 0)
}

func TestFDCTInverseRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for iter := 0; iter < 50; iter++ {
		var src, pred [4 * BPS]byte
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				src[y*BPS+x] = byte(rng.Intn(256))
				pred[y*BPS+x] = byte(rng.Intn(256))
			}
		}
		var diff, coeff [16]int16
		Subtract(src[:], 0, BPS, pred[:], 0, BPS, diff[:])
		FDCT4x4(diff[:], coeff[:])
		var out [4 * BPS]byte
		IDCT4x4Add(coeff[:], pred[:], 0, BPS, out[:], 0, BPS)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				d := int(out[y*BPS+x]) - int(src[y*BPS+x])
				assert.LessOrEqual(t, d*d, 4, "iter %d (%d,%d)", iter, x, y)
			}
		}
	}
}

func TestWalshHadamardRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var in, fwd, back [16]int16
	for i := range in {
		in[i] = int16(rng.Intn(2000) - 1000)
	}
	WalshHadamard4x4(in[:], fwd[:])
	InverseWalshHadamard4x4(fwd[:], back[:])
	for i := range in {
		d := int(back[i]) - int(in[i])
		assert.LessOrEqual(t, d*d, 4, "coeff %d", i)
	}
}

func TestProbCost(t *testing.T) {
	assert.Equal(t, 256, int(ProbCost[128]))
	assert.Equal(t, 0, int(ProbCost[255])/8)
	assert.Greater(t, BitCost(1, 250), BitCost(0, 250))
	assert.Equal(t, BitCost(0, 5), BitCost(1, 250))
}

func TestPredictBlockDCNoEdges(t *testing.T) {
	var dst [16 * BPS]byte
	PredictBlock(PredDC, 16, nil, nil, 0, false, false, dst[:], 0)
	assert.Equal(t, byte(128), dst[5*BPS+7])
}

func TestPredictBlockTM(t *testing.T) {
	above := make([]byte, 8)
	left := make([]byte, 8)
	for i := range above {
		above[i] = byte(10 * i)
		left[i] = byte(100 + i)
	}
	var dst [8 * BPS]byte
	PredictBlock(PredTM, 8, above, left, 100, true, true, dst[:], 0)
	assert.Equal(t, byte(3+30), dst[3*BPS+3])
}

func TestPredictSubBlockModes(t *testing.T) {
	above := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	left := []byte{15, 25, 35, 45}
	e := SubEdges(above, left, 5)
	var dst [4 * BPS]byte

	PredictSubBlock(PredBDC, &e, dst[:], 0)
	assert.Equal(t, byte((100+120+4)>>3), dst[0])

	PredictSubBlock(PredBVE, &e, dst[:], 0)
	assert.Equal(t, avg3(5, 10, 20), dst[3*BPS])
	assert.Equal(t, avg3(30, 40, 50), dst[3])

	PredictSubBlock(PredBHU, &e, dst[:], 0)
	assert.Equal(t, byte(45), dst[3*BPS+3])
	assert.Equal(t, avg2(15, 25), dst[0])

	PredictSubBlock(PredBLD, &e, dst[:], 0)
	assert.Equal(t, avg3(70, 80, 80), dst[3*BPS+3])

	PredictSubBlock(PredBRD, &e, dst[:], 0)
	assert.Equal(t, avg3(15, 5, 10), dst[0])
	assert.Equal(t, avg3(45, 35, 25), dst[3*BPS])
}

func BenchmarkSAD16x16(b *testing.B) {
	rng := rand.New(rand.NewSource(6))
	src := randomBlock(rng, 64*64)
	ref := randomBlock(rng, 64*64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SAD16x16(src, 0, 64, ref, i&15, 64)
	}
}
