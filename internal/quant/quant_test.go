package quant

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vp8rd/internal/dsp"
)

func TestStepSizes(t *testing.T) {
	tests := []struct {
		q          int
		y1, y2, uv [2]int
	}{
		{0, [2]int{4, 4}, [2]int{8, 8}, [2]int{4, 4}},
		{60, [2]int{55, 70}, [2]int{110, 108}, [2]int{55, 70}},
		{127, [2]int{157, 284}, [2]int{314, 440}, [2]int{132, 284}},
		{200, [2]int{157, 284}, [2]int{314, 440}, [2]int{132, 284}},
	}
	for _, tt := range tests {
		y1, y2, uv := StepSizes(tt.q, Deltas{})
		assert.Equal(t, tt.y1, y1, "q=%d y1", tt.q)
		assert.Equal(t, tt.y2, y2, "q=%d y2", tt.q)
		assert.Equal(t, tt.uv, uv, "q=%d uv", tt.q)
	}
}

func TestStepSizesDeltas(t *testing.T) {
	y1, _, uv := StepSizes(10, Deltas{Y1DC: 5, UVAC: -3})
	assert.Equal(t, DCQLookup[15], y1[0])
	assert.Equal(t, ACQLookup[10], y1[1])
	assert.Equal(t, ACQLookup[7], uv[1])
}

func TestInvertQuantIsExactDivision(t *testing.T) {
	for d := 4; d <= 440; d++ {
		quant, shift := invertQuant(d)
		for x := 0; x < 4096; x += 7 {
			y := (((x * int(quant)) >> 16) + x) * int(shift) >> 16
			require.Equal(t, x/d, y, "x=%d d=%d", x, d)
		}
	}
}

func TestRegularQuantizeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 500; trial++ {
		tb := BuildTables(rng.Intn(NumQIndex), Deltas{})
		for _, b := range []*Block{&tb.Y1, &tb.Y2, &tb.UV} {
			var coeff, qc, dqc [16]int16
			for i := range coeff {
				coeff[i] = int16(rng.Intn(4095) - 2047)
			}
			RegularQuantizeB(coeff[:], b, 0, qc[:], dqc[:])

			var back [16]int16
			Dequantize(qc[:], b, back[:])
			assert.Equal(t, dqc, back)
			for i := range coeff {
				diff := int(dqc[i]) - int(coeff[i])
				assert.LessOrEqual(t, abs(diff), int(b.Dequant[i]), "pos %d coeff %d", i, coeff[i])
			}
		}
	}
}

func TestRegularQuantizeZeroRunBoost(t *testing.T) {
	tb := BuildTables(60, Deltas{})
	b := &tb.Y1
	rc := Zigzag[5]

	var coeff, qc, dqc [16]int16
	coeff[rc] = int16(b.Zbin[rc]) + 4

	// Five zeros precede the coefficient, so the boosted dead zone drops it.
	eob := RegularQuantizeB(coeff[:], b, 0, qc[:], dqc[:])
	assert.Equal(t, 0, eob)
	assert.Zero(t, qc[rc])

	// A nonzero level one position earlier resets the run.
	coeff[Zigzag[4]] = 500
	eob = RegularQuantizeB(coeff[:], b, 0, qc[:], dqc[:])
	assert.Equal(t, 6, eob)
	assert.NotZero(t, qc[rc])

	// The fast path has no dead zone at all.
	coeff[Zigzag[4]] = 0
	eob = FastQuantizeB(coeff[:], b, qc[:], dqc[:])
	assert.Equal(t, 6, eob)
}

func TestRegularQuantizeZbinExtra(t *testing.T) {
	tb := BuildTables(40, Deltas{})
	b := &tb.Y1
	var coeff, qc, dqc [16]int16
	coeff[0] = int16(b.Zbin[0])
	assert.Equal(t, 1, RegularQuantizeB(coeff[:], b, 0, qc[:], dqc[:]))
	assert.Equal(t, 0, RegularQuantizeB(coeff[:], b, b.ZbinExtra(16), qc[:], dqc[:]))
}

func TestQuantizeEOB(t *testing.T) {
	tb := BuildTables(0, Deltas{})
	var coeff, qc, dqc [16]int16
	assert.Equal(t, 0, RegularQuantizeB(coeff[:], &tb.Y1, 0, qc[:], dqc[:]))
	assert.Equal(t, 0, FastQuantizeB(coeff[:], &tb.Y1, qc[:], dqc[:]))

	// Raster position 2 is scan position 5.
	coeff[2] = -100
	assert.Equal(t, 6, RegularQuantizeB(coeff[:], &tb.Y1, 0, qc[:], dqc[:]))
	assert.Equal(t, int16(-25), qc[2])
	assert.Equal(t, int16(-100), dqc[2])
}

func TestCacheSharesTables(t *testing.T) {
	var c Cache
	var wg sync.WaitGroup
	got := make([]*Tables, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = c.Get(33, Deltas{})
		}(i)
	}
	wg.Wait()
	for _, tb := range got {
		assert.Same(t, got[0], tb)
	}
	assert.NotSame(t, got[0], c.Get(33, Deltas{Y2DC: 1}))
	assert.Equal(t, 127, c.Get(999, Deltas{}).QIndex)
}

func TestValueTokens(t *testing.T) {
	tests := []struct {
		v   int
		tok Token
	}{
		{0, ZeroToken}, {1, OneToken}, {-2, TwoToken}, {3, ThreeToken}, {4, FourToken},
		{5, Cat1Token}, {6, Cat1Token}, {7, Cat2Token}, {10, Cat2Token}, {11, Cat3Token},
		{19, Cat4Token}, {35, Cat5Token}, {66, Cat5Token}, {67, Cat6Token}, {-2047, Cat6Token},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.tok, ValueToken(tt.v), "v=%d", tt.v)
	}
	assert.Equal(t, 0, ValueCost(0))
	assert.Equal(t, 256, ValueCost(1))
	assert.Equal(t, ValueCost(-9), ValueCost(9))
	assert.Greater(t, ValueCost(2000), ValueCost(100))
}

// evenCost prices a tree walk at probability 128 with the given number of
// one and zero branches. A one at even odds costs slightly more than a zero
// because ProbCost[127] rounds up.
func evenCost(ones, zeros int) int {
	return ones*dsp.BitCost(1, 128) + zeros*dsp.BitCost(0, 128)
}

func TestUniformTokenCosts(t *testing.T) {
	tc := NewTokenCosts(UniformCoeffProbs())
	c := tc[TypeUV][3][1]
	assert.Equal(t, evenCost(0, 1), c[EOBToken])
	assert.Equal(t, evenCost(1, 1), c[ZeroToken])
	assert.Equal(t, evenCost(2, 1), c[OneToken])
	assert.Equal(t, evenCost(3, 2), c[TwoToken])
	assert.Equal(t, evenCost(7, 0), c[Cat6Token])
	assert.Equal(t, 515, c[ZeroToken])
}

func TestBlockRate(t *testing.T) {
	tc := NewTokenCosts(UniformCoeffProbs())
	var q [16]int16
	sign := ValueCost(1)
	// EOB only.
	assert.Equal(t, evenCost(0, 1), tc.BlockRate(q[:], TypeYWithDC, 0, 0))

	q[Zigzag[0]] = 1
	q[Zigzag[2]] = -3
	// ONE, ZERO, THREE, then EOB with their sign bits.
	want := evenCost(2, 1) + sign + evenCost(1, 1) + evenCost(4, 2) + sign + evenCost(0, 1)
	assert.Equal(t, want, tc.BlockRate(q[:], TypeYWithDC, 0, 3))
	assert.Equal(t, 3605, want)

	// A full block has no trailing EOB.
	for i := range q {
		q[i] = 1
	}
	assert.Equal(t, 16*(evenCost(2, 1)+sign), tc.BlockRate(q[:], TypeYWithDC, 0, 16))
}

func TestTokenStatsProbs(t *testing.T) {
	var s TokenStats
	var q [16]int16
	for i := 0; i < 10; i++ {
		s.Record(q[:], TypeUV, 0, 0)
	}
	prev := UniformCoeffProbs()
	p := s.Probs(prev)
	// Ten EOBs at band 0: the first branch is always zero.
	assert.Equal(t, uint8(255), p[TypeUV][0][0][0])
	assert.Equal(t, uint8(128), p[TypeUV][0][0][1])
	assert.Equal(t, uint8(128), p[TypeY2][0][0][0])

	var o TokenStats
	q[0] = 2
	o.Record(q[:], TypeUV, 0, 1)
	s.Merge(&o)
	assert.Equal(t, uint32(1), s[TypeUV][0][0][0][1])
	assert.Equal(t, uint32(1), s[TypeUV][1][2][0][0])
}

func newTrellis() *Trellis {
	// 64 * 4 is a whole multiple of 256, so RDCost is exactly linear and
	// the Viterbi pass finds the true optimum.
	return &Trellis{Costs: NewTokenCosts(UniformCoeffProbs()), RDMult: 64, RDDiv: 1}
}

func blockRDCost(tr *Trellis, coeff, qc, dqc []int16, typ, ctx, eob int) int {
	rate, dist := tr.BlockRD(coeff, dqc, qc, typ, ctx, eob)
	return RDCost(tr.RDMult*planeRDMult[typ], tr.RDDiv, rate, dist)
}

func TestOptimizeBlockNeverWorse(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := newTrellis()
	improved := 0
	for trial := 0; trial < 400; trial++ {
		tb := BuildTables(rng.Intn(80), Deltas{})
		b := &tb.Y1
		var coeff, qc, dqc [16]int16
		for i := 0; i < 16; i++ {
			amp := 400 >> uint(i/3)
			coeff[Zigzag[i]] = int16(rng.Intn(2*amp+1) - amp)
		}
		ctx := rng.Intn(NumContexts)
		eob := RegularQuantizeB(coeff[:], b, 0, qc[:], dqc[:])
		naive := blockRDCost(tr, coeff[:], qc[:], dqc[:], TypeYWithDC, ctx, eob)

		eob2 := tr.OptimizeBlock(coeff[:], qc[:], dqc[:], b, TypeYWithDC, ctx, eob)
		opt := blockRDCost(tr, coeff[:], qc[:], dqc[:], TypeYWithDC, ctx, eob2)
		require.LessOrEqual(t, opt, naive, "trial %d", trial)
		require.LessOrEqual(t, eob2, eob)
		if opt < naive {
			improved++
		}
		for i := eob2; i < 16; i++ {
			require.Zero(t, qc[Zigzag[i]])
		}
		for i := range qc {
			require.Equal(t, int(qc[i])*int(b.Dequant[i]), int(dqc[i]))
		}
	}
	assert.Greater(t, improved, 0)
}

func TestOptimizeBlockMovesEOB(t *testing.T) {
	tr := newTrellis()
	tb := BuildTables(60, Deltas{})
	b := &tb.Y1
	var coeff, qc, dqc [16]int16
	coeff[0] = 570
	coeff[Zigzag[15]] = 49

	eob := FastQuantizeB(coeff[:], b, qc[:], dqc[:])
	require.Equal(t, 16, eob)
	require.Equal(t, int16(10), qc[0])
	require.Equal(t, int16(1), qc[Zigzag[15]])

	eob = tr.OptimizeBlock(coeff[:], qc[:], dqc[:], b, TypeYWithDC, 0, eob)
	assert.Equal(t, 1, eob)
	assert.Equal(t, int16(10), qc[0])
	assert.Zero(t, qc[Zigzag[15]])
	assert.Zero(t, dqc[Zigzag[15]])
}

func TestOptimizeBlockEmpty(t *testing.T) {
	tr := newTrellis()
	tb := BuildTables(20, Deltas{})
	var coeff, qc, dqc [16]int16
	assert.Equal(t, 0, tr.OptimizeBlock(coeff[:], qc[:], dqc[:], &tb.Y1, TypeYWithDC, 0, 0))
	assert.Equal(t, 0, tr.OptimizeBlock(coeff[:], qc[:], dqc[:], &tb.Y1, TypeYNoDC, 0, 1))
}

func BenchmarkOptimizeBlock(b *testing.B) {
	tr := newTrellis()
	tb := BuildTables(40, Deltas{})
	var coeff, qc, dqc [16]int16
	for i := range coeff {
		coeff[Zigzag[i]] = int16(300 - 20*i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eob := RegularQuantizeB(coeff[:], &tb.Y1, 0, qc[:], dqc[:])
		tr.OptimizeBlock(coeff[:], qc[:], dqc[:], &tb.Y1, TypeYWithDC, 0, eob)
	}
}
