package rdopt

import (
	"github.com/deepteams/vp8rd/internal/dsp"
	"github.com/deepteams/vp8rd/internal/quant"
	"github.com/deepteams/vp8rd/internal/yuv"
)

// Zero bin boosts per candidate, in 1/128 of the AC step.
const (
	zeroMVZbinBoost = 12
	mvZbinBoost     = 4
)

func zbinBoostFor(mode PredictionMode) int {
	switch {
	case mode == ZeroMV:
		return zeroMVZbinBoost
	case mode == SplitMV || !mode.IsInter():
		return 0
	}
	return mvZbinBoost
}

// coder quantizes and prices the blocks of one candidate.
type coder struct {
	m     *mb
	c     *Coeffs
	tc    *TrialContext
	boost int
	intra bool
}

// block quantizes block b against qb, runs the trellis when enabled and
// prices the result under the trial context, which it then updates.
func (k *coder) block(b int, qb *quant.Block) (rate, dist int) {
	fc := k.m.fc
	blk := &k.c.Blocks[b]
	typ := k.c.BlockType(b)
	ctx := k.tc.Ctx(b)
	if fc.Speed.UseFastQuant {
		blk.EOB = quant.FastQuantizeB(blk.Coeff[:], qb, blk.QCoeff[:], blk.DQCoeff[:])
	} else {
		blk.EOB = quant.RegularQuantizeB(blk.Coeff[:], qb, qb.ZbinExtra(k.boost), blk.QCoeff[:], blk.DQCoeff[:])
	}
	if fc.Speed.Trellis && blk.EOB > 0 {
		tr := quant.Trellis{Costs: fc.Tokens, RDMult: fc.RD.Mult, RDDiv: fc.RD.Div, Intra: k.intra}
		blk.EOB = tr.OptimizeBlock(blk.Coeff[:], blk.QCoeff[:], blk.DQCoeff[:], qb, typ, ctx, blk.EOB)
	}
	blk.Ctx = uint8(ctx)
	k.tc.Set(b, blk.EOB > 0)
	return fc.Tokens.BlockRate(blk.QCoeff[:], typ, ctx, blk.EOB), dsp.BlockError(blk.Coeff[:], blk.DQCoeff[:])
}

// transform fills the coefficients of a 4x4 block from src minus pred.
func transform(blk *Block, src []byte, srcOff, srcStride int, pred []byte, predOff int) {
	var diff [16]int16
	dsp.Subtract(src, srcOff, srcStride, pred, predOff, dsp.BPS, diff[:])
	dsp.FDCT4x4(diff[:], blk.Coeff[:])
}

// luma16 codes the luma residual of a whole-block prediction. The luma DCs
// go through the second-order block; the distortion is scaled to the pixel
// domain.
func (k *coder) luma16(pred *mbPred) (rate, dist int) {
	src := k.m.fc.Src
	q := k.m.fc.Quant
	var dc [16]int16
	for i := 0; i < 16; i++ {
		bx, by := (i&3)*4, (i>>2)*4
		blk := k.c.Y(i)
		transform(blk, src.Y, k.m.srcY+by*src.YStride+bx, src.YStride, pred[:], by*dsp.BPS+bx)
		dc[i] = blk.Coeff[0]
		blk.Coeff[0] = 0
	}
	k.c.HasY2 = true
	dsp.WalshHadamard4x4(dc[:], k.c.Y2().Coeff[:])

	rate, y2err := k.block(y2Block, &q.Y2)
	yerr := 0
	for i := 0; i < 16; i++ {
		r, d := k.block(firstY+i, &q.Y1)
		rate += r
		yerr += d
	}
	return rate, (yerr<<2 + y2err) >> 4
}

// lumaBlock codes luma block i against its own prediction, with the DC
// coded in place. It is used by the sub-block modes.
func (k *coder) lumaBlock(i int, pred []byte, predOff int) (rate, dist int) {
	src := k.m.fc.Src
	bx, by := (i&3)*4, (i>>2)*4
	transform(k.c.Y(i), src.Y, k.m.srcY+by*src.YStride+bx, src.YStride, pred, predOff)
	rate, dist = k.block(firstY+i, &k.m.fc.Quant.Y1)
	return rate, dist >> 2
}

// chroma codes both chroma residuals.
func (k *coder) chroma(pred *mbPred) (rate, dist int) {
	src := k.m.fc.Src
	q := k.m.fc.Quant
	uvErr := 0
	for i := 0; i < 4; i++ {
		bx, by := (i&1)*4, (i>>1)*4
		off := k.m.srcUV + by*src.UVStride + bx
		transform(k.c.U(i), src.U, off, src.UVStride, pred[:], by*dsp.BPS+predU+bx)
		transform(k.c.V(i), src.V, off, src.UVStride, pred[:], by*dsp.BPS+predV+bx)
	}
	for b := firstU; b < y2Block; b++ {
		r, d := k.block(b, &q.UV)
		rate += r
		uvErr += d
	}
	return rate, uvErr / 4
}

// reconstruct adds the decoded residual of c to pred and stores the
// macroblock in f. With lumaDone the luma of pred is already reconstructed.
func reconstruct(f *yuv.Frame, row, col int, pred *mbPred, c *Coeffs, lumaDone bool) {
	yOff := f.MBYOff(col, row)
	if lumaDone {
		for y := 0; y < 16; y++ {
			copy(f.Y[yOff+y*f.YStride:yOff+y*f.YStride+16], pred[y*dsp.BPS:])
		}
	} else {
		var dcs [16]int16
		if c.HasY2 {
			dsp.InverseWalshHadamard4x4(c.Y2().DQCoeff[:], dcs[:])
		}
		for i := 0; i < 16; i++ {
			bx, by := (i&3)*4, (i>>2)*4
			dq := c.Y(i).DQCoeff
			if c.HasY2 {
				dq[0] = dcs[i]
			}
			dsp.IDCT4x4Add(dq[:], pred[:], by*dsp.BPS+bx, dsp.BPS, f.Y, yOff+by*f.YStride+bx, f.YStride)
		}
	}
	uvOff := f.MBUVOff(col, row)
	for i := 0; i < 4; i++ {
		bx, by := (i&1)*4, (i>>1)*4
		dst := uvOff + by*f.UVStride + bx
		dsp.IDCT4x4Add(c.U(i).DQCoeff[:], pred[:], by*dsp.BPS+predU+bx, dsp.BPS, f.U, dst, f.UVStride)
		dsp.IDCT4x4Add(c.V(i).DQCoeff[:], pred[:], by*dsp.BPS+predV+bx, dsp.BPS, f.V, dst, f.UVStride)
	}
}
