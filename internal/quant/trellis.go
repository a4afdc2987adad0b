package quant

// Distortion weights per block type, applied to the macroblock multiplier.
var planeRDMult = [NumBlockTypes]int{
	TypeYNoDC:   4,
	TypeY2:      16,
	TypeUV:      2,
	TypeYWithDC: 4,
}

// tokenState is one trellis node: the cheapest tail starting at this scan
// position under one rounding hypothesis.
type tokenState struct {
	rate  int
	err   int
	next  int
	token Token
	qc    int16
}

// Trellis holds what OptimizeBlock needs besides the block itself.
type Trellis struct {
	Costs  *TokenCosts
	RDMult int
	RDDiv  int
	// Intra scales the multiplier by 9/16.
	Intra bool
}

// pick returns 1 when the second candidate is strictly cheaper. Exact ties
// fall back to the bits that RDCost rounds away.
func (tr *Trellis) pick(mult, rate0, err0, rate1, err1 int) int {
	c0 := RDCost(mult, tr.RDDiv, rate0, err0)
	c1 := RDCost(mult, tr.RDDiv, rate1, err1)
	if c0 == c1 {
		c0 = RDTrunc(mult, tr.RDDiv, rate0, err0)
		c1 = RDTrunc(mult, tr.RDDiv, rate1, err1)
	}
	if c1 < c0 {
		return 1
	}
	return 0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// OptimizeBlock revisits the roundings chosen by the quantizer. Every
// nonzero level may either be kept or moved one step toward zero; a two
// state Viterbi pass from the end of block back to the first coefficient
// finds the cheapest combination under the token costs, and the end of block
// moves back when the winning path zeroes the tail. coeff is the unquantized
// block, qcoeff/dqcoeff the quantizer output (raster order), eob its end of
// block and ctx the combined above/left nonzero context. The new end of block
// is returned; the block is nonzero when it is greater than zero.
func (tr *Trellis) OptimizeBlock(coeff, qcoeff, dqcoeff []int16, b *Block, typ, ctx, eob int) int {
	_ = coeff[15]
	_ = qcoeff[15]
	_ = dqcoeff[15]

	first := FirstCoeff(typ)
	if eob <= first {
		return 0
	}
	mult := tr.RDMult * planeRDMult[typ]
	if tr.Intra {
		mult = (mult * 9) >> 4
	}
	costs := tr.Costs[typ]

	var tokens [17][2]tokenState
	var bestMask [2]uint32
	tokens[eob][0] = tokenState{next: 16, token: EOBToken}
	tokens[eob][1] = tokens[eob][0]
	next := eob

	for i := eob - 1; i >= first; i-- {
		rc := Zigzag[i]
		x := int(qcoeff[rc])
		if x == 0 {
			// No choice for a zero level, but the tail now starts one
			// position earlier.
			band := Bands[i+1]
			for h := 0; h < 2; h++ {
				if t := tokens[next][h].token; t != EOBToken {
					tokens[next][h].rate += costs[band][0][t]
					tokens[next][h].token = ZeroToken
				}
			}
			continue
		}

		dq := int(b.Dequant[rc])
		err0 := tokens[next][0].err
		err1 := tokens[next][1].err

		// Hypothesis 0 keeps the level.
		rate0 := tokens[next][0].rate
		rate1 := tokens[next][1].rate
		t0 := ValueToken(x)
		if next < 16 {
			band := Bands[i+1]
			pt := PrevTokenClass(t0)
			rate0 += costs[band][pt][tokens[next][0].token]
			rate1 += costs[band][pt][tokens[next][1].token]
		}
		best := tr.pick(mult, rate0, err0, rate1, err1)
		dx := int(dqcoeff[rc]) - int(coeff[rc])
		d2 := dx * dx
		tokens[i][0] = tokenState{
			rate:  ValueCost(x) + pickInt(best, rate0, rate1),
			err:   d2 + pickInt(best, err0, err1),
			next:  next,
			token: t0,
			qc:    int16(x),
		}
		bestMask[0] |= uint32(best) << i

		// Hypothesis 1 moves the level one step toward zero when the
		// reconstruction overshoots the source by less than a step.
		rate0 = tokens[next][0].rate
		rate1 = tokens[next][1].rate
		recon := abs(x) * dq
		shortcut := recon > abs(int(coeff[rc])) && recon < abs(int(coeff[rc]))+dq
		sz := 0
		if shortcut {
			if x < 0 {
				sz = -1
			}
			x -= 2*sz + 1
		}

		var t1 Token
		if x == 0 {
			t0, t1 = ZeroToken, ZeroToken
			if tokens[next][0].token == EOBToken {
				t0 = EOBToken
			}
			if tokens[next][1].token == EOBToken {
				t1 = EOBToken
			}
		} else {
			t0 = ValueToken(x)
			t1 = t0
		}
		if next < 16 {
			band := Bands[i+1]
			if t0 != EOBToken {
				rate0 += costs[band][PrevTokenClass(t0)][tokens[next][0].token]
			}
			if t1 != EOBToken {
				rate1 += costs[band][PrevTokenClass(t1)][tokens[next][1].token]
			}
		}
		best = tr.pick(mult, rate0, err0, rate1, err1)
		if shortcut {
			dx -= (dq + sz) ^ sz
			d2 = dx * dx
		}
		tok := t0
		if best == 1 {
			tok = t1
		}
		tokens[i][1] = tokenState{
			rate:  ValueCost(x) + pickInt(best, rate0, rate1),
			err:   d2 + pickInt(best, err0, err1),
			next:  next,
			token: tok,
			qc:    int16(x),
		}
		bestMask[1] |= uint32(best) << i
		next = i
	}

	// Choose the head of the trellis under the block's starting context.
	band := Bands[first]
	rate0 := tokens[next][0].rate + costs[band][ctx][tokens[next][0].token]
	rate1 := tokens[next][1].rate + costs[band][ctx][tokens[next][1].token]
	best := tr.pick(mult, rate0, tokens[next][0].err, rate1, tokens[next][1].err)

	finalEOB := 0
	for i := next; i < eob; {
		st := &tokens[i][best]
		rc := Zigzag[i]
		if st.qc != 0 {
			finalEOB = i + 1
		}
		qcoeff[rc] = st.qc
		dqcoeff[rc] = int16(int(st.qc) * int(b.Dequant[rc]))
		best = int(bestMask[best]>>i) & 1
		i = st.next
	}
	return finalEOB
}

func pickInt(sel, a, b int) int {
	if sel != 0 {
		return b
	}
	return a
}

// BlockRD prices a quantized block: the token rate under ctx and the
// squared coefficient error of its reconstruction.
func (tr *Trellis) BlockRD(coeff, dqcoeff, qcoeff []int16, typ, ctx, eob int) (rate, dist int) {
	rate = tr.Costs.BlockRate(qcoeff, typ, ctx, eob)
	for i := FirstCoeff(typ); i < 16; i++ {
		rc := Zigzag[i]
		d := int(dqcoeff[rc]) - int(coeff[rc])
		dist += d * d
	}
	return rate, dist
}
