package quant

import "github.com/deepteams/vp8rd/internal/dsp"

// Token is a coefficient token.
type Token uint8

const (
	ZeroToken Token = iota
	OneToken
	TwoToken
	ThreeToken
	FourToken
	Cat1Token // 5-6
	Cat2Token // 7-10
	Cat3Token // 11-18
	Cat4Token // 19-34
	Cat5Token // 35-66
	Cat6Token // 67-2048
	EOBToken
	NumTokens
)

// Block types select the coefficient probability set.
const (
	TypeYNoDC = iota // luma AC after a second-order block
	TypeY2
	TypeUV
	TypeYWithDC
	NumBlockTypes
)

const (
	NumBands      = 8
	NumContexts   = 3
	NumCoefProbs  = 11
	maxValueRange = MaxLevel + 1
)

// Bands maps a scan position to its probability band. Index 16 is a
// sentinel for the position after the last coefficient.
var Bands = [17]int{0, 1, 2, 3, 6, 4, 5, 6, 6, 6, 6, 6, 6, 6, 6, 7, 0}

// FirstCoeff returns the first coded scan position of a block type.
func FirstCoeff(typ int) int {
	if typ == TypeYNoDC {
		return 1
	}
	return 0
}

// tokenPaths are the walks through the coefficient token tree.
var tokenPaths = [NumTokens][]dsp.TreeStep{
	ZeroToken:  {{1, 0}, {0, 1}},
	OneToken:   {{1, 0}, {1, 1}, {0, 2}},
	TwoToken:   {{1, 0}, {1, 1}, {1, 2}, {0, 3}, {0, 4}},
	ThreeToken: {{1, 0}, {1, 1}, {1, 2}, {0, 3}, {1, 4}, {0, 5}},
	FourToken:  {{1, 0}, {1, 1}, {1, 2}, {0, 3}, {1, 4}, {1, 5}},
	Cat1Token:  {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {0, 6}, {0, 7}},
	Cat2Token:  {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {0, 6}, {1, 7}},
	Cat3Token:  {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {0, 8}, {0, 9}},
	Cat4Token:  {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {0, 8}, {1, 9}},
	Cat5Token:  {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {1, 8}, {0, 10}},
	Cat6Token:  {{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 6}, {1, 8}, {1, 10}},
	EOBToken:   {{0, 0}},
}

// Extra bits of the category tokens, most significant first.
var catProbs = [6][]uint8{
	{159},
	{165, 145},
	{173, 148, 140},
	{176, 155, 140, 135},
	{180, 157, 141, 134, 130},
	{254, 254, 243, 230, 196, 177, 153, 140, 133, 130, 129},
}

var catBase = [6]int{5, 7, 11, 19, 35, 67}

var (
	valueTokens [2*maxValueRange + 1]Token
	valueCosts  [2*maxValueRange + 1]int
)

func init() {
	signCost := dsp.BitCost(0, 128)
	for v := -maxValueRange; v <= maxValueRange; v++ {
		a := v
		if a < 0 {
			a = -a
		}
		var tok Token
		cost := 0
		switch {
		case a <= 4:
			tok = Token(a)
		default:
			c := 5
			for c > 0 && a < catBase[c] {
				c--
			}
			tok = Cat1Token + Token(c)
			extra := a - catBase[c]
			probs := catProbs[c]
			for i, p := range probs {
				bit := (extra >> (len(probs) - 1 - i)) & 1
				cost += dsp.BitCost(bit, p)
			}
		}
		if a != 0 {
			cost += signCost
		}
		valueTokens[v+maxValueRange] = tok
		valueCosts[v+maxValueRange] = cost
	}
}

// ValueToken returns the token that codes level v.
func ValueToken(v int) Token {
	return valueTokens[v+maxValueRange]
}

// ValueCost returns the cost of the extra and sign bits of level v.
func ValueCost(v int) int {
	return valueCosts[v+maxValueRange]
}

// PrevTokenClass maps a coded token to the context of the next one.
func PrevTokenClass(t Token) int {
	switch t {
	case ZeroToken, EOBToken:
		return 0
	case OneToken:
		return 1
	}
	return 2
}

// CoeffProbs are the coefficient token probabilities of a frame.
type CoeffProbs [NumBlockTypes][NumBands][NumContexts][NumCoefProbs]uint8

// UniformCoeffProbs returns even odds on every tree branch.
func UniformCoeffProbs() *CoeffProbs {
	p := new(CoeffProbs)
	for t := range p {
		for b := range p[t] {
			for c := range p[t][b] {
				for i := range p[t][b][c] {
					p[t][b][c][i] = 128
				}
			}
		}
	}
	return p
}

// TokenCosts prices every token in 1/256 bits, per block type, band and
// context.
type TokenCosts [NumBlockTypes][NumBands][NumContexts][NumTokens]int

// NewTokenCosts walks the token tree once per probability set.
func NewTokenCosts(p *CoeffProbs) *TokenCosts {
	tc := new(TokenCosts)
	for t := range p {
		for b := range p[t] {
			for c := range p[t][b] {
				probs := p[t][b][c][:]
				for tok := Token(0); tok < NumTokens; tok++ {
					tc[t][b][c][tok] = dsp.TreeCost(tokenPaths[tok], probs)
				}
			}
		}
	}
	return tc
}

// BlockRate returns the cost of coding qcoeff (raster order) up to eob with
// initial context ctx.
func (tc *TokenCosts) BlockRate(qcoeff []int16, typ, ctx, eob int) int {
	first := FirstCoeff(typ)
	cost := 0
	i := first
	for ; i < eob; i++ {
		v := int(qcoeff[Zigzag[i]])
		tok := ValueToken(v)
		cost += tc[typ][Bands[i]][ctx][tok] + ValueCost(v)
		ctx = PrevTokenClass(tok)
	}
	if i < 16 {
		cost += tc[typ][Bands[i]][ctx][EOBToken]
	}
	return cost
}

// TokenStats counts branch decisions of coded tokens so a frame's
// probabilities can be refit to the content.
type TokenStats [NumBlockTypes][NumBands][NumContexts][NumCoefProbs][2]uint32

// Record adds the branch decisions of one coded block.
func (s *TokenStats) Record(qcoeff []int16, typ, ctx, eob int) {
	i := FirstCoeff(typ)
	for ; i < eob; i++ {
		v := int(qcoeff[Zigzag[i]])
		tok := ValueToken(v)
		s.walk(typ, Bands[i], ctx, tok)
		ctx = PrevTokenClass(tok)
	}
	if i < 16 {
		s.walk(typ, Bands[i], ctx, EOBToken)
	}
}

func (s *TokenStats) walk(typ, band, ctx int, tok Token) {
	for _, st := range tokenPaths[tok] {
		s[typ][band][ctx][st[1]][st[0]]++
	}
}

// Merge adds the counts of o.
func (s *TokenStats) Merge(o *TokenStats) {
	for t := range s {
		for b := range s[t] {
			for c := range s[t][b] {
				for p := range s[t][b][c] {
					s[t][b][c][p][0] += o[t][b][c][p][0]
					s[t][b][c][p][1] += o[t][b][c][p][1]
				}
			}
		}
	}
}

// Probs fits probabilities to the counts. Branches that were never taken
// keep the value in prev.
func (s *TokenStats) Probs(prev *CoeffProbs) *CoeffProbs {
	p := *prev
	for t := range s {
		for b := range s[t] {
			for c := range s[t][b] {
				for i := range s[t][b][c] {
					n0 := uint64(s[t][b][c][i][0])
					n1 := uint64(s[t][b][c][i][1])
					total := n0 + n1
					if total == 0 {
						continue
					}
					v := 255 - n1*255/total
					if v < 1 {
						v = 1
					}
					p[t][b][c][i] = uint8(v)
				}
			}
		}
	}
	return &p
}
