package dsp

import "math"

// ProbCost[p] is the cost, in 1/256 bit units, of coding a zero with a
// boolean coder probability p/256. The cost of a one is ProbCost[255-p].
var ProbCost [256]uint16

const maxProbCost = 2047

func initProbCost() {
	ProbCost[0] = maxProbCost
	for p := 1; p < 256; p++ {
		c := int(math.Round(-math.Log2(float64(p)/256) * 256))
		if c > maxProbCost {
			c = maxProbCost
		}
		ProbCost[p] = uint16(c)
	}
}

// BitCost returns the cost of coding bit with probability prob of a zero.
func BitCost(bit int, prob uint8) int {
	if bit != 0 {
		return int(ProbCost[255-prob])
	}
	return int(ProbCost[prob])
}

// TreeCost returns the cost of coding value v whose path through a binary
// token tree is given as a sequence of (bit, probability index) pairs.
func TreeCost(path []TreeStep, probs []uint8) int {
	cost := 0
	for _, s := range path {
		cost += BitCost(int(s[0]), probs[s[1]])
	}
	return cost
}

// TreeStep is one branch decision on a token tree walk: the bit taken and
// the index of the probability that codes it.
type TreeStep [2]uint8
