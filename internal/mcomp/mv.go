// Package mcomp implements the motion search used by the mode decision:
// diamond, hexagon, exhaustive and refining integer-pel searches followed by
// sub-pixel refinement, all scoring candidates as distortion plus the
// lambda-weighted bit cost of the vector.
package mcomp

// MV is a motion vector in 1/8-pel units. Luma vectors are always even
// (quarter-pel precision); a full-pel vector is a multiple of 8.
type MV struct {
	Row, Col int16
}

// FullPel builds an MV from whole-pixel displacements.
func FullPel(row, col int) MV {
	return MV{Row: int16(row << 3), Col: int16(col << 3)}
}

// FullRow returns the integer-pel row, rounding toward negative infinity.
func (mv MV) FullRow() int { return int(mv.Row) >> 3 }

// FullCol returns the integer-pel column, rounding toward negative infinity.
func (mv MV) FullCol() int { return int(mv.Col) >> 3 }

// FracRow returns the 1/8-pel row fraction (0..7).
func (mv MV) FracRow() int { return int(mv.Row) & 7 }

// FracCol returns the 1/8-pel column fraction (0..7).
func (mv MV) FracCol() int { return int(mv.Col) & 7 }

// IsZero reports whether mv is the zero vector.
func (mv MV) IsZero() bool { return mv.Row == 0 && mv.Col == 0 }

// Add returns mv + o.
func (mv MV) Add(o MV) MV { return MV{mv.Row + o.Row, mv.Col + o.Col} }

// Neg returns -mv.
func (mv MV) Neg() MV { return MV{-mv.Row, -mv.Col} }

// RoundToFullPel snaps mv to the nearest whole pixel.
func (mv MV) RoundToFullPel() MV {
	round := func(v int16) int16 {
		if v < 0 {
			return -((-v + 4) &^ 7)
		}
		return (v + 4) &^ 7
	}
	return MV{round(mv.Row), round(mv.Col)}
}

// BorderMargin is how far, in pixels, a 16x16 block may extend past the
// aligned frame edge: the reference apron minus one block.
const BorderMargin = 32 - 16

// Bounds is the valid full-pel window for a macroblock's motion vectors.
type Bounds struct {
	RowMin, RowMax int
	ColMin, ColMax int
}

// MBBounds returns the window for the macroblock at (mbRow, mbCol) in a frame
// of mbRows x mbCols macroblocks.
func MBBounds(mbRow, mbCol, mbRows, mbCols int) Bounds {
	return Bounds{
		RowMin: -(mbRow*16 + BorderMargin),
		RowMax: (mbRows-1-mbRow)*16 + BorderMargin,
		ColMin: -(mbCol*16 + BorderMargin),
		ColMax: (mbCols-1-mbCol)*16 + BorderMargin,
	}
}

// Intersect narrows b to the full-pel range reachable from ref within the
// longest codable vector component.
func (b Bounds) Intersect(ref MV) Bounds {
	r, c := ref.FullRow(), ref.FullCol()
	if lo := r - MaxFullPelRange; lo > b.RowMin {
		b.RowMin = lo
	}
	if hi := r + MaxFullPelRange; hi < b.RowMax {
		b.RowMax = hi
	}
	if lo := c - MaxFullPelRange; lo > b.ColMin {
		b.ColMin = lo
	}
	if hi := c + MaxFullPelRange; hi < b.ColMax {
		b.ColMax = hi
	}
	return b
}

// ContainsFull reports whether the full-pel position (row, col) is inside b.
func (b Bounds) ContainsFull(row, col int) bool {
	return row >= b.RowMin && row <= b.RowMax && col >= b.ColMin && col <= b.ColMax
}

// Contains reports whether every pixel mv addresses lies inside b, counting
// the extra pixel a fractional vector reads.
func (b Bounds) Contains(mv MV) bool {
	r, c := mv.FullRow(), mv.FullCol()
	if mv.FracRow() != 0 {
		r++
	}
	if mv.FracCol() != 0 {
		c++
	}
	return mv.FullRow() >= b.RowMin && r <= b.RowMax && mv.FullCol() >= b.ColMin && c <= b.ColMax
}

// Clamp limits mv to b (expressed in 1/8 pel).
func (b Bounds) Clamp(mv MV) MV {
	clamp := func(v int16, lo, hi int) int16 {
		if int(v) < lo<<3 {
			return int16(lo << 3)
		}
		if int(v) > hi<<3 {
			return int16(hi << 3)
		}
		return v
	}
	return MV{clamp(mv.Row, b.RowMin, b.RowMax), clamp(mv.Col, b.ColMin, b.ColMax)}
}

// clampFull limits a full-pel position to b.
func (b Bounds) clampFull(row, col int) (int, int) {
	if row < b.RowMin {
		row = b.RowMin
	} else if row > b.RowMax {
		row = b.RowMax
	}
	if col < b.ColMin {
		col = b.ColMin
	} else if col > b.ColMax {
		col = b.ColMax
	}
	return row, col
}
