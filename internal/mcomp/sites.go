package mcomp

// MaxSearchSteps is the number of step sizes a site set covers.
const MaxSearchSteps = 8

// MaxFirstStep is the largest diamond step, in pixels.
const MaxFirstStep = 1 << (MaxSearchSteps - 1)

// Site is one candidate displacement relative to the current best position,
// with its precomputed buffer offset.
type Site struct {
	Row, Col int
	Offset   int
}

// SiteSet is the list of search sites for successive step sizes. Site 0 is
// the centre; the remaining sites come in groups of PerStep, largest step
// first. Sets depend only on the reference stride and are built once per
// frame size.
type SiteSet struct {
	Sites   []Site
	PerStep int
	Stride  int
}

// Steps returns the number of step sizes in the set.
func (s *SiteSet) Steps() int { return (len(s.Sites) - 1) / s.PerStep }

// NewDiamondSites builds the four-point (up, down, left, right) pattern for
// step sizes MaxFirstStep down to 1.
func NewDiamondSites(stride int) *SiteSet {
	s := &SiteSet{PerStep: 4, Stride: stride}
	s.Sites = append(s.Sites, Site{})
	for l := MaxFirstStep; l > 0; l /= 2 {
		for _, d := range [4][2]int{{-l, 0}, {l, 0}, {0, -l}, {0, l}} {
			s.Sites = append(s.Sites, Site{Row: d[0], Col: d[1], Offset: d[0]*stride + d[1]})
		}
	}
	return s
}

// NewThreeStepSites builds the eight-point pattern (the diamond plus the
// diagonals) for the same step sizes.
func NewThreeStepSites(stride int) *SiteSet {
	s := &SiteSet{PerStep: 8, Stride: stride}
	s.Sites = append(s.Sites, Site{})
	for l := MaxFirstStep; l > 0; l /= 2 {
		for _, d := range [8][2]int{
			{-l, 0}, {l, 0}, {0, -l}, {0, l},
			{-l, -l}, {-l, l}, {l, -l}, {l, l},
		} {
			s.Sites = append(s.Sites, Site{Row: d[0], Col: d[1], Offset: d[0]*stride + d[1]})
		}
	}
	return s
}
