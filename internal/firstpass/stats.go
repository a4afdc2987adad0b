// Package firstpass implements two-pass rate control: a cheap analysis pass
// that records per-frame statistics, and a planner that turns those
// statistics into key frame and golden frame groups, bit budgets and
// quantizer estimates for the second pass.
package firstpass

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// ErrStatsExhausted is returned when the statistics stream ends.
var ErrStatsExhausted = errors.New("firstpass: no more statistics")

// Stats is the first-pass record of one frame, or the sum or average of
// several frames. Count is the number of frames it covers.
type Stats struct {
	Frame               float64
	IntraError          float64
	CodedError          float64
	SSIMWeightedPredErr float64
	PcntInter           float64
	PcntMotion          float64
	PcntSecondRef       float64
	PcntNeutral         float64
	MVr                 float64
	MVrAbs              float64
	MVc                 float64
	MVcAbs              float64
	MVrv                float64
	MVcv                float64
	MVInOutCount        float64
	NewMVCount          float64
	Duration            float64
	Count               float64
}

// fields lists every field in stream order.
func (s *Stats) fields() [18]*float64 {
	return [18]*float64{
		&s.Frame, &s.IntraError, &s.CodedError, &s.SSIMWeightedPredErr,
		&s.PcntInter, &s.PcntMotion, &s.PcntSecondRef, &s.PcntNeutral,
		&s.MVr, &s.MVrAbs, &s.MVc, &s.MVcAbs, &s.MVrv, &s.MVcv,
		&s.MVInOutCount, &s.NewMVCount, &s.Duration, &s.Count,
	}
}

// Zero clears every field.
func (s *Stats) Zero() { *s = Stats{} }

// Accumulate adds o field by field.
func (s *Stats) Accumulate(o *Stats) {
	dst, src := s.fields(), o.fields()
	for i := range dst {
		*dst[i] += *src[i]
	}
}

// Subtract removes o field by field; it undoes Accumulate.
func (s *Stats) Subtract(o *Stats) {
	dst, src := s.fields(), o.fields()
	for i := range dst {
		*dst[i] -= *src[i]
	}
}

// Avg divides every field but Count by Count.
func (s *Stats) Avg() {
	if s.Count <= 0 {
		return
	}
	n := s.Count
	for _, f := range s.fields() {
		if f != &s.Count {
			*f /= n
		}
	}
}

// IIRatio is the intra to coded error ratio, the basic measure of how well
// a frame predicts from its reference.
func (s *Stats) IIRatio() float64 {
	return s.IntraError / doubleDivideCheck(s.CodedError)
}

// statsSize is the encoded size of one record.
const statsSize = 18 * 8

// MarshalBinary encodes s as 18 little-endian float64 values.
func (s *Stats) MarshalBinary() ([]byte, error) {
	b := make([]byte, statsSize)
	for i, f := range s.fields() {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(*f))
	}
	return b, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (s *Stats) UnmarshalBinary(b []byte) error {
	if len(b) != statsSize {
		return errors.Errorf("firstpass: stats record is %d bytes, want %d", len(b), statsSize)
	}
	for i, f := range s.fields() {
		*f = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return nil
}

// WriteStats appends one record to w.
func WriteStats(w io.Writer, s *Stats) error {
	b, _ := s.MarshalBinary()
	_, err := w.Write(b)
	return errors.Wrap(err, "firstpass: write stats")
}

// ReadStats reads one record from r. A clean end of stream yields
// ErrStatsExhausted.
func ReadStats(r io.Reader) (Stats, error) {
	var s Stats
	b := make([]byte, statsSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			return s, ErrStatsExhausted
		}
		return s, errors.Wrap(err, "firstpass: read stats")
	}
	err := s.UnmarshalBinary(b)
	return s, err
}

// ReadAll reads records until the stream ends.
func ReadAll(r io.Reader) ([]Stats, error) {
	var out []Stats
	for {
		s, err := ReadStats(r)
		if errors.Cause(err) == ErrStatsExhausted {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

// Sum accumulates a sequence of records.
func Sum(stats []Stats) Stats {
	var t Stats
	for i := range stats {
		t.Accumulate(&stats[i])
	}
	return t
}

// doubleDivideCheck nudges a divisor away from zero.
func doubleDivideCheck(x float64) float64 {
	if x < 0 {
		return x - 0.000001
	}
	return x + 0.000001
}
