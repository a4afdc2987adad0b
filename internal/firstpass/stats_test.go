package firstpass

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(frame float64) Stats {
	return Stats{
		Frame:       frame,
		IntraError:  2000 + frame,
		CodedError:  200 + frame/2,
		PcntInter:   0.95,
		PcntMotion:  0.3,
		PcntNeutral: 0.05,
		MVr:         8,
		MVrAbs:      8,
		Duration:    1.0 / 30,
		Count:       1,
	}
}

func TestAccumulateSubtract(t *testing.T) {
	a, b := sample(1), sample(2)
	sum := a
	sum.Accumulate(&b)
	assert.Equal(t, 2.0, sum.Count)
	assert.InDelta(t, 4003.0, sum.IntraError, 1e-9)

	sum.Subtract(&b)
	assert.Equal(t, a, sum)

	sum.Zero()
	assert.Equal(t, Stats{}, sum)
}

func TestAvg(t *testing.T) {
	s := Sum([]Stats{sample(0), sample(2)})
	s.Avg()
	assert.Equal(t, 2.0, s.Count)
	assert.InDelta(t, 1.0, s.Frame, 1e-9)
	assert.InDelta(t, 0.95, s.PcntInter, 1e-9)
	assert.InDelta(t, 200.5, s.CodedError, 1e-9)

	var empty Stats
	empty.Avg()
	assert.Equal(t, Stats{}, empty)
}

func TestIIRatioGuardsZero(t *testing.T) {
	s := Stats{IntraError: 10}
	assert.Greater(t, s.IIRatio(), 1e6)
	s.CodedError = 5
	assert.InDelta(t, 2.0, s.IIRatio(), 1e-6)
}

func TestStatsStream(t *testing.T) {
	var buf bytes.Buffer
	in := []Stats{sample(0), sample(1), sample(2)}
	for i := range in {
		require.NoError(t, WriteStats(&buf, &in[i]))
	}
	assert.Equal(t, 3*statsSize, buf.Len())

	out, err := ReadAll(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	r := bytes.NewReader(buf.Bytes()[:statsSize])
	_, err = ReadStats(r)
	require.NoError(t, err)
	_, err = ReadStats(r)
	assert.Equal(t, ErrStatsExhausted, errors.Cause(err))
}

func TestTruncatedStats(t *testing.T) {
	b, err := (&Stats{Count: 1}).MarshalBinary()
	require.NoError(t, err)
	_, err = ReadAll(bytes.NewReader(b[:statsSize-3]))
	assert.Error(t, err)
	assert.NotEqual(t, ErrStatsExhausted, errors.Cause(err))

	var s Stats
	assert.Error(t, s.UnmarshalBinary(b[:10]))
}
