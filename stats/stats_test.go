package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_EmptySeriesIsAllZeros(t *testing.T) {
	summary := Compute(nil)
	assert.Equal(t, Summary{}, summary)
}

func TestCompute_OddLengthSeries(t *testing.T) {
	summary := Compute([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 5.0, summary.Max)
	assert.Equal(t, 3.0, summary.Avg)
	assert.Equal(t, 3.0, summary.Median)
	assert.Equal(t, 5, summary.Count)
}

func TestCompute_EvenLengthMedianIsUpperMiddle(t *testing.T) {
	summary := Compute([]float64{1, 2, 3, 4})
	assert.Equal(t, 3.0, summary.Median)
}

func TestCompute_UnsortedInput(t *testing.T) {
	values := []float64{9, 1, 5}
	summary := Compute(values)
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 9.0, summary.Max)
	assert.Equal(t, 5.0, summary.Median)
	// The input slice must not be reordered.
	assert.Equal(t, []float64{9, 1, 5}, values)
}

func TestSeries_AppendAndSnapshot(t *testing.T) {
	var s Series
	s.Append(1)
	s.Append(2)
	s.Append(3)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 1.0, snap[0].Value)
	assert.Equal(t, 3.0, snap[2].Value)

	// The snapshot is a copy; appending more does not grow it.
	s.Append(4)
	assert.Len(t, snap, 3)
	assert.Equal(t, 4, s.Len())
}

func TestSeries_SnapshotPreservesOrder(t *testing.T) {
	var s Series
	base := time.Now()
	for i := 0; i < 5; i++ {
		s.AppendAt(base.Add(time.Duration(i)*time.Second), float64(i))
	}
	snap := s.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i].At.After(snap[i-1].At))
	}
}

func TestSeries_Summarize(t *testing.T) {
	var s Series
	for _, v := range []float64{10, 20, 30} {
		s.Append(v)
	}
	summary := s.Summarize()
	assert.Equal(t, 10.0, summary.Min)
	assert.Equal(t, 30.0, summary.Max)
	assert.Equal(t, 20.0, summary.Avg)
}

func TestSeries_Reset(t *testing.T) {
	var s Series
	s.Append(1)
	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, Summary{}, s.Summarize())
}
