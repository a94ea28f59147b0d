package umi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor(t *testing.T) {
	e := NewExtractor("GTAC", 4)
	u, ok := e.Extract("CGTACAAAACA")
	require.True(t, ok)
	assert.Equal(t, "AAAA", u)

	// Pattern anywhere in the region, not only at the start.
	u, ok = e.Extract("TTTTGTACTGCATT")
	require.True(t, ok)
	assert.Equal(t, "TGCA", u)

	_, ok = e.Extract("GTAA")
	assert.False(t, ok)
	_, ok = e.Extract("GTACAA")
	assert.False(t, ok)
}

func TestCalibration(t *testing.T) {
	c := NewCalibration()
	// 99 clean observations, one with a single substitution.
	c.ObserveN("GTAC", "GTAC", 99)
	c.Observe("GTAC", "GTAA")
	rates := c.BaseError(3)
	assert.Equal(t, 0.0, rates[0])
	assert.InDelta(t, 1.0/(100.0*4.0), rates[1], 1e-12)
	assert.Equal(t, 0.0, rates[2])

	// The maximum across static sequences wins.
	c.ObserveN("CCAGCA", "CCAGCA", 8)
	c.ObserveN("CCAGCA", "CCAGCC", 2)
	rates = c.BaseError(3)
	assert.InDelta(t, 2.0/(10.0*6.0), rates[1], 1e-12)
}

func TestCalibrationMerge(t *testing.T) {
	a, b := NewCalibration(), NewCalibration()
	a.ObserveN("GTAC", "GTAC", 50)
	b.ObserveN("GTAC", "GTAC", 49)
	b.Observe("GTAC", "GTAA")
	a.Merge(b)
	rates := a.BaseError(2)
	assert.InDelta(t, 1.0/(100.0*4.0), rates[1], 1e-12)
}

func TestDedupKeepsDistinctUMIs(t *testing.T) {
	// count(AAAT)=1 is not below 2×4×0.01, so it survives.
	m := Multiset{"AAAA": 2, "AAAT": 1}
	baseError := []float64{0, 0.01}
	assert.Equal(t, 2, Dedup(m, baseError, 3, 10000))
}

func TestDedupCollapsesErrorCopies(t *testing.T) {
	// count(AAAT)=1 < 100×4×0.01 and distance 1: collapsed.
	m := Multiset{"AAAA": 100, "AAAT": 1}
	baseError := []float64{0, 0.01}
	assert.Equal(t, 1, Dedup(m, baseError, 3, 10000))
}

func TestDedupDistanceBound(t *testing.T) {
	// Distance 4 exceeds every allowed error count: kept despite low count.
	m := Multiset{"AAAA": 100, "TTTT": 1}
	baseError := []float64{0, 0.5, 0.5, 0.5}
	assert.Equal(t, 2, Dedup(m, baseError, 3, 10000))
}

func TestDedupTopSurvives(t *testing.T) {
	// Even with an absurd error rate the most-counted UMI is never removed.
	m := Multiset{"AAAA": 100, "AAAT": 90, "AAAG": 1}
	baseError := []float64{0, 1.0}
	assert.Equal(t, 1, Dedup(m, baseError, 3, 10000))
}

func TestDedupLargeSetSkipped(t *testing.T) {
	m := Multiset{"AAAA": 20000, "AAAT": 1}
	baseError := []float64{0, 0.01}
	assert.Equal(t, 2, Dedup(m, baseError, 3, 10000))
}

func TestDedupNoCalibration(t *testing.T) {
	m := Multiset{"AAAA": 100, "AAAT": 1}
	assert.Equal(t, 2, Dedup(m, []float64{0, 0}, 3, 10000))
}

func TestMultiset(t *testing.T) {
	m := Multiset{}
	m.Add("AAAA")
	m.Add("AAAA")
	m.AddN("CCCC", 3)
	assert.Equal(t, 5, m.Size())
	o := Multiset{"AAAA": 1}
	m.Merge(o)
	assert.Equal(t, 3, m["AAAA"])
}
