package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, percentile(data, 50))
	assert.Equal(t, 5.0, percentile(data, 100))
	assert.InDelta(t, 4.6, percentile(data, 90), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestTrimmedMean(t *testing.T) {
	data := []float64{0, 10, 10, 10, 100}
	assert.Equal(t, 10.0, trimmedMean(data, 20))
	assert.Equal(t, 26.0, trimmedMean(data, 0))
	assert.Equal(t, 10.0, trimmedMean(data, 60), "over-trimming keeps the median")
	assert.Equal(t, 7.0, trimmedMean([]float64{7}, 50))
}

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{"/", "/group/cats/", "/sarah/"}, splitPaths("/, group/cats/ ,,/sarah/"))
}
