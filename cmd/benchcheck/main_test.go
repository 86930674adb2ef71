package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func benchOutput(validateNs, refreshNs, allocs string) string {
	return strings.Join([]string{
		"goos: linux",
		"BenchmarkValidate-8   \t  100000\t " + validateNs + " ns/op\t  512 B/op\t " + allocs + " allocs/op",
		"BenchmarkRefresh-8    \t   20000\t " + refreshNs + " ns/op",
		"BenchmarkLogin-8      \t     100\t 900000 ns/op",
		"BenchmarkMetricsIncParallel-8 \t 1000000000\t 1.5 ns/op",
		"BenchmarkUntracked-8  \t 10\t 5 ns/op",
		"PASS",
	}, "\n")
}

func TestParseBenchmarks(t *testing.T) {
	samples, err := parseBenchmarks(strings.NewReader(benchOutput("1200", "45000", "9")))
	require.NoError(t, err)
	require.Equal(t, []float64{1200}, samples["BenchmarkValidate"]["ns/op"])
	require.Equal(t, []float64{9}, samples["BenchmarkValidate"]["allocs/op"])
	require.NotContains(t, samples, "BenchmarkUntracked")
}

func TestCompare(t *testing.T) {
	base, err := parseBenchmarks(strings.NewReader(benchOutput("1000", "40000", "9")))
	require.NoError(t, err)

	same, err := parseBenchmarks(strings.NewReader(benchOutput("1100", "41000", "9")))
	require.NoError(t, err)
	var out bytes.Buffer
	require.Empty(t, compare(&out, base, same, defaultThreshold))
	require.Contains(t, out.String(), "BenchmarkValidate ns/op")

	slower, err := parseBenchmarks(strings.NewReader(benchOutput("1000", "60000", "9")))
	require.NoError(t, err)
	failures := compare(&bytes.Buffer{}, base, slower, defaultThreshold)
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "BenchmarkRefresh ns/op regressed")

	failures = compare(&bytes.Buffer{}, base, sampleSet{}, defaultThreshold)
	require.Len(t, failures, 5)
}

func TestNormalizeAndMedian(t *testing.T) {
	require.Equal(t, "BenchmarkValidate", normalizeBenchmarkName("BenchmarkValidate-16"))
	require.Equal(t, "BenchmarkX-y", normalizeBenchmarkName("BenchmarkX-y"))
	require.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	require.Equal(t, 3.0, median([]float64{5, 3, 1}))
}
