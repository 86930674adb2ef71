package main

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errSample = errors.New("sample failure")

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(1), percentile(samples, -5))
	require.Equal(t, time.Duration(5), percentile(samples, 50))
	require.Equal(t, time.Duration(10), percentile(samples, 100))
	require.Zero(t, percentile(nil, 50))
}

func TestRunPhaseCountsEveryOperation(t *testing.T) {
	stats := runPhase(100, 8, func(_ *rand.Rand, i int) error {
		if i%10 == 0 {
			return errSample
		}
		return nil
	})
	require.Equal(t, 100, stats.ops)
	require.Equal(t, int64(10), stats.failures)
}

func TestSeedStudentIsValid(t *testing.T) {
	require.NoError(t, seedStudent(7).Validate())
}

func TestRunAgainstMiniredis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	require.NoError(t, run(5, 2, 20, ""))
}

