package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipd-simulator/pkg/parallel"
)

type fakeAgent struct {
	active  bool
	gen     int64
	fitness float64
}

func viewOf(agents []fakeAgent) AgentView {
	return func(i int) (bool, int64, float64) {
		return agents[i].active, agents[i].gen, agents[i].fitness
	}
}

func TestCalculate_Basic(t *testing.T) {
	agents := []fakeAgent{
		{true, 1, 2.0},
		{true, 1, 4.0},
		{true, 3, 9.0},
		{false, 1, 100.0}, // inactive agents are invisible
		{true, 2, 5.0},
	}

	calc := NewStepStatsCalculator(WithPool(parallel.PoolConfig{MaxWorkers: 2, ChunkSize: 2}))
	stats, err := calc.Calculate(7, len(agents), viewOf(agents))
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.Step)
	assert.Equal(t, int64(4), stats.Active)
	assert.Equal(t, int64(2), stats.Unicellular)
	assert.Equal(t, int64(2), stats.Multicellular)
	assert.InDelta(t, 20.0/4, stats.MeanFitness, 1e-12)
	assert.InDelta(t, 6.0/2, stats.MeanFitnessUni, 1e-12)
	assert.InDelta(t, 14.0/2, stats.MeanFitnessMulti, 1e-12)
	assert.Equal(t, int64(3), stats.MaxOrgSize)
	assert.Equal(t, map[int64]int64{1: 2, 2: 1, 3: 1}, stats.SizeHistogram)
}

func TestCalculate_EmptyPopulation(t *testing.T) {
	calc := NewStepStatsCalculator()
	stats, err := calc.Calculate(0, 0, viewOf(nil))
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, 0.0, stats.MeanFitness)
	assert.Equal(t, 0.0, stats.MeanFitnessUni)
	assert.Equal(t, 0.0, stats.MeanFitnessMulti)
}

func TestCalculate_AllInactive(t *testing.T) {
	agents := []fakeAgent{{false, 1, 1}, {false, 2, 2}}
	calc := NewStepStatsCalculator()
	stats, err := calc.Calculate(1, len(agents), viewOf(agents))
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(0), stats.MaxOrgSize)
}

func TestCalculate_WithoutHistogram(t *testing.T) {
	agents := []fakeAgent{{true, 4, 1}}
	calc := NewStepStatsCalculator(WithoutHistogram())
	stats, err := calc.Calculate(1, len(agents), viewOf(agents))
	require.NoError(t, err)
	assert.Nil(t, stats.SizeHistogram)
	assert.Equal(t, int64(4), stats.MaxOrgSize)
}

func TestCalculate_DeterministicMeans(t *testing.T) {
	agents := make([]fakeAgent, 10000)
	for i := range agents {
		agents[i] = fakeAgent{true, 1, 1.0 / float64(i+1)}
	}
	calc := NewStepStatsCalculator(WithPool(parallel.PoolConfig{MaxWorkers: 8, ChunkSize: 37}))

	first, err := calc.Calculate(0, len(agents), viewOf(agents))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := calc.Calculate(0, len(agents), viewOf(agents))
		require.NoError(t, err)
		assert.Equal(t, first.MeanFitness, again.MeanFitness, "chunk-ordered fold must be bit-stable")
	}
}
