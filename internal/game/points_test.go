package game

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsForStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	cases := []struct {
		effort   Effort
		min, max int
	}{
		{EffortSeed, 5, 15},
		{EffortSapling, 20, 50},
		{EffortOak, 60, 150},
	}
	for _, tc := range cases {
		t.Run(string(tc.effort), func(t *testing.T) {
			seen := map[int]bool{}
			for i := 0; i < 2000; i++ {
				p, err := PointsFor(rng, tc.effort)
				require.NoError(t, err)
				require.GreaterOrEqual(t, p, tc.min)
				require.LessOrEqual(t, p, tc.max)
				seen[p] = true
			}
			assert.True(t, seen[tc.min], "min never drawn")
			assert.True(t, seen[tc.max], "max never drawn")
		})
	}
}

func TestPointsForUnknownEffort(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	_, err := PointsFor(rng, Effort("redwood"))
	require.Error(t, err)
}

func TestPointsForCustomRange(t *testing.T) {
	rules := DefaultRules()
	rules.EffortPoints[EffortSeed] = PointRange{Min: 9, Max: 9}
	p, err := rules.PointsFor(rand.New(rand.NewPCG(3, 4)), EffortSeed)
	require.NoError(t, err)
	assert.Equal(t, 9, p)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(499))
	assert.Equal(t, 2, LevelFor(500))
	assert.Equal(t, 6, LevelFor(2500))
	assert.Equal(t, 1, LevelFor(-20))

	prev := LevelFor(0)
	for p := 1; p <= 10_000; p += 37 {
		lvl := LevelFor(p)
		require.GreaterOrEqual(t, lvl, prev, "level decreased at %d points", p)
		prev = lvl
	}
}

func TestParseEffort(t *testing.T) {
	e, err := ParseEffort(" Oak ")
	require.NoError(t, err)
	assert.Equal(t, EffortOak, e)

	_, err = ParseEffort("pine")
	require.Error(t, err)
}

func TestTreeForUnlocksByLevel(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 200; i++ {
		assert.Contains(t, commonTrees, TreeFor(rng, 1))
	}
	legendary := false
	for i := 0; i < 500; i++ {
		tree := TreeFor(rng, 20)
		for _, l := range legendaryTrees {
			if tree == l {
				legendary = true
			}
		}
	}
	assert.True(t, legendary)
}
