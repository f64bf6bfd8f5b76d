package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

type Effort string

const (
	EffortSeed    Effort = "seed"
	EffortSapling Effort = "sapling"
	EffortOak     Effort = "oak"
)

// Efforts lists the effort tiers from smallest to largest reward.
var Efforts = []Effort{EffortSeed, EffortSapling, EffortOak}

func (e Effort) IsValid() bool {
	switch e {
	case EffortSeed, EffortSapling, EffortOak:
		return true
	default:
		return false
	}
}

func ParseEffort(input string) (Effort, error) {
	e := Effort(strings.TrimSpace(strings.ToLower(input)))
	if !e.IsValid() {
		return "", fmt.Errorf("invalid effort level: %q", input)
	}
	return e, nil
}

// PointRange is an inclusive reward range.
type PointRange struct {
	Min int
	Max int
}

const DefaultPointsPerLevel = 500

// Rules are the tunable reward parameters of the game.
type Rules struct {
	EffortPoints   map[Effort]PointRange
	PointsPerLevel int
	Milestones     []MilestoneRule
}

func DefaultRules() Rules {
	return Rules{
		EffortPoints: map[Effort]PointRange{
			EffortSeed:    {Min: 5, Max: 15},
			EffortSapling: {Min: 20, Max: 50},
			EffortOak:     {Min: 60, Max: 150},
		},
		PointsPerLevel: DefaultPointsPerLevel,
		Milestones:     DefaultMilestones(),
	}
}

// PointsFor draws the reward for a task uniformly from the effort's range.
func (r Rules) PointsFor(rng *rand.Rand, e Effort) (int, error) {
	pr, ok := r.EffortPoints[e]
	if !ok {
		return 0, fmt.Errorf("invalid effort level: %q", e)
	}
	if pr.Max <= pr.Min {
		return pr.Min, nil
	}
	return pr.Min + rng.IntN(pr.Max-pr.Min+1), nil
}

// LevelFor maps cumulative points to a level, starting at 1.
func (r Rules) LevelFor(totalPoints int) int {
	step := r.PointsPerLevel
	if step <= 0 {
		step = DefaultPointsPerLevel
	}
	if totalPoints < 0 {
		totalPoints = 0
	}
	return totalPoints/step + 1
}

var defaultRules = DefaultRules()

func PointsFor(rng *rand.Rand, e Effort) (int, error) {
	return defaultRules.PointsFor(rng, e)
}

func LevelFor(totalPoints int) int {
	return defaultRules.LevelFor(totalPoints)
}

var (
	commonTrees    = []string{"🌲", "🌳", "🌿"}
	uncommonTrees  = []string{"🌴", "🌵", "🎍"}
	rareTrees      = []string{"🌸", "🍂", "🍄", "🍀"}
	legendaryTrees = []string{"🎋", "🎐", "⛲"}
)

// TreeFor picks the tree planted for a log. Higher levels unlock rarer trees.
func TreeFor(rng *rand.Rand, level int) string {
	pool := append([]string(nil), commonTrees...)
	if level >= 3 {
		pool = append(pool, uncommonTrees...)
	}
	if level >= 7 {
		pool = append(pool, rareTrees...)
	}
	if level >= 15 {
		pool = append(pool, legendaryTrees...)
	}
	return pool[rng.IntN(len(pool))]
}
