package game

// MilestoneRule awards BadgeName when the daily streak reaches Threshold exactly.
type MilestoneRule struct {
	Threshold   int
	BadgeName   string
	BadgeType   string
	Description string
}

const BadgeTypeStreak = "streak"

func DefaultMilestones() []MilestoneRule {
	return []MilestoneRule{
		{Threshold: 3, BadgeName: "3-Day Starter", BadgeType: BadgeTypeStreak, Description: "Logged for 3 consecutive days"},
		{Threshold: 7, BadgeName: "7-Day Warrior", BadgeType: BadgeTypeStreak, Description: "Logged for 7 consecutive days"},
		{Threshold: 10, BadgeName: "10-Day Champion", BadgeType: BadgeTypeStreak, Description: "Logged for 10 consecutive days"},
		{Threshold: 30, BadgeName: "30-Day Legend", BadgeType: BadgeTypeStreak, Description: "Logged for 30 consecutive days"},
	}
}

// EvaluateMilestones returns the first rule matching dailyCount whose badge is
// not in earned. At most one badge is returned per call. A count that jumps
// past a threshold does not award it retroactively.
func EvaluateMilestones(rules []MilestoneRule, dailyCount int, earned map[string]bool) (MilestoneRule, bool) {
	for _, r := range rules {
		if r.Threshold != dailyCount {
			continue
		}
		if earned[r.BadgeName] {
			continue
		}
		return r, true
	}
	return MilestoneRule{}, false
}
