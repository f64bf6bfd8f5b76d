package game

import (
	"fmt"
	"strings"
	"time"
)

type StreakType string

const (
	StreakDaily   StreakType = "daily"
	StreakWeekly  StreakType = "weekly"
	StreakMonthly StreakType = "monthly"
	// StreakYearly is persisted and seeded but never advanced.
	StreakYearly StreakType = "yearly"
)

// StreakTypes lists every streak type in the order they are seeded.
var StreakTypes = []StreakType{StreakDaily, StreakWeekly, StreakMonthly, StreakYearly}

func (t StreakType) IsValid() bool {
	switch t {
	case StreakDaily, StreakWeekly, StreakMonthly, StreakYearly:
		return true
	default:
		return false
	}
}

func ParseStreakType(input string) (StreakType, error) {
	t := StreakType(strings.TrimSpace(strings.ToLower(input)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid streak type: %q", input)
	}
	return t, nil
}

// StreakMeta holds tracker bookkeeping that does not fit the fixed columns.
// It is stored as the streak's JSON metadata, keyed like the fields below.
type StreakMeta struct {
	CurrentWeek        string `json:"current_week,omitempty"`
	DaysActiveThisWeek int    `json:"days_active_this_week,omitempty"`
	LastActiveWeek     string `json:"last_active_week,omitempty"`
	LastActiveMonth    string `json:"last_active_month,omitempty"`
}

// Streak is the persisted state of one (user, type) streak.
type Streak struct {
	Type         StreakType
	CurrentCount int
	BestCount    int
	StartedAt    *time.Time
	LastUpdated  *time.Time
	Meta         StreakMeta
}

// NewStreak returns the zero-count record created at registration.
func NewStreak(t StreakType) Streak {
	return Streak{Type: t}
}

func (s *Streak) refreshBest() {
	if s.CurrentCount > s.BestCount {
		s.BestCount = s.CurrentCount
	}
}

// StreakSet carries one record per streak type.
type StreakSet struct {
	Daily   Streak
	Weekly  Streak
	Monthly Streak
	Yearly  Streak
}

// NewStreakSet returns a set with every type seeded at zero.
func NewStreakSet() StreakSet {
	return StreakSet{
		Daily:   NewStreak(StreakDaily),
		Weekly:  NewStreak(StreakWeekly),
		Monthly: NewStreak(StreakMonthly),
		Yearly:  NewStreak(StreakYearly),
	}
}

func (s StreakSet) Get(t StreakType) Streak {
	switch t {
	case StreakDaily:
		return s.Daily
	case StreakWeekly:
		return s.Weekly
	case StreakMonthly:
		return s.Monthly
	default:
		return s.Yearly
	}
}

func (s *StreakSet) Set(st Streak) {
	switch st.Type {
	case StreakDaily:
		s.Daily = st
	case StreakWeekly:
		s.Weekly = st
	case StreakMonthly:
		s.Monthly = st
	case StreakYearly:
		s.Yearly = st
	}
}

// Transition classifies what an advance did to a streak's counter.
type Transition string

const (
	TransitionStarted   Transition = "started"
	TransitionHeld      Transition = "held"
	TransitionExtended  Transition = "extended"
	TransitionReset     Transition = "reset"
	TransitionBackdated Transition = "backdated"
	// TransitionTracked means the period bookkeeping changed but no period closed.
	TransitionTracked Transition = "tracked"
)
