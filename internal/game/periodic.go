package game

import "time"

// WeeklyActiveDaysRequired is how many distinct active days make a week count.
const WeeklyActiveDaysRequired = 5

// AdvanceWeekly records daysActive (distinct log dates in day's ISO week) and,
// when day is a Sunday and the week qualifies, closes the week.
//
// A qualifying week whose last log falls before Sunday never closes. Any
// credited week other than the one just before day's week restarts the
// count, including a second Sunday log in the week already credited.
func AdvanceWeekly(day time.Time, daysActive int, s Streak) (Streak, Transition) {
	day = DateOf(day)
	current := WeekID(day)
	s.Meta.CurrentWeek = current
	s.Meta.DaysActiveThisWeek = daysActive
	tr := TransitionTracked

	if daysActive >= WeeklyActiveDaysRequired && day.Weekday() == time.Sunday {
		last := s.Meta.LastActiveWeek
		switch {
		case last == "":
			s.CurrentCount = 1
			tr = TransitionStarted
		case last == WeekID(day.AddDate(0, 0, -7)):
			s.CurrentCount++
			tr = TransitionExtended
		default:
			s.CurrentCount = 1
			tr = TransitionReset
		}
		s.Meta.LastActiveWeek = current
		s.refreshBest()
	}
	s.LastUpdated = &day
	return s, tr
}

// AdvanceMonthly credits day's calendar month. Any activity qualifies a month.
func AdvanceMonthly(day time.Time, s Streak) (Streak, Transition) {
	day = DateOf(day)
	current := MonthID(day)
	last := s.Meta.LastActiveMonth
	var tr Transition
	switch {
	case last == "":
		s.CurrentCount = 1
		s.StartedAt = &day
		tr = TransitionStarted
	case last == current:
		tr = TransitionHeld
	case last == previousMonthID(day):
		s.CurrentCount++
		tr = TransitionExtended
	default:
		s.CurrentCount = 1
		s.StartedAt = &day
		tr = TransitionReset
	}
	s.Meta.LastActiveMonth = current
	s.refreshBest()
	s.LastUpdated = &day
	return s, tr
}
