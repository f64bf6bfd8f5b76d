package game

import "time"

// AdvanceDaily applies a log made on day to the daily streak. lastLog is the
// user's previous log date, nil before the first log.
//
// A log earlier than lastLog matches no rule: the counters and start date are
// left as they were and only LastUpdated moves.
func AdvanceDaily(lastLog *time.Time, day time.Time, s Streak) (Streak, Transition) {
	day = DateOf(day)
	var tr Transition
	if lastLog == nil {
		s.CurrentCount = 1
		s.StartedAt = &day
		tr = TransitionStarted
	} else {
		prev := DateOf(*lastLog)
		next := prev.AddDate(0, 0, 1)
		switch {
		case day.Equal(prev):
			tr = TransitionHeld
		case day.Equal(next):
			s.CurrentCount++
			tr = TransitionExtended
		case day.After(next):
			s.CurrentCount = 1
			s.StartedAt = &day
			tr = TransitionReset
		default:
			tr = TransitionBackdated
		}
	}
	s.refreshBest()
	s.LastUpdated = &day
	return s, tr
}
