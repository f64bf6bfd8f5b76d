package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"forestlog/internal/domain"
	"forestlog/internal/events"
	"forestlog/internal/game"
	"forestlog/internal/metrics"
	"forestlog/internal/repo"
)

type LogInput struct {
	TaskText    string `validate:"required,min=3,max=500"`
	EffortLevel string `validate:"required,oneof=seed sapling oak"`
}

// LogResult is everything a new log changed.
type LogResult struct {
	Log             domain.Log
	NewTotalPoints  int
	NewLevel        int
	NewStreak       int
	LevelUp         bool
	MilestoneEarned *domain.Milestone
	Streaks         game.StreakSet
}

// CreateLog records a task for today and advances points, level, streaks and
// milestones in a single transaction. Logs of the same user are serialized.
func (e Engine) CreateLog(ctx context.Context, userID string, in LogInput) (LogResult, error) {
	in.TaskText = sanitizeText(in.TaskText)
	in.EffortLevel = strings.ToLower(strings.TrimSpace(in.EffortLevel))
	if err := validateInput(in); err != nil {
		return LogResult{}, err
	}
	effort, err := game.ParseEffort(in.EffortLevel)
	if err != nil {
		return LogResult{}, InputError{Field: "effort_level", Message: err.Error()}
	}

	unlock := e.lockUser(userID)
	defer unlock()

	now := e.now()
	day := e.today(now)
	dayStr := game.FormatDate(day)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return LogResult{}, err
	}
	defer tx.Rollback()

	user, err := e.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return LogResult{}, err
	}

	var points int
	var tree string
	e.draw(func(r *rand.Rand) {
		points, err = e.Rules.PointsFor(r, effort)
		tree = game.TreeFor(r, user.CurrentLevel)
	})
	if err != nil {
		return LogResult{}, InputError{Field: "effort_level", Message: err.Error()}
	}

	l := domain.Log{
		ID:           uuid.NewString(),
		UserID:       userID,
		TaskText:     in.TaskText,
		EffortLevel:  string(effort),
		PointsEarned: points,
		TreeEmoji:    tree,
		LoggedAt:     e.timestamp(now),
		Date:         dayStr,
	}
	if err := e.Repo.InsertLog(ctx, tx, l); err != nil {
		return LogResult{}, fmt.Errorf("insert log: %w", err)
	}

	total := user.TotalPoints + points
	level := e.Rules.LevelFor(total)
	levelUp := level > user.CurrentLevel

	prior, err := e.Repo.GetStreaks(ctx, tx, userID)
	if err != nil {
		return LogResult{}, err
	}
	var lastLog *time.Time
	if user.LastLogDate != nil {
		d, err := game.ParseDate(*user.LastLogDate)
		if err != nil {
			return LogResult{}, fmt.Errorf("user last_log_date: %w", err)
		}
		lastLog = &d
	}

	daily, dailyTr := game.AdvanceDaily(lastLog, day, prior.Daily)
	weekStart, weekEnd := game.WeekBounds(day)
	active, err := e.Repo.CountActiveDays(ctx, tx, userID, game.FormatDate(weekStart), game.FormatDate(weekEnd))
	if err != nil {
		return LogResult{}, err
	}
	weekly, weeklyTr := game.AdvanceWeekly(day, active, prior.Weekly)
	monthly, monthlyTr := game.AdvanceMonthly(day, prior.Monthly)

	next := prior
	for _, st := range []game.Streak{daily, weekly, monthly} {
		if err := e.Repo.UpsertStreak(ctx, tx, userID, st); err != nil {
			return LogResult{}, fmt.Errorf("save %s streak: %w", st.Type, err)
		}
		next.Set(st)
	}

	lastLogDate := dayStr
	if lastLog != nil && lastLog.After(day) {
		lastLogDate = *user.LastLogDate
	}
	if err := e.Repo.UpdateUserStats(ctx, tx, userID, repo.UserStats{
		TotalPoints:  total,
		CurrentLevel: level,
		LastLogDate:  lastLogDate,
		LastActiveAt: e.timestamp(now),
	}); err != nil {
		return LogResult{}, err
	}

	var earned *domain.Milestone
	held, err := e.Repo.MilestoneNames(ctx, tx, userID)
	if err != nil {
		return LogResult{}, err
	}
	if rule, ok := game.EvaluateMilestones(e.Rules.Milestones, daily.CurrentCount, held); ok {
		m := domain.Milestone{
			ID:          uuid.NewString(),
			UserID:      userID,
			BadgeName:   rule.BadgeName,
			BadgeType:   rule.BadgeType,
			Description: rule.Description,
			EarnedAt:    e.timestamp(now),
		}
		inserted, err := e.Repo.InsertMilestone(ctx, tx, m)
		if err != nil {
			return LogResult{}, fmt.Errorf("insert milestone: %w", err)
		}
		if inserted {
			earned = &m
		}
	}

	if err := e.Events.Append(ctx, tx, events.TypeLogCreated, userID, "log", l.ID, userID, events.EventPayload{
		"effort_level":  l.EffortLevel,
		"points_earned": l.PointsEarned,
		"tree_emoji":    l.TreeEmoji,
		"date":          l.Date,
		"daily_streak":  daily.CurrentCount,
	}); err != nil {
		return LogResult{}, err
	}
	if dailyTr == game.TransitionReset {
		if err := e.Events.Append(ctx, tx, events.TypeStreakReset, userID, "streak", string(game.StreakDaily), userID, events.EventPayload{
			"previous_count": prior.Daily.CurrentCount,
			"best_count":     daily.BestCount,
		}); err != nil {
			return LogResult{}, err
		}
	}
	if levelUp {
		if err := e.Events.Append(ctx, tx, events.TypeLevelUp, userID, "user", userID, userID, events.EventPayload{
			"from": user.CurrentLevel,
			"to":   level,
		}); err != nil {
			return LogResult{}, err
		}
	}
	if earned != nil {
		if err := e.Events.Append(ctx, tx, events.TypeMilestoneEarned, userID, "milestone", earned.ID, userID, events.EventPayload{
			"badge_name":   earned.BadgeName,
			"badge_type":   earned.BadgeType,
			"daily_streak": daily.CurrentCount,
		}); err != nil {
			return LogResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return LogResult{}, err
	}

	metrics.LogsCreated.WithLabelValues(l.EffortLevel).Inc()
	metrics.PointsAwarded.Add(float64(points))
	metrics.StreakTransitions.WithLabelValues(string(game.StreakDaily), string(dailyTr)).Inc()
	metrics.StreakTransitions.WithLabelValues(string(game.StreakWeekly), string(weeklyTr)).Inc()
	metrics.StreakTransitions.WithLabelValues(string(game.StreakMonthly), string(monthlyTr)).Inc()
	if levelUp {
		metrics.LevelUps.Inc()
	}
	if earned != nil {
		metrics.MilestonesAwarded.WithLabelValues(earned.BadgeName).Inc()
	}

	log := e.logger().With(zap.String("user_id", userID), zap.String("log_id", l.ID))
	switch dailyTr {
	case game.TransitionReset:
		log.Info("daily streak reset", zap.Int("previous", prior.Daily.CurrentCount))
	case game.TransitionBackdated:
		log.Info("backdated log left daily streak unchanged", zap.String("date", dayStr), zap.Stringp("last_log_date", user.LastLogDate))
	}
	if earned != nil {
		log.Info("milestone earned", zap.String("badge", earned.BadgeName))
	}
	log.Debug("log created",
		zap.Int("points", points),
		zap.Int("total_points", total),
		zap.Int("level", level),
		zap.String("weekly", string(weeklyTr)),
		zap.String("monthly", string(monthlyTr)),
	)

	return LogResult{
		Log:             l,
		NewTotalPoints:  total,
		NewLevel:        level,
		NewStreak:       daily.CurrentCount,
		LevelUp:         levelUp,
		MilestoneEarned: earned,
		Streaks:         next,
	}, nil
}

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 100
)

// ListLogs pages through the user's logs, newest first.
func (e Engine) ListLogs(ctx context.Context, userID string, limit, offset int) ([]domain.Log, error) {
	if limit < 1 || limit > MaxLogLimit {
		return nil, InputError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxLogLimit)}
	}
	if offset < 0 {
		return nil, InputError{Field: "offset", Message: "must not be negative"}
	}
	return e.Repo.ListLogs(ctx, userID, limit, offset)
}

// TodayLogs returns the logs dated today in the configured zone.
func (e Engine) TodayLogs(ctx context.Context, userID string) ([]domain.Log, error) {
	return e.Repo.ListLogsByDate(ctx, userID, game.FormatDate(e.today(e.now())))
}

// WeekPoints returns points per day for the last seven days, oldest first.
func (e Engine) WeekPoints(ctx context.Context, userID string) ([]domain.DayPoints, error) {
	today := e.today(e.now())
	from := today.AddDate(0, 0, -6)
	sums, err := e.Repo.DailyPoints(ctx, userID, game.FormatDate(from), game.FormatDate(today))
	if err != nil {
		return nil, err
	}
	res := make([]domain.DayPoints, 0, 7)
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := game.FormatDate(d)
		res = append(res, domain.DayPoints{Date: key, Day: d.Weekday().String()[:3], Points: sums[key]})
	}
	return res, nil
}

// DeleteLog removes one of the user's logs. Points and streaks are not recalculated.
func (e Engine) DeleteLog(ctx context.Context, userID, logID string) error {
	unlock := e.lockUser(userID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteLog(ctx, tx, userID, logID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeLogDeleted, userID, "log", logID, userID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Streaks returns the user's four streak records.
func (e Engine) Streaks(ctx context.Context, userID string) (game.StreakSet, error) {
	if _, err := e.Repo.GetUser(ctx, nil, userID); err != nil {
		return game.StreakSet{}, err
	}
	return e.Repo.GetStreaks(ctx, nil, userID)
}

// Milestones returns the user's badges, newest first.
func (e Engine) Milestones(ctx context.Context, userID string) ([]domain.Milestone, error) {
	return e.Repo.ListMilestones(ctx, userID)
}
