package scoring

import (
	"time"

	"github.com/quizward/quizward/internal/domain"
)

// Policy maps an answer outcome and a prior participant state to the next
// state. It is a pure value type; the caller owns persistence.
type Policy struct {
	PointsPerCorrect int
	StartingPoints   int
	StreakLength     int // streak multiple that grants a bonus; 0 disables
	StreakBonus      int
	MissPenalty      int // subtracted on a miss, floored at 0; 0 disables
	LevelBase        int
	LevelStep        int
}

// Default mirrors the long-standing production knobs.
func Default() Policy {
	return Policy{
		PointsPerCorrect: 35,
		StartingPoints:   50,
		StreakLength:     5,
		StreakBonus:      50,
		MissPenalty:      0,
		LevelBase:        50,
		LevelStep:        50,
	}
}

// Award is the delta applied by one outcome, for notification text.
type Award struct {
	Points      int
	StreakBonus bool
}

// Apply returns the participant state after one resolved answer.
// Duplicate and expired outcomes change nothing; the zero Award tells the
// caller to suppress any "you scored" notification.
func (p Policy) Apply(state domain.Participant, outcome domain.Outcome, now time.Time) (domain.Participant, Award) {
	award := Award{}
	switch outcome {
	case domain.OutcomeCorrect:
		award.Points = p.PointsPerCorrect
		state.Streak++
		if p.StreakLength > 0 && state.Streak >= p.StreakLength {
			award.Points += p.StreakBonus
			award.StreakBonus = true
			state.Streak = 0
		}
		state.Points += award.Points
		state.PointsThisWeek += award.Points
		state.LastAnswerAt = now
	case domain.OutcomeIncorrect:
		state.Streak = 0
		if p.MissPenalty > 0 {
			state.Points -= p.MissPenalty
			if state.Points < 0 {
				state.Points = 0
			}
			award.Points = -p.MissPenalty
		}
		state.LastAnswerAt = now
	default:
		return state, award
	}
	state.Level = p.Level(state.Points)
	return state, award
}

// Level derives the level from points: 1 + max(0, points-base)/step.
// It is recomputed on every update and is monotone non-decreasing in points.
func (p Policy) Level(points int) int {
	step := p.LevelStep
	if step <= 0 {
		step = 50
	}
	over := points - p.LevelBase
	if over < 0 {
		over = 0
	}
	return 1 + over/step
}

// NewParticipant builds the initial state for a first registration.
func (p Policy) NewParticipant(id int64, displayName string) domain.Participant {
	return domain.Participant{
		ID:          id,
		DisplayName: displayName,
		Points:      p.StartingPoints,
		Level:       p.Level(p.StartingPoints),
	}
}
