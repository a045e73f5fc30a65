package domain

import "time"

// Question is a single multiple-choice question with a 0-based correct index.
// Options are never mutated after creation; shuffling produces a copy.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"` // 2 to 10 entries
	CorrectIndex int      `json:"correctIndex"`
}

// Valid reports whether the question satisfies the bank invariants.
func (q Question) Valid() bool {
	if len(q.Options) < 2 || len(q.Options) > 10 {
		return false
	}
	return q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
}

// Participant holds the score state for one registered player.
// Level is always derived from Points and never drifts on its own;
// Version backs the store's optimistic concurrency check.
type Participant struct {
	ID             int64     `json:"id"`
	DisplayName    string    `json:"displayName"`
	Points         int       `json:"points"`
	Level          int       `json:"level"`
	Streak         int       `json:"streak"`
	PointsThisWeek int       `json:"pointsThisWeek"`
	LastAnswerAt   time.Time `json:"lastAnswerAt"`
	Version        int64     `json:"version"`
}

// Season is a bounded scoring period. Exactly one season is active at a time.
// LastWeeklyBonusAt rides on the record so a restart over a week boundary
// still grants that week's bonus.
type Season struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"startedAt"`
	Label             string    `json:"label"`
	LastWeeklyBonusAt time.Time `json:"lastWeeklyBonusAt"`
}

// Outcome classifies the resolution of one participant's answer to a round.
type Outcome int

const (
	OutcomeCorrect Outcome = iota
	OutcomeIncorrect
	OutcomeDuplicate
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeExpired:
		return "expired"
	}
	return "unknown"
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ID             int64  `json:"id"`
	DisplayName    string `json:"displayName"`
	Points         int    `json:"points"`
	Level          int    `json:"level"`
	PointsThisWeek int    `json:"pointsThisWeek"`
}

// Leaderboard captures the ordered scoreboard at one point in time.
type Leaderboard struct {
	SeasonID  string             `json:"seasonId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SeasonRank is one archived row of a closed season or weekly ranking.
type SeasonRank struct {
	Rank        int    `json:"rank"`
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
	Bonus       int    `json:"bonus"`
}

// SeasonSummary reports the result of closing a season or applying a
// weekly bonus, for notification and archiving.
type SeasonSummary struct {
	SeasonID string       `json:"seasonId"`
	Label    string       `json:"label"`
	ClosedAt time.Time    `json:"closedAt"`
	Top      []SeasonRank `json:"top"`
}
