package model

import "time"

const (
	// MinMoodScore は気分スコアの下限。
	MinMoodScore = 1
	// MaxMoodScore は気分スコアの上限。
	MaxMoodScore = 10
)

// Journal はユーザーの日記エントリを表す。
// MoodScoreは常に[1,10]の範囲に収まる。
type Journal struct {
	ID          string
	FirebaseUID string
	Title       string
	Content     string
	MoodScore   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JournalUpdate は日記の部分更新内容。nilのフィールドは変更しない。
type JournalUpdate struct {
	Title     *string
	Content   *string
	MoodScore *int
}

// MoodPoint は気分推移グラフの1点。日記1件につき1点で、同日の集約は行わない。
type MoodPoint struct {
	Date time.Time
	Mood int
}

// ValidMoodScore はスコアが[1,10]の範囲内かどうかを返す。
func ValidMoodScore(score int) bool {
	return score >= MinMoodScore && score <= MaxMoodScore
}
