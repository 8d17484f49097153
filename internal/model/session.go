package model

import "time"

// Role はメッセージの発言者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatSession は1回の対話セッションを表す。
// Summaryは対話終了後にワーカーが事後的に設定する。
// CrisisAtが非nilの間、セッションは危機対応状態にありユーザーの確認が必要となる。
type ChatSession struct {
	ID           string
	FirebaseUID  string
	Title        string
	Summary      *string
	CrisisAt     *time.Time
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InCrisis はセッションが危機対応状態かどうかを返す。
func (s *ChatSession) InCrisis() bool {
	return s.CrisisAt != nil
}

// Message はセッション内の1メッセージ。追記のみで更新しない。
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ChatTurn は補完プロバイダーに渡す役割と本文の組。
type ChatTurn struct {
	Role    Role
	Content string
}
