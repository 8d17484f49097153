package model

import "time"

// User はプライマリデータストアに保持するユーザープロフィールを表す。
// FirebaseUIDが両データストア共通の結合キーとなる。
type User struct {
	ID          string
	FirebaseUID string
	Email       string
	Name        *string
	PhotoURL    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserStub はセカンダリデータストアの外部キー用アンカー行。
// プロフィール情報は複製せず、作成後は更新しない。
type UserStub struct {
	FirebaseUID string
	CreatedAt   time.Time
}

// Bookmark はユーザーが保存した論文・書籍への参照を表す。
// コンテンツ本体は複製しない。
type Bookmark struct {
	ID           string
	FirebaseUID  string
	ResourceType ResourceType
	ResourceID   string
	CreatedAt    time.Time
}

// ResourceType はブックマーク対象の種別。
type ResourceType string

const (
	ResourceTypePaper ResourceType = "paper"
	ResourceTypeBook  ResourceType = "book"
)

// IsValid はResourceTypeが定義済みの値かどうかを返す。
func (t ResourceType) IsValid() bool {
	return t == ResourceTypePaper || t == ResourceTypeBook
}
