// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, persistence, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodePersistence       = "PERSISTENCE_ERROR"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeCrisisAckRequired = "CRISIS_ACK_REQUIRED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// データストア識別子。PersistenceErrorで失敗したストアを示す。
const (
	StorePrimary   = "primary"
	StoreSecondary = "secondary"
)

// ValidationError は必須入力の欠落や不正な入力を表す。400として返す。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError はデータストアの読み書き失敗を表す。500として返す。
// Storeは失敗したデータストア（primary / secondary）を示す。
type PersistenceError struct {
	Store string
	Op    string
	Err   error
}

// Error はerrorインターフェースを実装する。
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Store, e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError はPersistenceErrorを生成する。
func NewPersistenceError(store, op string, err error) *PersistenceError {
	return &PersistenceError{Store: store, Op: op, Err: err}
}

// UpstreamError は外部APIの呼び出し失敗または不正なレスポンスを表す。500として返す。
type UpstreamError struct {
	Service string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Service, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError はUpstreamErrorを生成する。
func NewUpstreamError(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

// NotFoundError は指定リソースが存在しない、または所有者が異なることを表す。
type NotFoundError struct {
	Resource string
	ID       string
}

// Error はerrorインターフェースを実装する。
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError はNotFoundErrorを生成する。
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewCrisisAckRequiredError は危機対応状態のセッションへの送信を拒否するエラーを生成する。
func NewCrisisAckRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCrisisAckRequired,
		Message:  "This session is paused until the crisis resources are acknowledged.",
		Category: "chat",
		Action:   "Review the crisis resources and acknowledge them to continue.",
	}
}

// NewForbiddenError は認証済みユーザーと要求されたユーザーが異なる場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You are not allowed to access another user's data.",
		Category: "auth",
		Action:   "Sign in with the account that owns this data.",
	}
}
