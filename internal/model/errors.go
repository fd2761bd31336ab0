// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, cart, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAmbiguousMatch = "AMBIGUOUS_MATCH"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeSchema         = "SCHEMA_MISMATCH"
	ErrCodeTransport      = "STORE_UNAVAILABLE"
	ErrCodeAuth           = "AUTH_FAILED"
	ErrCodePartialFailure = "PARTIAL_FAILURE"
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeForbidden      = "FORBIDDEN"
)

// エラー分類のセンチネル。errors.Is で分類判定に使う。
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrSchema         = errors.New("schema error")
	ErrTransport      = errors.New("transport error")
	ErrAuth           = errors.New("auth error")
	ErrPartialFailure = errors.New("partial failure")
)

// ValidationError は入力の形式・パターン違反を表す。リトライ不可。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is は ErrValidation との比較を可能にする。
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError はドキュメントの不在、または検索結果が0件であることを表す。
type NotFoundError struct {
	Collection string
	ID         string // ドキュメントIDまたは検索キー
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s: not found", e.Collection, e.ID)
}

// Is は ErrNotFound との比較を可能にする。
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousMatchError はキーワード検索が複数件に一致したことを表す。
// NotFound の一種として扱う（一意に解決できなかった）。
type AmbiguousMatchError struct {
	Collection string
	Key        string
	Matches    []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%s: %q matches %d documents: %s",
		e.Collection, e.Key, len(e.Matches), strings.Join(e.Matches, ", "))
}

// Is は ErrNotFound との比較を可能にする。
func (e *AmbiguousMatchError) Is(target error) bool { return target == ErrNotFound }

// ConflictError は並行書き込みによるバージョン不一致を表す。
// 呼び出し元は操作全体をやり直す必要がある。
type ConflictError struct {
	Collection string
	ID         string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s/%s: concurrent modification detected", e.Collection, e.ID)
}

// Is は ErrConflict との比較を可能にする。
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// SchemaError はドキュメントのフィールドが期待する形をしていないことを表す。
type SchemaError struct {
	Collection string
	ID         string
	Field      string
	Reason     string
}

func (e *SchemaError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("%s: field %q: %s", e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s/%s: field %q: %s", e.Collection, e.ID, e.Field, e.Reason)
}

// Is は ErrSchema との比較を可能にする。
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// TransportError はストアまたはIdPとのI/O失敗を表す。
// このパッケージ自身はリトライしない。
type TransportError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *TransportError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is は ErrTransport との比較を可能にする。
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// AuthError は認証情報の検証失敗を表す。
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed: %s: %v", e.Reason, e.Err)
	}
	return "auth failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is は ErrAuth との比較を可能にする。
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// PartialFailureError は2段階書き込みの途中で失敗したことを表す。
// Committed は書き込み済みの側、Failed は失敗した側を
// "collection/id" 形式で示し、呼び出し元が整合を取れるようにする。
type PartialFailureError struct {
	Committed []string
	Failed    []string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure: committed [%s], failed [%s]: %v",
		strings.Join(e.Committed, ", "), strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// Is は ErrPartialFailure との比較を可能にする。
func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// ToAPIError はドメインエラーをAPIレスポンス用のAPIErrorに変換する。
// 分類できないエラーはnilを返す（呼び出し側で内部エラーとして扱う）。
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var (
		verr *ValidationError
		amb  *AmbiguousMatchError
		nf   *NotFoundError
		cerr *ConflictError
		serr *SchemaError
		terr *TransportError
		aerr *AuthError
		perr *PartialFailureError
	)
	switch {
	case errors.As(err, &perr):
		return &APIError{
			Code:     ErrCodePartialFailure,
			Message:  perr.Error(),
			Category: "system",
			Action:   "同期処理（enrollments/sync）を実行して整合性を回復してください。",
		}
	case errors.As(err, &verr):
		return &APIError{
			Code:     ErrCodeValidation,
			Message:  fmt.Sprintf("入力値が不正です: %s（%s）", verr.Field, verr.Reason),
			Category: "validation",
			Action:   "入力内容を確認してください。",
		}
	case errors.As(err, &amb):
		return &APIError{
			Code:     ErrCodeAmbiguousMatch,
			Message:  fmt.Sprintf("「%s」に一致する候補が複数あります: %s", amb.Key, strings.Join(amb.Matches, ", ")),
			Category: "catalog",
			Action:   "コース名を正確に指定してください。",
		}
	case errors.As(err, &nf):
		return &APIError{
			Code:     ErrCodeNotFound,
			Message:  fmt.Sprintf("指定されたデータが見つかりません: %s/%s", nf.Collection, nf.ID),
			Category: "catalog",
			Action:   "IDを確認してください。",
		}
	case errors.As(err, &cerr):
		return &APIError{
			Code:     ErrCodeConflict,
			Message:  "他の操作と競合しました。",
			Category: "cart",
			Action:   "もう一度お試しください。",
		}
	case errors.As(err, &serr):
		return &APIError{
			Code:     ErrCodeSchema,
			Message:  fmt.Sprintf("保存データの形式が不正です: %s", serr.Field),
			Category: "system",
			Action:   "管理者に連絡してください。",
		}
	case errors.As(err, &aerr):
		return &APIError{
			Code:     ErrCodeAuth,
			Message:  "認証に失敗しました。",
			Category: "auth",
			Action:   "メールアドレスとパスワードを確認してください。",
		}
	case errors.As(err, &terr):
		return &APIError{
			Code:     ErrCodeTransport,
			Message:  "データストアに接続できませんでした。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
	return nil
}
