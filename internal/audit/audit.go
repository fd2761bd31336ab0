// Package audit は状態変更操作の監査ログを記録する。
// 記録はベストエフォートで、失敗しても呼び出し元の操作は失敗させない。
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/courseman/internal/metrics"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// 監査ログのアクション名
const (
	ActionRegisterUser     = "register_user"
	ActionSignIn           = "sign_in"
	ActionSignOut          = "sign_out"
	ActionAddToCart        = "add_to_cart"
	ActionRemoveFromCart   = "remove_from_cart"
	ActionCheckout         = "checkout"
	ActionRegisterPurchase = "register_purchase"
	ActionRemoveUser       = "remove_user"
	ActionAddCourse        = "add_course"
	ActionSyncEnrollments  = "sync_enrollments"
)

// ペイロードのフィールド名
const (
	FieldAction    = "action"
	FieldUserID    = "userId"
	FieldDetails   = "details"
	FieldTimestamp = "timestamp"
)

// Entry は監査ログ1件。
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	UserID    string         `json:"userId"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Time はTimestampを解析して返す。
func (e *Entry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// EntryFromDocument はlogsコレクションのドキュメントをEntryに復元する。
func EntryFromDocument(doc *repository.Document) (*Entry, error) {
	e := &Entry{ID: doc.ID}
	var ok bool
	if e.Action, ok = doc.Data[FieldAction].(string); !ok {
		return nil, &model.SchemaError{Collection: model.CollectionLogs, ID: doc.ID, Field: FieldAction, Reason: "expected string"}
	}
	if e.Timestamp, ok = doc.Data[FieldTimestamp].(string); !ok {
		return nil, &model.SchemaError{Collection: model.CollectionLogs, ID: doc.ID, Field: FieldTimestamp, Reason: "expected string"}
	}
	e.UserID, _ = doc.Data[FieldUserID].(string)
	e.Details, _ = doc.Data[FieldDetails].(map[string]any)
	return e, nil
}

// Recorder は監査ログの記録インターフェース。ワークフローから利用する。
type Recorder interface {
	Record(ctx context.Context, action, actorID string, details map[string]any)
}

// Publisher は監査ログを外部へ配信するインターフェース。
type Publisher interface {
	Publish(ctx context.Context, entry *Entry) error
}

// Emitter はlogsコレクションへの書き込みと、任意のPublisherへの配信を行う。
type Emitter struct {
	store     repository.DocumentStore
	publisher Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// Option はEmitterの設定を変更する。
type Option func(*Emitter)

// WithPublisher は配信先を設定する。
func WithPublisher(p Publisher) Option {
	return func(e *Emitter) { e.publisher = p }
}

// WithMetrics はメトリクス収集先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(e *Emitter) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock は時刻の取得元を設定する（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// NewEmitter はEmitterを生成する。
func NewEmitter(store repository.DocumentStore, opts ...Option) *Emitter {
	e := &Emitter{
		store:   store,
		metrics: metrics.Discard,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// maxIDAttempts はID衝突時に時刻をずらして再試行する回数。
const maxIDAttempts = 3

// Record は監査ログを1件書き込む。エラーは返さず、ログとメトリクスにのみ残す。
// IDは "<actorID>-<UnixNano>"、タイムスタンプは呼び出し時刻のRFC 3339表現。
func (e *Emitter) Record(ctx context.Context, action, actorID string, details map[string]any) {
	ts := e.now().UTC()
	entry := &Entry{
		Action:    action,
		UserID:    actorID,
		Details:   details,
		Timestamp: ts.Format(time.RFC3339Nano),
	}

	data := map[string]any{
		FieldAction:    entry.Action,
		FieldUserID:    entry.UserID,
		FieldTimestamp: entry.Timestamp,
	}
	if len(details) > 0 {
		data[FieldDetails] = details
	}

	var err error
	nanos := ts.UnixNano()
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		entry.ID = fmt.Sprintf("%s-%d", actorID, nanos+int64(attempt))
		err = e.store.Put(ctx, model.CollectionLogs, entry.ID, data, repository.IfAbsent())
		if !errors.Is(err, model.ErrConflict) {
			break
		}
	}
	if err != nil {
		e.metrics.RecordAuditFailure("write")
		e.logger.ErrorContext(ctx, "failed to write audit log",
			slog.String("action", action),
			slog.String("user_id", actorID),
			slog.String("error", err.Error()),
		)
		return
	}

	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, entry); err != nil {
		e.metrics.RecordAuditFailure("publish")
		e.logger.WarnContext(ctx, "failed to publish audit log",
			slog.String("action", action),
			slog.String("log_id", entry.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Discard は何も記録しないRecorder。
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, string, string, map[string]any) {}

// compile-time interface check
var _ Recorder = (*Emitter)(nil)
