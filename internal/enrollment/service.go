// Package enrollment はカート・購入・受講登録のワークフローを提供する。
//
// ストアは単一ドキュメントの原子的な読み書きしか保証しないため、
// 各操作は「再読込 → メモリ上で変更 → バージョン付き書き戻し」の形をとる。
// ユーザーとコースの双方向参照は ユーザー → コース の順に書き込み、
// 後段の失敗は *model.PartialFailureError として呼び出し元に返す。
package enrollment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/auth"
	"github.com/hitoshi/courseman/internal/metrics"
	"github.com/hitoshi/courseman/internal/repository"
	"github.com/hitoshi/courseman/internal/resolver"
	"github.com/hitoshi/courseman/internal/security"
)

// DefaultTimeout は1操作あたりのストア呼び出し全体のタイムアウト既定値。
const DefaultTimeout = 10 * time.Second

// maxEnrollAttempts はコース側の受講者追加を競合時に再試行する上限。
// 受講者追加は集合の和なので、再読込してからのやり直しは安全。
const maxEnrollAttempts = 3

// 操作名（メトリクス・ログ用）
const (
	OpRegisterUser     = "register_user"
	OpSignIn           = "sign_in"
	OpSignOut          = "sign_out"
	OpAddToCart        = "add_to_cart"
	OpRemoveFromCart   = "remove_from_cart"
	OpCheckout         = "checkout"
	OpRegisterPurchase = "register_purchase"
	OpRemoveUser       = "remove_user"
	OpAddCourse        = "add_course"
	OpSyncEnrollments  = "sync_enrollments"
)

// Service はワークフローエンジン。
type Service struct {
	store     repository.DocumentStore
	auth      auth.Provider
	resolver  *resolver.Resolver
	recorder  audit.Recorder
	metrics   metrics.MetricsCollector
	sanitizer security.DescriptionSanitizer
	images    security.ImageChecker
	logger    *slog.Logger
	timeout   time.Duration
	newID     func() string
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithAuthProvider はIdPを設定する。未設定の場合、パスワード付き登録とサインインは失敗する。
func WithAuthProvider(p auth.Provider) Option {
	return func(s *Service) { s.auth = p }
}

// WithResolver は参照解決に使うResolverを設定する。
func WithResolver(r *resolver.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithRecorder は監査ログの記録先を設定する。
func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMetrics はメトリクス収集先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSanitizer はコース説明文のサニタイザーを設定する。
func WithSanitizer(d security.DescriptionSanitizer) Option {
	return func(s *Service) {
		if d != nil {
			s.sanitizer = d
		}
	}
}

// WithImageChecker はコース画像URLの検証を有効にする。
func WithImageChecker(c security.ImageChecker) Option {
	return func(s *Service) { s.images = c }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout は1操作あたりのタイムアウトを設定する。0以下は無効化。
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithIDGenerator はコースIDの生成関数を設定する。
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newID = f
		}
	}
}

// NewService はServiceを生成する。ストア以外の依存は省略可能。
func NewService(store repository.DocumentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		recorder:  audit.Discard,
		metrics:   metrics.Discard,
		sanitizer: security.NewDescriptionSanitizer(),
		logger:    slog.Default(),
		timeout:   DefaultTimeout,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolver.New(store, resolver.WithMetrics(s.metrics), resolver.WithLogger(s.logger))
	}
	return s
}

// begin は操作単位のタイムアウトを設定したコンテキストを返す。
func (s *Service) begin(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// finish は操作結果をメトリクスとログに記録する。
func (s *Service) finish(ctx context.Context, op string, noop bool, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && isPartialFailure(err):
		outcome = metrics.OutcomePartialFailure
	case err != nil:
		outcome = metrics.OutcomeError
	case noop:
		outcome = metrics.OutcomeNoop
	}
	s.metrics.RecordOperation(op, outcome)

	switch outcome {
	case metrics.OutcomeNoop:
		s.logger.InfoContext(ctx, "operation was a no-op", slog.String("operation", op))
	case metrics.OutcomePartialFailure:
		s.logger.ErrorContext(ctx, "operation partially failed", slog.String("operation", op), slog.String("error", err.Error()))
	case metrics.OutcomeError:
		s.logger.WarnContext(ctx, "operation failed", slog.String("operation", op), slog.String("error", err.Error()))
	}
}
