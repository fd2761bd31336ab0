// Package cleanup は監査ログの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過したlogsコレクションのエントリを
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/metrics"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// DefaultRetentionDays は監査ログの保持日数の既定値。
const DefaultRetentionDays = 90

// scanPageSize はlogsコレクションを走査する際の1ページの件数。
const scanPageSize = 200

// CleanupJob は保持期間を超過した監査ログの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	store         repository.DocumentStore
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	now           func() time.Time
	RetentionDays int // 監査ログの保持日数（デフォルト: 90）
}

// Option はCleanupJobの設定を変更する。
type Option func(*CleanupJob)

// WithMetrics は削除件数の記録先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(j *CleanupJob) {
		if m != nil {
			j.metrics = m
		}
	}
}

// WithClock は現在時刻の取得元を設定する（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(j *CleanupJob) { j.now = now }
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(store repository.DocumentStore, logger *slog.Logger, opts ...Option) *CleanupJob {
	j := &CleanupJob{
		store:         store,
		logger:        logger,
		metrics:       metrics.Discard,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run は保持期間を超過した監査ログを削除し、削除件数を返す。
// タイムスタンプを解釈できないエントリは削除せずに警告ログを残す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (int, error) {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	expired, err := j.collectExpired(ctx, cutoff)
	if err != nil {
		j.logger.Error("監査ログクリーンアップジョブの走査に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("監査ログの走査に失敗: %w", err)
	}

	deleted := 0
	for _, id := range expired {
		if err := j.store.Delete(ctx, model.CollectionLogs, id); err != nil {
			// 並行して削除済みのものは成功扱い
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			j.metrics.RecordLogsPurged(deleted)
			j.logger.Error("監査ログの削除に失敗しました",
				slog.String("log_id", id),
				slog.Int("deleted_count", deleted),
				slog.String("error", err.Error()),
			)
			return deleted, fmt.Errorf("監査ログ %s の削除に失敗: %w", id, err)
		}
		deleted++
	}

	j.metrics.RecordLogsPurged(deleted)
	j.logger.Info("監査ログクリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// collectExpired はcutoffより古いエントリのIDを集める。
// 走査中の削除でカーソルがずれないよう、削除は走査後にまとめて行う。
func (j *CleanupJob) collectExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	var (
		expired []string
		cursor  string
	)
	for {
		docs, next, err := j.store.ScanPage(ctx, model.CollectionLogs, scanPageSize, cursor)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			entry, err := audit.EntryFromDocument(doc)
			if err != nil {
				j.logger.Warn("監査ログを解釈できないためスキップします",
					slog.String("log_id", doc.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			ts, err := entry.Time()
			if err != nil {
				j.logger.Warn("監査ログのタイムスタンプが不正なためスキップします",
					slog.String("log_id", doc.ID),
					slog.String("timestamp", entry.Timestamp),
				)
				continue
			}
			if ts.Before(cutoff) {
				expired = append(expired, doc.ID)
			}
		}
		if next == "" {
			return expired, nil
		}
		cursor = next
	}
}

// Schedule は起動直後に1回、その後intervalごとにRunを実行する。ctxが終了すると戻る。
func (j *CleanupJob) Schedule(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
