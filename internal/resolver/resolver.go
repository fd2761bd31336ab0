// Package resolver はドキュメント内のID配列を参照先ドキュメントに解決する。
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/courseman/internal/metrics"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// DefaultConcurrency は同時に発行する読み込みの既定上限。
const DefaultConcurrency = 8

// Resolved は参照解決の結果。
// Documentsは入力順を保ち、参照先が存在しなかったIDはDanglingに入力順で入る。
type Resolved struct {
	Documents []*repository.Document
	Dangling  []string
}

// IDs は解決できたドキュメントのIDを返す。
func (r *Resolved) IDs() []string {
	ids := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		ids = append(ids, d.ID)
	}
	return ids
}

// Resolver は参照IDの並行読み込みを行う。
type Resolver struct {
	store       repository.DocumentStore
	concurrency int
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// Option はResolverの設定を変更する。
type Option func(*Resolver)

// WithConcurrency は同時読み込み数の上限を設定する。1未満は無視する。
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics はメトリクス収集先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New はResolverを生成する。
func New(store repository.DocumentStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		concurrency: DefaultConcurrency,
		metrics:     metrics.Discard,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve はdoc.Data[field] のID配列をtargetコレクションのドキュメントに解決する。
// フィールドが存在しない場合は空の結果を返し、文字列配列でない場合は *model.SchemaError を返す。
func (r *Resolver) Resolve(ctx context.Context, doc *repository.Document, field, target string) (*Resolved, error) {
	raw, ok := doc.Data[field]
	if !ok || raw == nil {
		return &Resolved{}, nil
	}
	ids, ok := model.StringSlice(raw)
	if !ok {
		return nil, &model.SchemaError{ID: doc.ID, Field: field, Reason: "expected an array of document ids"}
	}
	return r.ResolveIDs(ctx, ids, target)
}

// ResolveIDs はID配列をtargetコレクションのドキュメントに解決する。
// 各IDは独立に読み込み、存在しないIDは警告を記録して結果から除外する。
// NotFound以外の読み込みエラーが発生した場合は処理全体を失敗させる。
func (r *Resolver) ResolveIDs(ctx context.Context, ids []string, target string) (*Resolved, error) {
	if len(ids) == 0 {
		return &Resolved{}, nil
	}

	found := make([]*repository.Document, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			d, err := r.store.Get(gctx, target, id)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return nil
				}
				return err
			}
			found[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Resolved{Documents: make([]*repository.Document, 0, len(ids))}
	for i, d := range found {
		if d == nil {
			r.logger.WarnContext(ctx, "referenced document not found",
				slog.String("collection", target),
				slog.String("id", ids[i]),
			)
			r.metrics.RecordDanglingReference(target)
			out.Dangling = append(out.Dangling, ids[i])
			continue
		}
		out.Documents = append(out.Documents, d)
	}
	return out, nil
}
