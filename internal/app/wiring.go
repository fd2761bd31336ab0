package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/auth"
	"github.com/hitoshi/courseman/internal/config"
	"github.com/hitoshi/courseman/internal/database"
	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/metrics"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
	"github.com/hitoshi/courseman/internal/resolver"
	"github.com/hitoshi/courseman/internal/security"
)

// healthProbeID はヘルスチェックで存在確認するダミーのドキュメントID。
const healthProbeID = "__health__"

// Components はserve・worker・CLIで共有する依存関係一式。
type Components struct {
	Store    repository.DocumentStore
	Service  *enrollment.Service
	Auth     auth.Provider // IdPを設定していない場合はnil
	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	closers []func() error
}

// Close は開いた接続を逆順に閉じる。
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// HealthCheck はストアへの疎通を確認する。
func (c *Components) HealthCheck(ctx context.Context) error {
	_, err := c.Store.Exists(ctx, model.CollectionCourses, healthProbeID)
	return err
}

// OpenStore は設定されたバックエンドのストアを開き、クローズ関数と共に返す。
func OpenStore(ctx context.Context, cfg *config.Config) (repository.DocumentStore, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		slog.Info("firestore client initialized", slog.String("project_id", cfg.ProjectID))
		return repository.NewFirestoreStore(client), client.Close, nil

	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("database connection established", slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))
		return repository.NewSQLStore(db, repository.DialectPostgres), db.Close, nil

	case config.BackendSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("sqlite database opened", slog.String("path", cfg.SQLitePath))
		return repository.NewSQLStore(db, repository.DialectSQLite), db.Close, nil

	case config.BackendMemory:
		slog.Warn("using in-memory store; data is lost on exit")
		return repository.NewMemoryStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Build は設定から依存関係を組み立てる。
// ストアはレイテンシ計測でラップし、監査ログ・IdP・画像検証は設定がある場合のみ有効にする。
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	c, err := buildBase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	emitterOpts := []audit.Option{audit.WithMetrics(c.Metrics)}
	if cfg.AuditRedisAddr != "" {
		pub, err := audit.NewRedisPublisher(ctx, cfg.AuditRedisAddr, cfg.AuditRedisChannel)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect audit publisher: %w", err)
		}
		c.closers = append(c.closers, pub.Close)
		emitterOpts = append(emitterOpts, audit.WithPublisher(pub))
		slog.Info("audit publisher enabled", slog.String("channel", pub.Channel()))
	}

	opts := []enrollment.Option{
		enrollment.WithRecorder(audit.NewEmitter(c.Store, emitterOpts...)),
		enrollment.WithMetrics(c.Metrics),
		enrollment.WithTimeout(cfg.StoreTimeout),
		enrollment.WithResolver(resolver.New(c.Store,
			resolver.WithConcurrency(cfg.ResolveConcurrency),
			resolver.WithMetrics(c.Metrics),
		)),
	}

	if cfg.AuthEnabled() {
		provider, err := auth.NewFirebaseProvider(ctx, auth.FirebaseConfig{
			ProjectID:       cfg.ProjectID,
			CredentialsFile: cfg.CredentialsFile,
			APIKey:          cfg.FirebaseAPIKey,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
		}
		c.Auth = provider
		opts = append(opts, enrollment.WithAuthProvider(provider))
	} else {
		slog.Warn("FIRESTORE_PROJECT_ID is not set; sign-in and password registration are disabled")
	}

	if cfg.CourseImageCheck {
		opts = append(opts, enrollment.WithImageChecker(security.NewImageGuard(cfg.ImageCheckTimeout, true)))
	}

	c.Service = enrollment.NewService(c.Store, opts...)
	return c, nil
}

// buildBase はメトリクスと計測付きストアだけを組み立てる（worker用）。
func buildBase(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{Registry: prometheus.NewRegistry()}
	c.Metrics = metrics.NewCollector(c.Registry)

	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeStore)
	c.Store = repository.NewInstrumentedStore(store, c.Metrics)
	return c, nil
}

// rejectingVerifier はIdP未設定時のトークン検証。常に認証エラーを返す。
type rejectingVerifier struct{}

func (rejectingVerifier) VerifyToken(context.Context, string) (string, error) {
	return "", &model.AuthError{Reason: "identity provider is not configured"}
}
