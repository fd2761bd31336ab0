package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/courseman/internal/middleware"
)

// EnrollmentService はAPI全体が必要とするワークフロー操作。
// enrollment.Serviceが実装する。
type EnrollmentService interface {
	AuthServiceInterface
	CourseServiceInterface
	AccountServiceInterface
	AdminServiceInterface
}

// HealthCheckFunc はデータストアの疎通確認を行う関数。
type HealthCheckFunc func(ctx context.Context) error

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusCounter     middleware.StatusCounter

	// ワークフロー
	Service EnrollmentService

	// 運用エンドポイント
	HealthCheck    HealthCheckFunc
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → HTTPMetrics → SecurityHeaders → CORS
//	→ (認証が必要なルート) Auth → RateLimit(General) → (管理者ルート) RequireAdmin
//
// /health、/metrics、/auth/register、/auth/login は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusCounter != nil {
		r.Use(middleware.NewHTTPMetricsMiddleware(deps.StatusCounter))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.Service)
	courseHandler := NewCourseHandler(deps.Service)
	accountHandler := NewAccountHandler(deps.Service)
	adminHandler := NewAdminHandler(deps.Service)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthCheck).ServeHTTP)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/api/courses", courseHandler.ListCourses)

		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", accountHandler.Me)
			r.Put("/cart/{courseID}", accountHandler.AddToCart)
			r.Delete("/cart/{courseID}", accountHandler.RemoveFromCart)
			// チェックアウトは専用のレート制限を追加
			r.With(deps.RateLimiter.CheckoutMiddleware()).Post("/checkout", accountHandler.Checkout)
			r.Post("/enrollments/sync", accountHandler.SyncEnrollments)
		})

		// 管理者ルート
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(deps.Service))

			r.Post("/courses", courseHandler.AddCourse)
			r.Get("/users", adminHandler.ListUsers)
			r.Delete("/users", adminHandler.RemoveUser)
			r.Post("/purchases", adminHandler.RegisterPurchase)
		})
	})

	return r
}
