package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/senderpool/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// アイデンティティ
	IdentityService IdentityServiceInterface

	// ターゲット・リスト
	TargetService TargetServiceInterface

	// キャンペーン
	CampaignService CampaignServiceInterface

	// スケジュール・配分計画
	Planner     SchedulePlanner
	WeekPlanner WeekPlanner

	// アクティビティログ
	Activity ActivityReader

	// コメントテンプレート
	Templates TemplateStore
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用系のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	identityHandler := NewIdentityHandler(deps.IdentityService)
	targetHandler := NewTargetHandler(deps.TargetService)
	campaignHandler := NewCampaignHandler(deps.CampaignService)
	scheduleHandler := NewScheduleHandler(deps.Planner)
	planHandler := NewPlanHandler(deps.IdentityService, deps.WeekPlanner)
	activityHandler := NewActivityHandler(deps.Activity)
	templateHandler := NewTemplateHandler(deps.Templates)

	// --- 運用APIのルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アイデンティティ管理
		r.Route("/api/identities", func(r chi.Router) {
			r.Get("/", identityHandler.List)
			r.Post("/", identityHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", identityHandler.Get)
				r.Post("/pause", identityHandler.Pause)
				r.Post("/resume", identityHandler.Resume)
				r.Post("/expire", identityHandler.Expire)
				r.Put("/quotas", identityHandler.UpdateQuotas)
				r.Get("/plan", planHandler.Week)
			})
		})

		// ターゲットとクールダウン状態
		r.Route("/api/targets", func(r chi.Router) {
			r.Get("/", targetHandler.ListTargets)
			r.Get("/evaluate", targetHandler.Evaluate)
		})

		// ターゲットリスト
		r.Route("/api/lists", func(r chi.Router) {
			r.Get("/", targetHandler.ListLists)
			r.Post("/", targetHandler.ImportList)
			r.Get("/{id}", targetHandler.GetList)
		})

		// キャンペーン管理
		r.Route("/api/campaigns", func(r chi.Router) {
			r.Get("/", campaignHandler.List)
			r.Post("/", campaignHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", campaignHandler.Get)
				r.Get("/items", campaignHandler.Items)

				// POST /api/campaigns/{id}/start - 配分処理を伴うため開始専用のレート制限を追加
				r.With(deps.RateLimiter.CampaignStartMiddleware()).Post("/start", campaignHandler.Start)
				r.Post("/pause", campaignHandler.Pause)
				r.Post("/resume", campaignHandler.Resume)
				r.Post("/cancel", campaignHandler.Cancel)
			})
		})

		r.Get("/api/schedule", scheduleHandler.Today)
		r.Get("/api/activity", activityHandler.List)

		// コメントテンプレート
		r.Route("/api/templates", func(r chi.Router) {
			r.Get("/", templateHandler.List)
			r.Post("/", templateHandler.Create)
		})
	})

	return r
}
