package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/senderpool/internal/automation"
	"github.com/hitoshi/senderpool/internal/campaign"
	"github.com/hitoshi/senderpool/internal/config"
	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/database"
	"github.com/hitoshi/senderpool/internal/distribution"
	"github.com/hitoshi/senderpool/internal/handler"
	"github.com/hitoshi/senderpool/internal/identity"
	"github.com/hitoshi/senderpool/internal/logger"
	"github.com/hitoshi/senderpool/internal/metrics"
	"github.com/hitoshi/senderpool/internal/middleware"
	"github.com/hitoshi/senderpool/internal/quota"
	"github.com/hitoshi/senderpool/internal/repository"
	"github.com/hitoshi/senderpool/internal/schedule"
	"github.com/hitoshi/senderpool/internal/security"
	"github.com/hitoshi/senderpool/internal/session"
	"github.com/hitoshi/senderpool/internal/target"
	"github.com/hitoshi/senderpool/internal/textgen"
	"github.com/hitoshi/senderpool/internal/worker/cleanup"
	"github.com/hitoshi/senderpool/internal/worker/rotation"
)

// cleanupInterval はアクティビティログ削除ジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVEL を反映する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("timezone", cfg.Location.String()),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// repositories はPostgreSQLリポジトリ一式。
type repositories struct {
	identities *repository.PostgresIdentityRepo
	registry   *repository.PostgresRegistryRepo
	targets    *repository.PostgresTargetRepo
	campaigns  *repository.PostgresCampaignRepo
	queue      *repository.PostgresQueueRepo
	counters   *repository.PostgresCounterRepo
	activity   *repository.PostgresActivityRepo
	templates  *repository.PostgresTemplateRepo
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		identities: repository.NewPostgresIdentityRepo(db),
		registry:   repository.NewPostgresRegistryRepo(db),
		targets:    repository.NewPostgresTargetRepo(db),
		campaigns:  repository.NewPostgresCampaignRepo(db),
		queue:      repository.NewPostgresQueueRepo(db),
		counters:   repository.NewPostgresCounterRepo(db),
		activity:   repository.NewPostgresActivityRepo(db),
		templates:  repository.NewPostgresTemplateRepo(db),
	}
}

// core はserveとworkerで共有するドメインコンポーネント。
type core struct {
	repos     *repositories
	window    schedule.WorkWindow
	registry  *prometheus.Registry
	collector *metrics.Collector
	engine    *cooldown.Engine
	limiter   *quota.Limiter
	planner   *schedule.Planner
}

func newCore(cfg *config.Config, db *sql.DB) *core {
	repos := newRepositories(db)
	window := workWindow(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	return &core{
		repos:     repos,
		window:    window,
		registry:  reg,
		collector: collector,
		engine:    cooldown.NewEngine(repos.registry, cfg.CooldownDuration, collector, slog.Default()),
		limiter: quota.NewLimiter(repos.counters, window, quota.RampUp{
			Weeks:      cfg.RampUpWeeks,
			Percentage: cfg.RampUpPercentage,
		}),
		planner: schedule.NewPlanner(repos.identities, repos.queue, window, cfg.InterIdentityGapMinutes),
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. ドメインコンポーネントの初期化
	c := newCore(cfg, db)
	distributor := distribution.NewDistributor(c.engine, slog.Default())

	// 3. サービスの初期化
	identityService := identity.NewService(c.repos.identities, c.limiter, cfg.MaxIdentities, cfg.DefaultQuotas)
	targetService := target.NewService(c.repos.targets, c.repos.identities, c.engine)
	campaignService := campaign.NewService(
		c.repos.campaigns, c.repos.queue, c.repos.targets, c.repos.identities,
		distributor, cfg.MaxIdentities, slog.Default(),
	)

	// 4. ルーターの構築（設定値は req/min）
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitStart))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(c.registry),

		IdentityService: identityService,
		TargetService:   targetService,
		CampaignService: campaignService,

		Planner:     c.planner,
		WeekPlanner: quota.NewPlanner(c.limiter, newRand()),

		Activity:  c.repos.activity,
		Templates: c.repos.templates,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ローテーションスケジューラとログ削除ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. ドメインコンポーネントの初期化
	c := newCore(cfg, db)

	// 3. ブラウザセッションと外部サービスクライアントの初期化
	launcher := session.NewRodLauncher(session.RodOptions{
		ProfileDir: cfg.BrowserProfileDir,
		Headless:   cfg.BrowserHeadless,
		Bin:        cfg.BrowserBin,
	})
	sessions := session.NewManager(launcher, slog.Default())

	executor := automation.NewClient(
		&http.Client{Timeout: cfg.ActionTimeout + 30*time.Second},
		cfg.AutomationURL, cfg.AutomationAPIKey, slog.Default(),
	)

	// TEXTGEN_URL 未設定時はテンプレートからランダムに選ぶ
	var suggester textgen.Suggester
	if cfg.TextgenURL != "" {
		suggester = textgen.NewClient(
			&http.Client{Timeout: cfg.TextgenTimeout},
			cfg.TextgenURL, cfg.TextgenAPIKey, slog.Default(),
		)
	}
	composer := textgen.NewComposer(suggester, c.repos.templates, security.NewTextSanitizer(), newRand(), slog.Default())

	// 4. ターン実行とスケジューラの初期化
	runner := rotation.NewRunner(rotation.RunnerDeps{
		Identities:    c.repos.identities,
		Queue:         c.repos.queue,
		Campaigns:     c.repos.campaigns,
		Sessions:      sessions,
		Executor:      executor,
		Composer:      composer,
		Quota:         c.limiter,
		Policy:        c.engine,
		Metrics:       c.collector,
		Logger:        slog.Default(),
		Delays:        cfg.DelayFor,
		ActionTimeout: cfg.ActionTimeout,
		Rand:          newRand(),
	})
	scheduler := rotation.NewScheduler(c.planner, runner, c.repos.queue, slog.Default())

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(c.repos.activity, cfg.LogRetentionDays, slog.Default())

	// 6. メトリクスサーバー
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(c.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("scheduler_interval", cfg.SchedulerInterval),
		slog.Int("work_start_hour", cfg.WorkStartHour),
		slog.Int("work_end_hour", cfg.WorkEndHour),
		slog.Bool("textgen_enabled", suggester != nil),
	)

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, cleanupInterval)

	// ローテーションスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SchedulerInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// workWindow は設定から業務時間枠を組み立てる。
func workWindow(cfg *config.Config) schedule.WorkWindow {
	return schedule.WorkWindow{
		StartHour: cfg.WorkStartHour,
		EndHour:   cfg.WorkEndHour,
		Days:      cfg.WorkDays,
		Location:  cfg.Location,
	}
}

// newRand は時刻をシードにした乱数源を返す。*rand.Rand は並行利用できないため、共有する場合は呼び出し側で直列化する。
func newRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
