package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundbridge/cache"
	"soundbridge/config"
	"soundbridge/core/auth"
	"soundbridge/core/moderation"
	"soundbridge/core/notify"
	"soundbridge/db"
	"soundbridge/logger"
	"soundbridge/model"
	"soundbridge/repository"
	"soundbridge/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server together with the in-process
// moderation worker.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/soundbridge.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.SetSecret(cfg.JWTSecret)

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect gorm", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("Successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if err := db.AutoMigrateModels(&model.ModerationLog{}); err != nil {
		logger.Fatal("Failed to migrate audit log table", logger.ErrorField(err))
	}

	// 通知 Hub
	hub := notify.NewHub()
	go hub.Run()
	defer hub.Stop()

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	logRepo := repository.NewModerationLogRepository()

	notifier := notify.NewNotifier(db.RedisClient, hub)
	feedCache := cache.NewFeedCache(db.RedisClient)

	modService := moderation.NewService(trackRepo, logRepo, notifier, feedCache, cfg)
	analyzer := moderation.NewHTTPAnalyzer(cfg.AnalyzerBaseURL, cfg.AnalyzerAPIKey, cfg.AnalysisTimeout)

	// 审核 worker 把预签名地址交给分析服务，而不是内部对象键
	audioURL := func(ctx context.Context, track *model.Track) (string, error) {
		return storage.PresignedGetURL(ctx, track.AudioPath)
	}
	worker := moderation.NewWorker(trackRepo, analyzer, modService, audioURL, db.RedisClient, cfg)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go worker.Start(workerCtx)

	// 初始化处理器
	apiHandler := NewAPIHandler(trackRepo, userRepo, modService, feedCache, hub, cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// 曲目相关的API端点
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/feed", apiHandler.OptionalAuthMiddleware(apiHandler.GetFeedHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/mine", apiHandler.AuthMiddleware(apiHandler.GetMyTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.OptionalAuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/stream", apiHandler.AuthMiddleware(apiHandler.StreamTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/appeal", apiHandler.AuthMiddleware(apiHandler.SubmitAppealHandler)).Methods(http.MethodPost)

	// 审核后台相关的API端点
	router.HandleFunc("/api/admin/moderation/queue", apiHandler.ReviewerMiddleware(apiHandler.GetReviewQueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/moderation/status", apiHandler.ReviewerMiddleware(apiHandler.ModerationStatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/moderation/{id}/review", apiHandler.ReviewerMiddleware(apiHandler.ReviewTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/moderation/{id}/appeal", apiHandler.ReviewerMiddleware(apiHandler.ResolveAppealHandler)).Methods(http.MethodPost)

	// 通知 WebSocket
	router.HandleFunc("/api/ws/notify", apiHandler.NotifyWebSocketHandler).Methods(http.MethodGet)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	// 先停 worker，避免关闭过程中继续领取新批次
	stopWorker()

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
