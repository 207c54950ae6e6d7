package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soundbridge/cache"
	"soundbridge/config"
	"soundbridge/core/moderation"
	"soundbridge/core/notify"
	"soundbridge/db"
	"soundbridge/logger"
	"soundbridge/model"
	"soundbridge/repository"
	"soundbridge/storage"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "单独启动审核worker",
	Long:  `不启动HTTP服务器，只运行内容审核worker。适合把审核负载与API进程分开部署。`,
	Run: func(cmd *cobra.Command, args []string) {
		runWorker()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/soundbridge-worker.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect gorm", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	trackRepo := repository.NewMySQLTrackRepository()
	logRepo := repository.NewModerationLogRepository()

	// 单独进程没有 WebSocket 连接，事件仍然入 Redis 队列
	notifier := notify.NewNotifier(db.RedisClient, nil)
	feedCache := cache.NewFeedCache(db.RedisClient)

	modService := moderation.NewService(trackRepo, logRepo, notifier, feedCache, cfg)
	analyzer := moderation.NewHTTPAnalyzer(cfg.AnalyzerBaseURL, cfg.AnalyzerAPIKey, cfg.AnalysisTimeout)

	audioURL := func(ctx context.Context, track *model.Track) (string, error) {
		return storage.PresignedGetURL(ctx, track.AudioPath)
	}
	worker := moderation.NewWorker(trackRepo, analyzer, modService, audioURL, db.RedisClient, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("收到停止信号，审核 worker 退出中...")
		cancel()
	}()

	worker.Start(ctx)
}
