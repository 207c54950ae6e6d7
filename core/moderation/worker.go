package moderation

import (
	"context"
	"time"

	"soundbridge/config"
	"soundbridge/logger"
	"soundbridge/model"

	"github.com/go-redis/redis/v8"
)

// heartbeatKey 供运维端点读取的 worker 存活信号
const heartbeatKey = "moderation:worker:heartbeat"

// AudioURLFunc resolves the audio URL handed to the analysis service for a
// claimed track, typically a presigned object-storage URL.
type AudioURLFunc func(ctx context.Context, track *model.Track) (string, error)

// Worker is the scheduled moderation job: claim pending tracks, run the
// external analysis with a bounded per-call timeout, write verdicts.
type Worker struct {
	store    TrackStore
	analyzer Analyzer
	service  *Service
	audioURL AudioURLFunc
	redis    *redis.Client
	cfg      *config.Config
}

// NewWorker 创建审核 worker，redis 可为 nil（无存活信号）
func NewWorker(store TrackStore, analyzer Analyzer, service *Service, audioURL AudioURLFunc, redisClient *redis.Client, cfg *config.Config) *Worker {
	if audioURL == nil {
		audioURL = func(ctx context.Context, track *model.Track) (string, error) {
			return track.AudioPath, nil
		}
	}
	return &Worker{
		store:    store,
		analyzer: analyzer,
		service:  service,
		audioURL: audioURL,
		redis:    redisClient,
		cfg:      cfg,
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.WorkerInterval)
	defer ticker.Stop()

	logger.Info("审核 worker 已启动",
		logger.Duration("interval", w.cfg.WorkerInterval),
		logger.Int("batchSize", w.cfg.WorkerBatchSize))

	// 启动时先跑一轮，避免等待一个完整周期
	w.safeRun(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("审核 worker 已停止")
			return
		case <-ticker.C:
			w.safeRun(ctx)
		}
	}
}

// safeRun 单轮执行，panic 不会中断后续轮次
func (w *Worker) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("审核 worker 单轮执行 panic，下一轮继续",
				logger.Any("panic", r))
		}
	}()
	w.RunOnce(ctx)
}

// RunOnce executes one worker pass. Exported so the worker command and tests
// can drive passes directly.
func (w *Worker) RunOnce(ctx context.Context) {
	// Reclaim rows a dead run left in checking.
	reclaimed, err := w.store.ReclaimStuckChecking(ctx, w.cfg.ReclaimAfter)
	if err != nil {
		logger.Error("回收滞留 checking 行失败", logger.ErrorField(err))
	} else if reclaimed > 0 {
		logger.Warn("回收了滞留在 checking 的曲目",
			logger.Int64("count", reclaimed))
	}

	tracks, err := w.store.ClaimPendingTracks(ctx, w.cfg.WorkerBatchSize)
	if err != nil {
		logger.Error("领取待审核曲目失败", logger.ErrorField(err))
	}

	for _, track := range tracks {
		w.processTrack(ctx, track)
	}

	w.reportStats(ctx)
	w.beat(ctx)
}

// processTrack analyzes one claimed track. On analyzer failure the row stays
// in checking; the reclaim pass will hand it back to a later run.
func (w *Worker) processTrack(ctx context.Context, track *model.Track) {
	audioURL, err := w.audioURL(ctx, track)
	if err != nil {
		logger.Error("获取音频地址失败，曲目保持 checking",
			logger.Int64("trackId", track.ID),
			logger.ErrorField(err))
		return
	}

	// 单次分析调用必须有超时，避免一个慢请求拖垮整批
	analysisCtx, cancel := context.WithTimeout(ctx, w.cfg.AnalysisTimeout)
	result, err := w.analyzer.Analyze(analysisCtx, AnalysisRequest{
		TrackID:  track.ID,
		Title:    track.Title,
		AudioURL: audioURL,
		Lyrics:   track.Lyrics,
	})
	cancel()
	if err != nil {
		logger.Warn("内容分析调用失败，曲目保持 checking 等待重试",
			logger.Int64("trackId", track.ID),
			logger.ErrorField(err))
		return
	}

	status, err := w.service.ApplyVerdict(ctx, track, result)
	if err != nil {
		logger.Error("写入审核结论失败",
			logger.Int64("trackId", track.ID),
			logger.ErrorField(err))
		return
	}

	logger.Info("审核结论已写入",
		logger.Int64("trackId", track.ID),
		logger.String("status", string(status)),
		logger.Float64("confidence", result.Confidence))
}

// reportStats surfaces the staleness signal: rows nothing has progressed
// within the stale threshold mean the pipeline is silently broken.
func (w *Worker) reportStats(ctx context.Context) {
	stats, err := w.store.QueueStats(ctx, w.cfg.StaleThreshold)
	if err != nil {
		logger.Error("查询审核队列状态失败", logger.ErrorField(err))
		return
	}

	if stats.StalePending > 0 || stats.StaleChecking > 0 {
		logger.Warn("检测到超过时限未处理的审核行",
			logger.Int("stalePending", stats.StalePending),
			logger.Int("staleChecking", stats.StaleChecking),
			logger.Int64("oldestPendingAgeSeconds", stats.OldestPendingAgeSeconds),
			logger.Int64("oldestCheckingAgeSeconds", stats.OldestCheckingAgeSeconds))
	}
}

// beat 更新存活信号，TTL 为三个周期
func (w *Worker) beat(ctx context.Context) {
	if w.redis == nil {
		return
	}
	ttl := 3 * w.cfg.WorkerInterval
	if err := w.redis.Set(ctx, heartbeatKey, time.Now().Unix(), ttl).Err(); err != nil {
		logger.Warn("写入 worker 存活信号失败", logger.ErrorField(err))
	}
}

// HeartbeatAge returns the age of the last worker heartbeat, or ok=false
// when no heartbeat exists (worker never ran or signal expired).
func HeartbeatAge(ctx context.Context, redisClient *redis.Client) (time.Duration, bool) {
	if redisClient == nil {
		return 0, false
	}
	val, err := redisClient.Get(ctx, heartbeatKey).Int64()
	if err != nil {
		return 0, false
	}
	return time.Since(time.Unix(val, 0)), true
}
