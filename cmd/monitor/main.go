package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"fleahunter/internal/config"
	"fleahunter/internal/pkg/ai"
	"fleahunter/internal/pkg/logger"
	"fleahunter/internal/pkg/notify"
	"fleahunter/internal/pkg/ratelimit"
	"fleahunter/internal/scheduler"
	"fleahunter/internal/scraper"
)

// main 是监控进程的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 初始化日志与 metrics
// 3. 组装打分器、通知渠道与全局限流
// 4. 启动任务调度器并等待退出信号
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := buildLimiter(cfg, appLogger)
	scorer := buildScorer(cfg, appLogger)
	notifier := buildNotifier(cfg, appLogger)

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("metrics server listening", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	orch := scraper.New(cfg, appLogger, scorer, notifier, limiter)
	sched := scheduler.New(cfg, orch, appLogger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- sched.Run(ctx)
	}()

	select {
	case err := <-runErr:
		if err != nil {
			appLogger.Error("scheduler exited", slog.String("error", err.Error()))
		} else {
			appLogger.Info("all tasks finished")
		}
	case <-ctx.Done():
		appLogger.Info("shutting down monitor...")
		<-runErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown failed", slog.String("error", err.Error()))
	}
}

// buildLimiter 组装全局限流。未配置 Redis 或速率为 0 时返回 nil，
// RateLimiter 对 nil 接收者直接放行。
func buildLimiter(cfg *config.Config, appLogger *slog.Logger) *ratelimit.RateLimiter {
	if cfg.Redis.Addr == "" || cfg.App.RateLimit <= 0 {
		appLogger.Info("global rate limit disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	return ratelimit.New(rdb, appLogger, "", cfg.App.RateLimit, cfg.App.RateBurst)
}

// buildScorer 组装多模态打分器，配置不全时禁用 AI 分析。
func buildScorer(cfg *config.Config, appLogger *slog.Logger) ai.Scorer {
	if cfg.AI.Skip {
		appLogger.Info("ai analysis skipped by config")
		return nil
	}
	scorer, err := ai.NewLLMScorer(ai.Options{
		BaseURL:    cfg.AI.BaseURL,
		APIKey:     cfg.AI.APIKey,
		ModelName:  cfg.AI.ModelName,
		MaxRetries: cfg.AI.MaxRetries,
	}, appLogger)
	if err != nil {
		appLogger.Warn("ai scorer disabled", slog.String("reason", err.Error()))
		return nil
	}
	return scorer
}

// buildNotifier 按配置组装通知渠道，一个都没配时返回 nil。
func buildNotifier(cfg *config.Config, appLogger *slog.Logger) notify.Notifier {
	var channels []notify.Notifier
	if cfg.Notify.NtfyTopicURL != "" {
		channels = append(channels, notify.NewNtfyNotifier(cfg.Notify.NtfyTopicURL, appLogger))
	}
	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, appLogger))
	}
	if cfg.Notify.SMTPHost != "" {
		channels = append(channels, notify.NewEmailNotifier(notify.EmailConfig{
			SMTPHost:  cfg.Notify.SMTPHost,
			SMTPPort:  cfg.Notify.SMTPPort,
			SMTPUser:  cfg.Notify.SMTPUser,
			SMTPPass:  cfg.Notify.SMTPPass,
			FromEmail: cfg.Notify.FromEmail,
			ToEmail:   cfg.Notify.ToEmail,
		}, appLogger))
	}
	if len(channels) == 0 {
		appLogger.Info("no notification channel configured")
		return nil
	}
	return notify.NewMulti(appLogger, channels...)
}
