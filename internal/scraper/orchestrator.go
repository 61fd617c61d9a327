// Package scraper 实现单个监控任务的抓取状态机。
//
// 外层是带轮换的重试循环，内层按任务类型走关键词搜索或卖家监控流程：
// 选资源、起浏览器、预热、导航、筛选、翻页、逐商品抓详情、打分、
// 通知、落盘。每个环节之间都有随机停顿模拟真人节奏。
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod"

	"fleahunter/internal/browser"
	"fleahunter/internal/config"
	"fleahunter/internal/model"
	"fleahunter/internal/pkg/ai"
	"fleahunter/internal/pkg/images"
	"fleahunter/internal/pkg/metrics"
	"fleahunter/internal/pkg/notify"
	"fleahunter/internal/pkg/ratelimit"
	"fleahunter/internal/rotation"
	"fleahunter/internal/seenset"
	"fleahunter/internal/storage"
)

// 等待捕获各类 API 响应的超时。
const (
	searchResponseTimeout = 30 * time.Second
	filterResponseTimeout = 20 * time.Second
	detailResponseTimeout = 25 * time.Second
	headResponseTimeout   = 15 * time.Second
	overlayGracePeriod    = 2 * time.Second
	scrollStallTimeout    = 8 * time.Second
)

const homepageURL = "https://www.goofish.com/"

// Orchestrator 驱动所有任务共享的协作方：输出、状态、图片、AI 与通知。
// 浏览器会话是每次尝试独立创建的，不在这里持有。
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	seen     *seenset.Store
	output   *storage.Writer
	images   *images.Downloader
	scorer   ai.Scorer
	notifier notify.Notifier
	limiter  *ratelimit.RateLimiter
}

// New 创建任务编排器。scorer、notifier、limiter 均可为 nil，对应功能跳过。
func New(cfg *config.Config, logger *slog.Logger, scorer ai.Scorer, notifier notify.Notifier, limiter *ratelimit.RateLimiter) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		seen:     seenset.NewStore(cfg.App.StateDir, logger),
		output:   storage.NewWriter(cfg.App.OutputDir, logger),
		images:   images.NewDownloader(cfg.App.ImagesDir, logger),
		scorer:   scorer,
		notifier: notifier,
		limiter:  limiter,
	}
}

// RunTask 执行一次任务运行，返回处理的新商品数。
func (o *Orchestrator) RunTask(ctx context.Context, task model.TaskConfig) (int, error) {
	logger := o.logger.With(slog.String("task", task.TaskName))
	start := time.Now()
	metrics.ActiveTasks.Inc()
	defer func() {
		metrics.ActiveTasks.Dec()
		metrics.TaskRunDuration.WithLabelValues(string(task.TaskType)).Observe(time.Since(start).Seconds())
		// 打分中途失败会留下没删掉的临时图片
		o.images.CleanupTask(task.TaskName)
	}()

	account := o.accountDimension(task)
	proxy := o.proxyDimension(task)

	var attempt attemptFunc
	switch task.TaskType {
	case model.TaskTypeSellerMonitoring:
		if task.SellerID == "" {
			return 0, fmt.Errorf("seller monitoring task without seller_id")
		}
		attempt = func(ctx context.Context, runID, accountFile, proxyURL string) (int, error) {
			return o.runSellerAttempt(ctx, logger.With(slog.String("run_id", runID)), task, accountFile, proxyURL)
		}
	case model.TaskTypeKeywordSearch, "":
		if task.Keyword == "" {
			return 0, fmt.Errorf("keyword task without keyword")
		}
		attempt = func(ctx context.Context, runID, accountFile, proxyURL string) (int, error) {
			return o.runKeywordAttempt(ctx, logger.With(slog.String("run_id", runID)), task, accountFile, proxyURL)
		}
	default:
		return 0, fmt.Errorf("unknown task type: %s", task.TaskType)
	}

	processed, err := runWithRotation(ctx, logger, account, proxy, attempt)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.TaskRunsTotal.WithLabelValues(string(task.TaskType), status).Inc()
	logger.Info("task run finished",
		slog.Int("processed", processed),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("status", status))
	return processed, err
}

// accountDimension 解析账号轮换配置。显式指定登录态文件时禁用轮换，
// 明确配置永远优先于池选择。
func (o *Orchestrator) accountDimension(task model.TaskConfig) *dimension {
	d := &dimension{label: "account", mode: task.AccountRotation.Mode}
	if d.mode == "" {
		d.mode = model.RotationPerTask
	}
	if task.AccountStateFile != "" || !task.AccountRotation.Enabled {
		return d
	}

	dir := task.AccountRotation.StateDir
	if dir == "" {
		dir = o.cfg.App.StateDir
	}
	values := rotation.LoadStateDir(dir)
	ttl := time.Duration(task.AccountRotation.BlacklistTTLSec) * time.Second
	d.enabled = true
	d.pool = rotation.NewPool("account", values, ttl, o.logger)
	d.limit = task.AccountRotation.RetryLimit
	return d
}

// proxyDimension 解析代理轮换配置。
func (o *Orchestrator) proxyDimension(task model.TaskConfig) *dimension {
	d := &dimension{label: "proxy", mode: task.ProxyRotation.Mode}
	if d.mode == "" {
		d.mode = model.RotationPerTask
	}
	if !task.ProxyRotation.Enabled {
		return d
	}

	values := rotation.ParseProxyPool(task.ProxyRotation.Pool)
	ttl := time.Duration(task.ProxyRotation.BlacklistTTLSec) * time.Second
	d.enabled = true
	d.pool = rotation.NewPool("proxy", values, ttl, o.logger)
	d.limit = task.ProxyRotation.RetryLimit
	return d
}

// launchSession 为一次尝试启动独立浏览器会话。
func (o *Orchestrator) launchSession(ctx context.Context, logger *slog.Logger, task model.TaskConfig, accountFile, proxyURL string) (*browser.Session, error) {
	stateFile := task.AccountStateFile
	if stateFile == "" {
		stateFile = accountFile
	}

	var state *browser.LoginState
	if stateFile != "" {
		loaded, err := browser.LoadLoginState(stateFile)
		if err != nil {
			return nil, fmt.Errorf("load login state: %w", err)
		}
		state = loaded
		logger.Info("login state loaded", slog.String("file", stateFile))
	} else {
		logger.Warn("no login state configured, running anonymous")
	}

	return browser.Launch(ctx, browser.Options{
		BinPath:     o.cfg.Browser.BinPath,
		Headless:    o.cfg.Browser.Headless,
		ProxyURL:    proxyURL,
		PageTimeout: o.cfg.Browser.PageTimeout,
	}, state, logger)
}

// warmup 先逛首页再去搜索，直奔搜索页的流量特征太明显。
func (o *Orchestrator) warmup(ctx context.Context, logger *slog.Logger, session *browser.Session, page *rod.Page) error {
	if err := session.Navigate(ctx, page, homepageURL); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	randomSleep(ctx, 1, 2)
	if _, err := page.Eval(`() => window.scrollBy(0, Math.random() * 500 + 200)`); err != nil {
		logger.Debug("warmup scroll failed", slog.String("error", err.Error()))
	}
	randomSleep(ctx, 1, 2)
	return nil
}

// randomSleep 在 [min,max] 秒间随机停顿。间隔太短会显著提高封禁率。
func randomSleep(ctx context.Context, minSec, maxSec float64) {
	d := time.Duration((minSec + rand.Float64()*(maxSec-minSec)) * float64(time.Second))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
