package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleahunter/internal/model"
	"fleahunter/internal/pkg/metrics"
	"fleahunter/internal/rotation"
)

// ErrResourceStarvation 轮换已启用但池中没有可用资源。
// 此时任务直接中止，绝不降级成无账号或无代理的裸请求。
var ErrResourceStarvation = errors.New("rotation pool has no eligible resource")

// dimension 一个轮换维度（账号或代理）在单次任务运行中的状态。
type dimension struct {
	label   string
	enabled bool
	mode    model.RotationMode
	pool    *rotation.Pool
	limit   int
	current *rotation.Item
}

// pick 选一个可用资源。启用状态下选不到视为资源枯竭。
func (d *dimension) pick() error {
	if !d.enabled {
		return nil
	}
	item := d.pool.PickRandom()
	if item == nil {
		metrics.RotationStarvationTotal.WithLabelValues(d.label).Inc()
		return fmt.Errorf("%s: %w", d.label, ErrResourceStarvation)
	}
	d.current = item
	return nil
}

// rotateAfterFailure 失败后的轮换决策。on_failure 模式拉黑当前资源并换新；
// per_task 模式保持原资源不动，下次尝试继续用。
func (d *dimension) rotateAfterFailure(reason string) error {
	if !d.enabled || d.mode != model.RotationOnFailure {
		return nil
	}
	d.pool.MarkBad(d.current, reason)
	return d.pick()
}

func (d *dimension) value() string {
	if d.current == nil {
		return ""
	}
	return d.current.Value
}

// attemptFunc 执行一次完整的任务尝试，返回本次处理的新商品数。
type attemptFunc func(ctx context.Context, runID string, accountFile, proxyURL string) (int, error)

// retryDelay 两次尝试之间的停顿，测试中置零。
var retryDelay = func(attempt int) time.Duration {
	return time.Duration(2+attempt) * time.Second
}

// runWithRotation 包住整个任务状态机的外层重试循环。
//
// 尝试预算是两个维度重试上限与 1 的最大值。失败后按各维度的模式
// 决定是否轮换，预算耗尽后带着最后一个错误返回。
// 已处理的商品数跨尝试累计，硬封禁前的部分成果不会丢弃。
func runWithRotation(ctx context.Context, logger *slog.Logger, account, proxy *dimension, attempt attemptFunc) (int, error) {
	budget := 1
	if account.enabled && account.limit > budget {
		budget = account.limit
	}
	if proxy.enabled && proxy.limit > budget {
		budget = proxy.limit
	}

	if err := account.pick(); err != nil {
		return 0, err
	}
	if err := proxy.pick(); err != nil {
		return 0, err
	}

	total := 0
	var lastErr error
	for n := 1; n <= budget; n++ {
		runID := uuid.NewString()[:8]
		logger.Info("task attempt starting",
			slog.String("run_id", runID),
			slog.Int("attempt", n),
			slog.Int("budget", budget))

		processed, err := attempt(ctx, runID, account.value(), proxy.value())
		total += processed
		if err == nil {
			return total, nil
		}
		lastErr = err

		logger.Warn("task attempt failed",
			slog.String("run_id", runID),
			slog.Int("attempt", n),
			slog.Int("processed", processed),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return total, fmt.Errorf("task cancelled: %w", ctx.Err())
		}
		if n == budget {
			break
		}

		reason := fmt.Sprintf("attempt %d: %v", n, err)
		if rerr := account.rotateAfterFailure(reason); rerr != nil {
			return total, rerr
		}
		if rerr := proxy.rotateAfterFailure(reason); rerr != nil {
			return total, rerr
		}

		// 重试前稍作停顿，立刻重连同样容易触发风控
		select {
		case <-ctx.Done():
			return total, fmt.Errorf("task cancelled: %w", ctx.Err())
		case <-time.After(retryDelay(n)):
		}
	}
	return total, fmt.Errorf("task failed after %d attempts: %w", budget, lastErr)
}
