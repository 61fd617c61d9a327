// Package scheduler 按固定间隔调度监控任务。
//
// 每个启用的任务一个常驻 goroutine，单个任务的失败或 panic 不影响
// 其他任务。进程收到取消信号后所有在跑的任务协作退出。
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"fleahunter/internal/config"
	"fleahunter/internal/model"
)

// TaskRunner 执行单次任务运行。由 scraper.Orchestrator 实现。
type TaskRunner interface {
	RunTask(ctx context.Context, task model.TaskConfig) (int, error)
}

// Scheduler 任务调度器。
type Scheduler struct {
	cfg    *config.Config
	runner TaskRunner
	logger *slog.Logger
}

func New(cfg *config.Config, runner TaskRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, runner: runner, logger: logger}
}

// LoadTasks 读取任务列表文件（JSON 数组）。
func LoadTasks(path string) ([]model.TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var tasks []model.TaskConfig
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	return tasks, nil
}

// Run 启动所有启用的任务并阻塞到全部退出。
// run_once 模式下每个任务只跑一轮。
func (s *Scheduler) Run(ctx context.Context) error {
	tasks, err := LoadTasks(s.cfg.App.TasksFile)
	if err != nil {
		return err
	}

	enabled := make([]model.TaskConfig, 0, len(tasks))
	for _, t := range tasks {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	if len(enabled) == 0 {
		return fmt.Errorf("no enabled tasks in %s", s.cfg.App.TasksFile)
	}
	s.logger.Info("scheduler starting",
		slog.Int("tasks", len(enabled)),
		slog.Duration("interval", s.cfg.App.ScheduleInterval),
		slog.Bool("run_once", s.cfg.App.RunOnce))

	var wg sync.WaitGroup
	for _, task := range enabled {
		wg.Add(1)
		go func(task model.TaskConfig) {
			defer wg.Done()
			s.taskLoop(ctx, task)
		}(task)
	}
	wg.Wait()
	return nil
}

// taskLoop 单个任务的调度循环。启动时错开一点，避免所有任务
// 同时起浏览器。
func (s *Scheduler) taskLoop(ctx context.Context, task model.TaskConfig) {
	logger := s.logger.With(slog.String("task", task.TaskName))

	if !s.cfg.App.RunOnce {
		jitter := time.Duration(rand.Int63n(int64(10 * time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
	}

	for {
		s.runGuarded(ctx, logger, task)
		if s.cfg.App.RunOnce {
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("task loop stopped")
			return
		case <-time.After(s.cfg.App.ScheduleInterval):
		}
	}
}

// runGuarded 执行一轮任务，吞掉 panic 保护兄弟任务。
func (s *Scheduler) runGuarded(ctx context.Context, logger *slog.Logger, task model.TaskConfig) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task run panicked", slog.Any("panic", r))
		}
	}()

	processed, err := s.runner.RunTask(ctx, task)
	if err != nil {
		logger.Error("task run failed",
			slog.Int("processed", processed),
			slog.String("error", err.Error()))
		return
	}
	logger.Info("task run completed", slog.Int("processed", processed))
}
