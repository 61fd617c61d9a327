package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fleahunter/internal/config"
	"fleahunter/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu    sync.Mutex
	runs  []string
	err   error
	panic bool
}

func (f *fakeRunner) RunTask(ctx context.Context, task model.TaskConfig) (int, error) {
	f.mu.Lock()
	f.runs = append(f.runs, task.TaskName)
	f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	return 1, f.err
}

func (f *fakeRunner) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

func writeTasksFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTasksParsesFile(t *testing.T) {
	path := writeTasksFile(t, `[
		{"task_name": "iphone", "enabled": true, "task_type": "keyword_search", "keyword": "iphone 15"},
		{"task_name": "paused", "enabled": false, "keyword": "macbook"}
	]`)

	tasks, err := LoadTasks(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks[0].TaskName != "iphone" || !tasks[0].Enabled {
		t.Fatalf("unexpected first task: %+v", tasks[0])
	}
	if tasks[1].Enabled {
		t.Fatal("second task must be disabled")
	}
}

func TestLoadTasksMissingFile(t *testing.T) {
	if _, err := LoadTasks(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRunOnceExecutesOnlyEnabledTasks(t *testing.T) {
	path := writeTasksFile(t, `[
		{"task_name": "a", "enabled": true, "keyword": "x"},
		{"task_name": "b", "enabled": false, "keyword": "y"},
		{"task_name": "c", "enabled": true, "keyword": "z"}
	]`)
	cfg := &config.Config{}
	cfg.App.TasksFile = path
	cfg.App.RunOnce = true
	cfg.App.ScheduleInterval = time.Hour

	runner := &fakeRunner{}
	s := New(cfg, runner, testLogger())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	names := runner.names()
	if len(names) != 2 {
		t.Fatalf("runs = %v, want only enabled tasks", names)
	}
	for _, name := range names {
		if name == "b" {
			t.Fatal("disabled task must not run")
		}
	}
}

func TestRunFailsWithoutEnabledTasks(t *testing.T) {
	path := writeTasksFile(t, `[{"task_name": "a", "enabled": false}]`)
	cfg := &config.Config{}
	cfg.App.TasksFile = path

	s := New(cfg, &fakeRunner{}, testLogger())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error when no task is enabled")
	}
}

func TestPanicInOneTaskDoesNotStopSiblings(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.RunOnce = true

	s := New(cfg, &fakeRunner{panic: true}, testLogger())
	logger := testLogger()

	// runGuarded 必须吞掉 panic
	s.runGuarded(context.Background(), logger, model.TaskConfig{TaskName: "a"})
}

func TestRunnerErrorIsLoggedNotFatal(t *testing.T) {
	path := writeTasksFile(t, `[{"task_name": "a", "enabled": true, "keyword": "x"}]`)
	cfg := &config.Config{}
	cfg.App.TasksFile = path
	cfg.App.RunOnce = true

	runner := &fakeRunner{err: errors.New("browser crashed")}
	s := New(cfg, runner, testLogger())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run must not propagate task errors, got %v", err)
	}
	if len(runner.names()) != 1 {
		t.Fatalf("runs = %v, want 1", runner.names())
	}
}
