// Package seenset 维护每个任务已处理商品 ID 的持久化集合。
//
// 集合在任务开始时整体载入，运行中只改内存，任务结束时一次性落盘。
// 文件是简单的 JSON 字符串数组，方便人工检查与清理。
package seenset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store 管理状态目录下的所有任务集合文件。
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore 创建集合存储。目录会在首次保存时创建。
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Set 单个任务的已见 ID 集合。
type Set struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// fileFor 返回任务对应的集合文件路径，任务名中的空格与路径分隔符被替换。
func (s *Store) fileFor(taskName string) string {
	safe := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(taskName)
	return filepath.Join(s.dir, fmt.Sprintf("seen_products_%s.json", safe))
}

// Load 读取任务的集合文件。文件不存在返回空集合，这是首次运行的正常情况。
func (s *Store) Load(taskName string) (*Set, error) {
	set := &Set{ids: make(map[string]struct{})}

	data, err := os.ReadFile(s.fileFor(taskName))
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("read seen set: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		// 损坏的集合文件按空集处理，宁可重复处理也不中断任务
		if s.logger != nil {
			s.logger.Warn("seen set file corrupted, starting empty",
				slog.String("task", taskName),
				slog.String("error", err.Error()))
		}
		return set, nil
	}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set, nil
}

// Save 将集合写回任务文件。先写临时文件再重命名，中途取消不会损坏旧文件。
func (s *Store) Save(taskName string, set *Set) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	set.mu.Lock()
	ids := make([]string, 0, len(set.ids))
	for id := range set.ids {
		ids = append(ids, id)
	}
	set.mu.Unlock()
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seen set: %w", err)
	}

	path := s.fileFor(taskName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write seen set: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace seen set: %w", err)
	}
	return nil
}

// NewSet 构造内存集合，供关键词任务从输出文件回放得到。
func NewSet(ids []string) *Set {
	set := &Set{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set
}

// Contains 报告 ID 是否已处理过。
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add 记录一个已处理的 ID。
func (s *Set) Add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

// Len 返回集合大小。
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
