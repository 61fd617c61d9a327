// Package storage 实现追加式 JSONL 输出。
//
// 每条记录序列化为单行 JSON 一次性追加写入，写后不再修改。
// 关键词任务的去重集合通过回放输出文件重建，不维护单独索引。
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fleahunter/internal/model"
	"fleahunter/internal/parser"
)

// Writer 管理输出目录下的 JSONL 文件。
type Writer struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewWriter 创建输出写入器。目录在首次写入时创建。
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// KeywordFile 返回关键词任务的输出文件名。
func KeywordFile(keyword string) string {
	return strings.ReplaceAll(keyword, " ", "_") + "_full_data.jsonl"
}

// SellerFile 返回卖家监控任务的输出文件名。
func SellerFile(sellerID, taskName string) string {
	safe := strings.NewReplacer(" ", "_", "/", "_").Replace(taskName)
	return fmt.Sprintf("seller_%s_%s.jsonl", sellerID, safe)
}

// Append 将一条记录序列化为单行 JSON 追加到文件末尾。
// 单次 write 调用保证取消时不会留下半行记录。
func (w *Writer) Append(filename string, record *model.ProductRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(w.dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// ReplayLinkKeys 扫描已有输出文件，提取每条记录商品链接的去重 key。
// 文件不存在返回空列表；无法解析的行跳过，不中断回放。
func (w *Writer) ReplayLinkKeys(filename string) ([]string, error) {
	f, err := os.Open(filepath.Join(w.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	var keys []string
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record model.ProductRecord
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		if record.BasicInfo.Link == "" {
			continue
		}
		keys = append(keys, parser.LinkUniqueKey(record.BasicInfo.Link))
	}
	if err := scanner.Err(); err != nil {
		return keys, fmt.Errorf("scan output file: %w", err)
	}

	if skipped > 0 && w.logger != nil {
		w.logger.Warn("skipped unparsable lines during replay",
			slog.String("file", filename),
			slog.Int("skipped", skipped))
	}
	return keys, nil
}
