// Package images 下载商品图片供多模态分析使用。
//
// 每个任务有独立的临时目录，商品分析完成后可整体清理。
// 已存在的文件直接复用，重跑任务不会重复下载。
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const taskDirPrefix = "task_images_"

// 用浏览器头下载，图片 CDN 对裸 UA 会返回 403。
var downloadHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:139.0) Gecko/20100101 Firefox/139.0",
	"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
}

// Downloader 管理图片根目录下的任务子目录。
type Downloader struct {
	dir    string
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(dir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		dir:    dir,
		client: &http.Client{Timeout: 20 * time.Second},
		logger: logger,
	}
}

// taskDir 返回任务的图片目录路径。
func (d *Downloader) taskDir(taskName string) string {
	safe := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(taskName)
	return filepath.Join(d.dir, taskDirPrefix+safe)
}

// DownloadAll 下载商品的全部图片，返回成功保存的本地路径。
// 单张失败只跳过，不中断其余图片。
func (d *Downloader) DownloadAll(ctx context.Context, taskName, productID string, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}

	dir := d.taskDir(taskName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		d.logger.Warn("create image dir failed", slog.String("error", err.Error()))
		return nil
	}

	var saved []string
	for i, raw := range urls {
		u := strings.TrimSpace(raw)
		if !strings.HasPrefix(u, "http") {
			continue
		}
		dest := filepath.Join(dir, fileName(productID, i, u))

		if _, err := os.Stat(dest); err == nil {
			saved = append(saved, dest)
			continue
		}

		if err := d.fetch(ctx, u, dest); err != nil {
			d.logger.Warn("image download failed",
				slog.String("url", u),
				slog.String("error", err.Error()))
			continue
		}
		saved = append(saved, dest)
	}
	return saved
}

// fileName 由商品 ID、序号与 URL 末段拼出稳定文件名。
func fileName(productID string, index int, rawURL string) string {
	clean := rawURL
	// heic 链接带转换参数后缀，截掉才能得到原始文件名
	if i := strings.Index(clean, ".heic"); i >= 0 {
		clean = clean[:i]
	}
	base := path.Base(clean)
	if q := strings.IndexByte(base, '?'); q >= 0 {
		base = base[:q]
	}
	name := fmt.Sprintf("product_%s_%d_%s", productID, index+1, base)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	if filepath.Ext(name) == "" {
		name += ".jpg"
	}
	return name
}

func (d *Downloader) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range downloadHeaders {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close image file: %w", err)
	}
	return os.Rename(tmp, dest)
}

// CleanupTask 删除任务的整个图片目录。
func (d *Downloader) CleanupTask(taskName string) {
	dir := d.taskDir(taskName)
	if err := os.RemoveAll(dir); err != nil {
		d.logger.Warn("cleanup image dir failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
	}
}
