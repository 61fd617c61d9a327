// Package rotation 实现可轮换资源池（登录态文件、代理地址）。
//
// 池内条目失败后会被临时拉黑，TTL 到期自动恢复。选取是均匀随机而不是
// 轮询，避免形成可识别的固定访问模式。
package rotation

import (
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fleahunter/internal/pkg/metrics"
)

// Item 池中的一个资源。
type Item struct {
	Value               string    // 凭证文件路径或代理 URI
	ConsecutiveFailures int       // 连续失败次数
	BlacklistedUntil    time.Time // 拉黑截止时间，零值表示未拉黑
}

// Pool 持有一组可轮换资源。实例是任务私有的，不跨任务共享。
type Pool struct {
	label  string
	ttl    time.Duration
	items  []*Item
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
	rnd *rand.Rand
}

// permanentBlacklist TTL 为 0 时使用的拉黑时长，覆盖整个运行周期。
const permanentBlacklist = 100 * 365 * 24 * time.Hour

// NewPool 创建资源池。values 为空会得到空池，上游据此禁用轮换。
func NewPool(label string, values []string, ttl time.Duration, logger *slog.Logger) *Pool {
	items := make([]*Item, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		items = append(items, &Item{Value: v})
	}
	return &Pool{
		label:  label,
		ttl:    ttl,
		items:  items,
		logger: logger,
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadStateDir 列出目录下的 *.json 登录态文件作为账号池输入。
// 目录不存在返回空列表。
func LoadStateDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		// 跳过已见商品集合等非凭证状态文件
		if strings.HasPrefix(name, "seen_products_") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out
}

// ParseProxyPool 解析逗号或换行分隔的代理列表字符串。
func ParseProxyPool(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Size 返回池内资源总数。
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// PickRandom 在未被拉黑的资源中均匀随机选取一个。
// 全部被拉黑或池为空时返回 nil，由调用方处理资源枯竭。
func (p *Pool) PickRandom() *Item {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	eligible := make([]*Item, 0, len(p.items))
	for _, it := range p.items {
		if it.BlacklistedUntil.IsZero() || !now.Before(it.BlacklistedUntil) {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) == 0 {
		if p.logger != nil {
			p.logger.Warn("rotation pool exhausted",
				slog.String("pool", p.label),
				slog.Int("total", len(p.items)))
		}
		return nil
	}
	return eligible[p.rnd.Intn(len(eligible))]
}

// MarkBad 记录一次失败并拉黑资源。TTL 为 0 表示本次运行内不再启用。
func (p *Pool) MarkBad(item *Item, reason string) {
	if item == nil {
		return
	}
	p.mu.Lock()
	item.ConsecutiveFailures++
	ttl := p.ttl
	if ttl <= 0 {
		ttl = permanentBlacklist
	}
	item.BlacklistedUntil = p.now().Add(ttl)
	failures := item.ConsecutiveFailures
	p.mu.Unlock()

	metrics.RotationMarkBadTotal.WithLabelValues(p.label).Inc()
	if p.logger != nil {
		p.logger.Warn("rotation item blacklisted",
			slog.String("pool", p.label),
			slog.String("value", item.Value),
			slog.String("reason", reason),
			slog.Int("consecutive_failures", failures),
			slog.Duration("ttl", ttl))
	}
}

// EligibleCount 返回当前可选资源数。
func (p *Pool) EligibleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	count := 0
	for _, it := range p.items {
		if it.BlacklistedUntil.IsZero() || !now.Before(it.BlacklistedUntil) {
			count++
		}
	}
	return count
}

// Label 返回池的日志标签。
func (p *Pool) Label() string {
	return p.label
}

// SetClock 注入时钟，仅用于测试。
func (p *Pool) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}
