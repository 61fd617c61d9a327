// Package notify 推送捡漏提醒。
//
// 支持 ntfy、通用 Webhook 与邮件三种渠道，可同时启用。
// 单个渠道失败不影响其余渠道，通知失败也不中断抓取任务。
package notify

import (
	"context"
	"log/slog"

	"fleahunter/internal/model"
)

// Notifier 定义通知接口。
type Notifier interface {
	// Send 推送一条商品提醒。
	//
	// 参数:
	//   ctx: 上下文
	//   record: 完整商品记录
	//   reason: 推荐理由（AI 结论或 "New item found"）
	Send(ctx context.Context, record *model.ProductRecord, reason string) error
}

// Multi 把同一条提醒扇出到多个渠道。
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, logger: logger}
}

// Send 依次调用各渠道，记录失败但总是返回 nil。
func (m *Multi) Send(ctx context.Context, record *model.ProductRecord, reason string) error {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, record, reason); err != nil {
			m.logger.Warn("notification channel failed",
				slog.String("item_id", record.BasicInfo.ItemID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
