package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"fleahunter/internal/model"
	"fleahunter/internal/pkg/metrics"
)

// EmailConfig SMTP 接入参数。
type EmailConfig struct {
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	FromEmail string
	ToEmail   string
}

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, logger: logger}
}

// Send 发送邮件通知。
func (n *EmailNotifier) Send(ctx context.Context, record *model.ProductRecord, reason string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(n.cfg.ToEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.ToEmail)
	m.SetHeader("Subject", "[FleaHunter] 🎯 捡漏提醒")
	m.SetBody("text/html", n.buildHTMLBody(record, reason))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		return fmt.Errorf("send email: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues("email", "ok").Inc()
	n.logger.Info("email notification sent",
		slog.String("to", n.cfg.ToEmail),
		slog.String("item_id", record.BasicInfo.ItemID))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(record *model.ProductRecord, reason string) string {
	item := record.BasicInfo
	image := ""
	if len(item.ImageURLs) > 0 {
		image = item.ImageURLs[0]
	}

	seller := item.SellerNick
	if record.SellerInfo != nil && record.SellerInfo.Nickname != "unknown" {
		seller = record.SellerInfo.Nickname
	}

	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .hero img { width: 100%%; max-width: 520px; display: block; margin: 0 auto 16px; border-radius: 8px; }
  .price { font-size: 26px; font-weight: bold; color: #ef4444; margin: 8px 0 12px; }
  .title { font-size: 16px; margin-bottom: 8px; }
  .meta { font-size: 13px; color: #6b7280; margin-bottom: 16px; }
  .reason { font-size: 14px; background: #f0fdf4; border-radius: 8px; padding: 10px 12px; margin-bottom: 16px; }
  .cta { display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">[FleaHunter] 🎯 捡漏提醒</div>
    <div class="content">
      <div class="hero"><img src="%s" alt="Item Image" /></div>
      <div class="price">%s</div>
      <div class="title">%s</div>
      <div class="meta">卖家: %s ｜ 地区: %s ｜ 发布: %s</div>
      <div class="reason">%s</div>
      <div style="text-align:center; margin-bottom: 12px;">
        <a class="cta" href="%s" target="_blank">立即去闲鱼抢购</a>
      </div>
      <div class="footer">触发任务: %s</div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template, image, item.Price, item.Title, seller, item.Area,
		item.PublishTime, reason, item.Link, record.TaskName)
}
