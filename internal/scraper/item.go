package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"fleahunter/internal/browser"
	"fleahunter/internal/model"
	"fleahunter/internal/parser"
	"fleahunter/internal/pkg/jsontree"
	"fleahunter/internal/pkg/metrics"
)

// processListingItem 处理一个新发现的商品：独立详情页抓取、风控门、
// 卖家主页聚合、AI 打分、通知、落盘。
// 用独立页面抓详情是为了隔离列表页状态，详情页随手关掉即可。
func (o *Orchestrator) processListingItem(ctx context.Context, logger *slog.Logger, session *browser.Session, task model.TaskConfig, item *model.BasicItem, outFile string) error {
	detailPage, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open detail page: %w", err)
	}
	defer func() {
		_ = detailPage.Close()
		randomSleep(ctx, 2, 4)
	}()

	payload, err := browser.ExpectResponse(ctx, detailPage, parser.DetailAPIPattern, detailResponseTimeout, func() error {
		return session.Navigate(ctx, detailPage, item.Link)
	})
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}

	if browser.PayloadIndicatesValidation(payload) {
		return o.handleValidationBlock(ctx, logger)
	}

	tree, err := jsontree.Parse(payload)
	if err != nil {
		return fmt.Errorf("parse detail payload: %w", err)
	}
	parser.ParseDetail(tree, item)

	record := &model.ProductRecord{
		CrawlTime:      time.Now().Format("2006-01-02 15:04:05"),
		SearchKeywords: task.Keyword,
		TaskName:       task.TaskName,
		BasicInfo:      *item,
	}

	sellerID := parser.DetailSellerID(tree)
	if sellerID != "" {
		profile := o.scrapeSellerProfile(ctx, logger, session, sellerID)
		if profile != nil {
			// 芝麻信用与注册时长只在详情接口里给
			profile.ZhimaCredit = tree.Get("data", "sellerDO", "zhimaLevelInfo", "levelName").Str(profile.ZhimaCredit)
			if regDays := int(tree.Get("data", "sellerDO", "userRegDay").Int(0)); regDays > 0 {
				profile.RegistrationInfo = parser.FormatRegistrationDays(regDays)
			}
			record.SellerInfo = profile
		}
	} else {
		logger.Warn("seller id missing in detail payload", slog.String("item_id", item.ItemID))
	}

	o.scoreAndNotify(ctx, logger, task, record)

	if err := o.output.Append(outFile, record); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	logger.Info("item processed",
		slog.String("item_id", item.ItemID),
		slog.String("title", truncate(item.Title, 30)))
	return nil
}

// handleValidationBlock 详情响应里出现验证标记说明风控已经生效。
// 先随机长眠再上抛，立刻退出反而坐实了机器行为。
func (o *Orchestrator) handleValidationBlock(ctx context.Context, logger *slog.Logger) error {
	metrics.RiskControlTotal.WithLabelValues("validation_payload").Inc()
	cooldown := time.Duration(3+rand.Intn(58)) * time.Second
	logger.Error("anti-crawler validation detected, cooling down before abort",
		slog.Duration("cooldown", cooldown))
	select {
	case <-ctx.Done():
	case <-time.After(cooldown):
	}
	return &browser.RiskControlError{Trigger: "FAIL_SYS_USER_VALIDATE"}
}

// scoreAndNotify AI 打分与通知。打分失败只记日志，记录照常落盘。
func (o *Orchestrator) scoreAndNotify(ctx context.Context, logger *slog.Logger, task model.TaskConfig, record *model.ProductRecord) {
	if o.cfg.AI.Skip {
		logger.Info("ai analysis skipped by config, notifying directly",
			slog.String("item_id", record.BasicInfo.ItemID))
		o.sendNotification(ctx, logger, record, "AI analysis skipped, direct notification")
		return
	}
	if o.scorer == nil || task.AIPrompt == "" {
		return
	}

	paths := o.images.DownloadAll(ctx, task.TaskName, record.BasicInfo.ItemID, record.BasicInfo.ImageURLs)
	result, err := o.scorer.Score(ctx, record, paths, task.AIPrompt)
	// 图片只服务于本次打分，用完即删控制磁盘占用
	removeFiles(logger, paths)
	if err != nil {
		logger.Warn("ai analysis failed",
			slog.String("item_id", record.BasicInfo.ItemID),
			slog.String("error", err.Error()))
		return
	}

	record.AIAnalysis = result
	logger.Info("ai analysis done",
		slog.String("item_id", record.BasicInfo.ItemID),
		slog.Bool("recommended", result.IsRecommended))
	if result.IsRecommended {
		o.sendNotification(ctx, logger, record, result.Reason)
	}
}

func (o *Orchestrator) sendNotification(ctx context.Context, logger *slog.Logger, record *model.ProductRecord, reason string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Send(ctx, record, reason); err != nil {
		logger.Warn("notification failed",
			slog.String("item_id", record.BasicInfo.ItemID),
			slog.String("error", err.Error()))
	}
}

func removeFiles(logger *slog.Logger, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Debug("remove temp image failed",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
