package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"fleahunter/internal/browser"
	"fleahunter/internal/model"
	"fleahunter/internal/parser"
	"fleahunter/internal/pkg/jsontree"
	"fleahunter/internal/pkg/metrics"
	"fleahunter/internal/seenset"
	"fleahunter/internal/storage"
)

// runKeywordAttempt 关键词搜索任务的一次完整尝试。
//
// 去重集合不单独存文件，而是回放已有输出重建，输出文件本身就是
// 权威的处理记录。
func (o *Orchestrator) runKeywordAttempt(ctx context.Context, logger *slog.Logger, task model.TaskConfig, accountFile, proxyURL string) (int, error) {
	outFile := storage.KeywordFile(task.Keyword)
	keys, err := o.output.ReplayLinkKeys(outFile)
	if err != nil {
		return 0, fmt.Errorf("rebuild dedup set: %w", err)
	}
	seen := seenset.NewSet(keys)
	logger.Info("dedup set rebuilt from output", slog.Int("known_items", seen.Len()))

	if err := o.limiter.Acquire(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	session, err := o.launchSession(ctx, logger, task, accountFile, proxyURL)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	page, err := session.NewPage(ctx)
	if err != nil {
		return 0, err
	}
	defer page.Close()

	if err := o.warmup(ctx, logger, session, page); err != nil {
		return 0, err
	}

	searchURL := "https://www.goofish.com/search?q=" + url.QueryEscape(task.Keyword)
	logger.Info("navigating to search page", slog.String("url", searchURL))
	payload, err := browser.ExpectResponse(ctx, page, parser.SearchAPIPattern, searchResponseTimeout, func() error {
		return session.Navigate(ctx, page, searchURL)
	})
	if err != nil {
		return 0, fmt.Errorf("initial search: %w", err)
	}

	if err := browser.CheckCriticalOverlays(page, overlayGracePeriod); err != nil {
		return 0, err
	}
	browser.RemoveBlockingElements(page, true, logger)
	o.closeAdPopup(logger, page)

	if filtered := o.applyFilters(ctx, logger, page, task); filtered != nil {
		payload = filtered
	}

	maxPages := task.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	processed := 0
	current := payload
	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if pageNum > 1 {
			next, ok := o.turnPage(ctx, logger, page, pageNum)
			if !ok {
				break
			}
			current = next
		}

		tree, err := jsontree.Parse(current)
		if err != nil {
			logger.Warn("search payload unparsable, skipping page",
				slog.Int("page", pageNum),
				slog.String("error", err.Error()))
			continue
		}
		items := parser.ParseSearchResults(tree)
		if len(items) == 0 {
			logger.Info("no items on page, stopping pagination", slog.Int("page", pageNum))
			break
		}
		logger.Info("page parsed", slog.Int("page", pageNum), slog.Int("items", len(items)))

		for i := range items {
			item := &items[i]
			key := parser.LinkUniqueKey(item.Link)
			if seen.Contains(key) {
				metrics.ItemsSkippedTotal.WithLabelValues("already_seen").Inc()
				continue
			}

			// 翻详情前先在列表页停一会，模拟浏览
			randomSleep(ctx, 2, 4)
			if err := o.processListingItem(ctx, logger, session, task, item, outFile); err != nil {
				if browser.IsRiskControl(err) {
					return processed, err
				}
				logger.Warn("item skipped",
					slog.String("item_id", item.ItemID),
					slog.String("error", err.Error()))
				metrics.ItemsSkippedTotal.WithLabelValues("item_error").Inc()
				continue
			}
			seen.Add(key)
			processed++
			metrics.ItemsProcessedTotal.WithLabelValues(string(model.TaskTypeKeywordSearch)).Inc()

			// 单品处理完后的大间隔
			randomSleep(ctx, 5, 10)
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
		}
	}
	return processed, nil
}

// closeAdPopup 搜索页偶尔弹广告，有就顺手关掉。
func (o *Orchestrator) closeAdPopup(logger *slog.Logger, page *rod.Page) {
	els, err := page.Elements("div[class*='closeIconBg']")
	if err != nil || len(els) == 0 {
		return
	}
	if err := els.First().Click("left", 1); err == nil {
		logger.Debug("ad popup closed")
	}
}

// applyFilters 按固定顺序应用筛选：最新排序、个人闲置、包邮、地区、价格。
// 每一步都是可选的，失败只记日志继续。返回最后一次成功触发的搜索响应。
func (o *Orchestrator) applyFilters(ctx context.Context, logger *slog.Logger, page *rod.Page, task model.TaskConfig) []byte {
	var latest []byte

	if task.SortByNewest {
		if err := clickText(page, "新发布", 3*time.Second); err != nil {
			logger.Warn("freshness sort unavailable", slog.String("error", err.Error()))
		} else {
			randomSleep(ctx, 1, 2)
			if p := o.captureFilter(ctx, logger, page, "sort_newest", func() error {
				if err := clickText(page, "最新", 3*time.Second); err != nil {
					return err
				}
				randomSleep(ctx, 2, 4)
				return nil
			}); p != nil {
				latest = p
			}
		}
	}

	if task.PersonalOnly {
		if p := o.captureFilter(ctx, logger, page, "personal_only", func() error {
			if err := clickText(page, "个人闲置", 3*time.Second); err != nil {
				return err
			}
			randomSleep(ctx, 2, 4)
			return nil
		}); p != nil {
			latest = p
		}
	}

	if task.FreeShippingOnly {
		if p := o.captureFilter(ctx, logger, page, "free_shipping", func() error {
			if err := clickText(page, "包邮", 3*time.Second); err != nil {
				return err
			}
			randomSleep(ctx, 2, 4)
			return nil
		}); p != nil {
			latest = p
		}
	}

	if task.Region != "" {
		if p := o.applyRegionFilter(ctx, logger, page, task.Region); p != nil {
			latest = p
		}
	}

	if task.MinPrice != "" || task.MaxPrice != "" {
		if p := o.applyPriceFilter(ctx, logger, page, task.MinPrice, task.MaxPrice); p != nil {
			latest = p
		}
	}
	return latest
}

// captureFilter 执行筛选动作并捕获它触发的搜索响应。
func (o *Orchestrator) captureFilter(ctx context.Context, logger *slog.Logger, page *rod.Page, name string, action func() error) []byte {
	payload, err := browser.ExpectResponse(ctx, page, parser.SearchAPIPattern, filterResponseTimeout, action)
	if err != nil {
		logger.Warn("filter skipped",
			slog.String("filter", name),
			slog.String("error", err.Error()))
		return nil
	}
	logger.Info("filter applied", slog.String("filter", name))
	return payload
}

// applyRegionFilter 地区级联：省/市/区逐列点选后提交。
// 弹层结构经常变，任何一步找不到都整体跳过。
func (o *Orchestrator) applyRegionFilter(ctx context.Context, logger *slog.Logger, page *rod.Page, region string) []byte {
	if err := clickText(page, "地区", 3*time.Second); err != nil {
		logger.Warn("region filter trigger not found", slog.String("error", err.Error()))
		return nil
	}
	randomSleep(ctx, 1.5, 2)

	wrap, err := page.Timeout(3 * time.Second).Element("[class*='areaWrap']")
	if err != nil {
		logger.Warn("region popover not found, skipping region filter")
		return nil
	}
	columns, err := wrap.Elements(":scope > div")
	if err != nil || len(columns) == 0 {
		logger.Warn("region columns not found, skipping region filter")
		return nil
	}

	parts := strings.Split(region, "/")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || i >= len(columns) {
			break
		}
		option, err := columns[i].ElementR("[class*='provItem']", regexp.QuoteMeta(part))
		if err != nil {
			logger.Warn("region option not found",
				slog.String("value", part))
			break
		}
		if err := option.Click("left", 1); err != nil {
			logger.Warn("region option click failed", slog.String("value", part))
			break
		}
		randomSleep(ctx, 1, 2)
	}

	btn, err := page.Timeout(3 * time.Second).Element("div[class*='searchBtn']")
	if err != nil {
		logger.Warn("region submit button not found, skipping submit")
		return nil
	}
	return o.captureFilter(ctx, logger, page, "region", func() error {
		if err := btn.Click("left", 1); err != nil {
			return err
		}
		randomSleep(ctx, 2, 3)
		return nil
	})
}

// applyPriceFilter 填最低/最高价后 Tab 确认触发刷新。
func (o *Orchestrator) applyPriceFilter(ctx context.Context, logger *slog.Logger, page *rod.Page, minPrice, maxPrice string) []byte {
	container, err := page.Timeout(3 * time.Second).Element("div[class*='search-price-input-container']")
	if err != nil {
		logger.Warn("price input container not found")
		return nil
	}
	inputs, err := container.Elements("input")
	if err != nil || len(inputs) < 2 {
		logger.Warn("price inputs not found")
		return nil
	}

	if minPrice != "" {
		if err := inputs[0].Input(minPrice); err != nil {
			logger.Warn("fill min price failed", slog.String("error", err.Error()))
		}
		randomSleep(ctx, 1, 2.5)
	}
	if maxPrice != "" {
		if err := inputs[1].Input(maxPrice); err != nil {
			logger.Warn("fill max price failed", slog.String("error", err.Error()))
		}
		randomSleep(ctx, 1, 2.5)
	}

	return o.captureFilter(ctx, logger, page, "price_range", func() error {
		if err := page.Keyboard.Press(input.Tab); err != nil {
			return err
		}
		randomSleep(ctx, 2, 4)
		return nil
	})
}

// turnPage 点击未禁用的下一页按钮。按钮不存在或响应超时都按
// 自然翻页结束处理，不算任务失败。
func (o *Orchestrator) turnPage(ctx context.Context, logger *slog.Logger, page *rod.Page, pageNum int) ([]byte, bool) {
	// 禁用态通过 class 名表达，不是 disabled 属性
	btns, err := page.Elements("[class*='search-pagination-arrow-right']:not([class*='disabled'])")
	if err != nil || len(btns) == 0 {
		logger.Info("no enabled next button, pagination done", slog.Int("page", pageNum))
		return nil, false
	}

	payload, err := browser.ExpectResponse(ctx, page, parser.SearchAPIPattern, filterResponseTimeout, func() error {
		if err := btns.First().Click("left", 1); err != nil {
			return err
		}
		randomSleep(ctx, 2, 5)
		return nil
	})
	if err != nil {
		logger.Warn("page turn timed out, soft stop",
			slog.Int("page", pageNum),
			slog.String("error", err.Error()))
		return nil, false
	}
	return payload, true
}

// clickText 点击文本完全匹配的可见元素。
func clickText(page *rod.Page, text string, timeout time.Duration) error {
	el, err := page.Timeout(timeout).ElementR("div, span, a, li", "^"+regexp.QuoteMeta(text)+"$")
	if err != nil {
		return fmt.Errorf("element %q not found: %w", text, err)
	}
	return el.Click("left", 1)
}
