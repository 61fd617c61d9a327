package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"fleahunter/internal/browser"
	"fleahunter/internal/model"
	"fleahunter/internal/parser"
	"fleahunter/internal/pkg/jsontree"
	"fleahunter/internal/pkg/metrics"
	"fleahunter/internal/storage"
)

// runSellerAttempt 卖家监控任务的一次完整尝试。
//
// 一次滚动采集卖家全部在售商品，减掉已见集合后逐个补详情。
// 已见集合在任务结束时整体落盘，部分成功也会保存。
func (o *Orchestrator) runSellerAttempt(ctx context.Context, logger *slog.Logger, task model.TaskConfig, accountFile, proxyURL string) (int, error) {
	set, err := o.seen.Load(task.TaskName)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := o.seen.Save(task.TaskName, set); err != nil {
			logger.Warn("save seen set failed", slog.String("error", err.Error()))
		}
	}()

	if err := o.limiter.Acquire(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	session, err := o.launchSession(ctx, logger, task, accountFile, proxyURL)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	profile := o.scrapeSellerProfile(ctx, logger, session, task.SellerID)
	if profile == nil {
		return 0, fmt.Errorf("collect seller profile %s failed", task.SellerID)
	}
	logger.Info("seller profile collected",
		slog.String("seller_id", task.SellerID),
		slog.Int("listings", len(profile.Items)))

	var fresh []model.ListingSummary
	onSale := 0
	for _, listing := range profile.Items {
		if listing.Status != "on sale" {
			continue
		}
		onSale++
		if listing.ItemID == "" || set.Contains(listing.ItemID) {
			metrics.ItemsSkippedTotal.WithLabelValues("already_seen").Inc()
			continue
		}
		fresh = append(fresh, listing)
	}
	logger.Info("seller listings filtered",
		slog.Int("on_sale", onSale),
		slog.Int("new", len(fresh)))

	if task.MaxProductsPerRun > 0 && len(fresh) > task.MaxProductsPerRun {
		logger.Info("truncating to per-run limit", slog.Int("limit", task.MaxProductsPerRun))
		fresh = fresh[:task.MaxProductsPerRun]
	}

	outFile := storage.SellerFile(task.SellerID, task.TaskName)
	processed := 0
	for i, listing := range fresh {
		logger.Info("processing new listing",
			slog.Int("index", i+1),
			slog.Int("total", len(fresh)),
			slog.String("item_id", listing.ItemID))

		item := &model.BasicItem{
			ItemID: listing.ItemID,
			Title:  listing.Title,
			Price:  listing.Price,
			Link:   fmt.Sprintf("https://www.goofish.com/item?id=%s", listing.ItemID),
		}
		if err := o.processListingItem(ctx, logger, session, task, item, outFile); err != nil {
			if browser.IsRiskControl(err) {
				return processed, err
			}
			logger.Warn("listing skipped",
				slog.String("item_id", listing.ItemID),
				slog.String("error", err.Error()))
			metrics.ItemsSkippedTotal.WithLabelValues("item_error").Inc()
			continue
		}
		set.Add(listing.ItemID)
		processed++
		metrics.ItemsProcessedTotal.WithLabelValues(string(model.TaskTypeSellerMonitoring)).Inc()

		randomSleep(ctx, 1, 2)
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
	}
	return processed, nil
}

// profileCollector 在卖家主页滚动期间持续收集三类 API 响应。
type profileCollector struct {
	mu          sync.Mutex
	pending     map[proto.NetworkRequestID]string
	headBody    chan []byte
	itemCards   []jsontree.Value
	ratingCards []jsontree.Value
	itemsDone   chan struct{}
	ratingsDone chan struct{}
	itemsOnce   sync.Once
	ratingsOnce sync.Once
}

// scrapeSellerProfile 采集卖家主页：头部摘要、滚动加载的完整商品列表
// 与评价列表。滚动终止条件是 API 明确说没有下一页，或一轮滚动后
// 超时没有新响应（按加载完毕处理）。采集失败返回 nil，不中断商品处理。
func (o *Orchestrator) scrapeSellerProfile(ctx context.Context, logger *slog.Logger, session *browser.Session, sellerID string) *model.SellerProfile {
	page, err := session.NewPage(ctx)
	if err != nil {
		logger.Warn("open profile page failed", slog.String("error", err.Error()))
		return nil
	}
	defer page.Close()

	c := &profileCollector{
		pending:     make(map[proto.NetworkRequestID]string),
		headBody:    make(chan []byte, 1),
		itemsDone:   make(chan struct{}),
		ratingsDone: make(chan struct{}),
	}

	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			var kind string
			switch {
			case strings.Contains(e.Response.URL, parser.UserHeadAPIPattern):
				kind = "head"
			case strings.Contains(e.Response.URL, parser.UserItemsAPIPattern):
				kind = "items"
			case strings.Contains(e.Response.URL, parser.RatingsAPIPattern):
				kind = "ratings"
			default:
				return
			}
			c.mu.Lock()
			c.pending[e.RequestID] = kind
			c.mu.Unlock()
		},
		func(e *proto.NetworkLoadingFinished) {
			c.mu.Lock()
			kind, ok := c.pending[e.RequestID]
			delete(c.pending, e.RequestID)
			c.mu.Unlock()
			if !ok {
				return
			}
			body, err := readResponseBody(page, e.RequestID)
			if err != nil {
				return
			}
			c.dispatch(kind, body)
		},
	)
	go wait()

	profileURL := fmt.Sprintf("https://www.goofish.com/personal?userId=%s", sellerID)
	if err := session.Navigate(ctx, page, profileURL); err != nil {
		logger.Warn("navigate profile failed", slog.String("error", err.Error()))
		return nil
	}

	var profile model.SellerProfile
	select {
	case body := <-c.headBody:
		tree, err := jsontree.Parse(body)
		if err != nil {
			logger.Warn("head payload unparsable", slog.String("error", err.Error()))
			return nil
		}
		profile = parser.ParseUserHead(tree)
	case <-time.After(headResponseTimeout):
		logger.Warn("seller head response timeout", slog.String("seller_id", sellerID))
		return nil
	case <-ctx.Done():
		return nil
	}

	// 商品列表：默认 tab，滚动到 API 报告没有下一页为止
	randomSleep(ctx, 2, 4)
	o.scrollUntil(ctx, page, c.itemsDone)
	c.mu.Lock()
	profile.Items = parser.ParseUserItems(c.itemCards)
	c.mu.Unlock()

	// 评价列表：切 tab 再滚动。tab 不存在就只带商品数据返回
	if err := clickText(page, "信用及评价", 5*time.Second); err != nil {
		logger.Debug("rating tab not found, skipping ratings")
		return &profile
	}
	randomSleep(ctx, 3, 5)
	o.scrollUntil(ctx, page, c.ratingsDone)
	c.mu.Lock()
	profile.Ratings = parser.ParseRatings(c.ratingCards)
	reputation := parser.ComputeReputation(c.ratingCards)
	c.mu.Unlock()
	profile.Reputation = &reputation

	return &profile
}

func (c *profileCollector) dispatch(kind string, body []byte) {
	tree, err := jsontree.Parse(body)
	if err != nil {
		return
	}
	switch kind {
	case "head":
		select {
		case c.headBody <- body:
		default:
		}
	case "items":
		c.mu.Lock()
		c.itemCards = append(c.itemCards, tree.Get("data", "cardList").Slice()...)
		c.mu.Unlock()
		if !tree.Get("data", "nextPage").Bool(true) {
			c.itemsOnce.Do(func() { close(c.itemsDone) })
		}
	case "ratings":
		c.mu.Lock()
		c.ratingCards = append(c.ratingCards, tree.Get("data", "cardList").Slice()...)
		c.mu.Unlock()
		if !tree.Get("data", "nextPage").Bool(true) {
			c.ratingsOnce.Do(func() { close(c.ratingsDone) })
		}
	}
}

// scrollUntil 反复滚到页底触发懒加载，直到 done 关闭或一轮等待超时。
// 超时按"大概率加载完了"处理，不是错误。
func (o *Orchestrator) scrollUntil(ctx context.Context, page *rod.Page, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}
		if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-time.After(scrollStallTimeout):
			return
		}
	}
}

func readResponseBody(page *rod.Page, id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		return nil, err
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}
