// Package parser 将拦截到的上游 API 响应解析为规范化记录。
//
// 所有函数都是无状态纯函数。上游返回结构未有文档且经常变动，
// 任何字段缺失都按默认值处理，绝不因为单个字段报错。
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fleahunter/internal/model"
	"fleahunter/internal/pkg/jsontree"
)

// 拦截目标 API 的 URL 特征串。
const (
	SearchAPIPattern    = "h5api.m.goofish.com/h5/mtop.taobao.idlemtopsearch.pc.search"
	DetailAPIPattern    = "h5api.m.goofish.com/h5/mtop.taobao.idle.pc.detail"
	UserHeadAPIPattern  = "mtop.idle.web.user.page.head"
	UserItemsAPIPattern = "mtop.idle.web.xyh.item.list"
	RatingsAPIPattern   = "mtop.idle.web.trade.rate.list"
)

// appSchemePrefix 商品深链的 App 协议前缀，重写为网页地址。
const (
	appSchemePrefix = "fleamarket://"
	webLinkPrefix   = "https://www.goofish.com/"
)

// ParseSearchResults 解析搜索接口响应，返回商品基础信息列表。
//
// resultList 缺失是正常的"无结果"，返回空列表而不是错误。
func ParseSearchResults(payload jsontree.Value) []model.BasicItem {
	entries := payload.Get("data", "resultList").Slice()
	if len(entries) == 0 {
		return nil
	}

	items := make([]model.BasicItem, 0, len(entries))
	for _, entry := range entries {
		main := entry.Get("data", "item", "main", "exContent")
		clickArgs := entry.Get("data", "item", "main", "clickParam", "args")

		rawLink := entry.Get("data", "item", "main", "targetUrl").Str("")

		item := model.BasicItem{
			ItemID:        main.Get("itemId").StrOrNumber("unknown"),
			Title:         main.Get("title").Str("unknown"),
			Price:         normalizePrice(main.Get("price")),
			OriginalPrice: main.Get("oriPrice").Str(""),
			Area:          main.Get("area").Str("unknown"),
			SellerNick:    main.Get("userNickName").Str("unknown"),
			Link:          strings.Replace(rawLink, appSchemePrefix, webLinkPrefix, 1),
			PublishTime:   formatPublishTime(clickArgs.Get("publishTime").StrOrNumber("")),
			Tags:          deriveTags(main, clickArgs),
			WantCount:     clickArgs.Get("wantNum").StrOrNumber(""),
		}
		items = append(items, item)
	}
	return items
}

// normalizePrice 拼接价格片段并展开 "万" 单位。
//
// 价格在响应中是一组 {"text": ...} 片段，拼接后可能带 "当前价" 前缀；
// 含 "万" 时（如 "¥3.5万"）展开为绝对金额 "¥35000"。
func normalizePrice(priceParts jsontree.Value) string {
	parts := priceParts.Slice()
	if parts == nil {
		return "unknown"
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Get("text").StrOrNumber(""))
	}
	price := strings.TrimSpace(strings.ReplaceAll(sb.String(), "当前价", ""))

	if strings.Contains(price, "万") {
		numeric := strings.ReplaceAll(price, "¥", "")
		numeric = strings.ReplaceAll(numeric, "万", "")
		if f, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64); err == nil {
			return fmt.Sprintf("¥%.0f", f*10000)
		}
	}
	return price
}

// formatPublishTime 将毫秒时间戳格式化为本地时间，非数字返回 "unknown"。
func formatPublishTime(ts string) string {
	if ts == "" {
		return "unknown"
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "unknown"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

// deriveTags 从打点参数与嵌套标签列表推导商品标签。
func deriveTags(main, clickArgs jsontree.Value) []string {
	var tags []string
	if clickArgs.Get("tag").Str("") == "freeship" {
		tags = append(tags, "包邮")
	}
	for _, tag := range main.Get("fishTags", "r1", "tagList").Slice() {
		if strings.Contains(tag.Get("data", "content").Str(""), "验货宝") {
			tags = append(tags, "验货宝")
			break
		}
	}
	return tags
}

// LinkUniqueKey 截取链接第一个 "&" 之前的部分作为去重标识。
// 同一商品带不同跟踪参数的链接必须得到同一个 key。
func LinkUniqueKey(link string) string {
	if i := strings.IndexByte(link, '&'); i >= 0 {
		return link[:i]
	}
	return link
}

// ParseDetail 从详情接口响应中提取补全字段，原地写入 item。
func ParseDetail(payload jsontree.Value, item *model.BasicItem) {
	itemDO := payload.Get("data", "itemDO")
	if !itemDO.Exists() {
		return
	}
	if desc := itemDO.Get("desc").Str(""); desc != "" {
		item.Description = desc
	}
	if v := itemDO.Get("browseCnt").StrOrNumber(""); v != "" {
		item.ViewCount = v
	}
	if v := itemDO.Get("wantCnt").StrOrNumber(""); v != "" {
		item.WantCount = v
	}
	var urls []string
	for _, img := range itemDO.Get("imageInfos").Slice() {
		if u := img.Get("url").Str(""); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) > 0 {
		item.ImageURLs = urls
	}
}

// DetailSellerID 从详情响应中取卖家用户 ID，缺失返回空串。
func DetailSellerID(payload jsontree.Value) string {
	return payload.Get("data", "sellerDO", "sellerId").StrOrNumber("")
}

// ParseUserHead 解析用户主页头部接口响应。
//
// 信用等级标签按 attributes.role 区分卖家/买家两个维度。
func ParseUserHead(payload jsontree.Value) model.SellerProfile {
	data := payload.Get("data")
	base := data.Get("module", "base")

	profile := model.SellerProfile{
		Nickname:     base.Get("displayName").Str("unknown"),
		Avatar:       base.Get("avatar", "avatar").Str(""),
		Bio:          base.Get("introduction").Str(""),
		ItemCount:    data.Get("module", "tabs", "item", "number").StrOrNumber("N/A"),
		RatingCount:  data.Get("module", "tabs", "rate", "number").StrOrNumber("N/A"),
		SellerCredit: "N/A",
		BuyerCredit:  "N/A",
	}

	for _, tag := range base.Get("ylzTags").Slice() {
		text := tag.Get("text").Str("")
		switch tag.Get("attributes", "role").Str("") {
		case "seller":
			profile.SellerCredit = text
		case "buyer":
			profile.BuyerCredit = text
		default:
			if strings.Contains(text, "芝麻") {
				profile.ZhimaCredit = text
			}
		}
	}

	if days := base.Get("registerDays").Int(0); days > 0 {
		profile.RegistrationInfo = FormatRegistrationDays(int(days))
	}
	return profile
}

// ParseUserItems 解析用户主页商品列表接口响应。
//
// itemStatus: 0 在售，1 已售，其余映射为 "unknown status(code)"。
func ParseUserItems(cards []jsontree.Value) []model.ListingSummary {
	out := make([]model.ListingSummary, 0, len(cards))
	for _, card := range cards {
		data := card.Get("cardData")
		if !data.Exists() {
			continue
		}

		var status string
		switch code := data.Get("itemStatus").Int(-1); code {
		case 0:
			status = "on sale"
		case 1:
			status = "sold"
		default:
			status = fmt.Sprintf("unknown status(%d)", code)
		}

		out = append(out, model.ListingSummary{
			ItemID:    data.Get("id").StrOrNumber(""),
			Title:     data.Get("title").Str(""),
			Price:     data.Get("priceInfo", "price").StrOrNumber(""),
			MainImage: data.Get("picInfo", "picUrl").Str(""),
			Status:    status,
		})
	}
	return out
}

// ParseRatings 解析评价列表接口响应。
//
// 角色按评价卡标签文本的子串判定，rate 值 1/0/-1 映射为好中差。
func ParseRatings(cards []jsontree.Value) []model.Rating {
	out := make([]model.Rating, 0, len(cards))
	for _, card := range cards {
		data := card.Get("cardData")
		if !data.Exists() {
			continue
		}
		out = append(out, model.Rating{
			Role:    classifyRatingRole(data.Get("rateTagList", 0, "text").Str("")),
			Rate:    classifyRateValue(data.Get("rate")),
			Content: data.Get("feedback").Str(""),
			From:    data.Get("raterUserNick").Str(""),
		})
	}
	return out
}

func classifyRatingRole(roleTag string) string {
	lower := strings.ToLower(roleTag)
	switch {
	case strings.Contains(roleTag, "卖家") || strings.Contains(lower, "seller"):
		return "seller"
	case strings.Contains(roleTag, "买家") || strings.Contains(lower, "buyer"):
		return "buyer"
	default:
		return "unknown"
	}
}

func classifyRateValue(rate jsontree.Value) string {
	if !rate.Exists() {
		return "unknown"
	}
	switch rate.Int(math.MinInt64) {
	case 1:
		return "positive"
	case 0:
		return "neutral"
	case -1:
		return "negative"
	default:
		return "unknown"
	}
}

// ComputeReputation 按角色聚合好评率。分母为零时比率为 "N/A"，不做除法。
func ComputeReputation(cards []jsontree.Value) model.ReputationStats {
	stats := model.ReputationStats{
		SellerPositiveRate: "N/A",
		BuyerPositiveRate:  "N/A",
	}

	for _, card := range cards {
		data := card.Get("cardData")
		role := classifyRatingRole(data.Get("rateTagList", 0, "text").Str(""))
		positive := data.Get("rate").Int(math.MinInt64) == 1

		switch role {
		case "seller":
			stats.SellerTotal++
			if positive {
				stats.SellerPositive++
			}
		case "buyer":
			stats.BuyerTotal++
			if positive {
				stats.BuyerPositive++
			}
		}
	}

	if stats.SellerTotal > 0 {
		stats.SellerPositiveRate = fmt.Sprintf("%.2f%%", float64(stats.SellerPositive)/float64(stats.SellerTotal)*100)
	}
	if stats.BuyerTotal > 0 {
		stats.BuyerPositiveRate = fmt.Sprintf("%.2f%%", float64(stats.BuyerPositive)/float64(stats.BuyerTotal)*100)
	}
	return stats
}

// FormatRegistrationDays 把注册天数格式化为 "来闲鱼X年Y个月" 风格的文本。
func FormatRegistrationDays(totalDays int) string {
	if totalDays <= 0 {
		return "unknown"
	}

	const daysInYear = 365.25
	const daysInMonth = daysInYear / 12

	years := int(math.Floor(float64(totalDays) / daysInYear))
	remaining := float64(totalDays) - float64(years)*daysInYear
	months := int(math.Round(remaining / daysInMonth))
	if months == 12 {
		years++
		months = 0
	}

	switch {
	case years > 0 && months > 0:
		return fmt.Sprintf("来闲鱼%d年%d个月", years, months)
	case years > 0:
		return fmt.Sprintf("来闲鱼%d年整", years)
	case months > 0:
		return fmt.Sprintf("来闲鱼%d个月", months)
	default:
		return "来闲鱼不足一个月"
	}
}
