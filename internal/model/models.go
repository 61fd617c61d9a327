package model

// TaskType 任务类型。
type TaskType string

const (
	TaskTypeKeywordSearch    TaskType = "keyword_search"    // 关键词搜索监控
	TaskTypeSellerMonitoring TaskType = "seller_monitoring" // 卖家上新监控
)

// RotationMode 资源轮换模式。
type RotationMode string

const (
	// RotationPerTask 整个任务使用同一个资源，失败后也不更换。
	RotationPerTask RotationMode = "per_task"
	// RotationOnFailure 失败后把当前资源拉黑并换一个新的。
	RotationOnFailure RotationMode = "on_failure"
)

// RotationConfig 单个维度（账号或代理）的轮换配置。
type RotationConfig struct {
	Enabled         bool         `json:"enabled"`           // 是否启用轮换
	Mode            RotationMode `json:"mode"`              // per_task / on_failure
	RetryLimit      int          `json:"retry_limit"`       // 该维度的重试预算
	BlacklistTTLSec int          `json:"blacklist_ttl_sec"` // 拉黑时长（秒），0 表示本次运行内永久拉黑
	Pool            string       `json:"pool"`              // 代理池字符串（逗号或换行分隔），账号维度不用
	StateDir        string       `json:"state_dir"`         // 账号凭证目录，代理维度不用
}

// TaskConfig 表示一个监控任务。
//
// 任务列表由独立的 JSON 文件配置，引擎只读不写。
type TaskConfig struct {
	TaskName string   `json:"task_name"` // 任务名，用于输出文件与状态文件分区
	Enabled  bool     `json:"enabled"`   // 是否参与调度
	TaskType TaskType `json:"task_type"` // keyword_search / seller_monitoring

	// 关键词搜索参数
	Keyword          string `json:"keyword"`            // 搜索关键词
	MaxPages         int    `json:"max_pages"`          // 最大翻页数
	SortByNewest     bool   `json:"sort_by_newest"`     // 按最新发布排序
	PersonalOnly     bool   `json:"personal_only"`      // 仅个人卖家
	FreeShippingOnly bool   `json:"free_shipping_only"` // 仅包邮
	MinPrice         string `json:"min_price"`          // 最低价（空表示不限）
	MaxPrice         string `json:"max_price"`          // 最高价（空表示不限）
	Region           string `json:"region"`             // 发货地区筛选（如 "浙江/杭州"）

	// 卖家监控参数
	SellerID          string `json:"seller_id"`            // 被监控卖家的用户 ID
	MaxProductsPerRun int    `json:"max_products_per_run"` // 单次运行最多处理的新商品数

	// AI 分析
	AIPrompt string `json:"ai_prompt"` // 已解析好的提示词文本，空则跳过 AI 分析

	// 账号与代理
	AccountStateFile string         `json:"account_state_file"` // 指定登录态文件，设置后禁用账号轮换
	AccountRotation  RotationConfig `json:"account_rotation"`   // 账号轮换配置
	ProxyRotation    RotationConfig `json:"proxy_rotation"`     // 代理轮换配置
}

// BasicItem 搜索结果页解析出的商品基础信息，详情页抓取后再补全。
type BasicItem struct {
	ItemID        string   `json:"item_id"`
	Title         string   `json:"title"`
	Price         string   `json:"price"`
	OriginalPrice string   `json:"original_price"`
	Area          string   `json:"area"`
	SellerNick    string   `json:"seller_nick"`
	Link          string   `json:"link"`
	PublishTime   string   `json:"publish_time"`
	Tags          []string `json:"tags"`

	// 详情页补全字段
	Description string   `json:"description,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	WantCount   string   `json:"want_count,omitempty"`
	ViewCount   string   `json:"view_count,omitempty"`
}

// ListingSummary 卖家在售/已售商品的摘要。
type ListingSummary struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	MainImage string `json:"main_image"`
	Status    string `json:"status"` // "on sale" / "sold" / "unknown status(N)"
}

// Rating 单条评价。
type Rating struct {
	Role    string `json:"role"` // "seller" / "buyer" / "unknown"
	Rate    string `json:"rate"` // "positive" / "neutral" / "negative"
	Content string `json:"content"`
	From    string `json:"from"`
}

// ReputationStats 评价聚合统计。分母为零时比率字段为 "N/A"。
type ReputationStats struct {
	SellerTotal        int    `json:"seller_total"`
	SellerPositive     int    `json:"seller_positive"`
	SellerPositiveRate string `json:"seller_positive_rate"`
	BuyerTotal         int    `json:"buyer_total"`
	BuyerPositive      int    `json:"buyer_positive"`
	BuyerPositiveRate  string `json:"buyer_positive_rate"`
}

// SellerProfile 卖家主页聚合信息。
type SellerProfile struct {
	Nickname         string           `json:"nickname"`
	Avatar           string           `json:"avatar"`
	Bio              string           `json:"bio"`
	ItemCount        string           `json:"item_count"`
	RatingCount      string           `json:"rating_count"`
	SellerCredit     string           `json:"seller_credit"`
	BuyerCredit      string           `json:"buyer_credit"`
	ZhimaCredit      string           `json:"zhima_credit"`
	RegistrationInfo string           `json:"registration_info,omitempty"`
	Items            []ListingSummary `json:"items,omitempty"`
	Ratings          []Rating         `json:"ratings,omitempty"`
	Reputation       *ReputationStats `json:"reputation,omitempty"`
}

// ScoredResult AI 打分结果。
type ScoredResult struct {
	IsRecommended bool   `json:"is_recommended"`
	Reason        string `json:"reason"`
	Model         string `json:"model,omitempty"`
}

// ProductRecord 最终输出单元，以 JSONL 形式一次性追加写入，写后不再修改。
type ProductRecord struct {
	CrawlTime      string         `json:"crawl_time"`
	SearchKeywords string         `json:"search_keywords,omitempty"`
	TaskName       string         `json:"task_name"`
	BasicInfo      BasicItem      `json:"basic_info"`
	SellerInfo     *SellerProfile `json:"seller_info,omitempty"`
	AIAnalysis     *ScoredResult  `json:"ai_analysis,omitempty"`
}
