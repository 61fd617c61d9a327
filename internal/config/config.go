package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App     AppConfig     `json:"app"`
	Redis   RedisConfig   `json:"redis"`
	Browser BrowserConfig `json:"browser"`
	AI      AIConfig      `json:"ai"`
	Notify  NotifyConfig  `json:"notify"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env              string        `json:"env"`               // 运行环境: local / prod
	LogLevel         string        `json:"log_level"`         // 日志级别: debug / info / warn / error
	MetricsAddr      string        `json:"metrics_addr"`      // Prometheus metrics 监听地址
	TasksFile        string        `json:"tasks_file"`        // 任务列表 JSON 文件路径
	StateDir         string        `json:"state_dir"`         // 已见商品集合与登录态的状态目录
	OutputDir        string        `json:"output_dir"`        // JSONL 输出目录
	ImagesDir        string        `json:"images_dir"`        // 临时商品图片目录
	ScheduleInterval time.Duration `json:"schedule_interval"` // 每个任务的调度间隔
	RunOnce          bool          `json:"run_once"`          // 所有任务各跑一轮后退出
	RateLimit        float64       `json:"rate_limit"`        // 全局限流速率（token/s），0 表示禁用
	RateBurst        float64       `json:"rate_burst"`        // 全局限流桶容量
}

// RedisConfig Redis 配置。Addr 为空时跳过全局限流。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// BrowserConfig 浏览器配置。
type BrowserConfig struct {
	BinPath     string        `json:"bin_path"`     // 浏览器可执行文件路径（空则自动下载）
	Headless    bool          `json:"headless"`     // 是否使用无头模式
	PageTimeout time.Duration `json:"page_timeout"` // 单次页面操作超时
}

// AIConfig 多模态打分模型配置。
type AIConfig struct {
	BaseURL    string `json:"base_url"`    // OpenAI 兼容接口地址
	APIKey     string `json:"api_key"`     // API Key
	ModelName  string `json:"model_name"`  // 模型名
	MaxRetries int    `json:"max_retries"` // 单次分析的最大重试次数
	Skip       bool   `json:"skip"`        // 跳过 AI 分析，直接通知
}

// NotifyConfig 通知渠道配置，全部可选。
type NotifyConfig struct {
	NtfyTopicURL string `json:"ntfy_topic_url"` // ntfy 主题完整 URL
	WebhookURL   string `json:"webhook_url"`    // 通用 Webhook 地址
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPass     string `json:"smtp_pass"`
	FromEmail    string `json:"from_email"`
	ToEmail      string `json:"to_email"`
}

// Load 从 JSON 文件加载配置。
//
// 配置文件不存在时使用默认值，环境变量始终可以覆盖。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:              "local",
			LogLevel:         "info",
			MetricsAddr:      ":2112",
			TasksFile:        "configs/tasks.json",
			StateDir:         "state",
			OutputDir:        "jsonl",
			ImagesDir:        "images",
			ScheduleInterval: 30 * time.Minute,
			RateLimit:        0,
			RateBurst:        3,
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Browser: BrowserConfig{
			BinPath:     "",
			Headless:    true,
			PageTimeout: 30 * time.Second,
		},
		AI: AIConfig{
			BaseURL:    "",
			APIKey:     "",
			ModelName:  "",
			MaxRetries: 3,
			Skip:       false,
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.App.TasksFile == "" {
		cfg.App.TasksFile = defaults.App.TasksFile
	}
	if cfg.App.StateDir == "" {
		cfg.App.StateDir = defaults.App.StateDir
	}
	if cfg.App.OutputDir == "" {
		cfg.App.OutputDir = defaults.App.OutputDir
	}
	if cfg.App.ImagesDir == "" {
		cfg.App.ImagesDir = defaults.App.ImagesDir
	}
	if cfg.App.ScheduleInterval == 0 {
		cfg.App.ScheduleInterval = defaults.App.ScheduleInterval
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.Browser.PageTimeout == 0 {
		cfg.Browser.PageTimeout = defaults.Browser.PageTimeout
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = defaults.AI.MaxRetries
	}
	if cfg.Notify.SMTPPort == 0 {
		cfg.Notify.SMTPPort = defaults.Notify.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("chrome_bin", "CHROME_BIN")
	_ = viper.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai_base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai_model_name", "OPENAI_MODEL_NAME")
	_ = viper.BindEnv("ntfy_topic_url", "NTFY_TOPIC_URL")
	_ = viper.BindEnv("webhook_url", "WEBHOOK_URL")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("APP_TASKS_FILE"); v != "" {
		cfg.App.TasksFile = v
	}
	if v := os.Getenv("APP_STATE_DIR"); v != "" {
		cfg.App.StateDir = v
	}
	if v := os.Getenv("APP_OUTPUT_DIR"); v != "" {
		cfg.App.OutputDir = v
	}
	if v := os.Getenv("APP_IMAGES_DIR"); v != "" {
		cfg.App.ImagesDir = v
	}
	if v := os.Getenv("APP_SCHEDULE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ScheduleInterval = d
		}
	}
	if v := os.Getenv("APP_RUN_ONCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.RunOnce = b
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("chrome_bin"); v != "" {
		cfg.Browser.BinPath = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := os.Getenv("BROWSER_PAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Browser.PageTimeout = d
		}
	}

	if v := viper.GetString("openai_base_url"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := viper.GetString("openai_api_key"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := viper.GetString("openai_model_name"); v != "" {
		cfg.AI.ModelName = v
	}
	if v := os.Getenv("SKIP_AI_ANALYSIS"); v != "" {
		cfg.AI.Skip = v == "true" || v == "1"
	}

	if v := viper.GetString("ntfy_topic_url"); v != "" {
		cfg.Notify.NtfyTopicURL = v
	}
	if v := viper.GetString("webhook_url"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Notify.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Notify.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Notify.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Notify.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Notify.FromEmail = v
	}
	if v := os.Getenv("SMTP_TO"); v != "" {
		cfg.Notify.ToEmail = v
	}
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串（如 "30m"）。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ScheduleInterval string `json:"schedule_interval"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ScheduleInterval != "" {
		duration, err := time.ParseDuration(aux.ScheduleInterval)
		if err != nil {
			return fmt.Errorf("invalid schedule_interval format: %w", err)
		}
		a.ScheduleInterval = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		ScheduleInterval string `json:"schedule_interval"`
		*Alias
	}{
		ScheduleInterval: a.ScheduleInterval.String(),
		Alias:            (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (b *BrowserConfig) UnmarshalJSON(data []byte) error {
	type Alias BrowserConfig
	aux := &struct {
		PageTimeout string `json:"page_timeout"`
		*Alias
	}{
		Alias: (*Alias)(b),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.PageTimeout != "" {
		duration, err := time.ParseDuration(aux.PageTimeout)
		if err != nil {
			return fmt.Errorf("invalid page_timeout format: %w", err)
		}
		b.PageTimeout = duration
	}

	return nil
}
