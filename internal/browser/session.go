// Package browser 封装 go-rod 浏览器会话。
//
// 负责浏览器启动、登录态注入、移动端设备仿真与反检测脚本，
// 并提供按 URL 模式捕获 API 响应体的工具。
// 针对 Docker/EC2 环境做了适配（NoSandbox）。
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"fleahunter/internal/pkg/metrics"
)

// 超时控制，防止僵死的浏览器拖垮整个任务循环。
const (
	stealthScriptTimeout = 5 * time.Second  // Stealth 脚本应用超时
	navigateTimeout      = 30 * time.Second // 页面导航超时
	responseBodyTimeout  = 5 * time.Second  // 读取响应体超时
)

// 移动端仿真默认值，与真实安卓设备指纹一致。
const (
	defaultUserAgent = "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36"
	defaultLocale    = "zh-CN"
	defaultTimezone  = "Asia/Shanghai"
)

const (
	defaultViewportWidth  = 412
	defaultViewportHeight = 915
	defaultScaleFactor    = 2.625
	defaultLongitude      = 121.4737
	defaultLatitude       = 31.2304
)

// 屏蔽第三方统计与广告请求，减少指纹暴露面和带宽消耗。
var blockedURLPatterns = []string{
	"*google-analytics*",
	"*googletagmanager*",
	"*doubleclick*",
	"*facebook*",
	"*hotjar*",
	"*sentry*",
}

// Options 浏览器启动参数。
type Options struct {
	BinPath     string
	Headless    bool
	ProxyURL    string
	PageTimeout time.Duration
}

// Session 一个浏览器实例及其登录态。每次任务尝试使用独立会话，
// 轮换账号或代理时整个会话重建。
type Session struct {
	browser *rod.Browser
	cleanup func()
	state   *LoginState
	logger  *slog.Logger
	timeout time.Duration
}

// LoginState 从登录态文件载入的会话环境。
// 文件可能是纯 cookies 导出，也可能是带环境快照的增强导出，
// 快照中的 UA、语言、时区、屏幕参数覆盖仿真默认值。
type LoginState struct {
	Cookies      []*proto.NetworkCookieParam
	UserAgent    string
	Locale       string
	Timezone     string
	ViewWidth    int
	ViewHeight   int
	ScaleFactor  float64
	TouchEnabled bool
	ExtraHeaders map[string]string
}

// LoadLoginState 解析登录态文件。
func LoadLoginState(path string) (*LoginState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read login state: %w", err)
	}

	var raw struct {
		Cookies []struct {
			Name     string  `json:"name"`
			Value    string  `json:"value"`
			Domain   string  `json:"domain"`
			Path     string  `json:"path"`
			Expires  float64 `json:"expires"`
			HTTPOnly bool    `json:"httpOnly"`
			Secure   bool    `json:"secure"`
			SameSite string  `json:"sameSite"`
		} `json:"cookies"`
		Headers map[string]string `json:"headers"`
		Env     struct {
			Navigator struct {
				UserAgent     string `json:"userAgent"`
				Language      string `json:"language"`
				MaxTouchPoint int    `json:"maxTouchPoints"`
			} `json:"navigator"`
			Screen struct {
				Width            int     `json:"width"`
				Height           int     `json:"height"`
				DevicePixelRatio float64 `json:"devicePixelRatio"`
			} `json:"screen"`
			Intl struct {
				TimeZone string `json:"timeZone"`
			} `json:"intl"`
		} `json:"env"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse login state: %w", err)
	}

	state := &LoginState{
		UserAgent:    defaultUserAgent,
		Locale:       defaultLocale,
		Timezone:     defaultTimezone,
		ViewWidth:    defaultViewportWidth,
		ViewHeight:   defaultViewportHeight,
		ScaleFactor:  defaultScaleFactor,
		TouchEnabled: true,
	}

	for _, c := range raw.Cookies {
		cookie := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			cookie.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch strings.ToLower(c.SameSite) {
		case "lax":
			cookie.SameSite = proto.NetworkCookieSameSiteLax
		case "strict":
			cookie.SameSite = proto.NetworkCookieSameSiteStrict
		case "none":
			cookie.SameSite = proto.NetworkCookieSameSiteNone
		}
		state.Cookies = append(state.Cookies, cookie)
	}

	// 增强快照覆盖仿真默认值
	if ua := pickHeader(raw.Headers, "User-Agent"); ua != "" {
		state.UserAgent = ua
	} else if raw.Env.Navigator.UserAgent != "" {
		state.UserAgent = raw.Env.Navigator.UserAgent
	}
	if al := pickHeader(raw.Headers, "Accept-Language"); al != "" {
		state.Locale = strings.TrimSpace(strings.Split(al, ",")[0])
	} else if raw.Env.Navigator.Language != "" {
		state.Locale = raw.Env.Navigator.Language
	}
	if raw.Env.Intl.TimeZone != "" {
		state.Timezone = raw.Env.Intl.TimeZone
	}
	if raw.Env.Screen.Width > 0 && raw.Env.Screen.Height > 0 {
		state.ViewWidth = raw.Env.Screen.Width
		state.ViewHeight = raw.Env.Screen.Height
	}
	if raw.Env.Screen.DevicePixelRatio > 0 {
		state.ScaleFactor = raw.Env.Screen.DevicePixelRatio
	}
	if raw.Env.Navigator.MaxTouchPoint > 0 {
		state.TouchEnabled = true
	}

	state.ExtraHeaders = make(map[string]string)
	for k, v := range raw.Headers {
		lower := strings.ToLower(k)
		if lower == "cookie" || lower == "content-length" || lower == "user-agent" {
			continue
		}
		state.ExtraHeaders[k] = v
	}
	return state, nil
}

func pickHeader(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Launch 启动浏览器并注入登录态。proxyURL 为空时直连。
func Launch(ctx context.Context, opts Options, state *LoginState, logger *slog.Logger) (*Session, error) {
	bin := opts.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(opts.Headless).
		Bin(bin).
		NoSandbox(true).
		// 禁用 /dev/shm，防止容器内内存崩溃
		Set("disable-dev-shm-usage", "true").
		// 禁用 GPU，服务器环境不需要，节省资源
		Set("disable-gpu", "true").
		Set("disable-software-rasterizer", "true").
		Set("disable-blink-features", "AutomationControlled").
		Set("remote-allow-origins", "*").
		// 缓存与内存优化，减少磁盘写入压力
		Set("disk-cache-size", "1").
		Set("media-cache-size", "1").
		Set("disable-application-cache", "true").
		Set("js-flags", "--max_old_space_size=512")

	var proxyUser, proxyPass string
	if opts.ProxyURL != "" {
		parsed, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid proxy url: %s", opts.ProxyURL)
		}
		l = l.Proxy(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host))
		if parsed.User != nil {
			proxyUser = parsed.User.Username()
			if pass, ok := parsed.User.Password(); ok {
				proxyPass = pass
			}
		}
		logger.Info("using http proxy", slog.String("server", parsed.Host))
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	if proxyUser != "" {
		go browser.MustHandleAuth(proxyUser, proxyPass)()
		logger.Debug("proxy authentication handler registered")
	}

	if state != nil && len(state.Cookies) > 0 {
		if err := browser.SetCookies(state.Cookies); err != nil {
			_ = browser.Close()
			l.Cleanup()
			return nil, fmt.Errorf("set cookies: %w", err)
		}
		logger.Info("login state applied", slog.Int("cookies", len(state.Cookies)))
	}

	timeout := opts.PageTimeout
	if timeout <= 0 {
		timeout = navigateTimeout
	}

	metrics.BrowserSessionsActive.Inc()
	return &Session{
		browser: browser,
		cleanup: l.Cleanup,
		state:   state,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// Close 关闭浏览器并清理临时目录。
func (s *Session) Close() {
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("close browser failed", slog.String("error", err.Error()))
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	metrics.BrowserSessionsActive.Dec()
}

// NewPage 打开一个配置完毕的页面：反检测脚本、设备仿真与请求屏蔽均已就绪。
func (s *Session) NewPage(ctx context.Context) (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx).Timeout(s.timeout)

	// 浏览器卡住时 EvalOnNewDocument 可能永不返回，这里用 goroutine 包装
	stealthTimer := time.NewTimer(stealthScriptTimeout)
	defer stealthTimer.Stop()
	stealthDone := make(chan error, 1)
	go func() {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			stealthDone <- evalErr
			return
		}
		_, evalErr := page.EvalOnNewDocument(antiDetectionScript)
		stealthDone <- evalErr
	}()
	select {
	case err = <-stealthDone:
		if err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("apply stealth script: %w", err)
		}
	case <-stealthTimer.C:
		_ = page.Close()
		return nil, fmt.Errorf("apply stealth script timeout after %v", stealthScriptTimeout)
	case <-ctx.Done():
		_ = page.Close()
		return nil, fmt.Errorf("context cancelled during stealth script: %w", ctx.Err())
	}

	if err := s.emulateDevice(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	if err := (proto.NetworkSetBlockedURLs{Urls: blockedURLPatterns}).Call(page); err != nil {
		s.logger.Warn("set blocked urls failed", slog.String("error", err.Error()))
	}
	return page, nil
}

// emulateDevice 应用移动端指纹：视口、UA、触摸、时区与地理位置。
func (s *Session) emulateDevice(page *rod.Page) error {
	state := s.state
	if state == nil {
		state = &LoginState{
			UserAgent:    defaultUserAgent,
			Locale:       defaultLocale,
			Timezone:     defaultTimezone,
			ViewWidth:    defaultViewportWidth,
			ViewHeight:   defaultViewportHeight,
			ScaleFactor:  defaultScaleFactor,
			TouchEnabled: true,
		}
	}

	mobile := strings.Contains(strings.ToLower(state.UserAgent), "mobile") ||
		strings.Contains(strings.ToLower(state.UserAgent), "android")

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             state.ViewWidth,
		Height:            state.ViewHeight,
		DeviceScaleFactor: state.ScaleFactor,
		Mobile:            mobile,
	}).Call(page); err != nil {
		return fmt.Errorf("set device metrics: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      state.UserAgent,
		AcceptLanguage: state.Locale,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	maxTouchPoints := 5
	if err := (proto.EmulationSetTouchEmulationEnabled{
		Enabled:        state.TouchEnabled,
		MaxTouchPoints: &maxTouchPoints,
	}).Call(page); err != nil {
		s.logger.Warn("enable touch emulation failed", slog.String("error", err.Error()))
	}
	if err := (proto.EmulationSetTimezoneOverride{
		TimezoneID: state.Timezone,
	}).Call(page); err != nil {
		s.logger.Warn("set timezone failed", slog.String("error", err.Error()))
	}
	longitude := float64(defaultLongitude)
	latitude := float64(defaultLatitude)
	accuracy := float64(100)
	if err := (proto.EmulationSetGeolocationOverride{
		Longitude: &longitude,
		Latitude:  &latitude,
		Accuracy:  &accuracy,
	}).Call(page); err != nil {
		s.logger.Warn("set geolocation failed", slog.String("error", err.Error()))
	}

	if len(state.ExtraHeaders) > 0 {
		pairs := make([]string, 0, len(state.ExtraHeaders)*2)
		for k, v := range state.ExtraHeaders {
			pairs = append(pairs, k, v)
		}
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			s.logger.Warn("set extra headers failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Navigate 带超时地加载 URL，浏览器僵死时及时返回错误。
func (s *Session) Navigate(ctx context.Context, page *rod.Page, target string) error {
	navigateCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := page.Navigate(target); err != nil {
			errCh <- err
			return
		}
		errCh <- page.WaitDOMStable(time.Second, 0)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("navigate %s: %w", target, err)
		}
		return nil
	case <-navigateCtx.Done():
		return fmt.Errorf("navigate timeout: %w", navigateCtx.Err())
	}
}

// ExpectResponse 在执行 action 期间捕获第一个 URL 包含 pattern 的响应体。
// 目标站点所有数据接口都走 mtop 网关，响应体是 JSON。
func ExpectResponse(ctx context.Context, page *rod.Page, pattern string, timeout time.Duration, action func() error) ([]byte, error) {
	var reqID proto.NetworkRequestID
	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if reqID == "" && strings.Contains(e.Response.URL, pattern) {
				reqID = e.RequestID
			}
		},
		func(e *proto.NetworkLoadingFinished) bool {
			return reqID != "" && e.RequestID == reqID
		},
	)

	if err := action(); err != nil {
		return nil, err
	}

	waitDone := make(chan struct{})
	go func() {
		wait()
		close(waitDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-waitDone:
	case <-timer.C:
		return nil, fmt.Errorf("wait response %q: timeout after %v", pattern, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait response %q: %w", pattern, ctx.Err())
	}

	bodyCtx, cancel := context.WithTimeout(ctx, responseBodyTimeout)
	defer cancel()
	res, err := proto.NetworkGetResponseBody{RequestID: reqID}.Call(page.Context(bodyCtx))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if res.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return nil, fmt.Errorf("decode response body: %w", err)
		}
		return decoded, nil
	}
	return []byte(res.Body), nil
}
