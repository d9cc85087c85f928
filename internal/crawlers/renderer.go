package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

var (
	ErrBrowserCrashed = errors.New("浏览器崩溃")
	ErrRendererClosed = errors.New("渲染器已关闭")
)

// 浏览器内部处理的头部, 不经 SetExtraHeaders 注入
var browserManagedHeaders = map[string]bool{
	"Accept-Encoding": true,
	"Connection":      true,
	"Content-Length":  true,
	"Host":            true,
}

// RendererConfig 动态渲染配置
type RendererConfig struct {
	Headless bool

	// WaitTime 页面load事件后的额外等待, 供异步脚本填充内容
	WaitTime time.Duration

	// Timeout 单个页面的渲染超时
	Timeout time.Duration

	// Headers 注入到浏览器请求中的头部 (含Cookie)
	Headers models.HeaderProvider
	Site    models.Site

	// Monitor 可选, 资源紧张时输出警告
	Monitor *ResourceMonitor

	// MaxRestarts 浏览器崩溃后的最大重启次数
	MaxRestarts int
}

// Renderer 基于Rod的无头浏览器渲染器
// 浏览器在首次渲染时启动, 多次渲染复用同一浏览器
type Renderer struct {
	config RendererConfig

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	restarts int
	closed   bool
}

// NewRenderer 创建渲染器, 不会立即启动浏览器
func NewRenderer(config RendererConfig) *Renderer {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRestarts <= 0 {
		config.MaxRestarts = 3
	}
	return &Renderer{config: config}
}

// Render 渲染页面并返回HTML
func (r *Renderer) Render(ctx context.Context, rawURL string) (string, error) {
	if r.config.Monitor != nil {
		if ok, reason := r.config.Monitor.CheckResourceAvailability(); !ok {
			utils.Warnf("系统资源紧张: %s", reason)
		}
	}

	browser, err := r.ensureBrowser()
	if err != nil {
		return "", err
	}

	html, err := r.renderPage(ctx, browser, rawURL)
	if err == nil || ctx.Err() != nil {
		return html, err
	}

	// 浏览器已失去响应时重启后重试一次
	if _, vErr := browser.Version(); vErr != nil {
		utils.Warnf("%v, 准备重启: %v", ErrBrowserCrashed, vErr)
		browser, rErr := r.restart()
		if rErr != nil {
			return "", rErr
		}
		return r.renderPage(ctx, browser, rawURL)
	}
	return "", err
}

func (r *Renderer) renderPage(ctx context.Context, browser *rod.Browser, rawURL string) (string, error) {
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("创建标签页失败: %w", err)
	}
	defer func() {
		if cErr := page.Close(); cErr != nil {
			utils.Debugf("关闭标签页失败: %v", cErr)
		}
	}()

	page = page.Timeout(r.config.Timeout)

	if headers := r.extraHeaders(); len(headers) > 0 {
		cleanup, err := page.SetExtraHeaders(headers)
		if err != nil {
			utils.Warnf("设置请求头失败: %v", err)
		} else {
			defer cleanup()
		}
	}

	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("导航失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("等待页面加载失败: %w", err)
	}
	if err := sleepCtx(ctx, r.config.WaitTime.Seconds()); err != nil {
		return "", err
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("读取页面HTML失败: %w", err)
	}
	utils.Debugf("页面渲染完成: %s (%d 字节)", rawURL, len(html))
	return html, nil
}

// extraHeaders 转换为 SetExtraHeaders 需要的 name, value 交替列表
func (r *Renderer) extraHeaders() []string {
	if r.config.Headers == nil {
		return nil
	}
	headers, err := r.config.Headers.GetHeaders(r.config.Site)
	if err != nil {
		utils.Warnf("获取HTTP头部失败: %v", err)
		return nil
	}
	return flattenHeaders(headers)
}

func flattenHeaders(headers http.Header) []string {
	var dict []string
	for name, values := range headers {
		if len(values) == 0 || browserManagedHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		dict = append(dict, name, values[0])
	}
	return dict
}

func (r *Renderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.browser != nil {
		return r.browser, nil
	}
	return r.launchLocked()
}

func (r *Renderer) launchLocked() (*rod.Browser, error) {
	l := launcher.New().Headless(r.config.Headless)
	// 政府网站证书链常不完整
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	r.launcher = l
	r.browser = browser
	utils.Infof("🌐 浏览器已启动 (headless=%v)", r.config.Headless)
	return browser, nil
}

func (r *Renderer) restart() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.restarts >= r.config.MaxRestarts {
		return nil, fmt.Errorf("%w: 已重启 %d 次", ErrBrowserCrashed, r.restarts)
	}
	r.restarts++
	r.shutdownLocked()
	return r.launchLocked()
}

// Close 关闭浏览器, 可重复调用
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.shutdownLocked()
	return nil
}

func (r *Renderer) shutdownLocked() {
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			utils.Debugf("关闭浏览器失败: %v", err)
		}
		r.browser = nil
		utils.Debugf("浏览器已关闭")
	}
	if r.launcher != nil {
		r.launcher.Cleanup()
		r.launcher = nil
	}
}
