package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// MaxBodySize 单个响应最大读取字节数 (100MB)
const MaxBodySize = 100 * 1024 * 1024

// Response 已解压的响应
type Response struct {
	URL         string
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
}

// Text 响应体文本
func (r *Response) Text() string {
	return string(r.Body)
}

// FetcherOptions Fetcher配置
type FetcherOptions struct {
	Site        models.Site
	Headers     models.HeaderProvider
	Retry       RetryPolicy
	Timeout     time.Duration
	InsecureTLS bool

	// MaxBodySize 响应体上限, 0 使用 MaxBodySize
	MaxBodySize int64
}

// Fetcher 带重试策略的HTTP客户端, 每个站点一个实例
type Fetcher struct {
	site      models.Site
	transport *Transport
	client    *http.Client
	maxBody   int64
	log       zerolog.Logger
}

// NewFetcher 创建Fetcher
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = MaxBodySize
	}
	transport := NewTransport(opts.Site, opts.Headers, opts.Retry, opts.InsecureTLS)

	// 重试发生在Transport内部, 客户端超时需覆盖全部尝试
	attempts := time.Duration(opts.Retry.attempts())
	return &Fetcher{
		site:      opts.Site,
		transport: transport,
		maxBody:   opts.MaxBodySize,
		log:       utils.With("fetcher").With().Str("site", string(opts.Site)).Logger(),
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout*attempts + opts.Retry.Delay*(attempts-1),
		},
	}
}

// NewFetcherFromConfig 根据应用配置为站点创建Fetcher
func NewFetcherFromConfig(cfg *Config, site models.Site, headers models.HeaderProvider) *Fetcher {
	return NewFetcher(FetcherOptions{
		Site:        site,
		Headers:     headers,
		Retry:       cfg.RetryPolicy(),
		Timeout:     time.Duration(cfg.Crawl.Timeout) * time.Second,
		InsecureTLS: cfg.Crawl.InsecureTLS,
	})
}

// Site 所属站点
func (f *Fetcher) Site() models.Site {
	return f.site
}

// Client 共享的http.Client, 供colly等组件复用重试与解压逻辑
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Get 请求页面, 文本响应统一解码为UTF-8
// 404 返回包装 models.ErrNotFound 的 *models.FetchError, 不会重试
func (f *Fetcher) Get(ctx context.Context, rawURL, referer string) (*Response, error) {
	resp, err := f.do(ctx, rawURL, referer)
	if err != nil {
		return nil, err
	}
	if utils.IsTextContent(resp.ContentType) {
		resp.Body = utils.DecodeCharset(resp.Body, resp.ContentType)
	}
	return resp, nil
}

// GetBytes 请求二进制内容 (附件), 不做字符集转换
func (f *Fetcher) GetBytes(ctx context.Context, rawURL, referer string) (*Response, error) {
	return f.do(ctx, rawURL, referer)
}

func (f *Fetcher) do(ctx context.Context, rawURL, referer string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Attempts: 0, Cause: fmt.Errorf("构造请求失败: %w", err)}
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.FetchError{URL: rawURL, Attempts: f.transport.Policy().attempts(), Cause: err}
	}
	defer resp.Body.Close()

	// 多读一个字节以区分恰好等于上限与超出上限
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Attempts: 1, Cause: fmt.Errorf("读取响应失败: %w", err)}
	}

	f.log.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("GET")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Attempts: 1, Cause: models.ErrNotFound}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		attempts := 1
		if isRetryableStatus(resp.StatusCode) {
			attempts = f.transport.Policy().attempts()
		}
		return nil, &models.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Attempts:   attempts,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	// 截断的附件不能当作下载成功保存
	if int64(len(body)) > f.maxBody {
		return nil, &models.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Attempts:   1,
			Cause:      fmt.Errorf("%w (%d 字节)", models.ErrBodyTooLarge, f.maxBody),
		}
	}
	if resp.ContentLength > 0 && int64(len(body)) < resp.ContentLength {
		return nil, &models.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Attempts:   1,
			Cause:      fmt.Errorf("响应不完整: %d/%d 字节", len(body), resp.ContentLength),
		}
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// IsNotFound 判断错误是否为404
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
