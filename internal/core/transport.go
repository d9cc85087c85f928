package core

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// statusError 可重试的HTTP状态码
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// Transport 站点请求的http.RoundTripper
//   - 注入站点头部 (请求中已有的Referer保留)
//   - 按RetryPolicy重试网络错误与404以外的4xx/5xx
//   - 解压 gzip, deflate, br 响应体
//
// 重试耗尽后返回最后一次的响应, 由调用方判断状态码
type Transport struct {
	base    http.RoundTripper
	site    models.Site
	headers models.HeaderProvider
	policy  RetryPolicy
}

// NewTransport 创建站点传输层
func NewTransport(site models.Site, headers models.HeaderProvider, policy RetryPolicy, insecureTLS bool) *Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		// 部分政府网站证书链不完整
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		utils.Debugf("站点 %s: TLS证书验证已禁用", site)
	}
	return &Transport{
		base:    base,
		site:    site,
		headers: headers,
		policy:  policy,
	}
}

// Policy 返回重试策略
func (t *Transport) Policy() RetryPolicy {
	return t.policy
}

// Headers 返回站点当前有效的请求头
func (t *Transport) Headers() (http.Header, error) {
	if t.headers == nil {
		return getDefaultHeaders(), nil
	}
	return t.headers.GetHeaders(t.site)
}

// RoundTrip 实现http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if err := t.applyHeaders(req); err != nil {
		return nil, err
	}

	var last *http.Response
	_, err := t.policy.Do(req.Context(), req.URL.String(), func(ctx context.Context) error {
		if last != nil {
			drainAndClose(last.Body)
			last = nil
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return Retryable(err)
		}

		last = resp
		if isRetryableStatus(resp.StatusCode) {
			return Retryable(&statusError{code: resp.StatusCode})
		}
		return nil
	})

	var se *statusError
	if err != nil && !errors.As(err, &se) {
		if last != nil {
			drainAndClose(last.Body)
		}
		return nil, err
	}

	if err := decompressBody(last); err != nil {
		drainAndClose(last.Body)
		return nil, err
	}
	return last, nil
}

func (t *Transport) applyHeaders(req *http.Request) error {
	headers, err := t.Headers()
	if err != nil {
		return err
	}

	referer := req.Header.Get("Referer")
	for name, values := range headers {
		if len(values) > 0 {
			req.Header.Set(name, values[0])
		}
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return nil
}

// isRetryableStatus 3xx由http.Client跟随, 404表示资源不存在
// 其余非2xx (含反爬返回的403) 均重试
func isRetryableStatus(code int) bool {
	return code >= 400 && code != http.StatusNotFound
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}

// decompressBody 根据Content-Encoding解压响应体并移除该头部
func decompressBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	body, err := decompress(encoding, raw)
	if err != nil {
		// 服务器声明了压缩但实际未压缩, 使用原始内容
		utils.Warnf("解压响应失败 [%s] (编码=%s): %v", resp.Request.URL, encoding, err)
		body = raw
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.ContentLength = int64(len(body))
	resp.Uncompressed = true
	return nil
}

// decompress 支持 gzip, deflate, br 三种压缩格式
func decompress(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)

	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))

	default:
		utils.Warnf("未知的Content-Encoding: %s", encoding)
		return body, nil
	}
}
