package core

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/RecoveryAshes/govpolicy/internal/models"
)

// staticHeaders 固定头部的HeaderProvider
type staticHeaders http.Header

func (h staticHeaders) GetHeaders(site models.Site) (http.Header, error) {
	return http.Header(h), nil
}

func testFetcher(attempts int) *Fetcher {
	return NewFetcher(FetcherOptions{
		Site:    models.SiteNDRC,
		Headers: staticHeaders{"User-Agent": []string{"policycrawl-test"}, "Cookie": []string{"sid=1"}},
		Retry:   RetryPolicy{MaxAttempts: attempts, Delay: time.Millisecond},
		Timeout: 5 * time.Second,
	})
}

func TestFetcher_Get(t *testing.T) {
	t.Run("注入站点头部并保留Referer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("User-Agent") != "policycrawl-test" {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			if r.Header.Get("Cookie") != "sid=1" {
				t.Errorf("Cookie = %q", r.Header.Get("Cookie"))
			}
			if r.Header.Get("Referer") != "https://www.ndrc.gov.cn/list" {
				t.Errorf("Referer = %q", r.Header.Get("Referer"))
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html>通知</html>"))
		}))
		defer server.Close()

		resp, err := testFetcher(1).Get(context.Background(), server.URL, "https://www.ndrc.gov.cn/list")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Text() != "<html>通知</html>" {
			t.Errorf("Body = %q", resp.Text())
		}
	})

	t.Run("gzip响应自动解压", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("<p>规范性文件</p>"))
		zw.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(buf.Bytes())
		}))
		defer server.Close()

		resp, err := testFetcher(1).Get(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Text() != "<p>规范性文件</p>" {
			t.Errorf("Body = %q", resp.Text())
		}
	})

	t.Run("brotli响应自动解压", func(t *testing.T) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(`{"articles":[]}`))
		bw.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "br")
			w.Header().Set("Content-Type", "application/json")
			w.Write(buf.Bytes())
		}))
		defer server.Close()

		resp, err := testFetcher(1).Get(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Text() != `{"articles":[]}` {
			t.Errorf("Body = %q", resp.Text())
		}
	})

	t.Run("GBK页面转换为UTF-8", func(t *testing.T) {
		// "政策" 的GBK编码
		gbk := []byte{'<', 'p', '>', 0xD5, 0xFE, 0xB2, 0xDF, '<', '/', 'p', '>'}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=gbk")
			w.Write(gbk)
		}))
		defer server.Close()

		resp, err := testFetcher(1).Get(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Text() != "<p>政策</p>" {
			t.Errorf("Body = %q", resp.Text())
		}
	})
}

func TestFetcher_Retry(t *testing.T) {
	t.Run("5xx重试后成功", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&hits, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		resp, err := testFetcher(3).Get(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Text() != "ok" || atomic.LoadInt32(&hits) != 3 {
			t.Errorf("期望第3次成功, 请求次数 %d", hits)
		}
	})

	t.Run("404不重试", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			http.NotFound(w, r)
		}))
		defer server.Close()

		_, err := testFetcher(3).Get(context.Background(), server.URL, "")
		if !IsNotFound(err) {
			t.Fatalf("期望ErrNotFound, 得到 %v", err)
		}
		if atomic.LoadInt32(&hits) != 1 {
			t.Errorf("404不应重试, 请求次数 %d", hits)
		}
	})

	t.Run("重试耗尽返回FetchError", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := testFetcher(3).Get(context.Background(), server.URL, "")
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("期望FetchError, 得到 %v", err)
		}
		if fe.StatusCode != http.StatusBadGateway || fe.Attempts != 3 {
			t.Errorf("FetchError = %+v", fe)
		}
		if atomic.LoadInt32(&hits) != 3 {
			t.Errorf("请求次数 = %d, want 3", hits)
		}
	})

	t.Run("403反爬拦截同样重试", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		_, err := testFetcher(3).Get(context.Background(), server.URL, "")
		var fe *models.FetchError
		if !errors.As(err, &fe) || fe.StatusCode != http.StatusForbidden {
			t.Fatalf("期望403 FetchError, 得到 %v", err)
		}
		if fe.Attempts != 3 || atomic.LoadInt32(&hits) != 3 {
			t.Errorf("Attempts = %d, 请求次数 = %d, want 3", fe.Attempts, hits)
		}
	})

	t.Run("重定向由客户端跟随不计入重试", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			if r.URL.Path == "/old" {
				http.Redirect(w, r, "/new", http.StatusFound)
				return
			}
			w.Write([]byte("moved"))
		}))
		defer server.Close()

		resp, err := testFetcher(3).Get(context.Background(), server.URL+"/old", "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Text() != "moved" || atomic.LoadInt32(&hits) != 2 {
			t.Errorf("Body = %q, 请求次数 = %d", resp.Text(), hits)
		}
	})

	t.Run("网络错误重试", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := testFetcher(2).Get(context.Background(), url, "")
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("期望FetchError, 得到 %v", err)
		}
		if fe.ErrorType() != "network_error" {
			t.Errorf("ErrorType = %s", fe.ErrorType())
		}
	})
}

func TestFetcher_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher(3).Get(ctx, server.URL, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("期望context.Canceled, 得到 %v", err)
	}
}

func TestFetcher_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer server.Close()

	newFetcher := func(limit int64) *Fetcher {
		return NewFetcher(FetcherOptions{
			Retry:       RetryPolicy{MaxAttempts: 1},
			Timeout:     5 * time.Second,
			MaxBodySize: limit,
		})
	}

	t.Run("恰好等于上限", func(t *testing.T) {
		resp, err := newFetcher(64).GetBytes(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("GetBytes() error = %v", err)
		}
		if len(resp.Body) != 64 {
			t.Errorf("len(Body) = %d, want 64", len(resp.Body))
		}
	})

	t.Run("超过上限返回错误而不是截断", func(t *testing.T) {
		resp, err := newFetcher(63).GetBytes(context.Background(), server.URL, "")
		if resp != nil {
			t.Fatalf("超限时不应返回响应, got %d bytes", len(resp.Body))
		}
		if !errors.Is(err, models.ErrBodyTooLarge) {
			t.Fatalf("期望ErrBodyTooLarge, 得到 %v", err)
		}
		var fe *models.FetchError
		if !errors.As(err, &fe) || fe.ErrorType() != "too_large" {
			t.Errorf("FetchError = %+v", fe)
		}
	})
}
