package crawlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

const (
	ctxKeyDocument = "document"
	ctxKeyBody     = "body"
	ctxKeyStatus   = "status"
)

// Page 抓取到的页面
type Page struct {
	URL        string
	StatusCode int
	Body       []byte

	// Root HTML页面的<html>元素, 非HTML响应为nil
	Root *colly.HTMLElement
}

// PageRenderer 动态渲染接口, 返回渲染后的HTML
type PageRenderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// PageCollector 基于Colly的同步页面抓取器
// 请求经由传入的http.Client, 重试、头部注入与解压由其传输层完成
type PageCollector struct {
	ctx       context.Context
	collector *colly.Collector
	renderer  PageRenderer
}

// NewPageCollector 创建页面抓取器, renderer非nil时HTML页面改由浏览器渲染
func NewPageCollector(ctx context.Context, client *http.Client, renderer PageRenderer) *PageCollector {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		// 去重由URLQueue在应用层完成
		colly.AllowURLRevisit(),
	)
	if client != nil {
		c.SetClient(client)
	}

	// Content-Type带charset时Colly已完成转换, 其余按<meta>声明解码
	c.OnResponse(func(r *colly.Response) {
		ct := r.Headers.Get("Content-Type")
		if !strings.Contains(strings.ToLower(ct), "charset") && utils.IsTextContent(ct) {
			r.Body = utils.DecodeCharset(r.Body, ct)
		}
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		r.Ctx.Put(ctxKeyBody, r.Body)
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		e.Request.Ctx.Put(ctxKeyDocument, e)
	})

	c.OnError(func(r *colly.Response, err error) {
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		utils.Debugf("请求失败 [%s]: %v", r.Request.URL, err)
	})

	return &PageCollector{ctx: ctx, collector: c, renderer: renderer}
}

// Fetch 抓取页面
// 404 返回包装 models.ErrNotFound 的 *models.FetchError
func (pc *PageCollector) Fetch(rawURL, referer string) (*Page, error) {
	if pc.renderer != nil {
		return pc.render(rawURL)
	}

	ctx := colly.NewContext()
	hdr := http.Header{}
	if referer != "" {
		hdr.Set("Referer", referer)
	}

	err := pc.collector.Request(http.MethodGet, rawURL, nil, ctx, hdr)
	status, _ := ctx.GetAny(ctxKeyStatus).(int)
	if err != nil {
		return nil, pc.fetchError(rawURL, status, err)
	}

	page := &Page{URL: rawURL, StatusCode: status}
	page.Body, _ = ctx.GetAny(ctxKeyBody).([]byte)
	page.Root, _ = ctx.GetAny(ctxKeyDocument).(*colly.HTMLElement)
	return page, nil
}

func (pc *PageCollector) fetchError(rawURL string, status int, err error) error {
	if ctxErr := pc.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case status == http.StatusNotFound:
		return &models.FetchError{URL: rawURL, StatusCode: status, Attempts: 1, Cause: models.ErrNotFound}
	case status > 0:
		return &models.FetchError{URL: rawURL, StatusCode: status, Attempts: 1, Cause: fmt.Errorf("HTTP %d", status)}
	default:
		return &models.FetchError{URL: rawURL, Cause: err}
	}
}

func (pc *PageCollector) render(rawURL string) (*Page, error) {
	html, err := pc.renderer.Render(pc.ctx, rawURL)
	if err != nil {
		if ctxErr := pc.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.FetchError{URL: rawURL, Attempts: 1, Cause: fmt.Errorf("渲染失败: %w", err)}
	}

	body := []byte(html)
	root, err := ParseHTML(rawURL, body)
	if err != nil {
		return nil, err
	}
	return &Page{URL: rawURL, StatusCode: http.StatusOK, Body: body, Root: root}, nil
}

// ParseHTML 将离线HTML包装为Colly元素
// 用于渲染结果与已保存的原始页面, 相对链接按pageURL解析
func ParseHTML(pageURL string, body []byte) (*colly.HTMLElement, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("URL格式无效: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	root := doc.Find("html").First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("页面缺少<html>元素: %s", pageURL)
	}

	ctx := colly.NewContext()
	resp := &colly.Response{
		StatusCode: http.StatusOK,
		Body:       body,
		Ctx:        ctx,
		Headers:    &http.Header{},
		Request:    &colly.Request{URL: u, Method: http.MethodGet, Ctx: ctx},
	}
	return colly.NewHTMLElementFromSelectionNode(resp, root, root.Nodes[0], 0), nil
}

// cleanText 合并空白, 去除首尾空白
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// selectionText 选择器首个元素的文本
func selectionText(s *goquery.Selection) string {
	return strings.TrimSpace(s.First().Text())
}
