package crawlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// NDRCBaseURL 国家发展改革委网站
const NDRCBaseURL = "https://www.ndrc.gov.cn"

// ndrcCategory 政策发布栏目
type ndrcCategory struct {
	Name string
	Path string
}

var ndrcCategories = []ndrcCategory{
	{Name: "发展改革委令", Path: "/xxgk/zcfb/fzggwl"},
	{Name: "规范性文件", Path: "/xxgk/zcfb/ghxwj"},
	{Name: "规划文本", Path: "/xxgk/zcfb/ghwb"},
	{Name: "公告", Path: "/xxgk/zcfb/gg"},
	{Name: "通知", Path: "/xxgk/zcfb/tz"},
}

// NDRCCategories 栏目顺序, 亦为结果工作表的排序顺序
func NDRCCategories() []string {
	names := make([]string, len(ndrcCategories))
	for i, c := range ndrcCategories {
		names[i] = c.Name
	}
	return names
}

// pageURL 第1页为 index.html, 第n页为 index_{n-1}.html
func (c ndrcCategory) pageURL(base string, page int) string {
	if page <= 1 {
		return base + c.Path + "/index.html"
	}
	return fmt.Sprintf("%s%s/index_%d.html", base, c.Path, page-1)
}

// 正文容器, 按顺序尝试
var ndrcContentSelectors = []string{
	"div.article_con",
	".TRS_Editor",
	".content", ".article-content", ".main-content",
	".policy-content", ".document-content", ".text-content",
	".article", ".text", ".main",
}

// 附件链接
var ndrcAttachmentSelectors = []string{
	`a[href*=".pdf"]`, `a[href*=".doc"]`, `a[href*=".ofd"]`,
	`a[href*=".xls"]`, `a[href*=".zip"]`, `a[href*=".rar"]`,
}

var docNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`第\d+号令`),
	regexp.MustCompile(`第\d+号`),
	regexp.MustCompile(`\d+号令`),
	regexp.MustCompile(`\d+号`),
}

// ExtractDocNumber 从标题中提取文号, 如 "第12号令"
func ExtractDocNumber(title string) string {
	for _, p := range docNumberPatterns {
		if m := p.FindString(title); m != "" {
			return m
		}
	}
	return ""
}

// NDRCCrawler 国家发展改革委政策爬虫
type NDRCCrawler struct {
	baseCrawler
}

// NewNDRCCrawler 创建发改委爬虫
func NewNDRCCrawler(opts Options) *NDRCCrawler {
	return &NDRCCrawler{baseCrawler: newBaseCrawler(models.SiteNDRC, opts)}
}

// Site 站点
func (c *NDRCCrawler) Site() models.Site {
	return models.SiteNDRC
}

// Crawl 按栏目顺序抓取列表页与详情页
func (c *NDRCCrawler) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	base := c.baseURL(NDRCBaseURL)
	c.begin(ctx, nil)

	utils.Infof("🔍 开始爬取 %s", models.SiteNDRC.DisplayName())

	for i, cat := range ndrcCategories {
		if !c.opts.Config.WantsCategory(cat.Name) {
			utils.Debugf("跳过分类: %s", cat.Name)
			continue
		}
		if i > 0 {
			if err := sleepCtx(ctx, c.opts.Config.PageDelay); err != nil {
				return c.finish(), err
			}
		}
		if err := c.crawlCategory(ctx, base, cat); err != nil {
			return c.finish(), err
		}
	}

	return c.finish(), nil
}

func (c *NDRCCrawler) crawlCategory(ctx context.Context, base string, cat ndrcCategory) error {
	utils.Infof("📁 开始爬取分类: %s", cat.Name)

	referer := base + "/"
	page := 1
	for ; ; page++ {
		pageURL := cat.pageURL(base, page)
		utils.Infof("第 %d 页: %s", page, pageURL)

		p, err := c.pages.Fetch(pageURL, referer)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, models.ErrNotFound) && page > 1 {
				utils.Infof("没有更多页面")
			} else {
				c.recordFailure(pageURL, err)
			}
			break
		}
		c.result.Stats.Pages++
		c.saveRawPage(page, "html", p.Body, "ndrc", cat.Name)

		if p.Root == nil {
			c.recordFailure(pageURL, fmt.Errorf("响应不是HTML页面"))
			break
		}

		found := c.parseListing(p.Root, cat.Name, page)
		utils.Infof("第 %d 页解析到 %d 条政策", page, found)

		if err := c.drainDetails(ctx, func(item models.DetailItem) error {
			return c.crawlDetail(item)
		}); err != nil {
			return err
		}

		if page > 1 && (found == 0 || !hasNextPage(p.Root)) {
			utils.Infof("没有更多页面")
			break
		}
		if c.opts.Config.MaxPages > 0 && page >= c.opts.Config.MaxPages {
			utils.Infof("达到页数限制 %d", c.opts.Config.MaxPages)
			break
		}

		referer = pageURL
		if err := sleepCtx(ctx, c.opts.Config.PageDelay); err != nil {
			return err
		}
	}

	utils.Infof("%s 完成, 共 %d 页", cat.Name, page)
	return nil
}

// parseListing 解析列表页, 返回识别出的政策数
// 列表项为带链接与日期<span>的<li>
func (c *NDRCCrawler) parseListing(root *colly.HTMLElement, category string, page int) int {
	found := 0
	root.ForEach("li", func(_ int, li *colly.HTMLElement) {
		link := li.DOM.Find("a[href]").First()
		dateSpan := li.DOM.Find("span").First()
		if link.Length() == 0 || dateSpan.Length() == 0 {
			return
		}

		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = cleanText(link.Text())
		}
		href, _ := link.Attr("href")
		policyURL := li.Request.AbsoluteURL(href)
		if title == "" || policyURL == "" {
			return
		}

		ref := models.PolicyRef{
			Category:    category,
			Title:       title,
			DocNumber:   ExtractDocNumber(title),
			PublishDate: models.NormalizeDate(selectionText(dateSpan)),
			URL:         policyURL,
		}

		interpretations := extractInterpretations(li)
		for _, in := range interpretations {
			c.result.Interpretations = append(c.result.Interpretations, models.Interpretation{
				PolicyRef:           ref,
				InterpretationTitle: in.title,
				InterpretationURL:   in.url,
			})
		}

		c.result.Policies = append(c.result.Policies, models.Policy{
			PolicyRef:           ref,
			Page:                page,
			HasInterpretation:   hasInterpretation(li.DOM),
			InterpretationCount: len(interpretations),
		})
		c.enqueue(models.DetailItem{URL: policyURL, Policy: ref, Page: page, SourceURL: li.Request.URL.String()})
		found++
	})
	return found
}

func hasInterpretation(li *goquery.Selection) bool {
	return li.Find(`img[src*="jiedu"]`).Length() > 0 ||
		li.Find("div.popbox").Length() > 0 ||
		li.Find("strong").Length() > 0
}

type interpretationLink struct {
	title string
	url   string
}

// extractInterpretations 解读链接位于 div.popbox, 或解读图标所在元素内
func extractInterpretations(li *colly.HTMLElement) []interpretationLink {
	var links *goquery.Selection
	if popbox := li.DOM.Find("div.popbox").First(); popbox.Length() > 0 {
		links = popbox.Find("a[href]")
	} else {
		indicator := li.DOM.Find(`img[src*="jiedu"]`).First()
		if indicator.Length() == 0 {
			indicator = li.DOM.Find("strong").First()
		}
		if indicator.Length() == 0 {
			return nil
		}
		links = indicator.NextAllFiltered("a[href]")
		if links.Length() == 0 {
			links = indicator.Parent().Find("a[href]")
		}
	}

	result := make([]interpretationLink, 0, links.Length())
	links.Each(func(_ int, a *goquery.Selection) {
		title := strings.TrimSpace(a.AttrOr("title", ""))
		if title == "" {
			title = cleanText(a.Text())
		}
		abs := li.Request.AbsoluteURL(a.AttrOr("href", ""))
		if abs == "" {
			return
		}
		result = append(result, interpretationLink{title: title, url: abs})
	})
	return result
}

// hasNextPage 页面是否包含翻页元素
func hasNextPage(root *colly.HTMLElement) bool {
	doc := root.DOM
	if doc.Find(`a[href*="index_"]`).Length() > 0 {
		return true
	}
	if doc.Find("div.pagination, div.page").Length() > 0 {
		return true
	}
	next := false
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := a.Text()
		if strings.Contains(text, "下一页") || strings.Contains(text, ">") {
			next = true
		}
		return !next
	})
	return next
}

func (c *NDRCCrawler) crawlDetail(item models.DetailItem) error {
	p, err := c.pages.Fetch(item.URL, item.SourceURL)
	if err != nil {
		return err
	}
	if p.Root == nil {
		return fmt.Errorf("详情页不是HTML页面")
	}

	content := c.capContent(extractNDRCContent(p.Root.DOM))
	if content != "" {
		c.result.Contents = append(c.result.Contents, models.ContentRecord{PolicyRef: item.Policy, Content: content})
	}

	names, links := extractNDRCAttachments(p.Root)
	c.addAttachments(item.Policy, names, links)

	utils.Infof("已处理政策: %s", item.Policy.Title)
	return nil
}

// extractNDRCContent 第一个命中的正文容器的文本, 行内空白合并
func extractNDRCContent(doc *goquery.Selection) string {
	for _, sel := range ndrcContentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		return normalizeContent(node.Text())
	}
	return ""
}

// normalizeContent 逐行合并空白并去掉空行
func normalizeContent(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = cleanText(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// extractNDRCAttachments 按选择器顺序收集附件, 同一链接只保留一次
func extractNDRCAttachments(root *colly.HTMLElement) ([]string, []string) {
	var names, links []string
	seen := make(map[string]bool)
	for _, sel := range ndrcAttachmentSelectors {
		root.ForEach(sel, func(_ int, a *colly.HTMLElement) {
			href := strings.TrimSpace(a.Attr("href"))
			if href == "" {
				return
			}
			abs := a.Request.AbsoluteURL(href)
			if abs == "" || seen[abs] {
				return
			}
			seen[abs] = true

			name := cleanText(a.Text)
			if name == "" {
				name = href
			}
			names = append(names, name)
			links = append(links, abs)
		})
	}
	return names, links
}
