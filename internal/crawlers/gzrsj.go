package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

const (
	// GZRSJBaseURL 广州市人社局网站
	GZRSJBaseURL = "https://rsj.gz.gov.cn"

	gzrsjAPIPath       = "/gkmlpt/api/all/%s?page=%d&sid=%s"
	gzrsjRefererPath   = "/gkmlpt/policy"
	gzrsjDefaultSiteID = "200025"
)

// 接口时间戳按北京时间换算日期
var chinaZone = time.FixedZone("CST", 8*3600)

// gzrsjType 政府信息公开目录中的文件类型
type gzrsjType struct {
	ID   string
	Name string
}

var gzrsjTypes = []gzrsjType{
	{ID: "505", Name: "规范性文件"},
	{ID: "506", Name: "其他文件"},
	{ID: "507", Name: "解读文件"},
}

// GZRSJCategories 文件类型顺序
func GZRSJCategories() []string {
	names := make([]string, len(gzrsjTypes))
	for i, t := range gzrsjTypes {
		names[i] = t.Name
	}
	return names
}

// GZArticle 信息公开接口返回的文章
type GZArticle struct {
	Title          string  `json:"title"`
	DocumentNumber string  `json:"document_number"`
	Publisher      string  `json:"publisher"`
	ClassifyName   string  `json:"classify_main_name"`
	URL            string  `json:"url"`
	CreatedAt      gzStamp `json:"created_at"`
}

type gzPage struct {
	Articles []GZArticle `json:"articles"`
}

// gzStamp 创建时间, 接口可能返回日期字符串或Unix秒
type gzStamp string

func (s *gzStamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = gzStamp(models.NormalizeDate(strings.TrimSpace(text)))
		return nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("无法识别的时间: %s", raw)
	}
	*s = gzStamp(time.Unix(sec, 0).In(chinaZone).Format("2006-01-02"))
	return nil
}

// ParseGZRSJPage 解析接口返回的一页数据
func ParseGZRSJPage(body []byte) ([]GZArticle, error) {
	var page gzPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %w", err)
	}
	return page.Articles, nil
}

// GZRSJCrawler 广州市人社局信息公开目录爬虫
// 列表来自JSON接口, 详情页为HTML
type GZRSJCrawler struct {
	baseCrawler

	policyIndex map[string]int
}

// NewGZRSJCrawler 创建广州人社局爬虫
func NewGZRSJCrawler(opts Options) *GZRSJCrawler {
	return &GZRSJCrawler{baseCrawler: newBaseCrawler(models.SiteGZRSJ, opts)}
}

// Site 站点
func (c *GZRSJCrawler) Site() models.Site {
	return models.SiteGZRSJ
}

func (c *GZRSJCrawler) siteID() string {
	if sid := strings.TrimSpace(c.opts.Config.GZRSJSiteID); sid != "" {
		return sid
	}
	return gzrsjDefaultSiteID
}

// Crawl 依次抓取各文件类型的接口分页
func (c *GZRSJCrawler) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	base := c.baseURL(GZRSJBaseURL)
	c.begin(ctx, nil)
	c.policyIndex = make(map[string]int)

	utils.Infof("🔍 开始爬取 %s", models.SiteGZRSJ.DisplayName())

	first := true
	for _, t := range gzrsjTypes {
		if !c.opts.Config.WantsCategory(t.Name) {
			utils.Debugf("跳过类型: %s", t.Name)
			continue
		}
		if !first {
			if err := sleepCtx(ctx, c.opts.Config.PageDelay); err != nil {
				return c.finish(), err
			}
		}
		first = false

		if err := c.crawlType(ctx, base, t); err != nil {
			return c.finish(), err
		}
	}
	return c.finish(), nil
}

func (c *GZRSJCrawler) crawlType(ctx context.Context, base string, t gzrsjType) error {
	utils.Infof("📁 开始爬取类型: %s (%s)", t.Name, t.ID)
	referer := base + gzrsjRefererPath
	// 本类型已出现的文章, 接口忽略page参数时据此停止
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		apiURL := base + fmt.Sprintf(gzrsjAPIPath, t.ID, page, c.siteID())

		p, err := c.pages.Fetch(apiURL, referer)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, models.ErrNotFound) {
				utils.Infof("类型 %s 第 %d 页不存在, 切换到下一个类型", t.ID, page)
			} else {
				c.recordFailure(apiURL, err)
			}
			return nil
		}

		articles, err := ParseGZRSJPage(p.Body)
		if err != nil {
			c.recordFailure(apiURL, err)
			return nil
		}
		if len(articles) == 0 {
			utils.Infof("类型 %s 第 %d 页没有数据, 结束", t.ID, page)
			return nil
		}
		c.result.Stats.Pages++
		c.saveRawPage(page, "json", p.Body, "gzrsj", t.ID)

		fresh := c.addArticles(articles, t, page, apiURL, seen)
		utils.Infof("第 %d 页共 %d 条记录", page, len(articles))
		if fresh == 0 {
			utils.Infof("类型 %s 第 %d 页与之前的结果重复, 结束", t.ID, page)
			return nil
		}

		if err := c.drainDetails(ctx, c.crawlDetail); err != nil {
			return err
		}

		if c.opts.Config.MaxPages > 0 && page >= c.opts.Config.MaxPages {
			utils.Infof("达到页数限制 %d", c.opts.Config.MaxPages)
			return nil
		}
		if err := sleepCtx(ctx, c.opts.Config.PageDelay); err != nil {
			return err
		}
	}
}

// addArticles 追加本页文章, 返回新出现的条数
func (c *GZRSJCrawler) addArticles(articles []GZArticle, t gzrsjType, page int, source string, seen map[string]bool) int {
	fresh := 0
	for _, a := range articles {
		title := cleanText(a.Title)
		link := strings.TrimSpace(a.URL)
		if title == "" && link == "" {
			continue
		}
		key := link
		if key == "" {
			key = "title:" + title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh++

		ref := models.PolicyRef{
			Category:    t.Name,
			Title:       title,
			DocNumber:   strings.TrimSpace(a.DocumentNumber),
			PublishDate: string(a.CreatedAt),
			URL:         link,
		}
		policy := models.Policy{PolicyRef: ref, Page: page, Publisher: strings.TrimSpace(a.Publisher)}
		if a.ClassifyName != "" {
			policy.BasicInfo = map[string]string{"分类": a.ClassifyName}
		}
		if link != "" {
			c.policyIndex[link] = len(c.result.Policies)
		}
		c.result.Policies = append(c.result.Policies, policy)

		if link != "" {
			c.enqueue(models.DetailItem{URL: link, Policy: ref, Page: page, SourceURL: source})
		}
	}
	return fresh
}

func (c *GZRSJCrawler) crawlDetail(item models.DetailItem) error {
	p, err := c.pages.Fetch(item.URL, "")
	if err != nil {
		return err
	}
	if p.Root == nil {
		return fmt.Errorf("详情页不是HTML页面")
	}

	detail, ok := parseGZRSJDetail(p.Root)
	if !ok {
		return fmt.Errorf("未找到正文容器: %s", item.URL)
	}

	ref := item.Policy
	if ref.Title == "" {
		ref.Title = detail.title
	}
	if idx, found := c.policyIndex[item.URL]; found {
		policy := &c.result.Policies[idx]
		if policy.Title == "" {
			policy.Title = detail.title
		}
		if detail.dateRow != "" {
			if policy.BasicInfo == nil {
				policy.BasicInfo = make(map[string]string)
			}
			policy.BasicInfo["日期信息"] = detail.dateRow
		}
	}

	if content := c.capContent(detail.content); content != "" {
		c.result.Contents = append(c.result.Contents, models.ContentRecord{PolicyRef: ref, Content: content})
	}
	c.addAttachments(ref, detail.attachmentNames, detail.attachmentLinks)

	utils.Infof("获取详情: %s", ref.Title)
	return nil
}

type gzDetail struct {
	title           string
	dateRow         string
	content         string
	attachmentNames []string
	attachmentLinks []string
}

// parseGZRSJDetail 解析详情页 div.content
// 正文为带 text-align 样式的段落, 以换行连接
func parseGZRSJDetail(root *colly.HTMLElement) (gzDetail, bool) {
	var detail gzDetail

	container := root.DOM.Find(`div.content[style*="margin-top"]`).First()
	if container.Length() == 0 {
		container = root.DOM.Find("div.content").First()
	}
	if container.Length() == 0 {
		return detail, false
	}

	detail.title = selectionText(container.Find("h1.title"))
	detail.dateRow = cleanText(container.Find("div.date-row").First().Text())

	var paragraphs []string
	container.Find(`p[style*="text-align"]`).Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	detail.content = strings.Join(paragraphs, "\n")

	container.Find("a.nfw-cms-attachment").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		name := cleanText(a.Text())
		if name == "" {
			name = filenameFromURL(href)
		}
		detail.attachmentNames = append(detail.attachmentNames, name)
		detail.attachmentLinks = append(detail.attachmentLinks, root.Request.AbsoluteURL(href))
	})

	return detail, true
}
