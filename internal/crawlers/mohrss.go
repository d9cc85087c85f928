package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

const (
	// MOHRSSBaseURL 人力资源和社会保障部网站
	MOHRSSBaseURL = "https://www.mohrss.gov.cn"

	mohrssSearchPath = "/was5/web/search?channelid=203464&orderby=date&default=isall&page=%d"
	mohrssCategory   = "政策法规"

	// 无法从详情页URL推断日期目录时使用
	mohrssDefaultAttachmentBase = "/xxgk2020/fdzdgknr/zcfg/gfxwj/rcrs/"
)

var (
	isUsedPattern     = regexp.MustCompile(`var\s+isUsed\s*=\s*['"]([^'"]+)['"]`)
	datedPathPattern  = regexp.MustCompile(`/(\d{6})/`)
	labelCleanPattern = regexp.MustCompile(`[|\s\x{00A0}]`)
)

// MOHRSSCrawler 人社部政策法规库爬虫
// 列表页为站内检索结果, 每条记录占3个<td>: 日期、标题链接、文号
type MOHRSSCrawler struct {
	baseCrawler

	// 政策URL -> Policies下标, 详情页回填基本信息
	policyIndex map[string]int
}

// NewMOHRSSCrawler 创建人社部爬虫
func NewMOHRSSCrawler(opts Options) *MOHRSSCrawler {
	return &MOHRSSCrawler{baseCrawler: newBaseCrawler(models.SiteMOHRSS, opts)}
}

// Site 站点
func (c *MOHRSSCrawler) Site() models.Site {
	return models.SiteMOHRSS
}

// SearchPageURL 检索结果第page页
func SearchPageURL(base string, page int) string {
	return base + fmt.Sprintf(mohrssSearchPath, page)
}

// Crawl 抓取检索列表与详情页
// 设置了DetailURLs时直接抓取这些详情页
func (c *MOHRSSCrawler) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	base := c.baseURL(MOHRSSBaseURL)
	c.begin(ctx, c.opts.Renderer)
	c.policyIndex = make(map[string]int)

	utils.Infof("🔍 开始爬取 %s", models.SiteMOHRSS.DisplayName())
	if c.opts.Renderer != nil {
		utils.Infof("使用动态渲染模式")
	}

	var err error
	if len(c.opts.DetailURLs) > 0 {
		err = c.crawlURLList(ctx)
	} else {
		err = c.crawlSearch(ctx, base)
	}
	return c.finish(), err
}

func (c *MOHRSSCrawler) crawlSearch(ctx context.Context, base string) error {
	referer := ""
	for page := 1; ; page++ {
		pageURL := SearchPageURL(base, page)
		utils.Infof("开始爬取第%d页: %s", page, pageURL)

		p, err := c.pages.Fetch(pageURL, referer)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.recordFailure(pageURL, err)
			return nil
		}
		c.result.Stats.Pages++
		c.saveRawPage(page, "html", p.Body, "mohrss")

		if p.Root == nil {
			c.recordFailure(pageURL, fmt.Errorf("响应不是HTML页面"))
			return nil
		}

		found, fresh := c.parseSearchPage(p.Root, page)
		utils.Infof("第%d页解析到 %d 个政策链接", page, found)
		if found == 0 {
			utils.Infof("没有更多数据")
			return nil
		}
		if fresh == 0 {
			utils.Infof("第%d页与之前的结果重复, 结束", page)
			return nil
		}

		if err := c.drainDetails(ctx, c.crawlDetail); err != nil {
			return err
		}

		if c.opts.Config.MaxPages > 0 && page >= c.opts.Config.MaxPages {
			utils.Infof("达到页数限制 %d", c.opts.Config.MaxPages)
			return nil
		}

		referer = pageURL
		if err := sleepCtx(ctx, c.opts.Config.PageDelay); err != nil {
			return err
		}
	}
}

func (c *MOHRSSCrawler) crawlURLList(ctx context.Context) error {
	utils.Infof("从URL列表抓取 %d 个详情页", len(c.opts.DetailURLs))
	for _, u := range c.opts.DetailURLs {
		c.enqueueAlways(models.DetailItem{
			URL:    u,
			Policy: models.PolicyRef{Category: mohrssCategory, URL: u},
		})
	}
	return c.drainDetails(ctx, c.crawlDetail)
}

// enqueueAlways 入队, 不受 fetch_details 影响
func (c *MOHRSSCrawler) enqueueAlways(item models.DetailItem) {
	if err := c.queue.Push(item); err != nil {
		if errors.Is(err, ErrDuplicateURL) {
			c.result.Stats.SkippedDetails++
			return
		}
		utils.Warnf("详情页入队失败 [%s]: %v", item.URL, err)
	}
}

// parseSearchPage 解析检索结果表格, 返回记录数与其中新出现的政策数
// 已收录的政策URL不重复追加
func (c *MOHRSSCrawler) parseSearchPage(root *colly.HTMLElement, page int) (found, fresh int) {
	root.ForEach(`table[style*="border-collapse"]`, func(_ int, table *colly.HTMLElement) {
		tds := table.DOM.Find("td")
		for i := 0; i+2 < tds.Length(); i += 3 {
			dateTd, titleTd, docTd := tds.Eq(i), tds.Eq(i+1), tds.Eq(i+2)

			link := titleTd.Find("a").First()
			if link.Length() == 0 {
				continue
			}
			title := cleanText(link.Text())
			href := strings.TrimSpace(link.AttrOr("href", ""))
			if title == "" || href == "" {
				continue
			}
			policyURL := table.Request.AbsoluteURL(href)
			found++
			if _, seen := c.policyIndex[policyURL]; seen {
				continue
			}

			ref := models.PolicyRef{
				Category:    mohrssCategory,
				Title:       title,
				DocNumber:   cleanText(docTd.Text()),
				PublishDate: models.NormalizeDate(selectionText(dateTd.Find("span"))),
				URL:         policyURL,
			}
			c.policyIndex[policyURL] = len(c.result.Policies)
			c.result.Policies = append(c.result.Policies, models.Policy{PolicyRef: ref, Page: page})
			c.enqueue(models.DetailItem{URL: policyURL, Policy: ref, Page: page, SourceURL: table.Request.URL.String()})
			fresh++
		}
	})
	return found, fresh
}

func (c *MOHRSSCrawler) crawlDetail(item models.DetailItem) error {
	p, err := c.pages.Fetch(item.URL, item.SourceURL)
	if err != nil {
		return err
	}
	if p.Root == nil {
		return fmt.Errorf("详情页不是HTML页面")
	}
	doc := p.Root.DOM

	info, validity := extractBasicInfo(doc)
	ref := item.Policy
	fillRefFromBasicInfo(&ref, info, doc)

	idx, ok := c.policyIndex[item.URL]
	if !ok {
		idx = len(c.result.Policies)
		c.policyIndex[item.URL] = idx
		c.result.Policies = append(c.result.Policies, models.Policy{PolicyRef: ref, Page: item.Page})
	}
	policy := &c.result.Policies[idx]
	policy.BasicInfo = info
	policy.Validity = validity

	if content := c.capContent(extractMOHRSSContent(doc)); content != "" {
		c.result.Contents = append(c.result.Contents, models.ContentRecord{PolicyRef: ref, Content: content})
	}

	names, links := extractMOHRSSAttachments(doc, item.URL)
	c.addAttachments(ref, names, links)

	utils.Infof("获取详情: %s", ref.Title)
	return nil
}

// extractBasicInfo 解析 ul.clearfix 中的 标签/值 对, 同时返回有效性
func extractBasicInfo(doc *goquery.Selection) (map[string]string, string) {
	info := make(map[string]string)
	validity := ""

	doc.Find("ul.clearfix").First().Find("li").Each(func(_ int, li *goquery.Selection) {
		labelDiv := li.Find("div.arti_l").First()
		valueDiv := li.Find("div.arti_r").First()
		if labelDiv.Length() == 0 || valueDiv.Length() == 0 {
			return
		}

		label := labelCleanPattern.ReplaceAllString(labelDiv.Text(), "")
		if label == "" {
			return
		}
		script := valueDiv.Find("script").Text()
		value := strings.TrimSpace(valueDiv.Clone().Find("script").Remove().End().Text())

		switch {
		case strings.Contains(label, "是否有效"):
			if v := validityFromScript(script); v != "" {
				value = v
			}
			validity = value
		case value == "" && script != "":
			value = validityFromScript(script)
		}
		info[label] = value
	})

	return info, validity
}

// validityFromScript 从 var isUsed = '…' 或 document.write 文本中识别有效性
func validityFromScript(script string) string {
	if m := isUsedPattern.FindStringSubmatch(script); m != nil {
		return m[1]
	}
	switch {
	case strings.Contains(script, "已废止"):
		return "已废止"
	case strings.Contains(script, "有效"):
		return "有效"
	}
	return ""
}

// fillRefFromBasicInfo 列表页缺失的字段由基本信息补全
func fillRefFromBasicInfo(ref *models.PolicyRef, info map[string]string, doc *goquery.Selection) {
	lookup := func(keys ...string) string {
		for _, k := range keys {
			for label, v := range info {
				if strings.Contains(label, k) && v != "" {
					return v
				}
			}
		}
		return ""
	}

	if ref.Title == "" {
		ref.Title = lookup("标题", "名称")
	}
	if ref.Title == "" {
		ref.Title = selectionText(doc.Find("title"))
	}
	if ref.DocNumber == "" {
		ref.DocNumber = lookup("发文字号", "文号")
	}
	if ref.PublishDate == "" {
		ref.PublishDate = models.NormalizeDate(lookup("发布日期", "成文日期"))
	}
}

// extractMOHRSSContent 正文位于 div.art_p 或 div.gz_content div.gz_content_txt
// 取最外层的 p/span/div/font 元素文本, 以换行连接
func extractMOHRSSContent(doc *goquery.Selection) string {
	container := doc.Find("div.art_p").First()
	if container.Length() == 0 {
		container = doc.Find("div.gz_content div.gz_content_txt").First()
	}
	if container.Length() == 0 {
		return ""
	}

	const blocks = "p, span, div, font"
	var paragraphs []string
	container.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsUntilSelection(container).Filter(blocks).Length() > 0 {
			return
		}
		if text := cleanText(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		if text := cleanText(container.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n")
}

// extractMOHRSSAttachments 附件位于 div.cj_xiang_con
// 相对链接按详情页URL中的日期目录 (/YYYYMM/) 解析
func extractMOHRSSAttachments(doc *goquery.Selection, pageURL string) ([]string, []string) {
	var names, links []string
	base := attachmentBasePath(pageURL)
	origin := urlOrigin(pageURL)

	doc.Find("div.cj_xiang_con a").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		href = strings.TrimPrefix(href, "./")
		switch {
		case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		case strings.HasPrefix(href, "/"):
			href = origin + href
		default:
			href = base + href
		}

		name := cleanText(a.Text())
		if name == "" {
			name = filenameFromURL(href)
		}
		names = append(names, name)
		links = append(links, href)
	})
	return names, links
}

// attachmentBasePath 详情页URL中日期目录之前 (含) 的部分
func attachmentBasePath(pageURL string) string {
	clean := pageURL
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	if loc := datedPathPattern.FindStringIndex(clean); loc != nil {
		return clean[:loc[1]]
	}
	utils.Warnf("无法从URL提取日期路径: %s", pageURL)
	return urlOrigin(pageURL) + mohrssDefaultAttachmentBase
}

func urlOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return MOHRSSBaseURL
	}
	return u.Scheme + "://" + u.Host
}

// filenameFromURL URL最后一段, 无扩展名时补 .doc
func filenameFromURL(rawURL string) string {
	clean := rawURL
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	name := path.Base(clean)
	if name == "" || name == "." || name == "/" {
		return "未知文件"
	}
	if !strings.Contains(name, ".") {
		name += ".doc"
	}
	return name
}
