package crawlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/govpolicy/internal/models"
)

const ndrcListPage1 = `<html><body>
<ul class="u-list">
<li><a href="./202401/t1.html" title="国家发展改革委令第12号">国家发展改革委令第12号</a><span>2024/01/05</span></li>
<li><a href="./202402/t2.html">关于做好价格监测工作的通知</a><span>2024-02-01</span>
<div class="popbox"><a href="./202402/jd2.html" title="权威解读">解读</a></div></li>
</ul>
<div class="page"><a href="index_1.html">下一页</a></div>
</body></html>`

const ndrcListPage2 = `<html><body>
<ul><li><a href="./202312/t3.html" title="第3号公告">第3号公告</a><span>2023-12-20</span></li></ul>
</body></html>`

const ndrcDetail = `<html><body>
<div class="article_con"><p>第一条  为规范管理</p>
<p>第二条 本办法自发布之日起施行</p></div>
<div class="attachment"><a href="/files/a.pdf">附件一.pdf</a><a href="/files/b.docx">附件二</a></div>
</body></html>`

func newNDRCServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	base := "/xxgk/zcfb/fzggwl/"
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc(base+"index.html", html(ndrcListPage1))
	mux.HandleFunc(base+"index_1.html", html(ndrcListPage2))
	mux.HandleFunc(base+"202401/t1.html", html(ndrcDetail))
	mux.HandleFunc(base+"202312/t3.html", html(`<html><body><div class="TRS_Editor">公告正文</div></body></html>`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNDRCCrawler_Crawl(t *testing.T) {
	srv := newNDRCServer(t)
	outDir := t.TempDir()

	c := NewNDRCCrawler(Options{
		Client:    srv.Client(),
		BaseURL:   srv.URL,
		OutputDir: outDir,
		Config: models.CrawlConfig{
			Categories:   []string{"发展改革委令"},
			FetchDetails: true,
			SaveRawPages: true,
		},
	})

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl失败: %v", err)
	}
	checkStats(t, result)

	if result.Stats.Pages != 2 {
		t.Errorf("Pages = %d, want 2", result.Stats.Pages)
	}
	if len(result.Policies) != 3 {
		t.Fatalf("Policies = %d, want 3", len(result.Policies))
	}

	first := result.Policies[0]
	if first.DocNumber != "第12号" || first.PublishDate != "2024-01-05" || first.Category != "发展改革委令" {
		t.Errorf("第一条政策字段错误: %+v", first.PolicyRef)
	}
	if first.URL != srv.URL+"/xxgk/zcfb/fzggwl/202401/t1.html" {
		t.Errorf("URL = %s", first.URL)
	}

	second := result.Policies[1]
	if !second.HasInterpretation || second.InterpretationCount != 1 {
		t.Errorf("解读识别错误: has=%v count=%d", second.HasInterpretation, second.InterpretationCount)
	}
	if len(result.Interpretations) != 1 || result.Interpretations[0].InterpretationTitle != "权威解读" {
		t.Errorf("Interpretations = %+v", result.Interpretations)
	}

	// t2 返回404
	if result.Stats.Details != 2 || result.Stats.FailedDetails != 1 {
		t.Errorf("Details=%d FailedDetails=%d", result.Stats.Details, result.Stats.FailedDetails)
	}
	if len(result.Failed) != 1 || result.Failed[0].ErrorType != "not_found" {
		t.Errorf("Failed = %+v", result.Failed)
	}

	if len(result.Contents) != 2 {
		t.Fatalf("Contents = %d, want 2", len(result.Contents))
	}
	if want := "第一条 为规范管理\n第二条 本办法自发布之日起施行"; result.Contents[0].Content != want {
		t.Errorf("正文 = %q", result.Contents[0].Content)
	}

	if len(result.Attachments) != 2 {
		t.Fatalf("Attachments = %+v", result.Attachments)
	}
	if result.Attachments[0].FileType != "PDF" || result.Attachments[1].FileType != "Word" {
		t.Errorf("附件分组顺序错误: %s, %s", result.Attachments[0].FileType, result.Attachments[1].FileType)
	}
	if result.Attachments[0].Links[0] != srv.URL+"/files/a.pdf" {
		t.Errorf("附件链接 = %s", result.Attachments[0].Links[0])
	}
	if result.Stats.Attachments != 2 {
		t.Errorf("Stats.Attachments = %d", result.Stats.Attachments)
	}

	saved, _ := filepath.Glob(filepath.Join(outDir, "ndrc", "发展改革委令", "page_*.html"))
	if len(saved) != 2 {
		t.Errorf("保存的原始页面 = %d, want 2", len(saved))
	}
}

func TestNDRCCrawler_MaxPagesAndNoDetails(t *testing.T) {
	srv := newNDRCServer(t)

	c := NewNDRCCrawler(Options{
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Config: models.CrawlConfig{
			Categories: []string{"发展改革委令"},
			MaxPages:   1,
		},
	})

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl失败: %v", err)
	}
	checkStats(t, result)
	if result.Stats.Pages != 1 || len(result.Policies) != 2 {
		t.Errorf("Pages=%d Policies=%d", result.Stats.Pages, len(result.Policies))
	}
	if result.Stats.Details != 0 || len(result.Contents) != 0 {
		t.Error("fetch_details关闭时不应抓取详情页")
	}
}

func TestNDRCCrawler_FirstPageMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewNDRCCrawler(Options{
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Config:  models.CrawlConfig{Categories: []string{"公告"}},
	})
	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl失败: %v", err)
	}
	checkStats(t, result)
	if len(result.Failed) != 1 {
		t.Errorf("第1页404应记录为失败, Failed = %+v", result.Failed)
	}
}

func TestNDRCCrawler_Canceled(t *testing.T) {
	srv := newNDRCServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewNDRCCrawler(Options{Client: srv.Client(), BaseURL: srv.URL})
	result, err := c.Crawl(ctx)
	if err == nil {
		t.Fatal("取消后应返回错误")
	}
	if result == nil {
		t.Fatal("取消后仍应返回已收集的结果")
	}
}

func TestExtractDocNumber(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"中华人民共和国国家发展和改革委员会令第12号", "第12号"},
		{"关于发布第3号令的公告", "第3号令"},
		{"国家发展改革委公告2024年5号令", "5号令"},
		{"价格司2号文件", "2号"},
		{"关于做好价格监测工作的通知", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := ExtractDocNumber(tt.title); got != tt.want {
				t.Errorf("ExtractDocNumber(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestNDRCCategoryPageURL(t *testing.T) {
	cat := ndrcCategory{Name: "公告", Path: "/xxgk/zcfb/gg"}
	if got := cat.pageURL(NDRCBaseURL, 1); got != NDRCBaseURL+"/xxgk/zcfb/gg/index.html" {
		t.Errorf("第1页 = %s", got)
	}
	if got := cat.pageURL(NDRCBaseURL, 3); got != NDRCBaseURL+"/xxgk/zcfb/gg/index_2.html" {
		t.Errorf("第3页 = %s", got)
	}
	if got := NDRCCategories(); len(got) != 5 || got[0] != "发展改革委令" {
		t.Errorf("NDRCCategories = %v", got)
	}
}
