package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/RecoveryAshes/govpolicy/internal/models"
)

const gzrsjDetailPage = `<html><body>
<div class="content" style="margin-top: 30px">
<h1 class="title">广州市人力资源和社会保障局关于印发就业补贴办法的通知</h1>
<div class="date-row">发布日期：2024-01-05   来源：本网</div>
<p style="text-align: center">第一章 总则</p>
<p style="text-align: justify">第一条 为规范就业补贴管理</p>
<p>无样式段落不计入正文</p>
<a class="nfw-cms-attachment" href="/attachment/0/1.pdf">补贴申请表.pdf</a>
<a class="nfw-cms-attachment" href="/attachment/0/2.xlsx">汇总表</a>
</div>
</body></html>`

func newGZRSJServer(t *testing.T, sids *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/gkmlpt/api/all/505", func(w http.ResponseWriter, r *http.Request) {
		*sids = append(*sids, r.URL.Query().Get("sid"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte(`{"articles":[]}`))
			return
		}
		fmt.Fprintf(w, `{"articles":[
{"title":"关于印发就业补贴办法的通知","document_number":"穗人社规字〔2024〕1号","publisher":"广州市人力资源和社会保障局","classify_main_name":"就业创业","url":"http://%[1]s/detail/1.html","created_at":"2024-01-05 10:00:00"},
{"title":"关于调整最低工资标准的通知","document_number":"","publisher":"广州市人力资源和社会保障局","classify_main_name":"劳动关系","url":"http://%[1]s/detail/missing.html","created_at":null}
]}`, r.Host)
	})
	mux.HandleFunc("/gkmlpt/api/all/507", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte(`{"articles":[]}`))
			return
		}
		fmt.Fprintf(w, `{"articles":[{"title":"就业补贴办法解读","url":"http://%s/detail/1.html","created_at":1704067200}]}`, r.Host)
	})
	mux.HandleFunc("/detail/1.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(gzrsjDetailPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGZRSJCrawler_Crawl(t *testing.T) {
	var sids []string
	srv := newGZRSJServer(t, &sids)
	outDir := t.TempDir()

	c := NewGZRSJCrawler(Options{
		Client:    srv.Client(),
		BaseURL:   srv.URL,
		OutputDir: outDir,
		Config:    models.CrawlConfig{FetchDetails: true, SaveRawPages: true},
	})
	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl失败: %v", err)
	}
	checkStats(t, result)

	// 505 第1页, 507 第1页; 506 返回404
	if result.Stats.Pages != 2 {
		t.Errorf("Pages = %d, want 2", result.Stats.Pages)
	}
	if len(sids) == 0 || sids[0] != gzrsjDefaultSiteID {
		t.Errorf("sid = %v", sids)
	}
	if len(result.Policies) != 3 {
		t.Fatalf("Policies = %d, want 3", len(result.Policies))
	}

	p := result.Policies[0]
	if p.Category != "规范性文件" || p.DocNumber != "穗人社规字〔2024〕1号" || p.PublishDate != "2024-01-05" {
		t.Errorf("政策字段错误: %+v", p.PolicyRef)
	}
	if p.Publisher != "广州市人力资源和社会保障局" || p.BasicInfo["分类"] != "就业创业" {
		t.Errorf("Publisher=%q BasicInfo=%v", p.Publisher, p.BasicInfo)
	}
	if p.BasicInfo["日期信息"] == "" {
		t.Error("详情页日期行未写入基本信息")
	}
	if result.Policies[1].PublishDate != "" {
		t.Errorf("created_at为null时日期应为空, got %q", result.Policies[1].PublishDate)
	}

	interp := result.Policies[2]
	if interp.Category != "解读文件" || interp.PublishDate != "2024-01-01" {
		t.Errorf("解读文件字段错误: %+v", interp.PolicyRef)
	}

	// 507 的链接与 505 重复
	if result.Stats.Details != 1 || result.Stats.FailedDetails != 1 || result.Stats.SkippedDetails != 1 {
		t.Errorf("Details=%d Failed=%d Skipped=%d",
			result.Stats.Details, result.Stats.FailedDetails, result.Stats.SkippedDetails)
	}

	if len(result.Contents) != 1 || result.Contents[0].Content != "第一章 总则\n第一条 为规范就业补贴管理" {
		t.Errorf("Contents = %+v", result.Contents)
	}
	if len(result.Attachments) != 2 || result.Attachments[1].FileType != "Excel" {
		t.Errorf("Attachments = %+v", result.Attachments)
	}
	if result.Attachments[0].Links[0] != srv.URL+"/attachment/0/1.pdf" {
		t.Errorf("附件链接 = %s", result.Attachments[0].Links[0])
	}

	saved, _ := filepath.Glob(filepath.Join(outDir, "gzrsj", "*", "page_*.json"))
	if len(saved) != 2 {
		t.Errorf("保存的JSON页面 = %d, want 2", len(saved))
	}
}

func TestGZRSJCrawler_StopsOnRepeatedPage(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/gkmlpt/api/all/505", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 10 {
			t.Errorf("接口忽略page参数时未停止")
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"articles":[{"title":"甲","url":"https://rsj.gz.gov.cn/a.html"},{"title":"乙","url":"https://rsj.gz.gov.cn/b.html"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewGZRSJCrawler(Options{
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Config:  models.CrawlConfig{Categories: []string{"规范性文件"}},
	})
	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl失败: %v", err)
	}
	checkStats(t, result)

	if result.Stats.Pages != 2 || hits.Load() != 2 {
		t.Errorf("Pages = %d, 请求次数 = %d, want 2", result.Stats.Pages, hits.Load())
	}
	if len(result.Policies) != 2 {
		t.Errorf("Policies = %d, want 2", len(result.Policies))
	}
}

func TestGZRSJCrawler_SiteIDAndCategories(t *testing.T) {
	var sids []string
	srv := newGZRSJServer(t, &sids)

	c := NewGZRSJCrawler(Options{
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Config: models.CrawlConfig{
			Categories:  []string{"规范性文件"},
			GZRSJSiteID: "300001",
		},
	})
	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl失败: %v", err)
	}
	checkStats(t, result)
	if len(result.Policies) != 2 {
		t.Errorf("Policies = %d, want 2", len(result.Policies))
	}
	for _, sid := range sids {
		if sid != "300001" {
			t.Errorf("sid = %s, want 300001", sid)
		}
	}
}

func TestParseGZRSJPage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantLen  int
		wantDate string
		wantErr  bool
	}{
		{"日期字符串", `{"articles":[{"title":"a","created_at":"2024/3/9"}]}`, 1, "2024-03-09", false},
		{"Unix时间戳", `{"articles":[{"title":"a","created_at":1704067200}]}`, 1, "2024-01-01", false},
		{"空列表", `{"articles":[]}`, 0, "", false},
		{"缺少articles", `{"total":0}`, 0, "", false},
		{"非JSON", `<html></html>`, 0, "", true},
		{"时间格式错误", `{"articles":[{"created_at":true}]}`, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			articles, err := ParseGZRSJPage([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(articles) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(articles), tt.wantLen)
			}
			if tt.wantLen > 0 && string(articles[0].CreatedAt) != tt.wantDate {
				t.Errorf("CreatedAt = %s, want %s", articles[0].CreatedAt, tt.wantDate)
			}
		})
	}
}
