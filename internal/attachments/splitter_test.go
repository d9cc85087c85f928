package attachments

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/govpolicy/internal/sheet"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"PDF", "https://www.ndrc.gov.cn/xxgk/P020240101.pdf", "PDF"},
		{"大写扩展名", "https://www.ndrc.gov.cn/a/B.DOCX", "Word"},
		{"Excel", "https://rsj.gz.gov.cn/attachment/0/1/附表.xlsx", "Excel"},
		{"OFD", "https://a.cn/f.ofd", "OFD"},
		{"压缩包", "https://a.cn/f.7z", "压缩文件"},
		{"未知扩展名", "https://a.cn/f.wps", "其他文件(.wps)"},
		{"查询参数中的扩展名", "https://a.cn/download?file=notice.docx", "Word"},
		{"查询参数中的PDF", "https://a.cn/download?name=a.pdf&id=3", "PDF"},
		{"无扩展名", "https://a.cn/download?id=3", "未知类型"},
		{"空字符串", "", "未知类型"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFileType(tt.url); got != tt.want {
				t.Errorf("DetectFileType(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			"分号分隔",
			"https://a.cn/1.pdf; https://a.cn/2.doc",
			[]string{"https://a.cn/1.pdf", "https://a.cn/2.doc"},
		},
		{
			"中文标点分隔并去重",
			"https://a.cn/1.pdf，https://a.cn/2.doc、https://a.cn/1.pdf",
			[]string{"https://a.cn/1.pdf", "https://a.cn/2.doc"},
		},
		{
			"换行与竖线",
			"http://a.cn/x.xls\nhttps://b.cn/y.zip|https://c.cn/z",
			[]string{"http://a.cn/x.xls", "https://b.cn/y.zip", "https://c.cn/z"},
		},
		{"没有链接", "/xxgk/file.pdf", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractLinks(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractLinks = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	t.Run("名称或链接为空", func(t *testing.T) {
		if got := Split("", "https://a.cn/1.pdf"); got != nil {
			t.Errorf("Split = %v, want nil", got)
		}
		if got := Split("附件", "  "); got != nil {
			t.Errorf("Split = %v, want nil", got)
		}
	})

	t.Run("单个链接保留原值", func(t *testing.T) {
		got := Split("实施细则.pdf", "https://a.cn/1.pdf")
		want := []Item{{Name: "实施细则.pdf", Link: "https://a.cn/1.pdf", FileType: "PDF"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Split = %+v", got)
		}
	})

	t.Run("没有http链接", func(t *testing.T) {
		got := Split("附件", "/upload/1.doc")
		if len(got) != 1 || got[0].Link != "/upload/1.doc" || got[0].FileType != "Word" {
			t.Errorf("Split = %+v", got)
		}
	})

	t.Run("按分隔符拆分名称", func(t *testing.T) {
		got := Split("申报表.doc; 说明.pdf", "https://a.cn/1.doc; https://a.cn/2.pdf")
		want := []Item{
			{Name: "申报表.doc", Link: "https://a.cn/1.doc", FileType: "Word"},
			{Name: "说明.pdf", Link: "https://a.cn/2.pdf", FileType: "PDF"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Split = %+v", got)
		}
	})
}

func TestSplitNames(t *testing.T) {
	tests := []struct {
		name  string
		names string
		n     int
		want  []string
	}{
		{
			"数字序号标记",
			"1.申报指南 2.申报表 3.承诺书",
			3,
			[]string{"1.申报指南", "2.申报表", "3.承诺书"},
		},
		{
			"标记前的前缀归入第一段",
			"附件：1、目录 2、说明",
			2,
			[]string{"附件：1、目录", "2、说明"},
		},
		{
			"第N标记",
			"第1项目录 第2项说明",
			2,
			[]string{"第1项目录", "第2项说明"},
		},
		{
			"标记数量不符时使用分隔符",
			"目录；说明；附表",
			3,
			[]string{"目录", "说明", "附表"},
		},
		{
			"换行分隔",
			"目录\n说明",
			2,
			[]string{"目录", "说明"},
		},
		{
			"自然分割点",
			"目录。说明！附表",
			3,
			[]string{"目录。", "说明！", "附表"},
		},
		{
			"平均切分",
			"甲乙丙丁戊己",
			3,
			[]string{"甲乙", "丙丁", "戊己"},
		},
		{
			"不足时补齐",
			"目录",
			3,
			[]string{"目录", "附件2", "附件3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitNames(tt.names, tt.n)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitNames(%q, %d) = %q, want %q", tt.names, tt.n, got, tt.want)
			}
		})
	}
}

func TestSplitAttachmentWorkbook(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "政策数据.xlsx")
	out := filepath.Join(dir, "附件拆解.xlsx")

	err := sheet.WriteTables(in, sheet.Table{
		Name:   sheet.SheetAttachments,
		Header: sheet.WithPolicyColumns(sheet.ColFileType, sheet.ColAttachmentNames, sheet.ColAttachmentLinks),
		Rows:   []map[string]string{
			{
				sheet.ColCategory: "通知", sheet.ColTitle: "关于开展申报的通知", sheet.ColDocNumber: "发改办〔2024〕1号",
				sheet.ColAttachmentNames: "申报表.doc; 说明.pdf",
				sheet.ColAttachmentLinks: "https://a.cn/1.doc; https://a.cn/2.pdf",
			},
			{
				sheet.ColCategory: "公告", sheet.ColTitle: "第3号公告",
			},
		},
	})
	if err != nil {
		t.Fatalf("准备输入失败: %v", err)
	}

	stats, err := SplitAttachmentWorkbook(in, out)
	if err != nil {
		t.Fatalf("SplitAttachmentWorkbook失败: %v", err)
	}
	if stats.Rows != 3 || stats.Policies != 2 || stats.WithAttachments != 1 || stats.WithoutAttachments != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TypeCounts["Word"] != 1 || stats.TypeCounts[TypeNone] != 1 || stats.MaxPerPolicy != 2 {
		t.Errorf("TypeCounts = %v, MaxPerPolicy = %d", stats.TypeCounts, stats.MaxPerPolicy)
	}

	rows, err := sheet.ReadSheet(out, sheet.SheetAttachmentsSplit)
	if err != nil {
		t.Fatalf("读取输出失败: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("行数 = %d, want 3", len(rows))
	}
	if rows[1][sheet.ColAttachmentSeq] != "2" || rows[1][sheet.ColAttachmentNames] != "说明.pdf" || rows[1][sheet.ColDocNumber] != "发改办〔2024〕1号" {
		t.Errorf("第二行 = %v", rows[1])
	}
	if rows[2][sheet.ColAttachmentSeq] != "1" || rows[2][sheet.ColFileType] != TypeNone || rows[2][sheet.ColAttachmentLinks] != "" {
		t.Errorf("无附件行 = %v", rows[2])
	}
}

func TestSplitAttachmentWorkbook_MissingSheet(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.xlsx")
	if err := sheet.WriteTables(in, sheet.Table{Name: "其他", Header: []string{"a"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := SplitAttachmentWorkbook(in, filepath.Join(t.TempDir(), "out.xlsx")); err == nil {
		t.Error("缺少政策附件工作表时应返回错误")
	}
}
