package segmenter

import (
	"strings"
	"sync"
	"testing"
	"unicode"
	"unicode/utf8"
)

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSplit_Scenarios(t *testing.T) {
	t.Run("章节标记位于500处", func(t *testing.T) {
		text := strings.Repeat("政", 500) + "第二章" + strings.Repeat("策", 697)
		if runeLen(text) != 1200 {
			t.Fatalf("测试文本长度错误: %d", runeLen(text))
		}

		segments := Split(text, 1000)
		if len(segments) != 2 {
			t.Fatalf("期望2段, 得到 %d 段", len(segments))
		}
		if segments[0] != strings.Repeat("政", 500) {
			t.Errorf("第一段应在'第二章'之前结束, 长度 %d", runeLen(segments[0]))
		}
		if !strings.HasPrefix(segments[1], "第二章") {
			t.Errorf("第二段应以'第二章'开头, 得到: %q", string([]rune(segments[1])[:5]))
		}
	})

	t.Run("句号位于850处", func(t *testing.T) {
		text := strings.Repeat("文", 850) + "。" + strings.Repeat("字", 649)
		segments := Split(text, 1000)
		if len(segments) != 2 {
			t.Fatalf("期望2段, 得到 %d 段", len(segments))
		}
		if runeLen(segments[0]) != 851 {
			t.Errorf("第一段长度应为851, 得到 %d", runeLen(segments[0]))
		}
		if !strings.HasSuffix(segments[0], "。") {
			t.Error("第一段应以句号结尾")
		}
		if runeLen(segments[1]) != 649 {
			t.Errorf("第二段长度应为649, 得到 %d", runeLen(segments[1]))
		}
	})

	t.Run("无任何分割点时强制截断", func(t *testing.T) {
		segments := Split(strings.Repeat("政", 2000), 1000)
		if len(segments) != 2 {
			t.Fatalf("期望2段, 得到 %d 段", len(segments))
		}
		for i, seg := range segments {
			if runeLen(seg) != 1000 {
				t.Errorf("第%d段长度应为1000, 得到 %d", i+1, runeLen(seg))
			}
		}
	})

	t.Run("空文本与纯空白", func(t *testing.T) {
		for _, text := range []string{"", "   ", "\r\n\t　\n"} {
			segments := Split(text, 1000)
			if segments == nil || len(segments) != 0 {
				t.Errorf("输入 %q 应返回空切片, 得到 %v", text, segments)
			}
		}
	})
}

func TestSplit_CascadeOrder(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantFirst int
	}{
		{
			name:      "段落分隔符",
			text:      strings.Repeat("甲", 600) + "\n\n" + strings.Repeat("乙", 600),
			wantFirst: 600,
		},
		{
			name:      "逗号分割",
			text:      strings.Repeat("文", 900) + "，" + strings.Repeat("字", 599),
			wantFirst: 901,
		},
		{
			name:      "章节标记过早时不采用",
			text:      strings.Repeat("政", 200) + "第二章" + strings.Repeat("策", 997),
			wantFirst: 1000,
		},
		{
			name:      "条款优先于括号序号",
			text:      strings.Repeat("政", 400) + "（三）" + strings.Repeat("政", 397) + "第三条" + strings.Repeat("策", 397),
			wantFirst: 800,
		},
		{
			name:      "句号早于70%时回退到逗号",
			text:      strings.Repeat("文", 500) + "。" + strings.Repeat("文", 349) + "，" + strings.Repeat("字", 400),
			wantFirst: 851,
		},
		{
			name:      "阿拉伯数字序号",
			text:      strings.Repeat("政", 700) + "3.具体措施" + strings.Repeat("策", 600),
			wantFirst: 700,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := Split(tt.text, 1000)
			if len(segments) < 2 {
				t.Fatalf("期望至少2段, 得到 %d 段", len(segments))
			}
			if got := runeLen(segments[0]); got != tt.wantFirst {
				t.Errorf("第一段长度 = %d, 期望 %d", got, tt.wantFirst)
			}
		})
	}
}

func TestSplit_ShortInputReturnsCleaned(t *testing.T) {
	input := "  关于  印发\t规划的通知 \r\n\r\n\r\n 各省、自治区  "
	segments := Split(input, 1000)
	if len(segments) != 1 {
		t.Fatalf("期望1段, 得到 %d 段", len(segments))
	}
	if segments[0] != Clean(input) {
		t.Errorf("短文本应原样返回清理结果, 得到 %q", segments[0])
	}
	if segments[0] != "关于 印发 规划的通知\n\n各省、自治区" {
		t.Errorf("清理结果不符合预期: %q", segments[0])
	}
}

func TestSplit_Invariants(t *testing.T) {
	inputs := []string{
		strings.Repeat("第一章 总则。本办法适用于全国范围。\n", 120),
		strings.Repeat("1.加强组织领导；2.完善配套政策，", 200),
		strings.Repeat("（一）总体要求\n\n各地区要认真贯彻落实。", 150),
		strings.Repeat("abc def, ghi; ", 400),
		strings.Repeat("政", 3333),
		strings.Repeat("一、", 900),
	}

	for _, maxChars := range []int{50, 137, 500, 1000} {
		for i, input := range inputs {
			segments := Split(input, maxChars)
			if len(segments) == 0 {
				t.Fatalf("输入%d 不应返回空结果", i)
			}
			for j, seg := range segments {
				if seg == "" {
					t.Errorf("max=%d 输入%d 第%d段为空", maxChars, i, j+1)
				}
				if runeLen(seg) > maxChars {
					t.Errorf("max=%d 输入%d 第%d段超长: %d", maxChars, i, j+1, runeLen(seg))
				}
			}

			joined := stripSpace(strings.Join(segments, ""))
			if joined != stripSpace(Clean(input)) {
				t.Errorf("max=%d 输入%d 拼接结果与清理后文本不一致", maxChars, i)
			}

			again := Split(input, maxChars)
			if strings.Join(again, "|") != strings.Join(segments, "|") {
				t.Errorf("max=%d 输入%d 两次分段结果不一致", maxChars, i)
			}
		}
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空字符串", "", ""},
		{"纯空白", " \t\r\n　", ""},
		{"行内空白压缩", "a  \t b", "a b"},
		{"全角空格", "关于　　通知", "关于 通知"},
		{"CRLF规范化", "a\r\nb\rc", "a\nb\nc"},
		{"多空行压缩", "a\n\n\n\n b", "a\n\nb"},
		{"空白行视为空行", "a\n   \n\t\nb", "a\n\nb"},
		{"首尾修剪", "\n\n  a  \n\n", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clean(tt.input)
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
			if again := Clean(got); again != got {
				t.Errorf("Clean 不是幂等的: %q -> %q", got, again)
			}
		})
	}
}

func TestSimpleStrategy(t *testing.T) {
	seg := New(1000, StrategySimple)
	text := strings.Repeat("甲", 600) + "\n\n" + strings.Repeat("乙", 1500)

	segments := seg.Split(text)
	want := []int{600, 1000, 500}
	if len(segments) != len(want) {
		t.Fatalf("期望 %d 段, 得到 %d 段", len(want), len(segments))
	}
	for i, n := range want {
		if runeLen(segments[i]) != n {
			t.Errorf("第%d段长度 = %d, 期望 %d", i+1, runeLen(segments[i]), n)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyStrict, false},
		{"strict", StrategyStrict, false},
		{" Simple ", StrategySimple, false},
		{"fancy", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStrategy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, 期望 %q", tt.input, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	seg := New(0, "")
	if seg.MaxChars() != DefaultMaxChars {
		t.Errorf("默认最大字符数应为 %d, 得到 %d", DefaultMaxChars, seg.MaxChars())
	}
	if seg.Strategy() != StrategyStrict {
		t.Errorf("默认策略应为strict, 得到 %s", seg.Strategy())
	}
}

func TestSplit_Concurrent(t *testing.T) {
	seg := New(300, StrategyStrict)
	text := strings.Repeat("第一条 为规范管理，制定本办法。\n\n", 80)
	want := strings.Join(seg.Split(text), "|")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := strings.Join(seg.Split(text), "|"); got != want {
				t.Error("并发分段结果不一致")
			}
		}()
	}
	wg.Wait()
}
