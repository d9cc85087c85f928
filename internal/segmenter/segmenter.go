package segmenter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// DefaultMaxChars 默认每段最大字符数
const DefaultMaxChars = 1000

// Strategy 分段策略
type Strategy string

const (
	// StrategyStrict 章节 → 段落 → 句子 → 标点 → 强制截断
	StrategyStrict Strategy = "strict"
	// StrategySimple 按空行分段,超长段落按字符数截断
	StrategySimple Strategy = "simple"
)

// ParseStrategy 解析分段策略名称,空字符串视为strict
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyStrict:
		return StrategyStrict, nil
	case StrategySimple:
		return StrategySimple, nil
	default:
		return "", fmt.Errorf("无效的分段策略: %s (有效值: strict, simple)", name)
	}
}

// 章节/条款/序号标记,按优先级排列
var structuralPatterns = []*regexp.Regexp{
	regexp.MustCompile(`第[一二三四五六七八九十百\d]+章`),
	regexp.MustCompile(`第[一二三四五六七八九十百\d]+条`),
	regexp.MustCompile(`第[一二三四五六七八九十百\d]+节`),
	regexp.MustCompile(`第[一二三四五六七八九十百\d]+部分`),
	regexp.MustCompile(`第[一二三四五六七八九十百\d]+项`),
	regexp.MustCompile(`（[一二三四五六七八九十\d]+）`),
	regexp.MustCompile(`\([一二三四五六七八九十\d]+\)`),
	regexp.MustCompile(`[一二三四五六七八九十\d]+、`),
	regexp.MustCompile(`\d+\.`),
	regexp.MustCompile(`\d+、`),
}

var (
	sentenceEndings   = []rune{'。', '！', '？', '；', '.', '!', '?', ';'}
	punctuationMarks  = []rune{'，', ',', '、', '：', ':', '；', ';'}
	paragraphSentinel = []rune{'\n', '\n'}
)

// Segmenter 正文分段器
// 无共享可变状态,可被多个goroutine并发使用
type Segmenter struct {
	maxChars int
	strategy Strategy
}

// New 创建分段器, maxChars<=0 时使用默认值
func New(maxChars int, strategy Strategy) *Segmenter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if strategy == "" {
		strategy = StrategyStrict
	}
	return &Segmenter{maxChars: maxChars, strategy: strategy}
}

// Split 使用指定字符上限对文本分段
func Split(text string, maxChars int) []string {
	return New(maxChars, StrategyStrict).Split(text)
}

// MaxChars 返回每段最大字符数
func (s *Segmenter) MaxChars() int {
	return s.maxChars
}

// Strategy 返回分段策略
func (s *Segmenter) Strategy() Strategy {
	return s.strategy
}

// Split 清理文本并按字符上限切分为有序段落
// 空文本或纯空白返回空切片,任何内部错误都退化为强制截断
func (s *Segmenter) Split(text string) []string {
	cleaned := Clean(text)
	if cleaned == "" {
		return []string{}
	}

	if utf8.RuneCountInString(cleaned) <= s.maxChars {
		return []string{cleaned}
	}

	if s.strategy == StrategySimple {
		return s.splitSimple(cleaned)
	}
	return s.splitStrict(cleaned)
}

func (s *Segmenter) splitStrict(cleaned string) []string {
	remaining := []rune(cleaned)
	segments := make([]string, 0, len(remaining)/s.maxChars+1)

	for len(remaining) > s.maxChars {
		offset := s.findSplit(remaining)
		if offset <= 0 || offset >= len(remaining) {
			offset = s.maxChars
		}

		segment := strings.TrimSpace(string(remaining[:offset]))
		remaining = []rune(strings.TrimSpace(string(remaining[offset:])))

		if segment != "" {
			segments = append(segments, segment)
		}
	}

	if len(remaining) > 0 {
		segments = append(segments, string(remaining))
	}
	return segments
}

func (s *Segmenter) splitSimple(cleaned string) []string {
	segments := make([]string, 0)
	for _, paragraph := range strings.Split(cleaned, "\n\n") {
		runes := []rune(strings.TrimSpace(paragraph))
		for len(runes) > s.maxChars {
			if segment := strings.TrimSpace(string(runes[:s.maxChars])); segment != "" {
				segments = append(segments, segment)
			}
			runes = runes[s.maxChars:]
		}
		if segment := strings.TrimSpace(string(runes)); segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// findSplit 按优先级查找分割点,未找到时返回maxChars
func (s *Segmenter) findSplit(remaining []rune) (offset int) {
	defer func() {
		if r := recover(); r != nil {
			utils.Warnf("分割内容时出错: %v, 使用强制分割", r)
			offset = s.maxChars
		}
	}()

	if pos := s.findStructuralSplit(remaining); pos != -1 {
		return pos
	}
	if pos := s.findParagraphSplit(remaining); pos != -1 {
		return pos
	}
	if pos := s.findMarkSplit(remaining, sentenceEndings, 0.7); pos != -1 {
		return pos
	}
	if pos := s.findMarkSplit(remaining, punctuationMarks, 0.8); pos != -1 {
		return pos
	}
	return s.maxChars
}

// findStructuralSplit 在标记之前分割,标记起点需落在 (30%, 100%] 区间
func (s *Segmenter) findStructuralSplit(remaining []rune) int {
	text := string(remaining)
	lower := 0.3 * float64(s.maxChars)

	for _, pattern := range structuralPatterns {
		byteIdx, runeIdx := 0, 0
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			runeIdx += utf8.RuneCountInString(text[byteIdx:loc[0]])
			byteIdx = loc[0]
			if runeIdx > s.maxChars {
				break
			}
			if float64(runeIdx) > lower {
				return runeIdx
			}
		}
	}
	return -1
}

// findParagraphSplit 在50%之后的第一个空行处分割
func (s *Segmenter) findParagraphSplit(remaining []rune) int {
	start := int(float64(s.maxChars) * 0.5)
	for i := start; i+len(paragraphSentinel) <= len(remaining) && i <= s.maxChars; i++ {
		if remaining[i] == paragraphSentinel[0] && remaining[i+1] == paragraphSentinel[1] {
			return i + len(paragraphSentinel)
		}
	}
	return -1
}

// findMarkSplit 在 [ratio*maxChars, maxChars) 内从后向前查找标点,按标点优先级逐个尝试
func (s *Segmenter) findMarkSplit(remaining []rune, marks []rune, ratio float64) int {
	start := int(float64(s.maxChars) * ratio)
	end := s.maxChars
	if end > len(remaining) {
		end = len(remaining)
	}

	for _, mark := range marks {
		for i := end - 1; i >= start; i-- {
			if remaining[i] == mark {
				return i + 1
			}
		}
	}
	return -1
}
