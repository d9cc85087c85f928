// Package attachments 处理政策附件: 拆分附件单元格, 识别文件类型, 批量下载附件文件
package attachments

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/govpolicy/internal/sheet"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// Item 拆分后的单个附件
type Item struct {
	Name     string
	Link     string
	FileType string
}

var linkPattern = regexp.MustCompile(`https?://[^\s,;，；、|]+`)

// 附件名称中的序号标记, 按顺序尝试
var markerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+[.、)）]`),
	regexp.MustCompile(`[（(]\d+[）)]`),
	regexp.MustCompile(`第\d+`),
	regexp.MustCompile(`附件\d+`),
}

var nameSeparators = []string{"\n", "；", ";", "，", ",", "、", "|", "||"}

// 自然分割点: 句末标点、逗号、顿号、空白
var breakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[。！？；]`),
	regexp.MustCompile(`[，,]`),
	regexp.MustCompile(`、`),
	regexp.MustCompile(`\s+`),
}

// ExtractLinks 提取文本中的http(s)链接, 保持顺序并去重
func ExtractLinks(s string) []string {
	found := linkPattern.FindAllString(s, -1)
	links := make([]string, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, link := range found {
		if seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}

// Split 将附件名称与链接单元格拆成单个附件
//
// 名称或链接为空时返回nil; 链接单元格中不足两个链接时整体作为一个附件;
// 多个链接时按链接数量拆分名称。
func Split(names, links string) []Item {
	names = strings.TrimSpace(names)
	links = strings.TrimSpace(links)
	if names == "" || links == "" {
		return nil
	}

	found := ExtractLinks(links)
	if len(found) <= 1 {
		return []Item{{Name: names, Link: links, FileType: DetectFileType(links)}}
	}

	parts := splitNames(names, len(found))
	items := make([]Item, 0, len(found))
	for i, link := range found {
		if parts[i] == "" {
			continue
		}
		items = append(items, Item{Name: parts[i], Link: link, FileType: DetectFileType(link)})
	}
	return items
}

// splitNames 将名称拆成n份, 结果长度恒为n
func splitNames(names string, n int) []string {
	if n <= 1 {
		return []string{names}
	}
	if parts := splitByMarkers(names, n); len(parts) == n {
		return parts
	}
	for _, sep := range nameSeparators {
		if !strings.Contains(names, sep) {
			continue
		}
		if parts := splitNonEmpty(names, sep); len(parts) == n {
			return parts
		}
	}
	return splitBySequence(names, n)
}

// splitByMarkers 恰好有n个序号标记时在标记前切分, 第一段包含标记前的前缀
func splitByMarkers(names string, n int) []string {
	for _, re := range markerPatterns {
		locs := re.FindAllStringIndex(names, -1)
		if len(locs) != n {
			continue
		}

		parts := make([]string, 0, n)
		for i := range locs {
			start := locs[i][0]
			if i == 0 {
				start = 0
			}
			end := len(names)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			if part := strings.TrimSpace(names[start:end]); part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	var parts []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// splitBySequence 在自然分割点后切分, 没有足够的分割点时按字符数平均切分
// 不足n份时以 "附件N" 补齐
func splitBySequence(names string, n int) []string {
	var points []int
	for _, re := range breakPatterns {
		locs := re.FindAllStringIndex(names, -1)
		if len(locs) >= n-1 {
			for _, loc := range locs[:n-1] {
				points = append(points, loc[1])
			}
			break
		}
	}

	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	if len(points) > 0 {
		last := 0
		for _, p := range points {
			add(names[last:p])
			last = p
		}
		add(names[last:])
	} else {
		runes := []rune(names)
		size := len(runes) / n
		for i := 0; i < n; i++ {
			end := (i + 1) * size
			if i == n-1 {
				end = len(runes)
			}
			add(string(runes[i*size : end]))
		}
	}

	for len(parts) < n {
		parts = append(parts, fmt.Sprintf("附件%d", len(parts)+1))
	}
	return parts[:n]
}

// SplitStats 附件拆分统计
type SplitStats struct {
	Rows               int
	Policies           int
	WithAttachments    int
	WithoutAttachments int
	MaxPerPolicy       int
	TypeCounts         map[string]int
}

// SplitAttachmentWorkbook 读取 "政策附件" 工作表, 每个附件一行写入 "政策附件_拆解"
func SplitAttachmentWorkbook(in, out string) (*SplitStats, error) {
	utils.Infof("开始拆分附件: %s", in)

	table, err := sheet.ReadTable(in, sheet.SheetAttachments)
	if err != nil {
		return nil, err
	}
	utils.Infof("读取到 %d 条附件记录", len(table.Rows))

	w := sheet.NewWorkbook()
	s, err := w.AddSheet(sheet.SheetAttachmentsSplit, sheet.WithPolicyColumns(
		sheet.ColAttachmentSeq, sheet.ColAttachmentNames, sheet.ColAttachmentLinks, sheet.ColFileType,
	))
	if err != nil {
		return nil, err
	}

	stats := &SplitStats{TypeCounts: make(map[string]int)}
	titles := make(map[string]bool)
	perPolicy := make(map[string]int)

	for _, row := range table.Rows {
		title := row[sheet.ColTitle]
		titles[title] = true

		items := Split(row[sheet.ColAttachmentNames], row[sheet.ColAttachmentLinks])
		if len(items) == 0 {
			appendSplitRow(s, row, 1, Item{FileType: TypeNone})
			stats.WithoutAttachments++
			stats.TypeCounts[TypeNone]++
			continue
		}

		for i, it := range items {
			appendSplitRow(s, row, i+1, it)
			stats.TypeCounts[it.FileType]++
		}
		stats.WithAttachments++
		perPolicy[title] += len(items)
		utils.Debugf("政策 %q 拆分出 %d 个附件", title, len(items))
	}

	stats.Rows = s.Len()
	stats.Policies = len(titles)
	for _, n := range perPolicy {
		stats.MaxPerPolicy = max(stats.MaxPerPolicy, n)
	}

	if err := w.Save(out); err != nil {
		return nil, err
	}
	utils.Infof("附件拆分完成, 共 %d 行, 已保存到: %s", stats.Rows, out)
	stats.log()
	return stats, nil
}

func appendSplitRow(s *sheet.Sheet, row map[string]string, seq int, it Item) {
	s.Append(
		row[sheet.ColCategory],
		row[sheet.ColTitle],
		row[sheet.ColDocNumber],
		row[sheet.ColPublishDate],
		row[sheet.ColURL],
		seq,
		it.Name,
		it.Link,
		it.FileType,
	)
}

func (st *SplitStats) log() {
	utils.Info("📊 附件拆分统计")
	utils.Infof("总行数: %d, 涉及政策: %d", st.Rows, st.Policies)
	utils.Infof("有附件: %d, 无附件: %d, 单条最多附件: %d", st.WithAttachments, st.WithoutAttachments, st.MaxPerPolicy)

	types := make([]string, 0, len(st.TypeCounts))
	for t := range st.TypeCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if st.TypeCounts[types[i]] != st.TypeCounts[types[j]] {
			return st.TypeCounts[types[i]] > st.TypeCounts[types[j]]
		}
		return types[i] < types[j]
	})
	for i, t := range types {
		if i == 10 {
			break
		}
		utils.Infof("  %s: %d", t, st.TypeCounts[t])
	}
}
