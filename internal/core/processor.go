package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/segmenter"
	"github.com/RecoveryAshes/govpolicy/internal/sheet"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// SegmentStats 正文分段统计
type SegmentStats struct {
	Segments int
	Policies int
	AvgLen   float64
	MaxLen   int
	MinLen   int
	Short    int // ≤500字
	Medium   int // 500-1000字
	Long     int // >1000字
}

func (s *SegmentStats) add(n int) {
	if s.Segments == 0 || n < s.MinLen {
		s.MinLen = n
	}
	s.MaxLen = max(s.MaxLen, n)
	s.AvgLen += (float64(n) - s.AvgLen) / float64(s.Segments+1)
	s.Segments++

	switch {
	case n <= 500:
		s.Short++
	case n <= 1000:
		s.Medium++
	default:
		s.Long++
	}
}

func (s *SegmentStats) log() {
	utils.Info("📊 分段统计")
	utils.Infof("总段落数: %d, 涉及政策: %d", s.Segments, s.Policies)
	utils.Infof("平均段落长度: %.1f 字符, 最长: %d, 最短: %d", s.AvgLen, s.MaxLen, s.MinLen)
	utils.Infof("短段落(≤500字): %d, 中段落(500-1000字): %d, 长段落(>1000字): %d", s.Short, s.Medium, s.Long)
}

// SplitContentWorkbook 读取 "政策正文" 工作表, 每段一行写入 "政策正文_分段"
// 正文为空的政策写一行空内容, 序号为1
func SplitContentWorkbook(in, out string, seg *segmenter.Segmenter) (*SegmentStats, error) {
	if seg == nil {
		seg = segmenter.New(segmenter.DefaultMaxChars, segmenter.StrategyStrict)
	}
	utils.Infof("开始正文分段: %s (每段最多 %d 字, 策略 %s)", in, seg.MaxChars(), seg.Strategy())

	table, err := sheet.ReadTable(in, sheet.SheetContents)
	if err != nil {
		return nil, err
	}
	utils.Infof("读取到 %d 条正文记录", len(table.Rows))

	w := sheet.NewWorkbook()
	s, err := w.AddSheet(sheet.SheetContentSegments, sheet.WithPolicyColumns(
		sheet.ColSegmentSeq, sheet.ColSegmentContent, sheet.ColCharCount,
	))
	if err != nil {
		return nil, err
	}

	stats := &SegmentStats{}
	titles := make(map[string]bool)
	for _, row := range table.Rows {
		titles[row[sheet.ColTitle]] = true

		segments := seg.Split(row[sheet.ColContent])
		if len(segments) == 0 {
			segments = []string{""}
		}
		for i, text := range segments {
			n := utf8.RuneCountInString(text)
			s.Append(
				row[sheet.ColCategory],
				row[sheet.ColTitle],
				row[sheet.ColDocNumber],
				row[sheet.ColPublishDate],
				row[sheet.ColURL],
				i+1,
				text,
				n,
			)
			stats.add(n)
		}
		utils.Debugf("政策 %q 分为 %d 段", row[sheet.ColTitle], len(segments))
	}
	stats.Policies = len(titles)

	if err := w.Save(out); err != nil {
		return nil, err
	}
	utils.Infof("分段完成, 共 %d 行, 已保存到: %s", stats.Segments, out)
	stats.log()
	return stats, nil
}

// categoryRank 按分类顺序排序, 不在列表中的排在最后
func categoryRank(order []string) func(string) int {
	rank := make(map[string]int, len(order))
	for i, c := range order {
		if _, ok := rank[c]; !ok {
			rank[c] = i
		}
	}
	return func(c string) int {
		if r, ok := rank[c]; ok {
			return r
		}
		return len(order)
	}
}

func boolText(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

// WriteCrawlWorkbook 将爬取结果写入四个工作表: 政策列表、政策正文、政策附件、政策解读
//
// 各表按分类顺序排列, 同一分类内日期新的在前 (政策列表先按页码)。
// 有发布单位或有效性时政策列表增加对应列, 有详情页基本信息时增加 "基本信息" 表。
func WriteCrawlWorkbook(path string, result *models.CrawlResult, order []string) error {
	rank := categoryRank(order)
	cmpRef := func(a, b models.PolicyRef) int {
		if ra, rb := rank(a.Category), rank(b.Category); ra != rb {
			return ra - rb
		}
		return strings.Compare(b.PublishDate, a.PublishDate)
	}

	w := sheet.NewWorkbook()

	policies := append([]models.Policy(nil), result.Policies...)
	sort.SliceStable(policies, func(i, j int) bool {
		a, b := policies[i], policies[j]
		if ra, rb := rank(a.Category), rank(b.Category); ra != rb {
			return ra < rb
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.PublishDate > b.PublishDate
	})
	if err := writePolicies(w, policies); err != nil {
		return err
	}

	contents := append([]models.ContentRecord(nil), result.Contents...)
	sort.SliceStable(contents, func(i, j int) bool { return cmpRef(contents[i].PolicyRef, contents[j].PolicyRef) < 0 })
	s, err := w.AddSheet(sheet.SheetContents, sheet.WithPolicyColumns(sheet.ColContent))
	if err != nil {
		return err
	}
	for _, c := range contents {
		s.Append(refValues(c.PolicyRef, c.Content)...)
	}
	utils.Infof("✅ %s: %d 条", sheet.SheetContents, s.Len())

	atts := append([]models.AttachmentRecord(nil), result.Attachments...)
	sort.SliceStable(atts, func(i, j int) bool { return cmpRef(atts[i].PolicyRef, atts[j].PolicyRef) < 0 })
	s, err = w.AddSheet(sheet.SheetAttachments, sheet.WithPolicyColumns(
		sheet.ColAttachmentType, sheet.ColAttachmentNames, sheet.ColAttachmentLinks,
	))
	if err != nil {
		return err
	}
	for _, a := range atts {
		s.Append(refValues(a.PolicyRef, a.FileType, strings.Join(a.Names, "\n"), strings.Join(a.Links, "\n"))...)
	}
	utils.Infof("✅ %s: %d 条", sheet.SheetAttachments, s.Len())

	interps := append([]models.Interpretation(nil), result.Interpretations...)
	sort.SliceStable(interps, func(i, j int) bool { return cmpRef(interps[i].PolicyRef, interps[j].PolicyRef) < 0 })
	s, err = w.AddSheet(sheet.SheetInterpretations, []string{
		sheet.ColCategory, sheet.ColTitle, sheet.ColPolicyDate, sheet.ColURL,
		sheet.ColInterpretationTitle, sheet.ColInterpretationURL,
	})
	if err != nil {
		return err
	}
	for _, it := range interps {
		s.Append(it.Category, it.Title, it.PublishDate, it.URL, it.InterpretationTitle, it.InterpretationURL)
	}
	utils.Infof("✅ %s: %d 条", sheet.SheetInterpretations, s.Len())

	if err := writeBasicInfo(w, policies); err != nil {
		return err
	}

	if err := w.Save(path); err != nil {
		return err
	}
	utils.Infof("🎉 数据已保存到: %s", path)
	return nil
}

func refValues(ref models.PolicyRef, extra ...interface{}) []interface{} {
	return append([]interface{}{ref.Category, ref.Title, ref.DocNumber, ref.PublishDate, ref.URL}, extra...)
}

func writePolicies(w *sheet.Workbook, policies []models.Policy) error {
	var withPublisher, withValidity bool
	for _, p := range policies {
		withPublisher = withPublisher || p.Publisher != ""
		withValidity = withValidity || p.Validity != ""
	}

	header := []string{
		sheet.ColCategory, sheet.ColPage, sheet.ColTitle, sheet.ColDocNumber,
		sheet.ColPublishDate, sheet.ColURL, sheet.ColHasInterpretation, sheet.ColInterpretationCount,
	}
	if withPublisher {
		header = append(header, sheet.ColPublisher)
	}
	if withValidity {
		header = append(header, sheet.ColValidity)
	}

	s, err := w.AddSheet(sheet.SheetPolicies, header)
	if err != nil {
		return err
	}
	for _, p := range policies {
		values := []interface{}{
			p.Category, p.Page, p.Title, p.DocNumber,
			p.PublishDate, p.URL, boolText(p.HasInterpretation), p.InterpretationCount,
		}
		if withPublisher {
			values = append(values, p.Publisher)
		}
		if withValidity {
			values = append(values, p.Validity)
		}
		s.Append(values...)
	}
	utils.Infof("✅ %s: %d 条", sheet.SheetPolicies, s.Len())
	return nil
}

// writeBasicInfo 详情页基本信息, 每个字段一行
func writeBasicInfo(w *sheet.Workbook, policies []models.Policy) error {
	var s *sheet.Sheet
	for _, p := range policies {
		if len(p.BasicInfo) == 0 {
			continue
		}
		if s == nil {
			var err error
			s, err = w.AddSheet(sheet.SheetBasicInfo, []string{sheet.ColTitle, sheet.ColURL, sheet.ColInfoKey, sheet.ColInfoValue})
			if err != nil {
				return err
			}
		}
		keys := make([]string, 0, len(p.BasicInfo))
		for k := range p.BasicInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.Append(p.Title, p.URL, k, p.BasicInfo[k])
		}
	}
	if s != nil {
		utils.Infof("✅ %s: %d 条", sheet.SheetBasicInfo, s.Len())
	}
	return nil
}

// WriteCrawlJSON 将爬取结果保存为JSON
func WriteCrawlJSON(path string, result *models.CrawlResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入JSON文件失败: %w", err)
	}
	utils.Infof("JSON已保存到: %s", path)
	return nil
}
