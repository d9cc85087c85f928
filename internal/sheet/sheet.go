// Package sheet 读写 .xlsx 工作簿
//
// 每个工作表的第一行为表头, 其余各行按表头读取为 map。
package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx/v3"
)

// ErrSheetNotFound 工作簿中没有指定名称的工作表
var ErrSheetNotFound = errors.New("工作表不存在")

// Excel 工作表名称上限
const maxSheetName = 31

// Table 一个工作表的内容
type Table struct {
	Name   string
	Header []string
	Rows   []map[string]string
}

// Column 按表头取一列
func (t *Table) Column(name string) []string {
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values
}

// HasColumn 表头是否包含该列
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// Workbook 待写入的工作簿
type Workbook struct {
	file        *xlsx.File
	headerStyle *xlsx.Style
}

// NewWorkbook 创建空工作簿
func NewWorkbook() *Workbook {
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true
	return &Workbook{file: xlsx.NewFile(), headerStyle: style}
}

// Sheet 正在写入的工作表
type Sheet struct {
	sheet  *xlsx.Sheet
	header []string
	rows   int
}

// AddSheet 添加工作表并写入表头
func (w *Workbook) AddSheet(name string, header []string) (*Sheet, error) {
	if n := []rune(name); len(n) > maxSheetName {
		name = string(n[:maxSheetName])
	}
	s, err := w.file.AddSheet(name)
	if err != nil {
		return nil, fmt.Errorf("添加工作表 %s 失败: %w", name, err)
	}

	row := s.AddRow()
	for _, h := range header {
		cell := row.AddCell()
		cell.SetString(h)
		cell.SetStyle(w.headerStyle)
	}
	return &Sheet{sheet: s, header: header}, nil
}

// Append 追加一行, 值按表头顺序对应
// 支持 string、int、int64、float64、bool, 其余类型按 fmt.Sprint 写入
func (s *Sheet) Append(values ...interface{}) {
	row := s.sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch val := v.(type) {
		case string:
			cell.SetString(val)
		case int:
			cell.SetInt(val)
		case int64:
			cell.SetInt64(val)
		case float64:
			cell.SetFloat(val)
		case bool:
			cell.SetBool(val)
		case nil:
			cell.SetString("")
		default:
			cell.SetString(fmt.Sprint(val))
		}
	}
	s.rows++
}

// AppendMap 按表头从map中取值追加一行
func (s *Sheet) AppendMap(record map[string]string) {
	values := make([]interface{}, len(s.header))
	for i, h := range s.header {
		values[i] = record[h]
	}
	s.Append(values...)
}

// Len 已写入的数据行数 (不含表头)
func (s *Sheet) Len() int {
	return s.rows
}

// Save 保存到文件, 自动创建父目录
func (w *Workbook) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := w.file.Save(path); err != nil {
		return fmt.Errorf("保存工作簿失败: %w", err)
	}
	return nil
}

// WriteTables 将多个表写入同一个工作簿
func WriteTables(path string, tables ...Table) error {
	w := NewWorkbook()
	for _, t := range tables {
		s, err := w.AddSheet(t.Name, t.Header)
		if err != nil {
			return err
		}
		for _, row := range t.Rows {
			s.AppendMap(row)
		}
	}
	return w.Save(path)
}

// ReadAll 按顺序读取所有工作表
func ReadAll(path string) ([]Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开工作簿失败: %w", err)
	}

	tables := make([]Table, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		t, err := readSheet(s)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// ReadTable 读取指定工作表
func ReadTable(path, name string) (Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("打开工作簿失败: %w", err)
	}
	s, ok := f.Sheet[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	return readSheet(s)
}

// ReadSheet 读取指定工作表的数据行
func ReadSheet(path, name string) ([]map[string]string, error) {
	t, err := ReadTable(path, name)
	if err != nil {
		return nil, err
	}
	return t.Rows, nil
}

// readSheet 第一行为表头, 空行跳过
func readSheet(s *xlsx.Sheet) (Table, error) {
	t := Table{Name: s.Name}
	first := true

	err := s.ForEachRow(func(r *xlsx.Row) error {
		var cells []string
		err := r.ForEachCell(func(c *xlsx.Cell) error {
			x, _ := c.GetCoordinates()
			for len(cells) <= x {
				cells = append(cells, "")
			}
			cells[x] = strings.TrimSpace(c.String())
			return nil
		})
		if err != nil {
			return err
		}

		if first {
			t.Header = cells
			first = false
			return nil
		}
		if isBlank(cells) {
			return nil
		}

		record := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if h == "" {
				continue
			}
			if i < len(cells) {
				record[h] = cells[i]
			} else {
				record[h] = ""
			}
		}
		t.Rows = append(t.Rows, record)
		return nil
	})
	if err != nil {
		return Table{}, fmt.Errorf("读取工作表 %s 失败: %w", s.Name, err)
	}
	return t, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
