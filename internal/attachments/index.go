package attachments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// WriteIndex 在下载目录生成附件索引, 按分类目录列出文件与大小
func WriteIndex(outputDir, title string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("读取下载目录失败: %w", err)
	}
	if title == "" {
		title = "政策附件索引"
	}

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	files := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		category := e.Name()
		children, err := os.ReadDir(filepath.Join(outputDir, category))
		if err != nil {
			return "", fmt.Errorf("读取分类目录失败: %w", err)
		}

		fmt.Fprintf(&b, "\n【%s】\n", category)
		b.WriteString(strings.Repeat("-", 30) + "\n")
		for _, c := range children {
			if c.IsDir() || strings.HasSuffix(c.Name(), ".part") {
				continue
			}
			info, err := c.Info()
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "%s (%d bytes)\n", c.Name(), info.Size())
			files++
		}
	}

	path := filepath.Join(outputDir, IndexFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("写入索引文件失败: %w", err)
	}
	utils.Infof("索引文件已创建: %s (%d 个文件)", path, files)
	return path, nil
}
