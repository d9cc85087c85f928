package segmenter

import "strings"

var lineBreakReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Clean 规范化正文空白
//   - \r\n 与 \r 统一为 \n
//   - 行内连续空白(含全角空格)压缩为单个空格,行首尾空白去除
//   - 连续空行压缩为一个空行
//
// Clean 是幂等的
func Clean(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(lineBreakReplacer.Replace(text), "\n")

	var b strings.Builder
	b.Grow(len(text))
	wrote, blank := false, false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = wrote
			continue
		}
		if wrote {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		wrote, blank = true, false
	}

	return b.String()
}
