package attachments

import (
	"net/url"
	"path"
	"strings"
)

const (
	TypeUnknown = "未知类型"
	TypeNone    = "无附件"
)

// extTypes 扩展名到文件类型
var extTypes = map[string]string{
	".pdf":  "PDF",
	".ofd":  "OFD",
	".doc":  "Word",
	".docx": "Word",
	".xls":  "Excel",
	".xlsx": "Excel",
	".ppt":  "PowerPoint",
	".pptx": "PowerPoint",
	".txt":  "文本文件",
	".zip":  "压缩文件",
	".rar":  "压缩文件",
	".7z":   "压缩文件",
	".jpg":  "图片文件",
	".jpeg": "图片文件",
	".png":  "图片文件",
	".gif":  "图片文件",
	".bmp":  "图片文件",
	".tiff": "图片文件",
	".mp4":  "视频文件",
	".avi":  "视频文件",
	".mov":  "视频文件",
	".wmv":  "视频文件",
	".flv":  "视频文件",
	".mp3":  "音频文件",
	".wav":  "音频文件",
	".html": "网页文件",
	".htm":  "网页文件",
	".xml":  "XML文件",
	".json": "JSON文件",
	".csv":  "CSV文件",
	".rtf":  "RTF文件",
	".odt":  "OpenDocument",
	".ods":  "OpenDocument",
	".odp":  "OpenDocument",
}

// queryExts 在查询参数中查找扩展名的顺序, 长的在前避免 .doc 抢先匹配 .docx
var queryExts = []string{
	".pdf", ".ofd", ".docx", ".doc", ".xlsx", ".xls", ".pptx", ".ppt",
	".txt", ".zip", ".rar", ".7z",
	".jpeg", ".jpg", ".png", ".gif", ".bmp", ".tiff",
	".mp4", ".avi", ".mov", ".wmv", ".flv", ".mp3", ".wav",
	".html", ".htm", ".xml", ".json", ".csv", ".rtf", ".odt", ".ods", ".odp",
}

// DetectFileType 根据URL判断附件类型
//
// 路径有已知扩展名时返回对应类型, 未知扩展名返回 "其他文件(.ext)",
// 路径没有扩展名时在查询参数中查找, 都找不到返回 "未知类型"。
func DetectFileType(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return TypeUnknown
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return TypeUnknown
	}

	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		if t, ok := extTypes[ext]; ok {
			return t
		}
		return "其他文件(" + ext + ")"
	}

	if q := strings.ToLower(u.RawQuery); q != "" {
		for _, ext := range queryExts {
			if strings.Contains(q, ext) {
				return extTypes[ext]
			}
		}
	}
	return TypeUnknown
}

// Extension URL路径中的扩展名 (小写, 含点), 没有时返回空
func Extension(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
