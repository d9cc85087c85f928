package utils

import (
	"strings"

	"golang.org/x/net/html/charset"
)

// DecodeCharset 按Content-Type与<meta>声明将正文转换为UTF-8
// 无法识别或转换失败时原样返回
func DecodeCharset(body []byte, contentType string) []byte {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || enc == nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		Warnf("字符集转换失败 (%s): %v", name, err)
		return body
	}
	return decoded
}

// IsTextContent 判断Content-Type是否为文本 (空值视为文本)
func IsTextContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") || strings.Contains(ct, "xml") || strings.Contains(ct, "json")
}
