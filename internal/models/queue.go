package models

// DetailItem 待抓取的详情页
// 列表页解析出的政策在入队时携带其元数据,详情页解析后回填正文与附件
type DetailItem struct {
	// URL 详情页绝对地址
	URL string

	// Policy 列表页中解析出的政策
	Policy PolicyRef

	// Page 所在列表页页码 (从1开始)
	Page int

	// SourceURL 发现此链接的列表页
	SourceURL string
}
