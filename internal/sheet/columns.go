package sheet

// 工作表名称
const (
	SheetPolicies        = "政策列表"
	SheetContents        = "政策正文"
	SheetAttachments     = "政策附件"
	SheetInterpretations = "政策解读"
	SheetBasicInfo       = "基本信息"

	SheetContentSegments  = "政策正文_分段"
	SheetAttachmentsSplit = "政策附件_拆解"
)

// 列名
const (
	ColCategory    = "政策分类"
	ColTitle       = "政策标题"
	ColDocNumber   = "文号"
	ColPublishDate = "发布日期"
	ColURL         = "政策链接"

	ColPage                = "页码"
	ColPublisher           = "发布单位"
	ColValidity            = "有效性"
	ColHasInterpretation   = "是否有解读"
	ColInterpretationCount = "解读数量"

	ColContent = "正文内容"

	ColAttachmentType  = "附件类型"
	ColFileType        = "文件类型"
	ColAttachmentNames = "附件名称"
	ColAttachmentLinks = "附件链接"
	ColAttachmentSeq   = "附件序号"

	ColPolicyDate          = "政策日期"
	ColInterpretationTitle = "解读标题"
	ColInterpretationURL   = "解读链接"

	ColSegmentSeq     = "段落序号"
	ColSegmentContent = "段落内容"
	ColCharCount      = "字符数"

	ColInfoKey   = "字段"
	ColInfoValue = "内容"
)

// PolicyColumns 各工作表开头共用的政策标识列
func PolicyColumns() []string {
	return []string{ColCategory, ColTitle, ColDocNumber, ColPublishDate, ColURL}
}

// WithPolicyColumns 政策标识列后接其他列
func WithPolicyColumns(extra ...string) []string {
	return append(PolicyColumns(), extra...)
}
