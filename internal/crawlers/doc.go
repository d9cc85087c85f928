// Package crawlers 提供政策网站的列表页与详情页爬取
//
// # 概述
//
// 每个站点实现 Crawler 接口, 返回 models.CrawlResult (政策列表、正文、附件、解读)。
// 所有请求经由 PageCollector (Colly), 底层使用调用方传入的 http.Client,
// 重试、请求头注入、解压由 core 包的传输层负责。
//
// # 站点
//
// ## NDRCCrawler (国家发展改革委)
//
// 按栏目顺序抓取 index.html / index_{n}.html 列表页, 列表项为带日期<span>的<li>。
// 第1页之后, 页面无政策或无翻页元素时结束该栏目。
//
//	c, err := crawlers.New(models.SiteNDRC, crawlers.Options{Client: fetcher.Client(), Config: cfg})
//	result, err := c.Crawl(ctx)
//
// ## MOHRSSCrawler (人力资源和社会保障部)
//
// 抓取站内检索结果表格, 详情页补全基本信息与有效性。
// dynamic 模式下页面由 Renderer 渲染; 设置 Options.DetailURLs 时跳过检索页。
//
// ## GZRSJCrawler (广州市人社局)
//
// 依次请求信息公开目录接口的三个文件类型, articles 为空或返回404时切换类型。
//
// # 支撑组件
//
// ## URLQueue
//
// 详情页队列, 入队时按规范化URL去重 (忽略片段与 keywords 参数)。
//
//	q := NewURLQueue(1000, "www.ndrc.gov.cn")
//	if err := q.Push(item); errors.Is(err, ErrDuplicateURL) { ... }
//
// ## Renderer
//
// go-rod 无头浏览器, 首次渲染时启动, 崩溃后自动重启, Close 可重复调用。
//
// ## ResourceMonitor
//
// 通过 gopsutil 采样可用内存与CPU负载, 计算下载等并发任务的 worker 上限:
//
//	min((可用内存 - 安全保留) / 单worker内存, CPU核数*2, MaxWorkersLimit)
//
// CPU负载超过阈值时结果减半, 最小为1。
package crawlers
