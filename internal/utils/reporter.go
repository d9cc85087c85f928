package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
// 报告写入 {outputDir}/reports/
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ReportsDir 报告目录
func (r *Reporter) ReportsDir() string {
	return filepath.Join(r.outputDir, "reports")
}

// GenerateCrawlReport 生成站点爬取报告
// 文件名: crawl_report_{site}_{时间}.json
func (r *Reporter) GenerateCrawlReport(
	result *models.CrawlResult,
	mode models.CrawlMode,
	outputFiles []string,
	config models.CrawlConfig,
) (string, error) {
	report := models.CrawlReport{
		TaskID:      result.RunID,
		Site:        result.Site,
		Mode:        mode,
		StartTime:   result.StartTime,
		EndTime:     result.EndTime,
		Duration:    result.Stats.Duration,
		Stats:       result.Stats,
		Failed:      result.Failed,
		OutputDir:   r.outputDir,
		OutputFiles: outputFiles,
		Config:      config,
	}
	if report.Failed == nil {
		report.Failed = []models.FailedItem{}
	}

	name := fmt.Sprintf("crawl_report_%s_%s.json", result.Site, result.StartTime.Format("20060102_150405"))
	path, err := r.saveJSONReport(name, report)
	if err != nil {
		return "", err
	}

	Infof("✅ 爬取报告已生成: %s", path)
	return path, nil
}

// GenerateDownloadReport 生成附件下载报告
func (r *Reporter) GenerateDownloadReport(report *models.DownloadReport) (string, error) {
	if report.Files == nil {
		report.Files = []models.FileInfo{}
	}
	if report.Failed == nil {
		report.Failed = []models.FailedItem{}
	}

	name := fmt.Sprintf("download_report_%s.json", report.StartTime.Format("20060102_150405"))
	path, err := r.saveJSONReport(name, report)
	if err != nil {
		return "", err
	}

	Infof("✅ 下载报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(filename string, data interface{}) (string, error) {
	dir := r.ReportsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
