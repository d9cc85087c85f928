package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// SiteRunner 爬取单个站点, 由 *Runner 实现
type SiteRunner interface {
	Run(ctx context.Context, site models.Site, opts RunOptions) (*RunOutput, error)
}

// BatchCrawler 批量爬取器, 按顺序爬取多个站点
type BatchCrawler struct {
	runner        SiteRunner
	batchDelay    time.Duration
	continueOnErr bool
}

// BatchResult 单个站点的结果
type BatchResult struct {
	Site        models.Site
	TaskID      string
	Success     bool
	Error       error
	Stats       models.CrawlStats
	Files       []string
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	Task          *models.BatchCrawlTask
	SuccessCount  int
	FailCount     int
	TotalPolicies int
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchCrawler 创建批量爬取器
func NewBatchCrawler(runner SiteRunner, batchDelay time.Duration, continueOnErr bool) *BatchCrawler {
	return &BatchCrawler{
		runner:        runner,
		batchDelay:    batchDelay,
		continueOnErr: continueOnErr,
	}
}

// CrawlBatch 依次爬取站点
// continueOnErr为false时第一个失败的站点中止批量任务并返回其错误
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, sites []models.Site, config models.CrawlConfig) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量爬取: %d 个站点", len(sites))

	task := models.NewBatchCrawlTask(sites, config)
	task.BatchDelay = int(bc.batchDelay / time.Second)
	task.ContinueOnError = bc.continueOnErr
	now := time.Now()
	task.StartedAt = &now
	task.Status = models.TaskStatusRunning

	summary := &BatchSummary{
		Task:    task,
		Results: make([]BatchResult, 0, len(sites)),
	}
	startTime := time.Now()

	var firstErr error
	for i, site := range sites {
		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(sites), site.DisplayName())

		result := bc.crawlSite(ctx, site)
		summary.Results = append(summary.Results, result)
		if result.TaskID != "" {
			task.SubTasks = append(task.SubTasks, result.TaskID)
		}

		if result.Success {
			summary.SuccessCount++
			summary.TotalPolicies += result.Stats.Policies
		} else {
			summary.FailCount++
			utils.Errorf("❌ 爬取失败: %v", result.Error)
			if firstErr == nil {
				firstErr = fmt.Errorf("站点 %s: %w", site, result.Error)
			}

			if ctx.Err() != nil {
				break
			}
			if !bc.continueOnErr {
				utils.Warn("批量爬取中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(sites)-1 && bc.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后爬取下一个站点...", bc.batchDelay.Seconds())
			select {
			case <-ctx.Done():
			case <-time.After(bc.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()

	done := time.Now()
	task.CompletedAt = &done
	task.SuccessfulSites = summary.SuccessCount
	task.FailedSites = summary.FailCount
	task.TotalPolicies = summary.TotalPolicies
	task.Status = models.TaskStatusCompleted
	if summary.FailCount > 0 && summary.SuccessCount == 0 {
		task.Status = models.TaskStatusFailed
	}

	bc.printSummary(summary)

	if firstErr != nil && (!bc.continueOnErr || ctx.Err() != nil) {
		return summary, firstErr
	}
	return summary, nil
}

// crawlSite 爬取单个站点
func (bc *BatchCrawler) crawlSite(ctx context.Context, site models.Site) BatchResult {
	result := BatchResult{
		Site:        site,
		ProcessedAt: time.Now(),
	}
	startTime := time.Now()

	out, err := bc.runner.Run(ctx, site, RunOptions{})
	if out != nil {
		result.Files = out.Files
		if out.Result != nil {
			result.Stats = out.Result.Stats
		}
		if out.Task != nil {
			result.TaskID = out.Task.ID
		}
	}
	result.Duration = time.Since(startTime).Seconds()
	if err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	return result
}

// printSummary 打印批量爬取摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量爬取摘要")
	utils.Info("==================================================")
	utils.Infof("站点数: %d", summary.Task.TotalSites)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 政策总数: %d", summary.TotalPolicies)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的站点:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.Site, result.Error)
			}
		}
	}
}
