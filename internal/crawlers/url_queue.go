package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/RecoveryAshes/govpolicy/internal/models"
)

var (
	// ErrDuplicateURL 详情页已入队或已访问
	ErrDuplicateURL = errors.New("URL已访问")
	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("队列已关闭")
	// ErrQueueFull 队列已满
	ErrQueueFull = errors.New("队列已满")
)

// URLQueue 详情页队列
// 职责: 列表页解析出的详情页去重后入队, 支持并发安全的Push/Pop
type URLQueue struct {
	pending chan models.DetailItem

	// 入队即视为已访问, 同一URL在一次爬取中只抓取一次
	visited map[string]bool
	mu      sync.RWMutex

	// 允许的主机名, 为空表示不限制
	allowedHosts map[string]bool

	closed bool
}

// NewURLQueue 创建详情页队列
func NewURLQueue(capacity int, allowedHosts ...string) *URLQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	hosts := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = true
		}
	}
	return &URLQueue{
		pending:      make(chan models.DetailItem, capacity),
		visited:      make(map[string]bool),
		allowedHosts: hosts,
	}
}

// Push 详情页入队
// 校验协议与主机名, 重复URL返回ErrDuplicateURL
func (q *URLQueue) Push(item models.DetailItem) error {
	parsed, err := url.Parse(item.URL)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("不支持的协议: %s", parsed.Scheme)
	}
	if len(q.allowedHosts) > 0 && !q.allowedHosts[strings.ToLower(parsed.Hostname())] {
		return fmt.Errorf("站外链接已过滤: %s", parsed.Host)
	}

	key := normalizeURL(parsed)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.visited[key] {
		return ErrDuplicateURL
	}

	select {
	case q.pending <- item:
		q.visited[key] = true
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop 取出下一个详情页, 队列关闭或ctx取消时返回false
func (q *URLQueue) Pop(ctx context.Context) (models.DetailItem, bool) {
	select {
	case <-ctx.Done():
		return models.DetailItem{}, false
	case item, ok := <-q.pending:
		return item, ok
	}
}

// TryPop 非阻塞取出, 队列为空时返回false
func (q *URLQueue) TryPop() (models.DetailItem, bool) {
	select {
	case item, ok := <-q.pending:
		return item, ok
	default:
		return models.DetailItem{}, false
	}
}

// MarkVisited 标记URL为已访问
func (q *URLQueue) MarkVisited(rawURL string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.visited[normalizeURL(parsed)] = true
}

// IsVisited 检查URL是否已访问
func (q *URLQueue) IsVisited(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.visited[normalizeURL(parsed)]
}

// PendingCount 待处理数量
func (q *URLQueue) PendingCount() int {
	return len(q.pending)
}

// VisitedCount 已访问数量
func (q *URLQueue) VisitedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.visited)
}

// Reset 清空队列与访问记录
func (q *URLQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		<-q.pending
	}
	q.visited = make(map[string]bool)
}

// Close 关闭队列, 之后Push返回ErrQueueClosed
func (q *URLQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.pending)
		q.closed = true
	}
}

// normalizeURL 去重键: 忽略片段与 keywords 等检索参数, 主机名小写
func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	q := c.Query()
	q.Del("keywords")
	c.RawQuery = q.Encode()
	return c.String()
}
