package matcher

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	wappalyzer "github.com/projectdiscovery/wappalyzergo"
)

// CrossChecker 使用wappalyzer指纹库对页面做独立识别
// 结果仅作参考,不会转换为检测结果
type CrossChecker struct {
	wa *wappalyzer.Wappalyze
}

// NewCrossChecker 加载wappalyzer指纹库
func NewCrossChecker() (*CrossChecker, error) {
	wa, err := wappalyzer.New()
	if err != nil {
		return nil, fmt.Errorf("初始化wappalyzer失败: %w", err)
	}
	return &CrossChecker{wa: wa}, nil
}

// Fingerprint 根据文档响应头和渲染后的HTML识别技术,返回排序后的名称列表
func (c *CrossChecker) Fingerprint(headers http.Header, html string) []string {
	if c == nil || c.wa == nil || html == "" {
		return nil
	}
	if headers == nil {
		headers = http.Header{}
	}
	found := c.wa.Fingerprint(headers, []byte(html))
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check 对证据包执行交叉识别
func (c *CrossChecker) Check(bundle *models.EvidenceBundle) []string {
	if bundle == nil {
		return nil
	}
	return c.Fingerprint(bundle.DocumentHeaders, bundle.RenderedHTML)
}
