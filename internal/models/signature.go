package models

import "fmt"

// Category 检测类别
type Category string

const (
	CategoryMarketingTechnology Category = "marketing_technology" // 营销/分析技术
	CategoryCookieConsent       Category = "cookie_consent"       // Cookie同意管理平台
	CategoryCompetitivePosture  Category = "competitive_posture"  // 功能开关/A-B测试
	CategoryConversionEvents    Category = "conversion_events"    // 转化事件名称
	CategoryCDNDomains          Category = "cdn_domains"          // CDN域名
)

// AllCategories 按固定顺序返回全部五个类别
// 匹配扫描顺序和输出顺序都以此为准
func AllCategories() []Category {
	return []Category{
		CategoryMarketingTechnology,
		CategoryCookieConsent,
		CategoryCompetitivePosture,
		CategoryConversionEvents,
		CategoryCDNDomains,
	}
}

// ParseCategory 将字符串解析为类别
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("未知的类别: %q", s)
	}
	return c, nil
}

// Valid 是否为五个固定类别之一
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Rank 类别在固定顺序中的位置,未知类别返回-1
func (c Category) Rank() int {
	for i, known := range AllCategories() {
		if c == known {
			return i
		}
	}
	return -1
}

// Signature 一个技术的签名定义
// 同一技术可以出现在多个类别中,不做跨类别去重
type Signature struct {
	Category   Category `json:"category" yaml:"-"`
	ToolName   string   `json:"tool_name" yaml:"tool_name"`
	TagManager bool     `json:"tag_manager,omitempty" yaml:"tag_manager"` // 标签管理工具,用于数据层降级判断
	Patterns   []string `json:"patterns" yaml:"patterns"`
}
