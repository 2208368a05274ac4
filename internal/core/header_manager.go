package core

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"golang.org/x/net/http/httpguts"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/131.0.0.0 Safari/537.36"

	// maxHeaderValueLength 头部值最大长度 (8KB)
	maxHeaderValueLength = 8192
)

// 由浏览器或HTTP客户端管理的头部,不允许自定义
var forbiddenHeaders = map[string]bool{
	"Host":              true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// 名称包含这些关键字的头部在日志中脱敏
var sensitiveKeywords = []string{
	"authorization",
	"cookie",
	"token",
	"key",
	"secret",
	"password",
	"credential",
}

var _ models.HeaderProvider = (*HeaderManager)(nil)

// HeaderManager 管理页面请求头部
// 合并优先级: 默认 < 配置文件 < 命令行
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header
}

// NewHeaderManager 创建头部管理器
//   - userAgent: 配置中的User-Agent, 为空时使用DefaultUserAgent
//   - configHeaders: 配置文件 headers 段
//   - cliHeaders: 命令行 -H 传入的 "Name: Value" 列表
func NewHeaderManager(userAgent string, configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	hm := &HeaderManager{
		defaults: http.Header{
			"User-Agent":      []string{userAgent},
			"Accept-Language": []string{"en-US,en;q=0.9"},
		},
		config: make(http.Header),
		cli:    make(http.Header),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

// Validate 验证所有头部的合法性
// 验证顺序: 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		source  string
		headers http.Header
	}{
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := validateHeaders(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.source, err)
			return err
		}
	}
	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// Merged 按优先级合并头部
func (hm *HeaderManager) Merged() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// UserAgent 合并后的User-Agent
func (hm *HeaderManager) UserAgent() string {
	return hm.Merged().Get("User-Agent")
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.Merged(), nil
}

// SafeHeaders 返回脱敏后的头部 (用于日志和命令行显示), 按名称排序
func (hm *HeaderManager) SafeHeaders() []string {
	merged := hm.Merged()
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		values := merged[name]
		if len(values) == 0 {
			continue
		}
		out = append(out, name+": "+redactValue(name, values[0]))
	}
	return out
}

func validateHeaders(h http.Header) error {
	for name, values := range h {
		for _, value := range values {
			if err := validateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateHeader 按RFC 7230检查名称和值
func validateHeader(name, value string) error {
	if forbiddenHeaders[http.CanonicalHeaderKey(name)] {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由浏览器自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含非法字符",
			Suggestion: "使用字母、数字和连字符 (如 'X-Custom-Header')",
		}
	}
	if len(value) > maxHeaderValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), maxHeaderValueLength),
		}
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含控制字符",
			Suggestion: "移除换行符等控制字符",
		}
	}
	return nil
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// redactValue Bearer令牌只保留前缀,长密钥保留首尾各4位,短密钥完全隐藏
func redactValue(name, value string) string {
	if !isSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}
