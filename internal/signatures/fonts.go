package signatures

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default_font_services.yaml
var defaultFontServicesYAML []byte

// FontKind 字体服务的附加提取方式
type FontKind string

const (
	FontKindService  FontKind = ""         // 只记录服务名
	FontKindFamilies FontKind = "families" // 从family参数提取字体名
	FontKindFiles    FontKind = "files"    // 记录字体文件地址
)

// FontService 一个字体服务的签名
type FontService struct {
	Name  string
	Kind  FontKind
	Rules []Rule
}

// Match 请求URL是否命中该服务
func (s FontService) Match(u string) bool {
	for _, r := range s.Rules {
		if _, ok := r.Find(u); ok {
			return true
		}
	}
	return false
}

// FontTable 不可变字体服务表, 保持文件中的顺序
type FontTable struct {
	services []FontService
}

type fontServiceSpec struct {
	Name     string   `yaml:"name"`
	Kind     FontKind `yaml:"kind"`
	Patterns []string `yaml:"patterns"`
}

// DefaultFontServices 加载内置字体服务表
func DefaultFontServices() (*FontTable, error) {
	return ParseFontServices(defaultFontServicesYAML)
}

// LoadFontServices 从YAML文件加载字体服务表,path为空时使用内置表
func LoadFontServices(path string) (*FontTable, error) {
	if path == "" {
		return DefaultFontServices()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体服务文件失败: %w", err)
	}
	t, err := ParseFontServices(data)
	if err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	return t, nil
}

// ParseFontServices 解析YAML字体服务表
// 格式: [{name, kind, patterns}]
func ParseFontServices(data []byte) (*FontTable, error) {
	var specs []fontServiceSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("解析字体服务表失败: %w", err)
	}

	t := &FontTable{}
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("第%d个字体服务缺少name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("字体服务重复: %s", name)
		}
		seen[name] = true

		switch spec.Kind {
		case FontKindService, FontKindFamilies, FontKindFiles:
		default:
			return nil, fmt.Errorf("字体服务 %s 的kind无效: %q", name, spec.Kind)
		}

		svc := FontService{Name: name, Kind: spec.Kind}
		for _, pat := range spec.Patterns {
			if pat = strings.TrimSpace(pat); pat == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				return nil, fmt.Errorf("字体服务 %s 规则 %q 编译失败: %w", name, pat, err)
			}
			svc.Rules = append(svc.Rules, Rule{Pattern: pat, re: re})
		}
		if len(svc.Rules) == 0 {
			return nil, fmt.Errorf("字体服务 %s 没有任何匹配规则", name)
		}
		t.services = append(t.services, svc)
	}
	return t, nil
}

// Services 返回全部字体服务
func (t *FontTable) Services() []FontService {
	out := make([]FontService, len(t.services))
	copy(out, t.services)
	return out
}

// Len 字体服务数量
func (t *FontTable) Len() int {
	return len(t.services)
}
