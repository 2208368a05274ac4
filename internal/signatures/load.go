package signatures

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default_signatures.yaml
var defaultSignaturesYAML []byte

// Default 加载内置签名表
func Default() (*Catalog, error) {
	return Parse(defaultSignaturesYAML)
}

// Load 从YAML文件加载签名表,path为空时使用内置签名表
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取签名文件失败: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	return c, nil
}

// Parse 解析YAML签名表
// 格式: 类别名 -> [{tool_name, tag_manager, patterns}]
func Parse(data []byte) (*Catalog, error) {
	var tables map[string][]models.Signature
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("解析签名表失败: %w", err)
	}

	var sigs []models.Signature
	for name, list := range tables {
		cat, err := models.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		for _, sig := range list {
			sig.Category = cat
			sigs = append(sigs, sig)
		}
	}
	return New(sigs)
}
