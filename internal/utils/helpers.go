package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

// ReadURLsFromFile 从文件中读取URL列表
// 忽略空行和#注释行, 缺少协议的URL补全https://
// 无效URL原样保留, 由分析流水线记为失败, 保证每行输入对应一条记录
func ReadURLsFromFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}

	urls := models.ParseURLList(string(content))
	for i, u := range urls {
		if err := models.ValidateURL(u); err != nil {
			Warnf("第%d个URL无效,将记为失败: %s (%v)", i+1, u, err)
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("文件中没有有效的URL")
	}
	return urls, nil
}

// OutputFilename 输出文件路径
// 单个URL: deepstack-<域名>.json, 批量: deepstack.json
func OutputFilename(dir string, urls []string) string {
	name := "deepstack.json"
	if len(urls) == 1 {
		if host := models.HostOf(urls[0]); host != "" {
			host = strings.TrimPrefix(host, "www.")
			name = "deepstack-" + strings.ReplaceAll(host, ":", "_") + ".json"
		}
	}
	return filepath.Join(dir, name)
}

// FileExists 判断普通文件是否存在
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
