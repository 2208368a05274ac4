package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/DeepStack/internal/core"
)

// ValidateFlags 验证合并命令行参数后的配置
func ValidateFlags(cfg *core.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("参数验证失败: %w", err)
	}

	// 输出目录可以不存在, 但不能是普通文件
	if info, err := os.Stat(cfg.Output.Dir); err == nil && !info.IsDir() {
		return fmt.Errorf("输出路径不是目录: %s", cfg.Output.Dir)
	}

	if cfg.Batch.PacingMax > 0 && cfg.Batch.PacingMax == cfg.Batch.PacingMin {
		// 固定间隔更容易被识别为自动化访问
		fmt.Fprintf(os.Stderr, "提示: pacing_min 与 pacing_max 相同 (%s), 请求间隔不会随机化\n", cfg.Batch.PacingMin)
	}
	return nil
}
