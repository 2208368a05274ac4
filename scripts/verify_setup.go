package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  DeepStack 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器, 动态模式需要Chromium/Chrome
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
		if v := getCommandOutput(path, "--version"); v != "" {
			fmt.Printf("   版本: %s\n", strings.TrimSpace(v))
		}
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium - 首次动态分析时rod会自动下载")
		fmt.Println("   也可以使用 -m static 在无浏览器环境下运行")
	}

	// 检查内置签名表
	if catalog, err := signatures.Default(); err != nil {
		fmt.Printf("❌ 内置签名表无法加载: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 内置签名表: %d个工具\n", catalog.Len())
	}

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/deepstack",
		"internal/api",
		"internal/core",
		"internal/evidence",
		"internal/harvest",
		"internal/matcher",
		"internal/models",
		"internal/signatures",
		"internal/utils",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o deepstack ./cmd/deepstack' 构建项目")
		fmt.Println("  2. 运行 './deepstack --validate-config' 检查配置")
		fmt.Println("  3. 运行 './deepstack -u https://example.com' 开始分析")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}

// getCommandOutput 获取命令输出
func getCommandOutput(name string, args ...string) string {
	cmd := exec.Command(name, args...)
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(output)
}
