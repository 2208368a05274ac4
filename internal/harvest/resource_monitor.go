package harvest

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceConfig 资源预检阈值
type ResourceConfig struct {
	MinFreeMemoryMB  int     // 可用内存下限(MB)
	CPULoadThreshold float64 // CPU负载阈值(%), >=100 视为禁用
}

// ResourceStatus 一次采样结果
type ResourceStatus struct {
	TotalMemoryMB     uint64
	AvailableMemoryMB uint64
	CPUPercent        float64
	Warnings          []string
}

// OK 没有触发任何阈值
func (s ResourceStatus) OK() bool {
	return len(s.Warnings) == 0
}

// ResourceMonitor 动态模式批处理前的资源预检
// 只有一个浏览器,资源不足时仅告警,批处理继续
type ResourceMonitor struct {
	cfg ResourceConfig

	virtualMemory func() (*mem.VirtualMemoryStat, error)
	cpuPercent    func(interval time.Duration, percpu bool) ([]float64, error)
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(cfg ResourceConfig) *ResourceMonitor {
	return &ResourceMonitor{
		cfg:           cfg,
		virtualMemory: mem.VirtualMemory,
		cpuPercent:    cpu.Percent,
	}
}

// Sample 采样内存和CPU
func (rm *ResourceMonitor) Sample() (ResourceStatus, error) {
	var st ResourceStatus

	vm, err := rm.virtualMemory()
	if err != nil {
		return st, fmt.Errorf("获取系统内存失败: %w", err)
	}
	st.TotalMemoryMB = vm.Total / (1024 * 1024)
	st.AvailableMemoryMB = vm.Available / (1024 * 1024)

	// 100毫秒采样,避免阻塞过久
	percentages, err := rm.cpuPercent(100*time.Millisecond, false)
	if err != nil {
		return st, fmt.Errorf("获取CPU使用率失败: %w", err)
	}
	if len(percentages) > 0 {
		st.CPUPercent = percentages[0]
	}

	if rm.cfg.MinFreeMemoryMB > 0 && st.AvailableMemoryMB < uint64(rm.cfg.MinFreeMemoryMB) {
		st.Warnings = append(st.Warnings,
			fmt.Sprintf("可用内存不足(当前%dMB, 下限%dMB)", st.AvailableMemoryMB, rm.cfg.MinFreeMemoryMB))
	}
	if rm.cfg.CPULoadThreshold > 0 && rm.cfg.CPULoadThreshold < 100 && st.CPUPercent > rm.cfg.CPULoadThreshold {
		st.Warnings = append(st.Warnings,
			fmt.Sprintf("CPU负载过高(当前%.1f%%, 阈值%.0f%%)", st.CPUPercent, rm.cfg.CPULoadThreshold))
	}
	return st, nil
}

// Check 采样并记录日志,从不阻止批处理
func (rm *ResourceMonitor) Check() ResourceStatus {
	st, err := rm.Sample()
	if err != nil {
		utils.Warnf("资源预检跳过: %v", err)
		return st
	}
	utils.Debugf("系统资源: 内存 %d/%d MB 可用, CPU %.1f%%", st.AvailableMemoryMB, st.TotalMemoryMB, st.CPUPercent)
	for _, w := range st.Warnings {
		utils.Warnf("%s, 浏览器渲染可能变慢", w)
	}
	return st
}
