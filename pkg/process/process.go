// Package process 进程信息
package process

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo 进程信息
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Usage 进程资源占用
type Usage struct {
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

// Self 当前进程
type Self struct {
	proc *process.Process
}

// NewSelf 获取当前进程句柄
func NewSelf() (*Self, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("获取当前进程失败: %w", err)
	}
	return &Self{proc: proc}, nil
}

// Usage 读取内存和 CPU 占用，CPU 为距离上次调用的平均值
func (s *Self) Usage() (Usage, error) {
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("读取内存占用失败: %w", err)
	}
	cpu, err := s.proc.Percent(0)
	if err != nil {
		return Usage{}, fmt.Errorf("读取 CPU 占用失败: %w", err)
	}
	threads, _ := s.proc.NumThreads()
	return Usage{
		RSSBytes:   mem.RSS,
		CPUPercent: math.Round(cpu*100) / 100,
		Threads:    threads,
	}, nil
}

// FindProcess 按名称查找进程 (不区分大小写，支持部分匹配)
func FindProcess(name string) ([]ProcessInfo, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	name = strings.ToLower(name)
	var matches []ProcessInfo

	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}

		procName, err := proc.Name()
		if err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(procName), name) {
			exe, _ := proc.Exe()
			matches = append(matches, ProcessInfo{
				PID:  int(pid),
				Name: procName,
				Path: exe,
			})
		}
	}

	return matches, nil
}

// IsRunning 是否有名称包含 name 的进程
func IsRunning(name string) bool {
	matches, err := FindProcess(name)
	return err == nil && len(matches) > 0
}
