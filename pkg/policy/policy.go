// Package policy 根据识别出的文字决定下一步动作
package policy

import "strings"

// Decision 决策结果
type Decision int

const (
	// Wait 什么也不做，等下一轮
	Wait Decision = iota
	// Act 点击目标位置
	Act
	// Halt 任务完成，停止循环
	Halt
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "WAIT"
	case Act:
		return "ACT"
	case Halt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// 默认标记文字
const (
	DefaultHaltMarker = "进行中"
	DefaultActMarker  = "自动"
)

// Policy 标记文字匹配规则，空标记永不匹配
type Policy struct {
	HaltMarker string
	ActMarker  string
}

// Default 默认规则
func Default() Policy {
	return Policy{HaltMarker: DefaultHaltMarker, ActMarker: DefaultActMarker}
}

// New 创建规则，标记为空时对应的决策永远不会产生
func New(haltMarker, actMarker string) Policy {
	return Policy{HaltMarker: haltMarker, ActMarker: actMarker}
}

// Decide 先检查停止标记，再检查点击标记
func (p Policy) Decide(text string) Decision {
	if p.HaltMarker != "" && strings.Contains(text, p.HaltMarker) {
		return Halt
	}
	if p.ActMarker != "" && strings.Contains(text, p.ActMarker) {
		return Act
	}
	return Wait
}
