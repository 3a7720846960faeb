// Package wizard 实现新用户引导流程的纯状态机：
// 经验水平 → 创建方式 → 导入来源。状态只通过 Next/Back 推进，
// 不依赖任何渲染框架，便于前后端共用同一套流转规则。
package wizard

import (
	"errors"
	"fmt"
)

// Step 标识引导流程当前所处的环节。
type Step int

const (
	// StepLevel 选择职业经验水平。
	StepLevel Step = iota
	// StepMethod 选择作品集创建方式（手动 / 导入）。
	StepMethod
	// StepImport 选择导入来源，仅在创建方式为导入时出现。
	StepImport
	// StepDone 流程结束，可进入编辑器。
	StepDone
)

// String 返回环节的稳定名称，用于日志与接口序列化。
func (s Step) String() string {
	switch s {
	case StepLevel:
		return "level"
	case StepMethod:
		return "method"
	case StepImport:
		return "import"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Method 表示作品集的创建方式。
type Method string

const (
	// MethodManual 从空白开始手动填写。
	MethodManual Method = "manual"
	// MethodImport 从已有简历文件导入。
	MethodImport Method = "import"
)

// Level 表示用户自报的经验水平。
type Level string

const (
	LevelStudent     Level = "student"
	LevelJunior      Level = "junior"
	LevelExperienced Level = "experienced"
)

// ErrSelectionMissing 表示当前环节还没有做出选择，无法前进。
var ErrSelectionMissing = errors.New("wizard: current step has no selection")

// State 是引导流程的完整状态。零值不可用，请从 Start 开始。
type State struct {
	Step   Step
	Level  Level
	Method Method
	Source string
}

// Start 返回流程的初始状态。
func Start() State {
	return State{Step: StepLevel}
}

// SelectLevel 记录经验水平选择，不改变所处环节。
func (s State) SelectLevel(level Level) State {
	s.Level = level
	return s
}

// SelectMethod 记录创建方式选择，不改变所处环节。
// 改选为手动时清空之前挑好的导入来源。
func (s State) SelectMethod(method Method) State {
	s.Method = method
	if method == MethodManual {
		s.Source = ""
	}
	return s
}

// SelectSource 记录导入来源选择，不改变所处环节。
func (s State) SelectSource(source string) State {
	s.Source = source
	return s
}

// Next 在当前环节的选择完备时前进一步。
// 创建方式为手动时跳过导入环节，直接结束。
func (s State) Next() (State, error) {
	switch s.Step {
	case StepLevel:
		if s.Level == "" {
			return s, ErrSelectionMissing
		}
		s.Step = StepMethod
		return s, nil
	case StepMethod:
		switch s.Method {
		case MethodManual:
			s.Step = StepDone
			return s, nil
		case MethodImport:
			s.Step = StepImport
			return s, nil
		default:
			return s, ErrSelectionMissing
		}
	case StepImport:
		if s.Source == "" {
			return s, ErrSelectionMissing
		}
		s.Step = StepDone
		return s, nil
	case StepDone:
		return s, nil
	default:
		return s, fmt.Errorf("wizard: unknown step %v", s.Step)
	}
}

// Back 回退一步，保留已经做出的选择。
// 从结束态回退时按手动 / 导入分别落回创建方式或导入来源环节。
func (s State) Back() State {
	switch s.Step {
	case StepMethod:
		s.Step = StepLevel
	case StepImport:
		s.Step = StepMethod
	case StepDone:
		if s.Method == MethodImport {
			s.Step = StepImport
		} else {
			s.Step = StepMethod
		}
	}
	return s
}
