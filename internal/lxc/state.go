package lxc

import (
	"regexp"
	"strings"
)

// State 容器生命周期状态
type State string

const (
	StateNotFound State = "not-found"
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateAborting State = "aborting"
	StateFreezing State = "freezing"
	StateFrozen   State = "frozen"
	StateThawed   State = "thawed"
	StateUnknown  State = "unknown"
)

var stateLinePattern = regexp.MustCompile(`(?m)^state:[^A-Z]+([A-Z]+)\s*$`)

var knownStates = map[string]State{
	"STOPPED":  StateStopped,
	"STARTING": StateStarting,
	"RUNNING":  StateRunning,
	"STOPPING": StateStopping,
	"ABORTING": StateAborting,
	"FREEZING": StateFreezing,
	"FROZEN":   StateFrozen,
	"THAWED":   StateThawed,
}

// ParseInfoState 从 lxc-info 输出中解析状态，无法识别时返回 StateUnknown
func ParseInfoState(output string) State {
	m := stateLinePattern.FindStringSubmatch(output)
	if m == nil {
		return StateUnknown
	}
	if s, ok := knownStates[m[1]]; ok {
		return s
	}
	return StateUnknown
}

// Upper 返回 lxc-wait 使用的大写状态名
func (s State) Upper() string {
	return strings.ToUpper(string(s))
}

// Transitional 是否为迁移中的状态
func (s State) Transitional() bool {
	switch s {
	case StateStarting, StateStopping, StateAborting, StateFreezing:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}
