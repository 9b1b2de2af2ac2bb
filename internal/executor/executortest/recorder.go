// Package executortest 提供记录调用并按规则返回结果的执行器，供测试使用
package executortest

import (
	"context"
	"strings"
	"sync"

	"lxcdriver/internal/executor"
)

// Response 预设的执行结果
type Response struct {
	Stdout string
	Err    error
}

// Recorder 记录所有命令并按前缀匹配返回预设结果
type Recorder struct {
	mu        sync.Mutex
	Commands  []executor.Command
	responses map[string][]Response
	// Hook 在返回结果前调用，可用于模拟副作用
	Hook func(cmd executor.Command)
}

// NewRecorder 创建记录执行器
func NewRecorder() *Recorder {
	return &Recorder{responses: make(map[string][]Response)}
}

// On 为以 prefix 开头的命令（名称与参数以空格连接）追加一个结果，按顺序消费，最后一个结果会被重复使用
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = append(r.responses[prefix], resp)
	return r
}

// Execute 实现 executor.Executor
func (r *Recorder) Execute(_ context.Context, cmd executor.Command) (*executor.Result, error) {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	line := strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")

	var resp Response
	best := ""
	found := false
	for prefix, queue := range r.responses {
		if strings.HasPrefix(line, prefix) && len(queue) > 0 && (!found || len(prefix) > len(best)) {
			best, found = prefix, true
		}
	}
	if found {
		queue := r.responses[best]
		resp = queue[0]
		if len(queue) > 1 {
			r.responses[best] = queue[1:]
		}
	}
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	if resp.Err != nil {
		return &executor.Result{Stdout: resp.Stdout, ExitCode: 1}, resp.Err
	}
	return &executor.Result{Stdout: resp.Stdout}, nil
}

// Lines 返回已执行命令的文本形式
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(r.Commands))
	for _, cmd := range r.Commands {
		lines = append(lines, strings.Join(append([]string{cmd.Name}, cmd.Args...), " "))
	}
	return lines
}

// Count 返回以 prefix 开头的命令数量
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
