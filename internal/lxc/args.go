package lxc

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// createArgs 返回 lxc-create 参数，模板选项按键排序后放在 -- 之后
func createArgs(name, template, configFile string, options map[string]string) []string {
	args := []string{"--template", template, "--name", name}
	if configFile != "" {
		args = append(args, "-f", configFile)
	}
	if len(options) == 0 {
		return args
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args = append(args, "--")
	for _, k := range keys {
		args = append(args, k)
		if v := options[k]; v != "" {
			args = append(args, v)
		}
	}
	return args
}

// startArgs 返回 lxc-start 参数
func startArgs(name string, customizations Customizations, extra []string) []string {
	args := []string{"-d", "--name", name}
	for _, c := range customizations {
		args = append(args, "-s", c.Flag())
	}
	return append(args, extra...)
}

// waitArgs 返回 lxc-wait 参数
func waitArgs(name string, state State, timeout time.Duration) []string {
	args := []string{"--name", name, "--state", state.Upper()}
	if timeout > 0 {
		secs := int((timeout + time.Second - 1) / time.Second)
		args = append(args, "-t", strconv.Itoa(secs))
	}
	return args
}

// attachArgs 返回 lxc-attach 参数
func attachArgs(name string, opts AttachOptions, cmd []string) []string {
	args := []string{"--name", name}
	if len(opts.Namespaces) > 0 {
		ns := make([]string, 0, len(opts.Namespaces))
		for _, n := range opts.Namespaces {
			ns = append(ns, strings.ToUpper(n))
		}
		args = append(args, "--namespaces", strings.Join(ns, "|"))
	}
	args = append(args, "--")
	return append(args, cmd...)
}

// parseList 解析 lxc-ls 输出，去重并保持顺序
func parseList(output string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, field := range strings.Fields(output) {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		names = append(names, field)
	}
	return names
}

// parseVersion 解析 lxc 版本输出，兼容 "lxc version: 0.7.5" 与 "4.0.12" 两种格式
func parseVersion(output string) string {
	out := strings.TrimSpace(output)
	if i := strings.LastIndex(out, ":"); i >= 0 {
		out = strings.TrimSpace(out[i+1:])
	}
	return out
}
