package lxc

import (
	"fmt"
	"strings"
)

// MountEntryKey 绑定挂载的配置键
const MountEntryKey = "mount.entry"

// Customization 启动时注入的配置项
type Customization struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BindMount 构造 host 到 guest 的绑定挂载配置项
func BindMount(hostPath, guestPath string) Customization {
	return Customization{
		Key:   MountEntryKey,
		Value: fmt.Sprintf("%s %s none bind 0 0", hostPath, guestPath),
	}
}

// Flag 返回 lxc-start -s 的参数值
func (c Customization) Flag() string {
	key := c.Key
	if !strings.HasPrefix(key, "lxc.") {
		key = "lxc." + key
	}
	return key + "=" + c.Value
}

// Customizations 有序的配置项集合
type Customizations []Customization

// Add 追加配置项
func (c *Customizations) Add(items ...Customization) {
	*c = append(*c, items...)
}

// Merge 返回 c 与 other 依次拼接后的新集合，不修改任何一方
func (c Customizations) Merge(other Customizations) Customizations {
	merged := make(Customizations, 0, len(c)+len(other))
	merged = append(merged, c...)
	return append(merged, other...)
}

// Len 配置项数量
func (c Customizations) Len() int {
	return len(c)
}
