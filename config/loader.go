package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader 配置加载器（多数据源按优先级合并）
type Loader struct {
	sources      []Source
	mergedConfig map[string]interface{}
	v            *viper.Viper
	loadedFiles  []string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		sources:      make([]Source, 0),
		mergedConfig: make(map[string]interface{}),
		v:            viper.New(),
	}
}

// AddSource 添加数据源
func (l *Loader) AddSource(source Source) {
	l.sources = append(l.sources, source)
}

// Load 加载并合并所有数据源，高优先级覆盖低优先级
func (l *Loader) Load() error {
	sort.Slice(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.mergedConfig = make(map[string]interface{})
	l.loadedFiles = nil
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("加载数据源 %s 失败: %w", source.Name(), err)
		}

		if fileSource, ok := source.(*FileSource); ok && len(data) > 0 {
			l.loadedFiles = append(l.loadedFiles, fileSource.path)
		}

		for key, value := range data {
			l.mergedConfig[key] = value
		}
	}

	l.syncToViper()
	return nil
}

// Reload 重新加载配置
func (l *Loader) Reload() error {
	return l.Load()
}

// syncToViper 将合并后的扁平配置同步到 viper
func (l *Loader) syncToViper() {
	l.v = viper.New()
	for key, value := range unflatten(l.mergedConfig) {
		l.v.Set(key, value)
	}
}

// unflatten 将点号分隔的扁平 map 还原为嵌套 map
func unflatten(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range flat {
		keys := strings.Split(key, ".")
		current := result
		for i := 0; i < len(keys)-1; i++ {
			k := keys[i]
			nested, ok := current[k].(map[string]interface{})
			if !ok {
				nested = make(map[string]interface{})
				current[k] = nested
			}
			current = nested
		}
		current[keys[len(keys)-1]] = value
	}

	return result
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(v interface{}) error {
	return l.v.Unmarshal(v)
}

// UnmarshalKey 解析指定配置段到结构体
func (l *Loader) UnmarshalKey(key string, v interface{}) error {
	return l.v.UnmarshalKey(key, v)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString 获取字符串配置
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt 获取整型配置
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool 获取布尔配置
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// IsSet 判断配置项是否存在
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings 获取全部配置
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}

// GetLoadedFiles 获取实际加载到的配置文件列表
func (l *Loader) GetLoadedFiles() []string {
	return l.loadedFiles
}

// GetViper 获取底层 viper 实例
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}
