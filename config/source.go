// Package config 提供多数据源配置加载：
// 文件与环境变量按优先级合并，统一经 viper 解析到各模块的 Config 结构。
package config

// Source 配置数据源接口
type Source interface {
	// Name 数据源名称（用于日志与错误信息）
	Name() string

	// Priority 优先级，数值越大覆盖越强。约定：
	//   - 基础配置文件（config.yaml）：10
	//   - 环境配置文件（dev.yaml / prod.yaml）：20
	//   - 环境变量：50
	Priority() int

	// Load 加载配置数据，key 为点号分隔，如 "registry.backend"
	Load() (map[string]interface{}, error)
}
