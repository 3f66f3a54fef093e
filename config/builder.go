package config

import (
	"os"
	"path/filepath"
)

// EnvPrefixDefault 环境变量前缀默认值
const EnvPrefixDefault = "FABRIC"

// LoaderBuilder 配置加载器构建器
type LoaderBuilder struct {
	configPath string
	envPrefix  string
}

// NewLoaderBuilder 创建构建器
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{
		envPrefix: EnvPrefixDefault,
	}
}

// WithConfigPath 设置配置目录或配置文件路径
func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

// WithEnvPrefix 设置环境变量前缀
func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// Build 构建并加载配置
//
// 数据源与优先级：
//   - config.yaml（基础配置）：10
//   - {FABRIC_ENV}.yaml（环境配置，如 dev.yaml）：20
//   - FABRIC_* 环境变量：50
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.configPath != "" {
		if info, err := os.Stat(b.configPath); err == nil && !info.IsDir() {
			// 直接指向单个配置文件
			loader.AddSource(NewFileSource(b.configPath, 10))
		} else {
			loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), 10))
			loader.AddSource(NewFileSource(filepath.Join(b.configPath, GetEnv()+".yaml"), 20))
		}
	}

	loader.AddSource(NewEnvSource(b.envPrefix, 50))

	if err := loader.Load(); err != nil {
		return nil, err
	}

	return loader, nil
}

// GetEnv 获取运行环境（FABRIC_ENV，默认 dev）
func GetEnv() string {
	if env := os.Getenv("FABRIC_ENV"); env != "" {
		return env
	}
	return "dev"
}
