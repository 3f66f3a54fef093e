package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager 日志管理器：按模块缓存 logger，统一编码与输出
type Manager struct {
	config  ManagerConfig
	loggers map[string]*CtxZapLogger
	writers []*lumberjack.Logger
	mu      sync.RWMutex
}

var (
	defaultManager *Manager
	managerOnce    sync.Once
	managerMu      sync.Mutex
)

// NewManager 创建日志管理器
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		config:  cfg,
		loggers: make(map[string]*CtxZapLogger),
	}
}

// InitManager 初始化全局日志管理器（应用启动时调用一次）
func InitManager(cfg ManagerConfig) {
	managerMu.Lock()
	defer managerMu.Unlock()
	defaultManager = NewManager(cfg)
}

// getDefaultManager 获取全局管理器（未初始化时使用默认配置）
func getDefaultManager() *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()
	if defaultManager == nil {
		managerOnce.Do(func() {
			defaultManager = NewManager(DefaultManagerConfig())
		})
	}
	return defaultManager
}

// GetLogger 获取模块 logger（带缓存）
func (m *Manager) GetLogger(moduleName string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[moduleName]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check
	if l, ok := m.loggers[moduleName]; ok {
		return l
	}

	base := m.createLogger(moduleName)
	l := &CtxZapLogger{
		base:   base.With(zap.String("module", moduleName)),
		module: moduleName,
		config: &m.config,
	}
	m.loggers[moduleName] = l
	return l
}

// createLogger 构建底层 zap.Logger
func (m *Manager) createLogger(moduleName string) *zap.Logger {
	level := parseLevel(m.config.Level)
	encoder := createEncoder(m.config)

	cores := make([]zapcore.Core, 0, 2)

	if m.config.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if m.config.EnableFile {
		filename := filepath.Join(m.config.BaseLogDir, moduleName+".log")
		writer := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    m.config.MaxSize,
			MaxBackups: m.config.MaxBackups,
			MaxAge:     m.config.MaxAge,
			Compress:   m.config.Compress,
		}
		m.writers = append(m.writers, writer)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}

	opts := []zap.Option{}
	if m.config.EnableCaller {
		// skip=1: CtxZapLogger 的 *Ctx 包装层
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return zap.New(zapcore.NewTee(cores...), opts...)
}

// CloseAll 关闭所有文件输出
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.writers {
		w.Close()
	}
	m.writers = nil
	m.loggers = make(map[string]*CtxZapLogger)
}

// createEncoder 根据配置创建编码器
func createEncoder(cfg ManagerConfig) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	if cfg.Encoding == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// parseLevel 解析日志级别（非法值回落到 info）
func parseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// GetLogger 获取模块 logger（全局便捷方法）
func GetLogger(moduleName string) *CtxZapLogger {
	return getDefaultManager().GetLogger(moduleName)
}

// CloseAll 关闭全局管理器的所有输出
func CloseAll() {
	getDefaultManager().CloseAll()
}
