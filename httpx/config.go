package httpx

// ErrorLoggingConfig 错误日志配置
type ErrorLoggingConfig struct {
	// Enable 是否记录业务错误日志（默认关闭）
	Enable bool `mapstructure:"enable" json:"enable"`

	// IgnoreHTTPStatus 忽略的 HTTP 状态码（不记录）
	// 例：[]int{404, 409} 表示 404 和 409 错误不记录
	IgnoreHTTPStatus []int `mapstructure:"ignore_http_status" json:"ignore_http_status"`

	// FullErrorChain 是否记录完整错误链（默认 true）
	FullErrorChain bool `mapstructure:"full_error_chain" json:"full_error_chain"`

	// LogLevel 日志级别：error / warn / info（默认 error）
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// DefaultErrorLoggingConfig 默认配置（不记录）
func DefaultErrorLoggingConfig() ErrorLoggingConfig {
	return ErrorLoggingConfig{
		Enable:           false,
		IgnoreHTTPStatus: []int{},
		FullErrorChain:   true,
		LogLevel:         "error",
	}
}
