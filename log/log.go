package log

import (
	"github.com/hatlonely/ifxorm/log/logger"
)

var defaultLogger logger.Logger

func init() {
	// 默认向终端输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slog
}

func Default() logger.Logger {
	return defaultLogger
}

// SetDefault 替换默认日志器，nil 会被忽略
func SetDefault(l logger.Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Nop 返回丢弃所有输出的日志器
func Nop() logger.Logger {
	return logger.Nop{}
}
