package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	mainLogFile  = "deepstack.log"
	errorLogFile = "deepstack_error.log"
)

// Logger 全局日志实例, 初始化前丢弃所有输出
var Logger = zerolog.Nop()

// LogConfig 日志配置
type LogConfig struct {
	Level      string    // 日志级别: debug, info, warn, error
	LogDir     string    // 日志目录, 为空时只输出到控制台
	MaxSize    int       // 单个日志文件最大大小(MB)
	MaxBackups int       // 保留的旧日志文件数量
	MaxAge     int       // 保留旧日志的天数
	Compress   bool      // 是否压缩旧日志
	Console    io.Writer // 控制台输出, 默认os.Stderr
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化日志系统
// 控制台输出彩色可读格式, 主日志文件记录全部级别, 错误日志文件只记录error及以上
func InitLogger(config LogConfig) error {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	console := config.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: "15:04:05",
	}}

	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0755); err != nil {
			return fmt.Errorf("创建日志目录失败: %w", err)
		}

		writers = append(writers,
			&lumberjack.Logger{
				Filename:   filepath.Join(config.LogDir, mainLogFile),
				MaxSize:    config.MaxSize,
				MaxBackups: config.MaxBackups,
				MaxAge:     config.MaxAge,
				Compress:   config.Compress,
				LocalTime:  true,
			},
			&FilteredWriter{
				Writer: &lumberjack.Logger{
					Filename:   filepath.Join(config.LogDir, errorLogFile),
					MaxSize:    config.MaxSize,
					MaxBackups: config.MaxBackups,
					MaxAge:     config.MaxAge,
					Compress:   config.Compress,
					LocalTime:  true,
				},
				MinLevel: zerolog.ErrorLevel,
			},
		)
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
	log.Logger = Logger

	return nil
}

// FilteredWriter 只写入不低于MinLevel的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 没有级别信息的写入直接丢弃
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// WriteLevel 实现zerolog.LevelWriter
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= w.MinLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}

// Info 记录信息级别日志
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Infof 记录格式化信息级别日志
func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

// Error 记录错误级别日志
func Error(err error, msg string) {
	Logger.Error().Err(err).Msg(msg)
}

// Errorf 记录格式化错误级别日志
func Errorf(format string, args ...interface{}) {
	Logger.Error().Msgf(format, args...)
}

// Warn 记录警告级别日志
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Warnf 记录格式化警告级别日志
func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

// Debug 记录调试级别日志
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Debugf 记录格式化调试级别日志
func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}

// Fatal 记录致命错误并退出
func Fatal(err error, msg string) {
	Logger.Fatal().Err(err).Msg(msg)
}
