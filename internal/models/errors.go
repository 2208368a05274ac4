package models

import (
	"errors"
	"fmt"
)

// ErrorKind 分析错误类型
type ErrorKind string

const (
	ErrNavigationTimeout   ErrorKind = "NavigationTimeout"   // 导航超时
	ErrNavigationFailed    ErrorKind = "NavigationFailed"    // 导航失败(DNS/连接/证书等)
	ErrChallengeUnresolved ErrorKind = "ChallengeUnresolved" // 反爬验证页未通过
	ErrMalformedDocument   ErrorKind = "MalformedDocument"   // 文档无法解析
	ErrIframeInaccessible  ErrorKind = "IframeInaccessible"  // iframe无法访问(非致命)
	ErrEvaluationError     ErrorKind = "EvaluationError"     // 页面内求值失败(非致命)
	ErrInternal            ErrorKind = "InternalError"       // 流水线内部异常
)

// Fatal 该类错误是否会使当前URL的分析失败
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrIframeInaccessible, ErrEvaluationError:
		return false
	}
	return true
}

// AnalysisError 带错误类型的分析错误
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewAnalysisError 创建分析错误
func NewAnalysisError(kind ErrorKind, message string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: message, Err: err}
}

// Error 实现error接口
func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// KindOf 提取错误类型,无类型的错误归为InternalError
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrInternal
}

// ConfigError 配置文件错误
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
