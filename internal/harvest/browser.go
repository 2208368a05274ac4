package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// ErrScriptingUnsupported 静态模式下的页面内求值
var ErrScriptingUnsupported = errors.New("当前浏览器能力不支持脚本求值")

// Browser 浏览器能力
// 每个URL使用一个新会话,会话之间不共享cookie和同意状态
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session 单个URL的浏览器会话
type Session interface {
	// Navigate 加载页面,超时由ctx控制
	Navigate(ctx context.Context, url string) error
	// WaitStable 等待DOM稳定,尽力而为
	WaitStable(ctx context.Context, d time.Duration) error
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// URL 当前(重定向后)的页面地址
	URL() string
	// Requests 会话期间观察到的网络请求,按首次出现顺序
	Requests() []Request
	// DocumentHeaders 主文档的响应头
	DocumentHeaders() http.Header
	Evaluate(ctx context.Context, js string, timeout time.Duration) EvalResult
	// Frames 顶层文档中的iframe
	Frames(ctx context.Context) ([]Frame, error)
	Close() error
}

// Frame iframe句柄
type Frame interface {
	// URL iframe声明的地址(src)
	URL() string
	// Inspect 在iframe文档中执行求值,跨域访问被阻止时返回EvalError
	Inspect(ctx context.Context, js string, timeout time.Duration) EvalResult
	// Frames 该iframe内嵌的iframe
	Frames(ctx context.Context) ([]Frame, error)
}

// Request 一条观察到的网络请求
type Request struct {
	URL  string
	Type string // Document, Script, Stylesheet, Image, XHR, Fetch ...
}

// 资源类型,与CDP Network.ResourceType取值一致
const (
	ResourceDocument   = "Document"
	ResourceScript     = "Script"
	ResourceStylesheet = "Stylesheet"
	ResourceImage      = "Image"
	ResourceOther      = "Other"
)

// EvalStatus 求值结果状态
type EvalStatus int

const (
	EvalOK EvalStatus = iota
	EvalTimeout
	EvalError
)

// String 实现fmt.Stringer
func (s EvalStatus) String() string {
	switch s {
	case EvalOK:
		return "ok"
	case EvalTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// EvalResult 页面内求值的类型化结果
// Value为JSON编码的返回值,nil表示返回了null/undefined
type EvalResult struct {
	Status EvalStatus
	Value  json.RawMessage
	Err    error
}

// EvalValue 构造成功结果
func EvalValue(v json.RawMessage) EvalResult {
	if len(v) == 0 || string(v) == "null" {
		v = nil
	}
	return EvalResult{Status: EvalOK, Value: v}
}

// EvalFailure 根据错误构造失败结果,超时单独标记
func EvalFailure(err error) EvalResult {
	if isTimeout(err) {
		return EvalResult{Status: EvalTimeout, Err: err}
	}
	return EvalResult{Status: EvalError, Err: err}
}

// Decode 将结果解码到v
func (r EvalResult) Decode(v any) error {
	if r.Status != EvalOK {
		return r.Error()
	}
	if r.Value == nil {
		return nil
	}
	return json.Unmarshal(r.Value, v)
}

// Error 失败原因
func (r EvalResult) Error() error {
	switch r.Status {
	case EvalOK:
		return nil
	case EvalTimeout:
		if r.Err != nil {
			return r.Err
		}
		return context.DeadlineExceeded
	}
	if r.Err != nil {
		return r.Err
	}
	return errors.New("求值失败")
}

// isTimeout 判断是否为超时错误
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
