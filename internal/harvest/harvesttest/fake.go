// Package harvesttest 提供内存中的假浏览器,用于状态机和流水线测试
package harvesttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/models"
)

// ChallengeHTML 典型的Cloudflare验证页
const ChallengeHTML = `<html><head><title>Just a moment...</title></head>` +
	`<body><div id="challenge-running"></div></body></html>`

// Page 假页面
type Page struct {
	Title    string
	HTML     string
	FinalURL string
	Requests []harvest.Request
	Headers  http.Header

	// 前ChallengeReads次读取文档时返回验证页
	ChallengeReads int

	Scripts   []string
	Inline    []string
	DataLayer json.RawMessage // nil 表示 window.dataLayer 不存在
	// Globals 以全局对象名为键,值为探测返回的JSON
	Globals map[string]json.RawMessage
	// FailEval 为true时所有页面内求值返回EvalError
	FailEval bool

	Frames []*Frame

	NavErr error
	Hang   bool // Navigate阻塞到ctx结束
	Panic  bool // Navigate时panic
}

// Frame 假iframe
type Frame struct {
	Src      string
	Blocked  bool
	Fields   []models.FormField
	Action   *string
	Children []*Frame
}

// Browser 按URL返回预置页面
type Browser struct {
	mu            sync.Mutex
	Pages         map[string]*Page
	NewSessionErr error

	opened int
	closed int
	visits []string
}

// NewBrowser 创建假浏览器
func NewBrowser(pages map[string]*Page) *Browser {
	return &Browser{Pages: pages}
}

// NewSession 实现 harvest.Browser
func (b *Browser) NewSession(ctx context.Context) (harvest.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewSessionErr != nil {
		return nil, b.NewSessionErr
	}
	b.opened++
	return &session{browser: b}, nil
}

// Close 实现 harvest.Browser
func (b *Browser) Close() error { return nil }

// Sessions 已打开和已关闭的会话数
func (b *Browser) Sessions() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.closed
}

// Visits 按顺序记录的导航地址
func (b *Browser) Visits() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.visits))
	copy(out, b.visits)
	return out
}

type session struct {
	browser *Browser
	page    *Page
	reads   int
}

func (s *session) Navigate(ctx context.Context, url string) error {
	s.browser.mu.Lock()
	s.browser.visits = append(s.browser.visits, url)
	p, ok := s.browser.Pages[url]
	s.browser.mu.Unlock()

	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED: %s", url)
	}
	if p.Panic {
		panic("fake browser panic: " + url)
	}
	if p.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.NavErr != nil {
		return p.NavErr
	}
	s.page = p
	return nil
}

func (s *session) WaitStable(ctx context.Context, d time.Duration) error { return nil }

func (s *session) challenged() bool {
	return s.reads < s.page.ChallengeReads
}

func (s *session) Title(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", errors.New("no page")
	}
	if s.challenged() {
		return "Just a moment...", nil
	}
	return s.page.Title, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", errors.New("no page")
	}
	challenged := s.challenged()
	s.reads++
	if challenged {
		return ChallengeHTML, nil
	}
	return s.page.HTML, nil
}

func (s *session) URL() string {
	if s.page == nil {
		return ""
	}
	return s.page.FinalURL
}

func (s *session) Requests() []harvest.Request {
	if s.page == nil {
		return nil
	}
	return s.page.Requests
}

func (s *session) DocumentHeaders() http.Header {
	if s.page == nil {
		return nil
	}
	return s.page.Headers
}

func (s *session) Evaluate(ctx context.Context, js string, timeout time.Duration) harvest.EvalResult {
	p := s.page
	if p == nil || p.FailEval {
		return harvest.EvalFailure(errors.New("Runtime.evaluate failed"))
	}
	switch {
	case strings.Contains(js, "document.scripts"):
		return harvest.EvalValue(mustJSON(map[string][]string{"src": p.Scripts, "inline": p.Inline}))
	case strings.Contains(js, "window.dataLayer"):
		return harvest.EvalValue(p.DataLayer)
	}
	for name, v := range p.Globals {
		if strings.Contains(js, "window."+name+" ") || strings.Contains(js, "window."+name+")") {
			return harvest.EvalValue(v)
		}
	}
	return harvest.EvalValue(nil)
}

func (s *session) Frames(ctx context.Context) ([]harvest.Frame, error) {
	if s.page == nil {
		return nil, errors.New("no page")
	}
	return toFrames(s.page.Frames), nil
}

func (s *session) Close() error {
	s.browser.mu.Lock()
	s.browser.closed++
	s.browser.mu.Unlock()
	return nil
}

func toFrames(fs []*Frame) []harvest.Frame {
	out := make([]harvest.Frame, 0, len(fs))
	for _, f := range fs {
		out = append(out, f)
	}
	return out
}

// URL 实现 harvest.Frame
func (f *Frame) URL() string { return f.Src }

// Inspect 实现 harvest.Frame
func (f *Frame) Inspect(ctx context.Context, js string, timeout time.Duration) harvest.EvalResult {
	if f.Blocked {
		return harvest.EvalFailure(errors.New("Blocked a frame with origin from accessing a cross-origin frame"))
	}
	fields := f.Fields
	if fields == nil {
		fields = []models.FormField{}
	}
	forms := 0
	if len(fields) > 0 {
		forms = 1
	}
	return harvest.EvalValue(mustJSON(map[string]any{
		"origin": "",
		"url":    f.Src,
		"fields": fields,
		"action": f.Action,
		"forms":  forms,
	}))
}

// Frames 实现 harvest.Frame
func (f *Frame) Frames(ctx context.Context) ([]harvest.Frame, error) {
	if f.Blocked {
		return nil, errors.New("cross-origin")
	}
	return toFrames(f.Children), nil
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
