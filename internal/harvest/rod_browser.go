package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// RodOptions 浏览器启动和页面仿真参数
type RodOptions struct {
	Bin          string
	Headless     bool
	Stealth      bool
	NoSandbox    bool
	Proxy        string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	Locale       string
	Timezone     string
	Headers      http.Header
}

// RodBrowser 基于go-rod的浏览器能力
// 每个会话使用独立的无痕上下文
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     RodOptions
}

// LaunchRod 启动浏览器
func LaunchRod(opts RodOptions) (*RodBrowser, error) {
	l := launcher.New().Headless(opts.Headless)

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	} else if path, has := launcher.LookPath(); has {
		l = l.Bin(path)
	}
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s (headless=%v, stealth=%v)", controlURL, opts.Headless, opts.Stealth)
	return &RodBrowser{browser: b, launcher: l, opts: opts}, nil
}

// NewSession 创建无痕上下文中的新页面
func (rb *RodBrowser) NewSession(ctx context.Context) (Session, error) {
	incognito, err := rb.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("创建无痕上下文失败: %w", err)
	}

	var page *rod.Page
	if rb.opts.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	eventCtx, cancel := context.WithCancel(context.Background())
	s := &rodSession{
		incognito: incognito,
		page:      page,
		cancel:    cancel,
		seen:      make(map[string]struct{}),
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		utils.Debugf("启用Network域失败: %v", err)
	}
	go page.Context(eventCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil {
				s.record(e.Request.URL, string(e.Type))
			}
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Type == proto.NetworkResourceTypeDocument && e.FrameID == page.FrameID && e.Response != nil {
				s.setDocumentHeaders(e.Response.Headers)
			}
		},
	)()

	rb.emulate(page)
	return s, nil
}

// emulate 设置UA、视口、时区、语言和额外请求头,失败只记录日志
func (rb *RodBrowser) emulate(page *rod.Page) {
	o := rb.opts
	if o.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      o.UserAgent,
			AcceptLanguage: o.Locale,
		}); err != nil {
			utils.Debugf("设置User-Agent失败: %v", err)
		}
	}
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             o.WindowWidth,
			Height:            o.WindowHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			utils.Debugf("设置视口失败: %v", err)
		}
	}
	if o.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: o.Timezone}).Call(page); err != nil {
			utils.Debugf("设置时区失败: %v", err)
		}
	}
	if o.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: o.Locale}).Call(page); err != nil {
			utils.Debugf("设置语言失败: %v", err)
		}
	}
	if len(o.Headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toNetworkHeaders(o.Headers)}).Call(page); err != nil {
			utils.Debugf("设置额外请求头失败: %v", err)
		}
	}
}

// Close 关闭浏览器并清理用户数据目录
func (rb *RodBrowser) Close() error {
	err := rb.browser.Close()
	rb.launcher.Cleanup()
	utils.Debugf("浏览器已关闭")
	return err
}

// toNetworkHeaders 转换为NetworkSetExtraHTTPHeaders需要的map[string]gson.JSON
// User-Agent由SetUserAgent单独设置
func toNetworkHeaders(h http.Header) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(h))
	for k, v := range h {
		if len(v) == 0 || http.CanonicalHeaderKey(k) == "User-Agent" {
			continue
		}
		m[k] = gson.New(v[0])
	}
	return m
}

type rodSession struct {
	incognito *rod.Browser
	page      *rod.Page
	cancel    context.CancelFunc

	mu         sync.Mutex
	requests   []Request
	seen       map[string]struct{}
	docHeaders http.Header
}

func (s *rodSession) record(url, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[url]; ok {
		return
	}
	s.seen[url] = struct{}{}
	if typ == "" {
		typ = ResourceOther
	}
	s.requests = append(s.requests, Request{URL: url, Type: typ})
}

func (s *rodSession) setDocumentHeaders(headers proto.NetworkHeaders) {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Add(k, v.Str())
	}
	s.mu.Lock()
	s.docHeaders = h
	s.mu.Unlock()
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) WaitStable(ctx context.Context, d time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, 4*d)
	defer cancel()
	return s.page.Context(wctx).WaitDOMStable(d, 0.1)
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) URL() string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSession) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *rodSession) DocumentHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docHeaders.Clone()
}

func (s *rodSession) Evaluate(ctx context.Context, js string, timeout time.Duration) EvalResult {
	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := s.page.Context(ectx).Evaluate(rod.Eval(js).ByPromise())
	if err != nil {
		return EvalFailure(err)
	}
	return EvalValue(json.RawMessage(res.Value.JSON("", "")))
}

func (s *rodSession) Frames(ctx context.Context) ([]Frame, error) {
	return rodFrames(s.page.Context(ctx))
}

func (s *rodSession) Close() error {
	s.cancel()
	err := s.page.Close()
	if cerr := s.incognito.Close(); err == nil {
		err = cerr
	}
	return err
}

func rodFrames(p *rod.Page) ([]Frame, error) {
	els, err := p.Elements("iframe")
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(els))
	for _, el := range els {
		src := ""
		if v, err := el.Property("src"); err == nil {
			src = v.Str()
		}
		frames = append(frames, &rodFrame{el: el, src: src})
	}
	return frames, nil
}

// rodFrame 通过iframe元素访问其contentDocument
// 跨域iframe的contentDocument为null,求值返回错误
type rodFrame struct {
	el  *rod.Element
	src string
}

func (f *rodFrame) URL() string {
	return f.src
}

func (f *rodFrame) Inspect(ctx context.Context, js string, timeout time.Duration) EvalResult {
	wrapped := `function() {
		const doc = this.contentDocument;
		if (!doc) throw new Error('cross-origin frame blocked inspection');
		return (` + js + `)(doc);
	}`
	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := f.el.Context(ectx).Evaluate(rod.Eval(wrapped).ByPromise())
	if err != nil {
		return EvalFailure(err)
	}
	return EvalValue(json.RawMessage(res.Value.JSON("", "")))
}

func (f *rodFrame) Frames(ctx context.Context) ([]Frame, error) {
	fp, err := f.el.Context(ctx).Frame()
	if err != nil {
		return nil, err
	}
	return rodFrames(fp.Context(ctx))
}
