package harvest

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// StaticOptions 静态抓取参数
type StaticOptions struct {
	UserAgent string
	Headers   http.Header
	Timeout   time.Duration
}

// StaticBrowser 基于Colly的无脚本浏览器能力
// 只抓取文档本身,网络请求由文档引用的子资源近似;所有页面内求值都返回EvalError
type StaticBrowser struct {
	opts StaticOptions
}

// NewStaticBrowser 创建静态浏览器能力
func NewStaticBrowser(opts StaticOptions) *StaticBrowser {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &StaticBrowser{opts: opts}
}

// NewSession 每个URL使用新的Collector,不共享cookie
func (b *StaticBrowser) NewSession(ctx context.Context) (Session, error) {
	return &staticSession{opts: b.opts}, nil
}

// Close 无需释放资源
func (b *StaticBrowser) Close() error {
	return nil
}

type staticSession struct {
	opts StaticOptions

	mu       sync.Mutex
	finalURL string
	html     string
	headers  http.Header
	requests []Request
	doc      *goquery.Document
}

func (s *staticSession) newCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	}
	if s.opts.UserAgent != "" {
		opts = append(opts, colly.UserAgent(s.opts.UserAgent))
	}
	c := colly.NewCollector(opts...)
	// 验证页通常以403/503返回,仍需要读取正文
	c.ParseHTTPErrorResponse = true

	timeout := s.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	})
	return c
}

func (s *staticSession) Navigate(ctx context.Context, target string) error {
	c := s.newCollector(ctx)

	var visitErr error
	c.OnRequest(func(r *colly.Request) {
		for name, values := range s.opts.Headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			visitErr = err
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.finalURL = r.Request.URL.String()
		s.html = string(body)
		s.headers = r.Headers.Clone()
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})

	if err := c.Visit(target); err != nil {
		return err
	}
	if visitErr != nil {
		return visitErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.parse(target)
}

// parse 解析文档并把引用的子资源记为观察到的请求
func (s *staticSession) parse(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.html))
	if err != nil {
		return fmt.Errorf("解析HTML失败: %w", err)
	}
	s.doc = doc

	if s.finalURL == "" {
		s.finalURL = target
	}
	base, _ := url.Parse(s.finalURL)

	seen := make(map[string]struct{})
	add := func(raw, typ string) {
		abs := resolveRef(base, raw)
		if abs == "" {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		s.requests = append(s.requests, Request{URL: abs, Type: typ})
	}

	add(s.finalURL, ResourceDocument)
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("src", ""), ResourceScript)
	})
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel := strings.ToLower(sel.AttrOr("rel", ""))
		switch {
		case strings.Contains(rel, "stylesheet"):
			add(sel.AttrOr("href", ""), ResourceStylesheet)
		case strings.Contains(rel, "preload"), strings.Contains(rel, "modulepreload"):
			if sel.AttrOr("as", "") == "script" || rel == "modulepreload" {
				add(sel.AttrOr("href", ""), ResourceScript)
			} else {
				add(sel.AttrOr("href", ""), ResourceOther)
			}
		}
	})
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("src", ""), ResourceImage)
	})
	doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("src", ""), ResourceDocument)
	})
	return nil
}

func (s *staticSession) WaitStable(ctx context.Context, d time.Duration) error {
	return nil
}

func (s *staticSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", errors.New("页面尚未加载")
	}
	return strings.TrimSpace(s.doc.Find("title").First().Text()), nil
}

func (s *staticSession) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", errors.New("页面尚未加载")
	}
	return s.html, nil
}

func (s *staticSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalURL
}

func (s *staticSession) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *staticSession) DocumentHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers.Clone()
}

func (s *staticSession) Evaluate(ctx context.Context, js string, timeout time.Duration) EvalResult {
	return EvalResult{Status: EvalError, Err: ErrScriptingUnsupported}
}

func (s *staticSession) Frames(ctx context.Context) ([]Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, errors.New("页面尚未加载")
	}
	base, _ := url.Parse(s.finalURL)
	var frames []Frame
	s.doc.Find("iframe").Each(func(_ int, sel *goquery.Selection) {
		frames = append(frames, staticFrame{src: resolveRef(base, sel.AttrOr("src", ""))})
	})
	return frames, nil
}

func (s *staticSession) Close() error {
	return nil
}

type staticFrame struct {
	src string
}

func (f staticFrame) URL() string { return f.src }

func (f staticFrame) Inspect(ctx context.Context, js string, timeout time.Duration) EvalResult {
	return EvalResult{Status: EvalError, Err: ErrScriptingUnsupported}
}

func (f staticFrame) Frames(ctx context.Context) ([]Frame, error) {
	return nil, nil
}

// resolveRef 将引用解析为绝对地址,非http(s)地址返回空串
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// decompressResponse 根据Content-Encoding解压响应体
// Colly已解压gzip时保留原文
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return out, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return out, nil

	case "br":
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return out, nil
	}
	return body, nil
}
