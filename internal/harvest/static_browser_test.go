package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func staticServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "deepstack" {
			http.Error(w, "missing header", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Powered-By", "Express")
		fmt.Fprint(w, `<!doctype html><html><head><title> Static Shop </title>
<script src="https://www.googletagmanager.com/gtm.js?id=GTM-ABC123"></script>
<script src="/static/app.js"></script>
<link rel="stylesheet" href="https://fonts.googleapis.com/css?family=Roboto">
</head><body>
<img src="/logo.png" alt="logo">
<iframe src="https://forms.vendor.test/embed"></iframe>
<script>window.dataLayer = [];</script>
</body></html>`)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><head><title>Just a moment...</title></head><body></body></html>`)
	})
	return httptest.NewServer(mux)
}

func newStaticSession(t *testing.T) Session {
	t.Helper()
	b := NewStaticBrowser(StaticOptions{
		UserAgent: "DeepStack-Test/1.0",
		Headers:   http.Header{"X-Test": []string{"deepstack"}},
		Timeout:   5 * time.Second,
	})
	s, err := b.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession() 失败: %v", err)
	}
	return s
}

func TestStaticSession_Navigate(t *testing.T) {
	srv := staticServer(t)
	defer srv.Close()

	s := newStaticSession(t)
	defer s.Close()
	ctx := context.Background()

	if err := s.Navigate(ctx, srv.URL+"/moved"); err != nil {
		t.Fatalf("Navigate() 失败: %v", err)
	}
	if got := s.URL(); got != srv.URL+"/" {
		t.Errorf("重定向后地址 期望 %s/, 得到 %s", srv.URL, got)
	}
	if title, _ := s.Title(ctx); title != "Static Shop" {
		t.Errorf("标题 期望 Static Shop, 得到 %q", title)
	}
	if got := s.DocumentHeaders().Get("X-Powered-By"); got != "Express" {
		t.Errorf("响应头 期望 Express, 得到 %q", got)
	}

	types := map[string]string{}
	for _, r := range s.Requests() {
		types[r.URL] = r.Type
	}
	want := map[string]string{
		srv.URL + "/": ResourceDocument,
		"https://www.googletagmanager.com/gtm.js?id=GTM-ABC123": ResourceScript,
		srv.URL + "/static/app.js":                       ResourceScript,
		"https://fonts.googleapis.com/css?family=Roboto": ResourceStylesheet,
		srv.URL + "/logo.png":                            ResourceImage,
		"https://forms.vendor.test/embed":                ResourceDocument,
	}
	for u, typ := range want {
		if types[u] != typ {
			t.Errorf("请求 %s 类型 期望 %s, 得到 %q", u, typ, types[u])
		}
	}

	frames, err := s.Frames(ctx)
	if err != nil || len(frames) != 1 {
		t.Fatalf("期望1个iframe, 得到 %d (%v)", len(frames), err)
	}
	if res := frames[0].Inspect(ctx, formsJS, time.Second); res.Status != EvalError {
		t.Errorf("静态iframe求值应返回EvalError, 得到 %s", res.Status)
	}
	if res := s.Evaluate(ctx, dataLayerJS, time.Second); !errors.Is(res.Err, ErrScriptingUnsupported) {
		t.Errorf("静态模式求值应返回ErrScriptingUnsupported, 得到 %v", res.Err)
	}
}

func TestStaticSession_ErrorStatusKeepsBody(t *testing.T) {
	srv := staticServer(t)
	defer srv.Close()

	s := newStaticSession(t)
	ctx := context.Background()
	if err := s.Navigate(ctx, srv.URL+"/challenge"); err != nil {
		t.Fatalf("验证页的403也应读取正文: %v", err)
	}
	title, _ := s.Title(ctx)
	html, _ := s.HTML(ctx)
	if _, ok := DetectChallenge(title, html); !ok {
		t.Errorf("应识别为验证页: %q", title)
	}
}

func TestStaticSession_NotLoaded(t *testing.T) {
	s := newStaticSession(t)
	if _, err := s.HTML(context.Background()); err == nil {
		t.Error("未加载时HTML()应返回错误")
	}
	if _, err := s.Frames(context.Background()); err == nil {
		t.Error("未加载时Frames()应返回错误")
	}
}

func TestStaticBrowser_Harvest(t *testing.T) {
	srv := staticServer(t)
	defer srv.Close()

	b := NewStaticBrowser(StaticOptions{Headers: http.Header{"X-Test": []string{"deepstack"}}})
	opts := DefaultOptions()
	opts.SettleTime = 0
	art, err := NewHarvester(b, opts).Harvest(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Harvest() 失败: %v", err)
	}
	if len(art.ScriptSources) != 2 {
		t.Errorf("静态模式应从请求中得到2个脚本地址, 得到 %v", art.ScriptSources)
	}
	if art.DataLayer != nil {
		t.Error("静态模式无法读取dataLayer")
	}
	if len(art.Frames) != 1 || art.Frames[0].Accessible {
		t.Errorf("静态模式iframe应不可访问: %+v", art.Frames)
	}
	if len(art.Degradations) == 0 {
		t.Error("静态模式应记录降级")
	}
}
