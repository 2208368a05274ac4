package matcher

import (
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

const jqueryPage = `<html><head><title>Shop</title>
<script src="https://cdnjs.cloudflare.com/ajax/libs/jquery/3.6.0/jquery.min.js"></script>
</head><body><h1>Shop</h1></body></html>`

func newCrossChecker(t *testing.T) *CrossChecker {
	t.Helper()
	c, err := NewCrossChecker()
	if err != nil {
		t.Fatalf("初始化交叉校验失败: %v", err)
	}
	return c
}

func hasTech(names []string, prefix string) bool {
	for _, n := range names {
		if n == prefix || strings.HasPrefix(n, prefix+":") {
			return true
		}
	}
	return false
}

func TestCrossChecker_Fingerprint(t *testing.T) {
	c := newCrossChecker(t)

	tests := []struct {
		name    string
		headers http.Header
		html    string
		want    []string
	}{
		{"Server响应头", http.Header{"Server": []string{"cloudflare"}}, "<html><body>ok</body></html>", []string{"Cloudflare"}},
		{"cdnjs加载jQuery", nil, jqueryPage, []string{"jQuery", "cdnjs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Fingerprint(tt.headers, tt.html)
			for _, w := range tt.want {
				if !hasTech(got, w) {
					t.Errorf("期望包含 %s, 得到 %v", w, got)
				}
			}
			if !sort.StringsAreSorted(got) {
				t.Errorf("结果应排序, 得到 %v", got)
			}
		})
	}
}

func TestCrossChecker_Empty(t *testing.T) {
	var nilChecker *CrossChecker
	if got := nilChecker.Fingerprint(http.Header{"Server": []string{"cloudflare"}}, jqueryPage); got != nil {
		t.Errorf("nil检查器应返回nil, 得到 %v", got)
	}

	c := newCrossChecker(t)
	if got := c.Fingerprint(http.Header{"Server": []string{"cloudflare"}}, ""); got != nil {
		t.Errorf("HTML为空时应返回nil, 得到 %v", got)
	}
	if got := c.Check(nil); got != nil {
		t.Errorf("证据包为nil时应返回nil, 得到 %v", got)
	}
}

func TestCrossChecker_Check(t *testing.T) {
	c := newCrossChecker(t)
	bundle := &models.EvidenceBundle{
		RenderedHTML:    jqueryPage,
		DocumentHeaders: http.Header{"Server": []string{"cloudflare"}},
	}
	got := c.Check(bundle)
	for _, w := range []string{"Cloudflare", "jQuery"} {
		if !hasTech(got, w) {
			t.Errorf("期望包含 %s, 得到 %v", w, got)
		}
	}
}
