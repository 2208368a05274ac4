package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

func TestHeaderManager_Merge(t *testing.T) {
	hm, err := NewHeaderManager("ConfigUA/1.0",
		map[string]string{"x-team": "growth", "accept-language": "de-DE"},
		[]string{"X-Team: security", "Authorization: Bearer abc.def.ghi"},
	)
	if err != nil {
		t.Fatalf("NewHeaderManager() 失败: %v", err)
	}

	h, err := hm.GetHeaders()
	if err != nil {
		t.Fatalf("GetHeaders() 失败: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"默认UA被配置覆盖", "User-Agent", "ConfigUA/1.0"},
		{"配置覆盖默认", "Accept-Language", "de-DE"},
		{"命令行覆盖配置", "X-Team", "security"},
		{"命令行新增", "Authorization", "Bearer abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Get(tt.header); got != tt.want {
				t.Errorf("期望 %q, 得到 %q", tt.want, got)
			}
		})
	}
	if hm.UserAgent() != "ConfigUA/1.0" {
		t.Errorf("UserAgent() 得到 %q", hm.UserAgent())
	}
}

func TestHeaderManager_DefaultUserAgent(t *testing.T) {
	hm, err := NewHeaderManager("", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if hm.UserAgent() != DefaultUserAgent {
		t.Errorf("期望默认UA, 得到 %q", hm.UserAgent())
	}
}

func TestHeaderManager_ParseErrors(t *testing.T) {
	for _, h := range []string{"NoColon", ": value"} {
		if _, err := NewHeaderManager("", nil, []string{h}); err == nil {
			t.Errorf("%q 应解析失败", h)
		}
	}
}

func TestHeaderManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cli     []string
		config  map[string]string
		wantErr bool
	}{
		{"合法头部", []string{"X-Custom: 1"}, nil, false},
		{"禁止的头部", []string{"Host: evil.test"}, nil, true},
		{"非法名称", []string{"Bad Header: x"}, nil, true},
		{"控制字符", nil, map[string]string{"X-Bad": "a\nb"}, true},
		{"过长的值", []string{"X-Long: " + strings.Repeat("a", maxHeaderValueLength+1)}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager("", tt.config, tt.cli)
			if err != nil {
				t.Fatalf("NewHeaderManager() 失败: %v", err)
			}
			err = hm.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误=%v, 得到 %v", tt.wantErr, err)
			}
			var ve *models.ValidationError
			if err != nil && !errors.As(err, &ve) {
				t.Errorf("期望 *models.ValidationError, 得到 %T", err)
			}
		})
	}
}

func TestHeaderManager_SafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager("UA", nil, []string{
		"Authorization: Bearer secret-token",
		"X-Api-Key: 1234567890abcdef",
		"X-Secret: short",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"Accept-Language: en-US,en;q=0.9",
		"Authorization: Bearer ***",
		"User-Agent: UA",
		"X-Api-Key: 1234***cdef",
		"X-Secret: ***",
	}
	if got := hm.SafeHeaders(); !reflect.DeepEqual(got, want) {
		t.Errorf("期望 %v, 得到 %v", want, got)
	}
}
