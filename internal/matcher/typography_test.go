package matcher

import (
	"reflect"
	"testing"

	"github.com/RecoveryAshes/DeepStack/internal/signatures"
)

func defaultFonts(t *testing.T) *signatures.FontTable {
	t.Helper()
	f, err := signatures.DefaultFontServices()
	if err != nil {
		t.Fatalf("加载内置字体服务表失败: %v", err)
	}
	return f
}

func TestTypography(t *testing.T) {
	fonts := defaultFonts(t)

	tests := []struct {
		name         string
		urls         []string
		wantServices []string
		wantGoogle   []string
		wantFiles    []string
	}{
		{
			name: "Google Fonts字体名",
			urls: []string{
				"https://fonts.googleapis.com/css2?family=Roboto:wght@400;700&family=Open+Sans&display=swap",
				"https://fonts.googleapis.com/css?family=Lato|Roboto:300",
			},
			wantServices: []string{"GoogleFonts"},
			wantGoogle:   []string{"Roboto", "Open Sans", "Lato"},
			wantFiles:    []string{},
		},
		{
			name: "字体文件同时命中服务",
			urls: []string{
				"https://shop.example.com/",
				"https://fonts.gstatic.com/s/roboto/v30/KFOmCnqEu92Fr1Mu4mxK.woff2",
				"https://use.typekit.net/abc1234.css",
				"https://shop.example.com/fonts/brand.ttf?v=2",
			},
			wantServices: []string{"GoogleFonts", "CustomWebFonts", "AdobeFonts"},
			wantGoogle:   []string{},
			wantFiles:    []string{
				"https://fonts.gstatic.com/s/roboto/v30/KFOmCnqEu92Fr1Mu4mxK.woff2",
				"https://shop.example.com/fonts/brand.ttf?v=2",
			},
		},
		{
			name:         "没有字体请求",
			urls:         []string{"https://shop.example.com/app.js", "https://cdn.example.com/woff2-guide.html"},
			wantServices: []string{},
			wantGoogle:   []string{},
			wantFiles:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Typography(tt.urls, fonts)
			if !reflect.DeepEqual(got.WebFontServices, tt.wantServices) {
				t.Errorf("字体服务 期望 %v, 得到 %v", tt.wantServices, got.WebFontServices)
			}
			if !reflect.DeepEqual(got.GoogleFonts, tt.wantGoogle) {
				t.Errorf("Google字体 期望 %v, 得到 %v", tt.wantGoogle, got.GoogleFonts)
			}
			if !reflect.DeepEqual(got.CustomFontsLoaded, tt.wantFiles) {
				t.Errorf("字体文件 期望 %v, 得到 %v", tt.wantFiles, got.CustomFontsLoaded)
			}
		})
	}
}

func TestTypography_NilTable(t *testing.T) {
	if got := Typography([]string{"https://fonts.googleapis.com/css?family=Lato"}, nil); got != nil {
		t.Errorf("字体服务表为nil时应返回nil, 得到 %+v", got)
	}
}
