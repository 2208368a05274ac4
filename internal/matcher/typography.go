package matcher

import (
	"net/url"
	"strings"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
)

// Typography 按字体服务表扫描网络请求
// 服务、字体名和字体文件都去重并保持首次出现顺序; fonts为nil时返回nil
func Typography(requestURLs []string, fonts *signatures.FontTable) *models.Typography {
	if fonts == nil {
		return nil
	}
	t := &models.Typography{
		WebFontServices:   []string{},
		GoogleFonts:       []string{},
		CustomFontsLoaded: []string{},
	}
	services := fonts.Services()
	for _, u := range requestURLs {
		for _, svc := range services {
			if !svc.Match(u) {
				continue
			}
			switch svc.Kind {
			case signatures.FontKindFiles:
				t.CustomFontsLoaded = appendDistinct(t.CustomFontsLoaded, u)
			case signatures.FontKindFamilies:
				for _, family := range fontFamilies(u) {
					t.GoogleFonts = appendDistinct(t.GoogleFonts, family)
				}
			}
			t.WebFontServices = appendDistinct(t.WebFontServices, svc.Name)
		}
	}
	return t
}

// fontFamilies 从 family=Roboto:wght@400|Open+Sans 这类参数中取字体名
// css2接口会重复family参数, 且参数值含分号, 不能用url.Query解析
func fontFamilies(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	var out []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != "family" {
			continue
		}
		param, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		for _, f := range strings.Split(param, "|") {
			name, _, _ := strings.Cut(f, ":")
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func appendDistinct(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
