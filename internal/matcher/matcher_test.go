package matcher

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
)

func defaultCatalog(t *testing.T) *signatures.Catalog {
	t.Helper()
	c, err := signatures.Default()
	if err != nil {
		t.Fatalf("加载内置签名表失败: %v", err)
	}
	return c
}

func scenarioBundle() *models.EvidenceBundle {
	gtm := "https://www.googletagmanager.com/gtm.js?id=GTM-ABC123"
	opt := "https://cdn.optimizely.com/js/12345678.js"
	return &models.EvidenceBundle{
		URL:                 "https://shop.example.com/",
		ScriptSources:       []string{gtm, opt},
		ObservedRequestURLs: []string{"https://shop.example.com/", gtm, opt},
	}
}

func TestMatch_ExampleScenario(t *testing.T) {
	got := Match(scenarioBundle(), defaultCatalog(t))

	want := []struct {
		category models.Category
		tool     string
	}{
		{models.CategoryMarketingTechnology, "Google Tag Manager"},
		{models.CategoryCompetitivePosture, "Optimizely"},
	}
	if len(got) != len(want) {
		t.Fatalf("期望 %d 条检测结果, 得到 %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Category != w.category || got[i].ToolName != w.tool {
			t.Errorf("第%d条: 期望 %s/%s, 得到 %s/%s", i, w.category, w.tool, got[i].Category, got[i].ToolName)
		}
	}
	if got[0].EvidenceLocation != (models.EvidenceLocation{Field: models.FieldScriptSources, Index: 0}) {
		t.Errorf("GTM证据位置错误: %+v", got[0].EvidenceLocation)
	}
	if got[1].EvidenceLocation.Index != 1 {
		t.Errorf("Optimizely应来自第2个脚本, 得到 %+v", got[1].EvidenceLocation)
	}
}

func TestMatch_DeterministicUnderShuffle(t *testing.T) {
	base := defaultCatalog(t)
	bundle := &models.EvidenceBundle{
		ScriptSources: []string{
			"https://www.googletagmanager.com/gtag/js?id=G-XYZ",
			"https://cdn.cookielaw.org/scripttemplates/otSDKStub.js",
			"https://static.hotjar.com/c/hotjar-1.js",
		},
		InlineScriptBodies: []string{
			"gtag('config', 'G-XYZ'); fbq('track', 'AddToCart');",
			"window.dataLayer.push({event: 'purchase'}); _vwo_code.init();",
		},
		ObservedRequestURLs: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/jquery.min.js",
			"https://d111111abcdef8.cloudfront.net/app.js",
			"https://fonts.gstatic.com/s/roboto.woff2",
		},
	}
	want := Match(bundle, base)
	if len(want) == 0 {
		t.Fatal("基准匹配结果不应为空")
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		sigs := base.Signatures()
		rng.Shuffle(len(sigs), func(a, b int) { sigs[a], sigs[b] = sigs[b], sigs[a] })
		for _, s := range sigs {
			rng.Shuffle(len(s.Patterns), func(a, b int) { s.Patterns[a], s.Patterns[b] = s.Patterns[b], s.Patterns[a] })
		}
		shuffled, err := signatures.New(sigs)
		if err != nil {
			t.Fatalf("New() 失败: %v", err)
		}
		if got := Match(bundle, shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("第%d次打乱目录后结果不一致:\n得到 %+v\n期望 %+v", i, got, want)
		}
	}
}

func TestMatch_NoDuplicateTools(t *testing.T) {
	catalog, err := signatures.New([]models.Signature{
		{Category: models.CategoryMarketingTechnology, ToolName: "Meta Pixel", Patterns: []string{`connect\.facebook\.net`, `fbq\(`}},
	})
	if err != nil {
		t.Fatal(err)
	}
	bundle := &models.EvidenceBundle{
		ScriptSources:      []string{"https://connect.facebook.net/en_US/fbevents.js", "https://connect.facebook.net/signals/config/1.js"},
		InlineScriptBodies: []string{"fbq('init', '1'); fbq('track', 'PageView');"},
	}

	got := Match(bundle, catalog)
	if len(got) != 1 {
		t.Fatalf("同一工具只应有1条检测结果, 得到 %d", len(got))
	}
	if got[0].EvidenceLocation.Field != models.FieldScriptSources || got[0].EvidenceLocation.Index != 0 {
		t.Errorf("应保留第一处命中, 得到 %+v", got[0].EvidenceLocation)
	}
}

func TestMatch_CategoryIndependence(t *testing.T) {
	catalog, err := signatures.New([]models.Signature{
		{Category: models.CategoryCDNDomains, ToolName: "Akamai", Patterns: []string{`akamaihd\.net`}},
		{Category: models.CategoryMarketingTechnology, ToolName: "Akamai mPulse", Patterns: []string{`akamaihd\.net`}},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		bundle *models.EvidenceBundle
		want   map[models.Category][]string
	}{
		{
			name:   "只有请求URL",
			bundle: &models.EvidenceBundle{ObservedRequestURLs: []string{"https://a.akamaihd.net/x.js"}},
			want:   map[models.Category][]string{models.CategoryCDNDomains: {"Akamai"}},
		},
		{
			name:   "只有脚本地址",
			bundle: &models.EvidenceBundle{ScriptSources: []string{"https://a.akamaihd.net/x.js"}},
			want:   map[models.Category][]string{models.CategoryMarketingTechnology: {"Akamai mPulse"}},
		},
		{
			name: "两者都有",
			bundle: &models.EvidenceBundle{
				ScriptSources:       []string{"https://a.akamaihd.net/x.js"},
				ObservedRequestURLs: []string{"https://a.akamaihd.net/x.js"},
			},
			want: map[models.Category][]string{
				models.CategoryCDNDomains:          {"Akamai"},
				models.CategoryMarketingTechnology: {"Akamai mPulse"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToolSet(Match(tt.bundle, catalog))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("期望 %v, 得到 %v", tt.want, got)
			}
		})
	}
}

func TestMatch_SharedEvidenceBothTools(t *testing.T) {
	catalog, err := signatures.New([]models.Signature{
		{Category: models.CategoryMarketingTechnology, ToolName: "Alpha Analytics", Patterns: []string{`shared-cdn\.test`}},
		{Category: models.CategoryMarketingTechnology, ToolName: "Beta Analytics", Patterns: []string{`shared-cdn\.test/beta`}},
	})
	if err != nil {
		t.Fatal(err)
	}
	bundle := &models.EvidenceBundle{ScriptSources: []string{"https://shared-cdn.test/beta/loader.js"}}

	got := ToolSet(Match(bundle, catalog))[models.CategoryMarketingTechnology]
	if want := []string{"Alpha Analytics", "Beta Analytics"}; !reflect.DeepEqual(got, want) {
		t.Errorf("期望 %v, 得到 %v", want, got)
	}
}

func TestMatch_CaseInsensitiveContainment(t *testing.T) {
	catalog := defaultCatalog(t)
	bundle := &models.EvidenceBundle{
		InlineScriptBodies: []string{"(function(){ var s = 'HTTPS://JS.HS-SCRIPTS.COM/123.js'; })();"},
	}
	got := ToolSet(Match(bundle, catalog))
	if tools := got[models.CategoryMarketingTechnology]; len(tools) != 1 || tools[0] != "HubSpot" {
		t.Errorf("期望检测到 HubSpot, 得到 %v", got)
	}
}

func TestMatch_ReferencesOnlyCatalogTools(t *testing.T) {
	catalog := defaultCatalog(t)
	bundle := &models.EvidenceBundle{
		ScriptSources:       []string{"https://tags.tiqcdn.com/utag/acme/main/prod/utag.js"},
		InlineScriptBodies:  []string{"__tcfapi('addEventListener', 2, cb); dataLayer.push({event:'begin_checkout'});"},
		ObservedRequestURLs: []string{"https://cdn.jsdelivr.net/npm/a.js", "https://unpkg.com/b.js"},
	}

	for _, d := range Match(bundle, catalog) {
		if !d.Category.Valid() {
			t.Errorf("检测结果类别无效: %s", d.Category)
		}
		if _, ok := catalog.Lookup(d.Category, d.ToolName); !ok {
			t.Errorf("检测结果引用了目录外的工具: %s/%s", d.Category, d.ToolName)
		}
		if d.Match == "" {
			t.Errorf("%s 缺少匹配文本", d.ToolName)
		}
	}
}

func TestMatch_NilInputs(t *testing.T) {
	if got := Match(nil, defaultCatalog(t)); len(got) != 0 {
		t.Errorf("nil证据包应返回空结果, 得到 %v", got)
	}
	if got := Match(&models.EvidenceBundle{}, nil); len(got) != 0 {
		t.Errorf("nil目录应返回空结果, 得到 %v", got)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("测", 200)
	if got := truncate(long, maxMatchRunes); len([]rune(got)) != maxMatchRunes {
		t.Errorf("期望截断为 %d 个字符, 得到 %d", maxMatchRunes, len([]rune(got)))
	}
	if got := truncate("short", maxMatchRunes); got != "short" {
		t.Errorf("短字符串不应截断, 得到 %q", got)
	}
}
