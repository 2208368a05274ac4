package signatures

import (
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("加载内置签名表失败: %v", err)
	}

	for _, cat := range models.AllCategories() {
		if len(c.Entries(cat)) == 0 {
			t.Errorf("类别 %s 没有签名", cat)
		}
	}

	tests := []struct {
		name       string
		category   models.Category
		tool       string
		tagManager bool
	}{
		{"GTM是标签管理工具", models.CategoryMarketingTechnology, "Google Tag Manager", true},
		{"Tealium是标签管理工具", models.CategoryMarketingTechnology, "Tealium iQ", true},
		{"GA不是标签管理工具", models.CategoryMarketingTechnology, "Google Analytics", false},
		{"Optimizely", models.CategoryCompetitivePosture, "Optimizely", false},
		{"OneTrust", models.CategoryCookieConsent, "OneTrust", false},
		{"Cloudflare", models.CategoryCDNDomains, "Cloudflare", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := c.Lookup(tt.category, tt.tool)
			if !ok {
				t.Fatalf("未找到 %s/%s", tt.category, tt.tool)
			}
			if e.TagManager != tt.tagManager {
				t.Errorf("TagManager 期望 %v, 得到 %v", tt.tagManager, e.TagManager)
			}
			if c.IsTagManager(tt.category, tt.tool) != tt.tagManager {
				t.Errorf("IsTagManager 结果不一致")
			}
		})
	}
}

func TestNew_MergesAndSorts(t *testing.T) {
	c, err := New([]models.Signature{
		{Category: models.CategoryMarketingTechnology, ToolName: "Zeta", Patterns: []string{"zeta\\.js"}},
		{Category: models.CategoryMarketingTechnology, ToolName: "Alpha", Patterns: []string{"b\\.js", "a\\.js"}},
		{Category: models.CategoryMarketingTechnology, ToolName: "Alpha", TagManager: true, Patterns: []string{"a\\.js", " c\\.js "}},
	})
	if err != nil {
		t.Fatalf("New() 失败: %v", err)
	}

	entries := c.Entries(models.CategoryMarketingTechnology)
	if len(entries) != 2 {
		t.Fatalf("期望合并为2个工具, 得到 %d", len(entries))
	}
	if entries[0].ToolName != "Alpha" || entries[1].ToolName != "Zeta" {
		t.Errorf("工具未按名称排序: %s, %s", entries[0].ToolName, entries[1].ToolName)
	}

	alpha := entries[0]
	if !alpha.TagManager {
		t.Error("合并后 TagManager 应为 true")
	}
	var pats []string
	for _, r := range alpha.Rules {
		pats = append(pats, r.Pattern)
	}
	if want := []string{"a\\.js", "b\\.js", "c\\.js"}; !reflect.DeepEqual(pats, want) {
		t.Errorf("规则期望 %v, 得到 %v", want, pats)
	}
	if c.Len() != 2 {
		t.Errorf("Len() 期望 2, 得到 %d", c.Len())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		sigs []models.Signature
	}{
		{"未知类别", []models.Signature{{Category: "analytics", ToolName: "X", Patterns: []string{"x"}}}},
		{"缺少工具名", []models.Signature{{Category: models.CategoryCDNDomains, ToolName: "  ", Patterns: []string{"x"}}}},
		{"没有规则", []models.Signature{{Category: models.CategoryCDNDomains, ToolName: "X", Patterns: []string{" "}}}},
		{"正则无效", []models.Signature{{Category: models.CategoryCDNDomains, ToolName: "X", Patterns: []string{"(unclosed"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.sigs); err == nil {
				t.Error("期望返回错误")
			}
		})
	}
}

func TestNew_OrderIndependent(t *testing.T) {
	base, err := Default()
	if err != nil {
		t.Fatalf("加载内置签名表失败: %v", err)
	}
	sigs := base.Signatures()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := make([]models.Signature, len(sigs))
		copy(shuffled, sigs)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		for _, s := range shuffled {
			rng.Shuffle(len(s.Patterns), func(a, b int) { s.Patterns[a], s.Patterns[b] = s.Patterns[b], s.Patterns[a] })
		}

		c, err := New(shuffled)
		if err != nil {
			t.Fatalf("New() 失败: %v", err)
		}
		if !reflect.DeepEqual(c.Signatures(), base.Signatures()) {
			t.Fatalf("第%d次打乱后目录内容不一致", i)
		}
	}
}

func TestRule_Find(t *testing.T) {
	c, err := New([]models.Signature{
		{Category: models.CategoryCDNDomains, ToolName: "jsDelivr", Patterns: []string{`cdn\.jsdelivr\.net`}},
	})
	if err != nil {
		t.Fatalf("New() 失败: %v", err)
	}
	rule := c.Entries(models.CategoryCDNDomains)[0].Rules[0]

	if m, ok := rule.Find("https://CDN.JSDELIVR.NET/npm/x.js"); !ok || m != "CDN.JSDELIVR.NET" {
		t.Errorf("大小写不敏感匹配失败: %q, %v", m, ok)
	}
	if _, ok := rule.Find("https://cdnXjsdelivr.net/"); ok {
		t.Error("转义的点不应匹配任意字符")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "sigs.yaml")
	content := "cookie_consent:\n  - tool_name: Osano\n    patterns: ['cmp\\.osano\\.com']\n"
	if err := os.WriteFile(good, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(good)
	if err != nil {
		t.Fatalf("Load() 失败: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("期望1个工具, 得到 %d", c.Len())
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("analytics:\n  - tool_name: X\n    patterns: ['x']\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Load(bad)
	if err == nil {
		t.Fatal("未知类别应该返回错误")
	}
	if _, ok := err.(*models.ConfigError); !ok {
		t.Errorf("期望 *models.ConfigError, 得到 %T", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("文件不存在应该返回错误")
	}

	def, err := Load("")
	if err != nil || def.Len() == 0 {
		t.Errorf("空路径应加载内置签名表: %v", err)
	}
}

func TestSignatures_Sorted(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	sigs := c.Signatures()
	if !sort.SliceIsSorted(sigs, func(i, j int) bool {
		if sigs[i].Category != sigs[j].Category {
			return sigs[i].Category.Rank() < sigs[j].Category.Rank()
		}
		return sigs[i].ToolName < sigs[j].ToolName
	}) {
		t.Error("Signatures() 应按类别顺序和工具名排序")
	}
}
