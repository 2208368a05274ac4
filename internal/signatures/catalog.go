// Package signatures 提供不可变的分类技术签名目录
package signatures

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

// Rule 一条已编译的匹配规则,大小写不敏感的包含匹配
type Rule struct {
	Pattern string
	re      *regexp.Regexp
}

// Find 在s中查找规则,返回第一处匹配文本
func (r Rule) Find(s string) (string, bool) {
	loc := r.re.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	return s[loc[0]:loc[1]], true
}

// Entry 目录中一个工具的签名
type Entry struct {
	Category   models.Category
	ToolName   string
	TagManager bool
	Rules      []Rule
}

type entryKey struct {
	category models.Category
	tool     string
}

// Catalog 不可变签名目录
// 构造后只读,可在多个分析之间安全共享
type Catalog struct {
	entries map[models.Category][]Entry
	index   map[entryKey]int
	size    int
}

// New 由签名列表构造目录
// 同一类别下同名工具的规则合并去重;工具和规则都按字典序排列,
// 因此输入顺序不影响扫描顺序
func New(sigs []models.Signature) (*Catalog, error) {
	type pending struct {
		tagManager bool
		patterns   map[string]struct{}
	}
	merged := make(map[entryKey]*pending)

	for i, sig := range sigs {
		if !sig.Category.Valid() {
			return nil, fmt.Errorf("第%d个签名类别无效: %q", i+1, sig.Category)
		}
		name := strings.TrimSpace(sig.ToolName)
		if name == "" {
			return nil, fmt.Errorf("第%d个签名(%s)缺少tool_name", i+1, sig.Category)
		}
		key := entryKey{sig.Category, name}
		p, ok := merged[key]
		if !ok {
			p = &pending{patterns: make(map[string]struct{})}
			merged[key] = p
		}
		p.tagManager = p.tagManager || sig.TagManager
		for _, pat := range sig.Patterns {
			if pat = strings.TrimSpace(pat); pat != "" {
				p.patterns[pat] = struct{}{}
			}
		}
	}

	c := &Catalog{
		entries: make(map[models.Category][]Entry),
		index:   make(map[entryKey]int),
	}
	for key, p := range merged {
		if len(p.patterns) == 0 {
			return nil, fmt.Errorf("签名 %s/%s 没有任何匹配规则", key.category, key.tool)
		}
		patterns := make([]string, 0, len(p.patterns))
		for pat := range p.patterns {
			patterns = append(patterns, pat)
		}
		sort.Strings(patterns)

		rules := make([]Rule, 0, len(patterns))
		for _, pat := range patterns {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				return nil, fmt.Errorf("签名 %s/%s 规则 %q 编译失败: %w", key.category, key.tool, pat, err)
			}
			rules = append(rules, Rule{Pattern: pat, re: re})
		}
		c.entries[key.category] = append(c.entries[key.category], Entry{
			Category:   key.category,
			ToolName:   key.tool,
			TagManager: p.tagManager,
			Rules:      rules,
		})
	}

	for cat, list := range c.entries {
		sort.Slice(list, func(i, j int) bool { return list[i].ToolName < list[j].ToolName })
		for i, e := range list {
			c.index[entryKey{cat, e.ToolName}] = i
		}
		c.size += len(list)
	}
	return c, nil
}

// Entries 返回某类别的签名(按工具名排序)
func (c *Catalog) Entries(cat models.Category) []Entry {
	list := c.entries[cat]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Lookup 查找指定类别下的工具
func (c *Catalog) Lookup(cat models.Category, tool string) (Entry, bool) {
	i, ok := c.index[entryKey{cat, tool}]
	if !ok {
		return Entry{}, false
	}
	return c.entries[cat][i], true
}

// IsTagManager 工具是否为标签管理工具
func (c *Catalog) IsTagManager(cat models.Category, tool string) bool {
	e, ok := c.Lookup(cat, tool)
	return ok && e.TagManager
}

// Len 目录中的工具总数
func (c *Catalog) Len() int {
	return c.size
}

// Signatures 以原始形式导出目录,顺序为类别顺序+工具名
func (c *Catalog) Signatures() []models.Signature {
	out := make([]models.Signature, 0, c.size)
	for _, cat := range models.AllCategories() {
		for _, e := range c.entries[cat] {
			patterns := make([]string, len(e.Rules))
			for i, r := range e.Rules {
				patterns[i] = r.Pattern
			}
			out = append(out, models.Signature{
				Category:   cat,
				ToolName:   e.ToolName,
				TagManager: e.TagManager,
				Patterns:   patterns,
			})
		}
	}
	return out
}
