// Package evidence 将采集产物规范化为证据包
package evidence

import (
	"bytes"
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"golang.org/x/net/html"
)

const (
	maxImages          = 50
	maxInlineScriptLen = 200000
	maxHeadingLen      = 300
)

// Build 由采集产物构建证据包,不做任何I/O
// 空文档或缺少html/body根元素时返回MalformedDocument
func Build(a *harvest.Artifacts) (*models.EvidenceBundle, error) {
	if a == nil {
		return nil, models.NewAnalysisError(models.ErrInternal, "采集产物为空", nil)
	}
	if strings.TrimSpace(a.HTML) == "" {
		return nil, models.NewAnalysisError(models.ErrMalformedDocument, "渲染后的HTML为空", nil)
	}
	if !hasDocumentRoot(a.HTML) {
		return nil, models.NewAnalysisError(models.ErrMalformedDocument, "HTML缺少html/body根元素", nil)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.HTML))
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrMalformedDocument, "解析HTML失败", err)
	}

	finalURL := a.FinalURL
	if finalURL == "" {
		finalURL = a.RequestedURL
	}
	base, _ := url.Parse(finalURL)

	srcs, inline := scriptTags(doc, base)

	b := &models.EvidenceBundle{
		URL:                 a.RequestedURL,
		FinalURL:            finalURL,
		PageTitle:           strings.TrimSpace(a.Title),
		ScriptSources:       mergeDistinct(a.ScriptSources, srcs),
		InlineScriptBodies:  mergeDistinct(a.InlineScripts, inline),
		ObservedRequestURLs: mergeDistinct(a.RequestURLs, nil),
		RenderedHTML:        a.HTML,
		DataLayerDump:       cloneRaw(a.DataLayer),
		IframeForms:         append([]models.FormDescriptor{}, a.Frames...),
		GlobalProbeResults:  make(map[string]models.ProbeValue, len(a.Probes)),
		DocumentHeaders:     a.DocumentHeaders.Clone(),
		Document:            summarize(doc, base),
		Degradations:        append([]models.Degradation{}, a.Degradations...),
	}
	if b.PageTitle == "" {
		b.PageTitle = strings.TrimSpace(doc.Find("title").First().Text())
	}
	for name, pv := range a.Probes {
		b.GlobalProbeResults[name] = models.ProbeValue{Category: pv.Category, Value: cloneRaw(pv.Value)}
	}
	return b, nil
}

// hasDocumentRoot 原始标记中是否出现html或body开始标签
// goquery解析时会自动补全根元素,因此在解析前用分词器检查
func hasDocumentRoot(s string) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "html", "body":
				return true
			}
		}
	}
}

// scriptTags 从渲染后的HTML读取脚本地址和内联脚本
func scriptTags(doc *goquery.Document, base *url.URL) (srcs, inline []string) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if abs := resolve(base, src); abs != "" {
				srcs = append(srcs, abs)
			}
			return
		}
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if typ == "application/ld+json" || typ == "application/json" || strings.HasPrefix(typ, "text/template") {
			return
		}
		body := strings.TrimSpace(s.Text())
		if body == "" {
			return
		}
		body = truncateBytes(body, maxInlineScriptLen)
		inline = append(inline, body)
	})
	return srcs, inline
}

func summarize(doc *goquery.Document, base *url.URL) models.DocumentSummary {
	sum := models.DocumentSummary{
		Lang:     strings.TrimSpace(doc.Find("html").First().AttrOr("lang", "")),
		Headings: []models.Heading{},
		Meta:     []models.MetaTag{},
		JSONLD:   []json.RawMessage{},
		Images:   []models.Image{},
	}

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		if r := []rune(text); len(r) > maxHeadingLen {
			text = string(r[:maxHeadingLen])
		}
		level := int(goquery.NodeName(s)[1] - '0')
		sum.Headings = append(sum.Headings, models.Heading{Level: level, Text: text})
	})

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		key := ""
		for _, attr := range []string{"name", "property", "http-equiv", "itemprop"} {
			if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
				key = v
				break
			}
		}
		if key == "" {
			return
		}
		sum.Meta = append(sum.Meta, models.MetaTag{Key: key, Content: strings.TrimSpace(content)})
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := bytes.TrimSpace([]byte(s.Text()))
		if len(raw) == 0 || !json.Valid(raw) {
			return
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return
		}
		sum.JSONLD = append(sum.JSONLD, json.RawMessage(buf.Bytes()))
	})

	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(sum.Images) >= maxImages {
			return false
		}
		src := s.AttrOr("src", "")
		if src == "" {
			src = s.AttrOr("data-src", "")
		}
		if abs := resolve(base, src); abs != "" {
			src = abs
		}
		if src == "" {
			return true
		}
		sum.Images = append(sum.Images, models.Image{
			Src:    src,
			Alt:    strings.TrimSpace(s.AttrOr("alt", "")),
			Width:  s.AttrOr("width", ""),
			Height: s.AttrOr("height", ""),
		})
		return true
	})

	sum.Assets = visualAssets(doc, base, sum.Meta)
	return sum
}

// logoMatchers 按优先级排列的logo图片判断规则
var logoMatchers = []func(*goquery.Selection) bool{
	func(s *goquery.Selection) bool { return attrHasLogo(s, "class") },
	func(s *goquery.Selection) bool { return attrHasLogo(s, "id") },
	func(s *goquery.Selection) bool {
		return s.ParentsFiltered("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return attrHasLogo(a, "class")
		}).Length() > 0
	},
	func(s *goquery.Selection) bool { return s.ParentsFiltered(".logo, #logo").Length() > 0 },
	func(s *goquery.Selection) bool { return s.ParentsFiltered("header").Length() > 0 },
	func(s *goquery.Selection) bool { return s.ParentsFiltered("nav").Length() > 0 },
}

func attrHasLogo(s *goquery.Selection, attr string) bool {
	return strings.Contains(strings.ToLower(s.AttrOr(attr, "")), "logo")
}

// visualAssets 提取logo、favicon、触屏图标和分享图片
func visualAssets(doc *goquery.Document, base *url.URL, meta []models.MetaTag) models.VisualAssets {
	assets := models.VisualAssets{TouchIcons: []models.Icon{}}

	imgs := doc.Find("img").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.AttrOr("src", "")) != ""
	})
	for _, match := range logoMatchers {
		logo := imgs.FilterFunction(func(_ int, s *goquery.Selection) bool { return match(s) }).First()
		if logo.Length() == 0 {
			continue
		}
		assets.Logo = &models.Image{
			Src:    absOrRaw(base, logo.AttrOr("src", "")),
			Alt:    strings.TrimSpace(logo.AttrOr("alt", "")),
			Width:  logo.AttrOr("width", ""),
			Height: logo.AttrOr("height", ""),
		}
		break
	}

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		rels := strings.Fields(strings.ToLower(s.AttrOr("rel", "")))
		switch {
		case slices.Contains(rels, "apple-touch-icon"):
			assets.TouchIcons = append(assets.TouchIcons, models.Icon{
				URL:   absOrRaw(base, href),
				Sizes: s.AttrOr("sizes", ""),
			})
		case slices.Contains(rels, "icon") && assets.Favicon == nil:
			assets.Favicon = &models.Icon{URL: absOrRaw(base, href), Type: s.AttrOr("type", "")}
		}
	})

	og, twitter := "", ""
	for _, m := range meta {
		switch strings.ToLower(m.Key) {
		case "og:image":
			if og == "" {
				og = m.Content
			}
		case "twitter:image":
			if twitter == "" {
				twitter = m.Content
			}
		}
	}
	if og == "" {
		og = twitter
	}
	if og != "" {
		assets.OGImage = absOrRaw(base, og)
	}
	return assets
}

func absOrRaw(base *url.URL, ref string) string {
	if abs := resolve(base, ref); abs != "" {
		return abs
	}
	return ref
}

// mergeDistinct 合并两个列表,去重并保持首次出现顺序,结果非nil
func mergeDistinct(first, second []string) []string {
	out := make([]string, 0, len(first)+len(second))
	seen := make(map[string]struct{}, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, s := range list {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func resolve(base *url.URL, ref string) string {
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

// truncateBytes 截断到不超过n字节, 不拆分UTF-8字符
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cloneRaw(v []byte) json.RawMessage {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
