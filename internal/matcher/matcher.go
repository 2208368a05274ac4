// Package matcher 将签名目录应用到证据包上,产生检测结果
package matcher

import (
	"sort"
	"unicode/utf8"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
)

// maxMatchRunes 检测结果中保留的匹配文本最大长度
const maxMatchRunes = 120

// EligibleFields 返回某类别参与匹配的证据字段,顺序即扫描顺序
func EligibleFields(c models.Category) []models.EvidenceField {
	if c == models.CategoryCDNDomains {
		return []models.EvidenceField{models.FieldObservedRequestURLs}
	}
	return []models.EvidenceField{models.FieldScriptSources, models.FieldInlineScriptBodies}
}

// Match 对证据包执行签名匹配
//
// 每个(类别,工具)最多产生一条检测结果: 按 类别 -> 工具 -> 字段 -> 条目 -> 规则
// 的固定顺序扫描,第一条命中即停止该工具的扫描。类别之间互不影响,
// 不同工具命中同一段证据时都会输出。
func Match(bundle *models.EvidenceBundle, catalog *signatures.Catalog) []models.Detection {
	detections := []models.Detection{}
	if bundle == nil || catalog == nil {
		return detections
	}

	for _, cat := range models.AllCategories() {
		fields := EligibleFields(cat)
		for _, entry := range catalog.Entries(cat) {
			if d, ok := matchEntry(bundle, entry, fields); ok {
				detections = append(detections, d)
			}
		}
	}

	sortDetections(detections)
	return detections
}

func matchEntry(bundle *models.EvidenceBundle, entry signatures.Entry, fields []models.EvidenceField) (models.Detection, bool) {
	for _, field := range fields {
		for idx, item := range bundle.Field(field) {
			for _, rule := range entry.Rules {
				m, ok := rule.Find(item)
				if !ok {
					continue
				}
				return models.Detection{
					Category:         entry.Category,
					ToolName:         entry.ToolName,
					EvidenceLocation: models.EvidenceLocation{Field: field, Index: idx},
					Pattern:          rule.Pattern,
					Match:            truncate(m, maxMatchRunes),
				}, true
			}
		}
	}
	return models.Detection{}, false
}

func sortDetections(ds []models.Detection) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Category != ds[j].Category {
			return ds[i].Category.Rank() < ds[j].Category.Rank()
		}
		return ds[i].ToolName < ds[j].ToolName
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ToolSet 返回检测结果中的(类别,工具)集合,便于比较
func ToolSet(ds []models.Detection) map[models.Category][]string {
	out := make(map[models.Category][]string)
	for _, d := range ds {
		out[d.Category] = append(out[d.Category], d.ToolName)
	}
	for c := range out {
		sort.Strings(out[c])
	}
	return out
}
