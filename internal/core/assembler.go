package core

import (
	"errors"
	"sort"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/google/uuid"
)

// AssembleInput 组装一条分析记录所需的全部结果
type AssembleInput struct {
	URL        string
	StartedAt  time.Time
	Artifacts  *harvest.Artifacts
	HarvestErr error
	Bundle     *models.EvidenceBundle
	BuildErr   error
	Detections []models.Detection
	Catalog    *signatures.Catalog
	Crosscheck []string
	Typography *models.Typography
}

// Assemble 分类并组装分析记录
//   - 采集或提取失败: Failed, 检测结果为空
//   - 任一iframe不可访问、存在降级、或检测到标签管理工具但dataLayer不存在: PartialSuccess
//   - 其余: Success
func Assemble(in AssembleInput) *models.AnalysisRecord {
	started := in.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	rec := &models.AnalysisRecord{
		ID:         uuid.New().String(),
		URL:        in.URL,
		Detections: []models.Detection{},
		Timestamp:  started.UTC(),
		Duration:   time.Since(started),
	}
	if in.Artifacts != nil {
		rec.FinalURL = in.Artifacts.FinalURL
	}

	if err := firstError(in.HarvestErr, in.BuildErr); err != nil || in.Bundle == nil {
		if err == nil {
			err = errors.New("证据包为空")
		}
		rec.Status = models.StatusFailed
		rec.ErrorKind = models.KindOf(err)
		rec.ErrorMessage = err.Error()
		if in.Artifacts != nil && in.Artifacts.Title != "" {
			title := in.Artifacts.Title
			rec.PageTitle = &title
		}
		return rec
	}

	b := in.Bundle
	if b.FinalURL != "" {
		rec.FinalURL = b.FinalURL
	}
	if b.PageTitle != "" {
		title := b.PageTitle
		rec.PageTitle = &title
	}
	if in.Detections != nil {
		rec.Detections = append(rec.Detections, in.Detections...)
	}
	rec.Crosscheck = in.Crosscheck

	degradations := append([]models.Degradation{}, b.Degradations...)
	if d, ok := missingDataLayer(b, rec.Detections, in.Catalog); ok && !hasDegradation(degradations, models.FieldDataLayer) {
		degradations = append(degradations, d)
	}

	rec.Evidence = &models.EvidenceSummary{
		DataLayer:     b.DataLayerDump,
		IframeForms:   b.IframeForms,
		GlobalProbes:  b.GlobalProbeResults,
		ObservedHosts: observedHosts(b.ObservedRequestURLs),
		Document:      b.Document,
		Typography:    in.Typography,
		Degradations:  degradations,
		ScriptCount:   len(b.ScriptSources) + len(b.InlineScriptBodies),
		RequestCount:  len(b.ObservedRequestURLs),
	}

	rec.Status = models.StatusSuccess
	if len(degradations) > 0 || anyInaccessible(b.IframeForms) {
		rec.Status = models.StatusPartialSuccess
	}
	return rec
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// missingDataLayer 检测到标签管理工具但页面没有dataLayer
func missingDataLayer(b *models.EvidenceBundle, ds []models.Detection, catalog *signatures.Catalog) (models.Degradation, bool) {
	if b.HasDataLayer() || catalog == nil {
		return models.Degradation{}, false
	}
	for _, d := range ds {
		if catalog.IsTagManager(d.Category, d.ToolName) {
			return models.Degradation{
				Field:   models.FieldDataLayer,
				Kind:    models.ErrEvaluationError,
				Message: "检测到标签管理工具 " + d.ToolName + " 但dataLayer不存在",
			}, true
		}
	}
	return models.Degradation{}, false
}

func hasDegradation(ds []models.Degradation, f models.EvidenceField) bool {
	for _, d := range ds {
		if d.Field == f {
			return true
		}
	}
	return false
}

func anyInaccessible(forms []models.FormDescriptor) bool {
	for _, f := range forms {
		if !f.Accessible {
			return true
		}
	}
	return false
}

// observedHosts 请求地址中去重排序后的主机名
func observedHosts(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	hosts := make([]string, 0, len(urls))
	for _, u := range urls {
		h := models.HostOf(u)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
