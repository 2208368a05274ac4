package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
)

func testCatalog(t *testing.T) *signatures.Catalog {
	t.Helper()
	c, err := signatures.Default()
	if err != nil {
		t.Fatalf("加载内置签名表失败: %v", err)
	}
	return c
}

func gtmDetection() models.Detection {
	return models.Detection{
		Category:         models.CategoryMarketingTechnology,
		ToolName:         "Google Tag Manager",
		EvidenceLocation: models.EvidenceLocation{Field: models.FieldScriptSources, Index: 0},
		Pattern:          `googletagmanager\.com`,
		Match:            "googletagmanager.com",
	}
}

func TestAssemble_Status(t *testing.T) {
	catalog := testCatalog(t)
	dl := json.RawMessage(`[{"event":"gtm.js"}]`)

	tests := []struct {
		name   string
		in     AssembleInput
		status models.Status
		kind   models.ErrorKind
	}{
		{
			name: "全部证据完整",
			in: AssembleInput{
				Bundle:     &models.EvidenceBundle{DataLayerDump: dl},
				Detections: []models.Detection{gtmDetection()},
			},
			status: models.StatusSuccess,
		},
		{
			name:   "没有检测结果也是成功",
			in:     AssembleInput{Bundle: &models.EvidenceBundle{}},
			status: models.StatusSuccess,
		},
		{
			name: "iframe不可访问",
			in: AssembleInput{Bundle: &models.EvidenceBundle{
				IframeForms: []models.FormDescriptor{{Accessible: true}, {Accessible: false, Error: "blocked"}},
			}},
			status: models.StatusPartialSuccess,
		},
		{
			name: "存在降级",
			in: AssembleInput{Bundle: &models.EvidenceBundle{
				Degradations: []models.Degradation{{Field: models.FieldGlobalProbes, Kind: models.ErrEvaluationError}},
			}},
			status: models.StatusPartialSuccess,
		},
		{
			name: "标签管理工具缺少dataLayer",
			in: AssembleInput{
				Bundle:     &models.EvidenceBundle{},
				Detections: []models.Detection{gtmDetection()},
			},
			status: models.StatusPartialSuccess,
		},
		{
			name:   "采集失败",
			in:     AssembleInput{HarvestErr: models.NewAnalysisError(models.ErrChallengeUnresolved, "still challenged", nil)},
			status: models.StatusFailed,
			kind:   models.ErrChallengeUnresolved,
		},
		{
			name:   "无类型错误",
			in:     AssembleInput{HarvestErr: errors.New("unexpected")},
			status: models.StatusFailed,
			kind:   models.ErrInternal,
		},
		{
			name: "文档无法解析",
			in: AssembleInput{
				Artifacts: &harvest.Artifacts{Title: "Oops"},
				BuildErr:  models.NewAnalysisError(models.ErrMalformedDocument, "empty", nil),
			},
			status: models.StatusFailed,
			kind:   models.ErrMalformedDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.URL = "https://a.test/"
			tt.in.Catalog = catalog
			rec := Assemble(tt.in)
			if rec.Status != tt.status {
				t.Errorf("状态 期望 %s, 得到 %s", tt.status, rec.Status)
			}
			if rec.ErrorKind != tt.kind {
				t.Errorf("错误类型 期望 %q, 得到 %q", tt.kind, rec.ErrorKind)
			}
			if rec.ID == "" {
				t.Error("缺少分析ID")
			}
			if rec.Status == models.StatusFailed && (len(rec.Detections) != 0 || rec.Evidence != nil) {
				t.Error("失败记录不应包含检测结果和证据")
			}
			if rec.Status == models.StatusPartialSuccess && len(rec.Evidence.Degradations) == 0 && !anyInaccessible(rec.Evidence.IframeForms) {
				t.Error("部分成功必须有降级的证据字段")
			}
		})
	}
}

func TestAssemble_EvidenceSummary(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))
	rec := Assemble(AssembleInput{
		URL:       "https://a.test/",
		StartedAt: started,
		Catalog:   testCatalog(t),
		Bundle: &models.EvidenceBundle{
			FinalURL:      "https://www.a.test/",
			PageTitle:     "A",
			ScriptSources: []string{"https://x.test/1.js"},
			ObservedRequestURLs: []string{
				"https://www.a.test/",
				"https://CDN.X.test/1.js",
				"https://cdn.x.test/2.js",
				"https://fonts.gstatic.com/a.woff2",
			},
		},
	})

	if rec.FinalURL != "https://www.a.test/" {
		t.Errorf("FinalURL 得到 %s", rec.FinalURL)
	}
	if rec.PageTitle == nil || *rec.PageTitle != "A" {
		t.Errorf("标题 得到 %v", rec.PageTitle)
	}
	if rec.Timestamp.Location() != time.UTC {
		t.Error("时间戳应为UTC")
	}
	want := []string{"cdn.x.test", "fonts.gstatic.com", "www.a.test"}
	if !reflect.DeepEqual(rec.Evidence.ObservedHosts, want) {
		t.Errorf("主机 期望 %v, 得到 %v", want, rec.Evidence.ObservedHosts)
	}
	if rec.Evidence.RequestCount != 4 || rec.Evidence.ScriptCount != 1 {
		t.Errorf("计数错误: %+v", rec.Evidence)
	}
}

func TestAssemble_EmptyTitleIsNull(t *testing.T) {
	rec := Assemble(AssembleInput{URL: "https://a.test/", Bundle: &models.EvidenceBundle{}})
	if rec.PageTitle != nil {
		t.Errorf("空标题应为nil, 得到 %q", *rec.PageTitle)
	}
}
