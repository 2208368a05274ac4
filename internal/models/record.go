package models

import (
	"encoding/json"
	"time"
)

// Status 分析记录状态
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
)

// EvidenceSummary 记录中保留的类别相关提取字段
type EvidenceSummary struct {
	DataLayer     json.RawMessage       `json:"data_layer"`
	IframeForms   []FormDescriptor      `json:"iframe_forms"`
	GlobalProbes  map[string]ProbeValue `json:"global_probes"`
	ObservedHosts []string              `json:"observed_hosts"`
	Document      DocumentSummary       `json:"document"`
	Typography    *Typography           `json:"typography,omitempty"`
	Degradations  []Degradation         `json:"degradations"`
	ScriptCount   int                   `json:"script_count"`
	RequestCount  int                   `json:"request_count"`
}

// AnalysisRecord 单个URL的分析结果,返回后不再修改
type AnalysisRecord struct {
	ID           string           `json:"analysis_id"`
	URL          string           `json:"url"`
	FinalURL     string           `json:"final_url,omitempty"`
	Status       Status           `json:"status"`
	ErrorKind    ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Detections   []Detection      `json:"detections"`
	PageTitle    *string          `json:"page_title"`
	Timestamp    time.Time        `json:"timestamp"`
	Duration     time.Duration    `json:"duration"`
	Evidence     *EvidenceSummary `json:"evidence,omitempty"`
	Crosscheck   []string         `json:"crosscheck,omitempty"`
}

// NewFailedRecord 构造失败记录
func NewFailedRecord(url string, kind ErrorKind, message string) *AnalysisRecord {
	return &AnalysisRecord{
		ID:           generateID(),
		URL:          url,
		Status:       StatusFailed,
		ErrorKind:    kind,
		ErrorMessage: message,
		Detections:   []Detection{},
		Timestamp:    time.Now().UTC(),
	}
}

// DetectionsIn 返回指定类别的检测结果
func (r *AnalysisRecord) DetectionsIn(c Category) []Detection {
	out := []Detection{}
	for _, d := range r.Detections {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// ErrorDetails 输出中的错误详情
type ErrorDetails struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// CategoryData 输出中单个类别的数据
type CategoryData struct {
	Detections    []Detection           `json:"detections"`
	DataLayer     json.RawMessage       `json:"data_layer,omitempty"`
	IframeForms   []FormDescriptor      `json:"iframe_forms,omitempty"`
	GlobalProbes  map[string]ProbeValue `json:"global_probes,omitempty"`
	ObservedHosts []string              `json:"observed_hosts,omitempty"`
}

// OutputRecord 单个URL的输出JSON结构
type OutputRecord struct {
	URL               string                    `json:"url"`
	FetchStatus       Status                    `json:"fetch_status"`
	ErrorDetails      *ErrorDetails             `json:"error_details"`
	FetchTimestampUTC string                    `json:"fetch_timestamp_utc"`
	PageTitle         *string                   `json:"page_title"`
	AnalysisID        string                    `json:"analysis_id"`
	FinalURL          string                    `json:"final_url,omitempty"`
	DurationMs        int64                     `json:"duration_ms"`
	Data              map[Category]CategoryData `json:"data"`
	Document          *DocumentSummary          `json:"document,omitempty"`
	Typography        *Typography               `json:"typography,omitempty"`
	Degradations      []Degradation             `json:"degradations,omitempty"`
	Crosscheck        []string                  `json:"crosscheck,omitempty"`
}

// Output 转换为输出结构,五个类别始终存在
func (r *AnalysisRecord) Output() OutputRecord {
	out := OutputRecord{
		URL:               r.URL,
		FetchStatus:       r.Status,
		FetchTimestampUTC: r.Timestamp.UTC().Format(time.RFC3339),
		PageTitle:         r.PageTitle,
		AnalysisID:        r.ID,
		FinalURL:          r.FinalURL,
		DurationMs:        r.Duration.Milliseconds(),
		Data:              make(map[Category]CategoryData, len(AllCategories())),
		Crosscheck:        r.Crosscheck,
	}
	if r.ErrorKind != "" {
		out.ErrorDetails = &ErrorDetails{Kind: r.ErrorKind, Message: r.ErrorMessage}
	}

	for _, c := range AllCategories() {
		data := CategoryData{Detections: r.DetectionsIn(c)}
		if ev := r.Evidence; ev != nil {
			switch c {
			case CategoryMarketingTechnology:
				data.DataLayer = ev.DataLayer
				data.IframeForms = ev.IframeForms
			case CategoryCDNDomains:
				data.ObservedHosts = ev.ObservedHosts
			}
			data.GlobalProbes = probesIn(ev.GlobalProbes, c)
		}
		out.Data[c] = data
	}

	if r.Evidence != nil {
		doc := r.Evidence.Document
		out.Document = &doc
		out.Typography = r.Evidence.Typography
		out.Degradations = r.Evidence.Degradations
	}
	return out
}

func probesIn(probes map[string]ProbeValue, c Category) map[string]ProbeValue {
	var out map[string]ProbeValue
	for name, p := range probes {
		if p.Category != c {
			continue
		}
		if out == nil {
			out = make(map[string]ProbeValue)
		}
		out[name] = p
	}
	return out
}

// CollectionMetadata 批量输出元数据
type CollectionMetadata struct {
	CollectorVersion       string `json:"collector_version"`
	CollectionTimestampUTC string `json:"collection_timestamp_utc"`
	TotalURLsProcessed     int    `json:"total_urls_processed"`
	TotalURLsSuccessful    int    `json:"total_urls_successful"`
	TotalURLsPartial       int    `json:"total_urls_partial"`
	TotalURLsFailed        int    `json:"total_urls_failed"`
}

// BatchEnvelope 批量输出文件结构
type BatchEnvelope struct {
	Metadata CollectionMetadata `json:"collection_metadata"`
	Results  []OutputRecord     `json:"url_analysis_results"`
}

// NewBatchEnvelope 由分析记录构造批量输出
func NewBatchEnvelope(version string, started time.Time, records []*AnalysisRecord) *BatchEnvelope {
	env := &BatchEnvelope{
		Metadata: CollectionMetadata{
			CollectorVersion:       version,
			CollectionTimestampUTC: started.UTC().Format(time.RFC3339),
			TotalURLsProcessed:     len(records),
		},
		Results: make([]OutputRecord, 0, len(records)),
	}
	for _, r := range records {
		switch r.Status {
		case StatusSuccess:
			env.Metadata.TotalURLsSuccessful++
		case StatusPartialSuccess:
			env.Metadata.TotalURLsPartial++
		default:
			env.Metadata.TotalURLsFailed++
		}
		env.Results = append(env.Results, r.Output())
	}
	return env
}

// ToJSON 序列化为JSON
func (e *BatchEnvelope) ToJSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
