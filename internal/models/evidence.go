package models

import (
	"encoding/json"
	"net/http"
)

// EvidenceField 证据字段名,用于标注检测结果来源
type EvidenceField string

const (
	FieldScriptSources       EvidenceField = "script_sources"
	FieldInlineScriptBodies  EvidenceField = "inline_script_bodies"
	FieldObservedRequestURLs EvidenceField = "observed_request_urls"
	FieldDataLayer           EvidenceField = "data_layer_dump"
	FieldIframeForms         EvidenceField = "iframe_forms"
	FieldGlobalProbes        EvidenceField = "global_probe_results"
)

// FormField 表单字段
type FormField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FormDescriptor 单个frame的表单描述
// Accessible=false 表示跨域iframe阻止了检查,不视为致命错误
type FormDescriptor struct {
	FrameOrigin string      `json:"frame_origin"`
	FrameURL    string      `json:"frame_url,omitempty"`
	Depth       int         `json:"depth"`
	Accessible  bool        `json:"accessible"`
	Fields      []FormField `json:"fields"`
	ActionURL   *string     `json:"action_url"`
	Error       string      `json:"error,omitempty"`
}

// ProbeValue 全局变量探测结果,Value为nil表示不存在
type ProbeValue struct {
	Category Category        `json:"category"`
	Value    json.RawMessage `json:"value"`
}

// Present 探测的全局对象是否存在
func (p ProbeValue) Present() bool {
	return len(p.Value) > 0 && string(p.Value) != "null"
}

// Degradation 某个证据字段的降级记录
type Degradation struct {
	Field   EvidenceField `json:"field"`
	Kind    ErrorKind     `json:"kind"`
	Message string        `json:"message"`
}

// MetaTag meta标签
type MetaTag struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// Heading 标题标签
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Image 图片属性
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}

// Icon 图标链接
type Icon struct {
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
	Sizes string `json:"sizes,omitempty"`
}

// VisualAssets 品牌视觉资源, 未找到的项为空
type VisualAssets struct {
	Logo       *Image `json:"logo"`
	Favicon    *Icon  `json:"favicon"`
	TouchIcons []Icon `json:"touch_icons"`
	OGImage    string `json:"og_image,omitempty"` // og:image, 缺失时取twitter:image
}

// DocumentSummary 渲染后HTML的结构化摘要,供报告使用
type DocumentSummary struct {
	Lang     string            `json:"lang,omitempty"`
	Headings []Heading         `json:"headings"`
	Meta     []MetaTag         `json:"meta"`
	JSONLD   []json.RawMessage `json:"json_ld"`
	Images   []Image           `json:"images"`
	Assets   VisualAssets      `json:"assets"`
}

// Typography 由网络请求识别的字体服务
type Typography struct {
	WebFontServices   []string `json:"web_font_services"`
	GoogleFonts       []string `json:"google_fonts"`
	CustomFontsLoaded []string `json:"custom_fonts_loaded"`
}

// EvidenceBundle 一次页面访问的证据快照
// 构建后不可修改,只被一次匹配过程消费
type EvidenceBundle struct {
	URL                 string
	FinalURL            string
	PageTitle           string
	ScriptSources       []string
	InlineScriptBodies  []string
	ObservedRequestURLs []string
	RenderedHTML        string
	DataLayerDump       json.RawMessage // nil 表示不存在
	IframeForms         []FormDescriptor
	GlobalProbeResults  map[string]ProbeValue
	DocumentHeaders     http.Header
	Document            DocumentSummary
	Degradations        []Degradation
}

// Field 按字段名取出可匹配的字符串列表
func (b *EvidenceBundle) Field(f EvidenceField) []string {
	switch f {
	case FieldScriptSources:
		return b.ScriptSources
	case FieldInlineScriptBodies:
		return b.InlineScriptBodies
	case FieldObservedRequestURLs:
		return b.ObservedRequestURLs
	}
	return nil
}

// HasDataLayer 数据层是否存在
func (b *EvidenceBundle) HasDataLayer() bool {
	return len(b.DataLayerDump) > 0 && string(b.DataLayerDump) != "null"
}

// EvidenceLocation 检测结果在证据包中的位置
type EvidenceLocation struct {
	Field EvidenceField `json:"field"`
	Index int           `json:"index"`
}

// Detection 一条检测结果
type Detection struct {
	Category         Category         `json:"category"`
	ToolName         string           `json:"tool_name"`
	EvidenceLocation EvidenceLocation `json:"evidence_location"`
	Pattern          string           `json:"pattern"`
	Match            string           `json:"match"`
}
