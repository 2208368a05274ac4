package harvest

import (
	"strconv"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

const (
	maxDataLayerEntries = 500
	maxInlineScriptLen  = 200000
)

// GlobalProbe 一个全局对象探测
// Expr 返回 null 表示对象不存在
type GlobalProbe struct {
	Name     string
	Category models.Category
	Expr     string
}

// DefaultProbes 内置全局探测
var DefaultProbes = []GlobalProbe{
	{"google_tag_manager", models.CategoryMarketingTechnology,
		`window.google_tag_manager ? Object.keys(window.google_tag_manager).filter(k => /^(GTM|G|AW|UA)-/.test(k)) : null`},
	{"gtag", models.CategoryMarketingTechnology, `typeof window.gtag === 'function' ? true : null`},
	{"fbq", models.CategoryMarketingTechnology, `typeof window.fbq === 'function' ? (window.fbq.version || true) : null`},
	{"_satellite", models.CategoryMarketingTechnology, `window._satellite ? true : null`},
	{"utag", models.CategoryMarketingTechnology, `window.utag ? true : null`},
	{"analytics", models.CategoryMarketingTechnology,
		`window.analytics && typeof window.analytics.track === 'function' ? (window.analytics.VERSION || true) : null`},
	{"OnetrustActiveGroups", models.CategoryCookieConsent,
		`typeof window.OnetrustActiveGroups === 'string' ? window.OnetrustActiveGroups : null`},
	{"__tcfapi", models.CategoryCookieConsent, `typeof window.__tcfapi === 'function' ? true : null`},
	{"Cookiebot", models.CategoryCookieConsent,
		`window.Cookiebot ? { consented: !!window.Cookiebot.consented, declined: !!window.Cookiebot.declined } : null`},
	{"optimizely", models.CategoryCompetitivePosture,
		`window.optimizely && typeof window.optimizely.get === 'function' ? true : null`},
	{"_vwo_code", models.CategoryCompetitivePosture, `window._vwo_code ? true : null`},
	{"LDClient", models.CategoryCompetitivePosture, `window.LDClient ? true : null`},
}

// JS 探测脚本
func (p GlobalProbe) JS() string {
	return `() => { const v = (` + p.Expr + `); return v === undefined ? null : v; }`
}

// dataLayerJS 读取dataLayer的push历史,不存在时返回null
// gtag推送的是arguments对象,转换为数组后序列化
var dataLayerJS = `() => {
	const dl = window.dataLayer;
	if (!Array.isArray(dl)) return null;
	const seen = new WeakSet();
	const replacer = (k, v) => {
		if (typeof v === 'function') return undefined;
		if (typeof Element !== 'undefined' && v instanceof Element) return '[element]';
		if (Object.prototype.toString.call(v) === '[object Arguments]') return Array.from(v);
		if (v && typeof v === 'object') {
			if (seen.has(v)) return '[circular]';
			seen.add(v);
		}
		return v;
	};
	return JSON.parse(JSON.stringify(dl.slice(0, ` + strconv.Itoa(maxDataLayerEntries) + `), replacer));
}`

// scriptsJS 列出脚本地址和内联脚本内容
var scriptsJS = `() => {
	const src = [], inline = [];
	for (const s of Array.from(document.scripts)) {
		if (s.src) {
			src.push(s.src);
		} else if (s.textContent && s.textContent.trim()) {
			inline.push(s.textContent.slice(0, ` + strconv.Itoa(maxInlineScriptLen) + `));
		}
	}
	return { src, inline };
}`

// formsJS 在frame文档中读取表单字段,参数为该frame的document
const formsJS = `(doc) => {
	const forms = Array.from(doc.querySelectorAll('form'));
	const fields = [];
	for (const el of Array.from(doc.querySelectorAll('form input, form select, form textarea'))) {
		fields.push({ name: el.getAttribute('name') || el.id || '', type: String(el.type || el.tagName).toLowerCase() });
	}
	let action = null;
	if (forms.length > 0 && forms[0].getAttribute('action') !== null) action = forms[0].action;
	const loc = doc.location;
	return { origin: loc ? loc.origin : '', url: loc ? loc.href : '', fields, action, forms: forms.length };
}`

type scriptsResult struct {
	Src    []string `json:"src"`
	Inline []string `json:"inline"`
}

type formsResult struct {
	Origin string             `json:"origin"`
	URL    string             `json:"url"`
	Fields []models.FormField `json:"fields"`
	Action *string            `json:"action"`
	Forms  int                `json:"forms"`
}
