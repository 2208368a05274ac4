package harvest

import "strings"

// ChallengeMarker 命中的验证页标记
type ChallengeMarker struct {
	Where  string // title, body, script
	Marker string
}

var (
	challengeTitleMarkers = []string{
		"just a moment...",
		"checking your browser",
		"please wait",
		"attention required! | cloudflare",
		"ddos-guard",
		"verifying you are human",
	}
	challengeBodyMarkers = []string{
		"cf-browser-verification",
		"id=\"challenge-running\"",
		"id=\"challenge-form\"",
		"cf-chl-widget",
		"px-captcha",
		"captcha-delivery.com",
	}
	challengeScriptMarkers = []string{
		"/cdn-cgi/challenge-platform/h/",
		"_cf_chl_opt",
		"window._cf_chl",
	}
)

// DetectChallenge 检查文档是否为反爬验证页
// 标题、正文、脚本三类标记任一命中即视为验证页
func DetectChallenge(title, html string) (ChallengeMarker, bool) {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, m := range challengeTitleMarkers {
		if strings.Contains(t, m) {
			return ChallengeMarker{Where: "title", Marker: m}, true
		}
	}

	body := strings.ToLower(html)
	for _, m := range challengeBodyMarkers {
		if strings.Contains(body, m) {
			return ChallengeMarker{Where: "body", Marker: m}, true
		}
	}
	for _, m := range challengeScriptMarkers {
		if strings.Contains(body, m) {
			return ChallengeMarker{Where: "script", Marker: m}, true
		}
	}
	return ChallengeMarker{}, false
}
