package harvest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
)

// State 单个URL采集的状态
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateChallengeCheck
	StateChallengeWaiting
	StateLoaded
	StateEvaluating
	StateDone
	StateFailed
)

// String 实现fmt.Stringer
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateNavigating:
		return "Navigating"
	case StateChallengeCheck:
		return "ChallengeCheck"
	case StateChallengeWaiting:
		return "ChallengeWaiting"
	case StateLoaded:
		return "Loaded"
	case StateEvaluating:
		return "Evaluating"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options 采集参数,每个等待点都有独立的超时
type Options struct {
	NavigationTimeout        time.Duration
	SettleTime               time.Duration
	EvaluationTimeout        time.Duration
	ChallengeRecheckInterval time.Duration
	ChallengeMaxRechecks     int
	IframeMaxDepth           int
	MaxFrames                int
	Probes                   []GlobalProbe
}

// DefaultOptions 默认采集参数
func DefaultOptions() Options {
	return Options{
		NavigationTimeout:        90 * time.Second,
		SettleTime:               2 * time.Second,
		EvaluationTimeout:        5 * time.Second,
		ChallengeRecheckInterval: 5 * time.Second,
		ChallengeMaxRechecks:     3,
		IframeMaxDepth:           2,
		MaxFrames:                20,
		Probes:                   DefaultProbes,
	}
}

// Artifacts 一次采集的原始产物
type Artifacts struct {
	RequestedURL    string
	FinalURL        string
	Title           string
	HTML            string
	ScriptSources   []string
	InlineScripts   []string
	RequestURLs     []string
	DocumentHeaders http.Header
	DataLayer       []byte // JSON, nil 表示不存在
	Probes          map[string]models.ProbeValue
	Frames          []models.FormDescriptor
	Degradations    []models.Degradation
	StartedAt       time.Time
	Duration        time.Duration
	Rechecks        int
}

// TransitionHook 状态转换回调
type TransitionHook func(url string, from, to State)

// Option Harvester选项
type Option func(*Harvester)

// WithTransitionHook 观察每一次状态转换
func WithTransitionHook(hook TransitionHook) Option {
	return func(h *Harvester) { h.hook = hook }
}

// WithSleeper 替换验证页等待函数
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Harvester) { h.sleep = sleep }
}

// Harvester 页面证据采集器
// 每个URL打开一个新会话,完成后关闭,不跨URL复用
type Harvester struct {
	browser Browser
	opts    Options
	hook    TransitionHook
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewHarvester 创建采集器
func NewHarvester(browser Browser, opts Options, options ...Option) *Harvester {
	if opts.Probes == nil {
		opts.Probes = DefaultProbes
	}
	h := &Harvester{
		browser: browser,
		opts:    opts,
		sleep:   sleepContext,
	}
	for _, o := range options {
		o(h)
	}
	return h
}

// Options 返回采集参数
func (h *Harvester) Options() Options {
	return h.opts
}

// Harvest 采集单个URL
// 返回的错误总是 *models.AnalysisError
func (h *Harvester) Harvest(ctx context.Context, url string) (*Artifacts, error) {
	sess, err := h.browser.NewSession(ctx)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrInternal, "创建浏览器会话失败", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			utils.Debugf("关闭浏览器会话失败 [%s]: %v", url, cerr)
		}
	}()

	r := &run{
		h:       h,
		session: sess,
		url:     url,
		state:   StateIdle,
		art: &Artifacts{
			RequestedURL: url,
			StartedAt:    time.Now(),
			Probes:       make(map[string]models.ProbeValue),
		},
	}
	return r.execute(ctx)
}

// run 一次采集的状态机
type run struct {
	h       *Harvester
	session Session
	url     string
	state   State
	err     *models.AnalysisError
	art     *Artifacts
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	utils.Debugf("采集状态 [%s]: %s -> %s", r.url, from, to)
	if r.h.hook != nil {
		r.h.hook(r.url, from, to)
	}
}

func (r *run) fail(kind models.ErrorKind, msg string, err error) {
	r.err = models.NewAnalysisError(kind, msg, err)
	r.transition(StateFailed)
}

func (r *run) execute(ctx context.Context) (*Artifacts, error) {
	opts := r.h.opts
	for {
		if r.state != StateDone && r.state != StateFailed && ctx.Err() != nil {
			r.fail(models.ErrInternal, "分析被取消", ctx.Err())
		}

		switch r.state {
		case StateIdle:
			r.transition(StateNavigating)

		case StateNavigating:
			navCtx, cancel := context.WithTimeout(ctx, opts.NavigationTimeout)
			err := r.session.Navigate(navCtx, r.url)
			timedOut := navCtx.Err() == context.DeadlineExceeded
			cancel()
			switch {
			case err == nil:
				r.transition(StateChallengeCheck)
			case ctx.Err() != nil:
				r.fail(models.ErrInternal, "分析被取消", ctx.Err())
			case timedOut || isTimeout(err):
				r.fail(models.ErrNavigationTimeout, fmt.Sprintf("导航超时(%s)", opts.NavigationTimeout), err)
			default:
				r.fail(models.ErrNavigationFailed, "导航失败", err)
			}

		case StateChallengeCheck:
			title, html, err := r.readDocument(ctx)
			if err != nil {
				r.fail(models.ErrNavigationFailed, "读取页面内容失败", err)
				continue
			}
			r.art.Title, r.art.HTML = title, html
			marker, challenged := DetectChallenge(title, html)
			if !challenged {
				r.transition(StateLoaded)
				continue
			}
			if r.art.Rechecks >= opts.ChallengeMaxRechecks {
				r.fail(models.ErrChallengeUnresolved,
					fmt.Sprintf("验证页在%d次复查后仍未通过(%s: %s)", r.art.Rechecks, marker.Where, marker.Marker), nil)
				continue
			}
			utils.Infof("检测到验证页 [%s] %s: %q, 等待%s后复查", r.url, marker.Where, marker.Marker, opts.ChallengeRecheckInterval)
			r.transition(StateChallengeWaiting)

		case StateChallengeWaiting:
			if err := r.h.sleep(ctx, opts.ChallengeRecheckInterval); err != nil {
				r.fail(models.ErrInternal, "分析被取消", err)
				continue
			}
			r.art.Rechecks++
			r.transition(StateChallengeCheck)

		case StateLoaded:
			if opts.SettleTime > 0 {
				if err := r.session.WaitStable(ctx, opts.SettleTime); err != nil {
					utils.Debugf("DOM未稳定,使用当前DOM [%s]: %v", r.url, err)
				}
			}
			r.transition(StateEvaluating)

		case StateEvaluating:
			r.evaluate(ctx)
			r.transition(StateDone)

		case StateDone:
			r.finish(ctx)
			return r.art, nil

		case StateFailed:
			r.art.Duration = time.Since(r.art.StartedAt)
			return nil, r.err
		}
	}
}

func (r *run) readDocument(ctx context.Context) (string, string, error) {
	rctx, cancel := context.WithTimeout(ctx, r.h.opts.EvaluationTimeout)
	defer cancel()

	title, err := r.session.Title(rctx)
	if err != nil {
		utils.Debugf("读取标题失败 [%s]: %v", r.url, err)
		title = ""
	}
	html, err := r.session.HTML(rctx)
	if err != nil {
		return "", "", err
	}
	return title, html, nil
}

func (r *run) degrade(field models.EvidenceField, kind models.ErrorKind, msg string) {
	utils.Debugf("证据降级 [%s] %s(%s): %s", r.url, field, kind, msg)
	r.art.Degradations = append(r.art.Degradations, models.Degradation{Field: field, Kind: kind, Message: msg})
}

// evaluate 页面内的有界求值,失败只降级对应字段
func (r *run) evaluate(ctx context.Context) {
	timeout := r.h.opts.EvaluationTimeout

	var scripts scriptsResult
	if res := r.session.Evaluate(ctx, scriptsJS, timeout); res.Status == EvalOK {
		if err := res.Decode(&scripts); err != nil {
			utils.Debugf("解析脚本列表失败 [%s]: %v", r.url, err)
		}
	} else {
		// 脚本标签会从渲染后的HTML中补充
		utils.Debugf("读取脚本列表失败 [%s]: %s %v", r.url, res.Status, res.Err)
	}
	r.art.ScriptSources = scripts.Src
	r.art.InlineScripts = scripts.Inline

	res := r.session.Evaluate(ctx, dataLayerJS, timeout)
	if res.Status == EvalOK {
		r.art.DataLayer = res.Value
	} else {
		r.degrade(models.FieldDataLayer, models.ErrEvaluationError, res.Error().Error())
	}

	var failed []string
	for _, p := range r.h.opts.Probes {
		pr := r.session.Evaluate(ctx, p.JS(), timeout)
		pv := models.ProbeValue{Category: p.Category}
		if pr.Status == EvalOK {
			pv.Value = pr.Value
		} else {
			failed = append(failed, p.Name)
		}
		r.art.Probes[p.Name] = pv
	}
	if len(failed) > 0 {
		r.degrade(models.FieldGlobalProbes, models.ErrEvaluationError,
			fmt.Sprintf("%d个探测失败: %s", len(failed), strings.Join(failed, ", ")))
	}

	r.art.Frames = r.walkFrames(ctx)
}

// finish 收集最终DOM和网络请求
func (r *run) finish(ctx context.Context) {
	if title, html, err := r.readDocument(ctx); err == nil {
		r.art.HTML = html
		if title != "" {
			r.art.Title = title
		}
	} else {
		utils.Debugf("读取最终DOM失败,使用验证检查时的DOM [%s]: %v", r.url, err)
	}

	r.art.FinalURL = r.session.URL()
	if r.art.FinalURL == "" {
		r.art.FinalURL = r.url
	}
	r.art.DocumentHeaders = r.session.DocumentHeaders()

	requests := r.session.Requests()
	r.art.RequestURLs = distinctRequestURLs(requests)
	r.art.ScriptSources = mergeScriptRequests(r.art.ScriptSources, requests)
	r.art.Duration = time.Since(r.art.StartedAt)
}

// distinctRequestURLs 去重的http(s)请求地址,保持首次出现顺序
func distinctRequestURLs(requests []Request) []string {
	seen := make(map[string]struct{}, len(requests))
	out := make([]string, 0, len(requests))
	for _, req := range requests {
		if !isHTTP(req.URL) {
			continue
		}
		if _, ok := seen[req.URL]; ok {
			continue
		}
		seen[req.URL] = struct{}{}
		out = append(out, req.URL)
	}
	return out
}

// mergeScriptRequests 将Script类型的请求并入脚本地址,覆盖异步注入的脚本
func mergeScriptRequests(sources []string, requests []Request) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, req := range requests {
		if req.Type != ResourceScript || !isHTTP(req.URL) {
			continue
		}
		if _, ok := seen[req.URL]; ok {
			continue
		}
		seen[req.URL] = struct{}{}
		out = append(out, req.URL)
	}
	return out
}

func isHTTP(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
