package harvest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
)

type frameNode struct {
	frame Frame
	depth int
}

// walkFrames 有界深度的广度优先iframe遍历
// 每个frame产生一个独立的FormDescriptor;无法访问的frame记为accessible=false,不再深入
func (r *run) walkFrames(ctx context.Context) []models.FormDescriptor {
	opts := r.h.opts
	out := []models.FormDescriptor{}
	if opts.MaxFrames <= 0 || opts.IframeMaxDepth <= 0 {
		return out
	}

	top, err := r.session.Frames(ctx)
	if err != nil {
		r.degrade(models.FieldIframeForms, models.ErrEvaluationError, fmt.Sprintf("枚举iframe失败: %v", err))
		return out
	}

	queue := make([]frameNode, 0, len(top))
	for _, f := range top {
		queue = append(queue, frameNode{frame: f, depth: 1})
	}

	for len(queue) > 0 && len(out) < opts.MaxFrames {
		node := queue[0]
		queue = queue[1:]

		fd := r.inspectFrame(ctx, node)
		out = append(out, fd)
		if !fd.Accessible || node.depth >= opts.IframeMaxDepth {
			continue
		}

		children, err := node.frame.Frames(ctx)
		if err != nil {
			utils.Debugf("枚举子iframe失败 [%s]: %v", node.frame.URL(), err)
			continue
		}
		for _, c := range children {
			queue = append(queue, frameNode{frame: c, depth: node.depth + 1})
		}
	}

	if len(queue) > 0 {
		utils.Debugf("iframe数量超过上限%d, 跳过%d个 [%s]", opts.MaxFrames, len(queue), r.url)
	}
	return out
}

func (r *run) inspectFrame(ctx context.Context, node frameNode) models.FormDescriptor {
	src := node.frame.URL()
	fd := models.FormDescriptor{
		FrameOrigin: originOf(src),
		FrameURL:    src,
		Depth:       node.depth,
		Fields:      []models.FormField{},
	}

	res := node.frame.Inspect(ctx, formsJS, r.h.opts.EvaluationTimeout)
	var forms formsResult
	err := res.Decode(&forms)
	if err != nil {
		fd.Error = err.Error()
		r.degrade(models.FieldIframeForms, models.ErrIframeInaccessible, fmt.Sprintf("%s: %v", displayFrame(src), err))
		return fd
	}

	fd.Accessible = true
	if forms.Origin != "" && forms.Origin != "null" {
		fd.FrameOrigin = forms.Origin
	}
	if fd.FrameURL == "" {
		fd.FrameURL = forms.URL
	}
	if forms.Fields != nil {
		fd.Fields = forms.Fields
	}
	fd.ActionURL = forms.Action
	return fd
}

// originOf 由地址推导origin,无法解析时返回空串
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func displayFrame(src string) string {
	if src == "" {
		return "(无src的iframe)"
	}
	return src
}
