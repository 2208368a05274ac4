package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/nao1215/markdown"
	"github.com/schollz/progressbar/v3"
)

// WriteBatchJSON 保存批量输出文件
func WriteBatchJSON(path string, env *models.BatchEnvelope) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	data, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}

	Debugf("保存结果: %s", path)
	return nil
}

// WriteMarkdownFile 在path写入Markdown摘要
func WriteMarkdownFile(path string, records []*models.AnalysisRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建摘要文件失败: %w", err)
	}
	defer f.Close()

	if err := WriteMarkdownSummary(f, records); err != nil {
		return err
	}
	return f.Close()
}

// WriteMarkdownSummary 生成Markdown格式的批量摘要
func WriteMarkdownSummary(w io.Writer, records []*models.AnalysisRecord) error {
	md := markdown.NewMarkdown(w)

	md.H1("DeepStack 分析报告")
	md.PlainText("")

	success, partial, failed := countStatus(records)
	md.Table(markdown.TableSet{
		Header: []string{"URL总数", "成功", "部分成功", "失败"},
		Rows: [][]string{{
			strconv.Itoa(len(records)),
			strconv.Itoa(success),
			strconv.Itoa(partial),
			strconv.Itoa(failed),
		}},
	})
	md.PlainText("")

	for _, rec := range records {
		writeRecordSection(md, rec)
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("生成Markdown失败: %w", err)
	}
	return nil
}

func writeRecordSection(md *markdown.Markdown, rec *models.AnalysisRecord) {
	md.H2(rec.URL)
	md.PlainText("")

	title := "(无标题)"
	if rec.PageTitle != nil && *rec.PageTitle != "" {
		title = *rec.PageTitle
	}
	items := []string{
		"状态: " + string(rec.Status),
		"标题: " + title,
		fmt.Sprintf("耗时: %dms", rec.Duration.Milliseconds()),
	}
	if ev := rec.Evidence; ev != nil {
		if ev.Typography != nil && len(ev.Typography.WebFontServices) > 0 {
			items = append(items, "字体服务: "+strings.Join(ev.Typography.WebFontServices, ", "))
		}
		if logo := ev.Document.Assets.Logo; logo != nil {
			items = append(items, "Logo: "+logo.Src)
		}
	}
	md.BulletList(items...)
	md.PlainText("")

	if rec.Status == models.StatusFailed {
		md.Warningf("分析失败 [%s]: %s", rec.ErrorKind, rec.ErrorMessage)
		md.PlainText("")
		return
	}

	for _, c := range models.AllCategories() {
		detections := rec.DetectionsIn(c)
		if len(detections) == 0 {
			continue
		}
		md.H3(string(c))
		md.PlainText("")

		rows := make([][]string, 0, len(detections))
		for _, d := range detections {
			rows = append(rows, []string{
				d.ToolName,
				fmt.Sprintf("%s[%d]", d.EvidenceLocation.Field, d.EvidenceLocation.Index),
				escapeCell(d.Match),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"工具", "证据位置", "匹配文本"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if rec.Evidence != nil && len(rec.Evidence.Degradations) > 0 {
		items := make([]string, 0, len(rec.Evidence.Degradations))
		for _, d := range rec.Evidence.Degradations {
			items = append(items, fmt.Sprintf("%s: %s (%s)", d.Field, d.Kind, d.Message))
		}
		md.PlainText("降级项:")
		md.PlainText("")
		md.BulletList(items...)
		md.PlainText("")
	}
}

// escapeCell 表格单元格中的竖线和换行
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func countStatus(records []*models.AnalysisRecord) (success, partial, failed int) {
	for _, r := range records {
		switch r.Status {
		case models.StatusSuccess:
			success++
		case models.StatusPartialSuccess:
			partial++
		default:
			failed++
		}
	}
	return success, partial, failed
}

// PrintSummary 在控制台输出批量结果表格
func PrintSummary(w io.Writer, records []*models.AnalysisRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\t状态\t检测数\t标题")
	for _, r := range records {
		title := ""
		if r.PageTitle != nil {
			title = *r.PageTitle
		}
		status := string(r.Status)
		if r.ErrorKind != "" {
			status += " (" + string(r.ErrorKind) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.URL, status, len(r.Detections), title)
	}
	tw.Flush()

	success, partial, failed := countStatus(records)
	fmt.Fprintf(w, "\n共 %d 个URL: 成功 %d, 部分成功 %d, 失败 %d\n", len(records), success, partial, failed)
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
