package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/RecoveryAshes/DeepStack/internal/api"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/spf13/cobra"
)

var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "列出当前签名表",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := signatures.Load(appConfig.Signatures.File)
		if err != nil {
			return fmt.Errorf("加载签名表失败: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "类别\t工具\t规则数\t标签管理")
		for _, s := range api.ListSignatures(catalog) {
			tm := ""
			if s.TagManager {
				tm = "是"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Category, s.ToolName, s.PatternCount, tm)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n共 %d 个工具\n", catalog.Len())
		return nil
	},
}
