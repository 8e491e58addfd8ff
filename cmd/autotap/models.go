package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoeyai/autotap/pkg/plugin"
)

func (c *cli) newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "管理 OCR 模型",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "查看模型安装状态",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p := plugin.NewOCRPlugin()
				st := p.GetStatus()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "目录: %s\n", p.BaseDir())
				fmt.Fprintf(out, "已安装: %v\n", st.Installed)
				fmt.Fprintf(out, "ONNX Runtime: %s\n", st.OnnxRuntimeLibPath)
				fmt.Fprintf(out, "检测模型: %s\n", st.DetModelPath)
				fmt.Fprintf(out, "识别模型: %s\n", st.RecModelPath)
				fmt.Fprintf(out, "字典: %s\n", st.DictPath)
				return nil
			},
		},
		&cobra.Command{
			Use:   "install",
			Short: "下载并安装模型",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p := plugin.NewOCRPlugin()
				if p.IsInstalled() {
					fmt.Fprintln(cmd.OutOrStdout(), "模型已安装")
					return nil
				}
				last := -1
				p.SetProgressCallback(func(v float64) {
					if pct := int(v); pct/10 != last/10 {
						last = pct
						fmt.Fprintf(cmd.OutOrStdout(), "下载进度: %d%%\n", pct)
					}
				})
				if err := p.Install(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "模型已安装到 %s\n", p.BaseDir())
				return nil
			},
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "删除已下载的模型",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return plugin.NewOCRPlugin().Uninstall()
			},
		},
	)
	return cmd
}
