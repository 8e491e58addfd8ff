package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/app"
	"github.com/zoeyai/autotap/pkg/auto/input"
	"github.com/zoeyai/autotap/pkg/plugin"
	"github.com/zoeyai/autotap/pkg/shell"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

func (c *cli) newProbeCmd() *cobra.Command {
	var find, save string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "本地执行一次截图、识别和决策（不点击）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := c.manager.Load()
			if err != nil {
				logger.Warn("加载设置失败，使用默认设置: %v", err)
			}
			rec, err := ocr.NewTextRecognizer(plugin.ResolveOCRConfig(plugin.NewOCRPlugin(), ocr.Config{
				OnnxRuntimeLibPath: settings.OCR.OnnxRuntimeLibPath,
				DetModelPath:       settings.OCR.DetModelPath,
				RecModelPath:       settings.OCR.RecModelPath,
				DictPath:           settings.OCR.DictPath,
			}))
			if err != nil {
				return fmt.Errorf("加载 OCR 模型失败: %w", err)
			}

			ctrl, err := c.newController(rec)
			if err != nil {
				_ = rec.Close()
				return err
			}
			defer ctrl.Close()

			res, err := ctrl.Probe(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "截图尺寸: %dx%d, 识别区域: %dx%d\n",
				res.Width, res.Height, res.Region.Bounds().Dx(), res.Region.Bounds().Dy())
			fmt.Fprintf(out, "决策: %s\n", res.Decision)
			if res.Failure != ocr.ReasonNone {
				fmt.Fprintf(out, "识别失败: %s\n", res.Failure)
			}
			fmt.Fprintf(out, "文字:\n%s\n", res.Text)

			if find != "" {
				pos, err := rec.FindText(res.Region, find)
				switch {
				case err != nil:
					fmt.Fprintf(out, "查找 %q 失败: %v\n", find, err)
				case pos == nil:
					fmt.Fprintf(out, "未找到 %q\n", find)
				default:
					fmt.Fprintf(out, "%q 位于 (%d, %d)\n", find, pos.X, pos.Y)
				}
			}

			if save != "" {
				f, err := os.Create(save)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := png.Encode(f, res.Region); err != nil {
					return fmt.Errorf("保存识别区域失败: %w", err)
				}
				fmt.Fprintf(out, "识别区域已保存到 %s\n", save)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&find, "find", "", "查找包含该文字的文本块并输出中心坐标")
	cmd.Flags().StringVar(&save, "save", "", "把识别区域保存为 PNG")
	return cmd
}

func (c *cli) newScreenSizeCmd() *cobra.Command {
	var desktop bool
	cmd := &cobra.Command{
		Use:   "screen-size",
		Short: "查询屏幕尺寸",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if desktop {
				w, h := input.DesktopScreenSize()
				fmt.Fprintf(out, "%dx%d\n", w, h)
				return nil
			}

			settings, err := c.manager.Load()
			if err != nil {
				logger.Warn("加载设置失败，使用默认设置: %v", err)
			}
			w, h, err := shell.ScreenSize(cmd.Context(), app.NewDevice(settings.Device))
			if err != nil {
				logger.Warn("查询屏幕尺寸失败，使用默认值: %v", err)
			}
			fmt.Fprintf(out, "%dx%d\n", w, h)
			return nil
		},
	}
	cmd.Flags().BoolVar(&desktop, "desktop", false, "查询本机主显示器尺寸")
	return cmd
}
