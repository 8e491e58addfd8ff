package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/app"
	"github.com/zoeyai/autotap/pkg/control"
)

func (c *cli) client() *control.Client {
	settings, err := c.manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}
	return control.NewClient(settings.Control.Addr)
}

func printView(w io.Writer, v app.View) {
	fmt.Fprintf(w, "状态: %s (%s)\n", v.Text, v.State)
	if v.Target.Valid() {
		fmt.Fprintf(w, "目标位置: %s\n", v.Target)
	} else {
		fmt.Fprintln(w, "目标位置: 未设置")
	}
	if v.RunID != "" {
		fmt.Fprintf(w, "运行 ID: %s\n", v.RunID)
	}
	s := v.Stats
	fmt.Fprintf(w, "统计: 检测 %d 次, 点击 %d 次 (失败 %d), 等待 %d, 截图失败 %d, 识别失败 %d\n",
		s.Ticks, s.Acts, s.TapFailures, s.Waits, s.CaptureFailures, s.RecognitionFailures)
}

func (c *cli) newCtlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "控制正在运行的服务",
	}
	cmd.PersistentFlags().String("addr", "", "控制接口地址")

	viewCmd := func(use, short string, call func(ctx context.Context, cl *control.Client) (app.View, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, err := call(cmd.Context(), c.client())
				if err != nil {
					return err
				}
				printView(cmd.OutOrStdout(), v)
				return nil
			},
		}
	}

	cmd.AddCommand(
		viewCmd("start", "开始检测", func(ctx context.Context, cl *control.Client) (app.View, error) { return cl.Start(ctx) }),
		viewCmd("stop", "停止检测", func(ctx context.Context, cl *control.Client) (app.View, error) { return cl.Stop(ctx) }),
		viewCmd("status", "查询状态", func(ctx context.Context, cl *control.Client) (app.View, error) { return cl.Status(ctx) }),
		&cobra.Command{
			Use:   "target X Y",
			Short: "设置点击位置",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				x, y, err := parsePoint(args)
				if err != nil {
					return err
				}
				v, err := c.client().SetTarget(cmd.Context(), x, y)
				if err != nil {
					return err
				}
				printView(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "probe",
			Short: "执行一次检测（不点击）",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, err := c.client().Probe(cmd.Context(), false)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "决策: %s\n", v.Decision)
				if v.Failure != "" {
					fmt.Fprintf(out, "识别失败: %s\n", v.Failure)
				}
				fmt.Fprintf(out, "截图尺寸: %dx%d\n文字:\n%s\n", v.Width, v.Height, v.Text)
				return nil
			},
		},
		c.newWatchCmd(),
	)
	return cmd
}

func (c *cli) newWatchCmd() *cobra.Command {
	var ticks, asJSON bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "订阅状态变化",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return c.client().Watch(cmd.Context(), ticks, func(ev control.Event) bool {
				if asJSON {
					data, _ := json.Marshal(ev)
					fmt.Fprintln(out, string(data))
					return true
				}
				if ev.Error != "" {
					fmt.Fprintf(out, "[%s] %s (%s)\n", ev.Type, ev.Message, ev.Error)
				} else {
					fmt.Fprintf(out, "[%s] %s\n", ev.Type, ev.Message)
				}
				return true
			})
		},
	}
	cmd.Flags().BoolVar(&ticks, "ticks", false, "同时输出每次检测的结果")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

func parsePoint(args []string) (x, y int, err error) {
	x, err = strconv.Atoi(args[0])
	if err != nil || x < 0 {
		return 0, 0, fmt.Errorf("无效的 X 坐标 %q", args[0])
	}
	y, err = strconv.Atoi(args[1])
	if err != nil || y < 0 {
		return 0, 0, fmt.Errorf("无效的 Y 坐标 %q", args[1])
	}
	return x, y, nil
}
