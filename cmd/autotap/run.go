package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/app"
	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/auto/input"
	"github.com/zoeyai/autotap/pkg/control"
	"github.com/zoeyai/autotap/pkg/loop"
	"github.com/zoeyai/autotap/pkg/plugin"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// newController 按当前设置创建 Controller，engine 为空时加载 OCR 模型
func (c *cli) newController(engine ocr.Engine) (*app.Controller, error) {
	settings, err := c.manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}

	var tapper auto.Tapper
	if settings.Device.TapMethod == "desktop" {
		tapper = input.NewDesktopTapper()
	}
	return app.New(app.Options{
		Manager: c.manager,
		Plugin:  plugin.NewOCRPlugin(),
		Engine:  engine,
		Tapper:  tapper,
	})
}

func (c *cli) newRunCmd() *cobra.Command {
	var autostart bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "启动服务：检测循环 + 控制接口",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), autostart)
		},
	}
	cmd.Flags().BoolVar(&autostart, "autostart", false, "启动后立即开始检测")
	cmd.Flags().String("addr", "", "控制接口监听地址")
	cmd.Flags().String("grpc-addr", "", "gRPC 健康检查监听地址，为空不启动")
	cmd.Flags().String("tap-method", "", "点击方式 (shell|desktop)")
	return cmd
}

func (c *cli) run(ctx context.Context, autostart bool) error {
	settings, err := c.manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}
	fmt.Println("========================================")
	fmt.Printf("  autotap v%s\n", Version)
	fmt.Println("========================================")
	fmt.Println(settings.Describe())
	fmt.Println()

	ctrl, err := c.newController(nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("释放资源失败: %v", err)
		}
	}()

	cancel := ctrl.Subscribe(loop.ListenerFuncs{OnStatus: func(s loop.Status) {
		fmt.Printf("[STATUS] %s\n", s)
	}})
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	server := control.NewServer(ctrl, ctrl.Metrics().Handler())
	g.Go(func() error {
		return server.ListenAndServe(ctx, settings.Control.Addr)
	})

	if settings.Control.GRPCAddr != "" {
		health := control.NewHealth(ctrl)
		g.Go(func() error {
			return health.ListenAndServe(ctx, settings.Control.GRPCAddr)
		})
	}

	g.Go(func() error {
		if err := ctrl.Metrics().RunProcessSampler(ctx, time.Second); err != nil {
			logger.Warn("进程指标采集不可用: %v", err)
		}
		return nil
	})

	// 收到退出信号或任一服务失败时停止检测
	g.Go(func() error {
		<-ctx.Done()
		ctrl.Stop()
		return nil
	})

	if autostart {
		if err := ctrl.Start(); err != nil {
			logger.Warn("自动启动失败: %v", err)
		}
	}

	fmt.Println("服务已启动，按 Ctrl+C 退出")
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("\n正在关闭...")
	return nil
}
