package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zoeyai/autotap/pkg/config"
)

func (c *cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "查看和修改设置",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "显示当前生效的设置",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				settings, err := c.manager.Load()
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(settings)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n%s\n%s\n", c.manager.GetConfigFile(), data, settings.Describe())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "修改设置项，例如 config set click_interval 800",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var setErr error
				_, err := c.manager.Update(func(s *config.Settings) {
					setErr = setSetting(s, args[0], args[1])
				})
				if setErr != nil {
					return setErr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "列出所有设置项",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				keys, err := settingKeys()
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
		c.newConfigPathCmd(),
	)
	return cmd
}

func (c *cli) newConfigPathCmd() *cobra.Command {
	var dir bool
	cmd := &cobra.Command{
		Use:   "path",
		Short: "显示设置文件路径",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if dir {
				fmt.Fprintln(cmd.OutOrStdout(), c.manager.GetConfigDir())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.manager.GetConfigFile())
		},
	}
	cmd.Flags().BoolVar(&dir, "dir", false, "显示设置目录")
	return cmd
}
