package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/config"
)

// envPrefix 环境变量前缀，例如 AUTOTAP_CLICK_INTERVAL、AUTOTAP_OCR_TIMEOUT
const envPrefix = "AUTOTAP"

// cli 命令共享的状态
type cli struct {
	configDir string
	manager   *config.Manager
}

// flagKeys 命令行参数到设置键的映射，参数被显式指定时才覆盖
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-file":   "log.file",
	"addr":       "control.addr",
	"grpc-addr":  "control.grpc_addr",
	"backend":    "device.backend",
	"serial":     "device.serial",
	"tap-method": "device.tap_method",
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "autotap",
		Short:         "屏幕文字检测自动点击",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Flags())
		},
	}
	root.SetVersionTemplate("autotap v{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&c.configDir, "config-dir", config.DefaultDir(), "配置目录")
	pf.String("log-level", "", "日志级别 (debug|info|warn|error)")
	pf.String("log-file", "", "日志文件路径")
	pf.String("backend", "", "特权通道 (local|adb)")
	pf.String("serial", "", "adb 设备序列号")

	root.AddCommand(
		c.newRunCmd(),
		c.newCtlCmd(),
		c.newProbeCmd(),
		c.newScreenSizeCmd(),
		c.newModelsCmd(),
		c.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// init 创建配置管理器，叠加环境变量和命令行参数，初始化日志
func (c *cli) init(flags *pflag.FlagSet) error {
	c.manager = config.NewManagerWithDir(c.configDir)

	v, err := newOverlay(flags)
	if err != nil {
		return err
	}
	c.manager.SetOverlay(func(s *config.Settings) {
		if err := v.Unmarshal(s); err != nil {
			logger.Warn("应用环境变量或参数失败: %v", err)
		}
	})

	settings, err := c.manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}
	logger.Init(settings.Log)
	return nil
}

// newOverlay 创建只包含环境变量和显式参数的 viper
func newOverlay(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	keys, err := settingKeys()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}
	return v, nil
}

// settingKeys 设置中所有叶子键，例如 ocr.timeout
func settingKeys() ([]string, error) {
	m, err := settingsMap(config.DefaultSettings())
	if err != nil {
		return nil, err
	}
	var keys []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			keys = append(keys, key)
		}
	}
	walk("", m)
	sort.Strings(keys)
	return keys, nil
}

func settingsMap(s *config.Settings) (map[string]any, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// setSetting 按键修改设置，值按 YAML 解析
func setSetting(s *config.Settings, key, value string) error {
	keys, err := settingKeys()
	if err != nil {
		return err
	}
	idx := sort.SearchStrings(keys, key)
	if idx >= len(keys) || keys[idx] != key {
		return fmt.Errorf("未知的设置项 %q", key)
	}

	m, err := settingsMap(s)
	if err != nil {
		return err
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("无法解析值 %q: %w", value, err)
	}

	parts := strings.Split(key, ".")
	node := m
	for _, p := range parts[:len(parts)-1] {
		sub, _ := node[p].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			node[p] = sub
		}
		node = sub
	}
	node[parts[len(parts)-1]] = parsed

	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	next := config.DefaultSettings()
	if err := yaml.Unmarshal(data, next); err != nil {
		return fmt.Errorf("设置项 %s 的值类型不正确: %w", key, err)
	}
	*s = *next
	return nil
}
