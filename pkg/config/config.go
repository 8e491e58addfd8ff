package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName 设置文件名
const FileName = "settings.yaml"

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
	overlay    func(s *Settings)
}

// NewManager 创建配置管理器，目录为 ~/.autotap
func NewManager() *Manager {
	return NewManagerWithDir(DefaultDir())
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, FileName),
	}
}

// DefaultDir 默认配置目录
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".autotap")
}

func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// SetOverlay 设置读取后的覆盖函数（环境变量、命令行参数），Load 时应用，Update 不应用
func (m *Manager) SetOverlay(fn func(s *Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlay = fn
}

// Load 加载设置，文件不存在时返回默认设置
//
// 文件中缺失的键保持默认值，超出范围的值被重置为默认值。
func (m *Manager) Load() (*Settings, error) {
	settings, err := m.load()

	m.mu.RLock()
	overlay := m.overlay
	m.mu.RUnlock()
	if overlay != nil {
		overlay(settings)
		settings.Sanitize()
	}
	return settings, err
}

// load 只读取文件
func (m *Manager) load() (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.configFile)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return DefaultSettings(), fmt.Errorf("解析配置文件失败: %w", err)
	}
	settings.Sanitize()
	return settings, nil
}

// Save 校验并保存设置
func (m *Manager) Save(settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	// 先写临时文件再重命名，避免写到一半时被读取
	tmp := m.configFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	if err := os.Rename(tmp, m.configFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Update 读取、修改并保存设置
func (m *Manager) Update(fn func(s *Settings)) (*Settings, error) {
	settings, err := m.load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	if err := m.Save(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.configFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}
