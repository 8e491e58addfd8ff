package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zoeyai/autotap/internal/logger"
)

// ErrOutOfRange 配置值超出允许范围
var ErrOutOfRange = errors.New("配置值超出范围")

// 截图方式，持久化为整数（0=保存文件，1=管道传输）
const (
	ScreenshotModeFile = 0
	ScreenshotModePipe = 1
)

// 取值范围与默认值
const (
	MinDetectionInterval     = 0.1
	MaxDetectionInterval     = 10.0
	DefaultDetectionInterval = 1.0

	MinClickInterval     = 50
	MaxClickInterval     = 5000
	DefaultClickInterval = 500

	DefaultCropRatio   = 0.3
	DefaultOCRTimeout  = 5.0
	DefaultShotPath    = "/sdcard/tmp/screenshot.png"
	DefaultHaltMarker  = "进行中"
	DefaultActMarker   = "自动"
	UnsetCoordinate    = -1
	DefaultControlAddr = "127.0.0.1:8765"
)

// Settings 持久化的运行设置
type Settings struct {
	// ScreenshotMode 截图方式 0=文件 1=管道
	ScreenshotMode int `yaml:"screenshot_mode" mapstructure:"screenshot_mode"`
	// DetectionInterval 检测间隔（秒）
	DetectionInterval float64 `yaml:"detection_interval" mapstructure:"detection_interval"`
	// ClickInterval 点击后等待（毫秒）
	ClickInterval int `yaml:"click_interval" mapstructure:"click_interval"`
	TargetX       int `yaml:"target_x" mapstructure:"target_x"`
	TargetY       int `yaml:"target_y" mapstructure:"target_y"`

	// CropRatio 识别区域高度占比
	CropRatio float64 `yaml:"crop_ratio" mapstructure:"crop_ratio"`
	// ScreenshotPath 文件方式截图的落盘路径
	ScreenshotPath string `yaml:"screenshot_path" mapstructure:"screenshot_path"`

	Markers MarkerSettings  `yaml:"markers" mapstructure:"markers"`
	OCR     OCRSettings     `yaml:"ocr" mapstructure:"ocr"`
	Device  DeviceSettings  `yaml:"device" mapstructure:"device"`
	Control ControlSettings `yaml:"control" mapstructure:"control"`
	Log     logger.Options  `yaml:"log" mapstructure:"log"`
}

// MarkerSettings 决策用的标记文字
type MarkerSettings struct {
	Halt string `yaml:"halt" mapstructure:"halt"`
	Act  string `yaml:"act" mapstructure:"act"`
}

// OCRSettings OCR 相关设置
type OCRSettings struct {
	// Timeout 单次识别等待上限（秒）
	Timeout            float64 `yaml:"timeout" mapstructure:"timeout"`
	OnnxRuntimeLibPath string  `yaml:"onnxruntime_lib" mapstructure:"onnxruntime_lib"`
	DetModelPath       string  `yaml:"det_model" mapstructure:"det_model"`
	RecModelPath       string  `yaml:"rec_model" mapstructure:"rec_model"`
	DictPath           string  `yaml:"dict" mapstructure:"dict"`
	// ReuseDistance 相邻区域感知哈希距离不超过该值时复用上次结果，负数关闭
	ReuseDistance int `yaml:"reuse_distance" mapstructure:"reuse_distance"`
}

// DeviceSettings 特权通道设置
type DeviceSettings struct {
	// Backend local | adb
	Backend string `yaml:"backend" mapstructure:"backend"`
	Serial  string `yaml:"serial" mapstructure:"serial"`
	ADBPath string `yaml:"adb_path" mapstructure:"adb_path"`
	// TapMethod shell | desktop
	TapMethod string `yaml:"tap_method" mapstructure:"tap_method"`
	// RequireProcess 本机通道要求运行的进程，为空不检查
	RequireProcess string `yaml:"require_process" mapstructure:"require_process"`
}

// ControlSettings 控制接口设置
type ControlSettings struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	GRPCAddr string `yaml:"grpc_addr" mapstructure:"grpc_addr"`
}

// DefaultSettings 默认设置
func DefaultSettings() *Settings {
	return &Settings{
		ScreenshotMode:    ScreenshotModeFile,
		DetectionInterval: DefaultDetectionInterval,
		ClickInterval:     DefaultClickInterval,
		TargetX:           UnsetCoordinate,
		TargetY:           UnsetCoordinate,
		CropRatio:         DefaultCropRatio,
		ScreenshotPath:    DefaultShotPath,
		Markers: MarkerSettings{
			Halt: DefaultHaltMarker,
			Act:  DefaultActMarker,
		},
		OCR: OCRSettings{
			Timeout:       DefaultOCRTimeout,
			ReuseDistance: -1,
		},
		Device: DeviceSettings{
			Backend:   "local",
			ADBPath:   "adb",
			TapMethod: "shell",
		},
		Control: ControlSettings{
			Addr: DefaultControlAddr,
		},
		Log: logger.DefaultOptions(),
	}
}

// Validate 校验设置，保存前调用
func (s *Settings) Validate() error {
	if s.ScreenshotMode != ScreenshotModeFile && s.ScreenshotMode != ScreenshotModePipe {
		return fmt.Errorf("截图方式必须为 0 或 1, 实际 %d: %w", s.ScreenshotMode, ErrOutOfRange)
	}
	if !validInterval(s.DetectionInterval) {
		return fmt.Errorf("检测间隔必须在 %.1f - %.1f 秒之间, 实际 %v: %w",
			MinDetectionInterval, MaxDetectionInterval, s.DetectionInterval, ErrOutOfRange)
	}
	if s.ClickInterval < MinClickInterval || s.ClickInterval > MaxClickInterval {
		return fmt.Errorf("点击间隔必须在 %d - %d ms 之间, 实际 %d: %w",
			MinClickInterval, MaxClickInterval, s.ClickInterval, ErrOutOfRange)
	}
	if !validTimeout(s.OCR.Timeout) {
		return fmt.Errorf("OCR 超时必须大于 0, 实际 %v: %w", s.OCR.Timeout, ErrOutOfRange)
	}
	switch s.Device.Backend {
	case "local", "adb":
	default:
		return fmt.Errorf("未知的设备后端: %q", s.Device.Backend)
	}
	switch s.Device.TapMethod {
	case "shell", "desktop":
	default:
		return fmt.Errorf("未知的点击方式: %q", s.Device.TapMethod)
	}
	return nil
}

// Sanitize 将超出范围的值重置为默认值，返回被重置的字段说明
func (s *Settings) Sanitize() []string {
	def := DefaultSettings()
	var fixed []string

	if s.ScreenshotMode != ScreenshotModeFile && s.ScreenshotMode != ScreenshotModePipe {
		fixed = append(fixed, fmt.Sprintf("screenshot_mode=%d", s.ScreenshotMode))
		s.ScreenshotMode = def.ScreenshotMode
	}
	if !validInterval(s.DetectionInterval) {
		fixed = append(fixed, fmt.Sprintf("detection_interval=%v", s.DetectionInterval))
		s.DetectionInterval = def.DetectionInterval
	}
	if s.ClickInterval < MinClickInterval || s.ClickInterval > MaxClickInterval {
		fixed = append(fixed, fmt.Sprintf("click_interval=%d", s.ClickInterval))
		s.ClickInterval = def.ClickInterval
	}
	if !validTimeout(s.OCR.Timeout) {
		fixed = append(fixed, fmt.Sprintf("ocr.timeout=%v", s.OCR.Timeout))
		s.OCR.Timeout = def.OCR.Timeout
	}
	if s.TargetX < 0 || s.TargetY < 0 {
		s.TargetX, s.TargetY = UnsetCoordinate, UnsetCoordinate
	}
	if s.ScreenshotPath == "" {
		s.ScreenshotPath = def.ScreenshotPath
	}
	if s.Device.Backend == "" {
		s.Device.Backend = def.Device.Backend
	}
	if s.Device.ADBPath == "" {
		s.Device.ADBPath = def.Device.ADBPath
	}
	if s.Device.TapMethod == "" {
		s.Device.TapMethod = def.Device.TapMethod
	}
	if s.Control.Addr == "" {
		s.Control.Addr = def.Control.Addr
	}
	return fixed
}

// validInterval 检测间隔是否在范围内，NaN 视为超出范围
func validInterval(v float64) bool {
	return v >= MinDetectionInterval && v <= MaxDetectionInterval
}

func validTimeout(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// HasTarget 是否已设置点击位置
func (s *Settings) HasTarget() bool {
	return s.TargetX >= 0 && s.TargetY >= 0
}

// RunConfig 单次运行期间不可变的配置快照
type RunConfig struct {
	Strategy   int
	Interval   time.Duration
	Pacing     time.Duration
	CropRatio  float64
	OCRTimeout time.Duration
	HaltMarker string
	ActMarker  string
}

// RunConfig 生成运行配置快照
func (s *Settings) RunConfig() RunConfig {
	return RunConfig{
		Strategy:   s.ScreenshotMode,
		Interval:   time.Duration(s.DetectionInterval * float64(time.Second)),
		Pacing:     time.Duration(s.ClickInterval) * time.Millisecond,
		CropRatio:  s.CropRatio,
		OCRTimeout: time.Duration(s.OCR.Timeout * float64(time.Second)),
		HaltMarker: s.Markers.Halt,
		ActMarker:  s.Markers.Act,
	}
}

// Describe 当前设置的简要描述
func (s *Settings) Describe() string {
	mode := "保存图片"
	if s.ScreenshotMode == ScreenshotModePipe {
		mode = "管道传输"
	}
	text := fmt.Sprintf("截图方式: %s\n检测间隔: %v 秒\n点击间隔: %d ms", mode, s.DetectionInterval, s.ClickInterval)
	if s.HasTarget() {
		text += fmt.Sprintf("\n目标位置: (%d, %d)", s.TargetX, s.TargetY)
	}
	return text
}
