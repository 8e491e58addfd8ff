// Package ocr 文字识别
//
// TextRecognizer 封装 PaddleOCR（go-ocr），Classifier 在其上加了超时、
// 单请求限制和可选的相似帧复用，检测循环只通过 Classifier 调用识别。
package ocr

import (
	"os"
	"path/filepath"
	"runtime"
)

// Point 二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TextBlock 一个识别出的文本块
type TextBlock struct {
	Text string `json:"text"`
	// Confidence 识别置信度 (0-1)
	Confidence float64 `json:"confidence"`
	// Position 文本块中心位置
	Position Point `json:"position"`
	// Box 边界框四个角点
	Box []Point `json:"box,omitempty"`
}

// Config 模型文件路径
type Config struct {
	OnnxRuntimeLibPath string `json:"onnxRuntimePath"`
	DetModelPath       string `json:"detModelPath"`
	RecModelPath       string `json:"recModelPath"`
	DictPath           string `json:"dictPath"`
}

// Available 所有模型文件是否都存在
func (c Config) Available() bool {
	return fileExists(c.OnnxRuntimeLibPath) &&
		fileExists(c.DetModelPath) &&
		fileExists(c.RecModelPath) &&
		fileExists(c.DictPath)
}

// Merge 用 other 中的非空字段覆盖当前配置
func (c Config) Merge(other Config) Config {
	if other.OnnxRuntimeLibPath != "" {
		c.OnnxRuntimeLibPath = other.OnnxRuntimeLibPath
	}
	if other.DetModelPath != "" {
		c.DetModelPath = other.DetModelPath
	}
	if other.RecModelPath != "" {
		c.RecModelPath = other.RecModelPath
	}
	if other.DictPath != "" {
		c.DictPath = other.DictPath
	}
	return c
}

// DefaultConfig 在可执行文件旁和当前目录下查找模型
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: findFirst(onnxRuntimeCandidates()),
		DetModelPath:       findFirst(modelCandidates("det.onnx")),
		RecModelPath:       findFirst(modelCandidates("rec.onnx")),
		DictPath:           findFirst(modelCandidates("dict.txt")),
	}
}

// OnnxRuntimeLibName 当前平台的 ONNX Runtime 库文件名
func OnnxRuntimeLibName() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "onnxruntime_" + runtime.GOARCH + ".dylib"
	default:
		return "onnxruntime_" + runtime.GOARCH + ".so"
	}
}

func executableDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

func onnxRuntimeCandidates() []string {
	execDir := executableDir()
	name := OnnxRuntimeLibName()
	return []string{
		filepath.Join(execDir, "lib", name),
		filepath.Join(execDir, "models", "lib", name),
		filepath.Join("models", "lib", name),
		filepath.Join("lib", name),
	}
}

func modelCandidates(filename string) []string {
	execDir := executableDir()
	return []string{
		filepath.Join(execDir, "models", "paddle_weights", filename),
		filepath.Join(execDir, "paddle_weights", filename),
		filepath.Join("models", "paddle_weights", filename),
	}
}

// findFirst 返回第一个存在的路径，都不存在时返回第一个候选
func findFirst(paths []string) string {
	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return paths[0]
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
