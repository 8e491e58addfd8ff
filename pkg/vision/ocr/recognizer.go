package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	goocr "github.com/getcharzp/go-ocr"

	"github.com/zoeyai/autotap/internal/logger"
)

// ErrClosed 识别器已关闭
var ErrClosed = errors.New("OCR 识别器已关闭")

// Engine 识别引擎，返回图像中的所有文本块
type Engine interface {
	Recognize(img image.Image) ([]TextBlock, error)
}

// EngineFunc 函数形式的 Engine
type EngineFunc func(img image.Image) ([]TextBlock, error)

// Recognize 调用 f
func (f EngineFunc) Recognize(img image.Image) ([]TextBlock, error) { return f(img) }

// TextRecognizer 基于 PaddleOCR 的识别器
type TextRecognizer struct {
	engine goocr.Engine
	config Config
	mu     sync.Mutex
}

// NewTextRecognizer 加载模型并创建识别器
func NewTextRecognizer(config Config) (*TextRecognizer, error) {
	if !config.Available() {
		return nil, fmt.Errorf("OCR 模型文件不完整: %+v", config)
	}

	engine, err := goocr.NewPaddleOcrEngine(goocr.Config{
		OnnxRuntimeLibPath: config.OnnxRuntimeLibPath,
		DetModelPath:       config.DetModelPath,
		RecModelPath:       config.RecModelPath,
		DictPath:           config.DictPath,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 OCR 引擎失败: %w", err)
	}

	logger.Info("OCR 引擎初始化成功")

	return &TextRecognizer{
		engine: engine,
		config: config,
	}, nil
}

// Config 识别器使用的模型配置
func (r *TextRecognizer) Config() Config {
	return r.config
}

// Recognize 识别图像中的所有文字
func (r *TextRecognizer) Recognize(img image.Image) ([]TextBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine == nil {
		return nil, ErrClosed
	}

	startTime := time.Now()

	results, err := r.engine.RunOCR(img)
	elapsed := float64(time.Since(startTime).Milliseconds())
	if err != nil {
		logger.LogEvent("OCR", false, elapsed, "识别失败")
		return nil, fmt.Errorf("OCR 识别失败: %w", err)
	}

	blocks := make([]TextBlock, 0, len(results))
	for _, result := range results {
		blocks = append(blocks, convertResult(result))
	}

	logger.LogEvent("OCR", true, elapsed, fmt.Sprintf("识别到 %d 个文本", len(blocks)))
	return blocks, nil
}

// FindText 返回第一个包含 target 的文本块中心，没找到时返回 nil
func (r *TextRecognizer) FindText(img image.Image, target string) (*Point, error) {
	blocks, err := r.Recognize(img)
	if err != nil {
		return nil, err
	}
	return FindBlock(blocks, target), nil
}

// GetAllText 识别并拼接所有文字
func (r *TextRecognizer) GetAllText(img image.Image) (string, error) {
	blocks, err := r.Recognize(img)
	if err != nil {
		return "", err
	}
	return JoinText(blocks), nil
}

// Close 释放引擎
func (r *TextRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		r.engine.Destroy()
		r.engine = nil
	}
	return nil
}

// FindBlock 返回第一个包含 target 的文本块中心
func FindBlock(blocks []TextBlock, target string) *Point {
	if target == "" {
		return nil
	}
	for _, b := range blocks {
		if strings.Contains(b.Text, target) {
			p := b.Position
			return &p
		}
	}
	return nil
}

// JoinText 按行拼接文本块，跳过空文本
func JoinText(blocks []TextBlock) string {
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// convertResult go-ocr 的 Box 为 {x1, y1, x2, y2}
func convertResult(result goocr.RecResult) TextBlock {
	box := result.Box
	return TextBlock{
		Text:       result.Text,
		Confidence: float64(result.Score),
		Position: Point{
			X: (box[0] + box[2]) / 2,
			Y: (box[1] + box[3]) / 2,
		},
		Box: []Point{
			{X: box[0], Y: box[1]},
			{X: box[0], Y: box[3]},
			{X: box[2], Y: box[3]},
			{X: box[2], Y: box[1]},
		},
	}
}
