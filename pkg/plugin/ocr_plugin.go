// Package plugin 管理可选插件（如 OCR 模型）
package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/config"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// HFRepoBase HuggingFace 模型仓库地址
const HFRepoBase = "https://huggingface.co/getcharzp/go-ocr/resolve/main"

// ErrDownloading 已有下载在进行
var ErrDownloading = errors.New("正在下载中")

// ErrNotInstalled 插件未安装
var ErrNotInstalled = errors.New("OCR 插件未安装")

// OCRPlugin OCR 插件管理器
type OCRPlugin struct {
	baseDir  string
	repoBase string
	client   *resty.Client

	mu          sync.RWMutex
	downloading bool
	progress    float64
	onProgress  func(float64)
}

// OCRPluginStatus OCR 插件状态
type OCRPluginStatus struct {
	Installed   bool    `json:"installed"`
	Downloading bool    `json:"downloading"`
	Progress    float64 `json:"progress"` // 0-100
	ocr.Config
}

type downloadFile struct {
	name     string
	url      string
	destPath string
	size     int64 // 预估大小（字节）
}

// NewOCRPlugin 创建 OCR 插件管理器，文件存放在 ~/.autotap/plugins/ocr
func NewOCRPlugin() *OCRPlugin {
	return NewOCRPluginWithDir(filepath.Join(config.DefaultDir(), "plugins", "ocr"), HFRepoBase)
}

// NewOCRPluginWithDir 使用指定目录和仓库地址创建插件管理器
func NewOCRPluginWithDir(baseDir, repoBase string) *OCRPlugin {
	return &OCRPlugin{
		baseDir:  baseDir,
		repoBase: repoBase,
		client: resty.New().
			SetTimeout(10 * time.Minute).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
	}
}

// BaseDir 插件目录
func (p *OCRPlugin) BaseDir() string {
	return p.baseDir
}

// SetProgressCallback 设置进度回调
func (p *OCRPlugin) SetProgressCallback(callback func(float64)) {
	p.mu.Lock()
	p.onProgress = callback
	p.mu.Unlock()
}

func (p *OCRPlugin) paths() ocr.Config {
	weights := filepath.Join(p.baseDir, "paddle_weights")
	return ocr.Config{
		OnnxRuntimeLibPath: filepath.Join(p.baseDir, "lib", ocr.OnnxRuntimeLibName()),
		DetModelPath:       filepath.Join(weights, "det.onnx"),
		RecModelPath:       filepath.Join(weights, "rec.onnx"),
		DictPath:           filepath.Join(weights, "dict.txt"),
	}
}

// GetStatus 获取插件状态
func (p *OCRPlugin) GetStatus() OCRPluginStatus {
	p.mu.RLock()
	status := OCRPluginStatus{
		Downloading: p.downloading,
		Progress:    p.progress,
	}
	p.mu.RUnlock()

	status.Config = p.paths()
	status.Installed = status.Config.Available()
	return status
}

// IsInstalled 检查是否已安装
func (p *OCRPlugin) IsInstalled() bool {
	return p.GetStatus().Installed
}

// Config 已安装时返回模型路径
func (p *OCRPlugin) Config() (ocr.Config, error) {
	status := p.GetStatus()
	if !status.Installed {
		return ocr.Config{}, ErrNotInstalled
	}
	return status.Config, nil
}

// Install 下载并安装 OCR 插件，已存在的文件不重复下载
func (p *OCRPlugin) Install(ctx context.Context) error {
	p.mu.Lock()
	if p.downloading {
		p.mu.Unlock()
		return ErrDownloading
	}
	p.downloading = true
	p.progress = 0
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.downloading = false
		p.mu.Unlock()
	}()

	for _, dir := range []string{"lib", "paddle_weights"} {
		if err := os.MkdirAll(filepath.Join(p.baseDir, dir), 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}

	files := p.downloadFiles()
	var totalSize int64
	for _, f := range files {
		totalSize += f.size
	}

	var downloadedSize int64
	for _, f := range files {
		if fileExists(f.destPath) {
			downloadedSize += f.size
			p.setProgress(float64(downloadedSize) / float64(totalSize) * 100)
			continue
		}

		start := time.Now()
		base := downloadedSize
		err := p.download(ctx, f.url, f.destPath, func(downloaded int64) {
			if downloaded > f.size {
				downloaded = f.size
			}
			p.setProgress(float64(base+downloaded) / float64(totalSize) * 100)
		})
		logger.LogEvent("DL", err == nil, float64(time.Since(start).Milliseconds()), f.name)
		if err != nil {
			return fmt.Errorf("下载 %s 失败: %w", f.name, err)
		}
		downloadedSize += f.size
	}

	p.setProgress(100)
	return nil
}

func (p *OCRPlugin) setProgress(v float64) {
	p.mu.Lock()
	p.progress = v
	cb := p.onProgress
	p.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// Uninstall 卸载 OCR 插件
func (p *OCRPlugin) Uninstall() error {
	return os.RemoveAll(p.baseDir)
}

func (p *OCRPlugin) downloadFiles() []downloadFile {
	paths := p.paths()
	lib := ocr.OnnxRuntimeLibName()
	return []downloadFile{
		{name: lib, url: p.repoBase + "/lib/" + lib, destPath: paths.OnnxRuntimeLibPath, size: 50 * 1024 * 1024},
		{name: "det.onnx", url: p.repoBase + "/paddle_weights/det.onnx", destPath: paths.DetModelPath, size: 3 * 1024 * 1024},
		{name: "rec.onnx", url: p.repoBase + "/paddle_weights/rec.onnx", destPath: paths.RecModelPath, size: 5 * 1024 * 1024},
		{name: "dict.txt", url: p.repoBase + "/paddle_weights/dict.txt", destPath: paths.DictPath, size: 200 * 1024},
	}
}

// download 下载单个文件，先写临时文件再重命名
func (p *OCRPlugin) download(ctx context.Context, url, destPath string, onProgress func(int64)) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return fmt.Errorf("HTTP %s", resp.Status())
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, &progressReader{r: body, onProgress: onProgress})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, destPath)
}

type progressReader struct {
	r          io.Reader
	n          int64
	onProgress func(int64)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.n += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.n)
		}
	}
	return n, err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ResolveOCRConfig 合并模型路径：先取插件目录或默认查找位置，再用 override 中的非空字段覆盖
func ResolveOCRConfig(p *OCRPlugin, override ocr.Config) ocr.Config {
	base := ocr.DefaultConfig()
	if p != nil {
		if cfg, err := p.Config(); err == nil {
			base = cfg
		}
	}
	return base.Merge(override)
}
