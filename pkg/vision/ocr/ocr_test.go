package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

// projectRoot 项目根目录
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	// pkg/vision/ocr/ocr_test.go -> 向上 4 层
	return filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
}

// setupOCRConfig 查找可用的模型，找不到时跳过测试
func setupOCRConfig(t *testing.T) Config {
	t.Helper()

	candidates := []Config{DefaultConfig()}

	root := projectRoot()
	candidates = append(candidates, Config{
		OnnxRuntimeLibPath: filepath.Join(root, "models", "lib", OnnxRuntimeLibName()),
		DetModelPath:       filepath.Join(root, "models", "paddle_weights", "det.onnx"),
		RecModelPath:       filepath.Join(root, "models", "paddle_weights", "rec.onnx"),
		DictPath:           filepath.Join(root, "models", "paddle_weights", "dict.txt"),
	})

	if home, err := os.UserHomeDir(); err == nil {
		base := filepath.Join(home, ".autotap", "plugins", "ocr")
		candidates = append(candidates, Config{
			OnnxRuntimeLibPath: filepath.Join(base, "lib", OnnxRuntimeLibName()),
			DetModelPath:       filepath.Join(base, "paddle_weights", "det.onnx"),
			RecModelPath:       filepath.Join(base, "paddle_weights", "rec.onnx"),
			DictPath:           filepath.Join(base, "paddle_weights", "dict.txt"),
		})
	}

	for _, c := range candidates {
		if c.Available() {
			t.Logf("OCR 配置: %+v", c)
			return c
		}
	}
	t.Skipf("OCR 模型不可用，跳过 (可运行 autotap models install)")
	return Config{}
}

// loadChineseFont 加载系统中文字体
func loadChineseFont() *truetype.Font {
	fontPaths := []string{
		"/System/Library/Fonts/STHeiti Medium.ttc",
		"/Library/Fonts/Arial Unicode.ttf",
		"C:\\Windows\\Fonts\\simhei.ttf",
		"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
		"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
	}
	for _, path := range fontPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if f, err := truetype.Parse(data); err == nil {
			return f
		}
	}
	return nil
}

// renderBanner 白底黑字的顶部横幅，模拟屏幕顶部的状态文字
func renderBanner(t *testing.T, text string) *image.RGBA {
	t.Helper()

	f := loadChineseFont()
	if f == nil {
		t.Skip("未找到中文字体，跳过")
	}

	img := image.NewRGBA(image.Rect(0, 0, 1080, 720))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	const fontSize = 72
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(fontSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.NewUniform(color.Black))
	c.SetHinting(font.HintingFull)

	pt := freetype.Pt(120, 200+int(c.PointToFixed(fontSize)>>6))
	if _, err := c.DrawString(text, pt); err != nil {
		t.Fatalf("绘制文字失败: %v", err)
	}
	return img
}

func TestRecognizerFindsMarkers(t *testing.T) {
	config := setupOCRConfig(t)

	recognizer, err := NewTextRecognizer(config)
	if err != nil {
		t.Fatalf("OCR 初始化失败: %v", err)
	}
	defer recognizer.Close()

	for _, text := range []string{"自动", "进行中"} {
		img := renderBanner(t, text)

		all, err := recognizer.GetAllText(img)
		if err != nil {
			t.Fatalf("识别失败: %v", err)
		}
		t.Logf("识别结果: %q", all)
		if !strings.Contains(all, text) {
			t.Errorf("应识别出 %q, 实际 %q", text, all)
		}

		pos, err := recognizer.FindText(img, text)
		if err != nil {
			t.Fatalf("查找失败: %v", err)
		}
		if pos == nil {
			t.Errorf("应找到 %q 的位置", text)
		} else if pos.X < 120 || pos.Y < 200 {
			t.Errorf("%q 的位置不合理: %+v", text, *pos)
		}
	}
}

func TestClassifierWithRecognizer(t *testing.T) {
	config := setupOCRConfig(t)

	recognizer, err := NewTextRecognizer(config)
	if err != nil {
		t.Fatalf("OCR 初始化失败: %v", err)
	}
	defer recognizer.Close()

	c := NewClassifier(recognizer)
	res := c.Recognize(context.Background(), renderBanner(t, "进行中"))
	if !res.OK() {
		t.Fatalf("识别失败: %v (%v)", res, res.Err)
	}
	if !strings.Contains(res.Text, "进行中") {
		t.Errorf("识别结果不包含标记: %q", res.Text)
	}
}

func TestRecognizerRejectsMissingModels(t *testing.T) {
	dir := t.TempDir()
	_, err := NewTextRecognizer(Config{
		OnnxRuntimeLibPath: filepath.Join(dir, "none.so"),
		DetModelPath:       filepath.Join(dir, "det.onnx"),
		RecModelPath:       filepath.Join(dir, "rec.onnx"),
		DictPath:           filepath.Join(dir, "dict.txt"),
	})
	if err == nil {
		t.Error("模型缺失时应返回错误")
	}
}

func TestJoinAndFind(t *testing.T) {
	blocks := []TextBlock{
		{Text: "12:30", Position: Point{X: 50, Y: 20}},
		{Text: ""},
		{Text: "自动战斗中", Position: Point{X: 540, Y: 100}},
	}
	if got := JoinText(blocks); got != "12:30\n自动战斗中" {
		t.Errorf("拼接结果不正确: %q", got)
	}

	p := FindBlock(blocks, "自动")
	if p == nil || p.X != 540 || p.Y != 100 {
		t.Errorf("查找结果不正确: %+v", p)
	}
	if FindBlock(blocks, "进行中") != nil {
		t.Error("不存在的文字应返回 nil")
	}
	if FindBlock(blocks, "") != nil {
		t.Error("空字符串应返回 nil")
	}
}

func TestConfigMerge(t *testing.T) {
	base := Config{OnnxRuntimeLibPath: "a", DetModelPath: "b", RecModelPath: "c", DictPath: "d"}
	got := base.Merge(Config{DetModelPath: "x"})
	if got.DetModelPath != "x" || got.OnnxRuntimeLibPath != "a" || got.DictPath != "d" {
		t.Errorf("合并结果不正确: %+v", got)
	}
	if (Config{}).Available() {
		t.Error("空配置不应可用")
	}
}
