package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// ImageToBase64 将图像编码为 data URI
// format: "png" 或 "jpeg"，默认 "png"（识别区域多为文字，PNG 无损）
// quality: JPEG 质量 1-100，默认 80
func ImageToBase64(img image.Image, format string, quality int) (string, error) {
	if img == nil {
		return "", errors.New("图像为空")
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	var (
		buf  bytes.Buffer
		mime string
		err  error
	)
	switch format {
	case "", "png":
		mime = "image/png"
		err = png.Encode(&buf, img)
	case "jpeg", "jpg":
		mime = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		return "", fmt.Errorf("不支持的图像格式: %s", format)
	}
	if err != nil {
		return "", fmt.Errorf("%s 编码失败: %w", mime, err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
