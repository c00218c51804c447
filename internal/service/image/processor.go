package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultMaxWidth     = 1280
	defaultMaxSizeBytes = 1 * 1024 * 1024
	defaultQuality      = 80
)

// ProcessedFrame — кадр, приведённый к ограничениям провайдера.
type ProcessedFrame struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// Processor даунскейлит и пережимает кадры в JPEG с ограничением на итоговый
// размер. outputDir опционален: непустой — рядом сохраняется копия для дебага.
type Processor struct {
	outputDir   string
	maxWidth    int
	maxSizeByte int
	quality     int
}

func NewProcessor(outputDir string, maxWidth int) *Processor {
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	return &Processor{
		outputDir:   outputDir,
		maxWidth:    maxWidth,
		maxSizeByte: defaultMaxSizeBytes,
		quality:     defaultQuality,
	}
}

// ProcessFrame пережимает кадр в JPEG, при необходимости понижая разрешение,
// пока результат не уложится в лимит размера.
func (p *Processor) ProcessFrame(img image.Image) (ProcessedFrame, error) {
	origBounds := img.Bounds()
	origWidth := origBounds.Dx()
	origHeight := origBounds.Dy()
	if origWidth == 0 || origHeight == 0 {
		return ProcessedFrame{}, fmt.Errorf("invalid frame size: %dx%d", origWidth, origHeight)
	}

	quality := p.quality
	if quality > 100 {
		quality = 100
	}

	resizedWidth := min(origWidth, p.maxWidth)
	resizedHeight := origHeight * resizedWidth / origWidth

	var encoded []byte
	var err error
	for {
		resized := resizeNearest(img, resizedWidth, resizedHeight)
		encoded, err = encodeJPEG(resized, quality)
		if err != nil {
			return ProcessedFrame{}, err
		}

		if len(encoded) <= p.maxSizeByte {
			break
		}

		if resizedWidth <= 320 {
			return ProcessedFrame{}, fmt.Errorf("frame exceeds max size %d bytes even after downscale", p.maxSizeByte)
		}

		resizedWidth = max(1, int(float64(resizedWidth)*0.9))
		resizedHeight = max(1, origHeight*resizedWidth/origWidth)
	}

	if p.outputDir != "" {
		p.saveDebugCopy(encoded)
	}

	return ProcessedFrame{
		Data:     encoded,
		Width:    resizedWidth,
		Height:   resizedHeight,
		MimeType: "image/jpeg",
	}, nil
}

// saveDebugCopy пишет кадр на диск; ошибки не фатальны и глотаются.
func (p *Processor) saveDebugCopy(encoded []byte) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return
	}
	filename := fmt.Sprintf("capture_%s.jpg", time.Now().Format("2006-01-02_15-04-05-000"))
	_ = os.WriteFile(filepath.Join(p.outputDir, filename), encoded, 0o644)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resizeNearest(src image.Image, width int, height int) *image.RGBA {
	if width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()
	if srcWidth == 0 || srcHeight == 0 {
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		srcY := srcBounds.Min.Y + y*srcHeight/height
		for x := range width {
			srcX := srcBounds.Min.X + x*srcWidth/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}
