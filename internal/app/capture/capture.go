package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	imgsvc "github.com/lpalbou/AbstractAssistant/internal/service/image"
)

// Capturer снимает все активные мониторы одним кадром и отдаёт его как
// data URL для вложения к запросу генерации.
type Capturer struct {
	processor *imgsvc.Processor
	logger    *zap.SugaredLogger
}

func New(processor *imgsvc.Processor, logger *zap.SugaredLogger) *Capturer {
	return &Capturer{processor: processor, logger: logger}
}

// Capture делает снимок экрана. Возвращает data URL с JPEG-кадром.
func (c *Capturer) Capture(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", context.Cause(ctx)
	default:
	}

	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return "", errors.New("no active displays detected")
	}

	// Вычисляем объединённые границы всех мониторов
	union := image.Rect(0, 0, 0, 0)
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		if i == 0 {
			union = b
			continue
		}
		union = union.Union(b)
	}

	canvas := image.NewRGBA(union)
	captured := 0
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		img, err := screenshot.CaptureRect(b)
		if err != nil {
			c.logger.Errorw("Failed to capture display", "index", i, "error", err)
			continue
		}
		// Копируем в холст со смещением
		dstPoint := image.Pt(b.Min.X-union.Min.X, b.Min.Y-union.Min.Y)
		dstRect := image.Rectangle{Min: dstPoint, Max: dstPoint.Add(b.Size())}
		draw.Draw(canvas, dstRect, img, image.Point{}, draw.Src)
		captured++
	}
	if captured == 0 {
		return "", errors.New("failed to capture any display")
	}

	frame, err := c.processor.ProcessFrame(canvas)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("data:%s;base64,%s", frame.MimeType, base64.StdEncoding.EncodeToString(frame.Data)), nil
}
