package capture

import (
	"image"

	"github.com/vova616/screenshot"

	"github.com/soocke/pixel-watch-go/domain/platform"
)

// ScreenshotProvider captures the screen region under a window using the
// screenshot library. It works wherever that library does, at the cost of
// including any overlapping windows.
type ScreenshotProvider struct {
	rects RectSource
}

func NewScreenshotProvider(rects RectSource) *ScreenshotProvider {
	return &ScreenshotProvider{rects: rects}
}

func (p *ScreenshotProvider) Capture(h platform.Handle) (*image.RGBA, error) {
	screen, err := screenshot.ScreenRect()
	if err != nil {
		return nil, err
	}
	vis, win, err := visiblePart(p.rects, h, screen)
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(vis)
	if err != nil {
		return nil, err
	}
	return windowFrame(img, win.Size(), vis.Min.Sub(win.Min)), nil
}
