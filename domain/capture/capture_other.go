//go:build !windows

package capture

// NewNativeProvider returns the preferred provider for this platform.
func NewNativeProvider(rects RectSource) Provider { return NewScreenshotProvider(rects) }
