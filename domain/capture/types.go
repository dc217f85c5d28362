// Package capture grabs the visible contents of a target window.
package capture

import (
	"errors"
	"image"

	"github.com/soocke/pixel-watch-go/domain/platform"
)

// ErrCaptureFailed wraps every provider failure. Monitors treat it as
// transient and retry on the next cycle.
var ErrCaptureFailed = errors.New("capture failed")

// Provider returns the current pixels of a window. Returned frames may come
// from the frame pool; callers hand them back with RecycleFrame once done.
type Provider interface {
	Capture(h platform.Handle) (*image.RGBA, error)
}

// RectSource reports a window's screen rectangle. platform.Locator satisfies it.
type RectSource interface {
	Rect(h platform.Handle) (platform.Rect, error)
}
