// Package platform declares the window-system collaborators used by monitors:
// locating a target window, reading its rectangle and bringing it forward.
package platform

import (
	"errors"
	"fmt"
	"image"
)

// ErrWindowNotFound is returned when no window matches a title.
var ErrWindowNotFound = errors.New("window not found")

// Handle is an opaque window identifier. Zero is never valid.
type Handle uintptr

// Rect is a window rectangle in screen pixels.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Rectangle converts r to an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// ToScreen maps a window-local point to screen coordinates.
func (r Rect) ToScreen(x, y int) image.Point {
	return image.Pt(r.Left+x, r.Top+y)
}

// Locator resolves window titles to handles and reports window geometry.
type Locator interface {
	// FindExact returns the window whose title equals title. A non-empty
	// class narrows the search.
	FindExact(title, class string) (Handle, error)
	// FindPartial returns the first visible window whose title contains title.
	FindPartial(title string) (Handle, error)
	Rect(h Handle) (Rect, error)
	IsValid(h Handle) bool
	Title(h Handle) string
}

// Activator is implemented by locators able to raise a window to the
// foreground.
type Activator interface {
	Activate(h Handle) error
}

// Resolve tries an exact match first and falls back to the first partial
// title match.
func Resolve(l Locator, title, class string) (Handle, error) {
	if h, err := l.FindExact(title, class); err == nil && h != 0 {
		return h, nil
	}
	h, err := l.FindPartial(title)
	if err != nil {
		return 0, err
	}
	if h == 0 {
		return 0, fmt.Errorf("%q: %w", title, ErrWindowNotFound)
	}
	return h, nil
}
