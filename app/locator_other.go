//go:build !windows

package app

import (
	"github.com/soocke/pixel-watch-go/domain/input/autogui"
	"github.com/soocke/pixel-watch-go/domain/platform"
)

// Outside Windows, windows are found through robotgo's process list.
func newLocator() platform.Locator { return autogui.NewLocator() }
