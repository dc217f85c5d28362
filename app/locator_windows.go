//go:build windows

package app

import "github.com/soocke/pixel-watch-go/domain/platform"

func newLocator() platform.Locator { return platform.NewLocator() }
