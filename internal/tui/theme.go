package tui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/zsprackett/display/internal/wm"
)

// Theme colors for the desktop. Dark is used with the lights off.
type Theme struct {
	Background tcell.Color
	Panel      tcell.Color
	Bar        tcell.Color
	BarActive  tcell.Color
	BarText    tcell.Color
	Text       tcell.Color
	TextMuted  tcell.Color
	Accent     tcell.Color
	Success    tcell.Color
	Error      tcell.Color
	Border     tcell.Color
}

var (
	Dark = Theme{
		Background: tcell.NewHexColor(0x1e1e2e),
		Panel:      tcell.NewHexColor(0x181825),
		Bar:        tcell.NewHexColor(0x313244),
		BarActive:  tcell.NewHexColor(0x89b4fa), // blue
		BarText:    tcell.NewHexColor(0xcdd6f4),
		Text:       tcell.NewHexColor(0xcdd6f4),
		TextMuted:  tcell.NewHexColor(0x6c7086),
		Accent:     tcell.NewHexColor(0xcba6f7), // mauve
		Success:    tcell.NewHexColor(0xa6e3a1), // green
		Error:      tcell.NewHexColor(0xf38ba8), // red
		Border:     tcell.NewHexColor(0x45475a),
	}
	Light = Theme{
		Background: tcell.NewHexColor(0xeff1f5),
		Panel:      tcell.NewHexColor(0xe6e9ef),
		Bar:        tcell.NewHexColor(0xccd0da),
		BarActive:  tcell.NewHexColor(0x1e66f5),
		BarText:    tcell.NewHexColor(0x4c4f69),
		Text:       tcell.NewHexColor(0x4c4f69),
		TextMuted:  tcell.NewHexColor(0x8c8fa1),
		Accent:     tcell.NewHexColor(0x8839ef),
		Success:    tcell.NewHexColor(0x40a02b),
		Error:      tcell.NewHexColor(0xd20f39),
		Border:     tcell.NewHexColor(0xbcc0cc),
	}
)

func ThemeFor(lightsOff bool) Theme {
	if lightsOff {
		return Dark
	}
	return Light
}

// Status icons
const (
	IconOnline  = "●"
	IconOffline = "○"
)

func StatusIcon(s wm.Status, t Theme) (string, tcell.Color) {
	if s == wm.Online {
		return IconOnline, t.Success
	}
	return IconOffline, t.Error
}
