package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the docflow banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"     _             __ _               ", "#818cf8"},
		{"  __| | ___   ___ / _| | _____      __", "#a78bfa"},
		{" / _` |/ _ \\ / __| |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{"| (_| | (_) | (__|  _| | (_) \\ V  V / ", "#e879f9"},
		{" \\__,_|\\___/ \\___|_| |_|\\___/ \\_/\\_/  ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
