package banner

import (
	"quickbench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
              _      __   __                     __  
  ____ ___ __(_)____/ /__/ /  ___  ___  _______ / /  
 / __ '/ // / / __/  '_/ _ \/ -_)/ _ \/ __/ _ \/ _ \ 
 \_, /\_,_/_/\__/_/\_\/_.__/\__//_//_/\__/_//_/_//_/ 
  /_/                                                `

	tagline := renderer.NewStyle().Foreground(styles.ColorSubtle).
		Render("  QuickPizza load generator for collector benchmarks")

	return "\n" + style.Render(ascii) + "\n" + tagline + "\n"
}
