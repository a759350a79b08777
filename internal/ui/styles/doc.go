// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the clerk TUI.

This package defines the color palette and styled components used
throughout the application. All colors use Lip Gloss AdaptiveColor for
automatic light/dark terminal detection.

# Color System (colors.go)

## Primary Accent Colors

  - Purple - Primary accent for assistant messages and selections
  - Cyan - Brand color for info, commands, and user highlights
  - Emerald - Success states and the saved indicator
  - Amber - Warnings and the unsaved indicator
  - Rose - Errors and failure notices

## Text Colors

Hierarchical text color system:

	TextPrimary   - Main content text
	TextSecondary - Supporting text
	TextMuted     - De-emphasized text
	TextInverse   - Text on colored backgrounds

# Theme System (theme.go)

The Theme struct provides runtime color adaptation:

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}
	if theme.HasTrueColor {
		// Terminal supports 16M colors
	}

# Status Indicators

ASCII indicators paired with high-contrast colors, so state is readable
without relying on color alone:

	StatusIndicators.Success   - [OK]
	StatusIndicators.Error     - [X]
	StatusIndicators.Warning   - [!]
	StatusIndicators.Info      - [i]

# Usage Example

	import "github.com/morganforge/clerk/internal/ui/styles"

	headerStyle := lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		Foreground(styles.TextPrimary)

	theme := styles.NewTheme()
	bar := theme.StatusBar.Render("ready")
*/
package styles
