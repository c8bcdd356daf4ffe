// Package styles provides shared lipgloss styles for CLI output and the
// interactive chat menu.
package styles

import (
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Tokyo Night color palette.
var (
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorPurple = lipgloss.Color("#bb9af7")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// Banner ASCII art for the chat header.
const Banner = `
 ╔═╗╔═╗╦═╗╦  ╔═╗╦ ╦
 ╠═╝╠═╣╠╦╝║  ║╣ ╚╦╝
 ╩  ╩ ╩╩╚═╩═╝╚═╝ ╩ `

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// TimestampStyle styles message times.
var TimestampStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// SelfStyle styles the local username.
var SelfStyle = lipgloss.NewStyle().
	Foreground(ColorGreen).
	Bold(true)

// PeerStyle styles remote usernames.
var PeerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// BroadcastStyle marks messages sent to everyone.
var BroadcastStyle = lipgloss.NewStyle().
	Foreground(ColorPurple)

// TextStyle styles message bodies.
var TextStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// UnreadStyle marks unread messages.
var UnreadStyle = lipgloss.NewStyle().
	Foreground(ColorYellow).
	Bold(true)

// DividerStyle styles horizontal dividers.
var DividerStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// OnlineStyle and OfflineStyle style presence labels.
var (
	OnlineStyle  = lipgloss.NewStyle().Foreground(ColorGreen)
	OfflineStyle = lipgloss.NewStyle().Foreground(ColorGray)
)

// RenderMessage renders one chat line: time, sender, receiver and text.
// self is highlighted differently from remote peers.
func RenderMessage(m chat.Message, self string) string {
	var b strings.Builder

	b.WriteString(TimestampStyle.Render(m.SentAt.Local().Format(time.DateTime)))
	b.WriteString(" ")
	b.WriteString(renderName(m.Sender, self))
	b.WriteString(DividerStyle.Render(" → "))
	if m.IsBroadcast() {
		b.WriteString(BroadcastStyle.Render(chat.Broadcast))
	} else {
		b.WriteString(renderName(m.Receiver, self))
	}
	b.WriteString(DividerStyle.Render(": "))
	b.WriteString(TextStyle.Render(m.Text))

	if !m.Read && m.Receiver == self {
		b.WriteString(" ")
		b.WriteString(UnreadStyle.Render("●"))
	}
	return b.String()
}

// RenderStatus renders a presence label.
func RenderStatus(s chat.Status) string {
	if s == chat.StatusOnline {
		return OnlineStyle.Render("● " + string(s))
	}
	return OfflineStyle.Render("○ " + string(s))
}

// Divider renders a horizontal rule of width cells.
func Divider(width int) string {
	return DividerStyle.Render(strings.Repeat("─", width))
}

// FormTheme returns the huh theme used by interactive prompts.
func FormTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = t.Focused.Title.Foreground(ColorBlue).Bold(true)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorGreen)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorGreen)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(ColorBlue).Foreground(lipgloss.Color("#1a1b26"))
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(lipgloss.Color("#d75f6b"))
	t.Blurred.Title = t.Blurred.Title.Foreground(ColorGray)
	return t
}

func renderName(name, self string) string {
	if name == self {
		return SelfStyle.Render(name)
	}
	return PeerStyle.Render(name)
}
