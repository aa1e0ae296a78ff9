package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the player key bindings.
type KeyMap struct {
	PlayPause key.Binding
	Stop      key.Binding
	Forward   key.Binding
	Backward  key.Binding
	SeekTo    key.Binding
	VolUp     key.Binding
	VolDown   key.Binding
	Mute      key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.Stop, k.Forward, k.Backward, k.Mute, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.Stop},
		{k.Forward, k.Backward, k.SeekTo},
		{k.VolUp, k.VolDown, k.Mute},
		{k.Help, k.Quit},
	}
}

var DefaultKeyMap = KeyMap{
	PlayPause: key.NewBinding(
		key.WithKeys(" ", "space"),
		key.WithHelp("space", "play/pause"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Forward: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "forward"),
	),
	Backward: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "backward"),
	),
	SeekTo: key.NewBinding(
		key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("0-9", "seek to 0-90%"),
	),
	VolUp: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "volume up"),
	),
	VolDown: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "volume down"),
	),
	Mute: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mute"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
