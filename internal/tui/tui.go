// Package tui implements the terminal control surface of the desktop player.
//
// The video itself is rendered by the pipeline's own sink window. The terminal
// shows the playback state, a seek bar refreshed by polling, the volume and
// any errors, and maps keys to player controls.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/player"
	"github.com/augmedia/augplayer/internal/watch"
)

// Player is the set of player operations the terminal UI drives.
type Player interface {
	player.MediaPlayer
	SeekPercent(percent float64) error
	Progress() (float64, bool)
	Status() player.Status
	WatchStatus(func(player.Status)) watch.Watch
}

// Options configures the terminal UI.
type Options struct {
	Title        string
	PollInterval time.Duration
}

const volumeStep = 0.05

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6C7086")).
			Padding(0, 1)
)

// Model is the bubbletea model of the player UI.
type Model struct {
	player Player
	opts   Options
	keys   KeyMap
	help   help.Model

	seekBar   progress.Model
	volumeBar progress.Model

	status  player.Status
	percent float64
	// paused selects the label of the play/pause control. Playback starts on
	// launch, so it starts out false.
	paused bool
	err    string
	width  int
}

type statusMsg player.Status

type pollMsg time.Time

// New creates the UI model for p.
func New(p Player, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return Model{
		player:    p,
		opts:      opts,
		keys:      DefaultKeyMap,
		help:      help.New(),
		seekBar:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		volumeBar: progress.New(progress.WithSolidFill("#10B981"), progress.WithoutPercentage(), progress.WithWidth(20)),
		status:    p.Status(),
	}
}

// Run shows the UI until the user quits.
func Run(p Player, opts Options) error {
	prog := tea.NewProgram(New(p, opts), tea.WithAltScreen())

	w := p.WatchStatus(func(s player.Status) { prog.Send(statusMsg(s)) })
	defer func() {
		w.Cancel()
		w.Wait()
	}()

	_, err := prog.Run()
	return err
}

func (m Model) pollCmd() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), tea.SetWindowTitle(m.opts.Title))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.seekBar.Width = max(10, msg.Width-20)
		return m, nil

	case statusMsg:
		m.status = player.Status(msg)
		return m, nil

	case pollMsg:
		// Progress declines to report while the user is seeking, so the bar
		// keeps the position they chose until the seek completes.
		if percent, ok := m.player.Progress(); ok {
			m.percent = percent / 100
		}
		return m, m.pollCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.PlayPause):
		if m.player.Playing() {
			err = m.player.Pause()
			m.paused = true
		} else {
			err = m.player.Play()
			m.paused = false
		}

	case key.Matches(msg, m.keys.Stop):
		err = m.player.Stop()

	case key.Matches(msg, m.keys.Forward):
		err = m.player.SeekForward()

	case key.Matches(msg, m.keys.Backward):
		err = m.player.SeekBackward()

	case key.Matches(msg, m.keys.SeekTo):
		percent := float64(msg.String()[0]-'0') * 10
		if err = m.player.SeekPercent(percent); err == nil {
			m.percent = percent / 100
		}

	case key.Matches(msg, m.keys.VolUp):
		err = m.player.SetVolume(m.player.Volume() + volumeStep)

	case key.Matches(msg, m.keys.VolDown):
		err = m.player.SetVolume(m.player.Volume() - volumeStep)

	case key.Matches(msg, m.keys.Mute):
		err = m.player.ToggleMute()

	default:
		return m, nil
	}

	if err != nil {
		log.Errorf("Player control failed: %v", err)
		m.err = err.Error()
	} else {
		m.err = ""
	}
	m.status = m.player.Status()
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.opts.Title) + "\n\n")

	state := "⏸ Paused"
	if m.status.Playing {
		state = "▶ Playing"
	}
	control := "pause"
	if m.paused {
		control = "play"
	}
	fmt.Fprintf(&b, "%s  %s\n", labelStyle.Render(state), dimStyle.Render("[space] "+control))

	b.WriteString(m.renderSeekBar() + "\n")
	b.WriteString(m.renderVolume() + "\n")

	if m.err != "" {
		b.WriteString(errorStyle.Render("✗ "+m.err) + "\n")
	} else if m.status.LastError != "" {
		b.WriteString(errorStyle.Render("✗ "+m.status.LastError) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return borderStyle.Render(b.String())
}

func (m Model) renderSeekBar() string {
	if !m.status.SeekEnabled {
		return m.seekBar.ViewAs(1) + " " + dimStyle.Render("LIVE")
	}
	if !m.status.DurationKnown {
		return m.seekBar.ViewAs(m.percent) + " " + dimStyle.Render("--:--")
	}
	position := time.Duration(m.percent * float64(m.status.Duration))
	return fmt.Sprintf("%s %s", m.seekBar.ViewAs(m.percent),
		dimStyle.Render(formatTime(position)+" / "+formatTime(m.status.Duration)))
}

func (m Model) renderVolume() string {
	if m.status.Muted {
		return mutedStyle.Render(fmt.Sprintf("🔇 %s muted", m.volumeBar.ViewAs(0)))
	}
	return fmt.Sprintf("🔊 %s %3d%%", m.volumeBar.ViewAs(m.status.Volume), int(m.status.Volume*100+0.5))
}

// formatTime renders d as MM:SS, or H:MM:SS past an hour.
func formatTime(d time.Duration) string {
	s := int64(d.Round(time.Second) / time.Second)
	if s < 0 {
		s = 0
	}
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
