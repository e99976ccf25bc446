// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Robotics

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kestrelrobotics/bootscope/pkg/cyserial"
	"github.com/spf13/cobra"
)

var (
	watchMaxLogEntries int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live TUI dashboard of link traffic",
	Long: `Full-screen live view of the Cyphal/serial link.

Shows running statistics (byte and transfer rates, request/response/message
counts, abandoned frame estimate) above a scrolling log of decoded transfers.
Scroll the log with the arrow keys or PgUp/PgDn; press 'q' to quit.

Supports both serial and WebSocket connections.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchMaxLogEntries, "max-log", 500, "Maximum transfer log entries to retain")
}

// Log entry for the transfer viewport
type watchLogEntry struct {
	timestamp time.Time
	line      string
}

// TUI model
type watchModel struct {
	connInfo      string
	stats         *cyserial.Statistics
	log           []watchLogEntry
	maxLogEntries int
	vp            viewport.Model
	vpReady       bool
	follow        bool
	readErr       error
	width         int
	height        int
	quitting      bool
}

// Messages
type watchTickMsg time.Time
type watchTransferMsg struct {
	record *cyserial.CaptureRecord
}
type watchByteMsg struct {
	data []byte
}
type watchErrMsg struct {
	err error
}

func initialWatchModel(connInfo string) watchModel {
	return watchModel{
		connInfo:      connInfo,
		stats:         cyserial.NewStatistics(),
		log:           make([]watchLogEntry, 0),
		maxLogEntries: watchMaxLogEntries,
		follow:        true,
		width:         80,
		height:        24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		watchTickCmd(),
		tea.EnterAltScreen,
	)
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
		default:
			// Manual scrolling suspends follow mode
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			m.follow = m.vp.AtBottom()
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logHeight := m.height - 10
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.vpReady {
			m.vp = viewport.New(m.width, logHeight)
			m.vpReady = true
		} else {
			m.vp.Width = m.width
			m.vp.Height = logHeight
		}
		m.refreshLog()

	case watchTickMsg:
		// Update statistics rates
		m.stats.CalculateRates()
		return m, watchTickCmd()

	case watchByteMsg:
		for _, b := range msg.data {
			m.stats.UpdateByte(b)
		}

	case watchTransferMsg:
		tr := msg.record.Transfer()
		m.stats.UpdateTransfer(tr)
		m.addLogEntry(formatWatchLine(msg.record))
		m.refreshLog()

	case watchErrMsg:
		m.readErr = msg.err
	}

	return m, nil
}

func (m *watchModel) addLogEntry(line string) {
	m.log = append(m.log, watchLogEntry{timestamp: time.Now(), line: line})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m *watchModel) refreshLog() {
	if !m.vpReady {
		return
	}
	lines := make([]string, len(m.log))
	for i, e := range m.log {
		lines[i] = fmt.Sprintf("[%s] %s", e.timestamp.Format("15:04:05.000"), e.line)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.vp.GotoBottom()
	}
}

func formatWatchLine(rec *cyserial.CaptureRecord) string {
	tr := rec.Transfer()
	return fmt.Sprintf("%-24s %s -> %s tid=%d len=%d",
		cyserial.FormatDataSpec(tr.DataSpec),
		cyserial.FormatNodeID(tr.Source),
		cyserial.FormatNodeID(tr.Destination),
		tr.TransferID,
		len(tr.Payload))
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BOOTSCOPE - LINK WATCH"))
	s.WriteString("\n")
	followState := "follow"
	if !m.follow {
		followState = "scroll"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'f' toggle follow, 'q' quit",
		m.connInfo, followState)))
	s.WriteString("\n\n")

	// Statistics
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.BytesConsumed)),
		statsLabelStyle.Render("Transfers:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Transfers)),
		statsLabelStyle.Render("Abandoned:"), func() string {
			if n := m.stats.AbandonedFrames(); n > 0 {
				return errorStyle.Render(fmt.Sprintf("~%d", n))
			}
			return statsValueStyle.Render("0")
		}(),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Requests)),
		statsLabelStyle.Render("Responses:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Responses)),
		statsLabelStyle.Render("Messages:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Messages)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Byte Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f B/s", m.stats.ByteRate)),
		statsLabelStyle.Render("Transfer Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f tx/s", m.stats.TransferRate)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n")

	if m.readErr != nil && m.readErr != ErrConnectionClosed {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Read error: %v", m.readErr)))
		s.WriteString("\n")
	} else if m.readErr == ErrConnectionClosed {
		s.WriteString(errorStyle.Render("Connection closed"))
		s.WriteString("\n")
	}

	// Transfer log
	if m.vpReady {
		s.WriteString(m.vp.View())
	} else {
		s.WriteString(headerStyle.Render("Waiting for terminal size..."))
	}
	s.WriteString("\n")

	return s.String()
}

func runWatch(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	m := initialWatchModel(connInfo)
	p := tea.NewProgram(m)

	// Reader goroutine: decode the byte stream and feed the TUI
	go func() {
		parser := cyserial.NewStreamParser(maxPayload)
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				p.Send(watchByteMsg{data: append([]byte(nil), buf[:n]...)})
			}
			for i := 0; i < n; i++ {
				if tr := parser.Update(buf[i]); tr != nil {
					p.Send(watchTransferMsg{record: cyserial.Snapshot(tr)})
				}
			}
			if err != nil {
				p.Send(watchErrMsg{err: err})
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
