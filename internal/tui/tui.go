// Package tui is the operator's slot preview: a terminal view of what each
// delivery slot would contain right now, before anything is sent.
package tui

import (
	"fmt"
	"os"
	"strings"

	"citybrief/internal/core"
	"citybrief/internal/slots"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// model holds one placement per slot and the cursor state.
type model struct {
	placements  map[core.Slot]slots.Placement
	slotIdx     int // index into core.AllSlots
	selectedIdx int // index into the current slot's included items
	width       int
	height      int
	quitting    bool
}

// InitialModel builds the preview model over per-slot placements.
func InitialModel(placements map[core.Slot]slots.Placement) model {
	return model{placements: placements}
}

func (m model) currentSlot() core.Slot {
	return core.AllSlots[m.slotIdx]
}

func (m model) currentItems() []core.ContentItem {
	return m.placements[m.currentSlot()].Included
}

// Init is the first command that will be run. We don't need any for now.
func (m model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.currentItems())-1 {
				m.selectedIdx++
			}
		case "tab", "right", "l":
			m.slotIdx = (m.slotIdx + 1) % len(core.AllSlots)
			m.selectedIdx = 0
		case "shift+tab", "left", "h":
			m.slotIdx = (m.slotIdx + len(core.AllSlots) - 1) % len(core.AllSlots)
			m.selectedIdx = 0
		}
	}

	return m, nil
}

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 2).Bold(true).Foreground(lipgloss.Color("36"))
	urgentStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (m model) View() string {
	if m.quitting {
		return "Quitting...\n"
	}

	docStyle := lipgloss.NewStyle().Margin(1, 2)
	paneWidth := m.width/2 - 5
	if paneWidth < 30 {
		paneWidth = 30
	}
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)

	var tabs []string
	for i, slot := range core.AllSlots {
		p := m.placements[slot]
		label := fmt.Sprintf("%s (%d)", slot, len(p.Included))
		if i == m.slotIdx {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	placement := m.placements[m.currentSlot()]
	items := placement.Included

	var list strings.Builder
	if len(items) == 0 {
		list.WriteString("Nothing routed to this slot.")
	} else {
		for i, item := range items {
			cursor := " "
			if i == m.selectedIdx {
				cursor = ">"
			}
			title := item.Title
			if item.UrgencyClass == core.UrgencyUrgent {
				title = urgentStyle.Render(title)
			}
			list.WriteString(fmt.Sprintf("%s [%2d] %s\n", cursor, item.PriorityScore, title))
		}
	}
	list.WriteString(dimStyle.Render(fmt.Sprintf("\n%d deferred, %d excluded", len(placement.Deferred), placement.ExcludedCount)))

	var detail strings.Builder
	if m.selectedIdx < len(items) {
		item := items[m.selectedIdx]
		detail.WriteString(fmt.Sprintf("%s\n\n", item.Title))
		detail.WriteString(fmt.Sprintf("type:     %s\nmodule:   %s\nurgency:  %s\nscore:    %d\nsource:   %s\n",
			item.ContentType, item.ModuleID, item.UrgencyClass, item.PriorityScore, item.Source))
		if item.Severity != "" {
			detail.WriteString(fmt.Sprintf("severity: %s\n", item.Severity))
		}
		if len(item.RouteTags) > 0 {
			detail.WriteString(fmt.Sprintf("routes:   %s\n", strings.Join(item.RouteTags, ", ")))
		}
		if item.Body != "" {
			body := item.Body
			if len(body) > 400 {
				body = body[:400] + "..."
			}
			detail.WriteString("\n" + body + "\n")
		}
	} else {
		detail.WriteString("No item selected.")
	}

	leftPane := listStyle.Render(list.String())
	rightPane := detailStyle.Render(detail.String())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	help := "\n[tab] Slot | [↑/k] Up | [↓/j] Down | [q] Quit"

	return docStyle.Render(tabBar + "\n" + mainContent + help)
}

// StartPreview runs the Bubble Tea application over the placements.
func StartPreview(placements map[core.Slot]slots.Placement) {
	p := tea.NewProgram(InitialModel(placements), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
