package queue

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/ui/common"
)

const (
	queuePageLimit  = 50
	refreshInterval = 10 * time.Second
)

type queueLoadedMsg struct {
	deliveries []domain.DeliveryItem
	total      int
}

type refreshTickMsg struct{}

// Model is the delivery queue monitor. Rows show the target inbox, the
// attempt count and the next retry time.
type Model struct {
	Database   *db.DB
	Deliveries []domain.DeliveryItem
	Total      int
	Selected   int
	Offset     int
	Width      int
	Height     int
	spinner    spinner.Model
	isActive   bool
	loaded     bool
}

func InitialModel(database *db.DB, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(common.COLOR_ACCENT))

	return Model{
		Database:   database,
		Deliveries: []domain.DeliveryItem{},
		Width:      width,
		Height:     height,
		spinner:    sp,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case common.ActivateViewMsg:
		m.isActive = true
		m.loaded = false
		return m, tea.Batch(m.loadQueue(), m.spinner.Tick, tickRefresh())

	case common.DeactivateViewMsg:
		m.isActive = false
		return m, nil

	case queueLoadedMsg:
		m.Deliveries = msg.deliveries
		m.Total = msg.total
		m.loaded = true
		if m.Selected >= len(m.Deliveries) {
			m.Selected = len(m.Deliveries) - 1
		}
		if m.Selected < 0 {
			m.Selected = 0
		}
		return m, nil

	case refreshTickMsg:
		if m.isActive {
			return m, tea.Batch(m.loadQueue(), tickRefresh())
		}
		return m, nil

	case spinner.TickMsg:
		if !m.isActive || m.loaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Selected > 0 {
				m.Selected--
				if m.Selected < m.Offset {
					m.Offset = m.Selected
				}
			}
		case "down", "j":
			if m.Selected < len(m.Deliveries)-1 {
				m.Selected++
				itemsPerPage := common.DefaultItemsPerPage
				if m.Selected >= m.Offset+itemsPerPage {
					m.Offset = m.Selected - itemsPerPage + 1
				}
			}
		case "r":
			return m, m.loadQueue()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("Delivery queue (%d pending)", m.Total)))
	s.WriteString("\n\n")

	if !m.loaded {
		s.WriteString(m.spinner.View() + " Loading queue...")
		return s.String()
	}

	if len(m.Deliveries) == 0 {
		s.WriteString(common.ListEmptyStyle.Render("The queue is empty. All activities delivered."))
		return s.String()
	}

	itemsPerPage := common.DefaultItemsPerPage
	start := m.Offset
	end := start + itemsPerPage
	if end > len(m.Deliveries) {
		end = len(m.Deliveries)
	}

	maxInboxWidth := m.Width - 40
	if maxInboxWidth < 20 {
		maxInboxWidth = 20
	}

	now := time.Now()
	for i := start; i < end; i++ {
		item := m.Deliveries[i]
		selected := i == m.Selected

		inbox := runewidth.Truncate(item.InboxURI, maxInboxWidth, "…")
		retryIn := item.NextRetryAt.Sub(now).Round(time.Second)
		var retry string
		if retryIn <= 0 {
			retry = "due now"
		} else {
			retry = fmt.Sprintf("in %s", retryIn)
		}

		line := fmt.Sprintf("%s  %s", inbox, common.ListBadgeStyle.Render(retry))
		var badge string
		if item.Attempts > 0 {
			badge = " " + common.ListWarnBadgeStyle.Render(fmt.Sprintf("[attempt %d]", item.Attempts))
		}

		if selected {
			s.WriteString(common.ListSelectedPrefix + common.ListItemSelectedStyle.Render(line) + badge)
		} else {
			s.WriteString(common.ListUnselectedPrefix + common.ListItemStyle.Render(line) + badge)
		}
		s.WriteString("\n")
	}

	if m.Total > len(m.Deliveries) {
		s.WriteString("\n" + common.ListBadgeStyle.Render(
			fmt.Sprintf("Showing first %d of %d", len(m.Deliveries), m.Total)))
	}

	s.WriteString("\n" + common.HelpStyle.Render("r: refresh"))
	return s.String()
}

func (m Model) loadQueue() tea.Cmd {
	database := m.Database
	return func() tea.Msg {
		err, deliveries := database.ReadQueuedDeliveries(queuePageLimit)
		if err != nil {
			log.Printf("Queue: Failed to load deliveries: %v", err)
			return queueLoadedMsg{deliveries: []domain.DeliveryItem{}}
		}
		total, err := database.CountQueuedDeliveries()
		if err != nil {
			log.Printf("Queue: Failed to count deliveries: %v", err)
			total = len(deliveries)
		}
		return queueLoadedMsg{deliveries: deliveries, total: total}
	}
}

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}
