package events

import (
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/ui/common"
)

const refreshInterval = common.RefreshSeconds * time.Second

type eventsLoadedMsg struct {
	events []domain.Event
}

type refreshTickMsg struct{}

type Model struct {
	AccountId uuid.UUID
	Database  *db.DB
	Events    []domain.Event
	Selected  int
	Offset    int
	Width     int
	Height    int
	isActive  bool
}

func InitialModel(accountId uuid.UUID, database *db.DB, width, height int) Model {
	return Model{
		AccountId: accountId,
		Database:  database,
		Events:    []domain.Event{},
		Width:     width,
		Height:    height,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case common.ActivateViewMsg:
		m.isActive = true
		return m, tea.Batch(m.loadEvents(), tickRefresh())

	case common.DeactivateViewMsg:
		m.isActive = false
		return m, nil

	case eventsLoadedMsg:
		m.Events = msg.events
		if m.Selected >= len(m.Events) {
			m.Selected = len(m.Events) - 1
		}
		if m.Selected < 0 {
			m.Selected = 0
		}
		return m, nil

	case refreshTickMsg:
		if m.isActive {
			return m, tea.Batch(m.loadEvents(), tickRefresh())
		}
		return m, nil

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
			if m.Selected < len(m.Events)-1 {
				m.Selected++
				itemsPerPage := common.DefaultItemsPerPage
				if m.Selected >= m.Offset+itemsPerPage {
					m.Offset = m.Selected - itemsPerPage + 1
				}
			}
		case "r":
			return m, m.loadEvents()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render("Your events"))
	s.WriteString("\n\n")

	if len(m.Events) == 0 {
		s.WriteString(common.ListEmptyStyle.Render("No events yet. Create one through the API."))
		return s.String()
	}

	itemsPerPage := common.DefaultItemsPerPage
	start := m.Offset
	end := start + itemsPerPage
	if end > len(m.Events) {
		end = len(m.Events)
	}

	maxTitleWidth := m.Width - 40
	if maxTitleWidth < 20 {
		maxTitleWidth = 20
	}
	if maxTitleWidth > common.MaxContentTruncateWidth {
		maxTitleWidth = common.MaxContentTruncateWidth
	}

	for i := start; i < end; i++ {
		event := m.Events[i]
		selected := i == m.Selected

		title := runewidth.Truncate(event.Title, maxTitleWidth, "…")
		when := event.StartTime.Format("2006-01-02 15:04")
		line := fmt.Sprintf("%s  %s", when, title)

		badges := []string{strings.ToLower(string(event.Visibility))}
		if event.IsShare() {
			badges = append(badges, "share")
		}
		if event.IsRecurring() {
			badges = append(badges, strings.ToLower(string(event.Recurrence)))
		}
		badge := common.ListBadgeStyle.Render(fmt.Sprintf("[%s]", strings.Join(badges, ",")))

		if selected {
			s.WriteString(common.ListSelectedPrefix + common.ListItemSelectedStyle.Render(line) + " " + badge)
		} else {
			s.WriteString(common.ListUnselectedPrefix + common.ListItemStyle.Render(line) + " " + badge)
		}
		s.WriteString("\n")
	}

	if len(m.Events) > itemsPerPage {
		pageInfo := fmt.Sprintf("Showing %d-%d of %d", start+1, end, len(m.Events))
		s.WriteString("\n" + common.ListBadgeStyle.Render(pageInfo))
	}

	s.WriteString("\n" + common.HelpStyle.Render("r: refresh"))
	return s.String()
}

func (m Model) loadEvents() tea.Cmd {
	accountId := m.AccountId
	database := m.Database
	return func() tea.Msg {
		err, events := database.ReadEventsByAccountId(accountId, &accountId)
		if err != nil {
			log.Printf("Events: Failed to load events: %v", err)
			return eventsLoadedMsg{events: []domain.Event{}}
		}
		return eventsLoadedMsg{events: events}
	}
}

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}
