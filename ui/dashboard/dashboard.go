package dashboard

import (
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/ui/common"
	"github.com/ristiko/smilodon/util"
)

const refreshInterval = common.RefreshSeconds * time.Second

type stats struct {
	localAccounts    int
	localEvents      int
	localComments    int
	followers        int
	following        int
	queuedDeliveries int
	processedSeen    int
}

type statsLoadedMsg struct {
	stats stats
}

type refreshTickMsg struct{}

type Model struct {
	AccountId uuid.UUID
	Database  *db.DB
	Config    *util.AppConfig
	Width     int
	Height    int
	stats     stats
	loaded    bool
	isActive  bool
}

func InitialModel(accountId uuid.UUID, database *db.DB, config *util.AppConfig, width, height int) Model {
	return Model{
		AccountId: accountId,
		Database:  database,
		Config:    config,
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
		return m, tea.Batch(m.loadStats(), tickRefresh())

	case common.DeactivateViewMsg:
		m.isActive = false
		return m, nil

	case statsLoadedMsg:
		m.stats = msg.stats
		m.loaded = true
		return m, nil

	case refreshTickMsg:
		if m.isActive {
			return m, tea.Batch(m.loadStats(), tickRefresh())
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("%s dashboard", util.Name)))
	s.WriteString("\n\n")

	if !m.loaded {
		s.WriteString(common.ListEmptyStyle.Render("Loading statistics..."))
		return s.String()
	}

	federation := "off"
	if m.Config != nil && m.Config.Conf.WithFederation {
		federation = "on"
	}

	line := func(label string, value string) {
		s.WriteString(fmt.Sprintf("  %-22s %s\n",
			common.ListBadgeStyle.Render(label),
			common.ListItemSelectedStyle.Render(value)))
	}

	line("federation", federation)
	line("local accounts", fmt.Sprintf("%d", m.stats.localAccounts))
	line("local events", fmt.Sprintf("%d", m.stats.localEvents))
	line("local comments", fmt.Sprintf("%d", m.stats.localComments))
	s.WriteString("\n")
	line("your followers", fmt.Sprintf("%d", m.stats.followers))
	line("you follow", fmt.Sprintf("%d", m.stats.following))
	s.WriteString("\n")
	line("queued deliveries", fmt.Sprintf("%d", m.stats.queuedDeliveries))
	line("activities seen", fmt.Sprintf("%d", m.stats.processedSeen))

	return s.String()
}

func (m Model) loadStats() tea.Cmd {
	accountId := m.AccountId
	database := m.Database
	return func() tea.Msg {
		var st stats
		var err error

		if st.localAccounts, err = database.CountLocalAccounts(); err != nil {
			log.Printf("Dashboard: Failed to count accounts: %v", err)
		}
		if st.localEvents, err = database.CountLocalEvents(); err != nil {
			log.Printf("Dashboard: Failed to count events: %v", err)
		}
		if st.localComments, err = database.CountLocalComments(); err != nil {
			log.Printf("Dashboard: Failed to count comments: %v", err)
		}
		if st.followers, err = database.CountFollowers(accountId); err != nil {
			log.Printf("Dashboard: Failed to count followers: %v", err)
		}
		if st.following, err = database.CountFollowing(accountId); err != nil {
			log.Printf("Dashboard: Failed to count following: %v", err)
		}
		if st.queuedDeliveries, err = database.CountQueuedDeliveries(); err != nil {
			log.Printf("Dashboard: Failed to count deliveries: %v", err)
		}
		if st.processedSeen, err = database.CountProcessedActivities(); err != nil {
			log.Printf("Dashboard: Failed to count processed activities: %v", err)
		}

		return statsLoadedMsg{stats: st}
	}
}

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}
