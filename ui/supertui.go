package ui

import (
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/ui/common"
	"github.com/ristiko/smilodon/ui/dashboard"
	"github.com/ristiko/smilodon/ui/events"
	"github.com/ristiko/smilodon/ui/header"
	"github.com/ristiko/smilodon/ui/notifications"
	"github.com/ristiko/smilodon/ui/queue"
	"github.com/ristiko/smilodon/ui/register"
	"github.com/ristiko/smilodon/util"
)

var panelStyle = lipgloss.NewStyle().
	Align(lipgloss.Top, lipgloss.Top).
	BorderStyle(lipgloss.HiddenBorder()).MarginLeft(1)

// MainModel is the root model of the SSH console. It owns the per-screen
// models and routes messages between them.
type MainModel struct {
	width              int
	height             int
	config             *util.AppConfig
	database           *db.DB
	account            domain.Account
	state              common.SessionState
	headerModel        header.Model
	registerModel      register.Model
	dashboardModel     dashboard.Model
	eventsModel        events.Model
	queueModel         queue.Model
	notificationsModel notifications.Model
}

type accountCreatedMsg struct {
	account domain.Account
}

type accountCreateErrorMsg struct {
	err error
}

// NewModel builds the console for an authenticated account. An account
// with an empty username is a first-time login and starts on the
// registration screen.
func NewModel(acc domain.Account, config *util.AppConfig, database *db.DB, width, height int) MainModel {
	width = common.DefaultWindowWidth(width)
	height = common.DefaultWindowHeight(height)

	m := MainModel{
		width:    width,
		height:   height,
		config:   config,
		database: database,
		account:  acc,
		state:    common.DashboardView,
	}
	if acc.Username == "" {
		m.state = common.RegisterView
	}

	m.headerModel = header.Model{Width: width, Acc: &m.account, Domain: config.Conf.SslDomain}
	m.registerModel = register.InitialModel()
	m.dashboardModel = dashboard.InitialModel(acc.Id, database, config, width, height)
	m.eventsModel = events.InitialModel(acc.Id, database, width, height)
	m.queueModel = queue.InitialModel(database, width, height)
	m.notificationsModel = notifications.InitialModel(acc.Id, database, width, height)
	return m
}

func (m MainModel) Init() tea.Cmd {
	if m.state == common.RegisterView {
		return m.registerModel.Init()
	}
	return m.activateCurrent()
}

// activateCurrent wakes the active view and the notifications model,
// which stays live for the header badge.
func (m *MainModel) activateCurrent() tea.Cmd {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch m.state {
	case common.DashboardView:
		m.dashboardModel, cmd = m.dashboardModel.Update(common.ActivateViewMsg{})
	case common.EventsView:
		m.eventsModel, cmd = m.eventsModel.Update(common.ActivateViewMsg{})
	case common.QueueView:
		m.queueModel, cmd = m.queueModel.Update(common.ActivateViewMsg{})
	}
	cmds = append(cmds, cmd)

	m.notificationsModel, cmd = m.notificationsModel.Update(common.ActivateViewMsg{})
	cmds = append(cmds, cmd)

	return tea.Batch(cmds...)
}

// deactivate puts a view to sleep so its refresh ticker chain stops.
// The notifications model is never deactivated: the unread badge in the
// header needs fresh data.
func (m *MainModel) deactivate(state common.SessionState) tea.Cmd {
	var cmd tea.Cmd
	switch state {
	case common.DashboardView:
		m.dashboardModel, cmd = m.dashboardModel.Update(common.DeactivateViewMsg{})
	case common.EventsView:
		m.eventsModel, cmd = m.eventsModel.Update(common.DeactivateViewMsg{})
	case common.QueueView:
		m.queueModel, cmd = m.queueModel.Update(common.DeactivateViewMsg{})
	}
	return cmd
}

func (m *MainModel) switchTo(state common.SessionState) tea.Cmd {
	if state == m.state {
		return nil
	}
	deactivateCmd := m.deactivate(m.state)
	m.state = state

	var cmd tea.Cmd
	switch state {
	case common.DashboardView:
		m.dashboardModel, cmd = m.dashboardModel.Update(common.ActivateViewMsg{})
	case common.EventsView:
		m.eventsModel, cmd = m.eventsModel.Update(common.ActivateViewMsg{})
	case common.QueueView:
		m.queueModel, cmd = m.queueModel.Update(common.ActivateViewMsg{})
	}
	return tea.Batch(deactivateCmd, cmd)
}

func nextState(state common.SessionState) common.SessionState {
	switch state {
	case common.DashboardView:
		return common.EventsView
	case common.EventsView:
		return common.QueueView
	case common.QueueView:
		return common.NotificationsView
	default:
		return common.DashboardView
	}
}

func prevState(state common.SessionState) common.SessionState {
	switch state {
	case common.DashboardView:
		return common.NotificationsView
	case common.NotificationsView:
		return common.QueueView
	case common.QueueView:
		return common.EventsView
	default:
		return common.DashboardView
	}
}

// createAccountCmd persists a first-time login under the chosen username.
func (m MainModel) createAccountCmd(username string) tea.Cmd {
	account := m.account
	config := m.config
	database := m.database
	return func() tea.Msg {
		keys := util.GeneratePemKeypair()
		account.Id = uuid.New()
		account.Username = username
		account.ActorURI = fmt.Sprintf("%s/users/%s", config.BaseURL(), username)
		account.InboxURI = fmt.Sprintf("%s/users/%s/inbox", config.BaseURL(), username)
		account.PublicKeyPem = keys.Public
		account.PrivateKeyPem = keys.Private
		account.ApiKey = util.RandomString(40)
		account.CreatedAt = time.Now()

		if err := database.CreateAccount(&account); err != nil {
			log.Printf("Could not create account %s: %v", username, err)
			return accountCreateErrorMsg{err: fmt.Errorf("username not available")}
		}
		log.Printf("Created account %s (%s)", username, account.Id)
		return accountCreatedMsg{account: account}
	}
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = common.DefaultWindowWidth(msg.Width)
		m.height = common.DefaultWindowHeight(msg.Height)
		m.headerModel.Width = m.width
		m.dashboardModel.Width = m.width
		m.dashboardModel.Height = m.height
		m.eventsModel.Width = m.width
		m.eventsModel.Height = m.height
		m.queueModel.Width = m.width
		m.queueModel.Height = m.height
		m.notificationsModel.Width = m.width
		m.notificationsModel.Height = m.height
		return m, nil

	case register.SubmitMsg:
		return m, m.createAccountCmd(msg.Username)

	case accountCreateErrorMsg:
		m.registerModel.Error = msg.err.Error()
		return m, nil

	case accountCreatedMsg:
		m.account = msg.account
		m.headerModel = header.Model{Width: m.width, Acc: &m.account, Domain: m.config.Conf.SslDomain}
		m.dashboardModel = dashboard.InitialModel(m.account.Id, m.database, m.config, m.width, m.height)
		m.eventsModel = events.InitialModel(m.account.Id, m.database, m.width, m.height)
		m.notificationsModel = notifications.InitialModel(m.account.Id, m.database, m.width, m.height)
		m.state = common.DashboardView
		return m, m.activateCurrent()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.state != common.RegisterView {
				return m, m.switchTo(nextState(m.state))
			}
		case "shift+tab":
			if m.state != common.RegisterView {
				return m, m.switchTo(prevState(m.state))
			}
		}

		// Remaining keys go to the active view only.
		switch m.state {
		case common.RegisterView:
			m.registerModel, cmd = m.registerModel.Update(msg)
		case common.EventsView:
			m.eventsModel, cmd = m.eventsModel.Update(msg)
		case common.QueueView:
			m.queueModel, cmd = m.queueModel.Update(msg)
		case common.NotificationsView:
			m.notificationsModel, cmd = m.notificationsModel.Update(msg)
		}
		return m, cmd

	default:
		// Data messages fan out: each model only reacts to its own
		// message types.
		m.registerModel, cmd = m.registerModel.Update(msg)
		cmds = append(cmds, cmd)
		m.dashboardModel, cmd = m.dashboardModel.Update(msg)
		cmds = append(cmds, cmd)
		m.eventsModel, cmd = m.eventsModel.Update(msg)
		cmds = append(cmds, cmd)
		m.queueModel, cmd = m.queueModel.Update(msg)
		cmds = append(cmds, cmd)
		m.notificationsModel, cmd = m.notificationsModel.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m MainModel) View() string {
	if m.state == common.RegisterView {
		return m.registerModel.View()
	}

	m.headerModel.UnreadCount = m.notificationsModel.UnreadCount

	var body string
	switch m.state {
	case common.DashboardView:
		body = m.dashboardModel.View()
	case common.EventsView:
		body = m.eventsModel.View()
	case common.QueueView:
		body = m.queueModel.View()
	case common.NotificationsView:
		body = m.notificationsModel.View()
	}

	help := common.HelpStyle.Render("tab: next view • shift+tab: previous • ctrl+c: quit")

	return m.headerModel.View() + "\n" +
		panelStyle.Width(m.width).Render(body) + "\n" +
		help
}
