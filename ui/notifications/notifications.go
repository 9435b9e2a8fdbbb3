package notifications

import (
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/ui/common"
)

const (
	notificationsLimit = 50
	refreshInterval    = common.RefreshSeconds * time.Second
)

type Model struct {
	AccountId     uuid.UUID
	Database      *db.DB
	Notifications []domain.Notification
	Selected      int
	Offset        int
	Width         int
	Height        int
	isActive      bool
	UnreadCount   int
}

type notificationsLoadedMsg struct {
	notifications []domain.Notification
	unreadCount   int
}

type refreshTickMsg struct{}

func InitialModel(accountId uuid.UUID, database *db.DB, width, height int) Model {
	return Model{
		AccountId:     accountId,
		Database:      database,
		Notifications: []domain.Notification{},
		Width:         width,
		Height:        height,
	}
}

func (m Model) Init() tea.Cmd {
	return nil // stays idle until activated
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case common.ActivateViewMsg:
		m.isActive = true
		return m, tea.Batch(m.loadNotifications(), tickRefresh())

	case common.DeactivateViewMsg:
		m.isActive = false
		return m, nil

	case notificationsLoadedMsg:
		m.Notifications = msg.notifications
		m.UnreadCount = msg.unreadCount
		if m.Selected >= len(m.Notifications) {
			m.Selected = len(m.Notifications) - 1
		}
		if m.Selected < 0 {
			m.Selected = 0
		}
		return m, nil

	case refreshTickMsg:
		if m.isActive {
			return m, tea.Batch(m.loadNotifications(), tickRefresh())
		}
		// Stop the ticker chain when inactive
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
			if m.Selected < len(m.Notifications)-1 {
				m.Selected++
				itemsPerPage := common.DefaultItemsPerPage
				if m.Selected >= m.Offset+itemsPerPage {
					m.Offset = m.Selected - itemsPerPage + 1
				}
			}
		case "enter":
			if m.Selected < len(m.Notifications) {
				notif := m.Notifications[m.Selected]
				if !notif.Read {
					return m, m.markRead(notif.Id)
				}
			}
		case "a":
			return m, m.markAllRead()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	title := fmt.Sprintf("Notifications (%d unread)", m.UnreadCount)
	s.WriteString(common.CaptionStyle.Render(title))
	s.WriteString("\n\n")

	if len(m.Notifications) == 0 {
		s.WriteString(common.ListEmptyStyle.Render("No notifications yet."))
		return s.String()
	}

	itemsPerPage := common.DefaultItemsPerPage
	start := m.Offset
	end := start + itemsPerPage
	if end > len(m.Notifications) {
		end = len(m.Notifications)
	}

	for i := start; i < end; i++ {
		notif := m.Notifications[i]
		selected := i == m.Selected

		line := fmt.Sprintf("%s %s %s", notif.TypeIcon(), notif.ActorHandle, notif.TypeLabel())
		timeAgo := formatTimeAgo(notif.CreatedAt)

		switch {
		case selected && !notif.Read:
			s.WriteString(common.ListSelectedPrefix +
				lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(common.COLOR_USERNAME)).Render(line) +
				"  " + common.ListBadgeStyle.Render(timeAgo))
		case selected:
			s.WriteString(common.ListSelectedPrefix +
				common.ListItemSelectedStyle.Render(line) +
				"  " + common.ListBadgeStyle.Render(timeAgo))
		case !notif.Read:
			s.WriteString(common.ListUnselectedPrefix +
				lipgloss.NewStyle().Bold(true).Render(line) +
				"  " + common.ListBadgeStyle.Render(timeAgo))
		default:
			s.WriteString(common.ListUnselectedPrefix +
				common.ListItemStyle.Render(line) +
				"  " + common.ListBadgeStyle.Render(timeAgo))
		}
		s.WriteString("\n")

		if notif.Title != "" && notif.NotificationType != domain.NotificationFollow {
			s.WriteString("  " + common.ListBadgeStyle.Render("\""+truncate(notif.Title, 60)+"\""))
			s.WriteString("\n")
		}
	}

	if len(m.Notifications) > itemsPerPage {
		pageInfo := fmt.Sprintf("Showing %d-%d of %d", start+1, end, len(m.Notifications))
		s.WriteString("\n" + common.ListBadgeStyle.Render(pageInfo))
	}

	s.WriteString("\n" + common.HelpStyle.Render("enter: mark read • a: mark all read"))
	return s.String()
}

func (m Model) loadNotifications() tea.Cmd {
	accountId := m.AccountId
	database := m.Database
	return func() tea.Msg {
		err, notifications := database.ReadNotificationsByAccountId(accountId, notificationsLimit)
		if err != nil {
			log.Printf("Failed to load notifications: %v", err)
			return notificationsLoadedMsg{notifications: []domain.Notification{}}
		}
		unreadCount, err := database.CountUnreadNotifications(accountId)
		if err != nil {
			log.Printf("Failed to get unread count: %v", err)
			unreadCount = 0
		}
		return notificationsLoadedMsg{notifications: notifications, unreadCount: unreadCount}
	}
}

func (m Model) markRead(notificationId uuid.UUID) tea.Cmd {
	accountId := m.AccountId
	database := m.Database
	load := m.loadNotifications()
	return func() tea.Msg {
		if _, err := database.MarkNotificationRead(notificationId, accountId); err != nil {
			log.Printf("Failed to mark notification as read: %v", err)
		}
		return load()
	}
}

func (m Model) markAllRead() tea.Cmd {
	accountId := m.AccountId
	database := m.Database
	load := m.loadNotifications()
	return func() tea.Msg {
		if err := database.MarkAllNotificationsRead(accountId); err != nil {
			log.Printf("Failed to mark all notifications as read: %v", err)
		}
		return load()
	}
}

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// formatTimeAgo formats a time as a relative string (e.g., "2h ago")
func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(duration.Hours()/24/7))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%dmo ago", int(duration.Hours()/24/30))
	default:
		return fmt.Sprintf("%dy ago", int(duration.Hours()/24/365))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
