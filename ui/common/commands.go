package common

type SessionState uint

const (
	RegisterView      SessionState = iota // first-login username prompt
	DashboardView                         // instance statistics
	EventsView                            // the operator's own events
	QueueView                             // delivery queue monitor
	NotificationsView                     // notification list
)

// ActivateViewMsg is sent when a view becomes active (visible)
type ActivateViewMsg struct{}

// DeactivateViewMsg is sent when a view becomes inactive (hidden)
type DeactivateViewMsg struct{}
