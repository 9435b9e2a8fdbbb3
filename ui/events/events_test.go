package events

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/ui/common"
)

func testEvent(title string, visibility domain.Visibility) domain.Event {
	return domain.Event{
		Id:         uuid.New(),
		Title:      title,
		Visibility: visibility,
		StartTime:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestActivateAndLoad(t *testing.T) {
	model := InitialModel(uuid.New(), nil, 100, 40)

	model, cmd := model.Update(common.ActivateViewMsg{})
	if !model.isActive {
		t.Error("Expected isActive after ActivateViewMsg")
	}
	if cmd == nil {
		t.Error("Activation should schedule a load")
	}

	model, _ = model.Update(common.DeactivateViewMsg{})
	if _, cmd := model.Update(refreshTickMsg{}); cmd != nil {
		t.Error("Inactive model should not reschedule refresh")
	}
}

func TestEventsLoadedClampsSelection(t *testing.T) {
	model := InitialModel(uuid.New(), nil, 100, 40)
	model.Selected = 4

	model, _ = model.Update(eventsLoadedMsg{events: []domain.Event{
		testEvent("One", domain.VisibilityPublic),
		testEvent("Two", domain.VisibilityFollowers),
	}})

	if model.Selected != 1 {
		t.Errorf("Selection should clamp to the last item, got %d", model.Selected)
	}
}

func TestKeyNavigation(t *testing.T) {
	model := InitialModel(uuid.New(), nil, 100, 40)
	model, _ = model.Update(eventsLoadedMsg{events: []domain.Event{
		testEvent("One", domain.VisibilityPublic),
		testEvent("Two", domain.VisibilityPublic),
		testEvent("Three", domain.VisibilityPublic),
	}})

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	if model.Selected != 2 {
		t.Errorf("Selection should stop at the last item, got %d", model.Selected)
	}
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	if model.Selected != 1 {
		t.Errorf("Expected selection 1, got %d", model.Selected)
	}
}

func TestViewShowsTitlesAndBadges(t *testing.T) {
	model := InitialModel(uuid.New(), nil, 100, 40)

	if view := model.View(); !strings.Contains(view, "No events yet") {
		t.Error("Empty model should render the empty message")
	}

	event := testEvent("Community garden day", domain.VisibilityPublic)
	event.Recurrence = domain.RecurrenceWeekly
	model, _ = model.Update(eventsLoadedMsg{events: []domain.Event{event}})

	view := model.View()
	if !strings.Contains(view, "Community garden day") {
		t.Errorf("View should show the event title: %s", view)
	}
	if !strings.Contains(view, "public") {
		t.Errorf("View should show the visibility badge: %s", view)
	}
	if !strings.Contains(view, "weekly") {
		t.Errorf("View should show the recurrence badge: %s", view)
	}
	if !strings.Contains(view, "2026-09-01 18:00") {
		t.Errorf("View should show the start time: %s", view)
	}
}
