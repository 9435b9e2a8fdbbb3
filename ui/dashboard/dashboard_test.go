package dashboard

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/ui/common"
	"github.com/ristiko/smilodon/util"
)

func testConf(federation bool) *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "events.example"
	conf.Conf.WithFederation = federation
	return conf
}

func TestInitialModel(t *testing.T) {
	accountId := uuid.New()
	model := InitialModel(accountId, nil, testConf(true), 100, 40)

	if model.AccountId != accountId {
		t.Errorf("Expected AccountId %v, got %v", accountId, model.AccountId)
	}
	if model.loaded {
		t.Error("Model should start unloaded")
	}
	if model.isActive {
		t.Error("Model should start inactive")
	}
}

func TestActivateSchedulesLoad(t *testing.T) {
	model := InitialModel(uuid.New(), nil, testConf(true), 100, 40)

	model, cmd := model.Update(common.ActivateViewMsg{})
	if !model.isActive {
		t.Error("Expected isActive after ActivateViewMsg")
	}
	if cmd == nil {
		t.Error("Activation should schedule a stats load")
	}

	model, _ = model.Update(common.DeactivateViewMsg{})
	if _, cmd := model.Update(refreshTickMsg{}); cmd != nil {
		t.Error("Inactive model should not reschedule refresh")
	}
}

func TestViewBeforeAndAfterLoad(t *testing.T) {
	model := InitialModel(uuid.New(), nil, testConf(true), 100, 40)

	if view := model.View(); !strings.Contains(view, "Loading statistics") {
		t.Error("Unloaded model should show the loading message")
	}

	model, _ = model.Update(statsLoadedMsg{stats: stats{
		localAccounts:    3,
		localEvents:      7,
		followers:        2,
		queuedDeliveries: 1,
	}})

	view := model.View()
	for _, want := range []string{"federation", "local accounts", "3", "local events", "7", "queued deliveries"} {
		if !strings.Contains(view, want) {
			t.Errorf("View should contain %q: %s", want, view)
		}
	}
}

func TestViewFederationFlag(t *testing.T) {
	model := InitialModel(uuid.New(), nil, testConf(false), 100, 40)
	model, _ = model.Update(statsLoadedMsg{})

	if !strings.Contains(model.View(), "off") {
		t.Error("View should show federation off for a non-federating instance")
	}
}
