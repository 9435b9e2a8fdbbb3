package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/activitypub"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/realtime"
)

func setupTestServices(t *testing.T) (*Services, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := setupWebTestDB(t)
	broadcaster := realtime.NewBroadcaster()
	t.Cleanup(broadcaster.Close)

	conf := testConf()
	conf.Conf.WithFederation = false

	s := &Services{
		Conf:        conf,
		DB:          database,
		AP:          activitypub.NewInboxDeps(database, broadcaster),
		Broadcaster: broadcaster,
	}
	return s, Router(s)
}

func apiRequest(t *testing.T, g *gin.Engine, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func validEventInput() map[string]any {
	return map[string]any{
		"title":      "Community picnic",
		"timezone":   "UTC",
		"startTime":  time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"visibility": "PUBLIC",
	}
}

func TestAPIAuth(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")

	t.Run("Missing key", func(t *testing.T) {
		w := apiRequest(t, g, "POST", "/api/events", "", validEventInput())
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Unknown key", func(t *testing.T) {
		w := apiRequest(t, g, "POST", "/api/events", "bogus", validEventInput())
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Valid key", func(t *testing.T) {
		w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
		if w.Code != http.StatusCreated {
			t.Errorf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestCreateEventValidation(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")

	tests := []struct {
		name      string
		mutate    func(map[string]any)
		wantField string
	}{
		{"Empty title", func(m map[string]any) { m["title"] = "" }, "title"},
		{"Bad start time", func(m map[string]any) { m["startTime"] = "tomorrow" }, "startTime"},
		{"End before start", func(m map[string]any) {
			m["endTime"] = time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		}, "endTime"},
		{"Unknown visibility", func(m map[string]any) { m["visibility"] = "SECRET" }, "visibility"},
		{"Unknown timezone", func(m map[string]any) { m["timezone"] = "Mars/Olympus" }, "timezone"},
		{"Lone latitude", func(m map[string]any) { m["latitude"] = 48.2 }, "latitude"},
		{"Bad recurrence", func(m map[string]any) { m["recurrence"] = "FORTNIGHTLY" }, "recurrence"},
		{"Recurrence end without recurrence", func(m map[string]any) {
			m["recurrenceEndDate"] = time.Now().Add(96 * time.Hour).UTC().Format(time.RFC3339)
		}, "recurrenceEndDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validEventInput()
			tt.mutate(in)
			w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, in)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse error body: %v", err)
			}
			if resp["field"] != tt.wantField {
				t.Errorf("Expected field %q, got %v", tt.wantField, resp["field"])
			}
		})
	}
}

func TestEventLifecycle(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	if w.Code != http.StatusCreated {
		t.Fatalf("Create failed: %d %s", w.Code, w.Body.String())
	}
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}

	t.Run("Non-owner update is forbidden", func(t *testing.T) {
		w := apiRequest(t, g, "PUT", "/api/events/"+created.Id.String(), bob.ApiKey, validEventInput())
		if w.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", w.Code)
		}
	})

	t.Run("Owner update", func(t *testing.T) {
		in := validEventInput()
		in["title"] = "Renamed picnic"
		w := apiRequest(t, g, "PUT", "/api/events/"+created.Id.String(), alice.ApiKey, in)
		if w.Code != http.StatusOK {
			t.Fatalf("Update failed: %d %s", w.Code, w.Body.String())
		}
		var updated eventResponse
		if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
			t.Fatalf("Failed to parse updated event: %v", err)
		}
		if updated.Title != "Renamed picnic" {
			t.Errorf("Title not updated: %s", updated.Title)
		}
	})

	t.Run("Anonymous read of public event", func(t *testing.T) {
		w := apiRequest(t, g, "GET", "/api/events/"+created.Id.String(), "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})

	t.Run("Owner delete", func(t *testing.T) {
		w := apiRequest(t, g, "DELETE", "/api/events/"+created.Id.String(), alice.ApiKey, nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("Delete failed: %d", w.Code)
		}
		w = apiRequest(t, g, "GET", "/api/events/"+created.Id.String(), alice.ApiKey, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Deleted event should 404, got %d", w.Code)
		}
	})
}

func TestPrivateEventCollapsesToNotFound(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	event := &domain.Event{
		Id:           uuid.New(),
		AccountId:    alice.Id,
		AttributedTo: alice.ActorURI,
		Title:        "Secret dinner",
		Timezone:     "UTC",
		StartTime:    time.Now().Add(24 * time.Hour),
		Visibility:   domain.VisibilityPrivate,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.DB.CreateEvent(event, nil); err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	t.Run("Owner sees it", func(t *testing.T) {
		w := apiRequest(t, g, "GET", "/api/events/"+event.Id.String(), alice.ApiKey, nil)
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})

	t.Run("Other viewer gets 404, not 403", func(t *testing.T) {
		w := apiRequest(t, g, "GET", "/api/events/"+event.Id.String(), bob.ApiKey, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestLikeAndUnlike(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	path := fmt.Sprintf("/api/events/%s/like", created.Id)

	if w := apiRequest(t, g, "PUT", path, bob.ApiKey, nil); w.Code != http.StatusOK {
		t.Fatalf("Like failed: %d", w.Code)
	}
	// Liking twice stays idempotent.
	if w := apiRequest(t, g, "PUT", path, bob.ApiKey, nil); w.Code != http.StatusOK {
		t.Fatalf("Second like failed: %d", w.Code)
	}
	if count, _ := s.DB.CountLikesByEventId(created.Id); count != 1 {
		t.Errorf("Expected 1 like, got %d", count)
	}

	// The author gets a like notification.
	if unread, _ := s.DB.CountUnreadNotifications(alice.Id); unread != 1 {
		t.Errorf("Expected 1 unread notification for the author, got %d", unread)
	}

	if w := apiRequest(t, g, "DELETE", path, bob.ApiKey, nil); w.Code != http.StatusNoContent {
		t.Fatalf("Unlike failed: %d", w.Code)
	}
	if w := apiRequest(t, g, "DELETE", path, bob.ApiKey, nil); w.Code != http.StatusNotFound {
		t.Errorf("Unliking again should 404, got %d", w.Code)
	}
}

func TestAttendanceFlow(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	path := fmt.Sprintf("/api/events/%s/attendance", created.Id)

	if w := apiRequest(t, g, "PUT", path, bob.ApiKey, gin.H{"status": "attending"}); w.Code != http.StatusOK {
		t.Fatalf("RSVP failed: %d %s", w.Code, w.Body.String())
	}
	if w := apiRequest(t, g, "PUT", path, bob.ApiKey, gin.H{"status": "maybe"}); w.Code != http.StatusOK {
		t.Fatalf("RSVP change failed: %d", w.Code)
	}
	err, attendance := s.DB.ReadAttendance(created.Id, bob.Id)
	if err != nil {
		t.Fatalf("Failed to read attendance: %v", err)
	}
	if attendance.Status != domain.AttendanceMaybe {
		t.Errorf("Expected MAYBE, got %s", attendance.Status)
	}

	if w := apiRequest(t, g, "PUT", path, bob.ApiKey, gin.H{"status": "lurking"}); w.Code != http.StatusBadRequest {
		t.Errorf("Unknown status should 400, got %d", w.Code)
	}

	if w := apiRequest(t, g, "DELETE", path, bob.ApiKey, nil); w.Code != http.StatusNoContent {
		t.Fatalf("Clearing attendance failed: %d", w.Code)
	}
}

// RSVPs on remote events keep the outbound activity id on the attendance
// row, so clearing the RSVP can undo the activity the remote server saw.
func TestAttendanceOnRemoteEventStoresActivityId(t *testing.T) {
	s, g := setupTestServices(t)
	bob := createWebTestAccount(t, s.DB, "bob")

	remote := &domain.Account{
		Id:            uuid.New(),
		Username:      "carol@remote.example",
		IsRemote:      true,
		ActorURI:      "https://remote.example/users/carol",
		InboxURI:      "https://remote.example/users/carol/inbox",
		PublicKeyPem:  "pubkey-carol",
		CreatedAt:     time.Now(),
		LastFetchedAt: time.Now(),
	}
	if err := s.DB.UpsertRemoteAccount(remote); err != nil {
		t.Fatalf("Failed to upsert remote account: %v", err)
	}
	event := &domain.Event{
		Id:           uuid.New(),
		AccountId:    remote.Id,
		ExternalId:   "https://remote.example/events/1",
		AttributedTo: remote.ActorURI,
		Title:        "Remote meetup",
		StartTime:    time.Now().Add(48 * time.Hour),
		Visibility:   domain.VisibilityPublic,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.DB.CreateEvent(event, nil); err != nil {
		t.Fatalf("Failed to create remote event: %v", err)
	}

	path := fmt.Sprintf("/api/events/%s/attendance", event.Id)
	if w := apiRequest(t, g, "PUT", path, bob.ApiKey, gin.H{"status": "attending"}); w.Code != http.StatusOK {
		t.Fatalf("RSVP failed: %d %s", w.Code, w.Body.String())
	}

	err, attendance := s.DB.ReadAttendance(event.Id, bob.Id)
	if err != nil {
		t.Fatalf("Failed to read attendance: %v", err)
	}
	want := fmt.Sprintf("%s/rsvps/%s", s.Conf.BaseURL(), attendance.Id)
	if attendance.ExternalId != want {
		t.Errorf("Expected stored activity id %s, got %s", want, attendance.ExternalId)
	}

	if w := apiRequest(t, g, "DELETE", path, bob.ApiKey, nil); w.Code != http.StatusNoContent {
		t.Fatalf("Clearing attendance failed: %d", w.Code)
	}
}

func TestCommentFlow(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	path := fmt.Sprintf("/api/events/%s/comments", created.Id)

	w = apiRequest(t, g, "POST", path, bob.ApiKey, gin.H{"content": "Looking forward to this, @alice!"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Comment failed: %d %s", w.Code, w.Body.String())
	}
	var comment commentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &comment); err != nil {
		t.Fatalf("Failed to parse comment: %v", err)
	}

	t.Run("Empty content rejected", func(t *testing.T) {
		w := apiRequest(t, g, "POST", path, bob.ApiKey, gin.H{"content": "   "})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("Reply to comment", func(t *testing.T) {
		w := apiRequest(t, g, "POST", path, alice.ApiKey, gin.H{
			"content":     "See you there",
			"inReplyToId": comment.Id.String(),
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Reply failed: %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("Mention notifies the mentioned user", func(t *testing.T) {
		err, notifications := s.DB.ReadNotificationsByAccountId(alice.Id, 50)
		if err != nil {
			t.Fatalf("Failed to read notifications: %v", err)
		}
		var sawMention, sawComment bool
		for _, n := range notifications {
			switch n.NotificationType {
			case domain.NotificationMention:
				sawMention = true
			case domain.NotificationComment:
				sawComment = true
			}
		}
		if !sawMention {
			t.Error("Expected a mention notification for alice")
		}
		if !sawComment {
			t.Error("Expected a comment notification for alice")
		}
	})

	t.Run("List comments", func(t *testing.T) {
		w := apiRequest(t, g, "GET", path, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("List failed: %d", w.Code)
		}
		var resp struct {
			Comments []commentResponse `json:"comments"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse comments: %v", err)
		}
		if len(resp.Comments) != 2 {
			t.Errorf("Expected 2 comments, got %d", len(resp.Comments))
		}
	})

	t.Run("Only the author deletes", func(t *testing.T) {
		commentPath := "/api/comments/" + comment.Id.String()
		if w := apiRequest(t, g, "DELETE", commentPath, alice.ApiKey, nil); w.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-author, got %d", w.Code)
		}
		if w := apiRequest(t, g, "DELETE", commentPath, bob.ApiKey, nil); w.Code != http.StatusNoContent {
			t.Errorf("Author delete failed: %d", w.Code)
		}
	})
}

func TestShareEvent(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	path := fmt.Sprintf("/api/events/%s/share", created.Id)

	if w := apiRequest(t, g, "POST", path, bob.ApiKey, nil); w.Code != http.StatusCreated {
		t.Fatalf("Share failed: %d %s", w.Code, w.Body.String())
	}
	if w := apiRequest(t, g, "POST", path, bob.ApiKey, nil); w.Code != http.StatusConflict {
		t.Errorf("Second share should 409, got %d", w.Code)
	}

	t.Run("Followers-only event cannot be shared", func(t *testing.T) {
		in := validEventInput()
		in["visibility"] = "FOLLOWERS"
		w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, in)
		var followersOnly eventResponse
		if err := json.Unmarshal(w.Body.Bytes(), &followersOnly); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		w = apiRequest(t, g, "POST", fmt.Sprintf("/api/events/%s/share", followersOnly.Id), bob.ApiKey, nil)
		if w.Code != http.StatusNotFound && w.Code != http.StatusForbidden {
			t.Errorf("Expected 403 or 404, got %d", w.Code)
		}
	})
}

func TestLocalFollow(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/follow", bob.ApiKey, gin.H{"handle": "@alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("Follow failed: %d %s", w.Code, w.Body.String())
	}

	err, following := s.DB.ReadFollowing(bob.Id, alice.ActorURI)
	if err != nil {
		t.Fatalf("Following edge missing: %v", err)
	}
	if !following.Accepted {
		t.Error("Local follows should be accepted immediately")
	}

	if count, _ := s.DB.CountFollowers(alice.Id); count != 1 {
		t.Errorf("Expected 1 follower for alice, got %d", count)
	}

	t.Run("Self follow rejected", func(t *testing.T) {
		w := apiRequest(t, g, "POST", "/api/follow", bob.ApiKey, gin.H{"handle": "@bob"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("Unfollow removes both edges", func(t *testing.T) {
		w := apiRequest(t, g, "POST", "/api/unfollow", bob.ApiKey, gin.H{"handle": "@alice"})
		if w.Code != http.StatusNoContent {
			t.Fatalf("Unfollow failed: %d", w.Code)
		}
		if err, _ := s.DB.ReadFollowing(bob.Id, alice.ActorURI); err == nil {
			t.Error("Following edge should be gone")
		}
		if count, _ := s.DB.CountFollowers(alice.Id); count != 0 {
			t.Errorf("Expected 0 followers, got %d", count)
		}
	})
}

func TestReminderEndpoints(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	path := fmt.Sprintf("/api/events/%s/reminder", created.Id)

	if w := apiRequest(t, g, "PUT", path, alice.ApiKey, gin.H{"minutesBefore": 30}); w.Code != http.StatusCreated {
		t.Fatalf("Setting reminder failed: %d %s", w.Code, w.Body.String())
	}
	err, reminder := s.DB.ReadPendingReminder(alice.Id, created.Id)
	if err != nil {
		t.Fatalf("Pending reminder missing: %v", err)
	}
	if reminder.MinutesBefore != 30 {
		t.Errorf("Expected 30 minutes lead, got %d", reminder.MinutesBefore)
	}

	if w := apiRequest(t, g, "PUT", path, alice.ApiKey, gin.H{"minutesBefore": -5}); w.Code != http.StatusBadRequest {
		t.Errorf("Negative lead should 400, got %d", w.Code)
	}

	if w := apiRequest(t, g, "DELETE", path, alice.ApiKey, nil); w.Code != http.StatusNoContent {
		t.Fatalf("Cancelling reminder failed: %d", w.Code)
	}
	if w := apiRequest(t, g, "DELETE", path, alice.ApiKey, nil); w.Code != http.StatusNotFound {
		t.Errorf("Cancelling again should 404, got %d", w.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	apiRequest(t, g, "PUT", fmt.Sprintf("/api/events/%s/like", created.Id), bob.ApiKey, nil)

	w = apiRequest(t, g, "GET", "/api/notifications", alice.ApiKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Listing notifications failed: %d", w.Code)
	}
	var resp struct {
		Notifications []domain.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse notifications: %v", err)
	}
	if len(resp.Notifications) != 1 || resp.Unread != 1 {
		t.Fatalf("Expected 1 unread notification, got %d/%d", len(resp.Notifications), resp.Unread)
	}

	readPath := fmt.Sprintf("/api/notifications/%s/read", resp.Notifications[0].Id)
	t.Run("Foreign notification stays hidden", func(t *testing.T) {
		if w := apiRequest(t, g, "POST", readPath, bob.ApiKey, nil); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	if w := apiRequest(t, g, "POST", readPath, alice.ApiKey, nil); w.Code != http.StatusNoContent {
		t.Fatalf("Marking read failed: %d", w.Code)
	}
	if unread, _ := s.DB.CountUnreadNotifications(alice.Id); unread != 0 {
		t.Errorf("Expected 0 unread, got %d", unread)
	}
}

func TestTrendingEndpoint(t *testing.T) {
	s, g := setupTestServices(t)
	s.Conf.Conf.TrendingWindowDays = 7
	s.Conf.Conf.TrendingMaxLimit = 50
	alice := createWebTestAccount(t, s.DB, "alice")
	bob := createWebTestAccount(t, s.DB, "bob")

	w := apiRequest(t, g, "POST", "/api/events", alice.ApiKey, validEventInput())
	var created eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created event: %v", err)
	}
	apiRequest(t, g, "PUT", fmt.Sprintf("/api/events/%s/like", created.Id), bob.ApiKey, nil)

	w = apiRequest(t, g, "GET", "/api/events/trending", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Trending failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Window int `json:"window"`
		Events []struct {
			Score float64 `json:"score"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse trending response: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("Expected 1 trending event, got %d", len(resp.Events))
	}
	if resp.Events[0].Score <= 0 {
		t.Errorf("Expected a positive score, got %f", resp.Events[0].Score)
	}

	if w := apiRequest(t, g, "GET", "/api/events/trending?window=banana", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Bad window should 400, got %d", w.Code)
	}
}

func TestListEventsRange(t *testing.T) {
	s, g := setupTestServices(t)
	alice := createWebTestAccount(t, s.DB, "alice")

	in := validEventInput()
	in["startTime"] = time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	apiRequest(t, g, "POST", "/api/events", alice.ApiKey, in)

	far := validEventInput()
	far["title"] = "Far future"
	far["startTime"] = time.Now().AddDate(1, 0, 0).UTC().Format(time.RFC3339)
	apiRequest(t, g, "POST", "/api/events", alice.ApiKey, far)

	w := apiRequest(t, g, "GET", "/api/events", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List failed: %d", w.Code)
	}
	var resp struct {
		Events []eventResponse `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse events: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Errorf("Default month window should hold 1 event, got %d", len(resp.Events))
	}

	if w := apiRequest(t, g, "GET", "/api/events?rangeStart=notatime", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Bad rangeStart should 400, got %d", w.Code)
	}
}

func TestRSVPActivityType(t *testing.T) {
	tests := []struct {
		status domain.AttendanceStatus
		want   string
	}{
		{domain.AttendanceAttending, "Accept"},
		{domain.AttendanceMaybe, "TentativeAccept"},
		{domain.AttendanceNotAttending, "Reject"},
	}
	for _, tt := range tests {
		if got := rsvpActivityType(tt.status); got != tt.want {
			t.Errorf("rsvpActivityType(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
