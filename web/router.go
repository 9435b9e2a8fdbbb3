package web

import (
	"log"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/ristiko/smilodon/activitypub"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/realtime"
	"github.com/ristiko/smilodon/util"
	"golang.org/x/time/rate"
)

// Services bundles the dependencies the HTTP layer needs. One value is
// built at startup and injected into every handler.
type Services struct {
	Conf        *util.AppConfig
	DB          *db.DB
	AP          *activitypub.InboxDeps
	Broadcaster *realtime.Broadcaster
}

const apContentType = "application/activity+json; charset=utf-8"

// Router builds the gin engine with all HTTP routes. The caller owns the
// http.Server wrapping it.
func Router(s *Services) *gin.Engine {
	conf := s.Conf

	// Gin shares the log writer with the rest of the application so
	// journald capture works.
	gin.DefaultWriter = util.GetLogWriter()
	gin.DefaultErrorWriter = util.GetLogWriter()

	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// RSS feed of upcoming public events
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetRSS(conf, s.DB)
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		c.Render(200, render.String{Format: rss})
	})

	if conf.Conf.WithFederation {
		s.federationRoutes(g)
	}

	s.eventRoutes(g)
	s.apiRoutes(g)

	return g
}

// federationRoutes wires the ActivityPub server surface: actor documents,
// inboxes, collections and discovery endpoints.
func (s *Services) federationRoutes(g *gin.Engine) {
	conf := s.Conf

	// Stricter rate limit for inbound federation: 5 req/sec per IP
	apLimiter := NewRateLimiter(rate.Limit(5), 10)

	// Max 1MiB request body size for ActivityPub activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/users/:username", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		err, actor := GetActor(c.Param("username"), conf, s.DB)
		if err != nil {
			c.Render(404, render.String{Format: actor})
			return
		}
		c.Render(200, render.String{Format: actor})
	})

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		activitypub.HandleSharedInboxWithDeps(c.Writer, c.Request, conf, s.AP)
	})

	g.POST("/users/:username/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		activitypub.HandleInboxWithDeps(c.Writer, c.Request, c.Param("username"), conf, s.AP)
	})

	g.GET("/users/:username/outbox", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		page := 0
		if pageStr := c.Query("page"); pageStr != "" {
			page = ParsePageParam(pageStr)
		}
		err, outbox := GetOutbox(c.Param("username"), page, conf, s.DB)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: outbox})
	})

	g.GET("/users/:username/followers", func(c *gin.Context) {
		username := c.Param("username")
		c.Header("Content-Type", apContentType)

		err, account := s.DB.ReadLocalAccountByUsername(username)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}

		uris := s.followerURIs(account.Id)
		if pageStr := c.Query("page"); pageStr != "" {
			c.Render(200, render.String{Format: GetFollowersPage(username, conf, uris, ParsePageParam(pageStr))})
			return
		}
		c.Render(200, render.String{Format: GetFollowersCollection(username, conf, len(uris))})
	})

	g.GET("/users/:username/following", func(c *gin.Context) {
		username := c.Param("username")
		c.Header("Content-Type", apContentType)

		err, account := s.DB.ReadLocalAccountByUsername(username)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}

		uris := s.followingURIs(account.Id)
		if pageStr := c.Query("page"); pageStr != "" {
			c.Render(200, render.String{Format: GetFollowingPage(username, conf, uris, ParsePageParam(pageStr))})
			return
		}
		c.Render(200, render.String{Format: GetFollowingCollection(username, conf, len(uris))})
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/jrd+json; charset=utf-8")

		username, ok := trimWebFingerResource(c.Query("resource"), conf.Conf.SslDomain)
		if !ok {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}
		err, resp := GetWebfinger(username, conf, s.DB)
		if err != nil {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}
		c.Render(200, render.String{Format: resp})
	})

	g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Render(200, render.String{Format: GetWellKnownNodeInfo(conf)})
	})

	g.GET("/nodeinfo/2.0", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Render(200, render.String{Format: GetNodeInfo20(conf, s.DB)})
	})
}

// eventRoutes serves event documents at their canonical URIs. Requests
// with an ActivityPub accept header get JSON-LD, everything else gets the
// client representation.
func (s *Services) eventRoutes(g *gin.Engine) {
	g.GET("/events/:id", s.optionalAPIAuth(), func(c *gin.Context) {
		eventId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": "event not found"})
			return
		}

		if wantsActivityJSON(c.GetHeader("Accept")) {
			// Federated fetches are unauthenticated; only events
			// addressed to the public are served as JSON-LD.
			err, event := s.DB.ReadEventById(eventId)
			if err != nil || event.IsRemote() ||
				(event.Visibility != domain.VisibilityPublic && event.Visibility != domain.VisibilityUnlisted) {
				c.Header("Content-Type", apContentType)
				c.Render(404, render.String{Format: "{}"})
				return
			}
			err, doc := GetEventObject(eventId, s.Conf, s.DB)
			if err != nil {
				c.Header("Content-Type", apContentType)
				c.Render(404, render.String{Format: "{}"})
				return
			}
			c.Header("Content-Type", apContentType)
			c.Render(200, render.String{Format: doc})
			return
		}

		s.handleGetEvent(c)
	})
}

// apiRoutes wires the authenticated client API.
func (s *Services) apiRoutes(g *gin.Engine) {
	api := g.Group("/api")

	// Read endpoints work anonymously; the viewer just sees less.
	read := api.Group("", s.optionalAPIAuth())
	read.GET("/events", s.handleListEvents)
	read.GET("/events/trending", s.handleTrendingEvents)
	read.GET("/events/:id", s.handleGetEvent)
	read.GET("/events/:id/comments", s.handleListComments)

	authed := api.Group("", s.apiAuth())
	authed.POST("/events", s.handleCreateEvent)
	authed.PUT("/events/:id", s.handleUpdateEvent)
	authed.DELETE("/events/:id", s.handleDeleteEvent)

	authed.PUT("/events/:id/attendance", s.handleSetAttendance)
	authed.DELETE("/events/:id/attendance", s.handleClearAttendance)

	authed.PUT("/events/:id/like", s.handleLikeEvent)
	authed.DELETE("/events/:id/like", s.handleUnlikeEvent)

	authed.POST("/events/:id/comments", s.handleCreateComment)
	authed.DELETE("/comments/:id", s.handleDeleteComment)

	authed.POST("/events/:id/share", s.handleShareEvent)

	authed.PUT("/events/:id/reminder", s.handleSetReminder)
	authed.DELETE("/events/:id/reminder", s.handleCancelReminder)

	authed.POST("/follow", s.handleFollow)
	authed.POST("/unfollow", s.handleUnfollow)

	authed.GET("/notifications", s.handleListNotifications)
	authed.POST("/notifications/:id/read", s.handleMarkNotificationRead)
	authed.POST("/notifications/read-all", s.handleMarkAllNotificationsRead)

	if s.Broadcaster != nil {
		api.GET("/stream", s.Broadcaster.Handler(s.resolveViewerId))
	}
}

func wantsActivityJSON(accept string) bool {
	return strings.Contains(accept, "application/activity+json") ||
		strings.Contains(accept, "application/ld+json")
}

// followerURIs lists the actor URIs of a local account's accepted
// followers.
func (s *Services) followerURIs(accountId uuid.UUID) []string {
	err, followers := s.DB.ReadFollowersByAccountId(accountId)
	if err != nil {
		log.Printf("Failed to read followers for %s: %v", accountId, err)
		return nil
	}
	uris := make([]string, 0, len(followers))
	for _, follower := range followers {
		if follower.Accepted {
			uris = append(uris, follower.ActorURI)
		}
	}
	return uris
}

// followingURIs lists the actor URIs a local account follows.
func (s *Services) followingURIs(accountId uuid.UUID) []string {
	err, following := s.DB.ReadFollowingByAccountId(accountId)
	if err != nil {
		log.Printf("Failed to read following for %s: %v", accountId, err)
		return nil
	}
	uris := make([]string, 0, len(following))
	for _, follow := range following {
		if follow.Accepted {
			uris = append(uris, follow.ActorURI)
		}
	}
	return uris
}
