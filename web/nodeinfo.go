package web

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/util"
)

// WellKnownNodeInfo represents the /.well-known/nodeinfo response
type WellKnownNodeInfo struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// GetNodeInfo20 returns a NodeInfo 2.0 JSON response.
// See: https://nodeinfo.diaspora.software/schema.html
func GetNodeInfo20(conf *util.AppConfig, database *db.DB) string {
	totalUsers, err := database.CountLocalAccounts()
	if err != nil {
		log.Printf("Failed to count accounts: %v", err)
		totalUsers = 0
	}

	localEvents, err := database.CountLocalEvents()
	if err != nil {
		log.Printf("Failed to count local events: %v", err)
		localEvents = 0
	}

	localComments, err := database.CountLocalComments()
	if err != nil {
		log.Printf("Failed to count local comments: %v", err)
		localComments = 0
	}

	now := time.Now()
	activeMonth, err := database.CountActiveAccountsSince(now.AddDate(0, -1, 0))
	if err != nil {
		log.Printf("Failed to count active users (month): %v", err)
		activeMonth = 0
	}

	activeHalfyear, err := database.CountActiveAccountsSince(now.AddDate(0, -6, 0))
	if err != nil {
		log.Printf("Failed to count active users (half year): %v", err)
		activeHalfyear = 0
	}

	nodeDescription := conf.Conf.NodeDescription
	if nodeDescription == "" {
		nodeDescription = "A federated event calendar"
	}

	// Rendered with Sprintf to preserve field order
	nodeInfoJSON := fmt.Sprintf(`{
  "version": "2.0",
  "software": {
    "name": "%s",
    "version": "%s"
  },
  "protocols": ["activitypub"],
  "services": {
    "outbound": [],
    "inbound": []
  },
  "usage": {
    "users": {
      "total": %d,
      "activeMonth": %d,
      "activeHalfyear": %d
    },
    "localPosts": %d
  },
  "openRegistrations": %t,
  "metadata": {
    "nodeName": "%s",
    "nodeDescription": "%s"
  }
}`,
		util.Name,
		util.GetVersion(),
		totalUsers,
		activeMonth,
		activeHalfyear,
		localEvents+localComments,
		!conf.Conf.Closed,
		util.Name,
		nodeDescription,
	)

	return nodeInfoJSON
}

// GetWellKnownNodeInfo returns the /.well-known/nodeinfo discovery document
func GetWellKnownNodeInfo(conf *util.AppConfig) string {
	wellKnown := WellKnownNodeInfo{
		Links: []NodeInfoLink{
			{
				Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				Href: "https://" + conf.Conf.SslDomain + "/nodeinfo/2.0",
			},
		},
	}

	jsonBytes, err := json.Marshal(wellKnown)
	if err != nil {
		log.Printf("Failed to marshal well-known nodeinfo: %v", err)
		return "{}"
	}

	return string(jsonBytes)
}
