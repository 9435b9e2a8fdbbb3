package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/feeds"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/util"
)

const rssFeedLimit = 50

// GetRSS renders an RSS feed of upcoming public events. Shares are
// skipped so the original entry appears once.
func GetRSS(conf *util.AppConfig, database *db.DB) (string, error) {
	err, events := database.ReadUpcomingPublicEvents(time.Now(), rssFeedLimit)
	if err != nil {
		log.Println("Could not get upcoming events!", err)
		return "", errors.New("error retrieving upcoming events")
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - upcoming events", util.Name),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/feed", conf.BaseURL())},
		Description: conf.Conf.NodeDescription,
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for i := range events {
		event := &events[i]
		if event.IsShare() {
			continue
		}

		author := ""
		if err, acc := database.ReadAccountById(event.AccountId); err == nil {
			author = acc.Handle()
		}

		description := event.Summary
		if event.Location != "" {
			description = fmt.Sprintf("%s\n%s", description, event.Location)
		}

		feedItems = append(feedItems, &feeds.Item{
			Id:          event.Id.String(),
			Title:       event.Title,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/events/%s", conf.BaseURL(), event.Id)},
			Description: description,
			Author:      &feeds.Author{Name: author},
			Created:     event.StartTime,
		})
	}
	feed.Items = feedItems

	rss, err := feed.ToRss()
	if err != nil {
		log.Println("Could not render the feed!", err)
		return "", errors.New("error rendering rss feed")
	}
	return rss, nil
}
