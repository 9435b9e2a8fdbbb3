package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Mention is a parsed @username or @username@domain reference.
// Domain is empty for mentions of local users.
type Mention struct {
	Username string
	Domain   string
}

// Handle returns the @user or @user@domain form.
func (m Mention) Handle() string {
	if m.Domain == "" {
		return "@" + m.Username
	}
	return "@" + m.Username + "@" + m.Domain
}

// groups: 1 = username, 3 = optional domain
var mentionRegex = regexp.MustCompile(`@([A-Za-z0-9_\-]+)(@([A-Za-z0-9.\-]+))?`)

// ParseMentions scans text for @user and @user@domain references.
// Usernames and domains are lowercased, duplicates collapse, first-seen
// order is preserved. A reference preceded by a word character is not a
// mention (so email addresses do not match).
func ParseMentions(text string) []Mention {
	mentions := []Mention{}
	seen := make(map[string]bool)

	for _, loc := range mentionRegex.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:loc[0]])
			if isMentionJoinRune(prev) {
				continue
			}
		}

		username := strings.ToLower(text[loc[2]:loc[3]])
		domain := ""
		if loc[6] != -1 {
			domain = strings.ToLower(text[loc[6]:loc[7]])
		}

		key := username + "@" + domain
		if seen[key] {
			continue
		}
		seen[key] = true
		mentions = append(mentions, Mention{Username: username, Domain: domain})
	}

	return mentions
}

// isMentionJoinRune reports whether r glues the following '@' to a
// preceding word, as in email addresses or mid-token at-signs.
func isMentionJoinRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '.' || r == '@':
		return true
	}
	return false
}
