package util

import (
	"testing"
)

func TestParseMentions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Mention
	}{
		{
			name:  "local mention",
			input: "Thanks @alice for organizing",
			expected: []Mention{
				{Username: "alice", Domain: ""},
			},
		},
		{
			name:  "federated mention",
			input: "Hello @alice@mastodon.social",
			expected: []Mention{
				{Username: "alice", Domain: "mastodon.social"},
			},
		},
		{
			name:  "mixed local and federated",
			input: "@bob and @alice@mastodon.social are coming",
			expected: []Mention{
				{Username: "bob", Domain: ""},
				{Username: "alice", Domain: "mastodon.social"},
			},
		},
		{
			name:  "deduplication",
			input: "@alice@mastodon.social @Alice@MASTODON.SOCIAL @alice@mastodon.social",
			expected: []Mention{
				{Username: "alice", Domain: "mastodon.social"},
			},
		},
		{
			name:  "case insensitivity",
			input: "@Alice@Mastodon.Social",
			expected: []Mention{
				{Username: "alice", Domain: "mastodon.social"},
			},
		},
		{
			name:  "username with numbers and underscore",
			input: "@user_123@example.com",
			expected: []Mention{
				{Username: "user_123", Domain: "example.com"},
			},
		},
		{
			name:  "username with dash",
			input: "@user-name@example.com",
			expected: []Mention{
				{Username: "user-name", Domain: "example.com"},
			},
		},
		{
			name:  "domain with subdomain",
			input: "@user@sub.domain.com",
			expected: []Mention{
				{Username: "user", Domain: "sub.domain.com"},
			},
		},
		{
			name:     "no mentions",
			input:    "Hello world without any mentions",
			expected: []Mention{},
		},
		{
			name:     "empty string",
			input:    "",
			expected: []Mention{},
		},
		{
			name:  "mention at start",
			input: "@alice@example.com is here",
			expected: []Mention{
				{Username: "alice", Domain: "example.com"},
			},
		},
		{
			name:  "mention after punctuation",
			input: "Hello,@alice@example.com",
			expected: []Mention{
				{Username: "alice", Domain: "example.com"},
			},
		},
		{
			name:     "email format should not match",
			input:    "contact me at email@example.com",
			expected: []Mention{},
		},
		{
			name:  "same username locally and remotely",
			input: "@alice and @alice@mastodon.social",
			expected: []Mention{
				{Username: "alice", Domain: ""},
				{Username: "alice", Domain: "mastodon.social"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseMentions(tt.input)

			if len(result) != len(tt.expected) {
				t.Errorf("ParseMentions(%q) returned %d mentions, expected %d. Got: %v, Expected: %v",
					tt.input, len(result), len(tt.expected), result, tt.expected)
				return
			}

			for i, mention := range result {
				if mention.Username != tt.expected[i].Username || mention.Domain != tt.expected[i].Domain {
					t.Errorf("ParseMentions(%q)[%d] = %v, expected %v",
						tt.input, i, mention, tt.expected[i])
				}
			}
		})
	}
}

func TestParseMentionsPreservesOrder(t *testing.T) {
	input := "@first@a.com @second@b.com @third@c.com"
	result := ParseMentions(input)

	if len(result) != 3 {
		t.Fatalf("Expected 3 mentions, got %d", len(result))
	}

	expected := []string{"first", "second", "third"}
	for i, mention := range result {
		if mention.Username != expected[i] {
			t.Errorf("Order mismatch at index %d: got %q, expected %q", i, mention.Username, expected[i])
		}
	}
}

func TestMentionHandle(t *testing.T) {
	tests := []struct {
		name     string
		mention  Mention
		expected string
	}{
		{"local", Mention{Username: "alice"}, "@alice"},
		{"federated", Mention{Username: "alice", Domain: "mastodon.social"}, "@alice@mastodon.social"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mention.Handle(); got != tt.expected {
				t.Errorf("Handle() = %q, expected %q", got, tt.expected)
			}
		})
	}
}
