package util

import (
	"fmt"
	"strings"
	"testing"
)

func TestPublicKeyToString(t *testing.T) {
	// This function requires an SSH session which is hard to mock
	// We'll skip it for now as it's more of an integration test
	t.Skip("PublicKeyToString requires SSH session - integration test")
}

func TestPkToHash(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "simple string",
			input: "test",
		},
		{
			name:  "empty string",
			input: "",
		},
		{
			name:  "ssh key format",
			input: "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PkToHash(tt.input)
			// Just verify it returns a 64-character hex string
			if len(result) != 64 {
				t.Errorf("Expected hash length 64, got %d", len(result))
			}
			// Verify it's consistent
			result2 := PkToHash(tt.input)
			if result != result2 {
				t.Errorf("Hash should be consistent: %s != %s", result, result2)
			}
		})
	}
}

func TestPkToHashDifferentInputs(t *testing.T) {
	hash1 := PkToHash("input1")
	hash2 := PkToHash("input2")

	if hash1 == hash2 {
		t.Error("Different inputs should produce different hashes")
	}
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()

	if version == "" {
		t.Error("Version should not be empty")
	}

	// Version should match semantic versioning pattern (e.g., "0.1.0")
	hasDigit := false
	hasDot := false
	for _, char := range version {
		if char >= '0' && char <= '9' {
			hasDigit = true
		}
		if char == '.' {
			hasDot = true
		}
	}

	if !hasDigit {
		t.Error("Version should contain at least one digit")
	}
	if !hasDot {
		t.Error("Version should contain at least one dot (semantic versioning)")
	}
}

func TestUserAgent(t *testing.T) {
	result := UserAgent()

	if !strings.HasPrefix(result, "smilodon/") {
		t.Errorf("Expected user agent to start with 'smilodon/', got '%s'", result)
	}
	if !strings.HasSuffix(result, " ActivityPub") {
		t.Errorf("Expected user agent to end with ' ActivityPub', got '%s'", result)
	}
}

func TestRandomString(t *testing.T) {
	tests := []int{10, 20, 32, 64}

	for _, length := range tests {
		t.Run(fmt.Sprintf("length_%d", length), func(t *testing.T) {
			result := RandomString(length)
			if len(result) != length {
				t.Errorf("Expected length %d, got %d", length, len(result))
			}
		})
	}
}

func TestRandomStringUniqueness(t *testing.T) {
	// Generate multiple random strings and verify they're different
	results := make(map[string]bool)
	for range 100 {
		s := RandomString(32)
		if results[s] {
			t.Errorf("RandomString produced duplicate: %s", s)
		}
		results[s] = true
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "newlines replaced",
			input:    "line1\nline2\nline3",
			expected: "line1 line2 line3",
		},
		{
			name:     "html escaped",
			input:    "<script>alert('xss')</script>",
			expected: "&lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;",
		},
		{
			name:     "combined newlines and html",
			input:    "<div>\ntest\n</div>",
			expected: "&lt;div&gt; test &lt;/div&gt;",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "normal text",
			input:    "Hello World",
			expected: "Hello World",
		},
		{
			name:     "ampersand",
			input:    "Tom & Jerry",
			expected: "Tom &amp; Jerry",
		},
		{
			name:     "quotes",
			input:    `He said "Hello"`,
			expected: "He said &#34;Hello&#34;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeInput(tt.input)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestPrettyPrint(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{
			name:  "simple map",
			input: map[string]string{"key": "value"},
		},
		{
			name:  "nested structure",
			input: map[string]any{"outer": map[string]int{"inner": 42}},
		},
		{
			name:  "array",
			input: []int{1, 2, 3, 4, 5},
		},
		{
			name:  "string",
			input: "simple string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PrettyPrint(tt.input)
			if len(result) == 0 {
				t.Error("PrettyPrint returned empty string")
			}
		})
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	keypair := GeneratePemKeypair()

	if keypair == nil {
		t.Fatal("GeneratePemKeypair returned nil")
	}

	// Check private key format (PKCS#8)
	if len(keypair.Private) == 0 {
		t.Error("Private key is empty")
	}
	if !strings.Contains(keypair.Private, "BEGIN PRIVATE KEY") {
		t.Error("Private key doesn't have PKCS#8 PEM header")
	}
	if !strings.Contains(keypair.Private, "END PRIVATE KEY") {
		t.Error("Private key doesn't have PKCS#8 PEM footer")
	}

	// Check public key format (PKIX)
	if len(keypair.Public) == 0 {
		t.Error("Public key is empty")
	}
	if !strings.Contains(keypair.Public, "BEGIN PUBLIC KEY") {
		t.Error("Public key doesn't have PKIX PEM header")
	}
	if !strings.Contains(keypair.Public, "END PUBLIC KEY") {
		t.Error("Public key doesn't have PKIX PEM footer")
	}
}

func TestGeneratePemKeypairUniqueness(t *testing.T) {
	keypair1 := GeneratePemKeypair()
	keypair2 := GeneratePemKeypair()

	if keypair1.Private == keypair2.Private {
		t.Error("Generated keypairs should be unique (private keys are identical)")
	}
	if keypair1.Public == keypair2.Public {
		t.Error("Generated keypairs should be unique (public keys are identical)")
	}
}

func TestIsURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid http URL", "http://example.com", true},
		{"valid https URL", "https://example.com", true},
		{"valid URL with path", "https://example.com/events/abc", true},
		{"valid URL with query", "https://example.com?foo=bar", true},
		{"URL with spaces around", "  https://example.com  ", true}, // Should trim
		{"not a URL - plain text", "hello world", false},
		{"not a URL - no protocol", "example.com", false},
		{"not a URL - ftp protocol", "ftp://example.com", false},
		{"empty string", "", false},
		{"just http://", "http://", false}, // No domain
		{"URL with port", "https://example.com:8080", true},
		{"URL with fragment", "https://example.com/page#section", true},
		{"localhost URL", "http://localhost:9999", true},
		{"URL with space in middle", "https://example .com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsURL(tt.input)
			if got != tt.want {
				t.Errorf("IsURL(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
