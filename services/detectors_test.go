// services/detectors_test.go
package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectSQLInjection(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"' OR 1=1 --", true},
		{"' UNION SELECT * FROM users --", true},
		{"'; DROP TABLE users; --", true},
		{"1; DELETE FROM posts", true},
		{"sleep(5)", true},
		{"pg_sleep(10)", true},
		{"WAITFOR DELAY '0:0:5'", true},
		{"%27 or %27", true},
		{"information_schema.tables", true},
		{"hello world", false},
		{"alice", false},
		{"looking for a user named union", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DetectSQLInjection(tt.input), "input: %q", tt.input)
	}
}

func TestDetectXPathInjection(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"contains(username, 'admin')", true},
		{"starts-with(name, 'a')", true},
		{"//*", true},
		{"ancestor::user", true},
		{"document('users.xml')", true},
		{"count() and position()", true},
		{"' or 'a'='a", true},
		{"hello world", false},
		{"", false},
		// Numeric tautologies belong to the SQL family, not this one.
		{"' OR 1=1 --", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DetectXPathInjection(tt.input), "input: %q", tt.input)
	}
}

func TestDetectXSS(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"<script>alert('xss')</script>", true},
		{"<SCRIPT SRC=//evil.example>", true},
		{"<img src=x onerror=alert(1)>", true},
		{"javascript:alert(document.cookie)", true},
		{"<iframe src='https://evil.example'></iframe>", true},
		{"document.cookie", true},
		{"srcdoc=\"<p>hi</p>\"", true},
		{"just a nice comment", false},
		{"I love <3 this post", false},
		{"", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DetectXSS(tt.input), "input: %q", tt.input)
	}
}

func TestSanitizeTextNeverStoresScripts(t *testing.T) {
	out := SanitizeText("<script>alert('x')</script>nice pic!")
	require.NotContains(t, strings.ToLower(out), "<script")
	require.Contains(t, out, "nice pic!")

	out = SanitizeText(`<img src=x onerror="steal()">hey`)
	require.NotContains(t, strings.ToLower(out), "onerror=")
	require.Contains(t, out, "hey")

	// Plain text survives escaping intact apart from entity encoding.
	require.Equal(t, "coffee &amp; cameras", SanitizeText("coffee & cameras"))
}
