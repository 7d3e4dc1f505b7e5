// services/auth_test.go
package services

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestClassifyResetToken(t *testing.T) {
	validUUID := "550e8400-e29b-41d4-a716-446655440000"

	tests := []struct {
		name     string
		uidb64   string
		token    string
		wantBug  string // empty means valid
		wantUser string
	}{
		{
			name:    "undecodable uid",
			uidb64:  "!!!not-base64!!!",
			token:   validUUID + "-" + b64("alice"),
			wantBug: "Invalid Password Reset UID Format",
		},
		{
			name:    "empty token",
			uidb64:  b64("alice"),
			token:   "",
			wantBug: "Empty Password Reset Token",
		},
		{
			name:    "no separator",
			uidb64:  b64("alice"),
			token:   "justonetoken",
			wantBug: "Invalid Password Reset Token Format",
		},
		{
			name:    "leading dash",
			uidb64:  b64("alice"),
			token:   "-" + b64("alice"),
			wantBug: "Malformed Password Reset Token",
		},
		{
			name:    "trailing dash",
			uidb64:  b64("alice"),
			token:   validUUID + "-" + b64("alice") + "-",
			wantBug: "Malformed Password Reset Token",
		},
		{
			name:    "only dashes",
			uidb64:  b64("alice"),
			token:   "---",
			wantBug: "Malformed Password Reset Token",
		},
		{
			name:    "bad base64 suffix",
			uidb64:  b64("alice"),
			token:   validUUID + "-@@@",
			wantBug: "Invalid Base64 in Password Reset Token",
		},
		{
			name:    "username mismatch",
			uidb64:  b64("alice"),
			token:   validUUID + "-" + b64("bob"),
			wantBug: "Predictable Password Reset Token",
		},
		{
			name:     "valid token",
			uidb64:   b64("alice"),
			token:    validUUID + "-" + b64("alice"),
			wantBug:  "",
			wantUser: "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, _, issue := classifyResetToken(tt.uidb64, tt.token)
			if tt.wantBug == "" {
				require.Nil(t, issue)
				require.Equal(t, tt.wantUser, target)
				return
			}
			require.NotNil(t, issue)
			require.Equal(t, tt.wantBug, issue.BugTitle)
			require.Equal(t, 100, issue.Points)
		})
	}
}
