package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

// IsYes reads a typed confirmation in Croatian or English.
func IsYes(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "da", "d", "yes", "y", "true", "1":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// SubscribersScope is the export scope of the subscriber list.
const SubscribersScope = "subscribers"

// EventScope is the export scope of one event's registrants. The prefix keeps
// event ids from colliding with SubscribersScope.
func EventScope(eventID string) string {
	return "event:" + eventID
}

// ExportToken signs an export link for scope (EventScope or SubscribersScope).
func ExportToken(secret, scope string) string {
	return HMACSHA256Hex(secret, "export:"+scope)
}

func ValidExportToken(secret, scope, token string) bool {
	return hmac.Equal([]byte(token), []byte(ExportToken(secret, scope)))
}
