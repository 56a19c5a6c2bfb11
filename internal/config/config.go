package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendLocal  = "local"
	BackendSheets = "sheets"
	BackendRemote = "remote"
)

type Config struct {
	HTTPAddr      string
	BasePublicURL string
	CORSOrigins   []string

	StorageBackend string
	DataPath       string

	SpreadsheetID            string
	GoogleServiceAccountJSON string

	RemoteEndpointURL string
	RemoteTimeout     time.Duration
	RemoteAdminSecret string

	AdminSecret       string
	SessionSigningKey string
	SessionTTL        time.Duration
	ExportSecret      string

	TelegramToken string
	AdminTGIDs    map[int64]bool
}

func FromEnv() (Config, error) {
	var c Config
	var err error

	c.HTTPAddr = env("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(env("BASE_PUBLIC_URL", ""), "/")
	c.CORSOrigins = splitList(env("CORS_ORIGINS", "*"))

	c.StorageBackend = strings.ToLower(env("STORAGE_BACKEND", BackendLocal))
	c.DataPath = env("DATA_PATH", "./data")

	c.SpreadsheetID = env("GOOGLE_SHEETS_SPREADSHEET_ID", "")
	c.GoogleServiceAccountJSON = env("GOOGLE_SERVICE_ACCOUNT_JSON", "")

	c.RemoteEndpointURL = env("REMOTE_ENDPOINT_URL", "")
	c.RemoteAdminSecret = env("REMOTE_ADMIN_SECRET", "")
	if c.RemoteTimeout, err = duration("REMOTE_TIMEOUT", 10*time.Second); err != nil {
		return c, err
	}

	c.AdminSecret = env("ADMIN_SECRET", "")
	c.SessionSigningKey = env("SESSION_SIGNING_KEY", "")
	if c.SessionTTL, err = duration("SESSION_TTL", 12*time.Hour); err != nil {
		return c, err
	}
	c.ExportSecret = env("EXPORT_SECRET", "")

	c.TelegramToken = env("TELEGRAM_BOT_TOKEN", "")
	c.AdminTGIDs = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))

	switch c.StorageBackend {
	case BackendLocal:
		if c.DataPath == "" {
			return c, fmt.Errorf("DATA_PATH is empty")
		}
	case BackendSheets:
		if c.SpreadsheetID == "" {
			return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID is empty")
		}
		if c.GoogleServiceAccountJSON == "" {
			return c, fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is empty")
		}
	case BackendRemote:
		if c.RemoteEndpointURL == "" {
			return c, fmt.Errorf("REMOTE_ENDPOINT_URL is empty")
		}
	default:
		return c, fmt.Errorf("STORAGE_BACKEND must be local, sheets or remote, got %q", c.StorageBackend)
	}

	if c.AdminSecret == "" {
		return c, fmt.Errorf("ADMIN_SECRET is empty")
	}
	if c.SessionSigningKey == "" {
		return c, fmt.Errorf("SESSION_SIGNING_KEY is empty")
	}
	if c.ExportSecret == "" {
		c.ExportSecret = c.SessionSigningKey
	}

	return c, nil
}

// DatabaseFile is where the local backend keeps its SQLite file.
func (c Config) DatabaseFile() string {
	return filepath.Join(c.DataPath, "tourney.db")
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func duration(key string, def time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration like 30s or 12h, got %q", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	for _, p := range splitList(raw) {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
