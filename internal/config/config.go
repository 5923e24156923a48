package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment  string
	HTTPAddr     string
	DataDir      string
	DBPath       string
	SnapshotPath string
	ChatLogRoot  string

	SpreadsheetID     string
	SheetName         string
	SheetsAPI         string
	SheetsToken       string
	SheetsTokenFile   string
	ColumnKeywordsCSV string

	TelegramToken string
	TelegramAPI   string
	TelegramPoll  int

	IndexTTLSec       int
	RefreshCron       string
	RowCacheSize      int
	MinClientDigits   int
	DedupeWindowSec   int
	LookupTimeoutSec  int
	RefreshTimeoutSec int

	AuthorizedUsersCSV string
}

func FromEnv() Config {
	dataDir := stringOrDefault("CLIENTDESK_DATA_DIR", "/data")
	dbPath := stringOrDefault("CLIENTDESK_DB_PATH", filepath.Join(dataDir, "clientdesk", "meta.sqlite"))
	snapshotPath := stringOrDefault("CLIENTDESK_SNAPSHOT_PATH", filepath.Join(dataDir, "clientdesk", "index-snapshot.json"))

	return Config{
		Environment:  stringOrDefault("CLIENTDESK_ENV", "development"),
		HTTPAddr:     stringOrDefault("CLIENTDESK_HTTP_ADDR", ":8080"),
		DataDir:      dataDir,
		DBPath:       dbPath,
		SnapshotPath: snapshotPath,
		ChatLogRoot:  stringOrDefault("CLIENTDESK_CHAT_LOG_ROOT", filepath.Join(dataDir, "clientdesk", "chatlogs")),

		SpreadsheetID:     strings.TrimSpace(os.Getenv("CLIENTDESK_SPREADSHEET_ID")),
		SheetName:         stringOrDefault("CLIENTDESK_SHEET_NAME", "Sheet1"),
		SheetsAPI:         stringOrDefault("CLIENTDESK_SHEETS_API_BASE", "https://sheets.googleapis.com"),
		SheetsToken:       strings.TrimSpace(os.Getenv("CLIENTDESK_SHEETS_TOKEN")),
		SheetsTokenFile:   strings.TrimSpace(os.Getenv("CLIENTDESK_SHEETS_TOKEN_FILE")),
		ColumnKeywordsCSV: stringOrDefault("CLIENTDESK_COLUMN_KEYWORDS", "client,number,id,code"),

		TelegramToken: os.Getenv("CLIENTDESK_TELEGRAM_TOKEN"),
		TelegramAPI:   stringOrDefault("CLIENTDESK_TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramPoll:  intOrDefault("CLIENTDESK_TELEGRAM_POLL_SECONDS", 25),

		IndexTTLSec:       intOrDefault("CLIENTDESK_INDEX_TTL_SECONDS", 600),
		RefreshCron:       strings.TrimSpace(os.Getenv("CLIENTDESK_REFRESH_CRON")),
		RowCacheSize:      intOrDefault("CLIENTDESK_ROW_CACHE_SIZE", 200),
		MinClientDigits:   intOrDefault("CLIENTDESK_MIN_CLIENT_DIGITS", 3),
		DedupeWindowSec:   intOrDefault("CLIENTDESK_DEDUPE_WINDOW_SECONDS", 30),
		LookupTimeoutSec:  intOrDefault("CLIENTDESK_LOOKUP_TIMEOUT_SECONDS", 15),
		RefreshTimeoutSec: intOrDefault("CLIENTDESK_REFRESH_TIMEOUT_SECONDS", 120),

		AuthorizedUsersCSV: strings.TrimSpace(os.Getenv("CLIENTDESK_AUTHORIZED_USERS")),
	}
}

// ColumnKeywords returns the lower-cased keyword list used for identifying
// column discovery.
func (c Config) ColumnKeywords() []string {
	parts := strings.Split(c.ColumnKeywordsCSV, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		keyword := strings.ToLower(strings.TrimSpace(part))
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

// AuthorizedUsers returns the user ids allowed to run privileged commands.
// An empty list means every user is allowed.
func (c Config) AuthorizedUsers() []string {
	if c.AuthorizedUsersCSV == "" {
		return nil
	}
	parts := strings.Split(c.AuthorizedUsersCSV, ",")
	users := make([]string, 0, len(parts))
	for _, part := range parts {
		user := strings.TrimSpace(part)
		if user != "" {
			users = append(users, user)
		}
	}
	return users
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
