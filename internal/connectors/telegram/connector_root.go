package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clientdesk/internal/lookup"
	"clientdesk/internal/store"
)

// LookupService answers client queries and reports engine state.
type LookupService interface {
	Lookup(ctx context.Context, query lookup.Query) lookup.Result
	Stats() lookup.Stats
	Ready() bool
}

// ActivityReader reads recorded activity for the stats and logs commands.
type ActivityReader interface {
	LookupStats(ctx context.Context, since time.Time) (store.AuditStats, error)
	ListAuditEvents(ctx context.Context, input store.ListAuditEventsInput) ([]store.AuditEvent, error)
}

// AuditSink accepts audit events without blocking.
type AuditSink interface {
	Record(input store.AppendAuditEventInput)
}

type Connector struct {
	token         string
	apiBase       string
	pollSeconds   int
	commandSync   bool
	chatLogRoot   string
	engine        LookupService
	activity      ActivityReader
	auditor       AuditSink
	authorized    map[string]struct{}
	lookupTimeout time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
	botUsername   string
	botID         int64
	offset        int64
	startedAt     time.Time

	queues queueSet
}

type Option func(*Connector)

func WithCommandSync(enabled bool) Option {
	return func(connector *Connector) {
		connector.commandSync = enabled
	}
}

// WithAuthorizedUsers names the Telegram user IDs allowed to run the
// privileged stats and logs commands. An empty list opens them to everyone;
// plain lookups are never gated.
func WithAuthorizedUsers(userIDs []string) Option {
	return func(connector *Connector) {
		allowed := make(map[string]struct{}, len(userIDs))
		for _, userID := range userIDs {
			value := strings.TrimSpace(userID)
			if value == "" {
				continue
			}
			allowed[value] = struct{}{}
		}
		connector.authorized = allowed
	}
}

func WithLookupTimeout(timeout time.Duration) Option {
	return func(connector *Connector) {
		if timeout > 0 {
			connector.lookupTimeout = timeout
		}
	}
}

func New(token, apiBase, chatLogRoot string, pollSeconds int, engine LookupService, activity ActivityReader, auditor AuditSink, logger *slog.Logger, opts ...Option) *Connector {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.telegram.org"
	}
	if pollSeconds < 1 {
		pollSeconds = 25
	}
	connector := &Connector{
		token:         strings.TrimSpace(token),
		apiBase:       strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		pollSeconds:   pollSeconds,
		commandSync:   true,
		chatLogRoot:   strings.TrimSpace(chatLogRoot),
		engine:        engine,
		activity:      activity,
		auditor:       auditor,
		lookupTimeout: 15 * time.Second,
		httpClient: &http.Client{
			Timeout: time.Duration(pollSeconds+10) * time.Second,
		},
		logger: logger,
		offset: 0,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(connector)
		}
	}
	return connector
}

func (c *Connector) Name() string {
	return "telegram"
}

func (c *Connector) isAuthorized(userID string) bool {
	if len(c.authorized) == 0 {
		return true
	}
	_, ok := c.authorized[userID]
	return ok
}
