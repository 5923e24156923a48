package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clientdesk/internal/chatlog"
	"clientdesk/internal/store"
)

var botCommands = []struct {
	name        string
	description string
}{
	{"start", "Introduce the bot"},
	{"help", "Show usage"},
	{"info", "Show the connected sheet's columns"},
	{"status", "Show index freshness and health"},
	{"whoami", "Show your Telegram identity"},
	{"stats", "Show lookup activity for the last day"},
	{"logs", "Show recent recorded activity"},
	{"history", "Show the tail of this chat's transcript"},
}

const helpText = `Send a client number (at least a few digits) and I reply with the matching row from the sheet.

In groups, mention me or reply to one of my messages.

Commands:
/info - connected sheet columns
/status - index freshness and health
/whoami - your Telegram identity
/stats - lookup activity for the last day (authorized users)
/logs - recent recorded activity (authorized users)
/history - tail of this chat's transcript`

func (c *Connector) handleCommand(ctx context.Context, message telegramMessage, command, args string) error {
	c.recordAudit(message, "command", "", "", command)
	switch command {
	case "start", "help":
		return c.reply(ctx, message, helpText)
	case "info":
		return c.reply(ctx, message, c.infoText())
	case "status":
		return c.reply(ctx, message, c.statusText())
	case "whoami":
		return c.reply(ctx, message, c.whoamiText(message))
	case "stats":
		if !c.isAuthorized(strconv.FormatInt(message.From.ID, 10)) {
			c.recordAudit(message, "command", "", "denied", command)
			return c.reply(ctx, message, replyDenied)
		}
		return c.reply(ctx, message, c.statsText(ctx))
	case "logs":
		if !c.isAuthorized(strconv.FormatInt(message.From.ID, 10)) {
			c.recordAudit(message, "command", "", "denied", command)
			return c.reply(ctx, message, replyDenied)
		}
		return c.reply(ctx, message, c.logsText(ctx))
	case "history":
		return c.reply(ctx, message, c.historyText(message))
	default:
		if message.Chat.Type == "private" {
			return c.reply(ctx, message, "Unknown command. Try /help.")
		}
		return nil
	}
}

func (c *Connector) infoText() string {
	stats := c.engine.Stats()
	if stats.Headers == 0 {
		return "No sheet schema loaded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sheet columns: %d\n", stats.Headers)
	fmt.Fprintf(&b, "Identifier column: %s\n", stats.KeyHeader)
	fmt.Fprintf(&b, "Indexed clients: %d", stats.IndexSize)
	return b.String()
}

func (c *Connector) statusText() string {
	stats := c.engine.Stats()
	var b strings.Builder
	switch {
	case stats.Degraded:
		b.WriteString("Status: degraded (sheet credential rejected)\n")
	case stats.Unresolved:
		b.WriteString("Status: waiting for sheet headers\n")
	case c.engine.Ready():
		b.WriteString("Status: ok\n")
	default:
		b.WriteString("Status: index not built yet\n")
	}
	fmt.Fprintf(&b, "Indexed clients: %d\n", stats.IndexSize)
	if !stats.BuiltAt.IsZero() {
		fmt.Fprintf(&b, "Index built: %s (%s ago)\n",
			stats.BuiltAt.UTC().Format(time.RFC3339),
			time.Since(stats.BuiltAt).Round(time.Second))
		if stats.Stale {
			b.WriteString("Index refresh due\n")
		}
	}
	fmt.Fprintf(&b, "Cached rows: %d", stats.CachedRows)
	if !c.startedAt.IsZero() {
		fmt.Fprintf(&b, "\nUptime: %s", time.Since(c.startedAt).Round(time.Second))
	}
	return b.String()
}

func (c *Connector) whoamiText(message telegramMessage) string {
	userID := strconv.FormatInt(message.From.ID, 10)
	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %s\n", userID)
	if message.From.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", message.From.Username)
	}
	if c.isAuthorized(userID) {
		b.WriteString("Authorized: yes")
	} else {
		b.WriteString("Authorized: no")
	}
	return b.String()
}

func (c *Connector) statsText(ctx context.Context) string {
	if c.activity == nil {
		return "Activity stats are not available."
	}
	stats, err := c.activity.LookupStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		c.logger.Error("lookup stats query failed", "error", err)
		return "Activity stats are not available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Lookups in the last 24h: %d\n", stats.Total)
	fmt.Fprintf(&b, "Unique clients: %d", stats.UniqueKeys)
	for _, outcome := range []string{"found", "not_found", "error"} {
		if count := stats.ByOutcome[outcome]; count > 0 {
			fmt.Fprintf(&b, "\n  %s: %d", outcome, count)
		}
	}
	return b.String()
}

func (c *Connector) logsText(ctx context.Context) string {
	if c.activity == nil {
		return "Activity logs are not available."
	}
	events, err := c.activity.ListAuditEvents(ctx, store.ListAuditEventsInput{
		Connector: "telegram",
		Limit:     20,
	})
	if err != nil {
		c.logger.Error("audit event query failed", "error", err)
		return "Activity logs are not available."
	}
	if len(events) == 0 {
		return "No recorded activity yet."
	}
	var b strings.Builder
	b.WriteString("Recent activity:")
	for _, event := range events {
		fmt.Fprintf(&b, "\n%s | %s | %s", event.CreatedAt.Format("2006-01-02 15:04"), event.Actor, event.Action)
		if event.ClientKey != "" {
			fmt.Fprintf(&b, " %s", event.ClientKey)
		}
		if event.Outcome != "" {
			fmt.Fprintf(&b, " (%s)", event.Outcome)
		}
	}
	return b.String()
}

func (c *Connector) historyText(message telegramMessage) string {
	tail, err := chatlog.Tail(c.chatLogRoot, "telegram", strconv.FormatInt(message.Chat.ID, 10), 3500)
	if err != nil {
		c.logger.Error("chat log tail failed", "error", err, "chat_id", message.Chat.ID)
		return "Transcript is not available."
	}
	if strings.TrimSpace(tail) == "" {
		return "No transcript for this chat yet."
	}
	return tail
}

func (c *Connector) syncCommands(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/bot%s/setMyCommands", c.apiBase, c.token)
	commands := make([]map[string]string, 0, len(botCommands))
	for _, command := range botCommands {
		commands = append(commands, map[string]string{
			"command":     command.name,
			"description": command.description,
		})
	}
	payload, err := json.Marshal(map[string]any{"commands": commands})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("setMyCommands failed: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(message)))
	}

	var response struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return fmt.Errorf("decode setMyCommands: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram setMyCommands failed")
	}
	return nil
}
