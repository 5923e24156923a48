package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clientdesk/internal/chatlog"
	"clientdesk/internal/lookup"
	"clientdesk/internal/store"
)

const (
	replyNotFound    = "No client found for %s."
	replyUnavailable = "Lookup is temporarily unavailable. Please try again in a minute."
	replyNoKey       = "Send me a client number and I will look it up."
	replyDenied      = "You are not authorized to use this bot."
)

func (c *Connector) handleMessage(ctx context.Context, message telegramMessage) error {
	decision := decideAddress(message, c.botUsername, c.botID)

	c.logInbound(message, decision.Text)

	if command, args, ok := parseCommand(decision.Text, c.botUsername); ok {
		if command == "" {
			// Directed at another bot.
			return nil
		}
		return c.handleCommand(ctx, message, command, args)
	}

	if !decision.Addressed {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()
	result := c.engine.Lookup(lookupCtx, lookup.Query{
		Conversation: strconv.FormatInt(message.Chat.ID, 10),
		Sender:       strconv.FormatInt(message.From.ID, 10),
		Text:         decision.Text,
	})
	c.recordAudit(message, "lookup", result.Key, result.Outcome.String(), string(decision.Trigger))

	switch result.Outcome {
	case lookup.OutcomeNoKey:
		return c.reply(ctx, message, replyNoKey)
	case lookup.OutcomeDuplicate:
		return nil
	case lookup.OutcomeFound:
		return c.reply(ctx, message, formatFound(result, message.From))
	case lookup.OutcomeNotFound:
		return c.reply(ctx, message, fmt.Sprintf(replyNotFound, result.Key))
	default:
		c.logger.Error("lookup failed", "error", result.Err,
			"chat_id", message.Chat.ID, "key", result.Key)
		return c.reply(ctx, message, replyUnavailable)
	}
}

// formatFound renders a matched record as plain text. Telegram parse modes
// are deliberately left off so field values cannot break entity parsing.
func formatFound(result lookup.Result, from telegramUser) string {
	var b strings.Builder
	b.WriteString("Client found: ")
	b.WriteString(result.Key)
	b.WriteByte('\n')
	if result.SuffixMatched {
		b.WriteString("Matched by number ending.\n")
	}
	b.WriteByte('\n')
	b.WriteString(result.Record.String())
	b.WriteString("\n\nSearched by: ")
	b.WriteString(userDisplay(from))
	return b.String()
}

func userDisplay(from telegramUser) string {
	if from.Username != "" {
		return "@" + from.Username
	}
	if name := strings.TrimSpace(from.FirstName + " " + from.LastName); name != "" {
		return name
	}
	return strconv.FormatInt(from.ID, 10)
}

// parseCommand splits "/status@botname args" into its name and arguments.
// The third return is false for non-commands; an empty name with ok=true
// means the command targets a different bot and should be ignored.
func parseCommand(text, botUsername string) (string, string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	name, args, _ := strings.Cut(trimmed[1:], " ")
	if name == "" {
		return "", "", false
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			return "", "", true
		}
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}

func (c *Connector) reply(ctx context.Context, message telegramMessage, text string) error {
	replyTo := int64(0)
	if message.Chat.Type != "private" {
		replyTo = message.MessageID
	}
	c.logOutbound(message, text)
	return c.sendMessage(ctx, message.Chat.ID, replyTo, text)
}

func (c *Connector) recordAudit(message telegramMessage, action, clientKey, outcome, detail string) {
	if c.auditor == nil {
		return
	}
	c.auditor.Record(store.AppendAuditEventInput{
		Connector:  "telegram",
		ExternalID: strconv.FormatInt(message.Chat.ID, 10),
		Actor:      strconv.FormatInt(message.From.ID, 10),
		Action:     action,
		ClientKey:  clientKey,
		Outcome:    outcome,
		Detail:     detail,
	})
}

func (c *Connector) logInbound(message telegramMessage, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := chatlog.Append(chatlog.Entry{
		Root:         c.chatLogRoot,
		Connector:    "telegram",
		Conversation: strconv.FormatInt(message.Chat.ID, 10),
		Direction:    "inbound",
		Actor:        strconv.FormatInt(message.From.ID, 10),
		DisplayName:  message.Chat.Title,
		Text:         text,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		c.logger.Error("inbound log append failed", "error", err, "chat_id", message.Chat.ID)
	}
}

func (c *Connector) logOutbound(message telegramMessage, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := chatlog.Append(chatlog.Entry{
		Root:         c.chatLogRoot,
		Connector:    "telegram",
		Conversation: strconv.FormatInt(message.Chat.ID, 10),
		Direction:    "outbound",
		Actor:        "clientdesk",
		DisplayName:  message.Chat.Title,
		Text:         text,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		c.logger.Error("outbound log append failed", "error", err, "chat_id", message.Chat.ID)
	}
}

func (c *Connector) sendMessage(ctx context.Context, chatID, replyTo int64, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo > 0 {
		body["reply_to_message_id"] = replyTo
	}
	payload, err := json.Marshal(body)
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

	var response struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return fmt.Errorf("decode sendMessage: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram sendMessage failed")
	}
	return nil
}

func (c *Connector) fetchBotIdentity(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getMe", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var payload struct {
		OK     bool         `json:"ok"`
		Result telegramUser `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return err
	}
	if !payload.OK {
		return fmt.Errorf("telegram getMe failed")
	}
	c.botUsername = strings.TrimSpace(payload.Result.Username)
	c.botID = payload.Result.ID
	return nil
}
