// Package chatlog keeps a per-conversation markdown transcript of message
// traffic, one file per conversation under the log root.
package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type Entry struct {
	Root         string
	Connector    string
	Conversation string
	Direction    string
	Actor        string
	DisplayName  string
	Text         string
	Timestamp    time.Time
}

var pathSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func Append(entry Entry) error {
	root := strings.TrimSpace(entry.Root)
	if root == "" {
		return nil
	}
	text := strings.TrimSpace(entry.Text)
	if text == "" {
		return nil
	}

	connector := sanitizeSegment(entry.Connector)
	if connector == "" {
		connector = "unknown"
	}
	conversation := sanitizeSegment(entry.Conversation)
	if conversation == "" {
		conversation = "unknown"
	}
	timestamp := entry.Timestamp.UTC()
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	baseDir := filepath.Join(root, connector)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}
	logPath := filepath.Join(baseDir, conversation+".md")

	header := ""
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		header = fmt.Sprintf("# Chat Log\n\n- connector: `%s`\n- conversation: `%s`\n- title: `%s`\n\n", connector, conversation, strings.TrimSpace(entry.DisplayName))
	}

	direction := strings.TrimSpace(strings.ToLower(entry.Direction))
	if direction == "" {
		direction = "inbound"
	}
	actor := strings.TrimSpace(entry.Actor)
	if actor == "" {
		actor = "system"
	}
	body := fmt.Sprintf(
		"## %s `%s`\n- actor: `%s`\n\n%s\n\n",
		timestamp.Format(time.RFC3339),
		strings.ToUpper(direction),
		actor,
		text,
	)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if header != "" {
		if _, err := file.WriteString(header); err != nil {
			return err
		}
	}
	if _, err := file.WriteString(body); err != nil {
		return err
	}
	return nil
}

// Tail returns up to maxBytes from the end of a conversation's transcript,
// starting at a line boundary. An absent transcript yields an empty string.
func Tail(root, connector, conversation string, maxBytes int) (string, error) {
	if maxBytes < 1 {
		maxBytes = 4096
	}
	logPath := filepath.Join(
		strings.TrimSpace(root),
		sanitizeSegment(connector),
		sanitizeSegment(conversation)+".md",
	)
	payload, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(payload) <= maxBytes {
		return string(payload), nil
	}
	tail := payload[len(payload)-maxBytes:]
	if i := strings.IndexByte(string(tail), '\n'); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return string(tail), nil
}

func sanitizeSegment(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.ReplaceAll(trimmed, " ", "-")
	trimmed = pathSanitizer.ReplaceAllString(trimmed, "-")
	trimmed = strings.Trim(trimmed, "-.")
	return strings.ToLower(trimmed)
}
