package telegram

import (
	"strings"
	"unicode/utf16"
)

// Trigger says why a group message counted as addressed to the bot.
type Trigger string

const (
	TriggerNone    Trigger = ""
	TriggerPrivate Trigger = "private"
	TriggerMention Trigger = "mention"
	TriggerReply   Trigger = "reply"
)

// Decision is the outcome of addressing a message: whether the bot should
// act on it, why, and the message text with any bot mention stripped.
type Decision struct {
	Addressed bool
	Trigger   Trigger
	Text      string
}

// decideAddress determines whether a message is directed at the bot.
// Private chats always are. In groups a mention (by entity, falling back to
// a plain substring scan) is checked first, then a reply to one of the
// bot's own messages. Every mention occurrence is stripped from the text.
func decideAddress(message telegramMessage, botUsername string, botID int64) Decision {
	text := strings.TrimSpace(message.Text)
	if text == "" {
		text = strings.TrimSpace(message.Caption)
	}

	if message.Chat.Type == "private" {
		return Decision{Addressed: true, Trigger: TriggerPrivate, Text: text}
	}

	if botUsername != "" {
		mention := "@" + botUsername
		for _, entity := range message.Entities {
			if entity.Type != "mention" {
				continue
			}
			span := entitySpan(message.Text, entity)
			if strings.EqualFold(span, mention) {
				return Decision{Addressed: true, Trigger: TriggerMention, Text: stripMention(text, mention)}
			}
		}
		// Entities are absent on captions and on some forwarded messages,
		// so fall back to a substring scan.
		if strings.Contains(strings.ToLower(text), strings.ToLower(mention)) {
			return Decision{Addressed: true, Trigger: TriggerMention, Text: stripMention(text, mention)}
		}
	}

	if message.ReplyTo != nil && botID != 0 && message.ReplyTo.From.ID == botID {
		return Decision{Addressed: true, Trigger: TriggerReply, Text: text}
	}

	return Decision{Text: text}
}

// entitySpan extracts the text an entity covers. Bot API offsets count
// UTF-16 code units, not bytes or runes.
func entitySpan(text string, entity telegramEntity) string {
	if entity.Offset < 0 || entity.Length <= 0 {
		return ""
	}
	units := utf16.Encode([]rune(text))
	if entity.Offset >= len(units) {
		return ""
	}
	end := entity.Offset + entity.Length
	if end > len(units) {
		end = len(units)
	}
	return string(utf16.Decode(units[entity.Offset:end]))
}

func stripMention(text, mention string) string {
	lower := strings.ToLower(text)
	needle := strings.ToLower(mention)
	for {
		i := strings.Index(lower, needle)
		if i < 0 {
			break
		}
		text = text[:i] + text[i+len(needle):]
		lower = lower[:i] + lower[i+len(needle):]
	}
	return strings.TrimSpace(text)
}
