package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// queueSet serializes message handling per chat. Messages from one
// conversation are answered in order, while a slow row fetch in one chat
// never delays another.
type queueSet struct {
	mu      sync.Mutex
	chans   map[int64]chan telegramMessage
	pending sync.WaitGroup
}

const chatQueueDepth = 32

func (c *Connector) Start(ctx context.Context) error {
	if c.token == "" {
		c.logger.Info("connector disabled, token missing")
		<-ctx.Done()
		return nil
	}
	if c.engine == nil {
		c.logger.Info("connector disabled, lookup engine missing")
		<-ctx.Done()
		return nil
	}

	c.startedAt = time.Now().UTC()
	c.logger.Info("connector started", "api_base", c.apiBase)
	if err := c.fetchBotIdentity(ctx); err != nil {
		c.logger.Warn("telegram bot identity lookup failed", "error", err)
	} else if c.botUsername != "" {
		c.logger.Info("telegram bot identity loaded", "username", c.botUsername, "bot_id", c.botID)
	}
	if c.commandSync {
		if err := c.syncCommands(ctx); err != nil {
			c.logger.Warn("telegram command sync failed", "error", err)
		} else {
			c.logger.Info("telegram commands synced")
		}
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info("connector stopped")
			return nil
		}
		if err := c.pollOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
				c.logger.Info("connector stopped")
				return nil
			case <-time.After(1500 * time.Millisecond):
			}
		}
	}
}

func (c *Connector) pollOnce(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d", c.apiBase, c.token, c.pollSeconds, c.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var payload getUpdatesResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode getUpdates: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("telegram getUpdates failed")
	}

	for _, update := range payload.Result {
		if update.UpdateID >= c.offset {
			c.offset = update.UpdateID + 1
		}
		if update.Message == nil {
			continue
		}
		c.dispatch(ctx, *update.Message)
	}
	return nil
}

func (c *Connector) dispatch(ctx context.Context, message telegramMessage) {
	c.queues.mu.Lock()
	if c.queues.chans == nil {
		c.queues.chans = make(map[int64]chan telegramMessage)
	}
	queue, ok := c.queues.chans[message.Chat.ID]
	if !ok {
		queue = make(chan telegramMessage, chatQueueDepth)
		c.queues.chans[message.Chat.ID] = queue
		go c.runQueue(ctx, queue)
	}
	c.queues.mu.Unlock()

	c.queues.pending.Add(1)
	select {
	case queue <- message:
	default:
		c.queues.pending.Done()
		c.logger.Warn("chat queue full, dropping message",
			"chat_id", message.Chat.ID, "message_id", message.MessageID)
	}
}

func (c *Connector) runQueue(ctx context.Context, queue chan telegramMessage) {
	for {
		select {
		case <-ctx.Done():
			// Release dispatchers waiting on unhandled messages.
			for {
				select {
				case <-queue:
					c.queues.pending.Done()
				default:
					return
				}
			}
		case message := <-queue:
			if err := c.handleMessage(ctx, message); err != nil {
				c.logger.Error("handle message failed", "error", err,
					"chat_id", message.Chat.ID, "message_id", message.MessageID)
			}
			c.queues.pending.Done()
		}
	}
}

// drain waits for every dispatched message to be handled.
func (c *Connector) drain() {
	c.queues.pending.Wait()
}
