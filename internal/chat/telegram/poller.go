package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/webapk-bot/webapk/internal/chat"
)

type apiUpdate struct {
	UpdateID int64       `json:"update_id"`
	Message  *apiMessage `json:"message"`
}

// Poll long-polls getUpdates and hands each message to handle until ctx is
// cancelled. Transport errors are logged and retried after a short pause.
func (c *Client) Poll(ctx context.Context, logger *slog.Logger, handle func(chat.Update)) {
	if logger == nil {
		logger = slog.Default()
	}
	var offset int64
	for {
		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("polling updates", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			handle(updateFromMessage(u.Message))
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]apiUpdate, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", "50")
	params.Set("allowed_updates", `["message"]`)

	var updates []apiUpdate
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func updateFromMessage(m *apiMessage) chat.Update {
	u := chat.Update{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Text:      m.Text,
	}
	if m.From != nil {
		u.From = chat.User{ID: m.From.ID, Username: m.From.Username, FirstName: m.From.FirstName}
	}
	if len(m.Photo) > 0 {
		// Sizes come smallest first; take the largest rendition.
		u.PhotoFileID = m.Photo[len(m.Photo)-1].FileID
	}
	if m.Document != nil {
		u.DocumentFileID = m.Document.FileID
		u.DocumentName = m.Document.FileName
	}
	return u
}
