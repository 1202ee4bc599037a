// Package chat defines the boundary to the chat transport. The build flow
// only ever talks to the Gateway interface; the telegram subpackage is the
// production implementation.
package chat

import "context"

// User identifies the human behind an update.
type User struct {
	ID        int64
	Username  string
	FirstName string
}

// Update is one inbound chat event, already flattened to the fields the
// flow cares about.
type Update struct {
	ChatID    int64
	MessageID int64
	From      User
	Text      string
	// PhotoFileID is set when the update carries a photo (largest size).
	PhotoFileID string
	// DocumentFileID and DocumentName are set when the update carries an
	// attached file.
	DocumentFileID string
	DocumentName   string
}

// Gateway sends messages and files to a chat. EditMessage and DeleteMessage
// are best-effort at every call site: a stale UI must never block the flow,
// so their errors are logged and swallowed by callers.
type Gateway interface {
	SendMessage(ctx context.Context, chatID int64, text string) (messageID int64, err error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	// SendDocument uploads the local file to the chat.
	SendDocument(ctx context.Context, chatID int64, file, caption string) error
	// DownloadFile fetches a transport-held file to the local path.
	DownloadFile(ctx context.Context, fileID, dest string) error
}
