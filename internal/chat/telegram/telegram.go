// Package telegram implements chat.Gateway over the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/webapk-bot/webapk/internal/chat"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

var _ chat.Gateway = (*Client)(nil)

// NewClient creates a Bot API client. baseURL may be empty to use the
// public endpoint.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		// Long polling holds the connection open for up to 50s.
		httpClient: &http.Client{Timeout: 70 * time.Second},
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type apiMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From *struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	} `json:"from"`
	Text  string `json:"text"`
	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
	Document *struct {
		FileID   string `json:"file_id"`
		FileName string `json:"file_name"`
	} `json:"document"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, result any) error {
	u := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return fmt.Errorf("telegram.call: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram.call: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, method, result)
}

func decodeResponse(body io.Reader, method string, result any) error {
	var envelope apiResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram.call: decode %s: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram.call: %s: %s", method, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram.call: decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)

	var msg apiMessage
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("text", text)
	return c.call(ctx, "editMessageText", params, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	return c.call(ctx, "deleteMessage", params, nil)
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, file, caption string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err = w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}
	if caption != "" {
		if err = w.WriteField("caption", caption); err != nil {
			return fmt.Errorf("telegram.SendDocument: %w", err)
		}
	}
	part, err := w.CreateFormFile("document", filepath.Base(file))
	if err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}
	if _, err = io.Copy(part, f); err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram.SendDocument: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, "sendDocument", nil)
}

func (c *Client) DownloadFile(ctx context.Context, fileID, dest string) error {
	params := url.Values{}
	params.Set("file_id", fileID)

	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", params, &file); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("telegram.DownloadFile: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram.DownloadFile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram.DownloadFile: status %s", resp.Status)
	}

	if err = os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return fmt.Errorf("telegram.DownloadFile: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("telegram.DownloadFile: %w", err)
	}
	defer out.Close()
	if _, err = io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("telegram.DownloadFile: %w", err)
	}
	return nil
}
