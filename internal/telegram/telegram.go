// Package telegram is a thin client for the pieces of the Bot API this
// service actually uses: sending HTML messages with inline keyboards or
// force-reply prompts, and acknowledging callback queries. Inbound traffic
// arrives as webhook updates decoded into the types below.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func New(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// NewWithBaseURL exists for tests that point the client at a local server.
func NewWithBaseURL(token string, baseURL string) *Client {
	c := New(token)
	c.baseURL = baseURL
	return c
}

// InlineButton is one tappable control in an inline keyboard row.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// ReplyMarkup is the declarative control set attached to a message: either
// an inline keyboard or a force-reply request, never both.
type ReplyMarkup struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard,omitempty"`
	ForceReply     bool             `json:"force_reply,omitempty"`
}

// SendOptions configures one outgoing message. ParseMode defaults to HTML,
// which is what the hidden-token spoiler spans require.
type SendOptions struct {
	ReplyMarkup *ReplyMarkup
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode"`
	ReplyMarkup *ReplyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	req := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}
	if opts != nil {
		req.ReplyMarkup = opts.ReplyMarkup
	}
	return c.call(ctx, "sendMessage", req)
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return err
	}
	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("telegram %s: status %d, unparseable response", method, resp.StatusCode)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram %s: %s", method, apiResp.Description)
	}
	return nil
}

// Update is one inbound webhook event.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message carries both new operator input (Text) and, for replies, the
// quoted original message. The correlation protocol depends on the transport
// round-tripping ReplyToMessage.Text verbatim, hidden spans included.
type Message struct {
	MessageID      int64    `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	Chat           Chat     `json:"chat"`
	Text           string   `json:"text"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// Spoiler wraps text in the visually hidden span used to embed correlation
// tokens in operator prompts.
func Spoiler(text string) string {
	return "<tg-spoiler>" + text + "</tg-spoiler>"
}
