package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/angelmondragon/webstore-backend/internal/checkout"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// Telegram posts orders to a chat through the Bot API sendMessage method.
// The bot token is server-side configuration and never appears in errors.
type Telegram struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     string
}

// NewTelegram validates the bot credentials.
func NewTelegram(httpClient *http.Client, baseURL, token, chatID string) (*Telegram, error) {
	token = strings.TrimSpace(token)
	chatID = strings.TrimSpace(chatID)
	if token == "" || chatID == "" {
		return nil, errors.New("telegram bot token and chat id are required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	return &Telegram{httpClient: httpClient, baseURL: baseURL, token: token, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (t *Telegram) Send(ctx context.Context, doc checkout.Document) (checkout.Receipt, error) {
	body, err := json.Marshal(telegramRequest{ChatID: t.chatID, Text: doc.Text})
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("encode telegram message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return checkout.Receipt{}, errors.New("build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("telegram sendMessage: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	var payload telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return checkout.Receipt{}, fmt.Errorf("telegram sendMessage: status %d: decode response: %w", resp.StatusCode, err)
	}
	if !payload.OK {
		return checkout.Receipt{}, fmt.Errorf("telegram sendMessage: status %d: %s", resp.StatusCode, payload.Description)
	}
	return checkout.Receipt{Reference: strconv.FormatInt(payload.Result.MessageID, 10)}, nil
}

// redactURLError drops the request URL, which embeds the bot token.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
