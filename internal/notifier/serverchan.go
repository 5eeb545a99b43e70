package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const serverChanAPI = "https://sctapi.ftqq.com"

// DefaultServerChanTitle is the push title shown in WeChat.
const DefaultServerChanTitle = "ETF定投提醒"

// ServerChanNotifier pushes messages to WeChat through Server酱.
type ServerChanNotifier struct {
	SendKey string
	Title   string
	BaseURL string
	Client  *http.Client
}

// NewServerChanNotifier creates a Server酱 notifier with optional proxy support.
func NewServerChanNotifier(sendKey, title, proxyURL string) *ServerChanNotifier {
	if title == "" {
		title = DefaultServerChanTitle
	}
	return &ServerChanNotifier{
		SendKey: sendKey,
		Title:   title,
		BaseURL: serverChanAPI,
		Client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: proxyTransport(proxyURL),
		},
	}
}

func (s *ServerChanNotifier) Name() string { return "serverchan" }

// Send posts the message as the push body. The push only counts as delivered
// when Server酱 answers with code 0.
func (s *ServerChanNotifier) Send(ctx context.Context, text string) error {
	base := s.BaseURL
	if base == "" {
		base = serverChanAPI
	}
	form := url.Values{}
	form.Set("title", s.Title)
	form.Set("desp", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s.send", base, s.SendKey), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serverchan error: status %d, body: %s", resp.StatusCode, string(body))
	}
	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode serverchan response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("serverchan rejected push: code %d, %s", result.Code, result.Message)
	}
	return nil
}
