package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/phone"

	"golang.org/x/time/rate"
)

// Client sends messages through a gowa-compatible WhatsApp gateway. It
// implements the outbound message port used by the follow-up engine and
// the dispatch gate. Sends are rate limited to stay within the gateway's
// per-device allowance; a nil Client (gateway not configured) silently
// swallows sends so local setups without a device still work.
type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

const defaultSendsPerMinute = 20

func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	baseURL := strings.TrimRight(cfg.GetWhatsAppURL(), "/")
	if baseURL == "" {
		return nil
	}

	perMinute := cfg.GetWhatsAppSendsPerMinute()
	if perMinute < 1 {
		perMinute = defaultSendsPerMinute
	}

	return &Client{
		baseURL:  baseURL,
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		log:      log,
	}
}

func (c *Client) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	// gowa wants the number without the E.164 plus prefix.
	recipient := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	if err := c.post(ctx, "/send/message", sendMessageRequest{Phone: recipient, Message: message}); err != nil {
		return err
	}

	c.log.Info("whatsapp sent via gowa", "phone", recipient)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", basicAuth(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// basicAuth accepts either a precomposed "Basic ..." header value or a raw
// "user:password" pair, matching how the gateway keys are distributed.
func basicAuth(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey))
}
