// Package crm pushes qualified leads to the external CRM over its HTTP
// API.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"

	"github.com/google/uuid"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

// LeadPayload is the outbound CRM record for a qualified lead.
type LeadPayload struct {
	LeadID  string `json:"leadId"`
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
	Timing  string `json:"timing"`
	Profile string `json:"profile"`
	Summary string `json:"summary,omitempty"`
}

func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if cfg.GetCRMBaseURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:  cfg.GetCRMAPIKey(),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// PushLead creates or updates the lead record in the CRM.
func (c *Client) PushLead(ctx context.Context, leadID uuid.UUID, payload LeadPayload) error {
	if c == nil {
		return fmt.Errorf("crm client not configured")
	}

	payload.LeadID = leadID.String()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal crm payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/leads", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("lead pushed to crm", "lead_id", leadID)
	return nil
}
