package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"vendaschat/internal/model"

	"go.uber.org/zap"
)

const (
	// provisionTimeout bounds each external create-user call
	provisionTimeout = 30 * time.Second
	// trialUserPrefix builds local usernames from the WhatsApp number
	trialUserPrefix = "iaze_"
	passwordLength  = 5
)

// HTTPProvisioner creates trial users against the endpoint a button carries.
// Buttons without an endpoint fall back to local generation, so the sales
// flow works before any external integration is configured.
type HTTPProvisioner struct {
	client *http.Client
	log    *zap.Logger
}

func NewHTTPProvisioner(log *zap.Logger) *HTTPProvisioner {
	return &HTTPProvisioner{
		client: &http.Client{Timeout: provisionTimeout},
		log:    log,
	}
}

// createUserRequest is the wire shape of the external create-user contract
type createUserRequest struct {
	ButtonID string         `json:"button_id"`
	UserData map[string]any `json:"user_data"`
}

type createUserResponse struct {
	Credentials struct {
		GeneratedUser     string `json:"generated_user"`
		GeneratedPassword string `json:"generated_password"`
		WhatsApp          string `json:"whatsapp"`
		PIN               string `json:"pin"`
	} `json:"credentials"`
	AlreadyExists bool `json:"already_exists"`
}

// CreateUser provisions a trial account for lead through btn's endpoint.
// The bool result reports the "already exists" branch, which is a successful
// outcome, not an error.
func (p *HTTPProvisioner) CreateUser(ctx context.Context, btn model.ButtonNode, lead model.Lead) (model.Credentials, bool, error) {
	if btn.APIURL == "" {
		return p.generateLocal(lead)
	}

	method := btn.APIMethod
	if method == "" {
		method = http.MethodPost
	}

	payload, err := json.Marshal(createUserRequest{
		ButtonID: btn.ID,
		UserData: map[string]any{
			"name":     lead.Name,
			"whatsapp": lead.WhatsApp,
			"pin":      lead.PIN,
		},
	})
	if err != nil {
		return model.Credentials{}, false, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, btn.APIURL, bytes.NewReader(payload))
	if err != nil {
		return model.Credentials{}, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range btn.APIHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Credentials{}, false, fmt.Errorf("create-user call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Credentials{}, false, fmt.Errorf("failed to read response: %w", err)
	}

	// 409 carries the existing-account payload: a recognized alternate
	// outcome, handled like success
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		p.log.Error("create-user endpoint returned error",
			zap.String("url", btn.APIURL),
			zap.Int("status", resp.StatusCode),
		)
		return model.Credentials{}, false, fmt.Errorf("create-user endpoint returned %d", resp.StatusCode)
	}

	var out createUserResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return model.Credentials{}, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Credentials.GeneratedUser == "" {
		return model.Credentials{}, false, fmt.Errorf("create-user response missing credentials")
	}

	return model.Credentials{
		Username: out.Credentials.GeneratedUser,
		Password: out.Credentials.GeneratedPassword,
	}, out.AlreadyExists || resp.StatusCode == http.StatusConflict, nil
}

func (p *HTTPProvisioner) generateLocal(lead model.Lead) (model.Credentials, bool, error) {
	password, err := randomPassword(passwordLength)
	if err != nil {
		return model.Credentials{}, false, fmt.Errorf("failed to generate password: %w", err)
	}
	return model.Credentials{
		Username: trialUserPrefix + lead.WhatsApp,
		Password: password,
	}, false, nil
}

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomPassword(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
