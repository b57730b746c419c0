package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

type SendGrid struct {
	APIKey  string
	HTTP    *http.Client
	BaseURL string
}

func (s *SendGrid) Name() string { return "sendgrid" }

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	ReplyTo          *sgAddress          `json:"reply_to,omitempty"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	CustomArgs       map[string]string   `json:"custom_args,omitempty"`
}

func (s *SendGrid) Send(ctx context.Context, msg Message) (Result, error) {
	p := sgPayload{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To, Name: msg.ToName}}}},
		From:             sgAddress{Email: msg.From, Name: msg.FromName},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/html", Value: msg.HTML}},
	}
	if msg.ReplyTo != "" {
		p.ReplyTo = &sgAddress{Email: msg.ReplyTo}
	}
	if msg.TrackingCode != "" {
		p.CustomArgs = map[string]string{"tracking_code": msg.TrackingCode}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return Result{}, err
	}

	baseURL := strings.TrimRight(s.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v3/mail/send", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	// SendGrid answers 202 with an empty body; the message id rides the
	// X-Message-Id header.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := sendgridError(raw)
		return Result{Error: detail}, errors.New(detail)
	}
	return Result{Success: true, MessageID: resp.Header.Get("X-Message-Id")}, nil
}

func sendgridError(raw []byte) string {
	var body struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 && body.Errors[0].Message != "" {
		return "sendgrid: " + body.Errors[0].Message
	}
	return "sendgrid: falha no envio"
}
