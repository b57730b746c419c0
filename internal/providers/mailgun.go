package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Mailgun struct {
	APIKey  string
	Domain  string
	HTTP    *http.Client
	BaseURL string
}

func (m *Mailgun) Name() string { return "mailgun" }

func (m *Mailgun) Send(ctx context.Context, msg Message) (Result, error) {
	form := url.Values{}
	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}
	form.Set("from", from)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTML)
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}
	if msg.TrackingCode != "" {
		form.Set("v:tracking_code", msg.TrackingCode)
	}

	baseURL := strings.TrimRight(m.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.mailgun.net"
	}
	endpoint := baseURL + "/v3/" + m.Domain + "/messages"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.APIKey)

	resp, err := m.HTTP.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var out struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := "mailgun: falha no envio"
		if out.Message != "" {
			detail = "mailgun: " + out.Message
		}
		return Result{Error: detail}, errors.New(detail)
	}
	return Result{Success: true, MessageID: out.ID}, nil
}
