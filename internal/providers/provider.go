// Package providers holds the closed set of supported email providers.
// The active provider is resolved from the stored email config when a
// run is set up, never per item.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mudamail/internal/store"
)

type Message struct {
	To           string
	ToName       string
	From         string
	FromName     string
	ReplyTo      string
	Subject      string
	HTML         string
	TrackingCode string
}

type Result struct {
	Success   bool
	MessageID string
	TestMode  bool
	Error     string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (Result, error)
}

type Options struct {
	HTTPClient *http.Client
	AWSRegion  string
}

// New resolves the provider named by the email config. For "ses" the
// config's server_id carries the access key id and api_key the secret;
// for "mailgun" server_id is the sending domain.
func New(ctx context.Context, cfg store.EmailConfig, opts Options) (Provider, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	switch cfg.Provider {
	case "ses":
		return NewSES(ctx, cfg.ServerID, cfg.APIKey, opts.AWSRegion)
	case "sendgrid":
		return &SendGrid{APIKey: cfg.APIKey, HTTP: httpClient}, nil
	case "mailgun":
		return &Mailgun{APIKey: cfg.APIKey, Domain: cfg.ServerID, HTTP: httpClient}, nil
	default:
		return nil, fmt.Errorf("provedor de email desconhecido: %q", cfg.Provider)
	}
}
