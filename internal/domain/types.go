package domain

import (
	"errors"
	"strings"
)

type QueueStatus string

const (
	StatusQueued  QueueStatus = "queued"
	StatusSending QueueStatus = "sending"
	StatusSent    QueueStatus = "sent"
	StatusError   QueueStatus = "error"
)

// MaxAttempts bounds delivery retries. An item at status=error with
// attempts >= MaxAttempts is terminal and never selected again.
const MaxAttempts = 3

type QueueType string

const (
	QueueCompanies QueueType = "empresas"
	QueueCustomers QueueType = "clientes"
)

type ManualSendRequest struct {
	Email string `json:"email_destinatario"`
}

func (r ManualSendRequest) Validate() error {
	if !strings.Contains(r.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

var (
	ErrInvalidEmail  = errors.New("email de destinatário inválido")
	ErrNoEmailConfig = errors.New("nenhuma configuração de email encontrada")
	ErrNoSender      = errors.New("email do remetente não configurado")
	ErrNoProvider    = errors.New("provedor de email não configurado")
	ErrConfigPartial = errors.New("configuração de email incompleta")
	// ErrProviderUnavailable: the config names a provider but no client
	// could be built for it (unknown name, bad credentials shape).
	ErrProviderUnavailable = errors.New("provedor de email indisponível")
	ErrQuoteNotFound       = errors.New("orçamento não encontrado")
)

// ErrTemplateInactive is the fixed per-item failure when the template
// lookup comes back empty; no provider call is made for that item.
const ErrTemplateInactive = "template não encontrado ou inativo"

// ItemDetail is one entry of a run's detalhes[].
type ItemDetail struct {
	Recipient string `json:"destinatario"`
	Status    string `json:"status"`
	Error     string `json:"erro,omitempty"`
	Batch     int    `json:"lote"`
}

// RunResult aggregates one dispatcher run.
type RunResult struct {
	Total   int
	Sent    int
	Errors  int
	Batches int
	Details []ItemDetail
}

type DispatchResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Sent    int          `json:"enviados"`
	Errors  int          `json:"erros"`
	Total   int          `json:"total"`
	Batches int          `json:"lotes"`
	Details []ItemDetail `json:"detalhes,omitempty"`
}

type ManualSendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  string `json:"status"`
}
