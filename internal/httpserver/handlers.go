// Package httpserver exposes the dispatch triggers and the supporting
// test-mode and tracking endpoints. Handlers resolve the interception
// state per request and hand it to a fresh dispatcher, so a toggle flip
// never affects a run already in flight.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"mudamail/internal/domain"
	"mudamail/internal/store"
	"mudamail/internal/testmode"
)

type Dispatcher interface {
	Run(ctx context.Context, queue domain.QueueType) (domain.RunResult, error)
	SendManual(ctx context.Context, quoteID, email string) (domain.ManualSendResponse, error)
}

type TrackingStore interface {
	Get(ctx context.Context, code string) (store.TrackingRecord, bool, error)
}

type API struct {
	// Dispatch builds a dispatcher bound to the given interception
	// state for the duration of one request.
	Dispatch    func(state testmode.State) Dispatcher
	Resolver    *testmode.Resolver
	Interceptor *testmode.Interceptor
	Tracking    TrackingStore
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/dispatch/company-emails", a.handleDispatchCompanies).Methods(http.MethodPost)
	r.HandleFunc("/dispatch/customer-emails", a.handleDispatchCustomers).Methods(http.MethodPost)
	r.HandleFunc("/quotes/{id}/send-manual", a.handleSendManual).Methods(http.MethodPost)
	r.HandleFunc("/test-mode", a.handleGetTestMode).Methods(http.MethodGet)
	r.HandleFunc("/test-mode", a.handlePutTestMode).Methods(http.MethodPut)
	r.HandleFunc("/test-mode", a.handleDeleteTestMode).Methods(http.MethodDelete)
	r.HandleFunc("/test-mode/log", a.handleTestModeLog).Methods(http.MethodGet)
	r.HandleFunc("/tracking/{code}", a.handleGetTracking).Methods(http.MethodGet)
}

func (a *API) handleDispatchCompanies(w http.ResponseWriter, r *http.Request) {
	state := a.Resolver.Resolve(r.Context())
	res, err := a.Dispatch(state).Run(r.Context(), domain.QueueCompanies)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.DispatchResponse{
		Success: true,
		Message: runMessage(res),
		Sent:    res.Sent,
		Errors:  res.Errors,
		Total:   res.Total,
		Batches: res.Batches,
		Details: res.Details,
	})
}

func (a *API) handleDispatchCustomers(w http.ResponseWriter, r *http.Request) {
	state := a.Resolver.Resolve(r.Context())
	res, err := a.Dispatch(state).Run(r.Context(), domain.QueueCustomers)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	// The customer run reports counts only, no batch breakdown.
	writeJSON(w, http.StatusOK, customerRunBody{
		Success: true,
		Message: runMessage(res),
		Sent:    res.Sent,
		Errors:  res.Errors,
	})
}

type customerRunBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Sent    int    `json:"enviados"`
	Errors  int    `json:"erros"`
}

func (a *API) handleSendManual(w http.ResponseWriter, r *http.Request) {
	quoteID := mux.Vars(r)["id"]
	if quoteID == "" {
		writeError(w, http.StatusBadRequest, ErrMissingID)
		return
	}

	var req domain.ManualSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}

	state := a.Resolver.Resolve(r.Context())
	resp, err := a.Dispatch(state).SendManual(r.Context(), quoteID, req.Email)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type testModeBody struct {
	Active   bool   `json:"ativo"`
	Redirect string `json:"destinatario_teste"`
}

func (a *API) handleGetTestMode(w http.ResponseWriter, r *http.Request) {
	state := a.Resolver.Resolve(r.Context())
	writeJSON(w, http.StatusOK, testModeBody{Active: state.Active, Redirect: state.Redirect})
}

func (a *API) handlePutTestMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"ativo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if err := a.Resolver.SetRuntime(r.Context(), *body.Active); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	state := a.Resolver.Resolve(r.Context())
	writeJSON(w, http.StatusOK, testModeBody{Active: state.Active, Redirect: state.Redirect})
}

func (a *API) handleDeleteTestMode(w http.ResponseWriter, r *http.Request) {
	if err := a.Resolver.ClearRuntime(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	state := a.Resolver.Resolve(r.Context())
	writeJSON(w, http.StatusOK, testModeBody{Active: state.Active, Redirect: state.Redirect})
}

func (a *API) handleTestModeLog(w http.ResponseWriter, r *http.Request) {
	entries := a.Interceptor.Log()
	writeJSON(w, http.StatusOK, struct {
		Total   int                         `json:"total"`
		Entries []testmode.InterceptedEmail `json:"emails"`
	}{Total: len(entries), Entries: entries})
}

type trackingBody struct {
	Code        string `json:"codigo"`
	QuoteID     string `json:"orcamento_id"`
	RecipientID string `json:"destinatario_id,omitempty"`
	TemplateKey string `json:"template"`
	Recipient   string `json:"destinatario"`
	Subject     string `json:"assunto,omitempty"`
	Status      string `json:"status"`
	Provider    string `json:"provedor,omitempty"`
	TestMode    bool   `json:"modo_teste"`
	MessageID   string `json:"message_id,omitempty"`
	ErrorDetail string `json:"erro,omitempty"`
	Manual      bool   `json:"manual"`
	CreatedAt   string `json:"criado_em"`
	UpdatedAt   string `json:"atualizado_em"`
}

func (a *API) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	rec, found, err := a.Tracking.Get(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrDependency)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trackingBody{
		Code:        rec.Code,
		QuoteID:     rec.QuoteID,
		RecipientID: rec.RecipientID,
		TemplateKey: rec.TemplateKey,
		Recipient:   rec.Recipient,
		Subject:     rec.Subject,
		Status:      rec.Status,
		Provider:    rec.Provider,
		TestMode:    rec.TestMode,
		MessageID:   rec.MessageID,
		ErrorDetail: rec.ErrorDetail,
		Manual:      rec.Manual,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   rec.UpdatedAt.Format(time.RFC3339),
	})
}

func runMessage(res domain.RunResult) string {
	return fmt.Sprintf("%d emails enviados, %d erros", res.Sent, res.Errors)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrNoEmailConfig),
		errors.Is(err, domain.ErrNoSender),
		errors.Is(err, domain.ErrNoProvider),
		errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrConfigPartial):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQuoteNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("falha ao escrever resposta", "err", err)
	}
}
