package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mudamail/internal/domain"
	"mudamail/internal/providers"
	"mudamail/internal/store"
	"mudamail/internal/testmode"
)

func interceptedMessage(to string) providers.Message {
	return providers.Message{To: to, Subject: "Novo orçamento de mudança", TrackingCode: "trk_x"}
}

type fakeDispatcher struct {
	runRes    domain.RunResult
	runErr    error
	runQueue  domain.QueueType
	manualRes domain.ManualSendResponse
	manualErr error
	state     testmode.State
}

func (f *fakeDispatcher) Run(_ context.Context, queue domain.QueueType) (domain.RunResult, error) {
	f.runQueue = queue
	return f.runRes, f.runErr
}

func (f *fakeDispatcher) SendManual(_ context.Context, quoteID, email string) (domain.ManualSendResponse, error) {
	return f.manualRes, f.manualErr
}

type fakeTracking struct {
	rec   store.TrackingRecord
	found bool
	err   error
}

func (f *fakeTracking) Get(_ context.Context, code string) (store.TrackingRecord, bool, error) {
	return f.rec, f.found, f.err
}

func newAPI(fd *fakeDispatcher, resolver *testmode.Resolver, tr TrackingStore) *API {
	if resolver == nil {
		resolver = &testmode.Resolver{EnvFlag: "false"}
	}
	return &API{
		Dispatch: func(state testmode.State) Dispatcher {
			fd.state = state
			return fd
		},
		Resolver:    resolver,
		Interceptor: &testmode.Interceptor{Redirect: testmode.FallbackAddress},
		Tracking:    tr,
	}
}

func serve(t *testing.T, api *API, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv := New()
	api.Register(srv.Mux)
	srv.Mux.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestDispatchCompaniesFullBody(t *testing.T) {
	fd := &fakeDispatcher{runRes: domain.RunResult{
		Total: 3, Sent: 2, Errors: 1, Batches: 1,
		Details: []domain.ItemDetail{
			{Recipient: "Transportes Silva", Status: "sent", Batch: 0},
			{Recipient: "Mudanças Brasil", Status: "sent", Batch: 0},
			{Recipient: "Frete Rápido", Status: "error", Error: "sendgrid: rejected", Batch: 0},
		},
	}}
	api := newAPI(fd, nil, &fakeTracking{})

	w := serve(t, api, http.MethodPost, "/dispatch/company-emails", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if fd.runQueue != domain.QueueCompanies {
		t.Fatalf("queue = %q", fd.runQueue)
	}

	body := decode(t, w)
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	if body["enviados"] != float64(2) || body["erros"] != float64(1) {
		t.Fatalf("counts = %v / %v", body["enviados"], body["erros"])
	}
	if body["total"] != float64(3) || body["lotes"] != float64(1) {
		t.Fatalf("batch fields = %v / %v", body["total"], body["lotes"])
	}
	details, ok := body["detalhes"].([]any)
	if !ok || len(details) != 3 {
		t.Fatalf("detalhes = %v", body["detalhes"])
	}
	first := details[0].(map[string]any)
	if first["destinatario"] != "Transportes Silva" || first["lote"] != float64(0) {
		t.Fatalf("first detail = %v", first)
	}
}

func TestDispatchCompaniesEmptyRunKeepsBatchFields(t *testing.T) {
	api := newAPI(&fakeDispatcher{}, nil, &fakeTracking{})

	w := serve(t, api, http.MethodPost, "/dispatch/company-emails", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	for _, field := range []string{"total", "lotes"} {
		v, present := body[field]
		if !present || v != float64(0) {
			t.Fatalf("%s must be an explicit zero on an empty run: %v (present=%v)", field, v, present)
		}
	}
}

func TestDispatchCustomersOmitsBatchFields(t *testing.T) {
	fd := &fakeDispatcher{runRes: domain.RunResult{Total: 5, Sent: 5, Batches: 1}}
	api := newAPI(fd, nil, &fakeTracking{})

	w := serve(t, api, http.MethodPost, "/dispatch/customer-emails", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if fd.runQueue != domain.QueueCustomers {
		t.Fatalf("queue = %q", fd.runQueue)
	}

	body := decode(t, w)
	if body["enviados"] != float64(5) {
		t.Fatalf("enviados = %v", body["enviados"])
	}
	for _, field := range []string{"total", "lotes", "detalhes"} {
		if _, present := body[field]; present {
			t.Fatalf("customer body must not carry %q: %v", field, body)
		}
	}
}

func TestDispatchConfigErrorIsBadRequest(t *testing.T) {
	fd := &fakeDispatcher{runErr: domain.ErrNoEmailConfig}
	api := newAPI(fd, nil, &fakeTracking{})

	w := serve(t, api, http.MethodPost, "/dispatch/company-emails", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false || body["error"] != domain.ErrNoEmailConfig.Error() {
		t.Fatalf("body = %v", body)
	}
}

func TestDispatchPassesResolvedState(t *testing.T) {
	fd := &fakeDispatcher{}
	api := newAPI(fd, &testmode.Resolver{EnvFlag: "true", EnvAddress: "qa@mudatech.com.br"}, &fakeTracking{})

	serve(t, api, http.MethodPost, "/dispatch/company-emails", "")
	if !fd.state.Active || fd.state.Redirect != "qa@mudatech.com.br" {
		t.Fatalf("state = %+v", fd.state)
	}
}

func TestSendManualRoutes(t *testing.T) {
	fd := &fakeDispatcher{manualRes: domain.ManualSendResponse{
		Success: true,
		Message: "email enviado para alvo@empresa.com.br",
		Status:  string(domain.StatusSent),
	}}
	api := newAPI(fd, nil, &fakeTracking{})

	w := serve(t, api, http.MethodPost, "/quotes/orc_1/send-manual",
		`{"email_destinatario":"alvo@empresa.com.br"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["status"] != string(domain.StatusSent) {
		t.Fatalf("body = %v", body)
	}
}

func TestSendManualBadJSON(t *testing.T) {
	api := newAPI(&fakeDispatcher{}, nil, &fakeTracking{})
	w := serve(t, api, http.MethodPost, "/quotes/orc_1/send-manual", "{")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSendManualErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidEmail, http.StatusBadRequest},
		{domain.ErrQuoteNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		api := newAPI(&fakeDispatcher{manualErr: tc.err}, nil, &fakeTracking{})
		w := serve(t, api, http.MethodPost, "/quotes/orc_1/send-manual",
			`{"email_destinatario":"alvo@empresa.com.br"}`)
		if w.Code != tc.want {
			t.Fatalf("err %v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestTestModeToggleRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resolver := &testmode.Resolver{Redis: rdb, EnvFlag: "false"}
	api := newAPI(&fakeDispatcher{}, resolver, &fakeTracking{})

	w := serve(t, api, http.MethodGet, "/test-mode", "")
	if body := decode(t, w); body["ativo"] != false {
		t.Fatalf("initial state = %v", body)
	}

	w = serve(t, api, http.MethodPut, "/test-mode", `{"ativo":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}
	if body := decode(t, w); body["ativo"] != true || body["destinatario_teste"] != testmode.FallbackAddress {
		t.Fatalf("toggled state = %v", body)
	}

	w = serve(t, api, http.MethodDelete, "/test-mode", "")
	if body := decode(t, w); body["ativo"] != false {
		t.Fatalf("cleared state = %v", body)
	}
}

func TestTestModePutWithoutBodyFlag(t *testing.T) {
	api := newAPI(&fakeDispatcher{}, nil, &fakeTracking{})
	w := serve(t, api, http.MethodPut, "/test-mode", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTestModeLog(t *testing.T) {
	api := newAPI(&fakeDispatcher{}, nil, &fakeTracking{})
	api.Interceptor.Intercept(interceptedMessage("cliente@gmail.com"), "sendgrid")

	w := serve(t, api, http.MethodGet, "/test-mode/log", "")
	body := decode(t, w)
	if body["total"] != float64(1) {
		t.Fatalf("total = %v", body["total"])
	}
	entries := body["emails"].([]any)
	entry := entries[0].(map[string]any)
	if entry["destinatario_original"] != "cliente@gmail.com" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestGetTracking(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	tr := &fakeTracking{
		rec: store.TrackingRecord{
			Code:      "trk_01ABC",
			QuoteID:   "orc_1",
			Recipient: "contato@empresa.com.br",
			Status:    string(domain.StatusSent),
			CreatedAt: now,
			UpdatedAt: now,
		},
		found: true,
	}
	api := newAPI(&fakeDispatcher{}, nil, tr)

	w := serve(t, api, http.MethodGet, "/tracking/trk_01ABC", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["codigo"] != "trk_01ABC" || body["status"] != "sent" {
		t.Fatalf("body = %v", body)
	}
	if body["criado_em"] != "2026-08-31T12:00:00Z" {
		t.Fatalf("criado_em = %v", body["criado_em"])
	}
}

func TestGetTrackingNotFound(t *testing.T) {
	api := newAPI(&fakeDispatcher{}, nil, &fakeTracking{})
	w := serve(t, api, http.MethodGet, "/tracking/trk_missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
