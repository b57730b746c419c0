// Package dispatch runs the pending-email queues: select eligible rows,
// claim each one, render, send (or intercept in test mode) and write the
// outcome back. Items are processed strictly sequentially; a failed item
// never aborts the batch or the run.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mudamail/internal/domain"
	"mudamail/internal/estimate"
	"mudamail/internal/mailtemplate"
	"mudamail/internal/mailvars"
	"mudamail/internal/observability"
	"mudamail/internal/providers"
	"mudamail/internal/store"
	"mudamail/internal/testmode"
	"mudamail/internal/util"
)

const (
	TemplateCompany  = "orcamento_empresa"
	TemplateCustomer = "orcamento_cliente"

	// Placeholder provider name used in test mode when no provider is
	// configured, so template and tracking paths have a non-empty value.
	// No real send happens regardless.
	defaultProviderName = "sendgrid"
)

type Store interface {
	GetEmailConfig(ctx context.Context) (store.EmailConfig, bool, error)
	SelectEligible(ctx context.Context, q domain.QueueType) ([]store.QueueItem, error)
	ClaimQueueItem(ctx context.Context, q domain.QueueType, id string, now time.Time) (bool, error)
	MarkQueueSent(ctx context.Context, q domain.QueueType, id string, now time.Time) error
	MarkQueueError(ctx context.Context, q domain.QueueType, id, lastError string, now time.Time) error
	InsertQueueItem(ctx context.Context, q domain.QueueType, in store.QueueInsert) error
	GetQuote(ctx context.Context, id string) (store.Quote, bool, error)
	EnsureManualCompany(ctx context.Context, email string, now time.Time) (store.Company, error)
}

type Renderer interface {
	Render(ctx context.Context, key string, vars map[string]string, reuse *mailtemplate.ReuseKey) (*mailtemplate.Rendered, error)
}

type Tracker interface {
	Track(ctx context.Context, in store.TrackingUpsert)
}

type Dispatcher struct {
	Store       Store
	Renderer    Renderer
	Tracker     Tracker
	Provider    providers.Provider
	Interceptor *testmode.Interceptor
	TestMode    testmode.State
	Limiter     *rate.Limiter
	Breaker     *gobreaker.CircuitBreaker

	// Estimator fills distance and price for quotes that never got an
	// estimate; optional, and a failed estimate only leaves the
	// template variables on their "Não informado" rendering.
	Estimator estimate.Estimator

	BatchSize  int
	BatchDelay time.Duration

	// Sleep is swappable so tests don't pay the inter-batch delay.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func (d *Dispatcher) sleep(dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return util.NowUTC()
}

// checkConfig runs the pre-flight guards. Any error here aborts the run
// before a single item is touched.
func (d *Dispatcher) checkConfig(ctx context.Context) (store.EmailConfig, error) {
	cfg, found, err := d.Store.GetEmailConfig(ctx)
	if err != nil {
		return store.EmailConfig{}, err
	}
	if !found {
		return store.EmailConfig{}, domain.ErrNoEmailConfig
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return store.EmailConfig{}, domain.ErrNoSender
	}
	if !d.TestMode.Active {
		if cfg.Provider == "" {
			return store.EmailConfig{}, domain.ErrNoProvider
		}
		if cfg.APIKey == "" {
			return store.EmailConfig{}, domain.ErrConfigPartial
		}
		// The config can name a provider no client was built for
		// (unknown name, failed construction). Abort here rather than
		// panic mid-item with rows already claimed.
		if d.Provider == nil {
			return store.EmailConfig{}, domain.ErrProviderUnavailable
		}
		if !cfg.Active {
			slog.Warn("configuração de email inativa, prosseguindo mesmo assim", "provedor", cfg.Provider)
		}
	} else if cfg.Provider == "" {
		cfg.Provider = defaultProviderName
	}
	return cfg, nil
}

// Run processes one queue. The company queue is chunked into BatchSize
// batches with a pacing delay between them; the customer queue is a
// single unbatched pass.
func (d *Dispatcher) Run(ctx context.Context, queue domain.QueueType) (domain.RunResult, error) {
	cfg, err := d.checkConfig(ctx)
	if err != nil {
		observability.DispatchRuns.WithLabelValues(string(queue), "config_error").Inc()
		return domain.RunResult{}, err
	}

	items, err := d.Store.SelectEligible(ctx, queue)
	if err != nil {
		observability.DispatchRuns.WithLabelValues(string(queue), "select_error").Inc()
		return domain.RunResult{}, err
	}

	batchSize := d.BatchSize
	if queue == domain.QueueCustomers || batchSize <= 0 {
		batchSize = len(items)
	}
	batches := chunk(items, batchSize)

	var res domain.RunResult
	res.Batches = len(batches)

	for bi, batch := range batches {
		if bi > 0 && d.BatchDelay > 0 && queue != domain.QueueCustomers {
			d.sleep(d.BatchDelay)
		}
		for _, it := range batch {
			detail, processed := d.processItem(ctx, queue, cfg, it, bi)
			if !processed {
				continue
			}
			res.Total++
			if detail.Status == string(domain.StatusSent) {
				res.Sent++
			} else {
				res.Errors++
			}
			res.Details = append(res.Details, detail)
		}
	}

	observability.DispatchRuns.WithLabelValues(string(queue), "ok").Inc()
	slog.Info("disparo concluído",
		"fila", string(queue),
		"total", res.Total,
		"enviados", res.Sent,
		"erros", res.Errors,
		"lotes", res.Batches,
	)
	return res, nil
}

// processItem walks one queue row through claim, render, send and
// status write-back. The bool is false when the row was claimed by an
// overlapping run and nothing was done.
func (d *Dispatcher) processItem(ctx context.Context, queue domain.QueueType, cfg store.EmailConfig, it store.QueueItem, batchIndex int) (domain.ItemDetail, bool) {
	now := d.now()

	claimed, err := d.Store.ClaimQueueItem(ctx, queue, it.ID, now)
	if err != nil {
		return d.failItem(ctx, queue, cfg, it, batchIndex, "falha ao reservar item: "+err.Error()), true
	}
	if !claimed {
		slog.Info("item já reservado por outra execução, pulando", "item_id", it.ID)
		return domain.ItemDetail{}, false
	}

	recipient, label, templateKey, vars := d.itemInput(ctx, queue, it)
	if recipient == "" {
		return d.failItem(ctx, queue, cfg, it, batchIndex, "destinatário sem email"), true
	}

	rendered, err := d.Renderer.Render(ctx, templateKey, vars, &mailtemplate.ReuseKey{
		QuoteID:     it.QuoteID,
		RecipientID: it.RecipientID,
	})
	if err != nil {
		return d.failItem(ctx, queue, cfg, it, batchIndex, "falha ao renderizar template: "+err.Error()), true
	}
	if rendered == nil {
		return d.failItem(ctx, queue, cfg, it, batchIndex, domain.ErrTemplateInactive), true
	}

	msg := providers.Message{
		To:           recipient,
		ToName:       label,
		From:         cfg.FromEmail,
		FromName:     cfg.FromName,
		ReplyTo:      cfg.ReplyTo,
		Subject:      rendered.Subject,
		HTML:         rendered.HTML,
		TrackingCode: rendered.TrackingCode,
	}

	result, sendErr := d.send(ctx, cfg, msg)
	if sendErr != nil || !result.Success {
		detail := result.Error
		if detail == "" && sendErr != nil {
			detail = sendErr.Error()
		}
		d.trackOutcome(ctx, queue, it, msg, cfg.Provider, detail, result.TestMode, "")
		if err := d.Store.MarkQueueError(ctx, queue, it.ID, detail, d.now()); err != nil {
			slog.Error("falha ao marcar item com erro", "err", err, "item_id", it.ID)
		}
		return domain.ItemDetail{Recipient: label, Status: string(domain.StatusError), Error: detail, Batch: batchIndex}, true
	}

	d.trackOutcome(ctx, queue, it, msg, cfg.Provider, "", result.TestMode, result.MessageID)
	if err := d.Store.MarkQueueSent(ctx, queue, it.ID, d.now()); err != nil {
		slog.Error("falha ao marcar item como enviado", "err", err, "item_id", it.ID)
	}
	return domain.ItemDetail{Recipient: label, Status: string(domain.StatusSent), Batch: batchIndex}, true
}

// send routes through the interceptor in test mode; otherwise it pays
// the rate limiter and calls the provider behind the circuit breaker.
func (d *Dispatcher) send(ctx context.Context, cfg store.EmailConfig, msg providers.Message) (providers.Result, error) {
	if d.TestMode.Active {
		observability.Intercepted.Inc()
		return d.Interceptor.Intercept(msg, cfg.Provider), nil
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return providers.Result{}, err
		}
	}

	start := time.Now()
	call := func() (any, error) {
		return d.Provider.Send(ctx, msg)
	}

	var res any
	var err error
	if d.Breaker != nil {
		res, err = d.Breaker.Execute(call)
	} else {
		res, err = call()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.EmailSend.WithLabelValues(cfg.Provider, "breaker_open").Inc()
		return providers.Result{Error: "provedor temporariamente indisponível"}, err
	}
	if err != nil {
		observability.EmailSend.WithLabelValues(cfg.Provider, "error").Inc()
		if r, ok := res.(providers.Result); ok {
			return r, err
		}
		return providers.Result{Error: err.Error()}, err
	}

	observability.EmailSend.WithLabelValues(cfg.Provider, "ok").Inc()
	observability.EmailSendLatency.Observe(time.Since(start).Seconds())
	return res.(providers.Result), nil
}

// trackOutcome writes exactly one audit row for the attempt. In test
// mode the recorded recipient carries both the original and the
// redirect address. A failure with no prior row gets the freshly minted
// code from the render (or claim-failure fallback); retries keep the
// stored code because the upsert never rewrites it.
func (d *Dispatcher) trackOutcome(ctx context.Context, queue domain.QueueType, it store.QueueItem, msg providers.Message, provider, errDetail string, testMode bool, messageID string) {
	status := string(domain.StatusSent)
	if errDetail != "" {
		status = string(domain.StatusError)
	}

	recipient := msg.To
	if d.TestMode.Active {
		recipient = msg.To + " (redirecionado para " + d.TestMode.Redirect + ")"
	}

	d.Tracker.Track(ctx, store.TrackingUpsert{
		Code:        msg.TrackingCode,
		QuoteID:     it.QuoteID,
		RecipientID: it.RecipientID,
		TemplateKey: templateFor(queue),
		Recipient:   recipient,
		Subject:     msg.Subject,
		Status:      status,
		Provider:    provider,
		TestMode:    d.TestMode.Active || testMode,
		MessageID:   messageID,
		ErrorDetail: errDetail,
		Now:         d.now(),
	})
}

// failItem handles every pre-send failure: the item goes to error with
// the detail, and the attempt still produces one tracked record, with a
// fallback code when no render happened.
func (d *Dispatcher) failItem(ctx context.Context, queue domain.QueueType, cfg store.EmailConfig, it store.QueueItem, batchIndex int, detail string) domain.ItemDetail {
	_, label, templateKey, _ := d.itemInput(ctx, queue, it)

	recipient := label
	if queue == domain.QueueCustomers {
		recipient = it.Quote.Email
	} else if it.Company.Email != "" {
		recipient = it.Company.Email
	}

	d.Tracker.Track(ctx, store.TrackingUpsert{
		Code:        util.NewTrackingCode(),
		QuoteID:     it.QuoteID,
		RecipientID: it.RecipientID,
		TemplateKey: templateKey,
		Recipient:   recipient,
		Status:      string(domain.StatusError),
		Provider:    cfg.Provider,
		TestMode:    d.TestMode.Active,
		ErrorDetail: detail,
		Now:         d.now(),
	})

	if err := d.Store.MarkQueueError(ctx, queue, it.ID, detail, d.now()); err != nil {
		slog.Error("falha ao marcar item com erro", "err", err, "item_id", it.ID)
	}
	return domain.ItemDetail{Recipient: label, Status: string(domain.StatusError), Error: detail, Batch: batchIndex}
}

func (d *Dispatcher) itemInput(ctx context.Context, queue domain.QueueType, it store.QueueItem) (recipient, label, templateKey string, vars map[string]string) {
	quote := d.withEstimate(ctx, it.Quote)
	if queue == domain.QueueCustomers {
		return quote.Email, quote.Email, TemplateCustomer, mailvars.BuildCustomerVars(quote)
	}
	return it.Company.Email, it.Company.Name, TemplateCompany, mailvars.BuildCompanyVars(quote, it.Company)
}

// withEstimate backfills distance and price on quotes that were saved
// without an estimate.
func (d *Dispatcher) withEstimate(ctx context.Context, quote store.Quote) store.Quote {
	if d.Estimator == nil || (quote.DistanceKm != nil && quote.PriceMinCents != nil) {
		return quote
	}
	est, err := d.Estimator.Estimate(ctx, estimate.Input{
		OriginCity:   quote.OriginCity,
		OriginState:  quote.OriginState,
		DestCity:     quote.DestCity,
		DestState:    quote.DestState,
		PropertyType: quote.PropertyType,
	})
	if err != nil || est == nil {
		return quote
	}
	if quote.DistanceKm == nil {
		quote.DistanceKm = &est.DistanceKm
	}
	if quote.PriceMinCents == nil {
		quote.PriceMinCents = &est.PriceMinCents
	}
	if quote.PriceMaxCents == nil {
		quote.PriceMaxCents = &est.PriceMaxCents
	}
	return quote
}

func templateFor(queue domain.QueueType) string {
	if queue == domain.QueueCustomers {
		return TemplateCustomer
	}
	return TemplateCompany
}

func chunk(items []store.QueueItem, size int) [][]store.QueueItem {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]store.QueueItem{items}
	}
	var out [][]store.QueueItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
