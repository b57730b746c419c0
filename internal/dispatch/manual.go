package dispatch

import (
	"context"
	"log/slog"

	"mudamail/internal/domain"
	"mudamail/internal/mailvars"
	"mudamail/internal/providers"
	"mudamail/internal/store"
	"mudamail/internal/util"
)

// SendManual delivers one quote to an arbitrary address right now:
// exactly one attempt, no queueing, no retry. Every call appends a
// fresh queue row and a fresh tracking record; the placeholder manual
// recipient is opted out of automatic campaigns so these rows never
// enter a batch run.
func (d *Dispatcher) SendManual(ctx context.Context, quoteID, email string) (domain.ManualSendResponse, error) {
	if err := (domain.ManualSendRequest{Email: email}).Validate(); err != nil {
		return domain.ManualSendResponse{}, err
	}

	cfg, err := d.checkConfig(ctx)
	if err != nil {
		return domain.ManualSendResponse{}, err
	}

	quote, found, err := d.Store.GetQuote(ctx, quoteID)
	if err != nil {
		return domain.ManualSendResponse{}, err
	}
	if !found {
		return domain.ManualSendResponse{}, domain.ErrQuoteNotFound
	}

	now := d.now()
	company, err := d.Store.EnsureManualCompany(ctx, email, now)
	if err != nil {
		return domain.ManualSendResponse{}, err
	}

	itemID := util.NewQueueID()
	if err := d.Store.InsertQueueItem(ctx, domain.QueueCompanies, store.QueueInsert{
		ID:          itemID,
		QuoteID:     quoteID,
		RecipientID: company.ID,
		Status:      string(domain.StatusQueued),
		Now:         now,
	}); err != nil {
		return domain.ManualSendResponse{}, err
	}
	if _, err := d.Store.ClaimQueueItem(ctx, domain.QueueCompanies, itemID, now); err != nil {
		return domain.ManualSendResponse{}, err
	}

	vars := mailvars.BuildCompanyVars(d.withEstimate(ctx, quote), company)

	// No reuse key: manual sends are append-only history with a code of
	// their own.
	rendered, err := d.Renderer.Render(ctx, TemplateCompany, vars, nil)
	if err != nil {
		return domain.ManualSendResponse{}, err
	}
	if rendered == nil {
		return d.manualOutcome(ctx, itemID, quoteID, company.ID, email, cfg, providers.Message{TrackingCode: util.NewTrackingCode()}, domain.ErrTemplateInactive), nil
	}

	msg := providers.Message{
		To:           email,
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
		return d.manualOutcome(ctx, itemID, quoteID, company.ID, email, cfg, msg, detail), nil
	}

	d.Tracker.Track(ctx, store.TrackingUpsert{
		Code:        msg.TrackingCode,
		QuoteID:     quoteID,
		RecipientID: company.ID,
		TemplateKey: TemplateCompany,
		Recipient:   d.manualRecipient(email),
		Subject:     msg.Subject,
		Status:      string(domain.StatusSent),
		Provider:    cfg.Provider,
		TestMode:    d.TestMode.Active || result.TestMode,
		MessageID:   result.MessageID,
		Manual:      true,
		Now:         d.now(),
	})
	if err := d.Store.MarkQueueSent(ctx, domain.QueueCompanies, itemID, d.now()); err != nil {
		slog.Error("falha ao marcar envio manual como enviado", "err", err, "item_id", itemID)
	}

	return domain.ManualSendResponse{
		Success: true,
		Message: "email enviado para " + email,
		Status:  string(domain.StatusSent),
	}, nil
}

func (d *Dispatcher) manualOutcome(ctx context.Context, itemID, quoteID, companyID, email string, cfg store.EmailConfig, msg providers.Message, detail string) domain.ManualSendResponse {
	d.Tracker.Track(ctx, store.TrackingUpsert{
		Code:        msg.TrackingCode,
		QuoteID:     quoteID,
		RecipientID: companyID,
		TemplateKey: TemplateCompany,
		Recipient:   d.manualRecipient(email),
		Subject:     msg.Subject,
		Status:      string(domain.StatusError),
		Provider:    cfg.Provider,
		TestMode:    d.TestMode.Active,
		ErrorDetail: detail,
		Manual:      true,
		Now:         d.now(),
	})
	if err := d.Store.MarkQueueError(ctx, domain.QueueCompanies, itemID, detail, d.now()); err != nil {
		slog.Error("falha ao marcar envio manual com erro", "err", err, "item_id", itemID)
	}
	return domain.ManualSendResponse{
		Success: false,
		Error:   detail,
		Status:  string(domain.StatusError),
	}
}

func (d *Dispatcher) manualRecipient(email string) string {
	if d.TestMode.Active {
		return email + " (redirecionado para " + d.TestMode.Redirect + ")"
	}
	return email
}
