package dispatch

import (
	"context"
	"errors"
	"testing"

	"mudamail/internal/domain"
	"mudamail/internal/store"
)

func TestSendManualRejectsBadEmailBeforeAnyIO(t *testing.T) {
	fs := &fakeStore{cfg: activeConfig(), cfgFound: true}
	d := newDispatcher(fs, &fakeRenderer{}, &fakeTracker{}, &fakeProvider{})

	_, err := d.SendManual(context.Background(), "orc_1", "not-an-email")
	if !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("err = %v", err)
	}
	if fs.cfgHits != 0 {
		t.Fatalf("validation must short-circuit before config load")
	}
	if len(fs.inserted) != 0 {
		t.Fatalf("no queue row may be created for an invalid address")
	}
}

func TestSendManualQuoteNotFound(t *testing.T) {
	fs := &fakeStore{cfg: activeConfig(), cfgFound: true, quoteFound: false}
	d := newDispatcher(fs, &fakeRenderer{}, &fakeTracker{}, &fakeProvider{})

	_, err := d.SendManual(context.Background(), "orc_missing", "alvo@empresa.com.br")
	if !errors.Is(err, domain.ErrQuoteNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendManualSuccessAppendsFreshRows(t *testing.T) {
	fs := &fakeStore{
		cfg: activeConfig(), cfgFound: true,
		quote: store.Quote{ID: "orc_1", Name: "Ana"}, quoteFound: true,
	}
	fp := &fakeProvider{}
	ft := &fakeTracker{}
	d := newDispatcher(fs, &fakeRenderer{}, ft, fp)

	resp, err := d.SendManual(context.Background(), "orc_1", "alvo@empresa.com.br")
	if err != nil {
		t.Fatalf("send manual: %v", err)
	}
	if !resp.Success || resp.Status != string(domain.StatusSent) {
		t.Fatalf("resp = %+v", resp)
	}
	if len(fs.inserted) != 1 {
		t.Fatalf("expected one fresh queue row, got %d", len(fs.inserted))
	}
	if fs.inserted[0].RecipientID != "emp_manual" {
		t.Fatalf("queue row must link the manual recipient: %+v", fs.inserted[0])
	}
	if len(ft.upserts) != 1 || !ft.upserts[0].Manual {
		t.Fatalf("manual tracking row expected: %+v", ft.upserts)
	}
	if len(fp.calls) != 1 || fp.calls[0] != "alvo@empresa.com.br" {
		t.Fatalf("provider calls = %v", fp.calls)
	}

	// a second call appends again, never updates the first
	if _, err := d.SendManual(context.Background(), "orc_1", "alvo@empresa.com.br"); err != nil {
		t.Fatalf("second send manual: %v", err)
	}
	if len(fs.inserted) != 2 || len(ft.upserts) != 2 {
		t.Fatalf("manual sends are append-only: %d rows, %d tracking", len(fs.inserted), len(ft.upserts))
	}
	if fs.inserted[0].ID == fs.inserted[1].ID {
		t.Fatalf("each manual send needs its own queue row")
	}
}

func TestSendManualProviderFailure(t *testing.T) {
	fs := &fakeStore{
		cfg: activeConfig(), cfgFound: true,
		quote: store.Quote{ID: "orc_1"}, quoteFound: true,
	}
	fp := &fakeProvider{failFor: map[string]string{"alvo@empresa.com.br": "sendgrid: rejected"}}
	ft := &fakeTracker{}
	d := newDispatcher(fs, &fakeRenderer{}, ft, fp)

	resp, err := d.SendManual(context.Background(), "orc_1", "alvo@empresa.com.br")
	if err != nil {
		t.Fatalf("item-level failure must not error the call: %v", err)
	}
	if resp.Success || resp.Status != string(domain.StatusError) {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Error != "sendgrid: rejected" {
		t.Fatalf("resp error = %q", resp.Error)
	}
	if len(ft.upserts) != 1 || ft.upserts[0].ErrorDetail == "" {
		t.Fatalf("failure tracking row expected: %+v", ft.upserts)
	}
	if len(fp.calls) != 1 {
		t.Fatalf("exactly one attempt, got %d", len(fp.calls))
	}
}

func TestSendManualTemplateMissing(t *testing.T) {
	fs := &fakeStore{
		cfg: activeConfig(), cfgFound: true,
		quote: store.Quote{ID: "orc_1"}, quoteFound: true,
	}
	fp := &fakeProvider{}
	d := newDispatcher(fs, &fakeRenderer{missing: true}, &fakeTracker{}, fp)

	resp, err := d.SendManual(context.Background(), "orc_1", "alvo@empresa.com.br")
	if err != nil {
		t.Fatalf("send manual: %v", err)
	}
	if resp.Success || resp.Error != domain.ErrTemplateInactive {
		t.Fatalf("resp = %+v", resp)
	}
	if len(fp.calls) != 0 {
		t.Fatalf("provider must not be called without a template")
	}
}
