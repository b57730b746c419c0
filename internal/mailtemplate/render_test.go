package mailtemplate

import (
	"context"
	"strings"
	"testing"

	"mudamail/internal/store"
)

type fakeStore struct {
	tpl      store.Template
	tplFound bool
	code     string
	codeHits int
}

func (f *fakeStore) GetTemplate(ctx context.Context, key string) (store.Template, bool, error) {
	return f.tpl, f.tplFound, nil
}

func (f *fakeStore) FindTrackingCode(ctx context.Context, quoteID, recipientID, templateKey string) (string, bool, error) {
	f.codeHits++
	return f.code, f.code != "", nil
}

func TestFillVariables(t *testing.T) {
	got := Fill("Olá {{nome}}, sua mudança para {{cidade}}.", map[string]string{
		"nome":   "Ana",
		"cidade": "Curitiba",
	})
	want := "Olá Ana, sua mudança para Curitiba."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFillUnresolvedVariableIsEmpty(t *testing.T) {
	got := Fill("valor: {{preco}}!", nil)
	if got != "valor: !" {
		t.Fatalf("got %q", got)
	}
}

func TestFillConditionalKeptWhenTruthy(t *testing.T) {
	tpl := "a{{#if tel}} fone: {{tel}}{{/if}}b"
	got := Fill(tpl, map[string]string{"tel": "41999990000"})
	if got != "a fone: 41999990000b" {
		t.Fatalf("got %q", got)
	}
}

func TestFillConditionalRemovedWhenEmpty(t *testing.T) {
	tpl := "a{{#if tel}} fone: {{tel}}{{/if}}b"
	if got := Fill(tpl, map[string]string{}); got != "ab" {
		t.Fatalf("got %q", got)
	}
}

func TestFillMultipleConditionals(t *testing.T) {
	tpl := "{{#if a}}A{{/if}}-{{#if b}}B{{/if}}"
	got := Fill(tpl, map[string]string{"a": "x"})
	if got != "A-" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderMissingTemplateReturnsNil(t *testing.T) {
	r := &Renderer{Store: &fakeStore{tplFound: false}}
	out, err := r.Render(context.Background(), "orcamento_empresa", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil for missing template")
	}
}

func TestRenderInactiveTemplateReturnsNil(t *testing.T) {
	r := &Renderer{Store: &fakeStore{tpl: store.Template{Key: "k", Active: false}, tplFound: true}}
	out, err := r.Render(context.Background(), "k", nil, nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil,nil got %v,%v", out, err)
	}
}

func TestRenderReusesExistingTrackingCode(t *testing.T) {
	fs := &fakeStore{
		tpl:      store.Template{Key: "k", Subject: "s", BodyHTML: "b", Active: true},
		tplFound: true,
		code:     "trk_existing",
	}
	r := &Renderer{Store: fs}
	out, err := r.Render(context.Background(), "k", nil, &ReuseKey{QuoteID: "q1", RecipientID: "e1"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.TrackingCode != "trk_existing" {
		t.Fatalf("expected reused code, got %s", out.TrackingCode)
	}
	if fs.codeHits != 1 {
		t.Fatalf("expected one lookup, got %d", fs.codeHits)
	}
}

func TestRenderMintsFreshCodeWithoutReuseKey(t *testing.T) {
	fs := &fakeStore{
		tpl:      store.Template{Key: "k", Subject: "s", BodyHTML: "b", Active: true},
		tplFound: true,
	}
	r := &Renderer{Store: fs}
	out, err := r.Render(context.Background(), "k", nil, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out.TrackingCode, "trk_") {
		t.Fatalf("expected fresh trk_ code, got %s", out.TrackingCode)
	}
	if fs.codeHits != 0 {
		t.Fatalf("expected no lookup without reuse key")
	}
}
