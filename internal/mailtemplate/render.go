// Package mailtemplate fills stored email templates. Exactly two
// constructs are supported: {{var}} substitution and a single
// non-nesting {{#if var}}...{{/if}} block.
package mailtemplate

import (
	"context"
	"regexp"

	"mudamail/internal/store"
	"mudamail/internal/util"
)

type TemplateStore interface {
	GetTemplate(ctx context.Context, key string) (store.Template, bool, error)
	FindTrackingCode(ctx context.Context, quoteID, recipientID, templateKey string) (string, bool, error)
}

type Rendered struct {
	Subject      string
	HTML         string
	TrackingCode string
}

// ReuseKey identifies the logical delivery whose existing tracking code
// should be carried over, keeping one code stable across retries.
type ReuseKey struct {
	QuoteID     string
	RecipientID string
}

type Renderer struct {
	Store TemplateStore
}

// Render returns (nil, nil) when the template is missing or inactive;
// the caller records that as the item's failure without sending.
func (r *Renderer) Render(ctx context.Context, key string, vars map[string]string, reuse *ReuseKey) (*Rendered, error) {
	tpl, found, err := r.Store.GetTemplate(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found || !tpl.Active {
		return nil, nil
	}

	code := ""
	if reuse != nil {
		existing, ok, err := r.Store.FindTrackingCode(ctx, reuse.QuoteID, reuse.RecipientID, key)
		if err != nil {
			return nil, err
		}
		if ok {
			code = existing
		}
	}
	if code == "" {
		code = util.NewTrackingCode()
	}

	return &Rendered{
		Subject:      Fill(tpl.Subject, vars),
		HTML:         Fill(tpl.BodyHTML, vars),
		TrackingCode: code,
	}, nil
}

var (
	ifBlockRe = regexp.MustCompile(`(?s)\{\{#if\s+(\w+)\}\}(.*?)\{\{/if\}\}`)
	varRe     = regexp.MustCompile(`\{\{(\w+)\}\}`)
)

// Fill resolves conditionals first, then variables. An {{#if}} block is
// kept when the variable is a non-empty string, dropped otherwise.
// Unresolved variables render as empty string.
func Fill(text string, vars map[string]string) string {
	out := ifBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := ifBlockRe.FindStringSubmatch(m)
		if vars[sub[1]] != "" {
			return sub[2]
		}
		return ""
	})
	return varRe.ReplaceAllStringFunc(out, func(m string) string {
		name := varRe.FindStringSubmatch(m)[1]
		return vars[name]
	})
}
