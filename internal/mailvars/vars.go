// Package mailvars builds the variable set handed to the template
// renderer from the joined quote/recipient rows. Formatting only; the
// single rule beyond formatting is null-coalescing to "Não informado".
package mailvars

import (
	"fmt"
	"strings"
	"time"

	"mudamail/internal/store"
)

const NotInformed = "Não informado"

func BuildCompanyVars(q store.Quote, c store.Company) map[string]string {
	vars := BuildCustomerVars(q)
	vars["empresa_nome"] = orNotInformed(c.Name)
	vars["empresa_cidade"] = orNotInformed(c.City)
	vars["empresa_uf"] = strings.ToUpper(c.State)
	return vars
}

func BuildCustomerVars(q store.Quote) map[string]string {
	return map[string]string{
		"cliente_nome":     orNotInformed(q.Name),
		"cliente_email":    orNotInformed(q.Email),
		"cliente_telefone": FormatPhone(q.Phone),
		"whatsapp_link":    WhatsAppLink(q.Phone),
		"cidade_origem":    orNotInformed(q.OriginCity),
		"uf_origem":        strings.ToUpper(q.OriginState),
		"cidade_destino":   orNotInformed(q.DestCity),
		"uf_destino":       strings.ToUpper(q.DestState),
		"tipo_imovel":      orNotInformed(q.PropertyType),
		"data_mudanca":     FormatDate(q.MovingDate),
		"distancia":        FormatKm(q.DistanceKm),
		"preco_min":        FormatCurrencyCents(q.PriceMinCents),
		"preco_max":        FormatCurrencyCents(q.PriceMaxCents),
	}
}

// FormatPhone renders a BR phone as (DD) NNNNN-NNNN when the digit
// count allows, otherwise returns the digits as given.
func FormatPhone(p string) string {
	d := Digits(p)
	switch len(d) {
	case 0:
		return NotInformed
	case 11:
		return fmt.Sprintf("(%s) %s-%s", d[0:2], d[2:7], d[7:])
	case 10:
		return fmt.Sprintf("(%s) %s-%s", d[0:2], d[2:6], d[6:])
	default:
		return d
	}
}

// WhatsAppLink builds a wa.me deep link, prefixing the country code
// when the number doesn't carry it yet.
func WhatsAppLink(p string) string {
	d := Digits(p)
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(d, "55") {
		d = "55" + d
	}
	return "https://wa.me/" + d
}

func FormatDate(t *time.Time) string {
	if t == nil {
		return NotInformed
	}
	return t.Format("02/01/2006")
}

func FormatKm(km *float64) string {
	if km == nil {
		return NotInformed
	}
	return fmt.Sprintf("%.0f km", *km)
}

// FormatCurrencyCents renders centavos as "R$ 1.234,56".
func FormatCurrencyCents(cents *int64) string {
	if cents == nil {
		return NotInformed
	}
	v := *cents
	neg := v < 0
	if neg {
		v = -v
	}
	whole := v / 100
	frac := v % 100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("R$ %s,%02d", b.String(), frac)
	if neg {
		return "-" + out
	}
	return out
}

func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func orNotInformed(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotInformed
	}
	return s
}
