package mailvars

import (
	"testing"
	"time"

	"mudamail/internal/store"
)

func TestFormatPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"41999990000", "(41) 99999-0000"},
		{"4133330000", "(41) 3333-0000"},
		{"(41) 99999-0000", "(41) 99999-0000"},
		{"", "Não informado"},
		{"123", "123"},
	}
	for _, c := range cases {
		if got := FormatPhone(c.in); got != c.want {
			t.Fatalf("FormatPhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWhatsAppLink(t *testing.T) {
	if got := WhatsAppLink("(41) 99999-0000"); got != "https://wa.me/5541999990000" {
		t.Fatalf("got %q", got)
	}
	if got := WhatsAppLink("+55 41 99999-0000"); got != "https://wa.me/5541999990000" {
		t.Fatalf("got %q", got)
	}
	if got := WhatsAppLink(""); got != "" {
		t.Fatalf("expected empty link, got %q", got)
	}
}

func TestFormatCurrencyCents(t *testing.T) {
	v := int64(123456)
	if got := FormatCurrencyCents(&v); got != "R$ 1.234,56" {
		t.Fatalf("got %q", got)
	}
	small := int64(900)
	if got := FormatCurrencyCents(&small); got != "R$ 9,00" {
		t.Fatalf("got %q", got)
	}
	if got := FormatCurrencyCents(nil); got != NotInformed {
		t.Fatalf("got %q", got)
	}
}

func TestBuildCustomerVarsDefaults(t *testing.T) {
	vars := BuildCustomerVars(store.Quote{})
	for _, k := range []string{"cliente_nome", "data_mudanca", "preco_min", "tipo_imovel"} {
		if vars[k] != NotInformed {
			t.Fatalf("expected %s = %q, got %q", k, NotInformed, vars[k])
		}
	}
}

func TestBuildCompanyVars(t *testing.T) {
	d := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	km := 412.0
	q := store.Quote{
		Name:       "Ana",
		Phone:      "41999990000",
		DestCity:   "Florianópolis",
		DestState:  "sc",
		MovingDate: &d,
		DistanceKm: &km,
	}
	c := store.Company{Name: "Mudanças Sul", City: "Florianópolis", State: "sc"}

	vars := BuildCompanyVars(q, c)
	if vars["empresa_nome"] != "Mudanças Sul" {
		t.Fatalf("empresa_nome = %q", vars["empresa_nome"])
	}
	if vars["uf_destino"] != "SC" || vars["empresa_uf"] != "SC" {
		t.Fatalf("uf not uppercased: %q %q", vars["uf_destino"], vars["empresa_uf"])
	}
	if vars["data_mudanca"] != "15/03/2026" {
		t.Fatalf("data_mudanca = %q", vars["data_mudanca"])
	}
	if vars["distancia"] != "412 km" {
		t.Fatalf("distancia = %q", vars["distancia"])
	}
	if vars["whatsapp_link"] != "https://wa.me/5541999990000" {
		t.Fatalf("whatsapp_link = %q", vars["whatsapp_link"])
	}
}
