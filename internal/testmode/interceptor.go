package testmode

import (
	"log/slog"
	"sync"
	"time"

	"mudamail/internal/providers"
	"mudamail/internal/util"
)

// LogCapacity bounds the in-memory interception log; the oldest entry
// is evicted first.
const LogCapacity = 100

type InterceptedEmail struct {
	OriginalTo   string    `json:"destinatario_original"`
	RedirectedTo string    `json:"destinatario_teste"`
	Subject      string    `json:"assunto"`
	Provider     string    `json:"provedor"`
	TrackingCode string    `json:"codigo_rastreio"`
	At           time.Time `json:"em"`
}

type Interceptor struct {
	Redirect string

	mu      sync.Mutex
	entries []InterceptedEmail
}

// Intercept stands in for the real provider: no network call happens.
// The message lands in the ring buffer and the caller still gets a
// successful, test-tagged result to track.
func (i *Interceptor) Intercept(msg providers.Message, providerName string) providers.Result {
	entry := InterceptedEmail{
		OriginalTo:   msg.To,
		RedirectedTo: i.Redirect,
		Subject:      msg.Subject,
		Provider:     providerName,
		TrackingCode: msg.TrackingCode,
		At:           util.NowUTC(),
	}

	i.mu.Lock()
	i.entries = append(i.entries, entry)
	if len(i.entries) > LogCapacity {
		i.entries = i.entries[len(i.entries)-LogCapacity:]
	}
	i.mu.Unlock()

	slog.Info("email interceptado em modo de teste",
		"destinatario_original", msg.To,
		"destinatario_teste", i.Redirect,
		"assunto", msg.Subject,
		"provedor", providerName,
	)

	return providers.Result{
		Success:   true,
		TestMode:  true,
		MessageID: "test_" + util.NewID(),
	}
}

// Log returns a copy of the buffered interceptions, oldest first.
func (i *Interceptor) Log() []InterceptedEmail {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]InterceptedEmail, len(i.entries))
	copy(out, i.entries)
	return out
}
