// Package testmode keeps outbound email away from real recipients when
// the interception switch is on. The resolved State is read once at run
// start and injected into the dispatcher; the dispatcher never mutates
// or re-reads it mid-run.
package testmode

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// FallbackAddress receives intercepted mail when nothing else is
// configured.
const FallbackAddress = "teste@mudatech.com.br"

const runtimeKey = "mudamail:modo_teste"

type State struct {
	Active   bool
	Redirect string
}

// Resolver evaluates the interception switch. Precedence for "on":
// runtime toggle (redis) > EMAIL_TEST_MODE env > on by default in a
// development runtime > off. Precedence for the redirect address:
// configured override > EMAIL_TEST_ADDRESS env > fallback.
type Resolver struct {
	Redis             *redis.Client
	EnvFlag           string
	EnvAddress        string
	ConfiguredAddress string
	AppEnv            string
}

func (r *Resolver) Resolve(ctx context.Context) State {
	return State{Active: r.active(ctx), Redirect: r.redirect()}
}

func (r *Resolver) active(ctx context.Context) bool {
	if on, set := r.runtime(ctx); set {
		return on
	}
	if flag := strings.TrimSpace(strings.ToLower(r.EnvFlag)); flag != "" {
		return flag == "true" || flag == "1" || flag == "on"
	}
	return strings.EqualFold(r.AppEnv, "development")
}

func (r *Resolver) redirect() string {
	if r.ConfiguredAddress != "" {
		return r.ConfiguredAddress
	}
	if r.EnvAddress != "" {
		return r.EnvAddress
	}
	return FallbackAddress
}

func (r *Resolver) runtime(ctx context.Context) (on, set bool) {
	if r.Redis == nil {
		return false, false
	}
	v, err := r.Redis.Get(ctx, runtimeKey).Result()
	if err != nil {
		// Absent key or unreachable redis: fall through the chain.
		return false, false
	}
	return v == "on", true
}

// SetRuntime flips the shared toggle; it wins over every other source
// until cleared.
func (r *Resolver) SetRuntime(ctx context.Context, active bool) error {
	if r.Redis == nil {
		return errors.New("runtime toggle indisponível sem redis")
	}
	v := "off"
	if active {
		v = "on"
	}
	return r.Redis.Set(ctx, runtimeKey, v, 0).Err()
}

func (r *Resolver) ClearRuntime(ctx context.Context) error {
	if r.Redis == nil {
		return errors.New("runtime toggle indisponível sem redis")
	}
	return r.Redis.Del(ctx, runtimeKey).Err()
}
