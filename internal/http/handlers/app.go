package handlers

import (
	"encoding/json"
	"net/http"

	"vastuchitra/internal/domain"
	"vastuchitra/internal/generation"
	"vastuchitra/internal/infra"
)

// App holds the handler dependencies. Everything is injected; there is no
// package-level state.
type App struct {
	Generator *generation.Service
	Ledger    domain.Ledger
	Logger    infra.Logger
}

func NewApp(generator *generation.Service, ledger domain.Ledger, logger infra.Logger) *App {
	return &App{Generator: generator, Ledger: ledger, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail translates a domain error kind into the HTTP error contract. The
// response always carries the kind and a human-readable message.
func (a *App) fail(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	a.failKind(w, kind, domain.MessageOf(err))
}

func (a *App) failKind(w http.ResponseWriter, kind domain.Kind, message string) {
	a.json(w, statusFor(kind), map[string]string{
		"error":   string(kind),
		"message": message,
	})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindResourceExhausted:
		return http.StatusTooManyRequests
	case domain.KindUpstreamFailed, domain.KindStorageWriteFailed:
		return http.StatusBadGateway
	case domain.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
