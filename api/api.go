// Package api implements the HTTP API of the custody vault.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/metrics"
	"github.com/oasisprotocol/custody/vault"
)

const (
	moduleName = "api"
)

// EventStore lists recorded vault events in sequence order.
type EventStore interface {
	List(offset uint64, limit uint64) ([]*vault.Event, error)
}

// Handler serves the vault and ledger endpoints.
type Handler struct {
	vault  *vault.Vault
	ledger ledger.Ledger
	events EventStore
	logger *log.Logger
}

// Options configures the API router.
type Options struct {
	Vault  *vault.Vault
	Ledger ledger.Ledger
	Events EventStore

	// CORSOrigins allowed to call the API. Empty allows any.
	CORSOrigins []string
}

// NewRouter builds the API router.
func NewRouter(opts Options, l *log.Logger) http.Handler {
	logger := l.WithModule(moduleName)
	h := &Handler{
		vault:  opts.Vault,
		ledger: opts.Ledger,
		events: opts.Events,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(metrics.NewDefaultRequestMetrics(moduleName), logger))
	r.Use(CorsMiddleware(opts.CORSOrigins))
	r.Use(middleware.Recoverer)
	r.Use(CallerMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"msg":"endpoint not found"}` + "\n"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/vault", func(r chi.Router) {
			r.Get("/", h.handle(h.getStatus))
			r.Put("/token", h.handle(h.setToken))
			r.Put("/withdraw_enabled", h.handle(h.setWithdrawEnabled))
			r.Put("/max_withdraw_amount", h.handle(h.setMaxWithdrawAmount))
			r.Get("/roles/{role}", h.handle(h.getRoleMembers))
			r.Post("/roles/{role}", h.handle(h.grantRole))
			r.Post("/deposit", h.handle(h.deposit))
			r.Post("/withdraw", h.handle(h.withdraw))
			r.Get("/events", h.handle(h.listEvents))
		})
		r.Route("/ledger/{token}", func(r chi.Router) {
			r.Get("/balances/{account}", h.handle(h.getBalance))
			r.Get("/allowances/{owner}/{spender}", h.handle(h.getAllowance))
			r.Post("/approve", h.handle(h.approve))
			r.Post("/transfer", h.handle(h.transfer))
		})
	})

	return r
}
