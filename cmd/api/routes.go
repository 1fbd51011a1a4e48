package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/withdrawal-settlement/api"
	"github.com/josh-kwaku/withdrawal-settlement/internal/auth"
	"github.com/josh-kwaku/withdrawal-settlement/internal/handler"
	"github.com/josh-kwaku/withdrawal-settlement/internal/middleware"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
)

type routerDeps struct {
	jwtSecret   string
	health      *handler.HealthHandler
	holder      *handler.WithdrawalHandler
	operator    *handler.OperatorHandler
	idempotency *repository.IdempotencyRepository
}

func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /docs", handler.ServeDocs())
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.Spec))

	authn := middleware.Auth(d.jwtSecret)
	idem := middleware.Idempotency(d.idempotency)
	holder := func(h http.HandlerFunc) http.Handler {
		return authn(middleware.RequireRole(auth.RoleHolder)(idem(h)))
	}
	operator := func(h http.HandlerFunc) http.Handler {
		return authn(middleware.RequireRole(auth.RoleOperator)(idem(h)))
	}

	mux.Handle("GET /api/v1/accounts/{id}/withdrawals", holder(d.holder.List))
	mux.Handle("GET /api/v1/accounts/{id}/withdrawals/{requestId}", holder(d.holder.Get))
	mux.Handle("POST /api/v1/accounts/{id}/withdrawals", holder(d.holder.Redeem))
	mux.Handle("POST /api/v1/accounts/{id}/withdrawals/eligibility", holder(d.holder.Eligibility))
	mux.Handle("POST /api/v1/accounts/{id}/withdrawal-codes/verify", holder(d.holder.VerifyCode))
	mux.Handle("POST /api/v1/accounts/{id}/withdrawal-codes/requests", holder(d.holder.RequestCode))

	mux.Handle("POST /api/v1/operator/withdrawal-codes", operator(d.operator.IssueCode))
	mux.Handle("POST /api/v1/operator/withdrawal-codes/revoke", operator(d.operator.RevokeCode))
	mux.Handle("GET /api/v1/operator/withdrawals", operator(d.operator.List))
	mux.Handle("GET /api/v1/operator/withdrawals/{requestId}", operator(d.operator.Get))
	mux.Handle("POST /api/v1/operator/withdrawals/{requestId}/confirm", operator(d.operator.Confirm))
	mux.Handle("POST /api/v1/operator/withdrawals/{requestId}/decline", operator(d.operator.Decline))

	return middleware.Tracing(middleware.Logging(middleware.Recovery(middleware.Metrics(mux))))
}
