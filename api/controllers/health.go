package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/sacrednumerology/sacred-backend/api/responses"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

const envHeader = "X-SN-Env"

type pinger interface {
	Ping(context.Context) error
}

// ReadinessCheck names one dependency checked by the readiness endpoint.
type ReadinessCheck struct {
	Name   string
	Pinger pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports the ones that failed.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		failed := map[string]string{}
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			if err := check.Pinger.Ping(ctx); err != nil {
				failed[check.Name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
