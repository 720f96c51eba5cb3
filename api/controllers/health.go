package controllers

import (
	"context"
	"net/http"

	"github.com/nvquang/storefront-core/api/responses"
	"github.com/nvquang/storefront-core/pkg/config"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. A nil pinger is skipped so the
// endpoint keeps working in configurations that run without redis or the
// local cache.
func HealthReady(cfg *config.Config, logg *logger.Logger, redisP, cacheP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)

		checks := map[string]pinger{
			"redis": redisP,
			"cache": cacheP,
		}
		status := map[string]string{}
		healthy := true
		for name, p := range checks {
			if p == nil {
				status[name] = "skipped"
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				healthy = false
				status[name] = "down"
				continue
			}
			status[name] = "up"
		}

		if !healthy {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(status))
			return
		}
		responses.WriteSuccess(w, status)
	}
}
