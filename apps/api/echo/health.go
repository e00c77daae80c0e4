package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/masomo/lms/core"
)

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// newHealthHandler probes the database and redis; nil dependencies are skipped.
func newHealthHandler(db core.Pinger, rdb redis.UniversalClient) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthCheckTimeout)
		defer cancel()

		code := http.StatusOK
		resp := healthResponse{Status: "ok", Checks: make(map[string]string)}
		check := func(name string, err error) {
			if err != nil {
				code = http.StatusServiceUnavailable
				resp.Status = "unavailable"
				resp.Checks[name] = err.Error()
				return
			}
			resp.Checks[name] = "ok"
		}

		if db != nil {
			check("database", db.PingContext(reqCtx))
		}
		if rdb != nil {
			check("redis", rdb.Ping(reqCtx).Err())
		}
		return ctx.JSON(code, resp)
	}
}
