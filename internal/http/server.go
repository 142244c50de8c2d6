// README: API gateway; builds the gin engine and delegates to module services.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"petmarket/internal/clock"
	"petmarket/internal/config"
	"petmarket/internal/infra"
	"petmarket/internal/logger"
	"petmarket/internal/modules/dispatch"
	"petmarket/internal/modules/order"
	"petmarket/internal/modules/staff"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type ServerDeps struct {
	Order    *order.Service
	Resolver *staff.Resolver
	Dispatch *dispatch.Coordinator
	Verifier infra.TokenVerifier
	Schedule config.ScheduleConfig

	// RatePerSecond and RateBurst bound each caller on the delivery endpoints.
	RatePerSecond float64
	RateBurst     int
	Checks        map[string]HealthCheck
	Clock         clock.Clock
	Logger        *slog.Logger
}

type Server struct {
	deps   ServerDeps
	log    *slog.Logger
	engine *gin.Engine
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{deps: deps, log: logger.Or(deps.Logger)}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	result := gin.H{}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.log.Warn("health_check_failed", "dependency", name, "error", err)
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	if status == http.StatusOK {
		result["status"] = "OK"
	} else {
		result["status"] = "degraded"
	}
	c.JSON(status, result)
}

