// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package httpapi is the small internal admin surface: a health check, the
// two operator actions internal/admin exposes, and the live event feed.
// It is bearer-token authenticated, not session-based — there is no user
// login flow in this core, only an operator holding the configured admin
// token.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/sbs-poc/accessbroker/internal/admin"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	httpratelimit "github.com/sbs-poc/accessbroker/internal/httpapi/ratelimit"
	"github.com/sbs-poc/accessbroker/internal/httpapi/wsbroadcast"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

const (
	defTimeout       = 10 * time.Second
	rateLimitRate    = time.Second
	rateLimitLimit   = 20
	adminTokenHeader = "Authorization"
	bearerPrefix     = "Bearer "
)

// Server wraps the admin API's http.Server so callers can start it in a
// goroutine and shut it down gracefully on the process's signal context.
type Server struct {
	*http.Server
}

// New builds the gin engine and wraps it in an http.Server bound to
// cfg.HTTP's address. notifier may be nil: a deployment without outbound
// notifications configured simply has the manual kick-report route
// disabled.
func New(db *gorm.DB, cfg *config.Config, adminSvc *admin.Service, feed *wsbroadcast.Hub, notifier KickReporter) *Server {
	if cfg.LogLevel == config.LogLevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	if cfg.Tracing.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("accessbroker-admin"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.HTTP.CanonicalHost}
	corsConfig.AllowCredentials = false
	r.Use(cors.New(corsConfig))

	store := httpratelimit.NewGORMStore(&httpratelimit.Options{DB: db, Rate: rateLimitRate, Limit: rateLimitLimit})
	r.Use(ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.String(http.StatusTooManyRequests, "too many requests, retry after %s", time.Until(info.ResetTime))
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}))

	r.GET("/healthz", healthHandler(db))

	adminGroup := r.Group("/admin", requireAdminToken(cfg.HTTP.AdminToken))
	adminGroup.POST("/users/:tgId/reset", resetUserHandler(adminSvc, feed))
	adminGroup.POST("/users/:tgId/forgive", forgiveUserHandler(adminSvc, feed))
	adminGroup.POST("/kick-report", kickReportHandler(notifier, clock.New()))

	if feed != nil {
		r.GET("/ws/events", requireAdminToken(cfg.HTTP.AdminToken), feed.Handler())
	}

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port),
			Handler:      r,
			ReadTimeout:  defTimeout,
			WriteTimeout: defTimeout,
		},
	}
}

// Shutdown gracefully drains in-flight requests, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requireAdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin API disabled: no token configured"})
			return
		}
		got := c.GetHeader(adminTokenHeader)
		if len(got) <= len(bearerPrefix) || got[:len(bearerPrefix)] != bearerPrefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		presented := got[len(bearerPrefix):]
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
