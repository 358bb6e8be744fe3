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

// Package pprof serves Go's debug profiling endpoints on their own bind
// address, kept separate from the admin API surface so it can be firewalled
// off in production independently.
package pprof

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const readTimeout = 3 * time.Second

// CreatePProfServer serves the pprof endpoints until the listener fails or
// the process exits. Returns nil immediately if pprof is disabled.
func CreatePProfServer(cfg *config.Config) error {
	if !cfg.PProf.Enabled {
		return nil
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	if cfg.Tracing.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("pprof"))
	}

	pprof.Register(r)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.PProf.Bind, cfg.PProf.Port),
		Handler:           r,
		ReadHeaderTimeout: readTimeout,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("pprof server failed on %s: %w", server.Addr, err)
	}
	return nil
}
