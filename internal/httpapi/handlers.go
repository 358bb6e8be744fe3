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

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sbs-poc/accessbroker/internal/admin"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/httpapi/wsbroadcast"
)

// KickReporter is the subset of *notify.Dispatcher the manual-trigger
// route needs.
type KickReporter interface {
	RunDailyKickReport(ctx context.Context, now time.Time, force bool) error
}

func tgIDParam(c *gin.Context) (int64, bool) {
	tgID, err := strconv.ParseInt(c.Param("tgId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tgId"})
		return 0, false
	}
	return tgID, true
}

func publishEvent(feed *wsbroadcast.Hub, kind string, tgID int64) {
	if feed == nil {
		return
	}
	if err := feed.Publish(wsbroadcast.Event{Kind: kind, TGID: tgID, At: time.Now()}); err != nil {
		slog.Error("httpapi: publishing event", "kind", kind, "error", err)
	}
}

func resetUserHandler(svc *admin.Service, feed *wsbroadcast.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		tgID, ok := tgIDParam(c)
		if !ok {
			return
		}
		if err := svc.ResetUser(c.Request.Context(), tgID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		publishEvent(feed, "user_reset", tgID)
		c.JSON(http.StatusOK, gin.H{"reset": true})
	}
}

func forgiveUserHandler(svc *admin.Service, feed *wsbroadcast.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		tgID, ok := tgIDParam(c)
		if !ok {
			return
		}
		forgiven, err := svc.ForgiveUser(tgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !forgiven {
			c.JSON(http.StatusNotFound, gin.H{"forgiven": false})
			return
		}
		publishEvent(feed, "user_forgiven", tgID)
		c.JSON(http.StatusOK, gin.H{"forgiven": true})
	}
}

// kickReportHandler lets an operator force the daily admin kick report out
// immediately, bypassing both the 12:00-Amsterdam gate and the
// once-per-day dedup (spec's manual-trigger override).
func kickReportHandler(notifier KickReporter, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		if notifier == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications not configured"})
			return
		}
		if err := notifier.RunDailyKickReport(c.Request.Context(), clk.Now(), true); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sent": true})
	}
}
