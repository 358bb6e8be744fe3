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

// Package ratelimit implements a gin-rate-limit Store backed by GORM, so the
// admin API's rate limiting survives a process restart without needing
// Redis.
package ratelimit

import (
	"log/slog"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/sbs-poc/accessbroker/internal/db/models"
	"gorm.io/gorm"
)

// GORMStore tracks hits-per-window in the ratelimit table.
type GORMStore struct {
	db    *gorm.DB
	rate  time.Duration
	limit uint
}

// Options configures a GORMStore.
type Options struct {
	DB    *gorm.DB
	Rate  time.Duration
	Limit uint
}

// NewGORMStore builds a GORMStore from options.
func NewGORMStore(options *Options) *GORMStore {
	return &GORMStore{
		db:    options.DB,
		rate:  options.Rate,
		limit: options.Limit,
	}
}

// Limit implements ratelimit.Store: it loads or creates the key's window,
// resets it if the window has elapsed, and reports whether this hit exceeds
// the configured limit.
func (s *GORMStore) Limit(key string, _ *gin.Context) (ret ratelimit.Info) {
	ret.Limit = s.limit

	exists, err := models.RatelimitKeyExists(s.db, key)
	if err != nil {
		slog.Error("ratelimit: checking key existence", "error", err)
		exists = false
	}

	rl := &models.Ratelimit{Key: key}
	if exists {
		loaded, err := models.FindRatelimitByKey(s.db, key)
		if err != nil {
			slog.Error("ratelimit: loading key", "error", err)
		} else {
			rl = loaded
		}
	} else {
		rl.Timestamp = time.Now()
	}

	ret.ResetTime = time.Now().Add(s.rate - time.Since(rl.Timestamp))

	if rl.Timestamp.Add(s.rate).Before(time.Now()) {
		rl.Hits = 0
		rl.Timestamp = time.Now()
	}

	if rl.Hits >= int64(s.limit) {
		ret.RateLimited = true
		ret.RemainingHits = 0
	} else {
		rl.Hits++
		ret.RemainingHits = s.limit - uint(rl.Hits)
	}

	if err := s.db.Save(rl).Error; err != nil {
		slog.Error("ratelimit: saving entry", "error", err)
	}

	return
}
