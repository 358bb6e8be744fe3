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

// Package cmd assembles and runs the accessbrokerd binary: it wires every
// internal package into one process and owns graceful startup/shutdown.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sbs-poc/accessbroker/internal/admin"
	"github.com/sbs-poc/accessbroker/internal/arbiter"
	"github.com/sbs-poc/accessbroker/internal/clock"
	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/db"
	"github.com/sbs-poc/accessbroker/internal/featureflags"
	"github.com/sbs-poc/accessbroker/internal/httpapi"
	"github.com/sbs-poc/accessbroker/internal/httpapi/wsbroadcast"
	"github.com/sbs-poc/accessbroker/internal/logging"
	"github.com/sbs-poc/accessbroker/internal/metrics"
	"github.com/sbs-poc/accessbroker/internal/notify"
	"github.com/sbs-poc/accessbroker/internal/pprof"
	"github.com/sbs-poc/accessbroker/internal/pubsub"
	"github.com/sbs-poc/accessbroker/internal/referral"
	"github.com/sbs-poc/accessbroker/internal/scheduler"
	"github.com/sbs-poc/accessbroker/internal/tracing"
	"github.com/sbs-poc/accessbroker/internal/vault"
	"github.com/sbs-poc/accessbroker/internal/wireguard"
	"github.com/sbs-poc/accessbroker/internal/xray"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// kickReportLimit caps how many overdue members the daily admin report
// enumerates in one message; there is no config knob for this, the original
// implementation hardcodes the same kind of bound on its admin digest.
const kickReportLimit = 100

const shutdownTimeout = 10 * time.Second

// NewCommand builds the root cobra command for accessbrokerd.
func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accessbrokerd",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stopSignals()

	fmt.Printf("accessbrokerd - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(cfg.LogLevel)
	flags := featureflags.New(&cfg)

	var tracerShutdown func(context.Context) error
	if cfg.Tracing.OTLPEndpoint != "" {
		tracerShutdown, err = tracing.Init(ctx, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}

	gdb, err := db.MakeDB(&cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to obtain the underlying sql.DB: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	v, err := vault.New(cfg.Vault.Secret)
	if err != nil {
		return fmt.Errorf("failed to init key vault: %w", err)
	}

	wgSvc, err := wireguard.NewFromSSHTarget(gdb, cfg.WireGuard, v, clock.New())
	if err != nil {
		return fmt.Errorf("failed to init wireguard service: %w", err)
	}

	// xraySvc is nil when Region-VPN isn't configured for this deployment.
	// It must never be assigned directly into an interface-typed variable
	// below (arbiter.RegionVPN, arbiter.TCShaper, scheduler.RegionVPN):
	// a nil *xray.Service boxed into an interface is a non-nil interface,
	// which would defeat every "if x != nil" guard those packages use.
	var xraySvc *xray.Service
	if flags.IsEnabled(featureflags.FeatureRegionVPN) {
		xraySvc, err = xray.NewFromSSHTarget(cfg.RegionVPN)
		if err != nil {
			return fmt.Errorf("failed to init region-vpn service: %w", err)
		}
	}

	adminSvc := admin.New(gdb, wgSvc, xraySvc, clock.New())
	referralSvc := referral.New(gdb, cfg.Referral, clock.New())

	var sender notify.Sender = notify.NewLogSender()
	notifier := notify.New(gdb, sender, clock.New(), cfg.Notifications.WindowsDays, cfg.Owner.ChatID, kickReportLimit)

	ps, err := pubsub.MakePubSub(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}
	defer func() {
		if err := ps.Close(); err != nil {
			logger.Error("failed to close pubsub", "error", err)
		}
	}()
	feed := wsbroadcast.NewHub(ps)

	var arbiterSvc *arbiter.Service
	var arbiterGocron gocron.Scheduler
	if flags.IsEnabled(featureflags.FeatureArbiter) {
		var region arbiter.RegionVPN
		var tc arbiter.TCShaper
		if xraySvc != nil {
			region = xraySvc
			if flags.IsEnabled(featureflags.FeatureTCShaping) {
				tc = xraySvc
			}
		}
		arbiterSvc = arbiter.New(gdb, region, cfg.Arbiter, clock.New(), notifier, tc)

		arbiterGocron, err = gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create arbiter scheduler: %w", err)
		}
		_, err = arbiterGocron.NewJob(
			gocron.DurationJob(time.Duration(cfg.Arbiter.Period)*time.Second),
			gocron.NewTask(func() {
				if locked, lockErr := db.TryAdvisoryLock(gdb, cfg.Arbiter.AdvisoryLockKey); lockErr == nil && locked {
					defer func() { _ = db.AdvisoryUnlock(gdb, cfg.Arbiter.AdvisoryLockKey) }()
					if tickErr := arbiterSvc.Tick(ctx); tickErr != nil {
						logger.Error("arbiter tick failed", "error", tickErr)
					}
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule arbiter tick job: %w", err)
		}
		arbiterGocron.Start()
	}

	var schedSvc *scheduler.Service
	if flags.IsEnabled(featureflags.FeatureScheduler) {
		var region scheduler.RegionVPN
		if xraySvc != nil {
			region = xraySvc
		}
		schedSvc, err = scheduler.New(gdb, cfg.Scheduler, clock.New(), wgSvc, region, referralSvc, notifier, flags.IsEnabled(featureflags.FeatureYandexRotate))
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := schedSvc.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// pprof and metrics own their *http.Server internally with no shutdown
	// hook, so (like the teacher's main.go) they run as fire-and-forget
	// goroutines rather than inside the errgroup the admin server's
	// graceful-shutdown wait depends on.
	go func() {
		if err := pprof.CreatePProfServer(&cfg); err != nil {
			logger.Error("pprof server failed", "error", err)
		}
	}()
	go func() {
		if err := metrics.CreateMetricsServer(&cfg); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// NewMetrics registers the module's Prometheus collectors against the
	// default registry so they are scraped by the server started above, even
	// though no job increments them yet (see DESIGN.md).
	_ = metrics.NewMetrics()

	srv := httpapi.New(gdb, &cfg, adminSvc, feed, notifier)
	g := new(errgroup.Group)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	<-ctx.Done()
	logger.Warn("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err)
		}
	}()

	if schedSvc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := schedSvc.Stop(); err != nil {
				logger.Error("failed to stop scheduler", "error", err)
			}
		}()
	}

	if arbiterGocron != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := arbiterGocron.Shutdown(); err != nil {
				logger.Error("failed to stop arbiter scheduler", "error", err)
			}
		}()
	}

	if tracerShutdown != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tracerShutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down tracer", "error", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out")
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("service goroutine failed: %w", err)
	}
	return nil
}
