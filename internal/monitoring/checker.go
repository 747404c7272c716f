package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/metrics"
)

const (
	defaultInterval = 5 * time.Minute
	defaultLookback = 24
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *metrics.Metrics
	interval  time.Duration
	lookback  int
}

// NewChecker creates a background alert checker. m may be nil.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, m *metrics.Metrics) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   m,
		interval:  interval,
		lookback:  lookback,
	}
}

// Run checks once immediately and then on every tick. It blocks until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check runs one collect, evaluate and send cycle and returns the
// alerts that fired.
func (c *Checker) check(ctx context.Context, log *zap.Logger) []Alert {
	if ctx.Err() != nil {
		return nil
	}
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered",
			zap.Int("runs", snap.RunsTotal),
			zap.Int("attempts", snap.Attempts),
		)
		return nil
	}
	for _, a := range alerts {
		c.metrics.RecordAlert(string(a.Type))
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
