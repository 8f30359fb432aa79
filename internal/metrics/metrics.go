// Package metrics provides the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// Counters
	RemindersFired     prometheus.Counter
	DeliveriesFailed   prometheus.Counter
	FlushesSucceeded   prometheus.Counter
	FlushesFailed      prometheus.Counter
	RemindersScheduled prometheus.Counter

	// Gauges
	ArmedTimers  prometheus.Gauge
	CacheEntries *prometheus.GaugeVec // kind=user|guild
	DirtyEntries prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RemindersFired = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminders_fired_total", Help: "Reminders whose delivery callback ran"})
		DeliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminder_deliveries_failed_total", Help: "Reminder deliveries that returned an error or panicked"})
		FlushesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_cache_flushes_succeeded_total", Help: "Flush cycles where every dirty entry was written"})
		FlushesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_cache_flushes_failed_total", Help: "Flush cycles with at least one entry failing after retries"})
		RemindersScheduled = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminders_scheduled_total", Help: "Reminders created"})
		ArmedTimers = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_reminder_timers_armed", Help: "Reminder timers currently armed"})
		CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "bot_cache_entries", Help: "Entries held by the config cache"}, []string{"kind"})
		DirtyEntries = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_cache_dirty_entries", Help: "Entries with fields pending write-back"})
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func IncFired() {
	if RemindersFired != nil {
		RemindersFired.Inc()
	}
}

func IncDeliveryFailed() {
	if DeliveriesFailed != nil {
		DeliveriesFailed.Inc()
	}
}

func IncScheduled() {
	if RemindersScheduled != nil {
		RemindersScheduled.Inc()
	}
}

func ObserveFlush(err error) {
	if FlushesSucceeded == nil {
		return
	}
	if err != nil {
		FlushesFailed.Inc()
		return
	}
	FlushesSucceeded.Inc()
}

func SetArmed(n int) {
	if ArmedTimers != nil {
		ArmedTimers.Set(float64(n))
	}
}

func SetCacheStats(users, guilds, dirty int) {
	if CacheEntries == nil {
		return
	}
	CacheEntries.WithLabelValues("user").Set(float64(users))
	CacheEntries.WithLabelValues("guild").Set(float64(guilds))
	DirtyEntries.Set(float64(dirty))
}
