package director

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

var (
	UsersScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oktascan",
		Subsystem: "users",
		Name:      "scanned_total",
		Help:      "Total number of application users evaluated by the scanner.",
	})

	UsersAtRisk = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oktascan",
		Subsystem: "users",
		Name:      "at_risk_total",
		Help:      "Number of users flagged for Okta Verify re-enrollment.",
	})

	UsersSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oktascan",
		Subsystem: "users",
		Name:      "skipped_total",
		Help:      "Number of users skipped because a lookup failed.",
	})

	DevicesIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oktascan",
		Subsystem: "devices",
		Name:      "indexed_total",
		Help:      "Number of devices folded into the user device index.",
	})

	EmailsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oktascan",
		Subsystem: "remediation",
		Name:      "emails_sent_total",
		Help:      "Number of notification and enrollment emails sent.",
	})

	FactorsReset = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oktascan",
		Subsystem: "remediation",
		Name:      "factors_reset_total",
		Help:      "Number of push factors unenrolled and re-enrolled.",
	})
)

// Metrics registers the toolkit's counters. When a ledger handle is given it
// also publishes a gauge of recorded remediation events, refreshed on a
// ticker the way a long-running scan expects.
func Metrics(database *gorm.DB) {
	okta.RegisterMetrics()
	prometheus.MustRegister(UsersScanned)
	prometheus.MustRegister(UsersAtRisk)
	prometheus.MustRegister(UsersSkipped)
	prometheus.MustRegister(DevicesIndexed)
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(FactorsReset)

	if database != nil {
		ledgerEvents(database)
	}
}

func ledgerEvents(database *gorm.DB) {
	var count int64
	totalEvents := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "oktascan",
		Subsystem: "remediation",
		Name:      "ledger_events",
		Help:      "Total number of remediation events recorded in the ledger.",
	})
	prometheus.MustRegister(totalEvents)
	go func() {
		for range time.Tick(time.Second * 10) {
			err := database.Model(&types.RemediationEvent{}).Count(&count).Error
			if err != nil {
				log.Error(err)
			}
			totalEvents.Set(float64(count))
		}
	}()
}
