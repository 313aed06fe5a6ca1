package relayer

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Alert is an operator visible failure that retries will not fix on their
// own, usually with funds locked on chain.
type Alert struct {
	SwapID    string
	Hashlock  string
	Operation string
	Attempts  int
	Err       error
}

type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// LogAlerter reports alerts as error logs tagged alert=true.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, a Alert) {
	log.WithFields(log.Fields{
		"alert":     true,
		"swap_id":   a.SwapID,
		"hashlock":  a.Hashlock,
		"operation": a.Operation,
		"attempts":  a.Attempts,
	}).WithError(a.Err).Error("operator attention required")
}

func (r *Relayer) alert(ctx context.Context, a Alert) {
	alerts.WithLabelValues(a.Operation).Inc()
	r.alerter.Alert(ctx, a)
}
