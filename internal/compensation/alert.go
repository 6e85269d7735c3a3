// Package compensation implements the Failure Compensation Handler of
// §4.7: given a step whose compensation failed, it classifies the
// failure as critical or non-critical, records a durable DLQ row, and
// — for critical failures — pages an operator and signals the
// orchestrator to halt. Grounded on the critical/non-critical split
// implicit in
// other_examples/903dd8d5_VladislavDraga398...saga-orchestrator.go's
// error-classification branches.
package compensation

import (
	"context"

	"github.com/rs/zerolog/log"
)

// AlertSink notifies an operator of a critical compensation failure.
// NotifyCritical is expected to be best-effort: its own failure is
// logged, never propagated, since an alerting outage must not prevent
// the orchestrator from halting safely.
type AlertSink interface {
	NotifyCritical(ctx context.Context, orderID, stepName string) error
}

// LoggingAlertSink is the default AlertSink: it logs at error level.
// No paging/notification SDK appears anywhere in the example corpus to
// ground a wired integration on, so this stdlib/zerolog-only
// implementation is the sink until an operator wires a real one
// (PagerDuty, Opsgenie, Slack webhook) behind the same interface.
type LoggingAlertSink struct{}

// NewLoggingAlertSink constructs the default sink.
func NewLoggingAlertSink() *LoggingAlertSink { return &LoggingAlertSink{} }

// NotifyCritical logs the critical failure. It never returns an error
// itself since logging cannot meaningfully fail for this purpose.
func (LoggingAlertSink) NotifyCritical(ctx context.Context, orderID, stepName string) error {
	log.Error().
		Str("order_id", orderID).
		Str("step_name", stepName).
		Msg("CRITICAL: compensation failure requires operator attention")
	return nil
}
