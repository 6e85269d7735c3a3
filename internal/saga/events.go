package saga

import "github.com/rs/zerolog/log"

// OrderSagaEventType enumerates the terminal outcomes the orchestrator
// emits once a saga finishes, successfully or not (§4.4 step 3/4).
type OrderSagaEventType string

const (
	EventCompleted          OrderSagaEventType = "COMPLETED"
	EventFailed             OrderSagaEventType = "FAILED"
	EventCompensationFailed OrderSagaEventType = "COMPENSATION_FAILED"
)

// OrderSagaEvent is the terminal notification published after a saga
// resolves. It is distinct from the transactional OutboxMessage rows
// written by CreateOrderStep: this event is an in-process/observability
// signal (logged, and available for a caller-supplied sink), while the
// outbox is the durable at-least-once delivery mechanism to external
// consumers.
type OrderSagaEvent struct {
	Type         OrderSagaEventType
	OrderID      string
	UserID       string
	FinalAmount  int64
	ErrorMessage string
}

// EventSink receives terminal saga events. The default implementation
// only logs; callers may wire a richer sink (metrics, alerting) without
// the orchestrator depending on any concrete transport.
type EventSink interface {
	Publish(evt OrderSagaEvent)
}

// LoggingEventSink is the default EventSink: it logs at info or error
// level depending on the outcome. Mirrors
// compensation.LoggingAlertSink's role as the sink until an operator
// wires a richer one (metrics, a saga-events topic) behind the same
// interface.
type LoggingEventSink struct{}

// NewLoggingEventSink constructs the default sink.
func NewLoggingEventSink() *LoggingEventSink { return &LoggingEventSink{} }

// Publish logs the terminal saga event.
func (LoggingEventSink) Publish(evt OrderSagaEvent) {
	ev := log.Info()
	if evt.Type != EventCompleted {
		ev = log.Error()
	}
	ev.Str("order_id", evt.OrderID).
		Str("user_id", evt.UserID).
		Str("type", string(evt.Type)).
		Int64("final_amount", evt.FinalAmount).
		Str("error", evt.ErrorMessage).
		Msg("saga terminal event")
}
