package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/compensation"
)

// SagaError is returned by ExecuteSaga when the forward path fails
// (whether or not compensation itself also failed).
type SagaError struct {
	StepName string
	Cause    error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("saga failed at step %s: %v", e.StepName, e.Cause)
}
func (e *SagaError) Unwrap() error { return e.Cause }

// Orchestrator drives step execution and compensation per §4.4.
type Orchestrator struct {
	steps        []Step
	compensation *compensation.Handler
	sink         EventSink
}

// NewOrchestrator builds an Orchestrator over steps, sorted and
// validated by ascending Order(); duplicate orders are a configuration
// error that fails at construction time (§4.4 "Ordering and
// tie-breaks").
func NewOrchestrator(steps []Step, handler *compensation.Handler, sink EventSink) (*Orchestrator, error) {
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })

	seen := make(map[int]string, len(sorted))
	for _, st := range sorted {
		if name, ok := seen[st.Order()]; ok {
			return nil, fmt.Errorf("saga: duplicate step order %d held by %q and %q", st.Order(), name, st.Name())
		}
		seen[st.Order()] = st.Name()
	}

	return &Orchestrator{steps: sorted, compensation: handler, sink: sink}, nil
}

// ExecuteSaga runs the forward path described by snap, entering
// compensation on the first step failure.
func (o *Orchestrator) ExecuteSaga(ctx context.Context, snap *Snapshot) (string, error) {
	for _, step := range o.steps {
		// UseCouponStep is defined to be a no-op when CouponID is nil,
		// but it must also never appear on the execution trail in that
		// case — only steps whose forward effect actually ran are
		// eligible for compensation (§4.3.c / §4.4).
		if _, ok := step.(*UseCouponStep); ok && snap.CouponID == nil {
			continue
		}

		if err := step.Execute(ctx, snap); err != nil {
			o.emit(OrderSagaEvent{Type: EventFailed, OrderID: snap.OrderID, UserID: snap.UserID, ErrorMessage: err.Error()})

			compErr := o.compensate(ctx, snap, step.Name())
			if compErr != nil {
				o.emit(OrderSagaEvent{Type: EventCompensationFailed, OrderID: snap.OrderID, UserID: snap.UserID, ErrorMessage: compErr.Error()})
				return "", &SagaError{StepName: step.Name(), Cause: fmt.Errorf("%w (compensation also failed: %v)", err, compErr)}
			}
			return "", &SagaError{StepName: step.Name(), Cause: err}
		}

		snap.ExecutionTrail = append(snap.ExecutionTrail, step.Name())
	}

	o.emit(OrderSagaEvent{Type: EventCompleted, OrderID: snap.OrderID, UserID: snap.UserID, FinalAmount: snap.FinalAmount})
	return snap.OrderID, nil
}

// compensate runs compensation in strict LIFO order over the
// execution trail recorded so far (the failing step itself is never
// on the trail, so it is never compensated).
func (o *Orchestrator) compensate(ctx context.Context, snap *Snapshot, failingStep string) error {
	byName := make(map[string]Step, len(o.steps))
	for _, st := range o.steps {
		byName[st.Name()] = st
	}

	for i := len(snap.ExecutionTrail) - 1; i >= 0; i-- {
		name := snap.ExecutionTrail[i]
		step, ok := byName[name]
		if !ok {
			continue
		}

		err := step.Compensate(ctx, snap)
		if err == nil {
			continue
		}

		var orderID *string
		if snap.OrderID != "" {
			id := snap.OrderID
			orderID = &id
		}
		stepOrder := 0
		if ordered, ok := step.(interface{ Order() int }); ok {
			stepOrder = ordered.Order()
		}

		handleErr := o.compensation.Handle(ctx, compensation.FailureContext{
			OrderID:      orderID,
			UserID:       snap.UserID,
			StepName:     step.Name(),
			StepOrder:    stepOrder,
			Err:          err,
			SnapshotJSON: snap,
		})
		if handleErr != nil {
			var halt *compensation.HaltError
			if errors.As(handleErr, &halt) {
				return halt
			}
			return handleErr
		}
		// Non-critical: continue with the next step's compensation.
	}
	return nil
}

func (o *Orchestrator) emit(evt OrderSagaEvent) {
	log.Info().
		Str("event_type", string(evt.Type)).
		Str("order_id", evt.OrderID).
		Str("user_id", evt.UserID).
		Int64("final_amount", evt.FinalAmount).
		Str("error_message", evt.ErrorMessage).
		Msg("order saga event")
	if o.sink != nil {
		o.sink.Publish(evt)
	}
}
