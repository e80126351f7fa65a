package runner

import (
	"context"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// registerAdversarialSteps registers probes asserting that the adversary
// actor, who holds a valid session but no membership, is denied on protected
// surfaces. A wrong status here is failed: authorization is a product
// guarantee, not a capability.
func (r *Registry) registerAdversarialSteps() {
	r.Register("adversary-patch-biz", stepAdversaryPatchBiz)
	r.Register("adversary-read-booking", stepAdversaryReadBooking)
	r.Register("adversary-read-credentials", stepAdversaryReadCredentials)
}

func stepAdversaryPatchBiz(ctx context.Context, sc *StepContext) (map[string]any, error) {
	adversary, err := sc.As(ActorAdversary)
	if err != nil {
		return nil, err
	}
	resp, err := adversary.Patch(ctx, "/bizes/"+sc.Run.Entities.BizID, map[string]any{
		"name": "hijacked",
	}, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != 403 {
		return nil, saga.Failed(
			"adversary biz patch was not forbidden",
			map[string]any{"status": resp.Status, "want": 403},
		)
	}
	return map[string]any{"denied": true, "status": resp.Status}, nil
}

func stepAdversaryReadBooking(ctx context.Context, sc *StepContext) (map[string]any, error) {
	ids := sc.Run.BookingIDs()
	if len(ids) == 0 {
		return nil, saga.Blocked("no booking for the adversary to probe: booking-create has not run in this saga", nil)
	}
	adversary, err := sc.As(ActorAdversary)
	if err != nil {
		return nil, err
	}
	resp, err := adversary.Get(ctx, "/bookings/"+ids[0], nil)
	if err != nil {
		return nil, err
	}
	// 404 is acceptable: not leaking the booking's existence is stricter
	// than 403.
	if resp.Status != 403 && resp.Status != 404 {
		return nil, saga.Failed(
			"adversary booking read was not denied",
			map[string]any{"status": resp.Status, "want": []int{403, 404}},
		)
	}
	return map[string]any{"denied": true, "status": resp.Status}, nil
}

func stepAdversaryReadCredentials(ctx context.Context, sc *StepContext) (map[string]any, error) {
	adversary, err := sc.As(ActorAdversary)
	if err != nil {
		return nil, err
	}
	resp, err := adversary.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/credentials", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != 403 {
		return nil, saga.Failed(
			"adversary credential read was not forbidden",
			map[string]any{"status": resp.Status, "want": 403},
		)
	}
	return map[string]any{"denied": true, "status": resp.Status}, nil
}
