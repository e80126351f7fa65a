package runner

import (
	"context"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// registerOpsSteps registers the operational read and messaging scenario
// bodies: compliance controls, dispatch state, subject subscriptions, and
// customer messaging (which feeds the message_for delay condition).
func (r *Registry) registerOpsSteps() {
	r.Register("ops-compliance-read", stepComplianceRead)
	r.Register("ops-dispatch-state", stepDispatchState)
	r.Register("ops-subscribe-subjects", stepSubscribeSubjects)
	r.Register("ops-send-customer-message", stepSendCustomerMessage)
}

func stepComplianceRead(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var out struct {
		Controls []any `json:"controls"`
	}
	resp, err := owner.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/compliance-controls", &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("compliance controls read", resp.Status, 200, resp.Body)
	}
	return map[string]any{"controls": out.Controls}, nil
}

func stepDispatchState(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var state map[string]any
	resp, err := owner.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/dispatch-state", &state)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("dispatch state read", resp.Status, 200, resp.Body)
	}
	return map[string]any{"dispatchState": state}, nil
}

func stepSubscribeSubjects(ctx context.Context, sc *StepContext) (map[string]any, error) {
	member, err := sc.As(ActorMember)
	if err != nil {
		return nil, err
	}
	var created struct {
		ID string `json:"id"`
	}
	resp, err := member.Post(ctx, "/subject-subscriptions", map[string]any{
		"subject": "bookings",
		"bizId":   sc.Run.Entities.BizID,
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("subject subscription create", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.SubscriptionIDs = append(sc.Run.Entities.SubscriptionIDs, created.ID)

	var listed struct {
		Subscriptions []struct {
			ID string `json:"id"`
		} `json:"subscriptions"`
	}
	resp, err = member.Get(ctx, "/subject-subscriptions", &listed)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("subject subscription list", resp.Status, 200, resp.Body)
	}
	for _, s := range listed.Subscriptions {
		if s.ID == created.ID {
			return map[string]any{"subscriptionId": created.ID}, nil
		}
	}
	return nil, saga.Blocked(
		"subscription was created but is not visible in the member's list",
		map[string]any{"subscriptionId": created.ID, "listed": len(listed.Subscriptions)},
	)
}

// stepSendCustomerMessage delivers a message to customer1's inbox on this
// run. A later step gated on message_for:customer1 waits for it.
func stepSendCustomerMessage(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/messages", map[string]any{
		"to":    ActorCustomer1,
		"runId": sc.Run.Run.ID,
		"body":  "your booking is confirmed",
	}, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("customer message send", resp.Status, 200, resp.Body)
	}
	return map[string]any{"delivered": true, "to": ActorCustomer1}, nil
}
