package runner

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// registerPaymentSteps registers the payment and pricing scenario bodies.
func (r *Registry) registerPaymentSteps() {
	r.Register("payment-intent-create", stepPaymentIntentCreate)
	r.Register("payment-confirm", stepPaymentConfirm)
	r.Register("payment-refund", stepPaymentRefund)
	r.Register("pricing-demand-policy", stepDemandPricingPolicy)
}

func stepPaymentIntentCreate(ctx context.Context, sc *StepContext) (map[string]any, error) {
	ids := sc.Run.BookingIDs()
	if len(ids) == 0 {
		return nil, saga.Blocked("no booking to pay for: booking-create has not run in this saga", nil)
	}
	customer, err := sc.As(ActorCustomer1)
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromFloat(25.00)
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	resp, err := customer.Post(ctx, "/payment-intents", map[string]any{
		"bookingId": ids[0],
		"amount":    amount.StringFixed(2),
		"currency":  "USD",
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("payment intent create", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.PaymentIntentID = created.ID
	return map[string]any{
		"paymentIntentId": created.ID,
		"amount":          amount.StringFixed(2),
		"status":          created.Status,
	}, nil
}

func stepPaymentConfirm(ctx context.Context, sc *StepContext) (map[string]any, error) {
	if sc.Run.Entities.PaymentIntentID == "" {
		return nil, saga.Blocked("no payment intent to confirm: payment-intent-create has not run in this saga", nil)
	}
	customer, err := sc.As(ActorCustomer1)
	if err != nil {
		return nil, err
	}
	var confirmed struct {
		Status string `json:"status"`
	}
	resp, err := customer.Post(ctx, "/payment-intents/"+sc.Run.Entities.PaymentIntentID+"/confirm", nil, &confirmed)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("payment confirm", resp.Status, 200, resp.Body)
	}
	if confirmed.Status != "succeeded" {
		return nil, saga.Failed(
			"payment intent did not reach succeeded after confirmation",
			map[string]any{"status": confirmed.Status},
		)
	}
	return map[string]any{"paymentIntentId": sc.Run.Entities.PaymentIntentID, "status": confirmed.Status}, nil
}

func stepPaymentRefund(ctx context.Context, sc *StepContext) (map[string]any, error) {
	if sc.Run.Entities.PaymentIntentID == "" {
		return nil, saga.Blocked("no payment intent to refund: payment steps have not run in this saga", nil)
	}
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var refunded struct {
		Status string `json:"status"`
	}
	resp, err := owner.Post(ctx, "/payment-intents/"+sc.Run.Entities.PaymentIntentID+"/refund", nil, &refunded)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("payment refund", resp.Status, 200, resp.Body)
	}
	return map[string]any{"paymentIntentId": sc.Run.Entities.PaymentIntentID, "status": refunded.Status}, nil
}

func stepDemandPricingPolicy(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	peak := decimal.NewFromFloat(1.5)
	var created struct {
		ID string `json:"id"`
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/demand-pricing/policies", map[string]any{
		"name":           "weekend-peak",
		"peakMultiplier": peak.String(),
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("demand-pricing policy create", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.PolicyID = created.ID
	return map[string]any{"policyId": created.ID, "peakMultiplier": peak.String()}, nil
}
