package runner

import (
	"context"
	"time"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// registerBookingSteps registers the booking scenario bodies.
func (r *Registry) registerBookingSteps() {
	r.Register("booking-create", stepBookingCreate)
	r.Register("booking-list-visibility", stepBookingListVisibility)
	r.Register("booking-double-book-probe", stepBookingDoubleBookProbe)
	r.Register("booking-cancel", stepBookingCancel)
	r.Register("booking-calendar-view", stepBookingCalendarView)
}

// bookingSlot returns the deterministic slot this run books against.
func bookingSlot(rc *RunContext) map[string]any {
	start := time.Now().UTC().Truncate(time.Hour).Add(48 * time.Hour)
	body := map[string]any{
		"offerId": rc.Entities.OfferID,
		"startAt": start.Format(time.RFC3339),
	}
	if len(rc.Entities.ResourceIDs) > 0 {
		body["resourceId"] = rc.Entities.ResourceIDs[0]
	}
	return body
}

func stepBookingCreate(ctx context.Context, sc *StepContext) (map[string]any, error) {
	customer, err := sc.As(ActorCustomer1)
	if err != nil {
		return nil, err
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	resp, err := customer.Post(ctx, "/bookings", bookingSlot(sc.Run), &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("booking create", resp.Status, 201, resp.Body)
	}
	sc.Run.AddBooking(created.ID)
	sc.Run.Patch(map[string]any{"lastBookingId": created.ID})
	return map[string]any{
		"booking": map[string]any{"id": created.ID, "status": created.Status},
	}, nil
}

func stepBookingListVisibility(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var listed struct {
		Bookings []struct {
			ID string `json:"id"`
		} `json:"bookings"`
	}
	resp, err := owner.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/bookings", &listed)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("booking list", resp.Status, 200, resp.Body)
	}
	visible := map[string]bool{}
	for _, b := range listed.Bookings {
		visible[b.ID] = true
	}
	var missing []string
	for _, id := range sc.Run.BookingIDs() {
		if !visible[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, saga.Blocked(
			"bookings were created but are not visible in the owner's list",
			map[string]any{"missing": missing, "listed": len(listed.Bookings)},
		)
	}
	return map[string]any{"visibleBookings": len(listed.Bookings)}, nil
}

// stepBookingDoubleBookProbe books the same slot as a second customer and
// expects the API to refuse it.
func stepBookingDoubleBookProbe(ctx context.Context, sc *StepContext) (map[string]any, error) {
	customer, err := sc.As(ActorCustomer2)
	if err != nil {
		return nil, err
	}
	resp, err := customer.Post(ctx, "/bookings", bookingSlot(sc.Run), nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != 409 {
		return nil, saga.Failed(
			"double booking the same slot was not refused",
			map[string]any{"status": resp.Status, "want": 409},
		)
	}
	return map[string]any{"refused": true, "status": resp.Status}, nil
}

func stepBookingCancel(ctx context.Context, sc *StepContext) (map[string]any, error) {
	ids := sc.Run.BookingIDs()
	if len(ids) == 0 {
		return nil, saga.Blocked("no booking to cancel: booking-create has not run in this saga", nil)
	}
	customer, err := sc.As(ActorCustomer1)
	if err != nil {
		return nil, err
	}
	bookingID := ids[0]
	resp, err := customer.Post(ctx, "/bookings/"+bookingID+"/cancel", nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("booking cancel", resp.Status, 200, resp.Body)
	}

	var fetched struct {
		Status string `json:"status"`
	}
	resp, err = customer.Get(ctx, "/bookings/"+bookingID, &fetched)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("booking fetch after cancel", resp.Status, 200, resp.Body)
	}
	if fetched.Status != "cancelled" {
		return nil, saga.Blocked(
			"booking was cancelled but its fetched status did not change",
			map[string]any{"bookingId": bookingID, "status": fetched.Status},
		)
	}
	return map[string]any{
		"booking": map[string]any{"id": bookingID, "status": fetched.Status},
	}, nil
}

func stepBookingCalendarView(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var view map[string]any
	resp, err := owner.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/calendar", &view)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("calendar fetch", resp.Status, 200, resp.Body)
	}
	return map[string]any{"calendar": view}, nil
}
