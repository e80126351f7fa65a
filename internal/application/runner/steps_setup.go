package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// registerSetupSteps registers the scenario bodies that build a run's biz,
// location, resources, offer, queue, and membership.
func (r *Registry) registerSetupSteps() {
	r.Register("setup-create-biz", stepCreateBiz)
	r.Register("setup-create-location", stepCreateLocation)
	r.Register("setup-create-resources", stepCreateResources)
	r.Register("setup-create-offer", stepCreateOffer)
	r.Register("setup-create-queue", stepCreateQueue)
	r.Register("setup-invite-member", stepInviteMember)
	r.Register("setup-grant-acl", stepGrantACL)
	r.Register("channel-connect", stepChannelConnect)
}

// failStatus builds the failed error for an unexpected HTTP status.
func failStatus(what string, got, want int, body []byte) error {
	return saga.Failed(
		fmt.Sprintf("%s returned %d, want %d", what, got, want),
		map[string]any{"status": got, "want": want, "body": saga.TruncateBody(body)},
	)
}

func stepCreateBiz(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}

	name := "biz-" + uuid.NewString()[:8]
	var created struct {
		ID string `json:"id"`
	}
	resp, err := owner.Post(ctx, "/bizes", map[string]any{
		"name":     name,
		"timezone": "UTC",
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("biz create", resp.Status, 201, resp.Body)
	}
	if created.ID == "" {
		return nil, saga.Failed("biz create returned no id", nil)
	}
	sc.Run.Entities.BizID = created.ID

	// The created biz must be visible in the owner's list read. A record that
	// was created but cannot be read back is a visibility gap, not a defect.
	var listed struct {
		Bizes []struct {
			ID string `json:"id"`
		} `json:"bizes"`
	}
	resp, err = owner.Get(ctx, "/bizes", &listed)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("biz list", resp.Status, 200, resp.Body)
	}
	found := false
	for _, b := range listed.Bizes {
		if b.ID == created.ID {
			found = true
			break
		}
	}
	if !found {
		return nil, saga.Blocked(
			"created biz is not visible in the owner's biz list",
			map[string]any{"bizId": created.ID, "listed": len(listed.Bizes)},
		)
	}

	sc.Run.Patch(map[string]any{"bizId": created.ID, "bizName": name})
	return map[string]any{
		"accountState": map[string]any{"bizId": created.ID, "name": name, "visible": true},
	}, nil
}

func stepCreateLocation(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var created struct {
		ID string `json:"id"`
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/locations", map[string]any{
		"name":    "main",
		"address": "1 Saga Way",
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("location create", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.LocationID = created.ID
	return map[string]any{"locationId": created.ID}, nil
}

func stepCreateResources(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}

	for _, kind := range []string{"room", "chair"} {
		var created struct {
			ID string `json:"id"`
		}
		resp, err := owner.Post(ctx, "/locations/"+sc.Run.Entities.LocationID+"/resources", map[string]any{
			"kind": kind,
			"name": kind + "-1",
		}, &created)
		if err != nil {
			return nil, err
		}
		if resp.Status != 201 {
			return nil, failStatus("resource create", resp.Status, 201, resp.Body)
		}
		sc.Run.Entities.ResourceIDs = append(sc.Run.Entities.ResourceIDs, created.ID)
	}

	var listed struct {
		Resources []struct {
			ID string `json:"id"`
		} `json:"resources"`
	}
	resp, err := owner.Get(ctx, "/locations/"+sc.Run.Entities.LocationID+"/resources", &listed)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("resource list", resp.Status, 200, resp.Body)
	}
	if len(listed.Resources) < len(sc.Run.Entities.ResourceIDs) {
		return nil, saga.Blocked(
			"created resources are not all visible in the location's resource list",
			map[string]any{
				"created": len(sc.Run.Entities.ResourceIDs),
				"listed":  len(listed.Resources),
			},
		)
	}
	return map[string]any{"resourceIds": sc.Run.Entities.ResourceIDs}, nil
}

func stepCreateOffer(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}

	var offer struct {
		ID string `json:"id"`
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/offers", map[string]any{
		"name":       "intro-session",
		"durationMs": 3600000,
	}, &offer)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("offer create", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.OfferID = offer.ID

	var version struct {
		ID string `json:"id"`
	}
	resp, err = owner.Post(ctx, "/offers/"+offer.ID+"/versions", map[string]any{
		"price":   "25.00",
		"publish": true,
	}, &version)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("offer version publish", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.OfferVersionID = version.ID

	return map[string]any{"offerId": offer.ID, "offerVersionId": version.ID}, nil
}

func stepCreateQueue(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var created struct {
		ID string `json:"id"`
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/queues", map[string]any{
		"name": "walk-ins",
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("queue create", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.QueueID = created.ID
	return map[string]any{"queueId": created.ID}, nil
}

func stepInviteMember(ctx context.Context, sc *StepContext) (map[string]any, error) {
	ownerSess, err := sc.Run.Actor(ActorOwner)
	if err != nil {
		return nil, saga.Blocked(err.Error(), nil)
	}
	memberSess, err := sc.Run.Actor(ActorMember)
	if err != nil {
		return nil, saga.Blocked(err.Error(), nil)
	}

	memberEmail := fmt.Sprintf("member-%s@saga.bizing.test", sc.Run.Run.ID)
	token, err := ownerSess.InviteMember(ctx, sc.Trace, sc.Run.Entities.BizID, memberEmail, "staff")
	if err != nil {
		return nil, saga.Failed("member invite: "+err.Error(), nil)
	}
	if err := memberSess.AcceptInvite(ctx, sc.Trace, token); err != nil {
		return nil, saga.Failed("invite accept: "+err.Error(), nil)
	}

	// The accepted member must be able to read the biz.
	member, err := sc.As(ActorMember)
	if err != nil {
		return nil, err
	}
	resp, err := member.Get(ctx, "/bizes/"+sc.Run.Entities.BizID, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, saga.Blocked(
			"member accepted the invite but cannot read the biz",
			map[string]any{"status": resp.Status},
		)
	}
	return map[string]any{"memberAccepted": true}, nil
}

func stepGrantACL(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/acl", map[string]any{
		"actor":      ActorMember,
		"permission": "bookings:manage",
	}, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("acl grant", resp.Status, 200, resp.Body)
	}
	return map[string]any{"granted": "bookings:manage"}, nil
}

func stepChannelConnect(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var created struct {
		ID string `json:"id"`
	}
	resp, err := owner.Post(ctx, "/bizes/"+sc.Run.Entities.BizID+"/channels", map[string]any{
		"kind": "webcal",
	}, &created)
	if err != nil {
		return nil, err
	}
	if resp.Status != 201 {
		return nil, failStatus("channel connect", resp.Status, 201, resp.Body)
	}
	sc.Run.Entities.ChannelID = created.ID
	return map[string]any{"channelId": created.ID, "kind": "webcal"}, nil
}
