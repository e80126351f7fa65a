package apitest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (b *biz) hasMember(userID string) bool {
	return b.ownerID == userID || b.members[userID]
}

// bizForUpdate loads a biz and checks membership, answering the request
// itself on failure. Callers must hold s.mu.
func (s *Server) bizForUpdate(c *gin.Context, bizID string) *biz {
	b, ok := s.bizes[bizID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown biz"})
		return nil
	}
	if !b.hasMember(currentUser(c).id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return nil
	}
	return b
}

// ---- bizes ----

func (s *Server) handleCreateBiz(c *gin.Context) {
	var body struct {
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	u := currentUser(c)

	s.mu.Lock()
	b := &biz{id: uuid.NewString(), name: body.Name, ownerID: u.id, members: map[string]bool{}}
	s.bizes[b.id] = b
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"id": b.id, "name": b.name})
}

func (s *Server) handleListBizes(c *gin.Context) {
	u := currentUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gin.H{}
	for _, b := range s.bizes {
		if b.hasMember(u.id) {
			out = append(out, gin.H{"id": b.id, "name": b.name})
		}
	}
	c.JSON(http.StatusOK, gin.H{"bizes": out})
}

func (s *Server) handleGetBiz(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bizForUpdate(c, c.Param("id"))
	if b == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": b.id, "name": b.name})
}

func (s *Server) handlePatchBiz(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bizes[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown biz"})
		return
	}
	if b.ownerID != currentUser(c).id {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner only"})
		return
	}
	if body.Name != "" {
		b.name = body.Name
	}
	c.JSON(http.StatusOK, gin.H{"id": b.id, "name": b.name})
}

func (s *Server) handleGetCredentials(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bizes[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown biz"})
		return
	}
	if b.ownerID != currentUser(c).id {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner only"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKey": "test-" + b.id})
}

// ---- locations, resources, offers, queues ----

func (s *Server) handleCreateLocation(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bizForUpdate(c, c.Param("id"))
	if b == nil {
		return
	}
	id := uuid.NewString()
	s.locations[id] = b.id
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleCreateResource(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bizID, ok := s.locations[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown location"})
		return
	}
	if b := s.bizForUpdate(c, bizID); b == nil {
		return
	}
	id := uuid.NewString()
	s.resources[c.Param("id")] = append(s.resources[c.Param("id")], id)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleListResources(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gin.H{}
	for _, id := range s.resources[c.Param("id")] {
		out = append(out, gin.H{"id": id})
	}
	c.JSON(http.StatusOK, gin.H{"resources": out})
}

func (s *Server) handleCreateOffer(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bizForUpdate(c, c.Param("id"))
	if b == nil {
		return
	}
	id := uuid.NewString()
	s.offers[id] = b.id
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// handleListOffers returns every offer to members; customers see only offers
// with at least one published version.
func (s *Server) handleListOffers(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bizes[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown biz"})
		return
	}
	member := b.hasMember(currentUser(c).id)
	out := []gin.H{}
	for offerID, bizID := range s.offers {
		if bizID != b.id {
			continue
		}
		if !member && len(s.offerVersions[offerID]) == 0 {
			continue
		}
		out = append(out, gin.H{"id": offerID})
	}
	c.JSON(http.StatusOK, gin.H{"offers": out})
}

func (s *Server) handleCreateOfferVersion(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bizID, ok := s.offers[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown offer"})
		return
	}
	if b := s.bizForUpdate(c, bizID); b == nil {
		return
	}
	id := uuid.NewString()
	s.offerVersions[c.Param("id")] = append(s.offerVersions[c.Param("id")], id)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleCreateQueue(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bizForUpdate(c, c.Param("id")); b == nil {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": uuid.NewString()})
}

func (s *Server) handleGrantACL(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bizForUpdate(c, c.Param("id")); b == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleConnectChannel(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bizForUpdate(c, c.Param("id")); b == nil {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": uuid.NewString()})
}

// ---- membership ----

func (s *Server) handleCreateInvite(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bizes[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown biz"})
		return
	}
	if b.ownerID != currentUser(c).id {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner only"})
		return
	}
	token := uuid.NewString()
	s.invites[token] = b.id
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

func (s *Server) handleAcceptInvite(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bizID, ok := s.invites[c.Param("token")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown invite"})
		return
	}
	delete(s.invites, c.Param("token"))
	s.bizes[bizID].members[currentUser(c).id] = true
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---- bookings ----

func (s *Server) handleCreateBooking(c *gin.Context) {
	var body struct {
		OfferID    string `json:"offerId"`
		ResourceID string `json:"resourceId"`
		StartAt    string `json:"startAt"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.OfferID == "" || body.StartAt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offerId and startAt required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bizID, ok := s.offers[body.OfferID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown offer"})
		return
	}
	for _, bk := range s.bookings {
		if bk.offerID == body.OfferID && bk.startAt == body.StartAt && bk.status != "cancelled" {
			c.JSON(http.StatusConflict, gin.H{"error": "slot already booked"})
			return
		}
	}
	bk := &booking{
		id:         uuid.NewString(),
		bookerID:   currentUser(c).id,
		bizID:      bizID,
		offerID:    body.OfferID,
		resourceID: body.ResourceID,
		startAt:    body.StartAt,
		status:     "confirmed",
	}
	s.bookings[bk.id] = bk
	c.JSON(http.StatusCreated, gin.H{"id": bk.id, "status": bk.status})
}

// handleGetBooking answers 404 rather than 403 for callers with no claim on
// the booking, so its existence does not leak.
func (s *Server) handleGetBooking(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bk, ok := s.bookings[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown booking"})
		return
	}
	u := currentUser(c)
	if bk.bookerID != u.id && !s.bizes[bk.bizID].hasMember(u.id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown booking"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": bk.id, "status": bk.status, "startAt": bk.startAt})
}

func (s *Server) handleCancelBooking(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bk, ok := s.bookings[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown booking"})
		return
	}
	u := currentUser(c)
	if bk.bookerID != u.id && !s.bizes[bk.bizID].hasMember(u.id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown booking"})
		return
	}
	bk.status = "cancelled"
	c.JSON(http.StatusOK, gin.H{"id": bk.id, "status": bk.status})
}

func (s *Server) handleListBizBookings(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bizForUpdate(c, c.Param("id"))
	if b == nil {
		return
	}
	out := []gin.H{}
	for _, bk := range s.bookings {
		if bk.bizID == b.id {
			out = append(out, gin.H{"id": bk.id, "status": bk.status, "startAt": bk.startAt})
		}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

func (s *Server) handleCalendar(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bizForUpdate(c, c.Param("id"))
	if b == nil {
		return
	}
	slots := []gin.H{}
	for _, bk := range s.bookings {
		if bk.bizID == b.id && bk.status != "cancelled" {
			slots = append(slots, gin.H{"bookingId": bk.id, "startAt": bk.startAt})
		}
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// ---- payments and pricing ----

func (s *Server) handleCreatePaymentIntent(c *gin.Context) {
	var body struct {
		BookingID string `json:"bookingId"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.BookingID == "" || body.Amount == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bookingId and amount required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bk, ok := s.bookings[body.BookingID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown booking"})
		return
	}
	pi := &paymentIntent{
		id:       uuid.NewString(),
		bookerID: currentUser(c).id,
		bizID:    bk.bizID,
		status:   "requires_confirmation",
		amount:   body.Amount,
	}
	s.intents[pi.id] = pi
	c.JSON(http.StatusCreated, gin.H{"id": pi.id, "status": pi.status, "amount": pi.amount})
}

func (s *Server) handleConfirmPaymentIntent(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.intents[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown payment intent"})
		return
	}
	if pi.bookerID != currentUser(c).id {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the payer"})
		return
	}
	pi.status = "succeeded"
	c.JSON(http.StatusOK, gin.H{"id": pi.id, "status": pi.status})
}

func (s *Server) handleRefundPaymentIntent(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.intents[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown payment intent"})
		return
	}
	u := currentUser(c)
	if pi.bookerID != u.id && !s.bizes[pi.bizID].hasMember(u.id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "no claim on this payment"})
		return
	}
	if pi.status != "succeeded" {
		c.JSON(http.StatusConflict, gin.H{"error": "only succeeded payments refund", "status": pi.status})
		return
	}
	pi.status = "refunded"
	c.JSON(http.StatusOK, gin.H{"id": pi.id, "status": pi.status})
}

func (s *Server) handleCreatePricingPolicy(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bizForUpdate(c, c.Param("id")); b == nil {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": uuid.NewString()})
}

// ---- ops surfaces ----

func (s *Server) handleComplianceControls(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bizForUpdate(c, c.Param("id")); b == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"controls": []gin.H{
		{"key": "data-retention", "state": "enabled"},
		{"key": "audit-log", "state": "enabled"},
	}})
}

func (s *Server) handleDispatchState(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bizForUpdate(c, c.Param("id")); b == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": "idle", "queueDepth": 0})
}

func (s *Server) handleCreateSubscription(c *gin.Context) {
	var body struct {
		Subject string `json:"subject"`
		BizID   string `json:"bizId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	u := currentUser(c)
	s.subs[u.id] = append(s.subs[u.id], id)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleListSubscriptions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gin.H{}
	for _, id := range s.subs[currentUser(c).id] {
		out = append(out, gin.H{"id": id})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

// ---- messaging ----

func (s *Server) handleSendMessage(c *gin.Context) {
	var body struct {
		To    string `json:"to"`
		RunID string `json:"runId"`
		Body  string `json:"body"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.To == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bizForUpdate(c, c.Param("id"))
	if b == nil {
		return
	}
	recipient, ok := s.usersByName[body.To]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown recipient"})
		return
	}
	s.inbox[recipient.id] = append(s.inbox[recipient.id], inboxMessage{
		RunID: body.RunID,
		From:  currentUser(c).displayName,
		Body:  body.Body,
	})
	c.JSON(http.StatusOK, gin.H{"delivered": true})
}

func (s *Server) handleInbox(c *gin.Context) {
	runID := c.Query("runId")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []inboxMessage{}
	for _, m := range s.inbox[currentUser(c).id] {
		if runID == "" || m.RunID == runID {
			out = append(out, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}
