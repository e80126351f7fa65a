package apitest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

func (s *Server) router() *gin.Engine {
	r := gin.New()

	r.POST("/auth/sign-up", s.handleSignUp)

	auth := r.Group("/", s.requireSession)
	auth.GET("/auth/session", s.handleSession)

	auth.GET("/sagas", s.handleListSagas)
	auth.POST("/sagas/runs", s.handleCreateRun)
	auth.GET("/sagas/runs/:id", s.handleFetchRun)
	auth.POST("/sagas/runs/:id/steps/:key/result", s.handleStepResult)
	auth.POST("/sagas/runs/:id/steps/:key/snapshots", s.handleAttachSnapshot)
	auth.POST("/sagas/runs/:id/steps/:key/traces", s.handleAttachTrace)
	auth.POST("/sagas/runs/:id/report", s.handleSubmitReport)
	auth.POST("/sagas/runs/:id/steps/:key/exploratory-evaluate", s.handleExploratoryEvaluate)

	auth.POST("/bizes", s.handleCreateBiz)
	auth.GET("/bizes", s.handleListBizes)
	auth.GET("/bizes/:id", s.handleGetBiz)
	auth.PATCH("/bizes/:id", s.handlePatchBiz)
	auth.GET("/bizes/:id/credentials", s.handleGetCredentials)
	auth.POST("/bizes/:id/locations", s.handleCreateLocation)
	auth.POST("/bizes/:id/offers", s.handleCreateOffer)
	auth.GET("/bizes/:id/offers", s.handleListOffers)
	auth.POST("/bizes/:id/queues", s.handleCreateQueue)
	auth.POST("/bizes/:id/acl", s.handleGrantACL)
	auth.POST("/bizes/:id/channels", s.handleConnectChannel)
	auth.GET("/bizes/:id/bookings", s.handleListBizBookings)
	auth.GET("/bizes/:id/calendar", s.handleCalendar)
	auth.GET("/bizes/:id/compliance-controls", s.handleComplianceControls)
	auth.GET("/bizes/:id/dispatch-state", s.handleDispatchState)
	auth.POST("/bizes/:id/demand-pricing/policies", s.handleCreatePricingPolicy)
	auth.POST("/bizes/:id/messages", s.handleSendMessage)
	auth.POST("/bizes/:id/members/invites", s.handleCreateInvite)
	auth.POST("/members/invites/:token/accept", s.handleAcceptInvite)

	auth.POST("/locations/:id/resources", s.handleCreateResource)
	auth.GET("/locations/:id/resources", s.handleListResources)
	auth.POST("/offers/:id/versions", s.handleCreateOfferVersion)

	auth.POST("/bookings", s.handleCreateBooking)
	auth.GET("/bookings/:id", s.handleGetBooking)
	auth.POST("/bookings/:id/cancel", s.handleCancelBooking)

	auth.POST("/payment-intents", s.handleCreatePaymentIntent)
	auth.POST("/payment-intents/:id/confirm", s.handleConfirmPaymentIntent)
	auth.POST("/payment-intents/:id/refund", s.handleRefundPaymentIntent)

	auth.GET("/me/inbox", s.handleInbox)
	auth.POST("/subject-subscriptions", s.handleCreateSubscription)
	auth.GET("/subject-subscriptions", s.handleListSubscriptions)

	auth.GET("/test/http-500", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "synthetic failure"})
	})
	auth.GET("/test/slow", func(c *gin.Context) {
		time.Sleep(5 * time.Second)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}

// ---- auth ----

func (s *Server) handleSignUp(c *gin.Context) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}
	u := &user{id: uuid.NewString(), email: body.Email, displayName: body.DisplayName}
	token := uuid.NewString()

	s.mu.Lock()
	s.users[token] = u
	s.usersByName[body.DisplayName] = u
	s.mu.Unlock()

	c.SetCookie(sessionCookie, token, 3600, "/", "", false, true)
	c.JSON(http.StatusCreated, gin.H{"id": u.id, "email": u.email})
}

func (s *Server) requireSession(c *gin.Context) {
	token, err := c.Cookie(sessionCookie)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	s.mu.Lock()
	u, ok := s.users[token]
	s.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "stale session"})
		return
	}
	c.Set("user", u)
	c.Next()
}

func currentUser(c *gin.Context) *user {
	return c.MustGet("user").(*user)
}

func (s *Server) handleSession(c *gin.Context) {
	u := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"id": u.id, "email": u.email, "displayName": u.displayName})
}

// ---- run lifecycle ----

func (s *Server) handleListSagas(c *gin.Context) {
	key := c.Query("key")
	limit, _ := strconv.Atoi(c.Query("limit"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []saga.Definition{}
	for _, d := range s.defs {
		if key != "" && !strings.Contains(d.SagaKey, key) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"sagas": out})
}

func (s *Server) handleCreateRun(c *gin.Context) {
	var body struct {
		SagaKey string `json:"sagaKey"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SagaKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sagaKey required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[body.SagaKey]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown saga"})
		return
	}
	rs := &runState{
		run: saga.Run{
			ID:         uuid.NewString(),
			SagaKey:    body.SagaKey,
			Status:     saga.RunStatusPending,
			TotalSteps: len(template),
		},
	}
	for _, st := range template {
		st.Status = saga.StepStatusPending
		rs.steps = append(rs.steps, &stepState{step: st})
	}
	s.runs[rs.run.ID] = rs
	c.JSON(http.StatusCreated, rs.run)
}

func (s *Server) handleFetchRun(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.runs[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	steps := make([]saga.RunStep, len(rs.steps))
	for i, st := range rs.steps {
		steps[i] = st.step
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          rs.run.ID,
		"sagaKey":     rs.run.SagaKey,
		"status":      rs.run.Status,
		"passedSteps": rs.run.PassedSteps,
		"totalSteps":  rs.run.TotalSteps,
		"steps":       steps,
	})
}

func (s *Server) handleStepResult(c *gin.Context) {
	var body struct {
		Status saga.StepStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || !body.Status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid status required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failResults {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "result store down"})
		return
	}
	rs, ok := s.runs[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	for _, st := range rs.steps {
		if st.step.StepKey != c.Param("key") {
			continue
		}
		// Idempotent: repeating the current status is a no-op. Anything
		// else must be a legal monotonic transition.
		if st.step.Status == body.Status {
			c.JSON(http.StatusOK, gin.H{"status": st.step.Status})
			return
		}
		if !st.step.Status.CanTransitionTo(body.Status) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "illegal transition",
				"from":  st.step.Status,
				"to":    body.Status,
			})
			return
		}
		if body.Status == saga.StepStatusInProgress {
			st.started = time.Now()
		}
		st.step.Status = body.Status
		st.history = append(st.history, body.Status)
		s.recomputeRunLocked(rs)
		c.JSON(http.StatusOK, gin.H{"status": st.step.Status})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown step"})
}

// recomputeRunLocked derives the run status from its steps. A run passes iff
// every step resolved passed or skipped; never by partial majority.
func (s *Server) recomputeRunLocked(rs *runState) {
	passed := 0
	terminal := 0
	inProgress := 0
	failed := false
	for _, st := range rs.steps {
		switch {
		case st.step.Status == saga.StepStatusPassed:
			passed++
			terminal++
		case st.step.Status == saga.StepStatusSkipped:
			terminal++
		case st.step.Status.IsTerminal():
			terminal++
			failed = true
		case st.step.Status == saga.StepStatusInProgress:
			inProgress++
		}
	}
	rs.run.PassedSteps = passed
	switch {
	case terminal == len(rs.steps) && !failed:
		rs.run.Status = saga.RunStatusPassed
	case terminal == len(rs.steps):
		rs.run.Status = saga.RunStatusFailed
	case inProgress > 0 || terminal > 0:
		rs.run.Status = saga.RunStatusRunning
	default:
		rs.run.Status = saga.RunStatusPending
	}
}

func (s *Server) handleAttachSnapshot(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSnapshots {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot store down"})
		return
	}
	s.snapshots[c.Param("id")+"/"+c.Param("key")] = body
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

func (s *Server) handleAttachTrace(c *gin.Context) {
	var body struct {
		Entries []saga.TraceEntry `json:"entries"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trace"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTraces {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trace store down"})
		return
	}
	key := c.Param("id") + "/" + c.Param("key")
	s.traces[key] = append(s.traces[key], body.Entries...)
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

func (s *Server) handleSubmitReport(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[c.Param("id")] = append(s.reports[c.Param("id")], body)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleExploratoryEvaluate(c *gin.Context) {
	var body struct {
		StepFamily string `json:"stepFamily"`
	}
	_ = c.ShouldBindJSON(&body)

	s.mu.Lock()
	fn := s.evaluator
	s.mu.Unlock()
	if fn == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "evaluator unavailable"})
		return
	}
	status, payload := fn(c.Param("key"), body.StepFamily)
	c.JSON(status, payload)
}
