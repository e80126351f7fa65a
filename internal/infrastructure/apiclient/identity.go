package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// Identity endpoints. Authentication is cookie-based: a successful sign-up or
// sign-in sets the session cookie on the session's jar and every later call
// carries it. Sign-up and session fetch run during run bootstrap before any
// step scope opens, so they are never traced; membership invites happen
// inside steps and record into the step's sink.

// SignUp registers a new account and establishes the session.
func (s *Session) SignUp(ctx context.Context, email, password, displayName string) error {
	resp, err := s.Do(ctx, nil, http.MethodPost, "/auth/sign-up", map[string]any{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("sign-up for %s returned %d: %s", email, resp.Status, resp.Body)
	}
	return nil
}

// FetchSession returns the current session principal, or an error when the
// session cookie is missing or stale.
func (s *Session) FetchSession(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	resp, err := s.DoJSON(ctx, nil, http.MethodGet, "/auth/session", nil, &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("session fetch returned %d", resp.Status)
	}
	return out, nil
}

// InviteMember invites an email to a biz's membership and returns the invite
// token the invitee accepts with.
func (s *Session) InviteMember(ctx context.Context, sink saga.Sink, bizID, email, role string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	resp, err := s.DoJSON(ctx, sink, http.MethodPost, "/bizes/"+bizID+"/members/invites", map[string]any{
		"email": email,
		"role":  role,
	}, &out)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("member invite returned %d: %s", resp.Status, resp.Body)
	}
	if out.Token == "" {
		return "", fmt.Errorf("member invite returned no token")
	}
	return out.Token, nil
}

// AcceptInvite accepts a membership invite as the session's actor.
func (s *Session) AcceptInvite(ctx context.Context, sink saga.Sink, token string) error {
	resp, err := s.Do(ctx, sink, http.MethodPost, "/members/invites/"+token+"/accept", nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("invite accept returned %d: %s", resp.Status, resp.Body)
	}
	return nil
}
