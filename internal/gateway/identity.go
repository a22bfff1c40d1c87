package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// UserStanding is the identity service's answer about a user's account
// state. A user is inactive when banned or soft-deleted.
type UserStanding struct {
	Banned    bool       `json:"banned"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the user may participate in hirings.
func (s UserStanding) Active() bool { return !s.Banned && s.DeletedAt == nil }

// IdentityService is the user/identity collaborator consulted before quote,
// requote, and hire actions.
type IdentityService interface {
	IsUserActive(ctx context.Context, userID string) (UserStanding, error)
	IsUserVerified(ctx context.Context, userID string) (bool, error)
}

// HTTPIdentityService calls the identity service over REST.
type HTTPIdentityService struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPIdentityService builds an identity client with a hard per-call
// timeout.
func NewHTTPIdentityService(baseURL string, timeout time.Duration) *HTTPIdentityService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPIdentityService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// IsUserActive implements IdentityService.
func (s *HTTPIdentityService) IsUserActive(ctx context.Context, userID string) (UserStanding, error) {
	var standing UserStanding
	if err := s.getJSON(ctx, "/v1/users/"+userID+"/standing", &standing); err != nil {
		return UserStanding{}, err
	}
	return standing, nil
}

// IsUserVerified implements IdentityService.
func (s *HTTPIdentityService) IsUserVerified(ctx context.Context, userID string) (bool, error) {
	var out struct {
		Verified bool `json:"verified"`
	}
	if err := s.getJSON(ctx, "/v1/users/"+userID+"/verification", &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

func (s *HTTPIdentityService) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("identity: %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
