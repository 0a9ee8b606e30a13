package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/types"
)

// GetPond fetches one pond with its devices. The payload is schema-checked
// since its device list drives the subscriptions.
func (c *Client) GetPond(ctx context.Context, s *auth.Session, id int) (*types.Pond, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/estanques/%d", id)
	data, err := c.do(ctx, s, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := c.validator.ValidatePond(data); err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	var pond types.Pond
	if err := json.Unmarshal(data, &pond); err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrInvalidPayload, path, err)
	}
	return &pond, nil
}

func (c *Client) ListPonds(ctx context.Context, s *auth.Session) ([]types.Pond, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	ponds := make([]types.Pond, 0)
	if err := c.doJSON(ctx, s, http.MethodGet, "/estanques", nil, &ponds); err != nil {
		return nil, err
	}
	return ponds, nil
}

func (c *Client) CreatePond(ctx context.Context, s *auth.Session, p types.NewPond) (*types.Pond, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	var pond types.Pond
	if err := c.doJSON(ctx, s, http.MethodPost, "/estanques", p, &pond); err != nil {
		return nil, err
	}
	return &pond, nil
}

func (c *Client) DeletePond(ctx context.Context, s *auth.Session, id int) error {
	if err := requireSession(s); err != nil {
		return err
	}
	return c.doJSON(ctx, s, http.MethodDelete, fmt.Sprintf("/estanques/%d", id), nil, nil)
}

func (c *Client) ListSpecies(ctx context.Context, s *auth.Session) ([]types.Species, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	species := make([]types.Species, 0)
	if err := c.doJSON(ctx, s, http.MethodGet, "/especies", nil, &species); err != nil {
		return nil, err
	}
	return species, nil
}

func (c *Client) CreateSpecies(ctx context.Context, s *auth.Session, sp types.NewSpecies) (*types.Species, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	var species types.Species
	if err := c.doJSON(ctx, s, http.MethodPost, "/especies", sp, &species); err != nil {
		return nil, err
	}
	return &species, nil
}

// GetProfile returns the user the session belongs to.
func (c *Client) GetProfile(ctx context.Context, s *auth.Session) (*types.Profile, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	var profile types.Profile
	if err := c.doJSON(ctx, s, http.MethodGet, "/usuarios/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile renames the session's user and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, s *auth.Session, u types.ProfileUpdate) (*types.Profile, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	var profile types.Profile
	if err := c.doJSON(ctx, s, http.MethodPatch, "/usuarios/me/name", u, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListAlerts returns every sensor alert the user can see, across ponds.
func (c *Client) ListAlerts(ctx context.Context, s *auth.Session) ([]types.Alert, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	alerts := make([]types.Alert, 0)
	if err := c.doJSON(ctx, s, http.MethodGet, "/alerta", nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ListLogs returns every actuator log line the user can see, across ponds.
func (c *Client) ListLogs(ctx context.Context, s *auth.Session) ([]types.LogEntry, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	logs := make([]types.LogEntry, 0)
	if err := c.doJSON(ctx, s, http.MethodGet, "/log", nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// LoginResult is the backend answer to a login.
type LoginResult struct {
	Token string `json:"token"`
}

func (c *Client) Login(ctx context.Context, creds types.Credentials) (*LoginResult, error) {
	var res LoginResult
	if err := c.doJSON(ctx, nil, http.MethodPost, "/auth/login", creds, &res); err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, fmt.Errorf("%w: login answer has no token", ErrInvalidPayload)
	}
	return &res, nil
}

// Register creates an account. The backend answers 409 when the email is
// taken.
func (c *Client) Register(ctx context.Context, r types.Registration) error {
	return c.doJSON(ctx, nil, http.MethodPost, "/auth/register", r, nil)
}
