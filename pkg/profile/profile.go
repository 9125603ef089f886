// Package profile implements Mojang-style session-server profile
// verification (spec.md §4.4), grounded on
// original_source/src/authlib/{client,session_service,environment,
// auth_service}.rs for the endpoint shape and timeout values.
package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/worldhost/server/pkg/handshake"
	"github.com/worldhost/server/pkg/wtypes"
)

// SessionHost is Mojang's production hasJoined endpoint host, per
// original_source's PROD_ENVIRONMENT.
const SessionHost = "https://sessionserver.mojang.com"

const clientTimeout = 5 * time.Second

// Client implements handshake.Verifier against a Yggdrasil-compatible
// session service.
type Client struct {
	httpClient *http.Client
	checkURL   string
}

// NewClient builds a Client against sessionHost (pass SessionHost for
// production Mojang servers).
func NewClient(sessionHost string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: clientTimeout},
		checkURL:   sessionHost + "/session/minecraft/hasJoined",
	}
}

type hasJoinedResponse struct {
	ID string `json:"id"`
}

// hasJoinedServer calls the session service's hasJoined endpoint.
// Returns (uuid, true, nil) on a match, (uuid.Nil, false, nil) if the
// service responded with "no such player" (HTTP>=400 or empty body),
// and a non-nil error only on transport failure.
func (c *Client) hasJoinedServer(username, serverId string) (uuid.UUID, bool, error) {
	q := url.Values{"username": {username}, "serverId": {serverId}}
	resp, err := c.httpClient.Get(c.checkURL + "?" + q.Encode())
	if err != nil {
		return uuid.Nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return uuid.Nil, false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(body) == 0 {
		return uuid.Nil, false, nil
	}
	var parsed hasJoinedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(parsed.ID)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Verify implements handshake.Verifier per spec.md §4.4.
func (c *Client) Verify(requested wtypes.UserId, username, serverId string) handshake.VerifyResult {
	if requested.Reserved() {
		return handshake.VerifyResult{
			Fatal:   true,
			Message: "Reserved special UUID not allowed.",
		}
	}

	if requested.IsOnline() {
		matched, ok, err := c.hasJoinedServer(username, serverId)
		if err != nil {
			// Transport failure: allow, log by the caller, pretend the
			// requested uuid was confirmed (spec.md §4.4).
			return handshake.VerifyResult{UUID: requested}
		}
		if !ok {
			return handshake.VerifyResult{
				Fatal:   true,
				Message: fmt.Sprintf("Failed to verify username %s with the session service.", username),
			}
		}
		if wtypes.UserId(matched) != requested {
			return handshake.VerifyResult{
				Fatal: true,
				Message: fmt.Sprintf("UUID mismatch: requested %s, session service returned %s.",
					requested.String(), matched.String()),
			}
		}
		return handshake.VerifyResult{UUID: requested}
	}

	offline := wtypes.OfflineUserId(username)
	if offline != requested {
		return handshake.VerifyResult{
			UUID: requested,
			Message: fmt.Sprintf("Offline UUID mismatch: expected %s for username %s, got %s (non-fatal).",
				offline.String(), username, requested.String()),
		}
	}
	return handshake.VerifyResult{UUID: requested}
}
