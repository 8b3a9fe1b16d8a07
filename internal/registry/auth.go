package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// A bearer-token challenge parsed from a Www-Authenticate header.
type challenge struct {
	realm   string
	service string
}

// Parses a Www-Authenticate bearer challenge.
//
// The header looks like:
//
//	Bearer realm="https://auth.docker.io/token",service="registry.docker.io"
//
// Only the realm is required; registries without a service parameter issue
// anonymous tokens from the realm alone.
func parseChallenge(header string) (challenge, error) {
	scheme, params, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return challenge{}, fmt.Errorf("unsupported auth scheme in challenge %q", header)
	}

	var ch challenge
	for _, part := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "realm":
			ch.realm = value
		case "service":
			ch.service = value
		}
	}

	if ch.realm == "" {
		return challenge{}, fmt.Errorf("challenge %q has no realm", header)
	}
	return ch, nil
}

// Exchanges a challenge for a pull token scoped to the repository.
//
// The token is cached per repository, so repeated manifest and blob requests
// within one pull reuse a single exchange.
func (c *Client) token(ctx context.Context, ch challenge, repo string) (string, error) {
	c.mu.Lock()
	if token, ok := c.tokens[repo]; ok {
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("scope", fmt.Sprintf("repository:%s:pull", repo))
	if ch.service != "" {
		req.SetQueryParam("service", ch.service)
	}

	resp, err := req.Get(ch.realm)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != 200 {
		return "", &Error{StatusCode: resp.StatusCode(), Message: "token exchange failed"}
	}

	var payload struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	token := payload.Token
	if token == "" {
		token = payload.AccessToken
	}
	if token == "" {
		return "", &Error{StatusCode: resp.StatusCode(), Message: "token response contained no token"}
	}

	c.mu.Lock()
	c.tokens[repo] = token
	c.mu.Unlock()

	return token, nil
}
