package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahmetk3436/serverdeck/internal/client"
	"github.com/zalando/go-keyring"
)

const keyringService = "serverdeck"

var errNotLoggedIn = errors.New("not logged in, run `deck login` first")

// session is what login leaves in the system keyring, keyed by API URL.
type session struct {
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func loadSession(api string) (*session, error) {
	raw, err := keyring.Get(keyringService, api)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, errNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keychain: %w", err)
	}
	var s session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, errNotLoggedIn
	}
	return &s, nil
}

func saveSession(api string, s *session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, api, string(raw)); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

func deleteSession(api string) error {
	err := keyring.Delete(keyringService, api)
	if errors.Is(err, keyring.ErrNotFound) {
		return errNotLoggedIn
	}
	return err
}

// authedClient refreshes the stored session and returns a client carrying
// the new access token.
func authedClient(ctx context.Context) (*client.Client, *session, error) {
	s, err := loadSession(apiURL)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(client.Config{BaseURL: apiURL, RequestTimeout: timeout})
	if err != nil {
		return nil, nil, err
	}
	if err := renew(ctx, c, s); err != nil {
		return nil, nil, err
	}
	return c, s, nil
}

func renew(ctx context.Context, c *client.Client, s *session) error {
	tokens, err := c.Refresh(ctx, s.RefreshToken)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == 401 {
		return errNotLoggedIn
	}
	if err != nil {
		return err
	}
	s.AccessToken = tokens.AccessToken
	s.RefreshToken = tokens.RefreshToken
	c.SetToken(s.AccessToken)
	return saveSession(apiURL, s)
}
