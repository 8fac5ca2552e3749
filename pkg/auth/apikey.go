// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"errors"
	"net/http"
)

// HeaderAPIKey carries the relay credential on calls to the upstream API.
const HeaderAPIKey = "X-Api-Key"

// KeyInjector attaches the server-held API key to outbound requests so that
// clients never see it.
type KeyInjector struct {
	key string
}

// NewKeyInjector constructs an injector for the provided credential.
func NewKeyInjector(key string) *KeyInjector {
	return &KeyInjector{key: key}
}

// Attach mutates the request by setting the credential header, replacing any
// value a caller may have supplied.
func (k *KeyInjector) Attach(req *http.Request) error {
	if k.key == "" {
		return errors.New("api key must be set")
	}
	req.Header.Set(HeaderAPIKey, k.key)
	return nil
}

// String keeps the credential out of formatted output.
func (k *KeyInjector) String() string {
	return "KeyInjector{key: [redacted]}"
}
