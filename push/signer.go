// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package push delivers task updates to client-registered callback URLs.
//
// Every notification is signed with a process-lifetime ECDSA key. The public half
// of that key is published as a JWK Set so receivers can check that a notification
// came from the agent and that its body was not altered.
package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	// BodyHashClaim is the private claim carrying the hex SHA-256 of the notification body.
	BodyHashClaim = "request_body_sha256"

	// TokenTTL is how long a signed notification stays valid.
	TokenTTL = 5 * time.Minute
)

// Signer holds the signing key of the process.
type Signer struct {
	key    jwk.Key
	public jwk.Set
	now    func() time.Time
}

// NewSigner generates a fresh P-256 key with a random key id.
func NewSigner() (*Signer, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	key, err := jwk.Import(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import private key: %w", err)
	}
	for name, value := range map[string]any{
		jwk.KeyIDKey:     uuid.NewString(),
		jwk.AlgorithmKey: jwa.ES256(),
		jwk.KeyUsageKey:  "sig",
	} {
		if err := key.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", name, err)
		}
	}

	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, fmt.Errorf("failed to build key set: %w", err)
	}

	return &Signer{
		key:    key,
		public: set,
		now:    time.Now,
	}, nil
}

// KeyID returns the id of the signing key.
func (s *Signer) KeyID() string {
	kid, _ := s.key.KeyID()
	return kid
}

// PublicKeySet returns the JWK Set holding the public signing key.
func (s *Signer) PublicKeySet() jwk.Set {
	return s.public
}

// Sign returns a compact JWT binding body to the signing key.
func (s *Signer) Sign(body []byte) (string, error) {
	sum := sha256.Sum256(body)
	iat := s.now()

	tok, err := jwt.NewBuilder().
		IssuedAt(iat).
		Expiration(iat.Add(TokenTTL)).
		Claim(BodyHashClaim, hex.EncodeToString(sum[:])).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256(), s.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// JWKSHandler serves the public key set.
func (s *Signer) JWKSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.MarshalWrite(w, s.public); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
