// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// ErrInvalidNotification is wrapped by every verification failure of [Receiver.Verify].
var ErrInvalidNotification = errors.New("invalid push notification")

// Receiver is the client side of push delivery: it answers URL verification
// challenges and checks the signature of incoming notifications against the
// sender's published JWK Set.
type Receiver struct {
	jwksURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	keys jwk.Set
}

// ReceiverOption configures a [Receiver].
type ReceiverOption func(*Receiver)

// WithReceiverHTTPClient sets the client the key set is fetched with.
func WithReceiverHTTPClient(client *http.Client) ReceiverOption {
	return func(r *Receiver) {
		r.client = client
	}
}

// WithReceiverLogger sets the logger.
func WithReceiverLogger(logger *slog.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// WithKeySet seeds the receiver with a known key set instead of fetching it.
func WithKeySet(set jwk.Set) ReceiverOption {
	return func(r *Receiver) {
		r.keys = set
	}
}

// NewReceiver returns a [Receiver] trusting the keys published at jwksURL.
func NewReceiver(jwksURL string, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) keySet(ctx context.Context, refresh bool) (jwk.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.keys != nil && !refresh {
		return r.keys, nil
	}
	if r.jwksURL == "" {
		if r.keys != nil {
			return r.keys, nil
		}
		return nil, errors.New("no key set available")
	}
	set, err := jwk.Fetch(ctx, r.jwksURL, jwk.WithHTTPClient(r.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	r.keys = set
	return set, nil
}

// Verify checks the bearer token of req against body: signature by a published
// key, expiry, freshness of the issue time and the body hash claim.
func (r *Receiver) Verify(ctx context.Context, req *http.Request, body []byte) error {
	raw, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return fmt.Errorf("%w: missing bearer token", ErrInvalidNotification)
	}

	tok, err := r.parse(ctx, raw, false)
	if err != nil {
		// the sender may have rotated its key since the set was cached
		tok, err = r.parse(ctx, raw, true)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}

	iat, ok := tok.IssuedAt()
	if !ok || r.now().Sub(iat) > TokenTTL {
		return fmt.Errorf("%w: token is too old", ErrInvalidNotification)
	}

	var want string
	if err := tok.Get(BodyHashClaim, &want); err != nil {
		return fmt.Errorf("%w: missing %s claim", ErrInvalidNotification, BodyHashClaim)
	}
	sum := sha256.Sum256(body)
	if subtle.ConstantTimeCompare([]byte(want), []byte(hex.EncodeToString(sum[:]))) != 1 {
		return fmt.Errorf("%w: request body hash mismatch", ErrInvalidNotification)
	}
	return nil
}

func (r *Receiver) parse(ctx context.Context, raw string, refresh bool) (jwt.Token, error) {
	keys, err := r.keySet(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return jwt.Parse([]byte(raw),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(r.now)),
	)
}

// Handler answers verification challenges on GET and hands verified notification
// bodies to deliver on POST.
func (r *Receiver) Handler(deliver func(ctx context.Context, body []byte) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		switch req.Method {
		case http.MethodGet:
			token := req.URL.Query().Get(ValidationTokenParam)
			if token == "" {
				http.Error(w, "missing "+ValidationTokenParam, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, token)

		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(req.Body, 32<<20))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := r.Verify(ctx, req, body); err != nil {
				r.logger.WarnContext(ctx, "rejected push notification", "error", err)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if err := deliver(ctx, body); err != nil {
				r.logger.ErrorContext(ctx, "failed to handle push notification", "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})
}
