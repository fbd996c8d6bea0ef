package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streamgate/pkg/logging"
	"streamgate/pkg/metrics"
	"streamgate/pkg/types"
)

const tokenBytes = 24

// Service issues opaque tokens for resolved streams and resolves them back
// on playback requests. Why tokens exist at all: the resolved upstream URL
// and its headers must never reach the client, and a URL handed to one
// viewer must not be replayable by another.
type Service struct {
	store Store
	ttl   time.Duration
	log   *logging.Logger
}

// NewService wraps a Store with the issue/resolve policy. ttl bounds how
// long an issued token stays resolvable.
func NewService(store Store, ttl time.Duration, log *logging.Logger) *Service {
	return &Service{store: store, ttl: ttl, log: log.WithComponent("token")}
}

// Issue stores the record under a fresh random token and returns the token.
// The record's ClientIP is the only IP the token will later resolve for.
func (s *Service) Issue(ctx context.Context, record types.TokenRecord) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	record.CreatedAt = time.Now().Unix()
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encoding token record: %w", err)
	}

	if err := s.store.Put(ctx, tok, payload, s.ttl); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(record.Provider).Inc()
	s.log.Debug("token issued",
		"provider", record.Provider,
		"channel", record.ChannelRef,
		"ttl", s.ttl)
	return tok, nil
}

// Resolve returns the record behind a token if, and only if, the caller's
// IP matches the one the token was issued to. Absent, expired and
// wrong-IP tokens all come back as ErrInvalid so a probing caller learns
// nothing from the failure mode.
func (s *Service) Resolve(ctx context.Context, tok, clientIP string) (*types.TokenRecord, error) {
	payload, err := s.store.Get(ctx, tok)
	if errors.Is(err, ErrNotFound) {
		metrics.TokensRejected.WithLabelValues("missing").Inc()
		return nil, ErrInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}

	var record types.TokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		metrics.TokensRejected.WithLabelValues("corrupt").Inc()
		return nil, ErrInvalid
	}

	if record.ClientIP != clientIP {
		metrics.TokensRejected.WithLabelValues("ip_mismatch").Inc()
		s.log.Warn("token presented from wrong address",
			"issued_to", record.ClientIP,
			"presented_by", clientIP)
		return nil, ErrInvalid
	}

	return &record, nil
}
