package challenge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/keystore"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/metrics"
	"github.com/codefionn/tokengate/internal/securemem"
	"github.com/codefionn/tokengate/internal/wire"
)

// ValidatorConfig holds the tunables of a Validator.
type ValidatorConfig struct {
	// MaxFrameSize bounds the submission frame; <= 0 selects consts.MaxFrameSize.
	MaxFrameSize int
	// TokenTTL rejects tokens older than this; zero accepts tokens of any age.
	TokenTTL time.Duration
}

// Validator checks submissions and appends accepted messages to the log.
// It never writes to the connection.
type Validator struct {
	opener   Opener
	messages MessageAppender
	cfg      ValidatorConfig
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewValidator creates a Validator.
func NewValidator(opener Opener, messages MessageAppender, cfg ValidatorConfig, m *metrics.Metrics) *Validator {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = consts.MaxFrameSize
	}
	if m == nil {
		m = metrics.New()
	}
	return &Validator{
		opener:   opener,
		messages: messages,
		cfg:      cfg,
		metrics:  m,
		log:      logger.Global().WithPrefix("validator"),
		now:      time.Now,
	}
}

// ServeConn reads one submission, records its message if the token matches and
// closes conn. The client is told nothing either way.
func (v *Validator) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	result, err := v.validate(ctx, conn)
	v.metrics.ValidationsTotal.WithLabelValues(result).Inc()
	return err
}

func (v *Validator) validate(ctx context.Context, conn net.Conn) (string, error) {
	frame, err := wire.ReadFrame(conn, v.cfg.MaxFrameSize)
	if err != nil {
		return metrics.ResultMalformed, fmt.Errorf("read submission: %w", err)
	}
	sub, err := wire.DecodeSubmission(frame)
	if err != nil {
		return metrics.ResultMalformed, err
	}

	plain, err := v.opener.DecryptWithTTL(sub.Token, v.cfg.TokenTTL, v.now())
	if err != nil {
		if errors.Is(err, keystore.ErrTokenExpired) || errors.Is(err, keystore.ErrTokenFuture) {
			return metrics.ResultExpired, err
		}
		return metrics.ResultDecrypt, err
	}

	matched := subtle.ConstantTimeCompare(plain, sub.ID) == 1
	securemem.SecureWipe(plain)
	if !matched {
		return metrics.ResultMismatch, ErrMismatch
	}

	remote := remoteString(conn)
	if err := v.messages.Append(ctx, sub.Message, remote); err != nil {
		v.log.Error("Failed to record validated message from %s: %v", remote, err)
		return metrics.ResultLogError, fmt.Errorf("record message: %w", err)
	}
	v.log.Debug("Accepted submission for id=%s from %s", logger.Fingerprint(sub.ID), remote)
	return metrics.ResultAccepted, nil
}
