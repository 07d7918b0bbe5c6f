package challenge

import (
	"context"
	"fmt"
	"net"

	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/metrics"
	"github.com/codefionn/tokengate/internal/wire"
)

// Issuer answers an identifier frame with a token frame.
type Issuer struct {
	sealer    Sealer
	maxIDSize int
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewIssuer creates an Issuer. maxIDSize <= 0 selects consts.MaxIDSize.
func NewIssuer(sealer Sealer, maxIDSize int, m *metrics.Metrics) *Issuer {
	if maxIDSize <= 0 {
		maxIDSize = consts.MaxIDSize
	}
	if m == nil {
		m = metrics.New()
	}
	return &Issuer{
		sealer:    sealer,
		maxIDSize: maxIDSize,
		metrics:   m,
		log:       logger.Global().WithPrefix("issuer"),
	}
}

// ServeConn reads one identifier, writes its token and closes conn. On any
// failure the connection is closed without a reply.
func (i *Issuer) ServeConn(_ context.Context, conn net.Conn) error {
	defer conn.Close()

	if err := i.issue(conn); err != nil {
		i.metrics.IssueFailures.Inc()
		return err
	}
	i.metrics.TokensIssued.Inc()
	return nil
}

func (i *Issuer) issue(conn net.Conn) error {
	id, err := wire.ReadFrame(conn, i.maxIDSize)
	if err != nil {
		return fmt.Errorf("read identifier: %w", err)
	}
	if len(id) == 0 {
		return ErrEmptyID
	}

	token, err := i.sealer.Encrypt(id)
	if err != nil {
		return fmt.Errorf("seal identifier: %w", err)
	}

	if err := wire.WriteFrame(conn, token); err != nil {
		return fmt.Errorf("send token: %w", err)
	}
	i.log.Debug("Issued token for id=%s to %s", logger.Fingerprint(id), remoteString(conn))
	return nil
}
