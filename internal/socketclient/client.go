package socketclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/wire"
	"github.com/google/uuid"
)

// State is the position of a Requester in the exchange.
type State int

const (
	// StateInit is before an identifier exists
	StateInit State = iota
	// StateAwaitToken is while the issuing port is being asked for a token
	StateAwaitToken
	// StateAwaitAck is while the submission is being sent
	StateAwaitAck
	// StateDone means the submission was sent
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitToken:
		return "await_token"
	case StateAwaitAck:
		return "await_ack"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ErrAlreadyRun is returned when Run is called twice on one Requester.
var ErrAlreadyRun = errors.New("requester already ran")

// Config holds client configuration
type Config struct {
	// Host is the server address both ports live on
	Host string
	// IssuePort hands out tokens
	IssuePort int
	// ValidatePort accepts submissions
	ValidatePort int
	// Message is the payload submitted with the token
	Message string
	// ConnectTimeout bounds each dial
	ConnectTimeout time.Duration
	// IOTimeout bounds the exchange on each connection; zero disables it
	IOTimeout time.Duration
	// MaxTokenSize caps the token frame read from the issuing port
	MaxTokenSize int
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:           consts.DefaultHost,
		IssuePort:      consts.DefaultIssuePort,
		ValidatePort:   consts.DefaultValidatePort,
		Message:        consts.DefaultClientMessage,
		ConnectTimeout: consts.Timeout10Seconds,
		IOTimeout:      consts.Timeout10Seconds,
		MaxTokenSize:   consts.MaxFrameSize,
	}
}

// Requester runs one exchange against a server.
type Requester struct {
	config *Config
	dialer net.Dialer
	log    *logger.Logger

	state atomic.Int32 // State
	id    []byte

	mu                   sync.Mutex
	stateChangedCallback func(State)
	newID                func() ([]byte, error)
}

// NewRequester creates a Requester from config.
func NewRequester(config *Config) (*Requester, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Host == "" {
		return nil, errors.New("host is required")
	}
	if config.IssuePort <= 0 || config.ValidatePort <= 0 {
		return nil, fmt.Errorf("invalid ports %d/%d", config.IssuePort, config.ValidatePort)
	}
	if config.Message == "" {
		return nil, errors.New("message must not be empty")
	}
	if config.MaxTokenSize <= 0 {
		config.MaxTokenSize = consts.MaxFrameSize
	}

	r := &Requester{
		config: config,
		dialer: net.Dialer{Timeout: config.ConnectTimeout},
		log:    logger.Global().WithPrefix("client"),
		newID:  newCorrelationID,
	}
	r.state.Store(int32(StateInit))
	return r, nil
}

func newCorrelationID() ([]byte, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate correlation id: %w", err)
	}
	return []byte(id.String()), nil
}

// SetStateChangedCallback registers fn to observe every state transition.
func (r *Requester) SetStateChangedCallback(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateChangedCallback = fn
}

// GetState returns the current state.
func (r *Requester) GetState() State {
	return State(r.state.Load())
}

func (r *Requester) setState(state State) {
	r.state.Store(int32(state))
	r.log.Debug("State: %s", state)

	r.mu.Lock()
	fn := r.stateChangedCallback
	r.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// ID returns the correlation identifier once Run has generated it.
func (r *Requester) ID() []byte {
	return r.id
}

// Run performs the full exchange once.
func (r *Requester) Run(ctx context.Context) error {
	if r.GetState() != StateInit || r.id != nil {
		return ErrAlreadyRun
	}

	id, err := r.newID()
	if err != nil {
		return err
	}
	r.id = id
	r.log.Info("Generated correlation id %s", logger.Fingerprint(id))

	r.setState(StateAwaitToken)
	token, err := r.RequestToken(ctx, id)
	if err != nil {
		return err
	}
	r.log.Info("Received token (%d bytes)", len(token))

	r.setState(StateAwaitAck)
	if err := r.Submit(ctx, id, token, []byte(r.config.Message)); err != nil {
		return err
	}

	r.setState(StateDone)
	r.log.Info("Submission sent")
	return nil
}

// RequestToken asks the issuing port for a token bound to id.
func (r *Requester) RequestToken(ctx context.Context, id []byte) ([]byte, error) {
	conn, err := r.dial(ctx, r.config.IssuePort)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, id); err != nil {
		return nil, fmt.Errorf("failed to send correlation id: %w", err)
	}
	token, err := wire.ReadFrame(conn, r.config.MaxTokenSize)
	if err != nil {
		return nil, fmt.Errorf("failed to receive token: %w", err)
	}
	if len(token) == 0 {
		return nil, fmt.Errorf("failed to receive token: %w", wire.ErrEmptyField)
	}
	return token, nil
}

// Submit sends one submission to the validating port. The server sends
// nothing back, so success only means the bytes were written.
func (r *Requester) Submit(ctx context.Context, id, token, message []byte) error {
	payload, err := wire.EncodeSubmission(wire.Submission{ID: id, Token: token, Message: message})
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	conn, err := r.dial(ctx, r.config.ValidatePort)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("failed to send submission: %w", err)
	}
	return nil
}

func (r *Requester) dial(ctx context.Context, port int) (net.Conn, error) {
	addr := net.JoinHostPort(r.config.Host, strconv.Itoa(port))
	conn, err := r.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if r.config.IOTimeout > 0 {
		deadline := time.Now().Add(r.config.IOTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}
	return conn, nil
}
