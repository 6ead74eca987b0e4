package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant/sse"
)

const (
	// historyLimit bounds the recent-history slice sent with each
	// message.
	historyLimit = 10

	readBufferSize = 4096
)

var (
	// ErrStreamInFlight is returned when Send is called while a stream
	// is still being applied. The state machine does not multiplex two
	// concurrent streams into one message, so the caller must wait or
	// cancel first.
	ErrStreamInFlight = errors.New("a message is already streaming for this session")

	// ErrStreamTruncated is returned when the response body ends before
	// a done event.
	ErrStreamTruncated = errors.New("assistant stream ended before completion")
)

// ChatRequest is the POST body sent to the assistant service. The
// response to it is the event stream.
type ChatRequest struct {
	Message        string    `json:"message"`
	ConversationID string    `json:"conversation_id,omitempty"`
	History        []Message `json:"history,omitempty"`
	Context        string    `json:"context,omitempty"`
	PageContext    string    `json:"page_context,omitempty"`
	Starter        string    `json:"starter,omitempty"`
}

// Transport opens the assistant stream. The returned body delivers the
// wire-format bytes in order; the transport maps non-OK statuses and
// missing bodies to errors before returning.
type Transport interface {
	OpenStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// ControllerConfig wires a Controller's collaborators.
type ControllerConfig struct {
	Transport Transport
	Notifier  *MutationNotifier
	// Context is free-form background sent with every message.
	Context string
	// PageContext describes what the user is currently looking at.
	PageContext string
	// OnEvent, when set, observes every applied event in order. The
	// relay handler uses it to forward the stream to the browser.
	OnEvent func(sse.Event)
	Log     *logrus.Entry
}

// Controller drives one session's exchanges: it sends the user's message,
// reads the response stream chunk by chunk, applies events to the
// session, and guarantees rollback on cancellation or stream failure.
// A session holds at most one outstanding stream at a time.
type Controller struct {
	session   *Session
	transport Transport
	notifier  *MutationNotifier
	chatCtx   string
	onEvent   func(sse.Event)
	log       *logrus.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	starter string
	pageCtx string
}

// NewController creates a controller for the session.
func NewController(s *Session, cfg ControllerConfig) *Controller {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		session:   s,
		transport: cfg.Transport,
		notifier:  cfg.Notifier,
		chatCtx:   cfg.Context,
		pageCtx:   cfg.PageContext,
		onEvent:   cfg.OnEvent,
		log:       log,
	}
}

// SetPageContext updates what the user is currently looking at; it rides
// along on subsequent sends.
func (c *Controller) SetPageContext(pageContext string) {
	c.mu.Lock()
	c.pageCtx = pageContext
	c.mu.Unlock()
}

// Session returns the controller's session.
func (c *Controller) Session() *Session {
	return c.session
}

// SetStarter stores a one-shot conversation starter hint. It rides along
// on the next Send only and is cleared as soon as it has been sent.
func (c *Controller) SetStarter(starter string) {
	c.mu.Lock()
	c.starter = starter
	c.mu.Unlock()
}

// Cancel aborts the in-flight stream, if any. The read loop observes the
// abort, stops reading, and rolls the placeholder back.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send posts the user's message and applies the response stream until a
// done event. It blocks for the life of the stream and returns nil only
// after the assistant message was finalized. On cancellation or any
// stream-level failure the placeholder assistant message is rolled back
// and an error is returned; the user message stays in history.
func (c *Controller) Send(ctx context.Context, text string) error {
	history := c.session.RecentHistory(historyLimit)

	if !c.session.beginExchange(text) {
		return ErrStreamInFlight
	}

	req := ChatRequest{
		Message:        text,
		ConversationID: c.session.ConversationID(),
		History:        history,
		Context:        c.chatCtx,
		PageContext:    c.pageCtx,
	}

	c.mu.Lock()
	req.Starter = c.starter
	c.starter = ""
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	body, err := c.transport.OpenStream(streamCtx, req)
	if err != nil {
		c.session.rollback()
		return fmt.Errorf("opening assistant stream: %w", err)
	}
	defer body.Close()

	return c.readStream(streamCtx, body)
}

// readStream pumps the response body through the decoder and parser,
// applying events in the exact order frames complete.
func (c *Controller) readStream(ctx context.Context, body io.Reader) error {
	decoder := sse.NewDecoder()
	parser := sse.NewParser(c.log)
	buf := make([]byte, readBufferSize)

	for {
		// On abort, stop issuing reads instead of draining what is
		// left in the socket.
		if err := ctx.Err(); err != nil {
			c.session.rollback()
			return fmt.Errorf("assistant stream cancelled: %w", err)
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Feed(buf[:n]) {
				event := parser.Parse(frame)
				if event == nil {
					continue
				}
				if event.Type == sse.EventError {
					// An in-band error is a normal failure path,
					// handled exactly like a transport drop.
					c.session.rollback()
					c.emit(*event)
					return fmt.Errorf("assistant reported error: %s", event.Message)
				}

				call := c.session.apply(event)
				if call != nil && c.notifier != nil {
					c.notifier.Observe(*call)
				}
				c.emit(*event)

				if event.Type == sse.EventDone {
					return nil
				}
			}
		}

		if readErr != nil {
			c.session.rollback()
			if errors.Is(readErr, io.EOF) {
				return ErrStreamTruncated
			}
			return fmt.Errorf("reading assistant stream: %w", readErr)
		}
	}
}

func (c *Controller) emit(event sse.Event) {
	if c.onEvent != nil {
		c.onEvent(event)
	}
}
