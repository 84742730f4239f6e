// ABOUTME: Bridge runs the background stdin reader and the per-id rendezvous
// ABOUTME: that let the engine's blocking Confirm/RequestInput hooks surface
// ABOUTME: prompts to an external UI and resume when it answers.

package tap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nanoagent/swarmcore/swarm/engine"
)

// DefaultTimeout is how long Confirm/RequestInput wait for a UI response
// before giving up — the same 120s default-deny window the blackboard's
// permission-request polling loop uses.
const DefaultTimeout = 120 * time.Second

// Bridge is the coordinator side of one TAP session: it writes engine
// events to an output stream, reads control messages from an input stream,
// and exposes Confirm/RequestInput functions suitable for wiring directly
// into tool.Context or middleware.Turn.
type Bridge struct {
	out io.Writer
	in  io.Reader

	outMu sync.Mutex

	rendezvousMu sync.Mutex
	rendezvous   map[string]chan ControlMessage

	userMessages chan ControlMessage

	abortMu  sync.Mutex
	abortCh  chan struct{}
	closed   chan struct{}
	closeOne sync.Once
}

// New builds a Bridge writing events to out and reading controls from in.
// Call Start to begin the background reader before issuing any
// Confirm/RequestInput call.
func New(out io.Writer, in io.Reader) *Bridge {
	return &Bridge{
		out:          out,
		in:           in,
		rendezvous:   make(map[string]chan ControlMessage),
		userMessages: make(chan ControlMessage, 16),
		abortCh:      make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

// Start launches the background stdin reader and returns at once. The
// reader stops once the input stream reaches EOF or a read error, closing
// UserMessages().
func (b *Bridge) Start() {
	go b.readLoop()
}

func (b *Bridge) readLoop() {
	defer close(b.userMessages)
	scanner := bufio.NewScanner(b.in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg ControlMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg ControlMessage) {
	switch msg.Type {
	case ControlUserMessage:
		select {
		case b.userMessages <- msg:
		case <-b.closed:
		}
	case ControlConfirmResponse, ControlInputResponse:
		b.rendezvousMu.Lock()
		ch, ok := b.rendezvous[msg.ID]
		if ok {
			delete(b.rendezvous, msg.ID)
		}
		b.rendezvousMu.Unlock()
		if ok {
			ch <- msg
		}
	case ControlAbort:
		b.broadcastAbort()
	}
}

// broadcastAbort wakes every pending rendezvous by closing the current
// abort channel and installing a fresh one for subsequent waits.
func (b *Bridge) broadcastAbort() {
	b.abortMu.Lock()
	close(b.abortCh)
	b.abortCh = make(chan struct{})
	b.abortMu.Unlock()
}

func (b *Bridge) currentAbort() chan struct{} {
	b.abortMu.Lock()
	defer b.abortMu.Unlock()
	return b.abortCh
}

// UserMessages returns the channel of incoming user_message controls,
// closed once the input stream ends.
func (b *Bridge) UserMessages() <-chan ControlMessage {
	return b.userMessages
}

// emit writes one JSON event line, flattening extra fields alongside type.
func (b *Bridge) emit(eventType string, fields map[string]any) error {
	obj := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		obj[k] = v
	}
	obj["type"] = eventType
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	b.outMu.Lock()
	defer b.outMu.Unlock()
	if _, err := b.out.Write(append(data, '\n')); err != nil {
		return err
	}
	if f, ok := b.out.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// EmitEngineEvent writes one engine.Event as a TAP event line.
func (b *Bridge) EmitEngineEvent(ev engine.Event) error {
	return b.emit(string(ev.Kind), ev.Data)
}

// Mirror drains an engine's event channel until it closes, emitting each
// as a TAP event. Meant to run in its own goroutine for a session's life.
func (b *Bridge) Mirror(events <-chan engine.Event) {
	for ev := range events {
		_ = b.EmitEngineEvent(ev)
	}
}

// ErrAborted is returned by Confirm/RequestInput when an abort control
// message arrives while the call is waiting on a response.
var ErrAborted = errors.New("tap: aborted")

// Confirm emits a confirm_request event and blocks for a matching
// confirm_response, DefaultTimeout, ctx cancellation, or abort — whichever
// comes first. A timeout is a default-deny, matching the permission
// request store's own polling-timeout convention.
func (b *Bridge) Confirm(ctx context.Context, message string) (bool, error) {
	id := NextID("c")
	ch := b.register(id)
	defer b.unregister(id)

	if err := b.emit("confirm_request", map[string]any{
		"id": id, "kind": "confirmation", "message": message,
	}); err != nil {
		return false, err
	}

	select {
	case resp := <-ch:
		return resp.Approved, nil
	case <-b.currentAbort():
		return false, ErrAborted
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(DefaultTimeout):
		return false, nil
	}
}

// RequestInput emits an input_request event and blocks for a matching
// input_response the same way Confirm does, returning an empty string on
// timeout.
func (b *Bridge) RequestInput(ctx context.Context, question string) (string, error) {
	id := NextID("i")
	ch := b.register(id)
	defer b.unregister(id)

	if err := b.emit("input_request", map[string]any{
		"id": id, "question": question,
	}); err != nil {
		return "", err
	}

	select {
	case resp := <-ch:
		return resp.Text, nil
	case <-b.currentAbort():
		return "", ErrAborted
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(DefaultTimeout):
		return "", nil
	}
}

func (b *Bridge) register(id string) chan ControlMessage {
	ch := make(chan ControlMessage, 1)
	b.rendezvousMu.Lock()
	b.rendezvous[id] = ch
	b.rendezvousMu.Unlock()
	return ch
}

func (b *Bridge) unregister(id string) {
	b.rendezvousMu.Lock()
	delete(b.rendezvous, id)
	b.rendezvousMu.Unlock()
}

// Close signals the reader loop's dispatch to stop blocking on a full
// userMessages channel; it does not close the underlying streams, which
// remain owned by the caller.
func (b *Bridge) Close() {
	b.closeOne.Do(func() { close(b.closed) })
}
