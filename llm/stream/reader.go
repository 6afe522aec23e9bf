package stream

import (
	"io"

	"github.com/lumik/llmwire/llm/schema"
)

const readChunkSize = 4096

// Reader adapts the push-style Session to a pull-style event stream over
// a live response body. Recv reads body chunks on demand, feeds the
// session and replays the queued events one at a time; everything runs on
// the caller's goroutine.
type Reader struct {
	body io.ReadCloser
	sess *Session

	queue []Event
	buf   [readChunkSize]byte

	messages []schema.Message
	done     bool
	err      error
	closed   bool
}

// NewReader builds a Session for the given dialect whose events are
// consumed through Recv.
func NewReader(d Dialect, body io.ReadCloser, opts ...SessionOption) (*Reader, error) {
	r := &Reader{body: body}
	sess, err := NewSession(d, r.enqueue, opts...)
	if err != nil {
		return nil, err
	}
	r.sess = sess
	return r, nil
}

func (r *Reader) enqueue(ev Event) error {
	r.queue = append(r.queue, ev)
	return nil
}

// Recv returns the next event, io.EOF after the stream finished normally,
// or the session's terminal error.
func (r *Reader) Recv() (Event, error) {
	for {
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			return ev, nil
		}
		if r.done {
			if r.err != nil {
				return Event{}, r.err
			}
			return Event{}, io.EOF
		}

		n, err := r.body.Read(r.buf[:])
		if n > 0 {
			if ferr := r.sess.Feed(r.buf[:n]); ferr != nil {
				r.done = true
				r.err = ferr
				continue // drain events queued before the failure
			}
		}
		if err == nil {
			continue
		}
		r.done = true
		if err == io.EOF {
			msgs, eerr := r.sess.End()
			if eerr != nil {
				r.err = eerr
				continue
			}
			r.messages = msgs
			continue // leniency finalizations may have queued events
		}
		r.err = r.sess.Fail(err)
	}
}

// Messages returns the finalized messages once Recv has reported io.EOF.
func (r *Reader) Messages() []schema.Message {
	return r.messages
}

// Usage returns token usage reported on the stream so far, or nil.
func (r *Reader) Usage() *schema.Usage {
	return r.sess.Usage()
}

func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}
