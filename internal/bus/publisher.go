package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	logx "rpcextractor/pkg/logx"
)

// SubjectPrefix namespaces all extractor subjects on the shared bus.
const SubjectPrefix = "rpcextractor."

// Subject returns the stable subject for a method's events.
func Subject(method string) string {
	return SubjectPrefix + strings.ToLower(strings.TrimSpace(method))
}

// Event is the envelope published per successful fetch. Payload is the raw
// JSON result of the RPC call, embedded untouched.
type Event struct {
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Conn is the slice of the NATS client the publisher needs; *nats.Conn
// satisfies it.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher wraps successful fetch results into Event envelopes and sends
// them at-most-once: no local retry, no ack wait.
type Publisher struct {
	conn Conn
	log  logx.Logger
	now  func() time.Time
}

func NewPublisher(conn Conn, log logx.Logger) *Publisher {
	return &Publisher{conn: conn, log: log, now: time.Now}
}

func (p *Publisher) Publish(method string, payload []byte) error {
	ev := Event{
		Method:    method,
		Payload:   json.RawMessage(payload),
		Timestamp: p.now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", method, err)
	}

	subject := Subject(method)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Trace("event published", logx.String("subject", subject), logx.Int("bytes", len(data)))
	return nil
}
