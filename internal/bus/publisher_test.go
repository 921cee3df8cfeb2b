package bus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	logx "rpcextractor/pkg/logx"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestSubjectNaming(t *testing.T) {
	t.Parallel()
	tests := []struct {
		method string
		want   string
	}{
		{"uptime", "rpcextractor.uptime"},
		{"getchaintxstats", "rpcextractor.getchaintxstats"},
		{"GetPeerInfo", "rpcextractor.getpeerinfo"},
		{"  uptime  ", "rpcextractor.uptime"},
	}
	for _, tt := range tests {
		if got := Subject(tt.method); got != tt.want {
			t.Fatalf("Subject(%q) = %q, want %q", tt.method, got, tt.want)
		}
	}
}

func TestPublishEnvelope(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	p := NewPublisher(conn, logx.Nop())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	payload := []byte(`{"connections":8,"version":290000}`)
	if err := p.Publish("getnetworkinfo", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(conn.subjects) != 1 || conn.subjects[0] != "rpcextractor.getnetworkinfo" {
		t.Fatalf("subjects = %v", conn.subjects)
	}

	var ev Event
	if err := json.Unmarshal(conn.payloads[0], &ev); err != nil {
		t.Fatalf("envelope not valid JSON: %v", err)
	}
	if ev.Method != "getnetworkinfo" {
		t.Fatalf("method = %q", ev.Method)
	}
	if string(ev.Payload) != string(payload) {
		t.Fatalf("payload = %s, want %s", ev.Payload, payload)
	}
	if !ev.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v", ev.Timestamp, fixed)
	}
}

func TestPublishError(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{err: errors.New("connection closed")}
	p := NewPublisher(conn, logx.Nop())

	err := p.Publish("uptime", []byte(`1`))
	if err == nil {
		t.Fatal("expected error from failed publish")
	}
	if !errors.Is(err, conn.err) {
		t.Fatalf("error %v does not wrap the conn error", err)
	}
}
