package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

// rwBuffer joins a read source and a write sink into one stream.
type rwBuffer struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (b *rwBuffer) Read(p []byte) (int, error)  { return b.in.Read(p) }
func (b *rwBuffer) Write(p []byte) (int, error) { return b.out.Write(p) }

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writer := NewFramer(&rwBuffer{in: &bytes.Buffer{}, out: &buf})
	reader := NewFramer(&rwBuffer{in: &buf, out: &bytes.Buffer{}})

	payload := []byte("interax frame payload")
	if err := writer.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
}

func TestFrameEmpty(t *testing.T) {
	f := NewFramer(&rwBuffer{in: &bytes.Buffer{}, out: &bytes.Buffer{}})
	if err := f.WriteFrame(nil); !errors.Is(err, ErrFrameEmpty) {
		t.Errorf("expected ErrFrameEmpty, got %v", err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	f := NewFramerWithMaxSize(&rwBuffer{in: &bytes.Buffer{}, out: &bytes.Buffer{}}, 8)

	if err := f.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge on write, got %v", err)
	}

	// A peer claiming an oversized frame is rejected before allocation
	var buf bytes.Buffer
	writer := NewFramer(&rwBuffer{in: &bytes.Buffer{}, out: &buf})
	if err := writer.WriteFrame(make([]byte, 64)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	reader := NewFramerWithMaxSize(&rwBuffer{in: &buf, out: &bytes.Buffer{}}, 8)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge on read, got %v", err)
	}
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	writer := NewFramer(&rwBuffer{in: &bytes.Buffer{}, out: &buf})
	if err := writer.WriteFrame([]byte("full frame content")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	cut := buf.Bytes()[:buf.Len()-4]
	reader := NewFramer(&rwBuffer{in: bytes.NewBuffer(cut), out: &bytes.Buffer{}})
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}
}

func TestFrameEOF(t *testing.T) {
	reader := NewFramer(&rwBuffer{in: &bytes.Buffer{}, out: &bytes.Buffer{}})
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestConnEnvelopeExchange(t *testing.T) {
	a, b := Loopback(log.NoopLogger{})
	defer a.Close()
	defer b.Close()

	env := &wire.Envelope{
		CorrelationID: 11,
		Source:        "fab-1/2",
		Target:        wire.Target{Endpoint: 1, Cluster: 2, Member: 3},
		Kind:          wire.KindRead,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Send(env) }()

	got, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if sendErr := <-errCh; sendErr != nil {
		t.Fatalf("Send failed: %v", sendErr)
	}

	if got.CorrelationID != 11 || got.Kind != wire.KindRead || got.Target != env.Target {
		t.Errorf("received envelope does not match: %+v", got)
	}

	if a.ID() == b.ID() || a.ID() == "" {
		t.Error("expected distinct non-empty connection ids")
	}
}

func TestConnMalformedEnvelope(t *testing.T) {
	a, b := Loopback(log.NoopLogger{})
	defer a.Close()
	defer b.Close()

	// A well-framed garbage payload must surface as a malformed envelope
	go a.framer.WriteFrame([]byte{0x01, 0x02, 0x03})

	if _, err := b.Receive(); !errors.Is(err, wire.ErrMalformedEnvelope) {
		t.Errorf("expected wire.ErrMalformedEnvelope, got %v", err)
	}
}

type captureLogger struct {
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) { c.events = append(c.events, e) }

func TestFrameLogging(t *testing.T) {
	capture := &captureLogger{}

	var buf bytes.Buffer
	f := NewFramer(&rwBuffer{in: &bytes.Buffer{}, out: &buf})
	f.SetLogger(capture, "conn-1")

	if err := f.WriteFrame([]byte("abc")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	if len(capture.events) != 1 {
		t.Fatalf("expected 1 frame event, got %d", len(capture.events))
	}
	e := capture.events[0]
	if e.ConnectionID != "conn-1" || e.Layer != log.LayerTransport || e.Frame == nil {
		t.Errorf("unexpected frame event: %+v", e)
	}
	if e.Frame.Size != LengthPrefixSize+3 {
		t.Errorf("expected frame size %d, got %d", LengthPrefixSize+3, e.Frame.Size)
	}
}
