package pipeline

import (
	"bytes"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/sink"
	"github.com/ValentinKolb/dStream/stream/transport/tcp"
	"github.com/ValentinKolb/dStream/stream/transport/unix"
)

const waitTimeout = 2 * time.Second

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// recorder collects status reports
type recorder struct {
	ch chan common.Status
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan common.Status, 100)}
}

func (r *recorder) Report(status common.Status) {
	r.ch <- status
}

// waitFor skips reports until one with the given event arrives
func (r *recorder) waitFor(t *testing.T, event common.Event) common.Status {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case status := <-r.ch:
			if status.Event == event {
				return status
			}
		case <-deadline:
			t.Fatalf("Timeout waiting for status %s", event)
		}
	}
}

// events drains all reports received so far
func (r *recorder) events() []common.Event {
	var events []common.Event
	for {
		select {
		case status := <-r.ch:
			events = append(events, status.Event)
		default:
			return events
		}
	}
}

// chanSink forwards every payload to a channel
type chanSink struct {
	ch chan []byte
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan []byte, 100)}
}

func (s *chanSink) SetLatestPayload(payload []byte) error {
	s.ch <- payload
	return nil
}

func (s *chanSink) next(t *testing.T) []byte {
	t.Helper()
	select {
	case payload := <-s.ch:
		return payload
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for payload")
		return nil
	}
}

func testConfig() common.PipelineConfig {
	config := common.DefaultPipelineConfig()
	config.Name = "test"
	config.Endpoint = "127.0.0.1:0"
	return config
}

func startPipeline(t *testing.T, s sink.ISink, reporter IStatusReporter) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testConfig(), tcp.NewListenConnector(), s, reporter)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

// connect dials the pipeline and consumes the handshake
func connect(t *testing.T, p *Pipeline) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout(p.Addr().Network(), p.Addr().String(), waitTimeout)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Failed to read handshake: %v", err)
	}
	if buf[0] != common.DefaultHandshake {
		t.Fatalf("Expected handshake %q, got %q", common.DefaultHandshake, buf[0])
	}
	conn.SetReadDeadline(time.Time{})
	return conn
}

func send(t *testing.T, conn net.Conn, data string) {
	t.Helper()
	if _, err := conn.Write([]byte(data)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

// waitUntil polls cond until it holds
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitPuts waits until the network worker stored n frames
func waitPuts(t *testing.T, p *Pipeline, n int64) {
	t.Helper()
	waitUntil(t, "frames in slot", func() bool { return p.slot.Stats().Puts >= n })
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestFramesReachSink(t *testing.T) {
	s := newChanSink()
	rec := newRecorder()
	p := startPipeline(t, s, rec)

	rec.waitFor(t, common.EventListening)
	if p.State() != common.StateListening {
		t.Errorf("Expected state listening, got %s", p.State())
	}

	conn := connect(t, p)
	connected := rec.waitFor(t, common.EventConnected)
	if connected.Session == "" {
		t.Error("Expected a session id")
	}
	if connected.State != common.StateConnected {
		t.Errorf("Expected state connected in status, got %s", connected.State)
	}

	send(t, conn, "\x01\x02a")
	if got := s.next(t); !bytes.Equal(got, []byte("\x01\x02a")) {
		t.Errorf("Expected %q, got %q", "\x01\x02a", got)
	}

	send(t, conn, "\x03a")
	if got := s.next(t); !bytes.Equal(got, []byte("\x03a")) {
		t.Errorf("Expected %q, got %q", "\x03a", got)
	}

	stats := p.Stats()
	if stats.Frames.Received != 2 || stats.Connections != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestSlowConsumerGetsLatestFrame(t *testing.T) {
	entered := make(chan []byte, 10)
	release := make(chan struct{})
	var once sync.Once

	s := sink.FuncSink(func(payload []byte) error {
		entered <- payload
		// block on the first payload only
		once.Do(func() { <-release })
		return nil
	})

	p := startPipeline(t, s, nil)
	conn := connect(t, p)

	send(t, conn, "frame0 a")
	select {
	case got := <-entered:
		if string(got) != "frame0 a" {
			t.Fatalf("Expected frame0, got %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Sink was not called")
	}

	// the consumer is busy, both frames go to the slot, frame1 is replaced
	send(t, conn, "frame1 a")
	waitPuts(t, p, 2)
	send(t, conn, "frame2 a")
	waitPuts(t, p, 3)

	close(release)

	select {
	case got := <-entered:
		if string(got) != "frame2 a" {
			t.Errorf("Expected the latest frame, got %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Sink was not called after release")
	}

	select {
	case got := <-entered:
		t.Errorf("Dropped frame was delivered: %q", got)
	case <-time.After(50 * time.Millisecond):
	}

	if drops := p.Stats().Slot.Drops; drops != 1 {
		t.Errorf("Expected 1 drop, got %d", drops)
	}
}

func TestPeerStopReturnsToListening(t *testing.T) {
	s := newChanSink()
	rec := newRecorder()
	p := startPipeline(t, s, rec)

	conn := connect(t, p)
	send(t, conn, "first a")
	s.next(t)

	send(t, conn, "z")
	stopped := rec.waitFor(t, common.EventPeerStopped)
	if stopped.State != common.StateListening {
		t.Errorf("Expected state listening after peer stop, got %s", stopped.State)
	}

	// the server closes its side
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected the connection to be closed by the server")
	}

	// a new producer is served by the same consumer
	conn2 := connect(t, p)
	send(t, conn2, "second a")
	if got := s.next(t); string(got) != "second a" {
		t.Errorf("Expected %q, got %q", "second a", got)
	}
	if p.Stats().Connections != 2 {
		t.Errorf("Expected 2 connections, got %d", p.Stats().Connections)
	}
}

func TestStopByteDiscardsPartialFrame(t *testing.T) {
	s := newChanSink()
	rec := newRecorder()
	p := startPipeline(t, s, rec)

	conn := connect(t, p)
	send(t, conn, "partial")
	time.Sleep(10 * time.Millisecond)
	send(t, conn, "data a z")

	rec.waitFor(t, common.EventPeerStopped)

	select {
	case got := <-s.ch:
		t.Errorf("No payload expected, got %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectionLostReturnsToListening(t *testing.T) {
	s := newChanSink()
	rec := newRecorder()
	p := startPipeline(t, s, rec)

	conn := connect(t, p)
	send(t, conn, "one a")
	s.next(t)
	send(t, conn, "incomplete")
	conn.Close()

	lost := rec.waitFor(t, common.EventConnectionLost)
	if lost.State != common.StateListening {
		t.Errorf("Expected state listening, got %s", lost.State)
	}

	conn2 := connect(t, p)
	send(t, conn2, "two a")
	if got := s.next(t); string(got) != "two a" {
		t.Errorf("Expected %q, got %q", "two a", got)
	}
}

func TestFrameTooLarge(t *testing.T) {
	config := testConfig()
	config.MaxFrameSize = 16

	rec := newRecorder()
	p, err := NewPipeline(config, tcp.NewListenConnector(), newChanSink(), rec)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	conn := connect(t, p)
	send(t, conn, strings.Repeat("x", 64))

	lost := rec.waitFor(t, common.EventConnectionLost)
	if !strings.Contains(lost.Message, "Too Large") {
		t.Errorf("Unexpected message %q", lost.Message)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rec := newRecorder()
	p := startPipeline(t, newChanSink(), rec)
	connect(t, p)
	rec.waitFor(t, common.EventConnected)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}
	wg.Wait()
	p.Stop()

	if p.State() != common.StateStopped {
		t.Errorf("Expected state stopped, got %s", p.State())
	}
	if p.Err() != nil {
		t.Errorf("Expected no error after Stop, got %v", p.Err())
	}

	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed")
	}

	// our own close must not be reported as a lost connection
	events := rec.events()
	for _, e := range events {
		if e == common.EventConnectionLost {
			t.Errorf("Unexpected connection lost report: %v", events)
		}
	}
	if len(events) == 0 || events[len(events)-1] != common.EventClosed {
		t.Errorf("Expected closed as last event, got %v", events)
	}

	if err := p.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestStopClosesProducer(t *testing.T) {
	p := startPipeline(t, newChanSink(), nil)
	conn := connect(t, p)

	p.Stop()

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected the producer connection to be closed")
	}
	if p.Addr() != nil {
		t.Error("Expected no address after Stop")
	}
}

func TestStopIdlePipeline(t *testing.T) {
	rec := newRecorder()
	p, err := NewPipeline(testConfig(), tcp.NewListenConnector(), newChanSink(), rec)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	p.Stop()
	if p.State() != common.StateStopped {
		t.Errorf("Expected state stopped, got %s", p.State())
	}

	// the Closed report is delivered before Stop returns
	events := rec.events()
	if len(events) != 1 || events[0] != common.EventClosed {
		t.Errorf("Expected [%s], got %v", common.EventClosed, events)
	}
	if err := p.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	p := startPipeline(t, newChanSink(), nil)
	if err := p.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
}

func TestBindError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer occupied.Close()

	config := testConfig()
	config.Endpoint = occupied.Addr().String()

	p, err := NewPipeline(config, tcp.NewListenConnector(), newChanSink(), nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	defer p.Stop()

	err = p.Start()
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Expected *BindError, got %v", err)
	}
	if bindErr.Endpoint != config.Endpoint {
		t.Errorf("Unexpected endpoint %q", bindErr.Endpoint)
	}
	if p.State() != common.StateIdle {
		t.Errorf("Expected state idle, got %s", p.State())
	}
}

func TestSinkErrorStopsPipeline(t *testing.T) {
	cause := errors.New("scene gone")
	rec := newRecorder()
	p := startPipeline(t, sink.FuncSink(func([]byte) error { return cause }), rec)

	conn := connect(t, p)
	send(t, conn, "frame a")

	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Pipeline did not stop after sink error")
	}

	var sinkErr *SinkError
	if !errors.As(p.Err(), &sinkErr) || !errors.Is(p.Err(), cause) {
		t.Errorf("Expected SinkError wrapping the cause, got %v", p.Err())
	}
	if p.State() != common.StateStopped {
		t.Errorf("Expected state stopped, got %s", p.State())
	}

	rec.waitFor(t, common.EventSinkFailed)
	rec.waitFor(t, common.EventClosed)
}

func TestSinkPanicStopsPipeline(t *testing.T) {
	p := startPipeline(t, sink.FuncSink(func([]byte) error { panic("boom") }), nil)

	conn := connect(t, p)
	send(t, conn, "frame a")

	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Pipeline did not stop after sink panic")
	}

	var sinkErr *SinkError
	if !errors.As(p.Err(), &sinkErr) {
		t.Errorf("Expected SinkError, got %v", p.Err())
	}
}

func TestStatusOrder(t *testing.T) {
	rec := newRecorder()
	s := newChanSink()
	p := startPipeline(t, s, rec)

	conn := connect(t, p)
	send(t, conn, "x a")
	s.next(t)
	send(t, conn, "z")
	waitUntil(t, "peer stop", func() bool { return p.State() == common.StateListening })

	// Stop returns after all reports were delivered
	p.Stop()

	expected := []common.Event{
		common.EventListening,
		common.EventConnected,
		common.EventPeerStopped,
		common.EventClosed,
	}
	events := rec.events()
	if len(events) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, events)
	}
	for i := range expected {
		if events[i] != expected[i] {
			t.Errorf("Event %d: expected %s, got %s", i, expected[i], events[i])
		}
	}
}

func TestStopFromReporter(t *testing.T) {
	rec := newRecorder()
	var p *Pipeline
	returned := make(chan common.State, 1)
	reporter := ReporterFunc(func(status common.Status) {
		rec.Report(status)
		if status.Event == common.EventPeerStopped {
			p.Stop()
			returned <- p.State()
		}
	})
	p = startPipeline(t, newChanSink(), reporter)

	conn := connect(t, p)
	send(t, conn, "z")

	select {
	case state := <-returned:
		if state != common.StateStopped {
			t.Errorf("Expected state stopped when Stop returns, got %s", state)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("Stop called from the reporter did not return, state %s", p.State())
	}

	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Done was not closed")
	}
	rec.waitFor(t, common.EventClosed)
}

func TestStopIdleFromReporter(t *testing.T) {
	var p *Pipeline
	reporter := ReporterFunc(func(status common.Status) {
		p.Stop()
	})
	p, err := NewPipeline(testConfig(), tcp.NewListenConnector(), newChanSink(), reporter)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return")
	}
}

func TestMultiplePipelines(t *testing.T) {
	s1, s2 := newChanSink(), newChanSink()
	p1 := startPipeline(t, s1, nil)
	p2 := startPipeline(t, s2, nil)

	c1 := connect(t, p1)
	c2 := connect(t, p2)

	send(t, c1, "one a")
	send(t, c2, "two a")

	if got := s1.next(t); string(got) != "one a" {
		t.Errorf("Pipeline 1 got %q", got)
	}
	if got := s2.next(t); string(got) != "two a" {
		t.Errorf("Pipeline 2 got %q", got)
	}

	p1.Stop()

	// the second pipeline is not affected
	send(t, c2, "three a")
	if got := s2.next(t); string(got) != "three a" {
		t.Errorf("Pipeline 2 got %q after stopping pipeline 1", got)
	}
}

func TestUnixSocketPipeline(t *testing.T) {
	config := testConfig()
	config.Endpoint = filepath.Join(t.TempDir(), "stream.sock")

	s := newChanSink()
	p, err := NewPipeline(config, unix.NewListenConnector(), s, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	conn := connect(t, p)
	send(t, conn, "local a")
	if got := s.next(t); string(got) != "local a" {
		t.Errorf("Expected %q, got %q", "local a", got)
	}
}

func TestWritePrometheus(t *testing.T) {
	s := newChanSink()
	p := startPipeline(t, s, nil)

	conn := connect(t, p)
	send(t, conn, "abc a")
	s.next(t)
	waitUntil(t, "delivery count", func() bool { return p.Stats().Frames.Delivered == 1 })

	var buf bytes.Buffer
	p.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`dstream_frames_received_total{pipeline="test"} 1`,
		`dstream_bytes_received_total{pipeline="test"} 5`,
		`dstream_connections_total{pipeline="test"} 1`,
		`dstream_frames_dropped_total{pipeline="test"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in metrics output:\n%s", want, out)
		}
	}
}

func TestNewPipelineValidation(t *testing.T) {
	config := testConfig()
	config.StopByte = config.Terminator

	if _, err := NewPipeline(config, tcp.NewListenConnector(), newChanSink(), nil); err == nil {
		t.Error("Expected an error for an invalid config")
	}
	if _, err := NewPipeline(testConfig(), nil, newChanSink(), nil); err == nil {
		t.Error("Expected an error without connector")
	}
	if _, err := NewPipeline(testConfig(), tcp.NewListenConnector(), nil, nil); err == nil {
		t.Error("Expected an error without sink")
	}
}
