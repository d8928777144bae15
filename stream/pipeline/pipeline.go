package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStream/lib/queue"
	"github.com/ValentinKolb/dStream/lib/slot"
	"github.com/ValentinKolb/dStream/lib/stats"
	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/framing"
	"github.com/ValentinKolb/dStream/stream/sink"
	"github.com/ValentinKolb/dStream/stream/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("pipeline")

// acceptBackoff is the pause after a failed Accept that was not caused by Stop
const acceptBackoff = 50 * time.Millisecond

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// workers owns the goroutines of a running pipeline
type workers struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorkers() *workers {
	ctx, cancel := context.WithCancel(context.Background())
	return &workers{ctx: ctx, cancel: cancel}
}

// spawn runs fn in a goroutine tracked by the wait group
func (w *workers) spawn(fn func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn(w.ctx)
	}()
}

// Stats is a point-in-time view of a pipeline
type Stats struct {
	Name        string         `json:"name"`
	State       common.State   `json:"state"`
	Addr        string         `json:"addr,omitempty"`
	Remote      string         `json:"remote,omitempty"`
	Session     string         `json:"session,omitempty"`
	Connections uint64         `json:"connections"`
	Frames      stats.Snapshot `json:"frames"`
	Slot        slot.Stats     `json:"slot"`
}

// Pipeline receives frames from a single producer connection and hands the most
// recent one to a sink.
//
// Two workers run while the pipeline is started: the network worker accepts one
// connection at a time and puts every frame into a LatestSlot, the consumer takes
// from the slot and calls the sink. Frames the consumer had no time for are
// dropped, the sink always gets the freshest frame available.
type Pipeline struct {
	config    common.PipelineConfig
	connector transport.IListenConnector
	sink      sink.ISink
	reporter  IStatusReporter

	slot    *slot.LatestSlot[[]byte]
	stats   *stats.FrameStats
	metrics *pipelineMetrics

	// guarded by mu
	mu       sync.Mutex
	state    common.State
	listener net.Listener
	conn     net.Conn
	remote   string
	session  string
	workers  *workers
	err      error

	// status dispatch, created by Start
	status     *queue.MPSC[common.Status]
	dispatched chan struct{}
	reporting  atomic.Bool // set while the reporter runs

	stopped chan struct{} // closed once the workers exited
	done    chan struct{} // closed once the final status was reported
}

// NewPipeline creates an idle pipeline. The reporter may be nil.
func NewPipeline(config common.PipelineConfig, connector transport.IListenConnector, s sink.ISink, reporter IStatusReporter) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if connector == nil {
		return nil, fmt.Errorf("no connector provided")
	}
	if s == nil {
		return nil, fmt.Errorf("no sink provided")
	}

	p := &Pipeline{
		config:    config,
		connector: connector,
		sink:      s,
		reporter:  reporter,
		slot:      slot.New[[]byte](),
		stats:     stats.NewFrameStats(),
		state:     common.StateIdle,
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.metrics = newPipelineMetrics(p)

	return p, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start binds the listener and starts the workers. It returns once the pipeline
// is listening; the workers run until Stop is called or the sink fails.
//
// Returns a *BindError if the listener cannot be created (the pipeline stays idle
// and Start may be retried), ErrAlreadyStarted or ErrStopped.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case common.StateIdle:
	case common.StateStopping, common.StateStopped:
		return ErrStopped
	default:
		return ErrAlreadyStarted
	}

	listener, err := p.connector.Listen(p.config)
	if err != nil {
		Logger.Errorf("[%s] %s listen on %s failed: %v", p.config.Name, p.connector.GetName(), p.config.Endpoint, err)
		return &BindError{Endpoint: p.config.Endpoint, Err: err}
	}

	p.listener = listener
	p.workers = newWorkers()
	p.status = queue.NewMPSC[common.Status]()
	p.dispatched = make(chan struct{})
	go p.dispatch()

	p.state = common.StateListening
	addr := listener.Addr().String()
	p.report(common.EventListening, fmt.Sprintf("Server Created > %s", addr), addr, "")

	p.workers.spawn(p.acceptLoop)
	p.workers.spawn(p.consumeLoop)
	if p.config.StatsIntervalSecond > 0 {
		p.workers.spawn(p.statsLoop)
	}

	return nil
}

// Stop closes the listener and the active connection, then waits for all workers
// to exit and the Closed status to be reported. Calling Stop more than once,
// concurrently, or on a pipeline that was never started is safe.
//
// Called from the reporter, Stop returns once the workers exited; the Closed
// status is delivered after the reporter returns. Stop must not be called from
// within the sink.
func (p *Pipeline) Stop() {
	p.shutdown(nil)
	if p.reporting.Load() {
		<-p.stopped
		return
	}
	<-p.done
}

// Done is closed once the pipeline is stopped, either by Stop or because the sink failed
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that stopped the pipeline (a *SinkError), or nil
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// State returns the current state of the pipeline
func (p *Pipeline) State() common.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Addr returns the address the pipeline listens on, or nil if it is not listening
func (p *Pipeline) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil || p.state == common.StateStopped {
		return nil
	}
	return p.listener.Addr()
}

// Name returns the configured name of the pipeline
func (p *Pipeline) Name() string {
	return p.config.Name
}

// Stats returns the current statistics of the pipeline
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Name:    p.config.Name,
		State:   p.state,
		Remote:  p.remote,
		Session: p.session,
	}
	if p.listener != nil {
		s.Addr = p.listener.Addr().String()
	}
	p.mu.Unlock()

	s.Connections = p.metrics.connections.Get()
	s.Frames = p.stats.Snapshot()
	s.Slot = p.slot.Stats()
	return s
}

// shutdown initiates the transition to Stopped without waiting for the workers.
// cause is nil for a regular Stop.
func (p *Pipeline) shutdown(cause error) {
	p.mu.Lock()

	switch p.state {
	case common.StateStopping, common.StateStopped:
		p.mu.Unlock()
		return
	case common.StateIdle:
		p.state = common.StateStopped
		p.slot.Close()
		p.stats.Stop()
		close(p.stopped)
		closed := p.newStatus(common.EventClosed, "Server Closed", "", "")
		p.mu.Unlock()

		// no dispatcher runs for an idle pipeline, report directly
		Logger.Infof("[%s] %s", p.config.Name, closed.Message)
		p.deliverStatus(closed)
		close(p.done)
		return
	}

	p.state = common.StateStopping
	p.err = cause
	if cause != nil {
		p.report(common.EventSinkFailed, cause.Error(), p.remote, p.session)
	}

	listener, conn, w := p.listener, p.conn, p.workers
	p.mu.Unlock()

	// unblock both workers: Accept and Read fail on close, Take on cancel
	w.cancel()
	p.slot.Close()
	if err := listener.Close(); err != nil {
		Logger.Warningf("[%s] failed to close listener: %v", p.config.Name, err)
	}
	if conn != nil {
		conn.Close()
	}

	go p.finish(w)
}

// finish waits for the workers and completes the transition to Stopped
func (p *Pipeline) finish(w *workers) {
	w.wg.Wait()
	p.stats.Stop()

	p.mu.Lock()
	p.state = common.StateStopped
	p.report(common.EventClosed, "Server Closed", p.listener.Addr().String(), "")
	p.mu.Unlock()
	close(p.stopped)

	// deliver the remaining status reports before Done fires
	p.status.Close()
	<-p.dispatched

	close(p.done)
}

// --------------------------------------------------------------------------
// Network Worker
// --------------------------------------------------------------------------

// acceptLoop serves one producer connection at a time until the listener is closed
func (p *Pipeline) acceptLoop(ctx context.Context) {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("[%s] accept error: %v", p.config.Name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptBackoff):
			}
			continue
		}

		p.serve(conn)
	}
}

// serve streams frames from conn into the slot until the connection ends
func (p *Pipeline) serve(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	session := uuid.NewString()

	if err := p.connector.UpgradeConnection(conn, p.config); err != nil {
		Logger.Warningf("[%s] failed to upgrade connection from %s: %v", p.config.Name, remote, err)
	}

	if !p.attach(conn, remote, session) {
		conn.Close()
		return
	}

	if _, err := conn.Write([]byte{p.config.Handshake}); err != nil {
		p.detach(conn, session, fmt.Errorf("%w: handshake failed: %w", framing.ErrConnectionLost, err))
		return
	}

	reader := framing.NewReader(conn, framing.ConfigFromPipeline(p.config))
	for frame, err := range reader.All() {
		if err != nil {
			p.detach(conn, session, err)
			return
		}

		p.stats.Received(len(frame))
		p.metrics.framesReceived.Inc()
		p.metrics.bytesReceived.Add(len(frame))
		p.metrics.frameSize.Update(float64(len(frame)))

		p.slot.Put(frame)
	}
}

// attach makes conn the active connection. Returns false if the pipeline is stopping.
func (p *Pipeline) attach(conn net.Conn, remote, session string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != common.StateListening {
		return false
	}

	p.conn = conn
	p.remote = remote
	p.session = session
	p.state = common.StateConnected
	p.metrics.connections.Inc()

	p.report(common.EventConnected, fmt.Sprintf("Connected > %s", remote), remote, session)
	return true
}

// detach closes the active connection and returns to Listening.
// Errors observed while stopping are the result of our own close and not reported.
func (p *Pipeline) detach(conn net.Conn, session string, cause error) {
	conn.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	remote := p.remote
	p.conn = nil
	p.remote = ""
	p.session = ""

	if p.state != common.StateConnected {
		Logger.Debugf("[%s] session %s ended while stopping: %v", p.config.Name, session, cause)
		return
	}
	p.state = common.StateListening

	switch {
	case errors.Is(cause, framing.ErrPeerStop):
		p.metrics.peerStops.Inc()
		p.report(common.EventPeerStopped, fmt.Sprintf("Client Stopped > %s", remote), remote, session)

	case errors.Is(cause, framing.ErrFrameTooLarge):
		p.metrics.connectionsLost.Inc()
		Logger.Warningf("[%s] session %s: %v", p.config.Name, session, cause)
		p.report(common.EventConnectionLost, fmt.Sprintf("Frame Too Large > %s", remote), remote, session)

	default:
		p.metrics.connectionsLost.Inc()
		if transport.IsExpectedCloseError(cause) {
			Logger.Debugf("[%s] session %s: %v", p.config.Name, session, cause)
		} else {
			Logger.Warningf("[%s] session %s: %v", p.config.Name, session, cause)
		}
		p.report(common.EventConnectionLost, fmt.Sprintf("Standby > %s", remote), remote, session)
	}
}

// --------------------------------------------------------------------------
// Consumer Worker
// --------------------------------------------------------------------------

// consumeLoop hands the latest frame to the sink until the pipeline stops
func (p *Pipeline) consumeLoop(ctx context.Context) {
	for {
		frame, err := p.slot.Take(ctx)
		if err != nil {
			return
		}

		start := time.Now()
		if err := p.deliver(frame); err != nil {
			Logger.Errorf("[%s] %v", p.config.Name, err)
			// shutdown does not wait for the workers, safe from this goroutine
			p.shutdown(&SinkError{Err: err})
			return
		}

		p.metrics.sinkDuration.UpdateDuration(start)
		p.metrics.framesDelivered.Inc()
		p.stats.Delivered()
	}
}

// deliver calls the sink, a panic is returned as error
func (p *Pipeline) deliver(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return p.sink.SetLatestPayload(frame)
}

// --------------------------------------------------------------------------
// Status and Statistics
// --------------------------------------------------------------------------

// report queues a status for the reporter. Callers hold mu, so reports are
// queued in transition order.
func (p *Pipeline) report(event common.Event, message, addr, session string) {
	Logger.Infof("[%s] %s", p.config.Name, message)

	status := p.newStatus(event, message, addr, session)
	p.status.Push(&status)
}

// newStatus builds a status for the current state. Callers hold mu or own the state.
func (p *Pipeline) newStatus(event common.Event, message, addr, session string) common.Status {
	return common.Status{
		Pipeline: p.config.Name,
		State:    p.state,
		Event:    event,
		Message:  message,
		Addr:     addr,
		Session:  session,
		Time:     time.Now(),
	}
}

// dispatch delivers queued status reports until the queue is closed
func (p *Pipeline) dispatch() {
	defer close(p.dispatched)

	for status := range p.status.Recv() {
		p.deliverStatus(*status)
	}
}

// deliverStatus calls the reporter, a panic is logged
func (p *Pipeline) deliverStatus(status common.Status) {
	if p.reporter == nil {
		return
	}

	p.reporting.Store(true)
	defer p.reporting.Store(false)
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("[%s] status reporter panicked: %v", p.config.Name, r)
		}
	}()
	p.reporter.Report(status)
}

// statsLoop logs the frame rates once per interval
func (p *Pipeline) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(p.config.StatsIntervalSecond) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			received, delivered := p.stats.Tick()
			if p.State() == common.StateConnected || received > 0 {
				Logger.Infof("[%s] fps: received %.1f, delivered %.1f, dropped %d total",
					p.config.Name, received, delivered, p.slot.Stats().Drops)
			}
		}
	}
}
