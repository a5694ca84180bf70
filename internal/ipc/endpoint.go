package ipc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fantuned/fantuned/internal/configstore"
	"github.com/fantuned/fantuned/internal/fterrors"
	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/safety"
	"github.com/oklog/run"
	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	maxAcceptors      = 4
	maxClients        = 64
	subscriberQueueLen = 32
)

// HardwareSource is the subset of the Hardware Adapter the endpoint
// needs to answer GetSensors/GetFans and to apply SetFanSpeed.
type HardwareSource interface {
	Sensors() []model.SensorReading
	Fans() []model.FanDevice
	SetSpeed(ctx context.Context, fanKey string, percent float64) bool
}

// Endpoint is the server side of the IPC protocol: an acceptor pool
// plus one goroutine per connection, all coordinating through
// connection-scoped state in a concurrent map, in the same
// goroutine-per-unit shape as the run.Group-per-sensor wiring in
// internal/backend.go.
type Endpoint struct {
	listener net.Listener

	hardware   HardwareSource
	store      *configstore.Store
	supervisor *safety.Supervisor

	version   string
	startedAt time.Time

	conns cmap.ConcurrentMap[string, *connection]

	mu      sync.Mutex
	clients int
}

type connection struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
	// subscribed is read from the Control Loop's goroutine
	// (SubscriberCount/Broadcast) and written from this connection's
	// own serve() goroutine (dispatch), so it needs its own atomic
	// rather than the struct's writeMu.
	subscribed atomic.Bool
	queue      chan SensorUpdate
}

// NewEndpoint binds listener and wires the endpoint against the given
// collaborators. It does not accept connections until Run is called.
func NewEndpoint(listener net.Listener, hardware HardwareSource, store *configstore.Store, supervisor *safety.Supervisor, version string) *Endpoint {
	return &Endpoint{
		listener:   listener,
		hardware:   hardware,
		store:      store,
		supervisor: supervisor,
		version:    version,
		startedAt:  time.Now(),
		conns:      cmap.New[*connection](),
	}
}

// Run drives up to maxAcceptors acceptor goroutines under an oklog/run
// group rooted at ctx; cancelling ctx closes the listener and every
// open connection.
func (e *Endpoint) Run(ctx context.Context) error {
	var g run.Group

	for i := 0; i < maxAcceptors; i++ {
		g.Add(func() error {
			return e.acceptLoop(ctx)
		}, func(err error) {})
	}

	g.Add(func() error {
		<-ctx.Done()
		return e.listener.Close()
	}, func(err error) {
		for _, id := range e.conns.Keys() {
			if c, ok := e.conns.Get(id); ok {
				c.conn.Close()
			}
		}
	})

	return g.Run()
}

func (e *Endpoint) acceptLoop(ctx context.Context) error {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		e.mu.Lock()
		if e.clients >= maxClients {
			e.mu.Unlock()
			conn.Close()
			continue
		}
		e.clients++
		e.mu.Unlock()

		go e.serve(ctx, conn)
	}
}

func (e *Endpoint) serve(ctx context.Context, netConn net.Conn) {
	c := &connection{
		id:    fmt.Sprintf("%p", netConn),
		conn:  netConn,
		queue: make(chan SensorUpdate, subscriberQueueLen),
	}
	e.conns.Set(c.id, c)

	defer func() {
		e.conns.Remove(c.id)
		netConn.Close()
		e.mu.Lock()
		e.clients--
		e.mu.Unlock()
	}()

	go e.drainQueue(c)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := readFrame(netConn)
		if err != nil {
			return
		}

		resp := e.dispatch(ctx, c, env)
		c.writeMu.Lock()
		err = writeFrame(netConn, resp)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// drainQueue forwards queued SensorUpdate notifications to the
// connection's socket, serializing against request/response frames
// through the same per-connection write lock.
func (e *Endpoint) drainQueue(c *connection) {
	for update := range c.queue {
		env := Envelope{
			Type:      TypeSensorUpdate,
			Id:        newId(),
			Timestamp: time.Now(),
			Payload:   encodePayload(update),
		}
		c.writeMu.Lock()
		_ = writeFrame(c.conn, env)
		c.writeMu.Unlock()
	}
}

func (e *Endpoint) dispatch(ctx context.Context, c *connection, env Envelope) Envelope {
	reply := func(payload interface{}) Envelope {
		return Envelope{Type: responseTypeFor(env.Type), Id: env.Id, Timestamp: time.Now(), Payload: encodePayload(payload)}
	}
	ack := func(ok bool, msg string) Envelope {
		return reply(Ack{Ok: ok, Message: msg, OriginalRequestId: env.Id})
	}
	errResp := func(err error) Envelope {
		return Envelope{Type: TypeError, Id: env.Id, Timestamp: time.Now(), Payload: encodePayload(ErrorPayload{Message: err.Error(), OriginalRequestId: env.Id})}
	}

	switch env.Type {
	case TypeGetStatus:
		return reply(e.status())

	case TypeGetSensors:
		return reply(toSensorSnapshots(e.hardware.Sensors()))

	case TypeGetFans:
		return reply(toFanSnapshots(e.hardware.Fans()))

	case TypeGetConfig:
		return reply(e.store.Get())

	case TypeSetConfig:
		var req SetConfigRequest
		if err := decodePayload(env.Payload, &req); err != nil {
			return errResp(err)
		}
		cfg, err := configstore.DecodeConfigFragment(req.Config)
		if err != nil {
			return errResp(err)
		}
		_, err = e.store.Update(func(c *model.AppConfiguration) error {
			*c = cfg
			return nil
		})
		if err != nil {
			return errResp(err)
		}
		e.supervisor.UpdateThresholds(safety.Thresholds{
			EmergencyCpuTempC:    cfg.EmergencyCpuTempC,
			EmergencyGpuTempC:    cfg.EmergencyGpuTempC,
			EmergencyHysteresisC: cfg.EmergencyHysteresis,
			DefaultMinFanPercent: cfg.DefaultMinFanPct,
		})
		return ack(true, "configuration updated")

	case TypeSetFanSpeed:
		var req SetFanSpeedRequest
		if err := decodePayload(env.Payload, &req); err != nil {
			return errResp(err)
		}
		fan, known := findFan(e.hardware.Fans(), req.FanKey)
		if !known {
			return errResp(fmt.Errorf("%w: fan %q", fterrors.ErrNotFound, req.FanKey))
		}
		if !e.hardware.SetSpeed(ctx, req.FanKey, req.Percent) {
			return errResp(fmt.Errorf("%w: %s", fterrors.ErrCapabilityDenied, fan.DisplayName))
		}
		return ack(true, "")

	case TypeSetProfile:
		var req SetProfileRequest
		if err := decodePayload(env.Payload, &req); err != nil {
			return errResp(err)
		}
		if _, err := e.store.SetActiveProfile(req.ProfileId); err != nil {
			return errResp(err)
		}
		return ack(true, "")

	case TypeSubscribeSensors:
		c.subscribed.Store(true)
		return ack(true, "")

	case TypeUnsubscribeSensors:
		c.subscribed.Store(false)
		return ack(true, "")

	default:
		return errResp(fmt.Errorf("unknown request type %q", env.Type))
	}
}

func responseTypeFor(reqType MessageType) MessageType {
	switch reqType {
	case TypeGetStatus:
		return TypeStatus
	case TypeGetSensors:
		return TypeSensors
	case TypeGetFans:
		return TypeFans
	case TypeGetConfig:
		return TypeConfig
	default:
		return TypeAck
	}
}

func (e *Endpoint) status() StatusResponse {
	status := e.supervisor.Status()
	cfg := e.store.Get()
	profile := cfg.Profiles[cfg.ActiveProfileId]

	return StatusResponse{
		Running:              true,
		Version:              e.version,
		UptimeSeconds:        time.Since(e.startedAt).Seconds(),
		Emergency:            status.State == safety.StateEmergency,
		EmergencyReason:      status.Reason,
		ActiveProfileId:      cfg.ActiveProfileId,
		ActiveProfileName:    profile.Name,
		Warnings:             status.ActiveWarnings,
		ConnectedClientCount: e.conns.Count(),
	}
}

// SubscriberCount implements control.Broadcaster.
func (e *Endpoint) SubscriberCount() int {
	count := 0
	for _, id := range e.conns.Keys() {
		if c, ok := e.conns.Get(id); ok && c.subscribed.Load() {
			count++
		}
	}
	return count
}

// Broadcast implements control.Broadcaster: it enqueues a
// SensorUpdate to every subscribed connection, dropping the oldest
// queued item for any connection whose queue is full rather than
// blocking the Control Loop.
func (e *Endpoint) Broadcast(sensors []model.SensorReading, fans []model.FanDevice) {
	update := SensorUpdate{
		Sensors:   toSensorSnapshots(sensors),
		Fans:      toFanSnapshots(fans),
		Emergency: e.supervisor.IsEmergency(),
	}

	for _, id := range e.conns.Keys() {
		c, ok := e.conns.Get(id)
		if !ok || !c.subscribed.Load() {
			continue
		}
		select {
		case c.queue <- update:
		default:
			select {
			case <-c.queue:
			default:
			}
			select {
			case c.queue <- update:
			default:
			}
		}
	}
}

func toSensorSnapshots(readings []model.SensorReading) []SensorSnapshot {
	out := make([]SensorSnapshot, 0, len(readings))
	for _, r := range readings {
		out = append(out, SensorSnapshot{
			Key:          r.Id.Key(),
			DisplayName:  r.DisplayName,
			HardwareName: r.HardwareName,
			HardwareKind: string(r.HardwareKind),
			Kind:         string(r.Id.Kind),
			Value:        r.Value,
			Unit:         r.Unit,
			IsStale:      r.IsStale,
		})
	}
	return out
}

// findFan looks up a fan by its key, distinguishing an unknown key from
// one that resolves but can't be commanded (NotFound vs. CapabilityDenied).
func findFan(fans []model.FanDevice, fanKey string) (model.FanDevice, bool) {
	for _, f := range fans {
		if f.Id.Key() == fanKey {
			return f, true
		}
	}
	return model.FanDevice{}, false
}

func toFanSnapshots(fans []model.FanDevice) []FanSnapshot {
	out := make([]FanSnapshot, 0, len(fans))
	for _, f := range fans {
		out = append(out, FanSnapshot{
			Key:          f.Id.Key(),
			DisplayName:  f.DisplayName,
			HardwareName: f.HardwareName,
			Capability:   string(f.Capability),
			Rpm:          f.Rpm,
			DutyPercent:  f.DutyPercent,
		})
	}
	return out
}

var idCounter uint64
var idMu sync.Mutex

// newId generates a server-side request id for unsolicited
// notifications, which bear a fresh id never correlated to a request.
func newId() string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounter++
	return fmt.Sprintf("srv-%d-%d", time.Now().UnixNano(), idCounter)
}
