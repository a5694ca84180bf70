package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fantuned/fantuned/internal/fterrors"
	"github.com/fantuned/fantuned/internal/model"
)

const (
	connectTimeout = 5 * time.Second
	requestTimeout = 30 * time.Second
)

// Client is the external-collaborator side of the protocol: fanctl and
// any other local tool talks to the daemon exclusively through this
// type. One Client serves many concurrent Request callers; each
// installs a pending entry keyed by its envelope id and is woken when
// the matching response frame arrives.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	closed  bool

	Updates chan SensorUpdate
}

// Dial connects to the daemon's IPC listener at address within
// connectTimeout, then starts the background read loop.
func Dial(network, address string) (*Client, error) {
	conn, err := net.DialTimeout(network, address, connectTimeout)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		pending: map[string]chan Envelope{},
		Updates: make(chan SensorUpdate, subscriberQueueLen),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		env, err := readFrame(c.conn)
		if err != nil {
			return
		}

		if env.Type == TypeSensorUpdate {
			var update SensorUpdate
			_ = decodePayload(env.Payload, &update)
			select {
			case c.Updates <- update:
			default:
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.Id]
		if ok {
			delete(c.pending, env.Id)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

// shutdown closes the connection and cancels every pending request, so
// a connection loss is observed as a synchronous error by every caller
// blocked in Request rather than hanging until its own timeout.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = map[string]chan Envelope{}
	c.mu.Unlock()

	c.conn.Close()
	for _, ch := range pending {
		close(ch)
	}
}

// Close terminates the client connection.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

// Request sends reqType with the given payload and blocks for the
// matching response, up to requestTimeout.
func (c *Client) Request(ctx context.Context, reqType MessageType, payload interface{}) (Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	id := newId()
	env := Envelope{Type: reqType, Id: id, Timestamp: time.Now(), Payload: encodePayload(payload)}

	replyCh := make(chan Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Envelope{}, fmt.Errorf("ipc client is closed")
	}
	c.pending[id] = replyCh
	c.mu.Unlock()

	c.writeMu.Lock()
	err := writeFrame(c.conn, env)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Envelope{}, err
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return Envelope{}, fmt.Errorf("ipc connection closed while awaiting response")
		}
		if reply.Type == TypeError {
			var errPayload ErrorPayload
			_ = decodePayload(reply.Payload, &errPayload)
			return reply, fmt.Errorf("%w: %s", fterrors.ErrAdapterIo, errPayload.Message)
		}
		return reply, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Envelope{}, ctx.Err()
	}
}

// GetStatus is a typed convenience wrapper over Request.
func (c *Client) GetStatus(ctx context.Context) (StatusResponse, error) {
	env, err := c.Request(ctx, TypeGetStatus, GetStatusRequest{})
	if err != nil {
		return StatusResponse{}, err
	}
	var resp StatusResponse
	if err := decodePayload(env.Payload, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// GetSensors is a typed convenience wrapper over Request.
func (c *Client) GetSensors(ctx context.Context) ([]SensorSnapshot, error) {
	env, err := c.Request(ctx, TypeGetSensors, GetSensorsRequest{})
	if err != nil {
		return nil, err
	}
	var resp []SensorSnapshot
	if err := decodePayload(env.Payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetFans is a typed convenience wrapper over Request.
func (c *Client) GetFans(ctx context.Context) ([]FanSnapshot, error) {
	env, err := c.Request(ctx, TypeGetFans, GetFansRequest{})
	if err != nil {
		return nil, err
	}
	var resp []FanSnapshot
	if err := decodePayload(env.Payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetConfig is a typed convenience wrapper over Request.
func (c *Client) GetConfig(ctx context.Context) (model.AppConfiguration, error) {
	env, err := c.Request(ctx, TypeGetConfig, GetConfigRequest{})
	if err != nil {
		return model.AppConfiguration{}, err
	}
	var resp model.AppConfiguration
	if err := decodePayload(env.Payload, &resp); err != nil {
		return model.AppConfiguration{}, err
	}
	return resp, nil
}

// SetConfig is a typed convenience wrapper over Request. cfg is
// marshalled to JSON and back into a loosely-typed map so it travels
// the same SetConfigRequest.Config shape a hand-built fragment would.
func (c *Client) SetConfig(ctx context.Context, cfg model.AppConfiguration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var fragment map[string]interface{}
	if err := json.Unmarshal(raw, &fragment); err != nil {
		return err
	}
	_, err = c.Request(ctx, TypeSetConfig, SetConfigRequest{Config: fragment})
	return err
}

// SetFanSpeed is a typed convenience wrapper over Request.
func (c *Client) SetFanSpeed(ctx context.Context, fanKey string, percent float64) error {
	_, err := c.Request(ctx, TypeSetFanSpeed, SetFanSpeedRequest{FanKey: fanKey, Percent: percent})
	return err
}

// SetProfile is a typed convenience wrapper over Request.
func (c *Client) SetProfile(ctx context.Context, profileId string) error {
	_, err := c.Request(ctx, TypeSetProfile, SetProfileRequest{ProfileId: profileId})
	return err
}

// SubscribeSensors is a typed convenience wrapper over Request.
func (c *Client) SubscribeSensors(ctx context.Context, intervalMs int) error {
	_, err := c.Request(ctx, TypeSubscribeSensors, SubscribeSensorsRequest{IntervalMs: intervalMs})
	return err
}

// UnsubscribeSensors is a typed convenience wrapper over Request.
func (c *Client) UnsubscribeSensors(ctx context.Context) error {
	_, err := c.Request(ctx, TypeUnsubscribeSensors, UnsubscribeSensorsRequest{})
	return err
}
