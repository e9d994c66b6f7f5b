// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package websocket

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/partysync/internal/ingress"
	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
	"github.com/tomtom215/partysync/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	directBuffer   = 16
)

// ErrRateLimited is reported to clients that exceed their message budget.
var ErrRateLimited = errors.New("too many messages")

// clientIDCounter gives clients a stable order for broadcasts.
var clientIDCounter atomic.Uint64

// Dispatcher handles decoded inbound envelopes. *ingress.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, src ingress.Source, env *models.Envelope) (*models.Message, error)
}

// ClientOptions configures a single connection.
type ClientOptions struct {
	// Source pins every inbound message to this party and participant.
	Source ingress.Source
	// MessagesPerSecond of zero disables rate limiting.
	MessagesPerSecond float64
	Burst             int
	// PingInterval sets the keepalive cadence, which is also how often the
	// round trip is measured. Zero or anything not below pongWait uses pingPeriod.
	PingInterval time.Duration
}

// Client is a middleman between one websocket connection, the hub and the
// dispatcher. Hub broadcasts arrive on send, which only the hub closes;
// replies to this client's own requests go through direct.
type Client struct {
	id            uint64
	hub           *Hub
	conn          *websocket.Conn
	dispatcher    Dispatcher
	source        ingress.Source
	partyID       string
	participantID string
	limiter       *rate.Limiter
	pingInterval  time.Duration
	rtt           atomic.Int64
	send          chan []byte
	direct        chan []byte
}

// NewClient creates a client for conn. Register it with the hub before Start.
func NewClient(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, opts ClientOptions) *Client {
	var limiter *rate.Limiter
	if opts.MessagesPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), burst)
	}
	interval := opts.PingInterval
	if interval <= 0 || interval >= pongWait {
		interval = pingPeriod
	}
	return &Client{
		id:            clientIDCounter.Add(1),
		hub:           hub,
		conn:          conn,
		dispatcher:    dispatcher,
		source:        opts.Source,
		partyID:       opts.Source.PartyID,
		participantID: opts.Source.ParticipantID,
		limiter:       limiter,
		pingInterval:  interval,
		send:          make(chan []byte, sendBuffer),
		direct:        make(chan []byte, directBuffer),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// PartyID returns the party this connection belongs to.
func (c *Client) PartyID() string {
	return c.partyID
}

// ParticipantID returns the participant this connection speaks for.
func (c *Client) ParticipantID() string {
	return c.participantID
}

// RoundTrip returns the last ping round trip measured on this connection, or
// zero before the first pong.
func (c *Client) RoundTrip() time.Duration {
	return time.Duration(c.rtt.Load())
}

// recordPong reads the send time a ping carried and stores the round trip.
// Pongs without a timestamp, such as unsolicited ones, are ignored.
func (c *Client) recordPong(appData string, now time.Time) {
	sent, err := strconv.ParseInt(appData, 10, 64)
	if err != nil || sent <= 0 {
		return
	}
	if rtt := now.Sub(time.Unix(0, sent)); rtt >= 0 {
		c.rtt.Store(int64(rtt))
		metrics.WSRoundTrip.Observe(rtt.Seconds())
	}
}

// readPump decodes inbound frames and dispatches them until the connection
// fails or ctx ends. Closing the socket never removes the participant from
// the party; heartbeat aging handles that.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(appData string) error {
		c.recordPong(appData, time.Now())
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("participant_id", c.participantID).Msg("unexpected websocket close error")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	if c.limiter != nil && !c.limiter.Allow() {
		metrics.RecordWSDropped(DropRateLimited)
		c.reply(ingress.ErrorMessage(ErrRateLimited))
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.reply(ingress.ErrorMessage(ingress.ErrDecode))
		return
	}

	src := c.source
	if rtt := c.RoundTrip(); rtt > 0 {
		src.RoundTripMs = float64(rtt) / float64(time.Millisecond)
	}
	resp, err := c.dispatcher.Dispatch(ctx, src, &env)
	if err != nil {
		logging.Debug().
			Err(err).
			Str("party_id", c.partyID).
			Str("participant_id", c.participantID).
			Str("type", env.Type).
			Msg("inbound message rejected")
		c.reply(ingress.ErrorMessage(err))
		return
	}
	if resp != nil {
		c.reply(resp)
	}
}

// reply queues a direct response, dropping it when the client is backed up.
func (c *Client) reply(msg *models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		metrics.RecordWSDropped(DropEncode)
		return
	}
	select {
	case c.direct <- data:
	default:
		metrics.RecordWSDropped(DropSlowClient)
	}
}

// writePump writes queued frames and keepalive pings until the hub closes send.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.write(data) {
				return
			}

		case data := <-c.direct:
			if !c.write(data) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			stamp := strconv.AppendInt(nil, time.Now().UnixNano(), 10)
			if err := c.conn.WriteMessage(websocket.PingMessage, stamp); err != nil {
				return
			}

		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func (c *Client) write(data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Debug().Err(err).Str("participant_id", c.participantID).Msg("websocket write failed")
		return false
	}
	metrics.WSMessagesSent.Inc()
	return true
}

// Start begins reading and writing. ctx bounds the connection's lifetime.
func (c *Client) Start(ctx context.Context) {
	go c.writePump(ctx)
	go c.readPump(ctx)
}
