// Package client implements the CloudP2P client coordinator: coordinator
// discovery, task submission, and the indefinite failover loop that survives
// any server crash.
package client

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"time"

	"github.com/useframi1/CloudP2P/internal/core/config"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
	"github.com/useframi1/CloudP2P/internal/core/stego"
	"github.com/useframi1/CloudP2P/pkg/concurrent"
)

// VerifyFunc extracts the embedded parameter from a task result so the client
// can check the transform actually happened.
type VerifyFunc func(resultBytes []byte) (string, error)

// Stats are the client's lifetime request counters.
type Stats struct {
	Sent      uint64
	Succeeded uint64
	Failed    uint64
}

// Client submits tasks to the cluster. It holds no connection state between
// requests: assignment discovery broadcasts to every known server, and each
// task gets a fresh connection to whichever server is assigned.
type Client struct {
	cfg    *config.ClientConfig
	log    log.Log
	verify VerifyFunc

	payloadName  string
	payloadBytes []byte

	// Per-operation deadlines.
	assignTimeout   time.Duration
	responseTimeout time.Duration

	sent      atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// New builds a client. A nil verify falls back to the steganography extract,
// and the default payload is a generated carrier image.
func New(cfg *config.ClientConfig, logger log.Log, verify VerifyFunc) *Client {
	if verify == nil {
		verify = stego.Extract
	}
	return &Client{
		cfg:             cfg,
		log:             logger.With(log.String("client", cfg.Client.Name)),
		verify:          verify,
		payloadName:     "carrier.png",
		payloadBytes:    generateCarrier(128, 128),
		assignTimeout:   2 * time.Second,
		responseTimeout: 30 * time.Second,
	}
}

// SetPayload overrides the generated carrier, e.g. with an uploaded image.
func (c *Client) SetPayload(name string, data []byte) {
	c.payloadName = name
	c.payloadBytes = data
}

// Stats returns the lifetime request counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
}

// Run drives the configured request profile: rate_per_second requests for
// duration_seconds, each retried until it succeeds or the context ends. A
// failed request is followed immediately by the next one.
func (c *Client) Run(ctx context.Context) error {
	total := uint64(c.cfg.Requests.RatePerSecond * c.cfg.Requests.DurationSeconds)
	interval := time.Duration(float64(time.Second) / c.cfg.Requests.RatePerSecond)

	c.log.Info("client starting",
		log.Uint64("total_requests", total),
		log.Duration("interval", interval))

	for requestID := uint64(1); requestID <= total; requestID++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.SubmitTask(ctx, requestID, c.cfg.Requests.ParameterText)
		if err != nil {
			c.log.Error("request abandoned",
				log.Uint64("request", requestID), log.Error(err))
			continue
		}

		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}

	stats := c.Stats()
	c.log.Info("client finished",
		log.Uint64("sent", stats.Sent),
		log.Uint64("succeeded", stats.Succeeded),
		log.Uint64("failed", stats.Failed))
	return nil
}

// SubmitTask runs one task to completion: discover the coordinator, execute
// on the assigned server, and fail over through reassignment polling as long
// as it takes. It returns an error only when the context ends.
func (c *Client) SubmitTask(ctx context.Context, requestID uint64, parameterText string) error {
	c.sent.Add(1)

	assignment, err := c.awaitAssignment(ctx, requestID)
	if err != nil {
		c.failed.Add(1)
		return err
	}

	address := assignment.AssignedServerAddress
	c.log.Info("task assigned",
		log.Uint64("request", requestID),
		log.Uint32("server", assignment.AssignedServerID),
		log.String("address", address))

	for {
		execErr := c.executeTask(address, requestID, parameterText)
		if execErr == nil {
			c.succeeded.Add(1)
			c.log.Info("task completed", log.Uint64("request", requestID))
			return nil
		}
		if ctx.Err() != nil {
			c.failed.Add(1)
			return ctx.Err()
		}

		c.log.Warn("task attempt failed, polling for reassignment",
			log.Uint64("request", requestID),
			log.String("address", address),
			log.Error(execErr))

		address, err = c.awaitReassignment(ctx, requestID, address)
		if err != nil {
			c.failed.Add(1)
			return err
		}
	}
}

// DiscoverLeader asks every known server who currently coordinates and takes
// the first answer. Useful for operator tooling; task submission does not
// need it because the assignment broadcast finds the coordinator implicitly.
func (c *Client) DiscoverLeader(ctx context.Context) (uint32, error) {
	resp, err := concurrent.First(ctx, c.cfg.Client.ServerAddresses,
		func(ctx context.Context, addr string) (protocol.LeaderResponse, error) {
			return c.queryLeaderFrom(addr)
		})
	if err != nil {
		return 0, ErrNoCoordinator
	}
	return resp.LeaderID, nil
}

func (c *Client) queryLeaderFrom(addr string) (protocol.LeaderResponse, error) {
	conn, err := protocol.Dial(addr, c.assignTimeout)
	if err != nil {
		return protocol.LeaderResponse{}, err
	}
	defer conn.Close()

	if err := conn.WriteMessage(protocol.LeaderQuery{}); err != nil {
		return protocol.LeaderResponse{}, err
	}

	msg, err := conn.ReadMessageDeadline(time.Now().Add(c.assignTimeout))
	if err != nil {
		return protocol.LeaderResponse{}, err
	}
	resp, ok := msg.(protocol.LeaderResponse)
	if !ok {
		return protocol.LeaderResponse{}, fmt.Errorf("unexpected %s from %s", msg.Kind(), addr)
	}
	return resp, nil
}

// awaitAssignment polls the assignment broadcast until some coordinator
// answers. With no leader elected there is simply no answer; keep asking.
func (c *Client) awaitAssignment(ctx context.Context, requestID uint64) (protocol.AssignResponse, error) {
	for {
		resp, err := c.broadcastAssignment(ctx, requestID)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return protocol.AssignResponse{}, ctx.Err()
		}

		c.log.Warn("no assignment, waiting for a coordinator",
			log.Uint64("request", requestID))
		if !sleepCtx(ctx, c.cfg.Failover.PollInterval()) {
			return protocol.AssignResponse{}, ctx.Err()
		}
	}
}

// broadcastAssignment asks every known server in parallel and takes the first
// answer; only the coordinator replies, the rest stay silent until the
// deadline.
func (c *Client) broadcastAssignment(ctx context.Context, requestID uint64) (protocol.AssignResponse, error) {
	resp, err := concurrent.First(ctx, c.cfg.Client.ServerAddresses,
		func(ctx context.Context, addr string) (protocol.AssignResponse, error) {
			return c.requestAssignmentFrom(addr, requestID)
		})
	if err != nil {
		return protocol.AssignResponse{}, ErrNoCoordinator
	}
	return resp, nil
}

func (c *Client) requestAssignmentFrom(addr string, requestID uint64) (protocol.AssignResponse, error) {
	conn, err := protocol.Dial(addr, c.assignTimeout)
	if err != nil {
		return protocol.AssignResponse{}, err
	}
	defer conn.Close()

	request := protocol.AssignRequest{ClientID: c.cfg.Client.Name, RequestID: requestID}
	if err := conn.WriteMessage(request); err != nil {
		return protocol.AssignResponse{}, err
	}

	msg, err := conn.ReadMessageDeadline(time.Now().Add(c.assignTimeout))
	if err != nil {
		return protocol.AssignResponse{}, err
	}
	resp, ok := msg.(protocol.AssignResponse)
	if !ok {
		return protocol.AssignResponse{}, fmt.Errorf("unexpected %s from %s", msg.Kind(), addr)
	}
	return resp, nil
}

// executeTask performs one attempt on the assigned server: send the task,
// await the result, verify the embedded parameter, and acknowledge. Any
// failure before the acknowledgement sends the caller to the reassignment
// loop; a failed ack write is only logged and the attempt still succeeds.
func (c *Client) executeTask(address string, requestID uint64, parameterText string) error {
	conn, err := protocol.Dial(address, c.assignTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	request := protocol.TaskRequest{
		ClientID:      c.cfg.Client.Name,
		RequestID:     requestID,
		PayloadBytes:  c.payloadBytes,
		PayloadName:   c.payloadName,
		ParameterText: parameterText,
	}
	if err := conn.WriteMessage(request); err != nil {
		return err
	}

	msg, err := conn.ReadMessageDeadline(time.Now().Add(c.responseTimeout))
	if err != nil {
		return err
	}
	resp, ok := msg.(protocol.TaskResponse)
	if !ok {
		return fmt.Errorf("unexpected %s from %s", msg.Kind(), address)
	}
	if !resp.OK {
		return fmt.Errorf("%w: %s", ErrTaskFailed, resp.ErrorMessage)
	}

	extracted, err := c.verify(resp.ResultBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if extracted != parameterText {
		return fmt.Errorf("%w: embedded %q, want %q", ErrVerificationFailed, extracted, parameterText)
	}

	ack := protocol.TaskAck{ClientID: c.cfg.Client.Name, RequestID: requestID}
	if err := conn.WriteMessage(ack); err != nil {
		// The task itself succeeded; the server will keep the history entry
		// and a later reassignment can deduplicate.
		c.log.Warn("ack failed", log.Uint64("request", requestID), log.Error(err))
	}

	return nil
}

// awaitReassignment polls the cluster for the task's current assignment. A
// different server than the one that just failed is taken immediately; the
// same server returned sameServerPollLimit times in a row is retried anyway,
// in case it recovered. Total silence polls forever.
func (c *Client) awaitReassignment(ctx context.Context, requestID uint64, failedAddress string) (string, error) {
	sameServerPolls := 0

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		status, err := c.broadcastStatusQuery(ctx, requestID)
		switch {
		case err != nil:
			c.log.Warn("status poll unanswered",
				log.Uint64("request", requestID), log.Int("attempt", attempt))

		case status.AssignedServerAddress != failedAddress:
			c.log.Info("task reassigned",
				log.Uint64("request", requestID),
				log.Uint32("server", status.AssignedServerID),
				log.String("address", status.AssignedServerAddress))
			return status.AssignedServerAddress, nil

		default:
			sameServerPolls++
			if sameServerPolls >= c.cfg.Failover.SameServerPollLimit {
				c.log.Info("assignment unchanged, retrying original server",
					log.Uint64("request", requestID),
					log.Int("polls", sameServerPolls))
				return status.AssignedServerAddress, nil
			}
			c.log.Debug("assignment unchanged, waiting",
				log.Uint64("request", requestID),
				log.Int("polls", sameServerPolls),
				log.Int("limit", c.cfg.Failover.SameServerPollLimit))
		}

		if !sleepCtx(ctx, c.cfg.Failover.PollInterval()) {
			return "", ctx.Err()
		}
	}
}

// broadcastStatusQuery asks every known server for the task's assignment and
// takes the first answer.
func (c *Client) broadcastStatusQuery(ctx context.Context, requestID uint64) (protocol.TaskStatusResponse, error) {
	resp, err := concurrent.First(ctx, c.cfg.Client.ServerAddresses,
		func(ctx context.Context, addr string) (protocol.TaskStatusResponse, error) {
			return c.queryStatusFrom(addr, requestID)
		})
	if err != nil {
		return protocol.TaskStatusResponse{}, ErrNoStatus
	}
	return resp, nil
}

func (c *Client) queryStatusFrom(addr string, requestID uint64) (protocol.TaskStatusResponse, error) {
	conn, err := protocol.Dial(addr, c.assignTimeout)
	if err != nil {
		return protocol.TaskStatusResponse{}, err
	}
	defer conn.Close()

	query := protocol.TaskStatusQuery{ClientID: c.cfg.Client.Name, RequestID: requestID}
	if err := conn.WriteMessage(query); err != nil {
		return protocol.TaskStatusResponse{}, err
	}

	msg, err := conn.ReadMessageDeadline(time.Now().Add(c.assignTimeout))
	if err != nil {
		return protocol.TaskStatusResponse{}, err
	}
	resp, ok := msg.(protocol.TaskStatusResponse)
	if !ok {
		return protocol.TaskStatusResponse{}, fmt.Errorf("unexpected %s from %s", msg.Kind(), addr)
	}
	return resp, nil
}

// sleepCtx waits for d, returning false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// generateCarrier renders a gradient PNG large enough to embed the request
// parameter text.
func generateCarrier(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8((x + y) * 255 / (width + height)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
