package hostsession

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/antialize/simple-admin-sub001/internal/frame"
)

// HostClient is one connected agent's channel, demultiplexed by job id.
// Grounded on original_source/server-rs/src/hostclient.rs's
// job_sinks/next_job_id pair.
type HostClient struct {
	ID   int64
	Name string

	ch  frame.Channel
	log *slog.Logger

	mu       sync.Mutex
	jobSinks map[uint64]chan Envelope

	nextJobID uint64 // atomic, starts at ServerJobIDBase

	closeOnce sync.Once
}

func newHostClient(id int64, name string, ch frame.Channel, log *slog.Logger) *HostClient {
	return &HostClient{
		ID:        id,
		Name:      name,
		ch:        ch,
		log:       log,
		jobSinks:  make(map[uint64]chan Envelope),
		nextJobID: ServerJobIDBase,
	}
}

// StartJob allocates a new server-originated job id, registers its reply
// sink, stamps msg.ID, and sends it to the agent. The returned JobHandle
// receives every subsequent envelope the agent sends back for that job.
func (c *HostClient) StartJob(msg Envelope) (*JobHandle, error) {
	id := atomic.AddUint64(&c.nextJobID, 1) - 1
	sink := make(chan Envelope, 16)

	c.mu.Lock()
	c.jobSinks[id] = sink
	c.mu.Unlock()

	msg.ID = id
	if err := c.ch.Send(msg); err != nil {
		c.releaseJob(id)
		return nil, err
	}
	return &JobHandle{ID: id, client: c, recv: sink}, nil
}

// SendJob sends an additional envelope for an already-started job id
// (e.g. terminal stdin framed as Data) without allocating a new id.
func (c *HostClient) SendJob(id uint64, msg Envelope) error {
	msg.ID = id
	return c.ch.Send(msg)
}

func (c *HostClient) releaseJob(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.jobSinks[id]; ok {
		delete(c.jobSinks, id)
		close(ch)
	}
}

func (c *HostClient) sendKill(id uint64) error {
	return c.ch.Send(Envelope{Type: MessageKill, ID: id})
}

// dispatch routes an inbound envelope to its job's sink. Ping/Pong are
// connection-level and never job-addressed (original_source/server-rs's
// job_id() returns None for them too), so they bypass sink lookup
// entirely. Any other message whose id doesn't match a live job sink is
// logged and killed (spec §4.D), mirroring hostclient.rs's
// handle_message: an unknown-id message still gets a kill spawned for
// that id even though no local job is waiting on it.
func (c *HostClient) dispatch(env Envelope) {
	id, jobAddressed := env.JobID()
	if !jobAddressed {
		return
	}

	c.mu.Lock()
	sink, ok := c.jobSinks[id]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("hostsession: message for unknown job", "host", c.Name, "job", id, "type", env.Type)
		if err := c.sendKill(id); err != nil {
			c.log.Warn("hostsession: kill on unknown job failed", "host", c.Name, "job", id, "err", err)
		}
		return
	}
	select {
	case sink <- env:
	default:
	}
}

// Close closes the underlying channel and every outstanding job sink.
func (c *HostClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for id, ch := range c.jobSinks {
			delete(c.jobSinks, id)
			close(ch)
		}
		c.mu.Unlock()
		err = c.ch.Close()
	})
	return err
}
