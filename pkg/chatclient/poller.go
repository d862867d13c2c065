package chatclient

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	DefaultMessageInterval = 3 * time.Second
	DefaultThreadInterval  = 15 * time.Second
)

// Poller re-fetches the open thread's messages and the thread list on fixed
// intervals. There is no push channel; this loop is how updates arrive. A
// successful message fetch of the open thread is immediately acknowledged
// with mark-read. Failed ticks are transient: report and retry next tick.
type Poller struct {
	Client *Client

	MessageInterval time.Duration
	ThreadInterval  time.Duration

	// OnMessages receives only messages newer than the last cursor.
	OnMessages func(threadID string, msgs []Message)
	OnThreads  func(threads []Thread)
	// OnError, when set, observes transient tick failures. The loop keeps
	// running either way.
	OnError func(err error)

	mu         sync.Mutex
	openThread string
	afterID    uint
}

// Open switches the poller to a thread. The cursor resets so the next tick
// fetches the full history.
func (p *Poller) Open(threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openThread = threadID
	p.afterID = 0
}

// Close detaches the poller from the current thread; the thread list keeps
// refreshing.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openThread = ""
	p.afterID = 0
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	msgInterval := p.MessageInterval
	if msgInterval <= 0 {
		msgInterval = DefaultMessageInterval
	}
	threadInterval := p.ThreadInterval
	if threadInterval <= 0 {
		threadInterval = DefaultThreadInterval
	}

	msgTicker := time.NewTicker(msgInterval)
	defer msgTicker.Stop()
	threadTicker := time.NewTicker(threadInterval)
	defer threadTicker.Stop()

	// prime the thread list right away instead of waiting a full interval
	p.pollThreads(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-msgTicker.C:
			p.pollMessages(ctx)
		case <-threadTicker.C:
			p.pollThreads(ctx)
		}
	}
}

func (p *Poller) pollMessages(ctx context.Context) {
	p.mu.Lock()
	threadID := p.openThread
	afterID := p.afterID
	p.mu.Unlock()

	if threadID == "" {
		return
	}

	msgs, err := p.Client.FetchMessages(ctx, threadID, afterID, 0)
	if err != nil {
		p.report(err)
		return
	}

	if len(msgs) > 0 {
		p.mu.Lock()
		// the thread may have been switched while the fetch was in flight
		if p.openThread == threadID && msgs[len(msgs)-1].ID > p.afterID {
			p.afterID = msgs[len(msgs)-1].ID
		}
		p.mu.Unlock()

		if p.OnMessages != nil {
			p.OnMessages(threadID, msgs)
		}
	}

	// viewing the thread acknowledges it
	if err := p.Client.MarkRead(ctx, threadID); err != nil {
		p.report(err)
	}
}

func (p *Poller) pollThreads(ctx context.Context) {
	threads, err := p.Client.ListThreads(ctx)
	if err != nil {
		p.report(err)
		return
	}
	if p.OnThreads != nil {
		p.OnThreads(threads)
	}
}

func (p *Poller) report(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if p.OnError != nil {
		p.OnError(err)
		return
	}
	log.Println("chatclient poll error:", err)
}
