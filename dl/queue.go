// Package dl fetches tile store objects for the streaming engine. Queue
// orders pending requests by priority and runs them under a rate limit
// and a bounded number of concurrent fetches.
package dl

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/b1naryth1ef/terrastream"
)

type QueueOpts struct {
	Concurrency int
	// Rate is fetches per second; zero disables the limit.
	Rate    float64
	Burst   int
	Timeout time.Duration
}

type QueueStats struct {
	Pending int   `json:"pending"`
	Fetched int64 `json:"fetched"`
	Failed  int64 `json:"failed"`
	Shared  int64 `json:"shared"`
	Bytes   int64 `json:"bytes"`
}

type request struct {
	ctx  context.Context
	req  terrastream.LoadRequest
	done func([]byte, error)
	seq  uint64
}

type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority < h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(*request)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// Queue implements terrastream.Loader. Load only enqueues; Run must be
// running for anything to be fetched.
type Queue struct {
	fetcher     Fetcher
	limiter     *rate.Limiter
	sem         *semaphore.Weighted
	concurrency int64
	timeout     time.Duration
	group       singleflight.Group

	mu      sync.Mutex
	pending requestHeap
	seq     uint64
	wake    chan struct{}

	fetched atomic.Int64
	failed  atomic.Int64
	shared  atomic.Int64
	bytes   atomic.Int64
}

func NewQueue(fetcher Fetcher, opts QueueOpts) *Queue {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = concurrency
	}

	return &Queue{
		fetcher:     fetcher,
		limiter:     rate.NewLimiter(limit, burst),
		sem:         semaphore.NewWeighted(int64(concurrency)),
		concurrency: int64(concurrency),
		timeout:     opts.Timeout,
		wake:        make(chan struct{}, 1),
	}
}

func (q *Queue) Load(ctx context.Context, req terrastream.LoadRequest, done func([]byte, error)) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.pending, &request{ctx: ctx, req: req, done: done, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() *request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.pending).(*request)
}

// Run dispatches queued requests until ctx is cancelled. On return every
// in-flight fetch has finished and every request still queued has been
// completed with the context error.
func (q *Queue) Run(ctx context.Context) error {
	defer q.drain(ctx)

	for {
		r := q.pop()
		if r == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
			}
			continue
		}

		if err := r.ctx.Err(); err != nil {
			r.done(nil, err)
			continue
		}

		if err := q.limiter.Wait(ctx); err != nil {
			r.done(nil, err)
			return ctx.Err()
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			r.done(nil, err)
			return ctx.Err()
		}

		go func(r *request) {
			defer q.sem.Release(1)
			q.fetch(r)
		}(r)
	}
}

func (q *Queue) drain(ctx context.Context) {
	// Waiting for every slot means all in-flight fetches have returned.
	if err := q.sem.Acquire(context.Background(), q.concurrency); err == nil {
		q.sem.Release(q.concurrency)
	}

	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	for r := q.pop(); r != nil; r = q.pop() {
		r.done(nil, err)
	}
}

func (q *Queue) fetch(r *request) {
	ctx := r.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	req := r.req
	key := fmt.Sprintf("%s@%d+%d", req.URL, req.Offset, req.Length)
	// singleflight reports shared to the leader too; only joiners count.
	leader := false
	v, err, shared := q.group.Do(key, func() (any, error) {
		leader = true
		return q.fetcher.Fetch(ctx, req.URL, req.Offset, req.Length)
	})
	if shared && !leader {
		q.shared.Add(1)
	}
	if err != nil {
		q.failed.Add(1)
		log.Printf("[loader] failed to fetch %s %s: %v", req.Kind, req.URL, err)
		r.done(nil, err)
		return
	}

	data := v.([]byte)
	q.fetched.Add(1)
	q.bytes.Add(int64(len(data)))
	r.done(data, nil)
}

func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	pending := q.pending.Len()
	q.mu.Unlock()

	return QueueStats{
		Pending: pending,
		Fetched: q.fetched.Load(),
		Failed:  q.failed.Load(),
		Shared:  q.shared.Load(),
		Bytes:   q.bytes.Load(),
	}
}
