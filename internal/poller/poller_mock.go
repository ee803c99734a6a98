package poller

import (
	"context"
	"sync"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
)

// MOCK BACKEND - отдает заранее заготовленные ответы по очереди

type scriptedRefresher struct {
	mu        sync.Mutex
	responses []refreshResult
	calls     int
	onCall    func(call int)
}

type refreshResult struct {
	job *model.Job
	err error
}

func (m *scriptedRefresher) Refresh(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	var res refreshResult
	if call <= len(m.responses) {
		res = m.responses[call-1]
	} else {
		res = m.responses[len(m.responses)-1]
	}
	m.mu.Unlock()

	if m.onCall != nil {
		m.onCall(call)
	}
	return res.job, res.err
}

func (m *scriptedRefresher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FAKE CLOCK - sleep мгновенно сдвигает время

type fakeClock struct {
	mu     sync.Mutex
	cur    time.Time
	sleeps []time.Duration
	onSlp  func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	c.mu.Unlock()

	if c.onSlp != nil {
		c.onSlp(n)
	}
	return ctx.Err()
}

// HANGING BACKEND - статус-запрос висит, пока жив контекст запроса

type hangingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (m *hangingRefresher) Refresh(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	<-ctx.Done()
	return nil, &model.PollError{JobID: id, Reason: model.ReasonNetwork, Cause: ctx.Err()}
}

func (m *hangingRefresher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
