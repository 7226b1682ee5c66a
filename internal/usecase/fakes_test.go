package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/google/uuid"
)

// events records the order of side effects across fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeQueue struct {
	ev         *events
	mu         sync.Mutex
	leases     []*entity.Lease
	receiveErr []error
	extended   []time.Duration
	deleted    []string
	extendErr  error
	deleteErr  error
	received   int
}

func (q *fakeQueue) Receive(ctx context.Context, wait time.Duration) (*entity.Lease, error) {
	q.mu.Lock()
	q.received++
	if len(q.receiveErr) > 0 {
		err := q.receiveErr[0]
		q.receiveErr = q.receiveErr[1:]
		q.mu.Unlock()
		return nil, err
	}
	if len(q.leases) > 0 {
		l := q.leases[0]
		q.leases = q.leases[1:]
		q.mu.Unlock()
		return l, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(min(wait, 5*time.Millisecond)):
		return nil, nil
	}
}

func (q *fakeQueue) ExtendVisibility(_ context.Context, _ *entity.Lease, d time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.extendErr != nil {
		return q.extendErr
	}
	q.extended = append(q.extended, d)
	return nil
}

func (q *fakeQueue) Delete(_ context.Context, lease *entity.Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deleted = append(q.deleted, lease.ID)
	if q.ev != nil {
		q.ev.add("delete")
	}
	return nil
}

func (q *fakeQueue) extensions() []time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]time.Duration(nil), q.extended...)
}

type fakeStore struct {
	err        error
	downloaded []string
}

func (s *fakeStore) Download(_ context.Context, bucket, object, destPath string) error {
	if s.err != nil {
		return s.err
	}
	s.downloaded = append(s.downloaded, bucket+"/"+object)
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

type fakeCompletion struct {
	ev     *events
	err    error
	bodies [][]byte
	types  []string
}

func (c *fakeCompletion) PublishCompletion(_ context.Context, body []byte, contentType string) error {
	if c.err != nil {
		return c.err
	}
	c.bodies = append(c.bodies, body)
	c.types = append(c.types, contentType)
	if c.ev != nil {
		c.ev.add("publish")
	}
	return nil
}

type fakeDLQ struct {
	msgs    [][]byte
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	d.msgs = append(d.msgs, msg)
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeControl struct {
	ev    *events
	mu    sync.Mutex
	calls []bool
	err   error
}

func (c *fakeControl) SetTerminationProtection(_ context.Context, _ string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, enabled)
	if c.ev != nil {
		if enabled {
			c.ev.add("protect")
		} else {
			c.ev.add("unprotect")
		}
	}
	return c.err
}

type fakeRepo struct {
	attempts map[uuid.UUID]int
	jobs     map[uuid.UUID]entity.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{attempts: map[uuid.UUID]int{}, jobs: map[uuid.UUID]entity.Job{}}
}

func (r *fakeRepo) Begin(_ context.Context, job *entity.Job) (int, error) {
	r.attempts[job.ID]++
	r.jobs[job.ID] = *job
	return r.attempts[job.ID], nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	r.jobs[job.ID] = *job
	return nil
}

type fakeNotifier struct {
	jobs []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, jobID, _, _ string) error {
	n.jobs = append(n.jobs, jobID)
	return nil
}

type fakeDecoder struct {
	total int
}

func (d *fakeDecoder) Open(context.Context, string, int) (port.FrameSource, error) {
	return &fakeSource{total: d.total}, nil
}

type fakeSource struct {
	total int
	pos   int
}

func (s *fakeSource) Next() (entity.Frame, error) {
	if s.pos >= s.total {
		return entity.Frame{}, io.EOF
	}
	s.pos++
	return entity.Frame{Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}, nil
}

func (s *fakeSource) Close() error { return nil }

// fakePredictor labels every frame "person" scored by its index; class
// overrides the class index and failOn makes that 1-based call fail.
type fakePredictor struct {
	calls  []int
	failOn int
	class  float64
}

func (p *fakePredictor) Predict(_ context.Context, batch []entity.Tensor) ([]port.RawPrediction, error) {
	p.calls = append(p.calls, len(batch))
	if p.failOn > 0 && len(p.calls) == p.failOn {
		return nil, errors.New("connection reset by peer")
	}
	class := p.class
	if class == 0 {
		class = 1
	}
	out := make([]port.RawPrediction, len(batch))
	for i, t := range batch {
		out[i] = port.RawPrediction{
			NumDetections:    1,
			DetectionClasses: []float64{class},
			DetectionScores:  []float64{float64(t.Index) / 100},
		}
	}
	return out, nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	leases []string
	panic  bool
}

func (e *fakeExecutor) Execute(_ context.Context, lease *entity.Lease) (entity.JobState, error) {
	e.mu.Lock()
	e.leases = append(e.leases, lease.ID)
	e.mu.Unlock()
	if e.panic {
		panic("boom")
	}
	return entity.StateAcknowledged, nil
}

func (e *fakeExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.leases...)
}
