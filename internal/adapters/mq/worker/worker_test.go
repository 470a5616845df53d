package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/offerwise/internal/adapters/mq/queue"
	worker "github.com/okian/offerwise/internal/adapters/mq/worker"
	logging "github.com/okian/offerwise/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recordingSink counts writes and can be told to fail.
type recordingSink struct {
	mu     sync.Mutex
	data   map[string][]byte
	puts   int
	failOn map[string]error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{data: map[string][]byte{}, failOn: map[string]error{}}
}

func (s *recordingSink) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[key]; err != nil {
		return err
	}
	s.puts++
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *recordingSink) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *recordingSink) setFail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, key)
		return
	}
	s.failOn[key] = err
}

func (s *recordingSink) snapshot() (map[string]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = string(v)
	}
	return out, s.puts
}

func TestFlusher(t *testing.T) {
	convey.Convey("Given a flusher with a short debounce", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewCoalescingQueue()
		sink := newRecordingSink()
		f := worker.NewFlusher(q, sink,
			worker.WithDebounce(30*time.Millisecond),
			worker.WithName("test"),
			worker.WithLogger(logging.NewNop()),
		)
		go f.Run(ctx)

		convey.Convey("When a burst of writes hits the same key", func() {
			for _, v := range []string{"a", "b", "c", "d"} {
				q.Enqueue(ctx, queue.Write{Key: "workflow.active", Value: []byte(v)})
				time.Sleep(5 * time.Millisecond)
			}
			time.Sleep(150 * time.Millisecond)

			convey.Convey("Then only the last value is written, once", func() {
				data, puts := sink.snapshot()
				convey.So(data["workflow.active"], convey.ShouldEqual, "d")
				convey.So(puts, convey.ShouldEqual, 1)
				convey.So(q.Len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutdown happens before the debounce elapses", func() {
			slow := queue.NewCoalescingQueue()
			slowSink := newRecordingSink()
			g := worker.NewFlusher(slow, slowSink, worker.WithDebounce(time.Hour), worker.WithLogger(logging.NewNop()))
			go g.Run(ctx)

			slow.Enqueue(ctx, queue.Write{Key: "session.current", Value: []byte("s")})
			err := g.Shutdown(context.Background())

			convey.Convey("Then pending writes are flushed on the way out", func() {
				convey.So(err, convey.ShouldBeNil)
				data, _ := slowSink.snapshot()
				convey.So(data["session.current"], convey.ShouldEqual, "s")
			})

			convey.Convey("And a second shutdown is harmless", func() {
				convey.So(g.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a delete is queued after a put", func() {
			q.Enqueue(ctx, queue.Write{Key: "reminders.pending", Value: []byte("x")})
			q.Enqueue(ctx, queue.Write{Key: "reminders.pending", Delete: true})
			convey.So(f.Flush(ctx), convey.ShouldBeNil)

			convey.Convey("Then the key is absent from the sink", func() {
				data, puts := sink.snapshot()
				_, ok := data["reminders.pending"]
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(puts, convey.ShouldEqual, 0)
			})
		})

		convey.Reset(func() {
			_ = f.Shutdown(context.Background())
		})
	})
}

func TestFlusher_Errors(t *testing.T) {
	convey.Convey("Given a sink that rejects one key", t, func() {
		ctx := context.Background()
		q := queue.NewCoalescingQueue()
		sink := newRecordingSink()
		boom := errors.New("disk full")
		sink.setFail("weights.active", boom)

		var reported []error
		f := worker.NewFlusher(q, sink,
			worker.WithLogger(logging.NewNop()),
			worker.WithErrorHandler(func(err error) { reported = append(reported, err) }),
		)

		q.Enqueue(ctx, queue.Write{Key: "weights.active", Value: []byte("w1")})
		q.Enqueue(ctx, queue.Write{Key: "session.current", Value: []byte("s1")})

		convey.Convey("When flushing", func() {
			err := f.Flush(ctx)

			convey.Convey("Then the error is returned and reported", func() {
				convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
				convey.So(len(reported), convey.ShouldEqual, 1)
			})

			convey.Convey("And the healthy write still lands", func() {
				data, _ := sink.snapshot()
				convey.So(data["session.current"], convey.ShouldEqual, "s1")
			})

			convey.Convey("And the failed write is requeued for the next flush", func() {
				w, ok := q.Pending("weights.active")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(string(w.Value), convey.ShouldEqual, "w1")

				sink.setFail("weights.active", nil)
				convey.So(f.Flush(ctx), convey.ShouldBeNil)
				data, _ := sink.snapshot()
				convey.So(data["weights.active"], convey.ShouldEqual, "w1")
			})
		})
	})
}
