package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/rollcall/internal/adapters/mq/worker"
	model "github.com/okian/rollcall/internal/domain/model"
	logging "github.com/okian/rollcall/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	ch   chan model.Notification
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{ch: make(chan model.Notification, 128)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Notification {
	return mq.ch
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.ch) })
	return nil
}

func (mq *mockQueue) add(n model.Notification) {
	mq.ch <- n
}

type recordingHandler struct {
	mu       sync.Mutex
	seen     map[string]int
	failures map[string]int
	calls    atomic.Int64
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: map[string]int{}, failures: map[string]int{}}
}

// failFor makes the next n deliveries for eventID fail.
func (h *recordingHandler) failFor(eventID string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[eventID] = n
}

func (h *recordingHandler) Handle(ctx context.Context, n model.Notification) error {
	h.calls.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures[n.EventID] > 0 {
		h.failures[n.EventID]--
		return errors.New("sink unavailable")
	}
	h.seen[n.EventID]++
	return nil
}

func (h *recordingHandler) delivered(eventID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen[eventID]
}

func render(eventID string) model.Notification {
	return model.Notification{Kind: model.NotifyRender, EventID: eventID}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		handler := newRecordingHandler()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(queue, handler,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Nop()),
				worker.WithRetry(2, time.Millisecond),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(queue, handler, worker.WithRetry(3, time.Millisecond))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And when a notification is queued", func() {
				queue.add(render("event-1"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it is delivered once", func() {
					convey.So(handler.delivered("event-1"), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when delivery fails transiently", func() {
				handler.failFor("event-2", 2)
				queue.add(render("event-2"))
				time.Sleep(100 * time.Millisecond)

				convey.Convey("Then the retry delivers it", func() {
					convey.So(handler.delivered("event-2"), convey.ShouldEqual, 1)
					convey.So(handler.calls.Load(), convey.ShouldEqual, 3)
				})
			})

			convey.Convey("And when delivery keeps failing", func() {
				handler.failFor("event-3", 10)
				queue.add(render("event-3"))
				queue.add(render("event-4"))
				time.Sleep(100 * time.Millisecond)

				convey.Convey("Then it is dropped and the worker moves on", func() {
					convey.So(handler.delivered("event-3"), convey.ShouldEqual, 0)
					convey.So(handler.delivered("event-4"), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue closes", func() {
			w := worker.NewInMemoryWorker(queue, handler)
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()
			queue.add(render("event-5"))
			_ = queue.Close()

			convey.Convey("Then the worker drains and exits", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				convey.So(handler.delivered("event-5"), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		handler := newRecordingHandler()

		convey.Convey("When creating a worker pool with default count", func() {
			pool := worker.NewPool(0, queue, handler)

			convey.Convey("Then it falls back to the default size", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When a pool that never started shuts down", func() {
			pool := worker.NewPool(2, queue, handler)

			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("When starting a worker pool", func() {
			pool := worker.NewPool(2, queue, handler, worker.WithRetry(1, time.Millisecond))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			for i := 0; i < 3; i++ {
				queue.add(render(fmt.Sprintf("event-%d", i)))
			}

			convey.Convey("And when shutting down", func() {
				err := pool.Shutdown(context.Background())

				convey.Convey("Then queued notifications are drained first", func() {
					convey.So(err, convey.ShouldBeNil)
					for i := 0; i < 3; i++ {
						convey.So(handler.delivered(fmt.Sprintf("event-%d", i)), convey.ShouldEqual, 1)
					}
				})
			})
		})

		convey.Convey("When stopping a worker pool", func() {
			pool := worker.NewPool(2, queue, handler)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			stopped := make(chan struct{})
			go func() {
				pool.Stop()
				close(stopped)
			}()

			convey.Convey("Then all workers stop", func() {
				select {
				case <-stopped:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("pool did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerConcurrency(t *testing.T) {
	convey.Convey("Given a worker pool with multiple workers", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		handler := newRecordingHandler()

		pool := worker.NewPool(4, queue, handler)
		pool.Start(context.Background())

		convey.Convey("When many producers queue notifications", func() {
			const total = 100
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for j := 0; j < total/5; j++ {
						queue.add(render(fmt.Sprintf("event-%d-%d", p, j)))
					}
				}(i)
			}
			wg.Wait()
			_ = pool.Shutdown(context.Background())

			convey.Convey("Then every notification is delivered exactly once", func() {
				delivered := 0
				for i := 0; i < 5; i++ {
					for j := 0; j < total/5; j++ {
						delivered += handler.delivered(fmt.Sprintf("event-%d-%d", i, j))
					}
				}
				convey.So(delivered, convey.ShouldEqual, total)
			})
		})
	})
}
