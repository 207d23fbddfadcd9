package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pitchvision/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(i int) Job {
	return Job{Frame: model.Frame{Index: i}}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue of capacity two", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When jobs are enqueued and dequeued", func() {
			So(q.Enqueue(ctx, job(0)), ShouldBeNil)
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)

			out := q.Dequeue(ctx)
			first := <-out
			second := <-out

			Convey("Then they come out in order with an enqueue time", func() {
				So(first.Frame.Index, ShouldEqual, 0)
				So(second.Frame.Index, ShouldEqual, 1)
				So(first.Enqueued.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, job(0)), ShouldBeNil)
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)

			Convey("Then Enqueue blocks until the context expires", func() {
				tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
				defer cancel()
				err := q.Enqueue(tctx, job(2))
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})

			Convey("Then Enqueue proceeds once a consumer reads", func() {
				out := q.Dequeue(ctx)
				done := make(chan error, 1)
				go func() { done <- q.Enqueue(ctx, job(2)) }()
				got := []int{(<-out).Frame.Index, (<-out).Frame.Index, (<-out).Frame.Index}
				So(<-done, ShouldBeNil)
				So(got, ShouldResemble, []int{0, 1, 2})
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, job(0)), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then new jobs are refused", func() {
				So(errors.Is(q.Enqueue(ctx, job(1)), ErrClosed), ShouldBeTrue)
			})

			Convey("Then queued jobs drain before the channel closes", func() {
				var seen []int
				for j := range q.Dequeue(ctx) {
					seen = append(seen, j.Frame.Index)
				}
				So(seen, ShouldResemble, []int{0})
			})
		})

		Convey("When a decode failure is queued", func() {
			So(q.Enqueue(ctx, Job{Frame: model.Frame{Index: 3}, DecodeErr: errors.New("bad packet")}), ShouldBeNil)

			Convey("Then the error travels with the job", func() {
				j := <-q.Dequeue(ctx)
				So(j.DecodeErr, ShouldNotBeNil)
				So(j.Frame.Index, ShouldEqual, 3)
			})
		})
	})

	Convey("Given default options", t, func() {
		So(NewInMemoryQueue(WithCapacity(0)).Capacity(), ShouldEqual, defaultQueueCapacity)
	})
}
