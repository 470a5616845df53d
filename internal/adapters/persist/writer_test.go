package persist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/adapters/persist"
	logging "github.com/okian/offerwise/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWriter(t *testing.T) {
	Convey("Given a writer over a memory store with a long debounce", t, func() {
		ctx := context.Background()
		backing := kv.NewMemoryStore()
		w := persist.NewWriter(ctx, backing, persist.Options{Debounce: time.Hour, Logger: logging.NewNop()})

		Convey("When a value is put", func() {
			So(w.Put(ctx, kv.KeySession, []byte(`{"id":"s1"}`)), ShouldBeNil)

			Convey("Then reads see it before the flush", func() {
				got, err := w.Get(ctx, kv.KeySession)
				So(err, ShouldBeNil)
				So(string(got), ShouldEqual, `{"id":"s1"}`)
				So(w.Pending(), ShouldEqual, 1)

				_, err = backing.Get(ctx, kv.KeySession)
				So(errors.Is(err, kv.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then Close makes it durable", func() {
				So(w.Close(ctx), ShouldBeNil)
				got, err := backing.Get(ctx, kv.KeySession)
				So(err, ShouldBeNil)
				So(string(got), ShouldEqual, `{"id":"s1"}`)
			})

			Convey("Then writes after Close are rejected", func() {
				So(w.Close(ctx), ShouldBeNil)
				So(w.Put(ctx, kv.KeyWorkflow, []byte("{}")), ShouldNotBeNil)
			})
		})

		Convey("When a stored key is deleted", func() {
			So(backing.Put(ctx, kv.KeyWeights, []byte("{}")), ShouldBeNil)
			So(w.Delete(ctx, kv.KeyWeights), ShouldBeNil)

			Convey("Then reads already treat it as missing", func() {
				_, err := w.Get(ctx, kv.KeyWeights)
				So(errors.Is(err, kv.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then the flush removes it from the backing store", func() {
				So(w.Flush(ctx), ShouldBeNil)
				_, err := backing.Get(ctx, kv.KeyWeights)
				So(errors.Is(err, kv.ErrNotFound), ShouldBeTrue)
			})
		})

		Reset(func() { _ = w.Close(ctx) })
	})
}

func TestWithWriter(t *testing.T) {
	Convey("Given a scoped writer", t, func() {
		ctx := context.Background()
		backing := kv.NewMemoryStore()

		Convey("When the function succeeds", func() {
			err := persist.WithWriter(ctx, backing, persist.Options{Debounce: time.Hour}, func(s kv.Store) error {
				return kv.PutJSON(ctx, s, kv.KeyWorkflow, map[string]string{"step": "offer"})
			})

			Convey("Then the write is flushed before returning", func() {
				So(err, ShouldBeNil)
				var got map[string]string
				found, err := kv.GetJSON(ctx, backing, kv.KeyWorkflow, &got)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(got["step"], ShouldEqual, "offer")
			})
		})

		Convey("When the function fails", func() {
			boom := errors.New("boom")
			err := persist.WithWriter(ctx, backing, persist.Options{Debounce: time.Hour}, func(s kv.Store) error {
				_ = s.Put(ctx, kv.KeySession, []byte("{}"))
				return boom
			})

			Convey("Then the error is returned and earlier writes still land", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				_, gerr := backing.Get(ctx, kv.KeySession)
				So(gerr, ShouldBeNil)
			})
		})
	})
}
