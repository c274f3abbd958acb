package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/combatlink/internal/domain/session"
	"github.com/okian/combatlink/internal/domain/spells"
	"github.com/okian/combatlink/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()
	table := spells.WindwalkerTable()

	Convey("Given an empty store without eviction", t, func() {
		store := NewMemoryStore(ctx, WithIdleTTL(0))
		defer store.Close()

		Convey("When a session is added", func() {
			s := session.New("a", table)
			So(store.Put(ctx, s), ShouldBeNil)

			Convey("Then it can be fetched and counted", func() {
				got, err := store.Get(ctx, "a")
				So(err, ShouldBeNil)
				So(got, ShouldPointTo, s)
				So(store.Count(ctx), ShouldEqual, 1)
			})

			Convey("Then the id cannot be reused", func() {
				So(store.Put(ctx, session.New("a", table)), ShouldEqual, ErrExists)
			})

			Convey("Then deleting it makes it unknown", func() {
				store.Delete(ctx, "a")
				store.Delete(ctx, "missing")
				_, err := store.Get(ctx, "a")
				So(err, ShouldEqual, ErrNotFound)
				So(store.Count(ctx), ShouldEqual, 0)
			})

			Convey("Then Sweep is a no-op", func() {
				So(store.Sweep(ctx), ShouldEqual, 0)
			})
		})

		Convey("When several sessions are listed", func() {
			for _, id := range []string{"c", "a", "b"} {
				So(store.Put(ctx, session.New(id, table)), ShouldBeNil)
			}
			list := store.List(ctx)

			Convey("Then every session is summarized", func() {
				So(len(list), ShouldEqual, 3)
				for i := 1; i < len(list); i++ {
					So(list[i-1].CreatedAt.After(list[i].CreatedAt), ShouldBeFalse)
				}
			})
		})
	})

	Convey("Given a store with a one hour idle TTL", t, func() {
		clock := time.Now()
		var mu sync.Mutex
		var evicted []string
		store := NewMemoryStore(ctx,
			WithIdleTTL(time.Hour),
			WithSweepInterval(time.Hour),
			WithClock(func() time.Time { return clock }),
			WithOnEvict(func(_ context.Context, s *session.Session) {
				mu.Lock()
				evicted = append(evicted, s.ID())
				mu.Unlock()
			}),
		)
		defer store.Close()
		So(store.Put(ctx, session.New("idle", table)), ShouldBeNil)

		Convey("When the session is still fresh", func() {
			n := store.Sweep(ctx)

			Convey("Then nothing is evicted", func() {
				So(n, ShouldEqual, 0)
				So(store.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the clock passes the TTL", func() {
			clock = clock.Add(2 * time.Hour)
			n := store.Sweep(ctx)

			Convey("Then the session is evicted and the hook runs", func() {
				So(n, ShouldEqual, 1)
				So(store.Count(ctx), ShouldEqual, 0)
				mu.Lock()
				So(evicted, ShouldResemble, []string{"idle"})
				mu.Unlock()
			})
		})

		Convey("When the store is closed twice", func() {
			Convey("Then Close stays safe", func() {
				So(store.Close(), ShouldBeNil)
				So(store.Close(), ShouldBeNil)
			})
		})
	})
}
