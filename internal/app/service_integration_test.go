package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	service "github.com/okian/combatlink/internal/app"
	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/internal/domain/spells"
	"github.com/okian/combatlink/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func ev(seq int64, kind model.SpellIdentity, ts, source int64) model.ObservedEvent {
	return model.ObservedEvent{Kind: kind, Timestamp: ts, SourceActorID: source, TargetActorID: 99, Seq: seq}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a running service with an archive", t, func() {
		archivePath := filepath.Join(t.TempDir(), "reports.db")
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithDedupeSize(100),
			service.WithArchivePath(archivePath),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		id, err := svc.OpenSession(ctx)
		So(err, ShouldBeNil)
		So(id, ShouldNotBeEmpty)

		Convey("When a Windwalker log is submitted in two batches and finished", func() {
			_, err := svc.Submit(ctx, id, "b1", []model.ObservedEvent{
				ev(1, spells.FistsOfFuryCast, 0, 1),
				ev(2, spells.FistsOfFuryDamage, 100, 1),
				ev(3, spells.FaelineStompCast, 200, 1),
			})
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, id, "b2", []model.ObservedEvent{
				ev(4, spells.FaelineStompDamageAndHeal, 250, 1),
				ev(5, spells.FaelineStompPulseDamage, 260, 1),
				ev(6, spells.FistsOfFuryDamage, 300, 1),
			})
			So(err, ShouldBeNil)

			r, err := svc.FinishSession(ctx, id)
			So(err, ShouldBeNil)

			Convey("Then the report covers every queued event", func() {
				So(r.Finished, ShouldBeTrue)
				So(r.Events, ShouldEqual, 6)
				So(r.Attributed, ShouldEqual, 3)
				So(r.Unattributed, ShouldEqual, 1)
				So(r.Unconsumed, ShouldEqual, 0)
			})

			Convey("Then attribution queries resolve", func() {
				cause, found, err := svc.CauseOf(ctx, id, 5)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(cause.Seq, ShouldEqual, 3)

				_, found, err = svc.CauseOf(ctx, id, 6)
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)

				effects, err := svc.EffectsOf(ctx, id, 3)
				So(err, ShouldBeNil)
				So(len(effects), ShouldEqual, 2)
				So(effects[0].Seq, ShouldEqual, 4)

				annotated, err := svc.Event(ctx, id, 2)
				So(err, ShouldBeNil)
				So(*annotated.CauseSeq, ShouldEqual, 1)

				_, err = svc.Event(ctx, id, 404)
				So(err, ShouldEqual, service.ErrEventNotFound)
			})

			Convey("Then finishing again returns the same report", func() {
				again, err := svc.FinishSession(ctx, id)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, r)
			})

			Convey("Then the report is archived and survives a restart", func() {
				list, err := svc.Archived(ctx, 10)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)
				So(list[0].SessionID, ShouldEqual, id)

				svc.Stop()
				restarted := service.New(service.WithWorkerCount(1), service.WithArchivePath(archivePath))
				So(restarted.Start(ctx), ShouldBeNil)
				defer restarted.Stop()

				archived, err := restarted.Report(ctx, id)
				So(err, ShouldBeNil)
				So(archived.Attributed, ShouldEqual, 3)
			})
		})

		Convey("When a report is requested for an unknown session", func() {
			_, err := svc.Report(ctx, "unknown")

			Convey("Then ErrSessionNotFound is returned", func() {
				So(err, ShouldEqual, service.ErrSessionNotFound)
			})
		})

		Convey("When stats are requested", func() {
			stats := svc.GetStats()

			Convey("Then live counters are included", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["activeSessions"], ShouldEqual, 1)
				So(stats["rules"], ShouldEqual, len(spells.Windwalker()))
				So(stats["archiveEnabled"], ShouldEqual, true)
				So(len(svc.Sessions(ctx)), ShouldEqual, 1)
			})
		})
	})
}

func TestServiceConcurrency(t *testing.T) {
	Convey("Given many sessions fed concurrently", t, func() {
		svc := service.New(service.WithWorkerCount(4), service.WithQueueSize(10000))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		const sessions = 8
		const casts = 50
		ids := make([]string, sessions)
		for i := range ids {
			id, err := svc.OpenSession(ctx)
			So(err, ShouldBeNil)
			ids[i] = id
		}

		var wg sync.WaitGroup
		errs := make(chan error, sessions*casts)
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for c := int64(0); c < casts; c++ {
					batch := []model.ObservedEvent{
						ev(2*c+1, spells.RisingSunKick, 100*c, 7),
						ev(2*c+2, spells.RisingSunKickSecond, 100*c+20, 7),
					}
					if _, err := svc.Submit(ctx, id, fmt.Sprintf("b%d", c), batch); err != nil {
						errs <- err
					}
				}
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			So(err, ShouldBeNil)
		}

		Convey("Then every session attributes all of its own effects", func() {
			for _, id := range ids {
				r, err := svc.FinishSession(ctx, id)
				So(err, ShouldBeNil)
				So(r.Events, ShouldEqual, 2*casts)
				So(r.Attributed, ShouldEqual, casts)
				So(r.Unattributed, ShouldEqual, 0)
			}
		})
	})
}
