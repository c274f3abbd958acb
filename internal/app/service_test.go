package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given service options", t, func() {
		Convey("When creating a service with defaults", func() {
			svc := New()

			Convey("Then defaults are applied", func() {
				So(svc.workerCount, ShouldBeGreaterThan, 0)
				So(svc.queueSize, ShouldEqual, 10000)
				So(svc.maxBatchEvents, ShouldEqual, 5000)
				So(svc.windowMs, ShouldEqual, 0)
			})
		})

		Convey("When creating a service with custom options", func() {
			svc := New(
				WithWorkerCount(3),
				WithQueueSize(10),
				WithDedupeSize(20),
				WithWindow(1500),
				WithMaxBatchEvents(7),
				WithIdleTTL(0),
				WithRulesPath("rules.yaml"),
				WithArchivePath("reports.db"),
			)

			Convey("Then they are recorded", func() {
				So(svc.workerCount, ShouldEqual, 3)
				So(svc.queueSize, ShouldEqual, 10)
				So(svc.dedupeSize, ShouldEqual, 20)
				So(svc.windowMs, ShouldEqual, 1500)
				So(svc.maxBatchEvents, ShouldEqual, 7)
				So(svc.idleTTL, ShouldEqual, time.Duration(0))
				So(svc.rulesPath, ShouldEqual, "rules.yaml")
				So(svc.archivePath, ShouldEqual, "reports.db")
			})
		})

		Convey("When invalid values are given", func() {
			svc := New(WithWorkerCount(-1), WithQueueSize(0), WithWindow(-1), WithTable(nil), WithLogger(nil))

			Convey("Then they are ignored", func() {
				So(svc.workerCount, ShouldBeGreaterThan, 0)
				So(svc.queueSize, ShouldEqual, 10000)
				So(svc.windowMs, ShouldEqual, 0)
				So(svc.table, ShouldBeNil)
			})
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a service with a broken ruleset file", t, func() {
		svc := New(WithRulesPath(filepath.Join(t.TempDir(), "missing.yaml")))

		Convey("When starting", func() {
			err := svc.Start(context.Background())

			Convey("Then startup fails and nothing runs", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "load attribution rules")
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.OpenSession(context.Background())
				So(err, ShouldEqual, ErrNotStarted)
			})
		})
	})

	Convey("Given a service with an explicit table", t, func() {
		table := attribution.NewTable()
		So(table.Register(model.SpellIdentity{ID: 1}, []model.SpellIdentity{{ID: 2}}), ShouldBeNil)
		svc := New(WithTable(table), WithWorkerCount(1))

		Convey("When started twice and stopped twice", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			svc.Stop()
			svc.Stop()

			Convey("Then the table is sealed and used", func() {
				So(table.Sealed(), ShouldBeTrue)
				So(len(svc.Rules()), ShouldEqual, 1)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service", t, func() {
		svc := New(WithWorkerCount(2), WithQueueSize(100), WithMaxBatchEvents(3))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		id, err := svc.OpenSession(ctx)
		So(err, ShouldBeNil)

		Convey("When the batch id is missing", func() {
			_, err := svc.Submit(ctx, id, "", nil)

			Convey("Then the batch is invalid", func() {
				So(errors.Is(err, ErrInvalidBatch), ShouldBeTrue)
			})
		})

		Convey("When the batch is too large", func() {
			_, err := svc.Submit(ctx, id, "b1", make([]model.ObservedEvent, 4))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, ErrBatchTooLarge), ShouldBeTrue)
			})
		})

		Convey("When the session does not exist", func() {
			_, err := svc.Submit(ctx, "nope", "b1", nil)

			Convey("Then ErrSessionNotFound is returned", func() {
				So(err, ShouldEqual, ErrSessionNotFound)
			})
		})

		Convey("When the same batch is submitted twice", func() {
			dup1, err1 := svc.Submit(ctx, id, "b1", nil)
			dup2, err2 := svc.Submit(ctx, id, "b1", nil)

			Convey("Then the second copy is a duplicate", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(dup1, ShouldBeFalse)
				So(dup2, ShouldBeTrue)
			})
		})

		Convey("When the session is finished", func() {
			_, err := svc.FinishSession(ctx, id)
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, id, "late", nil)

			Convey("Then new batches are refused", func() {
				So(err, ShouldEqual, ErrSessionFinished)
			})

			Convey("And a retry of the refused batch is refused again, not a duplicate", func() {
				dup, err := svc.Submit(ctx, id, "late", nil)
				So(err, ShouldEqual, ErrSessionFinished)
				So(dup, ShouldBeFalse)
			})
		})
	})
}

func TestService_SubmitDuringFinish(t *testing.T) {
	ctx := context.Background()

	Convey("Given batches streaming into a session while it is finished", t, func() {
		svc := New(WithWorkerCount(2), WithQueueSize(10000))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		id, err := svc.OpenSession(ctx)
		So(err, ShouldBeNil)

		filler := model.SpellIdentity{ID: 100780, Name: "Tiger Palm"}
		var (
			accepted atomic.Int64
			wg       sync.WaitGroup
		)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					seq := int64(g*1000 + i + 1)
					batch := []model.ObservedEvent{{Kind: filler, Timestamp: seq, SourceActorID: 1, Seq: seq}}
					dup, err := svc.Submit(ctx, id, fmt.Sprintf("b-%d", seq), batch)
					if err == nil && !dup {
						accepted.Add(1)
					}
				}
			}(g)
		}
		time.Sleep(time.Millisecond)
		r, err := svc.FinishSession(ctx, id)
		So(err, ShouldBeNil)
		wg.Wait()

		Convey("Then every accepted batch is in the report and nothing lands after it", func() {
			So(r.Finished, ShouldBeTrue)
			So(r.Events, ShouldEqual, int(accepted.Load()))

			again, err := svc.Report(ctx, id)
			So(err, ShouldBeNil)
			So(again.Events, ShouldEqual, r.Events)
		})
	})
}

func TestService_ReportDuringApply(t *testing.T) {
	ctx := context.Background()

	Convey("Given reports read while batches are applied", t, func() {
		svc := New(WithWorkerCount(1), WithQueueSize(10000))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		id, err := svc.OpenSession(ctx)
		So(err, ShouldBeNil)

		filler := model.SpellIdentity{ID: 100780, Name: "Tiger Palm"}
		done := make(chan struct{})
		go func() {
			defer close(done)
			var wg sync.WaitGroup
			for r := 0; r < 4; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 200; i++ {
						_, _ = svc.Report(ctx, id)
						_ = svc.Sessions(ctx)
					}
				}()
			}
			for seq := int64(1); seq <= 300; seq++ {
				batch := []model.ObservedEvent{{Kind: filler, Timestamp: seq, SourceActorID: 1, Seq: seq}}
				_, _ = svc.Submit(ctx, id, fmt.Sprintf("b-%d", seq), batch)
			}
			wg.Wait()
		}()

		Convey("Then readers and workers all make progress", func() {
			select {
			case <-done:
			case <-time.After(10 * time.Second):
				So("reports and submits did not finish", ShouldBeEmpty)
			}
			r, err := svc.FinishSession(ctx, id)
			So(err, ShouldBeNil)
			So(r.Events, ShouldEqual, 300)
		})
	})
}

func TestService_StopDrainsQueue(t *testing.T) {
	Convey("Given a service whose start context is canceled with batches queued", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		svc := New(WithWorkerCount(2), WithQueueSize(10000))
		So(svc.Start(ctx), ShouldBeNil)

		id, err := svc.OpenSession(ctx)
		So(err, ShouldBeNil)

		filler := model.SpellIdentity{ID: 100780, Name: "Tiger Palm"}
		for seq := int64(1); seq <= 500; seq++ {
			batch := []model.ObservedEvent{{Kind: filler, Timestamp: seq, SourceActorID: 1, Seq: seq}}
			_, err := svc.Submit(context.Background(), id, fmt.Sprintf("b-%d", seq), batch)
			So(err, ShouldBeNil)
		}
		cancel()
		svc.Stop()

		Convey("Then Stop still applies every queued batch", func() {
			sess, err := svc.store.Get(context.Background(), id)
			So(err, ShouldBeNil)
			So(sess.Summary().Stats.Observed, ShouldEqual, 500)
		})
	})
}

func TestInflight(t *testing.T) {
	Convey("Given an inflight tracker", t, func() {
		f := newInflight()

		Convey("When nothing is in flight", func() {
			Convey("Then wait returns at once", func() {
				So(f.wait(context.Background(), "s"), ShouldBeNil)
			})
		})

		Convey("When batches complete later", func() {
			f.add("s")
			f.add("s")
			go func() {
				time.Sleep(10 * time.Millisecond)
				f.done("s")
				f.done("s")
			}()

			Convey("Then wait returns once all are done", func() {
				So(f.wait(context.Background(), "s"), ShouldBeNil)
			})
		})

		Convey("When the session is closed", func() {
			So(f.add("s"), ShouldBeTrue)
			closed := make(chan error, 1)
			go func() { closed <- f.close(context.Background(), "s") }()

			Convey("Then close waits for the earlier batch and refuses new ones", func() {
				time.Sleep(10 * time.Millisecond)
				So(f.add("s"), ShouldBeFalse)
				So(f.add("other"), ShouldBeTrue)
				select {
				case <-closed:
					So("close returned with a batch in flight", ShouldBeEmpty)
				default:
				}
				f.done("s")
				So(<-closed, ShouldBeNil)

				f.reopen("s")
				So(f.add("s"), ShouldBeTrue)
			})
		})

		Convey("When the context ends first", func() {
			f.add("s")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			Convey("Then wait reports the context error", func() {
				So(errors.Is(f.wait(ctx, "s"), context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}
