package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/internal/domain/spells"
	. "github.com/smartystreets/goconvey/convey"
)

func event(seq int64, kind model.SpellIdentity, ts int64) model.ObservedEvent {
	return model.ObservedEvent{Kind: kind, Timestamp: ts, SourceActorID: 1, TargetActorID: 2, Seq: seq}
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	Convey("Given a Windwalker session", t, func() {
		s := New("s-1", spells.WindwalkerTable())
		So(s.ID(), ShouldEqual, "s-1")

		Convey("When a cast and its damage are applied", func() {
			res, err := s.Apply(ctx, []model.ObservedEvent{
				event(1, spells.RisingSunKick, 0),
				event(2, spells.RisingSunKickSecond, 300),
				event(3, spells.TigerPalm, 400),
			})

			Convey("Then outcomes are tallied", func() {
				So(err, ShouldBeNil)
				So(res.Count(attribution.OutcomePending), ShouldEqual, 1)
				So(res.Count(attribution.OutcomeAttributed), ShouldEqual, 1)
				So(res.Count(attribution.OutcomePassThrough), ShouldEqual, 1)
			})

			Convey("Then queries resolve by seq", func() {
				cause, found, err := s.CauseOf(2)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(cause.Seq, ShouldEqual, 1)

				effects, err := s.EffectsOf(1)
				So(err, ShouldBeNil)
				So(len(effects), ShouldEqual, 1)
				So(effects[0].Seq, ShouldEqual, 2)

				annotated, err := s.Annotated(2)
				So(err, ShouldBeNil)
				So(*annotated.CauseSeq, ShouldEqual, 1)
			})

			Convey("Then unknown seqs are reported", func() {
				_, _, err := s.CauseOf(99)
				So(err, ShouldEqual, ErrNoEvent)
				_, err = s.EffectsOf(99)
				So(err, ShouldEqual, ErrNoEvent)
				_, err = s.Annotated(99)
				So(err, ShouldEqual, ErrNoEvent)
			})

			Convey("Then the summary reflects the stats", func() {
				sum := s.Summary()
				So(sum.ID, ShouldEqual, "s-1")
				So(sum.Finished, ShouldBeFalse)
				So(sum.Stats.Observed, ShouldEqual, 3)
				So(sum.Stats.Attributed, ShouldEqual, 1)
			})
		})

		Convey("When the session is finished", func() {
			_, err := s.Apply(ctx, []model.ObservedEvent{event(1, spells.ChiWave, 0)})
			So(err, ShouldBeNil)
			left, first := s.Finish(ctx)

			Convey("Then pending casts are returned and further batches fail", func() {
				So(len(left), ShouldEqual, 1)
				So(left[0].Missing, ShouldResemble, []model.SpellIdentity{spells.ChiWaveDamage})
				So(s.Finished(), ShouldBeTrue)
				_, err := s.Apply(ctx, []model.ObservedEvent{event(2, spells.ChiWaveDamage, 10)})
				So(err, ShouldEqual, ErrFinished)
				So(first, ShouldBeTrue)
				again, first := s.Finish(ctx)
				So(first, ShouldBeFalse)
				So(again, ShouldResemble, left)
			})
		})

		Convey("When activity happens", func() {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			s.now = func() time.Time { return base }
			_, _ = s.Apply(ctx, nil)

			Convey("Then LastActivity moves", func() {
				So(s.LastActivity(), ShouldEqual, base)
			})
		})

		Convey("When readers run alongside the writer", func() {
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 50; j++ {
						s.Summary()
						_, _ = s.EffectsOf(1)
					}
				}()
			}
			for seq := int64(1); seq <= 100; seq += 2 {
				_, _ = s.Apply(ctx, []model.ObservedEvent{
					event(seq, spells.FistsOfFuryCast, seq),
					event(seq+1, spells.FistsOfFuryDamage, seq+1),
				})
			}
			wg.Wait()

			Convey("Then every damage tick is attributed", func() {
				var total int
				s.View(func(_ *attribution.Table, index *attribution.Index, stats attribution.Stats, _ bool) {
					total = len(index.Results())
					So(stats.Unattributed, ShouldEqual, 0)
				})
				So(total, ShouldEqual, 50)
			})
		})
	})
}

func TestSessionViewWithPendingWriter(t *testing.T) {
	ctx := context.Background()

	Convey("Given a session read through View", t, func() {
		s := New("s-2", spells.WindwalkerTable())
		_, err := s.Apply(ctx, []model.ObservedEvent{event(1, spells.ChiWave, 0)})
		So(err, ShouldBeNil)

		Convey("When a writer queues up while the view is open", func() {
			applied := make(chan struct{})
			viewed := make(chan bool, 1)
			go func() {
				s.View(func(_ *attribution.Table, _ *attribution.Index, stats attribution.Stats, finished bool) {
					go func() {
						_, _ = s.Apply(ctx, []model.ObservedEvent{event(2, spells.ChiWaveDamage, 100)})
						close(applied)
					}()
					// Give the writer time to block on the lock.
					time.Sleep(50 * time.Millisecond)
					viewed <- finished
				})
			}()

			Convey("Then the view completes and the writer follows", func() {
				select {
				case finished := <-viewed:
					So(finished, ShouldBeFalse)
				case <-time.After(2 * time.Second):
					So("view did not return", ShouldBeEmpty)
				}
				select {
				case <-applied:
				case <-time.After(2 * time.Second):
					So("apply did not return", ShouldBeEmpty)
				}
				cause, found, err := s.CauseOf(2)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(cause.Seq, ShouldEqual, 1)
			})
		})

		Convey("When the session is finished", func() {
			s.Finish(ctx)

			Convey("Then View reports it", func() {
				var finished bool
				s.View(func(_ *attribution.Table, _ *attribution.Index, _ attribution.Stats, f bool) { finished = f })
				So(finished, ShouldBeTrue)
			})
		})
	})
}

func TestSessionReadersDuringApply(t *testing.T) {
	ctx := context.Background()

	Convey("Given a session fed by one writer and read by many", t, func() {
		s := New("s-3", spells.WindwalkerTable())
		done := make(chan struct{})

		go func() {
			defer close(done)
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 200; j++ {
						s.View(func(_ *attribution.Table, index *attribution.Index, _ attribution.Stats, _ bool) {
							_ = index.Len()
						})
						_ = s.Summary()
						_, _, _ = s.CauseOf(2)
					}
				}()
			}
			for seq := int64(1); seq <= 400; seq += 2 {
				_, _ = s.Apply(ctx, []model.ObservedEvent{
					event(seq, spells.RisingSunKick, seq),
					event(seq+1, spells.RisingSunKickSecond, seq+1),
				})
			}
			wg.Wait()
		}()

		Convey("Then all of them finish and every kick is attributed", func() {
			select {
			case <-done:
			case <-time.After(10 * time.Second):
				So("readers and writer did not finish", ShouldBeEmpty)
			}
			So(s.Summary().Stats.Attributed, ShouldEqual, 200)
		})
	})
}
