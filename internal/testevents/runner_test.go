package testevents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/combatlink/internal/adapters/http/api"
	service "github.com/okian/combatlink/internal/app"
	"github.com/okian/combatlink/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestRun(t *testing.T) {
	Convey("Given a live attribution service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(1000))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When a small load test runs against it", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:   srv.URL,
				Sessions:  3,
				Casts:     40,
				BatchSize: 16,
				Workers:   2,
				Seed:      42,
				Samples:   10,
			})

			Convey("Then every session verifies", func() {
				So(err, ShouldBeNil)
				So(stats.SessionsOpened, ShouldEqual, 3)
				So(stats.SessionsVerified, ShouldEqual, 3)
				So(stats.SessionsFailed, ShouldEqual, 0)
				So(stats.BatchesDuplicate, ShouldEqual, 3)
				So(stats.CausesChecked, ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given no service at the address", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		Convey("Then the health check fails", func() {
			_, err := Run(context.Background(), &Config{BaseURL: srv.URL, Timeout: time.Second})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestVerifyReport(t *testing.T) {
	Convey("Given a generated log", t, func() {
		gen := Generate(GenerateOptions{Seed: 3, Casts: 20})

		Convey("Then matching counters pass", func() {
			So(verifyReport(&gen, len(gen.Events), len(gen.Causes), len(gen.Orphans), 0), ShouldBeNil)
		})

		Convey("Then a wrong attributed count fails", func() {
			err := verifyReport(&gen, len(gen.Events), len(gen.Causes)-1, len(gen.Orphans), 0)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
		})

		Convey("Then leftover causes fail", func() {
			err := verifyReport(&gen, len(gen.Events), len(gen.Causes), len(gen.Orphans), 1)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
		})
	})
}
