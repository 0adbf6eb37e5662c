package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/san-kum/fopdtsim/internal/config"
	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/sched"
	"github.com/san-kum/fopdtsim/internal/tagio"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	flushed  int
	onTick   func(Outcome)
}

func (r *outcomeRecorder) OnTick(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	if r.onTick != nil {
		r.onTick(o)
	}
}

func (r *outcomeRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
	return nil
}

func (r *outcomeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

func (r *outcomeRecorder) at(scan int) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[scan-1]
}

func fastSession() config.Session {
	cfg := config.DefaultSession()
	cfg.Period = 2 * time.Millisecond
	cfg.Grace = 200 * time.Millisecond
	cfg.NoNoise = true
	return cfg
}

var _ = Describe("Session", func() {
	var (
		mockCtrl *gomock.Controller
		tagIO    *MockTagIO
		opened   int
		session  *Session
		cfg      config.Session
		ctx      context.Context
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tagIO = NewMockTagIO(mockCtrl)
		opened = 0
		session = NewSession(func() (tagio.TagIO, error) {
			opened++
			return tagIO, nil
		}, WithLogger(slog.New(slog.DiscardHandler)))
		cfg = fastSession()
		ctx = context.Background()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectHealthyTicks := func() {
		tagIO.EXPECT().
			Read(gomock.Any(), []string{"CV", "SP"}).
			Return([]tagio.Value{tagio.Success(10), tagio.Success(25)}, nil).
			AnyTimes()
		tagIO.EXPECT().
			Write(gomock.Any(), "PV", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, v float64) (tagio.Value, error) {
				return tagio.Success(v), nil
			}).
			AnyTimes()
	}

	expectStart := func() {
		tagIO.EXPECT().Connect(gomock.Any(), "127.0.0.1", "0", config.DefaultTimeout).Return(nil)
		tagIO.EXPECT().
			Read(gomock.Any(), []string{"SP", "PV", "CV"}).
			Return([]tagio.Value{tagio.Success(25), tagio.Success(0), tagio.Success(10)}, nil)
	}

	It("should start idle with an empty snapshot", func() {
		Expect(session.State()).To(Equal(Idle))
		Expect(session.ID()).To(BeEmpty())
		Expect(session.Snapshot().Len()).To(Equal(0))
		Expect(session.Stop()).To(Succeed())
	})

	It("should reject invalid configuration before opening tag io", func() {
		cfg.TimeConstant = "0"

		err := session.Start(ctx, cfg)

		Expect(err).To(MatchError(dynamo.ErrConfiguration))
		Expect(opened).To(Equal(0))
		Expect(session.State()).To(Equal(Idle))
	})

	It("should release the connection when connect fails", func() {
		tagIO.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("no route to host"))
		tagIO.EXPECT().Close().Return(nil)

		err := session.Start(ctx, cfg)

		var cfgErr *dynamo.ConfigError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Field).To(Equal("address"))
		Expect(session.State()).To(Equal(Idle))
	})

	It("should fail the pre-flight read when a tag is unreadable", func() {
		tagIO.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		tagIO.EXPECT().
			Read(gomock.Any(), []string{"SP", "PV", "CV"}).
			Return([]tagio.Value{tagio.Success(25), tagio.Failed("Offline"), tagio.Success(10)}, nil)
		tagIO.EXPECT().Close().Return(nil)

		err := session.Start(ctx, cfg)

		Expect(err).To(MatchError(dynamo.ErrConfiguration))
		var cfgErr *dynamo.ConfigError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Field).To(Equal("pv_tag"))
		Expect(err).To(MatchError(dynamo.ErrReadFailure))
		Expect(session.State()).To(Equal(Idle))
	})

	It("should fail the pre-flight read on a transport error", func() {
		tagIO.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		tagIO.EXPECT().Read(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
		tagIO.EXPECT().Close().Return(nil)

		Expect(session.Start(ctx, cfg)).To(MatchError(dynamo.ErrConfiguration))
	})

	It("should tick until stopped and stop idempotently", func() {
		expectStart()
		expectHealthyTicks()
		tagIO.EXPECT().Close().Return(nil).Times(1)

		Expect(session.Start(ctx, cfg)).To(Succeed())
		Expect(session.State()).To(Equal(Running))
		Expect(session.ID()).NotTo(BeEmpty())
		Expect(session.Start(ctx, cfg)).To(MatchError(ErrAlreadyRunning))

		Eventually(func() int {
			return session.Snapshot().ScanCount
		}, time.Second, time.Millisecond).Should(BeNumerically(">=", 5))

		Expect(session.Stop()).To(Succeed())
		Expect(session.State()).To(Equal(Idle))
		Expect(session.Stop()).To(Succeed())
		Expect(session.State()).To(Equal(Idle))

		snap := session.Snapshot()
		Expect(snap.CV).To(HaveLen(snap.ScanCount))
		Expect(snap.SP).To(HaveLen(snap.ScanCount))
		Expect(snap.PV).To(HaveLen(snap.ScanCount))
		Expect(snap.LastError).To(BeEmpty())
		Expect(session.SchedulerStats().Fired).To(BeNumerically(">=", int64(snap.ScanCount)))
		Expect(session.Parsed().Params.TimeConstant).To(BeNumerically("~", 50, 1e-9))
	})

	It("should report a close failure as a stop error", func() {
		expectStart()
		expectHealthyTicks()
		tagIO.EXPECT().Close().Return(errors.New("socket busy"))

		Expect(session.Start(ctx, cfg)).To(Succeed())
		err := session.Stop()

		Expect(err).To(MatchError(dynamo.ErrStop))
		var stopErr *StopError
		Expect(errors.As(err, &stopErr)).To(BeTrue())
		Expect(session.Snapshot().LastError).To(Equal("stop: socket busy"))
		Expect(session.State()).To(Equal(Idle))
		Expect(session.Stop()).To(Succeed())
	})

	It("should notify and flush observers", func() {
		rec := &outcomeRecorder{}
		var fires sync.WaitGroup
		fires.Add(1)
		var once sync.Once
		session = NewSession(func() (tagio.TagIO, error) { return tagIO, nil },
			WithLogger(slog.New(slog.DiscardHandler)),
			WithOnFire(func(f sched.Fire) { once.Do(fires.Done) }),
		)
		session.Subscribe(rec)

		expectStart()
		expectHealthyTicks()
		tagIO.EXPECT().Close().Return(nil)

		Expect(session.Start(ctx, cfg)).To(Succeed())
		Eventually(rec.count, time.Second, time.Millisecond).Should(BeNumerically(">=", 3))
		fires.Wait()
		Expect(session.Stop()).To(Succeed())

		Expect(rec.flushed).To(Equal(1))
		first := rec.at(1)
		Expect(first.Err).NotTo(HaveOccurred())
		Expect(first.Sample.CV).To(Equal(10.0))
		Expect(first.Sample.SP).To(Equal(25.0))
	})

	Context("with the emulated controller", func() {
		var emu *tagio.Emulator

		BeforeEach(func() {
			ecfg := tagio.DefaultEmulatorConfig()
			ecfg.Manual = true
			ecfg.InitialCV = 10
			emu = tagio.NewEmulator(ecfg)
			session = NewSession(func() (tagio.TagIO, error) { return emu, nil },
				WithLogger(slog.New(slog.DiscardHandler)))
		})

		It("should recover from a read failure on tick 50", func() {
			rec := &outcomeRecorder{}
			rec.onTick = func(o Outcome) {
				if o.Scan == 49 {
					emu.InjectFault("CV", tagio.StatusOffline, 1)
				}
			}
			session.Subscribe(rec)

			Expect(session.Start(ctx, cfg)).To(Succeed())
			Eventually(rec.count, 5*time.Second, time.Millisecond).Should(BeNumerically(">=", 51))
			Expect(session.Stop()).To(Succeed())
			Expect(emu.Connected()).To(BeFalse())

			failed := rec.at(50)
			Expect(failed.Err).To(MatchError(dynamo.ErrReadFailure))
			Expect(failed.Err.Error()).To(Equal("Offline"))
			Expect(failed.ScanCount).To(Equal(49))

			next := rec.at(51)
			Expect(next.Err).NotTo(HaveOccurred())
			Expect(next.ScanCount).To(Equal(50))
		})

		It("should clear the last error and series on restart", func() {
			emu.SetStatus("PV", "WriteProtected")
			Expect(session.Start(ctx, cfg)).To(Succeed())
			Eventually(func() string {
				return session.Snapshot().LastError
			}, time.Second, time.Millisecond).Should(Equal("WriteProtected"))
			Expect(session.Stop()).To(Succeed())
			firstID := session.ID()

			emu.SetStatus("PV", "")
			Expect(session.Start(ctx, cfg)).To(Succeed())
			snap := session.Snapshot()
			Expect(snap.Failures).To(BeZero())
			Expect(snap.LastError).To(BeEmpty())
			Expect(session.ID()).NotTo(Equal(firstID))
			Expect(session.Stop()).To(Succeed())
		})
	})
})
