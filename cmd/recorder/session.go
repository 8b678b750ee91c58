package main

import (
	"context"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"tradecore/internal/bus"
	"tradecore/internal/core"
	"tradecore/internal/feed"
	"tradecore/internal/journal"
	"tradecore/internal/ops"
	"tradecore/pkg/exception"
)

const queueRetry = time.Millisecond

// session owns one engine and everything attached to it.
type session struct {
	engine   core.Engine
	db       *gorm.DB
	profiler *pyroscope.Profiler
	journal  *journal.Extension
}

func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	loaded, err := ops.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.mode != "" {
		mode := core.Mode(opts.mode)
		if !mode.IsAvailable() {
			return nil, errors.Wrapf(exception.ErrMisconfiguration, "mode %q", opts.mode)
		}
		loaded.Engine.Mode = mode
	}

	s := &session{}
	if opts.profile || loaded.Profiling.Enabled {
		if s.profiler, err = startProfiler(loaded.Profiling); err != nil {
			return nil, err
		}
	}

	loaded.Engine.OnError = func(e bus.Event, err error) {
		logs.Warnf("event %s #%d: %s", e.Topic, e.Seq, err.Error())
	}
	if s.engine, err = core.New(loaded.Engine); err != nil {
		s.close()
		return nil, err
	}

	if loaded.Journal.Enabled {
		if s.db, err = journal.Open(loaded.Journal.Options); err != nil {
			s.close()
			return nil, err
		}
		if s.journal, err = journal.NewExtension(journal.NewGormSink(s.db)); err != nil {
			s.close()
			return nil, err
		}
		if err := s.engine.Register(s.journal); err != nil {
			s.close()
			return nil, err
		}
	}

	if err := s.engine.Start(ctx); err != nil {
		s.close()
		return nil, err
	}
	logs.Infof("engine started, mode: %s, journal: %v", loaded.Engine.Mode, loaded.Journal.Enabled)
	return s, nil
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	if cfg.ServerAddress == "" {
		return nil, errors.Wrap(exception.ErrMisconfiguration, "profiling.server_address is empty")
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return profiler, nil
}

// publish hands e to the engine. A full cooperative queue is retried until
// it accepts the event or ctx is done; handler errors are already in the
// recorder's error log and only logged here.
func (s *session) publish(ctx context.Context, e bus.Event) error {
	if s.journal != nil {
		if symbol, ok := e.LocalSymbol(); ok {
			s.journal.Follow(symbol)
		}
	}
	for {
		err := s.engine.Publish(ctx, e)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, exception.ErrQueueFull):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueRetry):
			}
		case errors.Is(err, exception.ErrQueueClosed):
			return err
		default:
			logs.Warnf("event %s: %s", e.Topic, err.Error())
			return nil
		}
	}
}

func (s *session) run(ctx context.Context, src feed.Source, playback *feed.Playback) (feed.Stats, error) {
	return playback.Run(ctx, src, s.publish)
}

// close drains the engine, completes the bars still in progress and
// releases what the session opened.
func (s *session) close() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			logs.Errorf("close engine: %s", err.Error())
		}
		n, err := s.engine.Recorder().FlushBars(context.Background())
		if err != nil {
			logs.Errorf("flush bars: %s", err.Error())
		}
		if n > 0 {
			logs.Infof("flushed %d bars in progress", n)
		}
	}
	if err := journal.Close(s.db); err != nil {
		logs.Errorf("close journal: %s", err.Error())
	}
	if s.profiler != nil {
		_ = s.profiler.Stop()
	}
}

func (s *session) summary(stats feed.Stats) {
	r := s.engine.Recorder()
	m := s.engine.Metrics().Snapshot()
	logs.Infof("events: %d, skipped lines: %d, ticks: %d, orders: %d, trades: %d, positions: %d",
		stats.Events, stats.Skipped, len(r.Ticks()), len(r.Orders()), len(r.Trades()), len(r.Positions()))
	logs.Infof("errors: %d, warnings: %d, extension failures: %d, misconfigured: %d, anomalies: %d",
		len(r.Errors()), len(r.Warnings()), m.Failures, m.Misconfigured, m.Anomalies)
	logs.Infof("dispatch latency avg: %s, max: %s", m.DispatchLatency.Avg, m.DispatchLatency.Max)
	for _, p := range r.Positions() {
		logs.Infof("position %s %s: volume %d, frozen %d, price %s, pnl %s",
			p.AccountID, p.LocalPositionID(), p.Volume, p.Frozen, p.Price, p.PnL)
	}
	for _, main := range r.MainContracts() {
		logs.Infof("main contract: %s", main)
	}
}
