package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/chaos"
	"tradecore/internal/feed"
	"tradecore/internal/state"
)

type replayOptions struct {
	speed       float64
	strict      bool
	snapshotOut string
	verify      string
	chaosSeed   int64
	dropRate    float64
	dupRate     float64
	reorder     int
	maxDelay    time.Duration
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>...",
		Short: "Replay recorded JSON-lines gateway events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.speed, "speed", 0, "playback speed (1=real-time, 0=no pacing)")
	f.BoolVar(&opts.strict, "strict", false, "stop at the first undecodable line")
	f.StringVar(&opts.snapshotOut, "snapshot-out", "", "write the reconciled positions to this file")
	f.StringVar(&opts.verify, "verify", "", "compare the reconciled positions with this snapshot")
	f.Int64Var(&opts.chaosSeed, "chaos-seed", 0, "chaos random seed (0=time based)")
	f.Float64Var(&opts.dropRate, "chaos-drop", 0, "probability of dropping an event")
	f.Float64Var(&opts.dupRate, "chaos-duplicate", 0, "probability of duplicating an event")
	f.IntVar(&opts.reorder, "chaos-reorder", 1, "reorder window in events (1=keep order)")
	f.DurationVar(&opts.maxDelay, "chaos-delay", 0, "maximum event time shift")
	return cmd
}

func (o *replayOptions) chaosEnabled() bool {
	return o.dropRate > 0 || o.dupRate > 0 || o.reorder > 1 || o.maxDelay > 0
}

func runReplay(cmd *cobra.Command, root *rootOptions, opts *replayOptions, paths []string) error {
	ctx := cmd.Context()
	playback, err := feed.NewPlayback(feed.PlaybackConfig{Speed: opts.speed, Strict: opts.strict})
	if err != nil {
		return err
	}

	var engine *chaos.Engine
	if opts.chaosEnabled() {
		engine, err = chaos.NewEngine(chaos.Config{
			Seed:          opts.chaosSeed,
			DropRate:      opts.dropRate,
			DuplicateRate: opts.dupRate,
			ReorderWindow: opts.reorder,
			MaxDelay:      opts.maxDelay,
		})
		if err != nil {
			return err
		}
	}

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}

	var total feed.Stats
	for _, path := range paths {
		stats, err := replayFile(cmd, s, playback, engine, path)
		total.Events += stats.Events
		total.Skipped += stats.Skipped
		if err != nil {
			s.close()
			return err
		}
	}
	s.close()

	if engine != nil {
		cs := engine.Stats()
		logs.Infof("chaos dropped: %d, duplicated: %d, delayed: %d", cs.Dropped, cs.Duplicated, cs.Delayed)
	}
	s.summary(total)
	return checkSnapshot(s, opts)
}

func replayFile(cmd *cobra.Command, s *session, playback *feed.Playback, engine *chaos.Engine, path string) (feed.Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return feed.Stats{}, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	var src feed.Source = feed.NewDecoder(file)
	if engine != nil {
		src = chaos.Wrap(src, engine)
	}
	logs.Infof("replaying %s", path)
	stats, err := s.run(cmd.Context(), src, playback)
	if err != nil {
		return stats, errors.Wrapf(err, "replay %s", path)
	}
	return stats, nil
}

func checkSnapshot(s *session, opts *replayOptions) error {
	snapshot := s.engine.Recorder().PositionSnapshot(0)
	if opts.snapshotOut != "" {
		if err := state.WriteSnapshot(opts.snapshotOut, snapshot); err != nil {
			return err
		}
		logs.Infof("snapshot written: %s", opts.snapshotOut)
	}
	if opts.verify != "" {
		expected, err := state.ReadSnapshot(opts.verify)
		if err != nil {
			return err
		}
		if err := state.CompareSnapshots(expected, snapshot); err != nil {
			return errors.Wrapf(err, "verify %s", opts.verify)
		}
		logs.Infof("snapshot verified: %s", opts.verify)
	}
	return nil
}
