package main

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"

	"tradecore/internal/feed"
	"tradecore/internal/mdg"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

type paperOptions struct {
	symbols    []string
	basePrice  string
	step       time.Duration
	seed       int64
	ticks      int
	timerEvery int
	orderEvery int
	speed      float64
}

func newPaperCmd(root *rootOptions) *cobra.Command {
	opts := &paperOptions{}
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Run a synthetic session with paper orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPaper(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.symbols, "symbols", []string{"rb2105.SHFE", "rb2110.SHFE", "IF2403.CFFEX"}, "local symbols to tick")
	f.StringVar(&opts.basePrice, "base-price", "3500", "starting price of the first symbol")
	f.DurationVar(&opts.step, "step", 500*time.Millisecond, "market time between tick rounds")
	f.Int64Var(&opts.seed, "seed", 1, "random walk seed")
	f.IntVar(&opts.ticks, "ticks", 1000, "ticks to generate (0=until interrupted)")
	f.IntVar(&opts.timerEvery, "timer-every", 10, "emit a timer event every N ticks (0=disable)")
	f.IntVar(&opts.orderEvery, "order-every", 25, "run a paper order every N ticks (0=disable)")
	f.Float64Var(&opts.speed, "speed", 0, "playback speed (1=real-time, 0=no pacing)")
	return cmd
}

func runPaper(cmd *cobra.Command, root *rootOptions, opts *paperOptions) error {
	contracts, err := paperContracts(opts.symbols)
	if err != nil {
		return err
	}
	base, err := decimal.NewFromString(opts.basePrice)
	if err != nil {
		return errors.Wrapf(exception.ErrInvalidArgument, "base price %q", opts.basePrice)
	}
	gen, err := mdg.NewGenerator(mdg.Config{
		Contracts:  contracts,
		BasePrice:  base,
		Start:      time.Now().Truncate(time.Second),
		Step:       opts.step,
		Seed:       opts.seed,
		Limit:      opts.ticks,
		TimerEvery: opts.timerEvery,
		OrderEvery: opts.orderEvery,
	})
	if err != nil {
		return err
	}
	playback, err := feed.NewPlayback(feed.PlaybackConfig{Speed: opts.speed, Strict: true})
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), root)
	if err != nil {
		return err
	}
	stats, err := s.run(cmd.Context(), gen, playback)
	s.close()
	s.summary(stats)
	return err
}

// paperContracts turns "rb2105.SHFE" style symbols into contracts. Open
// interest rises with the position in the list so the last contract of a
// product becomes its main contract.
func paperContracts(symbols []string) ([]model.Contract, error) {
	out := make([]model.Contract, 0, len(symbols))
	for i, s := range symbols {
		dot := strings.LastIndexByte(s, '.')
		if dot <= 0 || dot == len(s)-1 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "symbol %q is not <symbol>.<exchange>", s)
		}
		var exchange enum.Exchange
		if err := exchange.UnmarshalText([]byte(s[dot+1:])); err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "symbol %q: %v", s, err)
		}
		out = append(out, model.Contract{
			Symbol:       s[:dot],
			Exchange:     exchange,
			Size:         10,
			PriceTick:    decimal.NewFromInt(1),
			OpenInterest: int64(1000 * (i + 1)),
		})
	}
	return out, nil
}
