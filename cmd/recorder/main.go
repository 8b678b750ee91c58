package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logs.Errorf("recorder: %s", err.Error())
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	mode       string
	profile    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "recorder",
		Short: "Record gateway events into a queryable trading state",
		Long: `recorder feeds gateway events through the event bus into the canonical store,
reconciles positions, resolves main contracts and fans updates out to extensions.

Configuration is read from --config (yaml, json or toml) and TRADECORE_* environment
variables, e.g. TRADECORE_RUNTIME_MODE=cooperative.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file")
	root.PersistentFlags().StringVar(&opts.mode, "mode", "", "execution model override: blocking or cooperative")
	root.PersistentFlags().BoolVar(&opts.profile, "profile", false, "push profiles to pyroscope (profiling.server_address)")

	root.AddCommand(newReplayCmd(opts), newPaperCmd(opts))
	return root
}
