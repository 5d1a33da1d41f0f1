package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/backend"
)

var (
	sampleBackend      string
	sampleWebhook      string
	sampleOutput       string
	sampleDraws        int
	sampleChains       int
	sampleWarmup       int
	sampleSeed         int64
	sampleMaxTreeDepth int
	sampleChainMethod  string
)

var sampleCmd = &cobra.Command{
	Use:   "sample <input.json>",
	Short: "Draw posterior samples of the model parameters",
	Long:  "Sample reads {\"data\", \"init\", \"custom_init\"} from the input file (or - for stdin) and prints pooled posterior draws.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSample,
}

func init() {
	sampleCmd.Flags().StringVarP(&sampleBackend, "backend", "b", "", "Backend (CMDSTAN, NUMPYRO)")
	sampleCmd.Flags().StringVarP(&sampleOutput, "output", "o", "", "Write draws to this file instead of stdout")
	sampleCmd.Flags().IntVarP(&sampleDraws, "draws", "n", 1000, "Total draws, split between warmup and sampling")
	sampleCmd.Flags().IntVar(&sampleChains, "chains", 0, "Number of chains (default 4)")
	sampleCmd.Flags().IntVar(&sampleWarmup, "warmup", 0, "CmdStan warmup iterations per chain (default draws/2)")
	sampleCmd.Flags().Int64Var(&sampleSeed, "seed", 0, "Random seed")
	sampleCmd.Flags().IntVar(&sampleMaxTreeDepth, "max-tree-depth", 0, "NumPyro NUTS max tree depth")
	sampleCmd.Flags().StringVar(&sampleChainMethod, "chain-method", "", "NumPyro chain method")
	sampleCmd.Flags().StringVar(&sampleWebhook, "webhook", "", "Post the outcome to this webhook (default notify.webhook)")
	_ = sampleCmd.RegisterFlagCompletionFunc("backend", completeBackendNames)

	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) error {
	input, err := readSessionInput(args[0])
	if err != nil {
		return err
	}

	b, err := newSessionBackend(sampleBackend)
	if err != nil {
		return err
	}

	opts := backend.SamplingOptions{
		Init:         input.CustomInit,
		Chains:       sampleChains,
		MaxTreeDepth: sampleMaxTreeDepth,
		ChainMethod:  sampleChainMethod,
	}
	flags := cmd.Flags()
	if flags.Changed("warmup") {
		warmup := sampleWarmup
		opts.Warmup = &warmup
	}
	if flags.Changed("seed") {
		seed := sampleSeed
		opts.Seed = &seed
	}

	req := sessionRequest{op: "sample", input: args[0], output: sampleOutput, webhook: sampleWebhook}
	return runSession(cmd, b, req, func(ctx context.Context) (*backend.Params, error) {
		return b.Sampling(ctx, input.Init, input.Data, sampleDraws, opts)
	})
}
