package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/backend"
)

var (
	fitBackend      string
	fitWebhook      string
	fitOutput       string
	fitAlgorithm    string
	fitIter         int
	fitSeed         int64
	fitNumSteps     int
	fitLearningRate float64
)

var fitCmd = &cobra.Command{
	Use:   "fit <input.json>",
	Short: "Compute a point estimate of the model parameters",
	Long:  "Fit reads {\"data\", \"init\", \"custom_init\"} from the input file (or - for stdin) and prints the fitted parameters.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFit,
}

func init() {
	fitCmd.Flags().StringVarP(&fitBackend, "backend", "b", "", "Backend (CMDSTAN, NUMPYRO)")
	fitCmd.Flags().StringVarP(&fitOutput, "output", "o", "", "Write parameters to this file instead of stdout")
	fitCmd.Flags().StringVar(&fitAlgorithm, "algorithm", "", "CmdStan optimizer (newton, lbfgs, bfgs)")
	fitCmd.Flags().IntVar(&fitIter, "iter", 0, "CmdStan optimizer iterations")
	fitCmd.Flags().Int64Var(&fitSeed, "seed", 0, "Random seed")
	fitCmd.Flags().IntVar(&fitNumSteps, "num-steps", 0, "NumPyro SVI steps")
	fitCmd.Flags().Float64Var(&fitLearningRate, "learning-rate", 0, "NumPyro SVI learning rate")
	fitCmd.Flags().StringVar(&fitWebhook, "webhook", "", "Post the outcome to this webhook (default notify.webhook)")
	_ = fitCmd.RegisterFlagCompletionFunc("backend", completeBackendNames)

	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	input, err := readSessionInput(args[0])
	if err != nil {
		return err
	}

	b, err := newSessionBackend(fitBackend)
	if err != nil {
		return err
	}

	opts := backend.FitOptions{
		Init:         input.CustomInit,
		Algorithm:    fitAlgorithm,
		Iter:         fitIter,
		NumSteps:     fitNumSteps,
		LearningRate: fitLearningRate,
	}
	if cmd.Flags().Changed("seed") {
		seed := fitSeed
		opts.Seed = &seed
	}

	req := sessionRequest{op: "fit", input: args[0], output: fitOutput, webhook: fitWebhook}
	return runSession(cmd, b, req, func(ctx context.Context) (*backend.Params, error) {
		return b.Fit(ctx, input.Init, input.Data, opts)
	})
}
