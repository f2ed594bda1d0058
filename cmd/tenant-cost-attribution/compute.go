package main

import (
	"github.com/spf13/cobra"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/pipeline"
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "loads the inputs and writes the attribution relations to --output",
	RunE:  runCompute,
}

func init() {
	addEngineFlags(computeCmd.Flags())
	addViewsFlags(computeCmd.Flags())
	addOutputFlags(computeCmd.Flags())
	computeCmd.Flags().DurationVar(&pipelineOpts.Wait.Timeout, "timeout", pipelineOpts.Wait.Timeout, "how long loading a single input may run")
}

func runCompute(cmd *cobra.Command, _ []string) error {
	pipelineOpts.Mode = pipeline.ModeLocal
	cfg, err := buildViewsConfig()
	if err != nil {
		return err
	}
	ctx := setupSignals()

	e, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	runner, _, err := newRunner(e, cfg)
	if err != nil {
		return err
	}
	result, err := runner.Run(ctx, pipeline.NewRunID())
	if err != nil {
		return err
	}
	logger.WithField("runID", result.RunID).Infof("computed %d overallocated hours, wrote %v", result.OverallocatedHours, result.Relations)
	return nil
}
