package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/aws"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/pipeline"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/views"
)

var (
	curBucket string
	curPrefix string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "creates or replaces the attribution views on the query engine",
	RunE:  runDeploy,
}

func init() {
	addEngineFlags(deployCmd.Flags())
	addViewsFlags(deployCmd.Flags())
	addPipelineFlags(deployCmd.Flags(), "views or tables")
	deployCmd.Flags().StringVar(&curBucket, "cur-bucket", "", "if set, the bucket of the cost and usage report, whose manifests are checked for the columns the views read")
	deployCmd.Flags().StringVar(&curPrefix, "cur-prefix", "", "the report path prefix within --cur-bucket")
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	if pipelineOpts.Mode == pipeline.ModeLocal {
		return fmt.Errorf("deploy does not support mode %s, use compute", pipeline.ModeLocal)
	}
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

	if curBucket != "" {
		clients, err := e.awsClients()
		if err != nil {
			return err
		}
		retriever := aws.NewManifestRetriever(clients.S3, curBucket, curPrefix)
		if err := aws.CheckReportColumns(ctx, retriever, views.RequiredBillingColumns); err != nil {
			return err
		}
		logger.Infof("cost and usage report s3://%s/%s has every required column", curBucket, curPrefix)
	}

	runner, _, err := newRunner(e, cfg)
	if err != nil {
		return err
	}
	result, err := runner.Run(ctx, pipeline.NewRunID())
	if err != nil {
		return err
	}
	logger.WithField("runID", result.RunID).Infof("deployed relations %v", result.Relations)
	return nil
}
