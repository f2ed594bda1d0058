package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
)

// Clients bundles the AWS API clients used by the pipeline.
type Clients struct {
	Session *session.Session
	Athena  *athena.Athena
	S3      *s3.S3
	STS     *sts.STS
}

// NewClients creates clients for region from the default credential chain.
func NewClients(region string) (*Clients, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create AWS session: %v", err)
	}
	return &Clients{
		Session: sess,
		Athena:  athena.New(sess),
		S3:      s3.New(sess),
		STS:     sts.New(sess),
	}, nil
}

// DefaultAthenaOutput returns the query result location used when none is
// configured: s3://rds-metrics-<account>-<region>/athena_output/.
func DefaultAthenaOutput(ctx context.Context, stsAPI stsiface.STSAPI, region string) (string, error) {
	out, err := stsAPI.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("unable to determine AWS account: %v", err)
	}
	return fmt.Sprintf("s3://rds-metrics-%s-%s/athena_output/", aws.StringValue(out.Account), region), nil
}
