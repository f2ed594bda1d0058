package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/aws/awstest"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
)

func TestParseS3URI(t *testing.T) {
	tests := map[string]struct {
		uri            string
		expectedBucket string
		expectedPrefix string
		expectedErr    string
	}{
		"bucket and prefix": {
			uri:            "s3://rds-metrics-123456789012-us-east-1/tenant-cost/",
			expectedBucket: "rds-metrics-123456789012-us-east-1",
			expectedPrefix: "tenant-cost",
		},
		"bucket only": {
			uri:            "s3://bucket",
			expectedBucket: "bucket",
		},
		"not s3": {
			uri:         "/tmp/out",
			expectedErr: `"/tmp/out" is not an s3:// URI`,
		},
		"missing bucket": {
			uri:         "s3:///prefix",
			expectedErr: `"s3:///prefix" has no bucket`,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			bucket, prefix, err := ParseS3URI(tt.uri)
			if tt.expectedErr != "" {
				assert.EqualError(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedBucket, bucket)
			assert.Equal(t, tt.expectedPrefix, prefix)
		})
	}
}

func TestS3Store(t *testing.T) {
	mock := awstest.NewMockS3()
	mock.NewBucket("bucket")
	store := NewS3Store(mock, "bucket", "/tenant-cost/")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "runs/1/utilization.csv", []byte("a,b\n"), "text/csv"))
	data, ok := mock.Object("bucket", "tenant-cost/runs/1/utilization.csv")
	require.True(t, ok)
	assert.Equal(t, "a,b\n", string(data))

	got, err := store.Get(ctx, "runs/1/utilization.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(got))

	_, err = store.Get(ctx, "latest.json")
	assert.Equal(t, output.ErrNotExist, err)

	mock.PutErr = errors.New("AccessDenied")
	err = store.Put(ctx, "latest.json", nil, "application/json")
	assert.EqualError(t, err, "unable to put s3://bucket/tenant-cost/latest.json: AccessDenied")
	assert.Equal(t, "s3://bucket/tenant-cost", store.String())
}

type fakeSTS struct {
	stsiface.STSAPI
	account string
	err     error
}

func (f *fakeSTS) GetCallerIdentityWithContext(aws.Context, *sts.GetCallerIdentityInput, ...request.Option) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestDefaultAthenaOutput(t *testing.T) {
	out, err := DefaultAthenaOutput(context.Background(), &fakeSTS{account: "123456789012"}, "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://rds-metrics-123456789012-eu-west-1/athena_output/", out)

	_, err = DefaultAthenaOutput(context.Background(), &fakeSTS{err: errors.New("ExpiredToken")}, "eu-west-1")
	assert.EqualError(t, err, "unable to determine AWS account: ExpiredToken")
}
