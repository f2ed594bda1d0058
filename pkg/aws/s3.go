package aws

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
)

// ParseS3URI splits an s3://bucket/prefix URI.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%q is not an s3:// URI", uri)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%q has no bucket", uri)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// S3Store stores objects under a prefix of an S3 bucket.
type S3Store struct {
	s3API  s3iface.S3API
	bucket string
	prefix string
}

func NewS3Store(s3API s3iface.S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		s3API:  s3API,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := s.s3API.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("unable to put s3://%s/%s: %v", s.bucket, s.key(name), err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.s3API.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, output.ErrNotExist
		}
		return nil, fmt.Errorf("unable to get s3://%s/%s: %v", s.bucket, s.key(name), err)
	}
	defer obj.Body.Close()
	return ioutil.ReadAll(obj.Body)
}

func (s *S3Store) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}
