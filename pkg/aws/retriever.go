package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const (
	// ManifestSuffix is the extension of AWS Usage Data manifests.
	ManifestSuffix = ".json"

	// maxS3Keys is the maximum amount of keys to be returned by a single S3
	// list objects API response
	maxS3Keys = 200
)

type ManifestRetriever interface {
	RetrieveManifests(ctx context.Context) ([]*Manifest, error)
}

type manifestRetriever struct {
	s3API          s3iface.S3API
	bucket, prefix string
}

func NewManifestRetriever(s3API s3iface.S3API, bucket, prefix string) ManifestRetriever {
	return &manifestRetriever{
		s3API:  s3API,
		bucket: bucket,
		prefix: prefix,
	}
}

// RetrieveManifests downloads the billing manifest for the given bucket and
// prefix. It includes only the top level manifest files, and ignores manifest
// files that are within assemblyId subdirectories, as the top level manifest
// points to the directory containing the most up to date billing report data.
func (r *manifestRetriever) RetrieveManifests(ctx context.Context) ([]*Manifest, error) {
	// ensure that there is a slash at end of location
	prefix := r.prefix
	if len(prefix) == 0 {
		prefix = "/"
	} else if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	var manifests []*Manifest
	var manifestErr error
	pageFn := func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		keys := r.filterObjects(prefix, out.Contents)

		for _, key := range keys {
			manifest, err := retrieveManifest(ctx, r.s3API, r.bucket, key)
			if err != nil {
				manifestErr = fmt.Errorf("can't get manifest from bucket '%s' with key '%s': %v", r.bucket, key, err)
				return false
			}
			manifests = append(manifests, manifest)
		}

		return true
	}

	// list all in <report-prefix>/<report-name>/ of bucket
	err := r.s3API.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(maxS3Keys),
	}, pageFn)
	if err != nil {
		return nil, fmt.Errorf("could not list AWS billing report keys: %v", err)
	}
	if manifestErr != nil {
		return nil, manifestErr
	}

	return manifests, nil
}

func (r *manifestRetriever) filterObjects(prefix string, objects []*s3.Object) []string {
	var keys []string
	for _, obj := range objects {
		key := aws.StringValue(obj.Key)

		// only look for manifest files
		if !strings.HasSuffix(key, ManifestSuffix) {
			continue
		}

		// We're looking for the top-level manifest for a given time range:
		// <report-prefix>/<report-name>/YYYYMMDD-YYYYMMDD/<report-name>-Manifest.json
		// and ignore the copies inside assembly directories:
		// <report-prefix>/<report-name>/YYYYMMDD-YYYYMMDD/<assemblyId>/<report-name>-Manifest.json
		trimmedPath := strings.TrimPrefix(key, prefix)
		manifestDir := path.Dir(trimmedPath)
		assemblyDir, _ := path.Split(manifestDir)
		if assemblyDir != "" {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// retrieveManifest retrieves a manifest from the given bucket and key.
func retrieveManifest(ctx context.Context, client s3iface.S3API, bucket, key string) (*Manifest, error) {
	obj, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	var manifest Manifest
	if err := json.NewDecoder(obj.Body).Decode(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// CheckReportColumns verifies that every manifest under the report prefix
// provides the required columns.
func CheckReportColumns(ctx context.Context, retriever ManifestRetriever, required []string) error {
	manifests, err := retriever.RetrieveManifests(ctx)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return fmt.Errorf("no cost and usage report manifests found")
	}
	for _, manifest := range manifests {
		if missing := manifest.MissingColumns(required); len(missing) != 0 {
			return fmt.Errorf("report %s for %s is missing columns: %s", manifest.ReportName, manifest.BillingPeriod.Start.String(), strings.Join(missing, ", "))
		}
	}
	return nil
}
