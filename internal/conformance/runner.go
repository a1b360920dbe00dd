// Package conformance drives a scripted battery of S3 operations against
// a target endpoint and collects per-case pass/fail results.
package conformance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kumasuke/s3check/internal/config"
	"github.com/rs/zerolog/log"
)

// Runner executes the conformance battery against one endpoint. It is
// not safe for concurrent use; the battery is strictly sequential.
type Runner struct {
	client       *s3.Client
	endpoint     string
	bucket       string
	fixtures     []Fixture
	readiness    config.ReadinessConfig
	cleanup      bool
	deleteBucket bool

	// tracked holds keys that were successfully PUT and not yet DELETEd.
	tracked map[string]struct{}
	report  *Report
}

// NewRunner creates a Runner for the configured target.
func NewRunner(ctx context.Context, cfg *config.Config) (*Runner, error) {
	client, err := NewClient(ctx, cfg.Target)
	if err != nil {
		return nil, err
	}

	return &Runner{
		client:       client,
		endpoint:     cfg.Target.Endpoint,
		bucket:       cfg.Target.Bucket,
		fixtures:     DefaultFixtures(),
		readiness:    cfg.Readiness,
		cleanup:      cfg.Run.Cleanup,
		deleteBucket: cfg.Run.DeleteBucket,
		tracked:      make(map[string]struct{}),
		report: &Report{
			Endpoint: cfg.Target.Endpoint,
			Bucket:   cfg.Target.Bucket,
		},
	}, nil
}

// Report returns the accumulated report.
func (r *Runner) Report() *Report {
	return r.report
}

// runCase executes fn, records exactly one Case with its outcome, and
// returns whether it passed. fn returns an optional detail string for
// the report; any error fails the case but never propagates.
func (r *Runner) runCase(name string, fn func() (string, error)) bool {
	start := time.Now()
	detail, err := fn()
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("case", name).Msg("Case failed")
		r.report.record(name, false, elapsed, err.Error())
		return false
	}

	log.Info().Str("case", name).Dur("duration", elapsed).Msg("Case passed")
	r.report.record(name, true, elapsed, detail)
	return true
}

// WaitForReady polls ListBuckets until the endpoint answers or the retry
// budget is exhausted. It records no case: readiness gates the battery
// rather than being part of it. Note this only proves the endpoint
// answers a read-only call, not that the target bucket is usable.
func (r *Runner) WaitForReady(ctx context.Context) bool {
	log.Info().Str("endpoint", r.endpoint).Msg("Waiting for endpoint")

	for attempt := 1; attempt <= r.readiness.MaxAttempts; attempt++ {
		_, err := r.client.ListBuckets(ctx, &s3.ListBucketsInput{})
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("Endpoint is ready")
			return true
		}

		if attempt == r.readiness.MaxAttempts {
			log.Error().Err(err).
				Int("attempts", r.readiness.MaxAttempts).
				Msg("Endpoint never became ready")
			return false
		}

		log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", r.readiness.MaxAttempts).
			Dur("delay", r.readiness.Delay).
			Msg("Endpoint not ready, retrying")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.readiness.Delay):
		}
	}
	return false
}

// CreateBucket creates the target bucket. A bucket we already own counts
// as success.
func (r *Runner) CreateBucket(ctx context.Context) bool {
	return r.runCase("Create Bucket", func() (string, error) {
		_, err := r.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(r.bucket),
		})
		if err != nil {
			if isCode(err, "BucketAlreadyOwnedByYou") {
				return "already exists", nil
			}
			return "", err
		}
		return "", nil
	})
}

// PutObject uploads the fixture content with test metadata and tracks
// the key for cleanup.
func (r *Runner) PutObject(ctx context.Context, f Fixture) bool {
	return r.runCase("PUT "+f.Key, func() (string, error) {
		_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(r.bucket),
			Key:         aws.String(f.Key),
			Body:        bytes.NewReader(f.Content),
			ContentType: aws.String(f.ContentType()),
			Metadata:    map[string]string{"test-meta": "test-value"},
		})
		if err != nil {
			return "", err
		}
		r.tracked[f.Key] = struct{}{}
		return fmt.Sprintf("%d bytes", len(f.Content)), nil
	})
}

// GetObject downloads the fixture and compares it byte for byte against
// the expected content. A mismatch fails the case with the expected and
// actual byte prefixes logged for diagnosis.
func (r *Runner) GetObject(ctx context.Context, f Fixture) bool {
	return r.runCase("GET "+f.Key, func() (string, error) {
		out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(f.Key),
		})
		if err != nil {
			return "", err
		}
		defer out.Body.Close()

		body, err := io.ReadAll(out.Body)
		if err != nil {
			return "", err
		}

		if !bytes.Equal(body, f.Content) {
			log.Error().
				Str("key", f.Key).
				Str("expected", bytePrefix(f.Content)).
				Str("actual", bytePrefix(body)).
				Msg("Content mismatch")
			return "", fmt.Errorf("content mismatch: expected %d bytes, got %d", len(f.Content), len(body))
		}

		return fmt.Sprintf("%d bytes", len(body)), nil
	})
}

// HeadObject retrieves size and ETag without fetching the body. The call
// completing is the success condition; nothing is asserted beyond that.
func (r *Runner) HeadObject(ctx context.Context, key string) bool {
	return r.runCase("HEAD "+key, func() (string, error) {
		out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return "", err
		}
		etag := strings.Trim(aws.ToString(out.ETag), "\"")
		return fmt.Sprintf("%d bytes, etag %s", aws.ToInt64(out.ContentLength), etag), nil
	})
}

// ListObjects lists the bucket contents, optionally filtered by prefix.
// The listing is reported but not asserted against expected keys.
func (r *Runner) ListObjects(ctx context.Context, prefix string) bool {
	name := "LIST all objects"
	if prefix != "" {
		name = "LIST with prefix " + prefix
	}
	return r.runCase(name, func() (string, error) {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(r.bucket),
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		out, err := r.client.ListObjectsV2(ctx, input)
		if err != nil {
			return "", err
		}

		for _, obj := range out.Contents {
			log.Info().
				Str("key", aws.ToString(obj.Key)).
				Int64("size", aws.ToInt64(obj.Size)).
				Time("modified", aws.ToTime(obj.LastModified)).
				Msg("Listed object")
		}
		return fmt.Sprintf("%d objects", len(out.Contents)), nil
	})
}

// DeleteObject deletes the key and removes it from the tracked set.
func (r *Runner) DeleteObject(ctx context.Context, key string) bool {
	return r.runCase("DELETE "+key, func() (string, error) {
		_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return "", err
		}
		delete(r.tracked, key)
		return "", nil
	})
}

// DeleteBucket empties and deletes the target bucket. A bucket that does
// not exist counts as success.
func (r *Runner) DeleteBucket(ctx context.Context) bool {
	return r.runCase("Delete Bucket", func() (string, error) {
		out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(r.bucket),
		})
		if err != nil {
			if isCode(err, "NoSuchBucket") {
				return "does not exist", nil
			}
			return "", err
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(r.bucket),
				Key:    aws.String(key),
			}); err != nil {
				return "", err
			}
			delete(r.tracked, key)
		}

		if _, err := r.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(r.bucket),
		}); err != nil {
			if isCode(err, "NoSuchBucket") {
				return "does not exist", nil
			}
			return "", err
		}
		return "", nil
	})
}

// Cleanup deletes every tracked key best-effort. Individual failures are
// logged and swallowed so cleanup always completes. No case is recorded.
func (r *Runner) Cleanup(ctx context.Context) {
	for _, key := range r.trackedKeys() {
		_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cleanup delete failed")
			continue
		}
		log.Info().Str("key", key).Msg("Cleaned up object")
		delete(r.tracked, key)
	}
}

func (r *Runner) trackedKeys() []string {
	keys := make([]string, 0, len(r.tracked))
	for key := range r.tracked {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Run executes the full battery in fixed order: readiness wait, bucket
// creation, then PUT, GET, HEAD over every fixture, LIST all and LIST
// with the folder/ prefix, DELETE for every fixture, and finally the
// optional bucket teardown and cleanup. If the endpoint never becomes
// ready the run fails with zero recorded cases. It returns the report
// and whether every case passed.
func (r *Runner) Run(ctx context.Context) (*Report, bool) {
	r.report.StartedAt = time.Now().UTC()

	if !r.WaitForReady(ctx) {
		return r.report, false
	}

	r.CreateBucket(ctx)

	for _, f := range r.fixtures {
		r.PutObject(ctx, f)
	}
	for _, f := range r.fixtures {
		r.GetObject(ctx, f)
	}
	for _, f := range r.fixtures {
		r.HeadObject(ctx, f.Key)
	}

	r.ListObjects(ctx, "")
	r.ListObjects(ctx, "folder/")

	for _, f := range r.fixtures {
		r.DeleteObject(ctx, f.Key)
	}

	if r.deleteBucket {
		r.DeleteBucket(ctx)
	}
	if r.cleanup {
		r.Cleanup(ctx)
	}

	return r.report, r.report.Passed()
}

// bytePrefix returns up to the first 50 bytes of b for diagnostics.
func bytePrefix(b []byte) string {
	if len(b) > 50 {
		b = b[:50]
	}
	return string(b)
}
