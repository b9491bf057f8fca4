// Package objectstore wraps the S3-compatible bucket contract the
// pipelines read source PDFs from. The three buckets named in
// SPEC_FULL.md §6 (index, actes, plans-cadastraux) are read-only from
// this service's perspective.
package objectstore

import "context"

// Store fetches objects by bucket and key. The only implementation is
// S3Store, backed by aws-sdk-go-v2/service/s3; tests use FakeStore.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}
