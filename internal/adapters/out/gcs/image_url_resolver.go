// internal/adapters/out/gcs/image_url_resolver.go
package gcs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iamcredentials/v1"

	gcscommon "solare/internal/adapters/out/gcs/common"
)

const defaultSignedURLTTL = 15 * time.Minute

// ImageURLResolver turns stored product image references into URLs the view can load.
//
// stored can be:
// - http(s)://... (returned as-is unless it points at a GCS bucket and signing is on)
// - gs://bucket/object or https://storage.googleapis.com/bucket/object
// - objectPath (treated as an object within Bucket)
//
// With SignerEmail set, GCS objects get a V4 signed GET URL (private buckets);
// if signing fails the public URL is returned and a warning logged.
type ImageURLResolver struct {
	Bucket      string
	SignerEmail string
	TTL         time.Duration

	// sign is replaceable in tests.
	sign func(ctx context.Context, bucket, object string) (string, error)
	now  func() time.Time
}

func NewImageURLResolver(bucket, signerEmail string, ttl time.Duration) *ImageURLResolver {
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	r := &ImageURLResolver{
		Bucket:      strings.TrimSpace(bucket),
		SignerEmail: strings.TrimSpace(signerEmail),
		TTL:         ttl,
		now:         time.Now,
	}
	r.sign = r.signV4
	return r
}

func (r *ImageURLResolver) Resolve(ctx context.Context, stored string) string {
	p := strings.TrimSpace(stored)
	if r == nil || p == "" {
		return p
	}

	bucket, object, ok := gcscommon.ParseGCSURL(p)
	if !ok {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "data:") {
			return p
		}
		if r.Bucket == "" {
			return p
		}
		bucket, object = r.Bucket, strings.TrimLeft(p, "/")
	}

	if r.SignerEmail != "" && r.sign != nil {
		u, err := r.sign(ctx, bucket, object)
		if err == nil {
			return u
		}
		log.Printf("[gcs] WARN: sign %s/%s failed: %v (falling back to public URL)", bucket, object, err)
	}
	return gcscommon.GCSPublicURL(bucket, object, r.Bucket)
}

func (r *ImageURLResolver) signV4(ctx context.Context, bucket, object string) (string, error) {
	accessID := r.SignerEmail
	if accessID == "" {
		return "", errors.New("image_url_resolver: signer email not configured")
	}

	svc, err := iamcredentials.NewService(ctx)
	if err != nil {
		return "", fmt.Errorf("image_url_resolver: iamcredentials init failed: %w", err)
	}

	signBytes := func(b []byte) ([]byte, error) {
		name := "projects/-/serviceAccounts/" + accessID
		req := &iamcredentials.SignBlobRequest{
			Payload: base64.StdEncoding.EncodeToString(b),
		}
		resp, err := svc.Projects.ServiceAccounts.SignBlob(name, req).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(resp.SignedBlob)
	}

	return storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		GoogleAccessID: accessID,
		SignBytes:      signBytes,
		Expires:        r.now().UTC().Add(r.TTL),
	})
}
