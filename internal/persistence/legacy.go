package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"ledger/internal/credit"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"
)

// Legacy is the transitional document store (spec.md §4.5/§4.9): one
// JSON object per user, keyed by user_id, read on reconciliation and
// mirrored on a best-effort basis thereafter. Client construction uses
// static credentials and path-style addressing for S3-compatible
// endpoints.
type Legacy struct {
	client *s3.Client
	bucket string
}

// NewLegacyClient builds the S3 client from static credentials,
// region, and a base endpoint with path-style addressing so
// S3-compatible stores (MinIO, etc.) work too.
func NewLegacyClient(ctx context.Context, endpoint, region, accessKey, secretKey string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load legacy store S3 config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	}), nil
}

func NewLegacy(client *s3.Client, bucket string) *Legacy {
	return &Legacy{client: client, bucket: bucket}
}

func key(userID uuid.UUID) string {
	return fmt.Sprintf("user-credits/%s.json", userID.String())
}

// Fetch reads and decodes the legacy document for userID, tolerating
// any of the three historical tranche layouts. found is false on a
// clean 404.
func (l *Legacy) Fetch(ctx context.Context, userID uuid.UUID) (state credit.UserCredits, found bool, err error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key(userID)),
	})
	if err != nil {
		var notFound *smithyhttp.ResponseError
		if errors.As(err, &notFound) && notFound.HTTPStatusCode() == 404 {
			return credit.UserCredits{}, false, nil
		}
		return credit.UserCredits{}, false, fmt.Errorf("fetch legacy document for %s: %w", userID, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return credit.UserCredits{}, false, fmt.Errorf("read legacy document for %s: %w", userID, err)
	}

	state, err = decodeLegacyDocument(userID, raw)
	if err != nil {
		return credit.UserCredits{}, false, err
	}
	return state, true, nil
}

// Update mirrors state into the legacy store in the canonical
// tranche layout, best-effort: callers log and continue on error
// rather than failing the caller's operation (spec.md §4.5).
func (l *Legacy) Update(ctx context.Context, state credit.UserCredits) error {
	body, err := encodeCanonicalDocument(state)
	if err != nil {
		return fmt.Errorf("encode legacy document for %s: %w", state.UserID, err)
	}
	_, err = l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key(state.UserID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("mirror legacy document for %s: %w", state.UserID, err)
	}
	return nil
}
