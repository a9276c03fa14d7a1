// Package attachment stores the documents and photos customers reference in
// their decisions. Decisions keep only metadata; bytes live in the object
// store.
package attachment

import (
	"context"
	"io"
	"time"

	"worksign/internal/review"
)

// Store writes attachment bytes and produces the metadata echoed back in a
// decision's attachments list.
type Store interface {
	Put(ctx context.Context, jti, filename, contentType string, size int64, body io.Reader) (review.Attachment, error)
	// PresignGet returns a time-limited download URL for an object key.
	PresignGet(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}
