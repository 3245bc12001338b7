// Package docstore keeps uploaded OD documents and hands back a reference
// that is stored with the request.
package docstore

import (
	"context"
)

// Store persists one document and returns its reference (URL or relative path).
// Delete removes a document by the reference Put returned; a missing document
// is not an error.
type Store interface {
	Put(ctx context.Context, name string, data []byte, mimeType string) (string, error)
	Delete(ctx context.Context, ref string) error
}
