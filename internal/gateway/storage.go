package gateway

import (
	"context"
	"io"
	"strings"

	"meridian/internal/models"
	"meridian/internal/observability"
)

// Storage uploads blobs to the hosted backend's object store and resolves
// stable public URLs for them. Upload failures carry the storage error code,
// distinct from mutate failures, so composers can report them separately.
type Storage interface {
	Upload(ctx context.Context, bucket, path, contentType string, r io.Reader) error
	PublicURL(bucket, path string) string
}

// Upload stores a blob under the caller-chosen path.
func (g *REST) Upload(ctx context.Context, bucket, path, contentType string, r io.Reader) error {
	var code string
	defer observability.TrackGateway("upload", bucket, &code)()
	_, span := observability.TraceGatewayOp(ctx, "upload", bucket)
	defer span.End()

	data, err := io.ReadAll(r)
	if err != nil {
		code = models.CodeStorage
		return models.NewStorageError("could not read upload payload", err)
	}

	resp, err := g.request(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Post("/storage/v1/object/" + bucket + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		cerr := classifyTransport(err)
		if models.IsAborted(cerr) {
			code = models.CodeAborted
			return cerr
		}
		code = models.CodeStorage
		span.RecordError(cerr)
		return models.NewStorageError("", cerr)
	}
	if resp.IsError() {
		code = models.CodeStorage
		cerr := models.NewStorageError("", classifyHTTP(resp.StatusCode(), resp.Bytes()))
		span.RecordError(cerr)
		return cerr
	}
	return nil
}

// PublicURL resolves the stable public URL for an uploaded object.
func (g *REST) PublicURL(bucket, path string) string {
	base := strings.TrimSuffix(g.baseURL, "/")
	return base + "/storage/v1/object/public/" + bucket + "/" + strings.TrimPrefix(path, "/")
}
