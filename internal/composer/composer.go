// Package composer owns draft submission with attachment upload-then-
// reference semantics for the chat, comment, and repost surfaces.
package composer

import (
	"bytes"
	"context"
	"path"
	"strings"
	"sync"

	"meridian/internal/gateway"
	"meridian/internal/models"
	"meridian/internal/observability"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultMaxUploadBytes bounds attachment payloads checked before upload.
const DefaultMaxUploadBytes = 10 << 20

// attachmentKinds are the staged attachment kinds the composer accepts.
var attachmentKinds = []models.MessageKind{
	models.MessageImage,
	models.MessageVideo,
	models.MessageDocument,
	models.MessageAudio,
}

// Attachment is the staged attachment. Exactly one may be active at a time;
// staging a new one clears and releases the previous one.
type Attachment struct {
	Kind        models.MessageKind
	Filename    string
	ContentType string
	Data        []byte

	// release revokes the local preview handle (e.g. an object URL) so a
	// replaced attachment does not leak.
	release func()
}

// Draft is the submission payload handed to the caller's insert function
// after a successful upload.
type Draft struct {
	Content        string
	Kind           models.MessageKind
	AttachmentURL  string
	AttachmentName string
}

// Composer stages text and at most one attachment, uploads the attachment on
// submit, and hands the resulting references to the caller's insert step.
// Submission is rejected while another submit is in flight.
type Composer struct {
	storage  gateway.Storage
	bucket   string
	maxBytes int64
	logger   *observability.SyncLogger

	mu         sync.Mutex
	attachment *Attachment
	inFlight   bool
}

// New builds a Composer uploading to the given bucket.
func New(storage gateway.Storage, bucket string) *Composer {
	return &Composer{
		storage:  storage,
		bucket:   bucket,
		maxBytes: DefaultMaxUploadBytes,
		logger:   observability.NewSyncLogger("composer"),
	}
}

// StageAttachment validates and stages an attachment, replacing any previous
// one. The previous attachment's preview handle is released before the new
// one is staged. release may be nil.
func (c *Composer) StageAttachment(kind models.MessageKind, filename, contentType string, data []byte, release func()) error {
	if !lo.Contains(attachmentKinds, kind) {
		return models.NewValidationError("unsupported attachment kind")
	}
	if len(data) == 0 {
		return models.NewValidationError("attachment is empty")
	}
	if int64(len(data)) > c.maxBytes {
		return models.NewValidationError("attachment exceeds the maximum upload size")
	}
	if kind == models.MessageImage {
		if err := validateImage(data); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return models.NewValidationError("cannot change the attachment while sending")
	}
	c.clearLocked()
	c.attachment = &Attachment{
		Kind:        kind,
		Filename:    filename,
		ContentType: detectContentType(contentType, data),
		Data:        data,
		release:     release,
	}
	return nil
}

// ClearAttachment drops the staged attachment and releases its preview.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return
	}
	c.clearLocked()
}

func (c *Composer) clearLocked() {
	if c.attachment != nil && c.attachment.release != nil {
		c.attachment.release()
	}
	c.attachment = nil
}

// Attachment returns the staged attachment, or nil.
func (c *Composer) Attachment() *Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// InFlight reports whether a submission is currently running.
func (c *Composer) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// SubmitFunc writes the row for a finished draft and reflects it in local
// state. It runs after the attachment upload has completed.
type SubmitFunc func(ctx context.Context, draft Draft) error

// Submit uploads the staged attachment (if any), then invokes insert with
// the finished draft. On success the draft is cleared; on failure the text
// and attachment stay staged so the user can retry. Concurrent submissions
// are rejected before any network call.
func (c *Composer) Submit(ctx context.Context, ownerID, text string, insert SubmitFunc) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return models.NewValidationError("a submission is already in progress")
	}
	att := c.attachment
	if strings.TrimSpace(text) == "" && att == nil {
		c.mu.Unlock()
		return models.NewValidationError("nothing to send")
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	draft := Draft{Content: text, Kind: models.MessageText}
	if att != nil {
		objectPath := ownerID + "/" + uuid.NewString() + path.Ext(att.Filename)
		if err := c.storage.Upload(ctx, c.bucket, objectPath, att.ContentType, bytes.NewReader(att.Data)); err != nil {
			c.logger.LogError(ctx, err, "upload")
			return err
		}
		draft.Kind = att.Kind
		draft.AttachmentURL = c.storage.PublicURL(c.bucket, objectPath)
		draft.AttachmentName = att.Filename
	}

	if err := insert(ctx, draft); err != nil {
		return err
	}

	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
	return nil
}
