package composer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"meridian/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStorage struct {
	mu      sync.Mutex
	uploads []string
	err     error
	block   chan struct{}
}

func (s *stubStorage) Upload(ctx context.Context, bucket, path, contentType string, r io.Reader) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, bucket+"/"+path)
	s.mu.Unlock()
	return nil
}

func (s *stubStorage) PublicURL(bucket, path string) string {
	return "https://cdn.example.com/" + bucket + "/" + path
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStageAttachment_Validation(t *testing.T) {
	c := New(&stubStorage{}, "media")
	valid := pngBytes(t, 4, 4)

	tests := []struct {
		name string
		kind models.MessageKind
		data []byte
	}{
		{"unsupported kind", models.MessageKind("sticker"), valid},
		{"text kind has no attachment", models.MessageText, valid},
		{"empty payload", models.MessageImage, nil},
		{"image that is not an image", models.MessageImage, []byte("hello world")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.StageAttachment(tt.kind, "f.png", "", tt.data, nil)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.Nil(t, c.Attachment())
		})
	}
}

func TestStageAttachment_AcceptsValidImage(t *testing.T) {
	c := New(&stubStorage{}, "media")
	data := pngBytes(t, 8, 8)

	require.NoError(t, c.StageAttachment(models.MessageImage, "photo.png", "", data, nil))

	att := c.Attachment()
	require.NotNil(t, att)
	assert.Equal(t, models.MessageImage, att.Kind)
	assert.Equal(t, "photo.png", att.Filename)
	assert.Equal(t, "image/png", att.ContentType, "content type is sniffed when not declared")
}

func TestStageAttachment_NonImageKindsSkipSniffing(t *testing.T) {
	c := New(&stubStorage{}, "media")
	err := c.StageAttachment(models.MessageDocument, "notes.pdf", "application/pdf", []byte("%PDF-1.4"), nil)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", c.Attachment().ContentType)
}

func TestStageAttachment_RejectsOversizedPayload(t *testing.T) {
	c := New(&stubStorage{}, "media")
	c.maxBytes = 16

	err := c.StageAttachment(models.MessageDocument, "big.bin", "application/octet-stream", make([]byte, 17), nil)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestStageAttachment_ReplacingReleasesPrevious(t *testing.T) {
	c := New(&stubStorage{}, "media")
	released := 0

	require.NoError(t, c.StageAttachment(models.MessageDocument, "a.txt", "text/plain", []byte("a"), func() { released++ }))
	require.NoError(t, c.StageAttachment(models.MessageDocument, "b.txt", "text/plain", []byte("b"), func() { released++ }))

	assert.Equal(t, 1, released, "staging a replacement releases the previous preview")
	assert.Equal(t, "b.txt", c.Attachment().Filename)

	c.ClearAttachment()
	assert.Equal(t, 2, released)
	assert.Nil(t, c.Attachment())
}

func TestSubmit_TextOnly(t *testing.T) {
	storage := &stubStorage{}
	c := New(storage, "media")

	var got Draft
	err := c.Submit(context.Background(), "u1", "hello there", func(ctx context.Context, draft Draft) error {
		got = draft
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", got.Content)
	assert.Equal(t, models.MessageText, got.Kind)
	assert.Empty(t, got.AttachmentURL)
	assert.Empty(t, storage.uploads, "no attachment, no upload")
}

func TestSubmit_EmptyDraftRejected(t *testing.T) {
	c := New(&stubStorage{}, "media")
	err := c.Submit(context.Background(), "u1", "   ", func(ctx context.Context, draft Draft) error {
		t.Fatal("insert must not run for an empty draft")
		return nil
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestSubmit_UploadsThenReferences(t *testing.T) {
	storage := &stubStorage{}
	c := New(storage, "media")
	require.NoError(t, c.StageAttachment(models.MessageImage, "pic.png", "", pngBytes(t, 4, 4), nil))

	var got Draft
	err := c.Submit(context.Background(), "u1", "caption", func(ctx context.Context, draft Draft) error {
		require.Len(t, storage.uploads, 1, "upload completes before insert runs")
		got = draft
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.MessageImage, got.Kind)
	assert.Equal(t, "pic.png", got.AttachmentName)
	assert.True(t, strings.HasPrefix(got.AttachmentURL, "https://cdn.example.com/media/u1/"))
	assert.True(t, strings.HasSuffix(got.AttachmentURL, ".png"))

	// Success clears the draft.
	assert.Nil(t, c.Attachment())
	assert.False(t, c.InFlight())
}

func TestSubmit_FailureRetainsDraftForRetry(t *testing.T) {
	storage := &stubStorage{}
	c := New(storage, "media")
	require.NoError(t, c.StageAttachment(models.MessageImage, "pic.png", "", pngBytes(t, 4, 4), nil))

	err := c.Submit(context.Background(), "u1", "caption", func(ctx context.Context, draft Draft) error {
		return models.NewTransientError("insert failed", nil)
	})
	require.Error(t, err)

	require.NotNil(t, c.Attachment(), "a failed send keeps the attachment staged")
	assert.Equal(t, "pic.png", c.Attachment().Filename)
	assert.False(t, c.InFlight())

	// The retry succeeds with the same staged state.
	err = c.Submit(context.Background(), "u1", "caption", func(ctx context.Context, draft Draft) error {
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, c.Attachment())
}

func TestSubmit_UploadFailureSkipsInsert(t *testing.T) {
	storage := &stubStorage{err: models.NewStorageError("bucket full", nil)}
	c := New(storage, "media")
	require.NoError(t, c.StageAttachment(models.MessageImage, "pic.png", "", pngBytes(t, 4, 4), nil))

	err := c.Submit(context.Background(), "u1", "caption", func(ctx context.Context, draft Draft) error {
		t.Fatal("insert must not run after a failed upload")
		return nil
	})
	require.Error(t, err)
	assert.True(t, models.IsStorage(err))
	assert.NotNil(t, c.Attachment())
}

func TestSubmit_ConcurrentSubmissionRejected(t *testing.T) {
	storage := &stubStorage{block: make(chan struct{})}
	c := New(storage, "media")
	require.NoError(t, c.StageAttachment(models.MessageImage, "pic.png", "", pngBytes(t, 4, 4), nil))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Submit(context.Background(), "u1", "first", func(ctx context.Context, draft Draft) error {
			return nil
		})
	}()

	assert.Eventually(t, c.InFlight, time.Second, time.Millisecond)

	// A second submit while the first is uploading fails fast.
	err := c.Submit(context.Background(), "u1", "second", func(ctx context.Context, draft Draft) error {
		return fmt.Errorf("must not run")
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	// Restaging during an in-flight submit is also rejected.
	err = c.StageAttachment(models.MessageDocument, "x.txt", "text/plain", []byte("x"), nil)
	require.Error(t, err)

	close(storage.block)
	require.NoError(t, <-firstDone)
}
