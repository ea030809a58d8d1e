package dispatch

import (
	"context"
	"io"

	"babybot/pkg/activity"
	"babybot/pkg/bus"
	"babybot/pkg/event"
	"babybot/pkg/failure"
	"babybot/pkg/logger"
	"babybot/pkg/storage"
)

// mediaNoun is the plural used in media replies, e.g. "images are saved.".
func mediaNoun(t event.MessageType) string {
	if t == event.MessageVideo {
		return "videos"
	}
	return "images"
}

func defaultContentType(t event.MessageType) string {
	if t == event.MessageVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

// handleMedia streams platform-hosted content into storage and records the
// asset. Externally hosted content is not downloaded, and neither is content
// from a sender with no user row to own the asset.
func (d *Dispatcher) handleMedia(ctx context.Context, ev event.Event) (Status, error) {
	msg := ev.Message
	log := logger.FromContext(ctx)

	if !msg.ContentProvider.Hosted() {
		log.Info("Skipping externally hosted content", "message_id", msg.ID, "url", msg.ContentProvider.OriginalContentURL)
		return StatusIgnored, nil
	}

	noun := mediaNoun(msg.Type)
	failed := noun + " fail to save."

	userID, access, err := d.identify(ctx, ev.Source)
	if err != nil {
		return StatusError, d.replyOnFailure(ctx, ev, err, failed)
	}
	if userID == 0 {
		err := failure.New(failure.PermissionDenied, "media from unregistered sender")
		return StatusError, d.replyOnFailure(ctx, ev, err, activity.MsgPermissionDenied)
	}

	var entityID *int64
	if id, ok := access.Only(); ok {
		entityID = &id
	}

	at := d.eventTime(ev)
	key := storage.Key(at, msg.ID, entityID)

	written, err := d.upload(ctx, msg, key)
	if err != nil {
		return StatusError, d.replyOnFailure(ctx, ev, err, failed)
	}

	payload := map[string]string{"key": key}
	if link := d.mediaLink(ctx, key); link != "" {
		payload["url"] = link
	}
	d.events.PublishEvent(ctx, bus.Event{
		Type:    bus.MediaStored,
		Channel: d.platform,
		ChatID:  ev.Source.ChatID(),
		Kind:    string(ev.Type),
		Bytes:   written,
		Payload: payload,
	})

	_, err = d.store.InsertMediaAsset(ctx, activity.MediaAsset{
		OwnerUserID: userID,
		EntityID:    entityID,
		MessageType: string(msg.Type),
		StorageKey:  key,
		CapturedAt:  at,
	})
	if err != nil {
		err = failure.Wrap(failure.PersistenceWriteFailed, err, "insert media asset")
		return StatusError, d.replyOnFailure(ctx, ev, err, failed)
	}

	log.Info("Stored media", "key", key, "bytes", written)
	return StatusOK, d.reply(ctx, ev, noun+" are saved.")
}

// upload copies message content into storage. Only an explicit 200 from the
// backend counts as stored.
func (d *Dispatcher) upload(ctx context.Context, msg *event.Message, key string) (int64, error) {
	content, err := d.messenger.Content(ctx, msg.ID)
	if err != nil {
		return 0, failure.Wrap(failure.StorageUploadFailed, err, "fetch message content")
	}
	defer content.Body.Close()

	contentType := content.ContentType
	if contentType == "" {
		contentType = defaultContentType(msg.Type)
	}

	body := &countingReader{r: content.Body}
	result, err := d.storage.PutStream(ctx, key, body, content.Length, contentType)
	if err != nil {
		return 0, failure.Wrap(failure.StorageUploadFailed, err, "put "+key)
	}
	if !result.OK() {
		return 0, failure.Newf(failure.StorageUploadFailed, "put %s: status %d", key, result.StatusCode)
	}

	if result.Size > 0 {
		return result.Size, nil
	}
	return body.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type publicLinker interface {
	PublicURL(key string) string
}

// mediaLink returns a download link for key: the public CDN URL when the
// storage has one, otherwise a presigned URL. Failures only cost the link.
func (d *Dispatcher) mediaLink(ctx context.Context, key string) string {
	if linker, ok := d.storage.(publicLinker); ok {
		if link := linker.PublicURL(key); link != "" {
			return link
		}
	}
	link, err := d.storage.SignedURL(ctx, key, d.linkTTL)
	if err != nil {
		logger.FromContext(ctx).Warn("Media link unavailable", "key", key, "error", err)
		return ""
	}
	return link
}
