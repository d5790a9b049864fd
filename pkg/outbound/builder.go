// Package outbound builds the paired (local optimistic record, network
// payload) for a new text or image message, and rebuilds the same pair for
// a resend. The client-assigned message UUID is the sole identity anchor
// across retries.
package outbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"chatpipe/pkg/codec"
	"chatpipe/pkg/models"
	"chatpipe/pkg/security"
)

// SendPayload is the network representation handed to the transport.
type SendPayload struct {
	UUID      string             `json:"uuid"`
	ChannelID string             `json:"channel_id"`
	Author    string             `json:"author"`
	Kind      models.MessageKind `json:"type"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
}

// PayloadFactory defers payload computation: encryption may be required
// before the wire content exists, and an encryption failure must abort the
// send before any network call.
type PayloadFactory func(ctx context.Context) (SendPayload, error)

// TextBuild pairs the immediately-insertable local record with the deferred
// payload factory.
type TextBuild struct {
	Local   models.Message
	Payload PayloadFactory
}

func anchorUUID(resend *models.ResendMeta) string {
	if resend != nil && resend.Resending && resend.UUID != "" {
		return resend.UUID
	}
	return uuid.NewString()
}

// BuildText produces the local record and payload factory for a text
// message. The local record carries the raw input as parsed content so the
// UI renders it immediately, before (and regardless of) encryption.
func BuildText(text, channelID, author string, resend *models.ResendMeta, secret security.Secret) TextBuild {
	id := anchorUUID(resend)
	kind := models.KindText
	if secret != nil {
		kind = models.KindEncryptedText
	}
	parsed := text
	local := models.Message{
		UUID:          id,
		ChannelID:     channelID,
		Author:        author,
		Kind:          kind,
		CreatedAt:     time.Now().UTC(),
		ParsedContent: &parsed,
	}
	factory := func(ctx context.Context) (SendPayload, error) {
		if err := ctx.Err(); err != nil {
			return SendPayload{}, err
		}
		content, k, err := codec.EncodeText(text, secret)
		if err != nil {
			return SendPayload{}, err
		}
		return SendPayload{
			UUID:      id,
			ChannelID: channelID,
			Author:    author,
			Kind:      k,
			Content:   content,
			CreatedAt: local.CreatedAt,
		}, nil
	}
	return TextBuild{Local: local, Payload: factory}
}

// PendingImage is the transitional local content of an image message: the
// cached base64 thumbnail plus the client placeholder asset id. The real
// asset UUID exists only after a successful upload.
type PendingImage struct {
	PlaceholderUUID models.AssetID `json:"placeholder_uuid"`
	ThumbnailBase64 string         `json:"thumbnail_base64"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
}

// BuildImage mirrors BuildText for an image send. The returned record is
// insertable into the optimistic store at once; its content is the cached
// base64 thumbnail, which a resend re-uploads from.
func BuildImage(placeholder models.AssetID, imageBase64 string, width, height int, channelID, author string, resend *models.ResendMeta) models.Message {
	pending := PendingImage{
		PlaceholderUUID: placeholder,
		ThumbnailBase64: imageBase64,
		Width:           width,
		Height:          height,
	}
	b, _ := json.Marshal(pending)
	return models.Message{
		UUID:      anchorUUID(resend),
		ChannelID: channelID,
		Author:    author,
		Kind:      models.KindMedia,
		Content:   string(b),
		CreatedAt: time.Now().UTC(),
	}
}

// DecodePendingImage recovers the cached upload input from a local image
// record, for resends. Not-ok when the record does not hold pending content.
func DecodePendingImage(content string) (PendingImage, bool) {
	var p PendingImage
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return PendingImage{}, false
	}
	if p.ThumbnailBase64 == "" {
		return PendingImage{}, false
	}
	return p, true
}
