package app

import (
	"context"
	"fmt"

	"chatpipe/pkg/models"
	"chatpipe/pkg/outbound"
	"chatpipe/pkg/security"
	"chatpipe/pkg/send"
)

// SecretResolver maps a channel to its symmetric secret. Nil means no
// channel is end-to-end encrypted.
type SecretResolver func(channelID string) security.Secret

// imageResender adapts the send orchestrator to the media pipeline's
// whole-message retry: it recovers the cached upload input from the failed
// record and replays the image send under the original uuid.
type imageResender struct {
	orchestrator *send.Orchestrator
	secrets      SecretResolver
}

func (r imageResender) secret(channelID string) security.Secret {
	if r.secrets == nil {
		return nil
	}
	return r.secrets(channelID)
}

func (r imageResender) ResendImage(ctx context.Context, msg models.Message) (models.AssetID, error) {
	pending, ok := outbound.DecodePendingImage(msg.Content)
	if !ok {
		return "", fmt.Errorf("message %s has no cached image to resend", msg.UUID)
	}
	res := r.orchestrator.SendImage(ctx, pending.ThumbnailBase64, pending.Width, pending.Height,
		msg.ChannelID, msg.Author, &models.ResendMeta{Resending: true, UUID: msg.UUID},
		r.secret(msg.ChannelID))
	if !res.OK {
		return res.AssetID, res.Err
	}
	return res.AssetID, nil
}
