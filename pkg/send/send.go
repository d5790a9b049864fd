// Package send orchestrates outgoing messages: optimistic local insertion,
// the network attempt, and failure marking. Nothing here retries on its
// own; every retry is user-initiated and reuses the original client uuid so
// the UI updates the same visual element instead of appending a duplicate.
package send

import (
	"context"
	"encoding/base64"

	"github.com/google/uuid"

	"chatpipe/pkg/codec"
	"chatpipe/pkg/logger"
	"chatpipe/pkg/media"
	"chatpipe/pkg/models"
	"chatpipe/pkg/outbound"
	"chatpipe/pkg/security"
	"chatpipe/pkg/telemetry"
)

// Network is the transport consumed by the orchestrator.
type Network interface {
	Send(ctx context.Context, channelID string, payload outbound.SendPayload) ([]models.Message, error)
	UploadAsset(ctx context.Context, assetID models.AssetID, channelID string, data []byte, width, height int) (models.MediaAsset, error)
	DeleteAsset(ctx context.Context, assetID models.AssetID) error
}

// Store is the optimistic message store. Upserts are keyed by (channel,
// uuid); operating on an unknown key is a no-op, not an error.
type Store interface {
	InsertLocal(msg models.Message) error
	MarkFailed(channelID, msgUUID string) error
	Reconcile(channelID, msgUUID string, confirmed models.Message) error
	Delete(channelID, msgUUID string) error
}

// Toast is a user-facing transient notification.
type Toast struct {
	Title   string
	Message string
}

// Notifier surfaces toasts to the UI layer. May be nil.
type Notifier interface {
	Toast(t Toast)
}

// Recognized network failures map to this fixed toast; all other send
// errors stay silent and rely on the inline resend affordance.
var networkToast = Toast{
	Title:   "Message not sent",
	Message: "Check your connection and try again.",
}

// Result reports the outcome of one send attempt.
type Result struct {
	OK   bool
	UUID string
	// AssetID is set once an image upload succeeded, even if the message
	// send afterwards failed; resends rebind to it.
	AssetID models.AssetID
	Err     error
}

// Options tunes the orchestrator.
type Options struct {
	// MaxImageDimension clamps the longest image side before upload.
	// Zero means the default of 2048.
	MaxImageDimension int
	Notifier          Notifier
}

type Orchestrator struct {
	net    Network
	store  Store
	notify Notifier
	maxDim int
}

func New(net Network, store Store, opts Options) *Orchestrator {
	maxDim := opts.MaxImageDimension
	if maxDim <= 0 {
		maxDim = 2048
	}
	return &Orchestrator{net: net, store: store, notify: opts.Notifier, maxDim: maxDim}
}

// SendText runs the full text pipeline: optimistic insert (skipped on
// resend), deferred encode/encrypt, network send, reconcile or mark
// failed. An encryption failure aborts before any network call.
func (o *Orchestrator) SendText(ctx context.Context, text, channelID, author string, resend *models.ResendMeta, secret security.Secret) Result {
	build := outbound.BuildText(text, channelID, author, resend, secret)
	id := build.Local.UUID

	if resend != nil && resend.Resending {
		telemetry.MessagesResent.Inc()
	} else if err := o.store.InsertLocal(build.Local); err != nil {
		logger.Error("optimistic_insert_failed", "channel", channelID, "uuid", id, "error", err)
		return Result{UUID: id, Err: err}
	}

	payload, err := build.Payload(ctx)
	if err != nil {
		// encryption or cancellation: no network call was made
		o.fail(channelID, id, err)
		return Result{UUID: id, Err: err}
	}

	confirmed, err := o.transmit(ctx, channelID, payload)
	if err != nil {
		o.fail(channelID, id, err)
		return Result{UUID: id, Err: err}
	}
	o.confirm(channelID, build.Local, confirmed)
	return Result{OK: true, UUID: id}
}

// SendImage uploads the (dimension-scaled) asset first and only then sends
// the message. An upload failure aborts without a message call so no
// message exists without its asset. The reverse — upload ok, send failed —
// leaves the asset reachable only through resend rebinding, which is the
// accepted tradeoff.
func (o *Orchestrator) SendImage(ctx context.Context, imageBase64 string, width, height int, channelID, author string, resend *models.ResendMeta, secret security.Secret) Result {
	placeholder := models.AssetID(uuid.NewString())
	local := outbound.BuildImage(placeholder, imageBase64, width, height, channelID, author, resend)
	id := local.UUID

	if resend != nil && resend.Resending {
		telemetry.MessagesResent.Inc()
	} else if err := o.store.InsertLocal(local); err != nil {
		logger.Error("optimistic_insert_failed", "channel", channelID, "uuid", id, "error", err)
		return Result{UUID: id, Err: err}
	}

	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		o.fail(channelID, id, err)
		return Result{UUID: id, Err: err}
	}

	w, h := media.ScaleDimensions(width, height, o.maxDim)
	asset, err := o.net.UploadAsset(ctx, placeholder, channelID, data, w, h)
	if err != nil {
		telemetry.AssetUploadFailures.Inc()
		o.fail(channelID, id, err)
		return Result{UUID: id, Err: err}
	}
	telemetry.AssetUploads.Inc()

	var content string
	var kind models.MessageKind
	if secret != nil {
		content, kind, err = codec.EncodeEncryptedMedia(asset, secret, false)
	} else {
		content, kind, err = codec.EncodeMedia(asset, false)
	}
	if err != nil {
		o.fail(channelID, id, err)
		return Result{UUID: id, AssetID: asset.UUID, Err: err}
	}

	payload := outbound.SendPayload{
		UUID:      id,
		ChannelID: channelID,
		Author:    author,
		Kind:      kind,
		Content:   content,
		CreatedAt: local.CreatedAt,
	}
	confirmed, err := o.transmit(ctx, channelID, payload)
	if err != nil {
		o.fail(channelID, id, err)
		return Result{UUID: id, AssetID: asset.UUID, Err: err}
	}

	local.Kind = kind
	local.Content = content
	o.confirm(channelID, local, confirmed)
	return Result{OK: true, UUID: id, AssetID: asset.UUID}
}

// DeleteMessage marks the record deleted and cascades a best-effort delete
// of every owned media asset.
func (o *Orchestrator) DeleteMessage(ctx context.Context, channelID, msgUUID string, assets []models.AssetID) error {
	if err := o.store.Delete(channelID, msgUUID); err != nil {
		return err
	}
	for _, a := range assets {
		if err := o.net.DeleteAsset(ctx, a); err != nil {
			logger.Warn("asset_delete_failed", "asset", a, "error", err)
		}
	}
	logger.Info("message_deleted", "channel", channelID, "uuid", msgUUID, "assets", len(assets))
	return nil
}

// transmit performs the network send and normalizes an empty server
// response into a failure.
func (o *Orchestrator) transmit(ctx context.Context, channelID string, payload outbound.SendPayload) ([]models.Message, error) {
	msgs, err := o.net.Send(ctx, channelID, payload)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrEmptyResponse
	}
	return msgs, nil
}

// confirm merges server-assigned fields onto the local record and marks it
// delivered.
func (o *Orchestrator) confirm(channelID string, local models.Message, serverMsgs []models.Message) {
	confirmed := local
	for _, m := range serverMsgs {
		if m.UUID == local.UUID {
			confirmed = m
			break
		}
	}
	confirmed.UUID = local.UUID
	confirmed.ChannelID = channelID
	confirmed.ParsedContent = local.ParsedContent
	confirmed.Delivered = true
	confirmed.Errored = false
	if err := o.store.Reconcile(channelID, local.UUID, confirmed); err != nil {
		logger.Error("reconcile_failed", "channel", channelID, "uuid", local.UUID, "error", err)
		return
	}
	telemetry.MessagesSent.WithLabelValues(string(confirmed.Kind)).Inc()
	logger.Info("message_delivered", "channel", channelID, "uuid", local.UUID, "kind", confirmed.Kind)
}

// fail marks the record failed and surfaces a toast only for recognized
// network errors; everything else stays silent behind the inline retry.
func (o *Orchestrator) fail(channelID, msgUUID string, cause error) {
	telemetry.MessagesFailed.Inc()
	if err := o.store.MarkFailed(channelID, msgUUID); err != nil {
		logger.Error("mark_failed_error", "channel", channelID, "uuid", msgUUID, "error", err)
	}
	if IsNetworkError(cause) && o.notify != nil {
		o.notify.Toast(networkToast)
	}
	logger.Warn("message_send_failed", "channel", channelID, "uuid", msgUUID, "error", cause)
}
