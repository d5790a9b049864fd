package media

import (
	"context"
	"errors"
	"sync"

	"chatpipe/pkg/codec"
	"chatpipe/pkg/logger"
	"chatpipe/pkg/models"
	"chatpipe/pkg/security"
	"chatpipe/pkg/telemetry"
)

// ErrUnknownAsset is returned when a single-asset retry names an id the
// arena does not track.
var ErrUnknownAsset = errors.New("unknown asset id")

// Fetcher retrieves a thumbnail by resolved URL.
type Fetcher interface {
	FetchAsset(ctx context.Context, url string) ([]byte, error)
}

// Resender re-sends a whole failed image message from its cached content
// and returns the new server-assigned asset id. Implemented over the send
// orchestrator; a send failure is message-wide, so every send-level retry
// goes through here rather than through per-asset downloads.
type Resender interface {
	ResendImage(ctx context.Context, msg models.Message) (models.AssetID, error)
}

type Pipeline struct {
	fetch  Fetcher
	resend Resender
}

func NewPipeline(fetch Fetcher, resend Resender) *Pipeline {
	return &Pipeline{fetch: fetch, resend: resend}
}

// Hydrate seeds the arena from the message content and downloads every
// asset. Unparseable content yields zero assets and is not an error here;
// the codec already degraded it.
func (p *Pipeline) Hydrate(ctx context.Context, msg models.Message, secret security.Secret, arena *Arena) {
	mc, ok := codec.DecodeMedia(msg.Content)
	if !ok {
		return
	}
	arena.Seed(mc)
	p.DownloadAll(ctx, arena, secret)
}

// DownloadAll fetches every non-LOADED asset concurrently. All assets are
// attempted; failures are isolated per item.
func (p *Pipeline) DownloadAll(ctx context.Context, arena *Arena, secret security.Secret) {
	var wg sync.WaitGroup
	for _, id := range arena.IDs() {
		wg.Add(1)
		go func(id models.AssetID) {
			defer wg.Done()
			p.download(ctx, arena, id, secret)
		}(id)
	}
	wg.Wait()
}

// download runs one asset's fetch path. For encrypted channels the
// ciphertext thumbnail link is decrypted with the channel secret and the
// asset's encryption header before the fetch. The context is re-checked
// before any state is applied so a cancelled consumer never receives a
// late transition.
func (p *Pipeline) download(ctx context.Context, arena *Arena, id models.AssetID, secret security.Secret) {
	view, ok := arena.View(id)
	if !ok {
		return
	}
	switch view.State {
	case StateLoaded, StateSending:
		return
	case StateLoading, StateError:
	}
	arena.setState(id, StateLoading)

	var url string
	if view.Encrypted != nil {
		pt, err := security.DecryptWithHeader(secret, view.Encrypted.EncryptionHeader, view.Encrypted.CiphertextThumb)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.AssetDownloadFailures.Inc()
			arena.setState(id, StateError)
			logger.Warn("asset_decrypt_failed", "asset", id, "error", err)
			return
		}
		url = string(pt)
	} else if view.Asset != nil {
		url = view.Asset.ThumbnailURL()
	}
	if url == "" {
		arena.setState(id, StateError)
		return
	}

	_, err := p.fetch.FetchAsset(ctx, url)
	if ctx.Err() != nil {
		// consumer gone; drop the result instead of mutating discarded state
		return
	}
	if err != nil {
		telemetry.AssetDownloadFailures.Inc()
		arena.setState(id, StateError)
		logger.Warn("asset_fetch_failed", "asset", id, "error", err)
		return
	}
	telemetry.AssetDownloads.Inc()
	arena.setLoaded(id, url)
}

// RetryMessage is the adornment click. When the message carries a
// send-level error the whole message is re-sent from its cached content
// and the surviving asset keys are rebound to the new server UUID. When
// the message is fine but individual assets errored, only those downloads
// are re-attempted; LOADED assets are untouched.
func (p *Pipeline) RetryMessage(ctx context.Context, msg models.Message, arena *Arena, secret security.Secret) error {
	if msg.Errored {
		return p.resendMessage(ctx, msg, arena)
	}
	var wg sync.WaitGroup
	for _, id := range arena.IDs() {
		view, ok := arena.View(id)
		if !ok || view.State != StateError {
			continue
		}
		wg.Add(1)
		go func(id models.AssetID) {
			defer wg.Done()
			p.download(ctx, arena, id, secret)
		}(id)
	}
	wg.Wait()
	return nil
}

// RetryAsset is a click on a single image. A send-level error is
// message-wide, so it escalates to the full resend; otherwise only this
// asset's download is re-attempted.
func (p *Pipeline) RetryAsset(ctx context.Context, msg models.Message, arena *Arena, id models.AssetID, secret security.Secret) error {
	if msg.Errored {
		return p.resendMessage(ctx, msg, arena)
	}
	if _, ok := arena.View(id); !ok {
		return ErrUnknownAsset
	}
	p.download(ctx, arena, id, secret)
	return nil
}

// resendMessage re-sends the failed message and, on success, rebinds every
// tracked asset key to the new server-assigned UUID. Assets sit in SENDING
// while the attempt is in flight so the adornment shows no stale errors.
func (p *Pipeline) resendMessage(ctx context.Context, msg models.Message, arena *Arena) error {
	ids := arena.IDs()
	for _, id := range ids {
		arena.setState(id, StateSending)
	}
	newID, err := p.resend.ResendImage(ctx, msg)
	if err != nil {
		for _, id := range ids {
			arena.setState(id, StateError)
		}
		return err
	}
	for _, id := range ids {
		if id == newID {
			arena.setState(id, StateLoading)
			continue
		}
		arena.Rebind(id, newID)
	}
	logger.Info("asset_rebound", "message", msg.UUID, "new_asset", newID)
	return nil
}
