package media

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatpipe/pkg/codec"
	"chatpipe/pkg/models"
	"chatpipe/pkg/security"
)

const testSecretHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeFetcher) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fail[url] {
		return nil, errors.New("fetch failed")
	}
	return []byte("imagebytes"), nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fakeResender struct {
	newID models.AssetID
	err   error
	calls int
}

func (r *fakeResender) ResendImage(ctx context.Context, msg models.Message) (models.AssetID, error) {
	r.calls++
	return r.newID, r.err
}

func mediaMsg(t *testing.T, assets ...models.MediaAsset) models.Message {
	t.Helper()
	mc := codec.MediaContent{ListViewType: codec.ListViewHorizontal, Assets: assets}
	b, err := json.Marshal(mc)
	require.NoError(t, err)
	return models.Message{UUID: "m1", ChannelID: "ch", Kind: models.KindMedia, Content: string(b)}
}

func TestHydrateLoadsAllAssets(t *testing.T) {
	fetch := newFakeFetcher()
	p := NewPipeline(fetch, &fakeResender{})
	arena := NewArena()
	msg := mediaMsg(t,
		models.MediaAsset{UUID: "a", Width: 10, Height: 10, ThumbSmall: "u/a"},
		models.MediaAsset{UUID: "b", Width: 10, Height: 10, ThumbSmall: "u/b"},
	)

	p.Hydrate(context.Background(), msg, nil, arena)

	require.Equal(t, 2, arena.Len())
	for _, id := range []models.AssetID{"a", "b"} {
		v, ok := arena.View(id)
		require.True(t, ok)
		require.Equal(t, StateLoaded, v.State, "asset %s", id)
		require.NotEmpty(t, v.ImageSrc)
	}
}

func TestDownloadFailureIsolatedPerAsset(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.fail["u/b"] = true
	p := NewPipeline(fetch, &fakeResender{})
	arena := NewArena()
	msg := mediaMsg(t,
		models.MediaAsset{UUID: "a", Width: 10, Height: 10, ThumbSmall: "u/a"},
		models.MediaAsset{UUID: "b", Width: 10, Height: 10, ThumbSmall: "u/b"},
	)

	p.Hydrate(context.Background(), msg, nil, arena)

	va, _ := arena.View("a")
	vb, _ := arena.View("b")
	require.Equal(t, StateLoaded, va.State, "sibling must be unaffected")
	require.Equal(t, StateError, vb.State)

	// message itself is fine: adornment reports download failure
	report, ok := arena.ErrorReport(false)
	require.True(t, ok)
	require.Equal(t, ReportDownloadFailed, report)
}

func TestEncryptedDownloadPath(t *testing.T) {
	secret, err := security.ParseSecretHex(testSecretHex)
	require.NoError(t, err)
	env, err := security.Encrypt(secret, []byte("u/decrypted"))
	require.NoError(t, err)

	mc := codec.MediaContent{
		ListViewType: codec.ListViewHorizontal,
		EncryptedAssets: []models.EncryptedMediaAsset{{
			UUID:             "e1",
			Width:            10,
			Height:           10,
			CiphertextThumb:  env.Ciphertext,
			EncryptionHeader: env.EncryptionHeader,
		}},
	}
	b, err := json.Marshal(mc)
	require.NoError(t, err)
	msg := models.Message{UUID: "m1", Kind: models.KindEncryptedMedia, Content: string(b)}

	fetch := newFakeFetcher()
	p := NewPipeline(fetch, &fakeResender{})
	arena := NewArena()
	p.Hydrate(context.Background(), msg, secret, arena)

	v, ok := arena.View("e1")
	require.True(t, ok)
	require.Equal(t, StateLoaded, v.State)
	require.Equal(t, "u/decrypted", v.ImageSrc)
	require.Equal(t, 1, fetch.count("u/decrypted"))

	// wrong secret: decrypt fails, asset lands in ERROR, nothing fetched
	arena2 := NewArena()
	other, _ := security.ParseSecretHex("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	p.Hydrate(context.Background(), msg, other, arena2)
	v2, _ := arena2.View("e1")
	require.Equal(t, StateError, v2.State)
}

func TestCancelledContextAppliesNoState(t *testing.T) {
	fetch := newFakeFetcher()
	p := NewPipeline(fetch, &fakeResender{})
	arena := NewArena()
	arena.Seed(codec.MediaContent{Assets: []models.MediaAsset{{UUID: "a", ThumbSmall: "u/a"}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.download(ctx, arena, "a", nil)

	v, _ := arena.View("a")
	require.NotEqual(t, StateLoaded, v.State, "cancelled consumer must not observe a result")
	require.NotEqual(t, StateError, v.State)
}

func TestRebind(t *testing.T) {
	arena := NewArena()
	arena.Seed(codec.MediaContent{Assets: []models.MediaAsset{{UUID: "A", Width: 4, Height: 3, ThumbSmall: "u/a"}}})
	arena.setLoaded("A", "u/a")

	require.True(t, arena.Rebind("A", "B"))

	_, ok := arena.View("A")
	require.False(t, ok, "old key must be deleted")
	v, ok := arena.View("B")
	require.True(t, ok, "new key must exist")
	require.Equal(t, StateLoading, v.State, "rebound asset resets to LOADING")
	require.Equal(t, 0, v.Index)
	require.NotNil(t, v.Asset)
	require.Equal(t, models.AssetID("B"), v.Asset.UUID)
	require.Equal(t, 4, v.Asset.Width, "descriptor shape carries forward")

	require.False(t, arena.Rebind("missing", "C"), "unknown key is a no-op")
}

func TestErrorReportPrecedence(t *testing.T) {
	arena := NewArena()
	arena.Seed(codec.MediaContent{Assets: []models.MediaAsset{
		{UUID: "a", ThumbSmall: "u/a"},
		{UUID: "b", ThumbSmall: "u/b"},
	}})

	// no errors anywhere
	if _, ok := arena.ErrorReport(false); ok {
		t.Fatalf("expected no report")
	}

	// asset error: download failed
	arena.setState("b", StateError)
	report, ok := arena.ErrorReport(false)
	require.True(t, ok)
	require.Equal(t, ReportDownloadFailed, report)

	// send error wins over asset error
	report, ok = arena.ErrorReport(true)
	require.True(t, ok)
	require.Equal(t, ReportSendFailed, report)

	// sending suppresses everything
	arena.setState("a", StateSending)
	if _, ok := arena.ErrorReport(true); ok {
		t.Fatalf("sending asset must suppress error reports")
	}
}

func TestRetryMessageDownloadBranch(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.fail["u/b"] = true
	res := &fakeResender{}
	p := NewPipeline(fetch, res)
	arena := NewArena()
	msg := mediaMsg(t,
		models.MediaAsset{UUID: "a", Width: 10, Height: 10, ThumbSmall: "u/a"},
		models.MediaAsset{UUID: "b", Width: 10, Height: 10, ThumbSmall: "u/b"},
	)
	p.Hydrate(context.Background(), msg, nil, arena)
	require.Equal(t, 1, fetch.count("u/a"))

	// heal the failing url, then batch retry on a healthy message
	fetch.mu.Lock()
	fetch.fail["u/b"] = false
	fetch.mu.Unlock()
	require.NoError(t, p.RetryMessage(context.Background(), msg, arena, nil))

	vb, _ := arena.View("b")
	require.Equal(t, StateLoaded, vb.State)
	require.Equal(t, 1, fetch.count("u/a"), "loaded sibling must not be re-fetched")
	require.Equal(t, 2, fetch.count("u/b"))
	require.Equal(t, 0, res.calls, "healthy message never resends")
}

func TestRetryMessageResendBranch(t *testing.T) {
	fetch := newFakeFetcher()
	res := &fakeResender{newID: "B"}
	p := NewPipeline(fetch, res)
	arena := NewArena()
	arena.Seed(codec.MediaContent{Assets: []models.MediaAsset{{UUID: "A", ThumbSmall: "u/a"}}})

	msg := models.Message{UUID: "m1", Kind: models.KindMedia, Errored: true}
	require.NoError(t, p.RetryMessage(context.Background(), msg, arena, nil))

	require.Equal(t, 1, res.calls, "send-level error forces whole-message resend")
	_, ok := arena.View("A")
	require.False(t, ok, "old asset key gone after rebind")
	v, ok := arena.View("B")
	require.True(t, ok)
	require.Equal(t, StateLoading, v.State)
}

func TestRetryMessageResendFailure(t *testing.T) {
	res := &fakeResender{err: errors.New("still down")}
	p := NewPipeline(newFakeFetcher(), res)
	arena := NewArena()
	arena.Seed(codec.MediaContent{Assets: []models.MediaAsset{{UUID: "A", ThumbSmall: "u/a"}}})

	msg := models.Message{UUID: "m1", Kind: models.KindMedia, Errored: true}
	require.Error(t, p.RetryMessage(context.Background(), msg, arena, nil))

	v, ok := arena.View("A")
	require.True(t, ok, "failed resend keeps the old key")
	require.Equal(t, StateError, v.State)
}

func TestRetryAsset(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.fail["u/a"] = true
	res := &fakeResender{newID: "Z"}
	p := NewPipeline(fetch, res)
	arena := NewArena()
	msg := mediaMsg(t, models.MediaAsset{UUID: "a", Width: 10, Height: 10, ThumbSmall: "u/a"})
	p.Hydrate(context.Background(), msg, nil, arena)

	// healthy message: single-asset retry re-downloads only
	fetch.mu.Lock()
	fetch.fail["u/a"] = false
	fetch.mu.Unlock()
	require.NoError(t, p.RetryAsset(context.Background(), msg, arena, "a", nil))
	v, _ := arena.View("a")
	require.Equal(t, StateLoaded, v.State)
	require.Equal(t, 0, res.calls)

	// unknown id is a distinct error
	require.ErrorIs(t, p.RetryAsset(context.Background(), msg, arena, "nope", nil), ErrUnknownAsset)

	// send-errored message: single-asset retry escalates to full resend
	msg.Errored = true
	require.NoError(t, p.RetryAsset(context.Background(), msg, arena, "a", nil))
	require.Equal(t, 1, res.calls)
}
