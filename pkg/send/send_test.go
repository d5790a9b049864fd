package send

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"chatpipe/pkg/codec"
	"chatpipe/pkg/models"
	"chatpipe/pkg/outbound"
	"chatpipe/pkg/security"
)

const testSecretHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type fakeNetwork struct {
	sendErr   error
	uploadErr error
	sent      []outbound.SendPayload
	uploads   int
	deleted   []models.AssetID
	// echo controls whether Send echoes back a confirmed message
	echo bool
}

func newFakeNetwork() *fakeNetwork { return &fakeNetwork{echo: true} }

func (n *fakeNetwork) Send(ctx context.Context, channelID string, payload outbound.SendPayload) ([]models.Message, error) {
	n.sent = append(n.sent, payload)
	if n.sendErr != nil {
		return nil, n.sendErr
	}
	if !n.echo {
		return nil, nil
	}
	return []models.Message{{
		UUID:       payload.UUID,
		ID:         "srv-1",
		SequenceID: 42,
		ChannelID:  channelID,
		Author:     payload.Author,
		Kind:       payload.Kind,
		Content:    payload.Content,
		CreatedAt:  payload.CreatedAt,
	}}, nil
}

func (n *fakeNetwork) UploadAsset(ctx context.Context, assetID models.AssetID, channelID string, data []byte, width, height int) (models.MediaAsset, error) {
	n.uploads++
	if n.uploadErr != nil {
		return models.MediaAsset{}, n.uploadErr
	}
	return models.MediaAsset{UUID: "srv-asset", Width: width, Height: height, ThumbSmall: "/t/s.jpg"}, nil
}

func (n *fakeNetwork) DeleteAsset(ctx context.Context, assetID models.AssetID) error {
	n.deleted = append(n.deleted, assetID)
	return nil
}

type fakeStore struct {
	records map[string]models.Message
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]models.Message{}} }

func (s *fakeStore) key(ch, id string) string { return ch + "/" + id }

func (s *fakeStore) InsertLocal(msg models.Message) error {
	s.records[s.key(msg.ChannelID, msg.UUID)] = msg
	return nil
}

func (s *fakeStore) MarkFailed(channelID, msgUUID string) error {
	m, ok := s.records[s.key(channelID, msgUUID)]
	if !ok {
		return nil
	}
	m.Errored = true
	m.Delivered = false
	s.records[s.key(channelID, msgUUID)] = m
	return nil
}

func (s *fakeStore) Reconcile(channelID, msgUUID string, confirmed models.Message) error {
	s.records[s.key(channelID, msgUUID)] = confirmed
	return nil
}

func (s *fakeStore) Delete(channelID, msgUUID string) error {
	m, ok := s.records[s.key(channelID, msgUUID)]
	if !ok {
		return nil
	}
	m.Deleted = true
	s.records[s.key(channelID, msgUUID)] = m
	return nil
}

type fakeNotifier struct{ toasts []Toast }

func (f *fakeNotifier) Toast(t Toast) { f.toasts = append(f.toasts, t) }

func TestSendTextSuccess(t *testing.T) {
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendText(context.Background(), "hello", "ch1", "alice", nil, nil)
	require.True(t, res.OK)
	require.NotEmpty(t, res.UUID)

	m, ok := store.records["ch1/"+res.UUID]
	require.True(t, ok)
	require.True(t, m.Delivered)
	require.False(t, m.Errored)
	require.Equal(t, "srv-1", m.ID)
	require.Equal(t, models.KindText, m.Kind)
	require.NotNil(t, m.ParsedContent, "raw text survives reconciliation")
	require.Equal(t, "hello", *m.ParsedContent)
}

func TestSendTextNetworkFailureShowsToast(t *testing.T) {
	net := newFakeNetwork()
	net.sendErr = &NetworkError{Op: "send", Err: errors.New("timeout")}
	store := newFakeStore()
	notify := &fakeNotifier{}
	o := New(net, store, Options{Notifier: notify})

	res := o.SendText(context.Background(), "hello", "ch1", "alice", nil, nil)
	require.False(t, res.OK)

	m := store.records["ch1/"+res.UUID]
	require.True(t, m.Errored)
	require.False(t, m.Delivered)

	require.Len(t, notify.toasts, 1)
	require.Equal(t, "Message not sent", notify.toasts[0].Title)
	require.Equal(t, "Check your connection and try again.", notify.toasts[0].Message)
}

func TestSendTextGenericFailureStaysSilent(t *testing.T) {
	net := newFakeNetwork()
	net.sendErr = errors.New("422 rejected")
	store := newFakeStore()
	notify := &fakeNotifier{}
	o := New(net, store, Options{Notifier: notify})

	res := o.SendText(context.Background(), "hello", "ch1", "alice", nil, nil)
	require.False(t, res.OK)
	require.True(t, store.records["ch1/"+res.UUID].Errored)
	require.Empty(t, notify.toasts, "non-network failures show no toast")
}

func TestSendTextEmptyResponseFails(t *testing.T) {
	net := newFakeNetwork()
	net.echo = false
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendText(context.Background(), "hello", "ch1", "alice", nil, nil)
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, ErrEmptyResponse)
}

func TestResendKeepsUUIDAndClearsErrored(t *testing.T) {
	net := newFakeNetwork()
	net.sendErr = &NetworkError{Op: "send", Err: errors.New("down")}
	store := newFakeStore()
	o := New(net, store, Options{})

	first := o.SendText(context.Background(), "hello", "ch1", "alice", nil, nil)
	require.False(t, first.OK)
	require.True(t, store.records["ch1/"+first.UUID].Errored)
	require.Len(t, store.records, 1)

	net.sendErr = nil
	second := o.SendText(context.Background(), "hello", "ch1", "alice",
		&models.ResendMeta{Resending: true, UUID: first.UUID}, nil)
	require.True(t, second.OK)
	require.Equal(t, first.UUID, second.UUID, "resend never changes the uuid")

	require.Len(t, store.records, 1, "resend must not insert a second record")
	m := store.records["ch1/"+first.UUID]
	require.True(t, m.Delivered)
	require.False(t, m.Errored, "delivery clears the errored flag")
}

func TestEncryptedTextSend(t *testing.T) {
	secret, err := security.ParseSecretHex(testSecretHex)
	require.NoError(t, err)
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendText(context.Background(), "secret hello", "ch1", "alice", nil, secret)
	require.True(t, res.OK)

	require.Len(t, net.sent, 1)
	require.Equal(t, models.KindEncryptedText, net.sent[0].Kind)

	// wire content decrypts back to the input
	got, ok := codec.Decode(models.Message{Kind: models.KindEncryptedText, Content: net.sent[0].Content}, secret)
	require.True(t, ok)
	require.Equal(t, "secret hello", got)
}

func TestEncryptionFailureAbortsBeforeNetwork(t *testing.T) {
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	// a non-nil secret of the wrong size fails cipher construction
	bad := security.Secret([]byte("short"))
	res := o.SendText(context.Background(), "hello", "ch1", "alice", nil, bad)
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, security.ErrEncryption)
	require.Empty(t, net.sent, "no network call after an encryption failure")
	require.True(t, store.records["ch1/"+res.UUID].Errored)
}

func TestCancelledContextAbortsBeforeNetwork(t *testing.T) {
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.SendText(ctx, "hello", "ch1", "alice", nil, nil)
	require.False(t, res.OK)
	require.Empty(t, net.sent)
}

func imageInput(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte("rawjpegbytes"))
}

func TestSendImageSuccess(t *testing.T) {
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendImage(context.Background(), imageInput(t), 800, 600, "ch1", "alice", nil, nil)
	require.True(t, res.OK)
	require.Equal(t, models.AssetID("srv-asset"), res.AssetID)
	require.Equal(t, 1, net.uploads)

	require.Len(t, net.sent, 1)
	require.Equal(t, models.KindMedia, net.sent[0].Kind)
	mc, ok := codec.DecodeMedia(net.sent[0].Content)
	require.True(t, ok)
	require.Len(t, mc.Assets, 1)
	require.Equal(t, models.AssetID("srv-asset"), mc.Assets[0].UUID)

	m := store.records["ch1/"+res.UUID]
	require.True(t, m.Delivered)
}

func TestSendImageUploadFailureAbortsMessage(t *testing.T) {
	net := newFakeNetwork()
	net.uploadErr = &NetworkError{Op: "upload", Err: errors.New("down")}
	store := newFakeStore()
	notify := &fakeNotifier{}
	o := New(net, store, Options{Notifier: notify})

	res := o.SendImage(context.Background(), imageInput(t), 800, 600, "ch1", "alice", nil, nil)
	require.False(t, res.OK)
	require.Empty(t, res.AssetID, "no asset exists after a failed upload")
	require.Empty(t, net.sent, "upload failure must abort the message send")
	require.True(t, store.records["ch1/"+res.UUID].Errored)
	require.Len(t, notify.toasts, 1)
}

func TestSendImageUploadOKSendFails(t *testing.T) {
	net := newFakeNetwork()
	net.sendErr = errors.New("rejected")
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendImage(context.Background(), imageInput(t), 800, 600, "ch1", "alice", nil, nil)
	require.False(t, res.OK)
	require.Equal(t, models.AssetID("srv-asset"), res.AssetID, "uploaded asset id survives the send failure for rebinding")
	require.True(t, store.records["ch1/"+res.UUID].Errored)
}

func TestSendImageScalesOversizedDimensions(t *testing.T) {
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendImage(context.Background(), imageInput(t), 4096, 2048, "ch1", "alice", nil, nil)
	require.True(t, res.OK)
	// the fake echoes upload dimensions back into the descriptor
	mc, ok := codec.DecodeMedia(net.sent[0].Content)
	require.True(t, ok)
	require.Equal(t, 2048, mc.Assets[0].Width)
	require.Equal(t, 1024, mc.Assets[0].Height)
}

func TestSendImageEncrypted(t *testing.T) {
	secret, err := security.ParseSecretHex(testSecretHex)
	require.NoError(t, err)
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	res := o.SendImage(context.Background(), imageInput(t), 800, 600, "ch1", "alice", nil, secret)
	require.True(t, res.OK)
	require.Equal(t, models.KindEncryptedMedia, net.sent[0].Kind)

	mc, ok := codec.DecodeMedia(net.sent[0].Content)
	require.True(t, ok)
	require.Len(t, mc.EncryptedAssets, 1)
	url, err := security.DecryptWithHeader(secret, mc.EncryptedAssets[0].EncryptionHeader, mc.EncryptedAssets[0].CiphertextThumb)
	require.NoError(t, err)
	require.Equal(t, "/t/s.jpg", string(url))
}

func TestDeleteMessageCascade(t *testing.T) {
	net := newFakeNetwork()
	store := newFakeStore()
	o := New(net, store, Options{})

	require.NoError(t, store.InsertLocal(models.Message{UUID: "m1", ChannelID: "ch1"}))
	require.NoError(t, o.DeleteMessage(context.Background(), "ch1", "m1", []models.AssetID{"a1", "a2"}))

	require.True(t, store.records["ch1/m1"].Deleted)
	require.Equal(t, []models.AssetID{"a1", "a2"}, net.deleted)
}
