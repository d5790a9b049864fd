// Package codec maps between a message's wire content string and its typed
// envelope. Encoding may fail (encryption); decoding never does — every
// malformed, unsupported or undecryptable input degrades to a not-ok result
// that callers render as "unsupported".
package codec

import (
	"encoding/json"

	"chatpipe/pkg/models"
	"chatpipe/pkg/security"
)

// ListViewType is the presentation hint computed once at encode time from
// the first asset's declared dimensions.
type ListViewType string

const (
	ListViewHorizontal ListViewType = "HORIZONTAL"
	ListViewVertical   ListViewType = "VERTICAL"
)

// textEnvelope uses a pointer so a missing "text" key is distinguishable
// from an empty string during schema validation.
type textEnvelope struct {
	Text *string `json:"text"`
}

type encryptedEnvelope struct {
	Ciphertext       *string `json:"ciphertext"`
	EncryptionHeader *string `json:"encryption_header"`
}

// MediaContent is the decoded envelope of a media message. Exactly one of
// Assets or EncryptedAssets is populated, matching whether the channel is
// end-to-end encrypted.
type MediaContent struct {
	ListViewType    ListViewType                 `json:"list_view_type"`
	Assets          []models.MediaAsset          `json:"assets,omitempty"`
	EncryptedAssets []models.EncryptedMediaAsset `json:"encrypted_assets,omitempty"`
}

// EncodeText produces the wire content for a text message. With a nil
// secret the envelope is plain {"text": ...} and the kind is TEXT; with a
// secret the envelope is the encrypt capability's output and the kind is
// ENCRYPTED_TEXT. An encryption failure is returned as-is (ErrEncryption
// chain) so the send path can abort before any network call.
func EncodeText(plaintext string, secret security.Secret) (string, models.MessageKind, error) {
	if secret == nil {
		b, err := json.Marshal(textEnvelope{Text: &plaintext})
		if err != nil {
			return "", models.KindText, err
		}
		return string(b), models.KindText, nil
	}
	env, err := security.Encrypt(secret, []byte(plaintext))
	if err != nil {
		return "", models.KindEncryptedText, err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", models.KindEncryptedText, err
	}
	return string(b), models.KindEncryptedText, nil
}

// EncodeMedia produces the wire content for a single-asset media message.
// The list view type is fixed here and never re-derived: horizontal when
// the asset is at least as wide as it is tall.
func EncodeMedia(asset models.MediaAsset, hasText bool) (string, models.MessageKind, error) {
	lv := ListViewVertical
	if asset.Width >= asset.Height {
		lv = ListViewHorizontal
	}
	b, err := json.Marshal(MediaContent{ListViewType: lv, Assets: []models.MediaAsset{asset}})
	if err != nil {
		return "", models.KindMedia, err
	}
	kind := models.KindMedia
	if hasText {
		kind = models.KindMediaWithText
	}
	return string(b), kind, nil
}

// EncodeEncryptedMedia is the encrypted-channel counterpart of EncodeMedia:
// the thumbnail link is sealed under the channel secret and the envelope
// stores the ciphertext descriptor.
func EncodeEncryptedMedia(asset models.MediaAsset, secret security.Secret, hasText bool) (string, models.MessageKind, error) {
	env, err := security.Encrypt(secret, []byte(asset.ThumbnailURL()))
	if err != nil {
		return "", models.KindEncryptedMedia, err
	}
	lv := ListViewVertical
	if asset.Width >= asset.Height {
		lv = ListViewHorizontal
	}
	enc := models.EncryptedMediaAsset{
		UUID:             asset.UUID,
		Width:            asset.Width,
		Height:           asset.Height,
		CiphertextThumb:  env.Ciphertext,
		EncryptionHeader: env.EncryptionHeader,
	}
	b, err := json.Marshal(MediaContent{ListViewType: lv, EncryptedAssets: []models.EncryptedMediaAsset{enc}})
	if err != nil {
		return "", models.KindEncryptedMedia, err
	}
	kind := models.KindEncryptedMedia
	if hasText {
		kind = models.KindMediaWithEncryptedText
	}
	return string(b), kind, nil
}

// Decode returns the displayable plaintext for text-bearing kinds. The
// second result is false whenever the content cannot be parsed, fails
// schema validation or fails to decrypt; Decode never returns an error.
// Media kinds are not decoded by this path (see pkg/media).
func Decode(msg models.Message, secret security.Secret) (string, bool) {
	switch msg.Kind {
	case models.KindText, models.KindDeleted, models.KindSystem:
		var env textEnvelope
		if err := json.Unmarshal([]byte(msg.Content), &env); err != nil {
			return "", false
		}
		if env.Text == nil {
			return "", false
		}
		return *env.Text, true
	case models.KindEncryptedText:
		var env encryptedEnvelope
		if err := json.Unmarshal([]byte(msg.Content), &env); err != nil {
			return "", false
		}
		if env.Ciphertext == nil || env.EncryptionHeader == nil {
			return "", false
		}
		pt, err := security.DecryptWithHeader(secret, *env.EncryptionHeader, *env.Ciphertext)
		if err != nil {
			return "", false
		}
		return string(pt), true
	case models.KindCardView, models.KindMedia, models.KindEncryptedMedia,
		models.KindMediaWithText, models.KindMediaWithEncryptedText:
		return "", false
	}
	return "", false
}

// DecodeMedia parses the media envelope of a message. Not-ok when the
// content is unparseable or carries no assets; in that case the pipeline
// has zero assets to run.
func DecodeMedia(content string) (MediaContent, bool) {
	var mc MediaContent
	if err := json.Unmarshal([]byte(content), &mc); err != nil {
		return MediaContent{}, false
	}
	if len(mc.Assets) == 0 && len(mc.EncryptedAssets) == 0 {
		return MediaContent{}, false
	}
	return mc, true
}
