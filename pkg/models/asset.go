package models

// AssetID is the storage key of one media asset inside a message. Placeholder
// ids are client-generated; the server assigns the real id on upload, at
// which point the pipeline rebinds the old key to the new one.
type AssetID string

func (a AssetID) String() string { return string(a) }

// MediaAsset is a plaintext media descriptor as returned by the asset upload
// endpoint and embedded in media message content.
type MediaAsset struct {
	UUID        AssetID `json:"uuid"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ThumbSmall  string  `json:"thumb_small_url,omitempty"`
	ThumbMedium string  `json:"thumb_medium_url,omitempty"`
	Original    string  `json:"original_url,omitempty"`
}

// ThumbnailURL returns the preferred displayable link, small first.
func (a MediaAsset) ThumbnailURL() string {
	if a.ThumbSmall != "" {
		return a.ThumbSmall
	}
	if a.ThumbMedium != "" {
		return a.ThumbMedium
	}
	return a.Original
}

// EncryptedMediaAsset is the descriptor stored for end-to-end-encrypted
// channels: the thumbnail link itself is ciphertext and must be decrypted
// with the channel secret and the message's encryption header before fetch.
type EncryptedMediaAsset struct {
	UUID             AssetID `json:"uuid"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	CiphertextThumb  string  `json:"ciphertext_thumb_url"`
	EncryptionHeader string  `json:"encryption_header"`
}
