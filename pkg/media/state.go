// Package media drives the per-asset state machines of image messages:
// upload, download, thumbnail decryption and the UUID rebinding that a
// successful resend performs. Each asset progresses independently; one
// asset failing never touches its siblings.
package media

import (
	"sort"
	"sync"

	"chatpipe/pkg/codec"
	"chatpipe/pkg/models"
)

// AssetState is the finite state of one asset view.
//
//	LOADING -> LOADED  on a successful fetch
//	LOADING -> ERROR   on a failed decrypt or fetch
//	ERROR   -> LOADING on an explicit retry
//	SENDING            while a (re)send of the owning message is in flight
type AssetState int

const (
	StateLoading AssetState = iota
	StateLoaded
	StateError
	StateSending
)

func (s AssetState) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	case StateError:
		return "ERROR"
	case StateSending:
		return "SENDING"
	}
	return "UNKNOWN"
}

// Fixed error-adornment messages. A send failure is message-wide and always
// wins over per-asset download failures.
const (
	ReportSendFailed     = "send failed"
	ReportDownloadFailed = "download failed"
)

// AssetView is the client-side view state of one asset within a message.
// Exactly one of Asset or Encrypted is set, matching the channel mode.
type AssetView struct {
	Index     int
	State     AssetState
	ImageSrc  string
	Asset     *models.MediaAsset
	Encrypted *models.EncryptedMediaAsset
}

// Arena holds a message's asset views keyed by AssetID. The key for an
// asset changes exactly once over its life: when a failed send is retried
// successfully and the server assigns a new UUID (see Rebind).
type Arena struct {
	mu    sync.Mutex
	views map[models.AssetID]*AssetView
}

func NewArena() *Arena {
	return &Arena{views: make(map[models.AssetID]*AssetView)}
}

// Seed populates the arena from decoded media content. Existing entries
// keep their state so a re-hydrate does not reset LOADED assets.
func (a *Arena) Seed(mc codec.MediaContent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range mc.Assets {
		asset := mc.Assets[i]
		if _, ok := a.views[asset.UUID]; ok {
			continue
		}
		a.views[asset.UUID] = &AssetView{Index: i, State: StateLoading, Asset: &asset}
	}
	for i := range mc.EncryptedAssets {
		enc := mc.EncryptedAssets[i]
		if _, ok := a.views[enc.UUID]; ok {
			continue
		}
		a.views[enc.UUID] = &AssetView{Index: i, State: StateLoading, Encrypted: &enc}
	}
}

// View returns a copy of the asset's view state.
func (a *Arena) View(id models.AssetID) (AssetView, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.views[id]
	if !ok {
		return AssetView{}, false
	}
	return *v, true
}

// IDs returns all asset ids ordered by index.
func (a *Arena) IDs() []models.AssetID {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]models.AssetID, 0, len(a.views))
	for id := range a.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return a.views[ids[i]].Index < a.views[ids[j]].Index })
	return ids
}

// Len returns the number of assets tracked.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.views)
}

// setState transitions an asset; unknown ids are a no-op.
func (a *Arena) setState(id models.AssetID, s AssetState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.views[id]; ok {
		v.State = s
	}
}

// setLoaded records a resolved image source along with the LOADED state.
func (a *Arena) setLoaded(id models.AssetID, src string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.views[id]; ok {
		v.State = StateLoaded
		v.ImageSrc = src
	}
}

// Rebind replaces oldID with newID after a successful resend assigned a
// new server-side asset UUID: the old key is deleted and the new key is
// inserted at LOADING, carrying forward the index and descriptor shape.
// Unknown oldID is a no-op and returns false.
func (a *Arena) Rebind(oldID, newID models.AssetID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.views[oldID]
	if !ok {
		return false
	}
	delete(a.views, oldID)
	nv := &AssetView{Index: v.Index, State: StateLoading}
	if v.Asset != nil {
		asset := *v.Asset
		asset.UUID = newID
		nv.Asset = &asset
	}
	if v.Encrypted != nil {
		enc := *v.Encrypted
		enc.UUID = newID
		nv.Encrypted = &enc
	}
	a.views[newID] = nv
	return true
}

// ErrorReport resolves the message-level error adornment. Precedence: a
// send in progress suppresses everything; a send-level error wins over any
// per-asset state; otherwise any ERROR asset reports a download failure.
func (a *Arena) ErrorReport(msgErrored bool) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range a.views {
		if v.State == StateSending {
			return "", false
		}
	}
	if msgErrored {
		return ReportSendFailed, true
	}
	for _, v := range a.views {
		if v.State == StateError {
			return ReportDownloadFailed, true
		}
	}
	return "", false
}
