// Package outbox is the durable optimistic message store: every locally
// inserted record lives here keyed by (channel, uuid) until retention
// purges it after delivery. Upserts are last-write-wins, so a resend can
// never produce a second record for the same uuid.
package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"chatpipe/pkg/logger"
	"chatpipe/pkg/models"
)

type Outbox struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the pebble database at path.
func Open(path string) (*Outbox, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("outbox_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("outbox_opened", "path", path)
	return &Outbox{db: db, path: path}, nil
}

func (o *Outbox) Close() error {
	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	return err
}

// Ready reports whether the outbox is open.
func (o *Outbox) Ready() bool { return o != nil && o.db != nil }

// Key format: channel:<channelID>:msg:<uuid>
func msgKey(channelID, msgUUID string) []byte {
	return []byte(fmt.Sprintf("channel:%s:msg:%s", channelID, msgUUID))
}

func (o *Outbox) put(msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return o.db.Set(msgKey(msg.ChannelID, msg.UUID), data, pebble.Sync)
}

func (o *Outbox) get(channelID, msgUUID string) (models.Message, bool, error) {
	v, closer, err := o.db.Get(msgKey(channelID, msgUUID))
	if err == pebble.ErrNotFound {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	defer closer.Close()
	var msg models.Message
	if err := json.Unmarshal(v, &msg); err != nil {
		return models.Message{}, false, fmt.Errorf("invalid message record: %w", err)
	}
	return msg, true, nil
}

// InsertLocal upserts an optimistic record.
func (o *Outbox) InsertLocal(msg models.Message) error {
	if !o.Ready() {
		return fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	if err := o.put(msg); err != nil {
		logger.Error("outbox_insert_failed", "channel", msg.ChannelID, "uuid", msg.UUID, "error", err)
		return err
	}
	logger.Debug("outbox_inserted", "channel", msg.ChannelID, "uuid", msg.UUID, "kind", msg.Kind)
	return nil
}

// MarkFailed flips the record to errored. Unknown keys are a no-op.
func (o *Outbox) MarkFailed(channelID, msgUUID string) error {
	if !o.Ready() {
		return fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	msg, ok, err := o.get(channelID, msgUUID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg.Errored = true
	msg.Delivered = false
	return o.put(msg)
}

// Reconcile overwrites the record with the server-confirmed copy. Unknown
// keys insert it, so a confirmation that raced a restart still lands.
func (o *Outbox) Reconcile(channelID, msgUUID string, confirmed models.Message) error {
	if !o.Ready() {
		return fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	confirmed.ChannelID = channelID
	confirmed.UUID = msgUUID
	return o.put(confirmed)
}

// Delete soft-deletes a record; the tombstone renders as a deletion
// placeholder and is purged by retention. Unknown keys are a no-op.
func (o *Outbox) Delete(channelID, msgUUID string) error {
	if !o.Ready() {
		return fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	msg, ok, err := o.get(channelID, msgUUID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	msg.Deleted = true
	return o.put(msg)
}

// Get returns a single record.
func (o *Outbox) Get(channelID, msgUUID string) (models.Message, bool, error) {
	if !o.Ready() {
		return models.Message{}, false, fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	return o.get(channelID, msgUUID)
}

// List returns every record for a channel.
func (o *Outbox) List(channelID string) ([]models.Message, error) {
	if !o.Ready() {
		return nil, fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	prefix := []byte("channel:" + channelID + ":msg:")
	iter, err := o.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var msg models.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			logger.Warn("outbox_skip_invalid_record", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Counts tallies in-flight and failed records across all channels, for the
// startup log and readiness surface.
func (o *Outbox) Counts() (pending, failed int, err error) {
	if !o.Ready() {
		return 0, 0, fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	iter, err := o.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var msg models.Message
		if json.Unmarshal(iter.Value(), &msg) != nil {
			continue
		}
		switch {
		case msg.Errored:
			failed++
		case !msg.Delivered:
			pending++
		}
	}
	return pending, failed, nil
}

// PurgeDelivered removes delivered (or soft-deleted) records older than
// the period and returns how many were dropped. In-flight and failed
// records are never purged; they still carry user content awaiting resend.
func (o *Outbox) PurgeDelivered(olderThan time.Duration) (int, error) {
	if !o.Ready() {
		return 0, fmt.Errorf("outbox not opened; call outbox.Open first")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	iter, err := o.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	var doomed [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var msg models.Message
		if json.Unmarshal(iter.Value(), &msg) != nil {
			continue
		}
		if !msg.Delivered && !msg.Deleted {
			continue
		}
		if msg.CreatedAt.After(cutoff) {
			continue
		}
		doomed = append(doomed, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	for _, k := range doomed {
		if err := o.db.Delete(k, pebble.Sync); err != nil {
			return len(doomed), err
		}
	}
	if len(doomed) > 0 {
		logger.Info("outbox_purged", "records", len(doomed), "older_than", olderThan.String())
	}
	return len(doomed), nil
}
