// Package journal persists vault events in a key-value store so a restarted
// service can restore the vault's configuration.
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/oasisprotocol/custody/common"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/storage/kvstore"
	"github.com/oasisprotocol/custody/vault"
)

const moduleName = "journal"

// record is the stored form of a vault event.
type record struct {
	ID        [16]byte          `cbor:"1,keyasint"`
	Sequence  uint64            `cbor:"2,keyasint"`
	Timestamp int64             `cbor:"3,keyasint"`
	Kind      string            `cbor:"4,keyasint"`
	Vault     ethCommon.Address `cbor:"5,keyasint"`
	Caller    ethCommon.Address `cbor:"6,keyasint"`
	From      ethCommon.Address `cbor:"7,keyasint"`
	To        ethCommon.Address `cbor:"8,keyasint"`
	Account   ethCommon.Address `cbor:"9,keyasint"`
	Token     ethCommon.Address `cbor:"10,keyasint"`
	Role      [32]byte          `cbor:"11,keyasint"`
	Amount    string            `cbor:"12,keyasint,omitempty"`
	Enabled   *bool             `cbor:"13,keyasint,omitempty"`
}

func toRecord(ev *vault.Event) *record {
	r := &record{
		ID:        [16]byte(ev.ID),
		Sequence:  ev.Sequence,
		Timestamp: ev.Timestamp.UnixNano(),
		Kind:      string(ev.Kind),
		Vault:     ev.Vault,
		Caller:    ev.Caller,
		From:      ev.From,
		To:        ev.To,
		Account:   ev.Account,
		Token:     ev.Token,
		Role:      [32]byte(ev.Role),
		Enabled:   ev.Enabled,
	}
	if ev.Amount != nil {
		r.Amount = ev.Amount.String()
	}
	return r
}

func (r *record) toEvent() (*vault.Event, error) {
	ev := &vault.Event{
		ID:        uuid.UUID(r.ID),
		Sequence:  r.Sequence,
		Timestamp: time.Unix(0, r.Timestamp).UTC(),
		Kind:      vault.EventKind(r.Kind),
		Vault:     r.Vault,
		Caller:    r.Caller,
		From:      r.From,
		To:        r.To,
		Account:   r.Account,
		Token:     r.Token,
		Role:      vault.Role(r.Role),
		Enabled:   r.Enabled,
	}
	if r.Amount != "" {
		amount, err := common.ParseBigInt(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", r.Sequence, err)
		}
		ev.Amount = &amount
	}
	return ev, nil
}

func key(sequence uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], sequence)
	return k[:]
}

// Journal is a vault.EventSink storing events keyed by sequence number.
type Journal struct {
	store  kvstore.KVStore
	logger *log.Logger
}

var _ vault.EventSink = (*Journal)(nil)

// Open opens or creates the journal at path.
func Open(path string, logger *log.Logger) (*Journal, error) {
	logger = logger.WithModule(moduleName)
	store, err := kvstore.OpenKVStore(logger, path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return New(store, logger), nil
}

// New creates a journal on top of an open store.
func New(store kvstore.KVStore, logger *log.Logger) *Journal {
	return &Journal{store: store, logger: logger}
}

// Name implements vault.EventSink.
func (j *Journal) Name() string {
	return moduleName
}

// Record implements vault.EventSink.
func (j *Journal) Record(_ context.Context, ev *vault.Event) error {
	if err := kvstore.PutTyped(j.store, key(ev.Sequence), toRecord(ev)); err != nil {
		return fmt.Errorf("record event %d: %w", ev.Sequence, err)
	}
	return nil
}

// Get returns the event with the given sequence number.
func (j *Journal) Get(sequence uint64) (*vault.Event, error) {
	var r record
	if err := kvstore.GetTyped(j.store, key(sequence), &r); err != nil {
		return nil, err
	}
	return r.toEvent()
}

// Load returns all events ordered by sequence number.
func (j *Journal) Load() ([]*vault.Event, error) {
	events := make([]*vault.Event, 0, j.store.Count())
	err := j.store.Iterate(func(k []byte, raw []byte) error {
		if len(k) != 8 {
			return fmt.Errorf("malformed journal key %x", k)
		}
		var r record
		if err := cbor.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("event %d: %w", binary.BigEndian.Uint64(k), err)
		}
		ev, err := r.toEvent()
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	sort.Slice(events, func(a, b int) bool {
		return events[a].Sequence < events[b].Sequence
	})
	return events, nil
}

// List returns up to limit events, skipping the first offset, ordered by
// sequence number.
func (j *Journal) List(offset uint64, limit uint64) ([]*vault.Event, error) {
	events, err := j.Load()
	if err != nil {
		return nil, err
	}
	if offset >= uint64(len(events)) {
		return []*vault.Event{}, nil
	}
	events = events[offset:]
	if limit < uint64(len(events)) {
		events = events[:limit]
	}
	return events, nil
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.store.Close()
}
