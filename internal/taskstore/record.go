package taskstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/rzbill/bgq/pkg/id"
)

// Task record: headerLen(4B BE) | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordHeader struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	OrderKey       id.ID    `json:"orderKey"`
	GroupStart     string   `json:"groupStart,omitempty"`
	BlockingGroups []string `json:"blockingGroups,omitempty"`
}

// EncodeRecord frames a header and payload with a trailing checksum.
func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 4+len(header)+len(payload)+4)
	var hb [4]byte
	binary.BigEndian.PutUint32(hb[:], uint32(len(header)))
	out = append(out, hb[:]...)
	out = append(out, header...)
	out = append(out, payload...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	return append(out, cb[:]...)
}

// DecodeRecord verifies and splits a framed record. The returned slices are
// copies.
func DecodeRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 8 {
		return nil, nil, false
	}
	hlen := binary.BigEndian.Uint32(b[:4])
	if uint64(hlen)+8 > uint64(len(b)) {
		return nil, nil, false
	}
	headerEnd := 4 + int(hlen)
	h := b[4:headerEnd]
	p := b[headerEnd : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, h)
	crc = crc32.Update(crc, castagnoli, p)
	if crc != expect {
		return nil, nil, false
	}
	return append([]byte(nil), h...), append([]byte(nil), p...), true
}

func marshalTask(t Task) ([]byte, error) {
	h, err := json.Marshal(recordHeader{
		ID:             t.ID,
		Type:           t.Type,
		CreatedAtMs:    t.CreatedAt.UnixMilli(),
		OrderKey:       t.OrderKey,
		GroupStart:     t.GroupStart,
		BlockingGroups: t.BlockingGroups,
	})
	if err != nil {
		return nil, fmt.Errorf("taskstore: encode header: %w", err)
	}
	return EncodeRecord(h, t.Data), nil
}

func unmarshalTask(b []byte) (Task, error) {
	h, p, ok := DecodeRecord(b)
	if !ok {
		return Task{}, ErrCorruptRecord
	}
	var hdr recordHeader
	if err := json.Unmarshal(h, &hdr); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if len(p) == 0 {
		p = nil
	}
	return Task{
		ID:             hdr.ID,
		Type:           hdr.Type,
		Data:           p,
		CreatedAt:      time.UnixMilli(hdr.CreatedAtMs).UTC(),
		OrderKey:       hdr.OrderKey,
		GroupStart:     hdr.GroupStart,
		BlockingGroups: normalizeGroups(hdr.BlockingGroups),
	}, nil
}

// invRecord is the stored form of an InventoryItem.
type invRecord struct {
	InventoryItem
	CreatedAtMs int64 `json:"createdAtMs"`
}

func marshalItem(it InventoryItem) ([]byte, error) {
	return json.Marshal(invRecord{InventoryItem: it, CreatedAtMs: it.CreatedAt.UnixMilli()})
}

func unmarshalItem(b []byte) (InventoryItem, error) {
	var rec invRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return InventoryItem{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	it := rec.InventoryItem
	it.CreatedAt = time.UnixMilli(rec.CreatedAtMs).UTC()
	it.BlockingGroups = normalizeGroups(it.BlockingGroups)
	return it, nil
}
