package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// RecordSize is the encoded size of one Entry: channel id (8) + unix seconds (8) + utc offset (4).
const RecordSize = 20

// ErrCorrupt is returned when persisted override state cannot be decoded.
var ErrCorrupt = errors.New("corrupt override data")

// Encode packs entries back to back in the on-disk record layout. All integers are little-endian.
func Encode(entries []Entry) []byte {
	out := make([]byte, 0, RecordSize*len(entries))
	for _, e := range entries {
		_, offset := e.Timestamp.Zone()
		out = binary.LittleEndian.AppendUint64(out, e.ChannelID)
		out = binary.LittleEndian.AppendUint64(out, uint64(e.Timestamp.Unix()))
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(offset)))
	}
	return out
}

// Decode parses records produced by Encode. A length that is not a multiple of RecordSize is
// rejected as a whole; nothing is partially parsed.
func Decode(data []byte) ([]Entry, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrCorrupt, len(data), RecordSize)
	}
	entries := make([]Entry, 0, len(data)/RecordSize)
	for rec := data; len(rec) > 0; rec = rec[RecordSize:] {
		id := binary.LittleEndian.Uint64(rec[0:8])
		secs := int64(binary.LittleEndian.Uint64(rec[8:16]))
		offset := int32(binary.LittleEndian.Uint32(rec[16:20]))
		entries = append(entries, Entry{
			ChannelID: id,
			Timestamp: time.Unix(secs, 0).In(zoneFor(int(offset))),
		})
	}
	return entries, nil
}

func zoneFor(offset int) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("", offset)
}
