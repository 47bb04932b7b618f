// Package fec is the redundancy-coding layer applied to the serialized vault
// payload so single-sector bit rot does not cost the whole file. The payload
// is split into Reed-Solomon shards, each prefixed with a CRC32 so a damaged
// shard can be identified, dropped, and reconstructed from parity.
package fec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/reedsolomon"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

// Params selects the shard geometry. The zero value means "no redundancy".
type Params struct {
	DataShards   int `json:"data_shards"`
	ParityShards int `json:"parity_shards"`
}

// DefaultParams tolerates the loss of any two shards out of twelve, a ~20%
// size overhead.
func DefaultParams() Params {
	return Params{DataShards: 10, ParityShards: 2}
}

func (p Params) Enabled() bool {
	return p.DataShards > 0 && p.ParityShards > 0
}

const headerSize = 2 + 4 + 8 // dataShards, parityShards | shardSize | payload length

// Encode frames data into CRC-guarded Reed-Solomon shards.
func Encode(data []byte, p Params) ([]byte, error) {
	if !p.Enabled() {
		return nil, fmt.Errorf("fec: %w: shard counts must be positive", kterrors.ErrValidationFailed)
	}
	enc, err := reedsolomon.New(p.DataShards, p.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: %w", err)
	}
	shards, err := enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("fec: split: %w", err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fec: encode: %w", err)
	}

	shardSize := len(shards[0])
	total := p.DataShards + p.ParityShards
	out := make([]byte, 0, headerSize+total*(4+shardSize))
	var hdr [headerSize]byte
	hdr[0] = byte(p.DataShards)
	hdr[1] = byte(p.ParityShards)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(shardSize))
	binary.LittleEndian.PutUint64(hdr[6:14], uint64(len(data)))
	out = append(out, hdr[:]...)

	var crc [4]byte
	for _, shard := range shards {
		binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(shard))
		out = append(out, crc[:]...)
		out = append(out, shard...)
	}
	return out, nil
}

// Decode reverses Encode, reconstructing any shards whose CRC does not match.
// When more shards are damaged than parity can recover it fails with
// ErrCorruptionUnrecoverable rather than returning partial data.
func Decode(framed []byte) ([]byte, error) {
	if len(framed) < headerSize {
		return nil, fmt.Errorf("fec: %w: frame truncated", kterrors.ErrCorruptionUnrecoverable)
	}
	dataShards := int(framed[0])
	parityShards := int(framed[1])
	shardSize := int(binary.LittleEndian.Uint32(framed[2:6]))
	origLen := int(binary.LittleEndian.Uint64(framed[6:14]))
	total := dataShards + parityShards
	if dataShards < 1 || parityShards < 1 || shardSize < 1 ||
		len(framed) != headerSize+total*(4+shardSize) {
		return nil, fmt.Errorf("fec: %w: frame geometry invalid", kterrors.ErrCorruptionUnrecoverable)
	}

	shards := make([][]byte, total)
	damaged := 0
	off := headerSize
	for i := 0; i < total; i++ {
		want := binary.LittleEndian.Uint32(framed[off : off+4])
		body := framed[off+4 : off+4+shardSize]
		if crc32.ChecksumIEEE(body) == want {
			shards[i] = append([]byte(nil), body...)
		} else {
			damaged++
		}
		off += 4 + shardSize
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: %w", err)
	}
	if damaged > 0 {
		if err := enc.Reconstruct(shards); err != nil {
			return nil, fmt.Errorf("fec: %d damaged shards: %w", damaged, kterrors.ErrCorruptionUnrecoverable)
		}
	}
	if ok, err := enc.Verify(shards); err != nil || !ok {
		return nil, fmt.Errorf("fec: verify: %w", kterrors.ErrCorruptionUnrecoverable)
	}

	out := make([]byte, 0, origLen)
	for i := 0; i < dataShards && len(out) < origLen; i++ {
		remain := origLen - len(out)
		if remain > len(shards[i]) {
			remain = len(shards[i])
		}
		out = append(out, shards[i][:remain]...)
	}
	if len(out) != origLen {
		return nil, fmt.Errorf("fec: %w: length mismatch", kterrors.ErrCorruptionUnrecoverable)
	}
	return out, nil
}
