package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const envelopeVersion = 1

// DefaultCompressThreshold is the value size above which entries are stored
// zstd-compressed.
const DefaultCompressThreshold = 4 << 10

var errUnknownVersion = errors.New("cache: unknown envelope version")

// envelope is the stored form of an Entry.
type envelope struct {
	Version    int    `cbor:"v"`
	StoredAt   int64  `cbor:"t"`
	Compressed bool   `cbor:"z,omitempty"`
	Size       int    `cbor:"n,omitempty"`
	Data       []byte `cbor:"d"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeEnvelope(value []byte, storedAt time.Time, threshold int) ([]byte, error) {
	env := envelope{
		Version:  envelopeVersion,
		StoredAt: storedAt.UnixNano(),
		Data:     value,
	}
	if threshold > 0 && len(value) > threshold {
		compressed := zstdEncoder.EncodeAll(value, nil)
		if len(compressed) < len(value) {
			env.Compressed = true
			env.Size = len(value)
			env.Data = compressed
		}
	}
	return encMode.Marshal(env)
}

func decodeEnvelope(raw []byte) ([]byte, time.Time, error) {
	var env envelope
	if err := decMode.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, time.Time{}, fmt.Errorf("%w: %d", errUnknownVersion, env.Version)
	}
	storedAt := time.Unix(0, env.StoredAt)
	if !env.Compressed {
		return env.Data, storedAt, nil
	}
	value, err := zstdDecoder.DecodeAll(env.Data, make([]byte, 0, env.Size))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(value) != env.Size {
		return nil, time.Time{}, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(value), env.Size)
	}
	return value, storedAt, nil
}
