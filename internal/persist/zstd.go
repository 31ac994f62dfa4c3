package persist

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// compress wraps data in a zstd frame.
func compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, eris.Wrap(err, "zstd encoder")
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decompress unwraps a zstd frame. Data without the frame magic is returned
// as is, so plain and compressed slots can be read by the same build.
func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, eris.Wrap(err, "zstd decoder")
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, eris.Wrap(err, "zstd decode")
	}
	return out, nil
}
