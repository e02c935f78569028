package storage

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Кодер и декодер zstd безопасны для конкурентного EncodeAll/DecodeAll
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func initZstd() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdErr
}

// compressSnapshot сжимает полезную нагрузку снимка
func compressSnapshot(data []byte) ([]byte, error) {
	if err := initZstd(); err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

// decompressSnapshot восстанавливает полезную нагрузку снимка
func decompressSnapshot(data []byte) ([]byte, error) {
	if err := initZstd(); err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: повреждённый снимок: %v", ErrNotLoaded, err)
	}
	return out, nil
}
