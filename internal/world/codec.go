package world

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/voxel-server/internal/world/block"
)

// encodeBase — символ для материала с ID 0. Каждая ячейка кодируется одним байтом base+id.
const encodeBase = 'a'

// ErrBadEncoding возвращается Decode для строки неверной длины или с чужими символами.
var ErrBadEncoding = errors.New("world: bad block encoding")

// EncodeBlock возвращает символ ячейки
func EncodeBlock(id block.BlockID) byte {
	return byte(encodeBase + int(id))
}

// DecodeBlock переводит символ обратно в ID материала
func DecodeBlock(c byte) (block.BlockID, bool) {
	if c < encodeBase {
		return 0, false
	}
	return block.FromInt(int(c) - encodeBase)
}

// Encode сериализует все ячейки в порядке x, y, z (z — самый внутренний).
// Длина результата всегда sx*sy*sz.
func (g *Grid) Encode() string {
	var b strings.Builder
	b.Grow(len(g.cells))
	for _, id := range g.cells {
		b.WriteByte(EncodeBlock(id))
	}
	return b.String()
}

// Decode заполняет сетку из строки Encode. Сетка уже должна иметь размер (sx, sy, sz).
// При ошибке сетка не меняется. Слушатель не вызывается: это массовая загрузка.
func (g *Grid) Decode(sx, sy, sz int, blocks string) error {
	if sx != g.sx || sy != g.sy || sz != g.sz {
		return fmt.Errorf("%w: grid is %dx%dx%d, data is for %dx%dx%d", ErrBadEncoding, g.sx, g.sy, g.sz, sx, sy, sz)
	}
	if len(blocks) != len(g.cells) {
		return fmt.Errorf("%w: expected %d cells, got %d", ErrBadEncoding, len(g.cells), len(blocks))
	}

	decoded := make([]block.BlockID, len(blocks))
	for i := 0; i < len(blocks); i++ {
		id, ok := DecodeBlock(blocks[i])
		if !ok {
			return fmt.Errorf("%w: invalid symbol %q at %d", ErrBadEncoding, blocks[i], i)
		}
		decoded[i] = id
	}

	copy(g.cells, decoded)
	return nil
}

// FromEncoded создаёт сетку нужного размера и декодирует в неё строку
func FromEncoded(sx, sy, sz int, blocks string) (*Grid, error) {
	g := NewGrid(sx, sy, sz)
	if err := g.Decode(sx, sy, sz, blocks); err != nil {
		return nil, err
	}
	return g, nil
}
