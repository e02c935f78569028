package util

import (
	"hash/fnv"

	"github.com/aquilax/go-perlin"
)

// Noise — генератор шума Перлина с фиксированным сидом
type Noise struct {
	p    *perlin.Perlin
	seed int64
}

// NewNoise создаёт генератор шума Перлина с указанным сидом
func NewNoise(seed int64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{p: perlin.NewPerlin(alpha, beta, n, seed), seed: seed}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// Noise2D возвращает значение шума для указанных координат (от 0 до 1)
func (n *Noise) Noise2D(x, y float64) float64 {
	// Значение шума от -1 до 1 переводим в диапазон от 0 до 1
	v := (n.p.Noise2D(x, y) + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SeedFromString превращает текстовый сид ("acid-info") в числовой
func SeedFromString(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
