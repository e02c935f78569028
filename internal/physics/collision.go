package physics

import (
	"math"

	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// BlockSource — источник блоков для проверки коллизий (реализуется *world.Grid)
type BlockSource interface {
	Get(x, y, z int) block.BlockID
}

// Размеры коллайдера игрока
const (
	FootprintSize  = 0.25 // сторона квадрата опоры
	EyeHeight      = 1.7  // высота проверки потолка
	ActorHeight    = 1.8  // высота игрока
	CeilingLookout = 1.1  // множитель упреждения по Z для потолка
)

// Segment — направленная граница блока в плоскости XY.
// Вертикальная граница (Vertical == true) лежит на x = At и тянется от From до To по y,
// горизонтальная лежит на y = At и тянется от From до To по x.
// Dir — направление нормали (-1 или 1).
type Segment struct {
	Vertical bool
	At       float64
	From, To float64
	Dir      float64
}

// Square — квадрат опоры игрока с центром (X, Y)
type Square struct {
	X, Y float64
	Size float64
}

// Rect — прямоугольник на плоскости XY
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Face — горизонтальная грань блока на высоте Z
type Face struct {
	Rect
	Z   float64
	Dir float64
}

// lineRectCollide проверяет, пересекает ли граница квадрат опоры
func lineRectCollide(line Segment, rect Square) bool {
	half := rect.Size / 2
	if line.Vertical {
		return rect.X > line.At-half && rect.X < line.At+half &&
			rect.Y > line.From-half && rect.Y < line.To+half
	}
	return rect.Y > line.At-half && rect.Y < line.At+half &&
		rect.X > line.From-half && rect.X < line.To+half
}

func (r Rect) containsStrict(x, y float64) bool {
	return x > r.X1 && x < r.X2 && y > r.Y1 && y < r.Y2
}

// rectRectCollide истинно, если хотя бы один угол r2 строго внутри r1
func rectRectCollide(r1, r2 Rect) bool {
	return r1.containsStrict(r2.X1, r2.Y1) ||
		r1.containsStrict(r2.X2, r2.Y1) ||
		r1.containsStrict(r2.X2, r2.Y2) ||
		r1.containsStrict(r2.X1, r2.Y2)
}

// sideCandidates собирает границы твёрдых блоков, граничащих с воздухом,
// вокруг клетки игрока на уровне ног и головы
func sideCandidates(src BlockSource, bx, by, bz int) []Segment {
	air := block.AirBlockID
	var out []Segment

	for x := bx - 1; x <= bx+1; x++ {
		for y := by - 1; y <= by+1; y++ {
			for z := bz; z <= bz+1; z++ {
				if src.Get(x, y, z) == air {
					continue
				}
				fx, fy := float64(x), float64(y)
				if src.Get(x-1, y, z) == air {
					out = append(out, Segment{Vertical: true, At: fx, From: fy, To: fy + 1, Dir: -1})
				}
				if src.Get(x+1, y, z) == air {
					out = append(out, Segment{Vertical: true, At: fx + 1, From: fy, To: fy + 1, Dir: 1})
				}
				if src.Get(x, y-1, z) == air {
					out = append(out, Segment{At: fy, From: fx, To: fx + 1, Dir: -1})
				}
				if src.Get(x, y+1, z) == air {
					out = append(out, Segment{At: fy + 1, From: fx, To: fx + 1, Dir: 1})
				}
			}
		}
	}
	return out
}

// faceCandidates собирает пол (на уровне lower) и потолок (на уровне upper)
// для колонок 3x3 вокруг игрока. Порядок: x, затем y, пол перед потолком.
func faceCandidates(src BlockSource, bx, by, lower, upper int) []Face {
	var out []Face
	for x := bx - 1; x <= bx+1; x++ {
		for y := by - 1; y <= by+1; y++ {
			cell := Rect{X1: float64(x), Y1: float64(y), X2: float64(x + 1), Y2: float64(y + 1)}
			if src.Get(x, y, lower) != block.AirBlockID {
				out = append(out, Face{Rect: cell, Z: float64(lower + 1), Dir: 1})
			}
			if src.Get(x, y, upper) != block.AirBlockID {
				out = append(out, Face{Rect: cell, Z: float64(upper), Dir: -1})
			}
		}
	}
	return out
}

// Resolution — результат разрешения коллизий за один шаг
type Resolution struct {
	Pos     mgl64.Vec3 // новая позиция
	Delta   mgl64.Vec3 // смещение после отсечения
	Falling bool       // нет опоры под ногами
	HitX    bool       // смещение по X отсечено стеной
	HitY    bool       // смещение по Y отсечено стеной
	HitZ    bool       // столкновение с полом или потолком
}

// ResolveCollision сдвигает игрока из pos на delta с учётом блоков мира.
// Сначала отсекается движение по X и Y о боковые грани, затем по Z
// о первую подходящую грань пола или потолка.
func ResolveCollision(src BlockSource, pos, delta mgl64.Vec3) Resolution {
	bx := int(math.Floor(pos.X()))
	by := int(math.Floor(pos.Y()))
	bz := int(math.Floor(pos.Z()))

	rect := Square{X: pos.X() + delta.X(), Y: pos.Y() + delta.Y(), Size: FootprintSize}
	half := FootprintSize / 2

	var hitX, hitY bool
	for _, side := range sideCandidates(src, bx, by, bz) {
		if !lineRectCollide(side, rect) {
			continue
		}
		if side.Vertical && delta.X()*side.Dir < 0 {
			pos[0] = side.At + half*signAway(delta.X())
			delta[0] = 0
			hitX = true
		} else if !side.Vertical && delta.Y()*side.Dir < 0 {
			pos[1] = side.At + half*signAway(delta.Y())
			delta[1] = 0
			hitY = true
		}
	}

	footprint := Rect{
		X1: pos.X() + delta.X() - half,
		Y1: pos.Y() + delta.Y() - half,
		X2: pos.X() + delta.X() + half,
		Y2: pos.Y() + delta.Y() + half,
	}
	lower := int(math.Floor(pos.Z() + delta.Z()))
	upper := int(math.Floor(pos.Z() + EyeHeight + delta.Z()*CeilingLookout))

	res := Resolution{Falling: true, HitX: hitX, HitY: hitY}
	for _, face := range faceCandidates(src, bx, by, lower, upper) {
		if !rectRectCollide(face.Rect, footprint) || delta.Z()*face.Dir >= 0 {
			continue
		}
		if delta.Z() < 0 {
			res.Falling = false
			pos[2] = face.Z
		} else {
			pos[2] = face.Z - ActorHeight
		}
		delta[2] = 0
		res.HitZ = true
		break
	}

	res.Pos = pos.Add(delta)
	res.Delta = delta
	return res
}

// signAway возвращает знак смещения от грани: -1 при движении в +, иначе 1
func signAway(v float64) float64 {
	if v > 0 {
		return -1
	}
	return 1
}
