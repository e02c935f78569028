package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Параметры движения игрока
const (
	ViewEaseRate     = 30.0 // скорость сглаживания взгляда, 1/с
	Gravity          = 30.0 // ускорение свободного падения, ед/с²
	JumpSpeed        = 8.0
	WalkSpeed        = 4.0
	AirborneDecay    = 1.01
	GroundedDecay    = 1.5
	maxPitch         = math.Pi / 2
	walkForwardAngle = math.Pi / 2
)

// Input — состояние управления на кадр
type Input struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool
	Jump    bool
}

func (in Input) walking() bool {
	return in.Forward || in.Back || in.Left || in.Right
}

// Actor — локально управляемый игрок
type Actor struct {
	Pos mgl64.Vec3
	Vel mgl64.Vec3 // ед/с

	Pitch, Yaw             float64
	TargetPitch, TargetYaw float64
	Dragging               bool

	Falling bool
}

// NewActor создаёт игрока в точке pos. Игрок начинает в падении,
// опора определяется первым шагом.
func NewActor(pos mgl64.Vec3) *Actor {
	return &Actor{Pos: pos, Falling: true}
}

// Teleport переносит игрока и гасит скорость
func (a *Actor) Teleport(pos mgl64.Vec3) {
	a.Pos = pos
	a.Vel = mgl64.Vec3{}
	a.Falling = true
}

// EyePos возвращает позицию глаз
func (a *Actor) EyePos() mgl64.Vec3 {
	return a.Pos.Add(mgl64.Vec3{0, 0, EyeHeight})
}

// walkDirection суммирует направления нажатых клавиш относительно yaw
func walkDirection(in Input, yaw float64) mgl64.Vec2 {
	var dir mgl64.Vec2
	add := func(offset float64) {
		a := walkForwardAngle + offset - yaw
		dir = dir.Add(mgl64.Vec2{math.Cos(a), math.Sin(a)})
	}

	if in.Forward {
		add(0)
	}
	if in.Back {
		add(math.Pi)
	}
	if in.Left {
		add(math.Pi / 2)
	}
	if in.Right {
		add(-math.Pi / 2)
	}
	return dir
}

// Update продвигает игрока на dt секунд
func Update(a *Actor, in Input, src BlockSource, dt float64) {
	if dt <= 0 {
		return
	}

	if a.Dragging {
		a.Pitch += (a.TargetPitch - a.Pitch) * ViewEaseRate * dt
		a.Yaw += (a.TargetYaw - a.Yaw) * ViewEaseRate * dt
		a.Pitch = mgl64.Clamp(a.Pitch, -maxPitch, maxPitch)
	}

	if a.Falling {
		a.Vel[2] -= Gravity * dt
	}

	if in.Jump && !a.Falling {
		a.Vel[2] = JumpSpeed
	}

	var walk mgl64.Vec2
	if !a.Falling && in.walking() {
		walk = walkDirection(in, a.Yaw)
	}
	if walk.Len() > 0 {
		walk = walk.Normalize().Mul(WalkSpeed)
		a.Vel[0] = walk.X()
		a.Vel[1] = walk.Y()
	} else {
		decay := GroundedDecay
		if a.Falling {
			decay = AirborneDecay
		}
		a.Vel[0] /= decay
		a.Vel[1] /= decay
	}

	res := ResolveCollision(src, a.Pos, a.Vel.Mul(dt))
	a.Pos = res.Pos
	a.Falling = res.Falling
	// упёрся в стену: скорость по этой оси гасится
	if res.HitX {
		a.Vel[0] = 0
	}
	if res.HitY {
		a.Vel[1] = 0
	}
	if res.HitZ {
		a.Vel[2] = 0
	}
}
