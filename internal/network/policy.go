package network

import (
	"math"
	"strings"
	"time"

	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// Ограничения политики сервера
const (
	MaxNicknameLength     = 15
	MaxChatLength         = 100
	SpawnProtectionRadius = 10.0

	// Окно ограничения частоты правок и допустимое число правок в нём
	EditWindow   = 100 * time.Millisecond
	MaxEditsSeen = 5
)

// Тексты причин отключения и системных сообщений
const (
	ReasonServerFull      = "The server is full!"
	ReasonSameAddress     = "Multiple clients connecting from the same IP address!"
	ReasonNicknameInUse   = "That username is already in use!"
	ReasonInvalidNickname = "Invalid nickname!"
	ReasonBlockSpam       = "Block spamming."
	ReasonAdminKick       = "Kicked by Admin"

	textPlayerNotFound = "Couldn't find that player!"
	textUnknownCommand = "Unknown command!"
)

// RejectReason — почему правка блока отклонена. Это значение политики, а не ошибка.
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectInactive     RejectReason = "inactive"
	RejectOutOfBounds  RejectReason = "out_of_bounds"
	RejectSpawnProtect RejectReason = "spawn_protection"
	RejectBadMaterial  RejectReason = "bad_material"
	RejectRateLimited  RejectReason = "rate_limited"
	RejectApplyFailed  RejectReason = "apply_failed"
)

var sanitizer = strings.NewReplacer("<", "&lt;", ">", "&gt;", `\`, "&quot")

// Sanitize обрезает пробелы и экранирует разметку в пользовательском тексте
func Sanitize(s string) string {
	return sanitizer.Replace(strings.TrimSpace(s))
}

// ValidNickname проверяет длину ника после обрезки пробелов, до экранирования
func ValidNickname(raw string) bool {
	n := len([]rune(strings.TrimSpace(raw)))
	return n > 0 && n <= MaxNicknameLength
}

// NicknameKey — ключ уникальности ника (без учёта регистра)
func NicknameKey(nick string) string {
	return strings.ToLower(nick)
}

// ValidChat проверяет текст чата до экранирования
func ValidChat(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	return len([]rune(raw)) <= MaxChatLength
}

// SpawnProtected сообщает, что ячейка ближе SpawnProtectionRadius к точке появления
func SpawnProtected(spawn mgl64.Vec3, x, y, z int) bool {
	cell := mgl64.Vec3{float64(x), float64(y), float64(z)}
	return cell.Sub(spawn).Len() < SpawnProtectionRadius
}

// CheckEdit проверяет правку по порядку: границы, защита спавна, материал.
func CheckEdit(g *world.Grid, x, y, z, mat int) RejectReason {
	if !g.InBounds(x, y, z) {
		return RejectOutOfBounds
	}
	if SpawnProtected(g.Spawn(), x, y, z) {
		return RejectSpawnProtect
	}
	id, ok := block.FromInt(mat)
	if !ok || !id.CanPlace() {
		return RejectBadMaterial
	}
	return RejectNone
}

// editWindow считает правки игрока в окне EditWindow, начатом первой правкой.
// Истёкшее окно сбрасывается до подсчёта новой правки.
type editWindow struct {
	count int
	start time.Time
}

func newEditWindow(now time.Time) editWindow {
	return editWindow{start: now}
}

// allow регистрирует правку; false, если в текущем окне их больше MaxEditsSeen
func (w *editWindow) allow(now time.Time) bool {
	if now.Sub(w.start) >= EditWindow {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count <= MaxEditsSeen
}

// normAngle приводит угол в [0, 2π)
func normAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// InFrustum сообщает, виден ли reporter игроку peer, смотрящему по peerYaw.
// Примерно полусфера перед взглядом peer; только горизонталь.
func InFrustum(peer mgl64.Vec3, peerYaw float64, reporter mgl64.Vec3) bool {
	ang := math.Pi + math.Atan2(peer.Y()-reporter.Y(), peer.X()-reporter.X())
	nyaw := math.Pi - peerYaw - math.Pi/2
	d := math.Mod(math.Abs(normAngle(nyaw)-normAngle(ang)), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d < math.Pi/2
}
