package protocol

// MsgType — имя сообщения в поле "type" конверта
type MsgType string

// Клиент -> Сервер
const (
	MsgNickname MsgType = "nickname" // Выбор ника (рукопожатие)
	MsgSetBlock MsgType = "setblock" // Изменение блока (в обе стороны)
	MsgChat     MsgType = "chat"     // Сообщение чата
	MsgPlayer   MsgType = "player"   // Позиция игрока (в обе стороны)
)

// Сервер -> Клиент
const (
	MsgWorld  MsgType = "world"  // Полный снимок мира
	MsgSpawn  MsgType = "spawn"  // Точка появления
	MsgJoin   MsgType = "join"   // Игрок вошёл
	MsgLeave  MsgType = "leave"  // Игрок вышел
	MsgText   MsgType = "msg"    // Чат или системное сообщение
	MsgKick   MsgType = "kick"   // Причина отключения
	MsgSetPos MsgType = "setpos" // Принудительное перемещение
)

// Виды текстовых сообщений
const (
	TextChat    = "chat"
	TextGeneric = "generic"
)

// ClientMessage — закрытое множество сообщений клиента.
// Реализуют только типы этого пакета.
type ClientMessage interface {
	Type() MsgType
	clientMessage()
}

// ServerMessage — закрытое множество сообщений сервера.
type ServerMessage interface {
	Type() MsgType
	serverMessage()
}

// ===== Клиент -> Сервер =====

// Nickname запрашивает имя игрока
type Nickname struct {
	Nickname string `json:"nickname"`
}

// SetBlock запрашивает запись материала в ячейку
type SetBlock struct {
	X   int `json:"x"`
	Y   int `json:"y"`
	Z   int `json:"z"`
	Mat int `json:"mat"`
}

// Chat — текст чата или команда, начинающаяся с "/"
type Chat struct {
	Msg string `json:"msg"`
}

// PlayerUpdate — позиция и ориентация, о которых сообщает клиент
type PlayerUpdate struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

func (Nickname) Type() MsgType     { return MsgNickname }
func (SetBlock) Type() MsgType     { return MsgSetBlock }
func (Chat) Type() MsgType         { return MsgChat }
func (PlayerUpdate) Type() MsgType { return MsgPlayer }

func (Nickname) clientMessage()     {}
func (SetBlock) clientMessage()     {}
func (Chat) clientMessage()         {}
func (PlayerUpdate) clientMessage() {}

// ===== Сервер -> Клиент =====

// World — полный снимок мира в строковой кодировке
type World struct {
	SX     int    `json:"sx"`
	SY     int    `json:"sy"`
	SZ     int    `json:"sz"`
	Blocks string `json:"blocks"`
}

// Spawn — точка появления
type Spawn struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Join сообщает о входе игрока
type Join struct {
	Nick  string  `json:"nick"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Leave сообщает о выходе игрока
type Leave struct {
	Nick string `json:"nick"`
}

// BlockSet — принятое изменение блока
type BlockSet struct {
	X   int `json:"x"`
	Y   int `json:"y"`
	Z   int `json:"z"`
	Mat int `json:"mat"`
}

// PlayerState — позиция другого игрока (доставка без гарантий)
type PlayerState struct {
	Nick  string  `json:"nick"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Text — сообщение чата (Kind == "chat", с автором) или системное (Kind == "generic")
type Text struct {
	Kind string `json:"type"`
	User string `json:"user,omitempty"`
	Msg  string `json:"msg"`
}

// Kick — причина принудительного отключения
type Kick struct {
	Msg string `json:"msg"`
}

// SetPos — принудительное перемещение (после /spawn или /tp)
type SetPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (World) Type() MsgType       { return MsgWorld }
func (Spawn) Type() MsgType       { return MsgSpawn }
func (Join) Type() MsgType        { return MsgJoin }
func (Leave) Type() MsgType       { return MsgLeave }
func (BlockSet) Type() MsgType    { return MsgSetBlock }
func (PlayerState) Type() MsgType { return MsgPlayer }
func (Text) Type() MsgType        { return MsgText }
func (Kick) Type() MsgType        { return MsgKick }
func (SetPos) Type() MsgType      { return MsgSetPos }

func (World) serverMessage()       {}
func (Spawn) serverMessage()       {}
func (Join) serverMessage()        {}
func (Leave) serverMessage()       {}
func (BlockSet) serverMessage()    {}
func (PlayerState) serverMessage() {}
func (Text) serverMessage()        {}
func (Kick) serverMessage()        {}
func (SetPos) serverMessage()      {}

// Generic создаёт системное сообщение
func Generic(msg string) Text {
	return Text{Kind: TextGeneric, Msg: msg}
}

// ChatLine создаёт сообщение чата от пользователя
func ChatLine(user, msg string) Text {
	return Text{Kind: TextChat, User: user, Msg: msg}
}
