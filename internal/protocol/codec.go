package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Envelope — формат кадра websocket: {"type": "...", "data": {...}}
type Envelope struct {
	Type MsgType         `json:"type"`
	Data json.RawMessage `json:"data"`
}

var (
	// ErrMalformed — кадр не разбирается или нарушает схему сообщения
	ErrMalformed = errors.New("protocol: malformed message")
	// ErrUnknownType — тип сообщения не входит в закрытое множество
	ErrUnknownType = errors.New("protocol: unknown message type")
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[MsgType]*jsonschema.Schema
	schemasErr  error
)

// clientSchemas компилирует встроенные схемы входящих сообщений один раз
func clientSchemas() (map[MsgType]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		out := make(map[MsgType]*jsonschema.Schema)

		for _, t := range []MsgType{MsgNickname, MsgSetBlock, MsgChat, MsgPlayer} {
			name := string(t) + ".schema.json"
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
			s, err := compiler.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[t] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

func encode(t MsgType, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// EncodeServer сериализует сообщение сервера в кадр
func EncodeServer(m ServerMessage) ([]byte, error) {
	return encode(m.Type(), m)
}

// EncodeClient сериализует сообщение клиента в кадр
func EncodeClient(m ClientMessage) ([]byte, error) {
	return encode(m.Type(), m)
}

func readEnvelope(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	return &env, nil
}

// DecodeClient разбирает и валидирует кадр клиента.
// Любое нарушение формы даёт ошибку, обёрнутую в ErrMalformed или ErrUnknownType.
func DecodeClient(frame []byte) (ClientMessage, error) {
	env, err := readEnvelope(frame)
	if err != nil {
		return nil, err
	}

	set, err := clientSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := set[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	var doc interface{}
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	var msg ClientMessage
	switch env.Type {
	case MsgNickname:
		var m Nickname
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgSetBlock:
		var m SetBlock
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgChat:
		var m Chat
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgPlayer:
		var m PlayerUpdate
		err = json.Unmarshal(env.Data, &m)
		msg = m
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

// DecodeServer разбирает кадр сервера (используется клиентом)
func DecodeServer(frame []byte) (ServerMessage, error) {
	env, err := readEnvelope(frame)
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	switch env.Type {
	case MsgWorld:
		var m World
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgSpawn:
		var m Spawn
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgJoin:
		var m Join
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgLeave:
		var m Leave
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgSetBlock:
		var m BlockSet
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgPlayer:
		var m PlayerState
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgText:
		var m Text
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgKick:
		var m Kick
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgSetPos:
		var m SetPos
		err = json.Unmarshal(env.Data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}
