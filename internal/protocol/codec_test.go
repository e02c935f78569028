package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClient_Valid(t *testing.T) {
	cases := []struct {
		frame string
		want  ClientMessage
	}{
		{`{"type":"nickname","data":{"nickname":"Ann"}}`, Nickname{Nickname: "Ann"}},
		{`{"type":"setblock","data":{"x":1,"y":2,"z":3,"mat":2}}`, SetBlock{X: 1, Y: 2, Z: 3, Mat: 2}},
		{`{"type":"chat","data":{"msg":"/list"}}`, Chat{Msg: "/list"}},
		{`{"type":"player","data":{"x":1.5,"y":2,"z":3.25,"pitch":0.1,"yaw":-3}}`,
			PlayerUpdate{X: 1.5, Y: 2, Z: 3.25, Pitch: 0.1, Yaw: -3}},
	}

	for _, c := range cases {
		got, err := DecodeClient([]byte(c.frame))
		require.NoError(t, err, c.frame)
		assert.Equal(t, c.want, got)
	}
}

func TestDecodeClient_Malformed(t *testing.T) {
	frames := []string{
		`not json`,
		`{"data":{"nickname":"Ann"}}`,
		`{"type":"nickname"}`,
		`{"type":"nickname","data":{}}`,
		`{"type":"nickname","data":{"nickname":5}}`,
		`{"type":"setblock","data":{"x":"1","y":2,"z":3,"mat":2}}`,
		`{"type":"setblock","data":{"x":1.5,"y":2,"z":3,"mat":2}}`,
		`{"type":"setblock","data":{"x":1,"y":2,"z":3}}`,
		`{"type":"chat","data":{"msg":null}}`,
		`{"type":"player","data":{"x":1,"y":2,"z":3,"pitch":"up","yaw":0}}`,
		`{"type":"player","data":[1,2,3]}`,
	}

	for _, f := range frames {
		_, err := DecodeClient([]byte(f))
		assert.ErrorIs(t, err, ErrMalformed, f)
	}
}

func TestDecodeClient_UnknownType(t *testing.T) {
	_, err := DecodeClient([]byte(`{"type":"world","data":{"sx":1}}`))
	assert.ErrorIs(t, err, ErrUnknownType, "сообщения сервера клиент присылать не может")
}

func TestServerMessages_Wire(t *testing.T) {
	frame, err := EncodeServer(ChatLine("Ann", "hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"msg","data":{"type":"chat","user":"Ann","msg":"hi"}}`, string(frame))

	frame, err = EncodeServer(Generic("Players: Ann"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"msg","data":{"type":"generic","msg":"Players: Ann"}}`, string(frame))

	frame, err = EncodeServer(BlockSet{X: 1, Y: 2, Z: 3, Mat: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"setblock","data":{"x":1,"y":2,"z":3,"mat":0}}`, string(frame))
}

func TestDecodeServer(t *testing.T) {
	msgs := []ServerMessage{
		World{SX: 2, SY: 2, SZ: 2, Blocks: "aaaaaaaa"},
		Spawn{X: 8.5, Y: 8.5, Z: 8},
		Join{Nick: "Ann", X: 1, Y: 2, Z: 3},
		Leave{Nick: "Ann"},
		BlockSet{X: 1, Y: 1, Z: 1, Mat: 3},
		PlayerState{Nick: "Bob", X: 1, Yaw: 2},
		ChatLine("Bob", "hey"),
		Kick{Msg: "Block spamming."},
		SetPos{X: 1, Y: 2, Z: 3},
	}

	for _, m := range msgs {
		frame, err := EncodeServer(m)
		require.NoError(t, err)
		got, err := DecodeServer(frame)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := DecodeServer([]byte(`{"type":"nickname","data":{"nickname":"x"}}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeClient(t *testing.T) {
	frame, err := EncodeClient(SetBlock{X: 4, Y: 5, Z: 6, Mat: 7})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, MsgSetBlock, env.Type)

	got, err := DecodeClient(frame)
	require.NoError(t, err)
	assert.Equal(t, SetBlock{X: 4, Y: 5, Z: 6, Mat: 7}, got)
}
