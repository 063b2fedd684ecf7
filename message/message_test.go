package message

import (
	"testing"

	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/go-fluxcore/matchtag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_String(t *testing.T) {
	assert.Equal(t, `request`, TypeRequest.String())
	assert.Equal(t, `response`, TypeResponse.String())
	assert.Equal(t, `event`, TypeEvent.String())
	assert.Equal(t, `keepalive`, TypeKeepalive.String())
	assert.Equal(t, `any`, TypeAny.String())
	assert.Equal(t, `request|event`, (TypeRequest | TypeEvent).String())
	assert.Equal(t, `Type(0)`, Type(0).String())
	assert.Equal(t, `>`, TypeRequest.ShortString())
	assert.Equal(t, `<`, TypeResponse.ShortString())
	assert.Equal(t, `e`, TypeEvent.ShortString())
	assert.Equal(t, `k`, TypeKeepalive.ShortString())
	assert.Equal(t, `?`, TypeAny.ShortString())
}

func TestNewResponse(t *testing.T) {
	req := NewRequest(`kvs.get`, []byte(`{}`))
	req.Matchtag = 42
	req.Nodeid = 3
	resp := NewResponse(req, nil)
	assert.Equal(t, TypeResponse, resp.Type)
	assert.Equal(t, `kvs.get`, resp.Topic)
	assert.Equal(t, matchtag.Tag(42), resp.Matchtag)
	assert.Equal(t, uint32(3), resp.Nodeid)
	assert.Equal(t, `response 'kvs.get'`, resp.String())
}

func TestMessage_Copy(t *testing.T) {
	m := NewEvent(`hb`, []byte(`1`))
	c := m.Copy()
	c.Payload[0] = '2'
	assert.Equal(t, []byte(`1`), m.Payload)
	assert.Equal(t, m.Topic, c.Topic)
}

func TestNewMatch_invalid(t *testing.T) {
	_, err := NewMatch(0, MatchtagAny, `foo`)
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
	_, err = NewMatch(TypeAny, MatchtagAny, `foo.[`)
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
	assert.Panics(t, func() { MustMatch(0, MatchtagAny, ``) })
}

func TestMatch_Matches(t *testing.T) {
	for _, tc := range [...]struct {
		name  string
		match Match
		msg   *Message
		want  bool
	}{
		{`type mismatch`, MustMatch(TypeRequest, MatchtagAny, ``), NewEvent(`foo`, nil), false},
		{`any type`, MustMatch(TypeAny, MatchtagAny, ``), NewEvent(`foo`, nil), true},
		{`exact topic`, MustMatch(TypeRequest, MatchtagAny, `foo.bar`), NewRequest(`foo.bar`, nil), true},
		{`exact topic miss`, MustMatch(TypeRequest, MatchtagAny, `foo.bar`), NewRequest(`foo.baz`, nil), false},
		{`single segment`, MustMatch(TypeRequest, MatchtagAny, `foo.*`), NewRequest(`foo.bar`, nil), true},
		{`single segment does not span`, MustMatch(TypeRequest, MatchtagAny, `foo.*`), NewRequest(`foo.bar.baz`, nil), false},
		{`super wildcard spans`, MustMatch(TypeRequest, MatchtagAny, `foo.**`), NewRequest(`foo.bar.baz`, nil), true},
		{`alternatives`, MustMatch(TypeEvent, MatchtagAny, `{hb,live.*}`), NewEvent(`live.down`, nil), true},
		{`matchtag`, MustMatch(TypeResponse, 7, ``), &Message{Type: TypeResponse, Matchtag: 7}, true},
		{`matchtag miss`, MustMatch(TypeResponse, 7, ``), &Message{Type: TypeResponse, Matchtag: 8}, false},
		{`nil message`, MustMatch(TypeAny, MatchtagAny, ``), nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.match.Matches(tc.msg))
		})
	}
}

func TestMatch_Matches_lazyCompile(t *testing.T) {
	m := Match{TypeMask: TypeRequest, TopicGlob: `a.*`}
	assert.True(t, m.Matches(NewRequest(`a.b`, nil)))
	bad := Match{TypeMask: TypeRequest, TopicGlob: `[`}
	assert.False(t, bad.Matches(NewRequest(`[`, nil)))
	require.NoError(t, (&Match{TypeMask: TypeAny}).Compile())
}
