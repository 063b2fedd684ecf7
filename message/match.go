package message

import (
	"github.com/gobwas/glob"
	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/go-fluxcore/matchtag"
)

// TopicSeparator delimits topic segments.
const TopicSeparator = '.'

// MatchtagAny is the matchtag wildcard.
const MatchtagAny = matchtag.None

// Match selects messages by type, matchtag and topic glob.
//
// Within TopicGlob, `*` matches within a single segment, `**` spans
// segments, and `?`, `[...]` and `{a,b}` behave as usual. An empty glob
// matches every topic.
type Match struct {
	compiled glob.Glob
	// TopicGlob is the pattern the topic must satisfy.
	TopicGlob string
	// Matchtag must equal the message matchtag, unless it is [MatchtagAny].
	Matchtag matchtag.Tag
	// TypeMask must intersect the message type.
	TypeMask Type
}

// NewMatch validates and compiles a match.
func NewMatch(typeMask Type, tag matchtag.Tag, topicGlob string) (Match, error) {
	m := Match{TypeMask: typeMask, Matchtag: tag, TopicGlob: topicGlob}
	if err := m.Compile(); err != nil {
		return Match{}, err
	}
	return m, nil
}

// MustMatch is like [NewMatch] but panics on error.
func MustMatch(typeMask Type, tag matchtag.Tag, topicGlob string) Match {
	m, err := NewMatch(typeMask, tag, topicGlob)
	if err != nil {
		panic(err)
	}
	return m
}

// Compile validates the match and compiles its glob, if it hasn't been
// already.
func (m *Match) Compile() error {
	if m.TypeMask&TypeAny == 0 {
		return fluxcore.NewError(`match`, fluxcore.ErrInvalidArgument, nil)
	}
	if m.compiled != nil || m.TopicGlob == `` {
		return nil
	}
	g, err := glob.Compile(m.TopicGlob, TopicSeparator)
	if err != nil {
		return fluxcore.NewError(`match`, fluxcore.ErrInvalidArgument, err)
	}
	m.compiled = g
	return nil
}

// Matches reports whether msg satisfies the match. A non-empty glob that
// wasn't compiled is compiled on first use; an invalid one matches nothing.
func (m *Match) Matches(msg *Message) bool {
	if msg == nil || msg.Type&m.TypeMask == 0 {
		return false
	}
	if m.Matchtag != MatchtagAny && msg.Matchtag != m.Matchtag {
		return false
	}
	if m.TopicGlob == `` {
		return true
	}
	if m.compiled == nil {
		if err := m.Compile(); err != nil {
			return false
		}
	}
	return m.compiled.Match(msg.Topic)
}
