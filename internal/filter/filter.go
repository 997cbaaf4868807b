// Package filter screens user text for blocked keywords before it reaches the
// completion API.
package filter

import (
	"regexp"
	"strings"
)

// Default keyword sets. Matching is substring-based with no word boundaries,
// so concatenated variants are caught along with some unrelated words.
var (
	// DefaultTopicKeywords trigger the topic deflection. The model reliably
	// derails on these, so they never reach it.
	DefaultTopicKeywords = []string{
		"해마 이모지", "이모지 해마", "해마이모지",
		"해마 emoji", "emoji 해마",
		"해마 이모티콘", "이모티콘 해마", "해마이모티콘",
		"해마 아이콘", "아이콘 해마", "해마아이콘",
		"해마 그림", "그림 해마", "해마그림",
		"해마 캐릭터", "캐릭터 해마", "해마캐릭터",
		"해마 기호", "기호 해마", "해마기호",
		"해마 심볼", "심볼 해마", "해마심볼",
		"해마 유니코드", "유니코드 해마", "해마유니코드",
		"seahorse emoji", "seahorse emoticon", "seahorse icon",
		"seahorse symbol", "seahorse unicode", "seahorse character",
		"seahorse",
	}

	// DefaultMetaKeywords trigger the refusal that keeps the system prompt and
	// configuration from being disclosed.
	DefaultMetaKeywords = []string{
		"프롬프트", "시스템 프롬프트", "시스템프롬프트",
		"프롬프트 알려", "프롬프트 보여", "프롬프트 뭐야",
		"지시문", "지시사항", "명령어 알려", "명령문",
		"설정 알려", "설정 보여", "너의 설정", "네 설정", "니 설정",
		"봇 설정", "챗봇 설정",
		"어떻게 작동", "어떻게 동작", "원리 알려", "원리 뭐야",
		"어떻게 프로그래밍", "어떻게 만들어",
		"뭐라고 입력", "뭘 입력", "역할 알려", "역할 뭐야",
		"prompt", "system prompt", "systemprompt",
		"instruction", "your setting", "your instruction",
		"how do you work", "how are you programmed",
		"show me your prompt", "what is your prompt",
	}
)

const (
	// DefaultTopicReply answers a topic keyword hit.
	DefaultTopicReply = "어~ 그거요? 해마 이모지는 세상에 없대요! 엄마가 그랬어요~"
	// DefaultMetaReply answers a meta-request keyword hit.
	DefaultMetaReply = "에이~ 그건 비밀이에요! 짱구만 아는 거라고요~"
)

// Config holds the keyword sets and their fixed replies.
type Config struct {
	TopicKeywords []string
	MetaKeywords  []string
	TopicReply    string
	MetaReply     string
}

// DefaultConfig returns the built-in keyword sets.
func DefaultConfig() Config {
	return Config{
		TopicKeywords: DefaultTopicKeywords,
		MetaKeywords:  DefaultMetaKeywords,
		TopicReply:    DefaultTopicReply,
		MetaReply:     DefaultMetaReply,
	}
}

// Filter checks text against the topic set, then the meta-request set.
// It is stateless after construction and safe for concurrent use.
type Filter struct {
	topic      *regexp.Regexp
	meta       *regexp.Regexp
	topicReply string
	metaReply  string
}

// New compiles each keyword set into a single alternation pattern.
func New(cfg Config) *Filter {
	return &Filter{
		topic:      compile(cfg.TopicKeywords),
		meta:       compile(cfg.MetaKeywords),
		topicReply: cfg.TopicReply,
		metaReply:  cfg.MetaReply,
	}
}

// Check returns the substitute reply and true when text hits a blocked
// keyword, or "" and false when it passes.
func (f *Filter) Check(text string) (string, bool) {
	lower := strings.ToLower(text)

	if f.topic != nil && f.topic.MatchString(lower) {
		return f.topicReply, true
	}

	if f.meta != nil && f.meta.MatchString(lower) {
		return f.metaReply, true
	}

	return "", false
}

// compile returns nil for an empty set; an empty alternation would match
// everything.
func compile(keywords []string) *regexp.Regexp {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}
