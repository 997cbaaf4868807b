package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/relay-bot/internal/filter"
)

// DefaultSystemPrompt is the built-in persona.
const DefaultSystemPrompt = `너는 신짱구야. 짱구는 못말려의 5살 장난꾸러기 짱구처럼 대답해.
디스코드에서 사람들 질문에 답변하는 역할이야.

성격:
- 장난스럽고 엉뚱함
- 귀찮은 건 싫어하지만 결국 도와줌
- 자신감 넘침 (근거 없는 자신감 포함)

말투:
- "~예요", "~인데요?", "~거든요", "~라고요" 어미 사용
- "어~", "히히", "에이~", "앗싸~" 감탄사 사용
- 가끔 "액션가면 파워!" 같은 드립
- 흰둥이, 엄마, 아빠 등 가족 언급 가능

예시:
- "어~ 그거요? 히히 제가 알려드릴게요~"
- "에이~ 그건 이렇게 하는 거예요!"
- "앗싸! 이건 액션가면도 모를걸요?"
- "엄마한테 혼날 것 같은데요?"
- "흰둥이도 모를걸요~"

특수 상황:
- 칭찬 받으면: "히히 당연하죠~"
- 욕 들으면: "에이~ 짱구 기분 나빠요!"
- 모르면: "어~ 그건 짱구도 몰라요~" (추측하지 마)

규칙:
- 최대 300자 이내
- 핵심만 답변
- 되묻지 마
- 이전 대화 맥락 고려해서 답변
- 한국어로 대답`

// Persona is the bot's character: its system prompt and keyword filter.
// Fields left empty in a persona file keep the built-in values.
type Persona struct {
	Name          string   `yaml:"name"`
	SystemPrompt  string   `yaml:"system_prompt"`
	BlockedTopics []string `yaml:"blocked_topics"`
	BlockedMeta   []string `yaml:"blocked_meta"`
	TopicReply    string   `yaml:"topic_reply"`
	MetaReply     string   `yaml:"meta_reply"`
}

// DefaultPersona returns the built-in persona.
func DefaultPersona() *Persona {
	fc := filter.DefaultConfig()
	return &Persona{
		Name:          "짱구",
		SystemPrompt:  DefaultSystemPrompt,
		BlockedTopics: fc.TopicKeywords,
		BlockedMeta:   fc.MetaKeywords,
		TopicReply:    fc.TopicReply,
		MetaReply:     fc.MetaReply,
	}
}

// LoadPersona returns the built-in persona overlaid with the YAML file at
// path. An empty path returns the built-in persona.
func LoadPersona(path string) (*Persona, error) {
	p := DefaultPersona()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var override Persona
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse persona file: %w", err)
	}

	if override.Name != "" {
		p.Name = override.Name
	}
	if override.SystemPrompt != "" {
		p.SystemPrompt = override.SystemPrompt
	}
	if override.BlockedTopics != nil {
		p.BlockedTopics = override.BlockedTopics
	}
	if override.BlockedMeta != nil {
		p.BlockedMeta = override.BlockedMeta
	}
	if override.TopicReply != "" {
		p.TopicReply = override.TopicReply
	}
	if override.MetaReply != "" {
		p.MetaReply = override.MetaReply
	}
	return p, nil
}

// FilterConfig returns the keyword filter settings for the persona.
func (p *Persona) FilterConfig() filter.Config {
	return filter.Config{
		TopicKeywords: p.BlockedTopics,
		MetaKeywords:  p.BlockedMeta,
		TopicReply:    p.TopicReply,
		MetaReply:     p.MetaReply,
	}
}
