package models

// GenerationKind identifies one of the three generation features.
type GenerationKind string

const (
	KindAnimation       GenerationKind = "animation"
	KindVoiceClone      GenerationKind = "voice_clone"
	KindTalkingPortrait GenerationKind = "talking_portrait"
)

var AllKinds = []GenerationKind{KindAnimation, KindVoiceClone, KindTalkingPortrait}

func (k GenerationKind) Valid() bool {
	switch k {
	case KindAnimation, KindVoiceClone, KindTalkingPortrait:
		return true
	}
	return false
}

// ParseGenerationKind accepts both the canonical names and the route-style
// spellings used by the front end ("voice-clone", "talking-portrait").
func ParseGenerationKind(s string) (GenerationKind, bool) {
	switch s {
	case "animation", "generate-animation":
		return KindAnimation, true
	case "voice_clone", "voice-clone":
		return KindVoiceClone, true
	case "talking_portrait", "talking-portrait":
		return KindTalkingPortrait, true
	}
	return "", false
}
