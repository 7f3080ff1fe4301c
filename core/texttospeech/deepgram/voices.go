package deepgram

import (
	"slices"
	"strings"
)

type deepgramVoice string

const (
	VoiceThalia    deepgramVoice = "aura-2-thalia-en"
	VoiceAndromeda deepgramVoice = "aura-2-andromeda-en"
	VoiceHelena    deepgramVoice = "aura-2-helena-en"
	VoiceApollo    deepgramVoice = "aura-2-apollo-en"
	VoiceArcas     deepgramVoice = "aura-2-arcas-en"
	VoiceCeleste   deepgramVoice = "aura-2-celeste-es"
	VoiceEstrella  deepgramVoice = "aura-2-estrella-es"
	VoiceNestor    deepgramVoice = "aura-2-nestor-es"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceThalia, VoiceAndromeda, VoiceHelena, VoiceApollo, VoiceArcas,
		VoiceCeleste, VoiceEstrella, VoiceNestor,
	}
}

// resolveVoice honors an explicitly supported voice and otherwise falls
// back to the first voice speaking the requested language.
func resolveVoice(voice, language string) deepgramVoice {
	if slices.Contains(GetAvailableVoices(), deepgramVoice(voice)) {
		return deepgramVoice(voice)
	}

	primary, _, _ := strings.Cut(strings.ToLower(language), "-")
	for _, candidate := range GetAvailableVoices() {
		if strings.HasSuffix(string(candidate), "-"+primary) {
			return candidate
		}
	}
	return defaultVoice
}
