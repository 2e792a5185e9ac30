// Package speech provides the speech primitives: synthesis, playback, the
// spoken-utterance queue, the one-shot listener and chapter recitation.
package speech

import "time"

// Default voice for TTS. Full list:
// https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// Audio format requested from Azure.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Output format of the audio device. Everything played is converted to it.
const (
	SampleRate   = 44100
	ChannelCount = 2
	BitDepth     = 16
)

// Env var names for the synthesis backends.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
	EnvTTSProxyURL       = "IQRA_TTS_PROXY_URL"
)

// Priority levels for speech requests. Higher value = speaks first.
type Priority int

const (
	PriorityLow      Priority = iota // idle nudges
	PriorityNormal                   // answers to the user, screen intros
	PriorityHigh                     // feedback on a quiz answer
	PriorityCritical                 // errors
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Timing defaults.
const (
	defaultChunkSize      = 200
	defaultSynthParallel  = 4
	defaultListenTimeout  = 12 * time.Second
	defaultRecordDuration = 1500 * time.Millisecond
)
