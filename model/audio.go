//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package model

import "context"

// SpeechRequest asks a provider to synthesize speech for a piece of text.
type SpeechRequest struct {
	// Text is the content to speak (required).
	Text string `json:"text"`
	// Model selects the provider's speech model; empty uses the default.
	Model string `json:"model,omitempty"`
	// Voice selects the provider voice; empty uses the default.
	Voice string `json:"voice,omitempty"`
	// Format is the audio container, "mp3" or "wav". Empty means mp3.
	Format string `json:"format,omitempty"`
}

// SpeechResponse carries the synthesized audio.
type SpeechResponse struct {
	// Data is the raw audio payload.
	Data []byte `json:"data"`
	// MIME is the payload content type, e.g. "audio/mpeg".
	MIME string `json:"mime"`
}

// SpeechSynthesizer converts text to audio. Providers that cannot
// synthesize simply do not implement it.
type SpeechSynthesizer interface {
	// Synthesize produces audio for the request text.
	Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResponse, error)
}

// TranscribeRequest asks a provider to transcribe recorded audio.
type TranscribeRequest struct {
	// Data is the raw audio payload (required).
	Data []byte `json:"data"`
	// Filename hints the container format to the provider.
	Filename string `json:"filename,omitempty"`
	// MIME is the payload content type.
	MIME string `json:"mime,omitempty"`
	// Model selects the provider's transcription model; empty uses the
	// default.
	Model string `json:"model,omitempty"`
	// Prompt optionally guides the transcription.
	Prompt string `json:"prompt,omitempty"`
	// Language is the ISO 639-1 input language, when known.
	Language string `json:"language,omitempty"`
}

// TranscribeResponse carries the transcribed text.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// Transcriber converts audio to text.
type Transcriber interface {
	// Transcribe produces the transcript for the request audio.
	Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error)
}
