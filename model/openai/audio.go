//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/openai/openai-go"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

// Compile-time checks that Model provides the audio surfaces.
var (
	_ model.SpeechSynthesizer = (*Model)(nil)
	_ model.Transcriber       = (*Model)(nil)
)

// Synthesize implements model.SpeechSynthesizer via the speech endpoint.
func (m *Model) Synthesize(ctx context.Context, req *model.SpeechRequest) (*model.SpeechResponse, error) {
	if req == nil || req.Text == "" {
		return nil, errors.New("speech request requires text")
	}

	params := openai.AudioSpeechNewParams{
		Model: openai.SpeechModelTTS1,
		Input: req.Text,
		Voice: openai.AudioSpeechNewParamsVoiceAlloy,
	}
	if req.Model != "" {
		params.Model = openai.SpeechModel(req.Model)
	}
	if req.Voice != "" {
		params.Voice = openai.AudioSpeechNewParamsVoice(req.Voice)
	}
	mime := "audio/mpeg"
	switch req.Format {
	case "", "mp3":
		params.ResponseFormat = openai.AudioSpeechNewParamsResponseFormatMP3
	case "wav":
		params.ResponseFormat = openai.AudioSpeechNewParamsResponseFormatWAV
		mime = "audio/wav"
	default:
		return nil, fmt.Errorf("unsupported speech format %q", req.Format)
	}

	resp, err := m.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return &model.SpeechResponse{Data: data, MIME: mime}, nil
}

// Transcribe implements model.Transcriber via the transcriptions endpoint.
func (m *Model) Transcribe(ctx context.Context, req *model.TranscribeRequest) (*model.TranscribeResponse, error) {
	if req == nil || len(req.Data) == 0 {
		return nil, errors.New("transcribe request requires audio bytes")
	}

	filename := req.Filename
	if filename == "" {
		filename = "audio_input"
	}
	mime := req.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(req.Data), filename, mime),
	}
	if req.Model != "" {
		params.Model = openai.AudioModel(req.Model)
	}
	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}

	out, err := m.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return &model.TranscribeResponse{Text: out.Text}, nil
}
