//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package builtin

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/fileref"
	"trpc.group/trpc-go/trpc-flow-go/model"
)

type stubSpeech struct {
	resp *model.SpeechResponse
	err  error
	last *model.SpeechRequest
}

var _ model.SpeechSynthesizer = (*stubSpeech)(nil)

func (s *stubSpeech) Synthesize(ctx context.Context, req *model.SpeechRequest) (*model.SpeechResponse, error) {
	s.last = req
	return s.resp, s.err
}

type stubTranscriber struct {
	text string
	err  error
	last *model.TranscribeRequest
}

var _ model.Transcriber = (*stubTranscriber)(nil)

func (s *stubTranscriber) Transcribe(ctx context.Context, req *model.TranscribeRequest) (*model.TranscribeResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.TranscribeResponse{Text: s.text}, nil
}

func TestAudioTTSStubWithoutProvider(t *testing.T) {
	reg := newTestRegistry(t)
	logs := &logCapture{}

	out, err := runBlock(t, reg, "audio.tts", &block.Input{
		NodeID:   "speak",
		Settings: map[string]any{"text": "hello {{trigger.name}}"},
		Trigger:  map[string]any{"name": "world"},
	}, &block.RunContext{Log: logs.fn()})
	require.NoError(t, err)

	media, ok := out["media"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "audio", media["kind"])
	require.Equal(t, "audio/mpeg", media["mime"])
	require.Equal(t, "speech.mp3", media["filename"])
	require.Equal(t, base64.StdEncoding.EncodeToString(stubAudio), media["bytes_b64"])
	require.Equal(t, int64(len(stubAudio)), media["size"])

	entries := logs.all()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].message, "no speech provider configured")
}

func TestAudioTTSUsesProvider(t *testing.T) {
	speech := &stubSpeech{resp: &model.SpeechResponse{Data: []byte("WAVDATA"), MIME: "audio/wav"}}
	reg := newTestRegistry(t)

	out, err := runBlock(t, reg, "audio.tts", &block.Input{
		Settings: map[string]any{"text": "hi", "format": "wav", "voice": "alloy"},
	}, &block.RunContext{Speech: speech})
	require.NoError(t, err)

	media := out["media"].(map[string]any)
	require.Equal(t, "audio/wav", media["mime"])
	require.Equal(t, "speech.wav", media["filename"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("WAVDATA")), media["bytes_b64"])

	require.NotNil(t, speech.last)
	require.Equal(t, "hi", speech.last.Text)
	require.Equal(t, "wav", speech.last.Format)
	require.Equal(t, "alloy", speech.last.Voice)
}

func TestAudioTTSFallsBackOnProviderError(t *testing.T) {
	speech := &stubSpeech{err: errors.New("voice service down")}
	reg := newTestRegistry(t)
	logs := &logCapture{}

	out, err := runBlock(t, reg, "audio.tts", &block.Input{
		Settings: map[string]any{"text": "hi"},
	}, &block.RunContext{Speech: speech, Log: logs.fn()})
	require.NoError(t, err, "synthesis failures degrade to the stub")

	media := out["media"].(map[string]any)
	require.Equal(t, base64.StdEncoding.EncodeToString(stubAudio), media["bytes_b64"])

	warns := logs.byLevel("warn")
	require.Len(t, warns, 1)
	require.Contains(t, warns[0].message, "synthesis failed")
	require.Equal(t, "voice service down", warns[0].data["error"])
}

func TestAudioTTSValidation(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := runBlock(t, reg, "audio.tts", &block.Input{}, nil)
	be := requireBlockError(t, err, block.ErrConfig)
	require.Equal(t, "audio.tts requires non-empty 'text'", be.Message)

	_, err = runBlock(t, reg, "audio.tts", &block.Input{
		Settings: map[string]any{"text": "hi", "format": "ogg"},
	}, nil)
	be = requireBlockError(t, err, block.ErrConfig)
	require.Contains(t, be.Message, `unsupported format "ogg"`)
}

func TestAudioSTTWithoutProviderReturnsEmptyText(t *testing.T) {
	reg := newTestRegistry(t)
	media := fileref.NewMedia("audio", "audio/mpeg", []byte("abc"))

	out, err := runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": media.Map()},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"text": ""}, out)
}

func TestAudioSTTSkipsTinyPayloads(t *testing.T) {
	tr := &stubTranscriber{text: "should not be called"}
	reg := newTestRegistry(t)
	media := fileref.NewMedia("audio", "audio/mpeg", []byte("tiny"))

	out, err := runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": media.Map()},
	}, &block.RunContext{Transcriber: tr})
	require.NoError(t, err)
	require.Equal(t, "", out["text"])
	require.Nil(t, tr.last, "payloads under the minimum never reach the provider")
}

func TestAudioSTTTranscribesInlineMedia(t *testing.T) {
	tr := &stubTranscriber{text: "hello world"}
	reg := newTestRegistry(t)

	raw := make([]byte, 2048)
	for i := range raw {
		raw[i] = byte(i % 251)
	}
	media := fileref.NewMedia("audio", "audio/mpeg", raw)
	media.Filename = "clip.mp3"

	out, err := runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": media.Map(), "language": "en"},
	}, &block.RunContext{Transcriber: tr})
	require.NoError(t, err)
	require.Equal(t, "hello world", out["text"])

	require.NotNil(t, tr.last)
	require.Equal(t, raw, tr.last.Data)
	require.Equal(t, "clip.mp3", tr.last.Filename)
	require.Equal(t, "audio/mpeg", tr.last.MIME)
	require.Equal(t, "en", tr.last.Language)
}

func TestAudioSTTFetchesURLMedia(t *testing.T) {
	payload := make([]byte, 1500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(payload)
	}))
	defer srv.Close()

	tr := &stubTranscriber{text: "from url"}
	reg := newTestRegistry(t)

	out, err := runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": srv.URL + "/clip.wav"},
	}, &block.RunContext{Transcriber: tr})
	require.NoError(t, err)
	require.Equal(t, "from url", out["text"])
	require.Equal(t, "clip.wav", tr.last.Filename)
	require.Equal(t, "audio/wav", tr.last.MIME)
}

func TestAudioSTTValidation(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := runBlock(t, reg, "audio.stt", &block.Input{}, nil)
	be := requireBlockError(t, err, block.ErrConfig)
	require.Equal(t, "audio.stt requires 'media'", be.Message)

	_, err = runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": "ftp://example.com/clip.mp3"},
	}, nil)
	be = requireBlockError(t, err, block.ErrConfig)
	require.Contains(t, be.Message, "must be an http(s) URL")

	_, err = runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": map[string]any{"neither": true}},
	}, nil)
	requireBlockError(t, err, block.ErrConfig)
}

func TestAudioSTTProviderErrorIsRemote(t *testing.T) {
	tr := &stubTranscriber{err: errors.New("bad audio")}
	reg := newTestRegistry(t)

	raw := make([]byte, 1200)
	media := fileref.NewMedia("audio", "audio/mpeg", raw)

	_, err := runBlock(t, reg, "audio.stt", &block.Input{
		Settings: map[string]any{"media": media.Map()},
	}, &block.RunContext{Transcriber: tr})
	be := requireBlockError(t, err, block.ErrRemote)
	require.Contains(t, be.Message, "audio.stt:")
}
