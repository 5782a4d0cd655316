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
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/fileref"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/render"
)

// stubAudio is the deterministic payload emitted when no speech provider
// is configured. It carries an ID3 marker so consumers see audio-shaped
// bytes without a provider round trip.
var stubAudio = []byte{0x49, 0x44, 0x33}

type audioTTSSettings struct {
	Text           string  `json:"text" jsonschema:"description=Text to speak; supports {{ }} expressions"`
	Model          string  `json:"model,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	Format         string  `json:"format,omitempty" jsonschema:"description=Audio container,enum=mp3,enum=wav"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

type mediaOutput struct {
	Media map[string]any `json:"media"`
}

// audioTTSBlock synthesizes speech through the configured provider and
// degrades to a deterministic stub when none is available.
func audioTTSBlock() block.Block {
	return block.New("audio.tts",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s audioTTSSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			text := render.Render(s.Text, renderContext(in))
			if text == "" {
				return nil, block.Configf("audio.tts requires non-empty 'text'")
			}
			format := s.Format
			if format == "" {
				format = "mp3"
			}
			mime := "audio/mpeg"
			switch format {
			case "mp3":
			case "wav":
				mime = "audio/wav"
			default:
				return nil, block.Configf("audio.tts: unsupported format %q", format)
			}

			data := stubAudio
			if rc.Speech == nil {
				rc.Info(in.NodeID, "audio.tts: no speech provider configured; emitting stub audio", nil)
			} else {
				tctx := ctx
				if s.TimeoutSeconds > 0 {
					var cancel context.CancelFunc
					tctx, cancel = context.WithTimeout(ctx, time.Duration(s.TimeoutSeconds*float64(time.Second)))
					defer cancel()
				}
				resp, err := rc.Speech.Synthesize(tctx, &model.SpeechRequest{
					Text:   text,
					Model:  s.Model,
					Voice:  s.Voice,
					Format: format,
				})
				if err != nil {
					rc.Warn(in.NodeID, "audio.tts: synthesis failed, using stub audio", map[string]any{"error": err.Error()})
				} else {
					data = resp.Data
					if resp.MIME != "" {
						mime = resp.MIME
					}
				}
			}

			media := fileref.NewMedia("audio", mime, data)
			media.Filename = "speech." + format
			return map[string]any{"media": media.Map()}, nil
		},
		block.WithSummary("Text to speech through the configured provider"),
		block.WithSettings(audioTTSSettings{}),
		block.WithOutput(mediaOutput{}),
	)
}

type audioSTTSettings struct {
	Media          any     `json:"media" jsonschema:"description=Media descriptor, file reference or audio URL"`
	Model          string  `json:"model,omitempty"`
	Prompt         string  `json:"prompt,omitempty"`
	Language       string  `json:"language,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// minTranscribableBytes guards against sending obviously invalid audio to
// the provider; anything smaller transcribes to the empty string.
const minTranscribableBytes = 1000

// audioSTTBlock transcribes audio through the configured provider. Without
// one it deterministically returns an empty transcript.
func audioSTTBlock() block.Block {
	return block.New("audio.stt",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s audioSTTSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.Media == nil {
				return nil, block.Configf("audio.stt requires 'media'")
			}
			timeout := 120 * time.Second
			if s.TimeoutSeconds > 0 {
				timeout = time.Duration(s.TimeoutSeconds * float64(time.Second))
			}
			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			raw, filename, mime, berr := resolveAudio(tctx, in, rc, s.Media)
			if berr != nil {
				return nil, berr
			}
			if len(raw) == 0 {
				return nil, block.Configf("audio.stt: no audio bytes resolved")
			}

			if rc.Transcriber == nil {
				rc.Info(in.NodeID, "audio.stt: no transcription provider configured; returning empty text", nil)
				return map[string]any{"text": ""}, nil
			}
			if len(raw) < minTranscribableBytes {
				return map[string]any{"text": ""}, nil
			}

			resp, err := rc.Transcriber.Transcribe(tctx, &model.TranscribeRequest{
				Data:     raw,
				Filename: filename,
				MIME:     mime,
				Model:    s.Model,
				Prompt:   s.Prompt,
				Language: s.Language,
			})
			if err != nil {
				return nil, block.Remotef("audio.stt: %v", err)
			}
			return map[string]any{"text": resp.Text}, nil
		},
		block.WithSummary("Speech to text through the configured provider"),
		block.WithSettings(audioSTTSettings{}),
		block.WithOutput(textOutput{}),
	)
}

// resolveAudio turns the media setting into raw bytes: an inline Media
// descriptor, a stored file reference, or an audio URL.
func resolveAudio(ctx context.Context, in *block.Input, rc *block.RunContext, v any) ([]byte, string, string, *block.Error) {
	switch t := v.(type) {
	case map[string]any:
		if media, ok := fileref.MediaFromMap(t); ok {
			if media.BytesB64 != "" {
				data, err := media.Bytes()
				if err != nil {
					return nil, "", "", block.Configf("audio.stt: decode media payload: %v", err)
				}
				return data, media.Filename, media.MIME, nil
			}
			data, mime, berr := fetchBytes(ctx, rc, media.URI)
			if berr != nil {
				return nil, "", "", berr
			}
			if media.MIME != "" {
				mime = media.MIME
			}
			return data, media.Filename, mime, nil
		}
		if ref, ok := fileref.FromMap(t); ok {
			data, mime, berr := downloadRef(ctx, rc, ref)
			if berr != nil {
				return nil, "", "", berr
			}
			if ref.ContentType != "" {
				mime = ref.ContentType
			}
			return data, pathBase(ref.Path), mime, nil
		}
		return nil, "", "", block.Configf("audio.stt: media object is neither a media descriptor nor a file reference")
	case string:
		target := render.Render(t, renderContext(in))
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			return nil, "", "", block.Configf("audio.stt: media string must be an http(s) URL")
		}
		data, mime, berr := fetchBytes(ctx, rc, target)
		if berr != nil {
			return nil, "", "", berr
		}
		return data, pathBase(target), mime, nil
	default:
		return nil, "", "", block.Configf("audio.stt: unsupported media value")
	}
}

func pathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 && i+1 < len(p) {
		return p[i+1:]
	}
	return p
}
