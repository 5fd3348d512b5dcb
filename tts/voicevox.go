package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mii443/ncb-tts-r2/audio"
)

const voicevoxDefaultAPIURL = "https://api.su-shiki.com/v2/voicevox"

// VoicevoxBackend synthesizes with the community VOICEVOX API.
type VoicevoxBackend struct {
	key     string
	baseURL string
	client  *http.Client
}

// NewVoicevoxBackend creates the vendor-B backend. apiURL overrides the
// hosted API origin when non-empty (self-hosted VOICEVOX engines).
func NewVoicevoxBackend(key, apiURL string) *VoicevoxBackend {
	if apiURL == "" {
		apiURL = voicevoxDefaultAPIURL
	}
	return &VoicevoxBackend{
		key:     key,
		baseURL: strings.TrimSuffix(apiURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the backend.
func (b *VoicevoxBackend) Name() string { return "voicevox" }

// RenderInput joins segments with a Japanese comma; VOICEVOX takes plain
// text, not SSML.
func (b *VoicevoxBackend) RenderInput(segments []string) string {
	return strings.Join(segments, "、")
}

// Synthesize posts the text to the audio endpoint and returns WAV bytes.
func (b *VoicevoxBackend) Synthesize(ctx context.Context, input string, req Request) ([]byte, audio.Format, error) {
	q := url.Values{}
	q.Set("text", input)
	q.Set("speaker", strconv.FormatInt(req.VoicevoxSpeaker, 10))
	q.Set("key", b.key)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/audio/?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("voicevox request: %w", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("voicevox synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("voicevox synthesize: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("voicevox read body: %w", err)
	}
	return data, audio.FormatWAV, nil
}

type voicevoxSpeaker struct {
	Name   string `json:"name"`
	Styles []struct {
		Name string `json:"name"`
		ID   int64  `json:"id"`
	} `json:"styles"`
}

// ListSpeakers returns speaker display names and style IDs for the setup
// credit embed and the configuration menu.
func (b *VoicevoxBackend) ListSpeakers(ctx context.Context) ([][2]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/speakers/?key="+url.QueryEscape(b.key), nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox request: %w", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voicevox list speakers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox list speakers: unexpected status %s", resp.Status)
	}

	var speakers []voicevoxSpeaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("voicevox decode speakers: %w", err)
	}

	var styles [][2]string
	for _, sp := range speakers {
		for _, st := range sp.Styles {
			styles = append(styles, [2]string{
				fmt.Sprintf("%s (%s)", sp.Name, st.Name),
				strconv.FormatInt(st.ID, 10),
			})
		}
	}
	return styles, nil
}
