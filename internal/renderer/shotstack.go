package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jdmedia/newsreel/internal/models"
)

const (
	shotstackPollInitial = 2500 * time.Millisecond
	shotstackPollStep    = 500 * time.Millisecond
	shotstackPollMax     = 6 * time.Second
	shotstackMaxWait     = 10 * time.Minute
)

// ErrPollTimeout means the remote render never reached a terminal status
// within the polling window. The render may still finish on their side.
var ErrPollTimeout = errors.New("shotstack: render polling timed out")

// ShotstackProvider delegates composition to the Shotstack cloud API.
// Narration and local media must be published to public URLs first, so an
// uploader is required.
type ShotstackProvider struct {
	*Assembler
	apiKey   string
	host     string
	uploader Uploader
	client   *http.Client
}

var _ Provider = (*ShotstackProvider)(nil)

func NewShotstackProvider(assembler *Assembler, apiKey, host string, uploader Uploader) *ShotstackProvider {
	return &ShotstackProvider{
		Assembler: assembler,
		apiKey:    apiKey,
		host:      host,
		uploader:  uploader,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *ShotstackProvider) Name() string { return "shotstack" }

func (p *ShotstackProvider) Prepare(ctx context.Context, job *Job) error {
	if p.uploader == nil {
		err := fmt.Errorf("shotstack renderer requires a configured blob store for asset URLs")
		job.SetState(StatusError, err.Error())
		return err
	}
	assets, err := p.PrepareAssets(ctx, job)
	if err != nil {
		job.SetState(StatusError, err.Error())
		return err
	}
	job.Prepared = assets
	job.SetState(StatusPrepared, "")
	return nil
}

func (p *ShotstackProvider) Render(ctx context.Context, job *Job) error {
	if job.Prepared == nil {
		return fmt.Errorf("render called before prepare")
	}
	job.SetState(StatusRendering, "")
	assets := job.Prepared

	audioKey := filepath.ToSlash(filepath.Join(job.ProjectID, filepath.Base(assets.Narration.AudioPath)))
	audioURL, err := p.uploader.Upload(ctx, assets.Narration.AudioPath, audioKey, "audio/mpeg")
	if err != nil {
		err = fmt.Errorf("upload narration: %w", err)
		job.SetState(StatusError, err.Error())
		return err
	}
	job.SetOutput("audio", assets.Narration.AudioPath)
	job.SetOutput("audio_url", audioURL)
	job.SetOutput("srt", assets.SRTPath)
	job.SetOutput("ass", assets.ASSPath)

	for _, format := range job.Payload.Formats {
		if err := p.renderFormat(ctx, job, format, audioURL); err != nil {
			err = fmt.Errorf("format %s: %w", format, err)
			job.SetState(StatusError, err.Error())
			return err
		}
	}

	job.SetOutput("duration_sec", round2(assets.AudioDuration))
	job.SetState(StatusDone, "")
	return nil
}

func (p *ShotstackProvider) renderFormat(ctx context.Context, job *Job, format, audioURL string) error {
	assets := job.Prepared
	profile := models.ProfileFor(format, job.Profile)

	edit, err := p.buildEdit(ctx, job, profile, audioURL)
	if err != nil {
		return err
	}

	renderID, err := p.submit(ctx, edit)
	if err != nil {
		return err
	}
	log.Printf("[Shotstack] Submitted render %s for format %s", renderID, format)
	job.AppendLog(fmt.Sprintf("shotstack render %s submitted for %s", renderID, format))

	outputURL, err := p.poll(ctx, renderID)
	if err != nil {
		return err
	}

	mp4Path := filepath.Join(assets.OutDir, fmt.Sprintf("output_%s.mp4", format))
	if err := p.download(ctx, outputURL, mp4Path); err != nil {
		return fmt.Errorf("download render %s: %w", renderID, err)
	}
	log.Printf("[Shotstack] Render %s downloaded -> %s", renderID, mp4Path)

	job.SetOutput("mp4_"+format, mp4Path)
	job.SetOutput("mp4_"+format+"_url", outputURL)
	return nil
}

// buildEdit maps the payload onto a Shotstack edit: one visual track plus
// the narration soundtrack. Local media files get uploaded on the fly;
// remote URLs pass through.
func (p *ShotstackProvider) buildEdit(ctx context.Context, job *Job, profile models.RenderProfile, audioURL string) (map[string]any, error) {
	payload := job.Payload
	trans := payload.Transitions

	var clips []map[string]any
	cursor := 0.0
	for _, item := range payload.Media {
		src := item.Src
		if !isRemoteURL(src) {
			key := filepath.ToSlash(filepath.Join(job.ProjectID, "media", filepath.Base(src)))
			uploaded, err := p.uploader.Upload(ctx, src, key, "")
			if err != nil {
				log.Printf("[Shotstack] Skipping local media %s: %v", src, err)
				job.AppendLog(fmt.Sprintf("dropped media item %s", src))
				continue
			}
			src = uploaded
		}

		length := defaultImageDuration
		assetType := "image"
		if item.Type == models.MediaTypeVideo {
			assetType = "video"
			if item.Clip != nil && item.Clip.End > item.Clip.Start {
				length = item.Clip.End - item.Clip.Start
			}
		}

		clip := map[string]any{
			"asset":  map[string]any{"type": assetType, "src": src},
			"start":  round2(cursor),
			"length": round2(length),
			"fit":    "cover",
		}
		if item.Type == models.MediaTypeVideo && item.Clip != nil {
			clip["asset"].(map[string]any)["trim"] = round2(item.Clip.Start)
		}
		if trans.UseXfade {
			clip["transition"] = map[string]any{"in": "fade", "out": "fade"}
		}
		clips = append(clips, clip)
		cursor += length
		if trans.UseXfade {
			cursor -= trans.Duration
		}
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("no usable media for remote render")
	}

	// Pad the visual track so the narration is never cut off.
	if audio := job.Prepared.AudioDuration; cursor < audio {
		last := clips[len(clips)-1]
		last["length"] = round2(last["length"].(float64) + (audio - cursor))
	}

	timeline := map[string]any{
		"soundtrack": map[string]any{"src": audioURL, "effect": "fadeOut"},
		"background": "#000000",
		"tracks":     []map[string]any{{"clips": clips}},
	}
	output := map[string]any{
		"format": "mp4",
		"fps":    profile.FPS,
		"size":   map[string]any{"width": profile.Width, "height": profile.Height},
	}
	return map[string]any{"timeline": timeline, "output": output}, nil
}

func (p *ShotstackProvider) submit(ctx context.Context, edit map[string]any) (string, error) {
	body, err := json.Marshal(edit)
	if err != nil {
		return "", fmt.Errorf("marshal edit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/render", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit render: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit render: status %d: %s", resp.StatusCode, truncateBody(data))
	}

	var parsed struct {
		Response struct {
			ID string `json:"id"`
		} `json:"response"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Response.ID == "" {
		return "", fmt.Errorf("submit render: unexpected response: %s", truncateBody(data))
	}
	return parsed.Response.ID, nil
}

// poll waits for a terminal status, backing off from 2.5s to 6s between
// checks. A timeout is reported as ErrPollTimeout, distinct from an
// explicit failure from the API.
func (p *ShotstackProvider) poll(ctx context.Context, renderID string) (string, error) {
	deadline := time.Now().Add(shotstackMaxWait)
	interval := shotstackPollInitial
	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: render %s", ErrPollTimeout, renderID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
		if interval < shotstackPollMax {
			interval += shotstackPollStep
		}

		status, url, err := p.fetchStatus(ctx, renderID)
		if err != nil {
			log.Printf("[Shotstack] Status check failed for %s: %v", renderID, err)
			continue
		}
		switch status {
		case "done":
			return url, nil
		case "failed", "error":
			return "", fmt.Errorf("shotstack render %s failed", renderID)
		default:
			log.Printf("[Shotstack] Render %s status=%s", renderID, status)
		}
	}
}

func (p *ShotstackProvider) fetchStatus(ctx context.Context, renderID string) (status, url string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/render/"+renderID, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(data))
	}

	var parsed struct {
		Response struct {
			Status string `json:"status"`
			URL    string `json:"url"`
		} `json:"response"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", "", err
	}
	return parsed.Response.Status, parsed.Response.URL, nil
}

func (p *ShotstackProvider) download(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status %d", resp.StatusCode)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func (p *ShotstackProvider) Status(ctx context.Context, job *Job) (State, error) {
	return job.State(), nil
}

func (p *ShotstackProvider) CollectOutputs(ctx context.Context, job *Job) (map[string]any, error) {
	return job.Outputs(), nil
}

func (p *ShotstackProvider) Cancel(ctx context.Context, job *Job) error {
	job.SetState(StatusCanceled, "canceled by request")
	return nil
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
