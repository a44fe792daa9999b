package renderer

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/services"
)

// defaultImageDuration is how long a still image stays on screen before
// reconciliation pads the chain.
const defaultImageDuration = 4.5

// Uploader publishes a local artifact and returns its public URL. Output
// URLs are skipped when no uploader is wired.
type Uploader interface {
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)
}

// LocalProvider composes the final videos on this machine with ffmpeg.
// It is the default provider and the fallback for unknown renderer types.
type LocalProvider struct {
	*Assembler
	encoder   *services.Encoder
	uploader  Uploader
	uploadSem chan struct{} // limits concurrent uploads across format goroutines
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(assembler *Assembler, encoder *services.Encoder, uploader Uploader) *LocalProvider {
	return &LocalProvider{
		Assembler: assembler,
		encoder:   encoder,
		uploader:  uploader,
		uploadSem: make(chan struct{}, 2),
	}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Prepare(ctx context.Context, job *Job) error {
	assets, err := p.PrepareAssets(ctx, job)
	if err != nil {
		job.SetState(StatusError, err.Error())
		return err
	}
	job.Prepared = assets
	job.SetState(StatusPrepared, "")
	return nil
}

// Render assembles one video per requested format, all sharing the
// narration and captions produced by Prepare.
func (p *LocalProvider) Render(ctx context.Context, job *Job) error {
	if job.Prepared == nil {
		return fmt.Errorf("render called before prepare")
	}
	job.SetState(StatusRendering, "")

	var (
		mu         sync.Mutex
		formatDurs []float64
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, format := range job.Payload.Formats {
		format := format
		g.Go(func() error {
			vdur, err := p.renderFormat(gctx, job, format)
			if err != nil {
				return fmt.Errorf("format %s: %w", format, err)
			}
			mu.Lock()
			formatDurs = append(formatDurs, vdur)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		job.SetState(StatusError, err.Error())
		return err
	}

	assets := job.Prepared
	job.SetOutput("srt", assets.SRTPath)
	job.SetOutput("ass", assets.ASSPath)
	job.SetOutput("audio", assets.Narration.AudioPath)
	p.publish(ctx, job, assets.SRTPath, "srt_url", "application/x-subrip")
	p.publish(ctx, job, assets.ASSPath, "ass_url", "text/plain")
	p.publish(ctx, job, assets.Narration.AudioPath, "audio_url", "audio/mpeg")

	// Report the shortest duration across the audio and every rendered
	// format; a deficit anywhere surfaces here.
	minDur := assets.AudioDuration
	for _, d := range formatDurs {
		if d < minDur {
			minDur = d
		}
	}
	job.SetOutput("duration_sec", round2(minDur))

	job.SetState(StatusDone, "")
	return nil
}

// renderFormat builds the visual chain for one social format and muxes it
// with the narration. Returns the probed duration of the final MP4.
func (p *LocalProvider) renderFormat(ctx context.Context, job *Job, format string) (float64, error) {
	assets := job.Prepared
	profile := models.ProfileFor(format, job.Profile)
	trans := job.Payload.Transitions
	segDir := filepath.Join(job.ProjectDir, "segments_"+format)
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return 0, fmt.Errorf("create segment dir: %w", err)
	}

	segments := p.prepareMediaSegments(ctx, job, profile, segDir)

	visualsRaw := filepath.Join(assets.OutDir, fmt.Sprintf("video_concat_%s.mp4", format))
	if len(segments) == 0 {
		// No usable media at all: one black filler covering the narration.
		dur := assets.AudioDuration
		if dur <= 0 {
			dur = 3.0
		}
		if dur < 1.0 {
			dur = 1.0
		}
		if err := p.encoder.MakeColorSegment(ctx, dur, profile, visualsRaw, "black"); err != nil {
			return 0, err
		}
		job.AppendLog(fmt.Sprintf("no usable media for %s, rendered black filler", format))
		log.Printf("[Render] No visuals for %s; generated filler %s", format, visualsRaw)
	} else {
		makeFiller := func(fctx context.Context, index int, duration float64) (models.VisualSegment, error) {
			path := filepath.Join(segDir, fmt.Sprintf("filler_%03d.mp4", index))
			if err := p.encoder.MakeColorSegment(fctx, duration, profile, path, "black"); err != nil {
				return models.VisualSegment{}, err
			}
			d := p.encoder.ProbeDuration(fctx, path)
			if d <= 0 {
				d = 1.0
			}
			return models.VisualSegment{Path: path, Duration: d}, nil
		}

		reconciled, err := Reconcile(ctx, segments, assets.AudioDuration, trans.UseXfade, trans.Duration, makeFiller)
		if err != nil {
			return 0, err
		}

		if trans.UseXfade && len(reconciled) > 1 {
			if err := p.encoder.XfadeConcat(ctx, reconciled, visualsRaw, trans.Transition, trans.Duration, profile); err != nil {
				return 0, err
			}
			log.Printf("[Render] Concatenated %d segments with xfade -> %s", len(reconciled), visualsRaw)
		} else {
			paths := make([]string, len(reconciled))
			for i, s := range reconciled {
				paths[i] = s.Path
			}
			if err := p.encoder.ConcatVideos(ctx, paths, visualsRaw); err != nil {
				return 0, err
			}
			log.Printf("[Render] Concatenated %d segments (cut) -> %s", len(reconciled), visualsRaw)
		}
	}

	// Branding and burned-in captions reencode once; failure falls back to
	// the raw visuals rather than failing the render.
	visualsFX := visualsRaw
	burnIn := job.Payload.Subtitles.BurnIn
	hasLogo := job.Payload.Brand.LogoPath != ""
	if hasLogo || burnIn {
		fxPath := filepath.Join(assets.OutDir, fmt.Sprintf("video_visuals_fx_%s.mp4", format))
		subs := ""
		if burnIn {
			subs = assets.ASSPath
		}
		if err := p.encoder.ApplyBrandingAndSubtitles(ctx, visualsRaw, subs, &job.Payload.Brand, profile, fxPath); err != nil {
			log.Printf("[Render] Branding/subtitles failed for %s (burn_in=%v): %v; using raw visuals", format, burnIn, err)
			job.AppendLog(fmt.Sprintf("branding/subtitles failed for %s, using raw visuals", format))
		} else {
			visualsFX = fxPath
		}
	}

	mp4Path := filepath.Join(assets.OutDir, fmt.Sprintf("output_%s.mp4", format))
	if err := p.encoder.Mux(ctx, visualsFX, assets.Narration.AudioPath, profile, mp4Path); err != nil {
		return 0, fmt.Errorf("mux failed for %s: %w", format, err)
	}

	vdur := p.encoder.ProbeDuration(ctx, mp4Path)
	if vdur <= 0 {
		vdur = assets.AudioDuration
	}
	log.Printf("[Render] Mux done -> %s duration=%.2fs", mp4Path, vdur)

	job.SetOutput("mp4_"+format, mp4Path)
	job.SetOutput(fmt.Sprintf("mp4_%s_duration_sec", format), round2(vdur))
	p.publish(ctx, job, mp4Path, "mp4_"+format+"_url", "video/mp4")

	return vdur, nil
}

// prepareMediaSegments encodes every usable media item into a uniform
// silent segment. Failed items are dropped with a warning, not fatal.
func (p *LocalProvider) prepareMediaSegments(ctx context.Context, job *Job, profile models.RenderProfile, segDir string) []models.VisualSegment {
	var segments []models.VisualSegment
	idx := 1
	for _, item := range job.Payload.Media {
		segPath := filepath.Join(segDir, fmt.Sprintf("seg_%03d.mp4", idx))
		var (
			dur float64
			err error
		)
		switch item.Type {
		case models.MediaTypeImage:
			err = p.encoder.MakeImageSegment(ctx, item.Src, defaultImageDuration, profile, segPath)
			if err == nil {
				dur = defaultImageDuration
			}
		case models.MediaTypeVideo:
			dur, err = p.encoder.MakeVideoSegment(ctx, item.Src, item.Clip, profile, segPath)
		default:
			err = fmt.Errorf("unsupported media type %q", item.Type)
		}
		if err != nil || dur <= 0 {
			log.Printf("[Render] Dropping media item %s (%s): err=%v dur=%.2f", item.Src, item.Type, err, dur)
			job.AppendLog(fmt.Sprintf("dropped media item %s", item.Src))
			continue
		}
		segments = append(segments, models.VisualSegment{Path: segPath, Duration: dur})
		idx++
	}
	return segments
}

// publish uploads an artifact and records its URL output; best-effort.
func (p *LocalProvider) publish(ctx context.Context, job *Job, localPath, urlKey, contentType string) {
	if p.uploader == nil || localPath == "" {
		return
	}
	select {
	case p.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-p.uploadSem }()

	key := filepath.ToSlash(filepath.Join(job.ProjectID, filepath.Base(localPath)))
	url, err := p.uploader.Upload(ctx, localPath, key, contentType)
	if err != nil {
		log.Printf("[Render] Upload failed for %s: %v", localPath, err)
		return
	}
	job.SetOutput(urlKey, url)
}

func (p *LocalProvider) Status(_ context.Context, job *Job) (State, error) {
	return job.State(), nil
}

func (p *LocalProvider) CollectOutputs(_ context.Context, job *Job) (map[string]any, error) {
	return job.Outputs(), nil
}

func (p *LocalProvider) Cancel(_ context.Context, job *Job) error {
	job.SetState(StatusCanceled, "canceled by request")
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
