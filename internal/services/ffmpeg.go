package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jdmedia/newsreel/internal/models"
)

// ---------------------------------------------------------------------------
// FFmpeg encoder service
// ---------------------------------------------------------------------------

// Encoder wraps ffmpeg/ffprobe invocations behind an Executor so the
// argument lists stay observable in tests.
type Encoder struct {
	exec    Executor
	ffmpeg  string
	ffprobe string
}

func NewEncoder(exec Executor) *Encoder {
	return &Encoder{
		exec:    exec,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
	}
}

// ProbeDuration returns the media duration in seconds, 0 when unreadable.
func (e *Encoder) ProbeDuration(ctx context.Context, path string) float64 {
	out, err := e.exec.Execute(ctx, e.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		log.Printf("[Encoder] ffprobe failed for %s: %v", path, err)
		return 0
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0
	}
	return dur
}

// scalePadFilter letterboxes any input into the profile dimensions.
func scalePadFilter(p models.RenderProfile) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
		p.Width, p.Height, p.Width, p.Height,
	)
}

// MakeImageSegment encodes a still image into a silent video clip of the
// given duration.
func (e *Encoder) MakeImageSegment(ctx context.Context, imagePath string, duration float64, profile models.RenderProfile, outPath string) error {
	vf := scalePadFilter(profile) + fmt.Sprintf(",fps=%d", profile.FPS)
	_, err := e.exec.Execute(ctx, e.ffmpeg,
		"-y",
		"-loop", "1",
		"-t", formatSeconds(duration),
		"-i", imagePath,
		"-vf", vf,
		"-r", strconv.Itoa(profile.FPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-b:v", profile.VideoBitrate,
		"-an",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("image segment %s: %w", imagePath, err)
	}
	return nil
}

// MakeVideoSegment re-encodes a clip range of a source video into a silent
// segment and returns its probed duration.
func (e *Encoder) MakeVideoSegment(ctx context.Context, videoPath string, clip *models.ClipRange, profile models.RenderProfile, outPath string) (float64, error) {
	args := []string{"-y"}
	if clip != nil {
		args = append(args, "-ss", formatSeconds(clip.Start))
		if clip.End > clip.Start {
			args = append(args, "-to", formatSeconds(clip.End))
		}
	}
	args = append(args,
		"-i", videoPath,
		"-vf", scalePadFilter(profile)+fmt.Sprintf(",fps=%d", profile.FPS),
		"-r", strconv.Itoa(profile.FPS),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-b:v", profile.VideoBitrate,
		outPath,
	)
	if _, err := e.exec.Execute(ctx, e.ffmpeg, args...); err != nil {
		return 0, fmt.Errorf("video segment %s: %w", videoPath, err)
	}
	return e.ProbeDuration(ctx, outPath), nil
}

// MakeColorSegment produces a solid-color filler clip. Used when no media
// item could be encoded.
func (e *Encoder) MakeColorSegment(ctx context.Context, duration float64, profile models.RenderProfile, outPath, color string) error {
	if color == "" {
		color = "black"
	}
	if duration < 0.2 {
		duration = 0.2
	}
	src := fmt.Sprintf("color=c=%s:s=%dx%d:r=%d", color, profile.Width, profile.Height, profile.FPS)
	_, err := e.exec.Execute(ctx, e.ffmpeg,
		"-y",
		"-f", "lavfi",
		"-i", src,
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-b:v", profile.VideoBitrate,
		"-an",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("color segment: %w", err)
	}
	return nil
}

// MakeSilence writes a silent MP3 of at least one second.
func (e *Encoder) MakeSilence(ctx context.Context, duration float64, outPath string) error {
	if duration < 1.0 {
		duration = 1.0
	}
	_, err := e.exec.Execute(ctx, e.ffmpeg,
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono",
		"-t", formatSeconds(duration),
		"-acodec", "libmp3lame",
		"-q:a", "4",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("silence: %w", err)
	}
	return nil
}

// ConcatAudio stitches MP3 parts into one file, re-encoding for safety.
func (e *Encoder) ConcatAudio(ctx context.Context, parts []string, outPath string) error {
	if len(parts) == 0 {
		return fmt.Errorf("no audio parts to concat")
	}
	listPath := concatListPath(outPath)
	if err := writeConcatList(listPath, parts); err != nil {
		return err
	}
	_, err := e.exec.Execute(ctx, e.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-acodec", "libmp3lame",
		"-b:a", "192k",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("audio concat: %w", err)
	}
	return nil
}

// ConcatVideos joins segments with hard cuts via the concat demuxer,
// stream-copying since all segments share encode parameters.
func (e *Encoder) ConcatVideos(ctx context.Context, parts []string, outPath string) error {
	if len(parts) == 0 {
		return fmt.Errorf("no video parts to concat")
	}
	listPath := concatListPath(outPath)
	if err := writeConcatList(listPath, parts); err != nil {
		return err
	}
	_, err := e.exec.Execute(ctx, e.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("video concat: %w", err)
	}
	return nil
}

// XfadeConcat crossfades N silent clips. Each transition overlaps the
// previous clip's tail: offset_i = acc + d[i-1] - overlap, with the
// accumulator advancing by d[i-1] - overlap.
func (e *Encoder) XfadeConcat(ctx context.Context, segments []models.VisualSegment, outPath, transition string, overlap float64, profile models.RenderProfile) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments for xfade")
	}
	if len(segments) == 1 {
		_, err := e.exec.Execute(ctx, e.ffmpeg, "-y", "-i", segments[0].Path, "-c", "copy", outPath)
		return err
	}
	if transition == "" {
		transition = "fade"
	}
	d := clamp(overlap, 0.1, 2.0)

	args := []string{"-y"}
	for _, s := range segments {
		args = append(args, "-i", s.Path)
	}

	var filters []string
	labelPrev := "[0:v]"
	offsetAcc := 0.0
	lastLabel := ""
	for i := 1; i < len(segments); i++ {
		prevDur := segments[i-1].Duration
		if prevDur < 0 {
			prevDur = 0
		}
		offset := offsetAcc + prevDur - d
		if offset < 0 {
			offset = 0
		}
		outLabel := fmt.Sprintf("[v%02d]", i)
		filters = append(filters, fmt.Sprintf(
			"%s[%d:v]xfade=transition=%s:duration=%s:offset=%s%s",
			labelPrev, i, transition, formatSeconds(d), formatSeconds(offset), outLabel,
		))
		labelPrev = outLabel
		offsetAcc += prevDur - d
		lastLabel = outLabel
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", lastLabel,
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-b:v", profile.VideoBitrate,
		"-r", strconv.Itoa(profile.FPS),
		"-an",
		outPath,
	)
	if _, err := e.exec.Execute(ctx, e.ffmpeg, args...); err != nil {
		return fmt.Errorf("xfade concat: %w", err)
	}
	return nil
}

// ApplyBrandingAndSubtitles overlays the logo and/or burns subtitles into
// the silent video. With neither configured the input is stream-copied.
func (e *Encoder) ApplyBrandingAndSubtitles(ctx context.Context, videoIn, subsPath string, brand *models.BrandConfig, profile models.RenderProfile, videoOut string) error {
	hasLogo := brand != nil && brand.LogoPath != ""
	hasSubs := subsPath != "" && fileExists(subsPath)

	if !hasLogo && !hasSubs {
		_, err := e.exec.Execute(ctx, e.ffmpeg, "-y", "-i", videoIn, "-c", "copy", videoOut)
		return err
	}

	args := []string{"-y", "-i", videoIn}
	var filters []string
	mapSrc := "[0:v]"

	if hasLogo {
		args = append(args, "-i", brand.LogoPath)
		scale := brand.Scale
		if scale <= 0 {
			scale = 0.15
		}
		logoW := int(float64(profile.Width) * scale)
		if logoW < 32 {
			logoW = 32
		}
		opacity := brand.Opacity
		if opacity <= 0 {
			opacity = 0.85
		}
		const margin = 24
		pos := strings.ToLower(brand.Position)
		xExpr := strconv.Itoa(margin)
		if strings.Contains(pos, "right") {
			xExpr = fmt.Sprintf("main_w-w-%d", margin)
		}
		yExpr := strconv.Itoa(margin)
		if strings.Contains(pos, "bottom") {
			yExpr = fmt.Sprintf("main_h-h-%d", margin)
		}
		filters = append(filters, fmt.Sprintf(
			"[1:v]scale=%d:-1,format=rgba,colorchannelmixer=aa=%.2f[lg]", logoW, opacity))
		filters = append(filters, fmt.Sprintf(
			"%s[lg]overlay=x=%s:y=%s:format=auto[vlg]", mapSrc, xExpr, yExpr))
		mapSrc = "[vlg]"
	}

	if hasSubs {
		// ffmpeg picks ASS vs SRT from the extension
		filters = append(filters, fmt.Sprintf("%ssubtitles='%s'[vout]", mapSrc, escapeSubPath(subsPath)))
		mapSrc = "[vout]"
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", mapSrc,
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-b:v", profile.VideoBitrate,
		"-r", strconv.Itoa(profile.FPS),
		"-an",
		videoOut,
	)
	if _, err := e.exec.Execute(ctx, e.ffmpeg, args...); err != nil {
		return fmt.Errorf("branding/subtitles: %w", err)
	}
	return nil
}

// Mux combines the silent video with the narration track. Deliberately no
// -shortest: the video has already been reconciled to cover the audio, and
// trimming here would cut narration.
func (e *Encoder) Mux(ctx context.Context, videoPath, audioPath string, profile models.RenderProfile, outPath string) error {
	_, err := e.exec.Execute(ctx, e.ffmpeg,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", profile.AudioBitrate,
		"-movflags", "+faststart",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("mux: %w", err)
	}
	return nil
}

// escapeSubPath escapes a path for the subtitles filter (libass syntax).
func escapeSubPath(path string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`,`, `\,`,
	)
	return r.Replace(path)
}

// concatListPath names the list after its output so concurrent concats
// into a shared directory never overwrite each other's list.
func concatListPath(outPath string) string {
	return strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".list.txt"
}

func writeConcatList(listPath string, parts []string) error {
	var b strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
