package captions

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/jdmedia/newsreel/internal/models"
)

// ---------------------------------------------------------------------------
// Caption generators
// SRT mirrors the narration timeline one cue per segment; ASS re-chunks
// each segment into short on-screen portions sized to the render profile.
// ---------------------------------------------------------------------------

// Style controls how ASS dialogue is laid out relative to the target
// resolution.
type Style struct {
	MaxWords    int     // words visible at once
	MinChunkDur float64 // seconds, shrunk when a segment is too short
	FontScale   float64 // fontsize = FontScale * height
	MarginScale float64 // bottom margin = MarginScale * height
}

func DefaultStyle() Style {
	return Style{
		MaxWords:    5,
		MinChunkDur: 0.7,
		FontScale:   0.05,
		MarginScale: 0.08,
	}
}

// WriteSRT writes a numbered-cue subtitle file, one cue per narration
// segment, timestamped HH:MM:SS,mmm.
func WriteSRT(timeline []models.NarrationSegment, outPath string) error {
	var b strings.Builder
	for i, seg := range timeline {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End))
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	if err := os.WriteFile(outPath, []byte(strings.TrimSuffix(b.String(), "\n")), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// WriteASS writes a styled subtitle file. Each narration segment is split
// into chunks of at most style.MaxWords words sharing the segment window
// evenly; chunks longer than three words wrap onto two lines.
func WriteASS(timeline []models.NarrationSegment, profile models.RenderProfile, style Style, outPath string) error {
	if style.MaxWords <= 0 {
		style = DefaultStyle()
	}

	fontsize := int(float64(profile.Height) * style.FontScale)
	if fontsize < 16 {
		fontsize = 16
	}
	marginV := int(float64(profile.Height) * style.MarginScale)
	if marginV < 30 {
		marginV = 30
	}

	lines := []string{
		"[Script Info]",
		"ScriptType: v4.00+",
		fmt.Sprintf("PlayResX: %d", profile.Width),
		fmt.Sprintf("PlayResY: %d", profile.Height),
		"ScaledBorderAndShadow: yes",
		"",
		"[V4+ Styles]",
		"Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, " +
			"Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, " +
			"Alignment, MarginL, MarginR, MarginV, Encoding",
		fmt.Sprintf("Style: Default,Arial,%d,&H00FFFFFF,&H000000FF,&H64000000,&H00000000,0,0,0,0,100,100,0,0,1,3,0,2,40,40,%d,1", fontsize, marginV),
		"",
		"[Events]",
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text",
	}

	for _, seg := range timeline {
		dur := seg.End - seg.Start
		if dur < 0.1 {
			dur = 0.1
		}
		words := strings.Fields(seg.Text)
		if len(words) == 0 {
			continue
		}

		chunkCount := int(math.Ceil(float64(len(words)) / float64(style.MaxWords)))
		minChunk := style.MinChunkDur
		if float64(chunkCount)*minChunk > dur {
			minChunk = dur / float64(chunkCount)
		}
		base := dur / float64(chunkCount)

		for i := 0; i < chunkCount; i++ {
			lo := i * style.MaxWords
			hi := lo + style.MaxWords
			if hi > len(words) {
				hi = len(words)
			}
			grp := words[lo:hi]

			cstart := seg.Start + float64(i)*base
			cend := seg.Start + float64(i+1)*base
			if cend-cstart < minChunk {
				cend = cstart + minChunk
				if cend > seg.End {
					cend = seg.End
				}
			}

			text := strings.Join(grp, " ")
			if len(grp) > 3 {
				split := (len(grp) + 1) / 2
				text = strings.Join(grp[:split], " ") + `\N` + strings.Join(grp[split:], " ")
			}
			lines = append(lines, fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s",
				formatASSTime(cstart), formatASSTime(cend), text))
		}
	}

	if err := os.WriteFile(outPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write ass: %w", err)
	}
	return nil
}

// formatSRTTime renders seconds as HH:MM:SS,mmm.
func formatSRTTime(ts float64) string {
	h := int(ts) / 3600
	m := (int(ts) % 3600) / 60
	s := int(ts) % 60
	ms := int((ts - math.Floor(ts)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// formatASSTime renders seconds as H:MM:SS.cc (centiseconds).
func formatASSTime(ts float64) string {
	h := int(ts) / 3600
	m := (int(ts) % 3600) / 60
	s := int(ts) % 60
	cs := int(math.Round((ts - math.Floor(ts)) * 100))
	if cs >= 100 {
		cs = 99
	}
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
