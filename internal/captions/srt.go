// internal/captions/srt.go
package captions

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Cue is one subtitle entry read back from an SRT file.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// FormatTimestamp renders seconds as the HH:MM:SS,mmm form SRT requires.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	ms := int((seconds - float64(whole)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// BuildSRT turns word-timed segments into short punchy cues of at most
// maxWords words each. Cues never span segment boundaries so phrase breaks
// stay where the speaker put them.
func BuildSRT(segments []Segment, maxWords int) string {
	if maxWords < 1 {
		maxWords = 1
	}

	var b strings.Builder
	index := 1

	for _, segment := range segments {
		words := segment.Words
		for i := 0; i < len(words); i += maxWords {
			end := i + maxWords
			if end > len(words) {
				end = len(words)
			}
			chunk := words[i:end]

			texts := make([]string, 0, len(chunk))
			for _, w := range chunk {
				if trimmed := strings.TrimSpace(w.Text); trimmed != "" {
					texts = append(texts, trimmed)
				}
			}
			if len(texts) == 0 {
				continue
			}

			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
				index,
				FormatTimestamp(chunk[0].Start),
				FormatTimestamp(chunk[len(chunk)-1].End),
				strings.Join(texts, " "),
			)
			index++
		}
	}

	return b.String()
}

// ParseTimestamp parses an HH:MM:SS,mmm timestamp back to seconds.
func ParseTimestamp(value string) (float64, error) {
	var h, m, s, ms int
	if _, err := fmt.Sscanf(value, "%d:%d:%d,%d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("bad timestamp %q", value)
	}
	return float64(h*3600+m*60+s) + float64(ms)/1000, nil
}

// ParseSRT reads an SRT file into cues, rejecting malformed blocks. Burn-in
// uses it to validate subtitle files before handing them to ffmpeg.
func ParseSRT(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	blocks := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n\n")
	var cues []Cue
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.SplitN(block, "\n", 3)
		if len(lines) < 3 {
			return nil, fmt.Errorf("cue %d: incomplete block", len(cues)+1)
		}

		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return nil, fmt.Errorf("cue %d: bad index %q", len(cues)+1, lines[0])
		}

		times := strings.Split(lines[1], "-->")
		if len(times) != 2 {
			return nil, fmt.Errorf("cue %d: bad timing line %q", index, lines[1])
		}
		start, err := ParseTimestamp(strings.TrimSpace(times[0]))
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}
		end, err := ParseTimestamp(strings.TrimSpace(times[1]))
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}
		if end < start {
			return nil, fmt.Errorf("cue %d: end before start", index)
		}

		cues = append(cues, Cue{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(lines[2]),
		})
	}

	if len(cues) == 0 {
		return nil, fmt.Errorf("no cues found")
	}
	return cues, nil
}
