// Package transcode dispatches video transcoding jobs and describes their results.
package transcode

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Tier is one quality level of the rendition ladder.
type Tier struct {
	Quality     string `json:"quality"`
	BitrateKbps int    `json:"bitrate"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Ladder is the ordered list of tiers every video is transcoded into.
type Ladder []Tier

// ParseLadder reads "quality:kbps:WxH" entries separated by commas.
func ParseLadder(raw string) (Ladder, error) {
	var out Ladder
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("ladder entry %q: want quality:kbps:WxH", entry)
		}
		quality := strings.TrimSpace(parts[0])
		if quality == "" || strings.ContainsAny(quality, "/\\.") {
			return nil, fmt.Errorf("ladder entry %q: invalid quality label", entry)
		}
		if seen[quality] {
			return nil, fmt.Errorf("ladder entry %q: duplicate quality", entry)
		}
		kbps, err := strconv.Atoi(parts[1])
		if err != nil || kbps <= 0 {
			return nil, fmt.Errorf("ladder entry %q: invalid bitrate", entry)
		}
		dims := strings.Split(parts[2], "x")
		if len(dims) != 2 {
			return nil, fmt.Errorf("ladder entry %q: invalid dimensions", entry)
		}
		w, werr := strconv.Atoi(dims[0])
		h, herr := strconv.Atoi(dims[1])
		if werr != nil || herr != nil || w <= 0 || h <= 0 {
			return nil, fmt.Errorf("ladder entry %q: invalid dimensions", entry)
		}
		seen[quality] = true
		out = append(out, Tier{Quality: quality, BitrateKbps: kbps, Width: w, Height: h})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("transcode ladder is empty")
	}
	return out, nil
}

// Lookup returns the tier labelled quality.
func (l Ladder) Lookup(quality string) (Tier, bool) {
	for _, t := range l {
		if t.Quality == quality {
			return t, true
		}
	}
	return Tier{}, false
}

// RenditionKey is the storage key a tier of sourceKey is written to.
func RenditionKey(sourceKey, quality string) string {
	base := strings.TrimSuffix(sourceKey, path.Ext(sourceKey))
	return base + "/renditions/" + quality + ".mp4"
}

// Targets expands the ladder into per-tier output keys for sourceKey.
func (l Ladder) Targets(sourceKey string) []Target {
	out := make([]Target, 0, len(l))
	for _, t := range l {
		out = append(out, Target{Tier: t, StorageKey: RenditionKey(sourceKey, t.Quality)})
	}
	return out
}
