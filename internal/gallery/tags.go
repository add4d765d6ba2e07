package gallery

import (
	"path"
	"sort"
	"strings"

	"github.com/abduss/picvault/internal/index"
)

const (
	smallAssetBytes  = 100 * 1024
	mediumAssetBytes = 1024 * 1024
)

var formatTags = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "svg": true, "bmp": true,
}

var sizeTags = map[string]bool{"small": true, "medium": true, "large": true}

func formatTag(a index.AssetRecord) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(a.Filename)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}

func sizeTag(a index.AssetRecord) string {
	switch {
	case a.Size < smallAssetBytes:
		return "small"
	case a.Size < mediumAssetBytes:
		return "medium"
	default:
		return "large"
	}
}

func summarizeTags(assets []index.AssetRecord) TagSummary {
	counts := map[string]int{}
	for _, a := range assets {
		counts[formatTag(a)]++
		counts[sizeTag(a)]++
	}

	tags := make([]Tag, 0, len(counts))
	for name, n := range counts {
		tags = append(tags, Tag{Name: name, Count: n})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})

	summary := TagSummary{Tags: tags, TotalImages: len(assets), ByFormat: []Tag{}, BySize: []Tag{}}
	for _, t := range tags {
		switch {
		case formatTags[t.Name]:
			summary.ByFormat = append(summary.ByFormat, t)
		case sizeTags[t.Name]:
			summary.BySize = append(summary.BySize, t)
		}
	}
	return summary
}

func filterByTag(assets []index.AssetRecord, tag string) []index.AssetRecord {
	tag = strings.ToLower(tag)
	out := make([]index.AssetRecord, 0)
	for _, a := range assets {
		if formatTag(a) == tag || sizeTag(a) == tag {
			out = append(out, a)
		}
	}
	return out
}
