package gallery

import (
	"sort"
	"strings"

	"github.com/abduss/picvault/internal/index"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Sort orders accepted by SearchQuery.Sort.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortLargest  = "largest"
	SortSmallest = "smallest"
)

var typeFilters = map[string][]string{
	"image": {"image/jpeg", "image/png", "image/webp"},
	"gif":   {"image/gif"},
	"svg":   {"image/svg+xml"},
}

func (q SearchQuery) validate() error {
	if strings.TrimSpace(q.Text) == "" && (q.Type == "" || q.Type == "all") {
		return ErrInvalidQuery
	}
	if q.Type != "" && q.Type != "all" {
		if _, ok := typeFilters[q.Type]; !ok {
			return ErrInvalidQuery
		}
	}
	if q.MinSize < 0 || q.MaxSize < 0 || (q.MaxSize > 0 && q.MinSize > q.MaxSize) {
		return ErrInvalidQuery
	}
	return nil
}

func (q SearchQuery) matches(a index.AssetRecord) bool {
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		if !strings.Contains(strings.ToLower(a.Filename), text) &&
			!strings.Contains(strings.ToLower(a.ID), text) &&
			!strings.Contains(strings.ToLower(a.Uploader), text) {
			return false
		}
	}
	if allowed, ok := typeFilters[q.Type]; ok {
		found := false
		for _, m := range allowed {
			if a.MimeType == m {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.MinSize > 0 && a.Size < q.MinSize {
		return false
	}
	if q.MaxSize > 0 && a.Size > q.MaxSize {
		return false
	}
	if !q.From.IsZero() && a.UploadedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && a.UploadedAt.After(q.To) {
		return false
	}
	return true
}

func filterAssets(assets []index.AssetRecord, q SearchQuery) []index.AssetRecord {
	out := make([]index.AssetRecord, 0, len(assets))
	for _, a := range assets {
		if q.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// sortAssets orders assets in place. Unknown orders keep the input order.
func sortAssets(assets []index.AssetRecord, order string) {
	var less func(a, b index.AssetRecord) bool
	switch order {
	case SortNewest:
		less = func(a, b index.AssetRecord) bool { return a.UploadedAt.After(b.UploadedAt) }
	case SortOldest:
		less = func(a, b index.AssetRecord) bool { return a.UploadedAt.Before(b.UploadedAt) }
	case SortLargest:
		less = func(a, b index.AssetRecord) bool { return a.Size > b.Size }
	case SortSmallest:
		less = func(a, b index.AssetRecord) bool { return a.Size < b.Size }
	default:
		return
	}
	sort.SliceStable(assets, func(i, j int) bool { return less(assets[i], assets[j]) })
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func paginate(assets []index.AssetRecord, page, limit int) Page {
	page, limit = normalizePage(page, limit)
	total := len(assets)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := make([]index.AssetRecord, end-start)
	copy(items, assets[start:end])
	return Page{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}
}
