package engine

import "github.com/xela07ax/radar-bff/internal/domain"

const (
	MergeTopK   = "topk"
	MergeWindow = "window"
)

// Aggregate склеивает страницы источников в одну логическую страницу.
// totalElements: сумма по источникам, включая нули упавших.
// slice=true: pages содержат top-k каждого источника, режем [n*s, (n+1)*s).
// slice=false: окна источников возвращаются целиком (приближенный режим).
func Aggregate(pages []domain.PageResult, pageNumber, pageSize int, slice bool) domain.PageResult {
	var total int64
	size := 0
	for _, p := range pages {
		total += p.Page.TotalElements
		size += len(p.Content)
	}

	merged := make([]domain.RadarRecord, 0, size)
	for _, p := range pages {
		merged = append(merged, p.Content...)
	}
	domain.SortNewestFirst(merged)

	if slice {
		merged = window(merged, pageNumber, pageSize)
	}

	return domain.PageResult{
		Content: merged,
		Page: domain.PageMetadata{
			Number:        pageNumber,
			Size:          pageSize,
			TotalElements: total,
			TotalPages:    domain.TotalPages(total, pageSize),
		},
	}
}

func window(recs []domain.RadarRecord, pageNumber, pageSize int) []domain.RadarRecord {
	if pageSize <= 0 || pageNumber < 0 {
		return []domain.RadarRecord{}
	}
	from := pageNumber * pageSize
	if from >= len(recs) {
		return []domain.RadarRecord{}
	}
	to := min(from+pageSize, len(recs))
	return recs[from:to]
}
