package calendar

// Page is one page of items.
type Page[T any] struct {
	Items    []T
	Page     int // 1-based
	PageSize int
	HasNext  bool
	HasPrev  bool
	Total    int
}

// Paginate returns the items of the given 1-based page with its metadata.
// Non-positive arguments fall back to the first page of defaultPageSize.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	const defaultPageSize = 10

	total := len(items)

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}

	end := start + pageSize
	if end > total {
		end = total
	}

	return Page[T]{
		Items:    items[start:end],
		Page:     page,
		PageSize: pageSize,
		HasNext:  end < total,
		HasPrev:  page > 1,
		Total:    total,
	}
}

// Chunks splits items into consecutive pages of at most size items.
func Chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for page := 1; ; page++ {
		p := Paginate(items, page, size)
		if len(p.Items) > 0 {
			out = append(out, p.Items)
		}
		if !p.HasNext {
			return out
		}
	}
}
