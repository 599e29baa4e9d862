package apihttp

// SuccessResponse wraps a single payload.
type SuccessResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

func OK[T any](data T, message string) SuccessResponse[T] {
	return SuccessResponse[T]{Success: true, Data: data, Message: message}
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// PaginatedResponse wraps one page of a list.
type PaginatedResponse[T any] struct {
	Success    bool       `json:"success"`
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Paginate slices items for page (1-based) of size pageSize. A page past
// the end, or any page when pageSize is not positive, yields an empty,
// non-nil data list.
func Paginate[T any](items []T, page, pageSize int) PaginatedResponse[T] {
	total := len(items)
	pages := 0
	start, end := total, total
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
		// compare in pages so (page-1)*pageSize cannot overflow
		if skip := max(page, 1) - 1; skip < pages {
			start = skip * pageSize
			end = min(start+pageSize, total)
		}
	}

	data := make([]T, 0, end-start)
	data = append(data, items[start:end]...)

	return PaginatedResponse[T]{
		Success: true,
		Data:    data,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: pages,
		},
	}
}

// HealthStatus is the liveness payload.
type HealthStatus struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// ReadinessStatus is the readiness payload. Checks maps each registered
// dependency to whether it passed.
type ReadinessStatus struct {
	Ready     bool            `json:"ready"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Welcome is served at the root path.
type Welcome struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
	Health  string `json:"health"`
}

// RouteInfo is one entry of the route index.
type RouteInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}
