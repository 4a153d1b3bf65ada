package api

import "strconv"

// ===================================================================
// STANDARD RESPONSE PATTERNS
// ===================================================================

// SuccessResponse creates a standard success envelope.
func SuccessResponse(message string, data interface{}) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "success",
		"message": message,
	}
	if data != nil {
		response["data"] = data
	}
	return response
}

// ErrorResponse creates a standard error envelope.
func ErrorResponse(message string) map[string]interface{} {
	return map[string]interface{}{
		"status":  "error",
		"message": message,
	}
}

// PaginationParams carries normalized list-query paging.
type PaginationParams struct {
	Page     int
	PageSize int
}

// GetPaginationParams parses page/page_size with sane bounds.
func GetPaginationParams(pageStr, pageSizeStr string, defaultPageSize int) PaginationParams {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(pageSizeStr)
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return PaginationParams{Page: page, PageSize: pageSize}
}
