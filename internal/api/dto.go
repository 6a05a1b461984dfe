package api

import "github.com/vitaliisemenov/execution-bridge/internal/domain"

// PaginationDTO describes the page window of a list response.
type PaginationDTO struct {
	Offset        int  `json:"offset"`
	Limit         int  `json:"limit"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	CurrentPage   int  `json:"currentPage"`
	HasNext       bool `json:"hasNext"`
	HasPrevious   bool `json:"hasPrevious"`
}

// ExecutionListResponse is the envelope returned by GET /executions.
type ExecutionListResponse struct {
	Content    []domain.ExecutionDTO `json:"content"`
	Pagination PaginationDTO         `json:"pagination"`
}

func buildPagination(offset, limit, total int) PaginationDTO {
	totalPages := 0
	currentPage := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
		currentPage = offset / limit
	}
	return PaginationDTO{
		Offset:        offset,
		Limit:         limit,
		TotalElements: total,
		TotalPages:    totalPages,
		CurrentPage:   currentPage,
		HasNext:       offset+limit < total,
		HasPrevious:   offset > 0,
	}
}

// BatchItemResultDTO is one element of BatchExecutionResponseDTO.Results.
type BatchItemResultDTO struct {
	Status    string               `json:"status"`
	Message   string               `json:"message,omitempty"`
	Execution *domain.ExecutionDTO `json:"execution,omitempty"`
}

// BatchExecutionResponseDTO is the response for POST /executions/batch.
type BatchExecutionResponseDTO struct {
	Status  string               `json:"status"`
	Results []BatchItemResultDTO `json:"results"`
}
