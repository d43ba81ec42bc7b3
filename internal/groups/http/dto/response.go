package dto

import (
	"time"

	"github.com/samber/lo"

	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// KeyGroupResponse represents a key group in API responses.
type KeyGroupResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Fingerprints []string  `json:"fingerprints"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListKeyGroupsResponse represents a paginated list of key groups.
type ListKeyGroupsResponse struct {
	Data []KeyGroupResponse `json:"data"`
}

// MapKeyGroupToResponse converts a domain key group to an API response.
func MapKeyGroupToResponse(group *groupsDomain.KeyGroup) KeyGroupResponse {
	fingerprints := group.Fingerprints
	if fingerprints == nil {
		fingerprints = []string{}
	}
	return KeyGroupResponse{
		ID:           group.ID.String(),
		Name:         group.Name,
		Description:  group.Description,
		Fingerprints: fingerprints,
		CreatedAt:    group.CreatedAt,
		UpdatedAt:    group.UpdatedAt,
	}
}

// MapKeyGroupsToListResponse converts a slice of key groups to a list response.
func MapKeyGroupsToListResponse(groups []*groupsDomain.KeyGroup) ListKeyGroupsResponse {
	return ListKeyGroupsResponse{
		Data: lo.Map(groups, func(g *groupsDomain.KeyGroup, _ int) KeyGroupResponse {
			return MapKeyGroupToResponse(g)
		}),
	}
}
