package handler

import (
	"time"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// --- Domain → Response ---

func toUserResponse(acc *domain.Account) userResponse {
	return userResponse{
		ID:        acc.ID,
		Email:     acc.Email,
		Role:      string(acc.Role),
		IsActive:  acc.IsActive,
		CreatedAt: acc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: acc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toUserResponses(accounts []domain.Account) []userResponse {
	out := make([]userResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, toUserResponse(&accounts[i]))
	}
	return out
}

func toTokensResponse(p domain.TokenPair) tokensResponse {
	return tokensResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
	}
}

func toIdentityResponse(id domain.Identity) *identityResponse {
	return &identityResponse{ID: id.ID, Email: id.Email, Role: string(id.Role)}
}
