package propagation

import (
	"strings"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// Downstream service names, used in logs and metric labels.
const (
	UserService      = "user-service"
	TherapistService = "therapist-service"
)

// Target is a downstream service that keeps its own copy of identities.
type Target struct {
	Name string
	URL  string
	// Applies reports whether the account should be sent to this target.
	Applies func(domain.Account) bool
	// Body builds the JSON payload for the account.
	Body func(domain.Account) any
}

type userPayload struct {
	AuthUserID string      `json:"auth_user_id"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
}

type therapistPayload struct {
	AuthUserID         string `json:"auth_user_id"`
	Email              string `json:"email"`
	VerificationStatus string `json:"verification_status"`
}

// UserServiceTarget receives every account.
func UserServiceTarget(baseURL string) Target {
	return Target{
		Name:    UserService,
		URL:     strings.TrimRight(baseURL, "/") + "/api/users/create",
		Applies: func(domain.Account) bool { return true },
		Body: func(acc domain.Account) any {
			return userPayload{AuthUserID: acc.ID, Email: acc.Email, Role: acc.Role}
		},
	}
}

// TherapistServiceTarget receives psychiatrists only, pending verification.
func TherapistServiceTarget(baseURL string) Target {
	return Target{
		Name:    TherapistService,
		URL:     strings.TrimRight(baseURL, "/") + "/api/therapists/create",
		Applies: func(acc domain.Account) bool { return acc.Role == domain.RolePsychiatrist },
		Body: func(acc domain.Account) any {
			return therapistPayload{AuthUserID: acc.ID, Email: acc.Email, VerificationStatus: "pending"}
		},
	}
}
