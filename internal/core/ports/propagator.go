package ports

import "github.com/mindnest/auth-service/internal/core/domain"

// PropagationTrigger names the operation that caused a propagation.
type PropagationTrigger string

const (
	TriggerRegister    PropagationTrigger = "register"
	TriggerAdminCreate PropagationTrigger = "admin_create"
	TriggerLogin       PropagationTrigger = "login"
)

// IdentityPropagator notifies downstream services that an account exists.
// Propagate must not block on network I/O and never reports failures to
// the caller.
type IdentityPropagator interface {
	Propagate(account domain.Account, trigger PropagationTrigger)
}
