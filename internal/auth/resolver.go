package auth

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"tournethub/coordinator/internal/models"
)

// ReadOnlyCredential is the sentinel presented by clients without an account.
// It resolves to a read-only pseudo-identity so public dashboards can observe
// state without mutation rights.
const ReadOnlyCredential = "readonly"

// wildcardScope grants a permission across every tournament. Reserved for
// server administrators.
const wildcardScope = "*"

// Resolver binds credential verification to the per-tournament permission
// table. HasPermission is a pure query; grants mutate only through
// Grant/Revoke.
type Resolver struct {
	verifier CredentialVerifier

	mu     sync.RWMutex
	grants map[string]map[string]map[string]struct{} // subject -> tournament -> permission
}

// NewResolver constructs a resolver around the supplied credential verifier.
func NewResolver(verifier CredentialVerifier) *Resolver {
	return &Resolver{
		verifier: verifier,
		grants:   make(map[string]map[string]map[string]struct{}),
	}
}

// Resolve verifies the credential and returns the session user it names.
// The read-only sentinel bypasses verification and receives the fixed minimal
// grant set.
func (r *Resolver) Resolve(credential string) (*models.User, error) {
	if strings.TrimSpace(credential) == ReadOnlyCredential {
		user := &models.User{
			ID:         uuid.NewString(),
			Name:       "readonly",
			ClientType: models.ClientTypeReadOnly,
		}
		r.grantAll(user.ID, wildcardScope, readOnlyPermissions)
		return user, nil
	}
	if r == nil || r.verifier == nil {
		return nil, ErrInvalidCredential
	}
	claims, err := r.verifier.Verify(credential)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:         claims.Subject,
		Name:       claims.Name,
		ClientType: claims.ClientType,
		PlatformID: claims.PlatformID,
	}
	//1.- Every verified identity may discover and join tournaments; scoped
	// rights only arrive through joining or explicit grants.
	r.grantAll(user.ID, wildcardScope, baselinePermissions)
	return user, nil
}

// HasPermission reports whether the user holds the named permission within
// the tournament scope. Server admins hold every permission implicitly.
func (r *Resolver) HasPermission(user *models.User, tournamentID, permission string) bool {
	if r == nil || user == nil || permission == "" {
		return false
	}
	if user.ClientType == models.ClientTypeServerAdmin {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	scopes, ok := r.grants[user.ID]
	if !ok {
		return false
	}
	if perms, ok := scopes[wildcardScope]; ok {
		if _, ok := perms[permission]; ok {
			return true
		}
	}
	perms, ok := scopes[tournamentID]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// Grant adds a permission for the subject within the tournament scope.
func (r *Resolver) Grant(subject, tournamentID, permission string) {
	if r == nil || subject == "" || tournamentID == "" || permission == "" {
		return
	}
	r.grantAll(subject, tournamentID, []string{permission})
}

// GrantAll adds a set of permissions for the subject within the scope.
func (r *Resolver) GrantAll(subject, tournamentID string, permissions []string) {
	if r == nil || subject == "" || tournamentID == "" {
		return
	}
	r.grantAll(subject, tournamentID, permissions)
}

func (r *Resolver) grantAll(subject, tournamentID string, permissions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scopes, ok := r.grants[subject]
	if !ok {
		scopes = make(map[string]map[string]struct{})
		r.grants[subject] = scopes
	}
	perms, ok := scopes[tournamentID]
	if !ok {
		perms = make(map[string]struct{})
		scopes[tournamentID] = perms
	}
	for _, permission := range permissions {
		perms[permission] = struct{}{}
	}
}

// Revoke removes a single permission grant. Revoking a grant that does not
// exist is a no-op.
func (r *Resolver) Revoke(subject, tournamentID, permission string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if scopes, ok := r.grants[subject]; ok {
		if perms, ok := scopes[tournamentID]; ok {
			delete(perms, permission)
			if len(perms) == 0 {
				delete(scopes, tournamentID)
			}
		}
		if len(scopes) == 0 {
			delete(r.grants, subject)
		}
	}
}

// RevokeScope removes every grant the subject holds in the tournament scope.
func (r *Resolver) RevokeScope(subject, tournamentID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if scopes, ok := r.grants[subject]; ok {
		delete(scopes, tournamentID)
		if len(scopes) == 0 {
			delete(r.grants, subject)
		}
	}
}
