package auth

import (
	"errors"
	"testing"

	"tournethub/coordinator/internal/models"
)

type staticVerifier struct {
	claims *Claims
	err    error
}

func (v staticVerifier) Verify(string) (*Claims, error) { return v.claims, v.err }

func TestResolveReadOnlySentinel(t *testing.T) {
	resolver := NewResolver(staticVerifier{err: ErrInvalidCredential})

	user, err := resolver.Resolve(ReadOnlyCredential)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if user.ClientType != models.ClientTypeReadOnly {
		t.Fatalf("unexpected client type: %v", user.ClientType)
	}
	if !resolver.HasPermission(user, "any-tournament", PermissionView) {
		t.Fatal("read-only user should hold view everywhere")
	}
	if resolver.HasPermission(user, "any-tournament", PermissionSubmitScores) {
		t.Fatal("read-only user must never hold mutating permissions")
	}
}

func TestResolvePropagatesVerifierError(t *testing.T) {
	resolver := NewResolver(staticVerifier{err: ErrExpiredCredential})
	if _, err := resolver.Resolve("some.jwt.token"); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
}

func TestHasPermissionScoping(t *testing.T) {
	resolver := NewResolver(nil)
	user := &models.User{ID: "u1", ClientType: models.ClientTypePlayer}

	resolver.GrantAll(user.ID, "t1", PlayerPermissions())

	if !resolver.HasPermission(user, "t1", PermissionSubmitScores) {
		t.Fatal("expected grant in scoped tournament")
	}
	if resolver.HasPermission(user, "t2", PermissionSubmitScores) {
		t.Fatal("grant must not leak into other tournaments")
	}

	resolver.Revoke(user.ID, "t1", PermissionSubmitScores)
	if resolver.HasPermission(user, "t1", PermissionSubmitScores) {
		t.Fatal("revoked permission still held")
	}
	if !resolver.HasPermission(user, "t1", PermissionView) {
		t.Fatal("revoke removed unrelated permission")
	}

	resolver.RevokeScope(user.ID, "t1")
	if resolver.HasPermission(user, "t1", PermissionView) {
		t.Fatal("scope revoke left permissions behind")
	}
}

func TestServerAdminHoldsEverything(t *testing.T) {
	resolver := NewResolver(nil)
	admin := &models.User{ID: "root", ClientType: models.ClientTypeServerAdmin}

	for _, permission := range OwnerPermissions() {
		if !resolver.HasPermission(admin, "t1", permission) {
			t.Fatalf("admin missing %q", permission)
		}
	}
}

func TestHasPermissionNilUser(t *testing.T) {
	resolver := NewResolver(nil)
	if resolver.HasPermission(nil, "t1", PermissionView) {
		t.Fatal("nil user must never pass the permission check")
	}
}

func TestResolveGrantsBaselineEverywhere(t *testing.T) {
	resolver := NewResolver(staticVerifier{claims: &Claims{
		Subject:    "u9",
		Name:       "Nia",
		ClientType: models.ClientTypePlayer,
	}})

	user, err := resolver.Resolve("any.jwt.token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !resolver.HasPermission(user, "t1", PermissionJoin) {
		t.Fatal("verified identities should hold join in every scope")
	}
	if !resolver.HasPermission(user, "t2", PermissionView) {
		t.Fatal("verified identities should hold view in every scope")
	}
	if resolver.HasPermission(user, "t1", PermissionSubmitScores) {
		t.Fatal("scoped rights must only arrive through explicit grants")
	}
}
