package domain

import (
	"slices"
	"testing"
)

func TestAuthorities_NormalizesRoles(t *testing.T) {
	c := &CustomClaims{Roles: []string{"user", " admin ", "", "ROLE_AUDITOR"}}

	got := c.Authorities()
	want := []string{"ROLE_USER", "ROLE_ADMIN", "ROLE_AUDITOR"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAuthorities_FallsBackToRealmAccess(t *testing.T) {
	c := &CustomClaims{}
	c.RealmAccess.Roles = []string{"user"}

	if got := c.Authorities(); !slices.Equal(got, []string{RoleUser}) {
		t.Fatalf("expected [%s], got %v", RoleUser, got)
	}
}

func TestHasAnyRole_NilIdentity(t *testing.T) {
	var id *Identity
	if id.HasAnyRole(RoleUser) {
		t.Fatal("nil identity must not have roles")
	}

	id = &Identity{Authorities: []string{RoleAdmin}}
	if !id.HasAnyRole(RoleUser, RoleAdmin) {
		t.Fatal("expected admin role to match")
	}
}
