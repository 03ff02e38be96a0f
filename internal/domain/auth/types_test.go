package auth

import (
	"testing"
	"time"
)

func TestIdentity_InGroup(t *testing.T) {
	id := Identity{UserID: "u", Groups: []string{"hr-admins", "staff"}, ExpiresAt: time.Now().Add(time.Hour)}
	if !id.InGroup("staff") {
		t.Fatalf("expected membership in staff")
	}
	if id.InGroup("payroll") {
		t.Fatalf("did not expect membership in payroll")
	}
	if id.InGroup("") {
		t.Fatalf("empty group should never match")
	}
}

func TestPrincipal_Roles(t *testing.T) {
	tests := []struct {
		role      Role
		wantAdmin bool
		wantRead  bool
	}{
		{RoleAdmin, true, true},
		{RoleUser, false, true},
		{RoleGuest, false, false},
	}
	for _, tt := range tests {
		p := Principal{Role: tt.role}
		if p.IsAdmin() != tt.wantAdmin {
			t.Errorf("%s: IsAdmin() = %v", tt.role, p.IsAdmin())
		}
		if p.CanRead() != tt.wantRead {
			t.Errorf("%s: CanRead() = %v", tt.role, p.CanRead())
		}
	}
}
