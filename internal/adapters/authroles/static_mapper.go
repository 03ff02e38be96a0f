package authroles

import (
	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
)

// StaticRoleMapper maps groups by simple string membership rules.
// An empty UserGroup grants the user role to every authenticated caller.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	if m.UserGroup == "" {
		return domainauth.RoleUser
	}
	for _, g := range groups {
		if g == m.UserGroup {
			return domainauth.RoleUser
		}
	}
	return domainauth.RoleGuest
}
