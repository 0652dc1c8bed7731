package core

import (
	"fmt"
	"strings"
)

// Permission is a bit set of the operations an actor may perform.
type Permission uint8

const (
	PermCreateDraft Permission = 1 << iota
	PermApprove
	PermVoid
	PermManageSetup
	PermClosePeriod

	PermNone Permission = 0
	PermAll             = PermCreateDraft | PermApprove | PermVoid | PermManageSetup | PermClosePeriod
)

var permissionNames = []struct {
	p    Permission
	name string
}{
	{PermCreateDraft, "create_draft"},
	{PermApprove, "approve"},
	{PermVoid, "void"},
	{PermManageSetup, "manage_setup"},
	{PermClosePeriod, "close_period"},
}

func (p Permission) String() string {
	if p == PermNone {
		return "none"
	}
	var names []string
	for _, pn := range permissionNames {
		if p&pn.p != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, "|")
}

// Roles maps the stock role names to their permission sets.
var Roles = map[string]Permission{
	"admin":    PermAll,
	"approver": PermCreateDraft | PermApprove | PermVoid,
	"cashier":  PermCreateDraft,
	"auditor":  PermNone,
}

// RolePermissions resolves a role name.
func RolePermissions(role string) (Permission, error) {
	p, ok := Roles[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		return PermNone, fmt.Errorf("unknown role %q", role)
	}
	return p, nil
}

// Actor is the caller identity supplied by the authentication layer. It is
// passed explicitly into every mutating ledger operation.
type Actor struct {
	ID          int64
	Permissions Permission
}

// Can reports whether the actor holds every permission in p.
func (a Actor) Can(p Permission) bool {
	return a.Permissions&p == p
}

// Require returns a PermissionError unless the actor holds p.
func (a Actor) Require(p Permission) error {
	if !a.Can(p) {
		return &PermissionError{ActorID: a.ID, Permission: p}
	}
	return nil
}
