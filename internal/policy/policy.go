// Package policy evaluates the role capability table.
package policy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
)

//go:embed default.yaml
var defaultTable []byte

// Action names a guarded operation.
type Action string

const (
	CompanyCreate  Action = "company.create"
	CompanyUpdate  Action = "company.update"
	CompanyArchive Action = "company.archive"
	CompanyRestore Action = "company.restore"
	CompanyRead    Action = "company.read"
	CompanyList    Action = "company.list"

	ApplicationCreate  Action = "application.create"
	ApplicationUpdate  Action = "application.update"
	ApplicationSubmit  Action = "application.submit"
	ApplicationReview  Action = "application.review"
	ApplicationApprove Action = "application.approve"
	ApplicationReject  Action = "application.reject"
	ApplicationCancel  Action = "application.cancel"
	ApplicationArchive Action = "application.archive"
	// ApplicationArchiveDecided extends archive to approved, rejected and
	// cancelled applications.
	ApplicationArchiveDecided Action = "application.archive_decided"
	ApplicationRetrieve       Action = "application.retrieve"
	ApplicationRead           Action = "application.read"
	ApplicationList           Action = "application.list"
	ApplicationDelete         Action = "application.delete"
	ApplicationAudit          Action = "application.audit"

	RequirementAttach Action = "requirement.attach"
	RequirementDetach Action = "requirement.detach"
	RequirementVerify Action = "requirement.verify"
	RequirementRead   Action = "requirement.read"
)

const wildcard Action = "*"

// Scope limits an action to owned resources or opens it to all.
type Scope string

const (
	ScopeNone Scope = ""
	ScopeOwn  Scope = "own"
	ScopeAny  Scope = "any"
)

type document struct {
	Roles map[string]map[string]string `yaml:"roles"`
}

// Table maps each role to the actions it may perform.
type Table struct {
	roles map[identity.Role]map[Action]Scope
}

// Parse decodes a YAML capability table.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("parse policy: no roles defined")
	}

	t := &Table{roles: make(map[identity.Role]map[Action]Scope, len(doc.Roles))}
	for roleName, actions := range doc.Roles {
		role, err := identity.ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("parse policy: %w", err)
		}
		grants := make(map[Action]Scope, len(actions))
		for action, scope := range actions {
			switch s := Scope(scope); s {
			case ScopeOwn, ScopeAny:
				grants[Action(action)] = s
			default:
				return nil, fmt.Errorf("parse policy: role %s action %s: invalid scope %q", roleName, action, scope)
			}
		}
		t.roles[role] = grants
	}
	return t, nil
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a table from path, or returns the default when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Grant returns the scope the actor holds for action.
func (t *Table) Grant(actor identity.Actor, action Action) Scope {
	grants := t.roles[actor.Role]
	if s, ok := grants[action]; ok {
		return s
	}
	return grants[wildcard]
}

// Check authorizes action for actor. ownerID is the student owning the
// target resource; it is required for own-scoped grants and ignored for
// any-scoped ones.
func (t *Table) Check(actor identity.Actor, action Action, ownerID string) (Scope, error) {
	if actor.ID == "" {
		return ScopeNone, errors.New(errors.ErrCodeUnauthorized, "authentication required")
	}
	switch scope := t.Grant(actor, action); scope {
	case ScopeAny:
		return scope, nil
	case ScopeOwn:
		if ownerID != "" && ownerID == actor.ID {
			return scope, nil
		}
		return ScopeNone, errors.PermissionDenied(fmt.Sprintf("%s is limited to your own resources", action)).
			WithDetail("action", string(action))
	default:
		return ScopeNone, errors.PermissionDenied(fmt.Sprintf("role %s may not perform %s", actor.Role, action)).
			WithDetail("action", string(action))
	}
}

// Allowed reports whether actor holds any grant for action.
func (t *Table) Allowed(actor identity.Actor, action Action) bool {
	return t.Grant(actor, action) != ScopeNone
}
