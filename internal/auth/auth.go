package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Identity is the authenticated caller. Subject is the account name for
// recipients.
type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type TokenValidator interface {
	Validate(ctx context.Context, token string) (Identity, bool)
}

// StaticTokenValidator accepts a fixed set of bearer tokens configured as
// "token:subject:role|role,...".
type StaticTokenValidator struct {
	tokens map[string]Identity
}

func NewStaticTokenValidator(spec string) (*StaticTokenValidator, error) {
	validator := &StaticTokenValidator{tokens: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static token entry %q: expected token:subject:role|role", entry)
		}
		token := strings.TrimSpace(parts[0])
		subject := strings.TrimSpace(parts[1])
		if token == "" || subject == "" {
			return nil, fmt.Errorf("invalid static token entry %q: empty token/subject", entry)
		}
		roles := splitRoles(parts[2])
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static token entry %q: at least one role is required", entry)
		}
		validator.tokens[token] = Identity{Subject: subject, Roles: roles}
	}

	return validator, nil
}

func (v *StaticTokenValidator) Validate(_ context.Context, token string) (Identity, bool) {
	identity, ok := v.tokens[token]
	return identity, ok
}

func (v *StaticTokenValidator) Empty() bool {
	return len(v.tokens) == 0
}

// Chain tries each validator in order.
type Chain []TokenValidator

func (c Chain) Validate(ctx context.Context, token string) (Identity, bool) {
	for _, validator := range c {
		if validator == nil {
			continue
		}
		if identity, ok := validator.Validate(ctx, token); ok {
			return identity, true
		}
	}
	return Identity{}, false
}

func splitRoles(raw string) []string {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	roles := make([]string, 0, len(parts))
	for _, role := range parts {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}
