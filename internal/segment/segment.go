// Package segment selects a campaign's audience from its segment rule.
//
// A rule is a comma-separated list of tags combined with AND: a user matches
// when every listed tag is one of the user's tags. Tags are compared exactly,
// so "vi" does not match a user tagged "vip". An empty rule matches everyone.
package segment

import (
	"context"
	"strings"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
)

// Rule is a parsed segment rule.
type Rule []string

// ParseRule splits a rule on commas, trims whitespace and drops empty and
// repeated tags. Order of first occurrence is kept.
func ParseRule(rule string) Rule {
	var tags Rule
	seen := map[string]bool{}
	for _, part := range strings.Split(rule, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// Matches reports whether u carries every tag of the rule.
func (r Rule) Matches(u model.User) bool {
	for _, tag := range r {
		if !u.HasTag(tag) {
			return false
		}
	}
	return true
}

// String renders the rule in its canonical comma-separated form.
func (r Rule) String() string {
	return strings.Join(r, ",")
}

// Resolver evaluates segment rules against the recipient set.
type Resolver struct {
	Users repository.UserRepositoryInterface
}

func NewResolver(users repository.UserRepositoryInterface) *Resolver {
	return &Resolver{Users: users}
}

// Resolve returns the recipients matching rule, in id order.
func (r *Resolver) Resolve(ctx context.Context, rule string) ([]model.User, error) {
	users, err := r.Users.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	parsed := ParseRule(rule)
	if len(parsed) == 0 {
		return users, nil
	}

	matched := make([]model.User, 0, len(users))
	for _, u := range users {
		if parsed.Matches(u) {
			matched = append(matched, u)
		}
	}
	return matched, nil
}
