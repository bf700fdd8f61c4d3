package segment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

type mockUserRepo struct {
	users []model.User
	err   error
}

func (m *mockUserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	return m.users, m.err
}

func fixtureUsers() []model.User {
	return []model.User{
		{ID: 1, Name: "Alice", Tags: []string{"vip", "tw"}},
		{ID: 2, Name: "Bob", Tags: []string{"vip"}},
		{ID: 3, Name: "Carol", Tags: []string{"tw", "jp"}},
		{ID: 4, Name: "David", Tags: nil},
		{ID: 5, Name: "Eve", Tags: []string{"jp", "vip", "tw"}},
	}
}

func ids(users []model.User) []int {
	out := []int{}
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		rule string
		want Rule
	}{
		{"", nil},
		{"  ", nil},
		{"vip", Rule{"vip"}},
		{"vip,tw", Rule{"vip", "tw"}},
		{" vip , tw ,", Rule{"vip", "tw"}},
		{"vip,,vip,tw", Rule{"vip", "tw"}},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRule(tt.rule))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want []int
	}{
		{name: "empty rule matches everyone", rule: "", want: []int{1, 2, 3, 4, 5}},
		{name: "single tag", rule: "vip", want: []int{1, 2, 5}},
		{name: "AND of tags", rule: "vip,tw", want: []int{1, 5}},
		{name: "unknown tag", rule: "nope", want: []int{}},
		{name: "prefix does not match", rule: "vi", want: []int{}},
		{name: "whitespace tolerated", rule: " tw , jp ", want: []int{3, 5}},
	}

	resolver := NewResolver(&mockUserRepo{users: fixtureUsers()})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestResolve_PropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	resolver := NewResolver(&mockUserRepo{err: boom})

	_, err := resolver.Resolve(context.Background(), "vip")
	assert.ErrorIs(t, err, boom)
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "vip,tw", ParseRule(" vip, tw ").String())
}
