package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/services/iam"
)

func strPtr(s string) *string { return &s }

func fixtureIdentities() []models.Identity {
	hash := "$2a$12$hash"
	return []models.Identity{
		{ID: "1", Handle: "alice", PasswordHash: &hash, GivenName: "Alice", Elevated: true},
		{ID: "2", Handle: "bob", PasswordHash: &hash, FamilyName: "Builder"},
		{ID: "3", Handle: "Carol Danvers", Provider: strPtr("facebook"), ProviderID: strPtr("fb-3"), GivenName: "Carol"},
	}
}

func handles(ids []models.Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Handle)
	}
	return out
}

func TestFilterIdentities(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{name: "empty keeps all", expr: "", want: []string{"alice", "bob", "Carol Danvers"}},
		{name: "elevated", expr: "elevated == true", want: []string{"alice"}},
		{name: "provider linked", expr: `provider == "facebook"`, want: []string{"Carol Danvers"}},
		{name: "password only", expr: `provider == "" and elevated == false`, want: []string{"bob"}},
		{name: "given name", expr: `given_name == "Carol"`, want: []string{"Carol Danvers"}},
		{name: "either handle", expr: `handle == "alice" or handle == "bob"`, want: []string{"alice", "bob"}},
		{name: "no match", expr: `family_name == "Nobody"`, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := compileFilter(tt.expr)
			require.NoError(t, err)

			got, err := filterIdentities(fixtureIdentities(), match)
			require.NoError(t, err)
			assert.Equal(t, tt.want, handles(got))
		})
	}
}

func TestCompileFilterRejectsInvalidExpression(t *testing.T) {
	_, err := compileFilter("elevated ==")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter expression")
}

func TestAtLevel(t *testing.T) {
	assert.Equal(t, []string{"alice"}, handles(atLevel(fixtureIdentities(), iam.LevelElevated)))
	assert.Equal(t, []string{"bob", "Carol Danvers"}, handles(atLevel(fixtureIdentities(), iam.LevelStandard)))
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, iam.LevelElevated, levelOf(&models.Identity{Elevated: true}))
	assert.Equal(t, iam.LevelStandard, levelOf(&models.Identity{}))
	assert.Equal(t, "", providerOf(&models.Identity{}))
}
