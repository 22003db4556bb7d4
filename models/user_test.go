package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantID string
	}{
		{"id field", `{"id":"1","username":"ann","age":30,"location":"nyc"}`, "1"},
		{"legacy _id field", `{"_id":"abc","username":"ann","age":30,"location":"nyc"}`, "abc"},
		{"id wins over _id", `{"id":"1","_id":"abc","username":"ann","age":30,"location":"nyc"}`, "1"},
		{"numeric id", `{"id":2,"username":"ann","age":30,"location":"nyc"}`, "2"},
		{"numeric legacy _id", `{"_id":17,"username":"ann","age":30,"location":"nyc"}`, "17"},
		{"null id falls back to _id", `{"id":null,"_id":"abc","username":"ann","age":30,"location":"nyc"}`, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u User
			require.NoError(t, json.Unmarshal([]byte(tt.body), &u))
			assert.Equal(t, tt.wantID, u.ID)
			assert.Equal(t, "ann", u.Username)
			assert.Equal(t, 30, u.Age)
			assert.Equal(t, "nyc", u.Location)
		})
	}
}

func TestUser_UnmarshalJSONRejectsOtherIDTypes(t *testing.T) {
	for _, body := range []string{
		`{"id":true,"username":"ann"}`,
		`{"id":{"$oid":"1"},"username":"ann"}`,
		`{"_id":[1],"username":"ann"}`,
	} {
		var u User
		assert.Error(t, json.Unmarshal([]byte(body), &u), body)
	}
}

func TestUser_MarshalOmitsZeroCreatedAt(t *testing.T) {
	data, err := json.Marshal(User{ID: "1", Username: "ann", Age: 30, Location: "nyc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","username":"ann","age":30,"location":"nyc"}`, string(data))
}

func TestDraft_Input(t *testing.T) {
	d := Draft{Username: "  bob ", Age: 25, Location: "la\n", EditID: "2"}

	assert.True(t, d.Editing())
	assert.Equal(t, UserInput{Username: "bob", Age: 25, Location: "la"}, d.Input())
	assert.False(t, Draft{}.Editing())
}
