package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// User represents a user record in the remote collection
type User struct {
	ID        string    `json:"id"` // Assigned by the server, also the shard key
	Username  string    `json:"username"`
	Age       int       `json:"age"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// UnmarshalJSON accepts both "id" and "_id" as the record identifier, given
// either as a string or as a number
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var raw struct {
		plain
		ID       json.RawMessage `json:"id"`
		LegacyID json.RawMessage `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.plain)

	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}
	if id == "" {
		if id, err = decodeID(raw.LegacyID); err != nil {
			return err
		}
	}
	u.ID = id
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or a number, got %s", raw)
	}
	return n.String(), nil
}

// UserInput is the request body for creating or updating a user
type UserInput struct {
	Username string `json:"username" validate:"required"`
	Age      int    `json:"age" validate:"gt=0"`
	Location string `json:"location" validate:"required"`
}

// Normalize trims surrounding whitespace from the text fields
func (in UserInput) Normalize() UserInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Location = strings.TrimSpace(in.Location)
	return in
}

// Draft holds the unsaved form values for creating or editing a user.
// An empty EditID means the draft creates a new record.
type Draft struct {
	Username string
	Age      int // zero means not entered
	Location string
	EditID   string
}

// Editing reports whether the draft refers to an existing record
func (d Draft) Editing() bool {
	return d.EditID != ""
}

// Input converts the draft into a request body
func (d Draft) Input() UserInput {
	return UserInput{Username: d.Username, Age: d.Age, Location: d.Location}.Normalize()
}
