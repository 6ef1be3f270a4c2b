package models

import "time"

// Record is a typed business record governed by a workflow. State and
// DocStatus are mutated exclusively through the transition engine;
// direct mutation bypasses every invariant the engine enforces.
type Record struct {
	Type        string         `json:"type"  validate:"required"`
	ID          string         `json:"id"`
	State       string         `json:"state"`
	DocStatus   DocStatus      `json:"docstatus"`
	Owner       string         `json:"owner"`
	Fields      map[string]any `json:"fields"`
	Comments    []Comment      `json:"comments,omitempty"`
	AmendedFrom string         `json:"amended_from,omitempty"`
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Clone returns a deep enough copy for staging mutations: the fields
// map and comments slice are copied, values are shared.
func (r *Record) Clone() *Record {
	clone := *r

	clone.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		clone.Fields[k] = v
	}

	clone.Comments = make([]Comment, len(r.Comments))
	copy(clone.Comments, r.Comments)

	return &clone
}

// Comment is an audit trail entry attached to a record.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the acting user: an opaque id plus the set of roles it
// holds.
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the identity holds the given role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// IsCreator reports whether the identity created the record.
func (i Identity) IsCreator(record *Record) bool {
	return record != nil && record.Owner != "" && record.Owner == i.ID
}
