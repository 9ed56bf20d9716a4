package types

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrNullNameSet is returned when an association field is sent as JSON null.
var ErrNullNameSet = errors.New("this field may not be null")

// NameSet is an association payload that distinguishes three states:
// the field was absent (Present is false), the field was an empty list
// (Present is true, Names is empty), or the field carried names.
//
// On the wire it is a list of objects: [{"name": "vegan"}, ...].
type NameSet struct {
	Present bool
	Names   []string
}

// Names returns a present NameSet carrying the given names.
func Names(names ...string) NameSet {
	return NameSet{Present: true, Names: names}
}

// UnmarshalJSON is only invoked when the key exists in the payload, which
// is what marks the set as present.
func (n *NameSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ErrNullNameSet
	}
	var items []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	n.Present = true
	n.Names = make([]string, 0, len(items))
	for _, item := range items {
		n.Names = append(n.Names, item.Name)
	}
	return nil
}

// MarshalJSON renders the set in its wire shape. An absent set renders as null.
func (n NameSet) MarshalJSON() ([]byte, error) {
	if !n.Present {
		return []byte("null"), nil
	}
	items := make([]map[string]string, 0, len(n.Names))
	for _, name := range n.Names {
		items = append(items, map[string]string{"name": name})
	}
	return json.Marshal(items)
}
