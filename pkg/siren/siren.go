// Package siren models the hypermedia representations served by the protocol
// daemon (https://github.com/kevinswiber/siren).
package siren

import (
	"encoding/json"
	"slices"
	"strings"
)

const ContentType = "application/vnd.siren+json"

type Field struct {
	Name  string   `json:"name"`
	Class []string `json:"class,omitempty"`
	Type  string   `json:"type,omitempty"`
	Value any      `json:"value,omitempty"`
	Title string   `json:"title,omitempty"`
}

func (field Field) HasClass(class ...string) bool {
	for _, c := range class {
		if !slices.Contains(field.Class, c) {
			return false
		}
	}
	return true
}

type Action struct {
	Name   string   `json:"name"`
	Class  []string `json:"class,omitempty"`
	Method string   `json:"method,omitempty"`
	Href   string   `json:"href"`
	Title  string   `json:"title,omitempty"`
	Type   string   `json:"type,omitempty"`
	Fields []Field  `json:"fields,omitempty"`
}

// HttpMethod defaults to GET like siren does.
func (action Action) HttpMethod() string {
	if action.Method == "" {
		return "GET"
	}
	return strings.ToUpper(action.Method)
}

type Link struct {
	Rel   []string `json:"rel"`
	Href  string   `json:"href"`
	Class []string `json:"class,omitempty"`
	Title string   `json:"title,omitempty"`
	Type  string   `json:"type,omitempty"`
}

func (link Link) Is(rel string) bool {
	return slices.Contains(link.Rel, rel)
}

type Properties map[string]any

// Lookup walks nested objects, e.g. Lookup("state", "communication", "status").
func (properties Properties) Lookup(path ...string) (any, bool) {
	var current any = map[string]any(properties)
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (properties Properties) String(path ...string) string {
	value, ok := properties.Lookup(path...)
	if !ok {
		return ""
	}
	str, _ := value.(string)
	return str
}

// State is the nested "state" object the daemon uses for the status of the
// individual swap components (communication, alpha ledger, beta ledger).
type State map[string]any

func (state State) Lookup(path ...string) (any, bool) {
	return Properties(state).Lookup(path...)
}

func (state State) String(path ...string) string {
	return Properties(state).String(path...)
}

// SubEntity is either an embedded link (Href set) or an embedded representation.
type SubEntity struct {
	Rel        []string    `json:"rel"`
	Href       string      `json:"href,omitempty"`
	Class      []string    `json:"class,omitempty"`
	Properties Properties  `json:"properties,omitempty"`
	Entities   []SubEntity `json:"entities,omitempty"`
	Actions    []Action    `json:"actions,omitempty"`
	Links      []Link      `json:"links,omitempty"`
	Title      string      `json:"title,omitempty"`
}

func (entity SubEntity) IsLink() bool {
	return entity.Href != ""
}

func (entity SubEntity) SelfLink() (string, bool) {
	if entity.IsLink() {
		return entity.Href, true
	}
	return findLink(entity.Links, "self")
}

type Entity struct {
	Class      []string    `json:"class,omitempty"`
	Properties Properties  `json:"properties,omitempty"`
	Entities   []SubEntity `json:"entities,omitempty"`
	Actions    []Action    `json:"actions,omitempty"`
	Links      []Link      `json:"links,omitempty"`
	Title      string      `json:"title,omitempty"`
}

func Parse(body []byte) (*Entity, error) {
	var entity Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (entity *Entity) State() State {
	value, ok := entity.Properties.Lookup("state")
	if !ok {
		return State{}
	}
	state, _ := value.(map[string]any)
	return state
}

func (entity *Entity) Status() string {
	return entity.Properties.String("status")
}

func (entity *Entity) Link(rel string) (string, bool) {
	return findLink(entity.Links, rel)
}

func (entity *Entity) SelfLink() (string, bool) {
	return entity.Link("self")
}

func (entity *Entity) ActionNames() []string {
	names := make([]string, 0, len(entity.Actions))
	for _, action := range entity.Actions {
		names = append(names, action.Name)
	}
	return names
}

func (entity *Entity) String() string {
	if entity == nil {
		return "<nil>"
	}
	encoded, err := json.Marshal(entity)
	if err != nil {
		return "<unencodable entity: " + err.Error() + ">"
	}
	return string(encoded)
}

func findLink(links []Link, rel string) (string, bool) {
	for _, link := range links {
		if link.Is(rel) {
			return link.Href, true
		}
	}
	return "", false
}
