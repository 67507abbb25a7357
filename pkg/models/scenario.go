// Package models defines the domain types shared by the automation engine, the editor API and persistence.
package models

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type ScenarioStatus string

const (
	ScenarioStatusActive   ScenarioStatus = "active"
	ScenarioStatusInactive ScenarioStatus = "inactive"
)

// Scenario is a named automation unit bound to one fanpage. The editable copy is the draft;
// the engine only ever runs the snapshot stored in a ScenarioVersion.
type Scenario struct {
	ID               string         `json:"id"`
	PageID           string         `json:"page_id"                    validate:"required"`
	Name             string         `json:"name"                       validate:"required,min=1"`
	Description      string         `json:"description,omitempty"`
	ProductGroupID   string         `json:"product_group_id,omitempty"`
	Status           ScenarioStatus `json:"status"                     validate:"required,oneof=active inactive"`
	Priority         int            `json:"priority"                   validate:"min=0"`
	AIEnabled        bool           `json:"ai_enabled"`
	OpenAIConfigID   string         `json:"openai_config_id,omitempty"`
	Triggers         []*Trigger     `json:"triggers"                   validate:"dive"`
	SubScripts       []*SubScript   `json:"sub_scripts"                validate:"dive"`
	Nodes            []*Node        `json:"nodes"                      validate:"dive"`
	Links            []*Link        `json:"links"                      validate:"dive"`
	Variables        []*Variable    `json:"variables"                  validate:"dive"`
	PublishedVersion int            `json:"published_version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ScenarioVersion is an immutable published snapshot of a scenario.
type ScenarioVersion struct {
	ScenarioID string    `json:"scenario_id"`
	Version    int       `json:"version"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	Snapshot   *Scenario `json:"snapshot"`
}

func (s *Scenario) IsActive() bool {
	return s.Status == ScenarioStatusActive
}

// Node returns the node with the given id, or nil.
func (s *Scenario) Node(id string) *Node {
	for _, node := range s.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EntryNode returns the first node flagged as an entry point.
func (s *Scenario) EntryNode() *Node {
	for _, node := range s.Nodes {
		if node.IsEntry {
			return node
		}
	}

	return nil
}

// OutgoingLinks returns the links leaving nodeID ordered by OrderIndex. Links sharing an index keep
// their declaration order.
func (s *Scenario) OutgoingLinks(nodeID string) []*Link {
	links := make([]*Link, 0)

	for _, link := range s.Links {
		if link.FromNodeID == nodeID {
			links = append(links, link)
		}
	}

	sortLinks(links)

	return links
}

// Variable returns the declared variable for key, or nil.
func (s *Scenario) Variable(key string) *Variable {
	for _, variable := range s.Variables {
		if variable.Key == key {
			return variable
		}
	}

	return nil
}

// Trigger returns the trigger with the given id, or nil.
func (s *Scenario) Trigger(id string) *Trigger {
	for _, trigger := range s.Triggers {
		if trigger.ID == id {
			return trigger
		}
	}

	return nil
}

// Clone returns a deep copy of the scenario, used to freeze published snapshots and to restore drafts.
func (s *Scenario) Clone() (*Scenario, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenario %s: %w", s.ID, err)
	}

	var clone Scenario

	err = json.Unmarshal(data, &clone)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario %s: %w", s.ID, err)
	}

	return &clone, nil
}

// Link is a directed, optionally conditional edge between two nodes.
type Link struct {
	ID         string `json:"id"`
	FromNodeID string `json:"from_node_id" validate:"required"`
	ToNodeID   string `json:"to_node_id"   validate:"required"`
	Condition  string `json:"condition,omitempty"`
	OrderIndex int    `json:"order_index"`
}

func sortLinks(links []*Link) {
	slices.SortStableFunc(links, func(a, b *Link) int {
		return cmp.Compare(a.OrderIndex, b.OrderIndex)
	})
}
