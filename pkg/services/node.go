package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

var ErrNodeNotFound = errors.New("node not found")

// Node edits the nodes and links of a draft.
type Node struct {
	persistence persistence.Persistence
	now         func() time.Time
}

// NewNode creates a new node service.
func NewNode(persistence persistence.Persistence) *Node {
	return &Node{
		persistence: persistence,
		now:         time.Now,
	}
}

// CreateNode adds a node to the draft. A node marked as entry demotes the previous default entry.
func (n *Node) CreateNode(ctx context.Context, scenarioID string, node *models.Node) (*models.Node, error) {
	err := checkNode("CreateNode", node)
	if err != nil {
		return nil, err
	}

	scenario, err := n.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	if node.ID == "" {
		node.ID = models.NewID()
	}

	if scenario.Node(node.ID) != nil {
		return nil, NewValidationError("CreateNode", "DUPLICATE_NODE", fmt.Sprintf("node id %s is taken", node.ID), ErrDuplicateID)
	}

	scenario.Nodes = append(scenario.Nodes, node)

	err = n.save(ctx, scenario)
	if err != nil {
		return nil, err
	}

	return node, nil
}

// GetNode retrieves a specific node of the draft.
func (n *Node) GetNode(ctx context.Context, scenarioID, nodeID string) (*models.Node, error) {
	scenario, err := n.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	node := scenario.Node(nodeID)
	if node == nil {
		return nil, ErrNodeNotFound
	}

	return node, nil
}

// UpdateNode replaces a node's name, entry flag and content. The type may change with the content.
func (n *Node) UpdateNode(ctx context.Context, scenarioID, nodeID string, node *models.Node) (*models.Node, error) {
	if node != nil {
		node.ID = nodeID
	}

	err := checkNode("UpdateNode", node)
	if err != nil {
		return nil, err
	}

	scenario, err := n.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	existing := scenario.Node(nodeID)
	if existing == nil {
		return nil, ErrNodeNotFound
	}

	existing.Name = node.Name
	existing.Type = node.Type
	existing.IsEntry = node.IsEntry
	existing.Content = node.Content

	err = n.save(ctx, scenario)
	if err != nil {
		return nil, err
	}

	return existing, nil
}

// DeleteNode removes a node together with every link touching it.
func (n *Node) DeleteNode(ctx context.Context, scenarioID, nodeID string) error {
	scenario, err := n.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return err
	}

	if scenario.Node(nodeID) == nil {
		return ErrNodeNotFound
	}

	nodes := make([]*models.Node, 0, len(scenario.Nodes)-1)

	for _, node := range scenario.Nodes {
		if node.ID != nodeID {
			nodes = append(nodes, node)
		}
	}

	links := make([]*models.Link, 0, len(scenario.Links))

	for _, link := range scenario.Links {
		if link.FromNodeID != nodeID && link.ToNodeID != nodeID {
			links = append(links, link)
		}
	}

	scenario.Nodes = nodes
	scenario.Links = links

	return n.save(ctx, scenario)
}

// CreateLink connects two existing nodes of the draft.
func (n *Node) CreateLink(ctx context.Context, scenarioID string, link *models.Link) (*models.Link, error) {
	if link == nil || link.FromNodeID == "" || link.ToNodeID == "" {
		return nil, NewValidationError("CreateLink", "INVALID_LINK", "from_node_id and to_node_id are required", ErrInvalidRequest)
	}

	scenario, err := n.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	if scenario.Node(link.FromNodeID) == nil || scenario.Node(link.ToNodeID) == nil {
		return nil, NewValidationError("CreateLink", "DANGLING_LINK",
			fmt.Sprintf("link %s -> %s references a missing node", link.FromNodeID, link.ToNodeID), ErrDanglingLink)
	}

	if link.ID == "" {
		link.ID = models.NewID()
	}

	scenario.Links = append(scenario.Links, link)

	err = n.save(ctx, scenario)
	if err != nil {
		return nil, err
	}

	return link, nil
}

// DeleteLink removes a link from the draft.
func (n *Node) DeleteLink(ctx context.Context, scenarioID, linkID string) error {
	scenario, err := n.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return err
	}

	links := make([]*models.Link, 0, len(scenario.Links))

	for _, link := range scenario.Links {
		if link.ID != linkID {
			links = append(links, link)
		}
	}

	if len(links) == len(scenario.Links) {
		return NewValidationError("DeleteLink", "LINK_NOT_FOUND", fmt.Sprintf("link %s not found", linkID), ErrInvalidRequest)
	}

	scenario.Links = links

	return n.save(ctx, scenario)
}

func (n *Node) save(ctx context.Context, scenario *models.Scenario) error {
	scenario.UpdatedAt = n.now().UTC()

	err := n.persistence.Scenarios().Save(ctx, scenario)
	if err != nil {
		return fmt.Errorf("failed to save scenario %s: %w", scenario.ID, err)
	}

	return nil
}

func checkNode(op string, node *models.Node) error {
	if node == nil || node.Content == nil {
		return NewValidationError(op, "INVALID_NODE", "node content is required", ErrInvalidNodeContent)
	}

	if node.Type == "" {
		node.Type = node.Content.NodeType()
	}

	err := node.Validate()
	if err != nil {
		return NewValidationError(op, "INVALID_NODE", err.Error(), ErrInvalidNodeContent)
	}

	return nil
}
