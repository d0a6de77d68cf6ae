package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is returned when the requested company has no node in the
// tenant's graph mirror.
var ErrNotFound = errors.New("company not found in graph")

const (
	defaultNetworkDepth = 2
	maxNetworkDepth     = 4
)

// NodeResult is one node in a network response.
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelResult is one edge in a network response.
type RelResult struct {
	Type       string         `json:"type"`
	StartID    string         `json:"start_id"`
	EndID      string         `json:"end_id"`
	Properties map[string]any `json:"properties"`
}

// Network is the neighborhood of one company: every node and edge reachable
// within the requested number of hops.
type Network struct {
	CompanyID     string       `json:"company_id"`
	Depth         int          `json:"depth"`
	Nodes         []NodeResult `json:"nodes"`
	Relationships []RelResult  `json:"relationships"`
}

// QueryService reads the graph mirror
type QueryService struct {
	client *Client
	logger ectologger.Logger
}

// NewQueryService creates a new graph query service
func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{
		client: client,
		logger: logger,
	}
}

// CompanyNetwork returns all companies and deals reachable from the given
// merged company within depth hops. Depth is clamped to [1, 4]; zero or
// negative requests get the default of 2.
func (s *QueryService) CompanyNetwork(ctx context.Context, tenantID string, companyID string, depth int) (*Network, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.CompanyNetwork")
	defer span.End()

	depth = clampDepth(depth)

	// Depth cannot be a query parameter in a variable-length pattern, so it
	// is formatted in. It is a clamped integer, never caller text.
	cypher := fmt.Sprintf(`
		MATCH (c:Company {id: $id, tenant_id: $tenant_id})
		OPTIONAL MATCH p = (c)-[:PARTY_TO*1..%d]-(other {tenant_id: $tenant_id})
		RETURN c, p
	`, depth)

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"id":        companyID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}

		net := &Network{
			CompanyID: companyID,
			Depth:     depth,
			Nodes:     []NodeResult{},
		}
		seenNodes := make(map[string]bool)
		seenRels := make(map[string]bool)
		byElement := make(map[string]string)

		found := false
		for res.Next(ctx) {
			record := res.Record()

			if val, ok := record.Get("c"); ok && val != nil {
				found = true
				collectNode(val.(neo4j.Node), net, seenNodes, byElement)
			}
			if val, ok := record.Get("p"); ok && val != nil {
				collectPath(val.(neo4j.Path), net, seenNodes, seenRels, byElement)
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		return net, nil
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"company_id": companyID,
		}).Error("Failed to query company network")
		return nil, fmt.Errorf("failed to query company network: %w", err)
	}

	return result.(*Network), nil
}

func clampDepth(depth int) int {
	if depth <= 0 {
		return defaultNetworkDepth
	}
	if depth > maxNetworkDepth {
		return maxNetworkDepth
	}
	return depth
}

// collectNode adds a node once, keyed by its id property. The element id is
// remembered so edges can be translated from element ids to property ids.
func collectNode(node neo4j.Node, net *Network, seenNodes map[string]bool, byElement map[string]string) {
	id := fmt.Sprintf("%v", node.Props["id"])
	byElement[node.ElementId] = id
	if seenNodes[id] {
		return
	}
	seenNodes[id] = true
	net.Nodes = append(net.Nodes, NodeResult{
		ID:         id,
		Labels:     node.Labels,
		Properties: node.Props,
	})
}

func collectPath(path neo4j.Path, net *Network, seenNodes, seenRels map[string]bool, byElement map[string]string) {
	for _, node := range path.Nodes {
		collectNode(node, net, seenNodes, byElement)
	}
	for _, rel := range path.Relationships {
		if seenRels[rel.ElementId] {
			continue
		}
		seenRels[rel.ElementId] = true
		net.Relationships = append(net.Relationships, RelResult{
			Type:       rel.Type,
			StartID:    byElement[rel.StartElementId],
			EndID:      byElement[rel.EndElementId],
			Properties: rel.Props,
		})
	}
}
