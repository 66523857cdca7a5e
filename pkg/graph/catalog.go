package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Catalog projects committed listings into the graph: Listing nodes
// with edges to their Seller and Model. The projection is best-effort
// and rebuilt from Postgres on demand; the relational store stays the
// source of truth.
type Catalog struct {
	client *Client
}

// NewCatalog creates a new catalog projection
func NewCatalog(client *Client) *Catalog {
	return &Catalog{client: client}
}

// UpsertListing merges the listing node and its seller/model edges
func (c *Catalog) UpsertListing(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Catalog.UpsertListing")
	defer span.End()

	cypher := `
		MERGE (l:Listing {id: $id, tenant_id: $tenant_id})
		SET l.variant = $variant,
		    l.make_name = $make_name,
		    l.model_name = $model_name,
		    l.updated_at = timestamp()
		MERGE (s:Seller {id: $seller_id, tenant_id: $tenant_id})
		MERGE (m:Model {id: $model_id, tenant_id: $tenant_id})
		SET m.name = $model_name
		MERGE (s)-[:OFFERS]->(l)
		MERGE (l)-[:OF_MODEL]->(m)
	`

	params := map[string]any{
		"id":         listing.ID,
		"tenant_id":  listing.TenantID,
		"seller_id":  listing.SellerID,
		"model_id":   listing.ModelID,
		"variant":    listing.Variant,
		"make_name":  listing.MakeName,
		"model_name": listing.ModelName,
	}

	_, err := c.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	return err
}

// RemoveListing detaches and deletes the listing node
func (c *Catalog) RemoveListing(ctx context.Context, tenantID, listingID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Catalog.RemoveListing")
	defer span.End()

	cypher := `
		MATCH (l:Listing {id: $id, tenant_id: $tenant_id})
		DETACH DELETE l
	`

	_, err := c.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{"id": listingID, "tenant_id": tenantID})
	})
	return err
}
