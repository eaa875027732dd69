package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	flowhttp "github.com/thammuio/flowgate/internal/http"
	"github.com/thammuio/flowgate/pkg/flow"
)

// revisionCoordinator enforces the fetch-then-mutate contract: every
// mutation reads the entity immediately before writing, attaches that
// exact revision, and sends the write once. A 409 surfaces as a
// ConflictError carrying the freshest snapshot the client could obtain;
// whether to retry is the caller's decision.
type revisionCoordinator struct {
	httpClient *flowhttp.Client
}

func newRevisionCoordinator(httpClient *flowhttp.Client) *revisionCoordinator {
	return &revisionCoordinator{httpClient: httpClient}
}

// fetch reads the entity with its current revision.
func (rc *revisionCoordinator) fetch(ctx context.Context, entityID string) (*flow.Entity, error) {
	resp, err := rc.httpClient.Get(ctx, "/entities/"+entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}

	var entity flow.Entity

	err = json.Unmarshal(resp.Body, &entity)
	if err != nil {
		return nil, fmt.Errorf("parsing entity response: %w", err)
	}

	return &entity, nil
}

// mutate runs one fetch-then-write cycle. The build callback receives the
// freshly fetched entity and returns the mutation payload carrying its
// revision verbatim.
func (rc *revisionCoordinator) mutate(ctx context.Context, entityID string, build func(*flow.Entity) interface{}) (*flow.Entity, error) {
	entity, err := rc.fetch(ctx, entityID)
	if err != nil {
		return nil, err
	}

	payload := build(entity)

	resp, err := rc.httpClient.Put(ctx, "/entities/"+entityID, payload)
	if err != nil {
		if flow.IsConflict(err) {
			return nil, rc.conflict(ctx, entityID, err)
		}

		return nil, fmt.Errorf("updating entity: %w", err)
	}

	var updated flow.Entity

	err = json.Unmarshal(resp.Body, &updated)
	if err != nil {
		return nil, fmt.Errorf("parsing entity response: %w", err)
	}

	return &updated, nil
}

// conflict refetches once so the returned error carries the freshest
// snapshot available. The refetch is best effort; the conflict stands
// either way.
func (rc *revisionCoordinator) conflict(ctx context.Context, entityID string, err error) error {
	apiErr := &flow.APIError{}
	if !errors.As(err, &apiErr) {
		return err
	}

	latest, fetchErr := rc.fetch(ctx, entityID)
	if fetchErr != nil {
		latest = nil
	}

	return &flow.ConflictError{APIError: apiErr, Latest: latest}
}

// revisionQuery renders a revision as the query parameters deletes carry.
func revisionQuery(revision *flow.Revision) url.Values {
	query := url.Values{}

	if revision != nil {
		query.Set("version", strconv.FormatInt(revision.Version, 10))

		if revision.ClientID != "" {
			query.Set("clientId", revision.ClientID)
		}
	}

	return query
}
