package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/thammuio/flowgate/internal/constants"
	flowhttp "github.com/thammuio/flowgate/internal/http"
	"github.com/thammuio/flowgate/pkg/flow"
)

// EntitiesClient implements the flow.EntitiesClient interface.
type EntitiesClient struct {
	httpClient *flowhttp.Client
	gate       *safetyGate
	probe      *versionProbe
	revisions  *revisionCoordinator
}

// NewEntitiesClient creates a new entities client.
func NewEntitiesClient(httpClient *flowhttp.Client, gate *safetyGate, probe *versionProbe, revisions *revisionCoordinator) *EntitiesClient {
	return &EntitiesClient{
		httpClient: httpClient,
		gate:       gate,
		probe:      probe,
		revisions:  revisions,
	}
}

// entityMutation is the wire payload for entity writes. The revision is
// always the one fetched immediately before the write.
type entityMutation struct {
	Revision  *flow.Revision `json:"revision"`
	Component flow.Component `json:"component"`
}

// Get implements flow.EntitiesClient.Get.
func (c *EntitiesClient) Get(ctx context.Context, entityID string) (*flow.Entity, error) {
	return c.revisions.fetch(ctx, entityID)
}

// List implements flow.EntitiesClient.List.
func (c *EntitiesClient) List(ctx context.Context, params *flow.QueryParams) (*flow.EntityList, error) {
	var query url.Values
	if params != nil {
		query = params.ToValues()
	}

	resp, err := c.httpClient.Get(ctx, "/entities", query)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	var list flow.EntityList

	err = json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing entity list response: %w", err)
	}

	return &list, nil
}

// Update implements flow.EntitiesClient.Update.
func (c *EntitiesClient) Update(ctx context.Context, entityID string, update *flow.EntityUpdate) (*flow.Entity, error) {
	err := c.gate.checkWrite()
	if err != nil {
		return nil, err
	}

	if update == nil {
		update = &flow.EntityUpdate{}
	}

	return c.revisions.mutate(ctx, entityID, func(entity *flow.Entity) interface{} {
		component := flow.Component{ID: entity.ID}

		if update.Name != "" {
			component.Name = update.Name
		}

		if update.Properties != nil {
			component.Properties = update.Properties
		}

		return &entityMutation{Revision: entity.Revision, Component: component}
	})
}

// SetState implements flow.EntitiesClient.SetState.
func (c *EntitiesClient) SetState(ctx context.Context, entityID string, verb flow.Verb) (*flow.Entity, error) {
	err := c.gate.checkVerb(verb)
	if err != nil {
		return nil, err
	}

	state, err := flow.StateForVerb(verb)
	if err != nil {
		return nil, err
	}

	return c.revisions.mutate(ctx, entityID, func(entity *flow.Entity) interface{} {
		return &entityMutation{
			Revision:  entity.Revision,
			Component: flow.Component{ID: entity.ID, State: state},
		}
	})
}

// Delete implements flow.EntitiesClient.Delete.
func (c *EntitiesClient) Delete(ctx context.Context, entityID string) error {
	err := c.gate.checkWrite()
	if err != nil {
		return err
	}

	entity, err := c.revisions.fetch(ctx, entityID)
	if err != nil {
		return err
	}

	query := revisionQuery(entity.Revision)

	// Services that track node membership want the acknowledgement flag
	// on deletes; older ones reject unknown parameters.
	capabilities, _ := c.probe.Capabilities(ctx)
	if capabilities.DisconnectedAck {
		query.Set("disconnectedNodeAcknowledged", constants.BooleanFalse)
	}

	_, err = c.httpClient.DeleteWithQuery(ctx, "/entities/"+entityID, query)
	if err != nil {
		if flow.IsConflict(err) {
			return c.revisions.conflict(ctx, entityID, err)
		}

		return fmt.Errorf("deleting entity: %w", err)
	}

	return nil
}
