package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/thammuio/flowgate/internal/constants"
	flowhttp "github.com/thammuio/flowgate/internal/http"
	"github.com/thammuio/flowgate/pkg/flow"
)

// GroupsClient implements the flow.GroupsClient interface.
type GroupsClient struct {
	httpClient  *flowhttp.Client
	gate        *safetyGate
	probe       *versionProbe
	entities    *EntitiesClient
	concurrency int
}

// NewGroupsClient creates a new groups client. Bulk fan-out reuses the
// entities client so every member write follows the fetch-then-mutate
// contract.
func NewGroupsClient(httpClient *flowhttp.Client, gate *safetyGate, probe *versionProbe, entities *EntitiesClient, concurrency int) *GroupsClient {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrencyLimit
	}

	return &GroupsClient{
		httpClient:  httpClient,
		gate:        gate,
		probe:       probe,
		entities:    entities,
		concurrency: concurrency,
	}
}

// Get implements flow.GroupsClient.Get.
func (c *GroupsClient) Get(ctx context.Context, groupID string) (*flow.Group, error) {
	resp, err := c.httpClient.Get(ctx, "/groups/"+groupID, nil)
	if err != nil {
		return nil, fmt.Errorf("getting group: %w", err)
	}

	var group flow.Group

	err = json.Unmarshal(resp.Body, &group)
	if err != nil {
		return nil, fmt.Errorf("parsing group response: %w", err)
	}

	return &group, nil
}

// ListEntities implements flow.GroupsClient.ListEntities.
func (c *GroupsClient) ListEntities(ctx context.Context, groupID string) ([]flow.Entity, error) {
	resp, err := c.httpClient.Get(ctx, "/groups/"+groupID+"/entities", nil)
	if err != nil {
		return nil, fmt.Errorf("listing group entities: %w", err)
	}

	var list flow.EntityList

	err = json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing group entities response: %w", err)
	}

	return list.Entities, nil
}

// ListConnections implements flow.GroupsClient.ListConnections.
func (c *GroupsClient) ListConnections(ctx context.Context, groupID string) ([]flow.Connection, error) {
	resp, err := c.httpClient.Get(ctx, "/groups/"+groupID+"/connections", nil)
	if err != nil {
		return nil, fmt.Errorf("listing group connections: %w", err)
	}

	var list flow.ConnectionList

	err = json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing group connections response: %w", err)
	}

	return list.Connections, nil
}

// Summary implements flow.GroupsClient.Summary. Services with a summary
// endpoint answer in one call; everything else gets a client-side roll-up
// flagged Degraded.
func (c *GroupsClient) Summary(ctx context.Context, groupID string) (*flow.GroupSummary, error) {
	capabilities, err := c.probe.Capabilities(ctx)
	if err == nil && capabilities.GroupSummary {
		return c.fetchSummary(ctx, groupID)
	}

	return c.rollupSummary(ctx, groupID)
}

// fetchSummary reads the service-side roll-up.
func (c *GroupsClient) fetchSummary(ctx context.Context, groupID string) (*flow.GroupSummary, error) {
	resp, err := c.httpClient.Get(ctx, "/groups/"+groupID+"/summary", nil)
	if err != nil {
		return nil, fmt.Errorf("getting group summary: %w", err)
	}

	var summary flow.GroupSummary

	err = json.Unmarshal(resp.Body, &summary)
	if err != nil {
		return nil, fmt.Errorf("parsing group summary response: %w", err)
	}

	if summary.GroupID == "" {
		summary.GroupID = groupID
	}

	return &summary, nil
}

// rollupSummary computes the roll-up from member listings.
func (c *GroupsClient) rollupSummary(ctx context.Context, groupID string) (*flow.GroupSummary, error) {
	entities, err := c.ListEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}

	connections, err := c.ListConnections(ctx, groupID)
	if err != nil {
		return nil, err
	}

	summary := &flow.GroupSummary{
		GroupID:     groupID,
		EntityCount: len(entities),
		Degraded:    true,
	}

	for _, entity := range entities {
		switch entity.Component.State {
		case flow.StateRunning:
			summary.RunningCount++
		case flow.StateStopped:
			summary.StoppedCount++
		case flow.StateDisabled:
			summary.DisabledCount++
		}
	}

	for _, connection := range connections {
		if connection.Status != nil {
			summary.QueuedCount += connection.Status.AggregateSnapshot.QueuedCount
		}
	}

	return summary, nil
}

// Bulk implements flow.GroupsClient.Bulk. Members are processed with
// bounded concurrency and one result is collected per member; a failing
// member never aborts the rest.
func (c *GroupsClient) Bulk(ctx context.Context, groupID string, verb flow.Verb) (*flow.BulkJob, error) {
	err := c.gate.checkVerb(verb)
	if err != nil {
		return nil, err
	}

	members, err := c.ListEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}

	job := &flow.BulkJob{
		GroupID: groupID,
		Verb:    verb,
		Results: make([]flow.BulkResult, len(members)),
	}

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, c.concurrency)

	for i, member := range members {
		waitGroup.Add(1)

		go func(index int, entity flow.Entity) {
			defer waitGroup.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			job.Results[index] = c.applyVerb(ctx, entity, verb)
		}(i, member)
	}

	waitGroup.Wait()
	job.Finalize()

	return job, nil
}

// applyVerb runs one member write and records its outcome.
func (c *GroupsClient) applyVerb(ctx context.Context, entity flow.Entity, verb flow.Verb) flow.BulkResult {
	started := time.Now()

	result := flow.BulkResult{
		EntityID: entity.ID,
		Name:     entity.Component.Name,
	}

	_, err := c.entities.SetState(ctx, entity.ID, verb)

	result.Duration = time.Since(started)

	switch {
	case err == nil:
		result.Success = true
	case flow.IsConflict(err):
		result.Conflict = true
		result.Error = err.Error()
	default:
		result.Error = err.Error()
	}

	return result
}
