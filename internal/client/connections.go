package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thammuio/flowgate/internal/constants"
	flowhttp "github.com/thammuio/flowgate/internal/http"
	"github.com/thammuio/flowgate/pkg/flow"
)

// ConnectionsClient implements the flow.ConnectionsClient interface.
type ConnectionsClient struct {
	httpClient *flowhttp.Client
	gate       *safetyGate
	probe      *versionProbe
}

// NewConnectionsClient creates a new connections client.
func NewConnectionsClient(httpClient *flowhttp.Client, gate *safetyGate, probe *versionProbe) *ConnectionsClient {
	return &ConnectionsClient{
		httpClient: httpClient,
		gate:       gate,
		probe:      probe,
	}
}

// Get implements flow.ConnectionsClient.Get.
func (c *ConnectionsClient) Get(ctx context.Context, connectionID string) (*flow.Connection, error) {
	resp, err := c.httpClient.Get(ctx, "/connections/"+connectionID, nil)
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	var connection flow.Connection

	err = json.Unmarshal(resp.Body, &connection)
	if err != nil {
		return nil, fmt.Errorf("parsing connection response: %w", err)
	}

	return &connection, nil
}

// Status implements flow.ConnectionsClient.Status.
func (c *ConnectionsClient) Status(ctx context.Context, connectionID string) (*flow.ConnectionStatus, error) {
	resp, err := c.httpClient.Get(ctx, "/connections/"+connectionID+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("getting connection status: %w", err)
	}

	var status flow.ConnectionStatus

	err = json.Unmarshal(resp.Body, &status)
	if err != nil {
		return nil, fmt.Errorf("parsing connection status response: %w", err)
	}

	return &status, nil
}

// Delete implements flow.ConnectionsClient.Delete. The queue must be
// empty: a fresh status read happens immediately before the delete, and a
// non-empty queue aborts before any delete call is issued.
func (c *ConnectionsClient) Delete(ctx context.Context, connectionID string) error {
	err := c.gate.checkWrite()
	if err != nil {
		return err
	}

	status, err := c.Status(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("checking queue before delete: %w", err)
	}

	if !status.Empty() {
		return &flow.PreconditionFailedError{
			Condition: "queue not empty",
			EntityID:  connectionID,
			Detail:    fmt.Sprintf("%d items queued", status.AggregateSnapshot.QueuedCount),
		}
	}

	connection, err := c.Get(ctx, connectionID)
	if err != nil {
		return err
	}

	query := revisionQuery(connection.Revision)

	capabilities, _ := c.probe.Capabilities(ctx)
	if capabilities.DisconnectedAck {
		query.Set("disconnectedNodeAcknowledged", constants.BooleanFalse)
	}

	_, err = c.httpClient.DeleteWithQuery(ctx, "/connections/"+connectionID, query)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}

	return nil
}
