package flow

// Entity run states reported and accepted by the flow service.
const (
	StateRunning  = "RUNNING"
	StateStopped  = "STOPPED"
	StateDisabled = "DISABLED"
)

// Verb is a run-state transition applied to one entity or to every entity in
// a group.
type Verb string

// Supported verbs.
const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbEnable  Verb = "enable"
	VerbDisable Verb = "disable"
)

// Verbs lists every verb the client understands, in display order.
func Verbs() []Verb {
	return []Verb{VerbStart, VerbStop, VerbEnable, VerbDisable}
}

// StateForVerb maps a verb to the run state it requests.
func StateForVerb(verb Verb) (string, error) {
	switch verb {
	case VerbStart:
		return StateRunning, nil
	case VerbStop, VerbEnable:
		return StateStopped, nil
	case VerbDisable:
		return StateDisabled, nil
	default:
		return "", ErrUnknownVerb
	}
}

// Revision is the server-issued optimistic-locking marker attached to every
// mutable entity. The client treats it as opaque: it is fetched, attached to
// exactly one mutation, and never incremented or synthesized locally.
type Revision struct {
	Version  int64  `json:"version"            yaml:"version"`
	ClientID string `json:"clientId,omitempty" yaml:"client_id,omitempty"`
}

// Entity is the wire envelope for a versioned flow component.
type Entity struct {
	ID        string    `json:"id"        yaml:"id"`
	Revision  *Revision `json:"revision"  yaml:"revision"`
	Component Component `json:"component" yaml:"component"`
}

// Component carries the mutable portion of an entity.
type Component struct {
	ID         string            `json:"id,omitempty"         yaml:"id,omitempty"`
	GroupID    string            `json:"groupId,omitempty"    yaml:"group_id,omitempty"`
	Name       string            `json:"name,omitempty"       yaml:"name,omitempty"`
	Type       string            `json:"type,omitempty"       yaml:"type,omitempty"`
	State      string            `json:"state,omitempty"      yaml:"state,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// EntityUpdate names the component fields a mutation may change. Zero-valued
// fields are left untouched.
type EntityUpdate struct {
	Name       string            `json:"name,omitempty"       yaml:"name,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// EntityList is the collection envelope for entity queries.
type EntityList struct {
	Entities []Entity `json:"entities"        yaml:"entities"`
	Total    int      `json:"total,omitempty" yaml:"total,omitempty"`
}

// Connection is the wire envelope for a queue-bearing link between two
// entities. Status is included on reads and reflects the queue at the time of
// the GET.
type Connection struct {
	ID        string              `json:"id"               yaml:"id"`
	Revision  *Revision           `json:"revision"         yaml:"revision"`
	Component ConnectionComponent `json:"component"        yaml:"component"`
	Status    *ConnectionStatus   `json:"status,omitempty" yaml:"status,omitempty"`
}

// ConnectionComponent carries the mutable portion of a connection.
type ConnectionComponent struct {
	ID            string `json:"id,omitempty"            yaml:"id,omitempty"`
	GroupID       string `json:"groupId,omitempty"       yaml:"group_id,omitempty"`
	Name          string `json:"name,omitempty"          yaml:"name,omitempty"`
	SourceID      string `json:"sourceId,omitempty"      yaml:"source_id,omitempty"`
	DestinationID string `json:"destinationId,omitempty" yaml:"destination_id,omitempty"`
}

// ConnectionStatus is a point-in-time queue snapshot.
type ConnectionStatus struct {
	AggregateSnapshot QueueSnapshot `json:"aggregateSnapshot" yaml:"aggregate_snapshot"`
}

// QueueSnapshot reports buffered items on a connection.
type QueueSnapshot struct {
	QueuedCount int64  `json:"queuedCount"          yaml:"queued_count"`
	QueuedSize  string `json:"queuedSize,omitempty" yaml:"queued_size,omitempty"`
}

// Empty reports whether the queue held no items at snapshot time.
func (s *ConnectionStatus) Empty() bool {
	return s == nil || s.AggregateSnapshot.QueuedCount == 0
}

// ConnectionList is the collection envelope for connection queries.
type ConnectionList struct {
	Connections []Connection `json:"connections" yaml:"connections"`
}

// Group is the wire envelope for an entity group.
type Group struct {
	ID        string         `json:"id"        yaml:"id"`
	Revision  *Revision      `json:"revision"  yaml:"revision"`
	Component GroupComponent `json:"component" yaml:"component"`
}

// GroupComponent carries the mutable portion of a group.
type GroupComponent struct {
	ID            string `json:"id,omitempty"            yaml:"id,omitempty"`
	Name          string `json:"name,omitempty"          yaml:"name,omitempty"`
	ParentGroupID string `json:"parentGroupId,omitempty" yaml:"parent_group_id,omitempty"`
}

// GroupSummary rolls up run-state and queue counts across one group.
// Degraded marks a roll-up computed client-side because the service exposes
// no summary endpoint or capabilities are unknown.
type GroupSummary struct {
	GroupID       string `json:"groupId"            yaml:"group_id"`
	EntityCount   int    `json:"entityCount"        yaml:"entity_count"`
	RunningCount  int    `json:"runningCount"       yaml:"running_count"`
	StoppedCount  int    `json:"stoppedCount"       yaml:"stopped_count"`
	DisabledCount int    `json:"disabledCount"      yaml:"disabled_count"`
	QueuedCount   int64  `json:"queuedCount"        yaml:"queued_count"`
	Degraded      bool   `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// About reports service version and build information from the version
// probe endpoint.
type About struct {
	Version  string `json:"version"            yaml:"version"`
	Title    string `json:"title,omitempty"    yaml:"title,omitempty"`
	BuildTag string `json:"buildTag,omitempty" yaml:"build_tag,omitempty"`
}
