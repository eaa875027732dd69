package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thammuio/flowgate/pkg/flow"
)

func TestNewQueryParams(t *testing.T) {
	t.Parallel()

	params := flow.NewQueryParams()

	assert.NotNil(t, params)
	assert.NotNil(t, params.Filters)
	assert.Zero(t, params.Page)
	assert.Zero(t, params.PerPage)
	assert.Empty(t, params.OrderBy)
}

func TestQueryParams_Builders(t *testing.T) {
	t.Parallel()

	params := flow.NewQueryParams().
		WithPage(2).
		WithPerPage(50).
		WithOrderBy("-name").
		WithFilter("state", "RUNNING", "STOPPED").
		WithFilter("type", "org.example.Ingest")

	assert.Equal(t, 2, params.Page)
	assert.Equal(t, 50, params.PerPage)
	assert.Equal(t, "-name", params.OrderBy)
	assert.Equal(t, []string{"RUNNING", "STOPPED"}, params.Filters["state"])
	assert.Equal(t, []string{"org.example.Ingest"}, params.Filters["type"])
}

func TestQueryParams_ToValues(t *testing.T) {
	t.Parallel()

	params := flow.NewQueryParams().
		WithPage(1).
		WithPerPage(25).
		WithOrderBy("name").
		WithFilter("state", "RUNNING", "STOPPED")

	values := params.ToValues()

	assert.Equal(t, "1", values.Get("page"))
	assert.Equal(t, "25", values.Get("per_page"))
	assert.Equal(t, "name", values.Get("order_by"))
	assert.Equal(t, "RUNNING,STOPPED", values.Get("state"))
}

func TestQueryParams_ToValuesEmpty(t *testing.T) {
	t.Parallel()

	values := flow.NewQueryParams().ToValues()
	assert.Empty(t, values)
}

func TestQueryParams_ToValuesNil(t *testing.T) {
	t.Parallel()

	var params *flow.QueryParams

	values := params.ToValues()
	assert.NotNil(t, values)
	assert.Empty(t, values)
}

func TestQueryParams_FilterOnZeroValue(t *testing.T) {
	t.Parallel()

	params := &flow.QueryParams{}
	params.WithFilter("state", "RUNNING")

	assert.Equal(t, []string{"RUNNING"}, params.Filters["state"])
}
