package postgres

import (
	"testing"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestPlanWhere(t *testing.T) {
	where, args := planWhere(types.NewPlanFilter())
	assert.Empty(t, where)
	assert.Empty(t, args)

	filter := types.NewPlanFilter()
	filter.ActiveOnly = true
	filter.PlanKeys = []string{"basic", "pro"}
	where, args = planWhere(filter)
	assert.Equal(t, " WHERE active AND key = ANY($1)", where)
	assert.Len(t, args, 1)
}

func TestMarshalMetadata(t *testing.T) {
	var empty types.Metadata

	data, err := marshalMetadata(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))

	data, err = marshalMetadata(types.Metadata{"tier": "gold"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"gold"}`, string(data))

	_, err = marshalMetadata(map[string]any{"bad": make(chan int)})
	assert.True(t, ierr.IsValidation(err))
}

func TestExpectOneRow(t *testing.T) {
	assert.NoError(t, expectOneRow(fakeResult(1), "plan", "basic"))

	err := expectOneRow(fakeResult(0), "plan", "basic")
	assert.True(t, ierr.IsNotFound(err))
	assert.Equal(t, "Plan basic was not found", ierr.GetHint(err))
}
