package sqlxrepos

import (
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/masomo/lms/core"
)

func TestConds(t *testing.T) {
	var c conds
	assert.Equal(t, "", c.where())

	c.add("name ILIKE ? OR email ILIKE ?", "%a%", "%a%")
	c.add("parent_id IS NULL")
	c.add("is_active = ?", true)

	assert.Equal(t, " WHERE (name ILIKE $1 OR email ILIKE $2) AND (parent_id IS NULL) AND (is_active = $3)", c.where())
	assert.Equal(t, []interface{}{"%a%", "%a%", true}, c.args)

	limit, args := c.page(core.PageRequest{Page: 3, PerPage: 10})
	assert.Equal(t, " LIMIT $4 OFFSET $5", limit)
	assert.Equal(t, []interface{}{"%a%", "%a%", true, 10, 20}, args)
	assert.Len(t, c.args, 3, "page must not alter the condition args")
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name      string
		orderings []core.DBOrdering
		want      string
	}{
		{name: "fallback", want: " ORDER BY created_at DESC"},
		{
			name:      "unknown fields dropped",
			orderings: []core.DBOrdering{{Field: "password_hash"}, {Field: "1; DROP TABLE user"}},
			want:      " ORDER BY created_at DESC",
		},
		{
			name:      "mapped",
			orderings: []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "last_login"}},
			want:      " ORDER BY name ASC, last_login DESC",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, orderBy(tc.orderings, userOrderColumns, "created_at DESC"))
		})
	}
}

func TestTrapNoRowsErr(t *testing.T) {
	assert.Equal(t, core.ErrNotFound, trapNoRowsErr(sql.ErrNoRows, "finding"))
	assert.Equal(t, core.ErrNotFound, trapNoRowsErr(errors.Wrap(sql.ErrNoRows, "scanning"), "finding"))

	err := trapNoRowsErr(errors.New("boom"), "finding")
	assert.EqualError(t, err, "finding: boom")
	assert.False(t, core.IsShutdown(err))

	err = trapNoRowsErr(sql.ErrConnDone, "finding")
	assert.True(t, core.IsShutdown(errors.Wrap(err, "listing")))
	assert.EqualError(t, err, "finding: "+sql.ErrConnDone.Error())
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("0b7f5a3e-8c1e-4bb6-9f0c-2d6f3b1c7a10"))
	assert.False(t, validID(""))
	assert.False(t, validID("42"))
}
