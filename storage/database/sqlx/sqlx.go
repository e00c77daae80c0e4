// Package sqlxrepos implements the repositories on PostgreSQL, through sqlx.
package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
)

// conds accumulates AND-ed conditions along with their positional args.
type conds struct {
	exprs []string
	args  []interface{}
}

// add appends expr, where every `?` is replaced by the next positional placeholder.
func (c *conds) add(expr string, args ...interface{}) {
	for _, arg := range args {
		c.args = append(c.args, arg)
		expr = strings.Replace(expr, "?", fmt.Sprintf("$%d", len(c.args)), 1)
	}
	c.exprs = append(c.exprs, "("+expr+")")
}

func (c *conds) where() string {
	if len(c.exprs) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.exprs, " AND ")
}

// page appends LIMIT/OFFSET, returning the clause and the extended args.
func (c *conds) page(pr core.PageRequest) (string, []interface{}) {
	args := append(append([]interface{}{}, c.args...), pr.Limit(), pr.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func orderBy(orderings []core.DBOrdering, columns map[string]string, fallback string) string {
	orderings = core.CleanOrderings(orderings, columns)
	if len(orderings) == 0 {
		return " ORDER BY " + fallback
	}
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		list = append(list, ord.String())
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// trapNoRowsErr maps psql "no rows" err to core.ErrNotFound.
// A closed connection pool is unrecoverable and becomes a shutdown error.
func trapNoRowsErr(err error, msg string) error {
	switch errors.Cause(err) {
	case sql.ErrNoRows:
		return core.ErrNotFound
	case sql.ErrConnDone:
		return core.NewShutdownError(msg, err)
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsAffected returns core.ErrNotFound when res did not touch any row.
func trapNoRowsAffected(res sql.Result, err error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// validID reports whether id can be compared against a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
