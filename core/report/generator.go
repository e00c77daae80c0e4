package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/user"
)

type csvGenerator struct {
	deptSvc department.Service
	usrSvc  user.Service
	perPage int
}

// NewCSVGenerator returns the Generator of every report kind.
func NewCSVGenerator(conf *core.Config, deptSvc department.Service, usrSvc user.Service) Generator {
	perPage := conf.Pagination.MaxPerPage
	if perPage <= 0 {
		perPage = 100
	}
	return &csvGenerator{deptSvc: deptSvc, usrSvc: usrSvc, perPage: perPage}
}

func (gen *csvGenerator) Generate(ctx context.Context, job Job) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	var rows int
	var err error
	switch job.Kind {
	case KindDepartmentRoster:
		rows, err = gen.roster(ctx, w, job.DepartmentID)
	case KindMembershipSummary:
		rows, err = gen.summary(ctx, w, job.DepartmentID)
	default:
		err = errors.Errorf("unknown report kind %q", job.Kind)
	}
	if err != nil {
		return nil, 0, err
	}

	w.Flush()
	if err = w.Error(); err != nil {
		return nil, 0, errors.Wrap(err, "writing csv")
	}
	return buf.Bytes(), rows, nil
}

func (gen *csvGenerator) members(ctx context.Context, departmentID string) ([]department.Membership, error) {
	var all []department.Membership
	page := core.PageRequest{Page: 1, PerPage: gen.perPage}
	for {
		mships, pagination, err := gen.deptSvc.Members(ctx, departmentID, page)
		if err != nil {
			return nil, errors.Wrap(err, "listing members")
		}
		all = append(all, mships...)
		if !pagination.HasNext() {
			return all, nil
		}
		page.Page++
	}
}

// roster lists the direct members of the department.
func (gen *csvGenerator) roster(ctx context.Context, w *csv.Writer, departmentID string) (int, error) {
	mships, err := gen.members(ctx, departmentID)
	if err != nil {
		return 0, err
	}

	if err = w.Write([]string{"user_id", "name", "username", "email", "roles"}); err != nil {
		return 0, errors.Wrap(err, "writing csv header")
	}
	for _, m := range mships {
		usr, err := gen.usrSvc.GetByID(ctx, m.UserID)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return 0, errors.Wrap(err, "finding member")
		}
		record := []string{m.UserID, usr.Name, usr.Username, usr.Email, strings.Join(m.Roles, "|")}
		if err = w.Write(record); err != nil {
			return 0, errors.Wrap(err, "writing csv record")
		}
	}
	return len(mships), nil
}

// summary counts the members and roles of the department and every department below it.
func (gen *csvGenerator) summary(ctx context.Context, w *csv.Writer, departmentID string) (int, error) {
	dept, err := gen.deptSvc.Get(ctx, departmentID)
	if err != nil {
		return 0, errors.Wrap(err, "finding department")
	}
	descendants, err := gen.deptSvc.Descendants(ctx, departmentID)
	if err != nil {
		return 0, errors.Wrap(err, "listing sub-departments")
	}

	if err = w.Write([]string{"department_id", "code", "name", "parent_id", "members", "roles"}); err != nil {
		return 0, errors.Wrap(err, "writing csv header")
	}
	depts := append([]department.Department{dept}, descendants...)
	for _, d := range depts {
		mships, err := gen.members(ctx, d.ID)
		if err != nil {
			return 0, err
		}
		roleCounts := make(map[string]int)
		for _, m := range mships {
			for _, role := range m.Roles {
				roleCounts[role]++
			}
		}

		var parentID string
		if d.ParentID != nil {
			parentID = *d.ParentID
		}
		record := []string{d.ID, d.Code, d.Name, parentID, strconv.Itoa(len(mships)), formatCounts(roleCounts)}
		if err = w.Write(record); err != nil {
			return 0, errors.Wrap(err, "writing csv record")
		}
	}
	return len(depts), nil
}

// formatCounts renders counts as "role=n" pairs sorted by role.
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(pairs, "|")
}
