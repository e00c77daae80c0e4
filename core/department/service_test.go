package department_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	logsvc "github.com/masomo/lms/services/logger"
	inmemdb "github.com/masomo/lms/storage/database/inmem"
)

type fixture struct {
	ctx  context.Context
	repo department.Repository
	svc  department.Service
}

func newFixture(t *testing.T, cascading ...string) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	if len(cascading) > 0 {
		conf.Departments.CascadingRoles = cascading
	}
	repo := inmemdb.NewDepartmentRepository(inmemdb.Open())
	return &fixture{
		ctx:  context.Background(),
		repo: repo,
		svc:  department.NewService(conf, logsvc.NopLogger{}, repo),
	}
}

func (f *fixture) create(t *testing.T, name string, parent *department.Department) department.Department {
	t.Helper()
	nd := department.NewDepartment{Name: name, Code: name}
	if parent != nil {
		nd.ParentID = &parent.ID
	}
	dept, err := f.svc.Create(f.ctx, nd)
	require.NoError(t, err)
	return dept
}

func (f *fixture) assign(t *testing.T, dept department.Department, userID string, roles ...string) {
	t.Helper()
	_, err := f.svc.AssignRoles(f.ctx, dept.ID, userID, roles)
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	faculty := f.create(t, "faculty", nil)
	physics := f.create(t, "physics", &faculty)
	optics := f.create(t, "optics", &physics)

	f.assign(t, faculty, "u1", "department-admin", "auditor")
	f.assign(t, physics, "u1", "instructor")
	f.assign(t, optics, "u2", "learner")

	tests := []struct {
		name          string
		userID        string
		dept          department.Department
		wantRoles     []string
		wantCascaded  []string
		wantIsCascade bool
	}{
		{
			name:      "direct roles only on the assigned department",
			userID:    "u1",
			dept:      faculty,
			wantRoles: []string{"department-admin", "auditor"},
		},
		{
			name:          "cascading roles flow down, others do not",
			userID:        "u1",
			dept:          physics,
			wantRoles:     []string{"instructor", "department-admin"},
			wantCascaded:  []string{"department-admin"},
			wantIsCascade: true,
		},
		{
			name:          "cascade skips intermediate levels",
			userID:        "u1",
			dept:          optics,
			wantRoles:     []string{"department-admin"},
			wantCascaded:  []string{"department-admin"},
			wantIsCascade: true,
		},
		{
			name:      "roles never flow up",
			userID:    "u2",
			dept:      physics,
			wantRoles: []string{},
		},
		{
			name:      "no membership",
			userID:    "nobody",
			dept:      optics,
			wantRoles: []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dctx, err := f.svc.Resolve(f.ctx, tc.userID, tc.dept.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.dept.ID, dctx.DepartmentID)
			assert.Equal(t, tc.dept.Name, dctx.DepartmentName)
			assert.Equal(t, tc.wantRoles, dctx.Roles)
			if tc.wantCascaded == nil {
				tc.wantCascaded = []string{}
			}
			assert.Equal(t, tc.wantCascaded, dctx.CascadedRoles)
			assert.Equal(t, tc.wantIsCascade, dctx.IsCascaded)
		})
	}
}

func TestResolve_DirectWinsOverInherited(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, "root", nil)
	child := f.create(t, "child", &root)

	f.assign(t, root, "u1", "department-admin")
	f.assign(t, child, "u1", "Department-Admin")

	dctx, err := f.svc.Resolve(f.ctx, "u1", child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"department-admin"}, dctx.Roles)
	assert.False(t, dctx.IsCascaded)
	assert.False(t, dctx.RoleIsCascaded("department-admin"))
}

func TestResolve_CustomPolicy(t *testing.T) {
	f := newFixture(t, "Auditor")
	root := f.create(t, "root", nil)
	child := f.create(t, "child", &root)
	f.assign(t, root, "u1", "department-admin", "auditor")

	dctx, err := f.svc.Resolve(f.ctx, "u1", child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditor"}, dctx.Roles)
	assert.True(t, dctx.RoleIsCascaded("AUDITOR"))
}

func TestResolve_UnknownDepartment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(f.ctx, "u1", "missing")
	assert.Equal(t, department.ErrNotFound, errors.Cause(err))
}

func TestResolve_MalformedHierarchy(t *testing.T) {
	f := newFixture(t)

	// a <-> b cycle written straight to the store
	aID, bID := "a", "b"
	_, err := f.repo.CreateDepartment(f.ctx, department.Department{ID: aID, Name: "A", Code: "a", ParentID: &bID})
	require.NoError(t, err)
	_, err = f.repo.CreateDepartment(f.ctx, department.Department{ID: bID, Name: "B", Code: "b", ParentID: &aID})
	require.NoError(t, err)
	_, err = f.repo.UpsertMembership(f.ctx, department.Membership{UserID: "u1", DepartmentID: bID, Roles: []string{"department-admin"}})
	require.NoError(t, err)

	dctx, err := f.svc.Resolve(f.ctx, "u1", aID)
	require.NoError(t, err)
	assert.Equal(t, []string{"department-admin"}, dctx.Roles)

	// dangling parent
	ghost := "ghost"
	_, err = f.repo.CreateDepartment(f.ctx, department.Department{ID: "orphan", Name: "Orphan", Code: "orphan", ParentID: &ghost})
	require.NoError(t, err)
	dctx, err = f.svc.Resolve(f.ctx, "u1", "orphan")
	require.NoError(t, err)
	assert.Empty(t, dctx.Roles)
}

func TestResolve_MaxDepth(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Departments.MaxDepth = 2
	repo := inmemdb.NewDepartmentRepository(inmemdb.Open())
	svc := department.NewService(conf, logsvc.NopLogger{}, repo)
	ctx := context.Background()

	var parent *department.Department
	var chain []department.Department
	for _, name := range []string{"l0", "l1", "l2", "l3"} {
		nd := department.NewDepartment{Name: name, Code: name}
		if parent != nil {
			nd.ParentID = &parent.ID
		}
		dept, err := svc.Create(ctx, nd)
		require.NoError(t, err)
		chain = append(chain, dept)
		parent = &chain[len(chain)-1]
	}
	_, err := svc.AssignRoles(ctx, chain[0].ID, "u1", []string{"department-admin"})
	require.NoError(t, err)

	dctx, err := svc.Resolve(ctx, "u1", chain[2].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"department-admin"}, dctx.Roles, "root is within 2 levels")

	dctx, err = svc.Resolve(ctx, "u1", chain[3].ID)
	require.NoError(t, err)
	assert.Empty(t, dctx.Roles, "root is past the max depth")
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, "root", nil)
	assert.True(t, root.IsRoot())
	assert.NotEmpty(t, root.ID)

	_, err := f.svc.Create(f.ctx, department.NewDepartment{Name: "Dup", Code: "root"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "code", vErr.Fields[0].Field)

	missing := "missing"
	_, err = f.svc.Create(f.ctx, department.NewDepartment{Name: "X", Code: "x", ParentID: &missing})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, department.ErrParentNotFound, vErr.Err)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "a", nil)
	b := f.create(t, "b", &a)
	c := f.create(t, "c", &b)
	other := f.create(t, "other", nil)

	reparent := func(dept department.Department, parentID string) (department.Department, error) {
		ud := department.UpdateDepartment{ParentID: &parentID}
		validate := validator.New()
		core.InitValidators(validate, core.NewTranslator())
		department.InitValidators(validate, core.NewTranslator())
		require.NoError(t, ud.Validate(dept, validate))
		return f.svc.Update(f.ctx, dept.ID, ud)
	}

	for _, target := range []department.Department{a, b, c} {
		_, err := reparent(a, target.ID)
		assert.Equal(t, department.ErrCycle, errors.Cause(err).(*core.ValidationError).Err, "moving a under %s", target.Name)
	}

	moved, err := reparent(c, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, *moved.ParentID)

	moved, err = reparent(b, "")
	require.NoError(t, err)
	assert.True(t, moved.IsRoot())

	_, err = f.svc.Update(f.ctx, a.ID, department.UpdateDepartment{Name: "a", Code: "other"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, department.ErrCodeExists, vErr.Err)
}

func TestUpdate_CycleBeyondMaxDepth(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Departments.MaxDepth = 4
	svc := department.NewService(conf, logsvc.NopLogger{}, inmemdb.NewDepartmentRepository(inmemdb.Open()))
	ctx := context.Background()

	root, err := svc.Create(ctx, department.NewDepartment{Name: "root", Code: "root"})
	require.NoError(t, err)
	leaf := root
	for i := 0; i < 10; i++ {
		code := fmt.Sprintf("d%d", i)
		leaf, err = svc.Create(ctx, department.NewDepartment{Name: code, Code: code, ParentID: &leaf.ID})
		require.NoError(t, err)
	}

	_, err = svc.Update(ctx, root.ID, department.UpdateDepartment{Name: root.Name, Code: root.Code, ParentID: &leaf.ID})
	require.Error(t, err)
	assert.Equal(t, department.ErrCycle, errors.Cause(err).(*core.ValidationError).Err)

	got, err := svc.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRoot())

	ancestors, err := svc.Ancestors(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Len(t, ancestors, 4, "ancestor listing stays capped")
}

func TestHierarchy(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "a", nil)
	b := f.create(t, "b", &a)
	c := f.create(t, "c", &b)
	d := f.create(t, "d", &a)

	ancestors, err := f.svc.Ancestors(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, b.ID, ancestors[0].ID)
	assert.Equal(t, a.ID, ancestors[1].ID)

	descendants, err := f.svc.Descendants(f.ctx, a.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(descendants))
	for _, dept := range descendants {
		ids = append(ids, dept.ID)
	}
	assert.Equal(t, []string{b.ID, d.ID, c.ID}, ids, "breadth first, by name")

	err = f.svc.Delete(f.ctx, a.ID)
	require.Error(t, err)
	assert.Equal(t, department.ErrHasChildren, errors.Cause(err).(*core.ValidationError).Err)

	require.NoError(t, f.svc.Delete(f.ctx, c.ID))
	_, err = f.svc.Get(f.ctx, c.ID)
	assert.Equal(t, department.ErrNotFound, errors.Cause(err))
}

func TestMemberships(t *testing.T) {
	f := newFixture(t)
	dept := f.create(t, "dept", nil)

	mship, err := f.svc.AssignRoles(f.ctx, dept.ID, "u1", []string{" Instructor ", "instructor", "", "member"})
	require.NoError(t, err)
	assert.Equal(t, []string{"instructor", "member"}, mship.Roles)
	created := mship.CreatedAt

	mship, err = f.svc.AssignRoles(f.ctx, dept.ID, "u1", []string{"department-admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"department-admin"}, mship.Roles)
	assert.Equal(t, created, mship.CreatedAt)

	f.assign(t, dept, "u2", "member")

	members, pagination, err := f.svc.Members(f.ctx, dept.ID, core.PageRequest{Page: 1, PerPage: 1})
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, 2, pagination.Total)
	assert.True(t, pagination.HasNext())

	userMships, err := f.svc.Memberships(f.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, userMships, 1)
	assert.Equal(t, dept.ID, userMships[0].DepartmentID)

	require.NoError(t, f.svc.RemoveMember(f.ctx, dept.ID, "u1"))
	assert.Equal(t, department.ErrNotFound, errors.Cause(f.svc.RemoveMember(f.ctx, dept.ID, "u1")))

	_, err = f.svc.AssignRoles(f.ctx, "missing", "u1", []string{"member"})
	assert.Equal(t, department.ErrNotFound, errors.Cause(err))
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, "science", nil)
	f.create(t, "physics", &root)
	f.create(t, "chemistry", &root)
	f.create(t, "arts", nil)

	depts, _, err := f.svc.Query(f.ctx, department.QueryFilter{RootsOnly: true}, core.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, depts, 2)

	depts, _, err = f.svc.Query(f.ctx, department.QueryFilter{ParentID: root.ID}, core.PageRequest{})
	require.NoError(t, err)
	require.Len(t, depts, 2)
	assert.Equal(t, "chemistry", depts[0].Name)

	depts, pagination, err := f.svc.Query(f.ctx, department.QueryFilter{Search: "PHYS"}, core.PageRequest{})
	require.NoError(t, err)
	require.Len(t, depts, 1)
	assert.Equal(t, 1, pagination.Total)
}
