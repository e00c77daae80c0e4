package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
)

const (
	departmentColumns = `id, name, code, parent_id, created_at, updated_at`
	membershipColumns = `user_id, department_id, roles, created_at, updated_at`
)

type departmentRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Code      null.String `db:"code"`
	ParentID  null.String `db:"parent_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func toDepartmentRow(dept department.Department) departmentRow {
	return departmentRow{
		ID:        dept.ID,
		Name:      dept.Name,
		Code:      null.NewString(dept.Code, dept.Code != ""),
		ParentID:  null.NewString(stringValue(dept.ParentID), !dept.IsRoot()),
		CreatedAt: dept.CreatedAt.UTC(),
		UpdatedAt: dept.UpdatedAt.UTC(),
	}
}

func (row departmentRow) department() department.Department {
	return department.Department{
		ID:        row.ID,
		Name:      row.Name,
		Code:      row.Code.String,
		ParentID:  row.ParentID.Ptr(),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type membershipRow struct {
	UserID       string         `db:"user_id"`
	DepartmentID string         `db:"department_id"`
	Roles        pq.StringArray `db:"roles"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row membershipRow) membership() department.Membership {
	return department.Membership{
		UserID:       row.UserID,
		DepartmentID: row.DepartmentID,
		Roles:        []string(row.Roles),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type departmentRepository struct {
	db *sqlx.DB
}

var _ department.Repository = (*departmentRepository)(nil) // interface compliance check

func NewDepartmentRepository(db *sqlx.DB) department.Repository {
	return &departmentRepository{db: db}
}

func (repo *departmentRepository) CheckCodeUniqueness(ctx context.Context, code string, excludedDepts ...department.Department) error {
	var c conds
	c.add("code = ?", code)
	ids := make([]string, 0, len(excludedDepts))
	for _, dept := range excludedDepts {
		if validID(dept.ID) {
			ids = append(ids, dept.ID)
		}
	}
	if len(ids) > 0 {
		c.add("id <> ALL(?::uuid[])", pq.StringArray(ids))
	}

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM department`+c.where()+`)`, c.args...); err != nil {
		return errors.Wrap(err, "checking department code uniqueness")
	}
	if exists {
		return department.ErrCodeExists
	}
	return nil
}

func (repo *departmentRepository) CreateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	if dept.ID == "" {
		dept.ID = uuid.New().String()
	}
	row := toDepartmentRow(dept)

	q := `INSERT INTO department (` + departmentColumns + `) VALUES (:id, :name, :code, :parent_id, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return department.Department{}, errors.Wrap(err, "inserting department")
	}
	return row.department(), nil
}

func (repo *departmentRepository) GetDepartment(ctx context.Context, id string) (department.Department, error) {
	if !validID(id) {
		return department.Department{}, department.ErrNotFound
	}
	var row departmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+departmentColumns+` FROM department WHERE id = $1`, id); err != nil {
		return department.Department{}, trapNoRowsErr(err, "finding department")
	}
	return row.department(), nil
}

func (repo *departmentRepository) QueryDepartments(
	ctx context.Context,
	filter department.QueryFilter,
	page core.PageRequest,
) ([]department.Department, int, error) {
	var c conds
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		c.add("name ILIKE ? OR code ILIKE ?", val, val)
	}
	if filter.RootsOnly {
		c.add("parent_id IS NULL")
	}
	if filter.ParentID != "" {
		if !validID(filter.ParentID) {
			return []department.Department{}, 0, nil
		}
		c.add("parent_id = ?", filter.ParentID)
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM department`+c.where(), c.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting departments")
	}

	limit, args := c.page(page)
	var rows []departmentRow
	q := `SELECT ` + departmentColumns + ` FROM department` + c.where() + ` ORDER BY name, id` + limit
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying departments")
	}
	return departments(rows), total, nil
}

func (repo *departmentRepository) ListChildren(ctx context.Context, parentID string) ([]department.Department, error) {
	if !validID(parentID) {
		return nil, nil
	}
	var rows []departmentRow
	q := `SELECT ` + departmentColumns + ` FROM department WHERE parent_id = $1 ORDER BY name, id`
	if err := repo.db.SelectContext(ctx, &rows, q, parentID); err != nil {
		return nil, errors.Wrap(err, "listing sub-departments")
	}
	return departments(rows), nil
}

func departments(rows []departmentRow) []department.Department {
	depts := make([]department.Department, 0, len(rows))
	for _, row := range rows {
		depts = append(depts, row.department())
	}
	return depts
}

func (repo *departmentRepository) UpdateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	if !validID(dept.ID) {
		return department.Department{}, department.ErrNotFound
	}
	row := toDepartmentRow(dept)

	q := `UPDATE department SET name = :name, code = :code, parent_id = :parent_id, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err = trapNoRowsAffected(res, err, "updating department"); err != nil {
		return department.Department{}, err
	}
	return row.department(), nil
}

// DeleteDepartment deletes the department; its memberships are dropped by the FK cascade.
func (repo *departmentRepository) DeleteDepartment(ctx context.Context, id string) error {
	if !validID(id) {
		return department.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM department WHERE id = $1`, id)
	return trapNoRowsAffected(res, err, "deleting department")
}

func (repo *departmentRepository) UpsertMembership(ctx context.Context, mship department.Membership) (department.Membership, error) {
	roles := mship.Roles
	if roles == nil {
		roles = []string{}
	}
	row := membershipRow{
		UserID:       mship.UserID,
		DepartmentID: mship.DepartmentID,
		Roles:        roles,
		CreatedAt:    mship.CreatedAt.UTC(),
		UpdatedAt:    mship.UpdatedAt.UTC(),
	}

	q := `INSERT INTO department_membership (` + membershipColumns + `)
		VALUES (:user_id, :department_id, :roles, :created_at, :updated_at)
		ON CONFLICT (user_id, department_id) DO UPDATE SET roles = EXCLUDED.roles, updated_at = EXCLUDED.updated_at`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return department.Membership{}, errors.Wrap(err, "upserting membership")
	}
	return row.membership(), nil
}

func (repo *departmentRepository) GetMembership(ctx context.Context, userID, departmentID string) (department.Membership, error) {
	if !validID(userID) || !validID(departmentID) {
		return department.Membership{}, department.ErrNotFound
	}
	var row membershipRow
	q := `SELECT ` + membershipColumns + ` FROM department_membership WHERE user_id = $1 AND department_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, userID, departmentID); err != nil {
		return department.Membership{}, trapNoRowsErr(err, "finding membership")
	}
	return row.membership(), nil
}

func (repo *departmentRepository) ListMemberships(
	ctx context.Context,
	departmentID string,
	page core.PageRequest,
) ([]department.Membership, int, error) {
	if !validID(departmentID) {
		return []department.Membership{}, 0, nil
	}
	var c conds
	c.add("department_id = ?", departmentID)

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM department_membership`+c.where(), c.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting memberships")
	}

	limit, args := c.page(page)
	var rows []membershipRow
	q := `SELECT ` + membershipColumns + ` FROM department_membership` + c.where() + ` ORDER BY created_at, user_id` + limit
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "listing memberships")
	}
	return memberships(rows), total, nil
}

func (repo *departmentRepository) ListUserMemberships(ctx context.Context, userID string) ([]department.Membership, error) {
	if !validID(userID) {
		return nil, nil
	}
	var rows []membershipRow
	q := `SELECT ` + membershipColumns + ` FROM department_membership WHERE user_id = $1 ORDER BY department_id`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "listing user memberships")
	}
	return memberships(rows), nil
}

func memberships(rows []membershipRow) []department.Membership {
	mships := make([]department.Membership, 0, len(rows))
	for _, row := range rows {
		mships = append(mships, row.membership())
	}
	return mships
}

func (repo *departmentRepository) DeleteMembership(ctx context.Context, userID, departmentID string) error {
	if !validID(userID) || !validID(departmentID) {
		return department.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM department_membership WHERE user_id = $1 AND department_id = $2`, userID, departmentID)
	return trapNoRowsAffected(res, err, "deleting membership")
}
