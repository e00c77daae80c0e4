package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/user"
	emailsvc "github.com/masomo/lms/services/email"
	logsvc "github.com/masomo/lms/services/logger"
	inmemdb "github.com/masomo/lms/storage/database/inmem"
)

type fixture struct {
	ctx     context.Context
	svc     user.Service
	mailSvc *emailsvc.ConsoleServiceMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return &fixture{
		ctx:     context.Background(),
		svc:     user.NewService(conf, logsvc.NopLogger{}, repo, mailSvc),
		mailSvc: mailSvc,
	}
}

func (f *fixture) create(t *testing.T, uname, email string, roles ...string) user.User {
	t.Helper()
	usr, err := f.svc.Create(f.ctx, user.NewUser{
		Name:     "User " + uname,
		Username: uname,
		Email:    email,
		Password: "Pa$$w0rd!x",
		Roles:    roles,
	})
	require.NoError(t, err)
	return usr
}

func TestService_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	usr := f.create(t, "alice", "alice@example.com", user.RoleStaff)

	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword("Pa$$w0rd!x"))

	for name, get := range map[string]func() (user.User, error){
		"by id":                func() (user.User, error) { return f.svc.GetByID(f.ctx, usr.ID) },
		"by username":          func() (user.User, error) { return f.svc.GetByUsername(f.ctx, " ALICE ") },
		"by email":             func() (user.User, error) { return f.svc.GetByEmail(f.ctx, "Alice@Example.com") },
		"by username or email": func() (user.User, error) { return f.svc.GetByUsernameOrEmail(f.ctx, "alice@example.com") },
	} {
		t.Run(name, func(t *testing.T) {
			got, err := get()
			require.NoError(t, err)
			assert.Equal(t, usr.ID, got.ID)
		})
	}

	_, err := f.svc.GetByID(f.ctx, "missing")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_CheckUniqueness(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "alice", "alice@example.com")

	tests := []struct {
		name      string
		uname     string
		email     string
		excl      []user.User
		wantField string
	}{
		{name: "free", uname: "bob", email: "bob@example.com"},
		{name: "username taken", uname: "alice", email: "bob@example.com", wantField: "username"},
		{name: "email taken", uname: "bob", email: "alice@example.com", wantField: "email"},
		{name: "self excluded", uname: "alice", email: "alice@example.com", excl: []user.User{alice}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.CheckUniqueness(f.ctx, tc.uname, tc.email, tc.excl...)
			if tc.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tc.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_Query(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "alice@example.com", user.RoleAdmin)
	bob := f.create(t, "bob", "bob@example.com", user.RoleStaff)
	f.create(t, "carol", "carol@example.org", user.RoleLearner)

	inactive := false
	_, err := f.svc.Update(f.ctx, bob.ID, user.UpdateUser{Name: bob.Name, Username: bob.Username, Email: bob.Email, IsActive: &inactive})
	require.NoError(t, err)

	tests := []struct {
		name      string
		filter    user.QueryFilter
		orderings []core.DBOrdering
		want      []string
	}{
		{
			name:      "all by username",
			orderings: []core.DBOrdering{{Field: "username", Ascending: true}},
			want:      []string{"alice", "bob", "carol"},
		},
		{
			name:      "search",
			filter:    user.QueryFilter{Search: "example.com"},
			orderings: []core.DBOrdering{{Field: "username", Ascending: false}},
			want:      []string{"bob", "alice"},
		},
		{name: "roles", filter: user.QueryFilter{Roles: []string{"Learner", "admin"}}, orderings: []core.DBOrdering{{Field: "username", Ascending: true}}, want: []string{"alice", "carol"}},
		{name: "inactive", filter: user.QueryFilter{IsActive: &inactive}, want: []string{"bob"}},
		{name: "created in the future", filter: user.QueryFilter{CreatedFrom: time.Now().Add(time.Hour)}, want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users, pagination, err := f.svc.Query(f.ctx, tc.filter, core.PageRequest{}, tc.orderings...)
			require.NoError(t, err)
			got := make([]string, 0, len(users))
			for _, usr := range users {
				got = append(got, usr.Username)
			}
			assert.Equal(t, tc.want, got)
			assert.Equal(t, len(tc.want), pagination.Total)
			assert.Equal(t, 1, pagination.Page)
		})
	}
}

func TestService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	usr := f.create(t, "alice", "alice@example.com", user.RoleLearner)

	updated, err := f.svc.Update(f.ctx, usr.ID, user.UpdateUser{
		Name:     "Alice M.",
		Username: "alice",
		Email:    "alice@example.org",
		Roles:    []string{user.RoleStaff},
		Password: "N3w-Secret#",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice M.", updated.Name)
	assert.Equal(t, "alice@example.org", updated.Email)
	assert.Equal(t, []string{user.RoleStaff}, updated.Roles)
	assert.NoError(t, updated.CheckPassword("N3w-Secret#"))
	assert.True(t, updated.UpdatedAt.After(usr.UpdatedAt) || updated.UpdatedAt.Equal(usr.UpdatedAt))

	updated, err = f.svc.SetLastLogin(f.ctx, updated)
	require.NoError(t, err)
	assert.False(t, updated.LastLogin.IsZero())

	require.NoError(t, f.svc.Delete(f.ctx, usr.ID))
	_, err = f.svc.GetByID(f.ctx, usr.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	_, err = f.svc.Update(f.ctx, usr.ID, user.UpdateUser{})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_PasswordReset(t *testing.T) {
	f := newFixture(t)
	usr := f.create(t, "alice", "alice@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(f.ctx, "alice@example.com"))
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To[0].Address)
	assert.Equal(t, "password_reset", sent[0].TemplateName)

	data, ok := sent[0].TemplateData.(struct{ Name, UID, Token string })
	require.True(t, ok)
	assert.Contains(t, sent[0].TextContent, data.Token)

	err := f.svc.ResetPassword(f.ctx, user.ResetUserPassword{UID: data.UID, Token: "bogus", Password: "An0ther#Pwd"})
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err).(*core.ValidationError).Err)

	err = f.svc.ResetPassword(f.ctx, user.ResetUserPassword{UID: "!!", Token: data.Token, Password: "An0ther#Pwd"})
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err).(*core.ValidationError).Err)

	require.NoError(t, f.svc.ResetPassword(f.ctx, user.ResetUserPassword{UID: data.UID, Token: data.Token, Password: "An0ther#Pwd"}))
	got, err := f.svc.GetByID(f.ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("An0ther#Pwd"))

	// the token is single use: the password hash changed
	err = f.svc.ResetPassword(f.ctx, user.ResetUserPassword{UID: data.UID, Token: data.Token, Password: "Y3t-An0ther#"})
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err).(*core.ValidationError).Err)

	// unknown emails are reported, inactive users are silently skipped
	f.mailSvc.Reset()
	err = f.svc.RequestPasswordReset(f.ctx, "nobody@example.com")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	inactive := false
	_, err = f.svc.Update(f.ctx, usr.ID, user.UpdateUser{Name: usr.Name, Username: usr.Username, Email: usr.Email, IsActive: &inactive})
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestPasswordReset(f.ctx, "alice@example.com"))
	assert.Empty(t, f.mailSvc.SentMessages())
}
