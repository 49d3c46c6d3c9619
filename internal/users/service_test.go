package users

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// memRepo is an in-memory Repository. WithTx serialises transactions, which
// mirrors what SERIALIZABLE isolation guarantees for the guard queries.
type memRepo struct {
	txMu   sync.Mutex
	users  map[int64]*User
	hashes map[int64]string
	roles  map[int64]string
	audit  []shared.AuditLog
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:  map[int64]*User{},
		hashes: map[int64]string{},
		roles:  map[int64]string{rbac.SuperAdminRoleID: "super_admin", 2: "editor"},
		nextID: 1,
	}
}

func (m *memRepo) seed(username string, roleID int64) int64 {
	id := m.nextID
	m.nextID++
	m.users[id] = &User{ID: id, Username: username, Email: username + "@example.com", FullName: username, RoleID: roleID, RoleName: m.roles[roleID], CreatedAt: time.Now()}
	return id
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}

func (m *memRepo) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		if filters.RoleID > 0 && u.RoleID != filters.RoleID {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memRepo) Get(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.NotFound("User not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) IDByUsername(ctx context.Context, username string) (int64, error) {
	for id, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return id, nil
		}
	}
	return 0, shared.NotFound("User not found")
}

func (m *memRepo) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	for id, u := range m.users {
		if id != excludeID && strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	for id, u := range m.users {
		if id != excludeID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := m.roles[roleID]
	return ok, nil
}

func (m *memRepo) LockSuperAdmins(ctx context.Context) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.RoleID == rbac.SuperAdminRoleID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Create(ctx context.Context, user User, passwordHash string) (int64, error) {
	id := m.nextID
	m.nextID++
	user.ID = id
	user.RoleName = m.roles[user.RoleID]
	m.users[id] = &user
	m.hashes[id] = passwordHash
	return id, nil
}

func (m *memRepo) Update(ctx context.Context, id int64, c Changes) error {
	u, ok := m.users[id]
	if !ok {
		return shared.NotFound("User not found")
	}
	if c.Username != nil {
		u.Username = *c.Username
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.FullName != nil {
		u.FullName = *c.FullName
	}
	if c.PasswordHash != nil {
		m.hashes[id] = *c.PasswordHash
	}
	if c.RoleID != nil {
		u.RoleID = *c.RoleID
		u.RoleName = m.roles[*c.RoleID]
	}
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.NotFound("User not found")
	}
	delete(m.users, id)
	return nil
}

func (m *memRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	m.audit = append(m.audit, log)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) EnqueueWelcome(ctx context.Context, email, fullName, username string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return nil
}

func newTestService(repo Repository, notifier Notifier) *Service {
	svc := NewService(repo, notifier, nil)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func validCreate() CreateUserRequest {
	return CreateUserRequest{Username: "newbie", Password: "s3cret-pass", Email: "newbie@example.com", FullName: "New Bie", RoleID: 2}
}

func ptr[T any](v T) *T { return &v }

func TestCreateUser(t *testing.T) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	user, err := svc.Create(context.Background(), validCreate(), 1)
	require.NoError(t, err)
	assert.Equal(t, "editor", user.RoleName)
	assert.Equal(t, []string{"newbie@example.com"}, notifier.sent)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("s3cret-pass")))
	require.Len(t, repo.audit, 1)
	assert.Equal(t, "user.create", repo.audit[0].Action)
}

func TestCreateUserRejections(t *testing.T) {
	repo := newMemRepo()
	repo.seed("taken", 2)
	svc := newTestService(repo, nil)

	cases := []struct {
		name    string
		mutate  func(*CreateUserRequest)
		kind    error
		message string
	}{
		{"missing full name", func(r *CreateUserRequest) { r.FullName = " " }, shared.ErrValidation, "Field 'fullName' is required"},
		{"short password", func(r *CreateUserRequest) { r.Password = "short" }, shared.ErrValidation, "Field 'password' must be at least 8 characters"},
		{"duplicate username", func(r *CreateUserRequest) { r.Username = "TAKEN" }, shared.ErrConflict, "Username already exists"},
		{"duplicate email", func(r *CreateUserRequest) { r.Email = "taken@example.com" }, shared.ErrConflict, "Email already exists"},
		{"unknown role", func(r *CreateUserRequest) { r.RoleID = 99 }, shared.ErrNotFound, "Role not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreate()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req, 1)
			require.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.message, shared.UserSafeMessage(err))
		})
	}
}

func TestUpdateUser(t *testing.T) {
	repo := newMemRepo()
	admin := repo.seed("admin", rbac.SuperAdminRoleID)
	editor := repo.seed("editor", 2)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, editor, UpdateUserRequest{}, admin)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "No fields to update", shared.UserSafeMessage(err))

	updated, err := svc.Update(ctx, editor, UpdateUserRequest{FullName: ptr("Ed Itor"), Password: ptr("another-pass")}, admin)
	require.NoError(t, err)
	assert.Equal(t, "Ed Itor", updated.FullName)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[editor]), []byte("another-pass")))

	_, err = svc.Update(ctx, editor, UpdateUserRequest{Username: ptr("admin")}, admin)
	assert.Equal(t, "Username already exists", shared.UserSafeMessage(err))

	_, err = svc.Update(ctx, 404, UpdateUserRequest{FullName: ptr("x")}, admin)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateRefusesDemotingLastSuperAdmin(t *testing.T) {
	repo := newMemRepo()
	admin := repo.seed("admin", rbac.SuperAdminRoleID)
	svc := newTestService(repo, nil)

	_, err := svc.Update(context.Background(), admin, UpdateUserRequest{RoleID: ptr(int64(2))}, admin)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, rbac.SuperAdminRoleID, repo.users[admin].RoleID)

	second := repo.seed("backup", rbac.SuperAdminRoleID)
	_, err = svc.Update(context.Background(), admin, UpdateUserRequest{RoleID: ptr(int64(2))}, second)
	require.NoError(t, err)
}

func TestDeleteUserGuards(t *testing.T) {
	repo := newMemRepo()
	admin := repo.seed("admin", rbac.SuperAdminRoleID)
	editor := repo.seed("editor", 2)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	err := svc.Delete(ctx, admin, admin)
	assert.Equal(t, "Cannot delete your own account", shared.UserSafeMessage(err))

	err = svc.Delete(ctx, admin, editor)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "Cannot delete the last super admin user", shared.UserSafeMessage(err))

	err = svc.Delete(ctx, 77, admin)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, "User not found", shared.UserSafeMessage(err))

	require.NoError(t, svc.Delete(ctx, editor, admin))
	assert.NotContains(t, repo.users, editor)
	assert.Equal(t, "user.delete", repo.audit[len(repo.audit)-1].Action)
}

func TestConcurrentSuperAdminDeletesKeepOne(t *testing.T) {
	repo := newMemRepo()
	a := repo.seed("alpha", rbac.SuperAdminRoleID)
	b := repo.seed("bravo", rbac.SuperAdminRoleID)
	svc := newTestService(repo, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = svc.Delete(context.Background(), b, a) }()
	go func() { defer wg.Done(); errs[1] = svc.Delete(context.Background(), a, b) }()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.Equal(t, "Cannot delete the last super admin user", shared.UserSafeMessage(err))
		}
	}
	assert.Equal(t, 1, failures)
	n, _ := repo.LockSuperAdmins(context.Background())
	assert.Equal(t, 1, n)
}

func TestBootstrapCreatesSuperAdmin(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	user, created, err := svc.Bootstrap(context.Background(), BootstrapRequest{
		Username: "root", Email: "root@example.com", FullName: "Root", Password: "long-enough",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, rbac.SuperAdminRoleID, user.RoleID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("long-enough")))
	require.Len(t, repo.audit, 1)
	assert.Equal(t, "user.bootstrap", repo.audit[0].Action)
}

func TestBootstrapExistingUser(t *testing.T) {
	repo := newMemRepo()
	id := repo.seed("root", 2)
	svc := newTestService(repo, nil)
	req := BootstrapRequest{Username: "ROOT", Email: "root@example.com", FullName: "Root", Password: "another-pass"}

	_, _, err := svc.Bootstrap(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrConflict)

	req.Reset = true
	user, created, err := svc.Bootstrap(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, rbac.SuperAdminRoleID, user.RoleID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[id]), []byte("another-pass")))
	assert.Equal(t, "user.reset", repo.audit[len(repo.audit)-1].Action)
}

func TestBootstrapRejectsShortPassword(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	_, _, err := svc.Bootstrap(context.Background(), BootstrapRequest{
		Username: "root", Email: "root@example.com", FullName: "Root", Password: "short",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "Field 'password' must be at least 8 characters", shared.UserSafeMessage(err))
}
