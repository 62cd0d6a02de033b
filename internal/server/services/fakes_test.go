package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mlevkov/chatgate/internal/dbx"
	"github.com/mlevkov/chatgate/internal/logging"
	"github.com/mlevkov/chatgate/internal/server/models"
	messagesrepo "github.com/mlevkov/chatgate/internal/server/repositories/messages"
	"github.com/mlevkov/chatgate/internal/server/repositories/repomanager"
	sessionsrepo "github.com/mlevkov/chatgate/internal/server/repositories/sessions"
	usersrepo "github.com/mlevkov/chatgate/internal/server/repositories/users"
)

// --- shared helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

// --- repository fakes ---

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	byLogin    *models.User
	byLoginErr error

	byID    *models.User
	byIDErr error

	emailTaken bool
	emailErr   error

	usernameTaken bool
	usernameErr   error

	studentTaken bool
	studentErr   error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByLogin(context.Context, string) (*models.User, error) {
	return f.byLogin, f.byLoginErr
}

func (f *fakeUsersRepo) GetByID(context.Context, string) (*models.User, error) {
	return f.byID, f.byIDErr
}

func (f *fakeUsersRepo) EmailExists(context.Context, string) (bool, error) {
	return f.emailTaken, f.emailErr
}

func (f *fakeUsersRepo) UsernameExists(context.Context, string) (bool, error) {
	return f.usernameTaken, f.usernameErr
}

func (f *fakeUsersRepo) StudentIDExists(context.Context, string) (bool, error) {
	return f.studentTaken, f.studentErr
}

type fakeSessionsRepo struct {
	createOut *models.Session
	createErr error

	getOut *models.Session
	getErr error

	updateOut *models.Session
	updateErr error

	archiveMatched bool
	archiveErr     error

	listOut   []*models.Session
	listErr   error
	gotFilter sessionsrepo.ListFilter

	countOwned   int
	countErr     error
	gotCountIDs  []string
	gotCountKind models.SessionKind

	deletedIDs []string
	deleteErr  error
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return s, nil
}

func (f *fakeSessionsRepo) Get(context.Context, string, string) (*models.Session, error) {
	return f.getOut, f.getErr
}

func (f *fakeSessionsRepo) Update(context.Context, string, string, models.SessionPatch) (*models.Session, error) {
	return f.updateOut, f.updateErr
}

func (f *fakeSessionsRepo) Archive(context.Context, string, string) (bool, error) {
	return f.archiveMatched, f.archiveErr
}

func (f *fakeSessionsRepo) List(ctx context.Context, ownerID string, filter sessionsrepo.ListFilter) ([]*models.Session, error) {
	f.gotFilter = filter
	return f.listOut, f.listErr
}

func (f *fakeSessionsRepo) CountOwned(ctx context.Context, ids []string, ownerID string, kind models.SessionKind) (int, error) {
	f.gotCountIDs = ids
	f.gotCountKind = kind
	return f.countOwned, f.countErr
}

func (f *fakeSessionsRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedIDs = ids
	return int64(len(ids)), nil
}

type fakeMessagesRepo struct {
	mu sync.Mutex

	createID  int64
	createErr error
	created   *models.Message

	completeErr     error
	completedID     int64
	completedAnswer string
	completed       bool

	listOut []*models.Message
	listErr error

	deletedSessionIDs []string
	deleteErr         error
}

func (f *fakeMessagesRepo) Create(ctx context.Context, m *models.Message) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = m
	return f.createID, nil
}

func (f *fakeMessagesRepo) CompleteAnswer(ctx context.Context, id int64, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = true
	f.completedID = id
	f.completedAnswer = answer
	return nil
}

func (f *fakeMessagesRepo) ListBySession(context.Context, string, string) ([]*models.Message, error) {
	return f.listOut, f.listErr
}

func (f *fakeMessagesRepo) DeleteBySessionIDs(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedSessionIDs = ids
	return nil
}

func (f *fakeMessagesRepo) completedState() (bool, int64, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed, f.completedID, f.completedAnswer
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeSessionsRepo
	m *fakeMessagesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.u }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessionsrepo.Repository    { return m.s }
func (m *fakeRepoManager) Messages(dbx.DBTX) messagesrepo.Repository    { return m.m }

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)
