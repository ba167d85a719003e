package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Profiles() Profiles
	Signups() Signups
	EmailChanges() EmailChanges
}

type mngr struct {
	db           *bun.DB
	users        Users
	profiles     Profiles
	signups      Signups
	emailChanges EmailChanges
}

type RepositoryManagerOption func(*mngr)

func WithManagerUsersOptions(opts ...UsersOption) RepositoryManagerOption {
	return func(m *mngr) {
		m.users = NewUsersRepository(m.db, opts...)
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:           db,
		users:        NewUsersRepository(db),
		profiles:     NewProfilesRepository(db),
		signups:      NewSignupsRepository(db),
		emailChanges: NewEmailChangesRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager needs a database connection")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.signups == nil {
		return errors.New("repository signups should be initialized")
	}

	if m.emailChanges == nil {
		return errors.New("repository emailChanges should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Signups() Signups {
	return m.signups
}

func (m mngr) EmailChanges() EmailChanges {
	return m.emailChanges
}
