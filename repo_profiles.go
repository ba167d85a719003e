package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Profiles interface {
	repository.Repository[*Profile]

	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Profile, error)
	ListVisible(ctx context.Context, viewer Identity, limit, offset int) ([]*Profile, error)
	Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (a *profiles) Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	if record != nil {
		record.EnsurePrivacy()
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *profiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return a.GetByUserIDTx(ctx, a.db, userID)
}

func (a *profiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *profiles) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

// GetByUsernameTx joins through users so callers can resolve a profile
// straight from the public handle.
func (a *profiles) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Join(`JOIN "users" AS "usr" ON "usr"."id" = ?TableAlias."user_id"`).
		Where(`LOWER("usr"."username") = ?`, NormalizeUsername(username)).
		Where(`"usr"."deleted_at" IS NULL`).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"username": username,
				})
		}
		return nil, err
	}

	return record, nil
}

// ListVisible returns profiles the viewer is allowed to see. Staff viewers
// get everything, everyone else gets open profiles plus their own.
func (a *profiles) ListVisible(ctx context.Context, viewer Identity, limit, offset int) ([]*Profile, error) {
	records := []*Profile{}

	q := a.db.NewSelect().
		Model(&records).
		Join(`JOIN "users" AS "usr" ON "usr"."id" = ?TableAlias."user_id"`).
		Where(`"usr"."deleted_at" IS NULL`).
		Where(`"usr"."status" = ?`, UserStatusActive).
		OrderExpr(`LOWER("usr"."username") ASC`).
		Limit(limit).
		Offset(offset)

	if !viewerIsStaff(viewer) {
		if viewer != nil {
			q = q.Where(`(?TableAlias."privacy" = ? OR "usr"."id" = ?)`, PrivacyOpen, viewer.ID())
		} else {
			q = q.Where(`?TableAlias."privacy" = ?`, PrivacyOpen)
		}
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func viewerIsStaff(viewer Identity) bool {
	if viewer == nil {
		return false
	}
	return UserRole(viewer.Role()).IsAtLeast(RoleAdmin)
}
