package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vizspace/internal/apperr"
	"vizspace/internal/database"
	"vizspace/internal/isolation"
	"vizspace/internal/membership"
	"vizspace/internal/role"
)

const (
	maxNameLength = 100
	// maxSlugSuffix bounds the search for a free slug suffix.
	maxSlugSuffix = 10000
	// maxInsertAttempts bounds retries after losing a slug race.
	maxInsertAttempts = 5
)

var (
	ErrNotFound        = apperr.NotFound("workspace not found")
	ErrCreatorNotFound = apperr.NotFound("creator not found")
	ErrInvalidName     = apperr.Validation("workspace name must be between 1 and 100 characters")
	ErrSlugExhausted   = apperr.Conflict("could not allocate a unique workspace slug")
)

// CreateInput describes a new workspace.
type CreateInput struct {
	Name      string
	CreatorID uuid.UUID
	// Slug is optional; it is normalized like a name.
	Slug     string
	Settings *SettingsOverrides
}

// Created is everything the factory wrote.
type Created struct {
	Workspace  *Workspace
	Membership *membership.Member
	Settings   *Settings
}

// Factory creates a workspace together with its admin membership and
// settings row, atomically.
type Factory struct {
	db    database.TxBeginner
	guard *isolation.Guard
}

func NewFactory(db database.TxBeginner, guard *isolation.Guard) *Factory {
	return &Factory{db: db, guard: guard}
}

// Create runs CreateInTx in its own transaction.
func (f *Factory) Create(ctx context.Context, in CreateInput) (*Created, error) {
	var out *Created
	err := database.WithTx(ctx, f.db, func(tx *sql.Tx) error {
		var err error
		out, err = f.CreateInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateInTx writes the workspace, the creator's admin membership and the
// settings row through tx. The caller owns commit and rollback.
func (f *Factory) CreateInTx(ctx context.Context, tx database.DBTX, in CreateInput) (*Created, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	settings := DefaultSettings(uuid.Nil)
	if err := in.Settings.Apply(settings); err != nil {
		return nil, err
	}

	ds := NewDatastore(tx)

	exists, err := ds.UserExists(ctx, in.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check creator: %w", err)
	}
	if !exists {
		return nil, ErrCreatorNotFound
	}

	base := in.Slug
	if strings.TrimSpace(base) == "" {
		base = name
	}

	w := &Workspace{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: in.CreatorID,
	}
	if err := insertWithFreeSlug(ctx, ds, w, Slugify(base)); err != nil {
		return nil, err
	}

	member := &membership.Member{
		WorkspaceID: w.ID,
		UserID:      in.CreatorID,
		Role:        role.Admin,
		InvitedBy:   uuid.NullUUID{UUID: in.CreatorID, Valid: true},
	}
	if err := membership.NewStore(tx, f.guard).Add(ctx, member); err != nil {
		return nil, err
	}

	settings.WorkspaceID = w.ID
	if err := f.guard.BeforeCreate(settings); err != nil {
		return nil, err
	}
	if err := ds.InsertSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to create workspace settings: %w", err)
	}

	return &Created{Workspace: w, Membership: member, Settings: settings}, nil
}

// insertWithFreeSlug picks the smallest free slug and inserts w. When a
// concurrent insert takes the slug first, the conflict-free insert returns no
// row and the search starts again.
func insertWithFreeSlug(ctx context.Context, ds *Datastore, w *Workspace, base string) error {
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		slug, err := freeSlug(ctx, ds, base)
		if err != nil {
			return err
		}
		w.Slug = slug

		inserted, err := ds.InsertIfSlugFree(ctx, w)
		if err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}
		if inserted {
			return nil
		}
	}
	return ErrSlugExhausted
}

// freeSlug returns base, or base-N for the smallest N that is not taken.
func freeSlug(ctx context.Context, ds *Datastore, base string) (string, error) {
	candidate := base
	for n := 1; n <= maxSlugSuffix; n++ {
		taken, err := ds.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", ErrSlugExhausted
}
