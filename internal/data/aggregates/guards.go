package aggregates

import (
	"strings"

	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
)

// CASGuard provides the compare-and-set primitive behind optimistic
// locking on versioned rows.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, domain.InvariantError("missing db transaction context")
}

// UpdateByVersion updates a row only when id+version both match, bumping
// the version column in the same statement. A false return means the
// caller's view of the row is stale.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table, id string, expectedVersion int, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == "" {
		return false, domain.ValidationError("table and id are required for UpdateByVersion")
	}
	if expectedVersion < 1 {
		return false, domain.ValidationError("expectedVersion must be >= 1")
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["version"] = expectedVersion + 1
	res := db.Table(table).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RowExists reports whether the row is present at all, distinguishing a
// version conflict from a vanished record.
func (g CASGuard) RowExists(dbc dbctx.Context, table, id string) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
