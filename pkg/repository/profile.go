package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/verist/newscast/pkg/domain"
)

// ErrProfileNotFound is returned when no profile exists for a user id
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository handles user profile persistence. Map-valued fields are
// stored as JSON text columns.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// dbProfile mirrors the profiles table row
type dbProfile struct {
	UserID         string    `db:"user_id"`
	InterestTags   string    `db:"interest_tags"`
	KeywordFilters string    `db:"keyword_filters"`
	SourceWeights  string    `db:"source_weights"`
	Affinity       string    `db:"affinity"`
	MinImportance  float64   `db:"min_importance"`
	MaxDailyItems  int       `db:"max_daily_items"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// GetProfile retrieves a profile by user id, ErrProfileNotFound when missing
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var row dbProfile
	err := r.db.GetContext(ctx, &row, "SELECT * FROM profiles WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return r.toDomainProfile(&row)
}

// SaveProfile inserts or updates a profile
func (r *ProfileRepository) SaveProfile(ctx context.Context, profile *domain.UserProfile) error {
	row, err := r.toDBProfile(profile)
	if err != nil {
		return err
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := `
			INSERT INTO profiles (
				user_id, interest_tags, keyword_filters, source_weights,
				affinity, min_importance, max_daily_items, created_at, updated_at
			) VALUES (
				:user_id, :interest_tags, :keyword_filters, :source_weights,
				:affinity, :min_importance, :max_daily_items, :created_at, :updated_at
			)
			ON CONFLICT(user_id) DO UPDATE SET
				interest_tags = excluded.interest_tags,
				keyword_filters = excluded.keyword_filters,
				source_weights = excluded.source_weights,
				affinity = excluded.affinity,
				min_importance = excluded.min_importance,
				max_daily_items = excluded.max_daily_items,
				updated_at = excluded.updated_at
		`
		_, err := r.db.NamedExecContext(ctx, query, row)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("save profile: %w", err)}
		}
		return nil
	})
}

// ListUserIDs returns all known user ids in stable order
func (r *ProfileRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT user_id FROM profiles ORDER BY user_id"); err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

// DeleteProfile removes a profile, no error when the user is unknown
func (r *ProfileRepository) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM profiles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) toDBProfile(p *domain.UserProfile) (*dbProfile, error) {
	tags, err := json.Marshal(p.InterestTags)
	if err != nil {
		return nil, fmt.Errorf("marshal interest tags: %w", err)
	}
	filters, err := json.Marshal(p.Filters)
	if err != nil {
		return nil, fmt.Errorf("marshal keyword filters: %w", err)
	}
	weights, err := json.Marshal(p.SourceWeights)
	if err != nil {
		return nil, fmt.Errorf("marshal source weights: %w", err)
	}
	affinity, err := json.Marshal(p.Affinity)
	if err != nil {
		return nil, fmt.Errorf("marshal affinity: %w", err)
	}

	return &dbProfile{
		UserID:         p.UserID,
		InterestTags:   string(tags),
		KeywordFilters: string(filters),
		SourceWeights:  string(weights),
		Affinity:       string(affinity),
		MinImportance:  p.MinImportance,
		MaxDailyItems:  p.MaxDailyItems,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

func (r *ProfileRepository) toDomainProfile(row *dbProfile) (*domain.UserProfile, error) {
	p := &domain.UserProfile{
		UserID:        row.UserID,
		MinImportance: row.MinImportance,
		MaxDailyItems: row.MaxDailyItems,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}

	if err := json.Unmarshal([]byte(row.InterestTags), &p.InterestTags); err != nil {
		return nil, fmt.Errorf("unmarshal interest tags: %w", err)
	}
	if err := json.Unmarshal([]byte(row.KeywordFilters), &p.Filters); err != nil {
		return nil, fmt.Errorf("unmarshal keyword filters: %w", err)
	}
	if err := json.Unmarshal([]byte(row.SourceWeights), &p.SourceWeights); err != nil {
		return nil, fmt.Errorf("unmarshal source weights: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Affinity), &p.Affinity); err != nil {
		return nil, fmt.Errorf("unmarshal affinity: %w", err)
	}
	return p, nil
}
