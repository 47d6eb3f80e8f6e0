package profiles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gluk-w/tmuxremote/internal/crypto"
	"github.com/gluk-w/tmuxremote/internal/database"
	"github.com/gluk-w/tmuxremote/internal/logutil"
)

// GormStore keeps profiles in the database.Profile table with secrets
// sealed by package crypto.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) List(ctx context.Context) ([]Profile, error) {
	var rows []database.Profile
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]Profile, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Profile, bool, error) {
	var row database.Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("get profile: %w", err)
	}
	p, err := fromRow(row)
	if err != nil {
		return Profile{}, false, err
	}
	return p, true, nil
}

func (s *GormStore) Add(ctx context.Context, p *Profile) error {
	*p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.checkName(ctx, p.Name, ""); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	row, err := toRow(*p)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add profile: %w", err)
	}
	p.CreatedAt = row.CreatedAt
	log.Printf("[profiles] added %s (%s)", logutil.SanitizeForLog(p.Name), logutil.SanitizeForLog(p.DisplayAddress()))
	return nil
}

func (s *GormStore) Update(ctx context.Context, p Profile) error {
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	var existing database.Profile
	err := s.db.WithContext(ctx).Where("id = ?", p.ID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if err := s.checkName(ctx, p.Name, p.ID); err != nil {
		return err
	}

	row, err := toRow(p)
	if err != nil {
		return err
	}
	row.CreatedAt = existing.CreatedAt
	row.LastConnectedAt = existing.LastConnectedAt
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&database.Profile{})
	if res.Error != nil {
		return fmt.Errorf("delete profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) TouchLastConnected(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&database.Profile{}).Where("id = ?", id).
		Update("last_connected_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("touch profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// checkName rejects a name already used by a profile other than exceptID.
func (s *GormStore) checkName(ctx context.Context, name, exceptID string) error {
	var count int64
	q := s.db.WithContext(ctx).Model(&database.Profile{}).Where("name = ?", strings.TrimSpace(name))
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check profile name: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	return nil
}

func toRow(p Profile) (database.Profile, error) {
	password, err := crypto.Encrypt(p.Password)
	if err != nil {
		return database.Profile{}, fmt.Errorf("encrypt password: %w", err)
	}
	key, err := crypto.Encrypt(p.PrivateKey)
	if err != nil {
		return database.Profile{}, fmt.Errorf("encrypt private key: %w", err)
	}
	return database.Profile{
		ID:         p.ID,
		Name:       strings.TrimSpace(p.Name),
		Host:       strings.TrimSpace(p.Host),
		Port:       p.Port,
		Username:   strings.TrimSpace(p.Username),
		Password:   password,
		PrivateKey: key,
	}, nil
}

func fromRow(row database.Profile) (Profile, error) {
	password, err := crypto.Decrypt(row.Password)
	if err != nil {
		return Profile{}, fmt.Errorf("decrypt password of %s: %w", row.Name, err)
	}
	key, err := crypto.Decrypt(row.PrivateKey)
	if err != nil {
		return Profile{}, fmt.Errorf("decrypt private key of %s: %w", row.Name, err)
	}
	return Profile{
		ID:              row.ID,
		Name:            row.Name,
		Host:            row.Host,
		Port:            row.Port,
		Username:        row.Username,
		Password:        password,
		PrivateKey:      key,
		CreatedAt:       row.CreatedAt,
		LastConnectedAt: row.LastConnectedAt,
	}, nil
}
