package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gocampus/internal/dbmysql"
)

// UserDirectory reads profile summaries owned by the profile service.
type UserDirectory interface {
	Profiles(ctx context.Context, ids []uint64) (map[uint64]*dbmysql.User, error)
}

type userDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) UserDirectory {
	return &userDirectory{db: db}
}

func (d *userDirectory) Profiles(ctx context.Context, ids []uint64) (map[uint64]*dbmysql.User, error) {
	out := make(map[uint64]*dbmysql.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []*dbmysql.User
	if err := d.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	for _, u := range users {
		out[u.UserID] = u
	}
	return out, nil
}
