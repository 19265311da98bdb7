package studygroup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gocampus/internal/common"
	"gocampus/internal/dbmysql"
)

// Filter narrows a group listing. Zero values match everything.
type Filter struct {
	Subject  string
	IsOnline *bool
}

// Repository is the membership store. Only the group service writes through it.
type Repository interface {
	Create(ctx context.Context, group *dbmysql.StudyGroup) error
	Find(ctx context.Context, id uint64) (*dbmysql.StudyGroup, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	List(ctx context.Context, filter Filter) ([]*dbmysql.StudyGroup, error)
	ListByMember(ctx context.Context, userID uint64) ([]*dbmysql.StudyGroup, error)
	Memberships(ctx context.Context, userID uint64, groupIDs []uint64) (map[uint64]bool, error)
	MemberIDs(ctx context.Context, groupID uint64) ([]uint64, error)
	AddMember(ctx context.Context, groupID, userID uint64) (int, error)
	RemoveMember(ctx context.Context, groupID, userID uint64) (int, error)
	Delete(ctx context.Context, groupID uint64) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create inserts the group with its creator as the first member.
func (r *repository) Create(ctx context.Context, group *dbmysql.StudyGroup) error {
	group.MemberCount = 1
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		member := &dbmysql.GroupMember{GroupID: group.ID, UserID: group.CreatorID, JoinedAt: group.CreatedAt}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		return nil
	})
}

func (r *repository) Find(ctx context.Context, id uint64) (*dbmysql.StudyGroup, error) {
	var group dbmysql.StudyGroup
	err := r.db.WithContext(ctx).First(&group, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("study group %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find group %d: %w", id, err)
	}
	return &group, nil
}

func (r *repository) Exists(ctx context.Context, id uint64) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&dbmysql.StudyGroup{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count group %d: %w", id, err)
	}
	return n > 0, nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]*dbmysql.StudyGroup, error) {
	q := r.db.WithContext(ctx).Model(&dbmysql.StudyGroup{})
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if filter.IsOnline != nil {
		q = q.Where("is_online = ?", *filter.IsOnline)
	}

	var groups []*dbmysql.StudyGroup
	if err := q.Order("created_at DESC").Order("id DESC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (r *repository) ListByMember(ctx context.Context, userID uint64) ([]*dbmysql.StudyGroup, error) {
	var groups []*dbmysql.StudyGroup
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = study_groups.id").
		Where("group_members.user_id = ?", userID).
		Order("study_groups.created_at DESC").
		Order("study_groups.id DESC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list groups for member %d: %w", userID, err)
	}
	return groups, nil
}

// Memberships reports which of groupIDs userID belongs to.
func (r *repository) Memberships(ctx context.Context, userID uint64, groupIDs []uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&dbmysql.GroupMember{}).
		Where("user_id = ? AND group_id IN ?", userID, groupIDs).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("memberships for %d: %w", userID, err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *repository) MemberIDs(ctx context.Context, groupID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&dbmysql.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("joined_at").
		Order("id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("members of %d: %w", groupID, err)
	}
	return ids, nil
}

// AddMember claims a seat with a conditional update so the count can never pass max_members,
// then inserts the membership. It returns the new member count.
func (r *repository) AddMember(ctx context.Context, groupID, userID uint64) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&dbmysql.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if existing > 0 {
			return common.InvalidCode(common.CodeAlreadyMember, "already a member of this group")
		}

		res := tx.Model(&dbmysql.StudyGroup{}).
			Where("id = ? AND member_count < max_members", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("claim seat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var group dbmysql.StudyGroup
			err := tx.Select("id").First(&group, groupID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("study group %d not found", groupID)
			}
			if err != nil {
				return fmt.Errorf("find group %d: %w", groupID, err)
			}
			return common.InvalidCode(common.CodeGroupFull, "study group is full")
		}

		member := &dbmysql.GroupMember{GroupID: groupID, UserID: userID, JoinedAt: time.Now().UTC()}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		return tx.Model(&dbmysql.StudyGroup{}).Select("member_count").Where("id = ?", groupID).Scan(&count).Error
	})
	return count, err
}

// RemoveMember returns the new member count.
func (r *repository) RemoveMember(ctx context.Context, groupID, userID uint64) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&dbmysql.GroupMember{})
		if res.Error != nil {
			return fmt.Errorf("delete membership: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.Invalid("not a member of this group")
		}
		if err := tx.Model(&dbmysql.StudyGroup{}).
			Where("id = ? AND member_count > 0", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count - 1")).Error; err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
		return tx.Model(&dbmysql.StudyGroup{}).Select("member_count").Where("id = ?", groupID).Scan(&count).Error
	})
	return count, err
}

func (r *repository) Delete(ctx context.Context, groupID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&dbmysql.GroupMember{}).Error; err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		res := tx.Delete(&dbmysql.StudyGroup{}, groupID)
		if res.Error != nil {
			return fmt.Errorf("delete group: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.NotFound("study group %d not found", groupID)
		}
		return nil
	})
}
