// Package studygroup owns study group lifecycle and membership capacity.
package studygroup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"gocampus/internal/common"
	"gocampus/internal/dbmysql"
	"gocampus/internal/gateway"
)

const (
	maxNameLength    = 100
	maxSubjectLength = 100
	minMembers       = 2
	maxMembers       = 500
)

type Fanout interface {
	Broadcast(room string, ev gateway.Event) int
	CloseRoom(room string) int
}

type DeletionNotifier interface {
	SendGroupDeletedNotification(groupID uint64, groupName string, memberIDs []uint64, creatorID uint64)
}

type CreateInput struct {
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	MaxMembers  int    `json:"maxMembers"`
	IsOnline    bool   `json:"isOnline"`
	Schedule    string `json:"schedule"`
	Location    string `json:"location"`
}

// GroupView is a group as seen by one viewer.
type GroupView struct {
	*dbmysql.StudyGroup
	IsMember  bool     `json:"isMember"`
	IsCreator bool     `json:"isCreator"`
	MemberIDs []uint64 `json:"memberIds,omitempty"`
}

type membersPayload struct {
	GroupID     uint64 `json:"groupId"`
	MemberCount int    `json:"memberCount"`
}

type deletedPayload struct {
	GroupID uint64 `json:"groupId"`
}

type Service interface {
	CreateGroup(ctx context.Context, creatorID uint64, in CreateInput) (*GroupView, error)
	ListGroups(ctx context.Context, viewerID uint64, filter Filter) ([]*GroupView, error)
	ListMyGroups(ctx context.Context, userID uint64) ([]*GroupView, error)
	GetGroup(ctx context.Context, groupID, viewerID uint64) (*GroupView, error)
	JoinGroup(ctx context.Context, groupID, userID uint64) (*GroupView, error)
	LeaveGroup(ctx context.Context, groupID, userID uint64) (*GroupView, error)
	DeleteGroup(ctx context.Context, groupID, userID uint64) error
	Exists(ctx context.Context, groupID uint64) (bool, error)
}

type service struct {
	repo     Repository
	fanout   Fanout
	notifier DeletionNotifier
	locks    *common.KeyedMutex
	logger   *slog.Logger
}

func NewService(repo Repository, fanout Fanout, notifier DeletionNotifier, logger *slog.Logger) Service {
	return &service{
		repo:     repo,
		fanout:   fanout,
		notifier: notifier,
		locks:    common.NewKeyedMutex(),
		logger:   logger.With("component", "studygroups"),
	}
}

func lockKey(groupID uint64) string {
	return "group:" + strconv.FormatUint(groupID, 10)
}

func (s *service) CreateGroup(ctx context.Context, creatorID uint64, in CreateInput) (*GroupView, error) {
	if err := common.ValidateUserID("creator", creatorID); err != nil {
		return nil, err
	}
	name, err := common.ValidateRequiredText("name", in.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	subject, err := common.ValidateRequiredText("subject", in.Subject, maxSubjectLength)
	if err != nil {
		return nil, err
	}
	if in.MaxMembers < minMembers || in.MaxMembers > maxMembers {
		return nil, common.Invalid("maxMembers must be between %d and %d", minMembers, maxMembers)
	}

	now := time.Now().UTC()
	group := &dbmysql.StudyGroup{
		Name:        name,
		Subject:     subject,
		Description: in.Description,
		CreatorID:   creatorID,
		MaxMembers:  in.MaxMembers,
		IsOnline:    in.IsOnline,
		Schedule:    in.Schedule,
		Location:    in.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, err
	}

	s.logger.Info("study group created", "group_id", group.ID, "creator_id", creatorID)
	return &GroupView{StudyGroup: group, IsMember: true, IsCreator: true}, nil
}

func (s *service) views(ctx context.Context, viewerID uint64, groups []*dbmysql.StudyGroup) ([]*GroupView, error) {
	ids := make([]uint64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	member, err := s.repo.Memberships(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, &GroupView{StudyGroup: g, IsMember: member[g.ID], IsCreator: g.CreatorID == viewerID})
	}
	return out, nil
}

func (s *service) ListGroups(ctx context.Context, viewerID uint64, filter Filter) ([]*GroupView, error) {
	groups, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, viewerID, groups)
}

func (s *service) ListMyGroups(ctx context.Context, userID uint64) ([]*GroupView, error) {
	groups, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, &GroupView{StudyGroup: g, IsMember: true, IsCreator: g.CreatorID == userID})
	}
	return out, nil
}

func (s *service) GetGroup(ctx context.Context, groupID, viewerID uint64) (*GroupView, error) {
	group, err := s.repo.Find(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}

	view := &GroupView{StudyGroup: group, IsCreator: group.CreatorID == viewerID, MemberIDs: members}
	for _, id := range members {
		if id == viewerID {
			view.IsMember = true
			break
		}
	}
	return view, nil
}

func (s *service) JoinGroup(ctx context.Context, groupID, userID uint64) (*GroupView, error) {
	unlock := s.locks.Lock(lockKey(groupID))
	defer unlock()

	count, err := s.repo.AddMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	s.announceMembers(groupID, count)

	group, err := s.repo.Find(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupView{StudyGroup: group, IsMember: true, IsCreator: group.CreatorID == userID}, nil
}

func (s *service) LeaveGroup(ctx context.Context, groupID, userID uint64) (*GroupView, error) {
	unlock := s.locks.Lock(lockKey(groupID))
	defer unlock()

	group, err := s.repo.Find(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID == userID {
		return nil, common.Invalid("the creator cannot leave the group, delete it instead")
	}

	count, err := s.repo.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	group.MemberCount = count
	s.announceMembers(groupID, count)

	return &GroupView{StudyGroup: group}, nil
}

func (s *service) announceMembers(groupID uint64, count int) {
	s.fanout.Broadcast(gateway.GroupRoom(groupID), gateway.Event{
		Name: gateway.EventGroupMembers,
		Data: membersPayload{GroupID: groupID, MemberCount: count},
	})
}

func (s *service) DeleteGroup(ctx context.Context, groupID, userID uint64) error {
	unlock := s.locks.Lock(lockKey(groupID))
	defer unlock()

	group, err := s.repo.Find(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatorID != userID {
		return common.Forbidden("only the creator can delete this group")
	}
	members, err := s.repo.MemberIDs(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, groupID); err != nil {
		return err
	}

	room := gateway.GroupRoom(groupID)
	s.fanout.Broadcast(room, gateway.Event{Name: gateway.EventGroupDeleted, Data: deletedPayload{GroupID: groupID}})
	s.fanout.CloseRoom(room)
	s.notifier.SendGroupDeletedNotification(groupID, group.Name, members, group.CreatorID)

	s.logger.Info("study group deleted", "group_id", groupID, "members", len(members))
	return nil
}

func (s *service) Exists(ctx context.Context, groupID uint64) (bool, error) {
	return s.repo.Exists(ctx, groupID)
}
