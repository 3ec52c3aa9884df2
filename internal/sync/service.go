package sync

import (
	"context"
	"database/sql"
	stdsync "sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/observability"
	"github.com/iamwavecut/totem/internal/platform"
)

type RestrictedKind string

const (
	KindBanned RestrictedKind = "banned"
	KindKicked RestrictedKind = "kicked"
)

type participantSource interface {
	Participants(ctx context.Context, chatID int64, filter platform.ParticipantFilter, offset, limit int) ([]platform.Participant, error)
}

type syncStore interface {
	UpsertUser(ctx context.Context, rec *db.UserRecord) error
	TouchTable(ctx context.Context, tableName string) error
}

// Service reconciles the store against the platform's authoritative
// participant lists. Pages are committed as they arrive; a failing page
// aborts the rest of its run and the category watermark only moves on a
// fully successful run.
type Service struct {
	source   participantSource
	store    syncStore
	groupID  int64
	interval time.Duration
	pageSize int

	runMutex  stdsync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg stdsync.WaitGroup
}

func NewService(source participantSource, store syncStore, groupID int64, interval time.Duration, pageSize int) *Service {
	return &Service{
		source:   source,
		store:    store,
		groupID:  groupID,
		interval: interval,
		pageSize: pageSize,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	s.workersWg.Add(1)
	go func() {
		defer s.workersWg.Done()
		if err := s.RunAll(runCtx); err != nil && !errorsIsCanceled(err) {
			log.WithError(err).Error("initial sync run failed")
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := s.RunAll(runCtx); err != nil && !errorsIsCanceled(err) {
					log.WithError(err).Error("periodic sync run failed")
				}
			}
		}
	}()

	s.started = true
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	cancel := s.runCancel
	s.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// RunAll reconciles every category. Categories run concurrently; the
// store serializes conflicting writes.
func (s *Service) RunAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.SyncMembers(gctx) })
	g.Go(func() error { return s.SyncRestricted(gctx, KindBanned) })
	g.Go(func() error { return s.SyncRestricted(gctx, KindKicked) })
	g.Go(func() error { return s.SyncAdmins(gctx) })
	return g.Wait()
}

func (s *Service) SyncMembers(ctx context.Context) error {
	return s.syncCategory(ctx, "members", platform.FilterRecent, "users", memberRecord)
}

func (s *Service) SyncRestricted(ctx context.Context, kind RestrictedKind) error {
	filter := platform.FilterBanned
	if kind == KindKicked {
		filter = platform.FilterKicked
	}
	return s.syncCategory(ctx, string(kind), filter, "restricted", func(p platform.Participant) *db.UserRecord {
		return restrictedRecord(p, kind)
	})
}

func (s *Service) SyncAdmins(ctx context.Context) error {
	return s.syncCategory(ctx, "admins", platform.FilterAdmins, "admins", adminRecord)
}

func (s *Service) syncCategory(ctx context.Context, kind string, filter platform.ParticipantFilter, table string, build func(platform.Participant) *db.UserRecord) error {
	entry := log.WithFields(log.Fields{
		"runID": uuid.New(),
		"kind":  kind,
	})

	offset, total := 0, 0
	for {
		page, err := s.source.Participants(ctx, s.groupID, filter, offset, s.pageSize)
		if errors.Is(err, platform.ErrUnsupported) {
			entry.Warn("transport cant enumerate this category, skipping")
			observability.RecordSyncRun(kind, "skipped")
			return nil
		}
		if err != nil {
			observability.RecordSyncRun(kind, "error")
			return errors.Wrapf(err, "fetch %s page at offset %d", kind, offset)
		}
		if len(page) == 0 {
			break
		}

		for _, participant := range page {
			if err := s.store.UpsertUser(ctx, build(participant)); err != nil {
				observability.RecordSyncRun(kind, "error")
				return errors.Wrapf(err, "upsert %s participant %d", kind, participant.User.ID)
			}
		}
		total += len(page)

		if len(page) < s.pageSize {
			break
		}
		offset += len(page)
	}

	if err := s.store.TouchTable(ctx, table); err != nil {
		observability.RecordSyncRun(kind, "error")
		return errors.Wrapf(err, "bump %s watermark", table)
	}
	entry.WithField("count", total).Info("sync run complete")
	observability.RecordSyncRun(kind, "success")
	return nil
}

func profileFromUser(user platform.User, inGroup bool) db.UserProfile {
	return db.UserProfile{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsBot:     user.IsBot,
		IsPremium: user.IsPremium,
		IsInGroup: inGroup,
	}
}

func memberRecord(p platform.Participant) *db.UserRecord {
	return &db.UserRecord{Profile: profileFromUser(p.User, true)}
}

func restrictedRecord(p platform.Participant, kind RestrictedKind) *db.UserRecord {
	restriction := &db.Restriction{
		UserID:   p.User.ID,
		IsBanned: kind == KindBanned,
		IsKicked: kind == KindKicked,
	}
	if p.RestrictedBy != 0 {
		restriction.RestrictedBy = sql.NullInt64{Int64: p.RestrictedBy, Valid: true}
	}
	if !p.RestrictionDate.IsZero() {
		restriction.RestrictionDate = sql.NullTime{Time: p.RestrictionDate, Valid: true}
	}
	if !p.UntilDate.IsZero() {
		restriction.UntilDate = sql.NullTime{Time: p.UntilDate, Valid: true}
	}

	rec := &db.UserRecord{
		Profile:     profileFromUser(p.User, false),
		Restriction: restriction,
	}
	if p.RestrictedRights != nil {
		rec.RestrictedRights = restrictedRightsRow(p.User.ID, p.RestrictedRights)
	}
	return rec
}

func adminRecord(p platform.Participant) *db.UserRecord {
	rec := &db.UserRecord{
		Profile: profileFromUser(p.User, true),
		Admin:   &db.Admin{UserID: p.User.ID, IsCreator: p.IsCreator},
	}
	if p.AdminRights != nil {
		rec.AdminRights = &db.AdminRights{
			UserID:         p.User.ID,
			ChangeInfo:     p.AdminRights.ChangeInfo,
			PostMessages:   p.AdminRights.PostMessages,
			EditMessages:   p.AdminRights.EditMessages,
			DeleteMessages: p.AdminRights.DeleteMessages,
			BanUsers:       p.AdminRights.BanUsers,
			InviteUsers:    p.AdminRights.InviteUsers,
			PinMessages:    p.AdminRights.PinMessages,
			AddAdmins:      p.AdminRights.AddAdmins,
			Anonymous:      p.AdminRights.Anonymous,
			ManageCall:     p.AdminRights.ManageCall,
			Other:          p.AdminRights.Other,
			ManageTopics:   p.AdminRights.ManageTopics,
		}
	}
	return rec
}

func restrictedRightsRow(userID int64, rights *platform.RestrictedRights) *db.RestrictedRights {
	return &db.RestrictedRights{
		UserID:          userID,
		ViewMessages:    rights.ViewMessages,
		SendMessages:    rights.SendMessages,
		SendMedia:       rights.SendMedia,
		SendStickers:    rights.SendStickers,
		SendGifs:        rights.SendGifs,
		SendGames:       rights.SendGames,
		SendInline:      rights.SendInline,
		EmbedLinks:      rights.EmbedLinks,
		SendPolls:       rights.SendPolls,
		ChangeInfo:      rights.ChangeInfo,
		InviteUsers:     rights.InviteUsers,
		PinMessages:     rights.PinMessages,
		ManageTopics:    rights.ManageTopics,
		SendPhotos:      rights.SendPhotos,
		SendVideos:      rights.SendVideos,
		SendRoundvideos: rights.SendRoundvideos,
		SendAudios:      rights.SendAudios,
		SendVoices:      rights.SendVoices,
		SendDocs:        rights.SendDocs,
		SendPlain:       rights.SendPlain,
	}
}

func errorsIsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
