package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/logolab/internal/announce"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingNotifier   = errors.New("notifier is required")
	errMissingChannels   = errors.New("review and voting channels are required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew    = "workflow.service.new"
	opSubmit        = "workflow.submit"
	opApprove       = "workflow.approve"
	opVote          = "workflow.vote"
	opMakeModerator = "workflow.make_moderator"
	opCloseVoting   = "workflow.close_voting"
	opReopenVoting  = "workflow.reopen_voting"
	opResolveUser   = "workflow.resolve_user"
	opStandings     = "workflow.standings"
)

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required by the workflow engine.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Notifier    Notifier
	Channels    Channels
	AdminUserID string
	Logger      *zap.Logger
}

// Service implements the submit/approve/vote/make-moderator/close-voting
// transitions. All coordination happens through the store; the service holds
// no mutable state across calls.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	notifier    Notifier
	channels    Channels
	adminUserID string
	logger      *zap.Logger
}

// NewService constructs the workflow engine from validated dependencies.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Notifier == nil {
		return nil, newServiceError(opServiceNew, "missing_notifier", errMissingNotifier)
	}
	if strings.TrimSpace(cfg.Channels.Review) == "" || strings.TrimSpace(cfg.Channels.Voting) == "" {
		return nil, newServiceError(opServiceNew, "missing_channels", errMissingChannels)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		notifier:    cfg.Notifier,
		channels:    cfg.Channels,
		adminUserID: strings.TrimSpace(cfg.AdminUserID),
		logger:      logger,
	}, nil
}

// Submit records a new unapproved submission for the acting user and alerts
// the moderation channel. Returns the generated submission id.
func (s *Service) Submit(ctx context.Context, actorPlatformID, displayName, text string) (string, error) {
	input, err := ParseSubmissionInput(text)
	if err != nil {
		return "", err
	}

	var actor User
	var submission Submission
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := s.getOrCreateUser(tx, actorPlatformID, displayName)
		if err != nil {
			return err
		}
		actor = *resolved

		submissionID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opSubmit, "id_generation_failed", err)
		}
		submission = Submission{
			ID:          submissionID,
			UserID:      actor.ID,
			ImageURL:    input.ImageURL,
			Description: input.Description,
			IsApproved:  false,
			CreatedAt:   s.clock().UTC(),
		}
		if err := tx.Create(&submission).Error; err != nil {
			return newServiceError(opSubmit, "submission_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opSubmit, "transaction_failed", txErr, zap.String("platform_user_id", actorPlatformID))
		return "", txErr
	}

	alert := announce.ReviewAlert(announce.CardInput{
		SubmissionID: submission.ID,
		Description:  submission.Description,
		ImageURL:     submission.ImageURL,
	}, actor.PlatformID)
	if _, err := s.notifier.PostMessage(ctx, s.channels.Review, alert); err != nil {
		s.logError(opSubmit, "review_alert_failed", err, zap.String("submission_id", submission.ID))
		return submission.ID, newServiceError(opSubmit, "review_alert_failed", errors.Join(ErrAnnounce, err))
	}

	return submission.ID, nil
}

// Approve flips a pending submission to approved, posts the public voting
// card and attaches the resulting message reference for in-place updates.
func (s *Service) Approve(ctx context.Context, actorPlatformID, displayName, submissionID string) error {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return newServiceError(opApprove, "missing_submission_id", ErrValidation)
	}

	var submission Submission
	var votes int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := s.getOrCreateUser(tx, actorPlatformID, displayName)
		if err != nil {
			return err
		}
		if !actor.IsModerator {
			return ErrPermission
		}

		err = tx.Where("id = ? AND is_approved = ?", submissionID, false).Take(&submission).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return newServiceError(opApprove, "submission_select_failed", err)
		}

		if err := tx.Model(&Submission{}).Where("id = ?", submission.ID).Update("is_approved", true).Error; err != nil {
			return newServiceError(opApprove, "approval_update_failed", err)
		}
		submission.IsApproved = true

		if err := tx.Model(&Vote{}).Where("submission_id = ?", submission.ID).Count(&votes).Error; err != nil {
			return newServiceError(opApprove, "vote_count_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	card := announce.VotingCard(announce.CardInput{
		SubmissionID: submission.ID,
		Description:  submission.Description,
		ImageURL:     submission.ImageURL,
		Votes:        votes,
	})
	ref, err := s.notifier.PostMessage(ctx, s.channels.Voting, card)
	if err != nil {
		// The approval is already durable; the moderator has to retry
		// visibility manually.
		s.logError(opApprove, "card_post_failed", err, zap.String("submission_id", submission.ID))
		return newServiceError(opApprove, "card_post_failed", errors.Join(ErrAnnounce, err))
	}

	if err := s.storeMessageRef(ctx, submission.ID, ref); err != nil {
		s.logError(opApprove, "message_ref_update_failed", err, zap.String("submission_id", submission.ID))
	}
	return nil
}

// VoteOutcome reports whether a ballot was accepted. AlreadyVoted is an
// expected frequent case, not a fault.
type VoteOutcome struct {
	AlreadyVoted bool
	Votes        int64
}

// CastVote records the acting user's single ballot against an approved
// submission. The existing-vote check and the insert run inside one
// transaction, backed by the unique voter index, so concurrent first votes
// cannot both land.
func (s *Service) CastVote(ctx context.Context, actorPlatformID, displayName, submissionID, sourceChannel string) (VoteOutcome, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return VoteOutcome{}, newServiceError(opVote, "missing_submission_id", ErrValidation)
	}

	var submission Submission
	var outcome VoteOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := s.getOrCreateUser(tx, actorPlatformID, displayName)
		if err != nil {
			return err
		}

		err = tx.Where("id = ? AND is_approved = ?", submissionID, true).Take(&submission).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return newServiceError(opVote, "submission_select_failed", err)
		}

		var existing Vote
		err = tx.Where("user_id = ?", actor.ID).Take(&existing).Error
		if err == nil {
			outcome.AlreadyVoted = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opVote, "vote_select_failed", err)
		}

		voteID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opVote, "id_generation_failed", err)
		}
		err = tx.Create(&Vote{
			ID:           voteID,
			UserID:       actor.ID,
			SubmissionID: submission.ID,
			CreatedAt:    s.clock().UTC(),
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			outcome.AlreadyVoted = true
			return nil
		}
		if err != nil {
			return newServiceError(opVote, "vote_insert_failed", err)
		}

		if err := tx.Model(&Vote{}).Where("submission_id = ?", submission.ID).Count(&outcome.Votes).Error; err != nil {
			return newServiceError(opVote, "vote_count_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return VoteOutcome{}, txErr
	}

	ephemeralChannel := sourceChannel
	if ephemeralChannel == "" {
		ephemeralChannel = submission.MessageChannel
	}

	if outcome.AlreadyVoted {
		if err := s.notifier.PostEphemeral(ctx, ephemeralChannel, actorPlatformID, "You have already voted."); err != nil {
			s.logError(opVote, "ephemeral_failed", err, zap.String("platform_user_id", actorPlatformID))
		}
		return outcome, nil
	}

	if err := s.notifier.PostEphemeral(ctx, ephemeralChannel, actorPlatformID, "Voted successfully!"); err != nil {
		s.logError(opVote, "ephemeral_failed", err, zap.String("platform_user_id", actorPlatformID))
	}

	if submission.MessageChannel != "" && submission.MessageTS != "" {
		card := announce.VotingCard(announce.CardInput{
			SubmissionID: submission.ID,
			Description:  submission.Description,
			ImageURL:     submission.ImageURL,
			Votes:        outcome.Votes,
		})
		if err := s.notifier.UpdateMessage(ctx, submission.MessageChannel, submission.MessageTS, card); err != nil {
			s.logError(opVote, "card_update_failed", err, zap.String("submission_id", submission.ID))
			return outcome, newServiceError(opVote, "card_update_failed", errors.Join(ErrAnnounce, err))
		}
	}

	return outcome, nil
}

// MakeModerator grants the target user moderator privilege. Both users are
// created lazily; repeating the grant is a no-op.
func (s *Service) MakeModerator(ctx context.Context, actorPlatformID, displayName, targetPlatformID string) error {
	targetPlatformID = strings.TrimSpace(targetPlatformID)
	if targetPlatformID == "" {
		return newServiceError(opMakeModerator, "missing_target", ErrValidation)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := s.getOrCreateUser(tx, actorPlatformID, displayName)
		if err != nil {
			return err
		}
		if !actor.IsModerator {
			return ErrPermission
		}

		target, err := s.getOrCreateUser(tx, targetPlatformID, targetPlatformID)
		if err != nil {
			return err
		}
		if target.IsModerator {
			return nil
		}
		if err := tx.Model(&User{}).Where("id = ?", target.ID).Update("is_moderator", true).Error; err != nil {
			return newServiceError(opMakeModerator, "moderator_update_failed", err)
		}
		return nil
	})
}

// WinnerAnnouncement reports the result of closing a voting round.
type WinnerAnnouncement struct {
	SubmissionID   string
	PlatformUserID string
	Votes          int64
}

// CloseVoting selects the approved submission with the highest vote count
// (ties go to the earliest-created candidate), purges all votes and announces
// the winner publicly. Submissions are retained for the next round.
func (s *Service) CloseVoting(ctx context.Context, actorPlatformID, displayName string) (WinnerAnnouncement, error) {
	var winner WinnerAnnouncement
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := s.getOrCreateUser(tx, actorPlatformID, displayName)
		if err != nil {
			return err
		}
		if !actor.IsModerator {
			return ErrPermission
		}

		var submissions []Submission
		err = tx.Where("is_approved = ?", true).
			Order("created_at ASC, id ASC").
			Find(&submissions).Error
		if err != nil {
			return newServiceError(opCloseVoting, "submission_list_failed", err)
		}
		if len(submissions) == 0 {
			return ErrNoSubmissions
		}

		var best *Submission
		var bestVotes int64
		var totalVotes int64
		for index := range submissions {
			var votes int64
			if err := tx.Model(&Vote{}).Where("submission_id = ?", submissions[index].ID).Count(&votes).Error; err != nil {
				return newServiceError(opCloseVoting, "vote_count_failed", err)
			}
			totalVotes += votes
			// Stable max: a tie keeps the earlier candidate.
			if best == nil || votes > bestVotes {
				best = &submissions[index]
				bestVotes = votes
			}
		}
		if totalVotes == 0 {
			return ErrNoVotes
		}

		var winningUser User
		if err := tx.Where("id = ?", best.UserID).Take(&winningUser).Error; err != nil {
			return newServiceError(opCloseVoting, "winner_select_failed", err)
		}

		if err := tx.Where("1 = 1").Delete(&Vote{}).Error; err != nil {
			return newServiceError(opCloseVoting, "vote_purge_failed", err)
		}

		winner = WinnerAnnouncement{
			SubmissionID:   best.ID,
			PlatformUserID: winningUser.PlatformID,
			Votes:          bestVotes,
		}
		return nil
	})
	if txErr != nil {
		return WinnerAnnouncement{}, txErr
	}

	banner := announce.WinnerBanner(winner.PlatformUserID, winner.Votes)
	if _, err := s.notifier.PostMessage(ctx, s.channels.Voting, banner); err != nil {
		s.logError(opCloseVoting, "banner_post_failed", err, zap.String("submission_id", winner.SubmissionID))
		return winner, newServiceError(opCloseVoting, "banner_post_failed", errors.Join(ErrAnnounce, err))
	}

	return winner, nil
}

// ReopenVoting re-posts every approved submission as a fresh voting card with
// its current count. It never purges votes or selects a winner; the scheduler
// drives it on its cadence.
func (s *Service) ReopenVoting(ctx context.Context) (int, error) {
	var submissions []Submission
	err := s.db.WithContext(ctx).
		Where("is_approved = ?", true).
		Order("created_at ASC, id ASC").
		Find(&submissions).Error
	if err != nil {
		return 0, newServiceError(opReopenVoting, "submission_list_failed", err)
	}

	posted := 0
	var failures int
	for index := range submissions {
		submission := submissions[index]
		var votes int64
		if err := s.db.WithContext(ctx).Model(&Vote{}).Where("submission_id = ?", submission.ID).Count(&votes).Error; err != nil {
			return posted, newServiceError(opReopenVoting, "vote_count_failed", err)
		}

		card := announce.VotingCard(announce.CardInput{
			SubmissionID: submission.ID,
			Description:  submission.Description,
			ImageURL:     submission.ImageURL,
			Votes:        votes,
		})
		ref, err := s.notifier.PostMessage(ctx, s.channels.Voting, card)
		if err != nil {
			s.logError(opReopenVoting, "card_post_failed", err, zap.String("submission_id", submission.ID))
			failures++
			continue
		}
		posted++

		if err := s.storeMessageRef(ctx, submission.ID, ref); err != nil {
			s.logError(opReopenVoting, "message_ref_update_failed", err, zap.String("submission_id", submission.ID))
		}
	}

	if failures > 0 {
		return posted, newServiceError(opReopenVoting, "card_post_failed", ErrAnnounce)
	}
	return posted, nil
}

// Standing is a read-only view of one approved submission and its live count.
type Standing struct {
	SubmissionID string
	Description  string
	ImageURL     string
	Votes        int64
}

// Standings lists approved submissions with current vote counts in the same
// stable order CloseVoting enumerates them.
func (s *Service) Standings(ctx context.Context) ([]Standing, error) {
	var submissions []Submission
	err := s.db.WithContext(ctx).
		Where("is_approved = ?", true).
		Order("created_at ASC, id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, newServiceError(opStandings, "submission_list_failed", err)
	}

	standings := make([]Standing, 0, len(submissions))
	for index := range submissions {
		var votes int64
		if err := s.db.WithContext(ctx).Model(&Vote{}).Where("submission_id = ?", submissions[index].ID).Count(&votes).Error; err != nil {
			return nil, newServiceError(opStandings, "vote_count_failed", err)
		}
		standings = append(standings, Standing{
			SubmissionID: submissions[index].ID,
			Description:  submissions[index].Description,
			ImageURL:     submissions[index].ImageURL,
			Votes:        votes,
		})
	}
	return standings, nil
}

// getOrCreateUser is the single lazy-creation path every operation funnels
// through. It also promotes the configured super-admin identity the first
// time it is seen.
func (s *Service) getOrCreateUser(tx *gorm.DB, platformID, displayName string) (*User, error) {
	platformID = strings.TrimSpace(platformID)
	if platformID == "" {
		return nil, newServiceError(opResolveUser, "missing_platform_user_id", ErrValidation)
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = platformID
	}

	var user User
	err := tx.Where("platform_id = ?", platformID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		userID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return nil, newServiceError(opResolveUser, "id_generation_failed", idErr)
		}
		user = User{
			ID:          userID,
			PlatformID:  platformID,
			DisplayName: displayName,
			CreatedAt:   s.clock().UTC(),
		}
		createErr := tx.Create(&user).Error
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			// Lost a creation race; the row exists now.
			if err := tx.Where("platform_id = ?", platformID).Take(&user).Error; err != nil {
				return nil, newServiceError(opResolveUser, "user_select_failed", err)
			}
		} else if createErr != nil {
			return nil, newServiceError(opResolveUser, "user_insert_failed", createErr)
		}
	} else if err != nil {
		return nil, newServiceError(opResolveUser, "user_select_failed", err)
	}

	if s.adminUserID != "" && user.PlatformID == s.adminUserID && !user.IsModerator {
		if err := tx.Model(&User{}).Where("id = ?", user.ID).Update("is_moderator", true).Error; err != nil {
			return nil, newServiceError(opResolveUser, "admin_promotion_failed", err)
		}
		user.IsModerator = true
	}

	return &user, nil
}

func (s *Service) storeMessageRef(ctx context.Context, submissionID string, ref announce.MessageRef) error {
	return s.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ?", submissionID).
		Updates(map[string]interface{}{
			"message_channel": ref.Channel,
			"message_ts":      ref.Timestamp,
		}).Error
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("workflow service error", attrs...)
}
