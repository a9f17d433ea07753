package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"biodata/internal/config"
	"biodata/internal/metrics"
	"biodata/internal/models"
	"biodata/internal/repositories"
	"biodata/internal/utils"
)

type AccessRequestStore interface {
	Create(ctx context.Context, ar *models.AccessRequest) (int64, error)
	FindVerified(ctx context.Context, fullName, phone string) (*models.AccessRequest, error)
	FindLatest(ctx context.Context, fullName, phone string) (*models.AccessRequest, error)
	LatestPending(ctx context.Context, phone string) (*models.AccessRequest, error)
	InvalidatePending(ctx context.Context, phone string, keepID int64) (int64, error)
	Reissue(ctx context.Context, id int64, otp string, sentAt time.Time) error
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	ClearOTP(ctx context.Context, id int64) error
	MarkVerified(ctx context.Context, id int64) error
	List(ctx context.Context, verifiedOnly bool) ([]*models.AccessRequest, error)
	Update(ctx context.Context, ar *models.AccessRequest) error
	Delete(ctx context.Context, id int64) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, text string) (*utils.SendSMSResponse, error)
}

type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type AccessService struct {
	Repo    AccessRequestStore
	SMS     SMSSender
	Limiter SendLimiter // optional

	OTP    config.OTPConfig
	Dedupe bool

	now func() time.Time
}

func NewAccessService(repo AccessRequestStore, sms SMSSender, limiter SendLimiter, otp config.OTPConfig, dedupe bool) *AccessService {
	return &AccessService{
		Repo:    repo,
		SMS:     sms,
		Limiter: limiter,
		OTP:     otp,
		Dedupe:  dedupe,
		now:     time.Now,
	}
}

// RequestAccess issues a code for the phone number and delivers it by SMS.
// Existing users must already hold a verified request for the same name and phone.
func (s *AccessService) RequestAccess(ctx context.Context, in models.AccessRequestInput) error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.FullName == "" || in.PhoneNumber == "" {
		return fmt.Errorf("%w: full_name and phone_number are required", ErrValidation)
	}

	if s.Limiter != nil {
		ok, err := s.Limiter.Allow(ctx, "otp:"+in.PhoneNumber)
		if err != nil {
			logrus.WithError(err).Warn("[otp][send] limiter unavailable, allowing")
		} else if !ok {
			metrics.OTPEvents.WithLabelValues("throttled").Inc()
			return ErrResendThrottled
		}
	}

	code, err := utils.NewNumericCode(s.OTP.Length)
	if err != nil {
		return err
	}
	sentAt := s.now()

	id, err := s.storeCode(ctx, in, code, sentAt)
	if err != nil {
		return err
	}

	cleared, err := s.Repo.InvalidatePending(ctx, in.PhoneNumber, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	text := fmt.Sprintf("Your verification code is %s", code)
	if _, err := s.SMS.SendSMS(ctx, in.PhoneNumber, text); err != nil {
		return fmt.Errorf("sms delivery: %w", err)
	}

	metrics.OTPEvents.WithLabelValues("issued").Inc()
	logrus.WithFields(logrus.Fields{
		"request_id": id,
		"phone":      in.PhoneNumber,
		"existing":   in.IsExisting,
		"superseded": cleared,
	}).Info("[otp][send] code issued")
	return nil
}

func (s *AccessService) storeCode(ctx context.Context, in models.AccessRequestInput, code string, sentAt time.Time) (int64, error) {
	if in.IsExisting {
		prev, err := s.Repo.FindVerified(ctx, in.FullName, in.PhoneNumber)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		if prev == nil {
			return 0, fmt.Errorf("%w: no verified request for this name and phone", ErrNotFound)
		}
		return prev.ID, s.reissue(ctx, prev.ID, code, sentAt)
	}

	if s.Dedupe {
		prev, err := s.Repo.FindLatest(ctx, in.FullName, in.PhoneNumber)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		if prev != nil {
			return prev.ID, s.reissue(ctx, prev.ID, code, sentAt)
		}
	}

	ar := &models.AccessRequest{
		FullName:    in.FullName,
		PhoneNumber: in.PhoneNumber,
		Country:     in.Country,
		State:       in.State,
		City:        in.City,
		OTP:         code,
		OTPSentAt:   &sentAt,
	}
	id, err := s.Repo.Create(ctx, ar)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return id, nil
}

func (s *AccessService) reissue(ctx context.Context, id int64, code string, sentAt time.Time) error {
	if err := s.Repo.Reissue(ctx, id, code, sentAt); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: access request %d", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return nil
}

// VerifyOTP checks code against the newest pending request for phone.
func (s *AccessService) VerifyOTP(ctx context.Context, phone, code string) error {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return fmt.Errorf("%w: phone_number and otp are required", ErrValidation)
	}

	ar, err := s.Repo.LatestPending(ctx, phone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if ar == nil {
		metrics.OTPEvents.WithLabelValues("no_pending").Inc()
		return ErrNoPendingRequest
	}
	log := logrus.WithFields(logrus.Fields{"request_id": ar.ID, "phone": phone})

	if s.OTP.TTL > 0 && ar.OTPSentAt != nil && s.now().After(ar.OTPSentAt.Add(s.OTP.TTL)) {
		if err := s.Repo.ClearOTP(ctx, ar.ID); err != nil {
			log.WithError(err).Warn("[otp][verify] clear expired code failed")
		}
		metrics.OTPEvents.WithLabelValues("expired").Inc()
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(ar.OTP), []byte(code)) != 1 {
		attempts, err := s.Repo.IncrementAttempts(ctx, ar.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		if s.OTP.MaxAttempts > 0 && attempts >= s.OTP.MaxAttempts {
			if err := s.Repo.ClearOTP(ctx, ar.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrDatabase, err)
			}
			metrics.OTPEvents.WithLabelValues("too_many_attempts").Inc()
			log.Warn("[otp][verify] attempt budget exhausted, code burned")
			return ErrTooManyAttempts
		}
		metrics.OTPEvents.WithLabelValues("mismatch").Inc()
		return ErrCodeMismatch
	}

	if err := s.Repo.MarkVerified(ctx, ar.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// verified concurrently by another request
			return ErrNoPendingRequest
		}
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	metrics.OTPEvents.WithLabelValues("verified").Inc()
	log.Info("[otp][verify] ok")
	return nil
}

func (s *AccessService) ListAccessRequests(ctx context.Context) ([]*models.AccessRequest, error) {
	list, err := s.Repo.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return list, nil
}

func (s *AccessService) ListVerifiedUsers(ctx context.Context) ([]*models.AccessRequest, error) {
	list, err := s.Repo.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return list, nil
}

// UpdateAccessRequest rewrites name, phone and location; codes and
// verification state are left alone.
func (s *AccessService) UpdateAccessRequest(ctx context.Context, id int64, in models.AccessRequestInput) (*models.AccessRequest, error) {
	if strings.TrimSpace(in.FullName) == "" || strings.TrimSpace(in.PhoneNumber) == "" {
		return nil, fmt.Errorf("%w: full_name and phone_number are required", ErrValidation)
	}
	ar := &models.AccessRequest{
		ID:          id,
		FullName:    strings.TrimSpace(in.FullName),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Country:     in.Country,
		State:       in.State,
		City:        in.City,
	}
	if err := s.Repo.Update(ctx, ar); err != nil {
		return nil, mapRepoErr(err, "access request")
	}
	return ar, nil
}

func (s *AccessService) DeleteAccessRequest(ctx context.Context, id int64) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return mapRepoErr(err, "access request")
	}
	return nil
}

func mapRepoErr(err error, what string) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repositories.ErrAlreadyApproved):
		return fmt.Errorf("%w: %s already approved", ErrConflict, what)
	default:
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
}
