package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	redislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	otpInvalidMessage   = "otp expired or invalid"
	otpIncorrectMessage = "incorrect otp"
)

func (s *service) Signup(ctx context.Context, req SignupRequest) (*SignupResponse, error) {
	email := users.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and email are required")
	}
	if len(req.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var user *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := users.NewRepository(tx).Create(ctx, users.CreateUserDTO{
			Name:         name,
			Email:        email,
			PasswordHash: passwordHash,
		})
		if err != nil {
			return err
		}
		user = created
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserSignedUp,
			AggregateType: enums.AggregateUser,
			AggregateID:   created.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: created.ID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.UserSignedUpEvent{
				UserID:    created.ID,
				Email:     created.Email,
				Name:      created.Name,
				CreatedAt: created.CreatedAt,
			},
		})
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	if err := s.issueOTP(ctx, user); err != nil {
		return nil, err
	}

	return &SignupResponse{
		User:             users.FromModel(user),
		OTPExpiresInSecs: int(s.otpCfg.TTL.Seconds()),
	}, nil
}

func (s *service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*users.UserDTO, error) {
	email := users.NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.OTP)
	if email == "" || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and otp are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, otpInvalidMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	key := s.otp.OTPKey(email)
	stored, err := s.otp.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, otpInvalidMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load otp")
	}
	if !security.EqualStrings(stored, code) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, otpIncorrectMessage)
	}

	// GetDel makes the code single use when two verifications race.
	consumed, err := s.otp.GetDel(ctx, key)
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, otpInvalidMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume otp")
	}
	if !security.EqualStrings(consumed, code) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, otpInvalidMessage)
	}

	now := s.now()
	if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark email verified")
	}
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &now
	}
	return users.FromModel(user), nil
}

func (s *service) ResendOTP(ctx context.Context, req ResendOTPRequest) (*SignupResponse, error) {
	email := users.NormalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if user.EmailVerified() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "email already verified")
	}
	if err := s.issueOTP(ctx, user); err != nil {
		return nil, err
	}
	return &SignupResponse{
		User:             users.FromModel(user),
		OTPExpiresInSecs: int(s.otpCfg.TTL.Seconds()),
	}, nil
}

// issueOTP replaces any pending code for the user and emails the new one.
// Delivery failures are logged; the caller can request another code.
func (s *service) issueOTP(ctx context.Context, user *models.User) error {
	code, err := security.GenerateNumericCode(s.otpCfg.Digits)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp")
	}
	if err := s.otp.Set(ctx, s.otp.OTPKey(user.Email), code, s.otpCfg.TTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp")
	}
	if err := s.mail.Send(ctx, mailer.OTPMessage(user.Email, user.Name, code, s.otpCfg.TTL)); err != nil && s.logg != nil {
		logCtx := s.logg.WithUserID(ctx, user.ID.String())
		s.logg.Error(logCtx, "send otp email", err)
	}
	return nil
}
