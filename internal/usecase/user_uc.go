package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes account operations used by signup, seeding and the API.
type UserUseCase interface {
	// RegisterOrFetch returns the user for email, creating it with a FREE subscription if needed.
	RegisterOrFetch(ctx context.Context, email, name string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	AddPaymentMethod(ctx context.Context, userID string, in PaymentMethodInput) (*model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID string) ([]*model.PaymentMethod, error)
}

type PaymentMethodInput struct {
	ProcessorID string
	Brand       string
	Last4       string
	MakeDefault bool
}

type userUC struct {
	users   repository.UserRepository
	methods repository.PaymentMethodRepository
	subs    SubscriptionUseCase
	tm      repository.TransactionManager
	log     *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, methods repository.PaymentMethodRepository, subs SubscriptionUseCase, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users:   users,
		methods: methods,
		subs:    subs,
		tm:      tm,
		log:     logger,
	}
}

func (u *userUC) RegisterOrFetch(ctx context.Context, email, name string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	email = strings.ToLower(strings.TrimSpace(email))
	var user *model.User
	created := false
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByEmail(ctx, tx, email)
		if err == nil {
			if name != "" && usr.Name != name {
				usr.Name = name
				if err := u.users.Save(ctx, tx, usr); err != nil {
					return err
				}
			}
			user = usr
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		nu, err := model.NewUser("", email, name)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		user, created = nu, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Runs for existing users too so an account that missed its FREE row gets one.
	if _, err := u.subs.EnsureFreeSubscription(ctx, user.ID); err != nil {
		u.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to ensure free subscription")
		return nil, err
	}
	if created {
		u.log.Info().Str("user_id", user.ID).Msg("user registered")
	}
	return user, nil
}

func (u *userUC) Get(ctx context.Context, id string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.users.FindByID(ctx, repository.NoTX, id)
}

func (u *userUC) AddPaymentMethod(ctx context.Context, userID string, in PaymentMethodInput) (*model.PaymentMethod, error) {
	defer logging.TraceDuration(u.log, "UserUC.AddPaymentMethod")()
	if userID == "" || in.ProcessorID == "" {
		return nil, domain.ErrInvalidArgument
	}

	var pm *model.PaymentMethod
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.FindByID(ctx, tx, userID); err != nil {
			return err
		}
		existing, err := u.methods.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, m := range existing {
			if m.ProcessorID == in.ProcessorID {
				return domain.ErrAlreadyExists
			}
		}
		pm = &model.PaymentMethod{
			ID:          uuid.NewString(),
			UserID:      userID,
			ProcessorID: in.ProcessorID,
			Brand:       in.Brand,
			Last4:       in.Last4,
			CreatedAt:   time.Now(),
		}
		if err := u.methods.Save(ctx, tx, pm); err != nil {
			return err
		}
		if in.MakeDefault || len(existing) == 0 {
			if err := u.methods.SetDefault(ctx, tx, userID, pm.ID); err != nil {
				return err
			}
			pm.IsDefault = true
		}
		return nil
	})
	return pm, err
}

func (u *userUC) ListPaymentMethods(ctx context.Context, userID string) ([]*model.PaymentMethod, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.methods.ListByUser(ctx, repository.NoTX, userID)
}
