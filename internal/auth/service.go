package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Keoroanthony/orderflow/internal/access"
	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "auth").Logger()

var phonePattern = regexp.MustCompile(`^(\+7|8)\d{10}$`)

func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

type RegisterInput struct {
	Username     string `form:"username" json:"username" binding:"required,max=80"`
	Password     string `form:"password" json:"password" binding:"required"`
	Address      string `form:"address" json:"address"`
	Organization string `form:"organization" json:"organization"`
	Phone        string `form:"phone" json:"phone" binding:"required,ruphone"`
	DeliveryTime string `form:"delivery_time" json:"delivery_time"`
}

// createUser inserts the user. The count checks before it can race a concurrent insert,
// so a unique-index violation is reported as the same validation error they would give.
func createUser(tx *gorm.DB, user *models.User) error {
	err := tx.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: username or phone already registered", apperr.ErrValidation)
	}
	return err
}

type LoginInput struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperr.ErrValidation)
	}
	if !ValidPhone(in.Phone) {
		return nil, fmt.Errorf("%w: phone must look like +7XXXXXXXXXX or 8XXXXXXXXXX", apperr.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     in.Username,
		PasswordHash: string(hash),
		Address:      in.Address,
		Organization: in.Organization,
		DeliveryTime: in.DeliveryTime,
		Phone:        &in.Phone,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: user %q already exists", apperr.ErrValidation, user.Username)
		}

		if err := tx.Model(&models.User{}).Where("phone = ?", in.Phone).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: phone already registered", apperr.ErrValidation)
		}

		return createUser(tx, &user)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return &user, nil
}

// Authenticate checks credentials. Blocked accounts are refused even with the right password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrAuthentication)
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		logger.Warn().Str("username", user.Username).Msg("failed login")
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrAuthentication)
	}
	if user.IsBlocked {
		logger.Warn().Str("username", user.Username).Msg("blocked user tried to log in")
		return nil, fmt.Errorf("%w: account is blocked", apperr.ErrAuthentication)
	}

	return &user, nil
}

func (s *Service) Get(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) ListUsers(ctx context.Context, id access.Identity) ([]models.User, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Service) SetBlocked(ctx context.Context, id access.Identity, userID uint, blocked bool) (*models.User, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	if userID == id.UserID && blocked {
		return nil, fmt.Errorf("%w: admins cannot block themselves", apperr.ErrValidation)
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", apperr.ErrNotFound, userID)
			}
			return err
		}
		user.IsBlocked = blocked
		return tx.Model(&user).Update("is_blocked", blocked).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("user_id", user.ID).Bool("blocked", blocked).Uint("by", id.UserID).Msg("user block flag changed")
	return &user, nil
}

// EnsureAdmin creates username as an administrator, or promotes and re-keys the existing account.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperr.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("username = ?", username).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{Username: username, PasswordHash: string(hash), IsAdmin: true}
			return createUser(tx, &user)
		case err != nil:
			return err
		}

		user.PasswordHash = string(hash)
		user.IsAdmin = true
		user.IsBlocked = false
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("admin account ready")
	return &user, nil
}
