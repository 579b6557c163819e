package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"rental-backend/access"
	"rental-backend/models"
	"rental-backend/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	authTokenTTL      = 7 * 24 * time.Hour
	minPasswordLength = 8
)

// UserService handles registration, login and profile management.
type UserService struct {
	DB          *gorm.DB
	Notifier    Notifier
	BackendURL  string
	FrontendURL string
	Now         func() time.Time
}

func NewUserService(db *gorm.DB, notifier Notifier, backendURL, frontendURL string) *UserService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &UserService{
		DB:          db,
		Notifier:    notifier,
		BackendURL:  strings.TrimRight(backendURL, "/"),
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	FirstName        string
	LastName         string
	HasAcceptedTerms bool
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		in.Username = in.Email
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, Validation("error.validation", "invalid email address").WithField("email", "invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, Validation("error.validation", fmt.Sprintf("password must be at least %d characters", minPasswordLength)).
			WithField("password", "too short")
	}
	if !in.HasAcceptedTerms {
		return nil, Validation("error.validation", "terms must be accepted").WithField("has_accepted_terms", "required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, Internal(fmt.Errorf("hash password: %w", err))
	}
	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, Internal(err)
	}
	u := models.User{
		Username:          in.Username,
		Email:             in.Email,
		Password:          string(hash),
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		Status:            models.ProfilePendingExtraData,
		Type:              models.UserCustomer,
		IsActive:          true,
		HasAcceptedTerms:  true,
		VerificationToken: &token,
	}
	if err := s.DB.WithContext(ctx).Create(&u).Error; err != nil {
		if isDuplicate(err) {
			return nil, Conflict("error.emailTaken", "a user with this email or username already exists")
		}
		return nil, Internal(err)
	}

	link := s.BackendURL + "/api/v1/auth/verify-email?token=" + token
	s.Notifier.EmailVerification(ctx, u.Email, u.FullName(), link)
	slog.Info("user registered", slog.Uint64("user_id", uint64(u.ID)), slog.String("email", utils.MaskEmail(u.Email)))
	return &u, nil
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return Validation("error.validation", "token is required")
	}
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("verification_token = ?", token).
		Updates(map[string]any{"email_verified": true, "verification_token": nil})
	if res.Error != nil {
		return Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFound("error.invalidToken", "verification link is invalid or already used")
	}
	return nil
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := &AppError{Kind: KindValidation, Code: "error.invalidCredentials", Message: "invalid email or password"}
	var u models.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, invalid
	}
	if !u.IsActive {
		return nil, Forbidden("error.inactive", "Your account is not active")
	}

	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		return nil, Internal(err)
	}
	expires := s.Now().Add(authTokenTTL)
	rec := models.AuthToken{UserID: u.ID, TokenHash: utils.HashToken(token), ExpiresAt: expires}
	if err := s.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, Internal(err)
	}
	return &LoginResult{Token: token, ExpiresAt: expires, User: &u}, nil
}

// Logout revokes a bearer token.
func (s *UserService) Logout(ctx context.Context, token string) error {
	return dbError(s.DB.WithContext(ctx).Where("token_hash = ?", utils.HashToken(token)).Delete(&models.AuthToken{}).Error, nil)
}

// Authenticate resolves a bearer token into its user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	var rec models.AuthToken
	err := s.DB.WithContext(ctx).Preload("User").
		Where("token_hash = ? AND expires_at > ?", utils.HashToken(token), s.Now()).
		First(&rec).Error
	if err != nil {
		return nil, dbError(err, &AppError{Kind: KindForbidden, Code: "error.unauthenticated", Message: "invalid or expired token"})
	}
	if rec.User.ID == 0 {
		return nil, Forbidden("error.unauthenticated", "invalid or expired token")
	}
	return &rec.User, nil
}

// PurgeExpiredTokens removes tokens past their expiry.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at <= ?", s.Now()).Delete(&models.AuthToken{})
	return res.RowsAffected, dbError(res.Error, nil)
}

func (s *UserService) List(ctx context.Context, p ListParams) ([]models.User, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(p.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	offset, limit := paginate(p.Page, p.PageSize)
	var rows []models.User
	ordering := map[string]string{"email": "email", "created_at": "created_at", "last_name": "last_name"}
	err := q.Order(orderClause(p.Ordering, ordering, "id ASC")).Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, Internal(err)
	}
	return rows, total, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, dbError(err, NotFound("error.userNotFound", "user not found"))
	}
	return &u, nil
}

type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Telephone *string
	Username  *string
}

func (s *UserService) Update(ctx context.Context, id uint, in UpdateUserInput) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if in.Username != nil {
		if strings.TrimSpace(*in.Username) == "" {
			return nil, Validation("error.validation", "username cannot be empty").WithField("username", "required")
		}
		updates["username"] = strings.TrimSpace(*in.Username)
	}
	if in.Telephone != nil {
		tel := strings.TrimSpace(*in.Telephone)
		if tel == "" {
			updates["telephone"] = nil
		} else {
			updates["telephone"] = tel
		}
	}
	if len(updates) > 0 {
		if err := s.DB.WithContext(ctx).Model(u).Updates(updates).Error; err != nil {
			return nil, dbError(err, nil)
		}
	}
	return s.Get(ctx, id)
}

// Deactivate is a logical delete: the account stays but can no longer log in.
func (s *UserService) Deactivate(ctx context.Context, id uint) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(u).Update("is_active", false).Error; err != nil {
			return dbError(err, nil)
		}
		return dbError(tx.Where("user_id = ?", u.ID).Delete(&models.AuthToken{}).Error, nil)
	})
}

type CompleteProfileInput struct {
	FirstName string
	LastName  string
	Telephone string
}

// CompleteProfile stores the extra data required before booking.
func (s *UserService) CompleteProfile(ctx context.Context, p access.Principal, in CompleteProfileInput) (*models.User, error) {
	if d := access.Authenticated(p); d != nil {
		return nil, Forbidden(d.Code, d.Message)
	}
	u, err := s.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if u.Status != models.ProfilePendingExtraData {
		return nil, Validation("error.profileComplete", fmt.Sprintf("The User: %s, has already completed his profile", u.Email))
	}
	in.FirstName, in.LastName, in.Telephone = strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), strings.TrimSpace(in.Telephone)
	fields := map[string]any{}
	if in.FirstName == "" {
		fields["first_name"] = "required"
	}
	if in.LastName == "" {
		fields["last_name"] = "required"
	}
	if in.Telephone == "" {
		fields["telephone"] = "required"
	}
	if len(fields) > 0 {
		return nil, &AppError{Kind: KindValidation, Code: "error.validation", Message: "missing profile data", Fields: fields}
	}
	err = s.DB.WithContext(ctx).Model(u).Updates(map[string]any{
		"first_name": in.FirstName,
		"last_name":  in.LastName,
		"telephone":  in.Telephone,
		"status":     models.ProfileComplete,
	}).Error
	if err != nil {
		return nil, dbError(err, nil)
	}
	return s.Get(ctx, u.ID)
}
