package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/email"
)

// memStore respalda los fakes de repositorio con un único mutex, que hace las
// veces de transacción.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]domain.User
	otps   []domain.OTP
	resets []domain.PasswordResetToken
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]domain.User)}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	user.ID = r.s.id()
	user.Status = domain.StatusPendingVerification
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = user
	return user, nil
}

func (r memUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Status == domain.StatusDeleted {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (r memUserRepo) GetByEmail(_ context.Context, emailAddr string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == emailAddr && u.Status != domain.StatusDeleted {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r memUserRepo) ExistsByEmail(_ context.Context, emailAddr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == emailAddr {
			return true, nil
		}
	}
	return false, nil
}

func (r memUserRepo) UpdateFields(_ context.Context, id int64, update domain.UserUpdate) (domain.User, error) {
	var out domain.User
	err := r.mutate(id, func(u *domain.User) {
		if update.FirstName != nil {
			u.FirstName = *update.FirstName
		}
		if update.LastName != nil {
			u.LastName = *update.LastName
		}
		if update.Phone != nil {
			phone := *update.Phone
			u.Phone = &phone
		}
		out = *u
	})
	return out, err
}

func (r memUserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(u *domain.User) { u.LastLoginAt = &at })
}

func (r memUserRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	return r.mutate(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (r memUserRepo) UpdateStatus(_ context.Context, id int64, status domain.UserStatus) error {
	return r.mutate(id, func(u *domain.User) { u.Status = status })
}

func (r memUserRepo) SoftDelete(ctx context.Context, id int64) error {
	return r.UpdateStatus(ctx, id, domain.StatusDeleted)
}

func (r memUserRepo) mutate(id int64, fn func(u *domain.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Status == domain.StatusDeleted {
		return domain.ErrUserNotFound
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

type memOTPRepo struct{ s *memStore }

func (r memOTPRepo) Create(_ context.Context, otp domain.OTP, notBefore time.Time) (domain.OTP, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[otp.UserID]; !ok {
		return domain.OTP{}, domain.ErrUserNotFound
	}
	for _, o := range r.s.otps {
		if o.UserID == otp.UserID && o.Type == otp.Type && o.CreatedAt.After(notBefore) {
			return domain.OTP{}, domain.ErrTooManyRequests
		}
	}
	for i := range r.s.otps {
		if r.s.otps[i].UserID == otp.UserID && r.s.otps[i].Type == otp.Type {
			r.s.otps[i].Used = true
		}
	}
	otp.ID = r.s.id()
	r.s.otps = append(r.s.otps, otp)
	return otp, nil
}

func (r memOTPRepo) ConsumeValid(_ context.Context, userID int64, code string, otpType domain.OTPType, now time.Time) (domain.OTP, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.otps) - 1; i >= 0; i-- {
		o := r.s.otps[i]
		if o.UserID == userID && o.Type == otpType && o.Code == code && !o.Used && !o.Expired(now) {
			r.s.otps[i].Used = true
			return r.s.otps[i], nil
		}
	}
	return domain.OTP{}, domain.ErrNotFound
}

func (r memOTPRepo) ConsumeAndActivate(_ context.Context, userID int64, code string, now time.Time) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err := u.VerificationBlocker(); err != nil {
		return domain.User{}, err
	}
	for i := len(r.s.otps) - 1; i >= 0; i-- {
		o := r.s.otps[i]
		if o.UserID == userID && o.Type == domain.OTPTypeEmailVerification && o.Code == code && !o.Used && !o.Expired(now) {
			r.s.otps[i].Used = true
			u.Status = domain.StatusActive
			u.EmailVerifiedAt = &now
			u.UpdatedAt = now
			r.s.users[userID] = u
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r memOTPRepo) Latest(_ context.Context, userID int64, otpType domain.OTPType) (domain.OTP, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.otps) - 1; i >= 0; i-- {
		if r.s.otps[i].UserID == userID && r.s.otps[i].Type == otpType {
			return r.s.otps[i], nil
		}
	}
	return domain.OTP{}, domain.ErrNotFound
}

func (r memOTPRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.otps[:0]
	var removed int64
	for _, o := range r.s.otps {
		if o.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	r.s.otps = kept
	return removed, nil
}

func (r memOTPRepo) validCount(userID int64, otpType domain.OTPType, now time.Time) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, o := range r.s.otps {
		if o.UserID == userID && o.Type == otpType && !o.Used && !o.Expired(now) {
			n++
		}
	}
	return n
}

type memResetRepo struct{ s *memStore }

func (r memResetRepo) Create(_ context.Context, token domain.PasswordResetToken, notBefore time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[token.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	for _, t := range r.s.resets {
		if t.UserID == token.UserID && t.CreatedAt.After(notBefore) {
			return domain.ErrTooManyRequests
		}
	}
	for i := range r.s.resets {
		if r.s.resets[i].UserID == token.UserID {
			r.s.resets[i].Used = true
		}
	}
	token.ID = r.s.id()
	r.s.resets = append(r.s.resets, token)
	return nil
}

func (r memResetRepo) ConsumeAndSetPassword(_ context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var userID int64
	for _, t := range r.s.resets {
		if t.TokenHash == tokenHash && !t.Used && !t.Expired(now) {
			userID = t.UserID
			break
		}
	}
	if userID == 0 {
		return 0, domain.ErrInvalidOrExpiredToken
	}
	u, ok := r.s.users[userID]
	if !ok || u.Status == domain.StatusDeleted {
		return 0, domain.ErrInvalidOrExpiredToken
	}
	u.PasswordHash = passwordHash
	r.s.users[userID] = u
	for i := range r.s.resets {
		if r.s.resets[i].UserID == userID {
			r.s.resets[i].Used = true
		}
	}
	return userID, nil
}

// recordingSender guarda cada notificación enviada.
type recordingSender struct {
	mu        sync.Mutex
	otps      []string
	resets    []string
	welcomes  []string
	logins    []email.LoginContext
	failOTP   bool
	failOther bool
}

var errSendFailed = errors.New("smtp unavailable")

func (s *recordingSender) SendVerificationOTP(_ context.Context, _ string, code string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOTP {
		return errSendFailed
	}
	s.otps = append(s.otps, code)
	return nil
}

func (s *recordingSender) SendPasswordReset(_ context.Context, _ string, token string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOTP {
		return errSendFailed
	}
	s.resets = append(s.resets, token)
	return nil
}

func (s *recordingSender) SendWelcome(_ context.Context, toEmail string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.welcomes = append(s.welcomes, toEmail)
	if s.failOther {
		return errSendFailed
	}
	return nil
}

func (s *recordingSender) SendLoginAlert(_ context.Context, _ string, login email.LoginContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins = append(s.logins, login)
	if s.failOther {
		return errSendFailed
	}
	return nil
}

func (s *recordingSender) lastOTP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.otps) == 0 {
		return ""
	}
	return s.otps[len(s.otps)-1]
}

// suspendingUserRepo suspende al usuario justo después de leerlo, como haría
// un operador que actúa entre la lectura y la verificación.
type suspendingUserRepo struct {
	memUserRepo
}

func (r suspendingUserRepo) GetByEmail(ctx context.Context, emailAddr string) (domain.User, error) {
	u, err := r.memUserRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return u, err
	}
	if err := r.UpdateStatus(ctx, u.ID, domain.StatusSuspended); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
