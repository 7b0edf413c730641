package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

const (
	MaxNameLength     = 20
	MinPasswordLength = 6
	DefaultSessionTTL = 7 * 24 * time.Hour
	tokenIssuer       = "tree-game-server"
)

var folder = cases.Fold()

// FoldName is the case-insensitive form a display name is unique under.
func FoldName(name string) string {
	return folder.String(strings.TrimSpace(name))
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxNameLength {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// AdminPolicy is the configured list of admin emails.
type AdminPolicy struct {
	emails map[string]struct{}
}

func NewAdminPolicy(emails []string) AdminPolicy {
	p := AdminPolicy{emails: map[string]struct{}{}}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p.emails[e] = struct{}{}
		}
	}
	return p
}

func (p AdminPolicy) IsAdmin(email string) bool {
	if email == "" {
		return false
	}
	_, ok := p.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

type Claims struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type Session struct {
	Token     string          `json:"token"`
	SessionID string          `json:"session_id"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *models.Account `json:"account"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type UserSummary struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Gold        int64     `json:"gold"`
	TotalDamage int64     `json:"total_damage"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

// AccountService handles name + password accounts and the sessions issued for them.
type AccountService struct {
	Ledger     *LedgerService
	Clock      clockwork.Clock
	Secret     []byte
	TTL        time.Duration
	Admins     AdminPolicy
	BcryptCost int
}

func NewAccountService(ledger *LedgerService, clock clockwork.Clock, secret []byte, admins AdminPolicy) *AccountService {
	return &AccountService{
		Ledger:     ledger,
		Clock:      clock,
		Secret:     secret,
		TTL:        DefaultSessionTTL,
		Admins:     admins,
		BcryptCost: bcrypt.DefaultCost,
	}
}

func (a *AccountService) store() store.Store { return a.Ledger.Store }

// Register creates an account and claims its folded name in the same transaction, so two
// players racing for one name cannot both win.
func (a *AccountService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	name := strings.TrimSpace(req.Name)
	if !validName(name) {
		return nil, invalid("register", ErrInvalidName)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, invalid("register", ErrWeakPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	folded := FoldName(name)
	id := uuid.NewString()
	var acc *models.Account
	err = withRetry(ctx, a.Ledger.Retry, "register", func() error {
		return a.store().RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			snap, err := tx.Get(ctx, store.NameClaims, folded)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if snap.Exists() {
				return ErrNameTaken
			}
			now := a.Clock.Now()
			acc = models.NewAccount(id, name, folded, now)
			acc.PasswordHash = string(hash)
			acc.Email = strings.TrimSpace(req.Email)
			acc.IsAdmin = a.Admins.IsAdmin(acc.Email)

			claim := models.NameClaim{UsernameLower: folded, AccountID: id, CreatedAt: now}
			if err := tx.Set(store.NameClaims, folded, claim); err != nil {
				return err
			}
			return tx.Set(store.Accounts, id, acc)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [Accounts] registered %q (%s)", name, id)
	return a.issue(acc)
}

func (a *AccountService) lookupName(ctx context.Context, name string) (string, error) {
	snap, err := a.store().Get(ctx, store.NameClaims, FoldName(name))
	if err != nil {
		return "", err
	}
	var claim models.NameClaim
	if err := snap.DataTo(&claim); err != nil {
		return "", fmt.Errorf("decode name claim: %w", err)
	}
	return claim.AccountID, nil
}

// Login checks the password and stamps LastLogin, which keeps the account's attacks
// counting toward the tree.
func (a *AccountService) Login(ctx context.Context, name, password string) (*Session, error) {
	id, err := a.lookupName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	acc, err := a.Ledger.GetAccount(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if acc.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	acc, err = a.Ledger.mutateAccount(ctx, "login", id, func(acc *models.Account) error {
		acc.LastLogin = a.Clock.Now()
		if a.Admins.IsAdmin(acc.Email) {
			acc.IsAdmin = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Accounts] %s logged in", acc.DisplayName)
	return a.issue(acc)
}

func (a *AccountService) issue(acc *models.Account) (*Session, error) {
	now := a.Clock.Now()
	sid := uuid.NewString()
	expires := now.Add(a.TTL)
	claims := Claims{
		Name:  acc.DisplayName,
		Admin: acc.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   acc.ID,
			ID:        sid,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	view := *acc
	view.PasswordHash = ""
	return &Session{Token: token, SessionID: sid, ExpiresAt: expires, Account: &view}, nil
}

// ParseToken verifies a session token and returns its claims.
func (a *AccountService) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.Clock.Now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// SetAdmin grants or revokes the admin flag on the account holding name.
func (a *AccountService) SetAdmin(ctx context.Context, name string, admin bool) (*models.Account, error) {
	id, err := a.lookupName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrAccountNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	acc, err := a.Ledger.mutateAccount(ctx, "set admin", id, func(acc *models.Account) error {
		acc.IsAdmin = admin
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🔑 [Accounts] %s admin=%t", acc.DisplayName, admin)
	return acc, nil
}

// ListUsers returns every account, oldest first.
func (a *AccountService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	snaps, err := a.store().Query(ctx, store.Query{Collection: store.Accounts})
	if err != nil {
		return nil, err
	}
	users := make([]UserSummary, 0, len(snaps))
	for _, snap := range snaps {
		acc, err := models.DecodeAccount(snap.Data)
		if err != nil {
			log.Printf("⚠️ [Accounts] skipping %s: %v", snap.Key, err)
			continue
		}
		users = append(users, UserSummary{
			ID:          acc.ID,
			DisplayName: acc.DisplayName,
			Gold:        acc.Gold,
			TotalDamage: acc.Stats.TotalDamage,
			IsAdmin:     acc.IsAdmin,
			CreatedAt:   acc.CreatedAt,
			LastLogin:   acc.LastLogin,
		})
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// ResetAccounts deletes every account along with its name claim and roster entry.
func (a *AccountService) ResetAccounts(ctx context.Context) (int, error) {
	total := 0
	for _, coll := range []string{store.Accounts, store.NameClaims, store.OnlineUsers} {
		snaps, err := a.store().Query(ctx, store.Query{Collection: coll})
		if err != nil {
			return total, fmt.Errorf("list %s: %w", coll, err)
		}
		keys := make([]string, len(snaps))
		for i, s := range snaps {
			keys[i] = s.Key
		}
		if len(keys) > 0 {
			if err := a.store().Delete(ctx, coll, keys...); err != nil {
				return total, fmt.Errorf("delete %s: %w", coll, err)
			}
		}
		if coll == store.Accounts {
			total = len(keys)
		}
	}
	log.Printf("🧹 [Accounts] reset %d accounts", total)
	return total, nil
}
