package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stash/internal/amqp"
	"stash/internal/config"
	"stash/internal/core"
	"stash/internal/storage"
)

// AllocationService orchestrates account and rule operations across
// SQLite and AMQP. Rule edits go through an edit session so a cancelled
// edit can discard rules that were created but never saved.
type AllocationService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	templates  *config.RuleTemplates

	mu       sync.Mutex
	sessions map[string]*core.EditSession
}

func NewAllocationService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, templates *config.RuleTemplates) *AllocationService {
	return &AllocationService{
		storage:    storage,
		amqpClient: amqpClient,
		templates:  templates,
		sessions:   make(map[string]*core.EditSession),
	}
}

// AccountView is an account with its rules decoded and repaired.
type AccountView struct {
	ID          string
	Name        string
	AccountType string
	Balance     core.Money
	Rules       core.RuleList
	Notes       string
	UpdatedAt   time.Time
}

// AllocationSnapshot pairs an account view with the allocation computed
// from its current balance and rules.
type AllocationSnapshot struct {
	Account AccountView
	Result  core.AllocationResult
}

// CreateAccount creates an account seeded with the rule template for its type.
func (s *AllocationService) CreateAccount(ctx context.Context, name, accountType string) (AccountView, error) {
	if name == "" {
		return AccountView{}, fmt.Errorf("%w: account name is required", core.ErrInvalidRule)
	}

	rules := s.templates.ForAccountType(accountType)
	rulesJSON, err := core.EncodeRules(rules)
	if err != nil {
		return AccountView{}, fmt.Errorf("encode template rules: %w", err)
	}

	account := storage.Account{
		ID:              uuid.NewString(),
		Name:            name,
		AccountType:     accountType,
		AllocationRules: rulesJSON,
	}
	if err := s.storage.CreateAccount(ctx, account); err != nil {
		return AccountView{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Created account",
		"account_id", account.ID,
		"account_type", accountType)

	return AccountView{
		ID:          account.ID,
		Name:        name,
		AccountType: accountType,
		Rules:       rules,
	}, nil
}

// GetAccount loads an account and repairs its stored rules.
func (s *AllocationService) GetAccount(ctx context.Context, id string) (AccountView, error) {
	account, err := s.storage.GetAccount(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	return s.view(account)
}

// ListAccounts loads all accounts with their rules decoded.
func (s *AllocationService) ListAccounts(ctx context.Context) ([]AccountView, error) {
	accounts, err := s.storage.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	views := make([]AccountView, 0, len(accounts))
	for i := range accounts {
		v, err := s.view(&accounts[i])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// DeleteAccount removes an account and its edit session.
func (s *AllocationService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// UpdateBalance parses and stores a new balance, then requests an export.
func (s *AllocationService) UpdateBalance(ctx context.Context, id, balance string) (AllocationSnapshot, error) {
	milliunits, err := core.ParseBalanceToMilliunits(balance)
	if err != nil {
		return AllocationSnapshot{}, err
	}

	if err := s.storage.UpdateBalance(ctx, id, milliunits); err != nil {
		return AllocationSnapshot{}, err
	}
	s.publishExport(ctx, id)

	return s.GetSnapshot(ctx, id)
}

// GetSnapshot computes the allocation for the account's current state.
func (s *AllocationService) GetSnapshot(ctx context.Context, id string) (AllocationSnapshot, error) {
	v, err := s.GetAccount(ctx, id)
	if err != nil {
		return AllocationSnapshot{}, err
	}
	return AllocationSnapshot{
		Account: v,
		Result:  core.Allocate(v.Balance, v.Rules),
	}, nil
}

// AddRule appends a new rule before the remaining rule. A blank ID gets
// a generated one. The rule counts as unsaved until SaveRules is called.
func (s *AllocationService) AddRule(ctx context.Context, accountID string, rule core.AllocationRule) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	updated, err := v.Rules.Add(rule)
	if err != nil {
		return nil, err
	}

	if err := s.saveRules(ctx, accountID, updated); err != nil {
		return nil, err
	}
	s.session(accountID).MarkCreated(rule.ID)
	return updated, nil
}

// DeleteRule removes a rule. The remaining rule cannot be deleted.
func (s *AllocationService) DeleteRule(ctx context.Context, accountID, ruleID string) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	updated, err := v.Rules.Delete(ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.saveRules(ctx, accountID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateRule applies a partial update to one rule.
func (s *AllocationService) UpdateRule(ctx context.Context, accountID, ruleID string, patch core.RulePatch) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	updated, err := v.Rules.Update(ruleID, patch)
	if err != nil {
		return nil, err
	}
	if err := s.saveRules(ctx, accountID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// MoveRule swaps a rule with its neighbor. Out-of-range moves and moves
// involving the remaining rule are silent no-ops.
func (s *AllocationService) MoveRule(ctx context.Context, accountID string, index, direction int) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	updated := v.Rules.Move(index, direction)
	if err := s.saveRules(ctx, accountID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplaceRules swaps in a whole new rule list. The list is normalized
// and validated before anything is persisted.
func (s *AllocationService) ReplaceRules(ctx context.Context, accountID string, rules []core.AllocationRule) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	list := core.NewRuleList(rules, s.templates.DefaultBucket(v.AccountType))
	if err := list.Validate(); err != nil {
		return nil, err
	}

	if err := s.saveRules(ctx, accountID, list); err != nil {
		return nil, err
	}

	session := s.session(accountID)
	for _, r := range list {
		session.MarkSaved(r.ID)
	}
	s.publishExport(ctx, accountID)
	return list, nil
}

// SaveRules commits the current rule list, ending the edit session for
// any rules created during it.
func (s *AllocationService) SaveRules(ctx context.Context, accountID string) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	session := s.session(accountID)
	for _, r := range v.Rules {
		session.MarkSaved(r.ID)
	}

	s.publishExport(ctx, accountID)
	return v.Rules, nil
}

// CancelEdit removes the rule if it was created during the current edit
// session and never saved. Saved rules are left untouched.
func (s *AllocationService) CancelEdit(ctx context.Context, accountID, ruleID string) (core.RuleList, error) {
	v, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	updated, removed := s.session(accountID).Cancel(v.Rules, ruleID)
	if removed {
		if err := s.saveRules(ctx, accountID, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (s *AllocationService) view(account *storage.Account) (AccountView, error) {
	rules, err := core.DecodeRules(account.AllocationRules)
	if err != nil {
		return AccountView{}, fmt.Errorf("decode rules for account %s: %w", account.ID, err)
	}
	defaultBucket := s.templates.DefaultBucket(account.AccountType)
	list := core.NewRuleList(rules, defaultBucket)
	if len(list) == 0 || rules == nil {
		list = s.templates.ForAccountType(account.AccountType)
	}
	return AccountView{
		ID:          account.ID,
		Name:        account.Name,
		AccountType: account.AccountType,
		Balance:     core.Money{Milliunits: account.BalanceMilliunits},
		Rules:       list,
		Notes:       account.Notes,
		UpdatedAt:   account.UpdatedAt,
	}, nil
}

func (s *AllocationService) saveRules(ctx context.Context, accountID string, rules core.RuleList) error {
	rulesJSON, err := core.EncodeRules(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return s.storage.SaveRules(ctx, accountID, rulesJSON)
}

// publishExport requests an async snapshot export. Failures are logged
// but never fail the request, the local save already succeeded.
func (s *AllocationService) publishExport(ctx context.Context, accountID string) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping export message")
		return
	}
	if err := s.amqpClient.PublishSnapshotExport(ctx, accountID, time.Now().Unix()); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"account_id", accountID, "error", err)
	}
}

func (s *AllocationService) session(accountID string) *core.EditSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[accountID]
	if !ok {
		session = core.NewEditSession()
		s.sessions[accountID] = session
	}
	return session
}

// Close closes both storage and AMQP connections
func (s *AllocationService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close allocation service: %v", errs)
	}

	return nil
}
