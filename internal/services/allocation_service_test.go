package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"stash/internal/config"
	"stash/internal/core"
	"stash/internal/storage"
)

func newTestService(t *testing.T) *AllocationService {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	templates, err := config.LoadRuleTemplates("")
	if err != nil {
		t.Fatalf("LoadRuleTemplates: %v", err)
	}

	return NewAllocationService(repo, nil, templates)
}

func TestCreateAccountSeedsTemplateRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Savings", "savings")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if v.ID == "" {
		t.Error("account should get a generated ID")
	}

	loaded, err := svc.GetAccount(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if _, ok := loaded.Rules.Remaining(); !ok {
		t.Error("template rules must include a remaining rule")
	}

	// Savings accounts default their remaining bucket to Frozen.
	rem, _ := loaded.Rules.Remaining()
	if rem.Bucket != core.BucketFrozen {
		t.Errorf("remaining bucket = %v, want Frozen", rem.Bucket)
	}
}

func TestCreateAccountRequiresName(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.CreateAccount(context.Background(), "", "checking"); err == nil {
		t.Error("expected error for empty account name")
	}
}

func TestUpdateBalanceAndSnapshot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	snap, err := svc.UpdateBalance(ctx, v.ID, "1500.50")
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if got := snap.Account.Balance.Milliunits; got != 1_500_500 {
		t.Errorf("balance = %d milliunits, want 1500500", got)
	}
	if got := snap.Result.Total().Milliunits; got != 1_500_500 {
		t.Errorf("allocated total = %d, want 1500500", got)
	}
}

func TestUpdateBalanceNegativeAllocatesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	snap, err := svc.UpdateBalance(ctx, v.ID, "-10")
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if got := snap.Account.Balance.Milliunits; got != -10_000 {
		t.Errorf("stored balance = %d, want -10000", got)
	}
	if got := snap.Result.Total().Milliunits; got != 0 {
		t.Errorf("allocated total = %d for negative balance, want 0", got)
	}
}

func TestUpdateBalanceRejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := svc.UpdateBalance(ctx, v.ID, "not a number"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestRuleLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rules, err := svc.AddRule(ctx, v.ID, core.AllocationRule{
		Name:   "Emergency fund",
		Kind:   core.KindFixed,
		Amount: core.Money{Milliunits: 500_000},
		Bucket: core.BucketFrozen,
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	added := rules[len(rules)-2]
	if added.ID == "" {
		t.Fatal("added rule should get a generated ID")
	}
	if rules[len(rules)-1].Kind != core.KindRemaining {
		t.Error("remaining rule must stay last after add")
	}

	// Update the added rule's name.
	name := "Rainy day"
	rules, err = svc.UpdateRule(ctx, v.ID, added.ID, core.RulePatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if got := rules[len(rules)-2].Name; got != "Rainy day" {
		t.Errorf("rule name = %q, want %q", got, "Rainy day")
	}

	// The remaining rule cannot be deleted.
	if _, err := svc.DeleteRule(ctx, v.ID, core.RemainingID); !errors.Is(err, core.ErrProtectedRule) {
		t.Errorf("delete remaining error = %v, want ErrProtectedRule", err)
	}

	// Delete the added rule.
	rules, err = svc.DeleteRule(ctx, v.ID, added.ID)
	if err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	for _, r := range rules {
		if r.ID == added.ID {
			t.Error("deleted rule still present")
		}
	}
}

func TestCancelEditRemovesUnsavedRule(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rules, err := svc.AddRule(ctx, v.ID, core.AllocationRule{
		Name:    "Draft",
		Kind:    core.KindPercentage,
		Percent: 10,
		Bucket:  core.BucketLiquid,
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	draftID := rules[len(rules)-2].ID

	rules, err = svc.CancelEdit(ctx, v.ID, draftID)
	if err != nil {
		t.Fatalf("CancelEdit: %v", err)
	}
	for _, r := range rules {
		if r.ID == draftID {
			t.Error("cancelled draft rule should be removed")
		}
	}
}

func TestCancelEditKeepsSavedRule(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rules, err := svc.AddRule(ctx, v.ID, core.AllocationRule{
		Name:    "Kept",
		Kind:    core.KindPercentage,
		Percent: 10,
		Bucket:  core.BucketLiquid,
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	keptID := rules[len(rules)-2].ID

	if _, err := svc.SaveRules(ctx, v.ID); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}

	rules, err = svc.CancelEdit(ctx, v.ID, keptID)
	if err != nil {
		t.Fatalf("CancelEdit: %v", err)
	}
	found := false
	for _, r := range rules {
		if r.ID == keptID {
			found = true
		}
	}
	if !found {
		t.Error("saved rule should survive a cancelled edit")
	}
}

func TestMoveRulePersists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateAccount(ctx, "Main", "checking")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	for _, name := range []string{"First", "Second"} {
		if _, err := svc.AddRule(ctx, v.ID, core.AllocationRule{
			Name:    name,
			Kind:    core.KindPercentage,
			Percent: 10,
			Bucket:  core.BucketLiquid,
		}); err != nil {
			t.Fatalf("AddRule(%s): %v", name, err)
		}
	}

	before, err := svc.GetAccount(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	firstIdx := -1
	for i, r := range before.Rules {
		if r.Name == "First" {
			firstIdx = i
		}
	}

	rules, err := svc.MoveRule(ctx, v.ID, firstIdx, +1)
	if err != nil {
		t.Fatalf("MoveRule: %v", err)
	}
	if rules[firstIdx].Name != "Second" {
		t.Errorf("rule at %d = %q after move, want Second", firstIdx, rules[firstIdx].Name)
	}

	after, err := svc.GetAccount(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if after.Rules[firstIdx].Name != "Second" {
		t.Error("move should persist across loads")
	}
}

func TestGetAccountNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetAccount(context.Background(), "missing")
	if !errors.Is(err, storage.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestCloseWithNilComponents(t *testing.T) {
	svc := &AllocationService{}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close should not return error with nil components: %v", err)
	}
}
