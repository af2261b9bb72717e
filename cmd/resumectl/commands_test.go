package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rajasatyajit/ResumeCore/config"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/store"
)

type fakeEnv struct {
	*env
	store      store.Store
	upURL      string
	downURL    string
	downSteps  int
	closeCalls int
}

func newFakeEnv(t *testing.T, dbURL string) *fakeEnv {
	t.Helper()
	f := &fakeEnv{store: store.NewInMemoryStore()}
	f.env = &env{
		loadConfig: func() (*config.Config, error) {
			return &config.Config{
				Logging:  config.LoggingConfig{Level: "error", Format: "text"},
				Database: config.DatabaseConfig{URL: dbURL},
				Billing: config.BillingConfig{Products: map[string]models.Plan{
					"prod_pro":    models.PlanPro,
					"prod_legend": models.PlanLegend,
				}},
			}, nil
		},
		openStore: func(context.Context, *config.Config) (store.Store, func(), error) {
			return f.store, func() { f.closeCalls++ }, nil
		},
		migrateUp: func(url string) error {
			f.upURL = url
			return nil
		},
		migrateDown: func(url string, steps int) error {
			f.downURL, f.downSteps = url, steps
			return nil
		},
	}
	return f
}

func (f *fakeEnv) seed(t *testing.T) models.User {
	t.Helper()
	u, _, err := f.store.UpsertIdentity(context.Background(), models.IdentityProfile{ExternalID: "user_1", Email: "ada@example.com"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func execute(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuild, oldCommit := Version, BuildTime, GitCommit
	defer func() { Version, BuildTime, GitCommit = oldVersion, oldBuild, oldCommit }()

	Version, BuildTime, GitCommit = "1.2.3", "2025-01-01", "abcdef"
	out, err := execute(t, newFakeEnv(t, "").env, "version")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"resumectl 1.2.3", "Built: 2025-01-01", "Commit: abcdef"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	BuildTime, GitCommit = "unknown", "unknown"
	out, _ = execute(t, newFakeEnv(t, "").env, "version")
	if strings.Contains(out, "Built:") || strings.Contains(out, "Commit:") {
		t.Errorf("unexpected build details in %q", out)
	}
}

func TestMigrateCmd(t *testing.T) {
	f := newFakeEnv(t, "postgres://db/resume")

	if _, err := execute(t, f.env, "migrate", "up"); err != nil {
		t.Fatal(err)
	}
	if f.upURL != "postgres://db/resume" {
		t.Fatalf("migrate up used %q", f.upURL)
	}

	out, err := execute(t, f.env, "migrate", "down", "--steps", "2")
	if err != nil {
		t.Fatal(err)
	}
	if f.downSteps != 2 || !strings.Contains(out, "Rolled back 2") {
		t.Fatalf("migrate down: steps=%d out=%q", f.downSteps, out)
	}

	if _, err := execute(t, f.env, "migrate", "down", "--steps", "0"); err == nil {
		t.Fatal("expected error for zero steps")
	}
	if _, err := execute(t, newFakeEnv(t, "").env, "migrate", "up"); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestPlanCmd(t *testing.T) {
	f := newFakeEnv(t, "")
	tests := map[string]string{
		"prod_legend":  "prod_legend -> legend",
		"prod_pro":     "prod_pro -> pro",
		"prod_unknown": "prod_unknown -> free",
	}
	for product, want := range tests {
		out, err := execute(t, f.env, "plan", product)
		if err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(out) != want {
			t.Errorf("plan %s = %q, want %q", product, out, want)
		}
	}
}

func TestPlanListCmd(t *testing.T) {
	f := newFakeEnv(t, "")
	out, err := execute(t, f.env, "plan", "--list")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "prod_legend") || !strings.HasSuffix(lines[1], "legend") ||
		!strings.HasPrefix(lines[2], "prod_pro") || !strings.HasSuffix(lines[2], "pro") {
		t.Fatalf("unexpected table %q", out)
	}
	if _, err := execute(t, f.env, "plan", "--list", "prod_pro"); err == nil {
		t.Fatal("expected error when combining --list with a product")
	}
	if _, err := execute(t, f.env, "plan"); err == nil {
		t.Fatal("expected error without a product")
	}
}

func TestBalanceCmd(t *testing.T) {
	f := newFakeEnv(t, "postgres://db")
	f.seed(t)

	out, err := execute(t, f.env, "balance", "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Credits:  10") || !strings.Contains(out, "Plan:     free") {
		t.Fatalf("unexpected output %q", out)
	}
	if f.closeCalls != 1 {
		t.Fatalf("store closed %d times", f.closeCalls)
	}

	_, err = execute(t, f.env, "balance", "nobody")
	if err == nil || !strings.Contains(err.Error(), "nobody") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestGrantAndLedgerCmds(t *testing.T) {
	f := newFakeEnv(t, "postgres://db")
	f.seed(t)

	out, err := execute(t, f.env, "grant", "user_1", "25", "--related", "ticket_9")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "balance 35") {
		t.Fatalf("unexpected grant output %q", out)
	}

	out, err = execute(t, f.env, "ledger", "user_1", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var txs []models.CreditTransaction
	if err := json.Unmarshal([]byte(out), &txs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(txs) != 2 || txs[0].Reason != models.ReasonAdminGrant || txs[0].RelatedID != "ticket_9" {
		t.Fatalf("unexpected ledger %+v", txs)
	}

	out, err = execute(t, f.env, "ledger", "user_1", "--limit", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "+25") || strings.Contains(out, "signup_grant") {
		t.Fatalf("unexpected table %q", out)
	}

	tests := []struct {
		name string
		args []string
	}{
		{name: "non numeric", args: []string{"grant", "user_1", "lots"}},
		{name: "negative", args: []string{"grant", "user_1", "-5"}},
		{name: "debit reason", args: []string{"grant", "user_1", "5", "--reason", "cover_letter"}},
		{name: "missing amount", args: []string{"grant", "user_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, f.env, tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestConfigErrorsSurface(t *testing.T) {
	f := newFakeEnv(t, "")
	f.loadConfig = func() (*config.Config, error) { return nil, errors.New("bad env") }
	if _, err := execute(t, f.env, "plan", "prod_pro"); err == nil || !strings.Contains(err.Error(), "bad env") {
		t.Fatalf("expected config error, got %v", err)
	}
}
