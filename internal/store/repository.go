package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

// Repository persists accounts, agency subscriptions and token metadata.
// It is safe for concurrent use.
type Repository struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to driver ("sqlite" or "mysql") and ensures the schema.
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	var d dialect
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		d = sqliteDialect
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, clierr.Wrap(clierr.CodePersistence, "create store directory", err)
		}
	case "mysql":
		d = mysqlDialect
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported store driver %q", driver))
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, clierr.New(clierr.CodeUsage, "store dsn is required")
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodePersistence, "open store", err)
	}
	if d.name == "sqlite" {
		// One writer keeps sequential id assignment free of SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, clierr.Wrap(clierr.CodePersistence, "ping store", err)
	}
	for _, q := range d.schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, clierr.Wrap(clierr.CodePersistence, "init store schema", err)
		}
	}
	return &Repository{db: db, dialect: d}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetAccount returns the account for externalID; found is false when no row exists.
func (r *Repository) GetAccount(ctx context.Context, externalID int64) (Account, bool, error) {
	row := r.db.QueryRowContext(ctx, "SELECT id, external_id, address, created_at FROM accounts WHERE external_id = ?", externalID)
	var (
		acct    Account
		created int64
	)
	if err := row.Scan(&acct.ID, &acct.ExternalID, &acct.Address, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, false, nil
		}
		return Account{}, false, clierr.Wrap(clierr.CodePersistence, "read account", err)
	}
	acct.CreatedAt = time.Unix(created, 0).UTC()
	return acct, true, nil
}

// EnsureAccount creates the account row for externalID if it does not exist
// and returns it. Concurrent calls for the same identity yield one row.
func (r *Repository) EnsureAccount(ctx context.Context, externalID int64) (Account, error) {
	if _, err := r.db.ExecContext(ctx, r.dialect.insertAccount, externalID, time.Now().UTC().Unix()); err != nil {
		return Account{}, clierr.Wrap(clierr.CodePersistence, "create account", err)
	}
	acct, ok, err := r.GetAccount(ctx, externalID)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, clierr.New(clierr.CodePersistence, "account missing after create")
	}
	return acct, nil
}

// SetAccountAddress records the derived address. An address that is already
// set is immutable; setting the same value again is a no-op.
func (r *Repository) SetAccountAddress(ctx context.Context, accountID int64, address string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE accounts SET address = ? WHERE id = ? AND address = ?", address, accountID, UnderivedAddress)
	if err != nil {
		return clierr.Wrap(clierr.CodePersistence, "update account address", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return clierr.Wrap(clierr.CodePersistence, "update account address", err)
	}
	if n == 1 {
		return nil
	}
	var current string
	if err := r.db.QueryRowContext(ctx, "SELECT address FROM accounts WHERE id = ?", accountID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return clierr.New(clierr.CodePersistence, fmt.Sprintf("account %d not found", accountID))
		}
		return clierr.Wrap(clierr.CodePersistence, "read account address", err)
	}
	if !strings.EqualFold(current, address) {
		return clierr.New(clierr.CodeAccountState, fmt.Sprintf("account %d already bound to a different address", accountID))
	}
	return nil
}

func (r *Repository) AddAgency(ctx context.Context, sub AgencySubscription) error {
	created := sub.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.dialect.upsertAgency,
		sub.AccountID, normalizeAddress(sub.AgencyAddress), normalizeAddress(sub.AgentAddress),
		sub.AgencyName, normalizeAddress(sub.TokenAddress), created.Unix())
	if err != nil {
		return clierr.Wrap(clierr.CodePersistence, "save agency", err)
	}
	return nil
}

func (r *Repository) GetAgency(ctx context.Context, accountID int64, agency string) (AgencySubscription, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT account_id, agency_address, agent_address, agency_name, token_address, created_at
		FROM agencies WHERE account_id = ? AND agency_address = ?`, accountID, normalizeAddress(agency))
	sub, err := scanAgency(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AgencySubscription{}, false, nil
		}
		return AgencySubscription{}, false, clierr.Wrap(clierr.CodePersistence, "read agency", err)
	}
	return sub, true, nil
}

func (r *Repository) ListAgencies(ctx context.Context, accountID int64) ([]AgencySubscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT account_id, agency_address, agent_address, agency_name, token_address, created_at
		FROM agencies WHERE account_id = ? ORDER BY created_at ASC, agency_address ASC`, accountID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodePersistence, "list agencies", err)
	}
	defer rows.Close()

	out := make([]AgencySubscription, 0)
	for rows.Next() {
		sub, err := scanAgency(rows)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodePersistence, "scan agency row", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodePersistence, "iterate agency rows", err)
	}
	return out, nil
}

// DeleteAgency removes a subscription and reports whether one existed.
func (r *Repository) DeleteAgency(ctx context.Context, accountID int64, agency string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM agencies WHERE account_id = ? AND agency_address = ?", accountID, normalizeAddress(agency))
	if err != nil {
		return false, clierr.Wrap(clierr.CodePersistence, "delete agency", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, clierr.Wrap(clierr.CodePersistence, "delete agency", err)
	}
	return n > 0, nil
}

// UpsertTokenMeta caches token display metadata.
func (r *Repository) UpsertTokenMeta(ctx context.Context, tokenAddress, symbol string, decimals uint8) error {
	_, err := r.db.ExecContext(ctx, r.dialect.upsertToken, normalizeAddress(tokenAddress), symbol, decimals, time.Now().UTC().Unix())
	if err != nil {
		return clierr.Wrap(clierr.CodePersistence, "save token info", err)
	}
	return nil
}

func (r *Repository) GetTokenInfo(ctx context.Context, tokenAddress string) (TokenInfo, bool, error) {
	var (
		info    TokenInfo
		updated int64
	)
	err := r.db.QueryRowContext(ctx, "SELECT token_address, symbol, decimals, updated_at FROM token_info WHERE token_address = ?",
		normalizeAddress(tokenAddress)).Scan(&info.TokenAddress, &info.Symbol, &info.Decimals, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenInfo{}, false, nil
		}
		return TokenInfo{}, false, clierr.Wrap(clierr.CodePersistence, "read token info", err)
	}
	info.UpdatedAt = time.Unix(updated, 0).UTC()
	return info, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgency(row scanner) (AgencySubscription, error) {
	var (
		sub     AgencySubscription
		created int64
	)
	if err := row.Scan(&sub.AccountID, &sub.AgencyAddress, &sub.AgentAddress, &sub.AgencyName, &sub.TokenAddress, &created); err != nil {
		return AgencySubscription{}, err
	}
	sub.CreatedAt = time.Unix(created, 0).UTC()
	return sub, nil
}

// Addresses are stored lowercase so lookups are case-insensitive.
func normalizeAddress(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
