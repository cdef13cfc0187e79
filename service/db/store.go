package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no transaction matches the given session id.
	ErrNotFound = errors.New("transaction not found")

	// ErrAlreadyExists is returned when a transaction with the same session id
	// already exists. Callers should treat this as "already created" and read
	// back the existing record rather than failing.
	ErrAlreadyExists = errors.New("transaction already exists")
)

const pgUniqueViolation = "23505"

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgx connection pool with the shopspring decimal codec
// registered, so that usd_amount and token_amount scan directly into
// decimal.Decimal values. All binaries and tests should use this instead of
// pgxpool.New.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Transaction represents one USD -> NILA purchase attempt.
// The session id is allocated by the payment processor and is the only
// stable external identifier for the record.
type Transaction struct {
	ID             int64
	SessionID      string
	Name           string
	Email          string
	Phone          string
	USDAmount      decimal.Decimal
	TokenAmount    decimal.Decimal
	WalletAddress  string
	Status         string
	DepositStatus  *string // nil until first webhook
	WithdrawStatus *string // nil until first webhook
	WithdrawTxID   *string // nil until withdrawal executes
	WebhookData    *string // last raw webhook body, audit only
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateTransactionParams contains the parameters for creating a transaction.
type CreateTransactionParams struct {
	SessionID     string
	Name          string
	Email         string
	Phone         string
	USDAmount     decimal.Decimal
	TokenAmount   decimal.Decimal
	WalletAddress string
	CreatedAt     time.Time
}

// UpdateTransactionStatusParams contains the parameters for a webhook-driven
// status update. Every field is written on each update (last write wins);
// updates are never partial merges.
type UpdateTransactionStatusParams struct {
	SessionID      string
	Status         string
	DepositStatus  *string
	WithdrawStatus *string
	WithdrawTxID   *string
	WebhookData    string
}

// ListTransactionsParams contains pagination parameters.
type ListTransactionsParams struct {
	Limit  int32
	Offset int32
}

const transactionColumns = `id, session_id, name, email, phone, usd_amount, token_amount,
	wallet_address, status, deposit_status, withdraw_status, withdraw_tx_id,
	webhook_data, created_at, updated_at`

// CreateTransaction inserts a new transaction with status "pending".
// Returns ErrAlreadyExists if a transaction with the same session id exists;
// the existing row is left untouched.
func (s *Store) CreateTransaction(ctx context.Context, params CreateTransactionParams) (*Transaction, error) {
	query := `
		INSERT INTO transactions (
			session_id, name, email, phone, usd_amount, token_amount,
			wallet_address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + transactionColumns

	row := s.pool.QueryRow(ctx, query,
		params.SessionID,
		params.Name,
		params.Email,
		params.Phone,
		params.USDAmount,
		params.TokenAmount,
		params.WalletAddress,
		params.CreatedAt,
	)

	txn, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return txn, nil
}

// UpdateTransactionStatus overwrites the mutable status fields of a
// transaction and refreshes updated_at. Returns ErrNotFound if no row
// matches the session id; webhooks for unknown sessions are never upserted.
func (s *Store) UpdateTransactionStatus(ctx context.Context, params UpdateTransactionStatusParams) (*Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $2,
			deposit_status = $3,
			withdraw_status = $4,
			withdraw_tx_id = $5,
			webhook_data = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE session_id = $1
		RETURNING ` + transactionColumns

	row := s.pool.QueryRow(ctx, query,
		params.SessionID,
		params.Status,
		params.DepositStatus,
		params.WithdrawStatus,
		params.WithdrawTxID,
		params.WebhookData,
	)
	return scanTransaction(row)
}

// GetTransactionBySessionID retrieves a transaction by its session id.
func (s *Store) GetTransactionBySessionID(ctx context.Context, sessionID string) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE session_id = $1`
	return scanTransaction(s.pool.QueryRow(ctx, query, sessionID))
}

// ListTransactions retrieves transactions ordered newest first.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) ([]*Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// CountTransactions counts all transactions.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	return count, err
}

// scanTransaction scans a single transaction row, mapping pgx.ErrNoRows to
// ErrNotFound.
func scanTransaction(row pgx.Row) (*Transaction, error) {
	var txn Transaction
	err := row.Scan(
		&txn.ID,
		&txn.SessionID,
		&txn.Name,
		&txn.Email,
		&txn.Phone,
		&txn.USDAmount,
		&txn.TokenAmount,
		&txn.WalletAddress,
		&txn.Status,
		&txn.DepositStatus,
		&txn.WithdrawStatus,
		&txn.WithdrawTxID,
		&txn.WebhookData,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}
