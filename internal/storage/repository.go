package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect carries what differs between the supported databases.
// Queries are written with $n placeholders and rebound per dialect.
type dialect struct {
	name              string
	driver            string
	bind              func(query string) string
	isUniqueViolation func(err error) bool
	migrations        []*Migration
}

// sqlRepository implements Repository on top of database/sql
type sqlRepository struct {
	q       querier
	dialect *dialect
}

func (r *sqlRepository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.bind(query), args...)
}

func (r *sqlRepository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.bind(query), args...)
}

func (r *sqlRepository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.bind(query), args...)
}

func dbError(message string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return utils.WrapAppError(utils.ErrCodeDatabase, message, err)
}

func invariantError(message string, err error) error {
	return utils.WrapAppError(utils.ErrCodeInvariantViolation, message, err)
}

// normalizeAddress returns the checksummed form of valid addresses and the input otherwise
func normalizeAddress(address string) string {
	if utils.IsValidAddress(address) {
		return utils.ChecksumAddress(address)
	}
	return address
}

func normalizeAddressPtr(address *string) *string {
	if address == nil {
		return nil
	}
	normalized := normalizeAddress(*address)
	return &normalized
}

func now() time.Time {
	return time.Now().UTC()
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// ----- transaction records -----

const txColumns = `tx_id, tx_type, version, status, tx_params, tx_sender, tx_hash, ibet_wst_address,
	block_number, gas_used, event_log, finalized, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTx(row rowScanner) (*models.EthIbetWSTTx, error) {
	var (
		tx          models.EthIbetWSTTx
		params      string
		txHash      sql.NullString
		target      sql.NullString
		blockNumber sql.NullInt64
		gasUsed     sql.NullInt64
	)

	err := row.Scan(&tx.TxID, &tx.TxType, &tx.Version, &tx.Status, &params, &tx.TxSender,
		&txHash, &target, &blockNumber, &gasUsed, &tx.EventLog, &tx.Finalized,
		&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	tx.TxParams = []byte(params)
	if txHash.Valid {
		tx.TxHash = &txHash.String
	}
	if target.Valid {
		tx.IbetWSTAddress = &target.String
	}
	if blockNumber.Valid {
		v := uint64(blockNumber.Int64)
		tx.BlockNumber = &v
	}
	if gasUsed.Valid {
		v := uint64(gasUsed.Int64)
		tx.GasUsed = &v
	}
	return &tx, nil
}

func scanTxs(rows *sql.Rows) ([]*models.EthIbetWSTTx, error) {
	defer rows.Close()

	var txs []*models.EthIbetWSTTx
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// CreateTx inserts a new PENDING (or already SENT) transaction record
func (r *sqlRepository) CreateTx(ctx context.Context, tx *models.EthIbetWSTTx) error {
	if _, err := models.DecodeTxParams(tx.TxType, tx.TxParams); err != nil {
		return utils.WrapAppError(utils.ErrCodeValidation, "Invalid transaction params", err)
	}
	switch {
	case tx.Finalized:
		return utils.NewAppError(utils.ErrCodeValidation, "New transaction cannot be finalized", tx.TxID)
	case tx.Status == models.TxStatusPending:
	case tx.Status == models.TxStatusSent && tx.TxHash != nil:
	default:
		return utils.NewAppError(utils.ErrCodeValidation, "New transaction must be PENDING or SENT with a hash", tx.TxID)
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now()
	}
	tx.UpdatedAt = tx.CreatedAt

	_, err := r.exec(ctx, `
		INSERT INTO ibet_wst_tx (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, NULL, FALSE, $9, $10)`,
		tx.TxID, string(tx.TxType), tx.Version, string(tx.Status), string(tx.TxParams),
		normalizeAddress(tx.TxSender), tx.TxHash, normalizeAddressPtr(tx.IbetWSTAddress),
		tx.CreatedAt.UTC(), tx.UpdatedAt.UTC())
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return fmt.Errorf("%w: tx %s", ErrAlreadyExists, tx.TxID)
		}
		return dbError("Failed to create transaction", err)
	}
	return nil
}

// GetTx returns one transaction record
func (r *sqlRepository) GetTx(ctx context.Context, txID string) (*models.EthIbetWSTTx, error) {
	tx, err := scanTx(r.queryRow(ctx, `SELECT `+txColumns+` FROM ibet_wst_tx WHERE tx_id = $1`, txID))
	if err != nil {
		return nil, dbError("Failed to get transaction", err)
	}
	return tx, nil
}

// ListTxs returns transaction records matching filter, oldest first
func (r *sqlRepository) ListTxs(ctx context.Context, filter models.TxFilter) ([]*models.EthIbetWSTTx, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TxType != nil {
		args = append(args, string(*filter.TxType))
		conditions = append(conditions, fmt.Sprintf("tx_type = $%d", len(args)))
	}

	query := `SELECT ` + txColumns + ` FROM ibet_wst_tx`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at, tx_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("Failed to list transactions", err)
	}
	txs, err := scanTxs(rows)
	if err != nil {
		return nil, dbError("Failed to scan transactions", err)
	}
	return txs, nil
}

// ListPendingTxs returns the monitor's polling queue: records that are not finalized
// and still await a receipt (SENT) or finality (SUCCEEDED), in creation order
func (r *sqlRepository) ListPendingTxs(ctx context.Context, limit int) ([]*models.EthIbetWSTTx, error) {
	return r.ListPendingTxsPage(ctx, nil, limit)
}

// ListPendingTxsPage returns the pending records that sort after the given record in
// (created_at, tx_id) order. A nil after starts from the oldest record.
func (r *sqlRepository) ListPendingTxsPage(ctx context.Context, after *models.EthIbetWSTTx, limit int) ([]*models.EthIbetWSTTx, error) {
	query := `
		SELECT ` + txColumns + ` FROM ibet_wst_tx
		WHERE finalized = FALSE AND status IN ($1, $2)`
	args := []any{string(models.TxStatusSent), string(models.TxStatusSucceeded)}
	if after != nil {
		args = append(args, after.CreatedAt.UTC(), after.TxID)
		query += fmt.Sprintf(` AND (created_at, tx_id) > ($%d, $%d)`, len(args)-1, len(args))
	}
	query += ` ORDER BY created_at, tx_id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("Failed to list pending transactions", err)
	}
	txs, err := scanTxs(rows)
	if err != nil {
		return nil, dbError("Failed to scan pending transactions", err)
	}
	return txs, nil
}

// MarkTxSent moves a PENDING record to SENT
func (r *sqlRepository) MarkTxSent(ctx context.Context, txID, txHash string) error {
	tx, err := r.GetTx(ctx, txID)
	if err != nil {
		return err
	}
	if err := tx.MarkSent(txHash); err != nil {
		return invariantError("Cannot mark transaction sent", err)
	}

	res, err := r.exec(ctx, `
		UPDATE ibet_wst_tx SET status = $1, tx_hash = $2, updated_at = $3
		WHERE tx_id = $4 AND status = $5`,
		string(tx.Status), txHash, tx.UpdatedAt, txID, string(models.TxStatusPending))
	if err != nil {
		return dbError("Failed to mark transaction sent", err)
	}
	return expectOneRow(res)
}

// MarkTxSubmissionFailed moves a PENDING record that never reached the chain to FAILED
func (r *sqlRepository) MarkTxSubmissionFailed(ctx context.Context, txID string) error {
	tx, err := r.GetTx(ctx, txID)
	if err != nil {
		return err
	}
	if err := tx.MarkSubmissionFailed(); err != nil {
		return invariantError("Cannot mark transaction failed", err)
	}

	res, err := r.exec(ctx, `
		UPDATE ibet_wst_tx SET status = $1, updated_at = $2
		WHERE tx_id = $3 AND status = $4`,
		string(tx.Status), tx.UpdatedAt, txID, string(models.TxStatusPending))
	if err != nil {
		return dbError("Failed to mark transaction failed", err)
	}
	return expectOneRow(res)
}

// MarkTxResult records the receipt outcome. Status, block number and gas are written
// in one statement. Repeating the same terminal status is a no-op returning false.
func (r *sqlRepository) MarkTxResult(ctx context.Context, txID string, status models.TxStatus, blockNumber, gasUsed uint64) (bool, error) {
	tx, err := r.GetTx(ctx, txID)
	if err != nil {
		return false, err
	}
	previous := tx.Status

	changed, err := tx.ApplyResult(status, blockNumber, gasUsed)
	if err != nil {
		return false, invariantError("Cannot record transaction result", err)
	}
	if !changed {
		return false, nil
	}

	res, err := r.exec(ctx, `
		UPDATE ibet_wst_tx SET status = $1, block_number = $2, gas_used = $3, updated_at = $4
		WHERE tx_id = $5 AND status = $6`,
		string(tx.Status), blockNumber, gasUsed, tx.UpdatedAt, txID, string(previous))
	if err != nil {
		return false, dbError("Failed to record transaction result", err)
	}
	if err := expectOneRow(res); err != nil {
		return false, err
	}
	return true, nil
}

// MarkTxFinalized sets finalized and event_log together
func (r *sqlRepository) MarkTxFinalized(ctx context.Context, txID string, eventLog models.EventLog) error {
	tx, err := r.GetTx(ctx, txID)
	if err != nil {
		return err
	}
	if err := tx.Finalize(eventLog); err != nil {
		return invariantError("Cannot finalize transaction", err)
	}

	res, err := r.exec(ctx, `
		UPDATE ibet_wst_tx SET finalized = TRUE, event_log = $1, updated_at = $2
		WHERE tx_id = $3 AND status = $4 AND finalized = FALSE`,
		eventLog, tx.UpdatedAt, txID, string(models.TxStatusSucceeded))
	if err != nil {
		return dbError("Failed to finalize transaction", err)
	}
	return expectOneRow(res)
}

// ----- tokens -----

const tokenColumns = `token_address, issuer_address, ibet_wst_tx_id, ibet_wst_deployed, ibet_wst_address, created_at, updated_at`

func scanToken(row rowScanner) (*models.Token, error) {
	var (
		token   models.Token
		txID    sql.NullString
		address sql.NullString
	)
	err := row.Scan(&token.TokenAddress, &token.IssuerAddress, &txID, &token.IbetWSTDeployed,
		&address, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if txID.Valid {
		token.IbetWSTTxID = &txID.String
	}
	if address.Valid {
		token.IbetWSTAddress = &address.String
	}
	return &token, nil
}

// CreateToken inserts an issuer-facing token record
func (r *sqlRepository) CreateToken(ctx context.Context, token *models.Token) error {
	if !utils.IsValidAddress(token.TokenAddress) {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid token address", token.TokenAddress)
	}
	token.TokenAddress = normalizeAddress(token.TokenAddress)
	token.IssuerAddress = normalizeAddress(token.IssuerAddress)
	token.CreatedAt = now()
	token.UpdatedAt = token.CreatedAt

	_, err := r.exec(ctx, `
		INSERT INTO token (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.TokenAddress, token.IssuerAddress, token.IbetWSTTxID, token.IbetWSTDeployed,
		normalizeAddressPtr(token.IbetWSTAddress), token.CreatedAt, token.UpdatedAt)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return fmt.Errorf("%w: token %s", ErrAlreadyExists, token.TokenAddress)
		}
		return dbError("Failed to create token", err)
	}
	return nil
}

// GetToken returns a token by its address
func (r *sqlRepository) GetToken(ctx context.Context, tokenAddress string) (*models.Token, error) {
	token, err := scanToken(r.queryRow(ctx,
		`SELECT `+tokenColumns+` FROM token WHERE token_address = $1`, normalizeAddress(tokenAddress)))
	if err != nil {
		return nil, dbError("Failed to get token", err)
	}
	return token, nil
}

// GetTokenByWSTTxID returns the token whose WST deployment is txID
func (r *sqlRepository) GetTokenByWSTTxID(ctx context.Context, txID string) (*models.Token, error) {
	token, err := scanToken(r.queryRow(ctx,
		`SELECT `+tokenColumns+` FROM token WHERE ibet_wst_tx_id = $1`, txID))
	if err != nil {
		return nil, dbError("Failed to get token", err)
	}
	return token, nil
}

// SetTokenWSTDeployed records the deployed WST address on the token owning DEPLOY txID
func (r *sqlRepository) SetTokenWSTDeployed(ctx context.Context, txID, ibetWSTAddress string) error {
	res, err := r.exec(ctx, `
		UPDATE token SET ibet_wst_deployed = TRUE, ibet_wst_address = $1, updated_at = $2
		WHERE ibet_wst_tx_id = $3`,
		normalizeAddress(ibetWSTAddress), now(), txID)
	if err != nil {
		return dbError("Failed to update token", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dbError("Failed to update token", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: token for deploy tx %s", ErrNotFound, txID)
	}
	return nil
}

// ----- whitelist -----

const whitelistColumns = `ibet_wst_address, account_address, sc_account_address_in, sc_account_address_out, created_at`

func scanWhitelist(row rowScanner) (*models.WhitelistEntry, error) {
	var entry models.WhitelistEntry
	err := row.Scan(&entry.IbetWSTAddress, &entry.AccountAddress, &entry.SCAccountAddressIn,
		&entry.SCAccountAddressOut, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// AddWhitelist inserts the entry unless the (ibet_wst_address, account_address) pair
// exists already. It reports whether a row was inserted.
func (r *sqlRepository) AddWhitelist(ctx context.Context, entry *models.WhitelistEntry) (bool, error) {
	entry.IbetWSTAddress = normalizeAddress(entry.IbetWSTAddress)
	entry.AccountAddress = normalizeAddress(entry.AccountAddress)
	entry.SCAccountAddressIn = normalizeAddress(entry.SCAccountAddressIn)
	entry.SCAccountAddressOut = normalizeAddress(entry.SCAccountAddressOut)
	entry.CreatedAt = now()

	res, err := r.exec(ctx, `
		INSERT INTO idx_eth_ibet_wst_whitelist (`+whitelistColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ibet_wst_address, account_address) DO NOTHING`,
		entry.IbetWSTAddress, entry.AccountAddress, entry.SCAccountAddressIn,
		entry.SCAccountAddressOut, entry.CreatedAt)
	if err != nil {
		return false, dbError("Failed to add whitelist entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, dbError("Failed to add whitelist entry", err)
	}
	return affected > 0, nil
}

// DeleteWhitelist removes the entries for the pair and returns how many were removed
func (r *sqlRepository) DeleteWhitelist(ctx context.Context, ibetWSTAddress, accountAddress string) (int64, error) {
	res, err := r.exec(ctx, `
		DELETE FROM idx_eth_ibet_wst_whitelist
		WHERE ibet_wst_address = $1 AND account_address = $2`,
		normalizeAddress(ibetWSTAddress), normalizeAddress(accountAddress))
	if err != nil {
		return 0, dbError("Failed to delete whitelist entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, dbError("Failed to delete whitelist entry", err)
	}
	return affected, nil
}

// GetWhitelist returns one whitelist entry
func (r *sqlRepository) GetWhitelist(ctx context.Context, ibetWSTAddress, accountAddress string) (*models.WhitelistEntry, error) {
	entry, err := scanWhitelist(r.queryRow(ctx, `
		SELECT `+whitelistColumns+` FROM idx_eth_ibet_wst_whitelist
		WHERE ibet_wst_address = $1 AND account_address = $2`,
		normalizeAddress(ibetWSTAddress), normalizeAddress(accountAddress)))
	if err != nil {
		return nil, dbError("Failed to get whitelist entry", err)
	}
	return entry, nil
}

// ListWhitelist returns all entries of one WST contract
func (r *sqlRepository) ListWhitelist(ctx context.Context, ibetWSTAddress string) ([]*models.WhitelistEntry, error) {
	rows, err := r.query(ctx, `
		SELECT `+whitelistColumns+` FROM idx_eth_ibet_wst_whitelist
		WHERE ibet_wst_address = $1
		ORDER BY created_at, account_address`,
		normalizeAddress(ibetWSTAddress))
	if err != nil {
		return nil, dbError("Failed to list whitelist", err)
	}
	defer rows.Close()

	var entries []*models.WhitelistEntry
	for rows.Next() {
		entry, err := scanWhitelist(rows)
		if err != nil {
			return nil, dbError("Failed to scan whitelist entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to list whitelist", err)
	}
	return entries, nil
}

// ----- deliveries -----

const deliveryColumns = `exchange_address, delivery_id, token_address, seller_address, buyer_address,
	agent_address, amount, data, status, valid, created_at, updated_at`

func scanDelivery(row rowScanner) (*models.DVPDelivery, error) {
	var (
		d          models.DVPDelivery
		deliveryID int64
		amount     int64
		status     int
	)
	err := row.Scan(&d.ExchangeAddress, &deliveryID, &d.TokenAddress, &d.SellerAddress,
		&d.BuyerAddress, &d.AgentAddress, &amount, &d.Data, &status, &d.Valid,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.DeliveryID = uint64(deliveryID)
	d.Amount = uint64(amount)
	d.Status = models.DeliveryStatus(status)
	return &d, nil
}

// CreateDelivery inserts a delivery in its initial CREATED state
func (r *sqlRepository) CreateDelivery(ctx context.Context, delivery *models.DVPDelivery) error {
	if delivery.Status != models.DeliveryStatusCreated {
		return invariantError("New delivery must be CREATED",
			fmt.Errorf("delivery %d has status %s", delivery.DeliveryID, delivery.Status))
	}
	delivery.ExchangeAddress = normalizeAddress(delivery.ExchangeAddress)
	delivery.TokenAddress = normalizeAddress(delivery.TokenAddress)
	delivery.SellerAddress = normalizeAddress(delivery.SellerAddress)
	delivery.BuyerAddress = normalizeAddress(delivery.BuyerAddress)
	delivery.AgentAddress = normalizeAddress(delivery.AgentAddress)
	delivery.Valid = true
	delivery.CreatedAt = now()
	delivery.UpdatedAt = delivery.CreatedAt

	_, err := r.exec(ctx, `
		INSERT INTO dvp_delivery (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		delivery.ExchangeAddress, int64(delivery.DeliveryID), delivery.TokenAddress,
		delivery.SellerAddress, delivery.BuyerAddress, delivery.AgentAddress,
		int64(delivery.Amount), delivery.Data, int(delivery.Status), delivery.Valid,
		delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return fmt.Errorf("%w: delivery %s/%d", ErrAlreadyExists, delivery.ExchangeAddress, delivery.DeliveryID)
		}
		return dbError("Failed to create delivery", err)
	}
	return nil
}

// UpdateDeliveryStatus moves a delivery from one status to the next. The update is
// conditional on the current status so a stale caller cannot skip a state.
func (r *sqlRepository) UpdateDeliveryStatus(ctx context.Context, exchangeAddress string, deliveryID uint64, from, to models.DeliveryStatus, valid bool) error {
	if !from.CanTransitionTo(to) {
		return invariantError("Illegal delivery transition",
			fmt.Errorf("delivery %d: %s -> %s", deliveryID, from, to))
	}

	res, err := r.exec(ctx, `
		UPDATE dvp_delivery SET status = $1, valid = $2, updated_at = $3
		WHERE exchange_address = $4 AND delivery_id = $5 AND status = $6`,
		int(to), valid, now(), normalizeAddress(exchangeAddress), int64(deliveryID), int(from))
	if err != nil {
		return dbError("Failed to update delivery", err)
	}
	return expectOneRow(res)
}

// GetDelivery returns one delivery
func (r *sqlRepository) GetDelivery(ctx context.Context, exchangeAddress string, deliveryID uint64) (*models.DVPDelivery, error) {
	d, err := scanDelivery(r.queryRow(ctx, `
		SELECT `+deliveryColumns+` FROM dvp_delivery
		WHERE exchange_address = $1 AND delivery_id = $2`,
		normalizeAddress(exchangeAddress), int64(deliveryID)))
	if err != nil {
		return nil, dbError("Failed to get delivery", err)
	}
	return d, nil
}

// ListDeliveries returns deliveries matching filter ordered by id
func (r *sqlRepository) ListDeliveries(ctx context.Context, filter models.DeliveryFilter) ([]*models.DVPDelivery, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ExchangeAddress != "" {
		args = append(args, normalizeAddress(filter.ExchangeAddress))
		conditions = append(conditions, fmt.Sprintf("exchange_address = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, int(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + deliveryColumns + ` FROM dvp_delivery`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY exchange_address, delivery_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("Failed to list deliveries", err)
	}
	defer rows.Close()

	var deliveries []*models.DVPDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, dbError("Failed to scan delivery", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to list deliveries", err)
	}
	return deliveries, nil
}

// ----- accounts -----

// SaveAccount stores or replaces the keyfile of an account
func (r *sqlRepository) SaveAccount(ctx context.Context, account *models.Account) error {
	if !utils.IsValidAddress(account.AccountAddress) {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid account address", account.AccountAddress)
	}
	account.AccountAddress = normalizeAddress(account.AccountAddress)
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now()
	}

	_, err := r.exec(ctx, `
		INSERT INTO account (account_address, keyfile, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_address) DO UPDATE SET keyfile = excluded.keyfile`,
		account.AccountAddress, account.Keyfile, account.CreatedAt)
	if err != nil {
		return dbError("Failed to save account", err)
	}
	return nil
}

// GetAccount returns the stored keyfile of an account
func (r *sqlRepository) GetAccount(ctx context.Context, accountAddress string) (*models.Account, error) {
	var account models.Account
	err := r.queryRow(ctx, `
		SELECT account_address, keyfile, created_at FROM account WHERE account_address = $1`,
		normalizeAddress(accountAddress)).Scan(&account.AccountAddress, &account.Keyfile, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, dbError("Failed to get account", err)
	}
	return &account, nil
}
