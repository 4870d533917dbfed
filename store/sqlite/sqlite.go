/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces consumed by the club engine.

PURPOSE:
  Implements club.Store and club.Tx using database/sql + mattn/go-sqlite3.
  In production the same patterns apply to PostgreSQL - there the
  *ForUpdate reads become SELECT ... FOR UPDATE; here the store mutex plus
  a single write transaction provide the equivalent serialization.

KEY TABLES:
  members          Cached yearly balance lives here; mutated only in WithTx
  products         Stock count; CHECK(stock >= 0) as the last line of defense
  redemptions      State machine rows; conditional UPDATE gates decisions
  purchases        Immutable physical-purchase records
  movements        Append-only points ledger; no UPDATE, no DELETE
  preregistrations Membership applications

APPEND-ONLY ENFORCEMENT:
  The movements table is written with INSERT only. Corrections are new
  adjustment movements, never edits.

CONCURRENCY:
  sync.RWMutex serializes writers. WithTx holds the write lock for the
  whole transaction, so a read inside a transaction cannot be invalidated
  by a concurrent writer before commit. Readers share the read lock.

WAL MODE:
  Opened with WAL and foreign keys on. Use ":memory:" for tests.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - club/store.go: Interface definitions
  - club/engine.go: The transactional caller
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/ledger"
)

// Store implements club.Store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writers are serialized by the store mutex anyway, and
	// ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		member_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		points_current_year TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		points_price TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		category TEXT NOT NULL DEFAULT 'public',
		image_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE RESTRICT,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		points_cost TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		requested_at TEXT NOT NULL,
		decided_at TEXT,
		admin_comment TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_state
		ON redemptions(state);
	CREATE INDEX IF NOT EXISTS idx_redemptions_member
		ON redemptions(member_id);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE RESTRICT,
		euro_amount TEXT NOT NULL,
		employee TEXT NOT NULL,
		product_label TEXT NOT NULL,
		recorded_by TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Append-only points ledger. No UPDATE, no DELETE, ever.
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE RESTRICT,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		purchase_id TEXT REFERENCES purchases(id),
		redemption_id TEXT REFERENCES redemptions(id),
		year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: yearly history and the balance invariant check.
	CREATE INDEX IF NOT EXISTS idx_movements_member_year
		ON movements(member_id, year, created_at DESC);

	CREATE TABLE IF NOT EXISTS preregistrations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		registered_at TEXT NOT NULL,
		decided_at TEXT,
		decided_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_preregistrations_email_state
		ON preregistrations(email, state);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// MEMBERS
// =============================================================================

const memberColumns = `id, member_number, name, email, password_hash, role, points_current_year, created_at`

func scanMember(row interface{ Scan(...any) error }) (*club.Member, error) {
	var m club.Member
	var points, createdAt string
	err := row.Scan(&m.ID, &m.MemberNumber, &m.Name, &m.Email, &m.PasswordHash,
		&m.Role, &points, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("scan member", err)
	}
	m.PointsCurrentYear = ledger.ParsePoints(points)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func getMember(ctx context.Context, q querier, id ledger.MemberID) (*club.Member, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	return scanMember(row)
}

// MemberByID returns the member or nil.
func (s *Store) MemberByID(ctx context.Context, id ledger.MemberID) (*club.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMember(ctx, s.db, id)
}

// MemberByEmail returns the member with the given email or nil.
func (s *Store) MemberByEmail(ctx context.Context, email string) (*club.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = ?`, email)
	return scanMember(row)
}

// ListMembers returns all members ordered by name.
func (s *Store) ListMembers(ctx context.Context) ([]club.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY name`)
	if err != nil {
		return nil, persistErr("list members", err)
	}
	defer rows.Close()

	var members []club.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func insertMember(ctx context.Context, q querier, m club.Member) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO members (id, member_number, name, email, password_hash, role, points_current_year, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MemberNumber, m.Name, m.Email, m.PasswordHash, m.Role,
		m.PointsCurrentYear.String(), formatTime(m.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return &ledger.ConflictError{Detail: "email or member number already in use"}
	}
	if err != nil {
		return persistErr("insert member", err)
	}
	return nil
}

// InsertMember creates a member. Uniqueness violations map to a conflict.
func (s *Store) InsertMember(ctx context.Context, m club.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMember(ctx, s.db, m)
}

// DeleteMember removes a member. Members with ledger history, redemptions,
// or purchases are protected by RESTRICT constraints.
func (s *Store) DeleteMember(ctx context.Context, id ledger.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if isForeignKeyError(err) {
		return &ledger.ConflictError{Detail: "member has ledger history and cannot be deleted"}
	}
	if err != nil {
		return persistErr("delete member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "member", ID: string(id)}
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, description, points_price, stock, category, image_url, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*club.Product, error) {
	var p club.Product
	var price, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock,
		&p.Category, &p.ImageURL, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("scan product", err)
	}
	p.PointsPrice = ledger.ParsePoints(price)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func getProduct(ctx context.Context, q querier, id ledger.ProductID) (*club.Product, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

// ProductByID returns the product or nil.
func (s *Store) ProductByID(ctx context.Context, id ledger.ProductID) (*club.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

// ListProducts returns the catalog, optionally restricted to the public
// category, ordered by name.
func (s *Store) ListProducts(ctx context.Context, publicOnly bool) ([]club.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + productColumns + ` FROM products ORDER BY name`
	args := []any{}
	if publicOnly {
		query = `SELECT ` + productColumns + ` FROM products WHERE category = ? ORDER BY name`
		args = append(args, club.CategoryPublic)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list products", err)
	}
	defer rows.Close()

	var products []club.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// InsertProduct adds a catalog item.
func (s *Store) InsertProduct(ctx context.Context, p club.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, points_price, stock, category, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.PointsPrice.String(), p.Stock,
		p.Category, p.ImageURL, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return persistErr("insert product", err)
	}
	return nil
}

// UpdateProduct replaces the mutable fields of a product.
func (s *Store) UpdateProduct(ctx context.Context, p club.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, points_price = ?, stock = ?, category = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.PointsPrice.String(), p.Stock,
		p.Category, p.ImageURL, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return persistErr("update product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "product", ID: string(p.ID)}
	}
	return nil
}

// DeleteProduct removes a catalog item. Products referenced by redemptions
// are protected by RESTRICT constraints.
func (s *Store) DeleteProduct(ctx context.Context, id ledger.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if isForeignKeyError(err) {
		return &ledger.ConflictError{Detail: "product is referenced by redemptions and cannot be deleted"}
	}
	if err != nil {
		return persistErr("delete product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	return nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

func scanRedemption(row interface{ Scan(...any) error }) (*club.RedemptionRequest, error) {
	var r club.RedemptionRequest
	var cost, requestedAt string
	var decidedAt sql.NullString
	err := row.Scan(&r.ID, &r.MemberID, &r.ProductID, &cost, &r.State,
		&requestedAt, &decidedAt, &r.AdminComment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("scan redemption", err)
	}
	r.PointsCost = ledger.ParsePoints(cost)
	r.RequestedAt = parseTime(requestedAt)
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		r.DecidedAt = &t
	}
	return &r, nil
}

func getRedemption(ctx context.Context, q querier, id ledger.RedemptionID) (*club.RedemptionRequest, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, member_id, product_id, points_cost, state, requested_at, decided_at, admin_comment
		FROM redemptions WHERE id = ?`, id)
	return scanRedemption(row)
}

// RedemptionByID returns the redemption or nil.
func (s *Store) RedemptionByID(ctx context.Context, id ledger.RedemptionID) (*club.RedemptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRedemption(ctx, s.db, id)
}

// PendingRedemptions returns undecided requests with member and product
// display fields, oldest first (the admin works the queue in order).
func (s *Store) PendingRedemptions(ctx context.Context) ([]club.RedemptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.member_id, r.product_id, r.points_cost, r.state,
		       r.requested_at, r.decided_at, r.admin_comment,
		       m.name, m.member_number, p.name
		FROM redemptions r
		JOIN members m ON r.member_id = m.id
		JOIN products p ON r.product_id = p.id
		WHERE r.state = 'pending'
		ORDER BY r.requested_at ASC`)
	if err != nil {
		return nil, persistErr("list pending redemptions", err)
	}
	defer rows.Close()

	return scanRedemptionList(rows)
}

// RedemptionsByMember returns a member's requests, newest first.
func (s *Store) RedemptionsByMember(ctx context.Context, id ledger.MemberID) ([]club.RedemptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.member_id, r.product_id, r.points_cost, r.state,
		       r.requested_at, r.decided_at, r.admin_comment,
		       m.name, m.member_number, p.name
		FROM redemptions r
		JOIN members m ON r.member_id = m.id
		JOIN products p ON r.product_id = p.id
		WHERE r.member_id = ?
		ORDER BY r.requested_at DESC`, id)
	if err != nil {
		return nil, persistErr("list member redemptions", err)
	}
	defer rows.Close()

	return scanRedemptionList(rows)
}

func scanRedemptionList(rows *sql.Rows) ([]club.RedemptionRequest, error) {
	var out []club.RedemptionRequest
	for rows.Next() {
		var r club.RedemptionRequest
		var cost, requestedAt string
		var decidedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.MemberID, &r.ProductID, &cost, &r.State,
			&requestedAt, &decidedAt, &r.AdminComment,
			&r.MemberName, &r.MemberNumber, &r.ProductName); err != nil {
			return nil, persistErr("scan redemption", err)
		}
		r.PointsCost = ledger.ParsePoints(cost)
		r.RequestedAt = parseTime(requestedAt)
		if decidedAt.Valid {
			t := parseTime(decidedAt.String)
			r.DecidedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRedemption creates a pending request.
func (s *Store) InsertRedemption(ctx context.Context, r club.RedemptionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO redemptions (id, member_id, product_id, points_cost, state, requested_at, decided_at, admin_comment)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		r.ID, r.MemberID, r.ProductID, r.PointsCost.String(), r.State,
		formatTime(r.RequestedAt), r.AdminComment,
	)
	if err != nil {
		return persistErr("insert redemption", err)
	}
	return nil
}

// RejectRedemptionIfPending is the conditional single-writer gate: the
// UPDATE succeeds only while the row is still pending.
func (s *Store) RejectRedemptionIfPending(ctx context.Context, id ledger.RedemptionID, comment string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE redemptions
		SET state = 'rejected', admin_comment = ?, decided_at = ?
		WHERE id = ? AND state = 'pending'`,
		comment, formatTime(at), id,
	)
	if err != nil {
		return false, persistErr("reject redemption", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// Movements returns a member's ledger entries, newest first. A nil year
// means all years.
func (s *Store) Movements(ctx context.Context, id ledger.MemberID, year *int) ([]ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, member_id, amount, reason, description, purchase_id, redemption_id, year, created_at
		FROM movements
		WHERE member_id = ?
		ORDER BY created_at DESC, rowid DESC`
	args := []any{id}
	if year != nil {
		query = `
		SELECT id, member_id, amount, reason, description, purchase_id, redemption_id, year, created_at
		FROM movements
		WHERE member_id = ? AND year = ?
		ORDER BY created_at DESC, rowid DESC`
		args = append(args, *year)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list movements", err)
	}
	defer rows.Close()

	var movements []ledger.Movement
	for rows.Next() {
		var m ledger.Movement
		var amount, createdAt string
		var purchaseID, redemptionID sql.NullString
		if err := rows.Scan(&m.ID, &m.MemberID, &amount, &m.Reason, &m.Description,
			&purchaseID, &redemptionID, &m.Year, &createdAt); err != nil {
			return nil, persistErr("scan movement", err)
		}
		m.Amount = ledger.ParsePoints(amount)
		m.PurchaseID = ledger.PurchaseID(purchaseID.String)
		m.RedemptionID = ledger.RedemptionID(redemptionID.String)
		m.CreatedAt = parseTime(createdAt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func insertMovement(ctx context.Context, q querier, m ledger.Movement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO movements (id, member_id, amount, reason, description, purchase_id, redemption_id, year, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MemberID, m.Amount.String(), m.Reason, m.Description,
		nullString(string(m.PurchaseID)), nullString(string(m.RedemptionID)),
		m.Year, formatTime(m.CreatedAt),
	)
	if err != nil {
		return persistErr("insert movement", err)
	}
	return nil
}

// =============================================================================
// PRE-REGISTRATIONS
// =============================================================================

// InsertPreRegistration files an application.
func (s *Store) InsertPreRegistration(ctx context.Context, p club.PreRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preregistrations (id, name, email, state, registered_at, decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, NULL, NULL)`,
		p.ID, p.Name, p.Email, p.State, formatTime(p.RegisteredAt),
	)
	if err != nil {
		return persistErr("insert preregistration", err)
	}
	return nil
}

// PreRegistrationByID returns the application or nil.
func (s *Store) PreRegistrationByID(ctx context.Context, id string) (*club.PreRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, state, registered_at, decided_at, decided_by
		FROM preregistrations WHERE id = ?`, id)
	return scanPreRegistration(row)
}

func scanPreRegistration(row interface{ Scan(...any) error }) (*club.PreRegistration, error) {
	var p club.PreRegistration
	var registeredAt string
	var decidedAt, decidedBy sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.State, &registeredAt, &decidedAt, &decidedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("scan preregistration", err)
	}
	p.RegisteredAt = parseTime(registeredAt)
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		p.DecidedAt = &t
	}
	p.DecidedBy = ledger.MemberID(decidedBy.String)
	return &p, nil
}

// PendingPreRegistrations returns undecided applications, newest first.
func (s *Store) PendingPreRegistrations(ctx context.Context) ([]club.PreRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, state, registered_at, decided_at, decided_by
		FROM preregistrations
		WHERE state = 'pending'
		ORDER BY registered_at DESC`)
	if err != nil {
		return nil, persistErr("list preregistrations", err)
	}
	defer rows.Close()

	var apps []club.PreRegistration
	for rows.Next() {
		p, err := scanPreRegistration(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *p)
	}
	return apps, rows.Err()
}

// HasPendingPreRegistration reports whether an application for the email is
// already waiting.
func (s *Store) HasPendingPreRegistration(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM preregistrations WHERE email = ? AND state = 'pending'`,
		email,
	).Scan(&count)
	if err != nil {
		return false, persistErr("count preregistrations", err)
	}
	return count > 0, nil
}

// =============================================================================
// TRANSACTIONAL STORE (club.Tx)
// =============================================================================

// WithTx executes fn within one database transaction, holding the write
// lock for the duration. Reads made through the Tx therefore cannot be
// invalidated by a concurrent writer before commit - the moral equivalent
// of SELECT ... FOR UPDATE on the rows fn touches.
func (s *Store) WithTx(ctx context.Context, fn func(tx club.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) MemberForUpdate(ctx context.Context, id ledger.MemberID) (*club.Member, error) {
	return getMember(ctx, t.tx, id)
}

func (t *txStore) ProductForUpdate(ctx context.Context, id ledger.ProductID) (*club.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *txStore) RedemptionForUpdate(ctx context.Context, id ledger.RedemptionID) (*club.RedemptionRequest, error) {
	return getRedemption(ctx, t.tx, id)
}

// AddMemberPoints reads the current balance, applies the delta in decimal
// space, and writes the result back. Safe because the enclosing transaction
// holds the store write lock.
func (t *txStore) AddMemberPoints(ctx context.Context, id ledger.MemberID, delta ledger.Points) error {
	member, err := getMember(ctx, t.tx, id)
	if err != nil {
		return err
	}
	if member == nil {
		return &ledger.NotFoundError{Entity: "member", ID: string(id)}
	}
	next := member.PointsCurrentYear.Add(delta)

	res, err := t.tx.ExecContext(ctx,
		`UPDATE members SET points_current_year = ? WHERE id = ?`,
		next.String(), id,
	)
	if err != nil {
		return persistErr("update member points", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "member", ID: string(id)}
	}
	return nil
}

// DecrementProductStock takes one unit off the shelf. The stock > 0 guard
// backs up the engine's own re-check inside the same transaction.
func (t *txStore) DecrementProductStock(ctx context.Context, id ledger.ProductID) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - 1 WHERE id = ? AND stock > 0`, id)
	if err != nil {
		return persistErr("decrement stock", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.ConflictError{Detail: "product is sold out"}
	}
	return nil
}

func (t *txStore) MarkRedemptionDelivered(ctx context.Context, id ledger.RedemptionID, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE redemptions
		SET state = 'delivered', decided_at = ?
		WHERE id = ? AND state = 'pending'`,
		formatTime(at), id,
	)
	if err != nil {
		return persistErr("mark redemption delivered", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "pending redemption", ID: string(id)}
	}
	return nil
}

func (t *txStore) InsertMovement(ctx context.Context, m ledger.Movement) error {
	return insertMovement(ctx, t.tx, m)
}

func (t *txStore) InsertPurchase(ctx context.Context, p club.PhysicalPurchase) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO purchases (id, member_id, euro_amount, employee, product_label, recorded_by, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.EuroAmount.String(), p.EmployeeTag, p.ProductLabel,
		p.RecordedBy, p.Description, formatTime(p.CreatedAt),
	)
	if err != nil {
		return persistErr("insert purchase", err)
	}
	return nil
}

func (t *txStore) InsertMember(ctx context.Context, m club.Member) error {
	return insertMember(ctx, t.tx, m)
}

func (t *txStore) DecidePreRegistrationIfPending(ctx context.Context, id string, state club.PreRegistrationState, by ledger.MemberID, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE preregistrations
		SET state = ?, decided_at = ?, decided_by = ?
		WHERE id = ? AND state = 'pending'`,
		state, formatTime(at), by, id,
	)
	if err != nil {
		return false, persistErr("decide preregistration", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ledger.ErrPersistence, op, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
