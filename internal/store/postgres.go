package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"landgov/api/internal/area"
)

// ErrPlotAlreadyAllocated is returned when a conditional allocation loses
// the race on the plot's bought flag.
var ErrPlotAlreadyAllocated = errors.New("plot already allocated")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, contact_number, role, plot_id, area_id)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.ContactNumber, user.Role, user.PlotID, user.AreaID)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE email=LOWER($1)`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE id=$1`, userID))
}

// FindUserByPlot resolves the citizen mapped to a plot in an area. Used to
// snapshot the owner email when flagging a violation.
func (s *PostgresStore) FindUserByPlot(ctx context.Context, areaID area.ID, plotID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE plot_id=$1 AND area_id=$2`, plotID, string(areaID)))
}

const userSelect = `
	SELECT id, name, email, password_hash, contact_number, role,
	       COALESCE(plot_id, ''), COALESCE(area_id, ''), created_at
	FROM users`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.ContactNumber,
		&user.Role,
		&user.PlotID,
		&user.AreaID,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListCitizens returns every citizen account, newest first. Feeds the
// admin user directory used for manual plot assignment.
func (s *PostgresStore) ListCitizens(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, userSelect+` WHERE role=$1 ORDER BY created_at DESC`, "citizen")
	if err != nil {
		return nil, fmt.Errorf("list citizens: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.PasswordHash,
			&user.ContactNumber,
			&user.Role,
			&user.PlotID,
			&user.AreaID,
			&user.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan citizen: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) BindUserPlot(ctx context.Context, email string, areaID area.ID, plotID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET plot_id=$2, area_id=$3 WHERE email=LOWER($1)
	`, email, plotID, string(areaID))
	if err != nil {
		return fmt.Errorf("bind user plot: %w", err)
	}
	return nil
}

// ---- refresh sessions / token revocation (Postgres fallback when Redis
// is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.name, u.email, u.password_hash, u.contact_number, u.role,
		       COALESCE(u.plot_id, ''), COALESCE(u.area_id, ''), u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- plot registry ----
//
// Plot table names come from the static area catalog, never from request
// input, so interpolating them into SQL is safe.

func (s *PostgresStore) ListPlots(ctx context.Context, cfg area.Config) ([]Plot, error) {
	query := fmt.Sprintf(`
		SELECT plot_id, points, bought, lease_price, lease_duration,
		       COALESCE(bought_by, ''), allotment_at
		FROM %s
		ORDER BY plot_id ASC
	`, cfg.PlotTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plots %s: %w", cfg.ID, err)
	}
	defer rows.Close()

	items := make([]Plot, 0)
	for rows.Next() {
		item := Plot{AreaID: cfg.ID}
		if err := rows.Scan(&item.PlotID, &item.Points, &item.Bought, &item.LeasePrice, &item.LeaseDuration, &item.BoughtBy, &item.AllotmentAt); err != nil {
			return nil, fmt.Errorf("scan plot: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plots: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPlot(ctx context.Context, cfg area.Config, plotID int) (Plot, error) {
	query := fmt.Sprintf(`
		SELECT plot_id, points, bought, lease_price, lease_duration,
		       COALESCE(bought_by, ''), allotment_at
		FROM %s
		WHERE plot_id=$1
	`, cfg.PlotTable)
	item := Plot{AreaID: cfg.ID}
	err := s.db.QueryRowContext(ctx, query, plotID).Scan(
		&item.PlotID,
		&item.Points,
		&item.Bought,
		&item.LeasePrice,
		&item.LeaseDuration,
		&item.BoughtBy,
		&item.AllotmentAt,
	)
	if err != nil {
		return Plot{}, err
	}
	return item, nil
}

// ---- land requests ----

func (s *PostgresStore) InsertLandRequest(ctx context.Context, item LandRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO land_requests (id, area_id, plot_id, points, purpose, quoted_price, quoted_by, workflow_stage, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, LOWER($7), $8, $9)
	`, item.ID, string(item.AreaID), item.PlotID, item.Points, item.Purpose, item.QuotedPrice, item.QuotedBy, item.WorkflowStage, item.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert land request: %w", err)
	}
	return nil
}

const requestSelect = `
	SELECT id, area_id, plot_id, COALESCE(points, ''), purpose, quoted_price, quoted_by,
	       workflow_stage, submitted_at, district_approved_at, state_approved_at,
	       rejected_at, COALESCE(rejected_by, '')
	FROM land_requests`

func (s *PostgresStore) GetLandRequest(ctx context.Context, requestID string) (LandRequest, error) {
	return scanRequest(s.db.QueryRowContext(ctx, requestSelect+` WHERE id=$1`, requestID))
}

func scanRequest(row *sql.Row) (LandRequest, error) {
	var item LandRequest
	var areaID string
	err := row.Scan(
		&item.ID,
		&areaID,
		&item.PlotID,
		&item.Points,
		&item.Purpose,
		&item.QuotedPrice,
		&item.QuotedBy,
		&item.WorkflowStage,
		&item.SubmittedAt,
		&item.DistrictApprovedAt,
		&item.StateApprovedAt,
		&item.RejectedAt,
		&item.RejectedBy,
	)
	if err != nil {
		return LandRequest{}, err
	}
	item.AreaID = area.ID(areaID)
	return item, nil
}

// ListRequestsByStage returns the queue for a stage. The district queue is
// FIFO by submission; the state queue is FIFO by district approval.
func (s *PostgresStore) ListRequestsByStage(ctx context.Context, stage string) ([]LandRequest, error) {
	order := "submitted_at ASC"
	if stage == StageStatePending {
		order = "district_approved_at ASC"
	}
	rows, err := s.db.QueryContext(ctx, requestSelect+` WHERE workflow_stage=$1 ORDER BY `+order, stage)
	if err != nil {
		return nil, fmt.Errorf("list requests by stage: %w", err)
	}
	return collectRequests(rows)
}

func (s *PostgresStore) ListRequestsByCitizen(ctx context.Context, email string) ([]LandRequest, error) {
	rows, err := s.db.QueryContext(ctx, requestSelect+` WHERE quoted_by=LOWER($1) ORDER BY submitted_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list requests by citizen: %w", err)
	}
	return collectRequests(rows)
}

func (s *PostgresStore) ListAllRequests(ctx context.Context) ([]LandRequest, error) {
	rows, err := s.db.QueryContext(ctx, requestSelect+` ORDER BY submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all requests: %w", err)
	}
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]LandRequest, error) {
	defer rows.Close()
	items := make([]LandRequest, 0)
	for rows.Next() {
		var item LandRequest
		var areaID string
		if err := rows.Scan(
			&item.ID,
			&areaID,
			&item.PlotID,
			&item.Points,
			&item.Purpose,
			&item.QuotedPrice,
			&item.QuotedBy,
			&item.WorkflowStage,
			&item.SubmittedAt,
			&item.DistrictApprovedAt,
			&item.StateApprovedAt,
			&item.RejectedAt,
			&item.RejectedBy,
		); err != nil {
			return nil, fmt.Errorf("scan land request: %w", err)
		}
		item.AreaID = area.ID(areaID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate land requests: %w", err)
	}
	return items, nil
}

// AdvanceRequestToState moves a request from district_pending to
// state_pending. Returns false when the request was not at district level.
func (s *PostgresStore) AdvanceRequestToState(ctx context.Context, requestID string, when time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE land_requests
		SET workflow_stage=$2, district_approved_at=$3
		WHERE id=$1 AND workflow_stage=$4
	`, requestID, StageStatePending, when, StageDistrictPending)
	if err != nil {
		return false, fmt.Errorf("advance request: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance request rows: %w", err)
	}
	return changed > 0, nil
}

// RejectRequest terminates a request. expectedStage guards the transition:
// district may only reject district_pending, state only state_pending.
func (s *PostgresStore) RejectRequest(ctx context.Context, requestID, expectedStage, rejectedBy string, when time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE land_requests
		SET workflow_stage=$2, rejected_at=$3, rejected_by=$4
		WHERE id=$1 AND workflow_stage=$5
	`, requestID, StageRejected, when, rejectedBy, expectedStage)
	if err != nil {
		return false, fmt.Errorf("reject request: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject request rows: %w", err)
	}
	return changed > 0, nil
}

// AllocateRequest performs the accept-path transaction: conditionally mark
// the plot bought, upsert the lease, advance the request to allocated, and
// purge every competing request for the same plot. The conditional UPDATE
// on the bought flag is the optimistic lock; a concurrent winner makes the
// second caller fail with ErrPlotAlreadyAllocated and nothing committed.
// Returns the ids of the purged competitors so callers can drop them from
// the search index.
func (s *PostgresStore) AllocateRequest(ctx context.Context, cfg area.Config, request LandRequest, lease Lease) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	markAllotted := fmt.Sprintf(`
		UPDATE %s
		SET bought=TRUE, bought_by=$1, allotment_at=$2
		WHERE plot_id=$3 AND bought=FALSE
	`, cfg.PlotTable)
	result, err := tx.ExecContext(ctx, markAllotted, request.QuotedBy, lease.AllotmentDate, request.PlotID)
	if err != nil {
		return nil, fmt.Errorf("mark plot allotted: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark plot allotted rows: %w", err)
	}
	if changed == 0 {
		return nil, ErrPlotAlreadyAllocated
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO leases (id, user_id, user_email, area_id, plot_id, lease_years, allotment_date, lease_end_date, status, bid_price)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (area_id, plot_id) DO UPDATE SET
			user_id=EXCLUDED.user_id,
			user_email=EXCLUDED.user_email,
			lease_years=EXCLUDED.lease_years,
			allotment_date=EXCLUDED.allotment_date,
			lease_end_date=EXCLUDED.lease_end_date,
			status=EXCLUDED.status,
			bid_price=EXCLUDED.bid_price
	`, lease.ID, lease.UserID, lease.UserEmail, string(lease.AreaID), lease.PlotID, lease.LeaseYears, lease.AllotmentDate, lease.LeaseEndDate, lease.Status, lease.BidPrice); err != nil {
		return nil, fmt.Errorf("upsert lease: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE land_requests
		SET workflow_stage=$2, state_approved_at=$3
		WHERE id=$1
	`, request.ID, StageAllocated, lease.AllotmentDate); err != nil {
		return nil, fmt.Errorf("mark request allocated: %w", err)
	}

	// Losing bids are purged outright, not soft-deleted.
	rows, err := tx.QueryContext(ctx, `
		DELETE FROM land_requests
		WHERE area_id=$1 AND plot_id=$2 AND id<>$3
		RETURNING id
	`, string(request.AreaID), request.PlotID, request.ID)
	if err != nil {
		return nil, fmt.Errorf("purge competing requests: %w", err)
	}
	var purged []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan purged request: %w", err)
		}
		purged = append(purged, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("purge competing requests: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET plot_id=$2, area_id=$3 WHERE email=LOWER($1)
	`, request.QuotedBy, fmt.Sprintf("%d", request.PlotID), string(request.AreaID)); err != nil {
		return nil, fmt.Errorf("bind owner plot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocation: %w", err)
	}
	return purged, nil
}

// ---- leases ----

const leaseSelect = `
	SELECT id, user_id, user_email, area_id, plot_id, lease_years,
	       allotment_date, lease_end_date, status, bid_price
	FROM leases`

func (s *PostgresStore) GetLeaseByID(ctx context.Context, leaseID string) (Lease, error) {
	return scanLease(s.db.QueryRowContext(ctx, leaseSelect+` WHERE id=$1`, leaseID))
}

func (s *PostgresStore) GetLeaseByOwner(ctx context.Context, email string) (Lease, error) {
	return scanLease(s.db.QueryRowContext(ctx, leaseSelect+` WHERE user_email=LOWER($1)`, email))
}

func (s *PostgresStore) GetLeaseByPlot(ctx context.Context, plotID int) (Lease, error) {
	return scanLease(s.db.QueryRowContext(ctx, leaseSelect+` WHERE plot_id=$1 ORDER BY allotment_date DESC LIMIT 1`, plotID))
}

func scanLease(row *sql.Row) (Lease, error) {
	var item Lease
	var areaID string
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.UserEmail,
		&areaID,
		&item.PlotID,
		&item.LeaseYears,
		&item.AllotmentDate,
		&item.LeaseEndDate,
		&item.Status,
		&item.BidPrice,
	)
	if err != nil {
		return Lease{}, err
	}
	item.AreaID = area.ID(areaID)
	return item, nil
}

func (s *PostgresStore) UpdateLeaseStatus(ctx context.Context, leaseID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leases SET status=$2 WHERE id=$1`, leaseID, status)
	if err != nil {
		return fmt.Errorf("update lease status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLeasesByArea(ctx context.Context, areaID area.ID) ([]Lease, error) {
	rows, err := s.db.QueryContext(ctx, leaseSelect+` WHERE area_id=$1 ORDER BY plot_id ASC`, string(areaID))
	if err != nil {
		return nil, fmt.Errorf("list leases by area: %w", err)
	}
	defer rows.Close()

	items := make([]Lease, 0)
	for rows.Next() {
		var item Lease
		var rawArea string
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.UserEmail,
			&rawArea,
			&item.PlotID,
			&item.LeaseYears,
			&item.AllotmentDate,
			&item.LeaseEndDate,
			&item.Status,
			&item.BidPrice,
		); err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		item.AreaID = area.ID(rawArea)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leases: %w", err)
	}
	return items, nil
}

// ---- violations ----

const violationSelect = `
	SELECT id, COALESCE(user_id, ''), COALESCE(owner_email, ''), area_id, plot_id,
	       violation_status, COALESCE(report_object_id, ''), COALESCE(report_url, ''),
	       COALESCE(output_image_path, ''), COALESCE(admin_comments, ''), analyzed_at, updated_at
	FROM violations`

// UpsertViolation creates or re-flags the (area, plot) violation record.
// Re-flagging overwrites comments and report references and keeps the
// status true.
func (s *PostgresStore) UpsertViolation(ctx context.Context, item Violation) (Violation, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO violations (id, user_id, owner_email, area_id, plot_id, violation_status, report_object_id, report_url, output_image_path, admin_comments, analyzed_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF(LOWER($3), ''), $4, $5, TRUE, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, NOW())
		ON CONFLICT (area_id, plot_id) DO UPDATE SET
			user_id=EXCLUDED.user_id,
			owner_email=EXCLUDED.owner_email,
			violation_status=TRUE,
			report_object_id=COALESCE(EXCLUDED.report_object_id, violations.report_object_id),
			report_url=COALESCE(EXCLUDED.report_url, violations.report_url),
			output_image_path=COALESCE(EXCLUDED.output_image_path, violations.output_image_path),
			admin_comments=COALESCE(EXCLUDED.admin_comments, violations.admin_comments),
			analyzed_at=EXCLUDED.analyzed_at,
			updated_at=NOW()
		RETURNING id, COALESCE(user_id, ''), COALESCE(owner_email, ''), area_id, plot_id,
		          violation_status, COALESCE(report_object_id, ''), COALESCE(report_url, ''),
		          COALESCE(output_image_path, ''), COALESCE(admin_comments, ''), analyzed_at, updated_at
	`, item.ID, item.UserID, item.OwnerEmail, string(item.AreaID), item.PlotID, item.ReportObjectID, item.ReportURL, item.OutputImagePath, item.AdminComments, item.AnalyzedAt)
	saved, err := scanViolationRow(row)
	if err != nil {
		return Violation{}, fmt.Errorf("upsert violation: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) GetViolation(ctx context.Context, violationID string) (Violation, error) {
	return scanViolationRow(s.db.QueryRowContext(ctx, violationSelect+` WHERE id=$1`, violationID))
}

// GetFlaggedViolationByPlot returns the active violation for a plot/area
// pair, if any.
func (s *PostgresStore) GetFlaggedViolationByPlot(ctx context.Context, areaID area.ID, plotID string) (Violation, error) {
	return scanViolationRow(s.db.QueryRowContext(ctx,
		violationSelect+` WHERE area_id=$1 AND plot_id=$2 AND violation_status=TRUE`, string(areaID), plotID))
}

// GetFlaggedViolationByOwner is the email-snapshot fallback used when the
// citizen profile carries no plot binding.
func (s *PostgresStore) GetFlaggedViolationByOwner(ctx context.Context, email string) (Violation, error) {
	return scanViolationRow(s.db.QueryRowContext(ctx,
		violationSelect+` WHERE owner_email=LOWER($1) AND violation_status=TRUE ORDER BY analyzed_at DESC LIMIT 1`, email))
}

func (s *PostgresStore) ListViolationsByArea(ctx context.Context, areaID area.ID) ([]Violation, error) {
	rows, err := s.db.QueryContext(ctx, violationSelect+` WHERE area_id=$1 ORDER BY plot_id ASC`, string(areaID))
	if err != nil {
		return nil, fmt.Errorf("list violations by area: %w", err)
	}
	defer rows.Close()

	items := make([]Violation, 0)
	for rows.Next() {
		item, err := scanViolationRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return items, nil
}

// ClearViolation drops the flag after a successful appeal and appends the
// audit note to the admin comments.
func (s *PostgresStore) ClearViolation(ctx context.Context, violationID, auditNote string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE violations
		SET violation_status=FALSE,
		    admin_comments=TRIM(COALESCE(admin_comments, '') || ' ' || $2),
		    updated_at=NOW()
		WHERE id=$1
	`, violationID, auditNote)
	if err != nil {
		return fmt.Errorf("clear violation: %w", err)
	}
	return nil
}

func scanViolationRow(row *sql.Row) (Violation, error) {
	var item Violation
	var areaID string
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.OwnerEmail,
		&areaID,
		&item.PlotID,
		&item.ViolationStatus,
		&item.ReportObjectID,
		&item.ReportURL,
		&item.OutputImagePath,
		&item.AdminComments,
		&item.AnalyzedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Violation{}, err
	}
	item.AreaID = area.ID(areaID)
	return item, nil
}

func scanViolationRows(rows *sql.Rows) (Violation, error) {
	var item Violation
	var areaID string
	err := rows.Scan(
		&item.ID,
		&item.UserID,
		&item.OwnerEmail,
		&areaID,
		&item.PlotID,
		&item.ViolationStatus,
		&item.ReportObjectID,
		&item.ReportURL,
		&item.OutputImagePath,
		&item.AdminComments,
		&item.AnalyzedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Violation{}, fmt.Errorf("scan violation: %w", err)
	}
	item.AreaID = area.ID(areaID)
	return item, nil
}

// ---- appeals ----

const appealSelect = `
	SELECT id, user_id, user_email, violation_id, user_message, stage,
	       COALESCE(district_remark, ''), COALESCE(district_decision, ''),
	       COALESCE(state_remark, ''), created_at, updated_at
	FROM appeals`

func (s *PostgresStore) InsertAppeal(ctx context.Context, item Appeal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appeals (id, user_id, user_email, violation_id, user_message, stage)
		VALUES ($1, $2, LOWER($3), $4, $5, $6)
	`, item.ID, item.UserID, item.UserEmail, item.ViolationID, item.UserMessage, item.Stage)
	if err != nil {
		return fmt.Errorf("insert appeal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAppeal(ctx context.Context, appealID string) (Appeal, error) {
	return scanAppealRow(s.db.QueryRowContext(ctx, appealSelect+` WHERE id=$1`, appealID))
}

// HasAppealAtStage reports whether the citizen already has an appeal at the
// given stage for the violation. Gates duplicate district_pending appeals
// and detects prior district rejections for the skip-district path.
func (s *PostgresStore) HasAppealAtStage(ctx context.Context, violationID, userID, stage string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM appeals WHERE violation_id=$1 AND user_id=$2 AND stage=$3)
	`, violationID, userID, stage).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appeal stage: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListAppealsByUser(ctx context.Context, userID string) ([]Appeal, error) {
	rows, err := s.db.QueryContext(ctx, appealSelect+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list appeals by user: %w", err)
	}
	return collectAppeals(rows)
}

func (s *PostgresStore) ListAppealsByStage(ctx context.Context, stage string) ([]Appeal, error) {
	rows, err := s.db.QueryContext(ctx, appealSelect+` WHERE stage=$1 ORDER BY created_at ASC`, stage)
	if err != nil {
		return nil, fmt.Errorf("list appeals by stage: %w", err)
	}
	return collectAppeals(rows)
}

func collectAppeals(rows *sql.Rows) ([]Appeal, error) {
	defer rows.Close()
	items := make([]Appeal, 0)
	for rows.Next() {
		var item Appeal
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.UserEmail,
			&item.ViolationID,
			&item.UserMessage,
			&item.Stage,
			&item.DistrictRemark,
			&item.DistrictDecision,
			&item.StateRemark,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan appeal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appeals: %w", err)
	}
	return items, nil
}

func scanAppealRow(row *sql.Row) (Appeal, error) {
	var item Appeal
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.UserEmail,
		&item.ViolationID,
		&item.UserMessage,
		&item.Stage,
		&item.DistrictRemark,
		&item.DistrictDecision,
		&item.StateRemark,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Appeal{}, err
	}
	return item, nil
}

// RecordDistrictAppealDecision applies a district decision. Returns false
// when the appeal was not district_pending.
func (s *PostgresStore) RecordDistrictAppealDecision(ctx context.Context, appealID, nextStage, remark, decision string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE appeals
		SET stage=$2, district_remark=NULLIF($3, ''), district_decision=$4, updated_at=NOW()
		WHERE id=$1 AND stage=$5
	`, appealID, nextStage, remark, decision, AppealDistrictPending)
	if err != nil {
		return false, fmt.Errorf("district appeal decision: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("district appeal decision rows: %w", err)
	}
	return changed > 0, nil
}

// RecordStateAppealDecision applies a state decision. Returns false when
// the appeal was not state_pending.
func (s *PostgresStore) RecordStateAppealDecision(ctx context.Context, appealID, nextStage, remark string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE appeals
		SET stage=$2, state_remark=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1 AND stage=$4
	`, appealID, nextStage, remark, AppealStatePending)
	if err != nil {
		return false, fmt.Errorf("state appeal decision: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("state appeal decision rows: %w", err)
	}
	return changed > 0, nil
}

// ---- site applications (free-location proposals outside the plot
// registry) ----

func (s *PostgresStore) InsertSiteApplication(ctx context.Context, item SiteApplication) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_applications (id, user_id, user_name, user_email, contact_number,
			latitude, longitude, address_description, quoted_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, LOWER($4), $5, $6, $7, $8, $9, $10, $11, $11)
	`, item.ID, item.UserID, item.UserName, item.UserEmail, item.ContactNumber,
		item.Latitude, item.Longitude, item.AddressDescription, item.QuotedPrice, item.Status, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert site application: %w", err)
	}
	return nil
}

const siteApplicationSelect = `
	SELECT id, user_id, user_name, user_email, contact_number,
	       latitude, longitude, COALESCE(address_description, ''),
	       quoted_price, status, created_at, updated_at
	FROM site_applications`

func (s *PostgresStore) GetSiteApplication(ctx context.Context, applicationID string) (SiteApplication, error) {
	return s.scanSiteApplication(s.db.QueryRowContext(ctx, siteApplicationSelect+` WHERE id=$1`, applicationID))
}

func (s *PostgresStore) ListSiteApplicationsByUser(ctx context.Context, userID string) ([]SiteApplication, error) {
	return s.querySiteApplications(ctx, siteApplicationSelect+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresStore) ListSiteApplications(ctx context.Context) ([]SiteApplication, error) {
	return s.querySiteApplications(ctx, siteApplicationSelect+` ORDER BY created_at DESC`)
}

// DecideSiteApplication settles a pending application. Returns false when
// the application was already decided.
func (s *PostgresStore) DecideSiteApplication(ctx context.Context, applicationID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE site_applications
		SET status=$2, updated_at=NOW()
		WHERE id=$1 AND status=$3
	`, applicationID, status, ApplicationPending)
	if err != nil {
		return false, fmt.Errorf("decide site application: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decide site application rows: %w", err)
	}
	return changed > 0, nil
}

func (s *PostgresStore) querySiteApplications(ctx context.Context, query string, args ...any) ([]SiteApplication, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list site applications: %w", err)
	}
	defer rows.Close()

	var items []SiteApplication
	for rows.Next() {
		var item SiteApplication
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.UserName,
			&item.UserEmail,
			&item.ContactNumber,
			&item.Latitude,
			&item.Longitude,
			&item.AddressDescription,
			&item.QuotedPrice,
			&item.Status,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan site application: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) scanSiteApplication(row *sql.Row) (SiteApplication, error) {
	var item SiteApplication
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.UserName,
		&item.UserEmail,
		&item.ContactNumber,
		&item.Latitude,
		&item.Longitude,
		&item.AddressDescription,
		&item.QuotedPrice,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return SiteApplication{}, err
	}
	return item, nil
}
