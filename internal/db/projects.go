package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/errs"
)

// proposed_amount is read as text so the decimal survives without float rounding
const projectColumns = `
	id, title, description, proposed_amount::text,
	required_approvals, current_approvals, status,
	created_by_id, assigned_to_id,
	created_at, updated_at, deleted_at, reminder_sent_at
`

func scanProject(row pgx.Row) (*Project, error) {
	var (
		p      Project
		amount string
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&amount,
		&p.RequiredApprovals,
		&p.CurrentApprovals,
		&status,
		&p.CreatedByID,
		&p.AssignedToID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
		&p.ReminderSentAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = ProjectStatus(status)
	p.ProposedAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse proposed_amount %q: %w", amount, err)
	}
	return &p, nil
}

func collectProjects(rows pgx.Rows) ([]*Project, error) {
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return projects, nil
}

// CreateProject inserts a new project
func (r *Repository) CreateProject(ctx context.Context, p *Project) error {
	query := `
		INSERT INTO projects (
			id, title, description, proposed_amount,
			required_approvals, current_approvals, status, created_by_id
		) VALUES (
			$1, $2, $3, $4::numeric, $5, $6, $7, $8
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.ProposedAmount.String(),
		p.RequiredApprovals,
		p.CurrentApprovals,
		string(p.Status),
		p.CreatedByID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return errs.NotFound("creator %s not found", p.CreatedByID)
		}
		r.logger.Error("failed to create project",
			zap.Error(err),
			zap.String("project_id", p.ID.String()),
		)
		return fmt.Errorf("insert project: %w", err)
	}

	return nil
}

// GetProject retrieves a project by ID, soft-deleted or not
func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	p, err := scanProject(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects matching the filter, newest first
func (r *Repository) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.CreatedByID != nil {
		add("created_by_id = $%d", *filter.CreatedByID)
	}
	if filter.AssignedToID != nil {
		add("assigned_to_id = $%d", *filter.AssignedToID)
	}
	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}

	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	return collectProjects(rows)
}

// AcceptProject records an acceptance and bumps the approval counter in one
// transaction. The project row is locked first, so the PENDING check, the
// insert, the increment and the threshold transition are serialised against
// every other acceptance of the same project.
func (r *Repository) AcceptProject(ctx context.Context, projectID, userID uuid.UUID, notes *string) (*AcceptOutcome, error) {
	var outcome AcceptOutcome

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		var (
			status    string
			deletedAt *time.Time
		)
		err := tx.QueryRow(ctx,
			`SELECT status, deleted_at FROM projects WHERE id = $1 FOR UPDATE`,
			projectID,
		).Scan(&status, &deletedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.NotFound("project not found")
		}
		if err != nil {
			return fmt.Errorf("lock project: %w", err)
		}

		if deletedAt != nil || ProjectStatus(status) == ProjectDeleted {
			return errs.Deleted("project has been deleted")
		}
		if ProjectStatus(status) != ProjectPending {
			return errs.Validation("project is no longer accepting approvals")
		}

		acceptance := &Acceptance{
			ID:        uuid.New(),
			ProjectID: projectID,
			UserID:    userID,
			Notes:     notes,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO project_acceptances (id, project_id, user_id, notes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project_id, user_id) DO NOTHING
			RETURNING accepted_at
		`, acceptance.ID, projectID, userID, notes).Scan(&acceptance.AcceptedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.Validation("you have already accepted this project")
		}
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return errs.NotFound("user %s not found", userID)
			}
			return fmt.Errorf("insert acceptance: %w", err)
		}

		project, err := scanProject(tx.QueryRow(ctx, `
			UPDATE projects
			SET current_approvals = current_approvals + 1,
			    status = CASE
			        WHEN current_approvals + 1 >= required_approvals THEN 'APPROVED'
			        ELSE status
			    END,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+projectColumns,
			projectID,
		))
		if err != nil {
			return fmt.Errorf("increment approvals: %w", err)
		}

		outcome = AcceptOutcome{
			Acceptance:   acceptance,
			Project:      project,
			JustApproved: project.Status == ProjectApproved,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("project accepted",
		zap.String("project_id", projectID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("current_approvals", outcome.Project.CurrentApprovals),
		zap.Bool("just_approved", outcome.JustApproved),
	)

	return &outcome, nil
}

// UpdateProject applies a patch to a non-deleted project
func (r *Repository) UpdateProject(ctx context.Context, id uuid.UUID, patch ProjectPatch) (*Project, error) {
	var amount *string
	if patch.ProposedAmount != nil {
		s := patch.ProposedAmount.String()
		amount = &s
	}

	p, err := scanProject(r.db.Pool().QueryRow(ctx, `
		UPDATE projects
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    proposed_amount = COALESCE($4::numeric, proposed_amount),
		    required_approvals = COALESCE($5, required_approvals),
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+projectColumns,
		id, patch.Title, patch.Description, amount, patch.RequiredApprovals,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Validation("cannot update deleted project")
	}
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// AssignProject sets the assignee and moves the project to ASSIGNED
func (r *Repository) AssignProject(ctx context.Context, id, assigneeID uuid.UUID) (*Project, error) {
	p, err := scanProject(r.db.Pool().QueryRow(ctx, `
		UPDATE projects
		SET assigned_to_id = $2, status = 'ASSIGNED', updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+projectColumns,
		id, assigneeID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Validation("cannot assign deleted project")
	}
	if err != nil {
		return nil, fmt.Errorf("assign project: %w", err)
	}
	return p, nil
}

// SoftDeleteProject marks a project DELETED; the row is never removed
func (r *Repository) SoftDeleteProject(ctx context.Context, id uuid.UUID, at time.Time) (*Project, error) {
	p, err := scanProject(r.db.Pool().QueryRow(ctx, `
		UPDATE projects
		SET status = 'DELETED', deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+projectColumns,
		id, at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Validation("project is already deleted")
	}
	if err != nil {
		return nil, fmt.Errorf("delete project: %w", err)
	}
	return p, nil
}

// ListAcceptances returns a project's acceptances, newest first
func (r *Repository) ListAcceptances(ctx context.Context, projectID uuid.UUID) ([]*Acceptance, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, project_id, user_id, notes, accepted_at
		FROM project_acceptances
		WHERE project_id = $1
		ORDER BY accepted_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query acceptances: %w", err)
	}
	defer rows.Close()

	var acceptances []*Acceptance
	for rows.Next() {
		var a Acceptance
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.UserID, &a.Notes, &a.AcceptedAt); err != nil {
			return nil, fmt.Errorf("scan acceptance: %w", err)
		}
		acceptances = append(acceptances, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return acceptances, nil
}

// ListAcceptanceUserIDs returns the users who accepted a project
func (r *Repository) ListAcceptanceUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT user_id FROM project_acceptances WHERE project_id = $1`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query acceptance users: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect acceptance users: %w", err)
	}
	return ids, nil
}

// PendingProjectsForUser returns PENDING projects the user has not accepted
func (r *Repository) PendingProjectsForUser(ctx context.Context, userID uuid.UUID) ([]*Project, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.status = 'PENDING'
		  AND p.deleted_at IS NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM project_acceptances a
		      WHERE a.project_id = p.id AND a.user_id = $1
		  )
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query pending projects: %w", err)
	}
	return collectProjects(rows)
}

// CountProjects returns per-status totals
func (r *Repository) CountProjects(ctx context.Context) (*ProjectCounts, error) {
	var c ProjectCounts
	err := r.db.Pool().QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE deleted_at IS NULL),
			COUNT(*) FILTER (WHERE status = 'PENDING' AND deleted_at IS NULL),
			COUNT(*) FILTER (WHERE status = 'APPROVED' AND deleted_at IS NULL),
			COUNT(*) FILTER (WHERE status = 'ASSIGNED' AND deleted_at IS NULL),
			COUNT(*) FILTER (WHERE status = 'DELETED')
		FROM projects
	`).Scan(&c.Total, &c.Pending, &c.Approved, &c.Assigned, &c.Deleted)
	if err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}
	return &c, nil
}

const needsReminder = `
	status = 'PENDING'
	AND deleted_at IS NULL
	AND created_at < $1
	AND (reminder_sent_at IS NULL OR reminder_sent_at < $1)
`

// ListProjectsNeedingReminder returns stale PENDING projects, oldest first
func (r *Repository) ListProjectsNeedingReminder(ctx context.Context, cutoff time.Time) ([]*Project, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE `+needsReminder+` ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query projects needing reminder: %w", err)
	}
	return collectProjects(rows)
}

// CountPendingProjects counts non-deleted PENDING projects
func (r *Repository) CountPendingProjects(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE status = 'PENDING' AND deleted_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending projects: %w", err)
	}
	return n, nil
}

// CountProjectsNeedingReminder counts what ListProjectsNeedingReminder returns
func (r *Repository) CountProjectsNeedingReminder(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE `+needsReminder, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count projects needing reminder: %w", err)
	}
	return n, nil
}

// CountRemindedSince counts PENDING projects reminded at or after since
func (r *Repository) CountRemindedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE status = 'PENDING' AND reminder_sent_at >= $1`,
		since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reminded projects: %w", err)
	}
	return n, nil
}

// MarkReminderSent stamps the last-reminder timestamp
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE projects SET reminder_sent_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errs.NotFound("project not found")
	}
	return nil
}
