package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sitework/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const userColumns = `id,email,password_hash,role,active,created_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var active int
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Active = active != 0
	return u, err
}

func (r Repo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.Role, boolInt(u.Active), u.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("user with email %s already exists", u.Email)
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var active int
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Active = active != 0
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetUserRole(ctx context.Context, id, role string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET role=? WHERE id=?`, role, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignProject grants a user access to a project document. Re-granting is
// a no-op.
func (r Repo) AssignProject(ctx context.Context, userID, projectID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO user_projects(user_id,project_id) VALUES (?,?)`,
		userID, projectID)
	return err
}

func (r Repo) RevokeProject(ctx context.Context, userID, projectID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM user_projects WHERE user_id=? AND project_id=?`, userID, projectID)
	return err
}

func (r Repo) ListUserProjects(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id FROM user_projects WHERE user_id=? ORDER BY project_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
