package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cloudpulse/internal/costsource"
	"cloudpulse/internal/secrets"
)

const (
	listActiveAccountsSQL = `SELECT
        id,
        user_id,
        project_id,
        provider,
        account_label,
        external_account_id,
        is_active,
        created_at
    FROM cloud_accounts
    WHERE is_active
    ORDER BY created_at;`

	getAccountSQL = `SELECT
        id,
        user_id,
        project_id,
        provider,
        account_label,
        external_account_id,
        role_arn,
        access_key_encrypted,
        secret_key_encrypted,
        is_active,
        created_at
    FROM cloud_accounts
    WHERE id = $1;`

	getProjectSQL = `SELECT id, user_id, name FROM projects WHERE id = $1;`

	getProjectOwnerSQL = `SELECT
        p.id,
        p.user_id,
        p.name,
        u.name,
        u.email
    FROM projects p
    JOIN users u ON u.id = p.user_id
    WHERE p.id = $1;`
)

// ErrNoEncryptionKey indicates credential decryption was requested without a
// configured key.
var ErrNoEncryptionKey = errors.New("storage: encryption key not configured")

// ListActiveAccounts returns every account enabled for scheduled ingestion.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]CloudAccount, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAccountsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active accounts: %w", queryErr)
	}
	defer rows.Close()

	accounts := make([]CloudAccount, 0)
	for rows.Next() {
		var acct CloudAccount
		if err := rows.Scan(
			&acct.ID,
			&acct.UserID,
			&acct.ProjectID,
			&acct.Provider,
			&acct.AccountLabel,
			&acct.ExternalAccountID,
			&acct.IsActive,
			&acct.CreatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return accounts, nil
}

// GetCloudAccount loads one account including encrypted credential columns.
func (s *Store) GetCloudAccount(ctx context.Context, accountID string) (CloudAccount, error) {
	pool, err := s.getPool()
	if err != nil {
		return CloudAccount{}, err
	}

	var acct CloudAccount
	var roleArn, accessKey, secretKey sql.NullString
	scanErr := pool.QueryRow(ctx, getAccountSQL, accountID).Scan(
		&acct.ID,
		&acct.UserID,
		&acct.ProjectID,
		&acct.Provider,
		&acct.AccountLabel,
		&acct.ExternalAccountID,
		&roleArn,
		&accessKey,
		&secretKey,
		&acct.IsActive,
		&acct.CreatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return CloudAccount{}, fmt.Errorf("cloud account %s: %w", accountID, ErrNotFound)
		}
		return CloudAccount{}, fmt.Errorf("get cloud account: %w", scanErr)
	}

	acct.RoleArn = nullableString(roleArn)
	acct.AccessKeyEncrypted = nullableString(accessKey)
	acct.SecretKeyEncrypted = nullableString(secretKey)
	return acct, nil
}

// GetDecryptedCredentials resolves an account's provider credentials for one
// fetch. Plaintext values are returned to the caller only, never stored.
func (s *Store) GetDecryptedCredentials(ctx context.Context, accountID string) (costsource.Credentials, error) {
	acct, err := s.GetCloudAccount(ctx, accountID)
	if err != nil {
		return costsource.Credentials{}, err
	}

	creds := costsource.Credentials{
		Provider:          acct.Provider,
		RoleArn:           acct.RoleArn,
		ExternalAccountID: acct.ExternalAccountID,
	}

	if acct.AccessKeyEncrypted != nil {
		plain, err := s.decrypt(*acct.AccessKeyEncrypted)
		if err != nil {
			return costsource.Credentials{}, fmt.Errorf("decrypt access key: %w", err)
		}
		creds.AccessKey = &plain
	}
	if acct.SecretKeyEncrypted != nil {
		plain, err := s.decrypt(*acct.SecretKeyEncrypted)
		if err != nil {
			return costsource.Credentials{}, fmt.Errorf("decrypt secret key: %w", err)
		}
		creds.SecretKey = &plain
	}

	return creds, nil
}

// GetProject loads one project.
func (s *Store) GetProject(ctx context.Context, projectID string) (Project, error) {
	pool, err := s.getPool()
	if err != nil {
		return Project{}, err
	}

	var project Project
	scanErr := pool.QueryRow(ctx, getProjectSQL, projectID).Scan(&project.ID, &project.UserID, &project.Name)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return Project{}, fmt.Errorf("get project: %w", scanErr)
	}
	return project, nil
}

// GetProjectOwner loads a project together with its owning user's contact
// details.
func (s *Store) GetProjectOwner(ctx context.Context, projectID string) (ProjectOwner, error) {
	pool, err := s.getPool()
	if err != nil {
		return ProjectOwner{}, err
	}

	var owner ProjectOwner
	var email sql.NullString
	scanErr := pool.QueryRow(ctx, getProjectOwnerSQL, projectID).Scan(
		&owner.Project.ID,
		&owner.Project.UserID,
		&owner.Project.Name,
		&owner.UserName,
		&email,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ProjectOwner{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return ProjectOwner{}, fmt.Errorf("get project owner: %w", scanErr)
	}

	owner.UserID = owner.Project.UserID
	owner.UserEmail = nullableString(email)
	return owner, nil
}

func (s *Store) decrypt(encrypted string) (string, error) {
	if len(s.encKey) == 0 {
		return "", ErrNoEncryptionKey
	}
	return secrets.Decrypt(encrypted, s.encKey)
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	value := v.String
	return &value
}
