package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/orivon/pagerelay/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	query := `
		SELECT id, name, owner_id, page_id, created_at
		FROM tenants
		WHERE id = $1`

	tenant := &models.Tenant{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.OwnerID, &tenant.PageID, &tenant.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying tenant: %w", err)
	}

	return tenant, nil
}

func (s *PostgresStorage) GetTenantByPageID(ctx context.Context, pageID string) (*models.Tenant, error) {
	query := `
		SELECT id, name, owner_id, page_id, created_at
		FROM tenants
		WHERE page_id = $1`

	tenant := &models.Tenant{}
	err := s.db.QueryRowContext(ctx, query, pageID).Scan(
		&tenant.ID, &tenant.Name, &tenant.OwnerID, &tenant.PageID, &tenant.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying tenant by page id: %w", err)
	}

	return tenant, nil
}

func (s *PostgresStorage) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, owner_id, page_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		tenant.ID, tenant.Name, tenant.OwnerID, tenant.PageID).Scan(&tenant.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating tenant: %w", err)
	}

	return nil
}

func (s *PostgresStorage) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	query := `
		SELECT id, name, owner_id, page_id, created_at
		FROM tenants
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant := &models.Tenant{}
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.OwnerID, &tenant.PageID, &tenant.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

func (s *PostgresStorage) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	query := `
		SELECT id, user_token, token_refreshed_at
		FROM owners
		WHERE id = $1`

	owner := &models.Owner{}
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(
		&owner.ID, &owner.UserToken, &owner.TokenRefreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying owner: %w", err)
	}

	return owner, nil
}

func (s *PostgresStorage) PutOwnerToken(ctx context.Context, ownerID, token string, refreshedAt time.Time) error {
	query := `
		INSERT INTO owners (id, user_token, token_refreshed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET user_token = EXCLUDED.user_token,
		    token_refreshed_at = EXCLUDED.token_refreshed_at`

	if _, err := s.db.ExecContext(ctx, query, ownerID, token, refreshedAt); err != nil {
		return fmt.Errorf("error saving owner token: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetChannelCredential(ctx context.Context, tenantID, channelID string) (*models.ChannelCredential, error) {
	query := `
		SELECT tenant_id, channel_id, token, refreshed_at, derived_from
		FROM channel_credentials
		WHERE tenant_id = $1 AND channel_id = $2`

	cred := &models.ChannelCredential{}
	err := s.db.QueryRowContext(ctx, query, tenantID, channelID).Scan(
		&cred.TenantID, &cred.ChannelID, &cred.Token, &cred.RefreshedAt, &cred.DerivedFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying channel credential: %w", err)
	}

	return cred, nil
}

func (s *PostgresStorage) PutChannelCredential(ctx context.Context, cred *models.ChannelCredential) error {
	query := `
		INSERT INTO channel_credentials (tenant_id, channel_id, token, refreshed_at, derived_from)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, channel_id) DO UPDATE
		SET token = EXCLUDED.token,
		    refreshed_at = EXCLUDED.refreshed_at,
		    derived_from = EXCLUDED.derived_from`

	_, err := s.db.ExecContext(ctx, query,
		cred.TenantID, cred.ChannelID, cred.Token, cred.RefreshedAt, cred.DerivedFrom)
	if err != nil {
		return fmt.Errorf("error saving channel credential: %w", err)
	}

	return nil
}

func (s *PostgresStorage) ListOwners(ctx context.Context) ([]*models.Owner, error) {
	query := `
		SELECT id, user_token, token_refreshed_at
		FROM owners`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying owners: %w", err)
	}
	defer rows.Close()

	var owners []*models.Owner
	for rows.Next() {
		owner := &models.Owner{}
		if err := rows.Scan(&owner.ID, &owner.UserToken, &owner.TokenRefreshedAt); err != nil {
			return nil, fmt.Errorf("error scanning owner: %w", err)
		}
		owners = append(owners, owner)
	}

	return owners, rows.Err()
}

func (s *PostgresStorage) ListChannelCredentials(ctx context.Context) ([]*models.ChannelCredential, error) {
	query := `
		SELECT tenant_id, channel_id, token, refreshed_at, derived_from
		FROM channel_credentials`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying channel credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.ChannelCredential
	for rows.Next() {
		cred := &models.ChannelCredential{}
		if err := rows.Scan(&cred.TenantID, &cred.ChannelID, &cred.Token, &cred.RefreshedAt, &cred.DerivedFrom); err != nil {
			return nil, fmt.Errorf("error scanning channel credential: %w", err)
		}
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, msg *models.LoggedMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO messages (id, tenant_id, provider_message_id, sender_id, recipient_id,
			direction, classification, text, attachment_type, ts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, provider_message_id, direction) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.TenantID, msg.ProviderMessageID, msg.SenderID, msg.RecipientID,
		msg.Direction, msg.Classification, msg.Text, msg.AttachmentType, msg.Timestamp,
		msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}

	return nil
}

func (s *PostgresStorage) MessageExists(ctx context.Context, tenantID, providerMessageID string, direction models.Direction) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE tenant_id = $1 AND provider_message_id = $2 AND direction = $3
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, tenantID, providerMessageID, direction).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking message existence: %w", err)
	}

	return exists, nil
}

func (s *PostgresStorage) DeleteMessage(ctx context.Context, tenantID, providerMessageID string) (bool, error) {
	query := `
		DELETE FROM messages
		WHERE tenant_id = $1 AND provider_message_id = $2`

	result, err := s.db.ExecContext(ctx, query, tenantID, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("error deleting message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}

	return affected > 0, nil
}

func (s *PostgresStorage) GetParticipant(ctx context.Context, tenantID, platformUserID string) (*models.Participant, error) {
	query := `
		SELECT platform_user_id, tenant_id, role, name, phone, email, location, updated_at
		FROM participants
		WHERE tenant_id = $1 AND platform_user_id = $2`

	p := &models.Participant{}
	err := s.db.QueryRowContext(ctx, query, tenantID, platformUserID).Scan(
		&p.PlatformUserID, &p.TenantID, &p.Role, &p.Name, &p.Phone, &p.Email, &p.Location, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying participant: %w", err)
	}

	return p, nil
}

func (s *PostgresStorage) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (platform_user_id, tenant_id, role, name, phone, email, location, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (platform_user_id, tenant_id) DO UPDATE
		SET role = EXCLUDED.role,
		    name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE participants.name END,
		    phone = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE participants.phone END,
		    email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE participants.email END,
		    location = CASE WHEN EXCLUDED.location <> '' THEN EXCLUDED.location ELSE participants.location END,
		    updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.PlatformUserID, p.TenantID, p.Role, p.Name, p.Phone, p.Email, p.Location, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting participant: %w", err)
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
