package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mudamail/internal/domain"
	"mudamail/internal/store"
	"mudamail/internal/util"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func queueTable(q domain.QueueType) string {
	if q == domain.QueueCustomers {
		return "fila_emails_clientes"
	}
	return "fila_emails_empresas"
}

func (s *Store) GetEmailConfig(ctx context.Context) (store.EmailConfig, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT COALESCE(provedor,''), COALESCE(api_key,''), COALESCE(server_id,''),
		       COALESCE(email_remetente,''), COALESCE(nome_remetente,''), COALESCE(responder_para,''), ativo
		FROM email_config ORDER BY criado_em DESC LIMIT 1
	`)
	var c store.EmailConfig
	err := row.Scan(&c.Provider, &c.APIKey, &c.ServerID, &c.FromEmail, &c.FromName, &c.ReplyTo, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.EmailConfig{}, false, nil
		}
		return store.EmailConfig{}, false, err
	}
	return c, true, nil
}

// SelectEligible returns queue rows that are still in play: freshly queued,
// or errored with attempts left. Oldest first. Terminal rows (sent, or
// error with attempts exhausted) never come back; neither do rows for
// companies opted out of automatic campaigns.
func (s *Store) SelectEligible(ctx context.Context, q domain.QueueType) ([]store.QueueItem, error) {
	if q == domain.QueueCustomers {
		return s.selectCustomers(ctx)
	}
	return s.selectCompanies(ctx)
}

func (s *Store) selectCompanies(ctx context.Context) ([]store.QueueItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT f.id, f.orcamento_id, f.empresa_id, f.status, f.tentativas, COALESCE(f.ultimo_erro,''), f.criado_em,
		       o.id, COALESCE(o.nome,''), COALESCE(o.email,''), COALESCE(o.telefone,''),
		       COALESCE(o.cidade_origem,''), COALESCE(o.uf_origem,''), COALESCE(o.cidade_destino,''), COALESCE(o.uf_destino,''),
		       COALESCE(o.tipo_imovel,''), o.data_mudanca, o.distancia_km, o.preco_min_centavos, o.preco_max_centavos, o.criado_em,
		       e.id, COALESCE(e.nome,''), COALESCE(e.email,''), COALESCE(e.telefone,''),
		       COALESCE(e.cidade,''), COALESCE(e.uf,''), e.ativo, e.excluida_campanhas
		FROM fila_emails_empresas f
		JOIN orcamentos o ON o.id = f.orcamento_id
		JOIN empresas e ON e.id = f.empresa_id
		WHERE (f.status = 'queued' OR (f.status = 'error' AND f.tentativas < $1))
		  AND e.excluida_campanhas = false
		ORDER BY f.criado_em
	`, domain.MaxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.QueueItem
	for rows.Next() {
		var it store.QueueItem
		if err := rows.Scan(
			&it.ID, &it.QuoteID, &it.RecipientID, &it.Status, &it.Attempts, &it.LastError, &it.CreatedAt,
			&it.Quote.ID, &it.Quote.Name, &it.Quote.Email, &it.Quote.Phone,
			&it.Quote.OriginCity, &it.Quote.OriginState, &it.Quote.DestCity, &it.Quote.DestState,
			&it.Quote.PropertyType, &it.Quote.MovingDate, &it.Quote.DistanceKm,
			&it.Quote.PriceMinCents, &it.Quote.PriceMaxCents, &it.Quote.CreatedAt,
			&it.Company.ID, &it.Company.Name, &it.Company.Email, &it.Company.Phone,
			&it.Company.City, &it.Company.State, &it.Company.Active, &it.Company.ExcludedFromCampaigns,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) selectCustomers(ctx context.Context) ([]store.QueueItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT f.id, f.orcamento_id, f.status, f.tentativas, COALESCE(f.ultimo_erro,''), f.criado_em,
		       o.id, COALESCE(o.nome,''), COALESCE(o.email,''), COALESCE(o.telefone,''),
		       COALESCE(o.cidade_origem,''), COALESCE(o.uf_origem,''), COALESCE(o.cidade_destino,''), COALESCE(o.uf_destino,''),
		       COALESCE(o.tipo_imovel,''), o.data_mudanca, o.distancia_km, o.preco_min_centavos, o.preco_max_centavos, o.criado_em
		FROM fila_emails_clientes f
		JOIN orcamentos o ON o.id = f.orcamento_id
		WHERE f.status = 'queued' OR (f.status = 'error' AND f.tentativas < $1)
		ORDER BY f.criado_em
	`, domain.MaxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.QueueItem
	for rows.Next() {
		var it store.QueueItem
		if err := rows.Scan(
			&it.ID, &it.QuoteID, &it.Status, &it.Attempts, &it.LastError, &it.CreatedAt,
			&it.Quote.ID, &it.Quote.Name, &it.Quote.Email, &it.Quote.Phone,
			&it.Quote.OriginCity, &it.Quote.OriginState, &it.Quote.DestCity, &it.Quote.DestState,
			&it.Quote.PropertyType, &it.Quote.MovingDate, &it.Quote.DistanceKm,
			&it.Quote.PriceMinCents, &it.Quote.PriceMaxCents, &it.Quote.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ClaimQueueItem moves a row to sending and charges the attempt in one
// conditional update. A row already claimed by an overlapping run (or
// finished in the meantime) affects zero rows and the caller skips it.
func (s *Store) ClaimQueueItem(ctx context.Context, q domain.QueueType, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = 'sending', tentativas = tentativas + 1, ultima_tentativa_em = $2
		WHERE id = $1 AND (status = 'queued' OR (status = 'error' AND tentativas < $3))
	`, queueTable(q)), id, now, domain.MaxAttempts)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) MarkQueueSent(ctx context.Context, q domain.QueueType, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'sent', ultimo_erro = NULL, entregue_em = $2 WHERE id = $1
	`, queueTable(q)), id, now)
	return err
}

func (s *Store) MarkQueueError(ctx context.Context, q domain.QueueType, id, lastError string, now time.Time) error {
	_, err := s.DB.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'error', ultimo_erro = $2, ultima_tentativa_em = $3 WHERE id = $1
	`, queueTable(q)), id, lastError, now)
	return err
}

func (s *Store) InsertQueueItem(ctx context.Context, q domain.QueueType, in store.QueueInsert) error {
	if q == domain.QueueCustomers {
		_, err := s.DB.Exec(ctx, `
			INSERT INTO fila_emails_clientes (id, orcamento_id, status, tentativas, criado_em)
			VALUES ($1, $2, $3, 0, $4)
		`, in.ID, in.QuoteID, in.Status, in.Now)
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO fila_emails_empresas (id, orcamento_id, empresa_id, status, tentativas, criado_em)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, in.ID, in.QuoteID, in.RecipientID, in.Status, in.Now)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, key string) (store.Template, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT chave, assunto, corpo_html, ativo FROM email_templates WHERE chave = $1
	`, key)
	var t store.Template
	err := row.Scan(&t.Key, &t.Subject, &t.BodyHTML, &t.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Template{}, false, nil
		}
		return store.Template{}, false, err
	}
	return t, true, nil
}

// FindTrackingCode returns the stable code of the existing (non-manual)
// tracking row for a logical delivery, so retries keep one identity.
func (s *Store) FindTrackingCode(ctx context.Context, quoteID, recipientID, templateKey string) (string, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT codigo FROM email_tracking
		WHERE orcamento_id = $1 AND destinatario_id = $2 AND template = $3 AND manual = false
	`, quoteID, recipientID, templateKey)
	var code string
	err := row.Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return code, true, nil
}

func (s *Store) UpsertTracking(ctx context.Context, in store.TrackingUpsert) error {
	if in.Manual {
		return s.insertTracking(ctx, in)
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO email_tracking
			(codigo, orcamento_id, destinatario_id, template, destinatario, assunto,
			 status, provedor, modo_teste, message_id, erro, manual, criado_em, atualizado_em)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,false,$12,$12)
		ON CONFLICT (orcamento_id, destinatario_id, template) WHERE manual = false
		DO UPDATE SET destinatario = EXCLUDED.destinatario,
		              assunto = EXCLUDED.assunto,
		              status = EXCLUDED.status,
		              provedor = EXCLUDED.provedor,
		              modo_teste = EXCLUDED.modo_teste,
		              message_id = EXCLUDED.message_id,
		              erro = EXCLUDED.erro,
		              atualizado_em = EXCLUDED.atualizado_em
	`, in.Code, in.QuoteID, in.RecipientID, in.TemplateKey, in.Recipient, in.Subject,
		in.Status, in.Provider, in.TestMode, nullIfEmpty(in.MessageID), nullIfEmpty(in.ErrorDetail), in.Now)
	return err
}

func (s *Store) insertTracking(ctx context.Context, in store.TrackingUpsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO email_tracking
			(codigo, orcamento_id, destinatario_id, template, destinatario, assunto,
			 status, provedor, modo_teste, message_id, erro, manual, criado_em, atualizado_em)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,true,$12,$12)
	`, in.Code, in.QuoteID, in.RecipientID, in.TemplateKey, in.Recipient, in.Subject,
		in.Status, in.Provider, in.TestMode, nullIfEmpty(in.MessageID), nullIfEmpty(in.ErrorDetail), in.Now)
	return err
}

func (s *Store) GetTracking(ctx context.Context, code string) (store.TrackingRecord, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT codigo, orcamento_id, destinatario_id, template, destinatario, assunto,
		       status, provedor, modo_teste, COALESCE(message_id,''), COALESCE(erro,''), manual,
		       criado_em, atualizado_em
		FROM email_tracking WHERE codigo = $1
	`, code)
	var t store.TrackingRecord
	err := row.Scan(&t.Code, &t.QuoteID, &t.RecipientID, &t.TemplateKey, &t.Recipient, &t.Subject,
		&t.Status, &t.Provider, &t.TestMode, &t.MessageID, &t.ErrorDetail, &t.Manual,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.TrackingRecord{}, false, nil
		}
		return store.TrackingRecord{}, false, err
	}
	return t, true, nil
}

func (s *Store) GetQuote(ctx context.Context, id string) (store.Quote, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, COALESCE(nome,''), COALESCE(email,''), COALESCE(telefone,''),
		       COALESCE(cidade_origem,''), COALESCE(uf_origem,''), COALESCE(cidade_destino,''), COALESCE(uf_destino,''),
		       COALESCE(tipo_imovel,''), data_mudanca, distancia_km, preco_min_centavos, preco_max_centavos, criado_em
		FROM orcamentos WHERE id = $1
	`, id)
	var q store.Quote
	err := row.Scan(&q.ID, &q.Name, &q.Email, &q.Phone,
		&q.OriginCity, &q.OriginState, &q.DestCity, &q.DestState,
		&q.PropertyType, &q.MovingDate, &q.DistanceKm, &q.PriceMinCents, &q.PriceMaxCents, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Quote{}, false, nil
		}
		return store.Quote{}, false, err
	}
	return q, true, nil
}

// ManualCompanyName marks the placeholder recipient that manual sends
// hang off. It is created opted out of automatic campaigns so the batch
// selection never picks its rows up.
const ManualCompanyName = "Envio Manual"

func (s *Store) EnsureManualCompany(ctx context.Context, email string, now time.Time) (store.Company, error) {
	var c store.Company
	row := s.DB.QueryRow(ctx, `
		SELECT id, nome, COALESCE(email,''), COALESCE(telefone,''), COALESCE(cidade,''), COALESCE(uf,''), ativo, excluida_campanhas
		FROM empresas WHERE nome = $1
	`, ManualCompanyName)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.City, &c.State, &c.Active, &c.ExcludedFromCampaigns)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Company{}, err
	}

	c = store.Company{
		ID:                    "emp_" + util.NewID(),
		Name:                  ManualCompanyName,
		Email:                 email,
		Active:                true,
		ExcludedFromCampaigns: true,
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO empresas (id, nome, email, ativo, excluida_campanhas, criado_em)
		VALUES ($1, $2, $3, true, true, $4)
	`, c.ID, c.Name, c.Email, now)
	if err != nil {
		return store.Company{}, err
	}
	return c, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
