package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"arkik/internal"
)

// DB is the local plant database: a mirror of the central reference data
// plus everything staged and decided during imports. It doubles as the
// engine's bulk-fetch Source.
type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS recipes (
  id TEXT PRIMARY KEY,
  plant_id TEXT NOT NULL,
  arkik_long_code TEXT,
  recipe_code TEXT,
  arkik_short_code TEXT,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_recipes_plant ON recipes(plant_id);
CREATE INDEX IF NOT EXISTS idx_recipes_long_code ON recipes(arkik_long_code);

CREATE TABLE IF NOT EXISTS product_prices (
  id TEXT PRIMARY KEY,
  plant_id TEXT NOT NULL,
  recipe_id TEXT NOT NULL,
  client_id TEXT,
  construction_site TEXT,
  amount REAL NOT NULL,
  date_ref TEXT NOT NULL,
  business_name TEXT,
  client_code TEXT,
  is_active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_prices_plant_recipe ON product_prices(plant_id, recipe_id);

CREATE TABLE IF NOT EXISTS approved_quotes (
  id TEXT PRIMARY KEY,
  plant_id TEXT NOT NULL,
  recipe_id TEXT NOT NULL,
  client_id TEXT,
  construction_site TEXT,
  amount REAL NOT NULL,
  date_ref TEXT NOT NULL,
  business_name TEXT,
  client_code TEXT
);
CREATE INDEX IF NOT EXISTS idx_quotes_plant_recipe ON approved_quotes(plant_id, recipe_id);

CREATE TABLE IF NOT EXISTS material_mappings (
  plant_id TEXT NOT NULL,
  arkik_code TEXT NOT NULL,
  material_id TEXT NOT NULL,
  PRIMARY KEY(plant_id, arkik_code)
);

CREATE TABLE IF NOT EXISTS remisiones (
  id TEXT PRIMARY KEY,
  plant_id TEXT NOT NULL,
  remision_number TEXT NOT NULL,
  order_id TEXT,
  order_number TEXT,
  recipe_id TEXT,
  fecha TEXT,
  volumen_fabricado REAL NOT NULL DEFAULT 0,
  UNIQUE(plant_id, remision_number)
);

CREATE TABLE IF NOT EXISTS remision_materials (
  remision_id TEXT NOT NULL,
  material_type TEXT NOT NULL,
  cantidad_teorica REAL NOT NULL DEFAULT 0,
  cantidad_real REAL NOT NULL DEFAULT 0,
  ajuste REAL NOT NULL DEFAULT 0,
  FOREIGN KEY(remision_id) REFERENCES remisiones(id)
);
CREATE INDEX IF NOT EXISTS idx_remision_materials ON remision_materials(remision_id);

CREATE TABLE IF NOT EXISTS remision_status_decisions (
  remision_id TEXT NOT NULL,
  action TEXT NOT NULL,
  target_remision_number TEXT,
  waste_reason TEXT,
  FOREIGN KEY(remision_id) REFERENCES remisiones(id)
);

CREATE TABLE IF NOT EXISTS remision_reassignments (
  source_remision_id TEXT NOT NULL,
  target_remision_id TEXT NOT NULL,
  reason TEXT
);

CREATE TABLE IF NOT EXISTS waste_materials (
  remision_number TEXT NOT NULL,
  plant_id TEXT NOT NULL,
  material_code TEXT NOT NULL,
  waste_amount REAL NOT NULL DEFAULT 0,
  waste_reason TEXT
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS staging_rows (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  emailId INTEGER,
  rowNumber INTEGER NOT NULL,
  remisionNumber TEXT NOT NULL,
  validationStatus TEXT NOT NULL,
  confidence TEXT,
  recipeId TEXT,
  unitPrice REAL,
  priceSource TEXT,
  payloadJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_staging_email ON staging_rows(emailId);

CREATE TABLE IF NOT EXISTS validation_errors (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  emailId INTEGER,
  rowNumber INTEGER NOT NULL,
  kind TEXT NOT NULL,
  fieldName TEXT,
  fieldValue TEXT,
  message TEXT,
  recoverable INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  statsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// --- reference data upserts (sync path) ---

func (d *DB) UpsertRecipes(recipes []internal.Recipe) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO recipes (id, plant_id, arkik_long_code, recipe_code, arkik_short_code, lastSeenAt)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  plant_id=excluded.plant_id,
  arkik_long_code=excluded.arkik_long_code,
  recipe_code=excluded.recipe_code,
  arkik_short_code=excluded.arkik_short_code,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recipes {
		if _, err := stmt.Exec(r.ID, r.PlantID, r.LongCode, r.ShortCode, r.AlternateCode); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) UpsertPriceCandidates(plantID string, candidates []internal.PriceCandidate) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	priceStmt, err := tx.Prepare(`
INSERT INTO product_prices (id, plant_id, recipe_id, client_id, construction_site, amount, date_ref, business_name, client_code, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(id) DO UPDATE SET
  recipe_id=excluded.recipe_id,
  client_id=excluded.client_id,
  construction_site=excluded.construction_site,
  amount=excluded.amount,
  date_ref=excluded.date_ref,
  business_name=excluded.business_name,
  client_code=excluded.client_code,
  is_active=1
`)
	if err != nil {
		return err
	}
	defer priceStmt.Close()

	quoteStmt, err := tx.Prepare(`
INSERT INTO approved_quotes (id, plant_id, recipe_id, client_id, construction_site, amount, date_ref, business_name, client_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  recipe_id=excluded.recipe_id,
  client_id=excluded.client_id,
  construction_site=excluded.construction_site,
  amount=excluded.amount,
  date_ref=excluded.date_ref,
  business_name=excluded.business_name,
  client_code=excluded.client_code
`)
	if err != nil {
		return err
	}
	defer quoteStmt.Close()

	for _, c := range candidates {
		dateRef := c.EffectiveDate.UTC().Format(time.RFC3339)
		switch c.Source {
		case internal.SourcePrice:
			if _, err := priceStmt.Exec(c.PriceID, plantID, c.RecipeID, c.ClientID, c.SiteName, c.Amount, dateRef, c.ClientDisplayName, c.ClientCode); err != nil {
				return err
			}
		case internal.SourceQuote:
			if _, err := quoteStmt.Exec(c.QuoteID, plantID, c.RecipeID, c.ClientID, c.SiteName, c.Amount, dateRef, c.ClientDisplayName, c.ClientCode); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (d *DB) UpsertMaterialMappings(plantID string, codes map[string]string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO material_mappings (plant_id, arkik_code, material_id)
VALUES (?, ?, ?)
ON CONFLICT(plant_id, arkik_code) DO UPDATE SET material_id=excluded.material_id
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for arkikCode, materialID := range codes {
		if _, err := stmt.Exec(plantID, arkikCode, materialID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- refdata.Source implementation ---

func (d *DB) Recipes(ctx context.Context, plantID string) ([]internal.Recipe, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, plant_id, COALESCE(arkik_long_code,''), COALESCE(recipe_code,''), COALESCE(arkik_short_code,'')
FROM recipes WHERE plant_id = ?`, plantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Recipe
	for rows.Next() {
		var r internal.Recipe
		if err := rows.Scan(&r.ID, &r.PlantID, &r.LongCode, &r.ShortCode, &r.AlternateCode); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) ActivePrices(ctx context.Context, plantID string) ([]internal.PriceCandidate, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, recipe_id, COALESCE(client_id,''), COALESCE(construction_site,''), amount, date_ref,
       COALESCE(business_name,''), COALESCE(client_code,'')
FROM product_prices WHERE plant_id = ? AND is_active = 1`, plantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows, internal.SourcePrice)
}

func (d *DB) ApprovedQuotes(ctx context.Context, plantID string) ([]internal.PriceCandidate, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, recipe_id, COALESCE(client_id,''), COALESCE(construction_site,''), amount, date_ref,
       COALESCE(business_name,''), COALESCE(client_code,'')
FROM approved_quotes WHERE plant_id = ?`, plantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows, internal.SourceQuote)
}

func scanCandidates(rows *sql.Rows, source internal.PriceSource) ([]internal.PriceCandidate, error) {
	var out []internal.PriceCandidate
	for rows.Next() {
		var c internal.PriceCandidate
		var id, dateRef string
		if err := rows.Scan(&id, &c.RecipeID, &c.ClientID, &c.SiteName, &c.Amount, &dateRef, &c.ClientDisplayName, &c.ClientCode); err != nil {
			return nil, err
		}
		c.Source = source
		if source == internal.SourcePrice {
			c.PriceID = id
		} else {
			c.QuoteID = id
		}
		if parsed, err := time.Parse(time.RFC3339, dateRef); err == nil {
			c.EffectiveDate = parsed
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) MappedMaterialCodes(ctx context.Context, plantID string, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	query, args := inQuery(`SELECT arkik_code FROM material_mappings WHERE plant_id = ? AND arkik_code IN `, plantID, codes)
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (d *DB) ExistingRemisionNumbers(ctx context.Context, plantID string, numbers []string) ([]string, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	query, args := inQuery(`SELECT remision_number FROM remisiones WHERE plant_id = ? AND remision_number IN `, plantID, numbers)
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, err
		}
		out = append(out, number)
	}
	return out, rows.Err()
}

// ExistingRemisionRefs resolves the incoming numbers to stored remisiones
// together with the dependent-record flags the duplicate classifier needs.
func (d *DB) ExistingRemisionRefs(ctx context.Context, plantID string, numbers []string) ([]internal.ExistingRecordRef, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	query, args := inQuery(`
SELECT r.id, r.remision_number, COALESCE(r.order_id,''), COALESCE(r.order_number,''),
       COALESCE(r.recipe_id,''), COALESCE(r.fecha,''), r.volumen_fabricado,
       EXISTS(SELECT 1 FROM remision_materials m WHERE m.remision_id = r.id),
       EXISTS(SELECT 1 FROM remision_status_decisions s WHERE s.remision_id = r.id),
       EXISTS(SELECT 1 FROM remision_reassignments a WHERE a.source_remision_id = r.id OR a.target_remision_id = r.id),
       EXISTS(SELECT 1 FROM waste_materials w WHERE w.remision_number = r.remision_number AND w.plant_id = r.plant_id)
FROM remisiones r WHERE r.plant_id = ? AND r.remision_number IN `, plantID, numbers)

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExistingRecordRef
	for rows.Next() {
		var ref internal.ExistingRecordRef
		var fecha string
		var hasMaterials, hasDecisions, hasReassignments, hasWaste int
		if err := rows.Scan(
			&ref.RemisionID, &ref.RemisionNumber, &ref.OrderID, &ref.OrderNumber,
			&ref.RecipeID, &fecha, &ref.Volume,
			&hasMaterials, &hasDecisions, &hasReassignments, &hasWaste,
		); err != nil {
			return nil, err
		}
		ref.HasMaterials = hasMaterials != 0
		ref.HasStatusDecisions = hasDecisions != 0
		ref.HasReassignments = hasReassignments != 0
		ref.HasWasteMaterials = hasWaste != 0
		if parsed, err := time.Parse("2006-01-02", fecha); err == nil {
			ref.Date = parsed
		} else if parsed, err := time.Parse(time.RFC3339, fecha); err == nil {
			ref.Date = parsed
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// --- remision persistence (commit path) ---

// InsertRemisiones writes new delivery records plus their material
// consumption. Remision ids are deterministic per plant and number so a
// re-run of the same commit is idempotent.
func (d *DB) InsertRemisiones(plantID string, rows []internal.ValidatedRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO remisiones (id, plant_id, remision_number, order_id, order_number, recipe_id, fecha, volumen_fabricado)
VALUES (?, ?, ?, NULL, ?, ?, ?, ?)
ON CONFLICT(plant_id, remision_number) DO UPDATE SET
  recipe_id=excluded.recipe_id,
  fecha=excluded.fecha,
  volumen_fabricado=excluded.volumen_fabricado
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		id := remisionID(plantID, row.RemisionNumber)
		fecha := ""
		if !row.Date.IsZero() {
			fecha = row.Date.Format("2006-01-02")
		}
		if _, err := stmt.Exec(id, plantID, row.RemisionNumber, row.OrderRef, row.RecipeID, fecha, row.Volume); err != nil {
			return err
		}
		if err := replaceMaterialsTx(tx, id, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ApplyDuplicateUpdates applies the partition's update bucket. A
// preserving strategy only touches material consumption; update_all also
// rewrites the remision header fields from the incoming row.
func (d *DB) ApplyDuplicateUpdates(plantID string, updates []internal.DuplicateUpdate) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		if err := replaceMaterialsTx(tx, u.ExistingRemisionID, u.Row); err != nil {
			return err
		}
		if u.Strategy != internal.StrategyUpdateAll {
			continue
		}
		fecha := ""
		if !u.Row.Date.IsZero() {
			fecha = u.Row.Date.Format("2006-01-02")
		}
		if _, err := tx.Exec(`
UPDATE remisiones SET recipe_id = ?, fecha = ?, volumen_fabricado = ? WHERE id = ?`,
			u.Row.RecipeID, fecha, u.Row.Volume, u.ExistingRemisionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func replaceMaterialsTx(tx *sql.Tx, remisionID string, row internal.ValidatedRow) error {
	if len(row.MaterialsTheoretical) == 0 && len(row.MaterialsActual) == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM remision_materials WHERE remision_id = ?`, remisionID); err != nil {
		return err
	}

	codes := map[string]struct{}{}
	for code := range row.MaterialsTheoretical {
		codes[code] = struct{}{}
	}
	for code := range row.MaterialsActual {
		codes[code] = struct{}{}
	}
	for code := range codes {
		ajuste := row.MaterialsRework[code] + row.MaterialsManual[code]
		if _, err := tx.Exec(`
INSERT INTO remision_materials (remision_id, material_type, cantidad_teorica, cantidad_real, ajuste)
VALUES (?, ?, ?, ?, ?)`,
			remisionID, code, row.MaterialsTheoretical[code], row.MaterialsActual[code], ajuste); err != nil {
			return err
		}
	}
	return nil
}

func remisionID(plantID, number string) string {
	return plantID + ":" + number
}

// --- dispatch email intake ---

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

// ClearEmailStaging removes earlier staged rows and errors so reprocessing
// an email starts clean.
func (d *DB) ClearEmailStaging(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM staging_rows WHERE emailId = ?`, emailID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM validation_errors WHERE emailId = ?`, emailID); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) InsertStagingRows(emailID int, validated []internal.ValidatedRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO staging_rows (emailId, rowNumber, remisionNumber, validationStatus, confidence, recipeId, unitPrice, priceSource, payloadJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range validated {
		payload, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			emailID, row.RowNumber, row.RemisionNumber, string(row.Status), string(row.Confidence),
			row.RecipeID, row.UnitPrice, string(row.PriceSource), string(payload),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) InsertValidationErrors(emailID int, errs []internal.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO validation_errors (emailId, rowNumber, kind, fieldName, fieldValue, message, recoverable)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range errs {
		if _, err := stmt.Exec(emailID, e.RowNumber, string(e.Kind), e.FieldName, e.FieldValue, e.Message, e.Recoverable); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetValidatedRows rehydrates the staged batch for export.
func (d *DB) GetValidatedRows(emailID int) ([]internal.ValidatedRow, error) {
	rows, err := d.conn.Query(`SELECT payloadJson FROM staging_rows WHERE emailId = ? ORDER BY rowNumber ASC`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ValidatedRow
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var row internal.ValidatedRow
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, emailID int, timings map[string]float64, counts map[string]int, stats internal.BatchStats) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	statsJSON, _ := json.Marshal(stats)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson, statsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, emailID, string(timingsJSON), string(countsJSON), string(statsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func inQuery(prefix, plantID string, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, 0, len(values)+1)
	args = append(args, plantID)
	for i, v := range values {
		placeholders[i] = "?"
		args = append(args, v)
	}
	return prefix + "(" + strings.Join(placeholders, ",") + ")", args
}
