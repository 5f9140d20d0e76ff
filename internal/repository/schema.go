package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaItems = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    title TEXT NOT NULL,
    category TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_items_tenant ON items(tenant_id);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(tenant_id, category);
`

const schemaPatrons = `
CREATE TABLE IF NOT EXISTS patrons (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    class TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_patrons_tenant ON patrons(tenant_id);
`

const schemaLoans = `
CREATE TABLE IF NOT EXISTS loans (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    patron_id TEXT NOT NULL,
    checkout_date TIMESTAMP NOT NULL,
    due_date TIMESTAMP NOT NULL,
    return_date TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_loans_tenant ON loans(tenant_id);
CREATE INDEX IF NOT EXISTS idx_loans_patron ON loans(tenant_id, patron_id);
CREATE INDEX IF NOT EXISTS idx_loans_open ON loans(tenant_id, return_date);
CREATE INDEX IF NOT EXISTS idx_loans_due ON loans(tenant_id, due_date);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    loan_id TEXT NOT NULL,
    patron_id TEXT NOT NULL,
    strategy TEXT NOT NULL,
    amount REAL NOT NULL,
    as_of TIMESTAMP NOT NULL,
    evaluated_at TIMESTAMP NOT NULL,
    breakdown TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_loan ON assessments(tenant_id, loan_id);
CREATE INDEX IF NOT EXISTS idx_assessments_patron ON assessments(tenant_id, patron_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaItems,
		schemaPatrons,
		schemaLoans,
		schemaAssessments,
	}
}
