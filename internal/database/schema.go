package database

// Schema is the PostgreSQL schema for templates, stages, live document
// workflows and the stage history ledger.
const Schema = `
CREATE TABLE IF NOT EXISTS workflow_templates (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name          TEXT        NOT NULL,
    document_type TEXT        NOT NULL,
    description   TEXT,
    is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_workflow_templates_document_type
    ON workflow_templates (document_type) WHERE is_active;

CREATE TABLE IF NOT EXISTS workflow_stages (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    template_id   UUID        NOT NULL REFERENCES workflow_templates (id),
    name          TEXT        NOT NULL,
    stage_order   INTEGER     NOT NULL CHECK (stage_order > 0),
    assigned_role TEXT,
    is_required   BOOLEAN     NOT NULL DEFAULT TRUE,
    auto_approve  BOOLEAN     NOT NULL DEFAULT FALSE,
    timeout_days  INTEGER,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_workflow_stages_template_order UNIQUE (template_id, stage_order)
);

CREATE TABLE IF NOT EXISTS workflow_stage_actions (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    stage_id      UUID        NOT NULL REFERENCES workflow_stages (id),
    name          TEXT        NOT NULL,
    action_type   TEXT        NOT NULL,
    next_stage_id UUID        REFERENCES workflow_stages (id),
    sort_order    INTEGER     NOT NULL DEFAULT 0,
    is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_stage_roles (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    stage_id    UUID    NOT NULL REFERENCES workflow_stages (id),
    role_code   TEXT    NOT NULL,
    is_required BOOLEAN NOT NULL DEFAULT TRUE,
    position    INTEGER NOT NULL DEFAULT 0,
    CONSTRAINT uq_workflow_stage_roles UNIQUE (stage_id, role_code)
);

CREATE TABLE IF NOT EXISTS workflow_stage_permissions (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    stage_id        UUID    NOT NULL REFERENCES workflow_stages (id),
    permission_name TEXT    NOT NULL,
    is_required     BOOLEAN NOT NULL DEFAULT TRUE,
    CONSTRAINT uq_workflow_stage_permissions UNIQUE (stage_id, permission_name)
);

CREATE TABLE IF NOT EXISTS document_workflows (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    document_id      TEXT        NOT NULL,
    document_type    TEXT        NOT NULL,
    template_id      UUID        NOT NULL REFERENCES workflow_templates (id),
    current_stage_id UUID        REFERENCES workflow_stages (id),
    status           TEXT        NOT NULL,
    initiated_by     TEXT        NOT NULL,
    initiated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at     TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_document_workflows_document_template UNIQUE (document_id, template_id)
);

CREATE TABLE IF NOT EXISTS workflow_stage_history (
    id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    seq                  BIGSERIAL   NOT NULL,
    document_workflow_id UUID        NOT NULL REFERENCES document_workflows (id),
    stage_id             UUID        NOT NULL REFERENCES workflow_stages (id),
    action               TEXT        NOT NULL,
    processed_by         TEXT        NOT NULL,
    assigned_to          TEXT,
    comments             TEXT,
    attachments          JSONB,
    processed_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_workflow_stage_history_workflow
    ON workflow_stage_history (document_workflow_id, processed_at, seq);

CREATE OR REPLACE FUNCTION prevent_history_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'workflow_stage_history is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_workflow_stage_history_append_only ON workflow_stage_history;
CREATE TRIGGER trg_workflow_stage_history_append_only
    BEFORE UPDATE OR DELETE ON workflow_stage_history
    FOR EACH ROW EXECUTE FUNCTION prevent_history_mutation();
`
