package sqlite

// Schema defines the SQLite schema for the vector index and the property
// graph. Applied on open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id           TEXT PRIMARY KEY,
    text         TEXT NOT NULL,
    embedding    BLOB,
    dimension    INTEGER NOT NULL DEFAULT 0,
    session_id   TEXT NOT NULL DEFAULT '',
    message_type TEXT NOT NULL DEFAULT '',
    text_length  INTEGER NOT NULL DEFAULT 0,
    memory_type  TEXT NOT NULL DEFAULT '',
    tags         TEXT NOT NULL DEFAULT '',
    importance   INTEGER NOT NULL DEFAULT 0,
    source       TEXT NOT NULL DEFAULT '',
    context      TEXT NOT NULL DEFAULT '',
    related_ids  TEXT NOT NULL DEFAULT '',
    extra        TEXT NOT NULL DEFAULT '{}',
    timestamp    TIMESTAMP NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);

CREATE TABLE IF NOT EXISTS graph_nodes (
    id         TEXT PRIMARY KEY,
    label      TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_label ON graph_nodes(label);

CREATE TABLE IF NOT EXISTS graph_relationships (
    id         TEXT NOT NULL,
    source_id  TEXT NOT NULL,
    target_id  TEXT NOT NULL,
    type       TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (source_id, type, target_id)
);

CREATE INDEX IF NOT EXISTS idx_graph_rels_source ON graph_relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_graph_rels_target ON graph_relationships(target_id);
`
