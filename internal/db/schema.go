package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- USER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS email ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS first_name ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS last_name ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS password ON user TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON user TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS user_email ON user FIELDS email UNIQUE;

    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS principal ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS last_activity ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS created ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_principal ON conversation FIELDS principal;

    -- ==========================================================================
    -- TURN TABLE (append-only transcript)
    -- ==========================================================================
    -- Turns are immutable once written; ordering within a conversation is
    -- by the created timestamp assigned server-side at append time.
    DEFINE TABLE IF NOT EXISTS turn SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON turn TYPE string ASSERT $value IN ["user", "assistant"];
    DEFINE FIELD IF NOT EXISTS content ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS principal ON turn TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created ON turn TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS turn_conversation ON turn FIELDS conversation;
    DEFINE INDEX IF NOT EXISTS turn_conversation_created ON turn FIELDS conversation, created;
`
