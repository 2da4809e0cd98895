// Package postgres — migrations.go: SQL-миграции встроены в код для упрощения деплоя.
package postgres

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "members", migration001Members},
	{2, "ledger", migration002Ledger},
	{3, "barter_sessions", migration003Sessions},
	{4, "quiz_attempts", migration004Quiz},
	{5, "quiz_feedback", migration005QuizFeedback},
}

var migration001Members = `
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    teach_skills TEXT[] NOT NULL DEFAULT '{}',
    learn_skills TEXT[] NOT NULL DEFAULT '{}',
    profile_completed BOOLEAN NOT NULL DEFAULT FALSE,
    notify_chat_id BIGINT,
    token_hash TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS balances (
    user_id TEXT PRIMARY KEY REFERENCES members(id),
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS ledger_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES members(id),
    delta BIGINT NOT NULL,
    reason VARCHAR(32) NOT NULL,
    correlation_id TEXT NOT NULL,
    balance_after BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (correlation_id, reason)
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_created ON ledger_entries(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_balances_balance ON balances(balance DESC, user_id);
`

var migration003Sessions = `
CREATE TABLE IF NOT EXISTS barter_sessions (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL REFERENCES members(id),
    teacher_id TEXT NOT NULL REFERENCES members(id),
    pair_key TEXT NOT NULL,
    skills TEXT[] NOT NULL DEFAULT '{}',
    state VARCHAR(16) NOT NULL,
    awarded_points BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    closed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_barter_sessions_open_pair
    ON barter_sessions(pair_key)
    WHERE state IN ('requested', 'accepted', 'active');
CREATE INDEX IF NOT EXISTS idx_barter_sessions_learner ON barter_sessions(learner_id);
CREATE INDEX IF NOT EXISTS idx_barter_sessions_teacher ON barter_sessions(teacher_id);
CREATE INDEX IF NOT EXISTS idx_barter_sessions_state_created ON barter_sessions(state, created_at);
`

var migration004Quiz = `
CREATE TABLE IF NOT EXISTS quiz_attempts (
    id TEXT PRIMARY KEY,
    quiz_id TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES members(id),
    answers JSONB NOT NULL,
    score INTEGER NOT NULL,
    total_questions INTEGER NOT NULL,
    points BIGINT NOT NULL,
    state VARCHAR(16) NOT NULL,
    ledger_entry_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    graded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user ON quiz_attempts(user_id, graded_at DESC);
`

var migration005QuizFeedback = `
ALTER TABLE quiz_attempts ADD COLUMN IF NOT EXISTS feedback JSONB NOT NULL DEFAULT '[]';
`
