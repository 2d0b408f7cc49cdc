package storage

const schema = `
-- Each deck belongs to one user and is filled from a local directory or git repository.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    source_path TEXT NOT NULL,
    source_type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME,

    UNIQUE(owner_id, source_path)
);

-- Cards are identified within a deck by the hash of their normalized content.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id INTEGER NOT NULL,
    hash TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',

    UNIQUE(deck_id, hash),
    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

-- SM-2 state per (user, card). Rows appear on the first rating.
CREATE TABLE IF NOT EXISTS review_states (
    user_id INTEGER NOT NULL,
    card_id INTEGER NOT NULL,
    ease_factor REAL NOT NULL DEFAULT 2.5 CHECK (ease_factor >= 1.3),
    interval INTEGER NOT NULL DEFAULT 0 CHECK (interval >= 0),
    repetitions INTEGER NOT NULL DEFAULT 0 CHECK (repetitions >= 0),
    next_review TEXT, -- YYYY-MM-DD
    last_reviewed DATETIME,

    PRIMARY KEY (user_id, card_id),
    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

-- Review counters per (user, deck, day). Only ever incremented. Rows outlive
-- their deck so streaks keep their history.
CREATE TABLE IF NOT EXISTS daily_stats (
    user_id INTEGER NOT NULL,
    deck_id INTEGER NOT NULL,
    date TEXT NOT NULL, -- YYYY-MM-DD
    cards_studied INTEGER NOT NULL DEFAULT 0,
    correct_answers INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (user_id, deck_id, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_user_date ON daily_stats(user_id, date);
`
