package sqlstore

const schema = `
CREATE TABLE IF NOT EXISTS elements (
	addr INTEGER PRIMARY KEY AUTOINCREMENT,
	type INTEGER NOT NULL,
	source INTEGER NOT NULL DEFAULT 0,
	target INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_elements_source ON elements(source);
CREATE INDEX IF NOT EXISTS idx_elements_target ON elements(target);

CREATE TABLE IF NOT EXISTS links (
	addr INTEGER PRIMARY KEY,
	content BLOB NOT NULL,
	hash BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_hash ON links(hash);

CREATE TABLE IF NOT EXISTS keynodes (
	idtf TEXT PRIMARY KEY,
	addr INTEGER NOT NULL UNIQUE
);
`
