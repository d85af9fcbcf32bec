package testhelpers

// The fixture schema is the same logical model in every dialect:
//
//	users(id pk autoincrement, name, email unique, active, created_at)
//	posts(id pk autoincrement, title, body, author_id -> users.id, published)
//	tags(code text pk, label)
//
// Seed rows: four users and four posts. Ada has two posts, Linus and Grace one each, Bob none.

var postgresFixture = []string{
	`CREATE TABLE users (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE posts (
		id SERIAL PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		body TEXT,
		author_id INTEGER NOT NULL REFERENCES users(id),
		published BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE tags (
		code VARCHAR(20) PRIMARY KEY,
		label VARCHAR(100) NOT NULL
	)`,
	`INSERT INTO users (name, email) VALUES
		('Ada', 'ada@example.com'),
		('Linus', 'linus@example.com'),
		('Grace', 'grace@example.com'),
		('Bob', 'bob@example.com')`,
	`INSERT INTO posts (title, body, author_id, published) VALUES
		('Notes', 'on the analytical engine', 1, true),
		('Sketch', NULL, 1, false),
		('Kernel', 'just a hobby', 2, true),
		('Compilers', 'nanoseconds', 3, true)`,
	`INSERT INTO tags (code, label) VALUES ('go', 'Go'), ('sql', 'SQL')`,
}

var mysqlFixture = []string{
	`CREATE TABLE users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE posts (
		id INT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		body TEXT,
		author_id INT NOT NULL,
		published BOOLEAN NOT NULL DEFAULT false,
		CONSTRAINT posts_author_fk FOREIGN KEY (author_id) REFERENCES users(id)
	)`,
	`CREATE TABLE tags (
		code VARCHAR(20) PRIMARY KEY,
		label VARCHAR(100) NOT NULL
	)`,
	`INSERT INTO users (name, email) VALUES
		('Ada', 'ada@example.com'),
		('Linus', 'linus@example.com'),
		('Grace', 'grace@example.com'),
		('Bob', 'bob@example.com')`,
	`INSERT INTO posts (title, body, author_id, published) VALUES
		('Notes', 'on the analytical engine', 1, true),
		('Sketch', NULL, 1, false),
		('Kernel', 'just a hobby', 2, true),
		('Compilers', 'nanoseconds', 3, true)`,
	`INSERT INTO tags (code, label) VALUES ('go', 'Go'), ('sql', 'SQL')`,
}

var sqliteFixture = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		body TEXT,
		author_id INTEGER NOT NULL REFERENCES users(id),
		published BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE tags (
		code TEXT PRIMARY KEY,
		label TEXT NOT NULL
	)`,
	`INSERT INTO users (name, email) VALUES
		('Ada', 'ada@example.com'),
		('Linus', 'linus@example.com'),
		('Grace', 'grace@example.com'),
		('Bob', 'bob@example.com')`,
	`INSERT INTO posts (title, body, author_id, published) VALUES
		('Notes', 'on the analytical engine', 1, 1),
		('Sketch', NULL, 1, 0),
		('Kernel', 'just a hobby', 2, 1),
		('Compilers', 'nanoseconds', 3, 1)`,
	`INSERT INTO tags (code, label) VALUES ('go', 'Go'), ('sql', 'SQL')`,
}
